/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package waypoint

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Plan limits.
const (
	DefaultMaxWaypoints = 7
	DefaultMaxDuration  = 12 * time.Hour
)

// Leg is one waypoint of a plan.
// Leg 是计划中的一个航点。
type Leg struct {
	WayPoint *WayPoint
	// Elapsed is the seconds from the start of the plan to reaching this waypoint.
	Elapsed float64
	// Index is the pattern point this waypoint targets.
	Index int
}

// Plan is an ordered list of waypoints that walk a glider around a pattern.
// Plan 是沿图案依次行进的有序航点列表。
type Plan struct {
	// Index is the pattern point the plan starts at.
	Index int
	Legs  []Leg
}

// PlanOptions bounds the length of a plan.
type PlanOptions struct {
	MaxWaypoints int
	MaxDuration  time.Duration
}

func (o PlanOptions) withDefaults() PlanOptions {
	if o.MaxWaypoints <= 0 {
		o.MaxWaypoints = DefaultMaxWaypoints
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = DefaultMaxDuration
	}
	return o
}

// NewPlan chains intercepts through the patterns, starting at index, or at the
// pattern point the glider can reach soonest when index is nil. Legs are added
// until the plan holds MaxWaypoints or its elapsed time passes MaxDuration,
// wrapping to the first pattern point after the last.
// NewPlan 从 index（为 nil 时选择最快可达的图案点）开始串联交会点，
// 直到达到最大航点数或累计时间超过上限。
func NewPlan(drifter Drifter, glider Glider, water Water, patterns []Pattern, index *int, opts PlanOptions) (*Plan, error) {
	if len(patterns) == 0 {
		return nil, ErrNoPatterns
	}
	opts = opts.withDefaults()

	var start int
	if index == nil {
		i, err := closest(drifter, glider, water, patterns)
		if err != nil {
			return nil, err
		}
		start = i
	} else {
		start = ((*index % len(patterns)) + len(patterns)) % len(patterns)
	}

	plan := &Plan{Index: start}
	maxSeconds := opts.MaxDuration.Seconds()
	elapsed := 0.0
	i := start
	for elapsed <= maxSeconds && len(plan.Legs) < opts.MaxWaypoints {
		if i >= len(patterns) {
			i = 0
		}
		w, err := Solve(drifter, glider, water, patterns[i])
		if err != nil {
			return nil, fmt.Errorf("pattern point %d: %w", i, err)
		}
		elapsed += w.DT
		plan.Legs = append(plan.Legs, Leg{WayPoint: w, Elapsed: elapsed, Index: i})
		drifter = w.DrifterAt
		glider = w.GliderAt
		i++
	}
	return plan, nil
}

// closest returns the pattern point with the shortest intercept time.
// Points that cannot be reached are skipped.
func closest(drifter Drifter, glider Glider, water Water, patterns []Pattern) (int, error) {
	best := -1
	bestDT := math.Inf(1)
	var lastErr error
	for i, p := range patterns {
		w, err := Solve(drifter, glider, water, p)
		if err != nil {
			lastErr = err
			continue
		}
		if w.DT < bestDT {
			best, bestDT = i, w.DT
		}
	}
	if best < 0 {
		return 0, lastErr
	}
	return best, nil
}

// Goto renders the plan as a glider goto_list behavior file. Arrival times in
// the waypoint comments are relative to t0.
// Goto 将计划渲染为滑翔机 goto_list 行为文件，注释中的到达时间相对于 t0。
func (p *Plan) Goto(t0 time.Time) string {
	t0 = t0.UTC().Truncate(time.Second)
	lines := []string{
		"behavior_name=goto_list",
		"# Drifter follower",
		"# Generated: " + formatTime(t0),
		"",
		"<start:b_arg>",
		"b_arg: num_legs_to_run(nodim) -1",
		"b_arg: start_when(enum) 0 # BAW_IMMEDIATELY",
		"b_arg: list_stop_when(enum) 7 # BAW_WHEN_WPT_DIST",
		"b_arg: initial_wpt(enum) 0",
		fmt.Sprintf("b_arg: num_waypoints(enum) %d", len(p.Legs)),
		"<end:b_arg>",
		"<start:waypoints>",
	}
	for _, leg := range p.Legs {
		lat, lon := leg.WayPoint.Position.Goto()
		eta := t0.Add(time.Duration(leg.Elapsed * float64(time.Second))).Truncate(time.Second)
		dt := time.Duration(math.Floor(leg.WayPoint.DT)) * time.Second
		lines = append(lines, fmt.Sprintf("%.4f %.4f # i=%d, dt=%s %s",
			lon, lat, leg.Index, formatDuration(dt), formatTime(eta)))
	}
	lines = append(lines, "<end:waypoints>")
	return strings.Join(lines, "\n")
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05-07:00")
}

// formatDuration renders d as H:MM:SS.
func formatDuration(d time.Duration) string {
	secs := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", secs/3600, (secs/60)%60, secs%60)
}
