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
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestInterceptTime(t *testing.T) {
	// Stationary target 1 km east, glider at 0.5 m/s
	dt, err := interceptTime(Point{1000, 0}, Point{}, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 2000, dt, 1e-9)

	_, err = interceptTime(Point{1000, 0}, Point{0.5, 0}, 0.5)
	assert.ErrorIs(t, err, ErrEqualSpeeds)

	_, err = interceptTime(Point{0, 1000}, Point{2, 0}, 0.5)
	assert.ErrorIs(t, err, ErrNoRealSolution)

	// Target running away faster than the glider can swim
	_, err = interceptTime(Point{1000, 0}, Point{2, 0}, 0.5)
	assert.ErrorIs(t, err, ErrNoFutureSolution)
}

func TestSolve(t *testing.T) {
	w, err := Solve(
		NewDrifter(44, -124, 0.1, 0),
		NewGlider(44.01, -124, 0.4),
		NewWater(-0.1, 0.1),
		NewPattern(1, 0, true))
	require.NoError(t, err)
	assert.Greater(t, w.DT, 0.0)

	// Glider starts north of the drifter
	assert.InDelta(t, 0, w.Glider0.X, 1e-6)
	assert.InDelta(t, 1112, w.Glider0.Y, 1)

	// Drifter heading east, so the rotated offset is unchanged
	assert.InDelta(t, 1, w.Target0.X, 1e-9)
	assert.InDelta(t, 0, w.Target0.Y, 1e-9)

	// The waypoint is the target carried along with the drifter
	moved := w.Drifter.LatLon.Delta(w.DrifterAt.LatLon)
	assert.InDelta(t, 0.1*w.DT, moved.X, 0.1*w.DT*1e-3)
	assert.Equal(t, w.Position, w.GliderAt.LatLon)
}

func TestPatternRotation(t *testing.T) {
	p := NewPattern(1000, 0, true)
	north := p.At(math.Pi / 2)
	assert.InDelta(t, 0, north.X, 1e-9)
	assert.InDelta(t, 1000, north.Y, 1e-9)

	fixed := NewPattern(1000, 0, false)
	assert.Equal(t, Point{1000, 0}, fixed.At(math.Pi/2))
}

// **Feature: drifter-follow, Property 2: Intercept reaches the moving target**
// For any drifter and current slower than the glider, the glider swimming at
// its speed for DT seconds through the current ends at the waypoint.
// 对于慢于滑翔机的漂流与水流，滑翔机以其速度航行 DT 秒后正好到达航点。
func TestProperty_InterceptReachesTarget(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		spd := rapid.Float64Range(0.3, 1.0).Draw(t, "spd")
		vx := rapid.Float64Range(-0.1, 0.1).Draw(t, "vx")
		vy := rapid.Float64Range(-0.1, 0.1).Draw(t, "vy")
		ux := rapid.Float64Range(-0.1, 0.1).Draw(t, "ux")
		uy := rapid.Float64Range(-0.1, 0.1).Draw(t, "uy")
		dLat := rapid.Float64Range(-0.05, 0.05).Draw(t, "dLat")
		dLon := rapid.Float64Range(-0.05, 0.05).Draw(t, "dLon")
		px := rapid.Float64Range(-2000, 2000).Draw(t, "px")
		py := rapid.Float64Range(-2000, 2000).Draw(t, "py")

		w, err := Solve(NewDrifter(44, -124, vx, vy), NewGlider(44+dLat, -124+dLon, spd),
			NewWater(ux, uy), NewPattern(px, py, rapid.Bool().Draw(t, "rotate")))
		if err != nil {
			t.Fatalf("solve: %v", err)
		}
		if w.DT < 0 {
			t.Fatalf("negative time %v", w.DT)
		}
		swim := w.XY.Sub(w.Glider0).Sub(NewWater(ux, uy).V.Scale(w.DT))
		got := math.Sqrt(swim.Dot(swim))
		want := spd * w.DT
		if math.Abs(got-want) > 1e-6*math.Max(1, want) {
			t.Fatalf("glider swims %v m, expected %v m", got, want)
		}
	})
}

func TestNewPlan(t *testing.T) {
	drifter := NewDrifter(44, -124, 0.0, 0.1)
	glider := NewGlider(44.01, -124, 0.4)
	water := NewWater(-0.1, 0.1)
	patterns := []Pattern{
		NewPattern(1000, 0, false),
		NewPattern(-1000, 0, false),
		NewPattern(0, 1000, false),
		NewPattern(0, -1000, false),
	}

	plan, err := NewPlan(drifter, glider, water, patterns, nil, PlanOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, plan.Legs)
	assert.LessOrEqual(t, len(plan.Legs), DefaultMaxWaypoints)

	// Start is the soonest reachable point
	best := -1
	bestDT := math.Inf(1)
	for i, p := range patterns {
		w, err := Solve(drifter, glider, water, p)
		require.NoError(t, err)
		if w.DT < bestDT {
			best, bestDT = i, w.DT
		}
	}
	assert.Equal(t, best, plan.Index)
	assert.Equal(t, best, plan.Legs[0].Index)

	// Indices walk the pattern and wrap, elapsed time accumulates
	for i := 1; i < len(plan.Legs); i++ {
		assert.Equal(t, (plan.Legs[i-1].Index+1)%len(patterns), plan.Legs[i].Index)
		assert.InDelta(t, plan.Legs[i-1].Elapsed+plan.Legs[i].WayPoint.DT, plan.Legs[i].Elapsed, 1e-6)
		// Each leg starts where the previous one ended
		assert.Equal(t, plan.Legs[i-1].WayPoint.GliderAt, plan.Legs[i].WayPoint.Glider)
	}
	last := plan.Legs[len(plan.Legs)-1]
	if len(plan.Legs) < DefaultMaxWaypoints {
		assert.Greater(t, last.Elapsed, DefaultMaxDuration.Seconds())
	}
}

func TestNewPlanIndex(t *testing.T) {
	patterns := []Pattern{NewPattern(500, 0, false), NewPattern(0, 500, false)}
	index := 5
	plan, err := NewPlan(NewDrifter(44, -124, 0, 0), NewGlider(44.01, -124, 0.4), Water{}, patterns, &index,
		PlanOptions{MaxWaypoints: 3})
	require.NoError(t, err)
	assert.Equal(t, 1, plan.Index)
	require.Len(t, plan.Legs, 3)
	assert.Equal(t, []int{1, 0, 1}, []int{plan.Legs[0].Index, plan.Legs[1].Index, plan.Legs[2].Index})

	_, err = NewPlan(NewDrifter(44, -124, 0, 0), NewGlider(44, -124, 0.4), Water{}, nil, nil, PlanOptions{})
	assert.ErrorIs(t, err, ErrNoPatterns)

	// Glider slower than the drifter cannot catch any point
	_, err = NewPlan(NewDrifter(44, -124, 1, 0), NewGlider(44.01, -124, 0.2), Water{}, patterns, nil, PlanOptions{})
	assert.Error(t, err)
}

func TestGoto(t *testing.T) {
	plan := &Plan{Legs: []Leg{{
		WayPoint: &WayPoint{Position: LatLon{44.5, -124.25}, DT: 1513.7},
		Elapsed:  1513.7,
		Index:    2,
	}}}
	t0 := time.Date(2020, 7, 1, 0, 0, 0, 0, time.UTC)
	text := plan.Goto(t0)

	lines := strings.Split(text, "\n")
	assert.Equal(t, "behavior_name=goto_list", lines[0])
	assert.Equal(t, "# Generated: 2020-07-01 00:00:00+00:00", lines[2])
	assert.Contains(t, lines, "b_arg: num_waypoints(enum) 1")
	assert.Contains(t, lines, "-12415.0000 4430.0000 # i=2, dt=0:25:13 2020-07-01 00:25:13+00:00")
	assert.Equal(t, "<start:waypoints>", lines[len(lines)-3])
	assert.Equal(t, "<end:waypoints>", lines[len(lines)-1])
}

func TestDegMin(t *testing.T) {
	assert.InDelta(t, 4430, DegMin(44.5), 1e-9)
	assert.InDelta(t, -12415, DegMin(-124.25), 1e-9)
	assert.InDelta(t, -124.25, FromDegMin(-12415), 1e-9)

	rapid.Check(t, func(t *rapid.T) {
		x := rapid.Float64Range(-180, 180).Draw(t, "x")
		if got := FromDegMin(DegMin(x)); math.Abs(got-x) > 1e-9 {
			t.Fatalf("%v -> %v", x, got)
		}
	})
}
