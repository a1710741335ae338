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

package gotofile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/glidertools/drifterfollow/internal/drifter"
	"github.com/glidertools/drifterfollow/internal/geo"
	"github.com/glidertools/drifterfollow/internal/observability"
	"github.com/glidertools/drifterfollow/internal/otel_trace"
	"github.com/glidertools/drifterfollow/internal/pattern"
	"github.com/glidertools/drifterfollow/internal/queue"
	"github.com/glidertools/drifterfollow/internal/storage"
	"github.com/glidertools/drifterfollow/internal/waypoint"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultGliderSpeed is used when the dialog never reported m_avg_speed.
const DefaultGliderSpeed = 0.3

// StateSource returns the newest glider state.
type StateSource interface {
	Latest(ctx context.Context, glider string) (*storage.GliderState, error)
}

// PlanStore records generated plans.
type PlanStore interface {
	SavePlan(ctx context.Context, legs []storage.PlannedWaypoint) error
}

// PatternSource looks up a glider's pattern, reporting whether it changed.
type PatternSource interface {
	Get(glider string) (*pattern.Entry, bool, error)
}

// DrifterSource predicts where a drifter will be.
type DrifterSource interface {
	Estimate(ctx context.Context, imei string, t time.Time) (*drifter.Estimate, error)
}

// Options controls goto generation.
type Options struct {
	Glider string
	// DT is how long the glider stays on the surface before diving.
	DT time.Duration
	// Index is the distance in meters within which the commanded waypoint is
	// taken to be one of the previous plan's waypoints. Zero disables it.
	Index float64
	Plan  waypoint.PlanOptions
}

// Deps are the collaborators of an Updater. Plans and Dispatcher may be nil.
type Deps struct {
	States     StateSource
	Plans      PlanStore
	Patterns   PatternSource
	Drifter    DrifterSource
	Dispatcher *Dispatcher
	Metrics    *observability.Collector
}

// Updater builds a new goto file every time the glider surfaces.
// Updater 在滑翔机每次出水时生成新的 goto 文件。
type Updater struct {
	opts   Options
	deps   Deps
	logger *zap.Logger
	q      *queue.Queue[time.Time]

	mu         sync.Mutex
	previous   *waypoint.Plan
	newPattern bool
	now        func() time.Time
}

// NewUpdater creates an Updater.
func NewUpdater(opts Options, deps Deps, logger *zap.Logger) (*Updater, error) {
	if deps.States == nil || deps.Patterns == nil || deps.Drifter == nil {
		return nil, errors.New("gotofile: states, patterns and drifter are required")
	}
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Updater{
		opts:       opts,
		deps:       deps,
		logger:     logger,
		q:          queue.New[time.Time](),
		newPattern: true,
		now:        time.Now,
	}, nil
}

// Put requests an update for a surfacing at t.
func (u *Updater) Put(t time.Time) {
	if err := u.q.Put(t); err != nil {
		u.logger.Warn("update dropped", zap.Time("t", t), zap.Error(err))
	}
}

// Start runs the update worker and the sink workers until ctx is done.
func (u *Updater) Start(ctx context.Context) {
	if u.deps.Dispatcher != nil {
		u.deps.Dispatcher.Start(ctx)
	}
	u.logger.Info("Starting", zap.String("glider", u.opts.Glider))
	go u.q.Run(ctx, func(ctx context.Context, t time.Time) {
		u.logger.Debug("update requested", zap.Time("t", t))
		if _, err := u.Update(ctx); err != nil {
			u.logger.Error("Exception while updating", zap.String("glider", u.opts.Glider), zap.Error(err))
		}
	})
}

// WaitToFinish blocks until queued updates and their deliveries are done.
func (u *Updater) WaitToFinish() {
	u.q.Wait()
	if u.deps.Dispatcher != nil {
		u.deps.Dispatcher.WaitToFinish()
	}
}

// Update builds a goto file from the latest glider state, stores the plan and
// hands the file to the sinks.
// Update 根据最新的滑翔机状态生成 goto 文件，保存计划并交给各 sink。
func (u *Updater) Update(ctx context.Context) (text string, err error) {
	started := time.Now()
	glider := u.opts.Glider
	ctx, span := otel_trace.Start(ctx, "goto.update", trace.WithAttributes(attribute.String("glider", glider)))
	defer func() { otel_trace.End(span, err) }()

	entry, changed, err := u.deps.Patterns.Get(glider)
	if err != nil {
		return "", err
	}
	if !entry.IsEnabled() {
		return "", fmt.Errorf("%w: %s", ErrDisabled, glider)
	}

	state, err := u.deps.States.Latest(ctx, glider)
	if err != nil {
		return "", fmt.Errorf("load glider state: %w", err)
	}
	if state.Lat == nil || state.Lon == nil {
		return "", ErrNoGliderPosition
	}

	now := state.T
	if now.IsZero() {
		now = u.now().UTC()
	}
	t0 := now.Add(u.opts.DT)

	est, err := u.deps.Drifter.Estimate(ctx, entry.IMEI, t0)
	if err != nil {
		return "", err
	}

	speed := DefaultGliderSpeed
	if state.Speed != nil {
		speed = *state.Speed
	}
	dLat, dLon := est.Shift(u.opts.DT)
	g := waypoint.NewGlider(*state.Lat+dLat, *state.Lon+dLon, speed)
	water := waypoint.NewWater(deref(state.Vx), deref(state.Vy))

	u.mu.Lock()
	if changed {
		u.newPattern = true
	}
	index := u.index(state)
	u.newPattern = false
	u.mu.Unlock()

	plan, err := waypoint.NewPlan(est.Drifter(), g, water, entry.Patterns, index, u.opts.Plan)
	if err != nil {
		u.logger.Error("Unable to make waypoints",
			zap.String("glider", glider),
			zap.Any("state", state),
			zap.Any("drifter", est),
			zap.Error(err))
		return "", err
	}

	u.mu.Lock()
	u.previous = plan
	u.mu.Unlock()

	span.SetAttributes(attribute.Int("goto.index", plan.Index), attribute.Int("goto.legs", len(plan.Legs)))
	text = plan.Goto(t0)
	if u.deps.Plans != nil {
		if err := u.deps.Plans.SavePlan(ctx, planRows(glider, t0, plan)); err != nil {
			u.logger.Warn("unable to save waypoint plan", zap.String("glider", glider), zap.Error(err))
		}
	}
	u.deps.Metrics.GotoGenerated(time.Since(started))
	u.logger.Info("goto generated",
		zap.String("glider", glider),
		zap.Time("t0", t0),
		zap.Int("index", plan.Index),
		zap.Int("legs", len(plan.Legs)))

	if u.deps.Dispatcher != nil {
		u.deps.Dispatcher.Put(glider, text)
	}
	return text, nil
}

// index picks the previous plan leg the glider is already heading for.
// Caller holds mu.
func (u *Updater) index(state *storage.GliderState) *int {
	if u.previous == nil || u.newPattern || u.opts.Index <= 0 {
		return nil
	}
	if state.LatWpt == nil || state.LonWpt == nil {
		return nil
	}
	minDist := u.opts.Index
	var found *int
	for _, leg := range u.previous.Legs {
		p := leg.WayPoint.Position
		dist := geo.Distance(*state.LatWpt, *state.LonWpt, p.Lat, p.Lon)
		if dist < minDist {
			minDist = dist
			i := leg.Index
			found = &i
		}
	}
	return found
}

func planRows(glider string, t0 time.Time, plan *waypoint.Plan) []storage.PlannedWaypoint {
	t0 = t0.UTC().Truncate(time.Second)
	rows := make([]storage.PlannedWaypoint, 0, len(plan.Legs))
	for i, leg := range plan.Legs {
		rows = append(rows, storage.PlannedWaypoint{
			Glider:       glider,
			T:            t0,
			Seq:          i,
			PatternIndex: leg.Index,
			Lat:          leg.WayPoint.Position.Lat,
			Lon:          leg.WayPoint.Position.Lon,
			DT:           leg.WayPoint.DT,
			ETA:          t0.Add(time.Duration(leg.Elapsed * float64(time.Second))).Truncate(time.Second),
		})
	}
	return rows
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
