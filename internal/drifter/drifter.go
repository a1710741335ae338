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

// Package drifter estimates where a drifter is and how fast it moves from its
// recent GPS fixes.
// drifter 包根据最近的 GPS 定位估计漂流浮标的位置与速度。
package drifter

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/glidertools/drifterfollow/internal/geo"
	"github.com/glidertools/drifterfollow/internal/storage"
	"github.com/glidertools/drifterfollow/internal/waypoint"
	"go.uber.org/zap"
)

// Default estimator settings
// 默认估计参数
const (
	DefaultNBack = 10
	DefaultTau   = 60.0 // minutes
)

// ErrNoFixes is returned when no usable fix is stored.
var ErrNoFixes = errors.New("drifter: no fixes available")

// FixSource returns stored fixes, newest first.
type FixSource interface {
	Recent(ctx context.Context, q storage.FixQuery) ([]storage.Fix, error)
}

// Options tunes the regression.
type Options struct {
	// NBack is how many of the newest fixes are used.
	NBack int
	// Tau is the exponential down-weighting time scale in minutes.
	Tau float64
	// TEarliest ignores fixes before this time when set.
	TEarliest *time.Time
}

func (o Options) withDefaults() Options {
	if o.NBack <= 0 {
		o.NBack = DefaultNBack
	}
	if o.Tau <= 0 {
		o.Tau = DefaultTau
	}
	return o
}

// Estimate is a predicted drifter position and velocity.
// Estimate 为预测的漂流浮标位置与速度。
type Estimate struct {
	// T is the time the position is predicted for.
	T time.Time
	// TLatest is the time of the newest fix used.
	TLatest time.Time
	NFixes  int

	Lat float64
	Lon float64
	// Vx is eastward and Vy northward velocity in meters/second.
	Vx float64
	Vy float64
	// LatPerDeg and LonPerDeg are meters per degree at the newest fix.
	LatPerDeg float64
	LonPerDeg float64
}

// Drifter converts the estimate for the intercept solver.
func (e *Estimate) Drifter() waypoint.Drifter {
	return waypoint.NewDrifter(e.Lat, e.Lon, e.Vx, e.Vy)
}

// Shift returns how many degrees of latitude and longitude the drifter's
// velocity carries something in dt.
func (e *Estimate) Shift(dt time.Duration) (dLat, dLon float64) {
	s := dt.Seconds()
	return e.Vy * s / e.LatPerDeg, e.Vx * s / e.LonPerDeg
}

// Estimator fits recent fixes with a weighted linear regression.
// Estimator 对最近定位做加权线性回归。
type Estimator struct {
	source FixSource
	opts   Options
	logger *zap.Logger
}

// NewEstimator creates an Estimator.
func NewEstimator(source FixSource, opts Options, logger *zap.Logger) *Estimator {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Estimator{source: source, opts: opts.withDefaults(), logger: logger}
}

// Estimate predicts the drifter with the given IMEI at time t. An empty IMEI
// uses every beacon in the table.
// Estimate 预测指定 IMEI 的漂流浮标在时刻 t 的位置与速度。
func (e *Estimator) Estimate(ctx context.Context, imei string, t time.Time) (*Estimate, error) {
	fixes, err := e.source.Recent(ctx, storage.FixQuery{
		IMEI:         imei,
		Since:        e.opts.TEarliest,
		Limit:        e.opts.NBack,
		PositionOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("drifter: fetch fixes: %w", err)
	}
	if len(fixes) == 0 {
		return nil, ErrNoFixes
	}

	est := regress(fixes, e.opts.Tau, t)
	e.logger.Debug("drifter estimate",
		zap.String("imei", imei),
		zap.Int("fixes", est.NFixes),
		zap.Time("t", est.T),
		zap.Float64("lat", est.Lat),
		zap.Float64("lon", est.Lon),
		zap.Float64("vx", est.Vx),
		zap.Float64("vy", est.Vy))
	return est, nil
}

// regress does the weighted fit. fixes are newest first and have positions.
func regress(fixes []storage.Fix, tau float64, t time.Time) *Estimate {
	newest := fixes[0]
	tMax := newest.T
	for _, f := range fixes[1:] {
		if f.T.After(tMax) {
			tMax = f.T
		}
	}

	n := len(fixes)
	dt := make([]float64, n)
	lat := make([]float64, n)
	lon := make([]float64, n)
	wLat := make([]float64, n)
	wLon := make([]float64, n)
	for i, f := range fixes {
		dt[i] = f.T.Sub(tMax).Seconds()
		lat[i] = *f.Latitude
		lon[i] = *f.Longitude
		acc := 1.0
		if f.Accuracy != nil && *f.Accuracy > 1 {
			acc = *f.Accuracy
		}
		latPerDeg, lonPerDeg := geo.MetersPerDegree(lat[i], lon[i])
		wLat[i] = 1 / math.Pow(acc/latPerDeg, 2)
		wLon[i] = 1 / math.Pow(acc/lonPerDeg, 2)
	}
	normalize(wLat)
	normalize(wLon)
	for i := range dt {
		decay := math.Exp(dt[i] / (tau * 60))
		wLat[i] *= decay
		wLon[i] *= decay
	}
	normalize(wLat)
	normalize(wLon)

	tt := t.Sub(tMax).Seconds()
	latA, latB := fit(dt, lat, wLat)
	lonA, lonB := fit(dt, lon, wLon)
	latPerDeg, lonPerDeg := geo.MetersPerDegree(lat[0], lon[0])

	return &Estimate{
		T:         t,
		TLatest:   tMax,
		NFixes:    n,
		Lat:       latA + latB*tt,
		Lon:       lonA + lonB*tt,
		Vx:        lonB * lonPerDeg,
		Vy:        latB * latPerDeg,
		LatPerDeg: latPerDeg,
		LonPerDeg: lonPerDeg,
	}
}

// fit returns the weighted least squares intercept and slope of y on x.
// A degenerate x yields the weighted mean and a zero slope.
func fit(x, y, w []float64) (intercept, slope float64) {
	var sw, sx, sy float64
	for i := range x {
		sw += w[i]
		sx += w[i] * x[i]
		sy += w[i] * y[i]
	}
	if sw == 0 {
		return y[0], 0
	}
	xm, ym := sx/sw, sy/sw
	var sxx, sxy float64
	for i := range x {
		dx := x[i] - xm
		sxx += w[i] * dx * dx
		sxy += w[i] * dx * (y[i] - ym)
	}
	if sxx == 0 {
		return ym, 0
	}
	slope = sxy / sxx
	return ym - slope*xm, slope
}

func normalize(w []float64) {
	maxW := 0.0
	for _, v := range w {
		if v > maxW {
			maxW = v
		}
	}
	if maxW == 0 {
		return
	}
	for i := range w {
		w[i] /= maxW
	}
}
