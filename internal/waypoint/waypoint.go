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

// Package waypoint finds where a glider should aim to meet a point that moves
// with a drifting buoy, and chains such points into a goto list.
// waypoint 包计算滑翔机与随漂流浮标移动的目标点的交会位置，并将其串联为 goto 列表。
//
// With X0 and V the drifter's initial position and velocity, Y0 the glider's
// initial position, U the depth averaged current and s the glider's through
// water speed, the meeting time t solves
//
//	t²(|V-U|² - s²) + 2t (X0-Y0)·(V-U) + |X0-Y0|² = 0
//
// where X0 already includes the pattern offset from the drifter.
package waypoint

import (
	"fmt"
	"math"
)

// Drifter is the drifter's position and velocity in meters/second.
// Drifter 为漂流浮标的位置与速度（米/秒）。
type Drifter struct {
	LatLon LatLon
	V      Point
	// Theta is the direction of travel, radians counter clockwise from east.
	Theta float64
}

// NewDrifter builds a Drifter, vx eastwards and vy northwards.
func NewDrifter(lat, lon, vx, vy float64) Drifter {
	return Drifter{
		LatLon: LatLon{lat, lon},
		V:      Point{vx, vy},
		Theta:  math.Atan2(vy, vx),
	}
}

func (d Drifter) String() string {
	return fmt.Sprintf("DRIFTER: %s v %s theta %g", d.LatLon, d.V, d.Theta*180/math.Pi)
}

// Glider is the glider's position and horizontal through water speed.
type Glider struct {
	LatLon LatLon
	Speed  float64
}

// NewGlider builds a Glider.
func NewGlider(lat, lon, speed float64) Glider {
	return Glider{LatLon: LatLon{lat, lon}, Speed: speed}
}

// Water is the depth averaged current.
type Water struct {
	V Point
}

// NewWater builds a Water, vx eastwards and vy northwards.
func NewWater(vx, vy float64) Water {
	return Water{V: Point{vx, vy}}
}

// Pattern is a target offset from the drifter in meters. When Rotate is set
// the offset is in the drifter's frame, x along its direction of travel.
// Pattern 是相对漂流浮标的目标偏移（米）；Rotate 为真时偏移随漂流方向旋转。
type Pattern struct {
	Offset Point `json:"offset"`
	Rotate bool  `json:"rotate"`
}

// NewPattern builds a Pattern.
func NewPattern(x, y float64, rotate bool) Pattern {
	return Pattern{Offset: Point{x, y}, Rotate: rotate}
}

// At returns the offset for a drifter heading theta.
func (p Pattern) At(theta float64) Point {
	if p.Rotate {
		return p.Offset.Rotate(theta)
	}
	return p.Offset
}

// WayPoint is a solved intercept.
// WayPoint 是一次交会求解的结果。
type WayPoint struct {
	Drifter Drifter
	Glider  Glider
	Water   Water
	Pattern Pattern

	// Target0 is the pattern point relative to the drifter at t=0.
	Target0 Point
	// Glider0 is the glider relative to the drifter at t=0.
	Glider0 Point
	// DT is the seconds until the glider reaches the target.
	DT float64
	// XY is the waypoint relative to the drifter's position at t=0.
	XY Point
	// Position is where the glider should aim.
	Position LatLon
	// DrifterAt is the drifter when the glider arrives.
	DrifterAt Drifter
	// GliderAt is the glider when it arrives.
	GliderAt Glider
}

// Solve computes the waypoint the glider should steer to in order to meet the
// pattern point as it moves with the drifter.
// Solve 求解滑翔机为与随漂流移动的图案点交会而应驶向的航点。
func Solve(drifter Drifter, glider Glider, water Water, pattern Pattern) (*WayPoint, error) {
	w := &WayPoint{
		Drifter: drifter,
		Glider:  glider,
		Water:   water,
		Pattern: pattern,
		Target0: pattern.At(drifter.Theta),
		Glider0: drifter.LatLon.Delta(glider.LatLon),
	}

	dt, err := interceptTime(w.Target0.Sub(w.Glider0), drifter.V.Sub(water.V), glider.Speed)
	if err != nil {
		return nil, err
	}
	w.DT = dt

	delta := drifter.V.Scale(dt)
	w.XY = w.Target0.Add(delta)
	w.Position = drifter.LatLon.Translate(w.XY)
	w.DrifterAt = drifter
	w.DrifterAt.LatLon = drifter.LatLon.Translate(delta)
	w.GliderAt = Glider{LatLon: w.Position, Speed: glider.Speed}
	return w, nil
}

// interceptTime returns the smallest non-negative root of
// t²(|dv|²-spd²) + 2t d0·dv + |d0|² = 0.
func interceptTime(d0, dv Point, spd float64) (float64, error) {
	a := dv.Dot(dv) - spd*spd
	b := 2 * d0.Dot(dv)
	c := d0.Dot(d0)

	if math.Abs(a) < 1e-12 {
		return 0, ErrEqualSpeeds
	}
	term := b*b - 4*a*c
	if term < 0 {
		return 0, ErrNoRealSolution
	}
	term = math.Sqrt(term)
	tp := (-b + term) / (2 * a)
	tm := (-b - term) / (2 * a)

	switch {
	case tp < 0 && tm < 0:
		return 0, ErrNoFutureSolution
	case tp < 0:
		return tm, nil
	case tm < 0:
		return tp, nil
	default:
		return math.Min(tp, tm), nil
	}
}

func (w *WayPoint) String() string {
	return fmt.Sprintf("WYPT: t %.0f wpt %s at %s", w.DT, w.XY, w.Position)
}
