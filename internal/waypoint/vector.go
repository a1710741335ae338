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

	"github.com/glidertools/drifterfollow/internal/geo"
)

// Point is a Cartesian offset in meters, x eastwards and y northwards.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p+q.
func (p Point) Add(q Point) Point { return Point{p.X + q.X, p.Y + q.Y} }

// Sub returns p-q.
func (p Point) Sub(q Point) Point { return Point{p.X - q.X, p.Y - q.Y} }

// Scale returns p*s.
func (p Point) Scale(s float64) Point { return Point{p.X * s, p.Y * s} }

// Dot returns the scalar product of p and q.
func (p Point) Dot(q Point) float64 { return p.X*q.X + p.Y*q.Y }

// Rotate returns p rotated counter clockwise by theta radians.
func (p Point) Rotate(theta float64) Point {
	if theta == 0 {
		return p
	}
	c, s := math.Cos(theta), math.Sin(theta)
	return Point{p.X*c - p.Y*s, p.X*s + p.Y*c}
}

func (p Point) String() string {
	return fmt.Sprintf("[%g,%g]", p.X, p.Y)
}

// LatLon is a position in decimal degrees.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Delta returns the Cartesian offset from l to o. Each component is measured
// along the mid latitude or mid longitude, which is accurate at the few
// kilometer scale patterns are flown at.
// Delta 返回从 l 到 o 的笛卡尔偏移。
func (l LatLon) Delta(o LatLon) Point {
	latMid := (l.Lat + o.Lat) / 2
	lonMid := (l.Lon + o.Lon) / 2
	dx := geo.Distance(latMid, l.Lon, latMid, o.Lon)
	dy := geo.Distance(l.Lat, lonMid, o.Lat, lonMid)
	if l.Lat > o.Lat {
		dy = -dy
	}
	if l.Lon > o.Lon {
		dx = -dx
	}
	return Point{dx, dy}
}

// Translate moves l by a Cartesian offset in meters.
func (l LatLon) Translate(d Point) LatLon {
	latPerDeg, lonPerDeg := geo.MetersPerDegree(l.Lat, l.Lon)
	return LatLon{
		Lat: l.Lat + d.Y/latPerDeg,
		Lon: l.Lon + d.X/lonPerDeg,
	}
}

// Goto returns the position in the glider's deg*100+minutes notation.
func (l LatLon) Goto() (lat, lon float64) {
	return DegMin(l.Lat), DegMin(l.Lon)
}

func (l LatLon) String() string {
	return fmt.Sprintf("[%g,%g]", l.Lat, l.Lon)
}

// DegMin converts decimal degrees to deg*100+decimal minutes, keeping the sign.
// DegMin 将十进制度转换为 度*100+分 的格式。
func DegMin(x float64) float64 {
	a := math.Abs(x)
	deg := math.Floor(a)
	val := deg*100 + (a-deg)*60
	if x < 0 {
		return -val
	}
	return val
}

// FromDegMin converts deg*100+decimal minutes back to decimal degrees.
func FromDegMin(x float64) float64 {
	a := math.Abs(x)
	deg := math.Floor(a / 100)
	val := deg + math.Mod(a, 100)/60
	if x < 0 {
		return -val
	}
	return val
}
