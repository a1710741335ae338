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

// Package geo provides the small amount of spherical geodesy the follower
// needs: great circle distance and the local length of a degree.
// geo 包提供跟随器所需的球面测地计算：大圆距离与本地每度长度。
package geo

import "math"

// EarthRadius is the mean earth radius in meters.
const EarthRadius = 6371 * 1000.0

// Distance returns the haversine great circle distance in meters.
// Distance 返回 haversine 大圆距离（米）。
func Distance(lat0, lon0, lat1, lon1 float64) float64 {
	phi0 := radians(lat0)
	phi1 := radians(lat1)
	dPhi := radians(lat1 - lat0)
	dLambda := radians(lon1 - lon0)
	a := math.Pow(math.Sin(dPhi/2), 2) +
		math.Cos(phi0)*math.Cos(phi1)*math.Pow(math.Sin(dLambda/2), 2)
	return EarthRadius * 2 * math.Asin(math.Sqrt(a))
}

// MetersPerDegree returns how many meters one degree of latitude and one
// degree of longitude span at (lat, lon), measured across a one degree
// interval centred on the point.
// MetersPerDegree 返回 (lat, lon) 处每度纬度与每度经度对应的米数。
func MetersPerDegree(lat, lon float64) (latPerDeg, lonPerDeg float64) {
	latPerDeg = Distance(lat-0.5, lon, lat+0.5, lon)
	lonPerDeg = Distance(lat, lon-0.5, lat, lon+0.5)
	return latPerDeg, lonPerDeg
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
