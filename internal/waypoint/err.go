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

import "errors"

// Error definitions for intercept solving and planning.
var (
	// ErrEqualSpeeds indicates the glider speed equals the relative drift speed, so the quadratic degenerates.
	ErrEqualSpeeds = errors.New("waypoint: water plus drifter speed equals glider speed")
	// ErrNoRealSolution indicates the glider can never reach the target.
	ErrNoRealSolution = errors.New("waypoint: no real solution, square root term is negative")
	// ErrNoFutureSolution indicates both intercept times are in the past.
	ErrNoFutureSolution = errors.New("waypoint: no valid future solution found")
	// ErrNoPatterns indicates a plan was requested with an empty pattern list.
	ErrNoPatterns = errors.New("waypoint: no pattern points")
)
