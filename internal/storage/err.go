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

package storage

import "errors"

// Error definitions for storage operations.
var (
	// ErrUnsupportedType indicates a database type other than sqlite, mysql or postgres.
	ErrUnsupportedType = errors.New("storage: unsupported database type")
	// ErrStateNotFound indicates no glider state has been recorded for the glider.
	ErrStateNotFound = errors.New("storage: glider state not found")
	// ErrPlanNotFound indicates no waypoint plan has been recorded for the glider.
	ErrPlanNotFound = errors.New("storage: waypoint plan not found")
	// ErrNotSavable indicates a message lacks the IMEI or time a fix is keyed on.
	ErrNotSavable = errors.New("storage: message has no IMEI or time")
)
