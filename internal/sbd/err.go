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

package sbd

import "errors"

// Error definitions for DirectIP message decoding.
var (
	// ErrEmptyMessage indicates a connection delivered no bytes.
	ErrEmptyMessage = errors.New("sbd: empty message")
	// ErrVersion indicates the protocol revision byte is not 1.
	ErrVersion = errors.New("sbd: unsupported protocol revision")
	// ErrLength indicates the overall message length does not match its header.
	ErrLength = errors.New("sbd: message length mismatch")
	// ErrElementLength indicates an information element has the wrong size.
	ErrElementLength = errors.New("sbd: invalid information element length")
	// ErrUnknownElement indicates an information element identifier we do not decode.
	ErrUnknownElement = errors.New("sbd: unrecognized information element")
	// ErrLocationFormat indicates reserved or format bits are set in a location element.
	ErrLocationFormat = errors.New("sbd: invalid location format bits")
	// ErrPayloadType indicates a payload block type we do not decode.
	ErrPayloadType = errors.New("sbd: unsupported payload type")
	// ErrPayloadShort indicates a GPS payload block is shorter than its format requires.
	ErrPayloadShort = errors.New("sbd: payload too short")
	// ErrMagic indicates the magic bits of an 18 byte GPS payload are not zero.
	ErrMagic = errors.New("sbd: invalid payload magic")
	// ErrIMEILength indicates an IMEI that is not 15 characters.
	ErrIMEILength = errors.New("sbd: IMEI must be 15 characters")
)
