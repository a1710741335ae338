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

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Header is the MO DirectIP header element.
// Header 是 MO DirectIP 头部信息元素。
type Header struct {
	CDR           uint32
	IMEI          string
	SessionStatus uint8
	MOMSN         uint16
	MTMSN         uint16
	SessionTime   time.Time
}

// Encode serializes the header element.
func (h Header) Encode() ([]byte, error) {
	if len(h.IMEI) != 15 {
		return nil, fmt.Errorf("%w: %q", ErrIMEILength, h.IMEI)
	}
	b := element(IEIHeader, headerLength)
	binary.BigEndian.PutUint32(b[3:7], h.CDR)
	copy(b[7:22], h.IMEI)
	b[22] = h.SessionStatus
	binary.BigEndian.PutUint16(b[23:25], h.MOMSN)
	binary.BigEndian.PutUint16(b[25:27], h.MTMSN)
	binary.BigEndian.PutUint32(b[27:31], uint32(h.SessionTime.Unix()))
	return b, nil
}

// LocationElement is the MO location element.
type LocationElement struct {
	Latitude  float64
	Longitude float64
	RadiusKM  uint32
}

// Encode serializes the location element.
func (l LocationElement) Encode() []byte {
	b := element(IEILocation, locationLength)
	var flags byte
	if l.Latitude < 0 {
		flags |= 0x02
	}
	if l.Longitude < 0 {
		flags |= 0x01
	}
	b[3] = flags
	putDegMin(b[4:7], l.Latitude)
	putDegMin(b[7:10], l.Longitude)
	binary.BigEndian.PutUint32(b[10:14], l.RadiusKM)
	return b
}

func putDegMin(b []byte, x float64) {
	x = math.Abs(x)
	deg := math.Floor(x)
	b[0] = byte(deg)
	binary.BigEndian.PutUint16(b[1:3], uint16(Clamp(16, int64((x-deg)*60*1000))))
}

// GPS18 is the GSatMicro 18 byte position report.
// GPS18 是 GSatMicro 18 字节定位报告。
type GPS18 struct {
	T         time.Time
	Latitude  float64
	Longitude float64
	Heading   float64
	// Speed in meters/second.
	Speed     float64
	Altitude  float64
	Accuracy  float64
	Battery   float64
	ClimbRate float64
	NSats     int
	ExtPwr    bool
	Distress  bool
	Checkin   bool
}

// Bits returns the 18 byte payload body.
func (g GPS18) Bits() []byte {
	var w BitWriter
	w.Append(3, 0)
	w.Append(26, int64(math.Round((g.Longitude+180)*gps18Scale)))
	w.Append(1, boolBit(g.ExtPwr))
	w.Append(1, boolBit(g.Distress))
	w.Append(1, boolBit(g.Checkin))
	w.Append(29, int64(math.Round(g.T.Sub(Epoch18).Seconds())))
	w.Append(3, int64(g.NSats))
	w.Append(25, int64(math.Round((g.Latitude+90)*gps18Scale)))
	w.Append(6, int64(math.Round(g.Heading/5)))
	w.Append(6, int64(math.Round(g.Accuracy)))
	w.Append(11, int64(math.Round(g.ClimbRate)))
	w.Append(5, int64(math.Round(g.Battery/3)))
	w.Append(11, int64(math.Round(g.Speed*3.6)))
	w.Append(16, int64(math.Round(g.Altitude)))
	return w.Bytes()
}

// Encode serializes the payload element with block type 5.
func (g GPS18) Encode() []byte {
	return payloadElement(PayloadGPS18, g.Bits())
}

// GPS10 is the GSatMicro 10 byte position report.
type GPS10 struct {
	T         time.Time
	Latitude  float64
	Longitude float64
	Heading   float64
	Speed     float64
	Altitude  float64
}

// Bits returns the 10 byte payload body.
func (g GPS10) Bits() []byte {
	t := g.T.UTC()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	var w BitWriter
	w.Append(3, 0)
	w.Append(23, int64(math.Round((g.Longitude+180)*gps10Scale)))
	w.Append(6, int64(math.Round(g.Heading/5)))
	w.Append(10, int64(t.Sub(midnight)/(2*time.Minute)))
	w.Append(22, int64(math.Round((g.Latitude+90)*gps10Scale)))
	w.Append(6, int64(math.Round(g.Speed*3.6)))
	w.Append(10, int64(math.Round(g.Altitude/5)))
	return w.Bytes()
}

// Encode serializes the payload element with block type 4.
func (g GPS10) Encode() []byte {
	return payloadElement(PayloadGPS10, g.Bits())
}

// Encode wraps information elements into a complete message.
// Encode 将信息元素封装为完整消息。
func Encode(elements ...[]byte) []byte {
	n := 0
	for _, e := range elements {
		n += len(e)
	}
	out := make([]byte, 3, 3+n)
	out[0] = ProtocolRevision
	binary.BigEndian.PutUint16(out[1:3], uint16(n))
	for _, e := range elements {
		out = append(out, e...)
	}
	return out
}

func element(iei byte, n int) []byte {
	b := make([]byte, 3+n)
	b[0] = iei
	binary.BigEndian.PutUint16(b[1:3], uint16(n))
	return b
}

func payloadElement(kind byte, body []byte) []byte {
	b := element(IEIPayload, 1+len(body))
	b[3] = kind
	copy(b[4:], body)
	return b
}

func boolBit(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
