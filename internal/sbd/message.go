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

// Package sbd decodes and encodes Iridium DirectIP mobile originated messages
// carrying GSatMicro GPS payloads.
// sbd 包负责解码和编码携带 GSatMicro GPS 负载的 Iridium DirectIP 移动始发消息。
//
// A message is a protocol revision byte, a two byte length, and a sequence of
// information elements (IE), each an identifier byte, a two byte length and a body.
// 消息由协议版本字节、两字节长度以及若干信息元素组成。
package sbd

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// Information element identifiers.
// 信息元素标识符。
const (
	ProtocolRevision = 1

	IEIHeader       = 0x01
	IEIPayload      = 0x02
	IEILocation     = 0x03
	IEIConfirmation = 0x04

	headerLength       = 28
	locationLength     = 11
	confirmationLength = 1
)

// Payload block types.
// 负载块类型。
const (
	PayloadReserved = 0
	PayloadGPS10    = 4
	PayloadGPS18    = 5
)

// GPS payload scaling.
const (
	gps18Scale = 186413.0
	gps10Scale = 23301.0
	kphToMPS   = 1 / 3.6
)

// Epoch18 is the reference time of the 18 byte payload's seconds field.
var Epoch18 = time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)

// Location is the Iridium estimate of where the transmitter was.
// Location 是 Iridium 对发射端位置的估计。
type Location struct {
	Latitude  float64
	Longitude float64
	// Radius is the CEP radius in meters.
	Radius int64
}

// Fix is a decoded GPS position report.
// Fix 是解码后的 GPS 定位报告。
type Fix struct {
	T         time.Time
	Latitude  float64
	Longitude float64
	// Heading in degrees true.
	Heading float64
	// Speed over ground in meters/second.
	Speed float64
	// Altitude in meters.
	Altitude float64

	// Fields below are only present in the 18 byte format.
	Accuracy  *float64
	Battery   *float64
	ClimbRate *float64
	NSats     *int
	ExtPwr    *bool
	Checkin   *bool
	Distress  *bool
}

// Message is a decoded mobile originated message. Elements absent from the
// wire are left nil.
// Message 是解码后的移动始发消息，缺失的元素保持为 nil。
type Message struct {
	CDR           *uint32
	IMEI          string
	SessionStatus *uint8
	MOMSN         *uint16
	MTMSN         *uint16
	SessionTime   *time.Time

	Location     *Location
	Confirmation *uint8

	PayloadType *uint8
	Payload     []byte
	Fix         *Fix

	// ticks is the 10 byte format's time of day, resolved once the header is known.
	ticks *int
}

// Parse decodes raw. When an element is malformed the returned message holds
// everything decoded before and after it, together with a non-nil error.
// Parse 解码 raw；遇到格式错误的元素时返回已解码部分及非 nil 错误。
func Parse(raw []byte) (*Message, error) {
	m := &Message{}
	if len(raw) == 0 {
		return m, ErrEmptyMessage
	}
	if raw[0] != ProtocolRevision {
		return m, fmt.Errorf("%w: %d", ErrVersion, raw[0])
	}
	if len(raw) < 3 {
		return m, fmt.Errorf("%w: %d byte message", ErrLength, len(raw))
	}
	n := int(binary.BigEndian.Uint16(raw[1:3]))
	body := raw[3:]
	if n != len(body) {
		return m, fmt.Errorf("%w: header says %d, have %d", ErrLength, n, len(body))
	}

	var errs []error
	for len(body) > 0 {
		if len(body) < 3 {
			errs = append(errs, fmt.Errorf("%w: truncated element of %d bytes", ErrElementLength, len(body)))
			break
		}
		iei := body[0]
		n := int(binary.BigEndian.Uint16(body[1:3]))
		if 3+n > len(body) {
			errs = append(errs, fmt.Errorf("%w: IEI %d wants %d bytes, have %d", ErrElementLength, iei, n, len(body)-3))
			break
		}
		ie := body[:3+n]

		var err error
		switch iei {
		case IEIHeader:
			err = m.parseHeader(ie, n)
		case IEIPayload:
			err = m.parsePayload(ie, n)
		case IEILocation:
			err = m.parseLocation(ie, n)
		case IEIConfirmation:
			err = m.parseConfirmation(ie, n)
		default:
			errs = append(errs, fmt.Errorf("%w: %d", ErrUnknownElement, iei))
			m.resolveTicks()
			return m, errors.Join(errs...)
		}
		if err != nil {
			errs = append(errs, err)
		}
		body = body[3+n:]
	}

	m.resolveTicks()
	return m, errors.Join(errs...)
}

func (m *Message) parseHeader(ie []byte, n int) error {
	if n != headerLength {
		return fmt.Errorf("%w: header %d != %d", ErrElementLength, n, headerLength)
	}
	cdr := binary.BigEndian.Uint32(ie[3:7])
	status := ie[22]
	momsn := binary.BigEndian.Uint16(ie[23:25])
	mtmsn := binary.BigEndian.Uint16(ie[25:27])
	t := time.Unix(int64(binary.BigEndian.Uint32(ie[27:31])), 0).UTC()

	m.CDR = &cdr
	m.IMEI = string(ie[7:22])
	m.SessionStatus = &status
	m.MOMSN = &momsn
	m.MTMSN = &mtmsn
	m.SessionTime = &t
	return nil
}

func (m *Message) parseLocation(ie []byte, n int) error {
	if n != locationLength {
		return fmt.Errorf("%w: location %d != %d", ErrElementLength, n, locationLength)
	}
	flags := ie[3]
	if reserved := flags >> 4; reserved != 0 {
		return fmt.Errorf("%w: reserved bits %d", ErrLocationFormat, reserved)
	}
	if format := (flags >> 2) & 0x03; format != 0 {
		return fmt.Errorf("%w: format code %d", ErrLocationFormat, format)
	}

	lat := float64(ie[4]) + float64(binary.BigEndian.Uint16(ie[5:7]))/1000/60
	lon := float64(ie[7]) + float64(binary.BigEndian.Uint16(ie[8:10]))/1000/60
	if flags&0x02 != 0 {
		lat = -lat
	}
	if flags&0x01 != 0 {
		lon = -lon
	}
	m.Location = &Location{
		Latitude:  lat,
		Longitude: lon,
		Radius:    int64(binary.BigEndian.Uint32(ie[10:14])) * 1000,
	}
	return nil
}

func (m *Message) parseConfirmation(ie []byte, n int) error {
	if n != confirmationLength {
		return fmt.Errorf("%w: confirmation %d != %d", ErrElementLength, n, confirmationLength)
	}
	c := ie[3]
	m.Confirmation = &c
	return nil
}

func (m *Message) parsePayload(ie []byte, n int) error {
	if n < 1 {
		return fmt.Errorf("%w: empty payload", ErrElementLength)
	}
	block := ie[3 : 3+n]
	kind := block[0]
	data := block[1:]

	var err error
	switch kind {
	case PayloadReserved:
	case PayloadGPS10:
		err = m.decodeGPS10(data)
	case PayloadGPS18:
		err = m.decodeGPS18(data)
	default:
		return fmt.Errorf("%w: %d", ErrPayloadType, kind)
	}
	m.PayloadType = &kind
	m.Payload = append([]byte(nil), data...)
	return err
}

func (m *Message) decodeGPS18(data []byte) error {
	if len(data) < 18 {
		return fmt.Errorf("%w: %d < 18", ErrPayloadShort, len(data))
	}
	bits := NewBitReader(data)
	if magic := bits.Uint(0, 3); magic != 0 {
		return fmt.Errorf("%w: %d", ErrMagic, magic)
	}

	accuracy := float64(bits.Uint(95, 6))
	battery := float64(bits.Uint(112, 5) * 3)
	climb := float64(bits.Uint(101, 11))
	nSats := int(bits.Uint(61, 3))
	extPwr := bits.Bool(29)
	distress := bits.Bool(30)
	checkin := bits.Bool(31)

	m.Fix = &Fix{
		T:         Epoch18.Add(time.Duration(bits.Uint(32, 29)) * time.Second),
		Longitude: float64(bits.Uint(3, 26))/gps18Scale - 180,
		Latitude:  float64(bits.Uint(64, 25))/gps18Scale - 90,
		Heading:   float64(bits.Uint(89, 6) * 5),
		Speed:     float64(bits.Uint(117, 11)) * kphToMPS,
		Altitude:  float64(bits.Uint(128, 16)),
		Accuracy:  &accuracy,
		Battery:   &battery,
		ClimbRate: &climb,
		NSats:     &nSats,
		ExtPwr:    &extPwr,
		Distress:  &distress,
		Checkin:   &checkin,
	}
	return nil
}

func (m *Message) decodeGPS10(data []byte) error {
	if len(data) < 10 {
		return fmt.Errorf("%w: %d < 10", ErrPayloadShort, len(data))
	}
	bits := NewBitReader(data)
	ticks := int(bits.Uint(32, 10))
	m.ticks = &ticks
	m.Fix = &Fix{
		Longitude: float64(bits.Uint(3, 23))/gps10Scale - 180,
		Heading:   float64(bits.Uint(26, 6) * 5),
		Latitude:  float64(bits.Uint(42, 22))/gps10Scale - 90,
		Speed:     float64(bits.Uint(64, 6)) * kphToMPS,
		Altitude:  float64(bits.Uint(70, 10) * 5),
	}
	return nil
}

// resolveTicks turns the 10 byte format's two minute ticks since midnight into
// an absolute time using the session date. A fix later than the session
// belongs to the previous day.
func (m *Message) resolveTicks() {
	if m.ticks == nil || m.Fix == nil || m.SessionTime == nil {
		return
	}
	session := *m.SessionTime
	midnight := time.Date(session.Year(), session.Month(), session.Day(), 0, 0, 0, 0, time.UTC)
	offset := time.Duration(*m.ticks) * 2 * time.Minute
	if offset > session.Sub(midnight) {
		midnight = midnight.AddDate(0, 0, -1)
	}
	m.Fix.T = midnight.Add(offset)
	m.ticks = nil
}

// Time returns the time a record for this message is keyed on: the GPS fix
// time, or the session time when there is no fix.
// Time 返回记录的时间键：GPS 定位时间，无定位时使用会话时间。
func (m *Message) Time() (time.Time, bool) {
	if m.Fix != nil && !m.Fix.T.IsZero() {
		return m.Fix.T, true
	}
	if m.SessionTime != nil {
		return *m.SessionTime, true
	}
	return time.Time{}, false
}

// Savable reports whether the message identifies its transmitter and a time,
// which is what a stored fix is keyed on.
// Savable 判断消息是否包含 IMEI 和时间，可以被存储。
func (m *Message) Savable() bool {
	if m == nil || m.IMEI == "" {
		return false
	}
	_, ok := m.Time()
	return ok
}
