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

import (
	"time"

	"github.com/glidertools/drifterfollow/internal/sbd"
)

// Default table names for the listener's tables.
const (
	DefaultRawTable = "Raw"
	DefaultMOMTable = "MOM"
)

// Packet is one connection's worth of bytes as received.
// Packet 是一次连接接收到的原始字节。
type Packet struct {
	ID   string    `json:"id" gorm:"column:id;primaryKey;size:36"`
	T    time.Time `json:"t" gorm:"column:t;index;not null"`
	Addr string    `json:"addr" gorm:"column:addr;size:64"`
	Port int       `json:"port" gorm:"column:port"`
	Body []byte    `json:"body" gorm:"column:body"`
}

// Fix is a decoded mobile originated message. One row per IMEI and fix time.
// Fix 是解码后的移动始发消息，每个 IMEI 与定位时间一行。
type Fix struct {
	IMEI  string    `json:"imei" gorm:"column:IMEI;primaryKey;size:15"`
	T     time.Time `json:"t" gorm:"column:t;primaryKey"`
	TRecv time.Time `json:"t_recv" gorm:"column:tRecv"`

	// Header fields
	CDR         *int64     `json:"cdr,omitempty" gorm:"column:cdr"`
	StatSession *int       `json:"stat_session,omitempty" gorm:"column:statSession"`
	MOMSN       *int       `json:"momsn,omitempty" gorm:"column:MOMSN"`
	MTMSN       *int       `json:"mtmsn,omitempty" gorm:"column:MTMSN"`
	TSession    *time.Time `json:"t_session,omitempty" gorm:"column:tSession"`

	// Iridium location fields
	LatitudeMO  *float64 `json:"latitude_mo,omitempty" gorm:"column:latitudeMO"`
	LongitudeMO *float64 `json:"longitude_mo,omitempty" gorm:"column:longitudeMO"`
	RadiusMO    *int64   `json:"radius_mo,omitempty" gorm:"column:radiusMO"`

	// Payload fields
	Payload   []byte   `json:"payload,omitempty" gorm:"column:payload"`
	Latitude  *float64 `json:"latitude,omitempty" gorm:"column:latitude"`
	Longitude *float64 `json:"longitude,omitempty" gorm:"column:longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty" gorm:"column:accuracy"`
	Altitude  *float64 `json:"altitude,omitempty" gorm:"column:altitude"`
	Battery   *float64 `json:"battery,omitempty" gorm:"column:battery"`
	ClimbRate *float64 `json:"climb_rate,omitempty" gorm:"column:climbRate"`
	Heading   *float64 `json:"heading,omitempty" gorm:"column:heading"`
	// Speed in meters/second.
	Speed     *float64 `json:"speed,omitempty" gorm:"column:speed"`
	NSats     *int     `json:"n_sats,omitempty" gorm:"column:nSats"`
	ExtPwr    *bool    `json:"ext_pwr,omitempty" gorm:"column:extPwr"`
	QCheckin  *bool    `json:"q_checkin,omitempty" gorm:"column:qCheckin"`
	QDistress *bool    `json:"q_distress,omitempty" gorm:"column:qDistress"`
}

// HasPosition reports whether the fix carries a GPS position.
func (f *Fix) HasPosition() bool {
	return f.Latitude != nil && f.Longitude != nil
}

// NewFix flattens a decoded message into a row.
// NewFix 将解码消息展平为一行记录。
func NewFix(m *sbd.Message, tRecv time.Time) (*Fix, error) {
	if !m.Savable() {
		return nil, ErrNotSavable
	}
	t, _ := m.Time()
	f := &Fix{
		IMEI:     m.IMEI,
		T:        t.UTC(),
		TRecv:    tRecv.UTC(),
		TSession: m.SessionTime,
		Payload:  m.Payload,
	}
	if m.CDR != nil {
		f.CDR = ptr(int64(*m.CDR))
	}
	if m.SessionStatus != nil {
		f.StatSession = ptr(int(*m.SessionStatus))
	}
	if m.MOMSN != nil {
		f.MOMSN = ptr(int(*m.MOMSN))
	}
	if m.MTMSN != nil {
		f.MTMSN = ptr(int(*m.MTMSN))
	}
	if loc := m.Location; loc != nil {
		f.LatitudeMO = ptr(loc.Latitude)
		f.LongitudeMO = ptr(loc.Longitude)
		f.RadiusMO = ptr(loc.Radius)
	}
	if fix := m.Fix; fix != nil {
		f.Latitude = ptr(fix.Latitude)
		f.Longitude = ptr(fix.Longitude)
		f.Heading = ptr(fix.Heading)
		f.Speed = ptr(fix.Speed)
		f.Altitude = ptr(fix.Altitude)
		f.Accuracy = fix.Accuracy
		f.Battery = fix.Battery
		f.ClimbRate = fix.ClimbRate
		f.NSats = fix.NSats
		f.ExtPwr = fix.ExtPwr
		f.QCheckin = fix.Checkin
		f.QDistress = fix.Distress
	}
	return f, nil
}

// GliderState is what was scraped from one glider surfacing dialog.
// GliderState 是从一次滑翔机出水对话中提取的状态。
type GliderState struct {
	Glider string    `json:"glider" gorm:"column:name;primaryKey;size:64"`
	T      time.Time `json:"t" gorm:"column:t;primaryKey"`
	Lat    *float64  `json:"lat,omitempty" gorm:"column:lat"`
	Lon    *float64  `json:"lon,omitempty" gorm:"column:lon"`
	LatWpt *float64  `json:"lat_wpt,omitempty" gorm:"column:latWpt"`
	LonWpt *float64  `json:"lon_wpt,omitempty" gorm:"column:lonWpt"`
	// Speed is m_avg_speed in meters/second.
	Speed *float64 `json:"speed,omitempty" gorm:"column:speed"`
	// Vx and Vy are the depth averaged current in meters/second.
	Vx *float64 `json:"vx,omitempty" gorm:"column:vx"`
	Vy *float64 `json:"vy,omitempty" gorm:"column:vy"`
}

// TableName specifies the table name for GliderState.
func (GliderState) TableName() string {
	return "glider"
}

// PlannedWaypoint is one leg of a generated goto plan.
// PlannedWaypoint 是生成的 goto 计划中的一个航段。
type PlannedWaypoint struct {
	ID     uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Glider string    `json:"glider" gorm:"size:64;index:idx_waypoints_glider_t"`
	T      time.Time `json:"t" gorm:"index:idx_waypoints_glider_t"`
	Seq    int       `json:"seq"`
	// PatternIndex is the pattern point this leg targets.
	PatternIndex int       `json:"pattern_index"`
	Lat          float64   `json:"lat"`
	Lon          float64   `json:"lon"`
	DT           float64   `json:"dt"`
	ETA          time.Time `json:"eta"`
}

// TableName specifies the table name for PlannedWaypoint.
func (PlannedWaypoint) TableName() string {
	return "waypoints"
}

func ptr[T any](v T) *T {
	return &v
}
