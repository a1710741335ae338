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

// Package dialog turns a glider's surfacing dialog into saved glider state.
// dialog 包将滑翔机出水对话解析为可保存的滑翔机状态。
package dialog

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/glidertools/drifterfollow/internal/storage"
)

// DefaultGliderSpeed is used when the dialog never reported m_avg_speed.
const DefaultGliderSpeed = 0.3

// currTimeLayout is the C locale %c layout the glider prints.
const currTimeLayout = "Mon Jan 2 15:04:05 2006"

const numPattern = `([+-]?\d*[.]?\d+|[+-]?\d*[.]?\d+[Ee][+-]?\d+)`

var (
	reSpeed    = regexp.MustCompile(`^m_avg_speed[(]m/s[)]\s+` + numPattern + `$`)
	reCurrTime = regexp.MustCompile(`^Curr Time:\s+(\w+\s+\w+\s+\d{2}\s+\d{2}:\d{2}:\d{2}\s+\d{4})\s+MT:\s*\d+$`)
	reGPS      = regexp.MustCompile(`^GPS\s+Location:\s+` + numPattern + `\s+[NS]\s+` + numPattern +
		`\s+[EW]\s+measured\s+` + numPattern + `\s+secs ago$`)
	reLatWpt = regexp.MustCompile(`^sensor:c_wpt_lat[(]lat[)]=` + numPattern + `\s+` + numPattern + `\s+secs ago$`)
	reLonWpt = regexp.MustCompile(`^sensor:c_wpt_lon[(]lon[)]=` + numPattern + `\s+` + numPattern + `\s+secs ago$`)
	reVx     = regexp.MustCompile(`^sensor:m_water_vx[(]m/s[)]=` + numPattern + `\s+` + numPattern + `\s+secs ago$`)
	reVy     = regexp.MustCompile(`^sensor:m_water_vy[(]m/s[)]=` + numPattern + `\s+` + numPattern + `\s+secs ago$`)
	reFlag   = regexp.MustCompile(`^s \*[.](sbd|tbd) \*[.](sbd|tbd)$`)
)

// State accumulates the values scraped from dialog lines. Values persist
// across surfacings until a newer line replaces them.
// State 累积从对话行中提取的数值，直到被新行覆盖。
type State struct {
	Speed    *float64
	T        *time.Time
	Lat      *float64
	Lon      *float64
	DTLatLon *float64
	LatWpt   *float64
	DTLatWpt *float64
	LonWpt   *float64
	DTLonWpt *float64
	Vx       *float64
	DTVx     *float64
	Vy       *float64
	DTVy     *float64

	flag bool
}

// Add matches one line against the known patterns. It reports whether a
// pattern matched. A matched line with an unconvertible value is an error.
// Add 将一行与已知模式匹配，返回是否匹配。
func (s *State) Add(line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}

	if m := reSpeed.FindStringSubmatch(line); m != nil {
		return true, setFloats(m[1:], &s.Speed)
	}
	if m := reCurrTime.FindStringSubmatch(line); m != nil {
		t, err := parseCurrTime(m[1])
		if err != nil {
			return true, err
		}
		s.T = &t
		return true, nil
	}
	if m := reGPS.FindStringSubmatch(line); m != nil {
		return true, s.setGPS(m[1:])
	}
	if m := reLatWpt.FindStringSubmatch(line); m != nil {
		return true, setDegMinAge(m[1:], &s.LatWpt, &s.DTLatWpt)
	}
	if m := reLonWpt.FindStringSubmatch(line); m != nil {
		return true, setDegMinAge(m[1:], &s.LonWpt, &s.DTLonWpt)
	}
	if m := reVx.FindStringSubmatch(line); m != nil {
		return true, setFloats(m[1:], &s.Vx, &s.DTVx)
	}
	if m := reVy.FindStringSubmatch(line); m != nil {
		return true, setFloats(m[1:], &s.Vy, &s.DTVy)
	}
	if reFlag.MatchString(line) {
		s.flag = true
		return true, nil
	}
	return false, nil
}

// Flagged reports whether the surfacing flag line was seen since the last
// call, and clears it.
// Flagged 返回自上次调用以来是否出现出水标志行，并清除该标志。
func (s *State) Flagged() bool {
	rc := s.flag
	s.flag = false
	return rc
}

// GliderSpeed returns m_avg_speed, or DefaultGliderSpeed.
func (s *State) GliderSpeed() float64 {
	if s.Speed == nil {
		return DefaultGliderSpeed
	}
	return *s.Speed
}

// Record converts the state into a row for glider. now is used when no
// Curr Time line has been seen.
// Record 将状态转换为数据库记录。
func (s *State) Record(glider string, now time.Time) *storage.GliderState {
	t := now
	if s.T != nil {
		t = *s.T
	}
	return &storage.GliderState{
		Glider: glider,
		T:      t.UTC(),
		Lat:    copyFloat(s.Lat),
		Lon:    copyFloat(s.Lon),
		LatWpt: copyFloat(s.LatWpt),
		LonWpt: copyFloat(s.LonWpt),
		Speed:  copyFloat(s.Speed),
		Vx:     copyFloat(s.Vx),
		Vy:     copyFloat(s.Vy),
	}
}

func (s *State) String() string {
	var b strings.Builder
	field := func(name string, v *float64) {
		if v == nil {
			fmt.Fprintf(&b, "%s=None\n", name)
		} else {
			fmt.Fprintf(&b, "%s=%g\n", name, *v)
		}
	}
	field("lat", s.Lat)
	field("latWpt", s.LatWpt)
	field("lon", s.Lon)
	field("lonWpt", s.LonWpt)
	field("speed", s.Speed)
	if s.T == nil {
		b.WriteString("t=None\n")
	} else {
		fmt.Fprintf(&b, "t=%s\n", s.T.Format(time.RFC3339))
	}
	field("vx", s.Vx)
	field("vy", s.Vy)
	return strings.TrimSuffix(b.String(), "\n")
}

func (s *State) setGPS(vals []string) error {
	lat, err := degMin(vals[0])
	if err != nil {
		return err
	}
	lon, err := degMin(vals[1])
	if err != nil {
		return err
	}
	age, err := strconv.ParseFloat(vals[2], 64)
	if err != nil {
		return fmt.Errorf("dialog: GPS age %q: %w", vals[2], err)
	}
	s.Lat, s.Lon, s.DTLatLon = &lat, &lon, &age
	return nil
}

func setFloats(vals []string, dst ...**float64) error {
	for i, d := range dst {
		v, err := strconv.ParseFloat(vals[i], 64)
		if err != nil {
			return fmt.Errorf("dialog: number %q: %w", vals[i], err)
		}
		*d = &v
	}
	return nil
}

func setDegMinAge(vals []string, pos, age **float64) error {
	v, err := degMin(vals[0])
	if err != nil {
		return err
	}
	a, err := strconv.ParseFloat(vals[1], 64)
	if err != nil {
		return fmt.Errorf("dialog: age %q: %w", vals[1], err)
	}
	*pos, *age = &v, &a
	return nil
}

// degMin converts the glider's DDMM.mmm notation into decimal degrees.
func degMin(s string) (float64, error) {
	y, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("dialog: position %q: %w", s, err)
	}
	yabs := math.Abs(y)
	deg := math.Floor(yabs / 100)
	dec := deg + math.Mod(yabs, 100)/60
	if y < 0 {
		return -dec, nil
	}
	return dec, nil
}

func parseCurrTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(currTimeLayout, strings.Join(strings.Fields(s), " "), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("dialog: Curr Time %q: %w", s, err)
	}
	return t, nil
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
