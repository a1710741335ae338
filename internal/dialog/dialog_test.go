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

package dialog

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glidertools/drifterfollow/internal/storage"
	"github.com/glidertools/drifterfollow/internal/supervisor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"
)

const surfacing = `Vehicle Name: osusim
Curr Time: Tue Jul 14 12:03:45 2020 MT:  1234
GPS Location:  4430.000 N -12415.000 E measured    12.5 secs ago
   sensor:c_wpt_lat(lat)=4431.5 120.0 secs ago
   sensor:c_wpt_lon(lon)=-12416.25 120.0 secs ago
   sensor:m_water_vx(m/s)=0.12 300 secs ago
   sensor:m_water_vy(m/s)=-0.05 300 secs ago
m_avg_speed(m/s)   0.28
s *.sbd *.tbd
`

type fakeSaver struct {
	mu    sync.Mutex
	saved []*storage.GliderState
	err   error
}

func (f *fakeSaver) Save(_ context.Context, s *storage.GliderState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, s)
	return nil
}

type fakeQueue struct {
	times []time.Time
}

func (q *fakeQueue) Put(t time.Time) { q.times = append(q.times, t) }

func TestStateExtractsSurfacing(t *testing.T) {
	var s State
	for _, line := range strings.Split(surfacing, "\n") {
		_, err := s.Add(line)
		require.NoError(t, err)
	}

	require.NotNil(t, s.T)
	assert.Equal(t, time.Date(2020, 7, 14, 12, 3, 45, 0, time.UTC), *s.T)
	assert.InDelta(t, 44.5, *s.Lat, 1e-9)
	assert.InDelta(t, -124.25, *s.Lon, 1e-9)
	assert.InDelta(t, 12.5, *s.DTLatLon, 1e-9)
	assert.InDelta(t, 44+31.5/60, *s.LatWpt, 1e-9)
	assert.InDelta(t, -(124 + 16.25/60), *s.LonWpt, 1e-9)
	assert.InDelta(t, 0.12, *s.Vx, 1e-9)
	assert.InDelta(t, -0.05, *s.Vy, 1e-9)
	assert.InDelta(t, 0.28, s.GliderSpeed(), 1e-9)

	assert.True(t, s.Flagged())
	assert.False(t, s.Flagged(), "flag clears on read")
}

func TestStateIgnoresOtherLines(t *testing.T) {
	var s State
	for _, line := range []string{"", "GliderDos N -1 >", "sensor:m_water_vx(m/s)=abc 3 secs ago", "xs *.sbd *.tbd"} {
		ok, err := s.Add(line)
		assert.NoError(t, err)
		assert.False(t, ok, line)
	}
	assert.Equal(t, DefaultGliderSpeed, s.GliderSpeed())
	assert.False(t, s.Flagged())
}

func TestStateExponentNumbers(t *testing.T) {
	var s State
	ok, err := s.Add("sensor:m_water_vy(m/s)=1.5e-2 30 secs ago")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 0.015, *s.Vy, 1e-12)
}

func TestStateRecord(t *testing.T) {
	var s State
	now := time.Date(2021, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := s.Record("osusim", now)
	assert.Equal(t, now, rec.T)
	assert.Nil(t, rec.Lat)

	_, _ = s.Add("GPS Location: 4430 N -12400 E measured 1 secs ago")
	rec = s.Record("osusim", now)
	require.NotNil(t, rec.Lat)
	*rec.Lat = 0
	assert.InDelta(t, 44.5, *s.Lat, 1e-9, "record holds copies")
}

// **Feature: drifter-follow, Property 16: degree-minute conversion**
// Converting DDMM.mmm to decimal degrees and back recovers the input.
// 度分格式与十进制度互相转换可还原输入。
func TestProperty_DegMin(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		deg := rapid.IntRange(-179, 179).Draw(t, "deg")
		minutes := rapid.Float64Range(0, 59.999).Draw(t, "minutes")
		sign := 1.0
		if deg < 0 {
			sign = -1
		}
		in := sign * (float64(abs(deg))*100 + minutes)
		got, err := degMin(fmtFloat(in))
		if err != nil {
			t.Fatal(err)
		}
		want := sign * (float64(abs(deg)) + minutes/60)
		if diff := got - want; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("degMin(%v) = %v, want %v", in, got, want)
		}
	})
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}

func fmtFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestAssembler(t *testing.T) {
	var a Assembler
	assert.Empty(t, a.Feed("abc"))
	assert.Equal(t, []string{"abcdef\n", "g\n"}, a.Feed("def\ng\nhi"))
	assert.Equal(t, 2, a.Pending())
	line, ok := a.Flush()
	assert.True(t, ok)
	assert.Equal(t, "hi", line)
	_, ok = a.Flush()
	assert.False(t, ok)
}

func newTestProcessor(t *testing.T) (*Processor, *fakeSaver, *fakeQueue) {
	t.Helper()
	saver := &fakeSaver{}
	queue := &fakeQueue{}
	p, err := NewProcessor("osusim", saver, queue, nil, zap.NewNop())
	require.NoError(t, err)
	return p, saver, queue
}

func TestProcessorSavesOnFlag(t *testing.T) {
	p, saver, queue := newTestProcessor(t)
	ctx := context.Background()

	// Split mid-line to exercise assembly.
	require.NoError(t, p.Chunk(ctx, surfacing[:40]))
	require.NoError(t, p.Chunk(ctx, surfacing[40:]))
	require.NoError(t, p.Flush(ctx))

	require.Len(t, saver.saved, 1)
	rec := saver.saved[0]
	assert.Equal(t, "osusim", rec.Glider)
	assert.Equal(t, time.Date(2020, 7, 14, 12, 3, 45, 0, time.UTC), rec.T)
	assert.InDelta(t, 44.5, *rec.Lat, 1e-9)
	assert.Equal(t, []time.Time{rec.T}, queue.times)
}

func TestProcessorSaveError(t *testing.T) {
	saver := &fakeSaver{err: errors.New("disk full")}
	p, err := NewProcessor("osusim", saver, nil, nil, zap.NewNop())
	require.NoError(t, err)
	assert.Error(t, p.Line(context.Background(), "s *.sbd *.tbd"))

	_, err = NewProcessor("osusim", nil, nil, nil, nil)
	assert.ErrorIs(t, err, ErrNoRepository)
}

func TestProcessorReadFiles(t *testing.T) {
	dir := t.TempDir()
	dialogPath := filepath.Join(dir, "dialog.log")
	require.NoError(t, os.WriteFile(dialogPath, []byte(strings.Repeat("filler line\n", 200)+surfacing), 0o644))

	p, saver, _ := newTestProcessor(t)
	require.NoError(t, p.ReadDialogFile(context.Background(), dialogPath))
	assert.Len(t, saver.saved, 1)

	var api strings.Builder
	for _, line := range strings.SplitAfter(surfacing, "\n") {
		if line == "" {
			continue
		}
		api.WriteString(`{"data":` + jsonString(line) + "}\x00\n")
		api.WriteString("heartbeat\n")
	}
	apiPath := filepath.Join(dir, "api.out")
	require.NoError(t, os.WriteFile(apiPath, []byte(api.String()), 0o644))

	var copyBuf strings.Builder
	p, saver, _ = newTestProcessor(t)
	p.SetAPICopy(&copyBuf)
	require.NoError(t, p.ReadAPIFile(context.Background(), apiPath))
	assert.Len(t, saver.saved, 1)
	assert.Equal(t, api.String(), copyBuf.String())
}

func TestProcessorAPIFailure(t *testing.T) {
	p, _, _ := newTestProcessor(t)
	err := p.APILine(context.Background(), []byte("Error attempting to get glider data\n"))
	assert.ErrorIs(t, err, ErrStreamFailed)
}

type fakeStreamer struct {
	events []string
	dialog []string
	fail   error
}

func (f *fakeStreamer) ScriptEvents(_ context.Context, _ string, onLine func([]byte) error) error {
	for _, l := range f.events {
		if err := onLine([]byte(l)); err != nil {
			return err
		}
	}
	return f.fail
}

func (f *fakeStreamer) DialogStream(_ context.Context, _ string, onLine func([]byte) error) error {
	for _, l := range f.dialog {
		if err := onLine([]byte(l)); err != nil {
			return err
		}
	}
	return f.fail
}

func TestMonitorLogsAndLeaves(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)
	streamer := &fakeStreamer{
		events: []string{"{\"scriptState\":\"running\"}\x00\n"},
		dialog: []string{"{\"data\":\"line one\\nline \"}\x00\n", "{\"data\":\"two\\n\"}\x00\n"},
		fail:   errors.New("node exited"),
	}
	sup := supervisor.New(&supervisor.Config{Policy: supervisor.PolicyNo}, zap.NewNop())

	err := NewMonitor("osusim", streamer, sup, logger).Run(context.Background())
	require.Error(t, err)

	var messages []string
	for _, e := range logs.All() {
		messages = append(messages, e.Message)
	}
	assert.Contains(t, messages, "STATE running")
	assert.Contains(t, messages, "LINE line one")
	assert.Contains(t, messages, "LINE line two")
	assert.Contains(t, messages, "leaving due to failure")
}
