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

package faux

import (
	"bytes"
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/glidertools/drifterfollow/internal/geo"
	"github.com/glidertools/drifterfollow/internal/gsat"
	"github.com/glidertools/drifterfollow/internal/sbd"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func seeded(seed uint64) Config {
	cfg := DefaultConfig()
	cfg.Seed = seed
	cfg.Seeded = true
	return cfg
}

func TestNew_RejectsBadIMEI(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IMEI = "123"
	_, err := New(cfg, zap.NewNop())
	assert.ErrorIs(t, err, sbd.ErrIMEILength)
}

func TestMessage_RoundTrip(t *testing.T) {
	d, err := New(seeded(1), zap.NewNop())
	require.NoError(t, err)

	t0 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		ts := t0.Add(time.Duration(i) * 15 * time.Minute)
		raw, err := d.Message(ts)
		require.NoError(t, err)

		msg, err := sbd.Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, DefaultIMEI, msg.IMEI)
		require.NotNil(t, msg.MOMSN)
		assert.Equal(t, uint16(i+1), *msg.MOMSN)
		require.NotNil(t, msg.CDR)
		assert.Equal(t, uint32(2*(i+1)), *msg.CDR)

		require.NotNil(t, msg.Fix)
		lat, lon := d.Position()
		assert.InDelta(t, lat, msg.Fix.Latitude, 1e-5)
		assert.InDelta(t, lon, msg.Fix.Longitude, 1e-5)
		assert.True(t, msg.Fix.T.Equal(ts), "fix time %s", msg.Fix.T)
		require.NotNil(t, msg.Fix.NSats)
		assert.Equal(t, 6, *msg.Fix.NSats)

		require.NotNil(t, msg.Location)
		assert.InDelta(t, lat, msg.Location.Latitude, 1e-3)
		assert.True(t, msg.Savable())
	}
}

func TestMessage_SeedIsReproducible(t *testing.T) {
	a, err := New(seeded(42), zap.NewNop())
	require.NoError(t, err)
	b, err := New(seeded(42), zap.NewNop())
	require.NoError(t, err)

	t0 := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		ts := t0.Add(time.Duration(i) * time.Hour)
		ma, err := a.Message(ts)
		require.NoError(t, err)
		mb, err := b.Message(ts)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(ma, mb), "message %d differs", i)
	}
}

func TestMove_BatteryDrains(t *testing.T) {
	cfg := seeded(3)
	cfg.Battery = 50
	cfg.BatteryRate = 24
	d, err := New(cfg, zap.NewNop())
	require.NoError(t, err)

	t0 := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	d.Move(t0)
	assert.Equal(t, 50.0, d.Battery())
	d.Move(t0.Add(12 * time.Hour))
	assert.InDelta(t, 38.0, d.Battery(), 1e-9)
	d.Move(t0.Add(10 * 24 * time.Hour))
	assert.Equal(t, 0.0, d.Battery())
}

// **Feature: drifter-follow, Property 23: without noise the drifter covers speed times dt along its heading**
func TestProperty_NoiselessMove(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(42)

	properties := gopter.NewProperties(parameters)

	properties.Property("distance travelled matches speed and elapsed time", prop.ForAll(
		func(lat, lon, speed, heading float64, minutes int) bool {
			cfg := seeded(7)
			cfg.Lat, cfg.Lon = lat, lon
			cfg.Speed, cfg.SpeedSigma = speed, 0
			cfg.Heading, cfg.HeadingSigma = heading, 0
			d, err := New(cfg, zap.NewNop())
			if err != nil {
				return false
			}
			t0 := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
			d.Move(t0)
			d.Move(t0.Add(time.Duration(minutes) * time.Minute))

			lat1, lon1 := d.Position()
			want := speed * float64(minutes) * 60
			got := geo.Distance(lat, lon, lat1, lon1)
			return math.Abs(got-want) <= 0.01*want+1
		},
		gen.Float64Range(-60, 60),
		gen.Float64Range(-179, 179),
		gen.Float64Range(0.01, 1),
		gen.Float64Range(0, 359),
		gen.IntRange(1, 120),
	))

	properties.TestingRun(t)
}

type collectSink struct {
	mu   sync.Mutex
	envs []gsat.Envelope
}

func (s *collectSink) Name() string { return "collect" }

func (s *collectSink) Put(env gsat.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envs = append(s.envs, env)
}

func TestRun_EmitsUntilCancelled(t *testing.T) {
	d, err := New(seeded(9), zap.NewNop())
	require.NoError(t, err)
	sink := &collectSink{}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	require.NoError(t, d.Run(ctx, 20*time.Millisecond, sink))

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.GreaterOrEqual(t, len(sink.envs), 2)
	for _, env := range sink.envs {
		_, err := sbd.Parse(env.Body)
		assert.NoError(t, err)
	}
}
