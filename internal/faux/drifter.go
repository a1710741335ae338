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

// Package faux simulates a GSatMicro drifter beacon for exercising the
// listener and the follower without hardware in the water.
// Package faux 模拟 GSatMicro 漂流浮标，用于在无硬件情况下测试整条链路。
package faux

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/glidertools/drifterfollow/internal/geo"
	"github.com/glidertools/drifterfollow/internal/gsat"
	"github.com/glidertools/drifterfollow/internal/sbd"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Defaults for a drifter off the Oregon coast.
const (
	DefaultLat         = 44.75
	DefaultLon         = -125.0
	DefaultSpeed       = 0.1
	DefaultSpeedSigma  = 0.02
	DefaultHeading     = 60.0
	DefaultHeadingSig  = 10.0
	DefaultBattery     = 96.0
	DefaultBatteryRate = 22.0
	DefaultIMEI        = "300234068117290"
	DefaultInterval    = 15 * time.Minute

	// locationRadiusKM is the Iridium CEP reported with every message.
	locationRadiusKM = 4
	fauxAccuracy     = 4
	fauxSatellites   = 6
)

// Config seeds the simulation.
type Config struct {
	Lat, Lon float64
	// Speed and SpeedSigma are in meters/second.
	Speed, SpeedSigma float64
	// Heading and HeadingSigma are degrees true.
	Heading, HeadingSigma float64
	Altitude              float64
	// Battery is percent, BatteryRate percent per day.
	Battery, BatteryRate float64
	IMEI                 string
	// Seed makes the random walk reproducible when Seeded is set.
	Seed   uint64
	Seeded bool
}

// DefaultConfig returns the stock simulation.
func DefaultConfig() Config {
	return Config{
		Lat: DefaultLat, Lon: DefaultLon,
		Speed: DefaultSpeed, SpeedSigma: DefaultSpeedSigma,
		Heading: DefaultHeading, HeadingSigma: DefaultHeadingSig,
		Battery: DefaultBattery, BatteryRate: DefaultBatteryRate,
		IMEI: DefaultIMEI,
	}
}

// Drifter is the simulated beacon. It is not safe for concurrent use.
// Drifter 为模拟浮标，非并发安全。
type Drifter struct {
	cfg       Config
	rng       *rand.Rand
	latPerDeg float64
	lonPerDeg float64

	lat, lon float64
	speed    float64
	heading  float64
	battery  float64
	t        time.Time
	cdr      uint32
	momsn    uint16
	logger   *zap.Logger
}

// New creates a Drifter at cfg's position.
func New(cfg Config, logger *zap.Logger) (*Drifter, error) {
	if len(cfg.IMEI) != 15 {
		return nil, fmt.Errorf("%w: %q", sbd.ErrIMEILength, cfg.IMEI)
	}
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	seed := cfg.Seed
	if !cfg.Seeded {
		seed = rand.Uint64()
	}
	latPerDeg, lonPerDeg := geo.MetersPerDegree(cfg.Lat, cfg.Lon)
	return &Drifter{
		cfg:       cfg,
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		latPerDeg: latPerDeg,
		lonPerDeg: lonPerDeg,
		lat:       cfg.Lat,
		lon:       cfg.Lon,
		speed:     cfg.Speed,
		heading:   cfg.Heading,
		battery:   cfg.Battery,
		logger:    logger,
	}, nil
}

// Position returns the current latitude and longitude.
func (d *Drifter) Position() (lat, lon float64) {
	return d.lat, d.lon
}

// Battery returns the current battery percentage.
func (d *Drifter) Battery() float64 {
	return d.battery
}

func (d *Drifter) String() string {
	return fmt.Sprintf("t=%s lat=%.6f lon=%.6f spd=%.3f hdg=%.1f bat=%.1f",
		d.t.Format(time.RFC3339), d.lat, d.lon, d.speed, d.heading, d.battery)
}

// Move advances the random walk to t. The first call only sets the clock.
// Move 将随机游走推进到 t，首次调用只设置时间。
func (d *Drifter) Move(t time.Time) {
	if d.t.IsZero() {
		d.t = t
	}
	dt := t.Sub(d.t).Seconds()
	d.t = t

	d.speed = math.Abs(d.speed + d.rng.NormFloat64()*d.cfg.SpeedSigma)
	d.heading = math.Mod(d.heading+d.rng.NormFloat64()*d.cfg.HeadingSigma, 360)
	if d.heading < 0 {
		d.heading += 360
	}
	d.battery = math.Max(0, d.battery-d.cfg.BatteryRate/86400*dt)

	dist := d.speed * dt
	theta := d.heading * math.Pi / 180
	d.lat += dist * math.Cos(theta) / d.latPerDeg
	d.lon += dist * math.Sin(theta) / d.lonPerDeg
}

// Message moves the drifter to t and encodes a full MO message: header,
// Iridium location and an 18 byte GPS payload.
// Message 将浮标移动到 t 并编码完整的 MO 消息。
func (d *Drifter) Message(t time.Time) ([]byte, error) {
	d.Move(t)
	d.cdr += 2
	d.momsn++

	hdr, err := sbd.Header{
		CDR:           d.cdr,
		IMEI:          d.cfg.IMEI,
		SessionStatus: 1,
		MOMSN:         d.momsn,
		SessionTime:   t,
	}.Encode()
	if err != nil {
		return nil, err
	}
	loc := sbd.LocationElement{Latitude: d.lat, Longitude: d.lon, RadiusKM: locationRadiusKM}
	gps := sbd.GPS18{
		T:         t.Truncate(time.Second),
		Latitude:  d.lat,
		Longitude: d.lon,
		Heading:   d.heading,
		Speed:     d.speed,
		Altitude:  d.cfg.Altitude,
		Accuracy:  fauxAccuracy,
		Battery:   d.battery,
		NSats:     fauxSatellites,
	}
	msg := sbd.Encode(hdr, loc.Encode(), gps.Encode())
	d.logger.Info("GPS", zap.Stringer("drifter", d), zap.Int("bytes", len(msg)))
	return msg, nil
}

// Run emits a message every interval, starting immediately, until ctx is done.
func (d *Drifter) Run(ctx context.Context, interval time.Duration, sink gsat.Sink) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		now := time.Now().UTC()
		msg, err := d.Message(now)
		if err != nil {
			return err
		}
		sink.Put(gsat.Envelope{ID: uuid.NewString(), T: now, Addr: "faux", Body: msg})

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
