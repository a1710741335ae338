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

package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/glidertools/drifterfollow/internal/config"
	"github.com/glidertools/drifterfollow/internal/faux"
	"github.com/glidertools/drifterfollow/internal/forward"
	"github.com/glidertools/drifterfollow/internal/logger"
)

// fauxCmd simulates a drifter beacon and sends its messages to a listener.
// fauxCmd 模拟漂流浮标并将消息发送到监听端。
var fauxCmd = &cobra.Command{
	Use:   "faux-drifter",
	Short: "Simulate a drifter beacon / 模拟漂流浮标",
	Args:  cobra.NoArgs,
	RunE:  runFaux,
}

func init() {
	fs := fauxCmd.Flags()
	logger.AddFlags(fs)
	fs.Int("dt", config.DefaultFauxDT, "Seconds between messages")
	fs.Float64("lat", faux.DefaultLat, "Starting latitude in decimal degrees")
	fs.Float64("lon", faux.DefaultLon, "Starting longitude in decimal degrees")
	fs.Float64("spd", faux.DefaultSpeed, "Mean speed in m/s")
	fs.Float64("spdSigma", faux.DefaultSpeedSigma, "Standard deviation of speed changes in m/s")
	fs.Float64("hdg", faux.DefaultHeading, "Mean heading in degrees true")
	fs.Float64("hdgSigma", faux.DefaultHeadingSig, "Standard deviation of heading changes in degrees")
	fs.Float64("altitude", 0, "Reported altitude in meters")
	fs.Float64("battery", faux.DefaultBattery, "Starting battery in percent")
	fs.Float64("batteryRate", faux.DefaultBatteryRate, "Battery drain in percent per day")
	fs.Int64("seed", 0, "Random seed for a reproducible walk")
	fs.String("IMEI", config.DefaultFauxIMEI, "IMEI of the simulated beacon")
	fs.String("hostname", "", "Host to send messages to")
	fs.Int("portForward", 0, "Port to send messages to")
}

func runFaux(cmd *cobra.Command, _ []string) error {
	var opts config.FauxOptions
	if err := loadOptions(cmd, &opts); err != nil {
		return err
	}
	log := logger.New("faux", opts.Options)
	defer func() { _ = log.Sync() }()

	ctx, cancel := signalContext(log)
	defer cancel()

	stopTracing, err := startTracing(ctx, cmd, "faux-drifter", log)
	if err != nil {
		return err
	}
	defer stopTracing()

	metrics, err := newMetrics()
	if err != nil {
		return err
	}

	drifter, err := faux.New(faux.Config{
		Lat:          opts.Lat,
		Lon:          opts.Lon,
		Speed:        opts.Spd,
		SpeedSigma:   opts.SpdSigma,
		Heading:      opts.Hdg,
		HeadingSigma: opts.HdgSigma,
		Altitude:     opts.Altitude,
		Battery:      opts.Battery,
		BatteryRate:  opts.BatteryRate,
		IMEI:         opts.IMEI,
		Seed:         uint64(opts.Seed),
		Seeded:       cmd.Flags().Changed("seed"),
	}, log)
	if err != nil {
		return err
	}

	fwd := forward.NewForwarder(opts.Hostname, opts.PortForward, metrics, log.Named("forwarder"))
	if !fwd.Enabled() {
		log.Warn("no hostname/portForward, messages are only logged")
	}
	fwd.Start(ctx)
	notifyReady(log)

	err = drifter.Run(ctx, time.Duration(opts.DT)*time.Second, fwd)
	fwd.WaitToFinish()
	log.Info("Stopped", zap.Error(err))
	return err
}
