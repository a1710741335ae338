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
	"fmt"
	"math"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/glidertools/drifterfollow/internal/config"
	"github.com/glidertools/drifterfollow/internal/drifter"
	"github.com/glidertools/drifterfollow/internal/logger"
	"github.com/glidertools/drifterfollow/internal/pattern"
	"github.com/glidertools/drifterfollow/internal/storage"
	"github.com/glidertools/drifterfollow/internal/units"
)

// drifterCmd prints the current drifter estimate.
// drifterCmd 输出当前漂流浮标估计。
var drifterCmd = &cobra.Command{
	Use:   "drifter",
	Short: "Print the current drifter estimate / 输出当前浮标估计",
	Args:  cobra.NoArgs,
	RunE:  runDrifter,
}

// patternsCmd dumps pattern files after rotation and scaling.
var patternsCmd = &cobra.Command{
	Use:   "patterns file...",
	Short: "Show the patterns in pattern files / 显示图案文件内容",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPatterns,
}

// unitsCmd renders the systemd units of a deployment.
// unitsCmd 渲染部署的 systemd 单元文件。
var unitsCmd = &cobra.Command{
	Use:   "units",
	Short: "Render systemd unit files / 渲染 systemd 单元文件",
	Args:  cobra.NoArgs,
	RunE:  runUnits,
}

func init() {
	fs := drifterCmd.Flags()
	logger.AddFlags(fs)
	fs.String("db", "", "Drifter fix database")
	fs.Int("nBack", config.DefaultNBack, "Number of fixes used")
	fs.Float64("tau", config.DefaultTau, "Fix weighting time scale in minutes")
	fs.String("tEarliest", "", "Ignore fixes before this UTC time")
	fs.String("IMEI", "", "Only use this beacon")

	fs = unitsCmd.Flags()
	logger.AddFlags(fs)
	fs.String("deployment", "", "Deployment YAML file")
	fs.String("outDir", "", "Write <name>.service files here instead of printing them")
	fs.String("binary", "", "drifterd path in ExecStart (default from the deployment)")
}

func runDrifter(cmd *cobra.Command, _ []string) error {
	var opts config.DrifterOptions
	if err := loadOptions(cmd, &opts); err != nil {
		return err
	}
	log := logger.New("drifter", opts.Options)
	defer func() { _ = log.Sync() }()

	dbs := newDatabases(log)
	defer dbs.Close()
	db, err := dbs.get(opts.DB)
	if err != nil {
		return err
	}

	est := drifter.Options{NBack: opts.NBack, Tau: opts.Tau}
	if opts.TEarliest != "" {
		t, err := config.ParseTime(opts.TEarliest)
		if err != nil {
			return err
		}
		est.TEarliest = &t
	}
	e, err := drifter.NewEstimator(storage.NewFixRepository(db, config.DefaultMOMTable), est, log).
		Estimate(cmd.Context(), opts.IMEI, time.Now().UTC())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "t       %s\n", e.T.Format(time.RFC3339))
	fmt.Fprintf(out, "tLatest %s (%d fixes)\n", e.TLatest.Format(time.RFC3339), e.NFixes)
	fmt.Fprintf(out, "lat     %.6f\n", e.Lat)
	fmt.Fprintf(out, "lon     %.6f\n", e.Lon)
	fmt.Fprintf(out, "vx,vy   %.3f %.3f m/s\n", e.Vx, e.Vy)
	fmt.Fprintf(out, "speed   %.3f m/s heading %.1f\n", math.Hypot(e.Vx, e.Vy), heading(e.Vx, e.Vy))
	return nil
}

// heading is degrees true for an east/north velocity.
func heading(vx, vy float64) float64 {
	h := math.Atan2(vx, vy) * 180 / math.Pi
	if h < 0 {
		h += 360
	}
	return h
}

func runPatterns(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	for _, path := range args {
		set, err := pattern.Load(path)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\n", path)
		for _, name := range set.Gliders() {
			fmt.Fprintf(out, "  %s enabled=%t IMEI=%q\n", name, set.Enabled(name), set.IMEI(name))
			for i, p := range set.Patterns(name) {
				fmt.Fprintf(out, "    %2d %s rotate=%t\n", i, p.Offset, p.Rotate)
			}
		}
	}
	return nil
}

func runUnits(cmd *cobra.Command, _ []string) error {
	var opts config.UnitsOptions
	if err := loadOptions(cmd, &opts); err != nil {
		return err
	}
	log := logger.New("units", opts.Options)
	defer func() { _ = log.Sync() }()

	d, err := units.Load(opts.Deployment)
	if err != nil {
		return err
	}
	if opts.OutDir != "" {
		written, err := d.Write(opts.OutDir, opts.Binary)
		for _, fn := range written {
			log.Info("wrote unit", zap.String("file", fn))
		}
		return err
	}

	binary := opts.Binary
	if binary == "" {
		binary = d.Binary
	}
	for _, s := range d.Services {
		text, err := s.Render(binary)
		if err != nil {
			return fmt.Errorf("render %s: %w", s.Name, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s\n", s.FileName(), text)
	}
	return nil
}
