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
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/glidertools/drifterfollow/internal/config"
	"github.com/glidertools/drifterfollow/internal/dialog"
	"github.com/glidertools/drifterfollow/internal/drifter"
	"github.com/glidertools/drifterfollow/internal/gotofile"
	"github.com/glidertools/drifterfollow/internal/logger"
	"github.com/glidertools/drifterfollow/internal/notify"
	"github.com/glidertools/drifterfollow/internal/observability"
	"github.com/glidertools/drifterfollow/internal/pattern"
	"github.com/glidertools/drifterfollow/internal/router"
	"github.com/glidertools/drifterfollow/internal/sfmc"
	"github.com/glidertools/drifterfollow/internal/storage"
	"github.com/glidertools/drifterfollow/internal/supervisor"
)

// gliderCmd follows a glider's dialog and writes a goto file at each surfacing.
// gliderCmd 跟踪滑翔机对话，并在每次出水时生成 goto 文件。
var gliderCmd = &cobra.Command{
	Use:   "glider-listen",
	Short: "Follow glider dialog and steer it around the drifter / 跟踪对话并引导滑翔机",
	Args:  cobra.NoArgs,
	RunE:  runGlider,
}

// gotoCmd builds one goto file from the newest stored glider state.
var gotoCmd = &cobra.Command{
	Use:   "goto",
	Short: "Generate one goto file now / 立即生成一个 goto 文件",
	Args:  cobra.NoArgs,
	RunE:  runGoto,
}

func init() {
	fs := gliderCmd.Flags()
	logger.AddFlags(fs)
	addGotoFlags(fs)
	fs.Bool("apiListen", false, "Follow the live dialog through the SFMC API")
	fs.String("apiInput", "", "Read saved SFMC API output from this file")
	fs.StringArray("dialogInput", nil, "Read a plain dialog log (repeatable)")
	fs.String("apiCopy", "", "Append raw SFMC API output to this file")
	fs.Float64("restartSec", config.DefaultRestartSec, "Seconds to wait before restarting the API stream")
	fs.String("httpListen", "", "Serve status and metrics on this address")

	fs = gotoCmd.Flags()
	logger.AddFlags(fs)
	addGotoFlags(fs)
}

// addGotoFlags registers what both glider-listen and goto need to build a goto file.
func addGotoFlags(fs *pflag.FlagSet) {
	fs.String("glider", "", "Glider name")
	fs.String("apiDir", config.DefaultScriptDir, "Directory holding the SFMC node scripts")
	fs.String("nodeCommand", config.DefaultNodeCommand, "node executable")
	fs.String("drifterDB", "", "Drifter fix database")
	fs.Int("drifterNBack", config.DefaultNBack, "Number of fixes used for the drifter estimate")
	fs.Float64("drifterTau", config.DefaultTau, "Fix weighting time scale in minutes")
	fs.String("drifterEarliest", "", "Ignore fixes before this UTC time")
	fs.String("gliderDB", "", "Glider state database")
	fs.String("wptsDB", "", "Waypoint plan database (default gliderDB)")
	fs.String("pattern", "", "Pattern YAML file")
	fs.String("gotoAPI", "", "Upload goto files through the SFMC API, staging them in this directory")
	fs.Bool("gotoRetain", false, "Keep staged goto files")
	fs.Float64("gotoDT", config.DefaultGotoDT, "Seconds on the surface before diving")
	fs.Float64("gotoIndex", 0, "Meters within which the commanded waypoint matches the previous plan")
	fs.String("gotoArchive", "", "Archive goto files in this directory")
	fs.StringArray("gotoMailTo", nil, "Mail goto files to this address (repeatable)")
	fs.String("gotoMailFrom", "", "Sender of goto mails")
	fs.String("gotoFile", "", "Write the newest goto file here")
}

// gotoStack is everything needed to turn a glider state into goto files.
type gotoStack struct {
	updater *gotofile.Updater
	states  *storage.GliderRepository
	plans   *storage.WaypointRepository
	fixes   *storage.FixRepository
	runner  *sfmc.Runner
}

// newGotoStack opens the databases and wires the updater with its sinks.
// newGotoStack 打开数据库并装配更新器及其输出。
func newGotoStack(opts *config.GliderOptions, dbs *databases, metrics *observability.Collector, log *zap.Logger) (*gotoStack, error) {
	gliderDB, err := dbs.get(opts.GliderDB)
	if err != nil {
		return nil, err
	}
	wptsLoc := opts.WptsDB
	if wptsLoc == "" {
		wptsLoc = opts.GliderDB
	}
	wptsDB, err := dbs.get(wptsLoc)
	if err != nil {
		return nil, err
	}
	drifterDB, err := dbs.get(opts.DrifterDB)
	if err != nil {
		return nil, err
	}

	s := &gotoStack{
		states: storage.NewGliderRepository(gliderDB),
		plans:  storage.NewWaypointRepository(wptsDB),
		fixes:  storage.NewFixRepository(drifterDB, config.DefaultMOMTable),
		runner: sfmc.NewRunner(opts.NodeCommand, opts.APIDir, log.Named("sfmc")),
	}
	for _, m := range []interface{ Migrate() error }{s.states, s.plans, s.fixes} {
		if err := m.Migrate(); err != nil {
			return nil, fmt.Errorf("create tables: %w", err)
		}
	}

	est := drifter.Options{NBack: opts.DrifterNBack, Tau: opts.DrifterTau}
	if opts.DrifterEarliest != "" {
		t, err := config.ParseTime(opts.DrifterEarliest)
		if err != nil {
			return nil, err
		}
		est.TEarliest = &t
	}

	var sinks []gotofile.Sink
	if opts.GotoAPI != "" {
		sinks = append(sinks, gotofile.NewAPISink(s.runner, opts.GotoAPI, opts.GotoRetain, log.Named("api")))
	}
	if len(opts.GotoMailTo) != 0 {
		sinks = append(sinks, gotofile.NewMailSink(notify.NewMailer(opts.SMTPHost, opts.GotoMailFrom, opts.GotoMailTo)))
	}
	if opts.GotoArchive != "" {
		sinks = append(sinks, gotofile.NewArchiveSink(opts.GotoArchive, log.Named("archive")))
	}
	if opts.GotoFile != "" {
		sinks = append(sinks, gotofile.NewFileSink(opts.GotoFile))
	}
	dispatcher := gotofile.NewDispatcher(sinks, metrics, log.Named("dispatch"))
	log.Info("goto sinks", zap.Strings("sinks", dispatcher.Sinks()))

	s.updater, err = gotofile.NewUpdater(gotofile.Options{
		Glider: opts.Glider,
		DT:     seconds(opts.GotoDT),
		Index:  opts.GotoIndex,
	}, gotofile.Deps{
		States:     s.states,
		Plans:      s.plans,
		Patterns:   pattern.NewCache(opts.Pattern),
		Drifter:    drifter.NewEstimator(s.fixes, est, log.Named("drifter")),
		Dispatcher: dispatcher,
		Metrics:    metrics,
	}, log.Named("goto"))
	if err != nil {
		return nil, err
	}
	return s, nil
}

func runGlider(cmd *cobra.Command, _ []string) error {
	var opts config.GliderOptions
	if err := loadOptions(cmd, &opts); err != nil {
		return err
	}
	log := logger.New(opts.Glider, opts.Options)
	defer func() { _ = log.Sync() }()

	ctx, cancel := signalContext(log)
	defer cancel()

	stopTracing, err := startTracing(ctx, cmd, "glider-listen", log)
	if err != nil {
		return err
	}
	defer stopTracing()

	metrics, err := newMetrics()
	if err != nil {
		return err
	}
	dbs := newDatabases(log)
	defer dbs.Close()

	stack, err := newGotoStack(&opts, dbs, metrics, log)
	if err != nil {
		return err
	}
	proc, err := dialog.NewProcessor(opts.Glider, stack.states, stack.updater, metrics, log.Named("dialog"))
	if err != nil {
		return err
	}
	if opts.APICopy != "" {
		f, err := os.OpenFile(opts.APICopy, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open apiCopy: %w", err)
		}
		defer f.Close()
		proc.SetAPICopy(f)
	}

	stack.updater.Start(ctx)

	if !opts.APIListen {
		// File replay finishes once the queued updates are delivered.
		// 文件重放在排队的更新投递完成后结束。
		err := readInputs(ctx, proc, &opts)
		stack.updater.WaitToFinish()
		return err
	}

	sup := supervisor.New(gliderRestarts(opts.RestartSec), log.Named("supervisor"))
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sup.Run(gctx, "api", func(ctx context.Context) error {
			err := proc.ListenAPI(ctx, stack.runner)
			metrics.ServiceExited("api")
			return err
		})
	})
	serveStatus(gctx, g, opts.HTTPListen, router.Deps{
		Fixes:   stack.fixes,
		States:  stack.states,
		Plans:   stack.plans,
		Metrics: metrics.Handler(),
	}, log)
	notifyReady(log)

	err = g.Wait()
	cancel()
	stack.updater.WaitToFinish()
	log.Info("Stopped", zap.Error(err))
	return err
}

// gliderRestarts restarts the API stream forever, restartSec apart.
func gliderRestarts(restartSec float64) *supervisor.Config {
	cfg := supervisor.DefaultConfig()
	cfg.Policy = supervisor.PolicyAlways
	cfg.RestartDelay = seconds(restartSec)
	cfg.MaxRestarts = 0
	return cfg
}

func readInputs(ctx context.Context, proc *dialog.Processor, opts *config.GliderOptions) error {
	if opts.APIInput != "" {
		return proc.ReadAPIFile(ctx, opts.APIInput)
	}
	for _, path := range opts.DialogInput {
		if err := proc.ReadDialogFile(ctx, path); err != nil {
			return err
		}
	}
	return nil
}

func runGoto(cmd *cobra.Command, _ []string) error {
	var opts config.GotoOptions
	if err := loadOptions(cmd, &opts); err != nil {
		return err
	}
	log := logger.New(opts.Glider, opts.Options)
	defer func() { _ = log.Sync() }()

	ctx, cancel := signalContext(log)
	defer cancel()

	stopTracing, err := startTracing(ctx, cmd, "goto", log)
	if err != nil {
		return err
	}
	defer stopTracing()

	metrics, err := newMetrics()
	if err != nil {
		return err
	}
	dbs := newDatabases(log)
	defer dbs.Close()

	stack, err := newGotoStack(&opts.GliderOptions, dbs, metrics, log)
	if err != nil {
		return err
	}
	stack.updater.Start(ctx)
	started := time.Now()
	text, err := stack.updater.Update(ctx)
	stack.updater.WaitToFinish()
	if err != nil {
		return err
	}
	log.Info("goto generated", zap.Duration("elapsed", time.Since(started)))
	_, err = io.WriteString(cmd.OutOrStdout(), text)
	return err
}
