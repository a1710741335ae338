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

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/glidertools/drifterfollow/internal/config"
	"github.com/glidertools/drifterfollow/internal/forward"
	"github.com/glidertools/drifterfollow/internal/gsat"
	"github.com/glidertools/drifterfollow/internal/logger"
	"github.com/glidertools/drifterfollow/internal/observability"
	"github.com/glidertools/drifterfollow/internal/router"
	"github.com/glidertools/drifterfollow/internal/storage"
)

// gsatCmd listens for GSatMicro DirectIP connections.
// gsatCmd 监听 GSatMicro DirectIP 连接。
var gsatCmd = &cobra.Command{
	Use:   "gsat-listen",
	Short: "Receive drifter messages over DirectIP / 通过 DirectIP 接收浮标消息",
	Args:  cobra.NoArgs,
	RunE:  runGSat,
}

// replayCmd pushes logged packets through the writer and forwarder again.
// replayCmd 将日志中的数据包重新写入数据库并转发。
var replayCmd = &cobra.Command{
	Use:   "replay [flags] logfile...",
	Short: "Replay packets from gsat-listen logs / 从日志重放数据包",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runReplay,
}

func init() {
	fs := gsatCmd.Flags()
	logger.AddFlags(fs)
	fs.Int("port", 0, "Port to listen on")
	fs.String("db", "", "Database file or mysql://, postgres:// DSN")
	fs.String("raw", config.DefaultRawTable, "Table for raw packets")
	fs.String("mom", config.DefaultMOMTable, "Table for decoded fixes")
	fs.Int("maxConnections", config.DefaultMaxConnections, "Maximum simultaneous connections")
	fs.Float64("readTimeout", gsat.DefaultReadTimeout.Seconds(), "Seconds to wait for data on a connection")
	fs.Int("maxPacket", gsat.DefaultMaxPacket, "Largest packet accepted, in bytes")
	fs.String("hostname", "", "Forward packets to this host")
	fs.Int("portForward", 0, "Forward packets to this port")
	fs.String("httpListen", "", "Serve status and metrics on this address")

	fs = replayCmd.Flags()
	logger.AddFlags(fs)
	fs.String("db", "", "Database file or mysql://, postgres:// DSN")
	fs.String("raw", config.DefaultRawTable, "Table for raw packets")
	fs.String("mom", config.DefaultMOMTable, "Table for decoded fixes")
	fs.String("hostname", "", "Forward packets to this host")
	fs.Int("portForward", 0, "Forward packets to this port")
}

func runGSat(cmd *cobra.Command, _ []string) error {
	var opts config.GSatOptions
	if err := loadOptions(cmd, &opts); err != nil {
		return err
	}
	log := logger.New("gsat", opts.Options)
	defer func() { _ = log.Sync() }()

	ctx, cancel := signalContext(log)
	defer cancel()

	stopTracing, err := startTracing(ctx, cmd, "gsat-listen", log)
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

	// Step 1: storage writer / 步骤 1：存储写入器
	writer, fixes, err := newWriter(dbs, opts.DB, opts.Raw, opts.MOM, metrics, log)
	if err != nil {
		return err
	}
	if err := writer.Start(ctx); err != nil {
		return err
	}
	sinks := []gsat.Sink{writer}

	// Step 2: optional forwarder / 步骤 2：可选的转发器
	fwd := forward.NewForwarder(opts.Hostname, opts.PortForward, metrics, log.Named("forwarder"))
	if fwd.Enabled() {
		fwd.Start(ctx)
		sinks = append(sinks, fwd)
	}

	// Step 3: listener / 步骤 3：监听器
	listener, err := gsat.NewListener(gsat.ListenerConfig{
		Addr:           fmt.Sprintf(":%d", opts.Port),
		MaxConnections: opts.MaxConnections,
		ReadTimeout:    seconds(opts.ReadTimeout),
		MaxPacket:      opts.MaxPacket,
	}, sinks, metrics, log.Named("listener"))
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return listener.ListenAndServe(gctx)
	})
	serveStatus(gctx, g, opts.HTTPListen, router.Deps{Fixes: fixes, Metrics: metrics.Handler()}, log)
	notifyReady(log)

	err = g.Wait()
	writer.WaitToFinish()
	if fwd.Enabled() {
		fwd.WaitToFinish()
	}
	log.Info("Stopped", zap.Error(err))
	return err
}

func runReplay(cmd *cobra.Command, args []string) error {
	var opts config.ReplayOptions
	opts.Inputs = args
	if err := loadOptions(cmd, &opts); err != nil {
		return err
	}
	log := logger.New("replay", opts.Options)
	defer func() { _ = log.Sync() }()

	ctx, cancel := signalContext(log)
	defer cancel()

	stopTracing, err := startTracing(ctx, cmd, "replay", log)
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

	var sinks []gsat.Sink
	var writer *gsat.Writer
	if opts.DB != "" {
		if writer, _, err = newWriter(dbs, opts.DB, opts.Raw, opts.MOM, metrics, log); err != nil {
			return err
		}
		if err := writer.Start(ctx); err != nil {
			return err
		}
		sinks = append(sinks, writer)
	}
	fwd := forward.NewForwarder(opts.Hostname, opts.PortForward, metrics, log.Named("forwarder"))
	if fwd.Enabled() {
		fwd.Start(ctx)
		sinks = append(sinks, fwd)
	}

	total := 0
	for _, path := range opts.Inputs {
		n, err := gsat.ReplayFile(ctx, path, sinks, log)
		total += n
		if err != nil {
			return err
		}
	}
	if writer != nil {
		writer.WaitToFinish()
	}
	if fwd.Enabled() {
		fwd.WaitToFinish()
	}
	log.Info("Replayed", zap.Int("packets", total), zap.Int("files", len(opts.Inputs)))
	return nil
}

// newWriter opens loc and builds a Writer over its raw and fix tables.
func newWriter(dbs *databases, loc, raw, mom string, metrics *observability.Collector, log *zap.Logger) (*gsat.Writer, *storage.FixRepository, error) {
	db, err := dbs.get(loc)
	if err != nil {
		return nil, nil, err
	}
	fixes := storage.NewFixRepository(db, mom)
	return gsat.NewWriter(storage.NewPacketRepository(db, raw), fixes, metrics, log.Named("writer")), fixes, nil
}
