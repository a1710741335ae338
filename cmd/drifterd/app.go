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
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/glidertools/drifterfollow/internal/config"
	"github.com/glidertools/drifterfollow/internal/observability"
	"github.com/glidertools/drifterfollow/internal/otel_trace"
	"github.com/glidertools/drifterfollow/internal/router"
	"github.com/glidertools/drifterfollow/internal/storage"
)

// loadOptions fills opts from the command's flags, the environment and the
// --config file.
// loadOptions 从命令参数、环境变量和 --config 文件加载配置。
func loadOptions(cmd *cobra.Command, opts config.Validator) error {
	if err := config.Load(configFile, cmd.Flags(), opts); err != nil {
		return fmt.Errorf("%s: %w", cmd.Name(), err)
	}
	return nil
}

// signalContext is cancelled by SIGINT, SIGTERM or SIGHUP.
// signalContext 在收到 SIGINT、SIGTERM 或 SIGHUP 时取消。
func signalContext(logger *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Received signal", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// startTracing reads the tracing flags and installs the exporter. The returned
// func flushes pending spans.
// startTracing 读取追踪参数并安装导出器，返回的函数用于刷新 span。
func startTracing(ctx context.Context, cmd *cobra.Command, service string, logger *zap.Logger) (func(), error) {
	v, err := config.New(configFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	var opts otel_trace.Options
	if err := v.Unmarshal(&opts); err != nil {
		return nil, fmt.Errorf("tracing options: %w", err)
	}
	if err := otel_trace.Init(ctx, service, opts, logger); err != nil {
		return nil, err
	}
	return func() { otel_trace.Shutdown(context.Background()) }, nil
}

// seconds converts a flag given in seconds.
func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// databases opens each location once, so flags naming the same file share a
// connection pool.
// databases 对每个位置只打开一次，相同文件的参数共享连接池。
type databases struct {
	mu     sync.Mutex
	open   map[string]*gorm.DB
	logger *zap.Logger
}

func newDatabases(logger *zap.Logger) *databases {
	return &databases{open: make(map[string]*gorm.DB), logger: logger}
}

func (d *databases) get(loc string) (*gorm.DB, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if db, ok := d.open[loc]; ok {
		return db, nil
	}
	db, err := storage.Open(storage.ParseLocation(loc), d.logger)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", loc, err)
	}
	d.open[loc] = db
	return db, nil
}

func (d *databases) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for loc, db := range d.open {
		if err := storage.Close(db); err != nil {
			d.logger.Warn("Closing database", zap.String("db", loc), zap.Error(err))
		}
		delete(d.open, loc)
	}
}

// newMetrics registers the collectors against the default Prometheus
// registry, which also carries the Go runtime and process collectors.
func newMetrics() (*observability.Collector, error) {
	return observability.NewCollector(nil)
}

// serveStatus starts the status router on g when addr is set.
// serveStatus 在设置了 addr 时于 g 上启动状态路由。
func serveStatus(ctx context.Context, g *errgroup.Group, addr string, deps router.Deps, logger *zap.Logger) {
	if addr == "" {
		return
	}
	engine := router.New(deps, logger.Named("http"))
	g.Go(func() error {
		return router.Serve(ctx, addr, engine, logger)
	})
}

// notifyReady tells systemd the service is up. Outside systemd it does nothing.
func notifyReady(logger *zap.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("sd_notify failed", zap.Error(err))
		return
	}
	if sent {
		logger.Debug("sd_notify READY=1")
	}
}
