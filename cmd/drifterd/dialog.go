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
	"github.com/glidertools/drifterfollow/internal/dialog"
	"github.com/glidertools/drifterfollow/internal/logger"
	"github.com/glidertools/drifterfollow/internal/sfmc"
	"github.com/glidertools/drifterfollow/internal/supervisor"
)

// dialogCmd logs a glider's script events and dialog from the SFMC API.
// dialogCmd 通过 SFMC API 记录滑翔机脚本事件与对话。
var dialogCmd = &cobra.Command{
	Use:   "dialog",
	Short: "Monitor SFMC script events and dialog / 监控 SFMC 脚本事件与对话",
	Args:  cobra.NoArgs,
	RunE:  runDialog,
}

func init() {
	fs := dialogCmd.Flags()
	logger.AddFlags(fs)
	fs.String("glider", config.DefaultDialogGlider, "Glider name")
	fs.String("dir", config.DefaultScriptDir, "Directory holding the SFMC node scripts")
	fs.String("nodeCommand", config.DefaultNodeCommand, "node executable")
	fs.Float64("restartSec", config.DefaultRestartSec, "Seconds to wait before restarting a stream")
	fs.Int("maxRestarts", supervisor.DefaultMaxRestarts, "Restarts allowed per stream within an hour before giving up, 0 for no limit")
}

func runDialog(cmd *cobra.Command, _ []string) error {
	var opts config.DialogOptions
	if err := loadOptions(cmd, &opts); err != nil {
		return err
	}
	log := logger.New(opts.Glider, opts.Options)
	defer func() { _ = log.Sync() }()

	ctx, cancel := signalContext(log)
	defer cancel()

	cfg := supervisor.DefaultConfig()
	cfg.RestartDelay = seconds(opts.RestartSec)
	cfg.MaxRestarts = opts.MaxRestarts
	cfg.TimeWindow = time.Hour
	// A stream that used up its restarts ends the monitor.
	cfg.CooldownPeriod = 0

	runner := sfmc.NewRunner(opts.NodeCommand, opts.Dir, log.Named("sfmc"))
	monitor := dialog.NewMonitor(opts.Glider, runner, supervisor.New(cfg, log.Named("supervisor")), log)
	notifyReady(log)
	err := monitor.Run(ctx)
	log.Info("Stopped", zap.Error(err))
	return err
}
