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
	"errors"
	"fmt"
	"strings"

	"github.com/glidertools/drifterfollow/internal/sfmc"
	"github.com/glidertools/drifterfollow/internal/supervisor"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Stream names used in logs and restart history.
const (
	StreamEvents = "EVENTS"
	StreamDialog = "DIALOG"
)

// Streamer is the subset of sfmc.Runner the monitor follows.
type Streamer interface {
	ScriptEvents(ctx context.Context, glider string, onLine func([]byte) error) error
	DialogStream(ctx context.Context, glider string, onLine func([]byte) error) error
}

var _ Streamer = (*sfmc.Runner)(nil)

// Monitor logs a glider's script state changes and dialog lines from two
// supervised API streams. It stops when either stream gives up.
// Monitor 通过两个受监督的 API 流记录滑翔机脚本状态与对话行，任一流放弃时停止。
type Monitor struct {
	glider     string
	streamer   Streamer
	supervisor *supervisor.Supervisor
	logger     *zap.Logger
}

// NewMonitor creates a Monitor.
func NewMonitor(glider string, streamer Streamer, sup *supervisor.Supervisor, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	if sup == nil {
		sup = supervisor.New(nil, logger)
	}
	return &Monitor{glider: glider, streamer: streamer, supervisor: sup, logger: logger}
}

// Run follows both streams until ctx is done or one of them fails for good.
// Run 跟随两个流，直到 ctx 结束或其中一个永久失败。
func (m *Monitor) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := m.supervisor.Run(gctx, StreamEvents, func(ctx context.Context) error {
			return m.streamer.ScriptEvents(ctx, m.glider, m.eventLine)
		})
		return m.leaving(StreamEvents, err)
	})
	g.Go(func() error {
		var asm Assembler
		err := m.supervisor.Run(gctx, StreamDialog, func(ctx context.Context) error {
			return m.streamer.DialogStream(ctx, m.glider, func(raw []byte) error {
				return m.dialogLine(&asm, raw)
			})
		})
		return m.leaving(StreamDialog, err)
	})

	return g.Wait()
}

func (m *Monitor) leaving(name string, err error) error {
	if err == nil {
		return nil
	}
	m.logger.Error("leaving due to failure", zap.String("stream", name), zap.Error(err))
	return fmt.Errorf("%s: %w", name, err)
}

func (m *Monitor) eventLine(raw []byte) error {
	m.logger.Debug("events", zap.ByteString("raw", raw))
	msg, ok, err := sfmc.DecodeAPIMessage(raw)
	if err != nil {
		return apiError(err)
	}
	if !ok {
		return nil
	}
	if state, exists := msg["scriptState"]; exists {
		m.logger.Info(fmt.Sprintf("STATE %v", state), zap.String("glider", m.glider))
	}
	return nil
}

func (m *Monitor) dialogLine(asm *Assembler, raw []byte) error {
	m.logger.Debug("dialog", zap.ByteString("raw", raw))
	data, ok, err := sfmc.DecodeAPILine(raw)
	if err != nil {
		return apiError(err)
	}
	if !ok {
		return nil
	}
	for _, line := range asm.Feed(data) {
		m.logger.Info("LINE "+strings.TrimRight(line, "\r\n"), zap.String("glider", m.glider))
	}
	return nil
}

// apiError ends a stream only on the API failure banner.
func apiError(err error) error {
	if errors.Is(err, sfmc.ErrAPIFailure) {
		return fmt.Errorf("%w: %w", ErrStreamFailed, err)
	}
	return nil
}
