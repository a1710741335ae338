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
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/glidertools/drifterfollow/internal/observability"
	"github.com/glidertools/drifterfollow/internal/sfmc"
	"github.com/glidertools/drifterfollow/internal/storage"
	"go.uber.org/zap"
)

// UpdateQueue receives a request to build a new goto plan.
type UpdateQueue interface {
	Put(t time.Time)
}

// StateSaver stores glider state rows.
type StateSaver interface {
	Save(ctx context.Context, s *storage.GliderState) error
}

// Processor feeds dialog text into a State. When the surfacing flag appears it
// saves the state and queues an update.
// Processor 将对话文本输入 State，出现出水标志时保存状态并排队更新。
type Processor struct {
	glider  string
	state   *State
	asm     Assembler
	saver   StateSaver
	updates UpdateQueue
	metrics *observability.Collector
	logger  *zap.Logger

	// apiCopy receives every raw API line when set.
	apiCopy io.Writer
	now     func() time.Time
}

// NewProcessor creates a Processor for glider. updates may be nil.
func NewProcessor(glider string, saver StateSaver, updates UpdateQueue, metrics *observability.Collector, logger *zap.Logger) (*Processor, error) {
	if saver == nil {
		return nil, ErrNoRepository
	}
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Processor{
		glider:  glider,
		state:   &State{},
		saver:   saver,
		updates: updates,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// SetAPICopy makes the processor append raw API output to w.
func (p *Processor) SetAPICopy(w io.Writer) {
	p.apiCopy = w
}

// State returns the accumulated state.
func (p *Processor) State() *State {
	return p.state
}

// Line processes one complete dialog line.
// Line 处理一行完整的对话。
func (p *Processor) Line(ctx context.Context, line string) error {
	p.metrics.DialogLine()
	p.logger.Debug("dialog", zap.String("line", line))
	if _, err := p.state.Add(line); err != nil {
		p.logger.Warn("unable to convert dialog line", zap.String("line", line), zap.Error(err))
	}
	if !p.state.Flagged() {
		return nil
	}

	rec := p.state.Record(p.glider, p.now())
	p.logger.Info("glider surfaced",
		zap.String("glider", p.glider),
		zap.Time("t", rec.T),
		zap.Stringer("state", p.state))
	if err := p.saver.Save(ctx, rec); err != nil {
		return fmt.Errorf("save glider state: %w", err)
	}
	if p.updates != nil {
		p.updates.Put(rec.T)
	}
	return nil
}

// Chunk feeds streamed text, processing every completed line.
func (p *Processor) Chunk(ctx context.Context, chunk string) error {
	for _, line := range p.asm.Feed(chunk) {
		if err := p.Line(ctx, line); err != nil {
			return err
		}
	}
	return nil
}

// Flush processes a trailing partial line.
func (p *Processor) Flush(ctx context.Context) error {
	if line, ok := p.asm.Flush(); ok {
		return p.Line(ctx, line)
	}
	return nil
}

// APILine handles one raw line of API output.
// APILine 处理一行原始 API 输出。
func (p *Processor) APILine(ctx context.Context, raw []byte) error {
	if p.apiCopy != nil {
		if _, err := p.apiCopy.Write(raw); err != nil {
			p.logger.Warn("unable to copy API output", zap.Error(err))
		}
	}
	data, ok, err := sfmc.DecodeAPILine(raw)
	if err != nil {
		if errors.Is(err, sfmc.ErrAPIFailure) {
			p.logger.Error("SFMC API failure", zap.ByteString("line", raw))
			return fmt.Errorf("%w: %w", ErrStreamFailed, err)
		}
		p.logger.Debug("skipping API line", zap.ByteString("line", raw), zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	return p.Chunk(ctx, data)
}

// ListenAPI follows the live dialog through runner until the stream ends.
// ListenAPI 通过 runner 跟随实时对话直到流结束。
func (p *Processor) ListenAPI(ctx context.Context, runner *sfmc.Runner) error {
	err := runner.DialogStream(ctx, p.glider, func(line []byte) error {
		return p.APILine(ctx, line)
	})
	if flushErr := p.Flush(ctx); flushErr != nil && err == nil {
		err = flushErr
	}
	return err
}

// ReadAPIFile replays a file of saved API output.
func (p *Processor) ReadAPIFile(ctx context.Context, path string) error {
	p.logger.Info("opening API file", zap.String("path", path))
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	for {
		line, readErr := br.ReadBytes('\n')
		if len(line) != 0 {
			if err := p.APILine(ctx, line); err != nil {
				return err
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return readErr
		}
	}
	return p.Flush(ctx)
}

// ReadDialogFile replays a plain dialog log in 1 KiB chunks.
func (p *Processor) ReadDialogFile(ctx context.Context, path string) error {
	p.logger.Info("opening dialog file", zap.String("path", path))
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, 1024)
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			if err := p.Chunk(ctx, string(buf[:n])); err != nil {
				return err
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return readErr
		}
	}
	return p.Flush(ctx)
}
