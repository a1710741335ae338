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

package gsat

import (
	"context"
	"fmt"

	"github.com/glidertools/drifterfollow/internal/observability"
	"github.com/glidertools/drifterfollow/internal/otel_trace"
	"github.com/glidertools/drifterfollow/internal/queue"
	"github.com/glidertools/drifterfollow/internal/sbd"
	"github.com/glidertools/drifterfollow/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// PacketStore keeps raw packets.
type PacketStore interface {
	Migrate() error
	Save(ctx context.Context, p *storage.Packet) error
}

// FixStore keeps decoded fixes.
type FixStore interface {
	Migrate() error
	Save(ctx context.Context, f *storage.Fix) error
}

// Writer stores every envelope as a raw packet and, when it decodes to a
// savable message, as a fix.
// Writer 将每个 Envelope 存为原始数据包，可解码时再存为定位记录。
type Writer struct {
	packets PacketStore
	fixes   FixStore
	metrics *observability.Collector
	logger  *zap.Logger
	q       *queue.Queue[Envelope]
}

// NewWriter creates a Writer.
func NewWriter(packets PacketStore, fixes FixStore, metrics *observability.Collector, logger *zap.Logger) *Writer {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Writer{
		packets: packets,
		fixes:   fixes,
		metrics: metrics,
		logger:  logger,
		q:       queue.New[Envelope](),
	}
}

// Name implements Sink.
func (w *Writer) Name() string { return "writer" }

// Put implements Sink.
func (w *Writer) Put(env Envelope) {
	if err := w.q.Put(env); err != nil {
		w.logger.Warn("packet dropped", append(env.Fields(), zap.Error(err))...)
	}
}

// Start creates the tables and runs the writer until ctx is done.
func (w *Writer) Start(ctx context.Context) error {
	if err := w.packets.Migrate(); err != nil {
		return fmt.Errorf("create packet table: %w", err)
	}
	if err := w.fixes.Migrate(); err != nil {
		return fmt.Errorf("create fix table: %w", err)
	}
	w.logger.Info("Starting")
	go w.q.Run(ctx, func(ctx context.Context, env Envelope) {
		w.Write(ctx, env)
	})
	return nil
}

// WaitToFinish blocks until every queued envelope has been written.
func (w *Writer) WaitToFinish() {
	w.q.Wait()
}

// Write stores one envelope. Failures are logged, never returned, so one bad
// packet cannot stop the service.
func (w *Writer) Write(ctx context.Context, env Envelope) {
	ctx, span := otel_trace.Start(ctx, "gsat.write", trace.WithAttributes(
		attribute.String("packet.id", env.ID),
		attribute.Int("packet.bytes", len(env.Body))))
	defer span.End()

	w.logger.Info("packet", env.Fields()...)

	p := &storage.Packet{ID: env.ID, T: env.T, Addr: env.Addr, Port: env.Port, Body: env.Body}
	if err := w.packets.Save(ctx, p); err != nil {
		w.logger.Error("unable to save packet", zap.String("id", env.ID), zap.Error(err))
	}

	msg, err := sbd.Parse(env.Body)
	if err != nil {
		w.metrics.ParseFailed()
		span.RecordError(err)
		w.logger.Warn("unable to parse packet", zap.String("id", env.ID), zap.Error(err))
	}
	if !msg.Savable() {
		w.logger.Debug("nothing savable in packet", zap.String("id", env.ID))
		return
	}
	fix, err := storage.NewFix(msg, env.T)
	if err != nil {
		w.logger.Warn("unable to convert packet", zap.String("id", env.ID), zap.Error(err))
		return
	}
	if err := w.fixes.Save(ctx, fix); err != nil {
		w.logger.Error("unable to save fix", zap.String("imei", fix.IMEI), zap.Error(err))
		return
	}
	w.metrics.FixStored()
	w.logger.Debug("fix stored",
		zap.String("imei", fix.IMEI),
		zap.Time("t", fix.T),
		zap.Bool("position", fix.HasPosition()))
}
