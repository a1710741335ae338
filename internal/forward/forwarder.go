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

// Package forward relays DirectIP packets to another host.
// Package forward 将 DirectIP 数据包转发到其他主机。
package forward

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/glidertools/drifterfollow/internal/gsat"
	"github.com/glidertools/drifterfollow/internal/observability"
	"github.com/glidertools/drifterfollow/internal/otel_trace"
	"github.com/glidertools/drifterfollow/internal/queue"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultDialTimeout bounds connecting to the forward target.
const DefaultDialTimeout = 30 * time.Second

// ErrShortWrite is returned when the target stops accepting bytes.
var ErrShortWrite = errors.New("forward: connection broken before the packet was sent")

// Forwarder sends every envelope body to host:port on a fresh connection.
// With no target configured it accepts and discards envelopes.
// Forwarder 为每个 Envelope 新建连接并将内容发送至目标主机。
type Forwarder struct {
	addr    string
	timeout time.Duration
	metrics *observability.Collector
	logger  *zap.Logger
	q       *queue.Queue[gsat.Envelope]
}

// NewForwarder creates a Forwarder for host:port. An empty host or a port of
// zero disables forwarding.
func NewForwarder(host string, port int, metrics *observability.Collector, logger *zap.Logger) *Forwarder {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	f := &Forwarder{
		timeout: DefaultDialTimeout,
		metrics: metrics,
		logger:  logger,
		q:       queue.New[gsat.Envelope](),
	}
	if host != "" && port > 0 {
		f.addr = net.JoinHostPort(host, strconv.Itoa(port))
	}
	return f
}

// Enabled reports whether a target is configured.
func (f *Forwarder) Enabled() bool {
	return f.addr != ""
}

// Name implements gsat.Sink.
func (f *Forwarder) Name() string { return "forwarder" }

// Put implements gsat.Sink.
func (f *Forwarder) Put(env gsat.Envelope) {
	if err := f.q.Put(env); err != nil {
		f.logger.Warn("forward dropped", zap.String("id", env.ID), zap.Error(err))
	}
}

// Start runs the forwarding worker until ctx is done.
func (f *Forwarder) Start(ctx context.Context) {
	f.logger.Info("Starting", zap.String("target", f.addr))
	go f.q.Run(ctx, func(ctx context.Context, env gsat.Envelope) {
		if !f.Enabled() {
			return
		}
		err := f.Send(ctx, env.Body)
		f.metrics.Forwarded(err)
		if err != nil {
			f.logger.Error("Error sending", zap.String("target", f.addr), zap.String("id", env.ID), zap.Error(err))
		}
	})
}

// WaitToFinish blocks until every queued envelope has been handled.
func (f *Forwarder) WaitToFinish() {
	f.q.Wait()
}

// Send writes body to the target on a new connection.
func (f *Forwarder) Send(ctx context.Context, body []byte) (err error) {
	ctx, span := otel_trace.Start(ctx, "forward.send", trace.WithAttributes(attribute.String("target", f.addr)))
	defer func() { otel_trace.End(span, err) }()

	d := net.Dialer{Timeout: f.timeout}
	conn, err := d.DialContext(ctx, "tcp", f.addr)
	if err != nil {
		return fmt.Errorf("connect %s: %w", f.addr, err)
	}
	defer conn.Close()
	f.logger.Debug("Connected", zap.String("target", f.addr))
	return writeAll(conn, body)
}

func writeAll(conn net.Conn, body []byte) error {
	for len(body) > 0 {
		n, err := conn.Write(body)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrShortWrite
		}
		body = body[n:]
	}
	return nil
}
