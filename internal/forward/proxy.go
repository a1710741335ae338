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

package forward

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// relayBuffer is the read size of one relay copy.
const relayBuffer = 1024 * 1024

// Proxy relays each accepted connection byte for byte to a fixed target.
// Proxy 将每个接入连接逐字节转发到固定目标。
type Proxy struct {
	target  string
	sem     *semaphore.Weighted
	maxConn int
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// NewProxy creates a Proxy to target with at most maxConnections relays at once.
func NewProxy(target string, maxConnections int, logger *zap.Logger) *Proxy {
	if maxConnections < 1 {
		maxConnections = 1
	}
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Proxy{
		target:  target,
		sem:     semaphore.NewWeighted(int64(maxConnections)),
		maxConn: maxConnections,
		logger:  logger,
	}
}

// ListenAndServe listens on addr and relays until ctx is done.
func (p *Proxy) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return p.Serve(ctx, ln)
}

// Serve accepts on ln until ctx is done.
func (p *Proxy) Serve(ctx context.Context, ln net.Listener) error {
	p.logger.Info("Listening", zap.Stringer("addr", ln.Addr()), zap.String("target", p.target), zap.Int("maxConnections", p.maxConn))
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()
	defer p.wg.Wait()

	for {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return nil
		}
		conn, err := ln.Accept()
		if err != nil {
			p.sem.Release(1)
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			p.logger.Warn("accept failed", zap.Error(err))
			continue
		}
		p.logger.Info("Connection", zap.Stringer("from", conn.RemoteAddr()))
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			defer p.sem.Release(1)
			if err := p.relay(ctx, conn); err != nil {
				p.logger.Error("relay failed", zap.Stringer("from", conn.RemoteAddr()), zap.String("target", p.target), zap.Error(err))
			}
		}()
	}
}

// relay copies conn to the target until conn reaches EOF.
func (p *Proxy) relay(ctx context.Context, conn net.Conn) error {
	defer conn.Close()
	d := net.Dialer{Timeout: DefaultDialTimeout}
	out, err := d.DialContext(ctx, "tcp", p.target)
	if err != nil {
		return fmt.Errorf("connect %s: %w", p.target, err)
	}
	defer out.Close()
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	n, err := io.CopyBuffer(out, conn, make([]byte, relayBuffer))
	p.logger.Debug("relayed", zap.Stringer("from", conn.RemoteAddr()), zap.Int64("bytes", n))
	return err
}
