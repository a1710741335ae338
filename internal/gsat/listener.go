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
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/glidertools/drifterfollow/internal/observability"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ListenerConfig configures a Listener.
type ListenerConfig struct {
	// Addr is the address to listen on, e.g. ":11000".
	Addr           string
	MaxConnections int
	ReadTimeout    time.Duration
	MaxPacket      int
}

func (c ListenerConfig) withDefaults() ListenerConfig {
	if c.MaxConnections <= 0 {
		c.MaxConnections = DefaultMaxConnections
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.MaxPacket <= 0 {
		c.MaxPacket = DefaultMaxPacket
	}
	return c
}

// Listener accepts DirectIP connections, reads each to EOF and fans the
// resulting Envelope out to its sinks.
// Listener 接受 DirectIP 连接，读取至 EOF 后将 Envelope 分发给各个 sink。
type Listener struct {
	cfg     ListenerConfig
	sinks   []Sink
	sem     *semaphore.Weighted
	metrics *observability.Collector
	logger  *zap.Logger
	wg      sync.WaitGroup
	now     func() time.Time
}

// NewListener creates a Listener.
func NewListener(cfg ListenerConfig, sinks []Sink, metrics *observability.Collector, logger *zap.Logger) (*Listener, error) {
	if len(sinks) == 0 {
		return nil, ErrNoSinks
	}
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	cfg = cfg.withDefaults()
	return &Listener{
		cfg:     cfg,
		sinks:   sinks,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConnections)),
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// ListenAndServe listens on the configured address and serves until ctx is done.
func (l *Listener) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", l.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", l.cfg.Addr, err)
	}
	return l.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done. At most MaxConnections
// are read at once. Serve waits for open connections before returning.
func (l *Listener) Serve(ctx context.Context, ln net.Listener) error {
	l.logger.Info("Listening", zap.Stringer("addr", ln.Addr()), zap.Int("maxConnections", l.cfg.MaxConnections))
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()
	defer l.wg.Wait()

	for {
		if err := l.sem.Acquire(ctx, 1); err != nil {
			return nil
		}
		conn, err := ln.Accept()
		if err != nil {
			l.sem.Release(1)
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			l.logger.Warn("accept failed", zap.Error(err))
			continue
		}
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			defer l.sem.Release(1)
			l.handle(conn)
		}()
	}
}

func (l *Listener) handle(conn net.Conn) {
	defer conn.Close()
	l.metrics.ConnectionOpened()
	defer l.metrics.ConnectionClosed()

	t := l.now().UTC()
	addr, port := splitAddr(conn.RemoteAddr())
	log := l.logger.With(zap.String("addr", addr), zap.Int("port", port))
	log.Info("Connection")

	body, err := l.read(conn)
	if err != nil {
		log.Warn("dropping connection", zap.Int("bytes", len(body)), zap.Error(err))
		return
	}
	l.metrics.PacketReceived()

	env := Envelope{ID: uuid.NewString(), T: t, Addr: addr, Port: port, Body: body}
	for _, s := range l.sinks {
		s.Put(env)
	}
}

// read collects the connection's bytes. The deadline is per read, so a
// trickling sender is not cut off as long as it keeps sending.
func (l *Listener) read(conn net.Conn) ([]byte, error) {
	buf := make([]byte, 0, 1024)
	chunk := make([]byte, 4096)
	for {
		if err := conn.SetReadDeadline(time.Now().Add(l.cfg.ReadTimeout)); err != nil {
			return buf, err
		}
		n, err := conn.Read(chunk)
		if len(buf)+n > l.cfg.MaxPacket {
			return buf, fmt.Errorf("%w: more than %d bytes", ErrPacketTooLarge, l.cfg.MaxPacket)
		}
		buf = append(buf, chunk[:n]...)
		if errors.Is(err, io.EOF) {
			if len(buf) == 0 {
				return buf, ErrEmptyPacket
			}
			return buf, nil
		}
		if err != nil {
			return buf, err
		}
	}
}

func splitAddr(a net.Addr) (string, int) {
	if tcp, ok := a.(*net.TCPAddr); ok {
		return tcp.IP.String(), tcp.Port
	}
	host, p, err := net.SplitHostPort(a.String())
	if err != nil {
		return a.String(), 0
	}
	port, _ := strconv.Atoi(p)
	return host, port
}
