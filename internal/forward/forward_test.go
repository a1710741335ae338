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
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/glidertools/drifterfollow/internal/gsat"
	"github.com/glidertools/drifterfollow/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// sinkServer accepts connections and reports the full contents of each.
func sinkServer(t *testing.T) (host string, port int, bodies <-chan []byte) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	out := make(chan []byte, 16)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				data, _ := io.ReadAll(conn)
				out <- data
			}()
		}
	}()
	tcp := ln.Addr().(*net.TCPAddr)
	return tcp.IP.String(), tcp.Port, out
}

func receive(t *testing.T, bodies <-chan []byte) []byte {
	t.Helper()
	select {
	case b := <-bodies:
		return b
	case <-time.After(5 * time.Second):
		t.Fatal("nothing received")
		return nil
	}
}

func TestForwarder_Sends(t *testing.T) {
	host, port, bodies := sinkServer(t)
	metrics, err := observability.NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)

	f := NewForwarder(host, port, metrics, zap.NewNop())
	require.True(t, f.Enabled())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.Start(ctx)

	f.Put(gsat.Envelope{ID: "1", Body: []byte("hello")})
	f.WaitToFinish()

	assert.Equal(t, []byte("hello"), receive(t, bodies))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Forwards.WithLabelValues(observability.ResultOK)))
}

func TestForwarder_DisabledIsNoop(t *testing.T) {
	metrics, err := observability.NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)
	f := NewForwarder("", 0, metrics, zap.NewNop())
	assert.False(t, f.Enabled())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.Start(ctx)
	f.Put(gsat.Envelope{Body: []byte("x")})
	f.WaitToFinish()
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.Forwards.WithLabelValues(observability.ResultOK)))
}

func TestForwarder_ConnectFailureCounted(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	metrics, err := observability.NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)
	f := NewForwarder("127.0.0.1", port, metrics, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.Start(ctx)
	f.Put(gsat.Envelope{Body: []byte("x")})
	f.WaitToFinish()
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Forwards.WithLabelValues(observability.ResultError)))
}

func TestProxy_Relays(t *testing.T) {
	host, port, bodies := sinkServer(t)
	p := NewProxy(net.JoinHostPort(host, strconv.Itoa(port)), 2, zap.NewNop())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Serve(ctx, ln) }()

	for _, msg := range []string{"first packet", "second packet"} {
		conn, err := net.Dial("tcp", ln.Addr().String())
		require.NoError(t, err)
		_, err = conn.Write([]byte(msg))
		require.NoError(t, err)
		require.NoError(t, conn.Close())
		assert.Equal(t, []byte(msg), receive(t, bodies))
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestSendFile(t *testing.T) {
	host, port, bodies := sinkServer(t)
	fn := filepath.Join(t.TempDir(), "msg.sbd")
	require.NoError(t, os.WriteFile(fn, []byte{1, 0, 0}, 0o644))

	err := SendFile(context.Background(), fn, SendOptions{
		Host:      host,
		Port:      port,
		PreDelay:  10 * time.Millisecond,
		PostDelay: 10 * time.Millisecond,
	}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0, 0}, receive(t, bodies))
}

func TestSendFile_CancelledDuringDelay(t *testing.T) {
	host, port, _ := sinkServer(t)
	fn := filepath.Join(t.TempDir(), "msg.sbd")
	require.NoError(t, os.WriteFile(fn, []byte{1}, 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := SendFile(ctx, fn, SendOptions{Host: host, Port: port, PreDelay: time.Minute}, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
