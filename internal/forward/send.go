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
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// SendOptions describes one test transmission.
type SendOptions struct {
	Host      string
	Port      int
	PreDelay  time.Duration
	PostDelay time.Duration
}

// SendFile connects, waits PreDelay, writes the whole file, waits PostDelay
// and closes. It stands in for a DirectIP sender when testing a listener.
// SendFile 连接目标，延迟后发送文件内容，再延迟后关闭。
func SendFile(ctx context.Context, path string, opts SendOptions, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	addr := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	d := net.Dialer{Timeout: DefaultDialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connect %s: %w", addr, err)
	}
	defer conn.Close()
	logger.Info("Connected", zap.String("addr", addr))

	if opts.PreDelay > 0 {
		logger.Info("Sleeping before sending", zap.Duration("delay", opts.PreDelay))
		if err := sleep(ctx, opts.PreDelay); err != nil {
			return err
		}
	}
	if err := writeAll(conn, body); err != nil {
		return fmt.Errorf("send %s: %w", path, err)
	}
	logger.Info("Sent", zap.String("file", path), zap.Int("bytes", len(body)))
	if opts.PostDelay > 0 {
		logger.Info("Sleeping after sending", zap.Duration("delay", opts.PostDelay))
		if err := sleep(ctx, opts.PostDelay); err != nil {
			return err
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
