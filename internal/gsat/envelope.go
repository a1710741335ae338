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

// Package gsat receives GSatMicro DirectIP packets over TCP, stores them and
// hands them on to any number of sinks.
// Package gsat 通过 TCP 接收 GSatMicro DirectIP 数据包，存储并分发给各个 sink。
package gsat

import (
	"encoding/hex"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Defaults for the listener.
const (
	DefaultMaxConnections = 10
	DefaultReadTimeout    = 30 * time.Second
	// DefaultMaxPacket is far above the 1960 byte MO message limit.
	DefaultMaxPacket = 64 * 1024
)

// Sentinel errors
var (
	ErrPacketTooLarge = errors.New("gsat: packet exceeds the maximum size")
	ErrEmptyPacket    = errors.New("gsat: connection closed without data")
	ErrNoSinks        = errors.New("gsat: no sinks configured")
)

// Envelope is everything one connection delivered.
// Envelope 是一次连接传送的全部内容。
type Envelope struct {
	ID   string
	T    time.Time
	Addr string
	Port int
	Body []byte
}

// Fields renders the envelope as log fields. Replay reads these back.
func (e Envelope) Fields() []zap.Field {
	return []zap.Field{
		zap.String("id", e.ID),
		zap.String("t", e.T.UTC().Format(time.RFC3339Nano)),
		zap.String("addr", e.Addr),
		zap.Int("port", e.Port),
		zap.String("body", hex.EncodeToString(e.Body)),
	}
}

// Sink consumes envelopes. Put must not block.
type Sink interface {
	Name() string
	Put(env Envelope)
}
