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
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// consoleRecord matches a console encoded "packet" log line and captures its
// JSON field object.
var consoleRecord = regexp.MustCompile(`\tpacket\t(\{.*\})\s*$`)

type loggedEnvelope struct {
	Msg  string `json:"msg"`
	ID   string `json:"id"`
	T    string `json:"t"`
	Addr string `json:"addr"`
	Port int    `json:"port"`
	Body string `json:"body"`
}

// ParseLogLine recovers the envelope from a Writer "packet" log line in either
// console or JSON encoding. ok is false for any other line.
// ParseLogLine 从 Writer 的 packet 日志行中还原 Envelope。
func ParseLogLine(line string) (env Envelope, ok bool, err error) {
	var rec loggedEnvelope
	switch {
	case consoleRecord.MatchString(line):
		m := consoleRecord.FindStringSubmatch(line)
		if err := json.Unmarshal([]byte(m[1]), &rec); err != nil {
			return env, false, fmt.Errorf("decode fields: %w", err)
		}
	case strings.HasPrefix(strings.TrimSpace(line), "{"):
		if err := json.Unmarshal([]byte(line), &rec); err != nil || rec.Msg != "packet" {
			return env, false, nil
		}
	default:
		return env, false, nil
	}

	t, err := time.Parse(time.RFC3339Nano, rec.T)
	if err != nil {
		return env, false, fmt.Errorf("time %q: %w", rec.T, err)
	}
	body, err := hex.DecodeString(rec.Body)
	if err != nil {
		return env, false, fmt.Errorf("body: %w", err)
	}
	return Envelope{ID: rec.ID, T: t.UTC(), Addr: rec.Addr, Port: rec.Port, Body: body}, true, nil
}

// Replay pushes every packet found in r to the sinks. It returns how many
// packets were found.
func Replay(ctx context.Context, r io.Reader, sinks []Sink, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*DefaultMaxPacket)
	lines, found := 0, 0
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return found, err
		}
		lines++
		env, ok, err := ParseLogLine(sc.Text())
		if err != nil {
			logger.Warn("unable to parse log line", zap.Int("line", lines), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		found++
		for _, s := range sinks {
			s.Put(env)
		}
	}
	if err := sc.Err(); err != nil {
		return found, err
	}
	logger.Info("replayed", zap.Int("entries", found), zap.Int("lines", lines))
	return found, nil
}

// ReplayFile replays one log file.
func ReplayFile(ctx context.Context, path string, sinks []Sink, logger *zap.Logger) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	if logger != nil {
		logger = logger.With(zap.String("file", path))
	}
	return Replay(ctx, f, sinks, logger)
}
