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

package gotofile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Sink names, used as metric labels.
const (
	SinkAPI     = "api"
	SinkMail    = "mail"
	SinkArchive = "archive"
	SinkFile    = "file"
)

// Sink delivers a goto file somewhere.
// Sink 将 goto 文件投递到某处。
type Sink interface {
	Name() string
	Deliver(ctx context.Context, glider, gotoText string) error
}

// APIClient is the part of the SFMC runner the API sink needs.
type APIClient interface {
	UpdateWaypointPlan(ctx context.Context, glider, filename string) error
	DeployGotoFile(ctx context.Context, glider string) error
}

// APISink uploads and deploys the goto file through the SFMC API scripts.
// APISink 通过 SFMC API 脚本上传并部署 goto 文件。
type APISink struct {
	client APIClient
	dir    string
	retain bool
	logger *zap.Logger
}

// NewAPISink writes temporary goto files into dir. With retain they are kept.
func NewAPISink(client APIClient, dir string, retain bool, logger *zap.Logger) *APISink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APISink{client: client, dir: dir, retain: retain, logger: logger}
}

// Name implements Sink.
func (s *APISink) Name() string { return SinkAPI }

// Deliver implements Sink.
func (s *APISink) Deliver(ctx context.Context, glider, gotoText string) error {
	f, err := os.CreateTemp(s.dir, "goto_list.*.ma")
	if err != nil {
		return fmt.Errorf("api sink: create temp file: %w", err)
	}
	fn := f.Name()
	_, werr := f.WriteString(gotoText)
	cerr := f.Close()
	defer func() {
		if s.retain {
			s.logger.Info("Temporary goto file retained", zap.String("path", fn))
			return
		}
		if err := os.Remove(fn); err != nil {
			s.logger.Warn("Unable to remove temporary goto file", zap.String("path", fn), zap.Error(err))
		}
	}()
	if werr != nil {
		return fmt.Errorf("api sink: write %s: %w", fn, werr)
	}
	if cerr != nil {
		return fmt.Errorf("api sink: close %s: %w", fn, cerr)
	}

	if err := s.client.UpdateWaypointPlan(ctx, glider, fn); err != nil {
		return err
	}
	if err := s.client.DeployGotoFile(ctx, glider); err != nil {
		return err
	}
	s.logger.Info("Sent goto file", zap.String("glider", glider))
	return nil
}

// Mailer sends one message.
type Mailer interface {
	Send(subject, body string) error
}

// MailSink mails the goto file.
type MailSink struct {
	mailer Mailer
}

// NewMailSink creates a MailSink.
func NewMailSink(mailer Mailer) *MailSink {
	return &MailSink{mailer: mailer}
}

// Name implements Sink.
func (s *MailSink) Name() string { return SinkMail }

// Deliver implements Sink.
func (s *MailSink) Deliver(_ context.Context, glider, gotoText string) error {
	return s.mailer.Send("Goto file for "+glider, gotoText)
}

// ArchiveSink keeps a timestamped copy of every goto file.
// ArchiveSink 为每个 goto 文件保存带时间戳的副本。
type ArchiveSink struct {
	dir    string
	now    func() time.Time
	logger *zap.Logger
}

// NewArchiveSink archives into dir.
func NewArchiveSink(dir string, logger *zap.Logger) *ArchiveSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveSink{dir: dir, now: time.Now, logger: logger}
}

// Name implements Sink.
func (s *ArchiveSink) Name() string { return SinkArchive }

// ArchiveName returns goto.<glider>.YYYYMMDD.HHMMSS.ma for t in UTC.
func ArchiveName(glider string, t time.Time) string {
	return "goto." + glider + "." + t.UTC().Format("20060102.150405") + ".ma"
}

// Deliver implements Sink.
func (s *ArchiveSink) Deliver(_ context.Context, glider, gotoText string) error {
	fn := filepath.Join(s.dir, ArchiveName(glider, s.now()))
	if err := os.WriteFile(fn, []byte(gotoText), 0o644); err != nil {
		return fmt.Errorf("archive sink: %w", err)
	}
	s.logger.Info("Archived goto file", zap.String("path", fn))
	return nil
}

// FileSink overwrites one file with the latest goto.
type FileSink struct {
	path string
}

// NewFileSink writes to path.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// Name implements Sink.
func (s *FileSink) Name() string { return SinkFile }

// Deliver implements Sink.
func (s *FileSink) Deliver(_ context.Context, _ string, gotoText string) error {
	if err := os.WriteFile(s.path, []byte(gotoText), 0o644); err != nil {
		return fmt.Errorf("file sink: %w", err)
	}
	return nil
}
