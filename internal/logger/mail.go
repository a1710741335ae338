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

package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap/zapcore"
)

// Sender delivers one mail.
type Sender interface {
	Send(subject, body string) error
}

// mailCore is a zapcore.Core that mails every ERROR+ entry.
// mailCore 将每条 ERROR 及以上级别日志通过邮件发送。
type mailCore struct {
	sender  Sender
	subject string
	enc     zapcore.Encoder
}

// NewMailCore returns a core that mails ERROR and higher entries through sender.
func NewMailCore(sender Sender, subject string, encCfg zapcore.EncoderConfig) zapcore.Core {
	return &mailCore{
		sender:  sender,
		subject: subject,
		enc:     zapcore.NewConsoleEncoder(encCfg),
	}
}

func (c *mailCore) Enabled(lvl zapcore.Level) bool {
	return lvl >= zapcore.ErrorLevel
}

func (c *mailCore) With(fields []zapcore.Field) zapcore.Core {
	enc := c.enc.Clone()
	for i := range fields {
		fields[i].AddTo(enc)
	}
	return &mailCore{sender: c.sender, subject: c.subject, enc: enc}
}

func (c *mailCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *mailCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	buf, err := c.enc.EncodeEntry(ent, fields)
	if err != nil {
		return err
	}
	defer buf.Free()
	if err := c.sender.Send(c.subject, buf.String()); err != nil {
		// The mail path cannot log through itself.
		fmt.Fprintf(os.Stderr, "logger: mail error entry: %v\n", err)
		return err
	}
	return nil
}

func (c *mailCore) Sync() error {
	return nil
}
