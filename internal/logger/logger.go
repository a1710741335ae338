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

// Package logger builds the zap logger shared by every drifterd service.
// logger 包构建所有 drifterd 服务共用的 zap 日志记录器。
//
// Output goes to stderr, or to a lumberjack rotating file when a logfile is
// named. Entries at ERROR and above can also be mailed.
// 日志输出到 stderr，指定日志文件时输出到 lumberjack 轮转文件；ERROR 及以上级别可发送邮件。
package logger

import (
	"os"

	"github.com/glidertools/drifterfollow/internal/notify"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Default values for the logger flags
// 日志参数默认值
const (
	DefaultLogBytes = 10000000
	DefaultLogCount = 3
	megabyte        = 1024 * 1024
)

// Options holds the logger flags of every subcommand.
// Options 保存所有子命令的日志参数。
type Options struct {
	LogFile     string   `mapstructure:"logfile"`
	LogBytes    int64    `mapstructure:"logBytes"`
	LogCount    int      `mapstructure:"logCount"`
	Verbose     bool     `mapstructure:"verbose"`
	MailTo      []string `mapstructure:"mailTo"`
	MailFrom    string   `mapstructure:"mailFrom"`
	MailSubject string   `mapstructure:"mailSubject"`
	SMTPHost    string   `mapstructure:"smtpHost"`
}

// AddFlags registers the logger flags on fs.
// AddFlags 在 fs 上注册日志参数。
func AddFlags(fs *pflag.FlagSet) {
	fs.String("logfile", "", "Name of logfile")
	fs.Int64("logBytes", DefaultLogBytes, "Maximum logfile size in bytes")
	fs.Int("logCount", DefaultLogCount, "Number of backup files to keep")
	fs.Bool("verbose", false, "Enable verbose logging")
	fs.StringArray("mailTo", nil, "Mail ERROR messages to this address (repeatable)")
	fs.String("mailFrom", "", "Sender of ERROR mails")
	fs.String("mailSubject", "", "Subject of ERROR mails")
	fs.String("smtpHost", notify.DefaultSMTPHost, "SMTP relay for ERROR mails")
}

// MaxSizeMB converts LogBytes into lumberjack megabytes, rounding up.
func (o Options) MaxSizeMB() int {
	if o.LogBytes <= 0 {
		return 1
	}
	mb := int((o.LogBytes + megabyte - 1) / megabyte)
	if mb < 1 {
		mb = 1
	}
	return mb
}

// Level returns the minimum enabled level.
func (o Options) Level() zapcore.Level {
	if o.Verbose {
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}

// New builds a logger named after the service.
// New 构建以服务名命名的日志记录器。
func New(name string, opts Options) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var sink zapcore.WriteSyncer
	if opts.LogFile != "" {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.LogFile,
			MaxSize:    opts.MaxSizeMB(),
			MaxBackups: opts.LogCount,
		})
	} else {
		sink = zapcore.Lock(os.Stderr)
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), sink, opts.Level())
	if len(opts.MailTo) != 0 {
		subject := opts.MailSubject
		if subject == "" {
			subject = name + " error"
		}
		mailer := notify.NewMailer(opts.SMTPHost, opts.MailFrom, opts.MailTo)
		core = zapcore.NewTee(core, NewMailCore(mailer, subject, encCfg))
	}

	return zap.New(core, zap.AddCaller()).Named(name)
}
