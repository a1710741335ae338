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

// Package notify sends plain text mail through an SMTP relay.
// notify 包通过 SMTP 中继发送纯文本邮件。
package notify

import (
	"errors"
	"fmt"
	"net/smtp"
	"os"
	"os/user"
	"strings"
)

// DefaultSMTPHost is the relay used when none is configured.
const DefaultSMTPHost = "localhost"

// ErrNoRecipients indicates a send with an empty To list.
var ErrNoRecipients = errors.New("notify: no recipients")

// SendFunc matches smtp.SendMail so tests can capture outgoing mail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer sends messages from one sender to a fixed set of recipients.
// Mailer 从固定发件人向固定收件人发送邮件。
type Mailer struct {
	Host string
	From string
	To   []string

	send SendFunc
}

// NewMailer creates a Mailer. An empty host means localhost:25, an empty from
// means user@hostname.
func NewMailer(host, from string, to []string) *Mailer {
	if host == "" {
		host = DefaultSMTPHost
	}
	if !strings.Contains(host, ":") {
		host += ":25"
	}
	if from == "" {
		from = DefaultFrom()
	}
	return &Mailer{Host: host, From: from, To: to, send: smtp.SendMail}
}

// WithSender replaces the transport, used by tests.
func (m *Mailer) WithSender(send SendFunc) *Mailer {
	m.send = send
	return m
}

// Send mails subject and body to every recipient.
func (m *Mailer) Send(subject, body string) error {
	if len(m.To) == 0 {
		return ErrNoRecipients
	}
	msg := Compose(m.From, m.To, subject, body)
	if err := m.send(m.Host, nil, m.From, m.To, msg); err != nil {
		return fmt.Errorf("notify: send to %s via %s: %w", strings.Join(m.To, ","), m.Host, err)
	}
	return nil
}

// Compose builds an RFC 5322 message.
func Compose(from string, to []string, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + strings.Join(to, ",") + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

// DefaultFrom returns user@hostname for the running process.
func DefaultFrom() string {
	name := "drifterd"
	if u, err := user.Current(); err == nil && u.Username != "" {
		name = u.Username
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return name + "@" + host
}
