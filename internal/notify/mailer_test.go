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

package notify

import (
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailerSend(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	m := NewMailer("mail.example.org", "ops@example.org", []string{"a@example.org", "b@example.org"}).
		WithSender(func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
			gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
			return nil
		})

	require.NoError(t, m.Send("Goto file for osusim", "line1\nline2"))
	assert.Equal(t, "mail.example.org:25", gotAddr)
	assert.Equal(t, "ops@example.org", gotFrom)
	assert.Equal(t, []string{"a@example.org", "b@example.org"}, gotTo)

	text := string(gotMsg)
	assert.True(t, strings.HasPrefix(text, "From: ops@example.org\r\nTo: a@example.org,b@example.org\r\n"))
	assert.Contains(t, text, "Subject: Goto file for osusim\r\n")
	assert.True(t, strings.HasSuffix(text, "\r\n\r\nline1\r\nline2"))
}

func TestMailerErrors(t *testing.T) {
	m := NewMailer("", "", nil)
	assert.Equal(t, "localhost:25", m.Host)
	assert.Contains(t, m.From, "@")
	assert.ErrorIs(t, m.Send("s", "b"), ErrNoRecipients)

	boom := errors.New("connection refused")
	m = NewMailer("relay:2525", "x@y", []string{"z@y"}).
		WithSender(func(string, smtp.Auth, string, []string, []byte) error { return boom })
	err := m.Send("s", "b")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "relay:2525", m.Host)
}
