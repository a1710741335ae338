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

package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

func fastConfig(policy Policy, maxRestarts int, cooldown time.Duration) *Config {
	return &Config{
		Policy:         policy,
		RestartDelay:   time.Millisecond,
		MaxRestarts:    maxRestarts,
		TimeWindow:     time.Minute,
		CooldownPeriod: cooldown,
	}
}

// **Feature: drifter-follow, Property 20: restart count limit**
// Within the time window a service is restarted at most MaxRestarts times,
// after which it is in cooldown.
// 在时间窗口内重启次数不超过 MaxRestarts，超限后进入冷却。
func TestProperty_RestartCountLimit(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		maxRestarts := rapid.IntRange(1, 5).Draw(t, "maxRestarts")
		window := time.Duration(rapid.IntRange(60, 300).Draw(t, "timeWindow")) * time.Second
		name := rapid.StringMatching(`node-[a-z0-9]+`).Draw(t, "name")

		s := New(&Config{
			Policy:         PolicyAlways,
			RestartDelay:   time.Second,
			MaxRestarts:    maxRestarts,
			TimeWindow:     window,
			CooldownPeriod: 30 * time.Minute,
		}, zap.NewNop())

		for i := 0; i < maxRestarts; i++ {
			if !s.ShouldRestart(name) {
				t.Fatalf("restart %d of %d denied", i+1, maxRestarts)
			}
			s.recordRestart(name)
		}
		if s.ShouldRestart(name) {
			t.Fatalf("restart allowed past the limit of %d", maxRestarts)
		}
		if !s.IsInCooldown(name) {
			t.Fatalf("not in cooldown after %d restarts", maxRestarts)
		}
	})
}

// **Feature: drifter-follow, Property 21: cooldown reset**
// After a reset the service may restart again with an empty history.
// 重置后服务可以再次重启且历史为空。
func TestProperty_CooldownReset(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		name := rapid.StringMatching(`node-[a-z0-9]+`).Draw(t, "name")
		s := New(fastConfig(PolicyAlways, 3, 30*time.Minute), zap.NewNop())

		for i := 0; i < 3; i++ {
			s.recordRestart(name)
		}
		s.ShouldRestart(name)
		s.ResetRestartCount(name)

		if !s.ShouldRestart(name) {
			t.Fatalf("restart denied after reset")
		}
		if h := s.GetHistory(name); h == nil || len(h.RestartTimes) != 0 {
			t.Fatalf("history not cleared: %+v", h)
		}
	})
}

func TestUnlimitedRestarts(t *testing.T) {
	s := New(fastConfig(PolicyAlways, 0, 0), zap.NewNop())
	for i := 0; i < 50; i++ {
		require.True(t, s.ShouldRestart("svc"))
		s.recordRestart("svc")
	}
	assert.Equal(t, 50, s.GetHistory("svc").RestartCount)
}

func TestRunPolicyNo(t *testing.T) {
	s := New(fastConfig(PolicyNo, 0, 0), zap.NewNop())
	boom := errors.New("boom")
	var calls int32
	err := s.Run(context.Background(), "svc", func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(1), calls)
}

func TestRunOnFailureStopsOnCleanExit(t *testing.T) {
	s := New(fastConfig(PolicyOnFailure, 0, 0), zap.NewNop())
	var calls int32
	err := s.Run(context.Background(), "svc", func(context.Context) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("transient")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, int32(3), calls)
}

func TestRunGivesUpWithoutCooldown(t *testing.T) {
	s := New(fastConfig(PolicyAlways, 2, 0), zap.NewNop())
	boom := errors.New("node exited")
	var calls int32
	err := s.Run(context.Background(), "dialog", func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return boom
	})
	assert.ErrorIs(t, err, ErrRestartLimit)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(3), calls)
}

func TestRunStopsOnCancel(t *testing.T) {
	s := New(&Config{Policy: PolicyAlways, RestartDelay: time.Hour}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	started := make(chan struct{}, 1)
	go func() {
		done <- s.Run(ctx, "svc", func(context.Context) error {
			started <- struct{}{}
			return errors.New("fail")
		})
	}()
	<-started
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestRunCooldownThenResume(t *testing.T) {
	s := New(fastConfig(PolicyAlways, 1, 20*time.Millisecond), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var calls int32
	err := s.Run(ctx, "svc", func(context.Context) error {
		if atomic.AddInt32(&calls, 1) >= 4 {
			cancel()
			return nil
		}
		return errors.New("fail")
	})
	assert.NoError(t, err)
	assert.Equal(t, int32(4), calls)
}
