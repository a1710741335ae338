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

// Package supervisor keeps long-running services alive inside one process.
// supervisor 包在进程内保持长期运行的服务存活。
//
// This package provides:
// 此包提供：
// - Restart policies always, on-failure and no / 重启策略 always、on-failure、no
// - Restart count limiting within a time window / 时间窗口内的重启次数限制
// - Cooldown period management / 冷却时间管理
// - Restart history tracking / 重启历史跟踪
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Default configuration values
// 默认配置值
const (
	DefaultRestartDelay   = 60 * time.Second // matches RestartSec of the units
	DefaultMaxRestarts    = 0                // unlimited
	DefaultTimeWindow     = 5 * time.Minute
	DefaultCooldownPeriod = 30 * time.Minute
)

// Policy decides whether an exited service is started again.
// Policy 决定服务退出后是否重新启动。
type Policy string

const (
	// PolicyAlways restarts after any exit.
	PolicyAlways Policy = "always"
	// PolicyOnFailure restarts only after an error.
	PolicyOnFailure Policy = "on-failure"
	// PolicyNo never restarts.
	PolicyNo Policy = "no"
)

// ErrRestartLimit is returned when a service exhausted its restarts and no cooldown is configured.
var ErrRestartLimit = errors.New("supervisor: restart limit reached")

// Config holds the restart configuration
// Config 保存重启配置
type Config struct {
	Policy         Policy        `mapstructure:"policy"`
	RestartDelay   time.Duration `mapstructure:"restart_delay"`   // 重启延迟 / Restart delay
	MaxRestarts    int           `mapstructure:"max_restarts"`    // 0 means unlimited / 0 表示不限
	TimeWindow     time.Duration `mapstructure:"time_window"`     // 时间窗口 / Time window
	CooldownPeriod time.Duration `mapstructure:"cooldown_period"` // 0 means give up / 0 表示放弃
}

// DefaultConfig returns the default restart configuration
// DefaultConfig 返回默认重启配置
func DefaultConfig() *Config {
	return &Config{
		Policy:         PolicyAlways,
		RestartDelay:   DefaultRestartDelay,
		MaxRestarts:    DefaultMaxRestarts,
		TimeWindow:     DefaultTimeWindow,
		CooldownPeriod: DefaultCooldownPeriod,
	}
}

// History tracks restart history for a service
// History 跟踪服务的重启历史
type History struct {
	Name          string
	RestartCount  int
	LastRestart   time.Time
	WindowStart   time.Time
	CooldownUntil time.Time
	RestartTimes  []time.Time
}

// Service is one supervised unit of work. It returns when it stops.
type Service func(ctx context.Context) error

// Supervisor runs services under a restart policy
// Supervisor 按重启策略运行服务
type Supervisor struct {
	config  *Config
	history map[string]*History
	logger  *zap.Logger
	mu      sync.RWMutex
}

// New creates a Supervisor. A nil config means DefaultConfig.
// New 创建 Supervisor 实例
func New(config *Config, logger *zap.Logger) *Supervisor {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Supervisor{
		config:  config,
		history: make(map[string]*History),
		logger:  logger,
	}
}

// Run runs svc until ctx is cancelled or the policy stops it.
// Run 运行 svc，直到 ctx 取消或重启策略停止。
//
// A cancelled context is a clean stop and returns nil.
// 上下文取消视为正常停止，返回 nil。
func (s *Supervisor) Run(ctx context.Context, name string, svc Service) error {
	for {
		err := svc(ctx)
		if ctx.Err() != nil {
			return nil
		}

		if err != nil {
			s.logger.Error("service exited", zap.String("service", name), zap.Error(err))
		} else {
			s.logger.Warn("service exited", zap.String("service", name))
		}

		if !s.policyRestarts(err) {
			return err
		}

		if !s.ShouldRestart(name) {
			cooldown := s.cooldownRemaining(name)
			if cooldown <= 0 {
				return errors.Join(fmt.Errorf("%s: %w", name, ErrRestartLimit), err)
			}
			s.logger.Warn("restart limit reached, cooling down",
				zap.String("service", name), zap.Duration("cooldown", cooldown))
			if !sleep(ctx, cooldown) {
				return nil
			}
			s.ResetRestartCount(name)
		}

		delay := s.GetConfig().RestartDelay
		s.logger.Info("restarting service", zap.String("service", name), zap.Duration("delay", delay))
		if !sleep(ctx, delay) {
			return nil
		}
		s.recordRestart(name)
	}
}

func (s *Supervisor) policyRestarts(err error) bool {
	switch s.GetConfig().Policy {
	case PolicyNo:
		return false
	case PolicyOnFailure:
		return err != nil
	default:
		return true
	}
}

// ShouldRestart checks if a service may be restarted now
// ShouldRestart 检查服务是否可以重启
func (s *Supervisor) ShouldRestart(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config.Policy == PolicyNo {
		return false
	}

	history, exists := s.history[name]
	if !exists {
		return true
	}

	now := time.Now()

	// Check if in cooldown / 检查是否在冷却中
	if now.Before(history.CooldownUntil) {
		return false
	}

	// Cooldown passed, reset counter / 冷却已过，重置计数器
	if !history.CooldownUntil.IsZero() && history.CooldownUntil.After(history.WindowStart) {
		s.resetHistoryLocked(name)
		return true
	}

	if s.config.MaxRestarts <= 0 {
		return true
	}

	// Count restarts within time window / 计算时间窗口内的重启次数
	windowStart := now.Add(-s.config.TimeWindow)
	restartsInWindow := 0
	for _, t := range history.RestartTimes {
		if t.After(windowStart) {
			restartsInWindow++
		}
	}

	if restartsInWindow >= s.config.MaxRestarts {
		history.CooldownUntil = now.Add(s.config.CooldownPeriod)
		return false
	}

	return true
}

// cooldownRemaining returns how long name stays in cooldown.
func (s *Supervisor) cooldownRemaining(name string) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if history, exists := s.history[name]; exists {
		return time.Until(history.CooldownUntil)
	}
	return 0
}

// recordRestart records a restart in history
// recordRestart 在历史中记录重启
func (s *Supervisor) recordRestart(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	history, exists := s.history[name]
	if !exists {
		history = &History{Name: name, WindowStart: now}
		s.history[name] = history
	}

	history.RestartCount++
	history.LastRestart = now
	history.RestartTimes = append(history.RestartTimes, now)

	// Clean up old restart times / 清理旧的重启时间
	windowStart := now.Add(-s.config.TimeWindow)
	kept := history.RestartTimes[:0]
	for _, t := range history.RestartTimes {
		if t.After(windowStart) {
			kept = append(kept, t)
		}
	}
	history.RestartTimes = kept
}

// ResetRestartCount resets the restart count for a service
// ResetRestartCount 重置服务的重启计数
func (s *Supervisor) ResetRestartCount(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetHistoryLocked(name)
}

// resetHistoryLocked must be called with the lock held.
func (s *Supervisor) resetHistoryLocked(name string) {
	if history, exists := s.history[name]; exists {
		history.RestartCount = 0
		history.RestartTimes = nil
		history.WindowStart = time.Now()
		history.CooldownUntil = time.Time{}
	}
}

// GetHistory returns a copy of the restart history, or nil.
// GetHistory 返回重启历史副本
func (s *Supervisor) GetHistory(name string) *History {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if history, exists := s.history[name]; exists {
		historyCopy := *history
		historyCopy.RestartTimes = append([]time.Time(nil), history.RestartTimes...)
		return &historyCopy
	}
	return nil
}

// GetConfig returns a copy of the current configuration
// GetConfig 返回当前配置
func (s *Supervisor) GetConfig() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.config
}

// SetConfig replaces the configuration
// SetConfig 设置重启配置
func (s *Supervisor) SetConfig(config *Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = config
}

// IsInCooldown checks if a service is in cooldown
// IsInCooldown 检查服务是否在冷却中
func (s *Supervisor) IsInCooldown(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if history, exists := s.history[name]; exists {
		return time.Now().Before(history.CooldownUntil)
	}
	return false
}

// sleep waits for d or until ctx is done. It reports whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
