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

// Package config loads drifterd options from flags, environment and an optional
// YAML file.
// config 包从命令行参数、环境变量和可选的 YAML 文件加载 drifterd 配置。
//
// Configuration loading priority (highest to lowest):
// 配置加载优先级（从高到低）：
// 1. Command line arguments / 命令行参数
// 2. Environment variables (DRIFTER_ prefix) / 环境变量（DRIFTER_ 前缀）
// 3. Configuration file / 配置文件
// 4. Flag default values / 参数默认值
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override.
// EnvPrefix 是环境变量覆盖的前缀。
const EnvPrefix = "DRIFTER"

// EnvConfigPath names the environment variable holding the config file path.
const EnvConfigPath = "DRIFTER_CONFIG_PATH"

// New creates a viper instance bound to fs.
// New 创建绑定到 fs 的 viper 实例。
//
// A missing config file is not an error. An unreadable or malformed one is.
// 配置文件不存在不是错误；存在但无法解析则返回错误。
func New(configPath string, fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()

	if configPath == "" {
		configPath = os.Getenv(EnvConfigPath)
	}

	// Enable environment variable override / 启用环境变量覆盖
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				if _, statErr := os.Stat(configPath); statErr == nil {
					return nil, fmt.Errorf("failed to read config file: %w", err)
				}
			}
		}
	}

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}
	return v, nil
}

// Load fills out from flags, env and the config file, then validates it.
// Load 从参数、环境变量和配置文件填充 out 并进行验证。
func Load(configPath string, fs *pflag.FlagSet, out Validator) error {
	v, err := New(configPath, fs)
	if err != nil {
		return err
	}
	if err := v.Unmarshal(out); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return out.Validate()
}

// Validator is implemented by every options struct.
type Validator interface {
	Validate() error
}
