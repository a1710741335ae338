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

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/glidertools/drifterfollow/internal/logger"
)

// Default option values
// 默认配置值
const (
	DefaultMaxConnections = 10
	DefaultRawTable       = "Raw"
	DefaultMOMTable       = "MOM"
	DefaultNodeCommand    = "/usr/bin/node"
	DefaultScriptDir      = "/opt/sfmc-rest-programs"
	DefaultDialogGlider   = "osusim"
	DefaultNBack          = 10
	DefaultTau            = 60.0  // minutes
	DefaultGotoDT         = 900.0 // seconds
	DefaultRestartSec     = 60.0
	DefaultFauxDT         = 900
	DefaultFauxIMEI       = "300234068117290"
)

// Sentinel validation errors
// 验证错误
var (
	ErrPortRequired      = errors.New("config: port must be in 1..65535")
	ErrDBRequired        = errors.New("config: database location is required")
	ErrGliderRequired    = errors.New("config: glider name is required")
	ErrPatternRequired   = errors.New("config: pattern file is required")
	ErrInputMode         = errors.New("config: exactly one of apiListen, apiInput or dialogInput is required")
	ErrAPIDirRequired    = errors.New("config: apiDir must be an existing directory")
	ErrForwardTarget     = errors.New("config: hostname and portForward are required")
	ErrMaxConnections    = errors.New("config: maxConnections must be at least 1")
	ErrNonPositive       = errors.New("config: value must be positive")
	ErrInputRequired     = errors.New("config: input file is required")
	ErrDeploymentMissing = errors.New("config: deployment file is required")
)

func validPort(p int) bool {
	return p > 0 && p < 65536
}

// ForwardTarget is the optional packet relay of gsat-listen, replay and faux-drifter.
// ForwardTarget 是可选的数据包转发目标。
type ForwardTarget struct {
	Hostname    string `mapstructure:"hostname"`
	PortForward int    `mapstructure:"portForward"`
}

// Enabled reports whether both host and port are set.
func (f ForwardTarget) Enabled() bool {
	return f.Hostname != "" && f.PortForward > 0
}

// Address returns host:port.
func (f ForwardTarget) Address() string {
	return fmt.Sprintf("%s:%d", f.Hostname, f.PortForward)
}

// GSatOptions configures gsat-listen.
// GSatOptions 配置 gsat-listen 服务。
type GSatOptions struct {
	logger.Options `mapstructure:",squash"`
	ForwardTarget  `mapstructure:",squash"`

	Port           int     `mapstructure:"port"`
	DB             string  `mapstructure:"db"`
	Raw            string  `mapstructure:"raw"`
	MOM            string  `mapstructure:"mom"`
	MaxConnections int     `mapstructure:"maxConnections"`
	ReadTimeout    float64 `mapstructure:"readTimeout"`
	MaxPacket      int     `mapstructure:"maxPacket"`
	HTTPListen     string  `mapstructure:"httpListen"`
}

// Validate checks the listener options.
func (o *GSatOptions) Validate() error {
	if !validPort(o.Port) {
		return ErrPortRequired
	}
	if o.DB == "" {
		return ErrDBRequired
	}
	if o.MaxConnections < 1 {
		return ErrMaxConnections
	}
	if o.ReadTimeout <= 0 || o.MaxPacket <= 0 {
		return fmt.Errorf("readTimeout/maxPacket: %w", ErrNonPositive)
	}
	return nil
}

// ProxyOptions configures the forward subcommand.
// ProxyOptions 配置端口转发子命令。
type ProxyOptions struct {
	logger.Options `mapstructure:",squash"`
	ForwardTarget  `mapstructure:",squash"`

	Port           int `mapstructure:"port"`
	MaxConnections int `mapstructure:"maxConnections"`
}

// Validate checks the proxy options.
func (o *ProxyOptions) Validate() error {
	if !validPort(o.Port) {
		return ErrPortRequired
	}
	if !o.ForwardTarget.Enabled() {
		return ErrForwardTarget
	}
	if o.MaxConnections < 1 {
		return ErrMaxConnections
	}
	return nil
}

// SendOptions configures the send subcommand.
type SendOptions struct {
	logger.Options `mapstructure:",squash"`

	Input     string  `mapstructure:"input"`
	Host      string  `mapstructure:"host"`
	Port      int     `mapstructure:"port"`
	PreDelay  float64 `mapstructure:"preDelay"`
	PostDelay float64 `mapstructure:"postDelay"`
}

// Validate checks the send options.
func (o *SendOptions) Validate() error {
	if o.Input == "" {
		return ErrInputRequired
	}
	if o.Host == "" || !validPort(o.Port) {
		return ErrPortRequired
	}
	return nil
}

// ReplayOptions configures the replay subcommand.
type ReplayOptions struct {
	logger.Options `mapstructure:",squash"`
	ForwardTarget  `mapstructure:",squash"`

	DB     string   `mapstructure:"db"`
	Raw    string   `mapstructure:"raw"`
	MOM    string   `mapstructure:"mom"`
	Inputs []string `mapstructure:"-"`
}

// Validate checks the replay options.
func (o *ReplayOptions) Validate() error {
	if o.DB == "" && !o.ForwardTarget.Enabled() {
		return fmt.Errorf("db or hostname/portForward: %w", ErrDBRequired)
	}
	return nil
}

// DrifterOptions configures the drifter estimate.
// DrifterOptions 配置漂流浮标位置估计。
type DrifterOptions struct {
	logger.Options `mapstructure:",squash"`

	DB        string  `mapstructure:"db"`
	NBack     int     `mapstructure:"nBack"`
	Tau       float64 `mapstructure:"tau"`
	TEarliest string  `mapstructure:"tEarliest"`
	IMEI      string  `mapstructure:"IMEI"`
}

// Validate checks the drifter options.
func (o *DrifterOptions) Validate() error {
	if o.DB == "" {
		return ErrDBRequired
	}
	if o.NBack < 1 || o.Tau <= 0 {
		return fmt.Errorf("nBack/tau: %w", ErrNonPositive)
	}
	if o.TEarliest != "" {
		if _, err := ParseTime(o.TEarliest); err != nil {
			return err
		}
	}
	return nil
}

// GliderOptions configures glider-listen and goto.
// GliderOptions 配置 glider-listen 与 goto 子命令。
type GliderOptions struct {
	logger.Options `mapstructure:",squash"`

	Glider      string   `mapstructure:"glider"`
	APIListen   bool     `mapstructure:"apiListen"`
	APIInput    string   `mapstructure:"apiInput"`
	DialogInput []string `mapstructure:"dialogInput"`
	APIDir      string   `mapstructure:"apiDir"`
	APICopy     string   `mapstructure:"apiCopy"`
	NodeCommand string   `mapstructure:"nodeCommand"`
	RestartSec  float64  `mapstructure:"restartSec"`

	DrifterDB       string  `mapstructure:"drifterDB"`
	DrifterNBack    int     `mapstructure:"drifterNBack"`
	DrifterTau      float64 `mapstructure:"drifterTau"`
	DrifterEarliest string  `mapstructure:"drifterEarliest"`
	GliderDB        string  `mapstructure:"gliderDB"`
	WptsDB          string  `mapstructure:"wptsDB"`
	Pattern         string  `mapstructure:"pattern"`

	GotoAPI      string   `mapstructure:"gotoAPI"`
	GotoRetain   bool     `mapstructure:"gotoRetain"`
	GotoDT       float64  `mapstructure:"gotoDT"`
	GotoIndex    float64  `mapstructure:"gotoIndex"`
	GotoArchive  string   `mapstructure:"gotoArchive"`
	GotoMailTo   []string `mapstructure:"gotoMailTo"`
	GotoMailFrom string   `mapstructure:"gotoMailFrom"`
	GotoFile     string   `mapstructure:"gotoFile"`

	HTTPListen string `mapstructure:"httpListen"`
}

// validate checks the options. With oneShot no input mode is required.
func (o *GliderOptions) validate(oneShot bool) error {
	if o.Glider == "" {
		return ErrGliderRequired
	}
	if o.Pattern == "" {
		return ErrPatternRequired
	}
	if o.GliderDB == "" || o.DrifterDB == "" {
		return fmt.Errorf("gliderDB/drifterDB: %w", ErrDBRequired)
	}
	if !oneShot {
		modes := 0
		if o.APIListen {
			modes++
		}
		if o.APIInput != "" {
			modes++
		}
		if len(o.DialogInput) != 0 {
			modes++
		}
		if modes != 1 {
			return ErrInputMode
		}
	}
	if o.APIListen || o.GotoAPI != "" {
		if !isDir(o.APIDir) {
			return fmt.Errorf("%q: %w", o.APIDir, ErrAPIDirRequired)
		}
	}
	if o.DrifterNBack < 1 || o.DrifterTau <= 0 || o.GotoDT < 0 {
		return fmt.Errorf("drifterNBack/drifterTau/gotoDT: %w", ErrNonPositive)
	}
	if o.DrifterEarliest != "" {
		if _, err := ParseTime(o.DrifterEarliest); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the glider-listen options.
func (o *GliderOptions) Validate() error {
	return o.validate(false)
}

// GotoOptions wraps GliderOptions for the one-shot goto subcommand.
type GotoOptions struct {
	GliderOptions `mapstructure:",squash"`
}

// Validate checks the goto options without requiring an input mode.
func (o *GotoOptions) Validate() error {
	return o.GliderOptions.validate(true)
}

// DialogOptions configures the dialog monitor.
// DialogOptions 配置 dialog 监视子命令。
type DialogOptions struct {
	logger.Options `mapstructure:",squash"`

	Glider      string  `mapstructure:"glider"`
	Dir         string  `mapstructure:"dir"`
	NodeCommand string  `mapstructure:"nodeCommand"`
	RestartSec  float64 `mapstructure:"restartSec"`
	MaxRestarts int     `mapstructure:"maxRestarts"`
}

// Validate checks the dialog options.
func (o *DialogOptions) Validate() error {
	if o.Glider == "" {
		return ErrGliderRequired
	}
	if !isDir(o.Dir) {
		return fmt.Errorf("%q: %w", o.Dir, ErrAPIDirRequired)
	}
	return nil
}

// FauxOptions configures the synthetic drifter.
// FauxOptions 配置模拟漂流浮标。
type FauxOptions struct {
	logger.Options `mapstructure:",squash"`
	ForwardTarget  `mapstructure:",squash"`

	DT          int     `mapstructure:"dt"`
	Lat         float64 `mapstructure:"lat"`
	Lon         float64 `mapstructure:"lon"`
	Spd         float64 `mapstructure:"spd"`
	SpdSigma    float64 `mapstructure:"spdSigma"`
	Hdg         float64 `mapstructure:"hdg"`
	HdgSigma    float64 `mapstructure:"hdgSigma"`
	Altitude    float64 `mapstructure:"altitude"`
	Battery     float64 `mapstructure:"battery"`
	BatteryRate float64 `mapstructure:"batteryRate"`
	Seed        int64   `mapstructure:"seed"`
	IMEI        string  `mapstructure:"IMEI"`
}

// Validate checks the faux drifter options.
func (o *FauxOptions) Validate() error {
	if o.DT <= 0 {
		return fmt.Errorf("dt: %w", ErrNonPositive)
	}
	if len(o.IMEI) != 15 {
		return fmt.Errorf("config: IMEI %q must have 15 digits", o.IMEI)
	}
	return nil
}

// UnitsOptions configures unit file rendering.
type UnitsOptions struct {
	logger.Options `mapstructure:",squash"`

	Deployment string `mapstructure:"deployment"`
	OutDir     string `mapstructure:"outDir"`
	Binary     string `mapstructure:"binary"`
}

// Validate checks the units options.
func (o *UnitsOptions) Validate() error {
	if o.Deployment == "" {
		return ErrDeploymentMissing
	}
	return nil
}

// ParseTime accepts "2006-01-02" or "2006-01-02 15:04:05", both in UTC.
// ParseTime 解析日期或日期时间（UTC）。
func ParseTime(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("config: unrecognized timestamp %q", s)
}

func isDir(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
