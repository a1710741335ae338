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

// Package units renders systemd service files for the drifterd services from
// a deployment description.
// Package units 根据部署描述生成 drifterd 各服务的 systemd 单元文件。
package units

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/coreos/go-systemd/v22/unit"
	"gopkg.in/yaml.v3"
)

// DefaultBinary is the ExecStart program when the deployment names none.
const DefaultBinary = "/usr/local/bin/drifterd"

// DefaultRestartSec is the restart delay when a service names none.
const DefaultRestartSec = 60

// Sentinel errors
var (
	ErrNoServices   = errors.New("units: deployment lists no services")
	ErrServiceName  = errors.New("units: invalid service name")
	ErrNoCommand    = errors.New("units: service has no command")
	ErrDuplicate    = errors.New("units: duplicate service name")
	ErrRelativePath = errors.New("units: path must be absolute")
)

var validName = regexp.MustCompile(`^[A-Za-z0-9:_.@-]+$`)

// Flag is one command line flag. An empty Value renders a bare boolean flag.
type Flag struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value,omitempty"`
}

// Service describes one systemd service.
// Service 描述一个 systemd 服务。
type Service struct {
	Name             string `yaml:"name"`
	Description      string `yaml:"description"`
	Command          string `yaml:"command"`
	WorkingDirectory string `yaml:"workingDirectory"`
	User             string `yaml:"user"`
	RestartSec       int    `yaml:"restartSec"`
	Flags            []Flag `yaml:"flags"`
}

// Deployment is a set of services sharing one binary.
type Deployment struct {
	Binary   string    `yaml:"binary"`
	Services []Service `yaml:"services"`
}

// Load reads a deployment YAML file.
func Load(path string) (*Deployment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses and validates a deployment.
func Decode(r io.Reader) (*Deployment, error) {
	var d Deployment
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("units: decode deployment: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Validate checks names, commands and paths.
func (d *Deployment) Validate() error {
	if len(d.Services) == 0 {
		return ErrNoServices
	}
	if d.Binary != "" && !filepath.IsAbs(d.Binary) {
		return fmt.Errorf("%w: binary %q", ErrRelativePath, d.Binary)
	}
	seen := make(map[string]bool, len(d.Services))
	for _, s := range d.Services {
		if !validName.MatchString(s.Name) {
			return fmt.Errorf("%w: %q", ErrServiceName, s.Name)
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: %q", ErrDuplicate, s.Name)
		}
		seen[s.Name] = true
		if s.Command == "" {
			return fmt.Errorf("%w: %s", ErrNoCommand, s.Name)
		}
		if s.WorkingDirectory != "" && !filepath.IsAbs(s.WorkingDirectory) {
			return fmt.Errorf("%w: %s workingDirectory %q", ErrRelativePath, s.Name, s.WorkingDirectory)
		}
	}
	return nil
}

// ExecStart returns the command line for s.
func (s Service) ExecStart(binary string) string {
	if binary == "" {
		binary = DefaultBinary
	}
	args := []string{quote(binary), quote(s.Command)}
	for _, f := range s.Flags {
		args = append(args, "--"+f.Name)
		if f.Value != "" {
			args = append(args, quote(f.Value))
		}
	}
	return strings.Join(args, " ")
}

// quote makes v a single ExecStart word. systemd expands % specifiers, so a
// literal percent is doubled.
func quote(v string) string {
	v = strings.ReplaceAll(v, "%", "%%")
	if v == "" || strings.ContainsAny(v, " \t\"'\\;$") {
		return strconv.Quote(v)
	}
	return v
}

// Options returns the unit file entries for s.
// Options 返回服务 s 的单元文件配置项。
func (s Service) Options(binary string) []*unit.UnitOption {
	restart := s.RestartSec
	if restart <= 0 {
		restart = DefaultRestartSec
	}
	opts := []*unit.UnitOption{
		unit.NewUnitOption("Unit", "Description", s.Description),
		unit.NewUnitOption("Unit", "Wants", "network-online.target"),
		unit.NewUnitOption("Unit", "After", "network-online.target"),
		unit.NewUnitOption("Service", "Type", "simple"),
	}
	if s.WorkingDirectory != "" {
		opts = append(opts, unit.NewUnitOption("Service", "WorkingDirectory", s.WorkingDirectory))
	}
	if s.User != "" {
		opts = append(opts, unit.NewUnitOption("Service", "User", s.User))
	}
	opts = append(opts,
		unit.NewUnitOption("Service", "ExecStart", s.ExecStart(binary)),
		unit.NewUnitOption("Service", "Restart", "always"),
		unit.NewUnitOption("Service", "RestartSec", strconv.Itoa(restart)),
		unit.NewUnitOption("Install", "WantedBy", "multi-user.target"),
	)
	return opts
}

// Render returns the unit file text for s.
func (s Service) Render(binary string) (string, error) {
	b, err := io.ReadAll(unit.Serialize(s.Options(binary)))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// FileName is the unit file name for s.
func (s Service) FileName() string {
	return s.Name + ".service"
}

// Write renders every service into dir and returns the files written. A
// non-empty binary overrides the deployment's.
// Write 将所有服务渲染到 dir 并返回写入的文件列表。
func (d *Deployment) Write(dir, binary string) ([]string, error) {
	if binary == "" {
		binary = d.Binary
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	var written []string
	for _, s := range d.Services {
		text, err := s.Render(binary)
		if err != nil {
			return written, fmt.Errorf("render %s: %w", s.Name, err)
		}
		fn := filepath.Join(dir, s.FileName())
		if err := os.WriteFile(fn, []byte(text), 0o644); err != nil {
			return written, err
		}
		written = append(written, fn)
	}
	return written, nil
}
