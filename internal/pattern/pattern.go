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

// Package pattern loads per glider station keeping patterns from YAML.
// pattern 包从 YAML 加载各滑翔机的定位图案。
//
// Each top level key is a glider name:
//
//	osusim:
//	  IMEI: "300234068117290"  # drifter beacon to follow
//	  enabled: true             # default true
//	  qRotate: true             # offsets are in the drifter's frame
//	  theta: 45                 # rotate every point, degrees counter clockwise
//	  norm: 1000                # then scale every point
//	  pattern:
//	    - [1, 0]
//	    - [0, 1]
package pattern

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/glidertools/drifterfollow/internal/waypoint"
)

// Error definitions for pattern loading.
var (
	// ErrUnknownGlider indicates the glider has no entry in the pattern file.
	ErrUnknownGlider = errors.New("pattern: glider not in pattern file")
	// ErrFileMissing indicates the pattern file does not exist.
	ErrFileMissing = errors.New("pattern: pattern file does not exist")
)

// Entry is one glider's section of the pattern file.
// Entry 是图案文件中某一滑翔机的配置段。
type Entry struct {
	Points  [][2]float64 `yaml:"pattern"`
	Theta   *float64     `yaml:"theta"`
	Norm    *float64     `yaml:"norm"`
	QRotate bool         `yaml:"qRotate"`
	IMEI    string       `yaml:"IMEI"`
	Enabled *bool        `yaml:"enabled"`

	// Patterns are Points after rotation and scaling.
	Patterns []waypoint.Pattern `yaml:"-"`
}

// IsEnabled reports whether following is switched on, which is the default.
func (e *Entry) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// Set maps glider names to their entries.
type Set map[string]*Entry

// Parse decodes a pattern document.
func Parse(data []byte) (Set, error) {
	var set Set
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("pattern: parse: %w", err)
	}
	if set == nil {
		set = Set{}
	}
	for name, e := range set {
		if e == nil {
			e = &Entry{}
			set[name] = e
		}
		e.Patterns = e.transform()
	}
	return set, nil
}

// Load reads and decodes a pattern file.
func Load(path string) (Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileMissing, path)
		}
		return nil, err
	}
	return Parse(data)
}

// transform rotates by theta, then scales by norm.
func (e *Entry) transform() []waypoint.Pattern {
	out := make([]waypoint.Pattern, 0, len(e.Points))
	for _, pt := range e.Points {
		p := waypoint.Point{X: pt[0], Y: pt[1]}
		if e.Theta != nil && *e.Theta != 0 {
			p = p.Rotate(*e.Theta * math.Pi / 180)
		}
		if e.Norm != nil && *e.Norm != 1 {
			p = p.Scale(*e.Norm)
		}
		out = append(out, waypoint.Pattern{Offset: p, Rotate: e.QRotate})
	}
	return out
}

// Has reports whether glider has an entry.
func (s Set) Has(glider string) bool {
	_, ok := s[glider]
	return ok
}

// Enabled reports whether glider has an entry and following is switched on.
func (s Set) Enabled(glider string) bool {
	e, ok := s[glider]
	return ok && e.IsEnabled()
}

// Patterns returns the transformed pattern points for glider.
func (s Set) Patterns(glider string) []waypoint.Pattern {
	if e, ok := s[glider]; ok {
		return e.Patterns
	}
	return nil
}

// IMEI returns the drifter beacon glider follows.
func (s Set) IMEI(glider string) string {
	if e, ok := s[glider]; ok {
		return e.IMEI
	}
	return ""
}

// Gliders returns the sorted glider names.
func (s Set) Gliders() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Cache holds a pattern file and reloads it when its modification time moves.
// Cache 缓存图案文件，并在修改时间变化时重新加载。
type Cache struct {
	path string

	mu      sync.Mutex
	set     Set
	modTime time.Time
	changed bool
}

// NewCache creates a cache for path. Nothing is read until Get.
func NewCache(path string) *Cache {
	return &Cache{path: path}
}

// Get returns glider's entry. changed is true when the file was read since the
// previous Get, so callers know earlier plans no longer apply.
// Get 返回滑翔机的配置；若自上次调用后文件被重新加载，changed 为 true。
func (c *Cache) Get(glider string) (entry *Entry, changed bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, err := os.Stat(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, fmt.Errorf("%w: %s", ErrFileMissing, c.path)
		}
		return nil, false, err
	}
	if c.set == nil || info.ModTime().After(c.modTime) {
		set, err := Load(c.path)
		if err != nil {
			return nil, false, err
		}
		c.set = set
		c.modTime = info.ModTime()
		c.changed = true
	}

	e, ok := c.set[glider]
	if !ok {
		return nil, false, fmt.Errorf("%w: %s in %s", ErrUnknownGlider, glider, c.path)
	}
	changed = c.changed
	c.changed = false
	return e, changed, nil
}
