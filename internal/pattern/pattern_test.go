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

package pattern

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testYAML = `
osusim:
  IMEI: "300234068117290"
  qRotate: true
  theta: 90
  norm: 1000
  pattern:
    - [1, 0]
    - [0, 1]
parked:
  enabled: false
  pattern:
    - [500, 0]
`

func TestParse(t *testing.T) {
	set, err := Parse([]byte(testYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"osusim", "parked"}, set.Gliders())
	assert.True(t, set.Has("osusim"))
	assert.False(t, set.Has("unit_123"))
	assert.True(t, set.Enabled("osusim"))
	assert.False(t, set.Enabled("parked"))
	assert.False(t, set.Enabled("unit_123"))
	assert.Equal(t, "300234068117290", set.IMEI("osusim"))
	assert.Equal(t, "", set.IMEI("parked"))

	// Rotated 90 degrees then scaled by 1000
	// 先旋转 90 度再放大 1000 倍
	pts := set.Patterns("osusim")
	require.Len(t, pts, 2)
	assert.InDelta(t, 0, pts[0].Offset.X, 1e-9)
	assert.InDelta(t, 1000, pts[0].Offset.Y, 1e-9)
	assert.InDelta(t, -1000, pts[1].Offset.X, 1e-9)
	assert.InDelta(t, 0, pts[1].Offset.Y, 1e-9)
	assert.True(t, pts[0].Rotate)

	parked := set.Patterns("parked")
	require.Len(t, parked, 1)
	assert.Equal(t, 500.0, parked[0].Offset.X)
	assert.False(t, parked[0].Rotate)

	_, err = Parse([]byte("osusim: [unterminated"))
	assert.Error(t, err)
}

func TestCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patterns.yaml")
	cache := NewCache(path)

	_, _, err := cache.Get("osusim")
	assert.ErrorIs(t, err, ErrFileMissing)

	require.NoError(t, os.WriteFile(path, []byte(testYAML), 0644))
	e, changed, err := cache.Get("osusim")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Len(t, e.Patterns, 2)

	_, changed, err = cache.Get("osusim")
	require.NoError(t, err)
	assert.False(t, changed)

	_, _, err = cache.Get("unit_123")
	assert.ErrorIs(t, err, ErrUnknownGlider)

	// A newer file is reloaded
	// 文件更新后重新加载
	updated := testYAML + "  \n"
	require.NoError(t, os.WriteFile(path, []byte(updated+"unit_123:\n  pattern:\n    - [1, 1]\n"), 0644))
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	e, changed, err = cache.Get("unit_123")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Len(t, e.Patterns, 1)
}
