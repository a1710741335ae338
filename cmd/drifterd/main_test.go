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

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/glidertools/drifterfollow/internal/supervisor"
	"github.com/glidertools/drifterfollow/internal/units"
)

// execute runs the root command. Flag values stick between runs, so tests pass
// every flag they depend on.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version:    "+Version)
	assert.Contains(t, out, "Git Commit: "+GitCommit)
}

// Every flag a deployed unit passes must exist on its subcommand, and the
// bare ones must be booleans.
func TestDeployedUnitsMatchCommands(t *testing.T) {
	d, err := units.Load(filepath.Join("..", "..", "deploy", "units.yaml"))
	require.NoError(t, err)
	require.Len(t, d.Services, 4)

	for _, s := range d.Services {
		cmd, _, err := rootCmd.Find([]string{s.Command})
		require.NoError(t, err, s.Name)
		require.Equal(t, s.Command, cmd.Name(), s.Name)
		for _, f := range s.Flags {
			fl := cmd.Flags().Lookup(f.Name)
			if !assert.NotNil(t, fl, "%s --%s", s.Name, f.Name) {
				continue
			}
			if f.Value == "" {
				assert.Equal(t, "bool", fl.Value.Type(), "%s --%s", s.Name, f.Name)
			}
		}
	}
}

func TestUnitsCommandPrints(t *testing.T) {
	out, err := execute(t, "units",
		"--deployment", filepath.Join("..", "..", "deploy", "units.yaml"),
		"--binary", "/opt/drifterd", "--outDir=")
	require.NoError(t, err)
	assert.Contains(t, out, "# gsat-listen.service")
	assert.Contains(t, out, "ExecStart=/opt/drifterd gsat-listen --logfile /home/glider/logs/gsat.log --port 11000 --db /home/glider/data/drifter.db")
	assert.Equal(t, 4, strings.Count(out, "Restart=always"))
}

func TestUnitsCommandWrites(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "units",
		"--deployment", filepath.Join("..", "..", "deploy", "units.yaml"),
		"--outDir", dir, "--binary=")
	require.NoError(t, err)
	for _, name := range []string{"gsat-listen", "glider-listen-osu684", "dialog-osu684", "faux-drifter"} {
		b, err := os.ReadFile(filepath.Join(dir, name+".service"))
		require.NoError(t, err, name)
		assert.Contains(t, string(b), "ExecStart=/usr/local/bin/drifterd ")
	}
}

func TestPatternsCommand(t *testing.T) {
	out, err := execute(t, "patterns", filepath.Join("..", "..", "deploy", "patterns.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "osu684 enabled=true")
	assert.Contains(t, out, "osusim enabled=false")
}

func TestGSatRequiresPort(t *testing.T) {
	_, err := execute(t, "gsat-listen", "--db", filepath.Join(t.TempDir(), "x.db"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port")
}

func TestHeading(t *testing.T) {
	assert.InDelta(t, 0, heading(0, 1), 1e-9)
	assert.InDelta(t, 90, heading(1, 0), 1e-9)
	assert.InDelta(t, 180, heading(0, -1), 1e-9)
	assert.InDelta(t, 270, heading(-1, 0), 1e-9)
}

func TestSeconds(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, seconds(1.5))
	assert.Equal(t, 15*time.Minute, seconds(900))
}

func TestGliderRestarts(t *testing.T) {
	cfg := gliderRestarts(60)
	assert.Equal(t, supervisor.PolicyAlways, cfg.Policy)
	assert.Equal(t, time.Minute, cfg.RestartDelay)
	assert.Zero(t, cfg.MaxRestarts)
}

func TestDatabasesShareLocations(t *testing.T) {
	dbs := newDatabases(zap.NewNop())
	defer dbs.Close()
	loc := filepath.Join(t.TempDir(), "glider.db")

	a, err := dbs.get(loc)
	require.NoError(t, err)
	b, err := dbs.get(loc)
	require.NoError(t, err)
	assert.Same(t, a, b)

	c, err := dbs.get(filepath.Join(t.TempDir(), "other.db"))
	require.NoError(t, err)
	assert.NotSame(t, a, c)
}
