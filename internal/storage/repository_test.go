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

package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/glidertools/drifterfollow/internal/sbd"
)

// setupTestDB creates a temporary SQLite database with every table migrated.
func setupTestDB(t *testing.T) (*gorm.DB, func()) {
	tempDir, err := os.MkdirTemp("", "storage_test_*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	db, err := gorm.Open(sqlite.Open(filepath.Join(tempDir, "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("Failed to open database: %v", err)
	}

	for _, m := range []interface{ Migrate() error }{
		NewPacketRepository(db, ""),
		NewFixRepository(db, ""),
		NewGliderRepository(db),
		NewWaypointRepository(db),
	} {
		if err := m.Migrate(); err != nil {
			os.RemoveAll(tempDir)
			t.Fatalf("Failed to migrate: %v", err)
		}
	}

	cleanup := func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		os.RemoveAll(tempDir)
	}
	return db, cleanup
}

func fixAt(imei string, t time.Time, lat, lon float64) *Fix {
	return &Fix{IMEI: imei, T: t, TRecv: t.Add(time.Minute), Latitude: &lat, Longitude: &lon}
}

func TestParseLocation(t *testing.T) {
	assert.Equal(t, Config{Type: DatabaseTypeSQLite, Path: "/data/drifter.db", LogLevel: "silent"},
		ParseLocation("/data/drifter.db"))
	assert.Equal(t, DatabaseTypeMySQL, ParseLocation("mysql://u:p@tcp(db:3306)/gsat").Type)
	assert.Equal(t, "u:p@tcp(db:3306)/gsat", ParseLocation("mysql://u:p@tcp(db:3306)/gsat").DSN)
	assert.Equal(t, DatabaseTypePostgres, ParseLocation("postgres://u@db/gsat").Type)
}

func TestOpenSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "gsat.db")
	db, err := Open(ParseLocation(path), nil)
	require.NoError(t, err)
	defer Close(db)

	repo := NewPacketRepository(db, "Raw")
	require.NoError(t, repo.Migrate())
	assert.FileExists(t, path)

	_, err = Open(Config{Type: "oracle"}, nil)
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestPacketRepository(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	repo := NewPacketRepository(db, "")

	t0 := time.Date(2020, 7, 14, 12, 0, 0, 0, time.UTC)
	p := &Packet{T: t0, Addr: "10.0.0.1", Port: 4321, Body: []byte{1, 0, 0}}
	require.NoError(t, repo.Save(ctx, p))
	assert.NotEmpty(t, p.ID)
	require.NoError(t, repo.Save(ctx, &Packet{T: t0.Add(time.Hour), Body: []byte{2}}))

	got, err := repo.List(ctx, t0.Add(time.Minute), 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []byte{2}, got[0].Body)
}

func TestFixRepositoryReplace(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	repo := NewFixRepository(db, "")

	t0 := time.Date(2020, 7, 14, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Save(ctx, fixAt("300234068117290", t0, 44, -124)))
	require.NoError(t, repo.Save(ctx, fixAt("300234068117290", t0, 45, -125)))

	got, err := repo.Recent(ctx, FixQuery{IMEI: "300234068117290"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 45.0, *got[0].Latitude)
}

func TestFixRepositoryRecent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	repo := NewFixRepository(db, "")

	t0 := time.Date(2020, 7, 14, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Save(ctx, fixAt("A00000000000001", t0.Add(time.Duration(i)*time.Minute), 44, -124)))
		require.NoError(t, repo.Save(ctx, fixAt("B00000000000002", t0.Add(time.Duration(i)*time.Minute), 10, 10)))
	}
	require.NoError(t, repo.Save(ctx, &Fix{IMEI: "A00000000000001", T: t0.Add(time.Hour)}))

	got, err := repo.Recent(ctx, FixQuery{IMEI: "A00000000000001", Limit: 3, PositionOnly: true})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, got[0].T.Equal(t0.Add(4*time.Minute)))
	assert.True(t, got[2].T.Equal(t0.Add(2*time.Minute)))

	since := t0.Add(3 * time.Minute)
	got, err = repo.Recent(ctx, FixQuery{IMEI: "A00000000000001", Since: &since})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestNewFix(t *testing.T) {
	session := time.Date(2020, 7, 14, 12, 0, 0, 0, time.UTC)
	hdr, err := sbd.Header{CDR: 9, IMEI: "300234068117290", MOMSN: 3, SessionTime: session}.Encode()
	require.NoError(t, err)
	raw := sbd.Encode(hdr,
		sbd.LocationElement{Latitude: 44, Longitude: -124, RadiusKM: 4}.Encode(),
		sbd.GPS18{T: session.Add(-time.Minute), Latitude: 44.5, Longitude: -124.5, Battery: 90}.Encode())
	msg, err := sbd.Parse(raw)
	require.NoError(t, err)

	f, err := NewFix(msg, session.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "300234068117290", f.IMEI)
	assert.True(t, f.T.Equal(session.Add(-time.Minute)))
	assert.Equal(t, int64(9), *f.CDR)
	assert.Equal(t, 3, *f.MOMSN)
	assert.Equal(t, int64(4000), *f.RadiusMO)
	assert.InDelta(t, 44.5, *f.Latitude, 1e-5)
	assert.Equal(t, 90.0, *f.Battery)
	assert.True(t, f.HasPosition())

	_, err = NewFix(&sbd.Message{}, session)
	assert.ErrorIs(t, err, ErrNotSavable)
}

func TestGliderRepository(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	repo := NewGliderRepository(db)

	_, err := repo.Latest(ctx, "osusim")
	assert.ErrorIs(t, err, ErrStateNotFound)

	t0 := time.Date(2020, 7, 14, 12, 0, 0, 0, time.UTC)
	lat, lon := 44.0, -124.0
	require.NoError(t, repo.Save(ctx, &GliderState{Glider: "osusim", T: t0, Lat: &lat, Lon: &lon}))
	lat2 := 44.1
	require.NoError(t, repo.Save(ctx, &GliderState{Glider: "osusim", T: t0.Add(time.Hour), Lat: &lat2, Lon: &lon}))
	require.NoError(t, repo.Save(ctx, &GliderState{Glider: "other", T: t0.Add(2 * time.Hour)}))

	s, err := repo.Latest(ctx, "osusim")
	require.NoError(t, err)
	assert.True(t, s.T.Equal(t0.Add(time.Hour)))
	assert.Equal(t, 44.1, *s.Lat)
	assert.Nil(t, s.Speed)
}

func TestWaypointRepository(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	repo := NewWaypointRepository(db)

	_, err := repo.LatestPlan(ctx, "osusim")
	assert.ErrorIs(t, err, ErrPlanNotFound)

	t0 := time.Date(2020, 7, 14, 12, 0, 0, 0, time.UTC)
	mk := func(t time.Time, n int) []PlannedWaypoint {
		var legs []PlannedWaypoint
		for i := 0; i < n; i++ {
			legs = append(legs, PlannedWaypoint{Glider: "osusim", T: t, Seq: i, PatternIndex: (i + 1) % 4, Lat: 44, Lon: -124})
		}
		return legs
	}
	require.NoError(t, repo.SavePlan(ctx, mk(t0, 3)))
	require.NoError(t, repo.SavePlan(ctx, mk(t0.Add(time.Hour), 2)))
	require.NoError(t, repo.SavePlan(ctx, nil))

	legs, err := repo.LatestPlan(ctx, "osusim")
	require.NoError(t, err)
	require.Len(t, legs, 2)
	assert.Equal(t, 0, legs[0].Seq)
	assert.Equal(t, 1, legs[1].Seq)
	assert.True(t, legs[0].T.Equal(t0.Add(time.Hour)))
}

// **Feature: drifter-follow, Property 3: Recent fixes are newest first and bounded**
// For any set of stored fixes and any limit, Recent returns at most limit rows
// of the requested IMEI in strictly decreasing time order.
// 对于任意已存储的定位与任意上限，Recent 返回不超过上限的指定 IMEI 记录，且时间严格递减。
func TestProperty_RecentOrdering(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	repo := NewFixRepository(db, "")
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.Rng.Seed(42)
	properties := gopter.NewProperties(parameters)

	t0 := time.Date(2020, 7, 14, 0, 0, 0, 0, time.UTC)
	properties.Property("Recent is ordered, filtered and bounded", prop.ForAll(
		func(offsets []int, limit int) bool {
			if err := db.Exec("DELETE FROM MOM").Error; err != nil {
				return false
			}
			for i, off := range offsets {
				imei := "A00000000000001"
				if i%3 == 0 {
					imei = "B00000000000002"
				}
				if err := repo.Save(ctx, fixAt(imei, t0.Add(time.Duration(off)*time.Second), 44, -124)); err != nil {
					return false
				}
			}
			got, err := repo.Recent(ctx, FixQuery{IMEI: "A00000000000001", Limit: limit})
			if err != nil || len(got) > limit {
				return false
			}
			for i, f := range got {
				if f.IMEI != "A00000000000001" {
					return false
				}
				if i > 0 && !f.T.Before(got[i-1].T) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 86400)),
		gen.IntRange(1, 10),
	))

	properties.TestingRun(t)
}
