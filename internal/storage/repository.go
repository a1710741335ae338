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
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PacketRepository stores raw packets.
type PacketRepository struct {
	db    *gorm.DB
	table string
}

// NewPacketRepository creates a PacketRepository writing to table, DefaultRawTable when empty.
func NewPacketRepository(db *gorm.DB, table string) *PacketRepository {
	if table == "" {
		table = DefaultRawTable
	}
	return &PacketRepository{db: db, table: table}
}

// Migrate creates or updates the table.
func (r *PacketRepository) Migrate() error {
	return r.db.Table(r.table).AutoMigrate(&Packet{})
}

// Save inserts p, assigning an ID when it has none.
func (r *PacketRepository) Save(ctx context.Context, p *Packet) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return r.db.WithContext(ctx).Table(r.table).Create(p).Error
}

// List returns packets received at or after since, oldest first.
func (r *PacketRepository) List(ctx context.Context, since time.Time, limit int) ([]Packet, error) {
	var out []Packet
	q := r.db.WithContext(ctx).Table(r.table).Where("t >= ?", since).Order("t")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// FixRepository stores decoded fixes.
// FixRepository 存储解码后的定位。
type FixRepository struct {
	db    *gorm.DB
	table string
}

// NewFixRepository creates a FixRepository on table, DefaultMOMTable when empty.
func NewFixRepository(db *gorm.DB, table string) *FixRepository {
	if table == "" {
		table = DefaultMOMTable
	}
	return &FixRepository{db: db, table: table}
}

// Migrate creates or updates the table.
func (r *FixRepository) Migrate() error {
	return r.db.Table(r.table).AutoMigrate(&Fix{})
}

// Save inserts f, replacing any row with the same IMEI and time.
// Save 插入 f，若 IMEI 与时间相同则替换。
func (r *FixRepository) Save(ctx context.Context, f *Fix) error {
	return r.db.WithContext(ctx).Table(r.table).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(f).Error
}

// FixQuery filters Recent.
type FixQuery struct {
	// IMEI restricts to one beacon when set.
	IMEI string
	// Since restricts to fixes at or after this time when set.
	Since *time.Time
	// Limit caps the number of rows, newest first.
	Limit int
	// PositionOnly skips rows without a GPS position.
	PositionOnly bool
}

// Recent returns fixes newest first.
// Recent 按时间倒序返回定位。
func (r *FixRepository) Recent(ctx context.Context, q FixQuery) ([]Fix, error) {
	tx := r.db.WithContext(ctx).Table(r.table)
	if q.IMEI != "" {
		tx = tx.Where("IMEI = ?", q.IMEI)
	}
	if q.Since != nil {
		tx = tx.Where("t >= ?", q.Since.UTC())
	}
	if q.PositionOnly {
		tx = tx.Where("latitude IS NOT NULL AND longitude IS NOT NULL")
	}
	tx = tx.Order("t DESC")
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	var out []Fix
	err := tx.Find(&out).Error
	return out, err
}

// GliderRepository stores dialog derived glider state.
type GliderRepository struct {
	db *gorm.DB
}

// NewGliderRepository creates a GliderRepository.
func NewGliderRepository(db *gorm.DB) *GliderRepository {
	return &GliderRepository{db: db}
}

// Migrate creates or updates the table.
func (r *GliderRepository) Migrate() error {
	return r.db.AutoMigrate(&GliderState{})
}

// Save records s, replacing an earlier record at the same time.
func (r *GliderRepository) Save(ctx context.Context, s *GliderState) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(s).Error
}

// Latest returns the newest state for glider.
// Returns ErrStateNotFound if nothing has been recorded.
func (r *GliderRepository) Latest(ctx context.Context, glider string) (*GliderState, error) {
	var s GliderState
	err := r.db.WithContext(ctx).Where("name = ?", glider).Order("t DESC").First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStateNotFound
		}
		return nil, err
	}
	return &s, nil
}

// WaypointRepository stores generated waypoint plans.
type WaypointRepository struct {
	db *gorm.DB
}

// NewWaypointRepository creates a WaypointRepository.
func NewWaypointRepository(db *gorm.DB) *WaypointRepository {
	return &WaypointRepository{db: db}
}

// Migrate creates or updates the table.
func (r *WaypointRepository) Migrate() error {
	return r.db.AutoMigrate(&PlannedWaypoint{})
}

// SavePlan stores every leg of one plan in a single transaction.
// SavePlan 在单个事务中保存计划的全部航段。
func (r *WaypointRepository) SavePlan(ctx context.Context, legs []PlannedWaypoint) error {
	if len(legs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&legs).Error
	})
}

// LatestPlan returns the legs of the most recent plan for glider, in order.
// Returns ErrPlanNotFound if none has been stored.
func (r *WaypointRepository) LatestPlan(ctx context.Context, glider string) ([]PlannedWaypoint, error) {
	var newest PlannedWaypoint
	err := r.db.WithContext(ctx).Where("glider = ?", glider).Order("t DESC").First(&newest).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	var legs []PlannedWaypoint
	err = r.db.WithContext(ctx).
		Where("glider = ? AND t = ?", glider, newest.T).
		Order("seq").
		Find(&legs).Error
	return legs, err
}
