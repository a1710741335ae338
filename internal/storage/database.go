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

// Package storage persists received packets, decoded fixes, glider dialog
// state and generated waypoint plans through GORM.
// storage 包通过 GORM 持久化接收的数据包、解码的定位、滑翔机对话状态和航点计划。
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

// DatabaseType constants.
// 数据库类型常量
const (
	DatabaseTypeSQLite   = "sqlite"
	DatabaseTypeMySQL    = "mysql"
	DatabaseTypePostgres = "postgres"
)

// Config selects and tunes a database connection.
// Config 选择并配置数据库连接。
type Config struct {
	// Type is sqlite, mysql or postgres. Empty means sqlite.
	Type string `mapstructure:"type"`
	// Path is the SQLite file.
	Path string `mapstructure:"path"`
	// DSN is the driver connection string for mysql and postgres.
	DSN string `mapstructure:"dsn"`
	// LogLevel is the GORM log level: silent, error, warn or info.
	LogLevel        string        `mapstructure:"log_level"`
	MaxIdleConn     int           `mapstructure:"max_idle_conn"`
	MaxOpenConn     int           `mapstructure:"max_open_conn"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// ParseLocation turns a --db style argument into a Config. "mysql://" and
// "postgres://" prefixes select a server, anything else is a SQLite file.
// ParseLocation 将 --db 参数解析为 Config：mysql:// 与 postgres:// 前缀选择服务器，其余视为 SQLite 文件。
func ParseLocation(loc string) Config {
	switch {
	case strings.HasPrefix(loc, "mysql://"):
		return Config{Type: DatabaseTypeMySQL, DSN: strings.TrimPrefix(loc, "mysql://"), LogLevel: "silent"}
	case strings.HasPrefix(loc, "postgres://"), strings.HasPrefix(loc, "postgresql://"):
		return Config{Type: DatabaseTypePostgres, DSN: loc, LogLevel: "silent"}
	default:
		return Config{Type: DatabaseTypeSQLite, Path: loc, LogLevel: "silent"}
	}
}

// Open connects to the configured database.
// Open 根据配置连接数据库，默认使用 SQLite。
func Open(cfg Config, log *zap.Logger) (*gorm.DB, error) {
	if log == nil {
		log = zap.NewNop()
	}

	dbType := cfg.Type
	if dbType == "" {
		dbType = DatabaseTypeSQLite
	}

	var dialector gorm.Dialector
	switch dbType {
	case DatabaseTypeSQLite:
		path := cfg.Path
		if path == "" {
			return nil, fmt.Errorf("storage: sqlite path is required")
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("storage: create %s: %w", dir, err)
			}
		}
		dialector = sqlite.Open(path)
	case DatabaseTypeMySQL:
		dialector = mysql.Open(cfg.DSN)
	case DatabaseTypePostgres:
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, dbType)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLogger(cfg.LogLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: connect %s: %w", dbType, err)
	}

	// 注入 OpenTelemetry 追踪
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		log.Warn("Failed to install tracing plugin", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("storage: underlying connection: %w", err)
	}
	if dbType == DatabaseTypeSQLite {
		// One writer at a time avoids SQLITE_BUSY from concurrent goroutines
		sqlDB.SetMaxOpenConns(1)
	} else {
		if cfg.MaxIdleConn > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConn)
		}
		if cfg.MaxOpenConn > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConn)
		}
		if cfg.ConnMaxLifetime > 0 {
			sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
	}

	log.Info("Database connected", zap.String("type", dbType), zap.String("path", cfg.Path))
	return db, nil
}

// Close releases the connection pool behind db.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func gormLogger(level string) logger.Interface {
	var logLevel logger.LogLevel
	switch level {
	case "error":
		logLevel = logger.Error
	case "warn":
		logLevel = logger.Warn
	case "info":
		logLevel = logger.Info
	default:
		logLevel = logger.Silent
	}
	return logger.Default.LogMode(logLevel)
}
