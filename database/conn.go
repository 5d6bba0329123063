/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"fmt"
	"sync"

	"github.com/uptrace/bun"

	"github.com/tomoncle/fcl/session"
)

var (
	globalMu      sync.RWMutex
	globalFactory *BaseDatabaseFactory
)

// InitDB connects the process wide database described by cfg, replacing a
// previous one, and runs migrations when the config asks for it.
func InitDB(cfg *Config) (*bun.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	return InitDatabaseWithOptions(cfg, cfg.DataMigrateConfig.EnableMigrateOnStartup)
}

func InitDatabaseWithOptions(cfg *Config, runMigrations bool) (*bun.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	factory := NewDatabaseFactory()
	if _, err := factory.CreateFromConfig(&cfg.ConnectionConfig); err != nil {
		return nil, fmt.Errorf("failed to create database manager: %w", err)
	}
	if err := factory.InitializeDatabase(context.Background(), runMigrations); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	db := factory.GetDB()
	db.RegisterModel(RegisteredModelInstances()...)

	globalMu.Lock()
	prev := globalFactory
	globalFactory = factory
	globalMu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
	return db, nil
}

func GetDatabaseFactory() *BaseDatabaseFactory {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalFactory
}

// GetDB returns the process wide pool, or nil before InitDB.
func GetDB() *bun.DB {
	if f := GetDatabaseFactory(); f != nil {
		return f.GetDB()
	}
	return nil
}

func GetDatabaseManager() AbstractDatabaseManager {
	if f := GetDatabaseFactory(); f != nil {
		return f.GetManager()
	}
	return nil
}

// OpenSession opens a session on the process wide pool.
func OpenSession(opts ...session.Option) (*session.Session, error) {
	f := GetDatabaseFactory()
	if f == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	return f.OpenSession(opts...)
}

// CloseDB closes the process wide pool.
func CloseDB() error {
	globalMu.Lock()
	f := globalFactory
	globalFactory = nil
	globalMu.Unlock()
	if f == nil {
		return nil
	}
	return f.Close()
}

func GetHealthStatus(ctx context.Context) *HealthStatus {
	if f := GetDatabaseFactory(); f != nil {
		return f.GetHealthStatus(ctx)
	}
	return &HealthStatus{LastError: "Database not initialized"}
}

func GetDatabaseStats() *DBStats {
	if f := GetDatabaseFactory(); f != nil {
		return f.GetStats()
	}
	return &DBStats{}
}

// RunMigrations migrates the process wide database.
func RunMigrations(ctx context.Context) error {
	m := GetDatabaseManager()
	if m == nil {
		return fmt.Errorf("database not initialized")
	}
	return m.RunMigrations(ctx)
}
