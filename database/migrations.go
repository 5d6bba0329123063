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
	"os"
	"sort"
	"time"

	"github.com/uptrace/bun"
)

// MigrationManager creates the tables of registered models and records
// which migration versions have been applied.
type MigrationManager struct {
	db     *bun.DB
	logger Logger
	items  []MigrationItem
}

// Migration is a row of the fcl_migrations bookkeeping table.
type Migration struct {
	bun.BaseModel `bun:"table:fcl_migrations"`

	Version     string    `bun:"version,pk"`
	Name        string    `bun:"name"`
	AppliedAt   time.Time `bun:"applied_at"`
	Description string    `bun:"description"`
}

// MigrationFunc is a migration step executed within a transaction.
type MigrationFunc func(ctx context.Context, db bun.IDB) error

type MigrationItem struct {
	Version     string
	Name        string
	Description string
	Up          MigrationFunc
}

func NewMigrationManager(db *bun.DB, logger Logger) *MigrationManager {
	if logger == nil {
		logger = GetLogger()
	}
	mm := &MigrationManager{db: db, logger: componentLogger(logger, "migrations")}
	mm.items = []MigrationItem{{
		Version:     "001",
		Name:        "create_registered_tables",
		Description: "Create tables for registered models",
		Up: func(ctx context.Context, db bun.IDB) error {
			return CreateTables(ctx, db, RegisteredModelInstances()...)
		},
	}}
	return mm
}

// Add appends a migration step. Steps run in ascending version order.
func (mm *MigrationManager) Add(item MigrationItem) {
	mm.items = append(mm.items, item)
}

// RunMigrations applies every step whose version is not recorded yet. Query
// hooks are muted unless BUNDEBUG_MIGRATION is set.
func (mm *MigrationManager) RunMigrations(ctx context.Context) error {
	if mm.db == nil {
		return errNotConnected
	}
	if _, ok := os.LookupEnv("BUNDEBUG_MIGRATION"); !ok {
		EnableBunSqlSilent(true)
		defer EnableBunSqlSilent(false)
	}

	if _, err := mm.db.NewCreateTable().Model((*Migration)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", wrapStoreError("create table", err))
	}

	items := append([]MigrationItem(nil), mm.items...)
	sort.SliceStable(items, func(i, j int) bool { return items[i].Version < items[j].Version })
	for _, item := range items {
		if err := mm.apply(ctx, item); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", item.Version, err)
		}
	}
	mm.logger.Info("Database migrations completed")
	return nil
}

func (mm *MigrationManager) apply(ctx context.Context, item MigrationItem) error {
	done, err := mm.db.NewSelect().Model((*Migration)(nil)).Where("version = ?", item.Version).Exists(ctx)
	if err != nil {
		return wrapStoreError("select migration", err)
	}
	if done {
		return nil
	}
	err = mm.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := item.Up(ctx, tx); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(&Migration{
			Version:     item.Version,
			Name:        item.Name,
			AppliedAt:   time.Now(),
			Description: item.Description,
		}).Exec(ctx)
		return wrapStoreError("record migration", err)
	})
	if err != nil {
		return err
	}
	mm.logger.Info("Migration executed successfully", "version", item.Version, "name", item.Name)
	return nil
}

// AppliedMigrations lists recorded versions in ascending order.
func (mm *MigrationManager) AppliedMigrations(ctx context.Context) ([]Migration, error) {
	var out []Migration
	err := mm.db.NewSelect().Model(&out).Order("version ASC").Scan(ctx)
	return out, wrapStoreError("select migrations", err)
}

// CreateTables creates a table per model if it does not exist yet.
func CreateTables(ctx context.Context, db bun.IDB, models ...interface{}) error {
	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table %T: %w", model, wrapStoreError("create table", err))
		}
	}
	return nil
}
