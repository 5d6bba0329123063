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

// Package testdb opens throwaway in-memory SQLite databases for tests.
package testdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type Item struct {
	bun.BaseModel `bun:"table:items,alias:i"`

	ID    int64  `bun:"id,pk" json:"id"`
	Name  string `bun:"name,notnull" json:"name"`
	Group string `bun:"grp" json:"group"`
	Score int    `bun:"score" json:"score"`
}

type Membership struct {
	bun.BaseModel `bun:"table:memberships,alias:m"`

	UserID  int64  `bun:"user_id,pk" json:"user_id"`
	GroupID int64  `bun:"group_id,pk" json:"group_id"`
	Role    string `bun:"role" json:"role"`
}

var seq atomic.Int64

// Open returns a bun DB over a private in-memory database holding the given
// tables, Item and Membership when none are named. The pool is pinned to a
// single connection, so tests must not read through a second handle while a
// transaction is open.
func Open(t testing.TB, models ...interface{}) *bun.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, seq.Add(1))

	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	if len(models) == 0 {
		models = []interface{}{(*Item)(nil), (*Membership)(nil)}
	}
	for _, model := range models {
		_, err := db.NewCreateTable().Model(model).IfNotExists().Exec(context.Background())
		require.NoError(t, err)
	}
	return db
}

// SeedItems inserts n items with ids 1..n, scores equal to their id and
// alternating groups "odd" and "even".
func SeedItems(t testing.TB, db *bun.DB, n int) []*Item {
	t.Helper()
	items := make([]*Item, 0, n)
	for i := 1; i <= n; i++ {
		group := "odd"
		if i%2 == 0 {
			group = "even"
		}
		items = append(items, &Item{ID: int64(i), Name: fmt.Sprintf("item-%02d", i), Group: group, Score: i})
	}
	if n > 0 {
		_, err := db.NewInsert().Model(&items).Exec(context.Background())
		require.NoError(t, err)
	}
	return items
}

// CountRows counts rows of model straight from the pool.
func CountRows(t testing.TB, db *bun.DB, model interface{}) int {
	t.Helper()
	n, err := db.NewSelect().Model(model).Count(context.Background())
	require.NoError(t, err)
	return n
}
