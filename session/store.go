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

package session

import (
	"context"
	"database/sql"

	"github.com/tomoncle/fcl/types"
)

// Tracker stages entity changes in the persistence context until they are
// flushed by SaveChanges or dropped by DiscardChanges.
type Tracker interface {
	Add(entities ...any) error
	Remove(entity any) error
	Attach(entity any) error
	IsTracked(entity any) bool
	SaveChanges(ctx context.Context) (int, error)
	DiscardChanges()
}

// Querier reads from the store. model is a typed nil pointer such as
// (*User)(nil) and dest a pointer to a slice of entity pointers.
type Querier interface {
	// Find returns the entity with the given primary key values, preferring a
	// tracked instance, or nil when there is none.
	Find(ctx context.Context, model any, keys ...any) (any, error)
	Select(ctx context.Context, dest any, spec *types.QuerySpec) error
	Count(ctx context.Context, model any, spec *types.QuerySpec) (int, error)
	Exists(ctx context.Context, model any, spec *types.QuerySpec) (bool, error)
}

// BulkWriter runs set-based statements directly against the store.
type BulkWriter interface {
	DeleteWhere(ctx context.Context, model any, filter *types.QueryFilter) (int, error)
	UpdateWhere(ctx context.Context, model any, set types.UpdateSet, filter *types.QueryFilter) (int, error)
}

// Transactor opens and closes the store-level transaction that staged and
// bulk work runs in while a session transaction is open.
type Transactor interface {
	Begin(ctx context.Context, opts *sql.TxOptions) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store is the persistence context a Session owns.
type Store interface {
	Tracker
	Querier
	BulkWriter
	Transactor
	Close() error
}
