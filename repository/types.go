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

package repository

import (
	"context"
	"errors"
	"iter"

	"github.com/tomoncle/fcl/session"
	"github.com/tomoncle/fcl/types"
)

// ErrAmbiguousResult is returned by Single when more than one row matches.
var ErrAmbiguousResult = errors.New("sequence contains more than one matching element")

// CrudRepository stages inserts and deletes and runs set-based statements.
// Every mutation returns once the session decided to flush or stage it.
type CrudRepository[E any] interface {
	Add(ctx context.Context, item *E) (session.Change, error)
	AddRange(ctx context.Context, items []*E) (session.Change, error)
	Remove(ctx context.Context, item *E) (session.Change, error)
	RemoveWhere(ctx context.Context, filter *types.QueryFilter) (session.Change, error)
	Update(ctx context.Context, set types.UpdateSet, filter *types.QueryFilter) (int, error)
}

// LookupRepository reads single entities and aggregates. A nil result with a
// nil error means nothing matched.
type LookupRepository[E any] interface {
	Get(ctx context.Context, key any) (*E, error)
	GetByKeys(ctx context.Context, keys ...any) (*E, error)
	Single(ctx context.Context, filter *types.QueryFilter) (*E, error)
	First(ctx context.Context, filter *types.QueryFilter, orders ...string) (*E, error)
	Count(ctx context.Context, filter *types.QueryFilter) (int, error)
	Exists(ctx context.Context, filter *types.QueryFilter) (bool, error)
}

// ListRepository returns lazy sequences that query when iterated.
type ListRepository[E any] interface {
	GetAll(ctx context.Context) iter.Seq2[*E, error]
	GetList(ctx context.Context, filter *types.QueryFilter, orders ...string) iter.Seq2[*E, error]
	GetQuery(filter *types.QueryFilter, orders ...string) *Query[E]
}

// PageQueryRepository returns one ordered window plus the total match count.
type PageQueryRepository[E any] interface {
	GetPagedList(ctx context.Context, pageIndex, pageSize int, filter *types.QueryFilter, orders ...string) (*types.PagedResult[E], error)
	GetPagedListBy(ctx context.Context, page *types.PageRequest) (*types.PagedResult[E], error)
}

// Repository is the full facade for entity type E.
type Repository[E any] interface {
	CrudRepository[E]
	LookupRepository[E]
	ListRepository[E]
	PageQueryRepository[E]
	Session() *session.Session
	Dispose() error
}

// Option configures a repository.
type Option func(*options)

type options struct {
	ownsSession bool
}

// OwnsSession makes Dispose dispose the bound session. Without it Dispose
// leaves the session alone.
func OwnsSession() Option {
	return func(o *options) { o.ownsSession = true }
}
