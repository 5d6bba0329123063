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
	"iter"

	"github.com/tomoncle/fcl/session"
	"github.com/tomoncle/fcl/types"
)

type baseRepositoryImpl[E any] struct {
	session *session.Session
	owns    bool
}

// New binds a repository for E to s. Many repositories may share a session.
func New[E any](s *session.Session, opts ...Option) Repository[E] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &baseRepositoryImpl[E]{session: s, owns: o.ownsSession}
}

func (r *baseRepositoryImpl[E]) Session() *session.Session { return r.session }

func (r *baseRepositoryImpl[E]) store() (session.Store, error) {
	if err := r.session.Check(); err != nil {
		return nil, err
	}
	return r.session.Store(), nil
}

// model is the typed nil pointer the store reads the table from.
func (r *baseRepositoryImpl[E]) model() *E { return nil }

func (r *baseRepositoryImpl[E]) Add(ctx context.Context, item *E) (session.Change, error) {
	if item == nil {
		return session.Change{Kind: types.ChangeInsert}, nil
	}
	return r.AddRange(ctx, []*E{item})
}

func (r *baseRepositoryImpl[E]) AddRange(ctx context.Context, items []*E) (session.Change, error) {
	change := session.Change{Kind: types.ChangeInsert}
	staged := make([]any, 0, len(items))
	for _, item := range items {
		if item != nil {
			staged = append(staged, item)
		}
	}
	if len(staged) == 0 {
		return change, nil
	}
	st, err := r.store()
	if err != nil {
		return change, err
	}
	if err := st.Add(staged...); err != nil {
		return change, err
	}
	return r.session.Complete(ctx, types.ChangeInsert, len(staged))
}

// Remove attaches a detached item before staging its deletion.
func (r *baseRepositoryImpl[E]) Remove(ctx context.Context, item *E) (session.Change, error) {
	change := session.Change{Kind: types.ChangeDelete}
	if item == nil {
		return change, nil
	}
	st, err := r.store()
	if err != nil {
		return change, err
	}
	if !st.IsTracked(item) {
		if err := st.Attach(item); err != nil {
			return change, err
		}
	}
	if err := st.Remove(item); err != nil {
		return change, err
	}
	return r.session.Complete(ctx, types.ChangeDelete, 1)
}

// RemoveWhere deletes every matching row with one statement, without
// loading the rows.
func (r *baseRepositoryImpl[E]) RemoveWhere(ctx context.Context, filter *types.QueryFilter) (session.Change, error) {
	change := session.Change{Kind: types.ChangeDelete}
	if filter == nil {
		return change, nil
	}
	st, err := r.store()
	if err != nil {
		return change, err
	}
	n, err := st.DeleteWhere(ctx, r.model(), filter)
	if err != nil {
		return change, err
	}
	return r.session.Complete(ctx, types.ChangeDelete, n)
}

// Update applies set to every row matching filter and returns the number of
// affected rows. A nil filter or empty set updates nothing.
func (r *baseRepositoryImpl[E]) Update(ctx context.Context, set types.UpdateSet, filter *types.QueryFilter) (int, error) {
	if filter == nil || len(set) == 0 {
		return 0, nil
	}
	st, err := r.store()
	if err != nil {
		return 0, err
	}
	n, err := st.UpdateWhere(ctx, r.model(), set, filter)
	if err != nil {
		return 0, err
	}
	change, err := r.session.Complete(ctx, types.ChangeUpdate, n)
	return change.Affected, err
}

func (r *baseRepositoryImpl[E]) Get(ctx context.Context, key any) (*E, error) {
	if key == nil {
		return nil, nil
	}
	return r.GetByKeys(ctx, key)
}

// GetByKeys looks up a composite primary key, values in key column order.
func (r *baseRepositoryImpl[E]) GetByKeys(ctx context.Context, keys ...any) (*E, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	for _, k := range keys {
		if k == nil {
			return nil, nil
		}
	}
	st, err := r.store()
	if err != nil {
		return nil, err
	}
	found, err := st.Find(ctx, r.model(), keys...)
	if err != nil || found == nil {
		return nil, err
	}
	return found.(*E), nil
}

// Single returns the only row matching filter, or ErrAmbiguousResult when
// there is more than one.
func (r *baseRepositoryImpl[E]) Single(ctx context.Context, filter *types.QueryFilter) (*E, error) {
	if filter == nil {
		return nil, nil
	}
	items, err := r.GetQuery(filter).Take(2).List(ctx)
	if err != nil {
		return nil, err
	}
	switch len(items) {
	case 0:
		return nil, nil
	case 1:
		return items[0], nil
	default:
		return nil, ErrAmbiguousResult
	}
}

func (r *baseRepositoryImpl[E]) First(ctx context.Context, filter *types.QueryFilter, orders ...string) (*E, error) {
	if filter == nil {
		return nil, nil
	}
	return r.GetQuery(filter, orders...).First(ctx)
}

// Count counts rows matching filter; nil counts every row.
func (r *baseRepositoryImpl[E]) Count(ctx context.Context, filter *types.QueryFilter) (int, error) {
	return r.GetQuery(filter).Count(ctx)
}

func (r *baseRepositoryImpl[E]) Exists(ctx context.Context, filter *types.QueryFilter) (bool, error) {
	return r.GetQuery(filter).Exists(ctx)
}

func (r *baseRepositoryImpl[E]) GetAll(ctx context.Context) iter.Seq2[*E, error] {
	return r.GetQuery(nil).All(ctx)
}

func (r *baseRepositoryImpl[E]) GetList(ctx context.Context, filter *types.QueryFilter, orders ...string) iter.Seq2[*E, error] {
	return r.GetQuery(filter, orders...).All(ctx)
}

// GetPagedList counts every row matching filter, then loads the window of
// the ordered result. pageIndex below 1 reads as 1 and pageSize below 1 as
// types.DefaultPageSize.
func (r *baseRepositoryImpl[E]) GetPagedList(ctx context.Context, pageIndex, pageSize int, filter *types.QueryFilter, orders ...string) (*types.PagedResult[E], error) {
	return r.GetPagedListBy(ctx, types.NewPageRequest(pageIndex, pageSize, filter, orders))
}

func (r *baseRepositoryImpl[E]) GetPagedListBy(ctx context.Context, page *types.PageRequest) (*types.PagedResult[E], error) {
	if page == nil {
		page = types.NewDefaultPageRequest(1, types.DefaultPageSize)
	}
	result := types.NewPagedResult[E](page.GetPage(), page.GetPageSize())
	q := r.query(page.Spec())

	total, err := q.Count(ctx)
	if err != nil {
		return nil, err
	}
	result.TotalCount = total
	if total == 0 || page.GetOffset() >= total {
		return result, nil
	}
	items, err := q.List(ctx)
	if err != nil {
		return nil, err
	}
	result.Items = items
	return result, nil
}

func (r *baseRepositoryImpl[E]) GetQuery(filter *types.QueryFilter, orders ...string) *Query[E] {
	return r.query(types.NewQuerySpec(filter, orders...))
}

func (r *baseRepositoryImpl[E]) query(spec *types.QuerySpec) *Query[E] {
	return &Query[E]{session: r.session, spec: spec}
}

// Dispose disposes the session only when the repository owns it.
func (r *baseRepositoryImpl[E]) Dispose() error {
	if !r.owns {
		return nil
	}
	return r.session.Dispose()
}
