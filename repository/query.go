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

// Query is an immutable, composable read over E. Builders return a new
// Query; nothing runs until a terminal method or iteration.
type Query[E any] struct {
	session *session.Session
	spec    *types.QuerySpec
}

func (q *Query[E]) with(spec *types.QuerySpec) *Query[E] {
	return &Query[E]{session: q.session, spec: spec}
}

// Where narrows the query; filters combine with AND.
func (q *Query[E]) Where(filter *types.QueryFilter) *Query[E] {
	return q.with(q.spec.Where(filter))
}

func (q *Query[E]) OrderBy(orders ...string) *Query[E] {
	return q.with(q.spec.OrderBy(orders...))
}

func (q *Query[E]) Skip(n int) *Query[E] {
	return q.with(q.spec.Skip(n))
}

func (q *Query[E]) Take(n int) *Query[E] {
	return q.with(q.spec.Take(n))
}

// Spec returns a copy of the accumulated specification.
func (q *Query[E]) Spec() *types.QuerySpec {
	return q.spec.Clone()
}

func (q *Query[E]) store() (session.Store, error) {
	if err := q.session.Check(); err != nil {
		return nil, err
	}
	return q.session.Store(), nil
}

// List runs the query and returns every row.
func (q *Query[E]) List(ctx context.Context) ([]*E, error) {
	st, err := q.store()
	if err != nil {
		return nil, err
	}
	items := make([]*E, 0)
	if q.spec.Empty() {
		return items, nil
	}
	if err := st.Select(ctx, &items, q.spec); err != nil {
		return nil, err
	}
	return items, nil
}

// All returns a sequence that runs the query each time it is iterated. A
// failing query yields a single (nil, err) pair.
func (q *Query[E]) All(ctx context.Context) iter.Seq2[*E, error] {
	return func(yield func(*E, error) bool) {
		items, err := q.List(ctx)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, item := range items {
			if !yield(item, nil) {
				return
			}
		}
	}
}

func (q *Query[E]) First(ctx context.Context) (*E, error) {
	items, err := q.Take(1).List(ctx)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return items[0], nil
}

// Count ignores ordering and window.
func (q *Query[E]) Count(ctx context.Context) (int, error) {
	st, err := q.store()
	if err != nil {
		return 0, err
	}
	return st.Count(ctx, (*E)(nil), q.spec)
}

func (q *Query[E]) Exists(ctx context.Context) (bool, error) {
	st, err := q.store()
	if err != nil {
		return false, err
	}
	return st.Exists(ctx, (*E)(nil), q.spec)
}
