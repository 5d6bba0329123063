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

package fcl

import (
	"context"
	"database/sql"
	"errors"

	"github.com/tomoncle/fcl/database"
	"github.com/tomoncle/fcl/repository"
	"github.com/tomoncle/fcl/session"
	"github.com/tomoncle/fcl/types"
)

// Opener returns a fresh session for one unit of work.
type Opener func() (*session.Session, error)

// DefaultOpener opens sessions on the global database.
func DefaultOpener() (*session.Session, error) {
	return database.OpenSession()
}

type Service[T any] interface {
	// Get returns the entity with the given key, or nil.
	Get(ctx context.Context, key any) (*T, error)

	// All returns every entity.
	All(ctx context.Context) ([]*T, error)

	// List returns entities that match filter, ordered by orders.
	List(ctx context.Context, filter *types.QueryFilter, orders ...string) ([]*T, error)

	// Page returns one page of entities and the total match count.
	Page(ctx context.Context, page *types.PageRequest) (*types.PagedResult[T], error)

	// Save inserts items atomically.
	Save(ctx context.Context, items ...*T) error

	// Remove deletes items atomically.
	Remove(ctx context.Context, items ...*T) error

	// RemoveWhere deletes every entity matching filter.
	RemoveWhere(ctx context.Context, filter *types.QueryFilter) (int, error)

	// Update applies set to every entity matching filter.
	Update(ctx context.Context, set types.UpdateSet, filter *types.QueryFilter) (int, error)

	// Transaction runs fn in a local transaction, committing when fn
	// returns nil and rolling back otherwise.
	Transaction(ctx context.Context, fn func(ctx context.Context, repo repository.Repository[T]) error) error
}

type baseServiceImpl[T any] struct {
	open Opener
}

// NewService returns a Service that opens one session per call. A nil
// opener uses the global database.
func NewService[T any](open Opener) Service[T] {
	if open == nil {
		open = DefaultOpener
	}
	return &baseServiceImpl[T]{open: open}
}

// with runs fn on a repository bound to a fresh auto-commit session.
func (s *baseServiceImpl[T]) with(fn func(repo repository.Repository[T]) error) (err error) {
	sess, err := s.open()
	if err != nil {
		return err
	}
	repo := repository.New[T](sess, repository.OwnsSession())
	defer func() { err = errors.Join(err, repo.Dispose()) }()
	return fn(repo)
}

func (s *baseServiceImpl[T]) Get(ctx context.Context, key any) (item *T, err error) {
	err = s.with(func(repo repository.Repository[T]) error {
		item, err = repo.Get(ctx, key)
		return err
	})
	return item, err
}

func (s *baseServiceImpl[T]) All(ctx context.Context) ([]*T, error) {
	return s.List(ctx, nil)
}

func (s *baseServiceImpl[T]) List(ctx context.Context, filter *types.QueryFilter, orders ...string) (items []*T, err error) {
	err = s.with(func(repo repository.Repository[T]) error {
		items, err = repo.GetQuery(filter, orders...).List(ctx)
		return err
	})
	return items, err
}

func (s *baseServiceImpl[T]) Page(ctx context.Context, page *types.PageRequest) (result *types.PagedResult[T], err error) {
	err = s.with(func(repo repository.Repository[T]) error {
		result, err = repo.GetPagedListBy(ctx, page)
		return err
	})
	return result, err
}

func (s *baseServiceImpl[T]) Save(ctx context.Context, items ...*T) error {
	if len(items) == 0 {
		return nil
	}
	return s.with(func(repo repository.Repository[T]) error {
		_, err := repo.AddRange(ctx, items)
		return err
	})
}

func (s *baseServiceImpl[T]) Remove(ctx context.Context, items ...*T) error {
	if len(items) == 0 {
		return nil
	}
	return s.Transaction(ctx, func(ctx context.Context, repo repository.Repository[T]) error {
		for _, item := range items {
			if _, err := repo.Remove(ctx, item); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *baseServiceImpl[T]) RemoveWhere(ctx context.Context, filter *types.QueryFilter) (n int, err error) {
	err = s.with(func(repo repository.Repository[T]) error {
		change, err := repo.RemoveWhere(ctx, filter)
		n = change.Affected
		return err
	})
	return n, err
}

func (s *baseServiceImpl[T]) Update(ctx context.Context, set types.UpdateSet, filter *types.QueryFilter) (n int, err error) {
	err = s.with(func(repo repository.Repository[T]) error {
		n, err = repo.Update(ctx, set, filter)
		return err
	})
	return n, err
}

func (s *baseServiceImpl[T]) Transaction(ctx context.Context, fn func(ctx context.Context, repo repository.Repository[T]) error) error {
	return s.with(func(repo repository.Repository[T]) error {
		return runInTransaction(ctx, repo.Session(), func(ctx context.Context) error {
			return fn(ctx, repo)
		})
	})
}

// runInTransaction commits sess when fn succeeds and rolls it back otherwise.
func runInTransaction(ctx context.Context, sess *session.Session, fn func(ctx context.Context) error) error {
	if _, err := sess.BeginTransaction(ctx, sql.LevelDefault); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		return errors.Join(err, sess.RollbackTransaction(ctx))
	}
	return sess.CommitTransaction(ctx)
}
