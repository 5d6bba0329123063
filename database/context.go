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
	"database/sql"
	"errors"
	"fmt"
	"reflect"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"

	"github.com/tomoncle/fcl/session"
	"github.com/tomoncle/fcl/types"
)

// ErrContextClosed is returned by every Context operation after Close.
var ErrContextClosed = errors.New("database context closed")

var _ session.Store = (*Context)(nil)

// Context is a bun backed session.Store. Entities passed to Add, Remove and
// Attach are tracked by pointer identity and written on SaveChanges; reads
// and bulk statements run immediately on the open transaction, or on the
// pool when none is open. A Context is not safe for concurrent use.
//
// Rows loaded by Find stay tracked until Close, DiscardChanges, Detach or a
// bulk statement on their type, and Find scans the tracked entries of its
// type. Keep a Context per unit of work; long-lived ones should Detach what
// they no longer need.
type Context struct {
	db      *bun.DB
	tx      *bun.Tx
	tracker *changeTracker
	logger  Logger
	closed  bool
}

// ContextOption configures a Context.
type ContextOption func(*Context)

func WithContextLogger(logger Logger) ContextOption {
	return func(c *Context) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewContext creates a Context over db. Closing the Context never closes db.
func NewContext(db *bun.DB, opts ...ContextOption) *Context {
	c := &Context{
		db:      db,
		tracker: newChangeTracker(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = GetLogger()
	}
	c.logger = componentLogger(c.logger, "context")
	return c
}

// DB returns the underlying pool.
func (c *Context) DB() *bun.DB { return c.db }

// IDB returns the open transaction, or the pool when none is open.
func (c *Context) IDB() bun.IDB {
	if c.tx != nil {
		return c.tx
	}
	return c.db
}

// InTransaction reports whether a store transaction is open.
func (c *Context) InTransaction() bool { return c.tx != nil }

func (c *Context) check() error {
	if c.closed {
		return ErrContextClosed
	}
	return nil
}

func (c *Context) Add(entities ...any) error {
	if err := c.check(); err != nil {
		return err
	}
	for _, entity := range entities {
		if err := checkEntity(entity); err != nil {
			return err
		}
	}
	for _, entity := range entities {
		c.tracker.track(entity, entryAdded)
	}
	return nil
}

// Remove marks a tracked entity for deletion. An untracked instance whose
// primary key matches a tracked one removes the tracked one. Removing an
// entity that was added but never flushed cancels the insert.
func (c *Context) Remove(entity any) error {
	if err := c.check(); err != nil {
		return err
	}
	if err := checkEntity(entity); err != nil {
		return err
	}
	e, ok := c.tracker.get(entity)
	if !ok {
		if e = c.trackedByKey(entity); e == nil {
			return fmt.Errorf("remove %T: entity is not tracked", entity)
		}
	}
	if e.state == entryAdded {
		c.tracker.forget(e.entity)
		return nil
	}
	e.state = entryDeleted
	return nil
}

// Attach starts tracking entity as already persisted. Attaching a tracked
// entity, or one whose primary key is already tracked, is a no-op.
func (c *Context) Attach(entity any) error {
	if err := c.check(); err != nil {
		return err
	}
	if err := checkEntity(entity); err != nil {
		return err
	}
	if _, ok := c.tracker.get(entity); ok || c.trackedByKey(entity) != nil {
		return nil
	}
	c.tracker.track(entity, entryUnchanged)
	return nil
}

func (c *Context) trackedByKey(entity any) *entry {
	typ, table, err := c.table(entity)
	if err != nil || len(table.PKs) == 0 {
		return nil
	}
	v := reflect.ValueOf(entity).Elem()
	keys := make([]any, len(table.PKs))
	for i, pk := range table.PKs {
		keys[i] = v.FieldByIndex(pk.Index).Interface()
	}
	for _, e := range c.tracker.ofType(typ) {
		if matchKeys(e.entity, table.PKs, keys) {
			return e
		}
	}
	return nil
}

// Detach stops tracking entity. A pending insert or delete of it is
// dropped. Detaching an untracked entity is a no-op.
func (c *Context) Detach(entity any) {
	c.tracker.forget(entity)
}

// Tracked reports how many entities are tracked.
func (c *Context) Tracked() int {
	return len(c.tracker.order)
}

func (c *Context) IsTracked(entity any) bool {
	_, ok := c.tracker.get(entity)
	return ok
}

// SaveChanges writes pending inserts and deletes. Without an open
// transaction the batch runs in its own transaction, so it applies fully or
// not at all.
func (c *Context) SaveChanges(ctx context.Context) (int, error) {
	if err := c.check(); err != nil {
		return 0, err
	}
	pending := c.tracker.pending()
	if len(pending) == 0 {
		return 0, nil
	}

	var affected int
	flush := func(ctx context.Context, idb bun.IDB) error {
		affected = 0
		for _, e := range pending {
			var (
				res sql.Result
				err error
				op  string
			)
			switch e.state {
			case entryAdded:
				op = "insert"
				res, err = idb.NewInsert().Model(e.entity).Exec(ctx)
			case entryDeleted:
				op = "delete"
				res, err = idb.NewDelete().Model(e.entity).WherePK().Exec(ctx)
			}
			if err != nil {
				return wrapStoreError(op, err)
			}
			affected += rowsAffected(res)
		}
		return nil
	}

	var err error
	if c.tx != nil {
		err = c.statement(ctx, func() error { return flush(ctx, c.tx) })
	} else {
		err = c.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			return flush(ctx, tx)
		})
	}
	if err != nil {
		return 0, wrapStoreError("save changes", err)
	}
	c.tracker.accept(pending)
	c.logger.Debug("Changes saved", "entries", len(pending), "affected", affected, "in_tx", c.tx != nil)
	return affected, nil
}

const flushSavepoint = "fcl_save_changes"

// savepoint runs fn inside a savepoint of the open transaction and rolls
// back to it when fn fails, so a failed batch leaves no partial writes.
func (c *Context) savepoint(ctx context.Context, fn func() error) error {
	if _, err := c.tx.ExecContext(ctx, "SAVEPOINT "+flushSavepoint); err != nil {
		return wrapStoreError("savepoint", err)
	}
	if err := fn(); err != nil {
		if _, rerr := c.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+flushSavepoint); rerr != nil {
			return errors.Join(err, wrapStoreError("rollback to savepoint", rerr))
		}
		return err
	}
	if _, err := c.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+flushSavepoint); err != nil {
		return wrapStoreError("release savepoint", err)
	}
	return nil
}

// statement runs a single write, inside a savepoint when a transaction is
// open so that a failure keeps the transaction usable.
func (c *Context) statement(ctx context.Context, fn func() error) error {
	if c.tx == nil {
		return fn()
	}
	return c.savepoint(ctx, fn)
}

// DiscardChanges forgets every tracked entity.
func (c *Context) DiscardChanges() {
	c.tracker.reset()
}

// Find returns the entity of model's type with the given primary key, or nil
// when none exists. A tracked instance wins over the database row, and a
// tracked instance pending deletion reads as absent.
func (c *Context) Find(ctx context.Context, model any, keys ...any) (any, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	typ, table, err := c.table(model)
	if err != nil {
		return nil, err
	}
	if len(table.PKs) == 0 {
		return nil, fmt.Errorf("find %s: table has no primary key", table.Name)
	}
	if len(keys) != len(table.PKs) {
		return nil, fmt.Errorf("find %s: expected %d key values, got %d", table.Name, len(table.PKs), len(keys))
	}

	for _, e := range c.tracker.ofType(typ) {
		if matchKeys(e.entity, table.PKs, keys) {
			if e.state == entryDeleted {
				return nil, nil
			}
			return e.entity, nil
		}
	}

	dest := reflect.New(typ.Elem()).Interface()
	q := c.IDB().NewSelect().Model(dest)
	for i, pk := range table.PKs {
		q = q.Where("?TableAlias.? = ?", pk.SQLName, keys[i])
	}
	if err := q.Limit(1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapStoreError("find", err)
	}
	c.tracker.track(dest, entryUnchanged)
	return dest, nil
}

// Select scans the rows matched by spec into dest, a pointer to a slice of
// entity pointers.
func (c *Context) Select(ctx context.Context, dest any, spec *types.QuerySpec) error {
	if err := c.check(); err != nil {
		return err
	}
	if spec.Empty() {
		return nil
	}
	q := applySpec(c.IDB().NewSelect().Model(dest), spec, true)
	if err := q.Scan(ctx); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return wrapStoreError("select", err)
	}
	return nil
}

func (c *Context) Count(ctx context.Context, model any, spec *types.QuerySpec) (int, error) {
	if err := c.check(); err != nil {
		return 0, err
	}
	n, err := applySpec(c.IDB().NewSelect().Model(model), spec, false).Count(ctx)
	if err != nil {
		return 0, wrapStoreError("count", err)
	}
	return n, nil
}

func (c *Context) Exists(ctx context.Context, model any, spec *types.QuerySpec) (bool, error) {
	if err := c.check(); err != nil {
		return false, err
	}
	ok, err := applySpec(c.IDB().NewSelect().Model(model), spec, false).Exists(ctx)
	if err != nil {
		return false, wrapStoreError("exists", err)
	}
	return ok, nil
}

// DeleteWhere deletes every row matching filter with a single statement.
// Unchanged tracked entities of the same type are detached.
func (c *Context) DeleteWhere(ctx context.Context, model any, filter *types.QueryFilter) (int, error) {
	if err := c.check(); err != nil {
		return 0, err
	}
	if filter == nil || filter.Schema == "" {
		return 0, errors.New("delete where: filter is required")
	}
	var res sql.Result
	err := c.statement(ctx, func() (err error) {
		res, err = c.IDB().NewDelete().Model(model).Where(filter.Schema, filter.Args...).Exec(ctx)
		return err
	})
	if err != nil {
		return 0, wrapStoreError("delete where", err)
	}
	c.tracker.detachType(reflect.TypeOf(model))
	return rowsAffected(res), nil
}

// UpdateWhere applies set to every row matching filter with a single
// statement. Unchanged tracked entities of the same type are detached.
func (c *Context) UpdateWhere(ctx context.Context, model any, set types.UpdateSet, filter *types.QueryFilter) (int, error) {
	if err := c.check(); err != nil {
		return 0, err
	}
	if len(set) == 0 {
		return 0, errors.New("update where: no columns to set")
	}
	if filter == nil || filter.Schema == "" {
		return 0, errors.New("update where: filter is required")
	}
	q := c.IDB().NewUpdate().Model(model)
	for _, clause := range set {
		expr := clause.Expr
		if expr == "" {
			expr = "?"
		}
		args := append([]interface{}{bun.Ident(clause.Column)}, clause.Args...)
		q = q.Set("? = "+expr, args...)
	}
	var res sql.Result
	err := c.statement(ctx, func() (err error) {
		res, err = q.Where(filter.Schema, filter.Args...).Exec(ctx)
		return err
	})
	if err != nil {
		return 0, wrapStoreError("update where", err)
	}
	c.tracker.detachType(reflect.TypeOf(model))
	return rowsAffected(res), nil
}

// Begin opens a store transaction. A nil opts uses the driver default.
func (c *Context) Begin(ctx context.Context, opts *sql.TxOptions) error {
	if err := c.check(); err != nil {
		return err
	}
	if c.tx != nil {
		return errors.New("begin: transaction already open")
	}
	tx, err := c.db.BeginTx(ctx, opts)
	if err != nil {
		return wrapStoreError("begin", err)
	}
	c.tx = &tx
	return nil
}

func (c *Context) Commit(ctx context.Context) error {
	if err := c.check(); err != nil {
		return err
	}
	if c.tx == nil {
		return nil
	}
	if err := c.tx.Commit(); err != nil {
		return wrapStoreError("commit", err)
	}
	c.tx = nil
	return nil
}

func (c *Context) Rollback(ctx context.Context) error {
	if err := c.check(); err != nil {
		return err
	}
	return c.rollback()
}

func (c *Context) rollback() error {
	if c.tx == nil {
		return nil
	}
	tx := c.tx
	c.tx = nil
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return wrapStoreError("rollback", err)
	}
	return nil
}

// Close rolls back an open transaction and forgets tracked entities.
func (c *Context) Close() error {
	if c.closed {
		return nil
	}
	err := c.rollback()
	c.tracker.reset()
	c.closed = true
	return err
}

func (c *Context) table(model any) (reflect.Type, *schema.Table, error) {
	typ := reflect.TypeOf(model)
	if typ == nil || typ.Kind() != reflect.Ptr || typ.Elem().Kind() != reflect.Struct {
		return nil, nil, fmt.Errorf("model must be a struct pointer, got %T", model)
	}
	return typ, c.db.Table(typ.Elem()), nil
}

func matchKeys(entity any, pks []*schema.Field, keys []any) bool {
	v := reflect.ValueOf(entity).Elem()
	for i, pk := range pks {
		if fmt.Sprint(v.FieldByIndex(pk.Index).Interface()) != fmt.Sprint(keys[i]) {
			return false
		}
	}
	return true
}

func applySpec(q *bun.SelectQuery, spec *types.QuerySpec, window bool) *bun.SelectQuery {
	if spec == nil {
		return q
	}
	if spec.Filter != nil && spec.Filter.Schema != "" {
		q = q.Where(spec.Filter.Schema, spec.Filter.Args...)
	}
	if !window {
		return q
	}
	if len(spec.Orders) > 0 {
		q = q.Order(spec.Orders...)
	}
	if spec.Offset > 0 {
		q = q.Offset(spec.Offset)
	}
	if spec.Limited && spec.Limit > 0 {
		q = q.Limit(spec.Limit)
	}
	return q
}

func rowsAffected(res sql.Result) int {
	if res == nil {
		return 0
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return int(n)
}
