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
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/tomoncle/fcl/types"
)

// Change is returned for every repository mutation. Staged is true when the
// change is held by an open local transaction and becomes durable only on
// CommitTransaction.
type Change struct {
	Kind     types.ChangeKind
	Affected int
	Staged   bool
}

// Option configures a Session.
type Option func(*Session)

// WithLogger replaces the default session logger.
func WithLogger(logger Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Session owns a Store and the transaction state repositories write
// through. It is not safe for concurrent use: run one Session per unit of
// work and never share its Store across goroutines.
type Session struct {
	id       string
	store    Store
	state    TransactionState
	disposed bool
	logger   Logger
}

// New creates an idle session that takes ownership of store.
func New(store Store, opts ...Option) *Session {
	s := &Session{
		id:    uuid.NewString(),
		store: store,
		state: Idle{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = defaultLogger()
	}
	return s
}

func (s *Session) ID() string { return s.id }

// Store returns the owned persistence context.
func (s *Session) Store() Store { return s.store }

func (s *Session) State() TransactionState { return s.state }

// IsTransaction reports whether a local transaction is open.
func (s *Session) IsTransaction() bool {
	_, ok := s.state.(*LocalTransaction)
	return ok
}

// IsDistributed reports whether a distributed transaction is open.
func (s *Session) IsDistributed() bool {
	_, ok := s.state.(*DistributedTransaction)
	return ok
}

func (s *Session) IsDisposed() bool { return s.disposed }

// Check returns ErrSessionClosed once the session has been disposed.
func (s *Session) Check() error {
	if s.disposed {
		return ErrSessionClosed
	}
	return nil
}

// BeginTransaction opens a local transaction. Mutations made while it is
// open are staged until CommitTransaction.
func (s *Session) BeginTransaction(ctx context.Context, level sql.IsolationLevel) (*LocalTransaction, error) {
	if err := s.beginCheck(); err != nil {
		return nil, err
	}
	if err := s.store.Begin(ctx, txOptions(level)); err != nil {
		return nil, err
	}
	tx := newLocalTransaction(level)
	s.state = tx
	s.logger.Debug("Transaction started", "session", s.id, "tx", tx.ID, "isolation", level.String())
	return tx, nil
}

// BeginDistributedTransaction opens a distributed transaction and returns
// its scope.
func (s *Session) BeginDistributedTransaction(ctx context.Context, level sql.IsolationLevel) (*Scope, error) {
	if err := s.beginCheck(); err != nil {
		return nil, err
	}
	if err := s.store.Begin(ctx, txOptions(level)); err != nil {
		return nil, err
	}
	scope := newScope(level)
	s.state = &DistributedTransaction{Scope: scope}
	s.logger.Debug("Distributed transaction started", "session", s.id, "scope", scope.ID())
	return scope, nil
}

func (s *Session) beginCheck() error {
	if err := s.Check(); err != nil {
		return err
	}
	if _, idle := s.state.(Idle); !idle {
		return invalidState("%s transaction already open", s.state.Name())
	}
	return nil
}

// CommitTransaction flushes staged changes, commits the local transaction
// and returns the session to idle. On failure the transaction stays open.
func (s *Session) CommitTransaction(ctx context.Context) error {
	if err := s.Check(); err != nil {
		return err
	}
	tx, ok := s.state.(*LocalTransaction)
	if !ok {
		return invalidState("no local transaction to commit")
	}
	n, err := s.store.SaveChanges(ctx)
	if err != nil {
		return err
	}
	if err := s.store.Commit(ctx); err != nil {
		return err
	}
	s.state = Idle{}
	s.logger.Debug("Transaction committed", "session", s.id, "tx", tx.ID, "changes", n)
	return nil
}

// CommitDistributedTransaction completes the open scope and commits the
// enlisted store transaction.
func (s *Session) CommitDistributedTransaction(ctx context.Context) error {
	if err := s.Check(); err != nil {
		return err
	}
	dt, ok := s.state.(*DistributedTransaction)
	if !ok {
		return invalidState("no distributed scope to commit")
	}
	if dt.Scope.Disposed() {
		return invalidState("scope %s already disposed", dt.Scope.ID())
	}
	if _, err := s.store.SaveChanges(ctx); err != nil {
		return err
	}
	if err := s.store.Commit(ctx); err != nil {
		return err
	}
	if !dt.Scope.Completed() {
		_ = dt.Scope.Complete()
	}
	dt.Scope.Dispose()
	s.state = Idle{}
	s.logger.Debug("Distributed transaction committed", "session", s.id, "scope", dt.Scope.ID())
	return nil
}

// RollbackTransaction discards staged changes and rolls back any open
// transaction. On an idle session it only discards staged changes, so it is
// safe to defer after a successful commit.
func (s *Session) RollbackTransaction(ctx context.Context) error {
	if err := s.Check(); err != nil {
		return err
	}
	s.store.DiscardChanges()
	if _, idle := s.state.(Idle); idle {
		return nil
	}
	prev := s.state
	s.state = Idle{}
	if dt, ok := prev.(*DistributedTransaction); ok {
		dt.Scope.Dispose()
	}
	if err := s.store.Rollback(ctx); err != nil {
		return err
	}
	s.logger.Debug("Transaction rolled back", "session", s.id, "state", prev.Name())
	return nil
}

// Complete is called by repositories after staging a mutation. The current
// transaction state decides whether the store is flushed now. A failed
// flush discards the staged changes, so later reads and writes behave as if
// the mutation never happened; the transaction state is left as it was.
func (s *Session) Complete(ctx context.Context, kind types.ChangeKind, affected int) (Change, error) {
	change := Change{Kind: kind, Affected: affected}
	if err := s.Check(); err != nil {
		return change, err
	}
	if !s.state.autoFlush() {
		change.Staged = true
		return change, nil
	}
	if _, err := s.store.SaveChanges(ctx); err != nil {
		s.store.DiscardChanges()
		s.logger.Debug("Flush failed, staged changes discarded", "session", s.id, "state", s.state.Name(), "error", err)
		return change, err
	}
	return change, nil
}

// Dispose releases the store. An open local transaction is rolled back; an
// open distributed transaction commits only when its scope was completed.
// Calls after the first are no-ops.
func (s *Session) Dispose() error {
	if s.disposed {
		return nil
	}
	s.disposed = true

	var errs []error
	ctx := context.Background()
	switch st := s.state.(type) {
	case *LocalTransaction:
		s.store.DiscardChanges()
		if err := s.store.Rollback(ctx); err != nil {
			errs = append(errs, fmt.Errorf("rollback on dispose: %w", err))
		}
		s.logger.Warn("Session disposed with open transaction, changes discarded", "session", s.id, "tx", st.ID)
	case *DistributedTransaction:
		if st.Scope.Completed() {
			if err := s.store.Commit(ctx); err != nil {
				errs = append(errs, fmt.Errorf("commit completed scope: %w", err))
			}
		} else {
			s.store.DiscardChanges()
			if err := s.store.Rollback(ctx); err != nil {
				errs = append(errs, fmt.Errorf("rollback on dispose: %w", err))
			}
		}
		st.Scope.Dispose()
	}
	s.state = Idle{}

	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	s.logger.Debug("Session disposed", "session", s.id)
	return errors.Join(errs...)
}
