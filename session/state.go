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
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// DefaultIsolation is the isolation level used when none is given.
const DefaultIsolation = sql.LevelReadCommitted

// TransactionState is one of Idle, *LocalTransaction or *DistributedTransaction.
type TransactionState interface {
	Name() string
	// autoFlush reports whether a mutation is flushed as soon as it is staged.
	autoFlush() bool
}

// Idle is the state with no open transaction; every mutation is flushed.
type Idle struct{}

func (Idle) Name() string    { return "idle" }
func (Idle) autoFlush() bool { return true }

// LocalTransaction is the handle of an open local transaction. Mutations
// stay staged until CommitTransaction.
type LocalTransaction struct {
	ID        string
	Isolation sql.IsolationLevel
	StartedAt time.Time
}

func newLocalTransaction(level sql.IsolationLevel) *LocalTransaction {
	return &LocalTransaction{ID: uuid.NewString(), Isolation: level, StartedAt: time.Now()}
}

func (*LocalTransaction) Name() string    { return "local" }
func (*LocalTransaction) autoFlush() bool { return false }

// DistributedTransaction holds the scope of an open distributed transaction.
// Mutations are flushed into the enlisted store transaction and become
// durable when the scope completes.
type DistributedTransaction struct {
	Scope *Scope
}

func (*DistributedTransaction) Name() string    { return "distributed" }
func (*DistributedTransaction) autoFlush() bool { return true }

func txOptions(level sql.IsolationLevel) *sql.TxOptions {
	if level == sql.LevelDefault {
		return nil
	}
	return &sql.TxOptions{Isolation: level}
}
