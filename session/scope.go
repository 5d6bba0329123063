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

	"github.com/google/uuid"
)

// Scope is the handle of a distributed transaction. Completing it marks the
// work as ready to commit; a scope disposed without completion rolls back.
type Scope struct {
	id        string
	isolation sql.IsolationLevel
	completed bool
	disposed  bool
}

func newScope(level sql.IsolationLevel) *Scope {
	return &Scope{id: uuid.NewString(), isolation: level}
}

func (s *Scope) ID() string                    { return s.id }
func (s *Scope) Isolation() sql.IsolationLevel { return s.isolation }
func (s *Scope) Completed() bool               { return s.completed }
func (s *Scope) Disposed() bool                { return s.disposed }

// Complete votes to commit the scope.
func (s *Scope) Complete() error {
	if s.disposed {
		return invalidState("scope %s already disposed", s.id)
	}
	if s.completed {
		return invalidState("scope %s already completed", s.id)
	}
	s.completed = true
	return nil
}

// Dispose releases the scope. Repeated calls are no-ops.
func (s *Scope) Dispose() {
	s.disposed = true
}
