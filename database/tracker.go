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
	"fmt"
	"reflect"
)

type entryState int

const (
	entryUnchanged entryState = iota
	entryAdded
	entryDeleted
)

func (s entryState) String() string {
	switch s {
	case entryAdded:
		return "added"
	case entryDeleted:
		return "deleted"
	default:
		return "unchanged"
	}
}

type entry struct {
	entity any
	state  entryState
}

// changeTracker remembers entity instances by pointer identity, in the order
// they were first seen, so that a flush replays inserts and deletes in the
// order the caller staged them.
type changeTracker struct {
	entries map[any]*entry
	order   []*entry
}

func newChangeTracker() *changeTracker {
	return &changeTracker{entries: make(map[any]*entry)}
}

func checkEntity(entity any) error {
	v := reflect.ValueOf(entity)
	if !v.IsValid() || v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("entity must be a non-nil struct pointer, got %T", entity)
	}
	return nil
}

func (t *changeTracker) get(entity any) (*entry, bool) {
	e, ok := t.entries[entity]
	return e, ok
}

func (t *changeTracker) track(entity any, state entryState) *entry {
	if e, ok := t.entries[entity]; ok {
		e.state = state
		return e
	}
	e := &entry{entity: entity, state: state}
	t.entries[entity] = e
	t.order = append(t.order, e)
	return e
}

func (t *changeTracker) forget(entity any) {
	e, ok := t.entries[entity]
	if !ok {
		return
	}
	delete(t.entries, entity)
	for i, o := range t.order {
		if o == e {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// pending returns the added and deleted entries in staging order.
func (t *changeTracker) pending() []*entry {
	var out []*entry
	for _, e := range t.order {
		if e.state != entryUnchanged {
			out = append(out, e)
		}
	}
	return out
}

// accept marks flushed entries as persisted.
func (t *changeTracker) accept(flushed []*entry) {
	for _, e := range flushed {
		switch e.state {
		case entryAdded:
			e.state = entryUnchanged
		case entryDeleted:
			t.forget(e.entity)
		}
	}
}

// detachType drops unchanged entries of typ, used after bulk statements that
// may have changed their rows behind the tracker.
func (t *changeTracker) detachType(typ reflect.Type) {
	for _, e := range append([]*entry(nil), t.order...) {
		if e.state == entryUnchanged && reflect.TypeOf(e.entity) == typ {
			t.forget(e.entity)
		}
	}
}

func (t *changeTracker) ofType(typ reflect.Type) []*entry {
	var out []*entry
	for _, e := range t.order {
		if reflect.TypeOf(e.entity) == typ {
			out = append(out, e)
		}
	}
	return out
}

func (t *changeTracker) reset() {
	t.entries = make(map[any]*entry)
	t.order = nil
}
