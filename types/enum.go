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

package types

// Common illegal/default values used by enums.
const (
	IllegalValue = -1
	IllegalName  = "unknown"
	IllegalDesc  = "unknown"
)

// BaseEnum represents a basic enum contract used by domain types.
type BaseEnum interface {
	IsValid() bool
	Number() int
	String() string
	Desc() string
	Name() string
}

// ChangeKind identifies the kind of a mutation reported by a repository.
type ChangeKind int

const (
	ChangeInsert ChangeKind = iota
	ChangeDelete
	ChangeUpdate
)

var _ BaseEnum = ChangeInsert

var changeKindNames = map[ChangeKind][2]string{
	ChangeInsert: {"insert", "entity staged for insertion"},
	ChangeDelete: {"delete", "entity or rows deleted"},
	ChangeUpdate: {"update", "rows updated in bulk"},
}

func (k ChangeKind) IsValid() bool {
	_, ok := changeKindNames[k]
	return ok
}

func (k ChangeKind) Number() int {
	if !k.IsValid() {
		return IllegalValue
	}
	return int(k)
}

func (k ChangeKind) String() string { return k.Name() }

func (k ChangeKind) Name() string {
	if v, ok := changeKindNames[k]; ok {
		return v[0]
	}
	return IllegalName
}

func (k ChangeKind) Desc() string {
	if v, ok := changeKindNames[k]; ok {
		return v[1]
	}
	return IllegalDesc
}
