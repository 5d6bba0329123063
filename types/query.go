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

// QueryFilter describes a WHERE clause schema and its argument values.
type QueryFilter struct {
	Schema string
	Args   []interface{}
}

// NewQueryFilter creates a new query filter with schema and args.
func NewQueryFilter(schema string, args ...interface{}) *QueryFilter {
	return &QueryFilter{schema, args}
}

// And combines two filters; a nil side yields the other one.
func (f *QueryFilter) And(other *QueryFilter) *QueryFilter {
	if f == nil {
		return other
	}
	if other == nil {
		return f
	}
	args := make([]interface{}, 0, len(f.Args)+len(other.Args))
	args = append(args, f.Args...)
	args = append(args, other.Args...)
	return &QueryFilter{Schema: "(" + f.Schema + ") AND (" + other.Schema + ")", Args: args}
}

// QuerySpec is a composable description of a read: predicate, ordering and
// an optional window. Limit applies only when Limited is set, so Take(0)
// selects nothing while an untouched spec is unbounded.
type QuerySpec struct {
	Filter  *QueryFilter
	Orders  []string
	Offset  int
	Limit   int
	Limited bool
}

// NewQuerySpec returns a spec for the given filter and ordering.
func NewQuerySpec(filter *QueryFilter, orders ...string) *QuerySpec {
	return &QuerySpec{Filter: filter, Orders: orders}
}

// Clone returns a copy that can be modified independently.
func (s *QuerySpec) Clone() *QuerySpec {
	if s == nil {
		return &QuerySpec{}
	}
	c := *s
	c.Orders = append([]string(nil), s.Orders...)
	return &c
}

// Where narrows the spec with an additional filter.
func (s *QuerySpec) Where(filter *QueryFilter) *QuerySpec {
	c := s.Clone()
	c.Filter = c.Filter.And(filter)
	return c
}

// OrderBy appends ordering expressions.
func (s *QuerySpec) OrderBy(orders ...string) *QuerySpec {
	c := s.Clone()
	c.Orders = append(c.Orders, orders...)
	return c
}

func (s *QuerySpec) Skip(n int) *QuerySpec {
	c := s.Clone()
	if n < 0 {
		n = 0
	}
	c.Offset = n
	return c
}

func (s *QuerySpec) Take(n int) *QuerySpec {
	c := s.Clone()
	if n < 0 {
		n = 0
	}
	c.Limit = n
	c.Limited = true
	return c
}

// Empty reports whether the window selects no rows at all.
func (s *QuerySpec) Empty() bool {
	return s != nil && s.Limited && s.Limit == 0
}

// SetClause assigns Expr (formatted with Args) to Column.
type SetClause struct {
	Column string
	Expr   string
	Args   []interface{}
}

// UpdateSet is the ordered list of assignments of a set-based update.
type UpdateSet []SetClause

// Set assigns a plain value to a column.
func Set(column string, value interface{}) SetClause {
	return SetClause{Column: column, Expr: "?", Args: []interface{}{value}}
}

// SetExpr assigns an SQL expression, e.g. SetExpr("hits", "? + 1", bun.Ident("hits")).
func SetExpr(column string, expr string, args ...interface{}) SetClause {
	return SetClause{Column: column, Expr: expr, Args: args}
}

// NewUpdateSet builds an UpdateSet from clauses.
func NewUpdateSet(clauses ...SetClause) UpdateSet {
	return UpdateSet(clauses)
}
