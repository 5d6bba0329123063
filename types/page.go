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

const DefaultPageSize = 10

// PageRequest describes the requested page, optional filter, and ordering.
type PageRequest struct {
	page     int
	pageSize int
	filter   *QueryFilter
	orders   []string // "ID ASC", "name DESC"
}

func (p *PageRequest) GetPageSize() int {
	if p.pageSize < 1 {
		p.pageSize = DefaultPageSize
	}
	return p.pageSize
}

func (p *PageRequest) GetPage() int {
	if p.page < 1 {
		p.page = 1
	}
	return p.page
}

// GetOffset returns the number of rows skipped before the page window.
// Pages below 2 never skip.
func (p *PageRequest) GetOffset() int {
	if p.GetPage() <= 1 {
		return 0
	}
	return (p.GetPage() - 1) * p.GetPageSize()
}

func (p *PageRequest) GetFilter() *QueryFilter {
	return p.filter
}

func (p *PageRequest) GetOrders() []string {
	return p.orders
}

// Spec converts the request into the query specification of its window.
func (p *PageRequest) Spec() *QuerySpec {
	return &QuerySpec{
		Filter:  p.filter,
		Orders:  p.orders,
		Offset:  p.GetOffset(),
		Limit:   p.GetPageSize(),
		Limited: true,
	}
}

// NewPageRequest constructs a PageRequest with filter and order settings.
func NewPageRequest(page int, pageSize int, filter *QueryFilter, orders []string) *PageRequest {
	return &PageRequest{page, pageSize, filter, orders}
}

// NewPageRequestWithFilter constructs a PageRequest with a filter only.
func NewPageRequestWithFilter(page int, pageSize int, filter *QueryFilter) *PageRequest {
	return NewPageRequest(page, pageSize, filter, make([]string, 0))
}

// NewPageRequestWithOrders constructs a PageRequest with ordering only.
func NewPageRequestWithOrders(page int, pageSize int, orders []string) *PageRequest {
	return NewPageRequest(page, pageSize, nil, orders)
}

// NewDefaultPageRequest constructs a PageRequest with no filter or ordering.
func NewDefaultPageRequest(page int, pageSize int) *PageRequest {
	return NewPageRequest(page, pageSize, nil, make([]string, 0))
}

// PagedResult holds one window of a filtered, ordered result set together
// with the total number of matching rows.
type PagedResult[T any] struct {
	PageIndex  int
	PageSize   int
	TotalCount int
	Items      []*T
}

// NewPagedResult constructs an empty result for the given page.
func NewPagedResult[T any](pageIndex int, pageSize int) *PagedResult[T] {
	return &PagedResult[T]{PageIndex: pageIndex, PageSize: pageSize, Items: make([]*T, 0)}
}

// PageCount returns the number of pages needed for TotalCount rows.
func (p *PagedResult[T]) PageCount() int {
	if p.PageSize < 1 {
		return 0
	}
	return (p.TotalCount + p.PageSize - 1) / p.PageSize
}

func (p *PagedResult[T]) HasNext() bool {
	return p.PageIndex < p.PageCount()
}
