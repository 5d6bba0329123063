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
	"reflect"
	"sort"
	"sync"
)

var defaultRegistry = NewModelRegistry()

// SQLModel is a bun model whose table is created by migrations. Lower
// priorities are created first.
type SQLModel interface {
	Instance() interface{}
	Priority() int
}

type ModelRegistry interface {
	Register(model SQLModel)
	Models() []SQLModel
	Reset()
}

type modelRegistry struct {
	mu     sync.RWMutex
	models []SQLModel
	seen   map[reflect.Type]struct{}
}

func NewModelRegistry() ModelRegistry {
	return &modelRegistry{seen: make(map[reflect.Type]struct{})}
}

// Register ignores a second model of the same Go type.
func (r *modelRegistry) Register(model SQLModel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	typ := reflect.TypeOf(model.Instance())
	if _, dup := r.seen[typ]; dup {
		return
	}
	r.seen[typ] = struct{}{}
	r.models = append(r.models, model)
}

func (r *modelRegistry) Models() []SQLModel {
	r.mu.RLock()
	result := make([]SQLModel, len(r.models))
	copy(result, r.models)
	r.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Priority() < result[j].Priority()
	})
	return result
}

func (r *modelRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models = nil
	r.seen = make(map[reflect.Type]struct{})
}

type modelAdapter struct {
	instance interface{}
	priority int
}

// NewModelAdapter wraps a struct pointer and priority into an SQLModel.
func NewModelAdapter(instance interface{}, priority int) SQLModel {
	return &modelAdapter{instance: instance, priority: priority}
}

func (a *modelAdapter) Instance() interface{} { return a.instance }

func (a *modelAdapter) Priority() int { return a.priority }

// RegisterModel adds a model to the default registry.
func RegisterModel(model SQLModel) {
	defaultRegistry.Register(model)
}

// RegisterModels registers instances in argument order.
func RegisterModels(instances ...interface{}) {
	for i, instance := range instances {
		defaultRegistry.Register(NewModelAdapter(instance, i))
	}
}

func RegisteredModels() []SQLModel {
	return defaultRegistry.Models()
}

// RegisteredModelInstances returns the struct pointers of registered models
// in priority order.
func RegisteredModelInstances() []interface{} {
	models := RegisteredModels()
	out := make([]interface{}, len(models))
	for i, model := range models {
		out[i] = model.Instance()
	}
	return out
}

// ResetModels empties the default registry.
func ResetModels() {
	defaultRegistry.Reset()
}
