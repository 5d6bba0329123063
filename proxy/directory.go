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

package proxy

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var (
	ErrNoDirectory     = errors.New("service config address not configured")
	ErrUnknownService  = errors.New("requested service address does not exist")
	ErrUnknownLineType = errors.New("no server for line type")
)

// Directory lists services and resolves server addresses per line.
type Directory interface {
	Services(ctx context.Context) ([]ServiceConfig, error)
	ServerAddress(ctx context.Context, lineType string) (string, error)
	Server(ctx context.Context, line ServiceLine) (string, error)
}

// StaticDirectory serves a fixed list.
type StaticDirectory struct {
	services []ServiceConfig
	lines    map[string]string
}

func NewStaticDirectory(services []ServiceConfig, lines map[string]string) *StaticDirectory {
	return &StaticDirectory{services: services, lines: lines}
}

func (d *StaticDirectory) Services(context.Context) ([]ServiceConfig, error) {
	return append([]ServiceConfig(nil), d.services...), nil
}

func (d *StaticDirectory) ServerAddress(_ context.Context, lineType string) (string, error) {
	addr, ok := d.lines[lineType]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownLineType, lineType)
	}
	return addr, nil
}

func (d *StaticDirectory) Server(ctx context.Context, line ServiceLine) (string, error) {
	if line.Address != "" {
		return line.Address, nil
	}
	return d.ServerAddress(ctx, line.LineType)
}

// FileDirectory re-reads a YAML Config file on every call.
type FileDirectory struct {
	path string
}

func NewFileDirectory(path string) *FileDirectory {
	return &FileDirectory{path: path}
}

func (d *FileDirectory) load() (*StaticDirectory, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		return nil, fmt.Errorf("read service directory: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse service directory %s: %w", d.path, err)
	}
	return NewStaticDirectory(cfg.Services, cfg.Lines), nil
}

func (d *FileDirectory) Services(ctx context.Context) ([]ServiceConfig, error) {
	s, err := d.load()
	if err != nil {
		return nil, err
	}
	return s.Services(ctx)
}

func (d *FileDirectory) ServerAddress(ctx context.Context, lineType string) (string, error) {
	s, err := d.load()
	if err != nil {
		return "", err
	}
	return s.ServerAddress(ctx, lineType)
}

func (d *FileDirectory) Server(ctx context.Context, line ServiceLine) (string, error) {
	s, err := d.load()
	if err != nil {
		return "", err
	}
	return s.Server(ctx, line)
}
