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
	"crypto/tls"
	"errors"
	"fmt"
	"reflect"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/tomoncle/fcl/utils"
)

const DefaultCacheSize = 64

// Constructor builds a typed client over a connection, e.g.
// healthpb.NewHealthClient.
type Constructor[T any] func(grpc.ClientConnInterface) T

type connKey struct {
	target string
	bind   BindType
}

// Factory resolves typed clients. It is safe for concurrent use; each test
// or application builds its own.
type Factory struct {
	dir    Directory
	logger *logrus.Logger

	mu       sync.RWMutex
	services map[string]ServiceConfig
	server   string
	ctors    map[string]func(grpc.ClientConnInterface) any

	conns     *lru.Cache[connKey, *grpc.ClientConn]
	cacheSize int

	closeMu   sync.Mutex
	errMu     sync.Mutex
	closing   bool
	closeErrs []error

	dialOpts  []grpc.DialOption
	tlsConfig *tls.Config
}

type Option func(*Factory)

// WithCacheSize bounds the number of open connections. The least recently
// used connection is closed on overflow, so clients built on it fail.
func WithCacheSize(n int) Option {
	return func(f *Factory) {
		if n > 0 {
			f.cacheSize = n
		}
	}
}

// WithDialOptions adds options to every dial, after the transport
// credentials chosen from the bind type.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(f *Factory) { f.dialOpts = append(f.dialOpts, opts...) }
}

// WithTLSConfig sets the client TLS config used for BindTLS services.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(f *Factory) { f.tlsConfig = cfg }
}

func WithLogger(logger *logrus.Logger) Option {
	return func(f *Factory) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFactory loads the service list from dir.
func NewFactory(ctx context.Context, dir Directory, opts ...Option) (*Factory, error) {
	if dir == nil {
		return nil, ErrNoDirectory
	}
	f := &Factory{
		dir:       dir,
		logger:    utils.NewLogger("PROXY"),
		ctors:     make(map[string]func(grpc.ClientConnInterface) any),
		cacheSize: DefaultCacheSize,
	}
	for _, opt := range opts {
		opt(f)
	}
	conns, err := lru.NewWithEvict[connKey, *grpc.ClientConn](f.cacheSize, func(k connKey, conn *grpc.ClientConn) {
		if err := conn.Close(); err != nil {
			f.logger.WithFields(utils.KV("target", k.target, "error", err)).Warn("Failed to close evicted connection")
			f.errMu.Lock()
			if f.closing {
				f.closeErrs = append(f.closeErrs, fmt.Errorf("close %s: %w", k.target, err))
			}
			f.errMu.Unlock()
		}
	})
	if err != nil {
		return nil, err
	}
	f.conns = conns
	if err := f.Reload(ctx); err != nil {
		return nil, err
	}
	return f, nil
}

// NewFactoryFromConfig builds the directory cfg names and, when cfg has a
// line type, selects its server.
func NewFactoryFromConfig(ctx context.Context, cfg *Config, opts ...Option) (*Factory, error) {
	dir, err := cfg.Directory()
	if err != nil {
		return nil, err
	}
	if cfg.CacheSize > 0 {
		opts = append([]Option{WithCacheSize(cfg.CacheSize)}, opts...)
	}
	f, err := NewFactory(ctx, dir, opts...)
	if err != nil {
		return nil, err
	}
	if cfg.LineType != "" {
		if err := f.SetServerAddress(ctx, cfg.LineType); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

// Reload replaces the cached service list.
func (f *Factory) Reload(ctx context.Context) error {
	list, err := f.dir.Services(ctx)
	if err != nil {
		return fmt.Errorf("failed to load system services: %w", err)
	}
	services := make(map[string]ServiceConfig, len(list))
	for _, svc := range list {
		if _, dup := services[svc.InterfaceName]; dup {
			return fmt.Errorf("duplicate service %s in directory", svc.InterfaceName)
		}
		services[svc.InterfaceName] = svc
	}
	f.mu.Lock()
	f.services = services
	f.mu.Unlock()
	f.logger.WithFields(utils.KV("services", len(services))).Debug("Service directory loaded")
	return nil
}

// SetServerAddress pins every endpoint to the server of lineType.
func (f *Factory) SetServerAddress(ctx context.Context, lineType string) error {
	addr, err := f.dir.ServerAddress(ctx, lineType)
	if err != nil {
		return err
	}
	f.setServer(addr)
	return nil
}

// SetServerLine pins every endpoint to the server of the chosen line.
func (f *Factory) SetServerLine(ctx context.Context, line ServiceLine) error {
	addr, err := f.dir.Server(ctx, line)
	if err != nil {
		return err
	}
	f.setServer(addr)
	return nil
}

func (f *Factory) setServer(addr string) {
	f.mu.Lock()
	f.server = addr
	f.mu.Unlock()
	f.logger.WithFields(utils.KV("server", addr)).Info("Server address selected")
}

func (f *Factory) ServerAddress() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.server
}

func (f *Factory) Service(interfaceName string) (ServiceConfig, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	svc, ok := f.services[interfaceName]
	return svc, ok
}

// InterfaceName is the directory key of T: its package path and name.
func InterfaceName[T any]() string {
	t := reflect.TypeFor[T]()
	if t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

// Register binds the constructor used by Create and CreateAt for T.
func Register[T any](f *Factory, ctor Constructor[T]) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctors[InterfaceName[T]()] = func(cc grpc.ClientConnInterface) any { return ctor(cc) }
}

// Create builds a T for the directory entry of T, on the selected server
// when one is set.
func Create[T any](f *Factory) (T, error) {
	var zero T
	name := InterfaceName[T]()
	svc, ok := f.Service(name)
	if !ok {
		return zero, fmt.Errorf("%w: [%s]", ErrUnknownService, name)
	}
	endpoint := svc.EndpointAddress
	if server := f.ServerAddress(); server != "" {
		var err error
		if endpoint, err = svc.ReplaceHost(server); err != nil {
			return zero, err
		}
	}
	return build[T](f, name, endpoint, svc.BindType)
}

// CreateAt builds a T for an explicit endpoint with basic binding. The host
// is still replaced when a server is selected.
func CreateAt[T any](f *Factory, endpoint string) (T, error) {
	var zero T
	if server := f.ServerAddress(); server != "" {
		var err error
		if endpoint, err = ReplaceHost(endpoint, server); err != nil {
			return zero, err
		}
	}
	return build[T](f, InterfaceName[T](), endpoint, BindBasic)
}

func build[T any](f *Factory, name, endpoint string, bind BindType) (T, error) {
	var zero T
	f.mu.RLock()
	ctor, ok := f.ctors[name]
	f.mu.RUnlock()
	if !ok {
		return zero, fmt.Errorf("no client constructor registered for %s", name)
	}
	conn, err := f.conn(endpoint, bind)
	if err != nil {
		return zero, err
	}
	return ctor(conn).(T), nil
}

func (f *Factory) conn(endpoint string, bind BindType) (*grpc.ClientConn, error) {
	key := connKey{target: Target(endpoint), bind: bind}
	if conn, ok := f.conns.Get(key); ok {
		return conn, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if conn, ok := f.conns.Get(key); ok {
		return conn, nil
	}
	var creds credentials.TransportCredentials
	switch bind {
	case BindTLS:
		creds = credentials.NewTLS(f.tlsConfig)
	case BindBasic, "":
		creds = insecure.NewCredentials()
	default:
		return nil, fmt.Errorf("unsupported bind type %q", bind)
	}
	opts := append([]grpc.DialOption{grpc.WithTransportCredentials(creds)}, f.dialOpts...)
	conn, err := grpc.NewClient(key.target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", key.target, err)
	}
	f.conns.Add(key, conn)
	f.logger.WithFields(utils.KV("target", key.target, "bind", bind)).Debug("Client connection created")
	return conn, nil
}

// CachedConnections reports how many connections are open.
func (f *Factory) CachedConnections() int {
	return f.conns.Len()
}

// Close closes every cached connection and returns the joined close errors.
// Errors from connections evicted earlier are only logged.
func (f *Factory) Close() error {
	f.closeMu.Lock()
	defer f.closeMu.Unlock()

	f.errMu.Lock()
	f.closing, f.closeErrs = true, nil
	f.errMu.Unlock()

	f.conns.Purge()

	f.errMu.Lock()
	defer f.errMu.Unlock()
	f.closing = false
	return errors.Join(f.closeErrs...)
}
