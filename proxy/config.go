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
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type BindType string

const (
	BindBasic BindType = "basic"
	BindTLS   BindType = "tls"
)

// ServiceConfig is one directory entry: the Go interface name of a client,
// where its service listens and how to connect.
type ServiceConfig struct {
	InterfaceName   string   `json:"interfaceName" yaml:"interface_name"`
	EndpointAddress string   `json:"endpointAddress" yaml:"endpoint_address"`
	BindType        BindType `json:"bindType" yaml:"bind_type"`
}

// ReplaceHost returns EndpointAddress with its host swapped for server.
func (c ServiceConfig) ReplaceHost(server string) (string, error) {
	return ReplaceHost(c.EndpointAddress, server)
}

// ReplaceHost swaps the host of endpoint for server, keeping scheme, port
// and path. endpoint is either a URL or a bare host:port.
func ReplaceHost(endpoint, server string) (string, error) {
	if server == "" {
		return endpoint, nil
	}
	if !strings.Contains(endpoint, "://") {
		_, port, err := net.SplitHostPort(endpoint)
		if err != nil {
			return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
		}
		return net.JoinHostPort(server, port), nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if port := u.Port(); port != "" {
		u.Host = net.JoinHostPort(server, port)
	} else {
		u.Host = server
	}
	return u.String(), nil
}

// Target converts an endpoint into a gRPC dial target. grpc:// and grpcs://
// URLs dial their host; other forms pass through unchanged.
func Target(endpoint string) string {
	for _, scheme := range []string{"grpc://", "grpcs://"} {
		if strings.HasPrefix(endpoint, scheme) {
			if u, err := url.Parse(endpoint); err == nil {
				return u.Host
			}
		}
	}
	return endpoint
}

// ServiceLine is the line a client picked; Address, when set, wins over
// the directory lookup.
type ServiceLine struct {
	LineType string `json:"lineType" yaml:"line_type"`
	Name     string `json:"name" yaml:"name"`
	Address  string `json:"address,omitempty" yaml:"address,omitempty"`
}

// Config is the YAML document describing where the directory lives and,
// for file and static directories, its content.
type Config struct {
	ServiceConfigAddress string            `yaml:"service_config_address"`
	LineType             string            `yaml:"line_type"`
	CacheSize            int               `yaml:"cache_size"`
	Services             []ServiceConfig   `yaml:"services"`
	Lines                map[string]string `yaml:"lines"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read proxy config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse proxy config %s: %w", path, err)
	}
	return &cfg, nil
}

// Directory picks the directory implementation ServiceConfigAddress names:
// an http(s) URL, a YAML file, or, when empty, the inline services.
func (c *Config) Directory() (Directory, error) {
	addr := strings.TrimSpace(c.ServiceConfigAddress)
	switch {
	case strings.HasPrefix(addr, "http://"), strings.HasPrefix(addr, "https://"):
		return NewHTTPDirectory(addr), nil
	case addr != "":
		return NewFileDirectory(addr), nil
	case len(c.Services) > 0:
		return NewStaticDirectory(c.Services, c.Lines), nil
	default:
		return nil, ErrNoDirectory
	}
}
