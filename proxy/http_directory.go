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
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTPDirectory queries a directory service over JSON:
//
//	GET  /services               -> [ServiceConfig]
//	GET  /servers/{lineType}     -> {"address": "..."}
//	POST /servers  (ServiceLine) -> {"address": "..."}
type HTTPDirectory struct {
	client *resty.Client
}

type addressResponse struct {
	Address string `json:"address"`
}

func NewHTTPDirectory(baseURL string) *HTTPDirectory {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(200*time.Millisecond).
		SetHeader("Accept", "application/json")
	return &HTTPDirectory{client: client}
}

func (d *HTTPDirectory) Services(ctx context.Context) ([]ServiceConfig, error) {
	var out []ServiceConfig
	resp, err := d.client.R().SetContext(ctx).SetResult(&out).Get("/services")
	if err := check(resp, err); err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	return out, nil
}

func (d *HTTPDirectory) ServerAddress(ctx context.Context, lineType string) (string, error) {
	var out addressResponse
	resp, err := d.client.R().
		SetContext(ctx).
		SetPathParam("lineType", lineType).
		SetResult(&out).
		Get("/servers/{lineType}")
	if err := check(resp, err); err != nil {
		return "", fmt.Errorf("server address for %s: %w", lineType, err)
	}
	return out.Address, nil
}

func (d *HTTPDirectory) Server(ctx context.Context, line ServiceLine) (string, error) {
	if line.Address != "" {
		return line.Address, nil
	}
	var out addressResponse
	resp, err := d.client.R().SetContext(ctx).SetBody(line).SetResult(&out).Post("/servers")
	if err := check(resp, err); err != nil {
		return "", fmt.Errorf("server for line %s: %w", line.LineType, err)
	}
	return out.Address, nil
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("directory responded %s: %s", resp.Status(), resp.String())
	}
	return nil
}
