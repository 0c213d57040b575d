// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package httpx is the HTTP capability abstraction the Uploader sends
// through, so tests can script a sequence of responses without a real
// network call.
package httpx

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"time"
)

// Response is the minimal slice of http.Response the Uploader inspects.
type Response struct {
	StatusCode int
	Text       string
}

// Client is the single method the Uploader depends on.
type Client interface {
	Post(ctx context.Context, url string, body io.Reader, headers map[string]string) (Response, error)
}

// RealClient posts over a real net/http.Client.
type RealClient struct {
	Timeout  time.Duration
	VerifySSL bool
}

var _ Client = (*RealClient)(nil)

// NewRealClient builds a client configured per spec: a fixed request timeout
// and an optional TLS verification toggle.
func NewRealClient(timeout time.Duration, verifySSL bool) *RealClient {
	return &RealClient{Timeout: timeout, VerifySSL: verifySSL}
}

func (c *RealClient) httpClient() *http.Client {
	transport := &http.Transport{}
	if !c.VerifySSL {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // operator opt-in via verify_ssl=false
	}
	return &http.Client{Timeout: c.Timeout, Transport: transport}
}

func (c *RealClient) Post(ctx context.Context, url string, body io.Reader, headers map[string]string) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return Response{}, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return Response{StatusCode: resp.StatusCode, Text: string(snippet)}, nil
}
