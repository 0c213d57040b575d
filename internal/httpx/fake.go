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

package httpx

import (
	"context"
	"errors"
	"io"
	"sync"
)

// ScriptedStep describes one queued response or error for FakeClient.
type ScriptedStep struct {
	StatusCode int
	Text       string
	Err        error
}

// FakeClient replays a fixed sequence of responses/errors, one per call,
// repeating the last step once the queue is exhausted. It drives the
// retry/terminal-failure scenarios from spec.md section 8 (S4, S6).
type FakeClient struct {
	mu    sync.Mutex
	steps []ScriptedStep
	calls []Call
}

// Call records one invocation for assertions.
type Call struct {
	URL     string
	Headers map[string]string
	Body    []byte
}

// NewFakeClient builds a FakeClient that plays back steps in order.
func NewFakeClient(steps ...ScriptedStep) *FakeClient {
	return &FakeClient{steps: steps}
}

var _ Client = (*FakeClient)(nil)

// ErrExhausted is returned by every call when the client was built with no
// scripted steps.
var ErrExhausted = errors.New("httpx: fake client has no scripted steps")

func (f *FakeClient) Post(ctx context.Context, url string, body io.Reader, headers map[string]string) (Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, _ := io.ReadAll(body)
	hdrs := make(map[string]string, len(headers))
	for k, v := range headers {
		hdrs[k] = v
	}
	f.calls = append(f.calls, Call{URL: url, Headers: hdrs, Body: data})

	if len(f.steps) == 0 {
		return Response{}, ErrExhausted
	}
	idx := len(f.calls) - 1
	if idx >= len(f.steps) {
		idx = len(f.steps) - 1
	}
	step := f.steps[idx]
	if step.Err != nil {
		return Response{}, step.Err
	}
	return Response{StatusCode: step.StatusCode, Text: step.Text}, nil
}

// Calls returns every recorded invocation so far.
func (f *FakeClient) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}
