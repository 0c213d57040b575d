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

// Package shutdown provides the one-shot, idempotent signal every worker
// observes at its suspension points, modeled as explicit dependency
// injection per SPEC_FULL.md's design notes rather than global mutable
// state.
package shutdown

import (
	"context"
	"sync"
	"time"
)

// Signal is a broadcastable, idempotent shutdown flag. The zero value is
// not usable; build one with New.
type Signal struct {
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// New builds a Signal derived from parent.
func New(parent context.Context) *Signal {
	ctx, cancel := context.WithCancel(parent)
	return &Signal{ctx: ctx, cancel: cancel}
}

// Set trips the signal. Safe to call more than once or concurrently.
func (s *Signal) Set() {
	s.once.Do(s.cancel)
}

// IsSet reports whether Set has been called.
func (s *Signal) IsSet() bool {
	select {
	case <-s.ctx.Done():
		return true
	default:
		return false
	}
}

// Done returns a channel closed when Set is called, for use in select
// statements alongside queue or network operations.
func (s *Signal) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Context returns the underlying context, for passing to operations that
// accept one directly (HTTP requests, for example).
func (s *Signal) Context() context.Context {
	return s.ctx
}

// Wait blocks until the signal is set or timeout elapses, returning true if
// the signal fired. Used between cycles and during upload backoff.
func (s *Signal) Wait(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.ctx.Done():
		return true
	case <-timer.C:
		return false
	}
}
