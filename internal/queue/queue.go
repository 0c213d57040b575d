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

// Package queue holds the two bounded, thread-safe queues shared across
// workers: MoveQueue (multi-producer/single-consumer absolute paths) and
// TailerEventQueue (single-producer/single-consumer filesystem events).
// Both wrap a buffered Go channel rather than a lock-guarded slice, matching
// the teacher's (pcap-fsnotify) preference for channel-based handoff over
// explicit mutexes wherever a channel already expresses the ownership rule.
package queue

import "context"

// MoveQueue carries absolute file paths from the Tailer and Scanner to the
// Mover. Put blocks when the queue is full (backpressure on, per
// spec.md section 4.1); both Put and Get observe ctx for shutdown.
type MoveQueue struct {
	ch chan string
}

// NewMoveQueue builds a MoveQueue with the given buffer capacity.
func NewMoveQueue(capacity int) *MoveQueue {
	return &MoveQueue{ch: make(chan string, capacity)}
}

// Put enqueues path, blocking until space is available or ctx is done.
func (q *MoveQueue) Put(ctx context.Context, path string) error {
	select {
	case q.ch <- path:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get dequeues a path, blocking until one is available or ctx is done.
func (q *MoveQueue) Get(ctx context.Context) (string, bool) {
	select {
	case path := <-q.ch:
		return path, true
	case <-ctx.Done():
		return "", false
	}
}

// Len reports the number of paths currently buffered, for diagnostics.
func (q *MoveQueue) Len() int {
	return len(q.ch)
}

// TailerEventKind discriminates TailerEvent's variants.
type TailerEventKind int

const (
	InitialFound TailerEventKind = iota
	Created
	Modified
	Deleted
	Moved
)

// TailerEvent is the sum type passed through TailerEventQueue. Src is
// populated for every variant; Dst is populated only for Moved.
type TailerEvent struct {
	Kind TailerEventKind
	Src  string
	Dst  string
}

// TailerEventQueue carries filesystem events from the watcher goroutine to
// the single Tailer consumer goroutine.
type TailerEventQueue struct {
	ch chan TailerEvent
}

// NewTailerEventQueue builds a TailerEventQueue with the given buffer
// capacity.
func NewTailerEventQueue(capacity int) *TailerEventQueue {
	return &TailerEventQueue{ch: make(chan TailerEvent, capacity)}
}

// Put enqueues an event, blocking until space is available or ctx is done.
func (q *TailerEventQueue) Put(ctx context.Context, ev TailerEvent) error {
	select {
	case q.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get dequeues an event, blocking until one is available or ctx is done.
func (q *TailerEventQueue) Get(ctx context.Context) (TailerEvent, bool) {
	select {
	case ev := <-q.ch:
		return ev, true
	case <-ctx.Done():
		return TailerEvent{}, false
	}
}
