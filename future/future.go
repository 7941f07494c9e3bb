// Copyright 2024 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package future provides single-shot asynchronous results and a pending-work queue.
package future

import (
	"context"
	"errors"
	"sync"
)

// ErrPending is returned by Result while a Future has not completed.
var ErrPending = errors.New("future: result is not available yet")

// Status describes the state of a Future.
type Status int

const (
	// Pending futures have not produced a result yet.
	Pending Status = iota
	// Complete futures hold a value or an error.
	Complete
)

func (s Status) String() string {
	if s == Complete {
		return "complete"
	}
	return "pending"
}

// Future is a handle to a result that becomes available exactly once.
type Future[T any] struct {
	mu        sync.Mutex
	done      chan struct{}
	status    Status
	val       T
	err       error
	callbacks []func(T, error)
}

// CompleteFunc completes a Future. Only the first call has any effect; it reports whether this
// call was the one that completed the Future.
type CompleteFunc[T any] func(T, error) bool

// New returns a pending Future together with the function that completes it.
func New[T any]() (*Future[T], CompleteFunc[T]) {
	f := &Future[T]{done: make(chan struct{})}
	return f, f.complete
}

// Completed returns a Future that already holds the given result.
func Completed[T any](v T, err error) *Future[T] {
	f, complete := New[T]()
	complete(v, err)
	return f
}

// Go runs fn on a new goroutine and returns a Future for its result.
func Go[T any](ctx context.Context, fn func(context.Context) (T, error)) *Future[T] {
	f, complete := New[T]()
	go func() {
		complete(fn(ctx))
	}()
	return f
}

func (f *Future[T]) complete(v T, err error) bool {
	f.mu.Lock()
	if f.status == Complete {
		f.mu.Unlock()
		return false
	}
	f.status = Complete
	f.val, f.err = v, err
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, cb := range callbacks {
		cb(v, err)
	}
	return true
}

// Status returns the current status of the Future. Polling the status never changes it.
func (f *Future[T]) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// Done returns a channel that is closed once the Future completes.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Result returns the value and error of a completed Future, or ErrPending.
func (f *Future[T]) Result() (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status != Complete {
		var zero T
		return zero, ErrPending
	}
	return f.val, f.err
}

// Wait blocks until the Future completes or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.Result()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// OnCompletion registers fn to run once with the result. If the Future has already completed, fn
// runs immediately on the calling goroutine. Otherwise it runs on the goroutine that completes the
// Future.
func (f *Future[T]) OnCompletion(fn func(T, error)) {
	f.mu.Lock()
	if f.status != Complete {
		f.callbacks = append(f.callbacks, fn)
		f.mu.Unlock()
		return
	}
	v, err := f.val, f.err
	f.mu.Unlock()
	fn(v, err)
}
