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

package channel

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/firebase/firebase-bridge-go/codec"
	"github.com/firebase/firebase-bridge-go/future"
	"go.uber.org/zap"
)

// Releaser is implemented by resources that need an explicit release once the asynchronous
// operation holding them completes.
type Releaser interface {
	Release()
}

// Router routes asynchronous completions to channel replies.
//
// Resources kept alive by an Entry are not released on the goroutine that completes it. They are
// queued and released by Drain, which the dispatcher calls at the top of every method call.
type Router struct {
	log     *zap.Logger
	pending *future.Queue[func()]
}

// NewRouter creates a Router. A nil logger disables logging.
func NewRouter(logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		log:     logger,
		pending: future.NewQueue[func()](),
	}
}

// Defer queues fn to run at the next Drain.
func (r *Router) Defer(fn func()) {
	r.pending.Push(fn)
}

// Drain runs all queued work without blocking and returns the number of items run.
func (r *Router) Drain() int {
	work := r.pending.Drain()
	for _, fn := range work {
		fn()
	}
	return len(work)
}

// Pending returns the number of queued work items.
func (r *Router) Pending() int {
	return r.pending.Len()
}

// Entry is a pending reply together with the resources that must outlive the asynchronous
// operation producing it. Only the first terminal call on an Entry reaches the underlying Result.
type Entry struct {
	router *Router
	result Result
	keep   []interface{}
	fired  atomic.Bool
}

// Track creates an Entry for result that keeps the given values alive until it fires.
func (r *Router) Track(result Result, keep ...interface{}) *Entry {
	return &Entry{router: r, result: result, keep: keep}
}

func (e *Entry) fire() bool {
	if !e.fired.CompareAndSwap(false, true) {
		e.router.log.Warn("dropping duplicate reply")
		return false
	}
	keep := e.keep
	e.keep = nil
	if len(keep) > 0 {
		e.router.Defer(func() {
			for _, k := range keep {
				release(k)
			}
		})
	}
	return true
}

func release(k interface{}) {
	switch t := k.(type) {
	case Releaser:
		t.Release()
	case io.Closer:
		t.Close()
	}
}

// Fired reports whether a terminal action has been taken.
func (e *Entry) Fired() bool {
	return e.fired.Load()
}

// Success implements Result.
func (e *Entry) Success(v codec.Value) {
	if e.fire() {
		e.result.Success(v)
	}
}

// Error implements Result.
func (e *Entry) Error(code, message string, details codec.Value) {
	if e.fire() {
		e.result.Error(code, message, details)
	}
}

// NotImplemented implements Result.
func (e *Entry) NotImplemented() {
	if e.fire() {
		e.result.NotImplemented()
	}
}

// Fail sends err to the Entry using ReplyError.
func (e *Entry) Fail(err error) {
	ReplyError(e, err)
}

// ErrorMapper converts the error of a completed operation into a channel error.
type ErrorMapper func(err error) *Error

// Await routes the completion of f to result exactly once.
//
// On success encode builds the reply payload; a nil encode replies with Null. On failure mapErr
// builds the error reply, or ReplyError is used when mapErr is nil. The values in keep stay
// referenced until f completes and are then released through the router's pending-work queue.
func Await[T any](r *Router, result Result, f *future.Future[T], encode func(T) (codec.Value, error), mapErr ErrorMapper, keep ...interface{}) *Entry {
	e := r.Track(result, keep...)
	f.OnCompletion(func(v T, err error) {
		if err != nil {
			if mapErr != nil {
				if ce := mapErr(err); ce != nil {
					e.Error(ce.Code, ce.Message, ce.Details)
					return
				}
			}
			e.Fail(err)
			return
		}
		if encode == nil {
			e.Success(codec.Null{})
			return
		}
		payload, err := encode(v)
		if err != nil {
			e.Fail(err)
			return
		}
		e.Success(payload)
	})
	return e
}

// RouteChildEvent forwards event to sink only when eventType matches the subscribed type. It
// reports whether the event was forwarded.
func RouteChildEvent(subscribed, eventType string, event codec.Value, sink EventSink) bool {
	if subscribed != eventType {
		return false
	}
	sink.Success(event)
	return true
}

// Subscription tears down a listener registration exactly once.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// NewSubscription wraps the function that removes a listener.
func NewSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}

// Cancel removes the listener. Calls after the first have no effect.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}
