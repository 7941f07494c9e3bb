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
	"context"
	"fmt"

	"github.com/firebase/firebase-bridge-go/codec"
	"go.uber.org/zap"
)

// Handler handles one method. Errors returned synchronously are sent as the reply, so a handler
// either returns an error or eventually replies through result, never both.
type Handler func(ctx context.Context, args codec.Args, result Result) error

// Dispatcher decodes method calls received on one channel and routes them to Handlers.
type Dispatcher struct {
	name     string
	router   *Router
	log      *zap.Logger
	handlers map[string]Handler
	trace    bool
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewDispatcher creates a Dispatcher for the named channel.
func NewDispatcher(name string, router *Router, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		name:     name,
		router:   router,
		log:      logger.With(zap.String("channel", name)),
		handlers: make(map[string]Handler),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Name returns the channel name served by the Dispatcher.
func (d *Dispatcher) Name() string {
	return d.name
}

// Router returns the Router shared by the handlers of the Dispatcher.
func (d *Dispatcher) Router() *Router {
	return d.router
}

// Context returns the context passed to handlers. It is cancelled by Close.
func (d *Dispatcher) Context() context.Context {
	return d.ctx
}

// SetTrace enables debug logging of every call and its arguments.
func (d *Dispatcher) SetTrace(enabled bool) {
	d.trace = enabled
}

// Handle registers h for method, replacing any previous handler.
func (d *Dispatcher) Handle(method string, h Handler) {
	d.handlers[method] = h
}

// Methods returns the number of registered methods.
func (d *Dispatcher) Methods() int {
	return len(d.handlers)
}

// Register installs the Dispatcher as the method call handler of its channel on m.
func (d *Dispatcher) Register(m Messenger) {
	m.SetMethodCallHandler(d.name, d.HandleMethodCall)
}

// Close cancels the context of in-flight handlers and drains the pending-work queue.
func (d *Dispatcher) Close() {
	d.cancel()
	d.router.Drain()
}

// HandleMethodCall dispatches a single call. It implements MethodCallHandler.
func (d *Dispatcher) HandleMethodCall(call MethodCall, result Result) {
	if n := d.router.Drain(); n > 0 {
		d.log.Debug("released deferred work", zap.Int("count", n))
	}
	if d.trace {
		d.log.Debug("method call",
			zap.String("method", call.Method),
			zap.Stringer("arguments", stringer{call.Arguments}))
	}

	reply := d.router.Track(result)
	h, ok := d.handlers[call.Method]
	if !ok {
		d.log.Debug("method not implemented", zap.String("method", call.Method))
		reply.NotImplemented()
		return
	}

	args, err := codec.NewArgs(call.Arguments)
	if err != nil {
		reply.Error("invalid-argument", err.Error(), nil)
		return
	}

	if err := d.invoke(h, args, reply); err != nil {
		if reply.Fired() {
			d.log.Error("handler returned an error after replying",
				zap.String("method", call.Method), zap.Error(err))
			return
		}
		d.log.Debug("method call failed", zap.String("method", call.Method), zap.Error(err))
		reply.Fail(err)
	}
}

func (d *Dispatcher) invoke(h Handler, args codec.Args, reply *Entry) (err error) {
	defer func() {
		// Unconvertible values are programming errors; keep panicking after logging.
		if r := recover(); r != nil {
			d.log.Error("method handler panicked", zap.Any("panic", r))
			panic(r)
		}
	}()
	return h(d.ctx, args, reply)
}

type stringer struct {
	v codec.Value
}

func (s stringer) String() string {
	if s.v == nil {
		return "null"
	}
	return s.v.String()
}

// Unimplemented returns an error that replies NotImplemented for method.
func Unimplemented(method string) error {
	return fmt.Errorf("%w: %s", ErrNotImplemented, method)
}
