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
	"errors"
	"sync"

	"github.com/firebase/firebase-bridge-go/codec"
	"github.com/firebase/firebase-bridge-go/future"
	"go.uber.org/zap"
)

// ErrClosed is returned by Loopback operations after Close.
var ErrClosed = errors.New("channel: messenger closed")

// Loopback is an in-process Messenger. Plugin handlers run on a single processing goroutine owned
// by the Loopback. The application side of the conversation is driven through Call, Listen and
// HandleOutgoing.
type Loopback struct {
	log *zap.Logger

	mu       sync.Mutex
	handlers map[string]MethodCallHandler
	streams  map[string]StreamHandler
	outgoing map[string]MethodCallHandler

	work      *future.Queue[func()]
	closeOnce sync.Once
	closed    chan struct{}
	stopped   chan struct{}
}

// NewLoopback creates a Loopback and starts its processing goroutine.
func NewLoopback(logger *zap.Logger) *Loopback {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Loopback{
		log:      logger,
		handlers: make(map[string]MethodCallHandler),
		streams:  make(map[string]StreamHandler),
		outgoing: make(map[string]MethodCallHandler),
		work:     future.NewQueue[func()](),
		closed:   make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loopback) run() {
	defer close(l.stopped)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-l.closed
		cancel()
	}()
	for {
		fn, err := l.work.Pop(ctx)
		if err != nil {
			return
		}
		fn()
	}
}

// post schedules fn on the processing goroutine.
func (l *Loopback) post(fn func()) error {
	select {
	case <-l.closed:
		return ErrClosed
	default:
	}
	l.work.Push(fn)
	return nil
}

// Close stops the processing goroutine. Work that has not started is discarded.
func (l *Loopback) Close() {
	l.closeOnce.Do(func() {
		close(l.closed)
	})
	<-l.stopped
}

// SetMethodCallHandler implements Messenger.
func (l *Loopback) SetMethodCallHandler(channel string, h MethodCallHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if h == nil {
		delete(l.handlers, channel)
		return
	}
	l.handlers[channel] = h
}

// SetStreamHandler implements Messenger.
func (l *Loopback) SetStreamHandler(channel string, h StreamHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if h == nil {
		delete(l.streams, channel)
		return
	}
	l.streams[channel] = h
}

// HandleOutgoing registers the application-side handler for calls the plugins send on channel.
func (l *Loopback) HandleOutgoing(channel string, h MethodCallHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if h == nil {
		delete(l.outgoing, channel)
		return
	}
	l.outgoing[channel] = h
}

// InvokeMethod implements Messenger. The application-side handler runs on its own goroutine and
// its reply is delivered to result on the processing goroutine.
func (l *Loopback) InvokeMethod(channel string, call MethodCall, result Result) {
	l.mu.Lock()
	h := l.outgoing[channel]
	l.mu.Unlock()

	deliver := func(fn func()) {
		if err := l.post(fn); err != nil {
			l.log.Debug("dropping reply", zap.String("channel", channel), zap.String("method", call.Method))
		}
	}
	if h == nil {
		deliver(result.NotImplemented)
		return
	}
	go h(call, ResultFuncs{
		SuccessFunc: func(v codec.Value) {
			deliver(func() { result.Success(v) })
		},
		ErrorFunc: func(code, message string, details codec.Value) {
			deliver(func() { result.Error(code, message, details) })
		},
		NotImplementedFunc: func() {
			deliver(result.NotImplemented)
		},
	})
}

// Call sends a method call to the plugin registered on channel and waits for its reply. Error
// replies are returned as *Error and NotImplemented replies as ErrNotImplemented.
func (l *Loopback) Call(ctx context.Context, channel, method string, args codec.Value) (codec.Value, error) {
	f, complete := future.New[codec.Value]()
	result := ResultFuncs{
		SuccessFunc: func(v codec.Value) {
			complete(v, nil)
		},
		ErrorFunc: func(code, message string, details codec.Value) {
			complete(nil, &Error{Code: code, Message: message, Details: details})
		},
		NotImplementedFunc: func() {
			complete(nil, ErrNotImplemented)
		},
	}
	err := l.post(func() {
		l.mu.Lock()
		h := l.handlers[channel]
		l.mu.Unlock()
		if h == nil {
			result.NotImplemented()
			return
		}
		h(MethodCall{Method: method, Arguments: args}, result)
	})
	if err != nil {
		return nil, err
	}
	return f.Wait(ctx)
}

// StreamEvent is one item received on a Stream.
type StreamEvent struct {
	Value codec.Value
	Err   *Error
	End   bool
}

// Stream is the application side of an event channel subscription.
type Stream struct {
	l       *Loopback
	channel string
	args    codec.Value
	events  *future.Queue[StreamEvent]
	once    sync.Once
}

type queueSink struct {
	events *future.Queue[StreamEvent]
}

func (s queueSink) Success(v codec.Value) {
	s.events.Push(StreamEvent{Value: v})
}

func (s queueSink) Error(code, message string, details codec.Value) {
	s.events.Push(StreamEvent{Err: &Error{Code: code, Message: message, Details: details}})
}

func (s queueSink) EndOfStream() {
	s.events.Push(StreamEvent{End: true})
}

// Listen subscribes to the event channel and returns the resulting Stream.
func (l *Loopback) Listen(ctx context.Context, channel string, args codec.Value) (*Stream, error) {
	s := &Stream{l: l, channel: channel, args: args, events: future.NewQueue[StreamEvent]()}
	f, complete := future.New[struct{}]()
	err := l.post(func() {
		l.mu.Lock()
		h := l.streams[channel]
		l.mu.Unlock()
		if h == nil {
			complete(struct{}{}, ErrNotImplemented)
			return
		}
		if ce := h.OnListen(args, queueSink{events: s.events}); ce != nil {
			complete(struct{}{}, ce)
			return
		}
		complete(struct{}{}, nil)
	})
	if err != nil {
		return nil, err
	}
	if _, err := f.Wait(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Next blocks until the next event arrives or ctx is done.
func (s *Stream) Next(ctx context.Context) (StreamEvent, error) {
	return s.events.Pop(ctx)
}

// Cancel unsubscribes from the event channel. Calls after the first return nil.
func (s *Stream) Cancel(ctx context.Context) error {
	var err error
	s.once.Do(func() {
		f, complete := future.New[struct{}]()
		if perr := s.l.post(func() {
			s.l.mu.Lock()
			h := s.l.streams[s.channel]
			s.l.mu.Unlock()
			if h == nil {
				complete(struct{}{}, nil)
				return
			}
			if ce := h.OnCancel(s.args); ce != nil {
				complete(struct{}{}, ce)
				return
			}
			complete(struct{}{}, nil)
		}); perr != nil {
			err = perr
			return
		}
		_, err = f.Wait(ctx)
	})
	return err
}
