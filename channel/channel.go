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

// Package channel contains the method and event channel abstractions used by the Firebase
// plugins, together with the routing helpers that turn asynchronous results into channel replies.
//
// The host application framework implements Messenger. Loopback is an in-process implementation
// used by tests and command line tools.
package channel

import (
	"errors"
	"fmt"

	"github.com/firebase/firebase-bridge-go/codec"
)

// ErrNotImplemented is returned to callers when the receiving side does not handle a method.
var ErrNotImplemented = errors.New("channel: method not implemented")

// MethodCall is a single invocation received from or sent to the application.
type MethodCall struct {
	Method    string
	Arguments codec.Value
}

// Result receives the reply to a MethodCall. Exactly one of its methods should be called.
type Result interface {
	Success(v codec.Value)
	Error(code, message string, details codec.Value)
	NotImplemented()
}

// ResultFuncs adapts plain functions to the Result interface. Nil functions are ignored.
type ResultFuncs struct {
	SuccessFunc        func(v codec.Value)
	ErrorFunc          func(code, message string, details codec.Value)
	NotImplementedFunc func()
}

// Success implements Result.
func (r ResultFuncs) Success(v codec.Value) {
	if r.SuccessFunc != nil {
		r.SuccessFunc(v)
	}
}

// Error implements Result.
func (r ResultFuncs) Error(code, message string, details codec.Value) {
	if r.ErrorFunc != nil {
		r.ErrorFunc(code, message, details)
	}
}

// NotImplemented implements Result.
func (r ResultFuncs) NotImplemented() {
	if r.NotImplementedFunc != nil {
		r.NotImplementedFunc()
	}
}

// Error is an error reply sent over a channel.
type Error struct {
	Code    string
	Message string
	Details codec.Value
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Errorf creates an Error with a formatted message and no details.
func Errorf(code string, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ReplyError sends err to result, keeping the code and details of *Error values.
func ReplyError(result Result, err error) {
	var ce *Error
	if errors.As(err, &ce) {
		result.Error(ce.Code, ce.Message, ce.Details)
		return
	}
	if errors.Is(err, ErrNotImplemented) {
		result.NotImplemented()
		return
	}
	if codec.IsArgumentError(err) {
		result.Error("invalid-argument", err.Error(), nil)
		return
	}
	result.Error("unknown", err.Error(), nil)
}

// EventSink receives the events of an active stream.
type EventSink interface {
	Success(event codec.Value)
	Error(code, message string, details codec.Value)
	EndOfStream()
}

// StreamHandler handles the subscription lifecycle of an event channel.
type StreamHandler interface {
	OnListen(args codec.Value, sink EventSink) *Error
	OnCancel(args codec.Value) *Error
}

// StreamHandlerFuncs adapts plain functions to the StreamHandler interface.
type StreamHandlerFuncs struct {
	ListenFunc func(args codec.Value, sink EventSink) *Error
	CancelFunc func(args codec.Value) *Error
}

// OnListen implements StreamHandler.
func (h StreamHandlerFuncs) OnListen(args codec.Value, sink EventSink) *Error {
	if h.ListenFunc == nil {
		return nil
	}
	return h.ListenFunc(args, sink)
}

// OnCancel implements StreamHandler.
func (h StreamHandlerFuncs) OnCancel(args codec.Value) *Error {
	if h.CancelFunc == nil {
		return nil
	}
	return h.CancelFunc(args)
}

// MethodCallHandler handles calls received on a method channel.
type MethodCallHandler func(call MethodCall, result Result)

// Messenger is the transport between the plugins and the application.
//
// Handlers registered on a Messenger are invoked on a single processing goroutine, one call at a
// time. InvokeMethod may be called from any goroutine; its result is delivered on the processing
// goroutine.
type Messenger interface {
	SetMethodCallHandler(channel string, h MethodCallHandler)
	SetStreamHandler(channel string, h StreamHandler)
	InvokeMethod(channel string, call MethodCall, result Result)
}

// MethodChannel is a named method channel bound to a Messenger.
type MethodChannel struct {
	name      string
	messenger Messenger
}

// NewMethodChannel creates a MethodChannel.
func NewMethodChannel(m Messenger, name string) *MethodChannel {
	return &MethodChannel{name: name, messenger: m}
}

// Name returns the channel name.
func (c *MethodChannel) Name() string {
	return c.name
}

// SetMethodCallHandler registers the handler for calls received on the channel. A nil handler
// unregisters it.
func (c *MethodChannel) SetMethodCallHandler(h MethodCallHandler) {
	c.messenger.SetMethodCallHandler(c.name, h)
}

// InvokeMethod sends a call to the application. A nil result discards the reply.
func (c *MethodChannel) InvokeMethod(method string, args codec.Value, result Result) {
	if result == nil {
		result = ResultFuncs{}
	}
	c.messenger.InvokeMethod(c.name, MethodCall{Method: method, Arguments: args}, result)
}

// EventChannel is a named event channel bound to a Messenger.
type EventChannel struct {
	name      string
	messenger Messenger
}

// NewEventChannel creates an EventChannel.
func NewEventChannel(m Messenger, name string) *EventChannel {
	return &EventChannel{name: name, messenger: m}
}

// Name returns the channel name.
func (c *EventChannel) Name() string {
	return c.name
}

// SetStreamHandler registers the stream handler of the channel. A nil handler unregisters it.
func (c *EventChannel) SetStreamHandler(h StreamHandler) {
	c.messenger.SetStreamHandler(c.name, h)
}
