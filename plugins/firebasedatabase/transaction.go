// Copyright 2022 Google Inc. All Rights Reserved.
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

package firebasedatabase

import (
	"context"
	"sync"

	"github.com/firebase/firebase-bridge-go/codec"
	"github.com/firebase/firebase-bridge-go/convert"
	"github.com/firebase/firebase-bridge-go/variant"
	"go.uber.org/zap"
)

const transactionHandlerMethod = "FirebaseDatabase#callTransactionHandler"

// transactionHandoff carries one transaction attempt to the application and back. The backend
// goroutine blocks in wait until the application replies; the reply is delivered through the
// channel.Result methods.
type transactionHandoff struct {
	log *zap.Logger

	mu        sync.Mutex
	cond      *sync.Cond
	done      bool
	aborted   bool
	exception bool
	value     variant.Variant
}

func newTransactionHandoff(logger *zap.Logger) *transactionHandoff {
	h := &transactionHandoff{log: logger}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// Success applies a reply of the form {value, aborted?, exception?}.
func (h *transactionHandoff) Success(v codec.Value) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m, ok := v.(codec.Map); ok {
		args := codec.ArgsOf(m)
		h.aborted = args.BoolOr("aborted", h.aborted)
		h.exception = args.BoolOr("exception", h.exception)
		h.value = convert.ToNative(args.Value(keyValue))
	} else {
		h.log.Error("transaction handler replied with a non-map value", zap.Stringer("reply", v))
		h.aborted = true
	}
	h.signal()
}

// Error aborts the attempt.
func (h *transactionHandoff) Error(code, message string, details codec.Value) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.log.Debug("transaction handler failed", zap.String("code", code), zap.String("message", message))
	h.aborted = true
	h.signal()
}

// NotImplemented aborts the attempt.
func (h *transactionHandoff) NotImplemented() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.aborted = true
	h.signal()
}

func (h *transactionHandoff) signal() {
	h.done = true
	h.cond.Broadcast()
}

// wait blocks until the application replies or ctx is done. It reports whether the attempt may
// commit, together with the value to commit.
func (h *transactionHandoff) wait(ctx context.Context) (variant.Variant, bool) {
	stop := context.AfterFunc(ctx, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.cond.Broadcast()
	})
	defer stop()

	h.mu.Lock()
	defer h.mu.Unlock()
	for !h.done && ctx.Err() == nil {
		h.cond.Wait()
	}
	if !h.done || h.aborted || h.exception {
		return variant.Null(), false
	}
	return h.value, true
}
