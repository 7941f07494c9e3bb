// Copyright 2018 Google Inc. All Rights Reserved.
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

package db

import (
	"context"
	"net/http"
	"strings"

	"github.com/firebase/firebase-bridge-go/internal"
	"github.com/firebase/firebase-bridge-go/variant"
	"go.uber.org/zap"
)

// txnRetries is the maximum number of times a transaction is retried before giving up. Transaction
// retries are triggered by concurrent conflicting updates to the same database location.
const txnRetries = 25

var specialKeys = map[string]bool{
	priorityKey: true,
	valueKey:    true,
	".sv":       true,
}

// Ref represents a node in the Firebase Realtime Database.
type Ref struct {
	Key  string
	Path string

	segs   []string
	client *Client
}

// Parent returns a reference to the parent of the current node.
//
// If the current reference points to the root of the database, Parent returns nil.
func (r *Ref) Parent() *Ref {
	l := len(r.segs)
	if l > 0 {
		parent, _ := r.client.NewRef(strings.Join(r.segs[:l-1], "/"))
		return parent
	}
	return nil
}

// Child returns a reference to the specified child node.
func (r *Ref) Child(path string) (*Ref, error) {
	return r.client.NewRef(r.Path + "/" + path)
}

// Query returns an unfiltered query over this location, ordered by priority.
func (r *Ref) Query() *Query {
	return &Query{ref: r}
}

// Get retrieves the value and priority at the current database location.
func (r *Ref) Get(ctx context.Context) (*DataSnapshot, error) {
	return r.Query().Get(ctx)
}

// Set stores the value v in the current database node, replacing any priority it had.
func (r *Ref) Set(ctx context.Context, v variant.Variant) error {
	if err := validateValue(v); err != nil {
		return err
	}
	return r.client.write(ctx, r.newRequest(http.MethodPut, v))
}

// SetWithPriority stores the value v in the current database node along with a priority.
func (r *Ref) SetWithPriority(ctx context.Context, v, priority variant.Variant) error {
	if err := validateValue(v); err != nil {
		return err
	}
	if err := validatePriority(priority); err != nil {
		return err
	}
	return r.client.write(ctx, r.newRequest(http.MethodPut, withPriority(v, priority)))
}

// SetPriority changes the priority of the current database node, leaving its value untouched.
func (r *Ref) SetPriority(ctx context.Context, priority variant.Variant) error {
	if err := validatePriority(priority); err != nil {
		return err
	}
	req := r.client.newRequest(http.MethodPut, r.childPath(priorityKey), priority,
		internal.WithQueryParam("print", "silent"))
	return r.client.write(ctx, req)
}

// Update modifies the specified child keys of the current location to the provided values.
//
// v must be a non-empty map. Keys may be slash-separated paths relative to this location.
func (r *Ref) Update(ctx context.Context, v variant.Variant) error {
	if err := validateUpdate(v); err != nil {
		return err
	}
	return r.client.write(ctx, r.newRequest(http.MethodPatch, v))
}

func (r *Ref) newRequest(method string, body variant.Variant) *internal.Request {
	return r.client.newRequest(method, r.Path, body, internal.WithQueryParam("print", "silent"))
}

func (r *Ref) childPath(key string) string {
	if r.Path == "/" {
		return "/" + key
	}
	return r.Path + "/" + key
}

// TransactionResult tells a transaction whether to commit the new value or abort.
type TransactionResult int

// Transaction results.
const (
	TransactionSuccess TransactionResult = iota
	TransactionAbort
)

// TransactionFunc is called with the current data of a location for every transaction attempt.
type TransactionFunc func(data *MutableData) TransactionResult

// MutableData holds the data of a database location within the scope of a transaction attempt.
type MutableData struct {
	Key  string
	node variant.Variant
}

// Value returns the current value, without its priority.
func (m *MutableData) Value() variant.Variant {
	return exportValue(m.node)
}

// Priority returns the current priority.
func (m *MutableData) Priority() variant.Variant {
	return priorityOf(m.node)
}

// SetValue replaces the value, keeping the current priority.
func (m *MutableData) SetValue(v variant.Variant) {
	m.node = withPriority(v, m.Priority())
}

// SetPriority replaces the priority.
func (m *MutableData) SetPriority(p variant.Variant) {
	m.node = withPriority(m.Value(), p)
}

// Snapshot returns an immutable copy of the current data.
func (m *MutableData) Snapshot() *DataSnapshot {
	return newSnapshot(m.Key, m.node, ordering{})
}

// RunTransaction atomically modifies the data at this location.
//
// fn is called with the current data of the location and returns whether the modified data
// should be committed. If another client writes to this location before the new value is saved,
// fn is called again with the new current value. After 25 failed attempts the transaction fails
// with ErrorMaxRetries.
//
// When fn aborts, RunTransaction returns the current data together with an error carrying
// ErrorTransactionAbortedByUser. When applyLocally is set, each tentative value is made visible
// to offline reads of this location before it is committed.
func (r *Ref) RunTransaction(ctx context.Context, fn TransactionFunc, applyLocally bool) (*DataSnapshot, error) {
	c := r.client
	if err := c.awaitOnline(ctx); err != nil {
		return nil, err
	}

	req := c.newRequest(http.MethodGet, r.Path, nil,
		internal.WithHeader("X-Firebase-ETag", "true"),
		internal.WithQueryParam("format", "export"))
	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}
	node, err := variant.FromJSON(resp.Body)
	if err != nil {
		return nil, newError(ErrorOperationFailed, "error while parsing response: %v", err)
	}
	etag := resp.Header.Get("ETag")

	for i := 0; i < txnRetries; i++ {
		data := &MutableData{Key: r.Key, node: node}
		if fn(data) == TransactionAbort {
			return newSnapshot(r.Key, node, ordering{}), newError(ErrorTransactionAbortedByUser,
				"transaction aborted by user")
		}
		if err := validateValue(data.node); err != nil {
			return nil, err
		}
		if applyLocally {
			c.remember(r.Path, data.node)
		}

		put := c.newRequest(http.MethodPut, r.Path, data.node, internal.WithHeader("If-Match", etag))
		put.SuccessFn = func(resp *internal.Response) bool {
			return internal.HasSuccessStatus(resp) || resp.Status == http.StatusPreconditionFailed
		}
		resp, err := c.send(ctx, put)
		if err != nil {
			return nil, err
		}
		if resp.Status != http.StatusPreconditionFailed {
			c.remember(r.Path, data.node)
			return newSnapshot(r.Key, data.node, ordering{}), nil
		}

		c.log.Debug("transaction conflict", zap.String("path", r.Path), zap.Int("attempt", i+1))
		etag = resp.Header.Get("ETag")
		if node, err = variant.FromJSON(resp.Body); err != nil {
			return nil, newError(ErrorOperationFailed, "error while parsing response: %v", err)
		}
	}
	return nil, newError(ErrorMaxRetries, "transaction aborted after failed retries")
}

// OnDisconnect returns the set of operations to run at this location when the client
// disconnects.
func (r *Ref) OnDisconnect() *OnDisconnect {
	return &OnDisconnect{ref: r}
}

// OnDisconnect records writes that are executed when the client goes offline or is closed.
type OnDisconnect struct {
	ref *Ref
}

type disconnectOp struct {
	path   string
	method string
	body   variant.Variant
}

// Set schedules v to be written to the location on disconnect.
func (o *OnDisconnect) Set(v variant.Variant) error {
	if err := validateValue(v); err != nil {
		return err
	}
	return o.register(http.MethodPut, v)
}

// SetWithPriority schedules v to be written with a priority on disconnect.
func (o *OnDisconnect) SetWithPriority(v, priority variant.Variant) error {
	if err := validateValue(v); err != nil {
		return err
	}
	if err := validatePriority(priority); err != nil {
		return err
	}
	return o.register(http.MethodPut, withPriority(v, priority))
}

// Update schedules the children of v to be updated on disconnect.
func (o *OnDisconnect) Update(v variant.Variant) error {
	if err := validateUpdate(v); err != nil {
		return err
	}
	return o.register(http.MethodPatch, v)
}

// Cancel discards the operations scheduled at this location and below it.
func (o *OnDisconnect) Cancel() error {
	c := o.ref.client
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.disconnect[:0]
	for _, op := range c.disconnect {
		if !isDescendant(o.ref.Path, op.path) {
			kept = append(kept, op)
		}
	}
	c.disconnect = kept
	return nil
}

func (o *OnDisconnect) register(method string, body variant.Variant) error {
	c := o.ref.client
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return newError(ErrorDisconnected, "database client is closed")
	}
	c.disconnect = append(c.disconnect, &disconnectOp{path: o.ref.Path, method: method, body: body})
	return nil
}

func (c *Client) runDisconnectOps(ctx context.Context, ops []*disconnectOp) {
	for _, op := range ops {
		req := c.newRequest(op.method, op.path, op.body, internal.WithQueryParam("print", "silent"))
		if _, err := c.send(ctx, req); err != nil {
			c.log.Error("failed to run disconnect operation", zap.String("path", op.path), zap.Error(err))
		}
	}
}

func isDescendant(parent, path string) bool {
	if parent == "/" || parent == path {
		return true
	}
	return strings.HasPrefix(path, parent+"/")
}

func validateValue(v variant.Variant) error {
	switch {
	case v.IsMap():
		for _, p := range v.Map() {
			if err := validateKey(p.Key, false); err != nil {
				return err
			}
			if err := validateValue(p.Value); err != nil {
				return err
			}
		}
	case v.IsVector():
		for _, e := range v.Vector() {
			if err := validateValue(e); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateUpdate(v variant.Variant) error {
	if !v.IsMap() || v.Len() == 0 {
		return newError(ErrorInvalidVariantType, "update value must be a non-empty map")
	}
	for _, p := range v.Map() {
		if err := validateKey(p.Key, true); err != nil {
			return err
		}
		if err := validateValue(p.Value); err != nil {
			return err
		}
	}
	return nil
}

func validateKey(k variant.Variant, allowPath bool) error {
	if !k.IsString() && k.Type() != variant.TypeInt64 {
		return newError(ErrorInvalidVariantType, "invalid key type: %s", k.Type())
	}
	s := keyString(k)
	if specialKeys[s] {
		return nil
	}
	if s == "" || strings.ContainsAny(s, invalidChars) || (!allowPath && strings.Contains(s, "/")) {
		return newError(ErrorInvalidVariantType, "key %q contains one or more invalid characters", s)
	}
	return nil
}

func validatePriority(p variant.Variant) error {
	if p.IsNull() || p.IsNumeric() || p.IsString() {
		return nil
	}
	return newError(ErrorInvalidVariantType, "priority must be a string or a number: %s", p.Type())
}
