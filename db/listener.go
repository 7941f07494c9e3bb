// Copyright 2019 Google Inc. All Rights Reserved.
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
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/firebase/firebase-bridge-go/errorutils"
	"github.com/firebase/firebase-bridge-go/internal"
	"github.com/firebase/firebase-bridge-go/variant"
	"go.uber.org/zap"
)

const (
	minReconnectDelay = 500 * time.Millisecond
	maxReconnectDelay = 30 * time.Second
	maxEventSize      = 16 << 20
)

var errAuthRevoked = errors.New("auth token revoked")

// EventType identifies the kind of change reported to a listener.
type EventType int

// Event types.
const (
	EventValue EventType = iota
	EventChildAdded
	EventChildChanged
	EventChildRemoved
	EventChildMoved
)

var eventTypeNames = []string{"value", "childAdded", "childChanged", "childRemoved", "childMoved"}

func (t EventType) String() string {
	if t >= 0 && int(t) < len(eventTypeNames) {
		return eventTypeNames[t]
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}

// ParseEventType returns the EventType named s, such as "childAdded".
func ParseEventType(s string) (EventType, bool) {
	for i, n := range eventTypeNames {
		if n == s {
			return EventType(i), true
		}
	}
	return 0, false
}

// Event is a change observed by a Listener.
//
// PreviousChildKey is the key of the sibling that precedes the child under the query ordering.
// It is empty for value and child removed events, and for the first child.
type Event struct {
	Type             EventType
	Snapshot         *DataSnapshot
	PreviousChildKey string
}

// Listener streams the results of a query as they change.
//
// Each listener keeps the full data of its location, evaluates the query locally and diffs the
// result after every server-sent event. Events are delivered sequentially on the listener's own
// goroutine.
type Listener struct {
	query    *Query
	onEvent  func(Event)
	onCancel func(error)
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}

	cache variant.Variant
	view  *childView
}

// Listen starts listening to the query. onEvent receives every change, beginning with the
// current data. onCancel is called once if the server cancels the listener, for example because
// of insufficient permissions. The listener stops when ctx is cancelled or Remove is called.
func (q *Query) Listen(ctx context.Context, onEvent func(Event), onCancel func(error)) (*Listener, error) {
	if q.err != nil {
		return nil, q.err
	}
	if _, err := q.params(); err != nil {
		return nil, err
	}
	return q.listen(ctx, onEvent, onCancel), nil
}

func (q *Query) listen(ctx context.Context, onEvent func(Event), onCancel func(error)) *Listener {
	ctx, cancel := context.WithCancel(ctx)
	l := &Listener{
		query:    q,
		onEvent:  onEvent,
		onCancel: onCancel,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go l.run()
	return l
}

// Remove stops the listener. An event that is being delivered while Remove is called still
// completes.
func (l *Listener) Remove() {
	l.cancel()
}

// Done returns a channel that is closed when the listener has stopped.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

func (l *Listener) run() {
	defer close(l.done)
	c := l.query.ref.client
	delay := minReconnectDelay
	for {
		online, offline := c.connectivity()
		select {
		case <-online:
		case <-l.ctx.Done():
			return
		}

		connCtx, stop := context.WithCancel(l.ctx)
		go func() {
			select {
			case <-offline:
				stop()
			case <-connCtx.Done():
			}
		}()
		err := l.stream(connCtx)
		stop()
		if l.ctx.Err() != nil {
			return
		}

		var de *Error
		if errors.As(err, &de) {
			c.log.Warn("listener canceled", zap.String("path", l.query.ref.Path), zap.Error(err))
			l.onCancel(err)
			return
		}
		if errors.Is(err, errAuthRevoked) {
			delay = minReconnectDelay
			continue
		}

		select {
		case <-offline:
			delay = minReconnectDelay
			continue
		default:
		}
		c.log.Warn("listener disconnected; reconnecting", zap.String("path", l.query.ref.Path),
			zap.Duration("delay", delay), zap.Error(err))
		select {
		case <-time.After(delay):
		case <-offline:
		case <-l.ctx.Done():
			return
		}
		if delay *= 2; delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// stream reads server-sent events until the connection ends. Errors of type *Error cancel the
// listener, all other errors lead to a reconnect.
func (l *Listener) stream(ctx context.Context) error {
	c := l.query.ref.client
	req := c.newRequest(http.MethodGet, l.query.ref.Path, nil,
		internal.WithHeader("Accept", "text/event-stream"),
		internal.WithHeader("Cache-Control", "no-cache"),
		internal.WithQueryParam("format", "export"))
	resp, err := c.hc.DoStream(ctx, req)
	if err != nil {
		if errorutils.HTTPResponse(err) != nil {
			return wrapError(err)
		}
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxEventSize)
	var event string
	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if event != "" {
				if err := l.handleEvent(event, strings.Join(data, "\n")); err != nil {
					return err
				}
			}
			event, data = "", nil
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}

type sseData struct {
	Path string          `json:"path"`
	Data json.RawMessage `json:"data"`
}

func (l *Listener) handleEvent(event, data string) error {
	switch event {
	case "put", "patch":
		var d sseData
		if err := json.Unmarshal([]byte(data), &d); err != nil {
			return fmt.Errorf("malformed %s event: %v", event, err)
		}
		value := variant.Null()
		if len(d.Data) > 0 {
			v, err := variant.FromJSON(d.Data)
			if err != nil {
				return fmt.Errorf("malformed %s event: %v", event, err)
			}
			value = v
		}
		segs := parsePath(d.Path)
		if event == "put" {
			l.cache = setChild(l.cache, segs, value)
		} else {
			for _, p := range value.Map() {
				path := append(append([]string{}, segs...), parsePath(keyString(p.Key))...)
				l.cache = setChild(l.cache, path, p.Value)
			}
		}
		l.publish()
	case "cancel":
		var msg string
		if err := json.Unmarshal([]byte(data), &msg); err != nil || msg == "" {
			msg = "listener canceled by the server"
		}
		return newError(ErrorPermissionDenied, "%s", msg)
	case "auth_revoked":
		return errAuthRevoked
	case "keep-alive":
	default:
		l.query.ref.client.log.Debug("ignoring unknown event", zap.String("event", event))
	}
	return nil
}

// childView is the result of a query, indexed for diffing.
type childView struct {
	node  variant.Variant
	keys  []string
	index map[string]int
}

func newChildView(node variant.Variant, keys []string) *childView {
	v := &childView{node: node, keys: keys, index: make(map[string]int, len(keys))}
	for i, k := range keys {
		v.index[k] = i
	}
	return v
}

func (v *childView) prevKey(key string) string {
	if i := v.index[key]; i > 0 {
		return v.keys[i-1]
	}
	return ""
}

func (v *childView) child(key string) variant.Variant {
	return childOf(v.node, key)
}

// publish evaluates the query over the cached data and emits the differences to the previous
// result: removed, added, moved and changed children, then the new value.
func (l *Listener) publish() {
	q := l.query
	node, keys := q.view(l.cache)
	next := newChildView(node, keys)
	prev := l.view
	l.view = next
	q.ref.client.remember(q.cacheKey(paramsOf(q)), node)

	if prev == nil {
		for _, k := range next.keys {
			l.emit(EventChildAdded, k, next.child(k), next.prevKey(k))
		}
		l.emitValue(next)
		return
	}

	for _, k := range prev.keys {
		if _, ok := next.index[k]; !ok {
			l.emit(EventChildRemoved, k, prev.child(k), "")
		}
	}
	for _, k := range next.keys {
		if _, ok := prev.index[k]; !ok {
			l.emit(EventChildAdded, k, next.child(k), next.prevKey(k))
		}
	}
	for _, k := range next.keys {
		if _, ok := prev.index[k]; !ok {
			continue
		}
		before, after := prev.child(k), next.child(k)
		if next.prevKey(k) != prev.prevKey(k) && !variant.Equal(q.order.sortValue(before), q.order.sortValue(after)) {
			l.emit(EventChildMoved, k, after, next.prevKey(k))
		}
	}
	for _, k := range next.keys {
		if _, ok := prev.index[k]; !ok {
			continue
		}
		if !variant.Equal(prev.child(k), next.child(k)) {
			l.emit(EventChildChanged, k, next.child(k), next.prevKey(k))
		}
	}
	if !variant.Equal(prev.node, next.node) {
		l.emitValue(next)
	}
}

func (l *Listener) emit(t EventType, key string, node variant.Variant, prevKey string) {
	if l.ctx.Err() != nil {
		return
	}
	l.onEvent(Event{
		Type:             t,
		Snapshot:         newSnapshot(key, node, ordering{}),
		PreviousChildKey: prevKey,
	})
}

func (l *Listener) emitValue(v *childView) {
	if l.ctx.Err() != nil {
		return
	}
	s := newSnapshot(l.query.ref.Key, v.node, l.query.order)
	s.keys = v.keys
	l.onEvent(Event{Type: EventValue, Snapshot: s})
}

func paramsOf(q *Query) map[string]string {
	qp, _ := q.params()
	return qp
}
