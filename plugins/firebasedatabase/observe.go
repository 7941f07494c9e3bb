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
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/firebase/firebase-bridge-go/channel"
	"github.com/firebase/firebase-bridge-go/codec"
	"github.com/firebase/firebase-bridge-go/db"
	"go.uber.org/zap"
)

// queryStream connects one query listener to the event channel created for it. It serves a
// single subscription; cancelling it unregisters the channel.
type queryStream struct {
	ctx   context.Context
	name  string
	query *db.Query
	ch    *channel.EventChannel
	log   *zap.Logger
	trace *atomic.Bool

	mu        sync.Mutex
	sink      channel.EventSink
	eventType string
	sub       *channel.Subscription
}

func newQueryStream(ctx context.Context, name string, q *db.Query, ch *channel.EventChannel, logger *zap.Logger, trace *atomic.Bool) *queryStream {
	return &queryStream{
		ctx:   ctx,
		name:  name,
		query: q,
		ch:    ch,
		log:   logger.With(zap.String("channel", name)),
		trace: trace,
	}
}

// OnListen subscribes to the query for the event type named in args.
func (s *queryStream) OnListen(args codec.Value, sink channel.EventSink) *channel.Error {
	a, err := codec.NewArgs(args)
	if err != nil {
		return channel.Errorf("invalid-argument", "%v", err)
	}
	eventType, err := a.RequiredString(keyEventType)
	if err != nil {
		return channel.Errorf("invalid-argument", "%v", err)
	}
	if _, ok := db.ParseEventType(eventType); !ok {
		return channel.Errorf("invalid-argument", "unknown event type %q", eventType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		return channel.Errorf("failed-precondition", "stream %s is already listening", s.name)
	}
	l, err := s.query.Listen(s.ctx, s.onEvent, s.onCancel)
	if err != nil {
		return &channel.Error{Code: strconv.Itoa(int(db.CodeOf(err))), Message: err.Error()}
	}
	s.sink = sink
	s.eventType = eventType
	s.sub = channel.NewSubscription(l.Remove)
	s.log.Debug("listening", zap.String("eventType", eventType))
	return nil
}

// OnCancel removes the listener and unregisters the event channel.
func (s *queryStream) OnCancel(args codec.Value) *channel.Error {
	s.mu.Lock()
	sub := s.sub
	s.sink = nil
	s.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
	s.ch.SetStreamHandler(nil)
	s.log.Debug("canceled")
	return nil
}

func (s *queryStream) onEvent(ev db.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sink == nil {
		return
	}
	sent := channel.RouteChildEvent(s.eventType, ev.Type.String(), eventPayload(ev), s.sink)
	if s.trace.Load() {
		s.log.Debug("listener event",
			zap.Stringer("type", ev.Type),
			zap.String("key", ev.Snapshot.Key),
			zap.Bool("sent", sent))
	}
}

func (s *queryStream) onCancel(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sink == nil {
		return
	}
	s.sink.Error(strconv.Itoa(int(db.CodeOf(err))), err.Error(), nil)
}
