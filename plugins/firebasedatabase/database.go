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

// Package firebasedatabase serves the firebase_database method channel and the event channels
// created for query listeners.
package firebasedatabase

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	firebase "github.com/firebase/firebase-bridge-go"
	"github.com/firebase/firebase-bridge-go/channel"
	"github.com/firebase/firebase-bridge-go/codec"
	"github.com/firebase/firebase-bridge-go/db"
	"github.com/firebase/firebase-bridge-go/future"
	"go.uber.org/zap"
)

// ChannelName is the name of the method channel served by the plugin.
const ChannelName = "plugins.flutter.io/firebase_database"

// Plugin dispatches database calls. Outbound transaction calls and listener event channels use
// the messenger the plugin is registered on.
type Plugin struct {
	registry   *DatabaseRegistry
	log        *zap.Logger
	dispatcher *channel.Dispatcher

	bound     atomic.Pointer[binding]
	listeners atomic.Int64
	trace     atomic.Bool
}

// binding is the messenger a plugin is registered on.
type binding struct {
	messenger channel.Messenger
	methods   *channel.MethodChannel
}

// New creates the plugin.
func New(apps *firebase.Apps, router *channel.Router, logger *zap.Logger) *Plugin {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Plugin{
		registry:   NewDatabaseRegistry(apps, logger.Named("database")),
		log:        logger.Named("database"),
		dispatcher: channel.NewDispatcher(ChannelName, router, logger),
	}
	handlers := map[string]channel.Handler{
		"FirebaseDatabase#goOnline":               p.goOnline,
		"FirebaseDatabase#goOffline":              p.goOffline,
		"FirebaseDatabase#purgeOutstandingWrites": p.purgeOutstandingWrites,
		"DatabaseReference#set":                   p.set,
		"DatabaseReference#setWithPriority":       p.setWithPriority,
		"DatabaseReference#update":                p.update,
		"DatabaseReference#setPriority":           p.setPriority,
		"DatabaseReference#runTransaction":        p.runTransaction,
		"OnDisconnect#set":                        p.onDisconnectSet,
		"OnDisconnect#setWithPriority":            p.onDisconnectSetWithPriority,
		"OnDisconnect#update":                     p.onDisconnectUpdate,
		"OnDisconnect#cancel":                     p.onDisconnectCancel,
		"Query#get":                               p.queryGet,
		"Query#keepSynced":                        p.queryKeepSynced,
		"Query#observe":                           p.queryObserve,
	}
	for m, h := range handlers {
		p.dispatcher.Handle(m, h)
	}
	return p
}

// Registry returns the client registry of the plugin.
func (p *Plugin) Registry() *DatabaseRegistry {
	return p.registry
}

// Dispatcher returns the dispatcher serving the channel.
func (p *Plugin) Dispatcher() *channel.Dispatcher {
	return p.dispatcher
}

// SetStreamTrace enables debug logging of listener events.
func (p *Plugin) SetStreamTrace(enabled bool) {
	p.trace.Store(enabled)
}

// Register installs the plugin on m.
func (p *Plugin) Register(m channel.Messenger) {
	p.bound.Store(&binding{messenger: m, methods: channel.NewMethodChannel(m, ChannelName)})
	p.dispatcher.Register(m)
}

// registration returns the messenger the plugin is registered on. Calls that talk back to the
// application fail with failed-precondition before Register.
func (p *Plugin) registration() (*binding, error) {
	b := p.bound.Load()
	if b == nil {
		return nil, channel.Errorf("failed-precondition", "plugin is not registered on a messenger")
	}
	return b, nil
}

// Close cancels in-flight calls, pending transactions and listeners.
func (p *Plugin) Close() {
	p.dispatcher.Close()
}

func (p *Plugin) client(ctx context.Context, req *databaseRequest) (*db.Client, error) {
	c, err := p.registry.Get(ctx, req)
	if errors.Is(err, firebase.ErrAppNotFound) {
		return nil, channel.Errorf("app-not-found", "%v", err)
	}
	if err != nil {
		return nil, channel.Errorf("unknown", "%v", err)
	}
	return c, nil
}

func (p *Plugin) ref(ctx context.Context, req *refRequest) (*db.Ref, error) {
	c, err := p.client(ctx, req.databaseRequest)
	if err != nil {
		return nil, err
	}
	r, err := c.NewRef(req.Path)
	if err != nil {
		return nil, replyError(err)
	}
	return r, nil
}

// void completes result with Null once fn returns.
func (p *Plugin) void(ctx context.Context, result channel.Result, fn func(context.Context) error) {
	f := future.Go(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	channel.Await(p.dispatcher.Router(), result, f, nil, dbError)
}

func (p *Plugin) goOnline(ctx context.Context, args codec.Args, result channel.Result) error {
	c, err := p.client(ctx, parseDatabase(args))
	if err != nil {
		return err
	}
	p.void(ctx, result, func(ctx context.Context) error {
		c.GoOnline(ctx)
		return nil
	})
	return nil
}

func (p *Plugin) goOffline(ctx context.Context, args codec.Args, result channel.Result) error {
	c, err := p.client(ctx, parseDatabase(args))
	if err != nil {
		return err
	}
	p.void(ctx, result, func(ctx context.Context) error {
		c.GoOffline(ctx)
		return nil
	})
	return nil
}

func (p *Plugin) purgeOutstandingWrites(ctx context.Context, args codec.Args, result channel.Result) error {
	c, err := p.client(ctx, parseDatabase(args))
	if err != nil {
		return err
	}
	c.PurgeOutstandingWrites()
	result.Success(codec.Null{})
	return nil
}

func (p *Plugin) write(ctx context.Context, args codec.Args, result channel.Result, fn func(context.Context, *db.Ref, *writeRequest) error) error {
	req, err := parseWrite(args)
	if err != nil {
		return err
	}
	ref, err := p.ref(ctx, req.refRequest)
	if err != nil {
		return err
	}
	p.void(ctx, result, func(ctx context.Context) error {
		return fn(ctx, ref, req)
	})
	return nil
}

func (p *Plugin) set(ctx context.Context, args codec.Args, result channel.Result) error {
	return p.write(ctx, args, result, func(ctx context.Context, r *db.Ref, req *writeRequest) error {
		return r.Set(ctx, req.Value)
	})
}

func (p *Plugin) setWithPriority(ctx context.Context, args codec.Args, result channel.Result) error {
	return p.write(ctx, args, result, func(ctx context.Context, r *db.Ref, req *writeRequest) error {
		return r.SetWithPriority(ctx, req.Value, req.Priority)
	})
}

func (p *Plugin) update(ctx context.Context, args codec.Args, result channel.Result) error {
	return p.write(ctx, args, result, func(ctx context.Context, r *db.Ref, req *writeRequest) error {
		return r.Update(ctx, req.Value)
	})
}

func (p *Plugin) setPriority(ctx context.Context, args codec.Args, result channel.Result) error {
	return p.write(ctx, args, result, func(ctx context.Context, r *db.Ref, req *writeRequest) error {
		return r.SetPriority(ctx, req.Priority)
	})
}

type transactionOutcome struct {
	snapshot  *db.DataSnapshot
	committed bool
}

func (p *Plugin) runTransaction(ctx context.Context, args codec.Args, result channel.Result) error {
	req, err := parseTransaction(args)
	if err != nil {
		return err
	}
	b, err := p.registration()
	if err != nil {
		return err
	}
	ref, err := p.ref(ctx, req.refRequest)
	if err != nil {
		return err
	}

	update := func(data *db.MutableData) db.TransactionResult {
		h := newTransactionHandoff(p.log)
		payload := snapshotPayload(data.Snapshot()).Set(keyTransactionKey, codec.Int64(req.Key))
		b.methods.InvokeMethod(transactionHandlerMethod, payload, h)
		v, ok := h.wait(ctx)
		if !ok {
			return db.TransactionAbort
		}
		data.SetValue(v)
		return db.TransactionSuccess
	}

	f := future.Go(ctx, func(ctx context.Context) (transactionOutcome, error) {
		snap, err := ref.RunTransaction(ctx, update, req.ApplyLocally)
		switch db.CodeOf(err) {
		case db.ErrorNone:
			return transactionOutcome{snapshot: snap, committed: true}, nil
		case db.ErrorTransactionAbortedByUser, db.ErrorWriteCanceled:
			return transactionOutcome{snapshot: snap}, nil
		}
		return transactionOutcome{}, err
	})
	channel.Await(p.dispatcher.Router(), result, f, func(o transactionOutcome) (codec.Value, error) {
		return snapshotPayload(o.snapshot).Set("committed", codec.Bool(o.committed)), nil
	}, dbError)
	return nil
}

func (p *Plugin) onDisconnect(ctx context.Context, args codec.Args, result channel.Result, fn func(*db.OnDisconnect, *writeRequest) error) error {
	req, err := parseWrite(args)
	if err != nil {
		return err
	}
	ref, err := p.ref(ctx, req.refRequest)
	if err != nil {
		return err
	}
	if err := fn(ref.OnDisconnect(), req); err != nil {
		return replyError(err)
	}
	result.Success(codec.Null{})
	return nil
}

func (p *Plugin) onDisconnectSet(ctx context.Context, args codec.Args, result channel.Result) error {
	return p.onDisconnect(ctx, args, result, func(o *db.OnDisconnect, req *writeRequest) error {
		return o.Set(req.Value)
	})
}

func (p *Plugin) onDisconnectSetWithPriority(ctx context.Context, args codec.Args, result channel.Result) error {
	return p.onDisconnect(ctx, args, result, func(o *db.OnDisconnect, req *writeRequest) error {
		return o.SetWithPriority(req.Value, req.Priority)
	})
}

func (p *Plugin) onDisconnectUpdate(ctx context.Context, args codec.Args, result channel.Result) error {
	return p.onDisconnect(ctx, args, result, func(o *db.OnDisconnect, req *writeRequest) error {
		return o.Update(req.Value)
	})
}

func (p *Plugin) onDisconnectCancel(ctx context.Context, args codec.Args, result channel.Result) error {
	return p.onDisconnect(ctx, args, result, func(o *db.OnDisconnect, _ *writeRequest) error {
		return o.Cancel()
	})
}

func (p *Plugin) query(ctx context.Context, args codec.Args) (*db.Query, error) {
	req, err := parseQuery(args)
	if err != nil {
		return nil, err
	}
	ref, err := p.ref(ctx, req.refRequest)
	if err != nil {
		return nil, err
	}
	return p.applyModifiers(ref.Query(), req.Modifiers), nil
}

func (p *Plugin) applyModifiers(q *db.Query, mods []modifier) *db.Query {
	for _, m := range mods {
		switch m.Type + "/" + m.Name {
		case modifierOrderBy + "/" + orderByChild:
			q = q.OrderByChild(m.Path)
		case modifierOrderBy + "/" + orderByKey:
			q = q.OrderByKey()
		case modifierOrderBy + "/" + orderByValue:
			q = q.OrderByValue()
		case modifierOrderBy + "/" + orderByPriority:
			q = q.OrderByPriority()
		case modifierCursor + "/" + cursorStartAt:
			q = q.StartAt(m.Value, m.Key)
		case modifierCursor + "/" + cursorEndAt:
			q = q.EndAt(m.Value, m.Key)
		case modifierCursor + "/" + cursorEqualTo:
			q = q.EqualTo(m.Value, m.Key)
		case modifierLimit + "/" + limitToFirst:
			q = q.LimitToFirst(int(m.Limit))
		case modifierLimit + "/" + limitToLast:
			q = q.LimitToLast(int(m.Limit))
		case modifierCursor + "/" + cursorStartAfter, modifierCursor + "/" + cursorEndBefore:
			p.log.Warn("query modifier is not supported", zap.String("name", m.Name))
		default:
			p.log.Warn("unknown query modifier", zap.String("type", m.Type), zap.String("name", m.Name))
		}
	}
	return q
}

func (p *Plugin) queryGet(ctx context.Context, args codec.Args, result channel.Result) error {
	q, err := p.query(ctx, args)
	if err != nil {
		return err
	}
	f := future.Go(ctx, q.Get)
	channel.Await(p.dispatcher.Router(), result, f, func(s *db.DataSnapshot) (codec.Value, error) {
		return snapshotPayload(s), nil
	}, dbError)
	return nil
}

func (p *Plugin) queryKeepSynced(ctx context.Context, args codec.Args, result channel.Result) error {
	keep, err := args.RequiredBool(keyValue)
	if err != nil {
		return err
	}
	q, err := p.query(ctx, args)
	if err != nil {
		return err
	}
	if err := q.KeepSynced(keep); err != nil {
		return replyError(err)
	}
	result.Success(codec.Null{})
	return nil
}

func (p *Plugin) queryObserve(ctx context.Context, args codec.Args, result channel.Result) error {
	prefix, err := args.RequiredString(keyChannelPrefix)
	if err != nil {
		return err
	}
	b, err := p.registration()
	if err != nil {
		return err
	}
	q, err := p.query(ctx, args)
	if err != nil {
		return err
	}
	name := fmt.Sprintf("%s#%d", prefix, p.listeners.Add(1))
	ch := channel.NewEventChannel(b.messenger, name)
	ch.SetStreamHandler(newQueryStream(ctx, name, q, ch, p.log, &p.trace))
	p.log.Debug("registered query stream", zap.String("channel", name))
	result.Success(codec.String(name))
	return nil
}
