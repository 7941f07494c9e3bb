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

// Package firebasestorage serves the firebase_storage method channel. Uploads and downloads run
// as tasks that report their progress back to the application on the same channel.
package firebasestorage

import (
	"context"
	"sync/atomic"

	firebase "github.com/firebase/firebase-bridge-go"
	"github.com/firebase/firebase-bridge-go/channel"
	"github.com/firebase/firebase-bridge-go/codec"
	"github.com/firebase/firebase-bridge-go/future"
	"github.com/firebase/firebase-bridge-go/storage"
	"go.uber.org/zap"
)

// ChannelName is the name of the method channel served by the plugin.
const ChannelName = "plugins.flutter.io/firebase_storage"

type clientFunc func(ctx context.Context, app *firebase.App, bucket string) (*storage.Client, error)

func appStorage(ctx context.Context, app *firebase.App, bucket string) (*storage.Client, error) {
	return app.Storage(ctx, bucket)
}

// Plugin dispatches storage calls and owns the registry of running tasks.
type Plugin struct {
	apps       *firebase.Apps
	log        *zap.Logger
	dispatcher *channel.Dispatcher
	tasks      *TaskRegistry
	newClient  clientFunc

	methods atomic.Pointer[channel.MethodChannel]
	trace   atomic.Bool
}

// New creates the plugin.
func New(apps *firebase.Apps, router *channel.Router, logger *zap.Logger) *Plugin {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Plugin{
		apps:       apps,
		log:        logger.Named("storage"),
		dispatcher: channel.NewDispatcher(ChannelName, router, logger),
		tasks:      NewTaskRegistry(logger.Named("storage")),
		newClient:  appStorage,
	}
	handlers := map[string]channel.Handler{
		"Storage#useEmulator":      unimplemented("Storage#useEmulator"),
		"Reference#delete":         p.delete,
		"Reference#getDownloadURL": p.getDownloadURL,
		"Reference#getMetadata":    p.getMetadata,
		"Reference#getData":        p.getData,
		"Reference#list":           p.list,
		"Reference#listAll":        unimplemented("Reference#listAll"),
		"Reference#updateMetadata": p.updateMetadata,
		"Task#startPutData":        p.startTask(TaskPutBytes),
		"Task#startPutString":      p.startTask(TaskPutString),
		"Task#startPutFile":        p.startTask(TaskPutFile),
		"Task#writeToFile":         p.startTask(TaskDownload),
		"Task#pause":               p.control((*Task).pause),
		"Task#resume":              p.control((*Task).resume),
		"Task#cancel":              p.control((*Task).cancel),
	}
	for m, h := range handlers {
		p.dispatcher.Handle(m, h)
	}
	return p
}

// Tasks returns the registry of running tasks.
func (p *Plugin) Tasks() *TaskRegistry {
	return p.tasks
}

// Dispatcher returns the dispatcher serving the channel.
func (p *Plugin) Dispatcher() *channel.Dispatcher {
	return p.dispatcher
}

// SetEventTrace enables debug logging of outbound task events.
func (p *Plugin) SetEventTrace(enabled bool) {
	p.trace.Store(enabled)
}

// Register installs the plugin on m.
func (p *Plugin) Register(m channel.Messenger) {
	p.methods.Store(channel.NewMethodChannel(m, ChannelName))
	p.dispatcher.Register(m)
}

// Close cancels in-flight operations and running tasks.
func (p *Plugin) Close() {
	p.dispatcher.Close()
}

func unimplemented(method string) channel.Handler {
	return func(context.Context, codec.Args, channel.Result) error {
		return channel.Unimplemented(method)
	}
}

func (p *Plugin) client(ctx context.Context, req *storageRequest) (*storage.Client, error) {
	app, err := p.apps.Get(req.AppName)
	if err != nil {
		return nil, replyError(storage.NewError(storage.ErrorAppNotFound, ""))
	}
	c, err := p.newClient(ctx, app, req.Bucket)
	if err != nil {
		p.log.Error("failed to create storage client", zap.String("app", req.AppName), zap.Error(err))
		return nil, replyError(storage.NewError(storage.ErrorSystemError, err.Error()))
	}
	if req.MaxOperationRetryTime > 0 {
		c.SetMaxOperationRetryTime(req.MaxOperationRetryTime)
	}
	if req.MaxDownloadRetryTime > 0 {
		c.SetMaxDownloadRetryTime(req.MaxDownloadRetryTime)
	}
	if req.MaxUploadRetryTime > 0 {
		c.SetMaxUploadRetryTime(req.MaxUploadRetryTime)
	}
	return c, nil
}

func (p *Plugin) ref(ctx context.Context, req *referenceRequest) (*storage.Reference, error) {
	c, err := p.client(ctx, req.storageRequest)
	if err != nil {
		return nil, err
	}
	r, err := c.Ref(req.Path)
	if err != nil {
		return nil, replyError(err)
	}
	return r, nil
}

func (p *Plugin) refFromArgs(ctx context.Context, args codec.Args) (*storage.Reference, error) {
	req, err := parseReference(args)
	if err != nil {
		return nil, err
	}
	return p.ref(ctx, req)
}

// await replies with the value produced by fn once it returns.
func (p *Plugin) await(ctx context.Context, result channel.Result, ref *storage.Reference,
	fn func(context.Context) (codec.Value, error)) {
	f := future.Go(ctx, fn)
	channel.Await(p.dispatcher.Router(), result, f, identity, storageError, ref)
}

func identity(v codec.Value) (codec.Value, error) {
	if v == nil {
		return codec.Null{}, nil
	}
	return v, nil
}

func (p *Plugin) delete(ctx context.Context, args codec.Args, result channel.Result) error {
	ref, err := p.refFromArgs(ctx, args)
	if err != nil {
		return err
	}
	p.await(ctx, result, ref, func(ctx context.Context) (codec.Value, error) {
		return nil, ref.Delete(ctx)
	})
	return nil
}

func (p *Plugin) getDownloadURL(ctx context.Context, args codec.Args, result channel.Result) error {
	ref, err := p.refFromArgs(ctx, args)
	if err != nil {
		return err
	}
	p.await(ctx, result, ref, func(ctx context.Context) (codec.Value, error) {
		u, err := ref.DownloadURL(ctx)
		if err != nil {
			return nil, err
		}
		return codec.MapOf(codec.KV("downloadURL", codec.String(u))), nil
	})
	return nil
}

func (p *Plugin) getMetadata(ctx context.Context, args codec.Args, result channel.Result) error {
	ref, err := p.refFromArgs(ctx, args)
	if err != nil {
		return err
	}
	p.await(ctx, result, ref, func(ctx context.Context) (codec.Value, error) {
		m, err := ref.Metadata(ctx)
		if err != nil {
			return nil, err
		}
		return metadataPayload(m), nil
	})
	return nil
}

func (p *Plugin) updateMetadata(ctx context.Context, args codec.Args, result channel.Result) error {
	req, err := parseReference(args)
	if err != nil {
		return err
	}
	m, err := args.RequiredMap(keyMetadata)
	if err != nil {
		return err
	}
	ref, err := p.ref(ctx, req)
	if err != nil {
		return err
	}
	update := parseSettableMetadata(m)
	p.await(ctx, result, ref, func(ctx context.Context) (codec.Value, error) {
		m, err := ref.UpdateMetadata(ctx, update)
		if err != nil {
			return nil, err
		}
		return metadataPayload(m), nil
	})
	return nil
}

func (p *Plugin) getData(ctx context.Context, args codec.Args, result channel.Result) error {
	req, err := parseReference(args)
	if err != nil {
		return err
	}
	maxSize, err := args.RequiredInt(keyMaxSize)
	if err != nil {
		return err
	}
	ref, err := p.ref(ctx, req)
	if err != nil {
		return err
	}
	p.await(ctx, result, ref, func(ctx context.Context) (codec.Value, error) {
		b, err := ref.Bytes(ctx, maxSize)
		if err != nil {
			return nil, err
		}
		return codec.Bytes(b), nil
	})
	return nil
}

func (p *Plugin) list(ctx context.Context, args codec.Args, result channel.Result) error {
	req, err := parseReference(args)
	if err != nil {
		return err
	}
	opts, err := parseListOptions(args)
	if err != nil {
		return err
	}
	ref, err := p.ref(ctx, req)
	if err != nil {
		return err
	}
	p.await(ctx, result, ref, func(ctx context.Context) (codec.Value, error) {
		r, err := ref.List(ctx, opts)
		if err != nil {
			return nil, err
		}
		return listPayload(r), nil
	})
	return nil
}

// startTask registers the task, starts it and replies at once. Progress and the outcome are
// reported through task events.
func (p *Plugin) startTask(kind TaskKind) channel.Handler {
	return func(ctx context.Context, args codec.Args, result channel.Result) error {
		t, req, err := parseTask(kind, args)
		if err != nil {
			return err
		}
		if p.methods.Load() == nil {
			return channel.Errorf("failed-precondition", "plugin is not registered on a messenger")
		}
		ref, err := p.ref(ctx, req)
		if err != nil {
			return err
		}
		if err := t.prepare(); err != nil {
			return replyError(err)
		}
		t.ref = ref
		t.ctrl = storage.NewController()
		t.emit = p.emit

		p.tasks.Add(t)
		p.log.Debug("starting task", zap.Int64("handle", t.Handle), zap.Stringer("kind", t.Kind),
			zap.String("path", t.Path))
		f := future.Go(ctx, t.run)
		f.OnCompletion(func(payload codec.Map, err error) {
			p.tasks.release(t)
			switch {
			case err == nil:
				if !t.terminate(methodOnSuccess, payload) {
					p.log.Warn("task completed after it was canceled", zap.Int64("handle", t.Handle))
				}
			case storage.CodeOf(err) == storage.ErrorCancelled && t.cancelled.Load():
				// Task#onCanceled was sent when the cancellation was accepted.
			default:
				p.log.Error("task failed", zap.Int64("handle", t.Handle), zap.Stringer("kind", t.Kind),
					zap.Error(err))
				t.terminate(methodOnFailure, t.failure(err))
			}
		})
		result.Success(codec.Null{})
		return nil
	}
}

// control applies op to the task named by the handle argument and replies with
// {status, snapshot?}.
func (p *Plugin) control(op func(*Task) bool) channel.Handler {
	return func(ctx context.Context, args codec.Args, result channel.Result) error {
		handle, err := args.RequiredInt(keyHandle)
		if err != nil {
			return err
		}
		t, ok := p.tasks.Get(handle)
		if !ok {
			return replyError(storage.NewError(storage.ErrorTaskNotFound, ""))
		}
		status := op(t)
		reply := codec.MapOf(codec.KV("status", codec.Bool(status)))
		if status {
			reply = reply.Set("snapshot", progressPayload(t.Path, t.ctrl))
		}
		result.Success(reply)
		return nil
	}
}

func (p *Plugin) emit(method string, payload codec.Map) {
	if p.trace.Load() {
		p.log.Debug("task event", zap.String("method", method), zap.Stringer("payload", payload))
	}
	methods := p.methods.Load()
	if methods == nil {
		p.log.Warn("dropping task event", zap.String("method", method))
		return
	}
	methods.InvokeMethod(method, payload, nil)
}
