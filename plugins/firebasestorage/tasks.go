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

package firebasestorage

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/firebase/firebase-bridge-go/codec"
	"github.com/firebase/firebase-bridge-go/storage"
	"go.uber.org/zap"
)

// Outbound task events.
const (
	methodOnProgress = "Task#onProgress"
	methodOnPaused   = "Task#onPaused"
	methodOnSuccess  = "Task#onSuccess"
	methodOnFailure  = "Task#onFailure"
	methodOnCanceled = "Task#onCanceled"
)

// TaskKind selects the transfer a Task performs.
type TaskKind int

// Task kinds.
const (
	TaskPutBytes TaskKind = iota
	TaskPutString
	TaskPutFile
	TaskDownload
)

func (k TaskKind) String() string {
	switch k {
	case TaskPutBytes:
		return "put-bytes"
	case TaskPutString:
		return "put-string"
	case TaskPutFile:
		return "put-file"
	case TaskDownload:
		return "download"
	default:
		return fmt.Sprintf("TaskKind(%d)", int(k))
	}
}

// Task is one pausable transfer identified by a caller-assigned handle. It reports progress to
// the application through the emit function it is started with.
type Task struct {
	Handle  int64
	Kind    TaskKind
	AppName string
	Path    string

	ref       *storage.Reference
	ctrl      *storage.Controller
	emit      func(method string, payload codec.Map)
	cancelled atomic.Bool
	terminal  atomic.Bool

	data     []byte
	str      string
	format   storage.StringFormat
	filePath string
	metadata *storage.SettableMetadata
}

// Controller returns the controller of the transfer.
func (t *Task) Controller() *storage.Controller {
	return t.ctrl
}

// prepare validates the payload before the task is started.
func (t *Task) prepare() error {
	if t.Kind != TaskPutString {
		return nil
	}
	b, err := storage.DecodeString(t.str, t.format)
	if err != nil {
		return err
	}
	t.data = b
	return nil
}

// run performs the transfer and returns the payload of the success event.
func (t *Task) run(ctx context.Context) (codec.Map, error) {
	var m *storage.Metadata
	var err error
	switch t.Kind {
	case TaskPutBytes, TaskPutString:
		m, err = t.ref.PutBytes(ctx, t.data, t.metadata, t, t.ctrl)
	case TaskPutFile:
		m, err = t.ref.PutFile(ctx, t.filePath, t.metadata, t, t.ctrl)
	case TaskDownload:
		n, err := t.ref.GetFile(ctx, t.filePath, t, t.ctrl)
		if err != nil {
			return nil, err
		}
		return t.event(snapshotPayload(t.Path, n, n)), nil
	default:
		return nil, storage.NewError(storage.ErrorInvalidArgument, fmt.Sprintf("unknown task kind %v", t.Kind))
	}
	if err != nil {
		return nil, err
	}
	snapshot := snapshotPayload(t.Path, m.Size, m.Size).Set("metadata", metadataPayload(m))
	return t.event(snapshot), nil
}

func (t *Task) pause() bool {
	return t.ctrl.Pause()
}

func (t *Task) resume() bool {
	return t.ctrl.Resume()
}

// cancel cancels the transfer and reports whether the controller accepted it.
func (t *Task) cancel() bool {
	t.cancelled.Store(true)
	if !t.ctrl.Cancel() {
		return false
	}
	t.terminate(methodOnCanceled, t.event(nil))
	return true
}

// terminate sends the terminal event of the task. Only the first terminal event is sent.
func (t *Task) terminate(method string, payload codec.Map) bool {
	if !t.terminal.CompareAndSwap(false, true) {
		return false
	}
	t.emit(method, payload)
	return true
}

// OnProgress implements storage.TransferListener.
func (t *Task) OnProgress(c *storage.Controller) {
	t.emit(methodOnProgress, t.event(progressPayload(t.Path, c)))
}

// OnPaused implements storage.TransferListener.
func (t *Task) OnPaused(c *storage.Controller) {
	t.emit(methodOnPaused, t.event(progressPayload(t.Path, c)))
}

// event builds {handle, appName, bucket, snapshot?}.
func (t *Task) event(snapshot codec.Map) codec.Map {
	m := codec.MapOf(
		codec.KV("handle", intValue(t.Handle)),
		codec.KV("appName", codec.String(t.AppName)),
		codec.KV("bucket", codec.String(t.ref.Bucket)),
	)
	if snapshot != nil {
		m = m.Set("snapshot", snapshot)
	}
	return m
}

func (t *Task) failure(err error) codec.Map {
	code := storage.CodeOf(err)
	return t.event(nil).Set("error", codec.MapOf(
		codec.KV("code", codec.String(code.String())),
		codec.KV("message", codec.String(err.Error())),
	))
}

// TaskRegistry tracks the running tasks by handle.
type TaskRegistry struct {
	log *zap.Logger

	mu    sync.Mutex
	tasks map[int64]*Task
}

// NewTaskRegistry creates an empty registry.
func NewTaskRegistry(logger *zap.Logger) *TaskRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskRegistry{log: logger, tasks: make(map[int64]*Task)}
}

// Add registers t under its handle, replacing any task registered under the same handle.
func (r *TaskRegistry) Add(t *Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[t.Handle]; exists {
		r.log.Warn("replacing task with reused handle", zap.Int64("handle", t.Handle))
	}
	r.tasks[t.Handle] = t
}

// Get returns the task registered under handle.
func (r *TaskRegistry) Get(handle int64) (*Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[handle]
	return t, ok
}

// Remove unregisters the task under handle. It reports whether a task was removed.
func (r *TaskRegistry) Remove(handle int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[handle]; !ok {
		return false
	}
	delete(r.tasks, handle)
	return true
}

// release removes t if it is still the task registered under its handle.
func (r *TaskRegistry) release(t *Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tasks[t.Handle] == t {
		delete(r.tasks, t.Handle)
	}
}

// Len returns the number of registered tasks.
func (r *TaskRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}
