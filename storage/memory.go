// Copyright 2017 Google Inc. All Rights Reserved.
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

package storage

import (
	"bytes"
	"context"
	"crypto/md5"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"
)

// MemoryBackend keeps objects in process memory. It serves local development and tests.
type MemoryBackend struct {
	mu         sync.Mutex
	buckets    map[string]map[string]*memObject
	generation int64
}

type memObject struct {
	data  []byte
	attrs storage.ObjectAttrs
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{buckets: make(map[string]map[string]*memObject)}
}

func (b *MemoryBackend) lookup(bucket, name string) (*memObject, error) {
	obj, ok := b.buckets[bucket][name]
	if !ok {
		return nil, NewError(ErrorObjectNotFound, "")
	}
	return obj, nil
}

// Attrs returns the metadata of an object.
func (b *MemoryBackend) Attrs(ctx context.Context, bucket, name string) (*Metadata, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, err := b.lookup(bucket, name)
	if err != nil {
		return nil, err
	}
	return newMetadata(&obj.attrs), nil
}

// Update changes the metadata of an object.
func (b *MemoryBackend) Update(ctx context.Context, bucket, name string, m *SettableMetadata) (*Metadata, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, err := b.lookup(bucket, name)
	if err != nil {
		return nil, err
	}

	custom := obj.attrs.Metadata
	m.applyTo(&obj.attrs)
	if m != nil && m.CustomMetadata != nil {
		merged := make(map[string]string, len(custom)+len(m.CustomMetadata))
		for k, v := range custom {
			merged[k] = v
		}
		for k, v := range m.CustomMetadata {
			if v == "" {
				delete(merged, k)
			} else {
				merged[k] = v
			}
		}
		obj.attrs.Metadata = merged
	} else {
		obj.attrs.Metadata = custom
	}
	obj.attrs.Metageneration++
	obj.attrs.Updated = time.Now()
	return newMetadata(&obj.attrs), nil
}

// Delete removes an object.
func (b *MemoryBackend) Delete(ctx context.Context, bucket, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.lookup(bucket, name); err != nil {
		return err
	}
	delete(b.buckets[bucket], name)
	return nil
}

// NewReader opens the content of an object.
func (b *MemoryBackend) NewReader(ctx context.Context, bucket, name string) (ObjectReader, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, err := b.lookup(bucket, name)
	if err != nil {
		return nil, err
	}
	return &memReader{Reader: bytes.NewReader(obj.data), size: int64(len(obj.data))}, nil
}

// NewWriter starts writing a new object. The object replaces any existing object of the same
// name when the writer is closed.
func (b *MemoryBackend) NewWriter(ctx context.Context, bucket, name string, m *SettableMetadata) ObjectWriter {
	w := &memWriter{ctx: ctx, backend: b}
	w.attrs.Bucket = bucket
	w.attrs.Name = name
	m.applyTo(&w.attrs)
	return w
}

// Put stores an object directly.
func (b *MemoryBackend) Put(bucket, name string, data []byte, m *SettableMetadata) *Metadata {
	w := b.NewWriter(context.Background(), bucket, name, m)
	w.Write(data)
	w.Close()
	return w.Metadata()
}

// List returns a page of the entries directly below prefix, in lexicographic order. Page
// tokens are the last entry of the previous page.
func (b *MemoryBackend) List(ctx context.Context, bucket, prefix string, opts *ListOptions) (*ListPage, error) {
	b.mu.Lock()
	seen := make(map[string]bool)
	var entries []string
	for name := range b.buckets[bucket] {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		entry := name
		if i := strings.Index(name[len(prefix):], "/"); i >= 0 {
			entry = name[:len(prefix)+i+1]
		}
		if !seen[entry] {
			seen[entry] = true
			entries = append(entries, entry)
		}
	}
	b.mu.Unlock()
	sort.Strings(entries)

	start := 0
	if opts.PageToken != "" {
		start = sort.SearchStrings(entries, opts.PageToken)
		if start < len(entries) && entries[start] == opts.PageToken {
			start++
		}
	}
	end := len(entries)
	if opts.MaxResults > 0 && start+opts.MaxResults < end {
		end = start + opts.MaxResults
	}

	page := &ListPage{}
	for _, e := range entries[start:end] {
		if strings.HasSuffix(e, "/") {
			page.Prefixes = append(page.Prefixes, strings.TrimSuffix(e, "/"))
		} else {
			page.Items = append(page.Items, e)
		}
	}
	if end < len(entries) {
		page.NextPageToken = entries[end-1]
	}
	return page, nil
}

func (b *MemoryBackend) commit(w *memWriter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.generation++
	now := time.Now()
	sum := md5.Sum(w.buf.Bytes())

	w.attrs.Generation = b.generation
	w.attrs.Metageneration = 1
	w.attrs.Size = int64(w.buf.Len())
	w.attrs.MD5 = sum[:]
	w.attrs.Created = now
	w.attrs.Updated = now

	objects := b.buckets[w.attrs.Bucket]
	if objects == nil {
		objects = make(map[string]*memObject)
		b.buckets[w.attrs.Bucket] = objects
	}
	objects[w.attrs.Name] = &memObject{data: w.buf.Bytes(), attrs: w.attrs}
}

type memReader struct {
	*bytes.Reader
	size int64
}

func (r *memReader) Close() error {
	return nil
}

func (r *memReader) Size() int64 {
	return r.size
}

type memWriter struct {
	ctx     context.Context
	backend *MemoryBackend
	buf     bytes.Buffer
	attrs   storage.ObjectAttrs
	done    bool
}

func (w *memWriter) Write(p []byte) (int, error) {
	if err := w.ctx.Err(); err != nil {
		return 0, wrapError(err)
	}
	if w.done {
		return 0, io.ErrClosedPipe
	}
	return w.buf.Write(p)
}

func (w *memWriter) Close() error {
	if err := w.ctx.Err(); err != nil {
		return wrapError(err)
	}
	if !w.done {
		w.done = true
		w.backend.commit(w)
	}
	return nil
}

func (w *memWriter) Metadata() *Metadata {
	if !w.done {
		return nil
	}
	return newMetadata(&w.attrs)
}
