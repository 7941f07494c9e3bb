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
	"context"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/iterator"
)

const (
	initialRetryDelay = time.Second
	maxRetryDelay     = 32 * time.Second
)

// Backend stores the objects behind a Client.
type Backend interface {
	Attrs(ctx context.Context, bucket, name string) (*Metadata, error)
	Update(ctx context.Context, bucket, name string, m *SettableMetadata) (*Metadata, error)
	Delete(ctx context.Context, bucket, name string) error
	NewReader(ctx context.Context, bucket, name string) (ObjectReader, error)
	NewWriter(ctx context.Context, bucket, name string, m *SettableMetadata) ObjectWriter
	List(ctx context.Context, bucket, prefix string, opts *ListOptions) (*ListPage, error)
}

// ObjectReader reads the content of an object.
type ObjectReader interface {
	io.ReadCloser
	Size() int64
}

// ObjectWriter writes the content of a new object. The object becomes visible when Close
// returns without error, after which Metadata describes it. Cancelling the context passed to
// Backend.NewWriter aborts the write.
type ObjectWriter interface {
	io.Writer
	Close() error
	Metadata() *Metadata
}

// ListPage is one page of the entries directly below a prefix. Items and Prefixes hold full
// paths without a trailing delimiter.
type ListPage struct {
	Items         []string
	Prefixes      []string
	NextPageToken string
}

// retryBudget holds the retry time limits of the different kinds of storage operations. A zero
// value leaves the Cloud Storage default in place.
type retryBudget struct {
	operation time.Duration
	download  time.Duration
	upload    time.Duration
}

// gcsBackend stores objects in Google Cloud Storage.
type gcsBackend struct {
	client *storage.Client
	budget func() retryBudget
}

func (b *gcsBackend) object(bucket, name string, budget time.Duration) *storage.ObjectHandle {
	bo := gax.Backoff{Initial: initialRetryDelay, Max: maxRetryDelay, Multiplier: 2}
	if budget > 0 && budget < bo.Max {
		bo.Max = budget
	}
	return b.client.Bucket(bucket).Object(name).Retryer(
		storage.WithBackoff(bo),
		storage.WithPolicy(storage.RetryIdempotent))
}

func (b *gcsBackend) Attrs(ctx context.Context, bucket, name string) (*Metadata, error) {
	attrs, err := b.object(bucket, name, b.budget().operation).Attrs(ctx)
	if err != nil {
		return nil, wrapError(err)
	}
	return newMetadata(attrs), nil
}

func (b *gcsBackend) Update(ctx context.Context, bucket, name string, m *SettableMetadata) (*Metadata, error) {
	attrs, err := b.object(bucket, name, b.budget().operation).Update(ctx, m.toUpdate())
	if err != nil {
		return nil, wrapError(err)
	}
	return newMetadata(attrs), nil
}

func (b *gcsBackend) Delete(ctx context.Context, bucket, name string) error {
	return wrapError(b.object(bucket, name, b.budget().operation).Delete(ctx))
}

func (b *gcsBackend) NewReader(ctx context.Context, bucket, name string) (ObjectReader, error) {
	r, err := b.object(bucket, name, b.budget().download).NewReader(ctx)
	if err != nil {
		return nil, wrapError(err)
	}
	return &gcsReader{r}, nil
}

func (b *gcsBackend) NewWriter(ctx context.Context, bucket, name string, m *SettableMetadata) ObjectWriter {
	budget := b.budget().upload
	w := b.object(bucket, name, budget).NewWriter(ctx)
	m.applyTo(&w.ObjectAttrs)
	if budget > 0 {
		w.ChunkRetryDeadline = budget
	}
	return &gcsWriter{w: w}
}

func (b *gcsBackend) List(ctx context.Context, bucket, prefix string, opts *ListOptions) (*ListPage, error) {
	it := b.client.Bucket(bucket).Objects(ctx, &storage.Query{
		Prefix:    prefix,
		Delimiter: "/",
	})
	var attrs []*storage.ObjectAttrs
	next, err := iterator.NewPager(it, opts.MaxResults, opts.PageToken).NextPage(&attrs)
	if err != nil {
		return nil, wrapError(err)
	}

	page := &ListPage{NextPageToken: next}
	for _, a := range attrs {
		if a.Prefix != "" {
			page.Prefixes = append(page.Prefixes, strings.TrimSuffix(a.Prefix, "/"))
		} else {
			page.Items = append(page.Items, a.Name)
		}
	}
	return page, nil
}

type gcsReader struct {
	*storage.Reader
}

func (r *gcsReader) Size() int64 {
	return r.Attrs.Size
}

type gcsWriter struct {
	w *storage.Writer
}

func (w *gcsWriter) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	return n, wrapError(err)
}

func (w *gcsWriter) Close() error {
	return wrapError(w.w.Close())
}

func (w *gcsWriter) Metadata() *Metadata {
	if attrs := w.w.Attrs(); attrs != nil {
		return newMetadata(attrs)
	}
	return nil
}
