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

// Package storage contains functions for accessing Firebase Storage buckets.
package storage

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"github.com/firebase/firebase-bridge-go/internal"
	"go.uber.org/zap"
)

const (
	defaultDownloadHost = "https://firebasestorage.googleapis.com"
	emulatorHostEnvVar  = "STORAGE_EMULATOR_HOST"
)

// Client is the interface for the Firebase Storage service.
//
// A Client is bound to one bucket. Retry budgets may be changed at any time and apply to the
// operations started afterwards.
type Client struct {
	backend      Backend
	bucket       string
	log          *zap.Logger
	downloadHost string
	closer       func() error

	mu     sync.Mutex
	budget retryBudget
}

// NewClient creates a new instance of the Firebase Storage Client backed by Google Cloud
// Storage.
//
// This function can only be invoked from within the SDK. Client applications should access the
// the Storage service through firebase.App.
func NewClient(ctx context.Context, c *internal.StorageConfig) (*Client, error) {
	gcs, err := storage.NewClient(ctx, c.Opts...)
	if err != nil {
		return nil, err
	}
	client := newClient(c)
	client.backend = &gcsBackend{client: gcs, budget: client.retryBudget}
	client.closer = gcs.Close
	if host := os.Getenv(emulatorHostEnvVar); host != "" {
		client.downloadHost = "http://" + strings.TrimPrefix(host, "http://")
	}
	return client, nil
}

// NewClientWithBackend creates a Client that stores objects in the given backend.
func NewClientWithBackend(b Backend, c *internal.StorageConfig) *Client {
	client := newClient(c)
	client.backend = b
	return client
}

func newClient(c *internal.StorageConfig) *Client {
	log := c.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		bucket:       strings.TrimPrefix(c.Bucket, "gs://"),
		log:          log.Named("storage"),
		downloadHost: defaultDownloadHost,
		budget: retryBudget{
			operation: c.MaxOperationRetryTime,
			download:  c.MaxDownloadRetryTime,
			upload:    c.MaxUploadRetryTime,
		},
	}
}

// Bucket returns the name of the bucket this client is bound to.
func (c *Client) Bucket() string {
	return c.bucket
}

// Ref returns a Reference to the object at the given path in the client's bucket.
//
// To use this method, the bucket name must be specified via firebase.Config when initializing
// the App, or per call when resolving the client.
func (c *Client) Ref(path string) (*Reference, error) {
	if c.bucket == "" {
		return nil, NewError(ErrorBucketNotFound, "bucket name not specified")
	}
	return newReference(c, normalizePath(path)), nil
}

// RootRef returns a Reference to the root of the client's bucket.
func (c *Client) RootRef() (*Reference, error) {
	return c.Ref("")
}

// SetMaxOperationRetryTime sets the time budget of metadata, list and delete operations.
func (c *Client) SetMaxOperationRetryTime(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.budget.operation = d
}

// SetMaxDownloadRetryTime sets the time budget for retrying downloads.
func (c *Client) SetMaxDownloadRetryTime(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.budget.download = d
}

// SetMaxUploadRetryTime sets the time budget for retrying each chunk of an upload.
func (c *Client) SetMaxUploadRetryTime(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.budget.upload = d
}

func (c *Client) retryBudget() retryBudget {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.budget
}

// operationContext bounds a single metadata, list or delete request by the operation budget.
func (c *Client) operationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := c.retryBudget().operation; d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

// Close releases the resources held by the client.
func (c *Client) Close() error {
	if c.closer != nil {
		return c.closer()
	}
	return nil
}
