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
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxListResults = 1000

// Reference points to an object, or to a directory-like prefix, in a bucket.
type Reference struct {
	Bucket   string
	FullPath string
	Name     string
	client   *Client
}

// ListOptions controls the paging of Reference.List.
type ListOptions struct {
	MaxResults int
	PageToken  string
}

// ListResult holds the objects and prefixes found directly below a Reference.
type ListResult struct {
	Items         []*Reference
	Prefixes      []*Reference
	NextPageToken string
}

func newReference(c *Client, path string) *Reference {
	return &Reference{Bucket: c.bucket, FullPath: path, Name: baseName(path), client: c}
}

func normalizePath(path string) string {
	var segs []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return strings.Join(segs, "/")
}

func baseName(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

// Child returns a Reference to a location relative to this one.
func (r *Reference) Child(path string) *Reference {
	return newReference(r.client, normalizePath(r.FullPath+"/"+path))
}

// Parent returns the parent of this Reference, or nil for the root.
func (r *Reference) Parent() *Reference {
	if r.FullPath == "" {
		return nil
	}
	i := strings.LastIndex(r.FullPath, "/")
	if i < 0 {
		return newReference(r.client, "")
	}
	return newReference(r.client, r.FullPath[:i])
}

// String returns the gs:// URL of the referenced location.
func (r *Reference) String() string {
	return fmt.Sprintf("gs://%s/%s", r.Bucket, r.FullPath)
}

func (r *Reference) checkObject() error {
	if r.FullPath == "" {
		return newErrorf(ErrorInvalidArgument, "operation cannot be performed on the root reference")
	}
	return nil
}

// Delete deletes the object.
func (r *Reference) Delete(ctx context.Context) error {
	if err := r.checkObject(); err != nil {
		return err
	}
	ctx, cancel := r.client.operationContext(ctx)
	defer cancel()
	return r.client.backend.Delete(ctx, r.Bucket, r.FullPath)
}

// Metadata returns the metadata of the object.
func (r *Reference) Metadata(ctx context.Context) (*Metadata, error) {
	if err := r.checkObject(); err != nil {
		return nil, err
	}
	ctx, cancel := r.client.operationContext(ctx)
	defer cancel()
	return r.client.backend.Attrs(ctx, r.Bucket, r.FullPath)
}

// UpdateMetadata changes the settable metadata of the object and returns the result.
func (r *Reference) UpdateMetadata(ctx context.Context, m *SettableMetadata) (*Metadata, error) {
	if err := r.checkObject(); err != nil {
		return nil, err
	}
	ctx, cancel := r.client.operationContext(ctx)
	defer cancel()
	return r.client.backend.Update(ctx, r.Bucket, r.FullPath, m)
}

// DownloadURL returns a long-lived URL to download the object. A download token is minted into
// the object metadata when the object has none.
func (r *Reference) DownloadURL(ctx context.Context) (string, error) {
	m, err := r.Metadata(ctx)
	if err != nil {
		return "", err
	}

	token := firstToken(m.CustomMetadata[downloadTokensKey])
	if token == "" {
		token = uuid.NewString()
		r.client.log.Debug("minting download token", zap.String("path", r.FullPath))
		if _, err := r.UpdateMetadata(ctx, &SettableMetadata{
			CustomMetadata: map[string]string{downloadTokensKey: token},
		}); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("%s/v0/b/%s/o/%s?alt=media&token=%s", r.client.downloadHost,
		r.Bucket, url.PathEscape(r.FullPath), url.QueryEscape(token)), nil
}

func firstToken(tokens string) string {
	for _, t := range strings.Split(tokens, ",") {
		if t = strings.TrimSpace(t); t != "" {
			return t
		}
	}
	return ""
}

// Bytes downloads the object into memory. It fails with ErrorDownloadSizeExceeded when the
// object is larger than maxSize bytes.
func (r *Reference) Bytes(ctx context.Context, maxSize int64) ([]byte, error) {
	if err := r.checkObject(); err != nil {
		return nil, err
	}
	rd, err := r.client.backend.NewReader(ctx, r.Bucket, r.FullPath)
	if err != nil {
		return nil, err
	}
	defer rd.Close()
	if rd.Size() > maxSize {
		return nil, newErrorf(ErrorDownloadSizeExceeded, "object size %d exceeds the maximum of %d bytes",
			rd.Size(), maxSize)
	}

	data, err := io.ReadAll(io.LimitReader(rd, maxSize+1))
	if err != nil {
		return nil, wrapError(err)
	}
	if int64(len(data)) > maxSize {
		return nil, NewError(ErrorDownloadSizeExceeded, "")
	}
	return data, nil
}

// List returns one page of the objects and prefixes directly below this Reference.
func (r *Reference) List(ctx context.Context, opts *ListOptions) (*ListResult, error) {
	if opts == nil {
		opts = &ListOptions{MaxResults: maxListResults}
	}
	if opts.MaxResults <= 0 || opts.MaxResults > maxListResults {
		return nil, newErrorf(ErrorInvalidArgument, "maxResults must be between 1 and %d: %d",
			maxListResults, opts.MaxResults)
	}
	prefix := r.FullPath
	if prefix != "" {
		prefix += "/"
	}

	ctx, cancel := r.client.operationContext(ctx)
	defer cancel()
	page, err := r.client.backend.List(ctx, r.Bucket, prefix, opts)
	if err != nil {
		return nil, err
	}
	result := &ListResult{NextPageToken: page.NextPageToken}
	for _, p := range page.Items {
		result.Items = append(result.Items, newReference(r.client, p))
	}
	for _, p := range page.Prefixes {
		result.Prefixes = append(result.Prefixes, newReference(r.client, p))
	}
	return result, nil
}

// PutBytes uploads data as the content of the object.
func (r *Reference) PutBytes(ctx context.Context, data []byte, m *SettableMetadata,
	l TransferListener, ctrl *Controller) (*Metadata, error) {
	return r.upload(ctx, bytes.NewReader(data), int64(len(data)), m, l, ctrl)
}

// PutFile uploads the content of a local file as the content of the object.
func (r *Reference) PutFile(ctx context.Context, path string, m *SettableMetadata,
	l TransferListener, ctrl *Controller) (*Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newErrorf(ErrorSystemError, "failed to open %q: %v", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, newErrorf(ErrorSystemError, "failed to stat %q: %v", path, err)
	}
	return r.upload(ctx, f, info.Size(), m, l, ctrl)
}

func (r *Reference) upload(ctx context.Context, src io.Reader, size int64, m *SettableMetadata,
	l TransferListener, ctrl *Controller) (*Metadata, error) {
	if err := r.checkObject(); err != nil {
		return nil, err
	}
	if ctrl == nil {
		ctrl = NewController()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer ctrl.finish()
	if err := ctrl.start(cancel, size); err != nil {
		cancel()
		return nil, err
	}

	w := r.client.backend.NewWriter(ctx, r.Bucket, r.FullPath, m)
	if _, err := ctrl.copy(ctx, w, src, l); err != nil {
		return nil, r.transferError(ctrl, err)
	}
	if err := ctrl.commit(); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, r.transferError(ctrl, err)
	}
	return w.Metadata(), nil
}

// GetFile downloads the object into a local file and returns the number of bytes written.
func (r *Reference) GetFile(ctx context.Context, path string, l TransferListener, ctrl *Controller) (int64, error) {
	if err := r.checkObject(); err != nil {
		return 0, err
	}
	if ctrl == nil {
		ctrl = NewController()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer ctrl.finish()
	if err := ctrl.start(cancel, -1); err != nil {
		cancel()
		return 0, err
	}

	rd, err := r.client.backend.NewReader(ctx, r.Bucket, r.FullPath)
	if err != nil {
		return 0, r.transferError(ctrl, err)
	}
	defer rd.Close()
	ctrl.setTotal(rd.Size())

	f, err := os.Create(path)
	if err != nil {
		return 0, newErrorf(ErrorSystemError, "failed to create %q: %v", path, err)
	}
	n, err := ctrl.copy(ctx, f, rd, l)
	if err == nil {
		err = ctrl.commit()
	}
	if cerr := f.Close(); err == nil && cerr != nil {
		err = newErrorf(ErrorSystemError, "failed to write %q: %v", path, cerr)
	}
	if err != nil {
		os.Remove(path)
		return n, r.transferError(ctrl, err)
	}
	return n, nil
}

func (r *Reference) transferError(ctrl *Controller, err error) error {
	if ctrl.canceled() {
		return NewError(ErrorCancelled, "")
	}
	r.client.log.Warn("transfer failed", zap.String("path", r.FullPath), zap.Error(err))
	return wrapError(err)
}
