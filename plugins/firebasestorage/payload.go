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
	"math"
	"sort"
	"time"

	"github.com/firebase/firebase-bridge-go/channel"
	"github.com/firebase/firebase-bridge-go/codec"
	"github.com/firebase/firebase-bridge-go/storage"
)

func intValue(i int64) codec.Value {
	if i >= math.MinInt32 && i <= math.MaxInt32 {
		return codec.Int32(i)
	}
	return codec.Int64(i)
}

func snapshotPayload(path string, transferred, total int64) codec.Map {
	return codec.MapOf(
		codec.KV("path", codec.String(path)),
		codec.KV("bytesTransferred", codec.Int64(transferred)),
		codec.KV("totalBytes", codec.Int64(total)),
	)
}

func progressPayload(path string, c *storage.Controller) codec.Map {
	return snapshotPayload(path, c.BytesTransferred(), c.TotalBytes())
}

func millisOf(t time.Time) codec.Value {
	if t.IsZero() {
		return codec.Int64(0)
	}
	return codec.Int64(t.UnixMilli())
}

func metadataPayload(m *storage.Metadata) codec.Map {
	keys := make([]string, 0, len(m.CustomMetadata))
	for k := range m.CustomMetadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	custom := make(codec.Map, 0, len(keys))
	for _, k := range keys {
		custom = append(custom, codec.KV(k, codec.String(m.CustomMetadata[k])))
	}

	return codec.MapOf(
		codec.KV("bucket", codec.String(m.Bucket)),
		codec.KV("cacheControl", codec.String(m.CacheControl)),
		codec.KV("contentDisposition", codec.String(m.ContentDisposition)),
		codec.KV("contentEncoding", codec.String(m.ContentEncoding)),
		codec.KV("contentLanguage", codec.String(m.ContentLanguage)),
		codec.KV("contentType", codec.String(m.ContentType)),
		codec.KV("fullPath", codec.String(m.FullPath)),
		codec.KV("generation", codec.Int64(m.Generation)),
		codec.KV("metadataGeneration", codec.Int64(m.Metageneration)),
		codec.KV("metageneration", codec.Int64(m.Metageneration)),
		codec.KV("md5Hash", codec.String(m.MD5Hash)),
		codec.KV("name", codec.String(m.Name)),
		codec.KV("size", codec.Int64(m.Size)),
		codec.KV("creationTimeMillis", millisOf(m.Created)),
		codec.KV("updatedTimeMillis", millisOf(m.Updated)),
		codec.KV("customMetadata", custom),
	)
}

func listPayload(r *storage.ListResult) codec.Map {
	paths := func(refs []*storage.Reference) codec.List {
		l := make(codec.List, len(refs))
		for i, ref := range refs {
			l[i] = codec.String(ref.FullPath)
		}
		return l
	}
	m := codec.MapOf(
		codec.KV("items", paths(r.Items)),
		codec.KV("prefixes", paths(r.Prefixes)),
	)
	if r.NextPageToken != "" {
		m = m.Set("nextPageToken", codec.String(r.NextPageToken))
	}
	return m
}

// storageError replies with the slug of the storage error code and repeats the code and message
// in the details.
func storageError(err error) *channel.Error {
	if codec.IsArgumentError(err) {
		return nil
	}
	code := storage.CodeOf(err).String()
	return &channel.Error{
		Code:    code,
		Message: err.Error(),
		Details: codec.MapOf(
			codec.KV("code", codec.String(code)),
			codec.KV("message", codec.String(err.Error())),
		),
	}
}

func replyError(err error) error {
	if ce := storageError(err); ce != nil {
		return ce
	}
	return err
}
