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
	"time"

	"github.com/firebase/firebase-bridge-go/codec"
	"github.com/firebase/firebase-bridge-go/storage"
)

const (
	keyAppName               = "appName"
	keyBucket                = "bucket"
	keyMaxOperationRetryTime = "maxOperationRetryTime"
	keyMaxDownloadRetryTime  = "maxDownloadRetryTime"
	keyMaxUploadRetryTime    = "maxUploadRetryTime"
	keyPath                  = "path"
	keyHandle                = "handle"
	keyData                  = "data"
	keyFormat                = "format"
	keyFilePath              = "filePath"
	keyMetadata              = "metadata"
	keyMaxSize               = "maxSize"
	keyOptions               = "options"
	keyMaxResults            = "maxResults"
	keyPageToken             = "pageToken"
)

// storageRequest identifies a storage client and the retry budgets to apply to it.
type storageRequest struct {
	AppName               string
	Bucket                string
	MaxOperationRetryTime time.Duration
	MaxDownloadRetryTime  time.Duration
	MaxUploadRetryTime    time.Duration
}

func parseStorage(args codec.Args) (*storageRequest, error) {
	name, err := args.RequiredString(keyAppName)
	if err != nil {
		return nil, err
	}
	return &storageRequest{
		AppName:               name,
		Bucket:                args.StringOr(keyBucket, ""),
		MaxOperationRetryTime: millis(args, keyMaxOperationRetryTime),
		MaxDownloadRetryTime:  millis(args, keyMaxDownloadRetryTime),
		MaxUploadRetryTime:    millis(args, keyMaxUploadRetryTime),
	}, nil
}

func millis(args codec.Args, key string) time.Duration {
	ms, ok := args.GetDouble(key)
	if !ok || ms <= 0 {
		return 0
	}
	return time.Duration(ms * float64(time.Millisecond))
}

type referenceRequest struct {
	*storageRequest
	Path string
}

func parseReference(args codec.Args) (*referenceRequest, error) {
	sr, err := parseStorage(args)
	if err != nil {
		return nil, err
	}
	path, err := args.RequiredString(keyPath)
	if err != nil {
		return nil, err
	}
	return &referenceRequest{storageRequest: sr, Path: path}, nil
}

// parseSettableMetadata reads the writable metadata fields. Custom metadata entries that are not
// string pairs are skipped.
func parseSettableMetadata(m codec.Map) *storage.SettableMetadata {
	args := codec.ArgsOf(m)
	out := &storage.SettableMetadata{}
	fields := []struct {
		key string
		dst **string
	}{
		{"cacheControl", &out.CacheControl},
		{"contentDisposition", &out.ContentDisposition},
		{"contentEncoding", &out.ContentEncoding},
		{"contentLanguage", &out.ContentLanguage},
		{"contentType", &out.ContentType},
	}
	for _, f := range fields {
		if s, ok := args.GetString(f.key); ok {
			*f.dst = &s
		}
	}
	if custom, ok := args.GetMap("customMetadata"); ok {
		out.CustomMetadata = make(map[string]string, len(custom))
		for _, e := range custom {
			k, kok := e.Key.(codec.String)
			v, vok := e.Value.(codec.String)
			if kok && vok {
				out.CustomMetadata[string(k)] = string(v)
			}
		}
	}
	return out
}

func optionalMetadata(args codec.Args) *storage.SettableMetadata {
	m, ok := args.GetMap(keyMetadata)
	if !ok {
		return nil
	}
	return parseSettableMetadata(m)
}

func parseListOptions(args codec.Args) (*storage.ListOptions, error) {
	m, err := args.RequiredMap(keyOptions)
	if err != nil {
		return nil, err
	}
	opts := codec.ArgsOf(m)
	maxResults, err := opts.RequiredInt(keyMaxResults)
	if err != nil {
		return nil, err
	}
	return &storage.ListOptions{
		MaxResults: int(maxResults),
		PageToken:  opts.StringOr(keyPageToken, ""),
	}, nil
}

// parseTask builds a pending task of the given kind. The payload keys depend on the kind.
func parseTask(kind TaskKind, args codec.Args) (*Task, *referenceRequest, error) {
	req, err := parseReference(args)
	if err != nil {
		return nil, nil, err
	}
	handle, err := args.RequiredInt(keyHandle)
	if err != nil {
		return nil, nil, err
	}
	t := &Task{
		Handle:  handle,
		Kind:    kind,
		AppName: req.AppName,
		Path:    req.Path,
	}
	switch kind {
	case TaskPutBytes:
		if t.data, err = args.RequiredBytes(keyData); err != nil {
			return nil, nil, err
		}
		t.metadata = optionalMetadata(args)
	case TaskPutString:
		format, err := args.RequiredInt(keyFormat)
		if err != nil {
			return nil, nil, err
		}
		if t.str, err = args.RequiredString(keyData); err != nil {
			return nil, nil, err
		}
		t.format = storage.StringFormat(format)
		t.metadata = optionalMetadata(args)
	case TaskPutFile:
		if t.filePath, err = args.RequiredString(keyFilePath); err != nil {
			return nil, nil, err
		}
		t.metadata = optionalMetadata(args)
	case TaskDownload:
		if t.filePath, err = args.RequiredString(keyFilePath); err != nil {
			return nil, nil, err
		}
	}
	return t, req, nil
}
