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
	"encoding/base64"
	"time"

	"cloud.google.com/go/storage"
	"github.com/firebase/firebase-bridge-go/ptr"
)

// downloadTokensKey is the custom metadata entry holding the comma separated download tokens
// of an object.
const downloadTokensKey = "firebaseStorageDownloadTokens"

// Metadata describes a stored object.
type Metadata struct {
	Bucket             string
	FullPath           string
	Name               string
	CacheControl       string
	ContentDisposition string
	ContentEncoding    string
	ContentLanguage    string
	ContentType        string
	CustomMetadata     map[string]string
	Generation         int64
	Metageneration     int64
	MD5Hash            string
	Size               int64
	Created            time.Time
	Updated            time.Time
}

// SettableMetadata holds the metadata fields a client may change. Nil fields are left
// unchanged. CustomMetadata entries are merged into the existing ones, and an empty value
// removes the entry.
type SettableMetadata struct {
	CacheControl       *string
	ContentDisposition *string
	ContentEncoding    *string
	ContentLanguage    *string
	ContentType        *string
	CustomMetadata     map[string]string
}

func newMetadata(attrs *storage.ObjectAttrs) *Metadata {
	m := &Metadata{
		Bucket:             attrs.Bucket,
		FullPath:           attrs.Name,
		Name:               baseName(attrs.Name),
		CacheControl:       attrs.CacheControl,
		ContentDisposition: attrs.ContentDisposition,
		ContentEncoding:    attrs.ContentEncoding,
		ContentLanguage:    attrs.ContentLanguage,
		ContentType:        attrs.ContentType,
		CustomMetadata:     make(map[string]string, len(attrs.Metadata)),
		Generation:         attrs.Generation,
		Metageneration:     attrs.Metageneration,
		Size:               attrs.Size,
		Created:            attrs.Created,
		Updated:            attrs.Updated,
	}
	if len(attrs.MD5) > 0 {
		m.MD5Hash = base64.StdEncoding.EncodeToString(attrs.MD5)
	}
	for k, v := range attrs.Metadata {
		m.CustomMetadata[k] = v
	}
	return m
}

// toUpdate converts the settable fields into a Cloud Storage attribute update.
func (s *SettableMetadata) toUpdate() storage.ObjectAttrsToUpdate {
	var u storage.ObjectAttrsToUpdate
	if s == nil {
		return u
	}
	if s.CacheControl != nil {
		u.CacheControl = *s.CacheControl
	}
	if s.ContentDisposition != nil {
		u.ContentDisposition = *s.ContentDisposition
	}
	if s.ContentEncoding != nil {
		u.ContentEncoding = *s.ContentEncoding
	}
	if s.ContentLanguage != nil {
		u.ContentLanguage = *s.ContentLanguage
	}
	if s.ContentType != nil {
		u.ContentType = *s.ContentType
	}
	if s.CustomMetadata != nil {
		u.Metadata = s.CustomMetadata
	}
	return u
}

// applyTo copies the settable fields into the attributes of a new object.
func (s *SettableMetadata) applyTo(attrs *storage.ObjectAttrs) {
	if s == nil {
		return
	}
	attrs.CacheControl = ptr.Deref(s.CacheControl, attrs.CacheControl)
	attrs.ContentDisposition = ptr.Deref(s.ContentDisposition, attrs.ContentDisposition)
	attrs.ContentEncoding = ptr.Deref(s.ContentEncoding, attrs.ContentEncoding)
	attrs.ContentLanguage = ptr.Deref(s.ContentLanguage, attrs.ContentLanguage)
	attrs.ContentType = ptr.Deref(s.ContentType, attrs.ContentType)
	if len(s.CustomMetadata) > 0 {
		attrs.Metadata = make(map[string]string, len(s.CustomMetadata))
		for k, v := range s.CustomMetadata {
			if v != "" {
				attrs.Metadata[k] = v
			}
		}
	}
}
