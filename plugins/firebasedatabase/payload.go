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

package firebasedatabase

import (
	"strconv"

	"github.com/firebase/firebase-bridge-go/channel"
	"github.com/firebase/firebase-bridge-go/codec"
	"github.com/firebase/firebase-bridge-go/convert"
	"github.com/firebase/firebase-bridge-go/db"
)

// snapshotPayload encodes s as {snapshot: {key, value, priority, childKeys?}}. A nil snapshot
// encodes as an empty location.
func snapshotPayload(s *db.DataSnapshot) codec.Map {
	var m codec.Map
	if s == nil {
		m = codec.MapOf(
			codec.KV("key", codec.Null{}),
			codec.KV("value", codec.Null{}),
			codec.KV("priority", codec.Null{}),
		)
	} else {
		var key codec.Value = codec.Null{}
		if s.Key != "" {
			key = codec.String(s.Key)
		}
		m = codec.MapOf(
			codec.KV("key", key),
			codec.KV("value", convert.ToGeneric(s.Value())),
			codec.KV("priority", convert.ToGeneric(s.Priority())),
		)
		if s.HasChildren() {
			keys := s.ChildKeys()
			list := make(codec.List, len(keys))
			for i, k := range keys {
				list[i] = codec.String(k)
			}
			m = m.Set("childKeys", list)
		}
	}
	return codec.MapOf(codec.KV("snapshot", m))
}

func eventPayload(ev db.Event) codec.Map {
	p := snapshotPayload(ev.Snapshot).Set(keyEventType, codec.String(ev.Type.String()))
	if ev.PreviousChildKey != "" {
		p = p.Set("previousChildKey", codec.String(ev.PreviousChildKey))
	}
	return p
}

// dbError replies with the numeric database error code, stringified.
func dbError(err error) *channel.Error {
	if codec.IsArgumentError(err) {
		return nil
	}
	return &channel.Error{
		Code:    strconv.Itoa(int(db.CodeOf(err))),
		Message: err.Error(),
	}
}

func replyError(err error) error {
	if ce := dbError(err); ce != nil {
		return ce
	}
	return err
}
