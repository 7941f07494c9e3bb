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
	"encoding/base64"
)

// StringFormat is the encoding of a string uploaded with PutString.
type StringFormat int

// String formats, numbered as on the method channel.
const (
	FormatRaw StringFormat = iota
	FormatBase64
	FormatBase64URL
	FormatDataURL
)

// DecodeString decodes data according to format. Only base64 is supported.
func DecodeString(data string, format StringFormat) ([]byte, error) {
	switch format {
	case FormatBase64:
		b, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return nil, NewError(ErrorInvalidString, "Fail to decode the input string.")
		}
		return b, nil
	default:
		return nil, newErrorf(ErrorNotSupported, "This format(%d) is not supported yet.", int(format))
	}
}

// PutString decodes data according to format and uploads it as the content of the object.
func (r *Reference) PutString(ctx context.Context, data string, format StringFormat, m *SettableMetadata,
	l TransferListener, ctrl *Controller) (*Metadata, error) {
	b, err := DecodeString(data, format)
	if err != nil {
		return nil, err
	}
	return r.PutBytes(ctx, b, m, l, ctrl)
}
