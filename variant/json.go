// Copyright 2024 Google Inc. All Rights Reserved.
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

package variant

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
)

// MarshalJSON encodes v as JSON. Map keys that are not strings are encoded using their String
// form, since JSON objects only support string keys.
func (v Variant) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Variant) writeJSON(buf *bytes.Buffer) error {
	switch v.typ {
	case TypeNull:
		buf.WriteString("null")
	case TypeInt64:
		buf.WriteString(strconv.FormatInt(v.i, 10))
	case TypeDouble:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return fmt.Errorf("unsupported double value: %v", v.f)
		}
		buf.WriteString(strconv.FormatFloat(v.f, 'g', -1, 64))
	case TypeBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case TypeStaticString, TypeMutableString:
		b, err := json.Marshal(v.s)
		if err != nil {
			return err
		}
		buf.Write(b)
	case TypeVector:
		buf.WriteByte('[')
		for i, e := range v.vec {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := e.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case TypeMap:
		buf.WriteByte('{')
		for i, p := range v.m {
			if i > 0 {
				buf.WriteByte(',')
			}
			key := p.Key.s
			if !p.Key.IsString() {
				key = p.Key.String()
			}
			b, err := json.Marshal(key)
			if err != nil {
				return err
			}
			buf.Write(b)
			buf.WriteByte(':')
			if err := p.Value.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported variant type: %v", v.typ)
	}
	return nil
}

// UnmarshalJSON decodes JSON into v. Integral numbers become Int64 values and all other numbers
// become Double values.
func (v *Variant) UnmarshalJSON(b []byte) error {
	parsed, err := FromJSON(b)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// FromJSON decodes a single JSON document into a Variant.
func FromJSON(b []byte) (Variant, error) {
	d := json.NewDecoder(bytes.NewReader(b))
	d.UseNumber()
	v, err := decodeValue(d)
	if err != nil {
		return Null(), err
	}
	if _, err := d.Token(); err != io.EOF {
		return Null(), fmt.Errorf("unexpected data after JSON value")
	}
	return v, nil
}

func decodeValue(d *json.Decoder) (Variant, error) {
	tok, err := d.Token()
	if err != nil {
		return Null(), err
	}
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		return fromNumber(t)
	case json.Delim:
		switch t {
		case '[':
			var elems []Variant
			for d.More() {
				e, err := decodeValue(d)
				if err != nil {
					return Null(), err
				}
				elems = append(elems, e)
			}
			if _, err := d.Token(); err != nil {
				return Null(), err
			}
			return Variant{typ: TypeVector, vec: elems}, nil
		case '{':
			var pairs []Pair
			for d.More() {
				kt, err := d.Token()
				if err != nil {
					return Null(), err
				}
				key, ok := kt.(string)
				if !ok {
					return Null(), fmt.Errorf("invalid object key: %v", kt)
				}
				val, err := decodeValue(d)
				if err != nil {
					return Null(), err
				}
				pairs = append(pairs, Pair{Key: String(key), Value: val})
			}
			if _, err := d.Token(); err != nil {
				return Null(), err
			}
			return Map(pairs...), nil
		}
	}
	return Null(), fmt.Errorf("unexpected JSON token: %v", tok)
}

func fromNumber(n json.Number) (Variant, error) {
	if i, err := n.Int64(); err == nil {
		return Int64(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return Null(), err
	}
	return Double(f), nil
}
