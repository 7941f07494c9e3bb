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

package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
)

// FromJSON decodes a JSON document into a Value. Integral numbers decode to Int64 and all other
// numbers to Double.
func FromJSON(b []byte) (Value, error) {
	d := json.NewDecoder(bytes.NewReader(b))
	d.UseNumber()
	var raw interface{}
	if err := d.Decode(&raw); err != nil {
		return nil, err
	}
	if d.More() {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	return fromJSONValue(raw)
}

func fromJSONValue(x interface{}) (Value, error) {
	switch t := x.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int64(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, err
		}
		return Double(f), nil
	case []interface{}:
		l := make(List, len(t))
		for i, e := range t {
			v, err := fromJSONValue(e)
			if err != nil {
				return nil, err
			}
			l[i] = v
		}
		return l, nil
	case map[string]interface{}:
		m := make(Map, 0, len(t))
		for _, k := range sortedKeys(t) {
			v, err := fromJSONValue(t[k])
			if err != nil {
				return nil, err
			}
			m = append(m, KV(k, v))
		}
		return m, nil
	}
	return Of(x)
}

// ToJSONable converts v into plain Go values accepted by encoding/json. Byte arrays become base64
// strings and map keys are rendered with their String form unless they are strings.
func ToJSONable(v Value) interface{} {
	switch t := v.(type) {
	case nil, Null:
		return nil
	case Bool:
		return bool(t)
	case Int32:
		return int32(t)
	case Int64:
		return int64(t)
	case Double:
		return float64(t)
	case String:
		return string(t)
	case Bytes:
		return base64.StdEncoding.EncodeToString(t)
	case Int32Array:
		return []int32(t)
	case Int64Array:
		return []int64(t)
	case FloatArray:
		return []float32(t)
	case DoubleArray:
		return []float64(t)
	case List:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = ToJSONable(e)
		}
		return out
	case Map:
		out := make(map[string]interface{}, len(t))
		for _, e := range t {
			key, ok := e.Key.(String)
			if !ok {
				key = String(toString(e.Key))
			}
			out[string(key)] = ToJSONable(e.Value)
		}
		return out
	case Custom:
		return map[string]interface{}{"type": t.TypeName, "data": base64.StdEncoding.EncodeToString(t.Data)}
	}
	return nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
