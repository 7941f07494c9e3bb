// Copyright 2020 Google Inc. All Rights Reserved.
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

package functions

import (
	"math"
	"strconv"

	"github.com/firebase/firebase-bridge-go/variant"
)

const (
	typeKey       = "@type"
	valueKey      = "value"
	int64Type     = "type.googleapis.com/google.protobuf.Int64Value"
	uint64Type    = "type.googleapis.com/google.protobuf.UInt64Value"
	nonFiniteType = "type.googleapis.com/google.protobuf.DoubleValue"
)

// encode converts v into the JSON representation of the callable protocol. 64-bit integers are
// wrapped in a typed object so that they survive the trip through JavaScript numbers.
func encode(v variant.Variant) (interface{}, error) {
	switch v.Type() {
	case variant.TypeNull:
		return nil, nil
	case variant.TypeBool:
		return v.BoolValue(), nil
	case variant.TypeInt64:
		return map[string]interface{}{
			typeKey:  int64Type,
			valueKey: strconv.FormatInt(v.Int64Value(), 10),
		}, nil
	case variant.TypeDouble:
		d := v.DoubleValue()
		if math.IsNaN(d) || math.IsInf(d, 0) {
			return map[string]interface{}{
				typeKey:  nonFiniteType,
				valueKey: strconv.FormatFloat(d, 'g', -1, 64),
			}, nil
		}
		return d, nil
	case variant.TypeStaticString, variant.TypeMutableString:
		return v.StringValue(), nil
	case variant.TypeVector:
		elems := v.Vector()
		out := make([]interface{}, len(elems))
		for i, e := range elems {
			enc, err := encode(e)
			if err != nil {
				return nil, err
			}
			out[i] = enc
		}
		return out, nil
	case variant.TypeMap:
		out := make(map[string]interface{}, v.Len())
		for _, p := range v.Map() {
			if !p.Key.IsString() {
				return nil, newError(ErrorInvalidArgument, "map keys must be strings: %s", p.Key.Type())
			}
			enc, err := encode(p.Value)
			if err != nil {
				return nil, err
			}
			out[p.Key.StringValue()] = enc
		}
		return out, nil
	default:
		return nil, newError(ErrorInvalidArgument, "unsupported value type: %s", v.Type())
	}
}

func decodeJSON(b []byte) (variant.Variant, error) {
	v, err := variant.FromJSON(b)
	if err != nil {
		return variant.Null(), err
	}
	return decode(v), nil
}

// decode reverses encode on a value parsed from JSON, unwrapping typed numbers.
func decode(v variant.Variant) variant.Variant {
	switch v.Type() {
	case variant.TypeVector:
		elems := v.Vector()
		out := make([]variant.Variant, len(elems))
		for i, e := range elems {
			out[i] = decode(e)
		}
		return variant.Vector(out...)
	case variant.TypeMap:
		if n, ok := decodeWrapped(v); ok {
			return n
		}
		pairs := v.Map()
		out := make([]variant.Pair, len(pairs))
		for i, p := range pairs {
			out[i] = variant.Pair{Key: p.Key, Value: decode(p.Value)}
		}
		return variant.Map(out...)
	default:
		return v
	}
}

func decodeWrapped(v variant.Variant) (variant.Variant, bool) {
	if v.Len() != 2 {
		return variant.Null(), false
	}
	t, val := v.Get(typeKey), v.Get(valueKey)
	if !t.IsString() || !val.IsString() {
		return variant.Null(), false
	}
	switch t.StringValue() {
	case int64Type, uint64Type:
		n, err := strconv.ParseInt(val.StringValue(), 10, 64)
		if err != nil {
			return variant.Null(), false
		}
		return variant.Int64(n), true
	case nonFiniteType:
		d, err := strconv.ParseFloat(val.StringValue(), 64)
		if err != nil {
			return variant.Null(), false
		}
		return variant.Double(d), true
	}
	return variant.Null(), false
}
