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

// Package codec contains the generic values exchanged over plugin method channels.
//
// Value is a closed tagged union. Every method call argument, reply and stream event carried by a
// channel is built from the types declared in this package.
package codec

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind int

// Value kinds.
const (
	KindNull Kind = iota
	KindBool
	KindInt32
	KindInt64
	KindDouble
	KindString
	KindBytes
	KindInt32Array
	KindInt64Array
	KindFloatArray
	KindDoubleArray
	KindList
	KindMap
	KindCustom
)

var kindNames = [...]string{
	KindNull:        "Null",
	KindBool:        "Bool",
	KindInt32:       "Int32",
	KindInt64:       "Int64",
	KindDouble:      "Double",
	KindString:      "String",
	KindBytes:       "Bytes",
	KindInt32Array:  "Int32Array",
	KindInt64Array:  "Int64Array",
	KindFloatArray:  "FloatArray",
	KindDoubleArray: "DoubleArray",
	KindList:        "List",
	KindMap:         "Map",
	KindCustom:      "Custom",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is a generic channel value. The nil Value is treated as Null everywhere in this module.
type Value interface {
	Kind() Kind
	String() string
	isValue()
}

// Null is the absent value.
type Null struct{}

// Bool is a boolean value.
type Bool bool

// Int32 is a 32-bit integer value.
type Int32 int32

// Int64 is a 64-bit integer value.
type Int64 int64

// Double is a double precision floating point value.
type Double float64

// String is a UTF-8 string value.
type String string

// Bytes is a byte array value.
type Bytes []byte

// Int32Array is a typed array of 32-bit integers.
type Int32Array []int32

// Int64Array is a typed array of 64-bit integers.
type Int64Array []int64

// FloatArray is a typed array of single precision floats.
type FloatArray []float32

// DoubleArray is a typed array of double precision floats.
type DoubleArray []float64

// List is an ordered sequence of values.
type List []Value

// Map is an ordered sequence of key/value entries. Keys are arbitrary values and are unique.
type Map []Entry

// Entry is one key/value pair of a Map.
type Entry struct {
	Key   Value
	Value Value
}

// Custom is an application-defined extension value. It cannot be converted to any native
// representation.
type Custom struct {
	TypeName string
	Data     []byte
}

func (Null) Kind() Kind        { return KindNull }
func (Bool) Kind() Kind        { return KindBool }
func (Int32) Kind() Kind       { return KindInt32 }
func (Int64) Kind() Kind       { return KindInt64 }
func (Double) Kind() Kind      { return KindDouble }
func (String) Kind() Kind      { return KindString }
func (Bytes) Kind() Kind       { return KindBytes }
func (Int32Array) Kind() Kind  { return KindInt32Array }
func (Int64Array) Kind() Kind  { return KindInt64Array }
func (FloatArray) Kind() Kind  { return KindFloatArray }
func (DoubleArray) Kind() Kind { return KindDoubleArray }
func (List) Kind() Kind        { return KindList }
func (Map) Kind() Kind         { return KindMap }
func (Custom) Kind() Kind      { return KindCustom }

func (Null) isValue()        {}
func (Bool) isValue()        {}
func (Int32) isValue()       {}
func (Int64) isValue()       {}
func (Double) isValue()      {}
func (String) isValue()      {}
func (Bytes) isValue()       {}
func (Int32Array) isValue()  {}
func (Int64Array) isValue()  {}
func (FloatArray) isValue()  {}
func (DoubleArray) isValue() {}
func (List) isValue()        {}
func (Map) isValue()         {}
func (Custom) isValue()      {}

// KindOf returns the kind of v, reporting KindNull for a nil Value.
func KindOf(v Value) Kind {
	if v == nil {
		return KindNull
	}
	return v.Kind()
}

// IsNull reports whether v is nil or Null.
func IsNull(v Value) bool {
	return KindOf(v) == KindNull
}

// KV returns a Map entry with a string key.
func KV(key string, v Value) Entry {
	return Entry{Key: String(key), Value: v}
}

// MapOf builds a Map from entries, dropping later entries whose keys repeat an earlier one.
func MapOf(entries ...Entry) Map {
	m := make(Map, 0, len(entries))
	for _, e := range entries {
		if _, ok := m.lookup(e.Key); ok {
			continue
		}
		m = append(m, e)
	}
	return m
}

// Lookup returns the value stored under a string key.
func (m Map) Lookup(key string) (Value, bool) {
	return m.lookup(String(key))
}

func (m Map) lookup(key Value) (Value, bool) {
	for _, e := range m {
		if Equal(e.Key, key) {
			return e.Value, true
		}
	}
	return nil, false
}

// Get returns the value stored under a string key, or nil when absent.
func (m Map) Get(key string) Value {
	v, _ := m.Lookup(key)
	return v
}

// Set returns a Map with key bound to v, replacing any previous binding in place.
func (m Map) Set(key string, v Value) Map {
	for i, e := range m {
		if s, ok := e.Key.(String); ok && string(s) == key {
			out := make(Map, len(m))
			copy(out, m)
			out[i].Value = v
			return out
		}
	}
	out := make(Map, len(m), len(m)+1)
	copy(out, m)
	return append(out, KV(key, v))
}

// Equal reports whether a and b hold the same kind and structurally identical contents. Map
// equality ignores entry order. NaN doubles are equal to each other.
func Equal(a, b Value) bool {
	ka, kb := KindOf(a), KindOf(b)
	if ka != kb {
		return false
	}
	switch ka {
	case KindNull:
		return true
	case KindBool:
		return a.(Bool) == b.(Bool)
	case KindInt32:
		return a.(Int32) == b.(Int32)
	case KindInt64:
		return a.(Int64) == b.(Int64)
	case KindDouble:
		return floatEqual(float64(a.(Double)), float64(b.(Double)))
	case KindString:
		return a.(String) == b.(String)
	case KindBytes:
		return bytes.Equal(a.(Bytes), b.(Bytes))
	case KindInt32Array:
		x, y := a.(Int32Array), b.(Int32Array)
		if len(x) != len(y) {
			return false
		}
		for i := range x {
			if x[i] != y[i] {
				return false
			}
		}
		return true
	case KindInt64Array:
		x, y := a.(Int64Array), b.(Int64Array)
		if len(x) != len(y) {
			return false
		}
		for i := range x {
			if x[i] != y[i] {
				return false
			}
		}
		return true
	case KindFloatArray:
		x, y := a.(FloatArray), b.(FloatArray)
		if len(x) != len(y) {
			return false
		}
		for i := range x {
			if !floatEqual(float64(x[i]), float64(y[i])) {
				return false
			}
		}
		return true
	case KindDoubleArray:
		x, y := a.(DoubleArray), b.(DoubleArray)
		if len(x) != len(y) {
			return false
		}
		for i := range x {
			if !floatEqual(x[i], y[i]) {
				return false
			}
		}
		return true
	case KindList:
		x, y := a.(List), b.(List)
		if len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case KindMap:
		x, y := a.(Map), b.(Map)
		if len(x) != len(y) {
			return false
		}
		for _, e := range x {
			other, ok := y.lookup(e.Key)
			if !ok || !Equal(e.Value, other) {
				return false
			}
		}
		return true
	case KindCustom:
		x, y := a.(Custom), b.(Custom)
		return x.TypeName == y.TypeName && bytes.Equal(x.Data, y.Data)
	}
	return false
}

func floatEqual(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}

func (Null) String() string     { return "null" }
func (b Bool) String() string   { return strconv.FormatBool(bool(b)) }
func (i Int32) String() string  { return strconv.FormatInt(int64(i), 10) }
func (i Int64) String() string  { return strconv.FormatInt(int64(i), 10) }
func (d Double) String() string { return strconv.FormatFloat(float64(d), 'g', -1, 64) }
func (s String) String() string { return strconv.Quote(string(s)) }
func (b Bytes) String() string  { return fmt.Sprintf("bytes[%d]", len(b)) }

func (a Int32Array) String() string  { return fmt.Sprint([]int32(a)) }
func (a Int64Array) String() string  { return fmt.Sprint([]int64(a)) }
func (a FloatArray) String() string  { return fmt.Sprint([]float32(a)) }
func (a DoubleArray) String() string { return fmt.Sprint([]float64(a)) }

func (l List) String() string {
	parts := make([]string, len(l))
	for i, v := range l {
		parts[i] = toString(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (m Map) String() string {
	parts := make([]string, len(m))
	for i, e := range m {
		parts[i] = toString(e.Key) + ": " + toString(e.Value)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (c Custom) String() string {
	return fmt.Sprintf("custom<%s>[%d]", c.TypeName, len(c.Data))
}

func toString(v Value) string {
	if v == nil {
		return "null"
	}
	return v.String()
}

// Of converts common Go values into a Value. It accepts nil, Values, booleans, integer and float
// types, strings, byte slices, slices of any accepted type and maps keyed by strings.
func Of(x interface{}) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case int:
		return Int64(t), nil
	case int32:
		return Int32(t), nil
	case int64:
		return Int64(t), nil
	case float32:
		return Double(t), nil
	case float64:
		return Double(t), nil
	case string:
		return String(t), nil
	case []byte:
		return Bytes(t), nil
	case []interface{}:
		l := make(List, len(t))
		for i, e := range t {
			v, err := Of(e)
			if err != nil {
				return nil, err
			}
			l[i] = v
		}
		return l, nil
	case []string:
		l := make(List, len(t))
		for i, e := range t {
			l[i] = String(e)
		}
		return l, nil
	case map[string]interface{}:
		m := make(Map, 0, len(t))
		for _, k := range sortedKeys(t) {
			v, err := Of(t[k])
			if err != nil {
				return nil, err
			}
			m = append(m, KV(k, v))
		}
		return m, nil
	}
	return nil, fmt.Errorf("unsupported value type: %T", x)
}

// MustOf is like Of but panics when x cannot be converted.
func MustOf(x interface{}) Value {
	v, err := Of(x)
	if err != nil {
		panic(err)
	}
	return v
}
