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

// Package variant contains the dynamic value type shared by the Firebase service clients in this
// module.
//
// A Variant is a recursive tagged union over null, int64, double, bool, strings, vectors and maps.
// Map keys are Variants themselves, and maps are kept sorted by key so that two maps holding the
// same entries are always structurally identical.
package variant

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Type identifies the kind of value held by a Variant.
type Type int

// Variant types. The order of the constants is the order in which values of different types
// compare.
const (
	TypeNull Type = iota
	TypeInt64
	TypeDouble
	TypeBool
	TypeStaticString
	TypeMutableString
	TypeVector
	TypeMap
)

var typeNames = map[Type]string{
	TypeNull:          "Null",
	TypeInt64:         "Int64",
	TypeDouble:        "Double",
	TypeBool:          "Bool",
	TypeStaticString:  "StaticString",
	TypeMutableString: "MutableString",
	TypeVector:        "Vector",
	TypeMap:           "Map",
}

func (t Type) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// Variant is an immutable dynamic value. The zero Variant is null.
type Variant struct {
	typ Type
	i   int64
	f   float64
	b   bool
	s   string
	vec []Variant
	m   []Pair
}

// Pair is a single key/value entry of a map Variant.
type Pair struct {
	Key   Variant
	Value Variant
}

// Null returns the null Variant.
func Null() Variant {
	return Variant{}
}

// Int64 returns a Variant holding an integer.
func Int64(i int64) Variant {
	return Variant{typ: TypeInt64, i: i}
}

// Double returns a Variant holding a floating point number.
func Double(f float64) Variant {
	return Variant{typ: TypeDouble, f: f}
}

// Bool returns a Variant holding a boolean.
func Bool(b bool) Variant {
	return Variant{typ: TypeBool, b: b}
}

// String returns a Variant holding a string owned by the Variant.
func String(s string) Variant {
	return Variant{typ: TypeMutableString, s: s}
}

// StaticString returns a Variant holding a string that refers to static data.
//
// Static and mutable strings compare equal when their contents match.
func StaticString(s string) Variant {
	return Variant{typ: TypeStaticString, s: s}
}

// Vector returns a Variant holding the given elements, in order.
func Vector(elems ...Variant) Variant {
	vec := make([]Variant, len(elems))
	copy(vec, elems)
	return Variant{typ: TypeVector, vec: vec}
}

// Map returns a Variant holding the given entries.
//
// Entries are sorted by key. When the same key appears more than once, the first entry wins.
func Map(pairs ...Pair) Variant {
	m := make([]Pair, 0, len(pairs))
	for _, p := range pairs {
		idx, found := search(m, p.Key)
		if found {
			continue
		}
		m = append(m, Pair{})
		copy(m[idx+1:], m[idx:])
		m[idx] = p
	}
	return Variant{typ: TypeMap, m: m}
}

// StringMap returns a map Variant keyed by strings.
func StringMap(entries map[string]Variant) Variant {
	pairs := make([]Pair, 0, len(entries))
	for k, v := range entries {
		pairs = append(pairs, Pair{Key: String(k), Value: v})
	}
	return Map(pairs...)
}

// Type returns the type of the value held by v.
func (v Variant) Type() Type {
	return v.typ
}

// IsNull reports whether v is null.
func (v Variant) IsNull() bool {
	return v.typ == TypeNull
}

// IsString reports whether v holds a static or a mutable string.
func (v Variant) IsString() bool {
	return v.typ == TypeStaticString || v.typ == TypeMutableString
}

// IsNumeric reports whether v holds an int64 or a double.
func (v Variant) IsNumeric() bool {
	return v.typ == TypeInt64 || v.typ == TypeDouble
}

// IsVector reports whether v holds a vector.
func (v Variant) IsVector() bool {
	return v.typ == TypeVector
}

// IsMap reports whether v holds a map.
func (v Variant) IsMap() bool {
	return v.typ == TypeMap
}

// IsContainer reports whether v holds a vector or a map.
func (v Variant) IsContainer() bool {
	return v.IsVector() || v.IsMap()
}

// Int64Value returns the integer held by v. Doubles are truncated, and every other type yields 0.
func (v Variant) Int64Value() int64 {
	switch v.typ {
	case TypeInt64:
		return v.i
	case TypeDouble:
		return int64(v.f)
	}
	return 0
}

// DoubleValue returns the number held by v as a float64, or 0 for non-numeric values.
func (v Variant) DoubleValue() float64 {
	switch v.typ {
	case TypeInt64:
		return float64(v.i)
	case TypeDouble:
		return v.f
	}
	return 0
}

// BoolValue returns the boolean held by v, or false for every other type.
func (v Variant) BoolValue() bool {
	return v.typ == TypeBool && v.b
}

// StringValue returns the string held by v, or the empty string for every other type.
func (v Variant) StringValue() string {
	if v.IsString() {
		return v.s
	}
	return ""
}

// Vector returns a copy of the elements of a vector Variant.
func (v Variant) Vector() []Variant {
	if v.typ != TypeVector {
		return nil
	}
	out := make([]Variant, len(v.vec))
	copy(out, v.vec)
	return out
}

// Map returns a copy of the entries of a map Variant, sorted by key.
func (v Variant) Map() []Pair {
	if v.typ != TypeMap {
		return nil
	}
	out := make([]Pair, len(v.m))
	copy(out, v.m)
	return out
}

// Len returns the number of elements of a vector or the number of entries of a map.
func (v Variant) Len() int {
	switch v.typ {
	case TypeVector:
		return len(v.vec)
	case TypeMap:
		return len(v.m)
	}
	return 0
}

// Lookup returns the value stored under a string key of a map Variant.
func (v Variant) Lookup(key string) (Variant, bool) {
	if v.typ != TypeMap {
		return Null(), false
	}
	idx, found := search(v.m, String(key))
	if !found {
		return Null(), false
	}
	return v.m[idx].Value, true
}

// Get returns the value stored under key, or null when v is not a map or the key is absent.
func (v Variant) Get(key string) Variant {
	child, _ := v.Lookup(key)
	return child
}

// With returns a copy of a map Variant with key set to child. A null child removes the key.
//
// Calling With on a non-map Variant treats it as an empty map.
func (v Variant) With(key string, child Variant) Variant {
	var m []Pair
	if v.typ == TypeMap {
		m = make([]Pair, len(v.m), len(v.m)+1)
		copy(m, v.m)
	}
	k := String(key)
	idx, found := search(m, k)
	switch {
	case found && child.IsNull():
		m = append(m[:idx], m[idx+1:]...)
	case found:
		m[idx].Value = child
	case !child.IsNull():
		m = append(m, Pair{})
		copy(m[idx+1:], m[idx:])
		m[idx] = Pair{Key: k, Value: child}
	}
	return Variant{typ: TypeMap, m: m}
}

// Equal reports whether a and b hold structurally identical values.
func Equal(a, b Variant) bool {
	return Compare(a, b) == 0
}

// Compare orders two Variants. Values of different types are ordered by type, except that static
// and mutable strings compare by content. Vectors and maps compare element by element.
func Compare(a, b Variant) int {
	ta, tb := normType(a.typ), normType(b.typ)
	if ta != tb {
		if ta < tb {
			return -1
		}
		return 1
	}
	switch ta {
	case TypeNull:
		return 0
	case TypeInt64:
		return cmpInt(a.i, b.i)
	case TypeDouble:
		return cmpFloat(a.f, b.f)
	case TypeBool:
		if a.b == b.b {
			return 0
		} else if !a.b {
			return -1
		}
		return 1
	case TypeMutableString:
		return strings.Compare(a.s, b.s)
	case TypeVector:
		for i := 0; i < len(a.vec) && i < len(b.vec); i++ {
			if c := Compare(a.vec[i], b.vec[i]); c != 0 {
				return c
			}
		}
		return cmpInt(int64(len(a.vec)), int64(len(b.vec)))
	case TypeMap:
		for i := 0; i < len(a.m) && i < len(b.m); i++ {
			if c := Compare(a.m[i].Key, b.m[i].Key); c != 0 {
				return c
			}
			if c := Compare(a.m[i].Value, b.m[i].Value); c != 0 {
				return c
			}
		}
		return cmpInt(int64(len(a.m)), int64(len(b.m)))
	}
	return 0
}

func normType(t Type) Type {
	if t == TypeStaticString {
		return TypeMutableString
	}
	return t
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	case a == b:
		return 0
	case math.IsNaN(a) && math.IsNaN(b):
		return 0
	case math.IsNaN(a):
		return -1
	}
	return 1
}

func search(m []Pair, key Variant) (int, bool) {
	idx := sort.Search(len(m), func(i int) bool {
		return Compare(m[i].Key, key) >= 0
	})
	return idx, idx < len(m) && Compare(m[idx].Key, key) == 0
}

// String renders v in a compact, human readable form intended for logs.
func (v Variant) String() string {
	var sb strings.Builder
	v.format(&sb)
	return sb.String()
}

func (v Variant) format(sb *strings.Builder) {
	switch v.typ {
	case TypeNull:
		sb.WriteString("null")
	case TypeInt64:
		sb.WriteString(strconv.FormatInt(v.i, 10))
	case TypeDouble:
		sb.WriteString(strconv.FormatFloat(v.f, 'g', -1, 64))
	case TypeBool:
		sb.WriteString(strconv.FormatBool(v.b))
	case TypeStaticString, TypeMutableString:
		sb.WriteString(strconv.Quote(v.s))
	case TypeVector:
		sb.WriteByte('[')
		for i, e := range v.vec {
			if i > 0 {
				sb.WriteString(", ")
			}
			e.format(sb)
		}
		sb.WriteByte(']')
	case TypeMap:
		sb.WriteByte('{')
		for i, p := range v.m {
			if i > 0 {
				sb.WriteString(", ")
			}
			p.Key.format(sb)
			sb.WriteString(": ")
			p.Value.format(sb)
		}
		sb.WriteByte('}')
	}
}
