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

// Package convert translates between channel values and the dynamic values used by the Firebase
// service clients.
//
// Both conversions are total over the kinds that have a counterpart on the other side. Kinds
// without one indicate a programming error and cause a panic.
package convert

import (
	"errors"
	"fmt"

	"github.com/firebase/firebase-bridge-go/codec"
	"github.com/firebase/firebase-bridge-go/variant"
)

var (
	// ErrUnsupportedValueKind is the panic value raised by ToNative for channel values that have
	// no native representation.
	ErrUnsupportedValueKind = errors.New("unsupported channel value kind")

	// ErrUnsupportedNativeKind is the panic value raised by ToGeneric for native values that have
	// no channel representation.
	ErrUnsupportedNativeKind = errors.New("unsupported native value kind")
)

// ToNative converts a channel value into a native Variant.
//
// Int32 values widen to Int64. Typed arrays and byte arrays become vectors of Int64 or Double.
// Custom values panic with an error wrapping ErrUnsupportedValueKind.
func ToNative(v codec.Value) variant.Variant {
	switch t := v.(type) {
	case nil, codec.Null:
		return variant.Null()
	case codec.Bool:
		return variant.Bool(bool(t))
	case codec.Int32:
		return variant.Int64(int64(t))
	case codec.Int64:
		return variant.Int64(int64(t))
	case codec.Double:
		return variant.Double(float64(t))
	case codec.String:
		return variant.String(string(t))
	case codec.Bytes:
		vec := make([]variant.Variant, len(t))
		for i, b := range t {
			vec[i] = variant.Int64(int64(b))
		}
		return variant.Vector(vec...)
	case codec.Int32Array:
		vec := make([]variant.Variant, len(t))
		for i, e := range t {
			vec[i] = variant.Int64(int64(e))
		}
		return variant.Vector(vec...)
	case codec.Int64Array:
		vec := make([]variant.Variant, len(t))
		for i, e := range t {
			vec[i] = variant.Int64(e)
		}
		return variant.Vector(vec...)
	case codec.FloatArray:
		vec := make([]variant.Variant, len(t))
		for i, e := range t {
			vec[i] = variant.Double(float64(e))
		}
		return variant.Vector(vec...)
	case codec.DoubleArray:
		vec := make([]variant.Variant, len(t))
		for i, e := range t {
			vec[i] = variant.Double(e)
		}
		return variant.Vector(vec...)
	case codec.List:
		vec := make([]variant.Variant, len(t))
		for i, e := range t {
			vec[i] = ToNative(e)
		}
		return variant.Vector(vec...)
	case codec.Map:
		pairs := make([]variant.Pair, len(t))
		for i, e := range t {
			pairs[i] = variant.Pair{Key: ToNative(e.Key), Value: ToNative(e.Value)}
		}
		return variant.Map(pairs...)
	}
	panic(fmt.Errorf("%w: %s", ErrUnsupportedValueKind, codec.KindOf(v)))
}

// ToGeneric converts a native Variant into a channel value. Static and mutable strings both
// become String values. Map entries keep the key order of the Variant.
func ToGeneric(v variant.Variant) codec.Value {
	switch v.Type() {
	case variant.TypeNull:
		return codec.Null{}
	case variant.TypeInt64:
		return codec.Int64(v.Int64Value())
	case variant.TypeDouble:
		return codec.Double(v.DoubleValue())
	case variant.TypeBool:
		return codec.Bool(v.BoolValue())
	case variant.TypeStaticString, variant.TypeMutableString:
		return codec.String(v.StringValue())
	case variant.TypeVector:
		elems := v.Vector()
		l := make(codec.List, len(elems))
		for i, e := range elems {
			l[i] = ToGeneric(e)
		}
		return l
	case variant.TypeMap:
		pairs := v.Map()
		m := make(codec.Map, len(pairs))
		for i, p := range pairs {
			m[i] = codec.Entry{Key: ToGeneric(p.Key), Value: ToGeneric(p.Value)}
		}
		return m
	}
	panic(fmt.Errorf("%w: %s", ErrUnsupportedNativeKind, v.Type()))
}
