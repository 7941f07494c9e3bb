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
	"errors"
	"fmt"
)

// ArgumentError reports a method call argument that is missing or has the wrong type.
type ArgumentError struct {
	Key string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("No %s provided or has invalid type or value.", e.Key)
}

// IsArgumentError checks if the given error was caused by an invalid method call argument.
func IsArgumentError(err error) bool {
	var ae *ArgumentError
	return errors.As(err, &ae)
}

// Args provides typed access to the argument map of a method call.
type Args struct {
	m Map
}

// NewArgs wraps the arguments of a method call. Null arguments are treated as an empty map and
// every other non-map value is rejected.
func NewArgs(v Value) (Args, error) {
	switch t := v.(type) {
	case nil, Null:
		return Args{}, nil
	case Map:
		return Args{m: t}, nil
	}
	return Args{}, &ArgumentError{Key: "arguments"}
}

// ArgsOf wraps an argument map.
func ArgsOf(m Map) Args {
	return Args{m: m}
}

// Map returns the underlying argument map.
func (a Args) Map() Map {
	return a.m
}

// Has reports whether key is present with a non-null value.
func (a Args) Has(key string) bool {
	v, ok := a.m.Lookup(key)
	return ok && !IsNull(v)
}

// Value returns the raw value stored under key, or nil.
func (a Args) Value(key string) Value {
	return a.m.Get(key)
}

// RequiredValue returns the value stored under key, which may be Null but must be present.
func (a Args) RequiredValue(key string) (Value, error) {
	v, ok := a.m.Lookup(key)
	if !ok {
		return nil, &ArgumentError{Key: key}
	}
	if v == nil {
		v = Null{}
	}
	return v, nil
}

// GetString returns the string stored under key.
func (a Args) GetString(key string) (string, bool) {
	s, ok := a.m.Get(key).(String)
	return string(s), ok
}

// StringOr returns the string stored under key, or def when it is absent or not a string.
func (a Args) StringOr(key, def string) string {
	if s, ok := a.GetString(key); ok {
		return s
	}
	return def
}

// RequiredString returns the string stored under key or an ArgumentError.
func (a Args) RequiredString(key string) (string, error) {
	s, ok := a.GetString(key)
	if !ok {
		return "", &ArgumentError{Key: key}
	}
	return s, nil
}

// GetBool returns the boolean stored under key.
func (a Args) GetBool(key string) (bool, bool) {
	b, ok := a.m.Get(key).(Bool)
	return bool(b), ok
}

// BoolOr returns the boolean stored under key, or def.
func (a Args) BoolOr(key string, def bool) bool {
	if b, ok := a.GetBool(key); ok {
		return b
	}
	return def
}

// RequiredBool returns the boolean stored under key or an ArgumentError.
func (a Args) RequiredBool(key string) (bool, error) {
	b, ok := a.GetBool(key)
	if !ok {
		return false, &ArgumentError{Key: key}
	}
	return b, nil
}

// GetInt returns the integer stored under key. Both Int32 and Int64 values are accepted.
func (a Args) GetInt(key string) (int64, bool) {
	switch t := a.m.Get(key).(type) {
	case Int32:
		return int64(t), true
	case Int64:
		return int64(t), true
	}
	return 0, false
}

// RequiredInt returns the integer stored under key or an ArgumentError.
func (a Args) RequiredInt(key string) (int64, error) {
	i, ok := a.GetInt(key)
	if !ok {
		return 0, &ArgumentError{Key: key}
	}
	return i, nil
}

// GetDouble returns the number stored under key as a float64. Integers are accepted.
func (a Args) GetDouble(key string) (float64, bool) {
	switch t := a.m.Get(key).(type) {
	case Int32:
		return float64(t), true
	case Int64:
		return float64(t), true
	case Double:
		return float64(t), true
	}
	return 0, false
}

// GetMap returns the nested map stored under key.
func (a Args) GetMap(key string) (Map, bool) {
	m, ok := a.m.Get(key).(Map)
	return m, ok
}

// RequiredMap returns the nested map stored under key or an ArgumentError.
func (a Args) RequiredMap(key string) (Map, error) {
	m, ok := a.GetMap(key)
	if !ok {
		return nil, &ArgumentError{Key: key}
	}
	return m, nil
}

// GetList returns the list stored under key.
func (a Args) GetList(key string) (List, bool) {
	l, ok := a.m.Get(key).(List)
	return l, ok
}

// GetBytes returns the byte array stored under key.
func (a Args) GetBytes(key string) ([]byte, bool) {
	b, ok := a.m.Get(key).(Bytes)
	return []byte(b), ok
}

// RequiredBytes returns the byte array stored under key or an ArgumentError.
func (a Args) RequiredBytes(key string) ([]byte, error) {
	b, ok := a.GetBytes(key)
	if !ok {
		return nil, &ArgumentError{Key: key}
	}
	return b, nil
}
