// Copyright 2018 Google Inc. All Rights Reserved.
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

package db

import (
	"strconv"

	"github.com/firebase/firebase-bridge-go/variant"
)

const (
	priorityKey = ".priority"
	valueKey    = ".value"
)

// DataSnapshot contains data from a database location.
//
// A snapshot is immutable. Its children are ordered by the ordering of the query that produced
// it, or by priority when it was produced by a plain reference.
type DataSnapshot struct {
	Key string

	// node holds the data in export format, with priorities encoded as ".priority" entries.
	node  variant.Variant
	order ordering
	keys  []string
}

func newSnapshot(key string, node variant.Variant, o ordering) *DataSnapshot {
	return &DataSnapshot{Key: key, node: node, order: o}
}

// Exists returns true if the snapshot contains a non-null value.
func (s *DataSnapshot) Exists() bool {
	return !s.Value().IsNull()
}

// Value returns the data contained in the snapshot, without priorities.
func (s *DataSnapshot) Value() variant.Variant {
	return exportValue(s.node)
}

// Priority returns the priority of the snapshot root, or null when none is set.
func (s *DataSnapshot) Priority() variant.Variant {
	return priorityOf(s.node)
}

// HasChildren returns true if the snapshot holds an object with at least one child.
func (s *DataSnapshot) HasChildren() bool {
	return len(childKeysOf(s.node)) > 0
}

// ChildKeys returns the keys of the direct children, in order.
func (s *DataSnapshot) ChildKeys() []string {
	if s.keys != nil {
		keys := make([]string, len(s.keys))
		copy(keys, s.keys)
		return keys
	}
	return sortedChildren(s.node, s.order)
}

// Child returns a snapshot of the data at the given relative path.
func (s *DataSnapshot) Child(path string) *DataSnapshot {
	segs := parsePath(path)
	key := s.Key
	if len(segs) > 0 {
		key = segs[len(segs)-1]
	}
	return newSnapshot(key, childAt(s.node, segs), ordering{})
}

// Children returns snapshots of the direct children, in order.
func (s *DataSnapshot) Children() []*DataSnapshot {
	keys := s.ChildKeys()
	children := make([]*DataSnapshot, len(keys))
	for i, k := range keys {
		children[i] = newSnapshot(k, childOf(s.node, k), ordering{})
	}
	return children
}

// exportValue strips priorities from a node in export format.
func exportValue(node variant.Variant) variant.Variant {
	switch {
	case node.IsMap():
		if v, ok := node.Lookup(valueKey); ok {
			return v
		}
		pairs := make([]variant.Pair, 0, node.Len())
		for _, p := range node.Map() {
			if keyString(p.Key) == priorityKey {
				continue
			}
			child := exportValue(p.Value)
			if child.IsNull() {
				continue
			}
			pairs = append(pairs, variant.Pair{Key: p.Key, Value: child})
		}
		if len(pairs) == 0 {
			return variant.Null()
		}
		return variant.Map(pairs...)
	case node.IsVector():
		elems := node.Vector()
		for i, e := range elems {
			elems[i] = exportValue(e)
		}
		return variant.Vector(elems...)
	}
	return node
}

func priorityOf(node variant.Variant) variant.Variant {
	return node.Get(priorityKey)
}

// withPriority encodes a value and its priority in export format.
func withPriority(v, priority variant.Variant) variant.Variant {
	if priority.IsNull() {
		return v
	}
	if v.IsMap() {
		if _, ok := v.Lookup(valueKey); !ok {
			return v.With(priorityKey, priority)
		}
		v = v.Get(valueKey)
	}
	return variant.Map(
		variant.Pair{Key: variant.StaticString(valueKey), Value: v},
		variant.Pair{Key: variant.StaticString(priorityKey), Value: priority},
	)
}

// childKeysOf returns the unordered keys of the non-null children of node.
func childKeysOf(node variant.Variant) []string {
	var keys []string
	switch {
	case node.IsMap():
		if _, ok := node.Lookup(valueKey); ok {
			return nil
		}
		for _, p := range node.Map() {
			k := keyString(p.Key)
			if k == priorityKey || exportValue(p.Value).IsNull() {
				continue
			}
			keys = append(keys, k)
		}
	case node.IsVector():
		for i, e := range node.Vector() {
			if !exportValue(e).IsNull() {
				keys = append(keys, strconv.Itoa(i))
			}
		}
	}
	return keys
}

func childOf(node variant.Variant, key string) variant.Variant {
	switch {
	case node.IsMap():
		if _, ok := node.Lookup(valueKey); ok {
			return variant.Null()
		}
		for _, p := range node.Map() {
			if keyString(p.Key) == key {
				return p.Value
			}
		}
	case node.IsVector():
		i, err := strconv.Atoi(key)
		if err == nil && i >= 0 && i < node.Len() {
			return node.Vector()[i]
		}
	}
	return variant.Null()
}

func childAt(node variant.Variant, path []string) variant.Variant {
	for _, seg := range path {
		node = childOf(node, seg)
	}
	return node
}

// setChild returns a copy of node with the value at path replaced by child. Parents left without
// children collapse to null.
func setChild(node variant.Variant, path []string, child variant.Variant) variant.Variant {
	if len(path) == 0 {
		return child
	}
	base := asObject(node)
	updated := setChild(childOf(base, path[0]), path[1:], child)
	base = base.With(path[0], updated)
	if len(childKeysOf(base)) == 0 {
		return variant.Null()
	}
	return base
}

// asObject converts node into a map keyed by strings. Leaves become empty objects.
func asObject(node variant.Variant) variant.Variant {
	switch {
	case node.IsMap():
		if _, ok := node.Lookup(valueKey); ok {
			return variant.Map()
		}
		pairs := node.Map()
		for i, p := range pairs {
			pairs[i].Key = variant.String(keyString(p.Key))
		}
		return variant.Map(pairs...)
	case node.IsVector():
		pairs := make([]variant.Pair, 0, node.Len())
		for i, e := range node.Vector() {
			if e.IsNull() {
				continue
			}
			pairs = append(pairs, variant.Pair{Key: variant.String(strconv.Itoa(i)), Value: e})
		}
		return variant.Map(pairs...)
	}
	return variant.Map()
}

func keyString(k variant.Variant) string {
	switch {
	case k.IsString():
		return k.StringValue()
	case k.Type() == variant.TypeInt64:
		return strconv.FormatInt(k.Int64Value(), 10)
	}
	return k.String()
}
