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
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/firebase/firebase-bridge-go/variant"
)

type orderKind int

const (
	orderByPriority orderKind = iota
	orderByKey
	orderByValue
	orderByChild
)

// ordering describes how the children of a node are sorted.
type ordering struct {
	kind orderKind
	path []string
}

// param returns the value of the orderBy query parameter for this ordering.
func (o ordering) param() (string, error) {
	switch o.kind {
	case orderByKey:
		return `"$key"`, nil
	case orderByValue:
		return `"$value"`, nil
	case orderByChild:
		b, err := json.Marshal(strings.Join(o.path, "/"))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return `"$priority"`, nil
}

// sortValue returns the value a child node is ordered by.
func (o ordering) sortValue(node variant.Variant) variant.Variant {
	switch o.kind {
	case orderByPriority:
		return priorityOf(node)
	case orderByValue:
		return exportValue(node)
	case orderByChild:
		return exportValue(childAt(node, o.path))
	}
	return variant.Null()
}

// compare orders two children of the same parent. Ties are broken by key.
func (o ordering) compare(ak string, a variant.Variant, bk string, b variant.Variant) int {
	var c int
	switch o.kind {
	case orderByKey:
		return compareKeys(ak, bk)
	case orderByPriority:
		c = comparePriorities(priorityOf(a), priorityOf(b))
	default:
		c = compareValues(o.sortValue(a), o.sortValue(b))
	}
	if c != 0 {
		return c
	}
	return compareKeys(ak, bk)
}

// sortedChildren returns the child keys of node in the given order.
func sortedChildren(node variant.Variant, o ordering) []string {
	keys := childKeysOf(node)
	sort.SliceStable(keys, func(i, j int) bool {
		return o.compare(keys[i], childOf(node, keys[i]), keys[j], childOf(node, keys[j])) < 0
	})
	return keys
}

// compareKeys sorts keys that parse as 32-bit integers numerically and before all other keys,
// which are sorted lexicographically.
func compareKeys(a, b string) int {
	ai, aok := keyIndex(a)
	bi, bok := keyIndex(b)
	switch {
	case aok && bok:
		return cmpInt(ai, bi)
	case aok:
		return -1
	case bok:
		return 1
	}
	return strings.Compare(a, b)
}

func keyIndex(k string) (int64, bool) {
	i, err := strconv.ParseInt(k, 10, 32)
	if err != nil || strconv.FormatInt(i, 10) != k {
		return 0, false
	}
	return i, true
}

// valueRank orders values of different types: null, false, true, numbers, strings, objects.
func valueRank(v variant.Variant) int {
	switch {
	case v.IsNull():
		return 0
	case v.Type() == variant.TypeBool && !v.BoolValue():
		return 1
	case v.Type() == variant.TypeBool:
		return 2
	case v.IsNumeric():
		return 3
	case v.IsString():
		return 4
	}
	return 5
}

func compareValues(a, b variant.Variant) int {
	ra, rb := valueRank(a), valueRank(b)
	if ra != rb {
		return cmpInt(int64(ra), int64(rb))
	}
	switch ra {
	case 3:
		return compareNumbers(a, b)
	case 4:
		return strings.Compare(a.StringValue(), b.StringValue())
	}
	return 0
}

// comparePriorities orders missing priorities first, then numbers, then strings.
func comparePriorities(a, b variant.Variant) int {
	rank := func(v variant.Variant) int {
		switch {
		case v.IsNull():
			return 0
		case v.IsNumeric():
			return 1
		case v.IsString():
			return 2
		}
		return 3
	}
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmpInt(int64(ra), int64(rb))
	}
	switch ra {
	case 1:
		return compareNumbers(a, b)
	case 2:
		return strings.Compare(a.StringValue(), b.StringValue())
	}
	return 0
}

func compareNumbers(a, b variant.Variant) int {
	if a.Type() == variant.TypeInt64 && b.Type() == variant.TypeInt64 {
		return cmpInt(a.Int64Value(), b.Int64Value())
	}
	fa, fb := a.DoubleValue(), b.DoubleValue()
	switch {
	case fa < fb:
		return -1
	case fa > fb:
		return 1
	}
	return 0
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
