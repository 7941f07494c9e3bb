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
	"math"
	"testing"
)

func TestMapSortsAndDeduplicates(t *testing.T) {
	m := Map(
		Pair{Key: String("b"), Value: Int64(2)},
		Pair{Key: String("a"), Value: Int64(1)},
		Pair{Key: String("b"), Value: Int64(3)},
	)
	if m.Len() != 2 {
		t.Fatalf("Len() = %d; want = 2", m.Len())
	}
	pairs := m.Map()
	if pairs[0].Key.StringValue() != "a" || pairs[1].Key.StringValue() != "b" {
		t.Errorf("Map() = %v; want sorted keys", m)
	}
	if got := m.Get("b").Int64Value(); got != 2 {
		t.Errorf("Get(b) = %d; want = 2", got)
	}
}

func TestStaticAndMutableStringsCompareEqual(t *testing.T) {
	if !Equal(StaticString("x"), String("x")) {
		t.Errorf("Equal(StaticString, String) = false; want = true")
	}
	m1 := Map(Pair{Key: StaticString("k"), Value: Null()})
	m2 := Map(Pair{Key: String("k"), Value: Null()})
	if !Equal(m1, m2) {
		t.Errorf("Equal(%v, %v) = false; want = true", m1, m2)
	}
}

func TestCompare(t *testing.T) {
	cases := []struct {
		a, b Variant
		want int
	}{
		{Null(), Null(), 0},
		{Null(), Bool(false), -1},
		{Int64(1), Int64(2), -1},
		{Double(2.5), Double(1), 1},
		{Double(math.NaN()), Double(math.NaN()), 0},
		{Bool(true), Bool(false), 1},
		{String("a"), String("b"), -1},
		{Vector(Int64(1)), Vector(Int64(1), Int64(2)), -1},
		{Vector(String("a")), Vector(String("a")), 0},
		{StringMap(map[string]Variant{"a": Int64(1)}), StringMap(map[string]Variant{"a": Int64(2)}), -1},
	}
	for _, tc := range cases {
		if got := Compare(tc.a, tc.b); got != tc.want {
			t.Errorf("Compare(%v, %v) = %d; want = %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestWith(t *testing.T) {
	base := StringMap(map[string]Variant{"a": Int64(1)})
	added := base.With("b", Bool(true))
	if added.Len() != 2 || !added.Get("b").BoolValue() {
		t.Errorf("With(b) = %v; want two entries", added)
	}
	if base.Len() != 1 {
		t.Errorf("With() mutated receiver: %v", base)
	}
	removed := added.With("a", Null())
	if _, ok := removed.Lookup("a"); ok {
		t.Errorf("With(a, null) = %v; want key removed", removed)
	}
	fromScalar := Int64(4).With("x", String("y"))
	if !fromScalar.IsMap() || fromScalar.Get("x").StringValue() != "y" {
		t.Errorf("Int64.With() = %v; want map", fromScalar)
	}
}

func TestAccessorsOnWrongType(t *testing.T) {
	v := String("s")
	if v.Int64Value() != 0 || v.BoolValue() || v.Vector() != nil || v.Map() != nil || v.Len() != 0 {
		t.Errorf("accessors on string returned non-zero values")
	}
	if got := Double(3.9).Int64Value(); got != 3 {
		t.Errorf("Int64Value() = %d; want = 3", got)
	}
	if got := Int64(3).DoubleValue(); got != 3 {
		t.Errorf("DoubleValue() = %f; want = 3", got)
	}
}

func TestJSON(t *testing.T) {
	in := `{"name":"Peter","age":17,"score":9.5,"tags":["a",null,true],"nested":{"x":{}}}`
	v, err := FromJSON([]byte(in))
	if err != nil {
		t.Fatal(err)
	}
	if got := v.Get("age"); got.Type() != TypeInt64 || got.Int64Value() != 17 {
		t.Errorf("age = %v; want = Int64(17)", got)
	}
	if got := v.Get("score"); got.Type() != TypeDouble || got.DoubleValue() != 9.5 {
		t.Errorf("score = %v; want = Double(9.5)", got)
	}
	if got := v.Get("tags").Len(); got != 3 {
		t.Errorf("len(tags) = %d; want = 3", got)
	}

	b, err := v.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	want := `{"age":17,"name":"Peter","nested":{"x":{}},"score":9.5,"tags":["a",null,true]}`
	if string(b) != want {
		t.Errorf("MarshalJSON() = %s; want = %s", b, want)
	}
}

func TestJSONNonStringKeys(t *testing.T) {
	v := Map(Pair{Key: Int64(1), Value: String("one")})
	b, err := v.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"1":"one"}` {
		t.Errorf("MarshalJSON() = %s; want = {\"1\":\"one\"}", b)
	}
}

func TestJSONErrors(t *testing.T) {
	for _, in := range []string{"", "{", "[1,", "1 2"} {
		if _, err := FromJSON([]byte(in)); err == nil {
			t.Errorf("FromJSON(%q) = nil; want error", in)
		}
	}
	if _, err := Double(math.Inf(1)).MarshalJSON(); err == nil {
		t.Errorf("MarshalJSON(Inf) = nil; want error")
	}
}

func TestString(t *testing.T) {
	v := Map(
		Pair{Key: String("a"), Value: Vector(Int64(1), Double(1.5))},
		Pair{Key: String("b"), Value: Null()},
	)
	want := `{"a": [1, 1.5], "b": null}`
	if got := v.String(); got != want {
		t.Errorf("String() = %s; want = %s", got, want)
	}
}
