// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

func TestMarshalSortsKeys(t *testing.T) {
	got, err := Marshal(map[string]any{"zebra": 1, "alpha": 2, "mid": 3})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"alpha":2,"mid":3,"zebra":1}`
	if string(got) != want {
		t.Errorf("Marshal = %s, want %s", got, want)
	}
}

func TestMarshalNestedSorting(t *testing.T) {
	value := map[string]any{
		"outer": map[string]any{"b": []any{map[string]any{"y": 1, "x": 2}}, "a": nil},
	}
	got, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"outer":{"a":null,"b":[{"x":2,"y":1}]}}`
	if string(got) != want {
		t.Errorf("Marshal = %s, want %s", got, want)
	}
}

func TestMarshalRejectsFloats(t *testing.T) {
	for _, value := range []any{
		map[string]any{"f": 1.5},
		[]any{0.25},
		3.14,
	} {
		if _, err := Marshal(value); err == nil {
			t.Errorf("Marshal(%v) should fail for non-integer number", value)
		}
	}
}

func TestMarshalAcceptsIntegers(t *testing.T) {
	got, err := Marshal(map[string]any{"n": -42, "z": 0})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"n":-42,"z":0}`
	if string(got) != want {
		t.Errorf("Marshal = %s, want %s", got, want)
	}
}

func TestMarshalStructTags(t *testing.T) {
	type sample struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
		Skip  string `json:"skip,omitempty"`
	}
	got, err := Marshal(sample{Name: "a", Count: 7})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"count":7,"name":"a"}`
	if string(got) != want {
		t.Errorf("Marshal = %s, want %s", got, want)
	}
}

func TestMarshalNoHTMLEscape(t *testing.T) {
	got, err := Marshal(map[string]any{"m": "<!-- CLAIM:C0001 -->"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"m":"<!-- CLAIM:C0001 -->"}`
	if string(got) != want {
		t.Errorf("Marshal = %s, want %s", got, want)
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	inputs := []string{
		`{ "b" : 1, "a" : [ true, null, "x" ] }`,
		`{"nested":{"z":{"k":"v"},"a":[1,2,3]}}`,
		`"just a string"`,
		`[]`,
	}
	for _, input := range inputs {
		first, err := Canonicalize([]byte(input))
		if err != nil {
			t.Fatalf("Canonicalize(%q): %v", input, err)
		}
		second, err := Canonicalize(first)
		if err != nil {
			t.Fatalf("Canonicalize(canonical): %v", err)
		}
		if !bytes.Equal(first, second) {
			t.Errorf("Canonicalize not idempotent: %s vs %s", first, second)
		}
	}
}

func TestCanonicalizeRejectsTrailingData(t *testing.T) {
	if _, err := Canonicalize([]byte(`{} {}`)); err == nil {
		t.Fatal("Canonicalize should reject trailing data")
	}
}

func TestCanonicalizeRejectsExponents(t *testing.T) {
	for _, input := range []string{`{"n":1e3}`, `{"n":1.0}`, `{"n":01}`} {
		if _, err := Canonicalize([]byte(input)); err == nil {
			t.Errorf("Canonicalize(%q) should fail", input)
		}
	}
}

func TestMarshalLine(t *testing.T) {
	got, err := MarshalLine(map[string]any{"a": 1})
	if err != nil {
		t.Fatalf("MarshalLine: %v", err)
	}
	if want := "{\"a\":1}\n"; string(got) != want {
		t.Errorf("MarshalLine = %q, want %q", got, want)
	}
}
