// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package template

import (
	"errors"
	"reflect"
	"testing"
)

func TestExtractVariables(t *testing.T) {
	vars, err := ExtractVariables("prefix ${a.b} mid ${c[0].d} ${a.b} suffix")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"a.b", "c[0].d"}
	if !reflect.DeepEqual(vars, want) {
		t.Errorf("expected %v, got %v", want, vars)
	}
}

func TestExtractVariables_NoTemplates(t *testing.T) {
	vars, err := ExtractVariables("plain text with } and $ but no expressions")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vars) != 0 {
		t.Errorf("expected no variables, got %v", vars)
	}
}

func TestExtractVariables_Unclosed(t *testing.T) {
	_, err := ExtractVariables("before ${a.b")
	if err == nil {
		t.Fatal("expected parse error for unclosed expression")
	}
	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("expected *Error, got %T", err)
	}
}

func TestResolveValue_Nested(t *testing.T) {
	shared := map[string]any{
		"rd": map[string]any{"content": "hello"},
		"list": []any{
			map[string]any{"name": "first"},
			map[string]any{"name": "second"},
		},
	}

	v, err := ResolveValue("rd.content", shared)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "hello" {
		t.Errorf("expected 'hello', got %v", v)
	}

	v, err = ResolveValue("list[1].name", shared)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "second" {
		t.Errorf("expected 'second', got %v", v)
	}
}

func TestResolveValue_MissingKey(t *testing.T) {
	shared := map[string]any{"a": map[string]any{"b": 1}}
	_, err := ResolveValue("a.missing", shared)
	if err == nil {
		t.Fatal("expected error for missing key")
	}
	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if terr.Path != "a.missing" {
		t.Errorf("expected path 'a.missing' in error, got %q", terr.Path)
	}
}

func TestResolveValue_IndexOutOfRange(t *testing.T) {
	shared := map[string]any{"items": []any{"a"}}
	_, err := ResolveValue("items[3]", shared)
	if err == nil {
		t.Fatal("expected error for out-of-range index")
	}
}

func TestResolveString(t *testing.T) {
	shared := map[string]any{
		"rd":    map[string]any{"content": "hello"},
		"count": 3,
	}
	s, err := ResolveString("prompt: ${rd.content}! (${count})", shared)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != "prompt: hello! (3)" {
		t.Errorf("expected 'prompt: hello! (3)', got %q", s)
	}
}

func TestResolveNested_TypePreservation(t *testing.T) {
	shared := map[string]any{
		"rd":  map[string]any{"content": "hello"},
		"num": 42,
	}

	// A bare expression keeps the resolved value's type.
	v, err := ResolveNested("${rd}", shared)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("expected map, got %T", v)
	}
	if m["content"] != "hello" {
		t.Errorf("expected content 'hello', got %v", m["content"])
	}

	v, err = ResolveNested("${num}", shared)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Errorf("expected int 42, got %v (%T)", v, v)
	}

	// Embedded expressions coerce to string.
	v, err = ResolveNested("n=${num}", shared)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "n=42" {
		t.Errorf("expected 'n=42', got %v", v)
	}
}

func TestResolveNested_Structures(t *testing.T) {
	shared := map[string]any{"name": "pflow"}
	value := map[string]any{
		"greeting": "hi ${name}",
		"items":    []any{"${name}", "literal"},
		"number":   7,
	}

	v, err := ResolveNested(value, shared)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resolved := v.(map[string]any)
	if resolved["greeting"] != "hi pflow" {
		t.Errorf("expected 'hi pflow', got %v", resolved["greeting"])
	}
	items := resolved["items"].([]any)
	if items[0] != "pflow" || items[1] != "literal" {
		t.Errorf("unexpected items: %v", items)
	}
	if resolved["number"] != 7 {
		t.Errorf("expected 7, got %v", resolved["number"])
	}
}

func TestResolveNested_IdempotentWithoutTemplates(t *testing.T) {
	shared := map[string]any{}
	value := map[string]any{"a": []any{1, "two", map[string]any{"b": true}}}

	once, err := ResolveNested(value, shared)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	twice, err := ResolveNested(once, shared)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("expected idempotent resolution, got %v then %v", once, twice)
	}
}

func TestStringify(t *testing.T) {
	if s := Stringify(nil); s != "" {
		t.Errorf("expected empty string for nil, got %q", s)
	}
	if s := Stringify(map[string]any{"k": "v"}); s != `{"k":"v"}` {
		t.Errorf("unexpected map rendering: %q", s)
	}
	if s := Stringify(3.0); s != "3" {
		t.Errorf("expected '3', got %q", s)
	}
}
