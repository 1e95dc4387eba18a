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
// Package template resolves ${path.to.value} expressions against a shared
// store. Paths walk dot-separated keys through nested maps and [i] indices
// through slices. The resolver is pure and stateless; it does no I/O.
package template

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Error is returned when a template expression cannot be resolved.
// Path is the full dotted path that failed; Segment is the piece
// that could not be looked up.
type Error struct {
	Path    string
	Segment string
	Reason  string
}

func (e *Error) Error() string {
	if e.Segment != "" && e.Segment != e.Path {
		return fmt.Sprintf("cannot resolve ${%s}: %s at %q", e.Path, e.Reason, e.Segment)
	}
	return fmt.Sprintf("cannot resolve ${%s}: %s", e.Path, e.Reason)
}

// ExtractVariables returns the set of ${...} paths referenced by s, sorted.
// An unclosed "${" is a parse error.
func ExtractVariables(s string) ([]string, error) {
	seen := make(map[string]struct{})
	for i := 0; i < len(s); {
		start := strings.Index(s[i:], "${")
		if start < 0 {
			break
		}
		start += i
		end := strings.Index(s[start:], "}")
		if end < 0 {
			return nil, &Error{Path: s[start+2:], Reason: "unclosed template expression"}
		}
		end += start
		path := s[start+2 : end]
		if path != "" {
			seen[path] = struct{}{}
		}
		i = end + 1
	}
	vars := make([]string, 0, len(seen))
	for v := range seen {
		vars = append(vars, v)
	}
	sort.Strings(vars)
	return vars, nil
}

// ResolveValue walks path through shared and returns the typed value found
// there. Maps stay maps, numbers stay numbers. A missing key or an index
// into a non-slice returns a *Error naming the path.
func ResolveValue(path string, shared map[string]any) (any, error) {
	segments, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	var current any = shared
	for _, seg := range segments {
		if seg.isIndex {
			seq, ok := current.([]any)
			if !ok {
				return nil, &Error{Path: path, Segment: fmt.Sprintf("[%d]", seg.index), Reason: "index into non-sequence"}
			}
			if seg.index < 0 || seg.index >= len(seq) {
				return nil, &Error{Path: path, Segment: fmt.Sprintf("[%d]", seg.index), Reason: "index out of range"}
			}
			current = seq[seg.index]
			continue
		}
		m, ok := current.(map[string]any)
		if !ok {
			return nil, &Error{Path: path, Segment: seg.key, Reason: "key lookup on non-mapping"}
		}
		v, ok := m[seg.key]
		if !ok {
			return nil, &Error{Path: path, Segment: seg.key, Reason: "key not found"}
		}
		current = v
	}
	return current, nil
}

// ResolveString substitutes every ${...} occurrence in s, coercing each
// resolved value to its string form.
func ResolveString(s string, shared map[string]any) (string, error) {
	var b strings.Builder
	for i := 0; i < len(s); {
		start := strings.Index(s[i:], "${")
		if start < 0 {
			b.WriteString(s[i:])
			break
		}
		start += i
		b.WriteString(s[i:start])
		end := strings.Index(s[start:], "}")
		if end < 0 {
			return "", &Error{Path: s[start+2:], Reason: "unclosed template expression"}
		}
		end += start
		value, err := ResolveValue(s[start+2:end], shared)
		if err != nil {
			return "", err
		}
		b.WriteString(Stringify(value))
		i = end + 1
	}
	return b.String(), nil
}

// ResolveNested resolves templates anywhere inside value, preserving
// structure. A string that is exactly one ${path} expression is replaced
// by the resolved value with its type intact; strings with embedded
// templates are rendered as strings; maps and slices are walked
// recursively. Values without templates pass through unchanged.
func ResolveNested(value any, shared map[string]any) (any, error) {
	switch v := value.(type) {
	case string:
		if path, ok := wholeExpression(v); ok {
			return ResolveValue(path, shared)
		}
		if !strings.Contains(v, "${") {
			return v, nil
		}
		return ResolveString(v, shared)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			resolved, err := ResolveNested(item, shared)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			resolved, err := ResolveNested(item, shared)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return value, nil
	}
}

// Stringify renders a resolved value for embedding inside a larger string.
// Maps and slices are JSON-encoded; nil renders empty.
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case map[string]any, []any:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// wholeExpression reports whether s is exactly one ${path} expression.
func wholeExpression(s string) (string, bool) {
	if !strings.HasPrefix(s, "${") || !strings.HasSuffix(s, "}") {
		return "", false
	}
	inner := s[2 : len(s)-1]
	if inner == "" || strings.Contains(inner, "${") || strings.Contains(inner, "}") {
		return "", false
	}
	return inner, true
}

type segment struct {
	key     string
	index   int
	isIndex bool
}

// splitPath breaks "a.b[0].c" into key and index segments.
func splitPath(path string) ([]segment, error) {
	if path == "" {
		return nil, &Error{Path: path, Reason: "empty expression"}
	}
	var segments []segment
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			return nil, &Error{Path: path, Reason: "empty path segment"}
		}
		key := part
		var indices []int
		for {
			open := strings.Index(key, "[")
			if open < 0 {
				break
			}
			closeIdx := strings.Index(key[open:], "]")
			if closeIdx < 0 {
				return nil, &Error{Path: path, Segment: part, Reason: "unclosed index"}
			}
			closeIdx += open
			idx, err := strconv.Atoi(key[open+1 : closeIdx])
			if err != nil {
				return nil, &Error{Path: path, Segment: part, Reason: "non-numeric index"}
			}
			indices = append(indices, idx)
			key = key[:open] + key[closeIdx+1:]
		}
		if key != "" {
			segments = append(segments, segment{key: key})
		}
		for _, idx := range indices {
			segments = append(segments, segment{index: idx, isIndex: true})
		}
	}
	return segments, nil
}
