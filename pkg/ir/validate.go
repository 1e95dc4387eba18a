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
package ir

import (
	"fmt"
	"strings"

	"github.com/teradata-labs/pflow/pkg/template"
)

// BatchOutputKeys are the namespace keys a batch node writes in place of
// the inner node's outputs. Template paths into a batch node's namespace
// must start at one of these.
var BatchOutputKeys = []string{
	"results", "count", "success_count", "error_count", "errors", "batch_metadata",
}

var batchOutputKeySet = func() map[string]bool {
	m := make(map[string]bool, len(BatchOutputKeys))
	for _, k := range BatchOutputKeys {
		m[k] = true
	}
	return m
}()

// Validate applies the semantic rules that the schema cannot express:
// unique node ids, edge endpoints, template-variable resolvability, and
// output sources. typeExists, when non-nil, is consulted for every node
// type; unknown types become validation errors. outputKeys, when
// non-nil, maps a node type to its declared output keys (each key's
// value is a nested key map where the port declares structure, anything
// else where it does not); template paths into a node's namespace are
// then checked against those keys. A type with no declared outputs
// skips the key check. Returned strings carry a field location and a
// short reason.
func Validate(doc *Document, typeExists func(string) bool, outputKeys func(nodeType string) map[string]any) []string {
	var errs []string

	seen := make(map[string]int, len(doc.Nodes))
	for i, n := range doc.Nodes {
		if prev, dup := seen[n.ID]; dup {
			errs = append(errs, fmt.Sprintf("nodes[%d].id: duplicate id %q (first declared at nodes[%d])", i, n.ID, prev))
			continue
		}
		seen[n.ID] = i
	}

	for i, e := range doc.Edges {
		if _, ok := seen[e.From]; !ok {
			errs = append(errs, fmt.Sprintf("edges[%d].from: unknown node %q", i, e.From))
		}
		if _, ok := seen[e.To]; !ok {
			errs = append(errs, fmt.Sprintf("edges[%d].to: unknown node %q", i, e.To))
		}
	}

	if typeExists != nil {
		for i, n := range doc.Nodes {
			if !typeExists(n.Type) {
				errs = append(errs, fmt.Sprintf("nodes[%d].type: unknown node type %q", i, n.Type))
			}
		}
	}

	// Template variables must resolve to a declared input or an earlier
	// node's namespace; inside a batch node the item alias also counts.
	// Past the node id, the path is checked against the node's declared
	// output keys when the catalogue knows them.
	c := &pathChecker{doc: doc, index: seen, outputKeys: outputKeys}
	for i, n := range doc.Nodes {
		c.limit = i
		c.alias = ""
		if n.Batch != nil {
			c.alias = batchAlias(n.Batch)
		}
		loc := fmt.Sprintf("nodes[%d].params", i)
		errs = append(errs, c.walk(n.Params, loc)...)
		if n.Batch != nil {
			if items, ok := n.Batch.Items.(string); ok {
				errs = append(errs, c.checkString(items, fmt.Sprintf("nodes[%d].batch.items", i))...)
			}
		}
	}

	// Declared outputs see every node.
	c.limit = len(doc.Nodes)
	c.alias = ""
	for name, out := range doc.Outputs {
		loc := fmt.Sprintf("outputs.%s.source", name)
		vars, err := template.ExtractVariables(out.Source)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", loc, err))
			continue
		}
		if len(vars) == 0 {
			errs = append(errs, fmt.Sprintf("%s: not a template expression", loc))
			continue
		}
		for _, v := range vars {
			if reason := c.checkPath(v); reason != "" {
				errs = append(errs, fmt.Sprintf("%s: %s", loc, reason))
			}
		}
	}

	return errs
}

// pathChecker validates template paths against the nodes visible at one
// point in the document.
type pathChecker struct {
	doc        *Document
	index      map[string]int
	outputKeys func(string) map[string]any

	// limit is the exclusive upper bound on visible node positions.
	limit int
	// alias is the batch item alias admitted as a root, "" when none.
	alias string
}

// walk validates every template string in a param value.
func (c *pathChecker) walk(value any, loc string) []string {
	switch v := value.(type) {
	case string:
		return c.checkString(v, loc)
	case map[string]any:
		var errs []string
		for k, item := range v {
			errs = append(errs, c.walk(item, loc+"."+k)...)
		}
		return errs
	case []any:
		var errs []string
		for i, item := range v {
			errs = append(errs, c.walk(item, fmt.Sprintf("%s[%d]", loc, i))...)
		}
		return errs
	default:
		return nil
	}
}

func (c *pathChecker) checkString(s, loc string) []string {
	vars, err := template.ExtractVariables(s)
	if err != nil {
		return []string{fmt.Sprintf("%s: %v", loc, err)}
	}
	var errs []string
	for _, v := range vars {
		if reason := c.checkPath(v); reason != "" {
			errs = append(errs, fmt.Sprintf("%s: %s", loc, reason))
		}
	}
	return errs
}

// checkPath validates one template path and returns a reason string, or
// "" when the path is acceptable.
func (c *pathChecker) checkPath(path string) string {
	keys := pathKeys(path)
	if len(keys) == 0 {
		return fmt.Sprintf("template variable ${%s} has no path", path)
	}
	root := keys[0]
	if _, ok := c.doc.Inputs[root]; ok {
		return ""
	}
	if c.alias != "" && root == c.alias {
		return ""
	}
	j, ok := c.index[root]
	if !ok || j >= c.limit {
		return fmt.Sprintf("template variable ${%s} does not match a declared input or an earlier node", path)
	}
	if len(keys) == 1 {
		return ""
	}

	target := &c.doc.Nodes[j]
	if target.Batch != nil {
		if !batchOutputKeySet[keys[1]] {
			return fmt.Sprintf("template variable ${%s}: batch node %q writes %s, not %q",
				path, root, strings.Join(BatchOutputKeys, "/"), keys[1])
		}
		// Result elements carry whatever the inner node produced.
		return ""
	}
	if c.outputKeys == nil {
		return ""
	}
	structure := c.outputKeys(target.Type)
	if structure == nil {
		return ""
	}
	for _, key := range keys[1:] {
		sub, ok := structure[key]
		if !ok {
			return fmt.Sprintf("template variable ${%s}: node %q (type %q) does not declare output key %q",
				path, root, target.Type, key)
		}
		next, isMap := sub.(map[string]any)
		if !isMap || len(next) == 0 {
			// No declared shape past this key.
			return ""
		}
		structure = next
	}
	return ""
}

// pathKeys returns the dotted key segments of a template path with index
// accessors stripped: "a.b[0].c" becomes ["a","b","c"].
func pathKeys(path string) []string {
	var keys []string
	for _, part := range strings.Split(path, ".") {
		if i := strings.IndexByte(part, '['); i >= 0 {
			part = part[:i]
		}
		if part != "" {
			keys = append(keys, part)
		}
	}
	return keys
}

func batchAlias(b *BatchSpec) string {
	if s, ok := b.As.(string); ok && s != "" {
		return s
	}
	return "item"
}
