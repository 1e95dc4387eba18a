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
package planner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/teradata-labs/pflow/pkg/ir"
	"github.com/teradata-labs/pflow/pkg/llm"
	"github.com/teradata-labs/pflow/pkg/node"
	"github.com/teradata-labs/pflow/pkg/registry"
	"github.com/teradata-labs/pflow/pkg/workflows"
)

// stdinPreviewLimit caps how much piped input is shown to the model.
// The planner needs the shape of the data, not all of it.
const stdinPreviewLimit = 2000

var discoverySchema = llm.Schema{
	"type": "object",
	"properties": map[string]any{
		"found":         map[string]any{"type": "boolean"},
		"workflow_name": map[string]any{"type": "string"},
		"confidence":    map[string]any{"type": "number"},
		"reasoning":     map[string]any{"type": "string"},
	},
	"required": []any{"found", "workflow_name", "confidence", "reasoning"},
}

var browsingSchema = llm.Schema{
	"type": "object",
	"properties": map[string]any{
		"node_types": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
		"workflow_names": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
		"reasoning": map[string]any{"type": "string"},
	},
	"required": []any{"node_types", "workflow_names"},
}

var paramHintSchema = llm.Schema{
	"type": "object",
	"properties": map[string]any{
		"params": map[string]any{
			"type":        "object",
			"description": "Mapping from parameter name to {value, confidence, source}.",
		},
	},
	"required": []any{"params"},
}

var generatorSchema = llm.Schema{
	"type": "object",
	"properties": map[string]any{
		"ir_version": map[string]any{"type": "string"},
		"inputs":     map[string]any{"type": "object"},
		"nodes":      map[string]any{"type": "array"},
		"edges":      map[string]any{"type": "array"},
		"outputs":    map[string]any{"type": "object"},
	},
	"required": []any{"ir_version", "nodes"},
}

var metadataSchema = llm.Schema{
	"type": "object",
	"properties": map[string]any{
		"suggested_name": map[string]any{"type": "string"},
		"description":    map[string]any{"type": "string"},
		"search_keywords": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
		"capabilities": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
		"typical_use_cases": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
	},
	"required": []any{"suggested_name"},
}

var mappingSchema = llm.Schema{
	"type": "object",
	"properties": map[string]any{
		"params": map[string]any{
			"type":        "object",
			"description": "Mapping from workflow input name to extracted value.",
		},
	},
	"required": []any{"params"},
}

// planningContext is the component selection browsing builds for the
// generator: only the browsed node types and workflows, never the full
// catalogue.
type planningContext struct {
	Entries   map[string]registry.Entry
	Workflows []*workflows.Workflow
}

func (c *planningContext) render() string {
	var b strings.Builder
	b.WriteString("Available node types:\n")
	if len(c.Entries) == 0 {
		b.WriteString("  (none selected)\n")
	}
	for _, name := range registry.Names(c.Entries) {
		e := c.Entries[name]
		fmt.Fprintf(&b, "- %s: %s\n", name, e.Interface.Description)
		for _, param := range e.Interface.Params {
			req := ""
			if param.Required {
				req = " (required)"
			}
			fmt.Fprintf(&b, "    param %s: %s%s %s\n", param.Key, param.Type, req, param.Description)
		}
		for _, out := range e.Interface.Outputs {
			fmt.Fprintf(&b, "    output %s: %s\n", out.Key, out.Type)
		}
	}
	if len(c.Workflows) > 0 {
		b.WriteString("\nReference workflows:\n")
		for _, wf := range c.Workflows {
			body, err := wf.Doc.Marshal()
			if err != nil {
				continue
			}
			fmt.Fprintf(&b, "### %s\n%s\n```yaml\n%s```\n", wf.Metadata.Name, wf.Metadata.Description, body)
		}
	}
	return b.String()
}

// renderCatalogue summarises the full node-type catalogue one line per
// type, for discovery and browsing prompts.
func renderCatalogue(entries map[string]registry.Entry) string {
	if len(entries) == 0 {
		return "  (empty)\n"
	}
	var b strings.Builder
	for _, name := range registry.Names(entries) {
		fmt.Fprintf(&b, "- %s: %s\n", name, entries[name].Interface.Description)
	}
	return b.String()
}

// renderWorkflowList summarises the saved-workflow library for discovery
// and browsing prompts.
func renderWorkflowList(list []workflows.Metadata) string {
	if len(list) == 0 {
		return "  (empty)\n"
	}
	var b strings.Builder
	for _, m := range list {
		fmt.Fprintf(&b, "- %s: %s", m.Name, m.Description)
		if len(m.SearchKeywords) > 0 {
			fmt.Fprintf(&b, " [keywords: %s]", strings.Join(m.SearchKeywords, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// renderInputs summarises a workflow's declared inputs for the mapping
// prompt.
func renderInputs(doc *ir.Document) string {
	if len(doc.Inputs) == 0 {
		return "  (none)\n"
	}
	names := make([]string, 0, len(doc.Inputs))
	for name := range doc.Inputs {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		in := doc.Inputs[name]
		fmt.Fprintf(&b, "- %s (%s", name, in.Type)
		if in.Required {
			b.WriteString(", required")
		}
		if in.Default != nil {
			fmt.Fprintf(&b, ", default=%v", in.Default)
		}
		if in.Stdin {
			b.WriteString(", fed from stdin")
		}
		b.WriteString(")")
		if in.Description != "" {
			b.WriteString(": " + in.Description)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// userInput reads the request text from the shared store.
func userInput(shared node.Shared) (string, error) {
	s, ok := shared[KeyUserInput].(string)
	if !ok || s == "" {
		return "", fmt.Errorf("shared store has no %s", KeyUserInput)
	}
	return s, nil
}

// stdinPreview returns a truncated view of piped input, or "".
func stdinPreview(shared node.Shared) string {
	s, ok := shared[KeyStdin].(string)
	if !ok || s == "" {
		return ""
	}
	if len(s) > stdinPreviewLimit {
		return s[:stdinPreviewLimit] + "\n...(truncated)"
	}
	return s
}

// stringSlice coerces an LLM-returned array into strings, skipping
// anything else.
func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
