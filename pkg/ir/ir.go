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
// Package ir defines the workflow intermediate representation: a typed
// DAG of node specs with parameter templates and declared inputs and
// outputs. Parsing validates against a JSON schema first, then applies
// the semantic rules the schema cannot express.
package ir

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Version is the IR version this runtime supports.
const Version = "0.1.0"

// Document is a parsed workflow.
type Document struct {
	IRVersion string                `yaml:"ir_version" json:"ir_version"`
	Nodes     []NodeSpec            `yaml:"nodes" json:"nodes"`
	Edges     []Edge                `yaml:"edges,omitempty" json:"edges,omitempty"`
	Inputs    map[string]InputSpec  `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Outputs   map[string]OutputSpec `yaml:"outputs,omitempty" json:"outputs,omitempty"`
}

// NodeSpec declares one node occurrence in a workflow.
type NodeSpec struct {
	ID      string         `yaml:"id" json:"id"`
	Type    string         `yaml:"type" json:"type"`
	Params  map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
	Batch   *BatchSpec     `yaml:"batch,omitempty" json:"batch,omitempty"`
	Purpose string         `yaml:"purpose,omitempty" json:"purpose,omitempty"`
}

// Edge links two nodes. An empty Action means "default".
type Edge struct {
	From   string `yaml:"from" json:"from"`
	To     string `yaml:"to" json:"to"`
	Action string `yaml:"action,omitempty" json:"action,omitempty"`
}

// InputSpec declares a workflow-level input parameter.
type InputSpec struct {
	Type        string `yaml:"type" json:"type"`
	Required    bool   `yaml:"required" json:"required"`
	Default     any    `yaml:"default,omitempty" json:"default,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Stdin       bool   `yaml:"stdin,omitempty" json:"stdin,omitempty"`
}

// OutputSpec declares a workflow-level output, extracted from the final
// shared store by resolving Source as a template expression.
type OutputSpec struct {
	Source      string `yaml:"source" json:"source"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Type        string `yaml:"type,omitempty" json:"type,omitempty"`
}

// BatchSpec turns a node into a fan-out over an items sequence. Fields
// other than Items are loosely typed because human-authored workflows
// may carry them as strings; the batch engine coerces with warnings.
type BatchSpec struct {
	Items         any `yaml:"items" json:"items"`
	As            any `yaml:"as,omitempty" json:"as,omitempty"`
	Parallel      any `yaml:"parallel,omitempty" json:"parallel,omitempty"`
	MaxConcurrent any `yaml:"max_concurrent,omitempty" json:"max_concurrent,omitempty"`
	MaxRetries    any `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
	RetryWait     any `yaml:"retry_wait,omitempty" json:"retry_wait,omitempty"`
	ErrorHandling any `yaml:"error_handling,omitempty" json:"error_handling,omitempty"`
}

// Parse decodes a YAML (or JSON) document, validates it structurally
// against the IR schema, and returns the typed Document. Semantic rules
// are checked separately via Validate.
func Parse(data []byte) (*Document, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse workflow: %w", err)
	}
	return FromValue(raw)
}

// FromValue builds a Document from an already-decoded generic value,
// such as the structured output of an LLM call. The value is validated
// against the IR schema before decoding.
func FromValue(v any) (*Document, error) {
	v = normalizeValue(v)
	if errs := validateSchema(v); len(errs) > 0 {
		return nil, fmt.Errorf("invalid workflow: %s", errs[0])
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode workflow: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode workflow: %w", err)
	}
	if doc.IRVersion != Version {
		return nil, fmt.Errorf("unsupported ir_version %q (supported: %s)", doc.IRVersion, Version)
	}
	return &doc, nil
}

// Marshal renders the document as YAML.
func (d *Document) Marshal() ([]byte, error) {
	return yaml.Marshal(d)
}

// Node returns the node spec with the given id, or nil.
func (d *Document) Node(id string) *NodeSpec {
	for i := range d.Nodes {
		if d.Nodes[i].ID == id {
			return &d.Nodes[i]
		}
	}
	return nil
}

// normalizeValue converts yaml-decoded values into the JSON-compatible
// shapes the schema validator expects.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeValue(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprintf("%v", k)] = normalizeValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item)
		}
		return out
	default:
		return v
	}
}
