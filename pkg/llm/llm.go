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
// Package llm defines the structured-output contract the planner speaks:
// {schema, prompt} in, a schema-shaped object out. Concrete providers
// implement StructuredClient as response adapters; the planner never
// sees a provider's wire format.
package llm

import (
	"context"
)

// Schema is a JSON-schema object describing the structured output.
type Schema map[string]any

// Request is one structured-output call.
type Request struct {
	// System is the optional system prompt.
	System string

	// Prompt is the user prompt.
	Prompt string

	// Schema describes the required response object.
	Schema Schema

	// SchemaName names the schema for providers that expose it as a
	// tool. Defaults to "emit_result".
	SchemaName string

	// Model overrides the client's default model.
	Model string

	// Temperature, when set, is passed through verbatim, so an explicit
	// zero is expressible. Nil leaves the provider default.
	Temperature *float64

	// MaxTokens caps the completion; 0 uses the client default.
	MaxTokens int
}

// Float returns a pointer to v, for literal Temperature values.
func Float(v float64) *float64 { return &v }

// Usage is the token accounting of one call.
type Usage struct {
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
	Model        string `json:"model,omitempty"`
}

// Map renders the usage in the shared-store llm_usage shape.
func (u Usage) Map() map[string]any {
	return map[string]any{
		"input_tokens":  u.InputTokens,
		"output_tokens": u.OutputTokens,
		"total_tokens":  u.InputTokens + u.OutputTokens,
		"model":         u.Model,
	}
}

// Response is a structured-output result.
type Response struct {
	// Object is the schema-shaped response payload.
	Object map[string]any

	Usage Usage
}

// StructuredClient issues structured-output calls. A response that does
// not contain the schema-shaped payload is a hard error, never a
// best-effort parse.
type StructuredClient interface {
	Structured(ctx context.Context, req *Request) (*Response, error)
}
