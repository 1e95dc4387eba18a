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
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/pflow/pkg/ir"
	"github.com/teradata-labs/pflow/pkg/llm"
	"github.com/teradata-labs/pflow/pkg/registry"
	"github.com/teradata-labs/pflow/pkg/workflows"
)

// scriptedClient replays structured responses keyed by schema name.
// When a schema has several queued responses they are consumed in
// order; the last one is sticky.
type scriptedClient struct {
	responses map[string][]map[string]any
	err       error
	calls     []llm.Request
}

func (c *scriptedClient) Structured(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	c.calls = append(c.calls, *req)
	if c.err != nil {
		return nil, c.err
	}
	queue := c.responses[req.SchemaName]
	if len(queue) == 0 {
		return nil, fmt.Errorf("no scripted response for schema %q", req.SchemaName)
	}
	obj := queue[0]
	if len(queue) > 1 {
		c.responses[req.SchemaName] = queue[1:]
	}
	return &llm.Response{
		Object: obj,
		Usage:  llm.Usage{InputTokens: 10, OutputTokens: 5, Model: "test-model"},
	}, nil
}

func (c *scriptedClient) callsFor(schema string) []llm.Request {
	var out []llm.Request
	for _, call := range c.calls {
		if call.SchemaName == schema {
			out = append(out, call)
		}
	}
	return out
}

func newTestPlanner(t *testing.T, client llm.StructuredClient) (*Planner, *workflows.Library) {
	t.Helper()
	reg := registry.New(registry.Config{Path: filepath.Join(t.TempDir(), "registry.json")})
	lib := workflows.NewLibrary(t.TempDir(), nil)
	p, err := New(Config{
		Client:   client,
		Registry: reg,
		Library:  lib,
		Model:    "test-model",
	})
	require.NoError(t, err)
	return p, lib
}

func savedWorkflow(t *testing.T, lib *workflows.Library) {
	t.Helper()
	doc, err := ir.Parse([]byte(`
ir_version: "0.1.0"
inputs:
  input_file:
    type: string
    required: true
nodes:
  - id: convert
    type: echo
    params:
      value: "${input_file}"
`))
	require.NoError(t, err)
	_, err = lib.Save(workflows.Metadata{
		Name:        "csv-to-json",
		Description: "Convert CSV files to JSON",
	}, doc, "")
	require.NoError(t, err)
}

func validGenerated() map[string]any {
	return map[string]any{
		"ir_version": "0.1.0",
		"inputs": map[string]any{
			"source_file": map[string]any{"type": "string", "required": true},
		},
		"nodes": []any{
			map[string]any{
				"id":     "convert",
				"type":   "echo",
				"params": map[string]any{"value": "${source_file}"},
			},
		},
	}
}

func pathBResponses(generated ...map[string]any) map[string][]map[string]any {
	if len(generated) == 0 {
		generated = []map[string]any{validGenerated()}
	}
	return map[string][]map[string]any{
		"discovery_result": {
			{"found": false, "workflow_name": "", "confidence": 0.1, "reasoning": "nothing fits"},
		},
		"component_selection": {
			{"node_types": []any{"echo"}, "workflow_names": []any{}},
		},
		"parameter_hints": {
			{"params": map[string]any{
				"path": map[string]any{"value": "HINT_MARKER", "confidence": 0.8, "source": "request"},
			}},
		},
		"workflow_document": generated,
		"workflow_metadata": {
			{"suggested_name": "Convert Source File", "description": "converts a file",
				"search_keywords": []any{"convert"}},
		},
		"extracted_params": {
			{"params": map[string]any{"source_file": "report.csv"}},
		},
	}
}

func TestPlanReusesSavedWorkflow(t *testing.T) {
	client := &scriptedClient{responses: map[string][]map[string]any{
		"discovery_result": {
			{"found": true, "workflow_name": "csv-to-json", "confidence": 0.9, "reasoning": "exact match"},
		},
		"extracted_params": {
			{"params": map[string]any{"input_file": "data.csv"}},
		},
	}}
	p, lib := newTestPlanner(t, client)
	savedWorkflow(t, lib)

	res, shared, err := p.Plan(context.Background(), "convert data.csv to json", nil)
	require.NoError(t, err)

	assert.Equal(t, ActionParamsComplete, res.Action)
	assert.False(t, res.GeneratedNew)
	require.NotNil(t, res.Doc)
	assert.Equal(t, "convert", res.Doc.Nodes[0].ID)
	assert.Equal(t, map[string]any{"input_file": "data.csv"}, res.Params)
	assert.Empty(t, res.Missing)

	// Discovery and mapping each cost one call.
	assert.Equal(t, 2, shared.UsageLog().Len())
}

func TestPlanGeneratesWorkflow(t *testing.T) {
	client := &scriptedClient{responses: pathBResponses()}
	p, _ := newTestPlanner(t, client)

	res, shared, err := p.Plan(context.Background(), "convert the report to json", nil)
	require.NoError(t, err)

	assert.Equal(t, ActionParamsCompleteRevalid, res.Action)
	assert.True(t, res.GeneratedNew)
	require.NotNil(t, res.Doc)
	assert.Equal(t, "convert-source-file", res.Metadata.Name)
	assert.Equal(t, map[string]any{"source_file": "report.csv"}, res.Params)
	assert.NotContains(t, shared, KeyValidationErrors)
	assert.Equal(t, 1, shared[KeyGenerationAttempts])

	// The generator may see parameter hints; mapping never does.
	generatorCalls := client.callsFor("workflow_document")
	require.Len(t, generatorCalls, 1)
	assert.Contains(t, generatorCalls[0].Prompt, "HINT_MARKER")
	mappingCalls := client.callsFor("extracted_params")
	require.Len(t, mappingCalls, 1)
	assert.NotContains(t, mappingCalls[0].Prompt, "HINT_MARKER")
}

func TestPlanRetriesGenerationWithErrors(t *testing.T) {
	invalid := map[string]any{"nodes": []any{}}
	client := &scriptedClient{responses: pathBResponses(invalid, validGenerated())}
	p, _ := newTestPlanner(t, client)

	res, shared, err := p.Plan(context.Background(), "convert the report", nil)
	require.NoError(t, err)

	assert.Equal(t, ActionParamsCompleteRevalid, res.Action)
	assert.NotContains(t, shared, KeyValidationErrors)
	assert.Equal(t, 2, shared[KeyGenerationAttempts])

	generatorCalls := client.callsFor("workflow_document")
	require.Len(t, generatorCalls, 2)
	assert.NotContains(t, generatorCalls[0].Prompt, "Fix these errors")
	assert.Contains(t, generatorCalls[1].Prompt, "Fix these errors")
}

func TestPlanFailsAfterThreeAttempts(t *testing.T) {
	invalid := map[string]any{"nodes": []any{}}
	client := &scriptedClient{responses: pathBResponses(invalid)}
	p, _ := newTestPlanner(t, client)

	res, shared, err := p.Plan(context.Background(), "do the impossible", nil)
	require.NoError(t, err)

	assert.Equal(t, ActionFailed, res.Action)
	assert.Nil(t, res.Doc)
	assert.NotEmpty(t, res.Errors)
	assert.Equal(t, 3, shared[KeyGenerationAttempts])
	assert.Len(t, client.callsFor("workflow_document"), 3)
	// Metadata and mapping never run on the failed terminal.
	assert.Empty(t, client.callsFor("workflow_metadata"))
	assert.Empty(t, client.callsFor("extracted_params"))
}

func TestPlanPhantomWorkflowFallsThroughToGeneration(t *testing.T) {
	responses := pathBResponses()
	responses["discovery_result"] = []map[string]any{
		{"found": true, "workflow_name": "ghost", "confidence": 0.9, "reasoning": "sure"},
	}
	client := &scriptedClient{responses: responses}
	p, _ := newTestPlanner(t, client)

	res, _, err := p.Plan(context.Background(), "convert the report", nil)
	require.NoError(t, err)

	assert.True(t, res.GeneratedNew)
	assert.Equal(t, ActionParamsCompleteRevalid, res.Action)
}

func TestPlanSurvivesLLMOutage(t *testing.T) {
	client := &scriptedClient{err: fmt.Errorf("service unavailable")}
	p, _ := newTestPlanner(t, client)

	res, _, err := p.Plan(context.Background(), "convert the report", nil)
	require.NoError(t, err)

	// Every node degrades through its fallback; the empty generated
	// document fails validation until the attempt cap is hit.
	assert.Equal(t, ActionFailed, res.Action)
	assert.NotEmpty(t, res.Errors)
}

func TestPlanReportsMissingParams(t *testing.T) {
	client := &scriptedClient{responses: map[string][]map[string]any{
		"discovery_result": {
			{"found": true, "workflow_name": "csv-to-json", "confidence": 0.9, "reasoning": "match"},
		},
		"extracted_params": {
			{"params": map[string]any{}},
		},
	}}
	p, lib := newTestPlanner(t, client)
	savedWorkflow(t, lib)

	res, _, err := p.Plan(context.Background(), "convert something", nil)
	require.NoError(t, err)

	assert.Equal(t, ActionParamsIncomplete, res.Action)
	assert.Equal(t, []string{"input_file"}, res.Missing)
}

func TestPlanDropsUndeclaredExtractedParams(t *testing.T) {
	client := &scriptedClient{responses: map[string][]map[string]any{
		"discovery_result": {
			{"found": true, "workflow_name": "csv-to-json", "confidence": 0.9, "reasoning": "match"},
		},
		"extracted_params": {
			{"params": map[string]any{"input_file": "a.csv", "invented": "x"}},
		},
	}}
	p, lib := newTestPlanner(t, client)
	savedWorkflow(t, lib)

	res, _, err := p.Plan(context.Background(), "convert a.csv", nil)
	require.NoError(t, err)

	assert.Equal(t, ActionParamsComplete, res.Action)
	assert.Equal(t, map[string]any{"input_file": "a.csv"}, res.Params)
}

func TestPlanForwardsExplicitZeroTemperature(t *testing.T) {
	client := &scriptedClient{responses: map[string][]map[string]any{
		"discovery_result": {
			{"found": true, "workflow_name": "csv-to-json", "confidence": 0.9, "reasoning": "match"},
		},
		"extracted_params": {
			{"params": map[string]any{"input_file": "data.csv"}},
		},
	}}
	reg := registry.New(registry.Config{Path: filepath.Join(t.TempDir(), "registry.json")})
	lib := workflows.NewLibrary(t.TempDir(), nil)
	p, err := New(Config{
		Client:      client,
		Registry:    reg,
		Library:     lib,
		Model:       "test-model",
		Temperature: llm.Float(0),
	})
	require.NoError(t, err)
	savedWorkflow(t, lib)

	_, _, err = p.Plan(context.Background(), "convert data.csv", nil)
	require.NoError(t, err)

	require.NotEmpty(t, client.calls)
	for _, call := range client.calls {
		require.NotNil(t, call.Temperature, "call %s", call.SchemaName)
		assert.Equal(t, 0.0, *call.Temperature)
	}
}

func TestPlanLeavesTemperatureUnset(t *testing.T) {
	client := &scriptedClient{responses: map[string][]map[string]any{
		"discovery_result": {
			{"found": true, "workflow_name": "csv-to-json", "confidence": 0.9, "reasoning": "match"},
		},
		"extracted_params": {
			{"params": map[string]any{"input_file": "data.csv"}},
		},
	}}
	p, lib := newTestPlanner(t, client)
	savedWorkflow(t, lib)

	_, _, err := p.Plan(context.Background(), "convert data.csv", nil)
	require.NoError(t, err)

	require.NotEmpty(t, client.calls)
	for _, call := range client.calls {
		assert.Nil(t, call.Temperature, "call %s", call.SchemaName)
	}
}

func TestPlanRequiresUserInput(t *testing.T) {
	p, _ := newTestPlanner(t, &scriptedClient{})
	_, _, err := p.Plan(context.Background(), "", nil)
	require.Error(t, err)
}

func TestFallbackName(t *testing.T) {
	assert.Equal(t, "convert-csv-files-to-json-and", fallbackName("Convert CSV files to JSON and upload them"))
	assert.Equal(t, "generated-workflow", fallbackName("???"))
}
