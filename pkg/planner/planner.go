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
// Package planner synthesises a runnable workflow from a natural-language
// request. It is itself a small fixed-topology flow of LLM-backed nodes:
// discovery either finds a saved workflow (Path A) or browsing, parameter
// discovery, generation, validation, and metadata build a new one
// (Path B). Both paths converge at parameter mapping, whose routing
// decision gates execution.
package planner

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/teradata-labs/pflow/pkg/ir"
	"github.com/teradata-labs/pflow/pkg/llm"
	"github.com/teradata-labs/pflow/pkg/node"
	"github.com/teradata-labs/pflow/pkg/observability"
	"github.com/teradata-labs/pflow/pkg/registry"
	"github.com/teradata-labs/pflow/pkg/workflows"
)

// Shared-store keys the planner reads and writes. The host supplies
// user_input and optionally stdin; everything else is planner state.
const (
	KeyUserInput          = "user_input"
	KeyStdin              = "stdin"
	KeyDiscoveryResult    = "discovery_result"
	KeyFoundWorkflow      = "found_workflow"
	KeyBrowsedComponents  = "browsed_components"
	KeyPlanningContext    = "planning_context"
	KeyDiscoveredParams   = "discovered_params"
	KeyGeneratedWorkflow  = "generated_workflow"
	KeyExtractedParams    = "extracted_params"
	KeyMissingParams      = "missing_params"
	KeyValidationErrors   = "validation_errors"
	KeyWorkflowMetadata   = "workflow_metadata"
	KeyGenerationAttempts = "generation_attempts"
)

// Actions the planner nodes route on.
const (
	ActionFoundExisting         node.Action = "found_existing"
	ActionNotFound              node.Action = "not_found"
	ActionRetry                 node.Action = "retry"
	ActionMetadataGeneration    node.Action = "metadata_generation"
	ActionFailed                node.Action = "failed"
	ActionParamsComplete        node.Action = "params_complete"
	ActionParamsCompleteRevalid node.Action = "params_complete_validate"
	ActionParamsIncomplete      node.Action = "params_incomplete"
)

// maxGenerationAttempts caps the generator/validator retry cycle.
const maxGenerationAttempts = 3

// maxReportedErrors is how many validation errors feed back to the
// generator on retry.
const maxReportedErrors = 3

// Config wires the planner's collaborators.
type Config struct {
	Client   llm.StructuredClient
	Registry *registry.Registry
	Library  *workflows.Library

	// Model is the default model for planner calls; MetadataModel,
	// when set, is a cheaper model for the non-essential metadata call.
	Model         string
	MetadataModel string

	// Temperature, when set, applies to every planner call, explicit
	// zero included. Nil leaves the provider default.
	Temperature *float64

	Logger *zap.Logger
	Tracer observability.Tracer
}

// Planner runs the planning flow.
type Planner struct {
	cfg    Config
	nodes  map[string]*node.Runner
	edges  map[string]map[node.Action]string
	logger *zap.Logger
	tracer observability.Tracer
}

// Result is the outcome of one planning request.
type Result struct {
	// Action is the final routing decision: params_complete,
	// params_complete_validate, params_incomplete, or failed.
	Action node.Action

	// Doc is the target workflow (loaded on Path A, generated on
	// Path B). Nil when planning failed.
	Doc *ir.Document

	// Params are the extracted workflow input values.
	Params map[string]any

	// Missing lists required inputs that could not be filled.
	Missing []string

	// Metadata is the library metadata for a generated workflow.
	Metadata workflows.Metadata

	// GeneratedNew distinguishes Path B from Path A.
	GeneratedNew bool

	// Errors carries the last validation errors when planning failed.
	Errors []string
}

// New builds the planner flow.
func New(cfg Config) (*Planner, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("planner: llm client is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("planner: registry is required")
	}
	if cfg.Library == nil {
		return nil, fmt.Errorf("planner: workflow library is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoOpTracer()
	}

	p := &Planner{
		cfg:    cfg,
		logger: cfg.Logger,
		tracer: cfg.Tracer,
	}

	runner := func(id string, impl node.Lifecycle) *node.Runner {
		return node.NewRunner(node.RunnerConfig{
			ID:     id,
			Impl:   impl,
			Logger: cfg.Logger,
			Tracer: cfg.Tracer,
		})
	}
	p.nodes = map[string]*node.Runner{
		"discovery":       runner("discovery", &discoveryNode{p: p}),
		"browsing":        runner("browsing", &browsingNode{p: p}),
		"param-discovery": runner("param-discovery", &paramDiscoveryNode{p: p}),
		"generator":       runner("generator", &generatorNode{p: p}),
		"validator":       runner("validator", &validatorNode{p: p}),
		"metadata":        runner("metadata", &metadataNode{p: p}),
		"mapping":         runner("mapping", &mappingNode{p: p}),
	}
	p.edges = map[string]map[node.Action]string{
		"discovery": {
			ActionFoundExisting: "mapping",
			ActionNotFound:      "browsing",
		},
		"browsing":        {node.ActionDefault: "param-discovery"},
		"param-discovery": {node.ActionDefault: "generator"},
		"generator":       {node.ActionDefault: "validator"},
		"validator": {
			ActionRetry:              "generator",
			ActionMetadataGeneration: "metadata",
		},
		"metadata": {node.ActionDefault: "mapping"},
	}
	return p, nil
}

// Plan runs the flow for one request. stdin may be nil. The returned
// shared store carries the full planner state for hosts that need more
// than the Result.
func (p *Planner) Plan(ctx context.Context, userInput string, stdin []byte) (*Result, node.Shared, error) {
	if userInput == "" {
		return nil, nil, fmt.Errorf("planner: user input is required")
	}
	ctx, span := p.tracer.StartSpan(ctx, observability.SpanPlannerStep,
		observability.WithAttribute("entry", "discovery"))
	defer p.tracer.EndSpan(span)

	shared := node.Shared{KeyUserInput: userInput}
	if stdin != nil {
		shared[KeyStdin] = string(stdin)
	}
	shared.UsageLog()

	current := "discovery"
	last := node.ActionDefault
	for {
		action, err := p.nodes[current].Run(ctx, shared)
		if err != nil {
			span.RecordError(err)
			return nil, shared, fmt.Errorf("planner %s: %w", current, err)
		}
		last = action
		next, ok := p.edges[current][action]
		if !ok {
			break
		}
		current = next
	}

	return p.result(shared, last), shared, nil
}

func (p *Planner) result(shared node.Shared, action node.Action) *Result {
	res := &Result{Action: action}
	if errs, ok := shared[KeyValidationErrors].([]string); ok {
		res.Errors = errs
	}
	if action == ActionFailed {
		return res
	}

	if doc, ok := shared[KeyFoundWorkflow].(*ir.Document); ok {
		res.Doc = doc
	} else if raw, ok := shared[KeyGeneratedWorkflow].(map[string]any); ok {
		if doc, err := ir.FromValue(raw); err == nil {
			res.Doc = doc
			res.GeneratedNew = true
		}
	}
	if params, ok := shared[KeyExtractedParams].(map[string]any); ok {
		res.Params = params
	}
	if missing, ok := shared[KeyMissingParams].([]string); ok {
		res.Missing = missing
	}
	if meta, ok := shared[KeyWorkflowMetadata].(workflows.Metadata); ok {
		res.Metadata = meta
	}
	return res
}

// typeExists resolves node types against the factory table and the
// registry catalogue, for generated-workflow validation.
func (p *Planner) typeExists(catalogue map[string]registry.Entry) func(string) bool {
	return func(t string) bool {
		if node.Registered(t) {
			return true
		}
		_, ok := catalogue[t]
		return ok
	}
}

// call issues one structured LLM call with the planner's model defaults
// and records the usage. Exec phases do not see the shared store, so the
// usage log travels in each node's prep payload.
func (p *Planner) call(ctx context.Context, usage *node.UsageLog, nodeID string, req *llm.Request) (map[string]any, error) {
	ctx, span := p.tracer.StartSpan(ctx, observability.SpanLLMStructured,
		observability.WithAttribute("planner_node", nodeID))
	defer p.tracer.EndSpan(span)

	if req.Model == "" {
		req.Model = p.cfg.Model
	}
	if req.Temperature == nil {
		req.Temperature = p.cfg.Temperature
	}
	resp, err := p.cfg.Client.Structured(ctx, req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if usage != nil {
		usage.Append(node.UsageEntry{
			NodeID:         nodeID,
			BatchItemIndex: -1,
			Usage:          resp.Usage.Map(),
		})
	}
	return resp.Object, nil
}
