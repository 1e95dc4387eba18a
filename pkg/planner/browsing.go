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

	"go.uber.org/zap"

	"github.com/teradata-labs/pflow/pkg/llm"
	"github.com/teradata-labs/pflow/pkg/node"
)

// browsingNode selects the node types and reference workflows relevant
// to the request. The prompt biases toward over-inclusion: the
// generator only ever sees this selection, so a missed component here
// cannot be recovered downstream.
type browsingNode struct {
	p *Planner
}

type browsingPrep struct {
	req   *llm.Request
	usage *node.UsageLog
}

func (n *browsingNode) Prep(ctx context.Context, shared node.Shared, params map[string]any) (any, error) {
	input, err := userInput(shared)
	if err != nil {
		return nil, err
	}
	catalogue, err := n.p.cfg.Registry.Load()
	if err != nil {
		return nil, err
	}
	saved, err := n.p.cfg.Library.List()
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(`Select every node type and saved workflow that could plausibly help with this request. Over-include: it is cheap to ignore an unused component later, but a missing one cannot be recovered.

User request:
%s

Node types:
%s
Saved workflows:
%s`, input, renderCatalogue(catalogue), renderWorkflowList(saved))

	return &browsingPrep{
		req: &llm.Request{
			Prompt:     prompt,
			Schema:     browsingSchema,
			SchemaName: "component_selection",
		},
		usage: shared.UsageLog(),
	}, nil
}

func (n *browsingNode) Exec(ctx context.Context, prep any) (any, error) {
	bp := prep.(*browsingPrep)
	return n.p.call(ctx, bp.usage, "browsing", bp.req)
}

func (n *browsingNode) ExecFallback(ctx context.Context, prep any, execErr error) (any, error) {
	return map[string]any{
		"node_types":     []any{},
		"workflow_names": []any{},
		"reasoning":      fmt.Sprintf("browsing unavailable: %v", execErr),
	}, nil
}

func (n *browsingNode) Post(ctx context.Context, shared node.Shared, prep, exec any) (any, node.Action, error) {
	result, ok := exec.(map[string]any)
	if !ok {
		return nil, "", fmt.Errorf("browsing result is not a mapping")
	}
	shared[KeyBrowsedComponents] = result

	// The planning context is rebuilt from the selection only; the full
	// catalogue never reaches the generator.
	types := result["node_types"]
	if types == nil {
		types = []any{}
	}
	typeList, ok := types.([]any)
	if !ok {
		typeList = []any{}
	}
	entries, err := n.p.cfg.Registry.Metadata(typeList)
	if err != nil {
		return nil, "", err
	}

	pc := &planningContext{Entries: entries}
	for _, name := range stringSlice(result["workflow_names"]) {
		wf, err := n.p.cfg.Library.Load(name)
		if err != nil {
			n.p.logger.Warn("browsing selected a workflow that does not load",
				zap.String("workflow", name), zap.Error(err))
			continue
		}
		pc.Workflows = append(pc.Workflows, wf)
	}
	shared[KeyPlanningContext] = pc

	n.p.logger.Debug("planning context built",
		zap.Int("node_types", len(pc.Entries)),
		zap.Int("reference_workflows", len(pc.Workflows)))
	return result, node.ActionDefault, nil
}

// paramDiscoveryNode extracts candidate parameter hints from the user
// text and stdin. Hints carry their own confidence and source and never
// bind to the generated workflow's input names.
type paramDiscoveryNode struct {
	p *Planner
}

type paramDiscoveryPrep struct {
	req   *llm.Request
	usage *node.UsageLog
}

func (n *paramDiscoveryNode) Prep(ctx context.Context, shared node.Shared, params map[string]any) (any, error) {
	input, err := userInput(shared)
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(`Extract candidate parameter values from the user request: file names, URLs, formats, counts, identifiers. For each, report the value, a confidence between 0 and 1, and where in the text it came from.

User request:
%s`, input)
	if preview := stdinPreview(shared); preview != "" {
		prompt += fmt.Sprintf("\n\nPiped input (preview):\n%s", preview)
	}

	return &paramDiscoveryPrep{
		req: &llm.Request{
			Prompt:     prompt,
			Schema:     paramHintSchema,
			SchemaName: "parameter_hints",
		},
		usage: shared.UsageLog(),
	}, nil
}

func (n *paramDiscoveryNode) Exec(ctx context.Context, prep any) (any, error) {
	pp := prep.(*paramDiscoveryPrep)
	return n.p.call(ctx, pp.usage, "param-discovery", pp.req)
}

func (n *paramDiscoveryNode) ExecFallback(ctx context.Context, prep any, execErr error) (any, error) {
	return map[string]any{"params": map[string]any{}}, nil
}

func (n *paramDiscoveryNode) Post(ctx context.Context, shared node.Shared, prep, exec any) (any, node.Action, error) {
	result, ok := exec.(map[string]any)
	if !ok {
		return nil, "", fmt.Errorf("parameter hints are not a mapping")
	}
	hints, ok := result["params"].(map[string]any)
	if !ok {
		hints = map[string]any{}
	}
	shared[KeyDiscoveredParams] = hints
	return map[string]any{"params": hints}, node.ActionDefault, nil
}
