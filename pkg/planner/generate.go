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
	"strings"

	"go.uber.org/zap"

	"github.com/teradata-labs/pflow/pkg/ir"
	"github.com/teradata-labs/pflow/pkg/llm"
	"github.com/teradata-labs/pflow/pkg/node"
	"github.com/teradata-labs/pflow/pkg/registry"
	"github.com/teradata-labs/pflow/pkg/workflows"
)

// generatorNode asks the model for a complete IR document. On retry the
// validator's errors are prepended to the prompt so the model can fix
// the previous attempt instead of starting over.
type generatorNode struct {
	p *Planner
}

type generatorPrep struct {
	req   *llm.Request
	usage *node.UsageLog
}

func (n *generatorNode) Prep(ctx context.Context, shared node.Shared, params map[string]any) (any, error) {
	input, err := userInput(shared)
	if err != nil {
		return nil, err
	}

	contextText := "Available node types:\n  (none selected)\n"
	if pc, ok := shared[KeyPlanningContext].(*planningContext); ok {
		contextText = pc.render()
	}

	var b strings.Builder
	if errs, ok := shared[KeyValidationErrors].([]string); ok && len(errs) > 0 {
		b.WriteString("The previous attempt failed validation. Fix these errors:\n")
		for i, e := range errs {
			if i >= maxReportedErrors {
				break
			}
			fmt.Fprintf(&b, "- %s\n", e)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, `Generate a workflow that accomplishes this request.

User request:
%s

%s
Rules:
- ir_version must be %q.
- Use only the node types listed above.
- Declare an inputs entry for every ${...} variable used in node params; never hardcode values the user would want to change between runs.
- Edges must form a single linear chain.
- Declare outputs sourcing the final result.`, input, contextText, ir.Version)

	if hints, ok := shared[KeyDiscoveredParams].(map[string]any); ok && len(hints) > 0 {
		b.WriteString("\n\nParameter hints from the request (name the inputs after the workflow's needs, not after these):\n")
		for name, hint := range hints {
			fmt.Fprintf(&b, "- %s: %v\n", name, hint)
		}
	}

	return &generatorPrep{
		req: &llm.Request{
			Prompt:     b.String(),
			Schema:     generatorSchema,
			SchemaName: "workflow_document",
		},
		usage: shared.UsageLog(),
	}, nil
}

func (n *generatorNode) Exec(ctx context.Context, prep any) (any, error) {
	gp := prep.(*generatorPrep)
	return n.p.call(ctx, gp.usage, "generator", gp.req)
}

// ExecFallback returns an empty document so the validator, not the flow
// machinery, decides between retry and terminal failure.
func (n *generatorNode) ExecFallback(ctx context.Context, prep any, execErr error) (any, error) {
	n.p.logger.Warn("workflow generation call failed", zap.Error(execErr))
	return map[string]any{}, nil
}

func (n *generatorNode) Post(ctx context.Context, shared node.Shared, prep, exec any) (any, node.Action, error) {
	doc, ok := exec.(map[string]any)
	if !ok {
		return nil, "", fmt.Errorf("generated workflow is not a mapping")
	}
	shared[KeyGeneratedWorkflow] = doc
	return map[string]any{"workflow": doc}, node.ActionDefault, nil
}

// validatorNode checks the generated document: schema shape, semantic
// rules, and node-type existence. It needs no LLM.
type validatorNode struct {
	p *Planner
}

type validatorPrep struct {
	raw       map[string]any
	catalogue map[string]registry.Entry
}

type validationResult struct {
	errs []string
}

func (n *validatorNode) Prep(ctx context.Context, shared node.Shared, params map[string]any) (any, error) {
	raw, ok := shared[KeyGeneratedWorkflow].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("shared store has no %s", KeyGeneratedWorkflow)
	}
	catalogue, err := n.p.cfg.Registry.Load()
	if err != nil {
		return nil, err
	}
	return &validatorPrep{raw: raw, catalogue: catalogue}, nil
}

func (n *validatorNode) Exec(ctx context.Context, prep any) (any, error) {
	vp := prep.(*validatorPrep)

	doc, err := ir.FromValue(vp.raw)
	if err != nil {
		return &validationResult{errs: []string{err.Error()}}, nil
	}
	outputs := registry.OutputStructures(vp.catalogue)
	errs := ir.Validate(doc, n.p.typeExists(vp.catalogue), func(t string) map[string]any { return outputs[t] })
	if len(errs) > maxReportedErrors {
		errs = errs[:maxReportedErrors]
	}
	return &validationResult{errs: errs}, nil
}

func (n *validatorNode) Post(ctx context.Context, shared node.Shared, prep, exec any) (any, node.Action, error) {
	result := exec.(*validationResult)

	attempts := 0
	if prev, ok := shared[KeyGenerationAttempts].(int); ok {
		attempts = prev
	}
	attempts++
	shared[KeyGenerationAttempts] = attempts

	outputs := map[string]any{
		"valid":    len(result.errs) == 0,
		"errors":   result.errs,
		"attempts": attempts,
	}

	if len(result.errs) == 0 {
		delete(shared, KeyValidationErrors)
		shared[KeyWorkflowMetadata] = map[string]any{}
		return outputs, ActionMetadataGeneration, nil
	}

	shared[KeyValidationErrors] = result.errs
	if attempts < maxGenerationAttempts {
		n.p.logger.Warn("generated workflow failed validation, retrying",
			zap.Int("attempt", attempts),
			zap.Strings("errors", result.errs))
		return outputs, ActionRetry, nil
	}
	n.p.logger.Error("workflow generation exhausted its attempts",
		zap.Int("attempts", attempts),
		zap.Strings("errors", result.errs))
	return outputs, ActionFailed, nil
}

// metadataNode names the generated workflow for the library. Metadata
// is non-essential, so a failed call degrades to a deterministic name
// and empty lists instead of failing the plan.
type metadataNode struct {
	p *Planner
}

type metadataPrep struct {
	req       *llm.Request
	usage     *node.UsageLog
	userInput string
}

func (n *metadataNode) Prep(ctx context.Context, shared node.Shared, params map[string]any) (any, error) {
	input, err := userInput(shared)
	if err != nil {
		return nil, err
	}

	workflowText := ""
	if raw, ok := shared[KeyGeneratedWorkflow].(map[string]any); ok {
		if doc, err := ir.FromValue(raw); err == nil {
			if body, err := doc.Marshal(); err == nil {
				workflowText = string(body)
			}
		}
	}

	model := n.p.cfg.MetadataModel
	if model == "" {
		model = n.p.cfg.Model
	}
	prompt := fmt.Sprintf(`Name this workflow for a searchable library. The name must be short, lowercase, hyphen-separated.

It was generated for the request:
%s

Workflow:
%s`, input, workflowText)

	return &metadataPrep{
		req: &llm.Request{
			Prompt:     prompt,
			Schema:     metadataSchema,
			SchemaName: "workflow_metadata",
			Model:      model,
		},
		usage:     shared.UsageLog(),
		userInput: input,
	}, nil
}

func (n *metadataNode) Exec(ctx context.Context, prep any) (any, error) {
	mp := prep.(*metadataPrep)
	return n.p.call(ctx, mp.usage, "metadata", mp.req)
}

func (n *metadataNode) ExecFallback(ctx context.Context, prep any, execErr error) (any, error) {
	mp := prep.(*metadataPrep)
	n.p.logger.Warn("metadata call failed, using deterministic fallback", zap.Error(execErr))
	return map[string]any{
		"suggested_name":    fallbackName(mp.userInput),
		"description":       "",
		"search_keywords":   []any{},
		"capabilities":      []any{},
		"typical_use_cases": []any{},
	}, nil
}

func (n *metadataNode) Post(ctx context.Context, shared node.Shared, prep, exec any) (any, node.Action, error) {
	result, ok := exec.(map[string]any)
	if !ok {
		return nil, "", fmt.Errorf("workflow metadata is not a mapping")
	}
	mp := prep.(*metadataPrep)

	name, _ := result["suggested_name"].(string)
	if workflows.Slug(name) == "" {
		name = fallbackName(mp.userInput)
	}
	meta := workflows.Metadata{
		Name:            workflows.Slug(name),
		SearchKeywords:  stringSlice(result["search_keywords"]),
		Capabilities:    stringSlice(result["capabilities"]),
		TypicalUseCases: stringSlice(result["typical_use_cases"]),
	}
	meta.Description, _ = result["description"].(string)

	shared[KeyWorkflowMetadata] = meta
	return result, node.ActionDefault, nil
}

// fallbackName derives a workflow name from the first words of the
// request when the model cannot supply one.
func fallbackName(input string) string {
	words := strings.Fields(input)
	if len(words) > 6 {
		words = words[:6]
	}
	if slug := workflows.Slug(strings.Join(words, " ")); slug != "" {
		return slug
	}
	return "generated-workflow"
}
