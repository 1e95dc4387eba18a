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
	"sort"

	"go.uber.org/zap"

	"github.com/teradata-labs/pflow/pkg/ir"
	"github.com/teradata-labs/pflow/pkg/llm"
	"github.com/teradata-labs/pflow/pkg/node"
)

// mappingNode is the convergence point of both planner paths. It maps
// the target workflow's declared inputs from the user request and
// stdin only. It deliberately ignores discovered_params: those hints
// were named before the workflow existed, and the generator's input
// names may differ, so binding them here would silently mis-assign
// values.
type mappingNode struct {
	p *Planner
}

type mappingPrep struct {
	req   *llm.Request
	usage *node.UsageLog
	doc   *ir.Document

	// generated is true on Path B, which forces one more validation
	// pass after mapping.
	generated bool

	// stdinPresent means stdin-fed inputs count as filled.
	stdinPresent bool
}

func (n *mappingNode) Prep(ctx context.Context, shared node.Shared, params map[string]any) (any, error) {
	input, err := userInput(shared)
	if err != nil {
		return nil, err
	}

	doc, generated, err := targetWorkflow(shared)
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(`Fill in the workflow's input parameters from the user request. Only use values actually present in the request or the piped input; omit a parameter rather than guessing.

User request:
%s

Workflow inputs:
%s`, input, renderInputs(doc))
	preview := stdinPreview(shared)
	if preview != "" {
		prompt += fmt.Sprintf("\nPiped input (preview):\n%s", preview)
	}

	return &mappingPrep{
		req: &llm.Request{
			Prompt:     prompt,
			Schema:     mappingSchema,
			SchemaName: "extracted_params",
		},
		usage:        shared.UsageLog(),
		doc:          doc,
		generated:    generated,
		stdinPresent: preview != "",
	}, nil
}

func (n *mappingNode) Exec(ctx context.Context, prep any) (any, error) {
	mp := prep.(*mappingPrep)
	if len(mp.doc.Inputs) == 0 {
		return map[string]any{"params": map[string]any{}}, nil
	}
	return n.p.call(ctx, mp.usage, "mapping", mp.req)
}

func (n *mappingNode) ExecFallback(ctx context.Context, prep any, execErr error) (any, error) {
	n.p.logger.Warn("parameter mapping call failed, treating all inputs as unfilled", zap.Error(execErr))
	return map[string]any{"params": map[string]any{}}, nil
}

func (n *mappingNode) Post(ctx context.Context, shared node.Shared, prep, exec any) (any, node.Action, error) {
	mp := prep.(*mappingPrep)
	result, ok := exec.(map[string]any)
	if !ok {
		return nil, "", fmt.Errorf("mapping result is not a mapping")
	}
	extracted, ok := result["params"].(map[string]any)
	if !ok {
		extracted = map[string]any{}
	}

	// Keep only declared inputs; the model sometimes invents extras.
	params := make(map[string]any, len(extracted))
	for name, value := range extracted {
		if _, declared := mp.doc.Inputs[name]; declared {
			params[name] = value
		} else {
			n.p.logger.Debug("dropping extracted value for undeclared input",
				zap.String("input", name))
		}
	}
	shared[KeyExtractedParams] = params

	var missing []string
	for name, in := range mp.doc.Inputs {
		if !in.Required || in.Default != nil {
			continue
		}
		if in.Stdin && mp.stdinPresent {
			continue
		}
		if _, filled := params[name]; !filled {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)

	outputs := map[string]any{"params": params, "missing": missing}
	if len(missing) > 0 {
		shared[KeyMissingParams] = missing
		return outputs, ActionParamsIncomplete, nil
	}
	if mp.generated {
		return outputs, ActionParamsCompleteRevalid, nil
	}
	return outputs, ActionParamsComplete, nil
}

// targetWorkflow returns the workflow mapping operates on: the loaded
// one on Path A, the generated one on Path B.
func targetWorkflow(shared node.Shared) (*ir.Document, bool, error) {
	if doc, ok := shared[KeyFoundWorkflow].(*ir.Document); ok && doc != nil {
		return doc, false, nil
	}
	raw, ok := shared[KeyGeneratedWorkflow].(map[string]any)
	if !ok {
		return nil, false, fmt.Errorf("shared store has neither %s nor %s", KeyFoundWorkflow, KeyGeneratedWorkflow)
	}
	doc, err := ir.FromValue(raw)
	if err != nil {
		return nil, false, fmt.Errorf("generated workflow no longer parses: %w", err)
	}
	return doc, true, nil
}
