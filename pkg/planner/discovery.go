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

// discoveryNode decides whether a saved workflow already covers the
// request. It routes found_existing only when the named workflow also
// loads from disk; an LLM that names a phantom workflow falls through
// to generation with a warning.
type discoveryNode struct {
	p *Planner
}

type discoveryPrep struct {
	req   *llm.Request
	usage *node.UsageLog
}

func (n *discoveryNode) Prep(ctx context.Context, shared node.Shared, params map[string]any) (any, error) {
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

	prompt := fmt.Sprintf(`A user wants to accomplish a task. Decide whether one of the saved workflows below already does it.

User request:
%s

Saved workflows:
%s
Available node types (context only):
%s
Set found=true only when a saved workflow clearly matches the request. When unsure, prefer found=false.`,
		input, renderWorkflowList(saved), renderCatalogue(catalogue))

	return &discoveryPrep{
		req: &llm.Request{
			Prompt:     prompt,
			Schema:     discoverySchema,
			SchemaName: "discovery_result",
		},
		usage: shared.UsageLog(),
	}, nil
}

func (n *discoveryNode) Exec(ctx context.Context, prep any) (any, error) {
	dp := prep.(*discoveryPrep)
	return n.p.call(ctx, dp.usage, "discovery", dp.req)
}

// ExecFallback keeps the discovery payload shape so Post can always
// route; an unavailable LLM means "not found", never a crash.
func (n *discoveryNode) ExecFallback(ctx context.Context, prep any, execErr error) (any, error) {
	return map[string]any{
		"found":         false,
		"workflow_name": "",
		"confidence":    0.0,
		"reasoning":     fmt.Sprintf("discovery unavailable: %v", execErr),
	}, nil
}

func (n *discoveryNode) Post(ctx context.Context, shared node.Shared, prep, exec any) (any, node.Action, error) {
	result, ok := exec.(map[string]any)
	if !ok {
		return nil, "", fmt.Errorf("discovery result is not a mapping")
	}
	shared[KeyDiscoveryResult] = result

	found, _ := result["found"].(bool)
	name, _ := result["workflow_name"].(string)
	if found && name != "" {
		wf, err := n.p.cfg.Library.Load(name)
		if err == nil {
			shared[KeyFoundWorkflow] = wf.Doc
			n.p.logger.Info("reusing saved workflow",
				zap.String("workflow", name))
			return result, ActionFoundExisting, nil
		}
		n.p.logger.Warn("discovery named a workflow that does not load, generating instead",
			zap.String("workflow", name), zap.Error(err))
	}
	return result, ActionNotFound, nil
}
