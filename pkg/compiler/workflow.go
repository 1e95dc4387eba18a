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
package compiler

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/teradata-labs/pflow/pkg/ir"
	"github.com/teradata-labs/pflow/pkg/node"
	"github.com/teradata-labs/pflow/pkg/observability"
	"github.com/teradata-labs/pflow/pkg/template"
)

// keyLastNode records which node ran last, for output fallback search.
const keyLastNode = "_last_node"

// outputFallbackKeys is the search order when no outputs block is
// declared.
var outputFallbackKeys = []string{"response", "output", "result", "text"}

// RunOptions carries externally supplied inputs for one run.
type RunOptions struct {
	// Inputs are the workflow-level input values by name.
	Inputs map[string]any

	// Stdin is piped data, fed to any input declared with stdin: true
	// and exposed under shared["stdin"].
	Stdin []byte
}

// Workflow is a compiled, executable workflow.
type Workflow struct {
	doc    *ir.Document
	nodes  map[string]*compiledNode
	order  []string
	edges  map[string]map[node.Action]string
	logger *zap.Logger
	tracer observability.Tracer
}

// Doc returns the underlying IR document.
func (w *Workflow) Doc() *ir.Document { return w.doc }

// Run executes the workflow: the shared store is seeded from inputs and
// stdin, then the graph is walked from the first declared node, following
// the edge whose action matches each node's result. The run terminates
// when a node returns an action with no successor. The final shared
// store is returned; it is the system of record for the run.
func (w *Workflow) Run(ctx context.Context, opts RunOptions) (node.Shared, error) {
	ctx, span := w.tracer.StartSpan(ctx, observability.SpanWorkflowRun,
		observability.WithAttribute("nodes", len(w.order)))
	defer w.tracer.EndSpan(span)

	shared, err := w.seed(opts)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	current := w.order[0]
	for {
		cn := w.nodes[current]
		var action node.Action
		var err error
		if cn.batch != nil {
			action, err = cn.batch.Run(ctx, shared)
		} else {
			action, err = cn.runner.Run(ctx, shared)
		}
		if err != nil {
			span.RecordError(err)
			return shared, err
		}
		shared[keyLastNode] = current

		next, ok := w.edges[current][action]
		if !ok {
			if action != node.ActionDefault {
				w.logger.Debug("action has no successor, terminating",
					zap.String("node_id", current),
					zap.String("action", string(action)))
			}
			return shared, nil
		}
		current = next
	}
}

// seed builds the initial shared store from declared inputs, defaults,
// and stdin. Missing required inputs fail the run before any node
// executes.
func (w *Workflow) seed(opts RunOptions) (node.Shared, error) {
	shared := node.Shared{}
	var missing []string
	for name, spec := range w.doc.Inputs {
		if v, ok := opts.Inputs[name]; ok {
			shared[name] = v
			continue
		}
		if spec.Stdin && opts.Stdin != nil {
			shared[name] = string(opts.Stdin)
			continue
		}
		if spec.Default != nil {
			shared[name] = spec.Default
			continue
		}
		if spec.Required {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required inputs: %s", strings.Join(missing, ", "))
	}
	for name := range opts.Inputs {
		if _, declared := w.doc.Inputs[name]; !declared {
			w.logger.Warn("ignoring undeclared input", zap.String("input", name))
		}
	}
	if opts.Stdin != nil {
		shared["stdin"] = string(opts.Stdin)
	}
	return shared, nil
}

// ExtractOutputs resolves the workflow's declared outputs against the
// final shared store. outputKey, when non-empty, overrides everything:
// the value at that path is returned under the key itself. Without an
// outputs block the first of {response, output, result, text} found at
// the top level or in the last node's namespace is returned as "result".
// Unresolvable declared sources are omitted with a warning.
func (w *Workflow) ExtractOutputs(shared node.Shared, outputKey string) map[string]any {
	store := map[string]any(shared)

	if outputKey != "" {
		v, err := template.ResolveValue(outputKey, store)
		if err != nil {
			w.logger.Warn("output key not found in shared store",
				zap.String("key", outputKey), zap.Error(err))
			return map[string]any{}
		}
		return map[string]any{outputKey: v}
	}

	if len(w.doc.Outputs) > 0 {
		out := make(map[string]any, len(w.doc.Outputs))
		for name, spec := range w.doc.Outputs {
			v, err := resolveSource(spec.Source, store)
			if err != nil {
				w.logger.Warn("declared output did not resolve, omitting",
					zap.String("output", name),
					zap.String("source", spec.Source),
					zap.Error(err))
				continue
			}
			out[name] = v
		}
		return out
	}

	for _, key := range outputFallbackKeys {
		if v, ok := shared[key]; ok {
			return map[string]any{"result": v}
		}
	}
	if last, ok := shared[keyLastNode].(string); ok {
		if ns := shared.Namespace(last); ns != nil {
			for _, key := range outputFallbackKeys {
				if v, ok := ns[key]; ok {
					return map[string]any{"result": v}
				}
			}
		}
	}
	return map[string]any{}
}

// resolveSource resolves an output source, which is normally a single
// ${path} expression but may be any template string.
func resolveSource(source string, store map[string]any) (any, error) {
	resolved, err := template.ResolveNested(source, store)
	if err != nil {
		return nil, err
	}
	return resolved, nil
}
