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
// Package compiler turns a validated IR document into an executable
// workflow: node types are resolved against the factory table and the
// registry, each occurrence is wrapped in a Runner (and a batch node
// when declared), and edges are linked by action.
package compiler

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/pflow/pkg/batch"
	"github.com/teradata-labs/pflow/pkg/ir"
	"github.com/teradata-labs/pflow/pkg/node"
	"github.com/teradata-labs/pflow/pkg/observability"
	"github.com/teradata-labs/pflow/pkg/registry"
)

// Config holds compiler configuration.
type Config struct {
	// Registry is the persisted node catalogue. Optional; without it
	// only factory-registered types resolve.
	Registry *registry.Registry

	Logger *zap.Logger
	Tracer observability.Tracer
}

// Compiler builds executable workflows from IR documents.
type Compiler struct {
	registry *registry.Registry
	logger   *zap.Logger
	tracer   observability.Tracer
}

// New creates a compiler.
func New(cfg Config) *Compiler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoOpTracer()
	}
	return &Compiler{
		registry: cfg.Registry,
		logger:   cfg.Logger,
		tracer:   cfg.Tracer,
	}
}

// compiledNode pairs a node's Runner with its optional batch wrapper.
type compiledNode struct {
	runner *node.Runner
	batch  *batch.Node
}

// Compile validates the document semantically, resolves every node type,
// instantiates and wraps each node, and links edges by action.
func (c *Compiler) Compile(doc *ir.Document) (*Workflow, error) {
	if doc == nil || len(doc.Nodes) == 0 {
		return nil, fmt.Errorf("workflow has no nodes")
	}

	catalogue := map[string]registry.Entry{}
	if c.registry != nil {
		loaded, err := c.registry.Load()
		if err != nil {
			return nil, fmt.Errorf("load registry: %w", err)
		}
		catalogue = loaded
	}

	typeExists := func(t string) bool {
		if node.Registered(t) {
			return true
		}
		_, ok := catalogue[t]
		return ok
	}
	outputs := registry.OutputStructures(catalogue)
	outputKeys := func(t string) map[string]any { return outputs[t] }
	if errs := ir.Validate(doc, typeExists, outputKeys); len(errs) > 0 {
		return nil, fmt.Errorf("invalid workflow: %s", errs[0])
	}

	nodes := make(map[string]*compiledNode, len(doc.Nodes))
	order := make([]string, 0, len(doc.Nodes))
	for i := range doc.Nodes {
		spec := &doc.Nodes[i]
		impl, err := c.resolveImpl(spec, catalogue)
		if err != nil {
			return nil, fmt.Errorf("nodes[%d] (%s): %w", i, spec.ID, err)
		}

		cn := &compiledNode{}
		if spec.Batch != nil {
			// The batch engine owns per-item retry; the inner runner
			// keeps a single attempt.
			inner := node.NewRunner(node.RunnerConfig{
				ID:     spec.ID,
				Impl:   impl,
				Params: spec.Params,
				Logger: c.logger,
				Tracer: c.tracer,
			})
			cn.batch = batch.NewNode(batch.NodeConfig{
				ID:     spec.ID,
				Inner:  inner,
				Spec:   spec.Batch,
				Logger: c.logger,
				Tracer: c.tracer,
			})
		} else {
			maxRetries, wait := retryPolicy(spec.Params)
			cn.runner = node.NewRunner(node.RunnerConfig{
				ID:         spec.ID,
				Impl:       impl,
				Params:     spec.Params,
				MaxRetries: maxRetries,
				Wait:       wait,
				Logger:     c.logger,
				Tracer:     c.tracer,
			})
		}
		nodes[spec.ID] = cn
		order = append(order, spec.ID)
	}

	edges := make(map[string]map[node.Action]string)
	for i, e := range doc.Edges {
		action := node.Action(e.Action)
		if action == "" {
			action = node.ActionDefault
		}
		if edges[e.From] == nil {
			edges[e.From] = make(map[node.Action]string)
		}
		if prev, dup := edges[e.From][action]; dup {
			return nil, fmt.Errorf("edges[%d]: node %q already routes action %q to %q", i, e.From, action, prev)
		}
		edges[e.From][action] = e.To
	}

	return &Workflow{
		doc:    doc,
		nodes:  nodes,
		order:  order,
		edges:  edges,
		logger: c.logger,
		tracer: c.tracer,
	}, nil
}

// resolveImpl finds an implementation for a node spec. Factory-registered
// types win; catalogued types without an implementation are a compile
// error naming the gap.
func (c *Compiler) resolveImpl(spec *ir.NodeSpec, catalogue map[string]registry.Entry) (node.Lifecycle, error) {
	if node.Registered(spec.Type) {
		return node.New(spec.Type)
	}
	if entry, ok := catalogue[spec.Type]; ok {
		if entry.Kind == registry.KindVirtual {
			return nil, fmt.Errorf("node type %q is virtual and not directly runnable", spec.Type)
		}
		return nil, fmt.Errorf("node type %q is catalogued (%s) but no implementation is registered", spec.Type, entry.Kind)
	}
	return nil, fmt.Errorf("unknown node type %q", spec.Type)
}

// retryPolicy reads the node-level max_retries and wait params. Values
// are loosely typed in authored workflows; anything unparseable falls
// back to a single attempt with no wait.
func retryPolicy(params map[string]any) (int, time.Duration) {
	maxRetries := 1
	if v, ok := params["max_retries"]; ok {
		if n, ok := asInt(v); ok && n >= 1 {
			maxRetries = n
		}
	}
	var wait time.Duration
	if v, ok := params["wait"]; ok {
		if f, ok := asFloat(v); ok && f > 0 {
			wait = time.Duration(f * float64(time.Second))
		}
	}
	return maxRetries, wait
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
