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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/pflow/pkg/ir"
	"github.com/teradata-labs/pflow/pkg/node"
	"github.com/teradata-labs/pflow/pkg/registry"
)

func init() {
	node.Register("branching", func() node.Lifecycle { return &branchingNode{} })
	node.Register("flaky-once", func() node.Lifecycle { return &flakyNode{} })
}

// branchingNode routes on the "route" param.
type branchingNode struct{}

func (b *branchingNode) Prep(ctx context.Context, shared node.Shared, params map[string]any) (any, error) {
	return params["route"], nil
}

func (b *branchingNode) Exec(ctx context.Context, prep any) (any, error) { return prep, nil }

func (b *branchingNode) Post(ctx context.Context, shared node.Shared, prep, exec any) (any, node.Action, error) {
	route, _ := exec.(string)
	if route == "" {
		route = string(node.ActionDefault)
	}
	return map[string]any{"route": route}, node.Action(route), nil
}

// flakyNode fails on its first exec attempt.
type flakyNode struct {
	attempts int
}

func (f *flakyNode) Prep(ctx context.Context, shared node.Shared, params map[string]any) (any, error) {
	return nil, nil
}

func (f *flakyNode) Exec(ctx context.Context, prep any) (any, error) {
	f.attempts++
	if f.attempts == 1 {
		return nil, fmt.Errorf("transient")
	}
	return "recovered", nil
}

func (f *flakyNode) Post(ctx context.Context, shared node.Shared, prep, exec any) (any, node.Action, error) {
	return map[string]any{"response": exec}, node.ActionDefault, nil
}

func compile(t *testing.T, source string) *Workflow {
	t.Helper()
	doc, err := ir.Parse([]byte(source))
	require.NoError(t, err)
	wf, err := New(Config{}).Compile(doc)
	require.NoError(t, err)
	return wf
}

func TestLinearWorkflow(t *testing.T) {
	wf := compile(t, `
ir_version: "0.1.0"
inputs:
  name:
    type: string
    required: true
nodes:
  - id: greet
    type: template-render
    params:
      template: "hello ${name}"
  - id: relay
    type: echo
    params:
      value: "${greet.text}"
edges:
  - from: greet
    to: relay
outputs:
  greeting:
    source: "${relay.response}"
`)

	shared, err := wf.Run(context.Background(), RunOptions{Inputs: map[string]any{"name": "world"}})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"text": "hello world"}, shared.Namespace("greet"))
	assert.Equal(t, map[string]any{"response": "hello world"}, shared.Namespace("relay"))

	outputs := wf.ExtractOutputs(shared, "")
	assert.Equal(t, map[string]any{"greeting": "hello world"}, outputs)
}

func TestMissingRequiredInput(t *testing.T) {
	wf := compile(t, `
ir_version: "0.1.0"
inputs:
  name:
    type: string
    required: true
nodes:
  - id: greet
    type: echo
    params:
      value: "${name}"
`)
	_, err := wf.Run(context.Background(), RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name")
}

func TestInputDefaultAndStdin(t *testing.T) {
	wf := compile(t, `
ir_version: "0.1.0"
inputs:
  mode:
    type: string
    required: false
    default: fast
  data:
    type: string
    required: true
    stdin: true
nodes:
  - id: relay
    type: echo
    params:
      value: "${data}"
`)
	shared, err := wf.Run(context.Background(), RunOptions{Stdin: []byte("piped")})
	require.NoError(t, err)
	assert.Equal(t, "fast", shared["mode"])
	assert.Equal(t, "piped", shared["data"])
	assert.Equal(t, "piped", shared["stdin"])
}

func TestActionBranching(t *testing.T) {
	wf := compile(t, `
ir_version: "0.1.0"
nodes:
  - id: decide
    type: branching
    params:
      route: left
  - id: left-node
    type: echo
    params:
      value: went-left
  - id: right-node
    type: echo
    params:
      value: went-right
edges:
  - from: decide
    to: left-node
    action: left
  - from: decide
    to: right-node
    action: right
`)
	shared, err := wf.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"response": "went-left"}, shared.Namespace("left-node"))
	assert.Nil(t, shared.Namespace("right-node"))
}

func TestUnwiredActionTerminates(t *testing.T) {
	wf := compile(t, `
ir_version: "0.1.0"
nodes:
  - id: decide
    type: branching
    params:
      route: error
  - id: never
    type: echo
    params:
      value: unreachable
edges:
  - from: decide
    to: never
    action: other
`)
	shared, err := wf.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Nil(t, shared.Namespace("never"))
}

func TestUnknownNodeTypeFailsCompile(t *testing.T) {
	doc, err := ir.Parse([]byte(`
ir_version: "0.1.0"
nodes:
  - id: mystery
    type: no-such-type
`))
	require.NoError(t, err)
	_, err = New(Config{}).Compile(doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no-such-type")
}

func TestUndeclaredOutputKeyFailsCompile(t *testing.T) {
	reg := registry.New(registry.Config{Path: filepath.Join(t.TempDir(), "registry.json")})
	require.NoError(t, reg.Save(map[string]registry.Entry{
		"template-render": {Kind: registry.KindCore, Interface: registry.Interface{
			Outputs: []registry.Port{{Key: "text", Type: "string"}},
		}},
		"echo": {Kind: registry.KindCore, Interface: registry.Interface{
			Outputs: []registry.Port{{Key: "response", Type: "any"}},
		}},
	}))

	source := `
ir_version: "0.1.0"
nodes:
  - id: greet
    type: template-render
    params:
      template: "hello"
  - id: relay
    type: echo
    params:
      value: "${greet.%s}"
edges:
  - from: greet
    to: relay
`
	c := New(Config{Registry: reg})

	doc, err := ir.Parse([]byte(fmt.Sprintf(source, "no_such_key")))
	require.NoError(t, err)
	_, err = c.Compile(doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no_such_key")

	doc, err = ir.Parse([]byte(fmt.Sprintf(source, "text")))
	require.NoError(t, err)
	_, err = c.Compile(doc)
	require.NoError(t, err)
}

func TestDuplicateEdgeActionFailsCompile(t *testing.T) {
	doc, err := ir.Parse([]byte(`
ir_version: "0.1.0"
nodes:
  - id: a
    type: echo
  - id: b
    type: echo
edges:
  - from: a
    to: b
  - from: a
    to: b
    action: default
`))
	require.NoError(t, err)
	_, err = New(Config{}).Compile(doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already routes")
}

func TestNodeRetryParams(t *testing.T) {
	wf := compile(t, `
ir_version: "0.1.0"
nodes:
  - id: shaky
    type: flaky-once
    params:
      max_retries: 2
`)
	shared, err := wf.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"response": "recovered"}, shared.Namespace("shaky"))
}

func TestBatchNodeInWorkflow(t *testing.T) {
	wf := compile(t, `
ir_version: "0.1.0"
inputs:
  files:
    type: array
    required: true
nodes:
  - id: fan
    type: echo
    params:
      value: "${entry}"
    batch:
      items: "${files}"
      as: entry
`)
	shared, err := wf.Run(context.Background(), RunOptions{
		Inputs: map[string]any{"files": []any{"a.txt", "b.txt"}},
	})
	require.NoError(t, err)

	ns := shared.Namespace("fan")
	assert.Equal(t, 2, ns["count"])
	assert.Equal(t, []any{
		map[string]any{"response": "a.txt"},
		map[string]any{"response": "b.txt"},
	}, ns["results"])
}

func TestExtractOutputsFallback(t *testing.T) {
	wf := compile(t, `
ir_version: "0.1.0"
nodes:
  - id: only
    type: echo
    params:
      value: done
`)
	shared, err := wf.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	outputs := wf.ExtractOutputs(shared, "")
	assert.Equal(t, map[string]any{"result": "done"}, outputs)
}

func TestExtractOutputsOverrideKey(t *testing.T) {
	wf := compile(t, `
ir_version: "0.1.0"
nodes:
  - id: only
    type: echo
    params:
      value: done
`)
	shared, err := wf.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	outputs := wf.ExtractOutputs(shared, "only.response")
	assert.Equal(t, map[string]any{"only.response": "done"}, outputs)

	assert.Empty(t, wf.ExtractOutputs(shared, "missing.key"))
}
