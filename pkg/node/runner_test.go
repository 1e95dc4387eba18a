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
package node

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubNode counts calls and fails Exec a configurable number of times.
type stubNode struct {
	failures     int
	execCalls    int
	prepParams   map[string]any
	fallbackUsed bool
	fallbackErr  error
	action       Action
}

func (n *stubNode) Prep(ctx context.Context, shared Shared, params map[string]any) (any, error) {
	n.prepParams = params
	return params, nil
}

func (n *stubNode) Exec(ctx context.Context, prep any) (any, error) {
	n.execCalls++
	if n.execCalls <= n.failures {
		return nil, fmt.Errorf("transient failure %d", n.execCalls)
	}
	return "ok", nil
}

func (n *stubNode) Post(ctx context.Context, shared Shared, prep, exec any) (any, Action, error) {
	action := n.action
	if action == "" {
		action = ActionDefault
	}
	return map[string]any{"response": exec}, action, nil
}

type fallbackNode struct {
	stubNode
}

func (n *fallbackNode) ExecFallback(ctx context.Context, prep any, execErr error) (any, error) {
	n.fallbackUsed = true
	if n.fallbackErr != nil {
		return nil, n.fallbackErr
	}
	return "fallback", nil
}

func TestRunnerWritesNamespace(t *testing.T) {
	impl := &stubNode{}
	r := NewRunner(RunnerConfig{ID: "n1", Impl: impl})
	shared := Shared{}

	action, err := r.Run(context.Background(), shared)
	require.NoError(t, err)
	assert.Equal(t, ActionDefault, action)
	assert.Equal(t, map[string]any{"response": "ok"}, shared.Namespace("n1"))
}

func TestRunnerParamSnapshot(t *testing.T) {
	impl := &stubNode{}
	raw := map[string]any{
		"whole":    "${rd}",
		"embedded": "say ${rd.content}",
		"static":   42,
	}
	r := NewRunner(RunnerConfig{ID: "n1", Impl: impl, Params: raw})
	shared := Shared{"rd": map[string]any{"content": "hello"}}

	_, err := r.Run(context.Background(), shared)
	require.NoError(t, err)

	// Whole-value substitution preserves type.
	assert.Equal(t, map[string]any{"content": "hello"}, impl.prepParams["whole"])
	assert.Equal(t, "say hello", impl.prepParams["embedded"])
	assert.Equal(t, 42, impl.prepParams["static"])

	// The raw params are untouched.
	assert.Equal(t, "${rd}", raw["whole"])
}

func TestRunnerMissingTemplateVariable(t *testing.T) {
	r := NewRunner(RunnerConfig{
		ID:     "n1",
		Impl:   &stubNode{},
		Params: map[string]any{"p": "${nope.here}"},
	})
	_, err := r.Run(context.Background(), Shared{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope.here")
}

func TestRunnerRetriesExec(t *testing.T) {
	impl := &stubNode{failures: 2}
	r := NewRunner(RunnerConfig{ID: "n1", Impl: impl, MaxRetries: 3})
	shared := Shared{}

	_, err := r.Run(context.Background(), shared)
	require.NoError(t, err)
	assert.Equal(t, 3, impl.execCalls)
}

func TestRunnerSingleAttemptByDefault(t *testing.T) {
	impl := &stubNode{failures: 1}
	r := NewRunner(RunnerConfig{ID: "n1", Impl: impl})

	_, err := r.Run(context.Background(), Shared{})
	require.Error(t, err)
	assert.Equal(t, 1, impl.execCalls)
}

func TestRunnerFallbackRecovers(t *testing.T) {
	impl := &fallbackNode{stubNode: stubNode{failures: 10}}
	r := NewRunner(RunnerConfig{ID: "n1", Impl: impl, MaxRetries: 2})
	shared := Shared{}

	action, err := r.Run(context.Background(), shared)
	require.NoError(t, err)
	assert.Equal(t, ActionDefault, action)
	assert.True(t, impl.fallbackUsed)
	assert.Equal(t, map[string]any{"response": "fallback"}, shared.Namespace("n1"))
}

func TestRunnerFallbackTerminal(t *testing.T) {
	impl := &fallbackNode{stubNode: stubNode{failures: 10}}
	impl.fallbackErr = errors.New("still broken")
	r := NewRunner(RunnerConfig{ID: "n1", Impl: impl, MaxRetries: 2})

	_, err := r.Run(context.Background(), Shared{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "still broken")
}

func TestNamespaceValue(t *testing.T) {
	assert.Equal(t, map[string]any{}, NamespaceValue(nil))
	assert.Equal(t, map[string]any{"k": 1}, NamespaceValue(map[string]any{"k": 1}))
	assert.Equal(t, map[string]any{"value": "plain"}, NamespaceValue("plain"))
}

func TestSharedCloneIsShallow(t *testing.T) {
	inner := map[string]any{"k": "v"}
	shared := Shared{"nested": inner}
	clone := shared.Clone()

	clone["top"] = "only in clone"
	assert.NotContains(t, shared, "top")

	// Nested values are shared by reference.
	clone.Namespace("nested")["k2"] = "visible in both"
	assert.Equal(t, "visible in both", inner["k2"])
}

func TestUsageLogConcurrentAppend(t *testing.T) {
	shared := Shared{}
	log := shared.UsageLog()
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func(i int) {
			defer func() { done <- struct{}{} }()
			log.Append(UsageEntry{NodeID: "b", BatchItemIndex: i})
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}
	assert.Equal(t, 10, log.Len())
	// Same log instance on repeat lookup.
	assert.Same(t, log, shared.UsageLog())
}

func TestEchoNodeFactory(t *testing.T) {
	impl, err := New("echo")
	require.NoError(t, err)

	r := NewRunner(RunnerConfig{ID: "e1", Impl: impl, Params: map[string]any{"value": "hi"}})
	shared := Shared{}
	_, err = r.Run(context.Background(), shared)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"response": "hi"}, shared.Namespace("e1"))
}

func TestUnknownNodeType(t *testing.T) {
	_, err := New("definitely-not-registered")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "definitely-not-registered")
}
