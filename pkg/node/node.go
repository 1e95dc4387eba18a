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
// Package node defines the prep/exec/post lifecycle contract that every
// workflow node implements, the shared store threaded through a run, and
// the Runner that drives one node with template-resolved params and retry.
package node

import (
	"context"
	"sync"
)

// Action is the routing string a node returns from Post. The executor
// follows the outgoing edge whose action matches.
type Action string

const (
	// ActionDefault is the implicit action on edges that declare none.
	ActionDefault Action = "default"
	// ActionError is the conventional action for error routing.
	ActionError Action = "error"
)

// Reserved shared-store keys. Keys starting with "_" or "__...__" are
// owned by the runtime, not by node namespaces.
const (
	// KeyLLMCalls holds the append-only *UsageLog of LLM usage entries.
	KeyLLMCalls = "__llm_calls__"
	// KeyLLMUsage is the per-node usage object a node may write at the
	// root of its context; the batch engine collects it per item.
	KeyLLMUsage = "llm_usage"
)

// Lifecycle is the three-phase node contract.
//
// Prep validates params and shared inputs and computes a pure inputs
// record; it is never retried. Exec does the work and is the only phase
// retried on failure. Post writes derived state and picks the routing
// action; outputs returned from Post are written under the node's
// namespace by the Runner.
type Lifecycle interface {
	Prep(ctx context.Context, shared Shared, params map[string]any) (any, error)
	Exec(ctx context.Context, prep any) (any, error)
	Post(ctx context.Context, shared Shared, prep, exec any) (outputs any, action Action, err error)
}

// Fallback is an optional interface. When Exec has failed on every
// attempt, ExecFallback receives the last error and may return a
// substitute exec result so Post still runs. Returning an error makes
// the failure terminal.
type Fallback interface {
	ExecFallback(ctx context.Context, prep any, execErr error) (any, error)
}

// Cloner is an optional interface. Parallel batch workers each need
// their own implementation instance; reflection-based copying cannot
// reach state like locks, channels, or client handles, so such
// implementations provide their own copy.
type Cloner interface {
	CloneForWorker() Lifecycle
}

// Shared is the process-local state mapping threaded through a workflow
// run. It is exclusively owned by the executor; parallel batch workers
// receive shallow copies via Clone.
type Shared map[string]any

// Clone returns a shallow copy. Nested values, including the usage log,
// are shared by reference.
func (s Shared) Clone() Shared {
	out := make(Shared, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Namespace returns the output mapping of node id, or nil when the node
// has not run or wrote something that is not a mapping.
func (s Shared) Namespace(id string) map[string]any {
	m, _ := s[id].(map[string]any)
	return m
}

// UsageLog returns the shared LLM-usage aggregator, creating it on first
// use.
func (s Shared) UsageLog() *UsageLog {
	if l, ok := s[KeyLLMCalls].(*UsageLog); ok {
		return l
	}
	l := &UsageLog{}
	s[KeyLLMCalls] = l
	return l
}

// NamespaceValue normalises a node's outputs for namespace writing:
// nil becomes an empty mapping and non-mapping values are wrapped as
// {"value": v}.
func NamespaceValue(v any) map[string]any {
	switch out := v.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		if out == nil {
			return map[string]any{}
		}
		return out
	default:
		return map[string]any{"value": v}
	}
}

// UsageEntry records one LLM call's usage, stamped with where it came
// from. BatchItemIndex is -1 outside batch execution.
type UsageEntry struct {
	NodeID         string         `json:"node_id"`
	BatchItemIndex int            `json:"batch_item_index"`
	Usage          map[string]any `json:"usage"`
}

// UsageLog is the mutex-guarded list behind the __llm_calls__ key.
// It is intentionally shared by reference across batch workers.
type UsageLog struct {
	mu      sync.Mutex
	entries []UsageEntry
}

// Append adds one entry. Safe for concurrent use.
func (l *UsageLog) Append(e UsageEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
}

// Entries returns a copy of the recorded entries.
func (l *UsageLog) Entries() []UsageEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]UsageEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of recorded entries.
func (l *UsageLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
