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
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	deepcopy "github.com/tiendc/go-deepcopy"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/teradata-labs/pflow/pkg/ir"
	"github.com/teradata-labs/pflow/pkg/node"
	"github.com/teradata-labs/pflow/pkg/observability"
	"github.com/teradata-labs/pflow/pkg/template"
)

// maxAutoParseBytes caps JSON auto-parsing of string items references.
const maxAutoParseBytes = 10 << 20

// ItemError records one failed item.
type ItemError struct {
	Index int
	Item  any
	Error string
	// Exception is the original error when the failure was a node error
	// rather than an error-bearing result. Preserved for fail-fast
	// re-raising.
	Exception error
}

// NodeConfig configures a batch Node.
type NodeConfig struct {
	// ID is the batch node's id; the fan-out summary lands under
	// shared[ID].
	ID string

	// Inner drives one item. Its namespace inside each item context is
	// reset before the run and captured as the item result.
	Inner *node.Runner

	// Spec is the raw batch spec from the IR.
	Spec *ir.BatchSpec

	Logger *zap.Logger
	Tracer observability.Tracer
}

// Node replaces a wrapped node's normal execution with a fan-out over an
// items sequence.
type Node struct {
	id     string
	inner  *node.Runner
	spec   *ir.BatchSpec
	cfg    Config
	logger *zap.Logger
	tracer observability.Tracer
}

// NewNode builds a batch node, coercing the spec's config values.
func NewNode(cfg NodeConfig) *Node {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoOpTracer()
	}
	return &Node{
		id:     cfg.ID,
		inner:  cfg.Inner,
		spec:   cfg.Spec,
		cfg:    ParseConfig(cfg.Spec, cfg.Logger),
		logger: cfg.Logger,
		tracer: cfg.Tracer,
	}
}

// ID returns the batch node id.
func (n *Node) ID() string { return n.id }

// itemOutcome is one collected per-item result for ordered reassembly.
type itemOutcome struct {
	index      int
	result     map[string]any
	err        *ItemError
	durationMS float64
	skipped    bool
}

// Run resolves items, fans the inner node out, and writes the summary
// namespace under shared[id]. Under fail_fast the first item error
// aborts the batch and is returned after the partial summary is
// written, wrapping the original item error.
func (n *Node) Run(ctx context.Context, shared node.Shared) (node.Action, error) {
	ctx, span := n.tracer.StartSpan(ctx, observability.SpanBatchRun,
		observability.WithAttribute("node_id", n.id),
		observability.WithAttribute("parallel", n.cfg.Parallel))
	defer n.tracer.EndSpan(span)

	items, err := n.resolveItems(shared)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("batch %s: %w", n.id, err)
	}
	span.SetAttribute("item_count", len(items))

	// The usage aggregator must exist before workers share it.
	usage := shared.UsageLog()

	start := time.Now()
	// A parallel pool only pays off past one item; the summary reports
	// the mode actually taken, not the configured one.
	ranParallel := n.cfg.Parallel && len(items) > 1
	var outcomes []itemOutcome
	if ranParallel {
		outcomes = n.runParallel(ctx, shared, items, usage)
	} else {
		outcomes = n.runSequential(ctx, shared, items, usage)
	}
	totalMS := float64(time.Since(start).Microseconds()) / 1000

	summary, firstErr := n.summarise(items, outcomes, totalMS, ranParallel, span)
	shared[n.id] = summary

	if n.cfg.ErrorHandling == FailFast && firstErr != nil {
		var err error
		if firstErr.Exception != nil {
			err = fmt.Errorf("batch %s: item %d failed: %w", n.id, firstErr.Index, firstErr.Exception)
		} else {
			err = fmt.Errorf("batch %s: item %d failed: %s", n.id, firstErr.Index, firstErr.Error)
		}
		span.RecordError(err)
		return "", err
	}
	return node.ActionDefault, nil
}

// resolveItems produces the items slice. A ${path} reference is resolved
// against the shared store; a string that starts with "[" is parsed as a
// JSON array unless it exceeds the safety cap or fails to parse.
func (n *Node) resolveItems(shared node.Shared) ([]any, error) {
	raw := n.spec.Items
	resolved, err := template.ResolveNested(raw, map[string]any(shared))
	if err != nil {
		return nil, fmt.Errorf("resolve items: %w", err)
	}

	if s, ok := resolved.(string); ok {
		trimmed := strings.TrimSpace(s)
		if strings.HasPrefix(trimmed, "[") && len(trimmed) <= maxAutoParseBytes {
			var parsed []any
			if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
				resolved = parsed
			} else {
				n.logger.Warn("items string looks like JSON but did not parse",
					zap.String("node_id", n.id), zap.Error(err))
			}
		}
	}

	items, ok := resolved.([]any)
	if !ok {
		return nil, fmt.Errorf("items must resolve to a sequence, got %T", resolved)
	}
	return items, nil
}

func (n *Node) runSequential(ctx context.Context, shared node.Shared, items []any, usage *node.UsageLog) []itemOutcome {
	outcomes := make([]itemOutcome, 0, len(items))
	for i, item := range items {
		outcome := n.runItem(ctx, n.inner, shared, item, i, usage)
		outcomes = append(outcomes, outcome)
		if outcome.err != nil && n.cfg.ErrorHandling == FailFast {
			break
		}
	}
	return outcomes
}

func (n *Node) runParallel(ctx context.Context, shared node.Shared, items []any, usage *node.UsageLog) []itemOutcome {
	outcomes := make([]itemOutcome, len(items))
	for i := range outcomes {
		outcomes[i] = itemOutcome{index: i, skipped: true}
	}

	// cancelCtx gates the start of pending items under fail_fast;
	// running items keep the outer ctx so blocking I/O finishes
	// normally.
	cancelCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sem := semaphore.NewWeighted(int64(n.cfg.MaxConcurrent))
	var wg sync.WaitGroup
	var once sync.Once

	for i, item := range items {
		// Acquire before spawning so items start in input order and a
		// fail_fast cancellation stops everything not yet started.
		if err := sem.Acquire(cancelCtx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(index int, item any) {
			defer wg.Done()
			defer sem.Release(1)

			worker, err := n.cloneInner()
			if err != nil {
				outcomes[index] = itemOutcome{
					index: index,
					err:   &ItemError{Index: index, Item: item, Error: err.Error(), Exception: err},
				}
			} else {
				outcomes[index] = n.runItem(ctx, worker, shared, item, index, usage)
			}
			if outcomes[index].err != nil && n.cfg.ErrorHandling == FailFast {
				once.Do(cancel)
			}
		}(i, item)
	}
	wg.Wait()
	return outcomes
}

// runItem executes the inner node once per attempt in an isolated
// context. The retry budget is a local counter; concurrent failing items
// never share attempt state.
func (n *Node) runItem(ctx context.Context, inner *node.Runner, shared node.Shared, item any, index int, usage *node.UsageLog) itemOutcome {
	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= n.cfg.MaxRetries; attempt++ {
		itemCtx := shared.Clone()
		itemCtx[n.cfg.Alias] = item
		itemCtx[inner.ID()] = map[string]any{}

		_, err := inner.Run(ctx, itemCtx)
		n.collectUsage(itemCtx, inner.ID(), index, usage)

		if err != nil {
			lastErr = err
			n.logger.Warn("batch item attempt failed",
				zap.String("node_id", n.id),
				zap.Int("index", index),
				zap.Int("attempt", attempt),
				zap.Error(err))
			if attempt < n.cfg.MaxRetries && n.cfg.RetryWait > 0 {
				select {
				case <-time.After(n.cfg.RetryWait):
				case <-ctx.Done():
					lastErr = ctx.Err()
					attempt = n.cfg.MaxRetries
				}
			}
			continue
		}

		result := node.NamespaceValue(itemCtx[inner.ID()])
		durMS := float64(time.Since(start).Microseconds()) / 1000
		if msg, bad := resultError(result); bad {
			return itemOutcome{
				index:      index,
				result:     result,
				err:        &ItemError{Index: index, Item: item, Error: msg},
				durationMS: durMS,
			}
		}
		return itemOutcome{index: index, result: result, durationMS: durMS}
	}

	return itemOutcome{
		index:      index,
		err:        &ItemError{Index: index, Item: item, Error: lastErr.Error(), Exception: lastErr},
		durationMS: float64(time.Since(start).Microseconds()) / 1000,
	}
}

// collectUsage moves an llm_usage record from the item context into the
// shared usage log, stamped with the batch node id and item index. The
// record may sit at the context root or inside the inner namespace.
func (n *Node) collectUsage(itemCtx node.Shared, innerID string, index int, usage *node.UsageLog) {
	var record map[string]any
	if u, ok := itemCtx[node.KeyLLMUsage].(map[string]any); ok {
		record = u
	} else if ns := itemCtx.Namespace(innerID); ns != nil {
		if u, ok := ns[node.KeyLLMUsage].(map[string]any); ok {
			record = u
		}
	}
	if record == nil {
		return
	}
	usage.Append(node.UsageEntry{
		NodeID:         n.id,
		BatchItemIndex: index,
		Usage:          record,
	})
}

// cloneInner deep-copies the inner node chain for one parallel worker,
// so implementation-local state never races across items.
func (n *Node) cloneInner() (*node.Runner, error) {
	impl := n.inner.Impl()
	if c, ok := impl.(node.Cloner); ok {
		return n.inner.WithImpl(c.CloneForWorker()), nil
	}
	v := reflect.ValueOf(impl)
	if v.Kind() != reflect.Pointer {
		// Value implementations are copied by interface assignment.
		return n.inner, nil
	}
	dst := reflect.New(v.Type().Elem())
	if err := deepcopy.Copy(dst.Interface(), impl); err != nil {
		return nil, fmt.Errorf("copy inner node for worker: %w", err)
	}
	worker, ok := dst.Interface().(node.Lifecycle)
	if !ok {
		return nil, fmt.Errorf("copied inner node does not implement the lifecycle")
	}
	return n.inner.WithImpl(worker), nil
}

// summarise builds the batch namespace payload and returns the first
// item error, if any. ranParallel is the execution branch actually
// taken, which may differ from the configured parallel flag for 0- and
// 1-item batches.
func (n *Node) summarise(items []any, outcomes []itemOutcome, totalMS float64, ranParallel bool, span *observability.Span) (map[string]any, *ItemError) {
	results := make([]any, len(items))
	var errorList []any
	var firstErr *ItemError
	successCount := 0
	var durations []float64

	for _, o := range outcomes {
		if o.skipped {
			continue
		}
		if o.result != nil {
			results[o.index] = o.result
		}
		if o.durationMS > 0 {
			durations = append(durations, o.durationMS)
		}
		if o.err != nil {
			if firstErr == nil || o.err.Index < firstErr.Index {
				firstErr = o.err
			}
			entry := map[string]any{
				"index": o.err.Index,
				"item":  o.err.Item,
				"error": o.err.Error,
			}
			if o.err.Exception != nil {
				entry["exception"] = o.err.Exception.Error()
			}
			errorList = append(errorList, entry)
		} else if o.result != nil {
			successCount++
		}
		span.AddEvent("batch_progress", map[string]any{
			"node_id": n.id,
			"index":   o.index,
			"ok":      o.err == nil,
		})
	}

	timing := map[string]any{"total_items_ms": totalMS}
	if len(durations) > 0 {
		min, max, sum := durations[0], durations[0], 0.0
		for _, d := range durations {
			if d < min {
				min = d
			}
			if d > max {
				max = d
			}
			sum += d
		}
		timing["avg"] = sum / float64(len(durations))
		timing["min"] = min
		timing["max"] = max
	}

	metadata := map[string]any{
		"parallel":       n.cfg.Parallel,
		"max_retries":    n.cfg.MaxRetries,
		"execution_mode": "sequential",
		"timing":         timing,
	}
	if ranParallel {
		metadata["execution_mode"] = "parallel"
		metadata["max_concurrent"] = n.cfg.MaxConcurrent
	}
	if n.cfg.RetryWait > 0 {
		metadata["retry_wait"] = n.cfg.RetryWait.Seconds()
	}

	var errsValue any
	if len(errorList) > 0 {
		errsValue = errorList
	}
	return map[string]any{
		"results":        results,
		"count":          len(items),
		"success_count":  successCount,
		"error_count":    len(errorList),
		"errors":         errsValue,
		"batch_metadata": metadata,
	}, firstErr
}

// resultError reports whether a captured item result carries a truthy
// error key.
func resultError(result map[string]any) (string, bool) {
	v, ok := result["error"]
	if !ok || v == nil {
		return "", false
	}
	switch e := v.(type) {
	case string:
		if e == "" {
			return "", false
		}
		return e, true
	case bool:
		if !e {
			return "", false
		}
		return "error", true
	default:
		return fmt.Sprintf("%v", e), true
	}
}
