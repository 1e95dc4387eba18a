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
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/pflow/pkg/observability"
	"github.com/teradata-labs/pflow/pkg/template"
)

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// ID is the node id from the workflow; outputs land under shared[ID].
	ID string

	// Impl is the node implementation.
	Impl Lifecycle

	// Params is the raw param mapping from the workflow. Template
	// expressions are resolved against the shared store once per run.
	Params map[string]any

	// MaxRetries is the total number of Exec attempts. 1 means a single
	// attempt with no retry.
	MaxRetries int

	// Wait is the sleep between Exec attempts.
	Wait time.Duration

	Logger *zap.Logger
	Tracer observability.Tracer
}

// Runner drives one node through its lifecycle: it resolves the param
// snapshot, calls Prep, retries Exec, falls back, calls Post, and writes
// the outputs under shared[ID].
//
// Params are resolved into an immutable per-run snapshot, so a single
// Runner is safe to reuse across sequential runs. Parallel batch workers
// still need their own Impl when the implementation keeps state.
type Runner struct {
	id         string
	impl       Lifecycle
	params     map[string]any
	maxRetries int
	wait       time.Duration
	logger     *zap.Logger
	tracer     observability.Tracer
}

// NewRunner creates a Runner, applying defaults for retry count, logger,
// and tracer.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoOpTracer()
	}
	return &Runner{
		id:         cfg.ID,
		impl:       cfg.Impl,
		params:     cfg.Params,
		maxRetries: cfg.MaxRetries,
		wait:       cfg.Wait,
		logger:     cfg.Logger,
		tracer:     cfg.Tracer,
	}
}

// ID returns the node id.
func (r *Runner) ID() string { return r.id }

// Impl returns the wrapped implementation.
func (r *Runner) Impl() Lifecycle { return r.impl }

// Params returns the raw (unresolved) param mapping.
func (r *Runner) Params() map[string]any { return r.params }

// WithImpl returns a copy of the Runner driving a different
// implementation instance. Used by the batch engine to hand each
// parallel worker its own node chain.
func (r *Runner) WithImpl(impl Lifecycle) *Runner {
	clone := *r
	clone.impl = impl
	return &clone
}

// Run executes one full lifecycle pass against shared and returns the
// routing action. Prep and Post failures are terminal; Exec failures are
// retried and then offered to ExecFallback when the implementation
// provides one.
func (r *Runner) Run(ctx context.Context, shared Shared) (Action, error) {
	ctx, span := r.tracer.StartSpan(ctx, observability.SpanNodeRun,
		observability.WithAttribute("node_id", r.id))
	defer r.tracer.EndSpan(span)

	params, err := r.resolveParams(shared)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("node %s: %w", r.id, err)
	}

	prep, err := r.impl.Prep(ctx, shared, params)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("node %s: prep: %w", r.id, err)
	}

	exec, err := r.execWithRetry(ctx, prep)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("node %s: %w", r.id, err)
	}

	outputs, action, err := r.impl.Post(ctx, shared, prep, exec)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("node %s: post: %w", r.id, err)
	}
	if action == "" {
		action = ActionDefault
	}

	shared[r.id] = NamespaceValue(outputs)

	span.SetAttribute("action", string(action))
	r.logger.Debug("node completed",
		zap.String("node_id", r.id),
		zap.String("action", string(action)))
	return action, nil
}

// resolveParams computes the per-run param snapshot. The raw params are
// never mutated.
func (r *Runner) resolveParams(shared Shared) (map[string]any, error) {
	if len(r.params) == 0 {
		return map[string]any{}, nil
	}
	resolved, err := template.ResolveNested(r.params, map[string]any(shared))
	if err != nil {
		return nil, err
	}
	snapshot, ok := resolved.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("resolved params are not a mapping")
	}
	return snapshot, nil
}

// execWithRetry attempts Exec up to maxRetries times with a local attempt
// counter, sleeping wait between attempts. On exhaustion the
// implementation's ExecFallback, if any, decides whether the failure is
// terminal.
func (r *Runner) execWithRetry(ctx context.Context, prep any) (any, error) {
	var lastErr error
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		result, err := r.impl.Exec(ctx, prep)
		if err == nil {
			return result, nil
		}
		lastErr = err
		r.logger.Warn("exec attempt failed",
			zap.String("node_id", r.id),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", r.maxRetries),
			zap.Error(err))
		if attempt < r.maxRetries && r.wait > 0 {
			select {
			case <-time.After(r.wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	if fb, ok := r.impl.(Fallback); ok {
		result, err := fb.ExecFallback(ctx, prep, lastErr)
		if err != nil {
			return nil, fmt.Errorf("exec failed after %d attempts: %w", r.maxRetries, err)
		}
		r.logger.Debug("exec fallback produced a result", zap.String("node_id", r.id))
		return result, nil
	}
	return nil, fmt.Errorf("exec failed after %d attempts: %w", r.maxRetries, lastErr)
}
