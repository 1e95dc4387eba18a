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

	"github.com/teradata-labs/pflow/pkg/template"
)

func init() {
	Register("echo", func() Lifecycle { return &EchoNode{} })
	Register("template-render", func() Lifecycle { return &TemplateRenderNode{} })
}

// EchoNode copies a value through unchanged. It takes its value from the
// "value" param, falling back to shared["item"] so it can serve as the
// inner node of a batch fan-out.
type EchoNode struct{}

func (n *EchoNode) Prep(ctx context.Context, shared Shared, params map[string]any) (any, error) {
	if v, ok := params["value"]; ok {
		return v, nil
	}
	if v, ok := shared["item"]; ok {
		return v, nil
	}
	return nil, nil
}

func (n *EchoNode) Exec(ctx context.Context, prep any) (any, error) {
	return prep, nil
}

func (n *EchoNode) Post(ctx context.Context, shared Shared, prep, exec any) (any, Action, error) {
	return map[string]any{"response": exec}, ActionDefault, nil
}

// TemplateRenderNode renders its "template" param against the shared
// store and writes the result as text. Expressions in the param resolve
// through the ordinary snapshot; exec re-resolves so templates produced
// dynamically (for example an expression stored in an earlier node's
// output) also render.
type TemplateRenderNode struct {
	shared Shared
}

func (n *TemplateRenderNode) Prep(ctx context.Context, shared Shared, params map[string]any) (any, error) {
	tmpl, ok := params["template"].(string)
	if !ok || tmpl == "" {
		return nil, fmt.Errorf("template-render: missing required param %q", "template")
	}
	n.shared = shared
	return tmpl, nil
}

func (n *TemplateRenderNode) Exec(ctx context.Context, prep any) (any, error) {
	tmpl := prep.(string)
	return template.ResolveString(tmpl, map[string]any(n.shared))
}

func (n *TemplateRenderNode) Post(ctx context.Context, shared Shared, prep, exec any) (any, Action, error) {
	return map[string]any{"text": exec}, ActionDefault, nil
}
