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
// Package anthropic implements llm.StructuredClient on the Claude
// Messages API. The schema is advertised as a single forced tool, so
// the model must reply with a tool_use block shaped by the schema; a
// response without that block is a hard error.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/teradata-labs/pflow/pkg/llm"
)

const defaultSchemaName = "emit_result"

// MessagesClient is the subset of the SDK client the adapter uses.
// Satisfied by *sdk.MessageService; tests pass a mock.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Options configures the adapter.
type Options struct {
	// DefaultModel is used when a request does not name a model.
	DefaultModel string

	// MaxTokens is the default completion cap. Defaults to 4096.
	MaxTokens int
}

// Client implements llm.StructuredClient.
type Client struct {
	msg          MessagesClient
	defaultModel string
	maxTokens    int
}

// New builds a client over an existing Messages client.
func New(msg MessagesClient, opts Options) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic messages client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("default model identifier is required")
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4096
	}
	return &Client{
		msg:          msg,
		defaultModel: opts.DefaultModel,
		maxTokens:    opts.MaxTokens,
	}, nil
}

// NewFromAPIKey constructs a client with the default SDK HTTP transport.
func NewFromAPIKey(apiKey string, opts Options) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, opts)
}

// Structured issues one forced-tool call and decodes the tool_use input
// as the structured object.
func (c *Client) Structured(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil || req.Prompt == "" {
		return nil, errors.New("anthropic: prompt is required")
	}
	if len(req.Schema) == 0 {
		return nil, errors.New("anthropic: schema is required")
	}

	name := req.SchemaName
	if name == "" {
		name = defaultSchemaName
	}
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	tool := sdk.ToolUnionParamOfTool(inputSchema(req.Schema), name)
	if tool.OfTool != nil {
		tool.OfTool.Description = sdk.String("Return the result in this exact structure.")
	}

	params := sdk.MessageNewParams{
		Model:      sdk.Model(model),
		MaxTokens:  int64(maxTokens),
		Messages:   []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt))},
		Tools:      []sdk.ToolUnionParam{tool},
		ToolChoice: sdk.ToolChoiceParamOfTool(name),
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	msg, err := c.msg.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic messages.new: %w", err)
	}
	if msg == nil {
		return nil, errors.New("anthropic: response message is nil")
	}

	object, err := extractToolInput(msg, name)
	if err != nil {
		return nil, err
	}

	return &llm.Response{
		Object: object,
		Usage: llm.Usage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
			Model:        model,
		},
	}, nil
}

// extractToolInput finds the forced tool_use block and decodes its
// input. A missing block means the model did not honour the schema;
// that is a hard error, not a partial result.
func extractToolInput(msg *sdk.Message, name string) (map[string]any, error) {
	for _, block := range msg.Content {
		if block.Type != "tool_use" || block.Name != name {
			continue
		}
		var object map[string]any
		if err := json.Unmarshal(block.Input, &object); err != nil {
			return nil, fmt.Errorf("anthropic: tool input is not an object: %w", err)
		}
		return object, nil
	}
	return nil, fmt.Errorf("anthropic: response has no %q tool_use block (stop_reason=%s)", name, msg.StopReason)
}

// inputSchema converts an llm.Schema into the SDK's tool input schema.
func inputSchema(schema llm.Schema) sdk.ToolInputSchemaParam {
	out := sdk.ToolInputSchemaParam{}
	if props, ok := schema["properties"]; ok {
		out.Properties = props
	}
	switch req := schema["required"].(type) {
	case []string:
		out.Required = req
	case []any:
		for _, r := range req {
			if s, ok := r.(string); ok {
				out.Required = append(out.Required, s)
			}
		}
	}
	return out
}

var _ llm.StructuredClient = (*Client)(nil)
