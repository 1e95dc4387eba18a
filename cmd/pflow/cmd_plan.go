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
package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/teradata-labs/pflow/internal/log"
	"github.com/teradata-labs/pflow/pkg/compiler"
	"github.com/teradata-labs/pflow/pkg/llm/anthropic"
	"github.com/teradata-labs/pflow/pkg/planner"
)

var (
	planRun    bool
	planNoSave bool
)

var planCmd = &cobra.Command{
	Use:   "plan <request>",
	Short: "Plan a workflow from a natural-language request",
	Long: `Plan finds a saved workflow matching the request, or generates a new
one from the node catalogue. Extracted parameters are reported; with
--run the workflow is executed immediately when all required inputs
were filled. Generated workflows are saved to the library unless
--no-save is given.`,
	Args: cobra.MinimumNArgs(1),
	RunE: planWorkflow,
}

func init() {
	planCmd.Flags().BoolVar(&planRun, "run", false, "run the workflow when all required inputs are filled")
	planCmd.Flags().BoolVar(&planNoSave, "no-save", false, "do not save a generated workflow to the library")
	rootCmd.AddCommand(planCmd)
}

func planWorkflow(cmd *cobra.Command, args []string) error {
	if config.LLM.AnthropicAPIKey == "" {
		return fmt.Errorf("planning needs an Anthropic API key: set --anthropic-key, ANTHROPIC_API_KEY, or %s in %s",
			settingsAPIKeyName, "the settings file")
	}
	client, err := anthropic.NewFromAPIKey(config.LLM.AnthropicAPIKey, anthropic.Options{
		DefaultModel: config.LLM.Model,
		MaxTokens:    config.LLM.MaxTokens,
	})
	if err != nil {
		return err
	}

	lib := buildLibrary()
	// A temperature only applies when the user set one; an explicit 0
	// is respected rather than treated as unset.
	var temperature *float64
	if viper.IsSet("llm.temperature") {
		temperature = &config.LLM.Temperature
	}
	p, err := planner.New(planner.Config{
		Client:        client,
		Registry:      buildRegistry(),
		Library:       lib,
		Model:         config.LLM.Model,
		MetadataModel: config.LLM.MetadataModel,
		Temperature:   temperature,
		Logger:        log.Named("planner"),
	})
	if err != nil {
		return err
	}

	request := strings.Join(args, " ")
	stdin := readStdin()
	res, _, err := p.Plan(cmd.Context(), request, stdin)
	if err != nil {
		return err
	}

	switch res.Action {
	case planner.ActionFailed:
		return fmt.Errorf("planning failed after repeated attempts:\n  %s",
			strings.Join(res.Errors, "\n  "))

	case planner.ActionParamsIncomplete:
		return printJSON(map[string]any{
			"status":  "params_incomplete",
			"missing": res.Missing,
			"params":  res.Params,
		})
	}

	summary := map[string]any{
		"status": "ready",
		"params": res.Params,
	}

	if res.GeneratedNew && !planNoSave {
		path, err := lib.Save(res.Metadata, res.Doc, suggestedUsage(res))
		if err != nil {
			return fmt.Errorf("save generated workflow: %w", err)
		}
		summary["workflow"] = res.Metadata.Name
		summary["saved_path"] = path
	}

	// Path B forces one more validation pass; compiling performs it.
	c := compiler.New(compiler.Config{
		Registry: buildRegistry(),
		Logger:   log.Named("compiler"),
	})
	wf, err := c.Compile(res.Doc)
	if err != nil {
		return fmt.Errorf("generated workflow failed final validation: %w", err)
	}

	if !planRun {
		return printJSON(summary)
	}

	shared, err := wf.Run(cmd.Context(), compiler.RunOptions{
		Inputs: res.Params,
		Stdin:  stdin,
	})
	if err != nil {
		return err
	}
	return printJSON(wf.ExtractOutputs(shared, ""))
}

// suggestedUsage renders the command line a user would run next, for
// the workflow file's Usage section.
func suggestedUsage(res *planner.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "```\npflow run %s", res.Metadata.Name)

	names := make([]string, 0, len(res.Params))
	for name := range res.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, " --input %s=%v", name, res.Params[name])
	}
	b.WriteString("\n```")
	return b.String()
}
