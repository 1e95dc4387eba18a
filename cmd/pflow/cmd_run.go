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
	"github.com/spf13/cobra"

	"github.com/teradata-labs/pflow/internal/log"
	"github.com/teradata-labs/pflow/pkg/compiler"
)

var (
	runInputs    []string
	runOutputKey string
)

var runCmd = &cobra.Command{
	Use:   "run <workflow>",
	Short: "Compile and run a workflow",
	Long: `Run a workflow by saved-library name or YAML file path. Inputs are
supplied with repeated --input key=value flags; piped stdin feeds any
input declared with stdin: true. The extracted outputs are printed as
JSON.`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkflow,
}

func init() {
	runCmd.Flags().StringArrayVarP(&runInputs, "input", "i", nil, "workflow input as key=value (repeatable)")
	runCmd.Flags().StringVar(&runOutputKey, "output-key", "", "extract this shared-store path instead of declared outputs")
	rootCmd.AddCommand(runCmd)
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	doc, err := loadWorkflowArg(args[0])
	if err != nil {
		return err
	}
	inputs, err := parseInputs(runInputs)
	if err != nil {
		return err
	}

	c := compiler.New(compiler.Config{
		Registry: buildRegistry(),
		Logger:   log.Named("compiler"),
	})
	wf, err := c.Compile(doc)
	if err != nil {
		return err
	}

	shared, err := wf.Run(cmd.Context(), compiler.RunOptions{
		Inputs: inputs,
		Stdin:  readStdin(),
	})
	if err != nil {
		return err
	}
	return printJSON(wf.ExtractOutputs(shared, runOutputKey))
}
