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
	"os"

	"github.com/spf13/cobra"
)

var workflowsCmd = &cobra.Command{
	Use:   "workflows",
	Short: "Manage the saved-workflow library",
}

var workflowsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved workflows",
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := buildLibrary().List()
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("no saved workflows")
			return nil
		}
		for _, meta := range list {
			fmt.Printf("%-30s %s\n", meta.Name, meta.Description)
		}
		return nil
	},
}

var workflowsShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print a saved workflow file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wf, err := buildLibrary().Load(args[0])
		if err != nil {
			return err
		}
		data, err := os.ReadFile(wf.Path)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	},
}

func init() {
	workflowsCmd.AddCommand(workflowsListCmd)
	workflowsCmd.AddCommand(workflowsShowCmd)
	rootCmd.AddCommand(workflowsCmd)
}
