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

	"github.com/spf13/cobra"

	"github.com/teradata-labs/pflow/embedded"
	"github.com/teradata-labs/pflow/internal/log"
	"github.com/teradata-labs/pflow/pkg/node"
	"github.com/teradata-labs/pflow/pkg/registry"
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Manage the node-type registry",
}

var registryScanCmd = &cobra.Command{
	Use:   "scan [dir...]",
	Short: "Scan node manifests and update the registry",
	Long: `Scan walks the given directories (default: the configured node dirs)
for *.node.yaml and nodes.yaml manifests and merges the discovered
node types into the registry file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		roots := args
		if len(roots) == 0 {
			roots = config.Registry.NodeDirs
		}
		// Core node types come from the manifest baked into the binary,
		// so a fresh install has a working catalogue before any user
		// nodes exist.
		scanned, err := registry.DecodeManifest(embedded.CoreNodes(), "embedded")
		if err != nil {
			return err
		}
		scanner := registry.NewScanner(roots, log.Named("scanner"))
		found, err := scanner.Scan()
		if err != nil {
			return err
		}
		scanned = append(scanned, found...)
		entries, err := buildRegistry().UpdateFromScanner(scanned)
		if err != nil {
			return err
		}
		fmt.Printf("scanned %d entries, registry now has %d node types\n",
			len(scanned), len(entries))
		return nil
	},
}

var registryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered node types",
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := buildRegistry().Load()
		if err != nil {
			return err
		}
		for _, name := range registry.Names(entries) {
			e := entries[name]
			runnable := ""
			if !node.Registered(name) && e.Kind != registry.KindVirtual {
				runnable = " (no implementation registered)"
			}
			fmt.Printf("%-30s %-8s %s%s\n", name, e.Kind, e.Interface.Description, runnable)
		}
		for _, name := range node.Types() {
			if _, catalogued := entries[name]; !catalogued {
				fmt.Printf("%-30s %-8s built-in\n", name, registry.KindCore)
			}
		}
		return nil
	},
}

var registryWatchCmd = &cobra.Command{
	Use:   "watch [dir...]",
	Short: "Watch node manifest directories and rescan on change",
	RunE: func(cmd *cobra.Command, args []string) error {
		roots := args
		if len(roots) == 0 {
			roots = config.Registry.NodeDirs
		}
		scanner := registry.NewScanner(roots, log.Named("scanner"))
		fmt.Printf("watching %v (ctrl-c to stop)\n", roots)
		return buildRegistry().Watch(cmd.Context(), scanner)
	},
}

func init() {
	registryCmd.AddCommand(registryScanCmd)
	registryCmd.AddCommand(registryListCmd)
	registryCmd.AddCommand(registryWatchCmd)
	rootCmd.AddCommand(registryCmd)
}
