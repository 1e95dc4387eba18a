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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/teradata-labs/pflow/internal/log"
	"github.com/teradata-labs/pflow/pkg/ir"
	"github.com/teradata-labs/pflow/pkg/registry"
	"github.com/teradata-labs/pflow/pkg/workflows"
)

func buildRegistry() *registry.Registry {
	return registry.New(registry.Config{
		Path:   config.Registry.Path,
		Logger: log.Named("registry"),
	})
}

func buildLibrary() *workflows.Library {
	return workflows.NewLibrary(config.Workflows.Dir, log.Named("workflows"))
}

// loadWorkflowArg resolves a workflow reference: a saved-workflow name
// first, then a YAML file path.
func loadWorkflowArg(arg string) (*ir.Document, error) {
	lib := buildLibrary()
	if lib.Exists(arg) {
		wf, err := lib.Load(arg)
		if err != nil {
			return nil, err
		}
		return wf.Doc, nil
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return nil, fmt.Errorf("%q is neither a saved workflow nor a readable file", arg)
	}
	return ir.Parse(data)
}

// readStdin returns piped data, or nil when stdin is a terminal.
func readStdin() []byte {
	info, err := os.Stdin.Stat()
	if err != nil || info.Mode()&os.ModeCharDevice != 0 {
		return nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil || len(data) == 0 {
		return nil
	}
	return data
}

// parseInputs converts repeated --input key=value flags. Values that
// parse as JSON keep their type; everything else stays a string.
func parseInputs(pairs []string) (map[string]any, error) {
	inputs := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --input %q, want key=value", pair)
		}
		var typed any
		if err := json.Unmarshal([]byte(value), &typed); err == nil {
			inputs[key] = typed
		} else {
			inputs[key] = value
		}
	}
	return inputs, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
