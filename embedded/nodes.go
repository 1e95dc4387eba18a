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
// Package embedded provides access to files embedded into the pflow
// binary. This ensures the core node manifest is always available, even
// when the binary is distributed separately from the source tree.
package embedded

import (
	_ "embed"
)

// coreNodes describes the factory-registered node types that ship with
// the runtime, in the same manifest format the scanner reads from disk.
//
//go:embed nodes/core.node.yaml
var coreNodes []byte

// CoreNodes returns the embedded core node manifest.
func CoreNodes() []byte {
	return coreNodes
}
