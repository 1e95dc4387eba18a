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
	"fmt"
	"sort"
	"sync"
)

// Factory constructs a fresh Lifecycle instance for one node. The
// compiler calls it once per node occurrence, and the batch engine calls
// it again per parallel worker when it cannot deep-copy an instance.
type Factory func() Lifecycle

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register adds a node-type constructor to the global factory table.
// Registering a duplicate type panics; node types are wired at start-up
// and a collision is a programming error.
func Register(nodeType string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if nodeType == "" {
		panic("node: Register with empty type")
	}
	if f == nil {
		panic(fmt.Sprintf("node: Register %q with nil factory", nodeType))
	}
	if _, dup := factories[nodeType]; dup {
		panic(fmt.Sprintf("node: Register called twice for type %q", nodeType))
	}
	factories[nodeType] = f
}

// New instantiates a node implementation by type name.
func New(nodeType string) (Lifecycle, error) {
	factoriesMu.RLock()
	f, ok := factories[nodeType]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown node type %q", nodeType)
	}
	return f(), nil
}

// Registered reports whether a node type has a factory.
func Registered(nodeType string) bool {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	_, ok := factories[nodeType]
	return ok
}

// Types returns the registered node types, sorted.
func Types() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	out := make([]string, 0, len(factories))
	for t := range factories {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
