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
// Package registry persists the node-type catalogue: a JSON mapping from
// node type to metadata (implementation location, kind, interface).
// Loads are corrupt-safe and saves are atomic via temp-then-rename, so a
// damaged file can always be rebuilt by re-running the scanner.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Kind classifies where a node implementation comes from.
type Kind string

const (
	// KindCore nodes ship with the runtime and are factory-registered.
	KindCore Kind = "core"
	// KindUser nodes are loaded from explicit file paths.
	KindUser Kind = "user"
	// KindMCP nodes are generated wrappers over an external tool protocol.
	KindMCP Kind = "mcp"
	// KindVirtual marks base types that are not directly runnable.
	KindVirtual Kind = "virtual"
)

// Port names a key a node reads from or writes to the shared store.
// Structure optionally describes nested output keys for template-path
// introspection.
type Port struct {
	Key       string         `json:"key" yaml:"key"`
	Type      string         `json:"type" yaml:"type"`
	Structure map[string]any `json:"structure,omitempty" yaml:"structure,omitempty"`
}

// Param describes one declared node parameter.
type Param struct {
	Key         string `json:"key" yaml:"key"`
	Type        string `json:"type" yaml:"type"`
	Required    bool   `json:"required" yaml:"required"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Default     any    `json:"default,omitempty" yaml:"default,omitempty"`
}

// Interface is the declared surface of a node type.
type Interface struct {
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Inputs      []Port   `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs     []Port   `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Params      []Param  `json:"params,omitempty" yaml:"params,omitempty"`
	Actions     []string `json:"actions,omitempty" yaml:"actions,omitempty"`
}

// Entry is the persisted metadata for one node type.
type Entry struct {
	Module    string    `json:"module,omitempty" yaml:"module,omitempty"`
	Class     string    `json:"class,omitempty" yaml:"class,omitempty"`
	FilePath  string    `json:"file_path,omitempty" yaml:"file_path,omitempty"`
	Kind      Kind      `json:"kind" yaml:"kind"`
	Interface Interface `json:"interface" yaml:"interface"`
}

// ScannedEntry is a registry entry paired with its node-type name, as
// produced by the scanner.
type ScannedEntry struct {
	Name      string    `json:"name" yaml:"name"`
	Module    string    `json:"module,omitempty" yaml:"module,omitempty"`
	Class     string    `json:"class,omitempty" yaml:"class,omitempty"`
	FilePath  string    `json:"file_path,omitempty" yaml:"file_path,omitempty"`
	Kind      Kind      `json:"kind" yaml:"kind"`
	Interface Interface `json:"interface" yaml:"interface"`
}

func (s ScannedEntry) entry() Entry {
	return Entry{
		Module:    s.Module,
		Class:     s.Class,
		FilePath:  s.FilePath,
		Kind:      s.Kind,
		Interface: s.Interface,
	}
}

// Config holds registry configuration.
type Config struct {
	// Path is the JSON registry file, typically user-scoped.
	Path   string
	Logger *zap.Logger
}

// Registry reads and writes the node-type catalogue. Safe for concurrent
// use within one process; cross-process safety comes from atomic rename.
type Registry struct {
	path   string
	logger *zap.Logger
	mu     sync.Mutex
}

// New creates a registry over the given file path.
func New(cfg Config) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Registry{path: cfg.Path, logger: cfg.Logger}
}

// Path returns the registry file location.
func (r *Registry) Path() string { return r.path }

// Load reads the registry file. A missing or empty file yields an empty
// mapping; malformed JSON yields an empty mapping with a warning, never
// an error, so a damaged registry can be recovered by re-scanning.
func (r *Registry) Load() (map[string]Entry, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]Entry{}, nil
		}
		r.logger.Warn("registry unreadable, starting empty",
			zap.String("path", r.path), zap.Error(err))
		return map[string]Entry{}, nil
	}
	if len(data) == 0 {
		return map[string]Entry{}, nil
	}
	var entries map[string]Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		r.logger.Warn("registry corrupt, starting empty; re-run scan to rebuild",
			zap.String("path", r.path), zap.Error(err))
		return map[string]Entry{}, nil
	}
	if entries == nil {
		entries = map[string]Entry{}
	}
	return entries, nil
}

// Save writes the full registry atomically: serialise with sorted keys
// and 2-space indentation to a temp file in the same directory, then
// rename over the target. A failed write removes the temp file.
func (r *Registry) Save(entries map[string]Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create registry directory: %w", err)
	}

	data, err := marshalSorted(entries)
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".registry-*.json")
	if err != nil {
		return fmt.Errorf("create temp registry file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp registry file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp registry file: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace registry file: %w", err)
	}
	return nil
}

// UpdateFromScanner merges scanned entries into the persisted registry
// and saves. Duplicate names resolve last-wins with a warning; entries
// without a name are dropped with a warning. Returns the merged mapping.
func (r *Registry) UpdateFromScanner(scanned []ScannedEntry) (map[string]Entry, error) {
	entries, err := r.Load()
	if err != nil {
		return nil, err
	}
	merged := make(map[string]bool, len(scanned))
	for _, s := range scanned {
		if s.Name == "" {
			r.logger.Warn("scanner produced an entry without a name, dropping",
				zap.String("file_path", s.FilePath))
			continue
		}
		if merged[s.Name] {
			r.logger.Warn("duplicate node type from scanner, last one wins",
				zap.String("type", s.Name),
				zap.String("file_path", s.FilePath))
		}
		merged[s.Name] = true
		entries[s.Name] = s.entry()
	}
	if err := r.Save(entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Metadata returns the subset of entries matching the requested node
// types. Unknown types are ignored; non-string items in the collection
// are skipped; a nil collection is rejected.
func (r *Registry) Metadata(nodeTypes []any) (map[string]Entry, error) {
	if nodeTypes == nil {
		return nil, fmt.Errorf("node type collection must not be nil")
	}
	entries, err := r.Load()
	if err != nil {
		return nil, err
	}
	out := make(map[string]Entry)
	for _, t := range nodeTypes {
		name, ok := t.(string)
		if !ok {
			continue
		}
		if e, ok := entries[name]; ok {
			out[name] = e
		}
	}
	return out, nil
}

// OutputStructures flattens the declared outputs of each entry into a
// per-type key-to-structure map, shaped for workflow validation. A key
// maps to its port's nested Structure, or nil when the port declares
// none. Types without declared outputs are omitted, which disables the
// key check for them.
func OutputStructures(entries map[string]Entry) map[string]map[string]any {
	out := make(map[string]map[string]any, len(entries))
	for name, e := range entries {
		if len(e.Interface.Outputs) == 0 {
			continue
		}
		keys := make(map[string]any, len(e.Interface.Outputs))
		for _, p := range e.Interface.Outputs {
			if p.Key == "" {
				continue
			}
			var structure any
			if len(p.Structure) > 0 {
				structure = p.Structure
			}
			keys[p.Key] = structure
		}
		if len(keys) > 0 {
			out[name] = keys
		}
	}
	return out
}

// marshalSorted renders entries with stable key order and 2-space
// indentation. encoding/json already sorts map keys.
func marshalSorted(entries map[string]Entry) ([]byte, error) {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Names returns the node types in an entries mapping, sorted.
func Names(entries map[string]Entry) []string {
	out := make([]string, 0, len(entries))
	for name := range entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
