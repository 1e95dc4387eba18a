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
package registry

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// manifest is the on-disk shape of a node manifest file.
type manifest struct {
	Nodes []ScannedEntry `yaml:"nodes"`
}

// Scanner discovers node manifests (*.node.yaml or nodes.yaml) under a
// set of directories. Only the allow-listed roots are scanned; manifests
// reached through symlinks that escape a root are skipped.
type Scanner struct {
	roots  []string
	logger *zap.Logger
}

// NewScanner creates a scanner over the given directory roots.
func NewScanner(roots []string, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{roots: roots, logger: logger}
}

// Scan walks every root and collects the entries of all parseable
// manifests. Unreadable or malformed manifests are skipped with a
// warning; scanning an unchanged tree twice yields identical entries.
func (s *Scanner) Scan() ([]ScannedEntry, error) {
	var entries []ScannedEntry
	for _, root := range s.roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("resolve scan root %q: %w", root, err)
		}
		err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				s.logger.Warn("scan error, skipping", zap.String("path", path), zap.Error(err))
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() || !isManifest(d.Name()) {
				return nil
			}
			if !underRoot(abs, path) {
				s.logger.Warn("manifest outside scan root, skipping", zap.String("path", path))
				return nil
			}
			found, err := s.parseManifest(path)
			if err != nil {
				s.logger.Warn("malformed manifest, skipping", zap.String("path", path), zap.Error(err))
				return nil
			}
			entries = append(entries, found...)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func (s *Scanner) parseManifest(path string) ([]ScannedEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeManifest(data, path)
}

// DecodeManifest parses manifest bytes. source is recorded as the
// file_path of entries that declare none; it also serves embedded
// manifests that never touch disk.
func DecodeManifest(data []byte, source string) ([]ScannedEntry, error) {
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	for i := range m.Nodes {
		if m.Nodes[i].Kind == "" {
			m.Nodes[i].Kind = KindUser
		}
		if m.Nodes[i].FilePath == "" {
			m.Nodes[i].FilePath = source
		}
	}
	return m.Nodes, nil
}

func isManifest(name string) bool {
	return strings.HasSuffix(name, ".node.yaml") || name == "nodes.yaml"
}

// underRoot reports whether path stays inside root after resolving
// symlinks.
func underRoot(root, path string) bool {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return false
	}
	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(resolvedRoot, resolved)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}
