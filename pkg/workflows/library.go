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
// Package workflows stores the saved-workflow library: one markdown file
// per workflow with YAML front-matter metadata, the IR in a fenced yaml
// block, and an optional "## Usage" section.
package workflows

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/teradata-labs/pflow/pkg/ir"
)

// Metadata is the front-matter of a saved workflow.
type Metadata struct {
	Name            string   `yaml:"name" json:"suggested_name"`
	Description     string   `yaml:"description,omitempty" json:"description,omitempty"`
	SearchKeywords  []string `yaml:"search_keywords,omitempty" json:"search_keywords,omitempty"`
	Capabilities    []string `yaml:"capabilities,omitempty" json:"capabilities,omitempty"`
	TypicalUseCases []string `yaml:"typical_use_cases,omitempty" json:"typical_use_cases,omitempty"`
}

// Workflow is one loaded library entry.
type Workflow struct {
	Metadata Metadata
	Doc      *ir.Document
	Usage    string
	Path     string
}

// Library reads and writes the workflow directory.
type Library struct {
	dir    string
	logger *zap.Logger
}

// NewLibrary creates a library over a directory.
func NewLibrary(dir string, logger *zap.Logger) *Library {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Library{dir: dir, logger: logger}
}

// Dir returns the library directory.
func (l *Library) Dir() string { return l.dir }

// List returns the metadata of every parseable workflow, sorted by name.
// Malformed files are skipped with a warning.
func (l *Library) List() ([]Metadata, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read workflow directory: %w", err)
	}
	var out []Metadata
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		wf, err := l.load(filepath.Join(l.dir, e.Name()))
		if err != nil {
			l.logger.Warn("skipping malformed workflow file",
				zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		out = append(out, wf.Metadata)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Load reads one workflow by name.
func (l *Library) Load(name string) (*Workflow, error) {
	slug := Slug(name)
	if slug == "" {
		return nil, fmt.Errorf("invalid workflow name %q", name)
	}
	return l.load(filepath.Join(l.dir, slug+".md"))
}

// Exists reports whether a workflow with the given name is on disk.
func (l *Library) Exists(name string) bool {
	slug := Slug(name)
	if slug == "" {
		return false
	}
	_, err := os.Stat(filepath.Join(l.dir, slug+".md"))
	return err == nil
}

// Save writes a workflow to the library and returns its path. An
// existing file with the same name is replaced.
func (l *Library) Save(meta Metadata, doc *ir.Document, usage string) (string, error) {
	slug := Slug(meta.Name)
	if slug == "" {
		return "", fmt.Errorf("invalid workflow name %q", meta.Name)
	}
	if err := os.MkdirAll(l.dir, 0o750); err != nil {
		return "", fmt.Errorf("create workflow directory: %w", err)
	}

	content, err := render(meta, doc, usage)
	if err != nil {
		return "", err
	}
	path := filepath.Join(l.dir, slug+".md")
	if err := os.WriteFile(path, []byte(content), 0o640); err != nil {
		return "", fmt.Errorf("write workflow: %w", err)
	}
	return path, nil
}

// EnrichUsage replaces the workflow's "## Usage" section, appending one
// when absent. Re-enriching replaces and never duplicates the section.
func (l *Library) EnrichUsage(name, usage string) error {
	wf, err := l.Load(name)
	if err != nil {
		return err
	}
	wf.Usage = strings.TrimSpace(usage)
	_, err = l.Save(wf.Metadata, wf.Doc, wf.Usage)
	return err
}

// DeleteDraft removes a draft workflow file, refusing any path that
// resolves outside the library directory. Returns whether the file was
// deleted; refusals are outcomes, not errors, so callers can continue.
func (l *Library) DeleteDraft(path string) bool {
	absDir, err := filepath.Abs(l.dir)
	if err != nil {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
		l.logger.Warn("refusing to delete file outside workflow directory",
			zap.String("path", path))
		return false
	}
	if err := os.Remove(abs); err != nil {
		l.logger.Warn("failed to delete draft", zap.String("path", path), zap.Error(err))
		return false
	}
	return true
}

var (
	frontMatterRe = regexp.MustCompile(`(?s)\A---\n(.*?)\n---\n`)
	yamlFenceRe   = regexp.MustCompile("(?s)```yaml\n(.*?)```")
	usageRe       = regexp.MustCompile(`(?s)## Usage\n(.*?)(\n## |\z)`)
	slugRe        = regexp.MustCompile(`[^a-z0-9]+`)
)

func (l *Library) load(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow: %w", err)
	}
	content := string(data)

	fm := frontMatterRe.FindStringSubmatch(content)
	if fm == nil {
		return nil, fmt.Errorf("workflow file %s has no front-matter", filepath.Base(path))
	}
	var meta Metadata
	if err := yaml.Unmarshal([]byte(fm[1]), &meta); err != nil {
		return nil, fmt.Errorf("parse front-matter: %w", err)
	}
	if meta.Name == "" {
		meta.Name = strings.TrimSuffix(filepath.Base(path), ".md")
	}

	fence := yamlFenceRe.FindStringSubmatch(content)
	if fence == nil {
		return nil, fmt.Errorf("workflow file %s has no yaml block", filepath.Base(path))
	}
	doc, err := ir.Parse([]byte(fence[1]))
	if err != nil {
		return nil, err
	}

	usage := ""
	if m := usageRe.FindStringSubmatch(content); m != nil {
		usage = strings.TrimSpace(m[1])
	}

	return &Workflow{Metadata: meta, Doc: doc, Usage: usage, Path: path}, nil
}

func render(meta Metadata, doc *ir.Document, usage string) (string, error) {
	fm, err := yaml.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encode front-matter: %w", err)
	}
	body, err := doc.Marshal()
	if err != nil {
		return "", fmt.Errorf("encode workflow: %w", err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(fm)
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "# %s\n\n", meta.Name)
	if meta.Description != "" {
		b.WriteString(meta.Description + "\n\n")
	}
	b.WriteString("## Workflow\n\n```yaml\n")
	b.Write(body)
	b.WriteString("```\n")
	if usage != "" {
		b.WriteString("\n## Usage\n\n" + strings.TrimSpace(usage) + "\n")
	}
	return b.String(), nil
}

// Slug normalises a workflow name into a file-safe identifier.
func Slug(name string) string {
	s := slugRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	return strings.Trim(s, "-")
}
