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
package workflows

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/pflow/pkg/ir"
)

func sampleDoc(t *testing.T) *ir.Document {
	t.Helper()
	doc, err := ir.Parse([]byte(`
ir_version: "0.1.0"
inputs:
  input_file:
    type: string
    required: true
nodes:
  - id: convert
    type: echo
    params:
      value: "${input_file}"
`))
	require.NoError(t, err)
	return doc
}

func TestSaveLoadRoundTrip(t *testing.T) {
	lib := NewLibrary(t.TempDir(), nil)
	meta := Metadata{
		Name:           "csv-to-json",
		Description:    "Convert CSV files to JSON",
		SearchKeywords: []string{"csv", "json", "convert"},
	}

	path, err := lib.Save(meta, sampleDoc(t), "pflow run csv-to-json --input-file data.csv")
	require.NoError(t, err)
	assert.Equal(t, "csv-to-json.md", filepath.Base(path))

	wf, err := lib.Load("csv-to-json")
	require.NoError(t, err)
	assert.Equal(t, meta, wf.Metadata)
	assert.Equal(t, "convert", wf.Doc.Nodes[0].ID)
	assert.Contains(t, wf.Usage, "pflow run csv-to-json")
	assert.True(t, lib.Exists("csv-to-json"))
	assert.False(t, lib.Exists("never-saved"))
}

func TestListSkipsMalformed(t *testing.T) {
	dir := t.TempDir()
	lib := NewLibrary(dir, nil)
	_, err := lib.Save(Metadata{Name: "good"}, sampleDoc(t), "")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.md"), []byte("no front matter"), 0o640))

	list, err := lib.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "good", list[0].Name)
}

func TestEnrichUsageReplacesSection(t *testing.T) {
	lib := NewLibrary(t.TempDir(), nil)
	_, err := lib.Save(Metadata{Name: "wf"}, sampleDoc(t), "old usage text")
	require.NoError(t, err)

	require.NoError(t, lib.EnrichUsage("wf", "new usage text"))
	require.NoError(t, lib.EnrichUsage("wf", "final usage text"))

	wf, err := lib.Load("wf")
	require.NoError(t, err)
	assert.Equal(t, "final usage text", wf.Usage)

	// Never duplicated.
	raw, err := os.ReadFile(wf.Path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(raw), "## Usage"))
	assert.NotContains(t, string(raw), "old usage text")
}

func TestDeleteDraftSafety(t *testing.T) {
	dir := t.TempDir()
	lib := NewLibrary(dir, nil)
	path, err := lib.Save(Metadata{Name: "draft"}, sampleDoc(t), "")
	require.NoError(t, err)

	outside := filepath.Join(t.TempDir(), "precious.md")
	require.NoError(t, os.WriteFile(outside, []byte("keep me"), 0o640))

	assert.False(t, lib.DeleteDraft(outside))
	_, statErr := os.Stat(outside)
	assert.NoError(t, statErr)

	assert.False(t, lib.DeleteDraft(filepath.Join(dir, "..", "escape.md")))

	assert.True(t, lib.DeleteDraft(path))
	_, statErr = os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "csv-to-json", Slug("CSV to JSON!"))
	assert.Equal(t, "a-b", Slug("  a---b  "))
	assert.Equal(t, "", Slug("???"))
}

func TestListMissingDirectory(t *testing.T) {
	lib := NewLibrary(filepath.Join(t.TempDir(), "nope"), nil)
	list, err := lib.List()
	require.NoError(t, err)
	assert.Empty(t, list)
}
