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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Settings stores user-scoped key-value settings next to the registry.
// Values may be secrets (API keys), so the file is written 0600 and a
// looser mode on an existing non-empty file is flagged at load.
type Settings struct {
	path   string
	logger *zap.Logger
}

// NewSettings creates a settings store over the given file path.
func NewSettings(path string, logger *zap.Logger) *Settings {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Settings{path: path, logger: logger}
}

// Load reads all settings. Missing file yields an empty mapping;
// malformed content yields an empty mapping with a warning. When the
// file holds any entries, permissions looser than 0600 produce a
// warning.
func (s *Settings) Load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read settings: %w", err)
	}
	var values map[string]string
	if err := json.Unmarshal(data, &values); err != nil {
		s.logger.Warn("settings file corrupt, starting empty",
			zap.String("path", s.path), zap.Error(err))
		return map[string]string{}, nil
	}
	if values == nil {
		values = map[string]string{}
	}
	if len(values) > 0 {
		s.checkPermissions()
	}
	return values, nil
}

// Save writes all settings atomically with owner-only permissions.
func (s *Settings) Save(values map[string]string) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}

	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, ".settings-*.json")
	if err != nil {
		return fmt.Errorf("create temp settings file: %w", err)
	}
	tmpName := tmp.Name()
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("restrict settings permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp settings file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp settings file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace settings file: %w", err)
	}
	return nil
}

func (s *Settings) checkPermissions() {
	info, err := os.Stat(s.path)
	if err != nil {
		return
	}
	if mode := info.Mode().Perm(); mode&0o077 != 0 {
		s.logger.Warn("settings file is readable by other users; run chmod 600",
			zap.String("path", s.path),
			zap.String("mode", fmt.Sprintf("%04o", mode)))
	}
}
