// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package config

import (
	"os"
	"path/filepath"
	"strings"
)

// GetDataDir returns the pflow data directory.
//
// Priority:
// 1. PFLOW_DATA_DIR environment variable (if set and non-empty)
// 2. ~/.pflow (default)
//
// The returned path is always absolute. Tilde (~) in PFLOW_DATA_DIR is
// expanded to the user's home directory; relative paths are made
// absolute.
//
// This function reads directly from os.Getenv(), not from viper, because
// it is needed during bootstrap to locate the config file itself.
func GetDataDir() string {
	if dataDir := os.Getenv("PFLOW_DATA_DIR"); dataDir != "" {
		return expandPath(dataDir)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home dir cannot be determined
		return ".pflow"
	}
	return filepath.Join(homeDir, ".pflow")
}

// GetSubDir returns a subdirectory within the pflow data directory.
// Example: GetSubDir("workflows") returns ~/.pflow/workflows
func GetSubDir(subdir string) string {
	return filepath.Join(GetDataDir(), subdir)
}

// RegistryPath returns the default node-registry file location.
func RegistryPath() string {
	return filepath.Join(GetDataDir(), "registry.json")
}

// SettingsPath returns the default settings file location. The file may
// carry secrets and is kept user-private.
func SettingsPath() string {
	return filepath.Join(GetDataDir(), "settings.json")
}

// WorkflowsDir returns the saved-workflow library directory.
func WorkflowsDir() string {
	return GetSubDir("workflows")
}

// NodesDir returns the default scan root for user node manifests.
func NodesDir() string {
	return GetSubDir("nodes")
}

// expandPath expands ~ and resolves to absolute path
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path // Return as-is if we can't get home dir
		}
		return filepath.Join(homeDir, path[2:])
	}

	// Make path absolute
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path // Return as-is if we can't make it absolute
	}
	return absPath
}
