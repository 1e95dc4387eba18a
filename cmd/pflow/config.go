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
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/teradata-labs/pflow/internal/log"
	pflowconfig "github.com/teradata-labs/pflow/pkg/config"
	"github.com/teradata-labs/pflow/pkg/registry"
)

// DefaultConfigFileName is the name of the config file
const DefaultConfigFileName = "pflow"

// settingsAPIKeyName is the settings-file entry holding the Anthropic key.
const settingsAPIKeyName = "anthropic_api_key"

// Config holds all configuration for the pflow CLI.
// Priority: CLI flags > config file > env vars > settings file > defaults
type Config struct {
	// DataDir is computed from PFLOW_DATA_DIR or ~/.pflow, never from
	// the config file: the config file is located through it.
	DataDir string `mapstructure:"-"`

	Registry  RegistryConfig  `mapstructure:"registry"`
	Workflows WorkflowsConfig `mapstructure:"workflows"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// RegistryConfig locates the node catalogue and the scan roots.
type RegistryConfig struct {
	Path     string   `mapstructure:"path"`
	NodeDirs []string `mapstructure:"node_dirs"`
}

// WorkflowsConfig locates the saved-workflow library.
type WorkflowsConfig struct {
	Dir string `mapstructure:"dir"`
}

// LLMConfig configures planner LLM calls.
type LLMConfig struct {
	AnthropicAPIKey string  `mapstructure:"anthropic_api_key"`
	Model           string  `mapstructure:"model"`
	MetadataModel   string  `mapstructure:"metadata_model"`
	Temperature     float64 `mapstructure:"temperature"`
	MaxTokens       int     `mapstructure:"max_tokens"`
}

// LoggingConfig configures CLI logging.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file, environment, and flags.
func LoadConfig(cfgFile string) (*Config, error) {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(pflowconfig.GetDataDir())
		viper.AddConfigPath(".")
		viper.SetConfigName(DefaultConfigFileName)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file %s: %w", viper.ConfigFileUsed(), err)
		}
		// Config file not found; using defaults + env vars + flags
	}

	viper.SetEnvPrefix("PFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.DataDir = pflowconfig.GetDataDir()
	if config.Registry.Path == "" {
		config.Registry.Path = pflowconfig.RegistryPath()
	}
	if len(config.Registry.NodeDirs) == 0 {
		config.Registry.NodeDirs = []string{pflowconfig.NodesDir()}
	}
	if config.Workflows.Dir == "" {
		config.Workflows.Dir = pflowconfig.WorkflowsDir()
	}

	loadSecrets(&config)
	return &config, nil
}

func setDefaults() {
	viper.SetDefault("llm.model", "claude-sonnet-4-5-20250929")
	viper.SetDefault("llm.max_tokens", 4096)
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
}

// loadSecrets fills the API key from the environment or the user-private
// settings file when flags and config left it empty. Non-fatal: the key
// is only needed for planner commands.
func loadSecrets(config *Config) {
	if config.LLM.AnthropicAPIKey != "" {
		return
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		config.LLM.AnthropicAPIKey = key
		return
	}
	settings := registry.NewSettings(pflowconfig.SettingsPath(), log.Named("settings"))
	values, err := settings.Load()
	if err != nil {
		return
	}
	config.LLM.AnthropicAPIKey = values[settingsAPIKeyName]
}
