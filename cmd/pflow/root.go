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

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/teradata-labs/pflow/internal/log"
	"github.com/teradata-labs/pflow/internal/version"
)

var (
	cfgFile string
	config  *Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:     "pflow",
	Short:   "pflow - declarative workflow runtime",
	Long: `pflow compiles and runs declarative workflows: typed DAGs of nodes
with parameter templates, per-item retries, and bounded batch
parallelism. When no saved workflow fits, the planner generates one
from a natural-language request.`,
	Version: version.Get(),
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $PFLOW_DATA_DIR/pflow.yaml)")

	// Storage flags
	rootCmd.PersistentFlags().String("registry", "", "node registry file path")
	rootCmd.PersistentFlags().String("workflows-dir", "", "saved-workflow library directory")

	// LLM flags
	rootCmd.PersistentFlags().String("anthropic-key", "", "Anthropic API key (or use env/settings file)")
	rootCmd.PersistentFlags().String("model", "claude-sonnet-4-5-20250929", "model for planner calls")
	rootCmd.PersistentFlags().String("metadata-model", "", "cheaper model for workflow metadata (defaults to --model)")
	rootCmd.PersistentFlags().Float64("temperature", 0.0, "LLM temperature")
	rootCmd.PersistentFlags().Int("max-tokens", 4096, "maximum tokens per LLM request")

	// Logging flags
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")

	// Bind flags to viper
	_ = viper.BindPFlag("registry.path", rootCmd.PersistentFlags().Lookup("registry"))
	_ = viper.BindPFlag("workflows.dir", rootCmd.PersistentFlags().Lookup("workflows-dir"))

	_ = viper.BindPFlag("llm.anthropic_api_key", rootCmd.PersistentFlags().Lookup("anthropic-key"))
	_ = viper.BindPFlag("llm.model", rootCmd.PersistentFlags().Lookup("model"))
	_ = viper.BindPFlag("llm.metadata_model", rootCmd.PersistentFlags().Lookup("metadata-model"))
	_ = viper.BindPFlag("llm.temperature", rootCmd.PersistentFlags().Lookup("temperature"))
	_ = viper.BindPFlag("llm.max_tokens", rootCmd.PersistentFlags().Lookup("max-tokens"))

	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	var err error
	config, err = LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	configureLogging(config.Logging)
}

func configureLogging(cfg LoggingConfig) {
	if cfg.Format == "json" {
		log.UseProduction()
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		log.Warn("unknown log level, keeping default", zap.String("level", cfg.Level))
		return
	}
	log.SetLogger(log.Logger().WithOptions(zap.IncreaseLevel(level)))
}
