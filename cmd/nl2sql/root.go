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
	"go.uber.org/zap"

	"github.com/teradata-labs/nl2sql/internal/log"
	"github.com/teradata-labs/nl2sql/internal/version"
	"github.com/teradata-labs/nl2sql/pkg/config"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "nl2sql",
	Short: "NL2SQL agent - natural language questions over SQL databases",
	Long: `nl2sql answers natural language questions about a relational database.
An LLM agent inspects the schema, writes read-only SQL and the results come
back shaped for display with a suggested visualization.`,
	Version:           version.Get(),
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./nl2sql.yaml or $NL2SQL_DATA_DIR/nl2sql.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "Log format (text, json)")
}

// initConfig loads configuration, applies flag overrides and configures
// the process logger.
func initConfig(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if v := stringFlag(cmd, "log-level"); v != "" {
		loaded.Logging.Level = v
	}
	if v := stringFlag(cmd, "log-format"); v != "" {
		loaded.Logging.Format = v
	}

	l, err := log.Configure(log.Options{
		Level:  loaded.Logging.Level,
		Format: loaded.Logging.Format,
		File:   loaded.Logging.File,
	})
	if err != nil {
		return err
	}

	cfg = loaded
	logger = l
	if cfg.ConfigFile != "" {
		logger.Debug("Loaded configuration", zap.String("file", cfg.ConfigFile))
	}
	return nil
}

// stringFlag returns the value of a flag the user set explicitly.
func stringFlag(cmd *cobra.Command, name string) string {
	f := cmd.Flags().Lookup(name)
	if f == nil || !f.Changed {
		return ""
	}
	return f.Value.String()
}
