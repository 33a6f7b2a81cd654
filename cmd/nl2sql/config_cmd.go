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
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teradata-labs/nl2sql/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage nl2sql configuration",
	Long:  `Generate, inspect and validate nl2sql configuration.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate example configuration file",
	Long:  `Generate an example nl2sql.yaml in $NL2SQL_DATA_DIR (default ~/.nl2sql).`,
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration (merged from all sources). Secrets are masked.`,
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the current configuration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		source := cfg.ConfigFile
		if source == "" {
			source = "defaults and environment"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid (%s)\n", source)
		return nil
	},
}

func init() {
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")
	configInitCmd.Flags().StringP("output", "o", "", "Write to this path instead of the data directory")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("output")
	if path == "" {
		path = filepath.Join(config.DataDir(), config.DefaultConfigFileName+".yaml")
	}
	force, _ := cmd.Flags().GetBool("force")

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	content, err := config.ExampleYAML()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config file created: %s\n", path)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "1. Set GEMINI_API_KEY (or llm.gemini_api_key)")
	fmt.Fprintln(out, "2. Point the database section at your database")
	fmt.Fprintln(out, "3. Start the server:")
	fmt.Fprintln(out, "   nl2sql serve --preflight")
	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	shown := *cfg
	shown.LLM.GeminiAPIKey = mask(shown.LLM.GeminiAPIKey)
	shown.Database.Password = mask(shown.Database.Password)
	if shown.Database.DSN != "" {
		shown.Database.DSN = "********"
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	defer func() { _ = enc.Close() }()
	return enc.Encode(shown)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "********"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}
