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
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/teradata-labs/nl2sql/pkg/backends/sqldb"
	"github.com/teradata-labs/nl2sql/pkg/shaper"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the database schema as the agent sees it",
	Long: `Print the schema text returned by the get_schema tool.

With --question the schema is trimmed for that question the same way it is
during a request.`,
	RunE: runSchema,
}

func init() {
	schemaCmd.Flags().StringP("question", "q", "", "Trim the schema for this question")
	schemaCmd.Flags().Bool("refresh", false, "Bypass the schema cache")
	rootCmd.AddCommand(schemaCmd)
}

func runSchema(cmd *cobra.Command, _ []string) error {
	if err := cfg.ValidateDatabase(); err != nil {
		return err
	}
	backend, err := sqldb.New(cmd.Context(), cfg.BackendConfig(logger))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = backend.Close() }()

	question, _ := cmd.Flags().GetString("question")
	refresh, _ := cmd.Flags().GetBool("refresh")
	return printSchema(cmd.Context(), cmd.OutOrStdout(), backend, shaper.New(cfg.ShaperConfig()), question, cfg.Database.MaxTables, refresh)
}

func printSchema(ctx context.Context, w io.Writer, backend *sqldb.Backend, sh *shaper.Shaper, question string, maxTables int, refresh bool) error {
	schema, err := backend.LoadSchema(ctx, refresh)
	if err != nil {
		return err
	}
	if question != "" {
		schema = sh.OptimizeSchema(schema, question, maxTables)
	}
	_, err = fmt.Fprintln(w, shaper.RenderSchema(schema))
	return err
}
