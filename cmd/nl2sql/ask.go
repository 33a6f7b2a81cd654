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
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teradata-labs/nl2sql/pkg/response"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer one question and print the response",
	Long: `Run the agent once against the configured database and print the
assembled response.

Examples:
  nl2sql ask "¿Cuántos clientes hay?"
  nl2sql ask -q "ventas por mes" --format yaml --no-sql`,
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringP("question", "q", "", "Question to ask")
	askCmd.Flags().String("format", "json", "Output format (json, yaml)")
	askCmd.Flags().Bool("no-sql", false, "Omit the executed SQL from the response")
	askCmd.Flags().Bool("raw", false, "Return the captured rows without shaping or visualization")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	question, _ := cmd.Flags().GetString("question")
	if question == "" {
		question = strings.Join(args, " ")
	}
	if strings.TrimSpace(question) == "" {
		return fmt.Errorf("a question is required (pass it as an argument or with -q)")
	}
	format, _ := cmd.Flags().GetString("format")
	noSQL, _ := cmd.Flags().GetBool("no-sql")
	raw, _ := cmd.Flags().GetBool("raw")

	app, err := newApplication(cmd.Context(), cfg, logger, nil)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	return ask(cmd, app, buildAskRequest(question, noSQL, raw), format)
}

func buildAskRequest(question string, noSQL, raw bool) response.AskRequest {
	req := response.AskRequest{Question: question}
	if noSQL {
		include := false
		req.IncludeSQL = &include
	}
	if raw {
		formatted := false
		req.FormatResponse = &formatted
	}
	return req
}

func ask(cmd *cobra.Command, app *application, req response.AskRequest, format string) error {
	resp, err := app.service.Ask(cmd.Context(), req, "")
	if err != nil {
		return err
	}
	return writeFormatted(cmd.OutOrStdout(), resp, format)
}

// writeFormatted prints v as indented JSON or YAML.
func writeFormatted(w io.Writer, v interface{}, format string) error {
	switch strings.ToLower(format) {
	case "", "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer func() { _ = enc.Close() }()
		return enc.Encode(v)
	default:
		return fmt.Errorf("unsupported format %q (use json or yaml)", format)
	}
}
