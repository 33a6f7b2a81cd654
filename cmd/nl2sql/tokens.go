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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "Inspect token usage of a running server",
	Long: `Query the token accounting endpoints of a running nl2sql server.

Token statistics live in the server process, so these commands talk to it
over HTTP. Use --server when it is not listening on the configured address.`,
}

var tokensStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show session token statistics and pricing",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runTokensGet(cmd, "/tokens/stats")
	},
}

var tokensSuggestionsCmd = &cobra.Command{
	Use:   "suggestions",
	Short: "Show optimization suggestions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runTokensGet(cmd, "/tokens/suggestions")
	},
}

var tokensExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the token history",
	RunE:  runTokensExport,
}

var tokensResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset session token statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := newTokensClient(cmd)
		if err != nil {
			return err
		}
		body, err := client.do(cmd.Context(), http.MethodPost, "/tokens/reset")
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), body)
	},
}

func init() {
	tokensCmd.PersistentFlags().String("server", "", "Server base URL (default: from server.host and server.port)")
	tokensExportCmd.Flags().String("format", "json", "Export format (json, yaml)")
	tokensExportCmd.Flags().StringP("output", "o", "", "Write to this file instead of stdout")

	tokensCmd.AddCommand(tokensStatsCmd)
	tokensCmd.AddCommand(tokensSuggestionsCmd)
	tokensCmd.AddCommand(tokensExportCmd)
	tokensCmd.AddCommand(tokensResetCmd)
	rootCmd.AddCommand(tokensCmd)
}

func runTokensGet(cmd *cobra.Command, path string) error {
	client, err := newTokensClient(cmd)
	if err != nil {
		return err
	}
	body, err := client.do(cmd.Context(), http.MethodGet, path)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), body)
}

func runTokensExport(cmd *cobra.Command, _ []string) error {
	client, err := newTokensClient(cmd)
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")
	output, _ := cmd.Flags().GetString("output")

	body, err := client.do(cmd.Context(), http.MethodGet, "/tokens/export?format="+url.QueryEscape(format))
	if err != nil {
		return err
	}
	if output == "" {
		_, err = cmd.OutOrStdout().Write(body)
		return err
	}
	if err := os.WriteFile(output, body, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Token history written to %s\n", output)
	return nil
}

// tokensClient calls the /tokens endpoints of a running server.
type tokensClient struct {
	baseURL    string
	httpClient *http.Client
}

func newTokensClient(cmd *cobra.Command) (*tokensClient, error) {
	base, _ := cmd.Flags().GetString("server")
	if base == "" {
		base = defaultServerURL(cfg.Server.Host, cfg.Server.Port)
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", base, err)
	}
	return &tokensClient{
		baseURL:    strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// defaultServerURL turns a listen address into a URL a local client can dial.
func defaultServerURL(host string, port int) string {
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port))
}

func (c *tokensClient) do(ctx context.Context, method, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach nl2sql server at %s: %w", c.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Detail != "" {
			return nil, fmt.Errorf("server error (status %d): %s", resp.StatusCode, apiErr.Detail)
		}
		return nil, fmt.Errorf("server error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func printJSON(w io.Writer, body []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "  "); err != nil {
		_, err = w.Write(body)
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}
