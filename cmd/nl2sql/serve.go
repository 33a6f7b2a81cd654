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
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teradata-labs/nl2sql/pkg/server"
	"github.com/teradata-labs/nl2sql/pkg/tokens"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API (POST /ask, GET /health and the /tokens endpoints).

When tokens.schedule.cron is set, token usage is also exported on that
schedule. The server shuts down gracefully on SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("host", "", "Listen host (overrides server.host)")
	serveCmd.Flags().Int("port", 0, "Listen port (overrides server.port)")
	serveCmd.Flags().Bool("preflight", false, "Check the database and the LLM provider before serving")
	serveCmd.Flags().Bool("export-on-exit", false, "Write the token report to tokens.export_path on shutdown")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if v := stringFlag(cmd, "host"); v != "" {
		cfg.Server.Host = v
	}
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Server.Port = port
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	if preflight, _ := cmd.Flags().GetBool("preflight"); preflight {
		if err := server.Preflight(ctx, app.provider, app.backend); err != nil {
			return err
		}
		logger.Info("Preflight checks passed")
	}

	logger.Info("Starting nl2sql server",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("environment", cfg.Server.Environment))

	var sched *tokens.ExportScheduler
	if cfg.Tokens.Schedule.Cron != "" {
		if sched, err = tokens.NewExportScheduler(app.accountant, cfg.ExportScheduleConfig(logger)); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.httpServer().Start(gctx)
	})
	if sched != nil {
		g.Go(func() error {
			return sched.Run(gctx)
		})
	}
	err = g.Wait()

	if export, _ := cmd.Flags().GetBool("export-on-exit"); export {
		exportUsage(app.accountant, cfg.Tokens.ExportPath)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Shutdown complete")
	return nil
}

func exportUsage(acc *tokens.Accountant, path string) {
	written, err := acc.ExportToFile(path)
	if err != nil {
		logger.Warn("Failed to export token usage", zap.Error(err))
		return
	}
	logger.Info("Token usage exported", zap.String("path", written))
}
