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

	"go.uber.org/zap"

	"github.com/teradata-labs/nl2sql/pkg/agent"
	"github.com/teradata-labs/nl2sql/pkg/backends/sqldb"
	"github.com/teradata-labs/nl2sql/pkg/config"
	"github.com/teradata-labs/nl2sql/pkg/fabric"
	"github.com/teradata-labs/nl2sql/pkg/llm"
	"github.com/teradata-labs/nl2sql/pkg/llm/gemini"
	"github.com/teradata-labs/nl2sql/pkg/response"
	"github.com/teradata-labs/nl2sql/pkg/server"
	"github.com/teradata-labs/nl2sql/pkg/shaper"
	"github.com/teradata-labs/nl2sql/pkg/shuttle"
	"github.com/teradata-labs/nl2sql/pkg/shuttle/builtin"
	"github.com/teradata-labs/nl2sql/pkg/tokens"
	"github.com/teradata-labs/nl2sql/pkg/types"
	"github.com/teradata-labs/nl2sql/pkg/visualization"
)

// application is the wired request pipeline shared by serve and ask.
type application struct {
	config     *config.Config
	logger     *zap.Logger
	backend    *sqldb.Backend
	provider   types.LLMProvider
	accountant *tokens.Accountant
	service    *server.Service
}

// newApplication opens the backend and builds the pipeline. When provider
// is nil the configured LLM provider is created.
func newApplication(ctx context.Context, cfg *config.Config, logger *zap.Logger, provider types.LLMProvider) (*application, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.ValidateDatabase(); err != nil {
		return nil, err
	}
	if provider == nil {
		if err := cfg.ValidateLLM(); err != nil {
			return nil, err
		}
		provider = newProvider(cfg, logger)
	}

	backend, err := sqldb.New(ctx, cfg.BackendConfig(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	var exec fabric.ExecutionBackend = backend
	if cfg.Database.CircuitBreaker.Enabled {
		exec = fabric.NewBreakerBackend(backend, cfg.BreakerConfig(logger))
	}

	sh := shaper.New(cfg.ShaperConfig())
	registry := shuttle.NewRegistry()
	builtin.RegisterAll(registry, exec, fabric.NewGuardrailEngine(cfg.Database.MaxRows), sh, builtin.Options{
		MaxTables: cfg.Database.MaxTables,
		Query: builtin.QueryToolConfig{
			Format: cfg.Shaper.LLMFormat,
			Logger: logger,
		},
	})

	ag := agent.New(provider, shuttle.NewExecutor(registry), agent.Config{
		SystemPrompt:      agent.SystemPrompt(backend.Name()),
		MaxTurns:          cfg.LLM.MaxTurns,
		MaxToolExecutions: cfg.LLM.MaxToolExecutions,
		Retry:             agent.DefaultRetryConfig(),
		Logger:            logger,
	})

	accountant := tokens.NewAccountant(cfg.AccountantConfig(logger))
	classifier := visualization.NewClassifier(cfg.ClassifierConfig(logger))
	assembler := response.NewAssembler(sh, classifier, logger)

	includeSQL := cfg.Server.IncludeSQLDefault
	service := server.NewService(ag, provider.Model(), assembler, accountant, server.ServiceConfig{
		IncludeSQLDefault: &includeSQL,
		RequestTimeout:    cfg.Server.RequestTimeout,
		Logger:            logger,
	})

	logger.Info("Pipeline ready",
		zap.String("backend", backend.Name()),
		zap.Bool("circuit_breaker", cfg.Database.CircuitBreaker.Enabled),
		zap.String("provider", provider.Name()),
		zap.String("model", provider.Model()),
		zap.Strings("tools", registry.List()))

	return &application{
		config:     cfg,
		logger:     logger,
		backend:    backend,
		provider:   provider,
		accountant: accountant,
		service:    service,
	}, nil
}

// newProvider creates the configured hosted LLM client.
func newProvider(cfg *config.Config, logger *zap.Logger) types.LLMProvider {
	limiter := llm.NewRateLimiter(cfg.RateLimiterConfig(logger))
	return gemini.NewClient(gemini.Config{
		APIKey:      cfg.LLM.GeminiAPIKey,
		Model:       cfg.LLM.GeminiModel,
		BaseURL:     cfg.LLM.GeminiBaseURL,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
		RateLimiter: limiter,
		Logger:      logger,
	})
}

// httpServer wraps the service in the HTTP transport.
func (a *application) httpServer() *server.HTTPServer {
	cors := a.config.Server.CORS
	return server.NewHTTPServer(a.service, server.Config{
		Addr: a.config.Server.Addr(),
		CORS: server.CORSConfig{
			Enabled:        cors.Enabled,
			AllowedOrigins: cors.AllowedOrigins,
			AllowedMethods: cors.AllowedMethods,
			AllowedHeaders: cors.AllowedHeaders,
			MaxAge:         cors.MaxAge,
		},
		ShutdownTimeout: a.config.Server.ShutdownTimeout,
		Logger:          a.logger,
	})
}

func (a *application) Close() error {
	return a.backend.Close()
}
