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
package server

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/nl2sql/pkg/agent"
	"github.com/teradata-labs/nl2sql/pkg/recorder"
	"github.com/teradata-labs/nl2sql/pkg/response"
	"github.com/teradata-labs/nl2sql/pkg/shuttle"
	"github.com/teradata-labs/nl2sql/pkg/shuttle/builtin"
	"github.com/teradata-labs/nl2sql/pkg/tokens"
)

// ServiceConfig configures a Service.
type ServiceConfig struct {
	// IncludeSQLDefault applies when a request omits include_sql (default true)
	IncludeSQLDefault *bool

	// RequestTimeout bounds one question (0 = none)
	RequestTimeout time.Duration

	// QueryToolName is the tool whose calls are recorded
	QueryToolName string

	// SchemaToolName is the tool whose output counts as schema tokens
	SchemaToolName string

	Logger *zap.Logger
}

// Service answers questions: it runs the agent with a fresh recorder attached
// to the request context, accounts tokens and assembles the response.
// A Service is safe for concurrent use.
type Service struct {
	agent      *agent.Agent
	model      string
	assembler  *response.Assembler
	accountant *tokens.Accountant
	config     ServiceConfig
	logger     *zap.Logger
}

// NewService wires the request pipeline.
func NewService(ag *agent.Agent, model string, assembler *response.Assembler, accountant *tokens.Accountant, cfg ServiceConfig) *Service {
	if cfg.QueryToolName == "" {
		cfg.QueryToolName = builtin.QueryToolName
	}
	if cfg.SchemaToolName == "" {
		cfg.SchemaToolName = builtin.SchemaToolName
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Service{
		agent:      ag,
		model:      model,
		assembler:  assembler,
		accountant: accountant,
		config:     cfg,
		logger:     cfg.Logger,
	}
}

// Accountant returns the session token ledger.
func (s *Service) Accountant() *tokens.Accountant {
	return s.accountant
}

// Ask answers one question. Only an invalid request returns an error; agent
// and execution failures are reported inside the response.
func (s *Service) Ask(ctx context.Context, req response.AskRequest, requestID string) (*response.AgentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}
	question := strings.TrimSpace(req.Question)
	logger := s.logger.With(zap.String("request_id", requestID))
	start := time.Now()

	if s.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RequestTimeout)
		defer cancel()
	}

	rec := recorder.New(s.config.QueryToolName)
	rec.SetLogger(logger)
	rec.Begin()

	ctx = shuttle.WithObservers(ctx, rec)
	ctx = builtin.WithQuestion(ctx, question)
	ctx = builtin.WithSessionID(ctx, requestID)

	logger.Info("question received", zap.String("question", question))
	run, runErr := s.agent.Run(ctx, question)
	if runErr != nil {
		logger.Error("agent run failed", zap.Error(runErr))
	}

	usage := s.recordUsage(question, run)

	var answer string
	if run != nil {
		answer = run.Content
	}
	if runErr != nil && errors.Is(runErr, context.DeadlineExceeded) {
		runErr = errors.New("request timed out")
	}

	resp := s.assembler.Assemble(response.Input{
		Question:       question,
		Answer:         answer,
		Record:         rec.Drain(),
		AgentErr:       runErr,
		IncludeSQL:     s.includeSQL(req),
		FormatResponse: req.WantsFormatting(),
		RequestID:      requestID,
		Elapsed:        time.Since(start),
		Usage:          usage,
	})

	if run != nil {
		resp.Metadata["agent_turns"] = run.Turns
		resp.Metadata["tool_calls"] = len(run.ToolExecutions)
		if run.Usage.TotalTokens > 0 {
			resp.Metadata["llm_usage"] = map[string]interface{}{
				"input_tokens":  run.Usage.InputTokens,
				"output_tokens": run.Usage.OutputTokens,
				"total_tokens":  run.Usage.TotalTokens,
				"cost_usd":      run.Usage.CostUSD,
			}
		}
	}

	logger.Info("question answered",
		zap.Bool("success", resp.Success),
		zap.String("visualization", string(resp.Visualization)),
		zap.Int("row_count", resp.RowCount),
		zap.Duration("elapsed", time.Since(start)),
	)
	return resp, nil
}

func (s *Service) includeSQL(req response.AskRequest) bool {
	if req.IncludeSQL != nil {
		return *req.IncludeSQL
	}
	if s.config.IncludeSQLDefault != nil {
		return *s.config.IncludeSQLDefault
	}
	return true
}

// recordUsage estimates the request's tokens from the transcript. It never
// fails the request.
func (s *Service) recordUsage(question string, run *agent.Response) *tokens.Usage {
	if s.accountant == nil {
		return nil
	}

	c := tokens.Components{
		SystemPrompt: s.agent.Config().SystemPrompt,
		Question:     question,
		Model:        s.model,
	}
	if run != nil {
		var schema []string
		for _, exec := range run.ToolExecutions {
			if exec.Result == nil {
				continue
			}
			if exec.ToolName == s.config.SchemaToolName {
				schema = append(schema, exec.Result.Content())
				continue
			}
			c.ToolOutputs = append(c.ToolOutputs, exec.Result.Content())
		}
		c.Schema = strings.Join(schema, "\n")
		c.ModelResponse = run.Content
	}

	usage := s.accountant.RecordRequest(c)
	return &usage
}
