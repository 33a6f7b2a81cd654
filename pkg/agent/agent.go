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

// Package agent runs the tool-using conversation that turns a question into
// SQL, executes it through the tool executor and returns the model's answer.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/nl2sql/pkg/shuttle"
	"github.com/teradata-labs/nl2sql/pkg/types"
)

var (
	// ErrMaxTurns is returned when the model keeps calling tools past MaxTurns.
	ErrMaxTurns = errors.New("agent reached the maximum number of turns without a final answer")

	// ErrMaxToolExecutions is returned when a run exceeds MaxToolExecutions.
	ErrMaxToolExecutions = errors.New("agent reached the maximum number of tool executions")
)

// Config configures an Agent.
type Config struct {
	// Name identifies the agent in logs
	Name string

	// SystemPrompt defaults to SystemPrompt("")
	SystemPrompt string

	// MaxTurns caps model calls per run (default 8)
	MaxTurns int

	// MaxToolExecutions caps tool calls per run (default 16)
	MaxToolExecutions int

	Retry RetryConfig

	Logger *zap.Logger
}

// ToolExecution records one tool call made during a run.
type ToolExecution struct {
	ToolName string
	Input    map[string]interface{}
	Result   *shuttle.Result
	Error    error
	Duration time.Duration
}

// Response is the outcome of a run.
type Response struct {
	// Content is the model's final answer
	Content string

	// Usage is the provider-reported usage summed over turns
	Usage types.Usage

	ToolExecutions []ToolExecution

	Turns int

	// Messages is the full transcript, system prompt first
	Messages []types.Message
}

// ToolOutputs returns the text of every tool result, in call order.
func (r *Response) ToolOutputs() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.ToolExecutions))
	for _, exec := range r.ToolExecutions {
		if exec.Result != nil {
			out = append(out, exec.Result.Content())
		}
	}
	return out
}

// Agent drives an LLM provider against the tools in an executor's registry.
// An Agent holds no per-run state and may serve concurrent runs.
type Agent struct {
	llm      types.LLMProvider
	executor *shuttle.Executor
	config   Config
	logger   *zap.Logger
}

// New creates an agent.
func New(llm types.LLMProvider, executor *shuttle.Executor, cfg Config) *Agent {
	if cfg.Name == "" {
		cfg.Name = "nl2sql-agent"
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = SystemPrompt("")
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 8
	}
	if cfg.MaxToolExecutions <= 0 {
		cfg.MaxToolExecutions = 16
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Agent{
		llm:      llm,
		executor: executor,
		config:   cfg,
		logger:   cfg.Logger.With(zap.String("agent", cfg.Name)),
	}
}

// Config returns the effective configuration.
func (a *Agent) Config() Config {
	return a.config
}

// Run answers one question. Tool calls go through the executor with ctx, so
// observers attached with shuttle.WithObservers see every call. On failure
// the partial Response is returned alongside the error.
func (a *Agent) Run(ctx context.Context, question string) (*Response, error) {
	resp := &Response{
		Messages: []types.Message{
			{Role: types.RoleSystem, Content: a.config.SystemPrompt, Timestamp: time.Now()},
			{Role: types.RoleUser, Content: question, Timestamp: time.Now()},
		},
	}
	tools := a.executor.Registry().ListTools()
	executions := 0

	for resp.Turns < a.config.MaxTurns {
		if err := ctx.Err(); err != nil {
			return resp, fmt.Errorf("agent run cancelled: %w", err)
		}
		resp.Turns++

		llmResp, err := a.chatWithRetry(ctx, resp.Messages, tools)
		if err != nil {
			a.logger.Error("llm call failed", zap.Int("turn", resp.Turns), zap.Error(err))
			return resp, err
		}
		resp.Usage.Add(llmResp.Usage)

		if len(llmResp.ToolCalls) == 0 {
			resp.Content = llmResp.Content
			resp.Messages = append(resp.Messages, types.Message{
				Role:      types.RoleAssistant,
				Content:   llmResp.Content,
				Timestamp: time.Now(),
			})
			a.logger.Debug("agent run finished",
				zap.Int("turns", resp.Turns),
				zap.Int("tool_executions", executions))
			return resp, nil
		}

		resp.Messages = append(resp.Messages, types.Message{
			Role:      types.RoleAssistant,
			Content:   llmResp.Content,
			ToolCalls: llmResp.ToolCalls,
			Timestamp: time.Now(),
		})

		for _, call := range llmResp.ToolCalls {
			if executions >= a.config.MaxToolExecutions {
				return resp, ErrMaxToolExecutions
			}
			executions++
			resp.Messages = append(resp.Messages, a.executeTool(ctx, call, resp))
		}
	}

	a.logger.Warn("agent exceeded max turns", zap.Int("max_turns", a.config.MaxTurns))
	return resp, ErrMaxTurns
}

func (a *Agent) executeTool(ctx context.Context, call types.ToolCall, resp *Response) types.Message {
	start := time.Now()
	result, err := a.executor.Execute(ctx, call.Name, call.Input)
	if err != nil {
		result = &shuttle.Result{
			Success: false,
			Error: &shuttle.Error{
				Code:       "TOOL_NOT_FOUND",
				Message:    err.Error(),
				Suggestion: "Use one of the tools you were given",
			},
		}
	}
	duration := time.Since(start)

	a.logger.Debug("tool executed",
		zap.String("tool", call.Name),
		zap.Bool("success", result.Success),
		zap.Duration("duration", duration))

	resp.ToolExecutions = append(resp.ToolExecutions, ToolExecution{
		ToolName: call.Name,
		Input:    call.Input,
		Result:   result,
		Error:    err,
		Duration: duration,
	})
	return types.Message{
		Role:       types.RoleTool,
		Content:    result.Content(),
		ToolUseID:  call.ID,
		ToolName:   call.Name,
		ToolResult: result,
		Timestamp:  time.Now(),
	}
}
