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
package builtin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/nl2sql/pkg/fabric"
	"github.com/teradata-labs/nl2sql/pkg/shaper"
	"github.com/teradata-labs/nl2sql/pkg/shuttle"
)

// QueryToolName is the name the model calls run_sql_query by.
const QueryToolName = "run_sql_query"

// ErrMissingQuery is reported when the model calls run_sql_query without SQL.
var ErrMissingQuery = errors.New("query parameter is required")

// QueryToolConfig configures run_sql_query.
type QueryToolConfig struct {
	// Format is the shaper.FormatForLLM format of the rows shown to the
	// model (default compact)
	Format string

	Logger *zap.Logger
}

// QueryTool runs one read-only statement through the guardrails and the
// backend. Data is the *fabric.QueryResult; Metadata["query"] is the
// statement that actually ran.
type QueryTool struct {
	backend    fabric.ExecutionBackend
	guardrails *fabric.GuardrailEngine
	shaper     *shaper.Shaper
	format     string
	logger     *zap.Logger
}

// NewQueryTool creates a run_sql_query tool. A nil guardrail engine uses
// one with the default row cap.
func NewQueryTool(backend fabric.ExecutionBackend, guardrails *fabric.GuardrailEngine, sh *shaper.Shaper, cfg QueryToolConfig) *QueryTool {
	if guardrails == nil {
		guardrails = fabric.NewGuardrailEngine(fabric.DefaultMaxRows)
	}
	if sh == nil {
		sh = shaper.New(shaper.DefaultConfig())
	}
	if cfg.Format == "" {
		cfg.Format = shaper.FormatCompact
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &QueryTool{
		backend:    backend,
		guardrails: guardrails,
		shaper:     sh,
		format:     cfg.Format,
		logger:     cfg.Logger,
	}
}

func (t *QueryTool) Name() string {
	return QueryToolName
}

func (t *QueryTool) Description() string {
	return fmt.Sprintf(`Executes a single read-only SQL statement (SELECT, WITH or EXPLAIN) and
returns the rows.

Statements without a LIMIT are capped at %d rows. Aggregate in SQL
(COUNT, SUM, AVG, GROUP BY) instead of fetching raw rows when the question
asks for totals. On error the result explains how to fix the statement.`, t.guardrails.MaxRows())
}

func (t *QueryTool) InputSchema() *shuttle.JSONSchema {
	return shuttle.NewObjectSchema(
		"Parameters for SQL execution",
		map[string]*shuttle.JSONSchema{
			"query": shuttle.NewStringSchema("The SQL statement to execute (required)"),
		},
		[]string{"query"},
	)
}

func (t *QueryTool) Backend() string {
	return t.backend.Name()
}

func (t *QueryTool) Execute(ctx context.Context, params map[string]interface{}) (*shuttle.Result, error) {
	start := time.Now()
	sessionID := SessionIDFromContext(ctx)

	query, _ := params["query"].(string)
	query = strings.TrimSpace(query)
	if query == "" {
		return &shuttle.Result{
			Success: false,
			Error: &shuttle.Error{
				Code:       "INVALID_PARAMS",
				Message:    ErrMissingQuery.Error(),
				Suggestion: "Provide the SQL statement in the 'query' parameter",
			},
			ExecutionTimeMs: time.Since(start).Milliseconds(),
		}, nil
	}

	prepared, err := t.guardrails.Prepare(ctx, query)
	if err != nil {
		t.logger.Warn("query blocked by guardrails",
			zap.String("session_id", sessionID),
			zap.String("sql", query),
			zap.Error(err))
		return &shuttle.Result{
			Success: false,
			Error: &shuttle.Error{
				Code:       "read_only",
				Message:    err.Error(),
				Suggestion: "Only a single SELECT, WITH or EXPLAIN statement is allowed",
			},
			Metadata:        map[string]interface{}{"query": query},
			ExecutionTimeMs: time.Since(start).Milliseconds(),
		}, nil
	}
	for _, issue := range prepared.Issues {
		t.logger.Debug("query rewritten",
			zap.String("validator", issue.Validator),
			zap.String("issue", issue.Message))
	}

	t.logger.Info("executing query", zap.String("session_id", sessionID), zap.String("sql", prepared.SQL))
	res, err := t.backend.ExecuteQuery(ctx, prepared.SQL)
	if err != nil {
		correction := t.guardrails.HandleError(ctx, sessionID, prepared.SQL, err)
		t.logger.Warn("query failed",
			zap.String("session_id", sessionID),
			zap.String("sql", prepared.SQL),
			zap.String("error_type", correction.ErrorType),
			zap.Error(err))
		return &shuttle.Result{
			Success: false,
			Error: &shuttle.Error{
				Code:       correction.ErrorType,
				Message:    err.Error(),
				Retryable:  correction.ErrorType != "permission_denied",
				Suggestion: correction.Explanation,
			},
			Metadata:        map[string]interface{}{"query": prepared.SQL},
			ExecutionTimeMs: time.Since(start).Milliseconds(),
		}, nil
	}
	t.guardrails.ClearErrorRecord(sessionID)

	if res == nil {
		res = &fabric.QueryResult{}
	}
	if res.Rows == nil {
		res.Rows = []map[string]interface{}{}
	}
	res.Query = prepared.SQL
	res.Message = t.message(res, prepared)

	columns := res.ColumnNames()
	content := res.Message
	if len(res.Rows) > 0 {
		content += "\n\n" + t.shaper.FormatForLLM(res.Rows, columns, t.format)
	}

	return &shuttle.Result{
		Success:    true,
		Data:       res,
		LLMContent: content,
		Metadata: map[string]interface{}{
			"query":         prepared.SQL,
			"row_count":     res.RowCount,
			"truncated":     res.Truncated,
			"limit_applied": prepared.LimitApplied,
		},
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

func (t *QueryTool) message(res *fabric.QueryResult, prepared *fabric.PreparedQuery) string {
	if len(res.Columns) == 0 && len(res.Rows) == 0 {
		return "Query executed successfully (no results)."
	}
	msg := fmt.Sprintf("Query succeeded! Returned %d rows.", len(res.Rows))
	if res.Truncated || (prepared.LimitApplied && prepared.MaxRows > 0 && len(res.Rows) >= prepared.MaxRows) {
		res.Truncated = true
		msg += fmt.Sprintf(" (NOTE: Results were truncated to %d rows. If you need more specific data, refine your WHERE clause or aggregate.)",
			len(res.Rows))
	}
	return msg
}
