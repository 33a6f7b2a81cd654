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
package response

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/nl2sql/pkg/fabric"
	"github.com/teradata-labs/nl2sql/pkg/recorder"
	"github.com/teradata-labs/nl2sql/pkg/shaper"
	"github.com/teradata-labs/nl2sql/pkg/tokens"
	"github.com/teradata-labs/nl2sql/pkg/visualization"
)

// Input is everything known about one finished request.
type Input struct {
	Question string

	// Answer is the model's final text, passed through unchanged
	Answer string

	// Record is the drained execution record
	Record recorder.ExecutionRecord

	// AgentErr is set when the agent run itself failed
	AgentErr error

	IncludeSQL     bool
	FormatResponse bool

	RequestID string

	// Elapsed is the wall time of the whole request
	Elapsed time.Duration

	// Usage is the token estimate recorded for the request, if any
	Usage *tokens.Usage
}

// Assembler builds AgentResponses. It is stateless and safe for concurrent use.
type Assembler struct {
	shaper     *shaper.Shaper
	classifier *visualization.Classifier
	logger     *zap.Logger
}

// NewAssembler creates an assembler. Nil components use their defaults.
func NewAssembler(sh *shaper.Shaper, cl *visualization.Classifier, logger *zap.Logger) *Assembler {
	if sh == nil {
		sh = shaper.New(shaper.DefaultConfig())
	}
	if cl == nil {
		cl = visualization.NewClassifier(visualization.DefaultConfig())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{shaper: sh, classifier: cl, logger: logger}
}

// Assemble builds the response for one request.
func (a *Assembler) Assemble(in Input) *AgentResponse {
	resp := &AgentResponse{
		Answer:   in.Answer,
		Data:     []map[string]interface{}{},
		Metadata: a.baseMetadata(in),
	}
	if in.IncludeSQL && in.Record.SQLQuery != nil {
		sql := *in.Record.SQLQuery
		resp.SQLQuery = &sql
	}

	if msg, source, failed := failure(in); failed {
		resp.Success = false
		resp.Error = &msg
		resp.Visualization = visualization.CategoryText
		resp.Metadata["error_source"] = source
		if resp.Answer == "" {
			resp.Answer = "Error processing your question: " + msg
		}
		a.logger.Warn("request failed",
			zap.String("request_id", in.RequestID),
			zap.String("error_source", source),
			zap.String("error", msg))
		return resp
	}

	resp.Success = true
	rows := in.Record.Rows
	resp.RowCount = len(rows)

	if !in.FormatResponse {
		a.passthrough(resp, rows, in.Record.Columns)
		resp.Metadata["reason"] = "formatting_disabled"
		return resp
	}

	shaped, ok := a.shape(rows, in.Record.Columns, in.Question)
	if !ok {
		a.passthrough(resp, rows, in.Record.Columns)
		resp.Metadata["reason"] = "shaping_error"
		return resp
	}

	decision := a.classifier.Classify(visualization.Input{
		Rows:     shaped.Rows,
		Columns:  shaped.Columns,
		Question: in.Question,
	})

	resp.Data = shaped.Rows
	resp.RowCount = shaped.RowCount
	resp.Truncated = shaped.Truncated
	resp.Visualization = decision.Category

	for k, v := range decision.Metadata {
		resp.Metadata[k] = v
	}
	resp.Metadata["visualization_rule"] = decision.Rule
	resp.Metadata["column_count"] = len(shaped.Columns)
	resp.Metadata["columns"] = shaped.Columns
	resp.Metadata["displayed_rows"] = shaped.DisplayedRows
	if shaped.Summary != nil {
		resp.Metadata["summary"] = *shaped.Summary
	}
	if len(shaped.FieldsRemoved) > 0 {
		resp.Metadata["fields_removed"] = shaped.FieldsRemoved
	}

	a.logger.Debug("response assembled",
		zap.String("request_id", in.RequestID),
		zap.String("visualization", string(decision.Category)),
		zap.String("rule", decision.Rule),
		zap.Int("row_count", resp.RowCount),
		zap.Bool("truncated", resp.Truncated))
	return resp
}

// passthrough fills resp with the captured rows, unclassified and unshaped
// apart from the row cap and JSON-safe floats.
func (a *Assembler) passthrough(resp *AgentResponse, rows []map[string]interface{}, columns []string) {
	if len(columns) == 0 {
		columns = shaper.ColumnsOf(rows)
	}
	shown := rows
	if limit := a.shaper.Config().MaxRows; limit > 0 && len(rows) > limit {
		shown = rows[:limit]
		resp.Truncated = true
	}

	data := make([]map[string]interface{}, 0, len(shown))
	for _, row := range shown {
		out := make(map[string]interface{}, len(row))
		for k, v := range row {
			out[k] = fabric.JSONSafe(v)
		}
		data = append(data, out)
	}

	resp.Data = data
	resp.Visualization = visualization.CategoryTable
	if len(rows) == 0 {
		resp.Visualization = visualization.CategoryText
	}
	resp.Metadata["column_count"] = len(columns)
	resp.Metadata["columns"] = columns
	resp.Metadata["displayed_rows"] = len(data)
}

func (a *Assembler) baseMetadata(in Input) map[string]interface{} {
	md := map[string]interface{}{
		"execution_time_ms": in.Elapsed.Milliseconds(),
	}
	if in.RequestID != "" {
		md["request_id"] = in.RequestID
	}
	if in.Record.Calls > 0 {
		md["query_time_ms"] = in.Record.ExecutionTimeMs
		md["query_calls"] = in.Record.Calls
	}
	if in.Record.UpstreamTruncated {
		md["upstream_truncated"] = true
	}
	if in.Usage != nil {
		md["tokens"] = map[string]interface{}{
			"input_tokens":       in.Usage.InputTokens,
			"output_tokens":      in.Usage.OutputTokens,
			"total_tokens":       in.Usage.TotalTokens,
			"estimated_cost_usd": in.Usage.EstimatedCostUSD,
		}
	}
	return md
}

// failure picks the terminal error: the agent's own failure first, then the
// captured execution error.
func failure(in Input) (string, string, bool) {
	switch {
	case in.AgentErr != nil:
		return in.AgentErr.Error(), "agent", true
	case in.Record.Error != nil:
		return *in.Record.Error, "execution", true
	}
	return "", "", false
}

func (a *Assembler) shape(rows []map[string]interface{}, columns []string, question string) (shaped shaper.ShapedResult, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("result shaping failed, returning raw rows", zap.String("panic", fmt.Sprint(r)))
			ok = false
		}
	}()
	return a.shaper.Shape(rows, columns, question), true
}
