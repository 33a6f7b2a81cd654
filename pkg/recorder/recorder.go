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

// Package recorder captures what the data-query tool actually did during one
// request, so the response is built from execution data instead of the
// model's prose.
//
// A Recorder is request-scoped: create one per request and attach it to the
// request context with shuttle.WithObservers. Recorders are never shared
// between requests.
package recorder

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/teradata-labs/nl2sql/pkg/fabric"
	"github.com/teradata-labs/nl2sql/pkg/shuttle"
)

// DefaultToolName is the data-query tool the recorder listens to.
const DefaultToolName = "run_sql_query"

// ExecutionRecord is the captured state of one request.
type ExecutionRecord struct {
	// SQLQuery is the last statement executed, nil when none ran
	SQLQuery *string

	// Rows are the raw result rows in result order; empty, never nil
	Rows []map[string]interface{}

	// Columns is the column order of Rows
	Columns []string

	// Error is set when the last call failed
	Error *string

	// UpstreamTruncated is set when the backend row cap was hit
	UpstreamTruncated bool

	// Calls counts data-query calls seen since Begin
	Calls int

	// ExecutionTimeMs is the duration of the last call
	ExecutionTimeMs int64
}

// Empty reports whether no data-query call populated the record.
func (r ExecutionRecord) Empty() bool {
	return r.Calls == 0 && r.SQLQuery == nil && r.Error == nil
}

// Failed reports whether the captured call failed.
func (r ExecutionRecord) Failed() bool {
	return r.Error != nil
}

func emptyRecord() ExecutionRecord {
	return ExecutionRecord{Rows: []map[string]interface{}{}}
}

// Recorder holds a single ExecutionRecord slot.
type Recorder struct {
	toolName string
	logger   *zap.Logger

	mu  sync.Mutex
	rec ExecutionRecord
}

// New creates a recorder for the named tool (DefaultToolName when empty).
func New(toolName string) *Recorder {
	if toolName == "" {
		toolName = DefaultToolName
	}
	return &Recorder{
		toolName: toolName,
		logger:   zap.NewNop(),
		rec:      emptyRecord(),
	}
}

// SetLogger sets the logger.
func (r *Recorder) SetLogger(logger *zap.Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// ToolName returns the tool this recorder captures.
func (r *Recorder) ToolName() string {
	return r.toolName
}

// Begin resets the slot to empty.
func (r *Recorder) Begin() {
	r.mu.Lock()
	r.rec = emptyRecord()
	r.mu.Unlock()
}

// Record overwrites the slot with one execution. When columns is nil it is
// derived from the first row. Only the most recent call is kept; earlier
// calls in the same request are discarded.
func (r *Recorder) Record(sql string, rows []map[string]interface{}, columns []string, err error) {
	r.record(sql, rows, columns, err, false, 0)
}

func (r *Recorder) record(sql string, rows []map[string]interface{}, columns []string, err error, truncated bool, durMs int64) {
	next := emptyRecord()
	if sql != "" {
		next.SQLQuery = &sql
	}
	if err != nil {
		msg := err.Error()
		next.Error = &msg
	} else {
		if rows != nil {
			next.Rows = rows
		}
		next.Columns = columns
		if next.Columns == nil {
			next.Columns = columnsOf(next.Rows)
		}
		next.UpstreamTruncated = truncated
	}
	next.ExecutionTimeMs = durMs

	r.mu.Lock()
	next.Calls = r.rec.Calls + 1
	r.rec = next
	r.mu.Unlock()

	if next.Calls > 1 {
		r.logger.Debug("multiple data queries in one request, keeping the most recent",
			zap.Int("calls", next.Calls))
	}
}

// Drain returns the current record and resets the slot. Draining an empty
// slot returns an empty record.
func (r *Recorder) Drain() ExecutionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.rec
	r.rec = emptyRecord()
	return rec
}

// OnToolCall implements shuttle.ToolObserver. Calls to other tools are
// ignored.
func (r *Recorder) OnToolCall(ctx context.Context, event shuttle.ToolCallEvent) {
	if event.Name != r.toolName {
		return
	}

	sql := queryOf(event)
	dur := event.Duration.Milliseconds()
	if event.Result != nil && event.Result.ExecutionTimeMs > 0 {
		dur = event.Result.ExecutionTimeMs
	}

	if event.Failed() {
		r.record(sql, nil, nil, errors.New(event.ErrorMessage()), false, dur)
		r.logger.Debug("recorded failed query", zap.String("sql", sql), zap.String("error", event.ErrorMessage()))
		return
	}

	switch data := event.Result.Data.(type) {
	case *fabric.QueryResult:
		if sql == "" {
			sql = data.Query
		}
		var columns []string
		if len(data.Columns) > 0 {
			columns = data.ColumnNames()
		}
		r.record(sql, data.Rows, columns, nil, data.Truncated, dur)
	case []map[string]interface{}:
		r.record(sql, data, nil, nil, false, dur)
	default:
		r.record(sql, nil, nil, nil, false, dur)
	}
	r.logger.Debug("recorded query", zap.String("sql", sql))
}

// queryOf prefers the statement the tool reports it ran over the model's
// argument, since guardrails may rewrite it.
func queryOf(event shuttle.ToolCallEvent) string {
	if event.Result != nil && event.Result.Metadata != nil {
		if q, ok := event.Result.Metadata["query"].(string); ok && q != "" {
			return q
		}
	}
	if q, ok := event.Args["query"].(string); ok {
		return q
	}
	return ""
}

func columnsOf(rows []map[string]interface{}) []string {
	if len(rows) == 0 {
		return []string{}
	}
	cols := make([]string, 0, len(rows[0]))
	for k := range rows[0] {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}
