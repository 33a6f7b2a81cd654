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
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/nl2sql/pkg/recorder"
	"github.com/teradata-labs/nl2sql/pkg/shaper"
	"github.com/teradata-labs/nl2sql/pkg/tokens"
	"github.com/teradata-labs/nl2sql/pkg/visualization"
)

func recorded(sql string, rows []map[string]interface{}, columns []string, err error) recorder.ExecutionRecord {
	r := recorder.New("")
	r.Record(sql, rows, columns, err)
	return r.Drain()
}

func TestAssemble_CountIsKPI(t *testing.T) {
	a := NewAssembler(nil, nil, nil)
	resp := a.Assemble(Input{
		Question:       "¿Cuántos clientes hay?",
		Answer:         "Hay 5004 clientes.",
		Record:         recorded("SELECT COUNT(*) AS count FROM clientes", []map[string]interface{}{{"count": 5004}}, nil, nil),
		IncludeSQL:     true,
		FormatResponse: true,
		RequestID:      "req-1",
		Elapsed:        1500 * time.Millisecond,
	})

	assert.True(t, resp.Success)
	assert.Nil(t, resp.Error)
	assert.Equal(t, "Hay 5004 clientes.", resp.Answer)
	assert.Equal(t, visualization.CategoryKPI, resp.Visualization)
	assert.Equal(t, 1, resp.RowCount)
	assert.False(t, resp.Truncated)
	assert.EqualValues(t, 5004, resp.Metadata["value"])
	assert.Equal(t, 1, resp.Metadata["column_count"])
	assert.Equal(t, int64(1500), resp.Metadata["execution_time_ms"])
	assert.Equal(t, "req-1", resp.Metadata["request_id"])
	require.NotNil(t, resp.SQLQuery)
	assert.Equal(t, "SELECT COUNT(*) AS count FROM clientes", *resp.SQLQuery)
	assert.Equal(t, []map[string]interface{}{{"count": 5004}}, resp.Data)
}

func TestAssemble_WireFormat(t *testing.T) {
	a := NewAssembler(nil, nil, nil)
	resp := a.Assemble(Input{
		Question:       "¿Cuántos clientes hay?",
		Record:         recorded("SELECT COUNT(*) FROM clientes", []map[string]interface{}{{"count": 5004}}, nil, nil),
		IncludeSQL:     false,
		FormatResponse: true,
	})

	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	var wire map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &wire))
	for _, key := range []string{"answer", "sql_query", "data", "visualization", "row_count", "truncated", "success", "error", "metadata"} {
		assert.Contains(t, wire, key)
	}
	assert.Nil(t, wire["sql_query"])
	assert.Nil(t, wire["error"])
	assert.Equal(t, "kpi", wire["visualization"])
	assert.Equal(t, 5004.0, wire["metadata"].(map[string]interface{})["value"])
}

func TestAssemble_ExecutionError(t *testing.T) {
	a := NewAssembler(nil, nil, nil)
	resp := a.Assemble(Input{
		Answer:         "No pude consultar la base de datos.",
		Record:         recorded("SELECT x FROM t", []map[string]interface{}{{"x": 1}}, nil, errors.New(`column "x" does not exist`)),
		IncludeSQL:     true,
		FormatResponse: true,
	})

	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, `column "x" does not exist`, *resp.Error)
	assert.Empty(t, resp.Data)
	assert.NotNil(t, resp.Data)
	assert.Equal(t, visualization.CategoryText, resp.Visualization)
	assert.Equal(t, 0, resp.RowCount)
	assert.Equal(t, "execution", resp.Metadata["error_source"])
	assert.Equal(t, "No pude consultar la base de datos.", resp.Answer)
	require.NotNil(t, resp.SQLQuery)
}

func TestAssemble_AgentErrorWins(t *testing.T) {
	a := NewAssembler(nil, nil, nil)
	resp := a.Assemble(Input{
		Record:         recorded("SELECT 1", []map[string]interface{}{{"a": 1}}, nil, nil),
		AgentErr:       errors.New("model unavailable"),
		FormatResponse: true,
	})

	assert.False(t, resp.Success)
	assert.Equal(t, "model unavailable", *resp.Error)
	assert.Empty(t, resp.Data)
	assert.Equal(t, 0, resp.RowCount)
	assert.Equal(t, "agent", resp.Metadata["error_source"])
	assert.Contains(t, resp.Answer, "model unavailable")
	assert.Nil(t, resp.SQLQuery)
}

func TestAssemble_NoToolCall(t *testing.T) {
	a := NewAssembler(nil, nil, nil)
	resp := a.Assemble(Input{
		Answer:         "Hola, ¿en qué puedo ayudarte?",
		Record:         recorder.New("").Drain(),
		IncludeSQL:     true,
		FormatResponse: true,
	})

	assert.True(t, resp.Success)
	assert.Nil(t, resp.Error)
	assert.Nil(t, resp.SQLQuery)
	assert.Empty(t, resp.Data)
	assert.Equal(t, visualization.CategoryText, resp.Visualization)
	assert.Equal(t, 0, resp.RowCount)
}

func TestAssemble_ShapesAndTruncates(t *testing.T) {
	rows := make([]map[string]interface{}, 30)
	for i := range rows {
		rows[i] = map[string]interface{}{
			"id":         i + 1,
			"nombre":     fmt.Sprintf("cliente %d", i+1),
			"region":     "Norte",
			"created_at": "2025-01-01",
		}
	}
	a := NewAssembler(shaper.New(shaper.Config{MaxRows: 10}), nil, nil)
	resp := a.Assemble(Input{
		Question:       "lista de clientes",
		Record:         recorded("SELECT * FROM clientes", rows, []string{"id", "nombre", "region", "created_at"}, nil),
		FormatResponse: true,
	})

	assert.True(t, resp.Success)
	assert.Equal(t, 30, resp.RowCount)
	assert.True(t, resp.Truncated)
	assert.Len(t, resp.Data, 10)
	assert.Equal(t, visualization.CategoryTable, resp.Visualization)
	assert.Equal(t, 3, resp.Metadata["column_count"])
	assert.Equal(t, []string{"id", "nombre", "region"}, resp.Metadata["columns"])
	assert.Equal(t, []string{"created_at"}, resp.Metadata["fields_removed"])
	assert.Contains(t, resp.Metadata["summary"], "Total: 30 rows")
	assert.NotContains(t, resp.Data[0], "created_at")
	assert.Nil(t, resp.SQLQuery)
}

func TestAssemble_WithoutFormatting(t *testing.T) {
	a := NewAssembler(nil, nil, nil)
	resp := a.Assemble(Input{
		Record: recorded("SELECT region, total FROM v",
			[]map[string]interface{}{{"region": "Norte", "total": 1}, {"region": "Sur", "total": 2}}, nil, nil),
		IncludeSQL:     true,
		FormatResponse: false,
	})

	assert.True(t, resp.Success)
	assert.Equal(t, visualization.CategoryTable, resp.Visualization)
	assert.Equal(t, []map[string]interface{}{{"region": "Norte", "total": 1}, {"region": "Sur", "total": 2}}, resp.Data)
	assert.Equal(t, 2, resp.RowCount)
	assert.False(t, resp.Truncated)
	assert.Equal(t, 2, resp.Metadata["column_count"])
	assert.Equal(t, []string{"region", "total"}, resp.Metadata["columns"])
	assert.Equal(t, "formatting_disabled", resp.Metadata["reason"])
	assert.NotContains(t, resp.Metadata, "visualization_rule")
	assert.NotNil(t, resp.SQLQuery)
}

func TestAssemble_WithoutFormattingCapsRows(t *testing.T) {
	a := NewAssembler(shaper.New(shaper.Config{MaxRows: 3}), nil, nil)
	rows := make([]map[string]interface{}, 5)
	for i := range rows {
		rows[i] = map[string]interface{}{"n": i, "ratio": math.Inf(1)}
	}
	resp := a.Assemble(Input{Record: recorded("SELECT n, ratio FROM t", rows, []string{"n", "ratio"}, nil)})

	assert.True(t, resp.Success)
	require.Len(t, resp.Data, 3)
	assert.True(t, resp.Truncated)
	assert.Equal(t, 5, resp.RowCount)
	assert.Equal(t, 3, resp.Metadata["displayed_rows"])
	assert.Equal(t, "+Inf", resp.Data[0]["ratio"])
	assert.Equal(t, math.Inf(1), rows[0]["ratio"], "captured rows are not modified")
}

func TestAssemble_WithoutFormattingNoRows(t *testing.T) {
	a := NewAssembler(nil, nil, nil)
	resp := a.Assemble(Input{Record: recorded("SELECT 1 WHERE false", nil, []string{"x"}, nil)})

	assert.True(t, resp.Success)
	assert.Equal(t, visualization.CategoryText, resp.Visualization)
	assert.NotNil(t, resp.Data)
	assert.Empty(t, resp.Data)
	assert.Equal(t, 1, resp.Metadata["column_count"])
}

func TestAssemble_ChartMetadata(t *testing.T) {
	a := NewAssembler(nil, nil, nil)
	resp := a.Assemble(Input{
		Question: "clientes por región",
		Record: recorded("SELECT region, total FROM v",
			[]map[string]interface{}{{"region": "Norte", "total": 10}, {"region": "Sur", "total": 5}}, []string{"region", "total"}, nil),
		FormatResponse: true,
	})

	assert.Equal(t, visualization.CategoryPieChart, resp.Visualization)
	assert.Equal(t, "region", resp.Metadata["category_column"])
	assert.Equal(t, "total", resp.Metadata["value_column"])
	assert.Equal(t, "category_chart", resp.Metadata["visualization_rule"])
}

func TestAssemble_TokenUsageAndUpstreamTruncation(t *testing.T) {
	a := NewAssembler(nil, nil, nil)
	r := recorder.New("")
	r.Record("SELECT id FROM t LIMIT 50", []map[string]interface{}{{"id": 1}, {"id": 2}}, nil, nil)
	rec := r.Drain()
	rec.UpstreamTruncated = true

	usage := tokens.Usage{InputTokens: 100, OutputTokens: 20, TotalTokens: 120, EstimatedCostUSD: 0.000014}
	resp := a.Assemble(Input{Record: rec, FormatResponse: true, Usage: &usage})

	assert.Equal(t, true, resp.Metadata["upstream_truncated"])
	assert.Equal(t, map[string]interface{}{
		"input_tokens":       100,
		"output_tokens":      20,
		"total_tokens":       120,
		"estimated_cost_usd": 0.000014,
	}, resp.Metadata["tokens"])
}

func TestAssemble_SuccessInvariant(t *testing.T) {
	a := NewAssembler(nil, nil, nil)
	inputs := []Input{
		{FormatResponse: true},
		{AgentErr: errors.New("x"), FormatResponse: true},
		{Record: recorded("SELECT", nil, nil, errors.New("y"))},
		{Record: recorded("SELECT", []map[string]interface{}{{"a": "b"}}, nil, nil), FormatResponse: true},
	}
	for i, in := range inputs {
		resp := a.Assemble(in)
		if resp.Success {
			assert.Nil(t, resp.Error, "case %d", i)
		} else {
			assert.NotNil(t, resp.Error, "case %d", i)
			assert.Empty(t, resp.Data, "case %d", i)
		}
		assert.True(t, resp.Visualization.Valid(), "case %d", i)
	}
}

func TestAskRequest_Defaults(t *testing.T) {
	var req AskRequest
	require.NoError(t, json.Unmarshal([]byte(`{"question":"¿Cuántos clientes hay?"}`), &req))
	assert.True(t, req.WantsSQL())
	assert.True(t, req.WantsFormatting())
	assert.NoError(t, req.Validate())

	require.NoError(t, json.Unmarshal([]byte(`{"question":"q","include_sql":false,"format_response":false}`), &req))
	assert.False(t, req.WantsSQL())
	assert.False(t, req.WantsFormatting())

	assert.ErrorIs(t, AskRequest{Question: "  "}.Validate(), ErrEmptyQuestion)
}
