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
package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/nl2sql/pkg/fabric"
	"github.com/teradata-labs/nl2sql/pkg/shuttle"
)

func TestRecorder_DrainWithoutRecord(t *testing.T) {
	r := New("")
	assert.Equal(t, DefaultToolName, r.ToolName())

	rec := r.Drain()
	assert.True(t, rec.Empty())
	assert.False(t, rec.Failed())
	assert.Nil(t, rec.SQLQuery)
	assert.Nil(t, rec.Error)
	assert.NotNil(t, rec.Rows)
	assert.Empty(t, rec.Rows)
}

func TestRecorder_RecordAndDrain(t *testing.T) {
	r := New("")
	r.Begin()
	rows := []map[string]interface{}{{"count": int64(5004)}}
	r.Record("SELECT COUNT(*) AS count FROM clientes", rows, nil, nil)

	rec := r.Drain()
	require.NotNil(t, rec.SQLQuery)
	assert.Equal(t, "SELECT COUNT(*) AS count FROM clientes", *rec.SQLQuery)
	assert.Equal(t, rows, rec.Rows)
	assert.Equal(t, []string{"count"}, rec.Columns)
	assert.Nil(t, rec.Error)
	assert.Equal(t, 1, rec.Calls)

	// drained slot is empty again
	assert.True(t, r.Drain().Empty())
}

func TestRecorder_RecordError(t *testing.T) {
	r := New("")
	r.Record("SELECT * FROM nope", []map[string]interface{}{{"a": 1}}, nil, errors.New(`relation "nope" does not exist`))

	rec := r.Drain()
	assert.True(t, rec.Failed())
	require.NotNil(t, rec.Error)
	assert.Equal(t, `relation "nope" does not exist`, *rec.Error)
	assert.Empty(t, rec.Rows)
}

func TestRecorder_LastWriteWins(t *testing.T) {
	r := New("")
	r.Record("SELECT 1", []map[string]interface{}{{"a": 1}}, nil, errors.New("boom"))
	r.Record("SELECT 2", []map[string]interface{}{{"b": 2}}, []string{"b"}, nil)

	rec := r.Drain()
	assert.Equal(t, "SELECT 2", *rec.SQLQuery)
	assert.Nil(t, rec.Error)
	assert.Equal(t, 2, rec.Calls)
	assert.Equal(t, []string{"b"}, rec.Columns)
}

func TestRecorder_BeginClears(t *testing.T) {
	r := New("")
	r.Record("SELECT 1", nil, nil, nil)
	r.Begin()
	assert.True(t, r.Drain().Empty())
}

func TestRecorder_DerivedColumnsAreSorted(t *testing.T) {
	r := New("")
	r.Record("SELECT", []map[string]interface{}{{"zeta": 1, "alfa": 2, "mid": 3}}, nil, nil)
	assert.Equal(t, []string{"alfa", "mid", "zeta"}, r.Drain().Columns)
}

func sqlTool(result func(params map[string]interface{}) (*shuttle.Result, error)) *shuttle.MockTool {
	return &shuttle.MockTool{
		MockName: DefaultToolName,
		MockSchema: shuttle.NewObjectSchema("run sql", map[string]*shuttle.JSONSchema{
			"query": shuttle.NewStringSchema("SQL"),
		}, []string{"query"}),
		MockExecute: func(_ context.Context, params map[string]interface{}) (*shuttle.Result, error) {
			return result(params)
		},
	}
}

func newExecutor(tools ...shuttle.Tool) *shuttle.Executor {
	reg := shuttle.NewRegistry()
	for _, tool := range tools {
		reg.Register(tool)
	}
	return shuttle.NewExecutor(reg)
}

func TestRecorder_ObservesQueryResult(t *testing.T) {
	tool := sqlTool(func(params map[string]interface{}) (*shuttle.Result, error) {
		qr := &fabric.QueryResult{
			Query:     "SELECT region, total FROM ventas LIMIT 50",
			Columns:   []fabric.Column{{Name: "region"}, {Name: "total"}},
			Rows:      []map[string]interface{}{{"region": "Norte", "total": 10}},
			RowCount:  1,
			Truncated: true,
		}
		return &shuttle.Result{
			Success:  true,
			Data:     qr,
			Metadata: map[string]interface{}{"query": qr.Query},
		}, nil
	})
	exec := newExecutor(tool)

	r := New("")
	ctx := shuttle.WithObservers(context.Background(), r)
	_, err := exec.Execute(ctx, DefaultToolName, map[string]interface{}{"query": "SELECT region, total FROM ventas"})
	require.NoError(t, err)

	rec := r.Drain()
	assert.Equal(t, "SELECT region, total FROM ventas LIMIT 50", *rec.SQLQuery)
	assert.Equal(t, []string{"region", "total"}, rec.Columns)
	assert.True(t, rec.UpstreamTruncated)
	assert.Len(t, rec.Rows, 1)
}

func TestRecorder_ObservesFailure(t *testing.T) {
	tool := sqlTool(func(params map[string]interface{}) (*shuttle.Result, error) {
		return &shuttle.Result{
			Success: false,
			Error:   &shuttle.Error{Code: "column_not_found", Message: `column "x" does not exist`},
		}, nil
	})
	exec := newExecutor(tool)

	r := New("")
	ctx := shuttle.WithObservers(context.Background(), r)
	_, err := exec.Execute(ctx, DefaultToolName, map[string]interface{}{"query": "SELECT x FROM t"})
	require.NoError(t, err)

	rec := r.Drain()
	require.True(t, rec.Failed())
	assert.Equal(t, `column "x" does not exist`, *rec.Error)
	assert.Equal(t, "SELECT x FROM t", *rec.SQLQuery)
}

func TestRecorder_ObservesGoError(t *testing.T) {
	tool := sqlTool(func(map[string]interface{}) (*shuttle.Result, error) {
		return nil, fmt.Errorf("connection refused")
	})
	exec := newExecutor(tool)

	r := New("")
	_, err := exec.Execute(shuttle.WithObservers(context.Background(), r), DefaultToolName,
		map[string]interface{}{"query": "SELECT 1"})
	require.NoError(t, err)

	rec := r.Drain()
	require.True(t, rec.Failed())
	assert.Equal(t, "connection refused", *rec.Error)
}

func TestRecorder_IgnoresOtherTools(t *testing.T) {
	other := &shuttle.MockTool{MockName: "get_schema"}
	exec := newExecutor(other)

	r := New("")
	_, err := exec.Execute(shuttle.WithObservers(context.Background(), r), "get_schema", nil)
	require.NoError(t, err)
	assert.True(t, r.Drain().Empty())
}

func TestRecorder_RawRowsData(t *testing.T) {
	r := New("")
	r.OnToolCall(context.Background(), shuttle.ToolCallEvent{
		Name:   DefaultToolName,
		Args:   map[string]interface{}{"query": "SELECT 1 AS uno"},
		Result: &shuttle.Result{Success: true, Data: []map[string]interface{}{{"uno": 1}}},
	})

	rec := r.Drain()
	assert.Equal(t, "SELECT 1 AS uno", *rec.SQLQuery)
	assert.Equal(t, []string{"uno"}, rec.Columns)
}

func TestRecorder_PerRequestIsolation(t *testing.T) {
	tool := sqlTool(func(params map[string]interface{}) (*shuttle.Result, error) {
		q := params["query"].(string)
		return &shuttle.Result{
			Success:  true,
			Data:     &fabric.QueryResult{Query: q, Rows: []map[string]interface{}{{"q": q}}},
			Metadata: map[string]interface{}{"query": q},
		}, nil
	})
	exec := newExecutor(tool)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := New("")
			r.Begin()
			q := fmt.Sprintf("SELECT %d", i)
			_, err := exec.Execute(shuttle.WithObservers(context.Background(), r), DefaultToolName,
				map[string]interface{}{"query": q})
			assert.NoError(t, err)

			rec := r.Drain()
			if assert.NotNil(t, rec.SQLQuery) {
				assert.Equal(t, q, *rec.SQLQuery)
			}
			assert.Equal(t, 1, rec.Calls)
		}(i)
	}
	wg.Wait()
}
