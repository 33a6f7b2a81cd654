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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teradata-labs/nl2sql/pkg/agent"
	"github.com/teradata-labs/nl2sql/pkg/backends/sqldb"
	"github.com/teradata-labs/nl2sql/pkg/fabric"
	"github.com/teradata-labs/nl2sql/pkg/llm/llmtest"
	"github.com/teradata-labs/nl2sql/pkg/response"
	"github.com/teradata-labs/nl2sql/pkg/shaper"
	"github.com/teradata-labs/nl2sql/pkg/shuttle"
	"github.com/teradata-labs/nl2sql/pkg/shuttle/builtin"
	"github.com/teradata-labs/nl2sql/pkg/tokens"
	"github.com/teradata-labs/nl2sql/pkg/types"
	"github.com/teradata-labs/nl2sql/pkg/visualization"
)

func newShopBackend(t *testing.T) *sqldb.Backend {
	t.Helper()
	ctx := context.Background()
	b, err := sqldb.New(ctx, sqldb.Config{Driver: sqldb.DriverSQLite, MaxRows: 50})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	stmts := []string{
		`CREATE TABLE clientes (id INTEGER PRIMARY KEY, nombre TEXT NOT NULL, region TEXT, created_at TEXT)`,
		`CREATE TABLE ventas (id INTEGER PRIMARY KEY, cliente_id INTEGER REFERENCES clientes(id), mes INTEGER, monto REAL)`,
	}
	for i := 1; i <= 60; i++ {
		stmts = append(stmts, fmt.Sprintf(
			`INSERT INTO clientes (id, nombre, region, created_at) VALUES (%d, 'cliente %d', '%s', '2024-01-01')`,
			i, i, []string{"Norte", "Sur", "Centro"}[i%3]))
	}
	for mes := 1; mes <= 11; mes++ {
		stmts = append(stmts, fmt.Sprintf(
			`INSERT INTO ventas (cliente_id, mes, monto) VALUES (%d, %d, %d)`, mes, mes, mes*100))
	}
	for _, stmt := range stmts {
		_, err := b.DB().ExecContext(ctx, stmt)
		require.NoError(t, err)
	}
	return b
}

type stack struct {
	server     *HTTPServer
	service    *Service
	accountant *tokens.Accountant
}

func newStack(t *testing.T, provider types.LLMProvider, cfg ServiceConfig) *stack {
	t.Helper()
	backend := newShopBackend(t)
	sh := shaper.New(shaper.DefaultConfig())

	registry := shuttle.NewRegistry()
	builtin.RegisterAll(registry, backend, fabric.NewGuardrailEngine(50), sh, builtin.Options{MaxTables: 10})

	ag := agent.New(provider, shuttle.NewExecutor(registry), agent.Config{SystemPrompt: agent.SystemPrompt("SQLite")})
	acc := tokens.NewAccountant(tokens.Config{})
	assembler := response.NewAssembler(sh, visualization.NewClassifier(visualization.DefaultConfig()), nil)
	svc := NewService(ag, provider.Model(), assembler, acc, cfg)

	return &stack{
		server:     NewHTTPServer(svc, Config{CORS: DefaultCORSConfig(), Logger: zap.NewNop()}),
		service:    svc,
		accountant: acc,
	}
}

func (s *stack) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.server.Handler().ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	s := newStack(t, llmtest.New(), ServiceConfig{})
	rr := s.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok","service":"nl2sql-agent"}`, rr.Body.String())
}

func TestAsk_CountIsKPI(t *testing.T) {
	provider := llmtest.New(
		llmtest.Call("c1", builtin.SchemaToolName, map[string]interface{}{}),
		llmtest.Call("c2", builtin.QueryToolName, map[string]interface{}{"query": "SELECT COUNT(*) AS count FROM clientes"}),
		llmtest.Text("Hay 60 clientes."),
	)
	s := newStack(t, provider, ServiceConfig{})

	rr := s.do(t, http.MethodPost, "/ask", `{"question":"¿Cuántos clientes hay?"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	out := decode(t, rr)

	assert.Equal(t, "Hay 60 clientes.", out["answer"])
	assert.Equal(t, "SELECT COUNT(*) AS count FROM clientes", out["sql_query"])
	assert.Equal(t, "kpi", out["visualization"])
	assert.EqualValues(t, 1, out["row_count"])
	assert.Equal(t, false, out["truncated"])
	assert.Equal(t, true, out["success"])
	assert.Nil(t, out["error"])

	md := out["metadata"].(map[string]interface{})
	assert.EqualValues(t, 60, md["value"])
	assert.NotEmpty(t, md["request_id"])
	assert.Equal(t, md["request_id"], rr.Header().Get(RequestIDHeader))
	assert.EqualValues(t, 3, md["agent_turns"])
	assert.EqualValues(t, 2, md["tool_calls"])
	assert.Contains(t, md, "tokens")
	assert.Contains(t, md, "llm_usage")

	stats := s.accountant.Stats()
	assert.Equal(t, 1, stats.Requests)
	assert.Greater(t, stats.TotalTokens, 0)
	history := s.accountant.History()
	require.Len(t, history, 1)
	assert.Greater(t, history[0].SchemaTokens, 0)
	assert.Greater(t, history[0].ToolOutputTokens, 0)
	assert.Equal(t, "scripted", history[0].Model)
}

func TestAsk_MonthlySalesIsLineChart(t *testing.T) {
	provider := llmtest.New(
		llmtest.Call("c1", builtin.QueryToolName, map[string]interface{}{"query": "SELECT mes, SUM(monto) AS ventas FROM ventas GROUP BY mes ORDER BY mes"}),
		llmtest.Text("Ventas por mes."),
	)
	s := newStack(t, provider, ServiceConfig{})

	out := decode(t, s.do(t, http.MethodPost, "/ask", `{"question":"ventas por mes"}`))
	assert.Equal(t, "line_chart", out["visualization"])
	assert.EqualValues(t, 11, out["row_count"])
	assert.Len(t, out["data"], 11)
}

func TestAsk_ShapingTruncates(t *testing.T) {
	provider := llmtest.New(
		llmtest.Call("c1", builtin.QueryToolName, map[string]interface{}{"query": "SELECT id, nombre, region, created_at FROM clientes ORDER BY id"}),
		llmtest.Text("Lista de clientes."),
	)
	s := newStack(t, provider, ServiceConfig{})

	out := decode(t, s.do(t, http.MethodPost, "/ask", `{"question":"lista los clientes"}`))
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "table", out["visualization"])
	assert.EqualValues(t, 50, out["row_count"])
	assert.Equal(t, true, out["truncated"])
	data := out["data"].([]interface{})
	assert.Len(t, data, 20)
	first := data[0].(map[string]interface{})
	assert.NotContains(t, first, "created_at")

	md := out["metadata"].(map[string]interface{})
	assert.Equal(t, true, md["upstream_truncated"])
	assert.Equal(t, "SELECT id, nombre, region, created_at FROM clientes ORDER BY id LIMIT 50", out["sql_query"])
}

func TestAsk_ExcludeSQLAndFormatting(t *testing.T) {
	provider := llmtest.New(
		llmtest.Call("c1", builtin.QueryToolName, map[string]interface{}{"query": "SELECT region, COUNT(*) AS total FROM clientes GROUP BY region"}),
		llmtest.Text("Por region."),
	)
	s := newStack(t, provider, ServiceConfig{})

	out := decode(t, s.do(t, http.MethodPost, "/ask", `{"question":"clientes por region","include_sql":false,"format_response":false}`))
	assert.Nil(t, out["sql_query"])
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "table", out["visualization"])
	assert.Len(t, out["data"], 3)
	assert.EqualValues(t, 3, out["row_count"])
	md := out["metadata"].(map[string]interface{})
	assert.EqualValues(t, 2, md["column_count"])
	assert.NotContains(t, md, "visualization_rule")
}

func TestAsk_NonFiniteValues(t *testing.T) {
	provider := llmtest.New(
		llmtest.Call("c1", builtin.QueryToolName, map[string]interface{}{"query": "SELECT region, 1e999 AS ratio FROM clientes GROUP BY region"}),
		llmtest.Text("Ratios por region."),
	)
	s := newStack(t, provider, ServiceConfig{})

	rr := s.do(t, http.MethodPost, "/ask", `{"question":"ratio por region"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	out := decode(t, rr)
	assert.Equal(t, true, out["success"])
	data, ok := out["data"].([]interface{})
	require.True(t, ok)
	require.Len(t, data, 3)
	assert.Equal(t, "+Inf", data[0].(map[string]interface{})["ratio"])
}

func TestWriteJSON_UnencodableValue(t *testing.T) {
	h := NewHTTPServer(nil, Config{})
	rr := httptest.NewRecorder()
	h.writeJSON(rr, http.StatusOK, map[string]interface{}{"ratio": math.NaN()})

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"detail":"failed to encode response"}`, rr.Body.String())
}

func TestAsk_IncludeSQLDefault(t *testing.T) {
	off := false
	provider := llmtest.New(
		llmtest.Call("c1", builtin.QueryToolName, map[string]interface{}{"query": "SELECT COUNT(*) AS count FROM clientes"}),
		llmtest.Text("60"),
	)
	s := newStack(t, provider, ServiceConfig{IncludeSQLDefault: &off})

	out := decode(t, s.do(t, http.MethodPost, "/ask", `{"question":"cuantos"}`))
	assert.Nil(t, out["sql_query"])
}

func TestAsk_ExecutionError(t *testing.T) {
	provider := llmtest.New(
		llmtest.Call("c1", builtin.QueryToolName, map[string]interface{}{"query": "SELECT no_such_column FROM clientes"}),
		llmtest.Text("No pude responder."),
	)
	s := newStack(t, provider, ServiceConfig{})

	rr := s.do(t, http.MethodPost, "/ask", `{"question":"algo raro"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	out := decode(t, rr)
	assert.Equal(t, false, out["success"])
	assert.NotNil(t, out["error"])
	assert.Empty(t, out["data"])
	assert.Equal(t, "text", out["visualization"])
	assert.Contains(t, out["sql_query"], "SELECT no_such_column FROM clientes")
	md := out["metadata"].(map[string]interface{})
	assert.Equal(t, "execution", md["error_source"])
}

func TestAsk_AgentError(t *testing.T) {
	provider := llmtest.New(llmtest.Step{Err: fmt.Errorf("model unavailable")})
	s := newStack(t, provider, ServiceConfig{})

	out := decode(t, s.do(t, http.MethodPost, "/ask", `{"question":"hola"}`))
	assert.Equal(t, false, out["success"])
	assert.Contains(t, out["error"], "model unavailable")
	assert.Contains(t, out["answer"], "Error processing your question")
	assert.Equal(t, 1, s.accountant.Stats().Requests)
}

func TestAsk_NoToolCall(t *testing.T) {
	s := newStack(t, llmtest.New(llmtest.Text("Hola, ¿en qué te ayudo?")), ServiceConfig{})

	out := decode(t, s.do(t, http.MethodPost, "/ask", `{"question":"hola"}`))
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "text", out["visualization"])
	assert.Nil(t, out["sql_query"])
	assert.EqualValues(t, 0, out["row_count"])
}

func TestAsk_BadRequests(t *testing.T) {
	s := newStack(t, llmtest.New(), ServiceConfig{})

	rr := s.do(t, http.MethodPost, "/ask", `{"question":`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decode(t, rr)["detail"], "invalid request body")

	rr = s.do(t, http.MethodPost, "/ask", `{"question":"   "}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, response.ErrEmptyQuestion.Error(), decode(t, rr)["detail"])

	rr = s.do(t, http.MethodGet, "/ask", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestAsk_RequestIDHeaderIsUsed(t *testing.T) {
	s := newStack(t, llmtest.New(llmtest.Text("ok")), ServiceConfig{})

	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"question":"hola"}`))
	req.Header.Set(RequestIDHeader, "req-123")
	rr := httptest.NewRecorder()
	s.server.Handler().ServeHTTP(rr, req)

	assert.Equal(t, "req-123", rr.Header().Get(RequestIDHeader))
	md := decode(t, rr)["metadata"].(map[string]interface{})
	assert.Equal(t, "req-123", md["request_id"])
}

// echoProvider calls run_sql_query once with the question as SQL and then
// answers with the tool output, so concurrent runs do not share a script.
type echoProvider struct{}

func (echoProvider) Name() string  { return "echo" }
func (echoProvider) Model() string { return "echo" }

func (echoProvider) Chat(_ context.Context, messages []types.Message, _ []shuttle.Tool) (*types.LLMResponse, error) {
	last := messages[len(messages)-1]
	if last.Role == types.RoleUser {
		return &types.LLMResponse{ToolCalls: []types.ToolCall{{
			ID:    "q",
			Name:  builtin.QueryToolName,
			Input: map[string]interface{}{"query": last.Content},
		}}}, nil
	}
	return &types.LLMResponse{Content: "done"}, nil
}

func TestAsk_ConcurrentRequestsAreIsolated(t *testing.T) {
	s := newStack(t, echoProvider{}, ServiceConfig{})

	const n = 16
	var wg sync.WaitGroup
	results := make([]*response.AgentResponse, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sql := fmt.Sprintf("SELECT COUNT(*) AS count FROM clientes WHERE id <= %d", i+1)
			resp, err := s.service.Ask(context.Background(), response.AskRequest{Question: sql}, "")
			require.NoError(t, err)
			results[i] = resp
		}(i)
	}
	wg.Wait()

	for i, resp := range results {
		require.NotNil(t, resp)
		require.NotNil(t, resp.SQLQuery)
		assert.Equal(t, fmt.Sprintf("SELECT COUNT(*) AS count FROM clientes WHERE id <= %d", i+1), *resp.SQLQuery)
		assert.EqualValues(t, i+1, resp.Metadata["value"])
	}
	assert.Equal(t, n, s.accountant.Stats().Requests)
}

func TestTokenEndpoints(t *testing.T) {
	s := newStack(t, llmtest.New(llmtest.Text("a"), llmtest.Text("b")), ServiceConfig{})

	out := decode(t, s.do(t, http.MethodGet, "/tokens/suggestions", ""))
	assert.Equal(t, []interface{}{tokens.SuggestionNoData}, out["suggestions"])

	s.do(t, http.MethodPost, "/ask", `{"question":"uno"}`)
	s.do(t, http.MethodPost, "/ask", `{"question":"dos"}`)

	out = decode(t, s.do(t, http.MethodGet, "/tokens/stats", ""))
	stats := out["session_stats"].(map[string]interface{})
	assert.EqualValues(t, 2, stats["requests"])
	assert.Contains(t, out, "pricing")

	rr := s.do(t, http.MethodGet, "/tokens/export", "")
	require.Equal(t, http.StatusOK, rr.Code)
	out = decode(t, rr)
	assert.Len(t, out["history"], 2)
	assert.Contains(t, out, "optimization_suggestions")

	rr = s.do(t, http.MethodGet, "/tokens/export?format=yaml", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/yaml", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), "session_stats:")

	rr = s.do(t, http.MethodGet, "/tokens/export?format=xml", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, http.MethodPost, "/tokens/reset", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 0, s.accountant.Stats().Requests)
	assert.Empty(t, s.accountant.History())
}

func TestTokenEndpoints_NoAccountant(t *testing.T) {
	svc := NewService(agent.New(llmtest.New(), shuttle.NewExecutor(shuttle.NewRegistry()), agent.Config{}), "m", response.NewAssembler(nil, nil, nil), nil, ServiceConfig{})
	srv := NewHTTPServer(svc, Config{})

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/tokens/stats", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	resp, err := svc.Ask(context.Background(), response.AskRequest{Question: "hola"}, "")
	require.NoError(t, err)
	assert.NotContains(t, resp.Metadata, "tokens")
}

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name               string
		corsConfig         CORSConfig
		requestOrigin      string
		requestMethod      string
		expectedOrigin     string
		expectedMethods    string
		expectedStatusCode int
	}{
		{
			name:               "wildcard origin",
			corsConfig:         DefaultCORSConfig(),
			requestOrigin:      "https://example.com",
			requestMethod:      http.MethodGet,
			expectedOrigin:     "*",
			expectedMethods:    "GET, POST, OPTIONS",
			expectedStatusCode: http.StatusOK,
		},
		{
			name: "specific origin",
			corsConfig: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"https://example.com"},
				AllowedMethods: []string{"GET"},
			},
			requestOrigin:      "https://example.com",
			requestMethod:      http.MethodGet,
			expectedOrigin:     "https://example.com",
			expectedMethods:    "GET",
			expectedStatusCode: http.StatusOK,
		},
		{
			name: "origin not allowed",
			corsConfig: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"https://allowed.com"},
			},
			requestOrigin:      "https://not-allowed.com",
			requestMethod:      http.MethodGet,
			expectedStatusCode: http.StatusOK,
		},
		{
			name:               "preflight",
			corsConfig:         DefaultCORSConfig(),
			requestOrigin:      "https://example.com",
			requestMethod:      http.MethodOptions,
			expectedOrigin:     "*",
			expectedMethods:    "GET, POST, OPTIONS",
			expectedStatusCode: http.StatusNoContent,
		},
		{
			name:               "disabled",
			corsConfig:         CORSConfig{},
			requestOrigin:      "https://example.com",
			requestMethod:      http.MethodGet,
			expectedStatusCode: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewHTTPServer(nil, Config{CORS: tt.corsConfig})

			req := httptest.NewRequest(tt.requestMethod, "/health", nil)
			req.Header.Set("Origin", tt.requestOrigin)
			rr := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedStatusCode, rr.Code)
			assert.Equal(t, tt.expectedOrigin, rr.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.expectedMethods, rr.Header().Get("Access-Control-Allow-Methods"))
		})
	}
}

func TestPreflight(t *testing.T) {
	backend := newShopBackend(t)
	assert.NoError(t, Preflight(context.Background(), llmtest.New(), backend))

	err := Preflight(context.Background(), llmtest.New(llmtest.Step{Err: fmt.Errorf("bad key")}), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llmtest/scripted")
	assert.Contains(t, err.Error(), "bad key")
}

func TestStartStop(t *testing.T) {
	srv := NewHTTPServer(nil, Config{Addr: "127.0.0.1:0"})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()
	cancel()
	assert.NoError(t, <-done)
}
