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
package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/nl2sql/pkg/llm"
	"github.com/teradata-labs/nl2sql/pkg/shuttle"
	"github.com/teradata-labs/nl2sql/pkg/tokens"
	"github.com/teradata-labs/nl2sql/pkg/types"
)

func newTestServer(t *testing.T, handler func(t *testing.T, req GenerateContentRequest) GenerateContentResponse) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		assert.Equal(t, "/models/gemini-2.0-flash:generateContent", r.URL.Path)

		var req GenerateContentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(handler(t, req))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestNewClient(t *testing.T) {
	c := NewClient(Config{APIKey: "k"})
	assert.Equal(t, "gemini", c.Name())
	assert.Equal(t, DefaultModel, c.Model())
	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.Equal(t, 2048, c.maxTokens)
	assert.Equal(t, 60*time.Second, c.httpClient.Timeout)

	c = NewClient(Config{APIKey: "k", Model: "gemini-2.5-pro", BaseURL: "http://x/", MaxTokens: 100, Temperature: 0.3})
	assert.Equal(t, "gemini-2.5-pro", c.Model())
	assert.Equal(t, "http://x", c.baseURL)
	assert.Equal(t, 100, c.maxTokens)
	assert.Equal(t, 0.3, c.temperature)
}

func TestClient_Chat_Success(t *testing.T) {
	server := newTestServer(t, func(t *testing.T, req GenerateContentRequest) GenerateContentResponse {
		require.NotNil(t, req.SystemInstruction)
		assert.Equal(t, "be terse", req.SystemInstruction.Parts[0].Text)
		require.Len(t, req.Contents, 1)
		assert.Equal(t, "user", req.Contents[0].Role)
		require.NotNil(t, req.GenerationConfig)
		require.NotNil(t, req.GenerationConfig.Temperature)
		assert.Equal(t, 0.0, *req.GenerationConfig.Temperature)
		assert.Nil(t, req.Tools)

		return GenerateContentResponse{
			Candidates: []Candidate{{
				Content:      Content{Role: "model", Parts: []Part{{Text: "Hay 60 clientes."}}},
				FinishReason: "STOP",
			}},
			UsageMetadata: UsageMetadata{PromptTokenCount: 25, CandidatesTokenCount: 12, TotalTokenCount: 37},
		}
	})

	client := NewClient(Config{APIKey: "test-key", BaseURL: server.URL})
	resp, err := client.Chat(context.Background(), []types.Message{
		{Role: types.RoleSystem, Content: "be terse"},
		{Role: types.RoleUser, Content: "¿Cuántos clientes hay?"},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "Hay 60 clientes.", resp.Content)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, 25, resp.Usage.InputTokens)
	assert.Equal(t, 12, resp.Usage.OutputTokens)
	assert.Equal(t, 37, resp.Usage.TotalTokens)
	assert.Equal(t, tokens.DefaultPricing.Cost(25, 12), resp.Usage.CostUSD)
	assert.Equal(t, "gemini", resp.Metadata["provider"])
}

func TestClient_Chat_WithTools(t *testing.T) {
	server := newTestServer(t, func(t *testing.T, req GenerateContentRequest) GenerateContentResponse {
		require.Len(t, req.Tools, 1)
		decls := req.Tools[0].FunctionDeclarations
		require.Len(t, decls, 1)
		assert.Equal(t, "run_sql_query", decls[0].Name)
		require.NotNil(t, decls[0].Parameters)
		assert.Equal(t, "object", decls[0].Parameters.Type)
		assert.Equal(t, []string{"query"}, decls[0].Parameters.Required)
		assert.Equal(t, "string", decls[0].Parameters.Properties["query"].Type)
		require.NotNil(t, req.ToolConfig)
		assert.Equal(t, "AUTO", req.ToolConfig.FunctionCallingConfig.Mode)

		return GenerateContentResponse{
			Candidates: []Candidate{{
				Content: Content{Role: "model", Parts: []Part{{
					FunctionCall: &FunctionCall{
						Name: "run_sql_query",
						Args: map[string]interface{}{"query": "SELECT COUNT(*) FROM clientes"},
					},
				}}},
				FinishReason: "STOP",
			}},
		}
	})

	tool := &shuttle.MockTool{
		MockName: "run_sql_query",
		MockSchema: shuttle.NewObjectSchema("", map[string]*shuttle.JSONSchema{
			"query": shuttle.NewStringSchema("SQL"),
		}, []string{"query"}),
	}

	client := NewClient(Config{APIKey: "test-key", BaseURL: server.URL})
	resp, err := client.Chat(context.Background(), []types.Message{
		{Role: types.RoleUser, Content: "count"},
	}, []shuttle.Tool{tool})
	require.NoError(t, err)

	assert.Equal(t, "tool_use", resp.StopReason)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "run_sql_query", resp.ToolCalls[0].Name)
	assert.Equal(t, "SELECT COUNT(*) FROM clientes", resp.ToolCalls[0].Input["query"])
	assert.NotEmpty(t, resp.ToolCalls[0].ID)
	assert.Equal(t, 0, resp.Usage.TotalTokens)
}

func TestClient_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "bad", BaseURL: server.URL})
	_, err := client.Chat(context.Background(), []types.Message{{Role: types.RoleUser, Content: "hi"}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Contains(t, err.Error(), "API key not valid")
	assert.False(t, llm.IsThrottlingError(err))
}

func TestClient_ErrorEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"code":500,"message":"internal","status":"INTERNAL"}}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "k", BaseURL: server.URL})
	_, err := client.Chat(context.Background(), []types.Message{{Role: types.RoleUser, Content: "hi"}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "internal")
}

func TestClient_ThrottledRetries(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"code":429,"status":"RESOURCE_EXHAUSTED"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(GenerateContentResponse{
			Candidates: []Candidate{{Content: Content{Parts: []Part{{Text: "ok"}}}, FinishReason: "STOP"}},
		})
	}))
	defer server.Close()

	limiter := llm.NewRateLimiter(llm.RateLimiterConfig{
		Enabled:           true,
		RequestsPerSecond: 1000,
		MaxRetries:        2,
		RetryBackoff:      time.Millisecond,
	})
	client := NewClient(Config{APIKey: "k", BaseURL: server.URL, RateLimiter: limiter})
	resp, err := client.Chat(context.Background(), []types.Message{{Role: types.RoleUser, Content: "hi"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, int64(1), limiter.Metrics().Throttled)
}

func TestClient_FinishReasons(t *testing.T) {
	c := NewClient(Config{APIKey: "k"})
	cases := map[string]string{
		"STOP":       "end_turn",
		"MAX_TOKENS": "max_tokens",
		"SAFETY":     "content_filter",
		"RECITATION": "content_filter",
		"OTHER":      "OTHER",
	}
	for reason, want := range cases {
		resp := c.convertResponse(&GenerateContentResponse{
			Candidates: []Candidate{{FinishReason: reason}},
		})
		assert.Equal(t, want, resp.StopReason, reason)
	}

	empty := c.convertResponse(&GenerateContentResponse{})
	assert.Empty(t, empty.Content)
	assert.Empty(t, empty.StopReason)
}

func TestPricingFor(t *testing.T) {
	assert.Equal(t, tokens.DefaultPricing, PricingFor("gemini-2.0-flash"))
	assert.Equal(t, tokens.DefaultPricing, PricingFor("unknown-model"))
	assert.Equal(t, 0.30, PricingFor("gemini-2.5-flash").InputPerMillion)
	assert.Equal(t, 0.10, PricingFor("gemini-2.5-flash-lite").InputPerMillion)
	assert.Equal(t, 10.00, PricingFor("gemini-2.5-pro").OutputPerMillion)
}

func TestConvertMessages(t *testing.T) {
	messages := []types.Message{
		{Role: types.RoleSystem, Content: "system"},
		{Role: types.RoleUser, Content: "q"},
		{Role: types.RoleAssistant, ToolCalls: []types.ToolCall{
			{ID: "a", Name: "get_schema"},
			{ID: "b", Name: "run_sql_query", Input: map[string]interface{}{"query": "SELECT 1"}},
		}},
		{Role: types.RoleTool, ToolUseID: "a", ToolName: "get_schema", Content: "schema"},
		{Role: types.RoleTool, ToolUseID: "b", ToolName: "run_sql_query", Content: "1 row"},
		{Role: types.RoleAssistant, Content: "answer"},
		{Role: types.RoleAssistant},
	}

	system, contents := convertMessages(messages)
	require.NotNil(t, system)
	assert.Empty(t, system.Role)
	assert.Equal(t, "system", system.Parts[0].Text)

	require.Len(t, contents, 4)
	assert.Equal(t, "user", contents[0].Role)

	assert.Equal(t, "model", contents[1].Role)
	require.Len(t, contents[1].Parts, 2)
	assert.Equal(t, "get_schema", contents[1].Parts[0].FunctionCall.Name)
	assert.NotNil(t, contents[1].Parts[0].FunctionCall.Args)

	assert.Equal(t, "function", contents[2].Role)
	require.Len(t, contents[2].Parts, 2)
	assert.Equal(t, "get_schema", contents[2].Parts[0].FunctionResponse.Name)
	assert.Equal(t, "run_sql_query", contents[2].Parts[1].FunctionResponse.Name)
	assert.Equal(t, "1 row", contents[2].Parts[1].FunctionResponse.Response["result"])

	assert.Equal(t, "model", contents[3].Role)
	assert.Equal(t, "answer", contents[3].Parts[0].Text)
}

func TestConvertMessages_NoSystem(t *testing.T) {
	system, contents := convertMessages([]types.Message{{Role: types.RoleUser, Content: "q"}})
	assert.Nil(t, system)
	assert.Len(t, contents, 1)
}

func TestConvertTools(t *testing.T) {
	tools := []shuttle.Tool{
		&shuttle.MockTool{
			MockName:        "get_schema",
			MockDescription: "schema",
			MockSchema:      shuttle.NewObjectSchema("", nil, nil),
		},
		&shuttle.MockTool{
			MockName: "run_sql_query",
			MockSchema: &shuttle.JSONSchema{
				Properties: map[string]*shuttle.JSONSchema{
					"query": shuttle.NewStringSchema("SQL"),
					"mode":  {Type: "string", Enum: []interface{}{"a", "b"}},
					"cols":  {Type: "array", Items: shuttle.NewStringSchema("col")},
				},
			},
		},
	}

	decls := convertTools(tools)
	require.Len(t, decls, 2)
	assert.Nil(t, decls[0].Parameters)
	assert.Equal(t, "schema", decls[0].Description)

	params := decls[1].Parameters
	require.NotNil(t, params)
	assert.Equal(t, "object", params.Type)
	assert.Equal(t, []interface{}{"a", "b"}, params.Properties["mode"].Enum)
	require.NotNil(t, params.Properties["cols"].Items)
	assert.Equal(t, "string", params.Properties["cols"].Items.Type)
}
