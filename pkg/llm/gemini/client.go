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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/nl2sql/pkg/llm"
	"github.com/teradata-labs/nl2sql/pkg/shuttle"
	"github.com/teradata-labs/nl2sql/pkg/tokens"
	"github.com/teradata-labs/nl2sql/pkg/types"
)

const (
	// DefaultModel is used when Config.Model is empty.
	DefaultModel = "gemini-2.0-flash"

	// DefaultBaseURL is the public Generative Language endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
)

// Client implements types.LLMProvider for Google Gemini over REST.
type Client struct {
	apiKey      string
	model       string
	baseURL     string
	httpClient  *http.Client
	maxTokens   int
	temperature float64
	rateLimiter *llm.RateLimiter
	logger      *zap.Logger
}

// Config holds configuration for the Gemini client.
type Config struct {
	// APIKey is required.
	APIKey string

	// Model defaults to gemini-2.0-flash.
	Model string

	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string

	MaxTokens   int           // Default: 2048
	Temperature float64       // Sent as is; 0 is deterministic
	Timeout     time.Duration // Default: 60s

	// RateLimiter is shared between clients when set.
	RateLimiter *llm.RateLimiter

	Logger *zap.Logger
}

// NewClient creates a new Google Gemini client.
func NewClient(config Config) *Client {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 2048
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &Client{
		apiKey:      config.APIKey,
		model:       config.Model,
		baseURL:     strings.TrimRight(config.BaseURL, "/"),
		maxTokens:   config.MaxTokens,
		temperature: config.Temperature,
		rateLimiter: config.RateLimiter,
		logger:      config.Logger,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "gemini"
}

// Model returns the model identifier.
func (c *Client) Model() string {
	return c.model
}

// Chat sends a conversation to Google Gemini and returns the response.
func (c *Client) Chat(ctx context.Context, messages []types.Message, tools []shuttle.Tool) (*types.LLMResponse, error) {
	system, contents := convertMessages(messages)

	temperature := c.temperature
	req := &GenerateContentRequest{
		SystemInstruction: system,
		Contents:          contents,
		GenerationConfig: &GenerationConfig{
			Temperature:     &temperature,
			MaxOutputTokens: c.maxTokens,
		},
	}

	if len(tools) > 0 {
		req.Tools = []Tool{{FunctionDeclarations: convertTools(tools)}}
		req.ToolConfig = &ToolConfig{FunctionCallingConfig: FunctionCallingConfig{Mode: "AUTO"}}
	}

	var resp *GenerateContentResponse
	err := c.rateLimiter.Do(ctx, func(ctx context.Context) error {
		var callErr error
		resp, callErr = c.callAPI(ctx, req)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("API call failed: %w", err)
	}

	out := c.convertResponse(resp)
	c.logger.Debug("gemini response",
		zap.String("model", c.model),
		zap.String("stop_reason", out.StopReason),
		zap.Int("tool_calls", len(out.ToolCalls)),
		zap.Int("input_tokens", out.Usage.InputTokens),
		zap.Int("output_tokens", out.Usage.OutputTokens),
	)
	return out, nil
}

// callAPI makes the HTTP request to Gemini's API.
func (c *Client) callAPI(ctx context.Context, req *GenerateContentRequest) (*GenerateContentResponse, error) {
	apiURL := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("API error (status %d): %s: %w", httpResp.StatusCode, string(respBody), llm.ErrThrottled)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", httpResp.StatusCode, string(respBody))
	}

	var resp GenerateContentResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("gemini API error: %s (code: %d)", resp.Error.Message, resp.Error.Code)
	}

	return &resp, nil
}

// convertResponse converts a Gemini response to the provider-neutral form.
func (c *Client) convertResponse(resp *GenerateContentResponse) *types.LLMResponse {
	in := resp.UsageMetadata.PromptTokenCount
	out := resp.UsageMetadata.CandidatesTokenCount
	total := resp.UsageMetadata.TotalTokenCount
	if total == 0 {
		total = in + out
	}

	llmResp := &types.LLMResponse{
		Usage: types.Usage{
			InputTokens:  in,
			OutputTokens: out,
			TotalTokens:  total,
			CostUSD:      PricingFor(c.model).Cost(in, out),
		},
		Metadata: map[string]interface{}{
			"provider": "gemini",
			"model":    c.model,
		},
	}
	if resp.ModelVersion != "" {
		llmResp.Metadata["model_version"] = resp.ModelVersion
	}

	if len(resp.Candidates) == 0 {
		return llmResp
	}
	candidate := resp.Candidates[0]

	switch candidate.FinishReason {
	case "STOP":
		llmResp.StopReason = "end_turn"
	case "MAX_TOKENS":
		llmResp.StopReason = "max_tokens"
	case "SAFETY", "RECITATION":
		llmResp.StopReason = "content_filter"
	default:
		llmResp.StopReason = candidate.FinishReason
	}

	for i, part := range candidate.Content.Parts {
		if part.Text != "" {
			llmResp.Content += part.Text
		}
		if part.FunctionCall != nil {
			llmResp.StopReason = "tool_use"
			args := part.FunctionCall.Args
			if args == nil {
				args = map[string]interface{}{}
			}
			// Gemini does not issue call IDs.
			llmResp.ToolCalls = append(llmResp.ToolCalls, types.ToolCall{
				ID:    fmt.Sprintf("%s_%d", part.FunctionCall.Name, i),
				Name:  part.FunctionCall.Name,
				Input: args,
			})
		}
	}

	return llmResp
}

// PricingFor returns list prices per million tokens for a Gemini model.
// Unknown models are priced as gemini-2.0-flash.
func PricingFor(model string) tokens.Pricing {
	switch {
	case strings.HasPrefix(model, "gemini-2.5-pro"):
		return tokens.Pricing{InputPerMillion: 1.25, OutputPerMillion: 10.00}
	case strings.HasPrefix(model, "gemini-2.5-flash-lite"):
		return tokens.Pricing{InputPerMillion: 0.10, OutputPerMillion: 0.40}
	case strings.HasPrefix(model, "gemini-2.5-flash"):
		return tokens.Pricing{InputPerMillion: 0.30, OutputPerMillion: 2.50}
	case strings.HasPrefix(model, "gemini-2.0-flash-lite"):
		return tokens.Pricing{InputPerMillion: 0.075, OutputPerMillion: 0.30}
	default:
		return tokens.DefaultPricing
	}
}

// convertMessages splits out the system instruction and maps the remaining
// turns onto Gemini roles. Consecutive tool results share one turn.
func convertMessages(messages []types.Message) (*Content, []Content) {
	var system *Content
	var contents []Content

	for _, msg := range messages {
		switch msg.Role {
		case types.RoleSystem:
			if system == nil {
				system = &Content{}
			}
			system.Parts = append(system.Parts, Part{Text: msg.Content})

		case types.RoleUser:
			contents = append(contents, Content{
				Role:  "user",
				Parts: []Part{{Text: msg.Content}},
			})

		case types.RoleAssistant:
			parts := []Part{}
			if msg.Content != "" {
				parts = append(parts, Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				args := tc.Input
				if args == nil {
					args = map[string]interface{}{}
				}
				parts = append(parts, Part{
					FunctionCall: &FunctionCall{Name: tc.Name, Args: args},
				})
			}
			if len(parts) == 0 {
				continue
			}
			contents = append(contents, Content{Role: "model", Parts: parts})

		case types.RoleTool:
			name := msg.ToolName
			if name == "" {
				name = msg.ToolUseID
			}
			part := Part{
				FunctionResponse: &FunctionResponse{
					Name:     name,
					Response: map[string]interface{}{"result": msg.Content},
				},
			}
			if n := len(contents); n > 0 && contents[n-1].Role == "function" {
				contents[n-1].Parts = append(contents[n-1].Parts, part)
				continue
			}
			contents = append(contents, Content{Role: "function", Parts: []Part{part}})
		}
	}

	return system, contents
}

func convertTools(tools []shuttle.Tool) []FunctionDeclaration {
	declarations := make([]FunctionDeclaration, 0, len(tools))

	for _, tool := range tools {
		decl := FunctionDeclaration{
			Name:        tool.Name(),
			Description: tool.Description(),
		}

		// Gemini rejects object parameters without properties
		if schema := shuttle.NormalizeSchema(tool.InputSchema()); schema != nil && len(schema.Properties) > 0 {
			decl.Parameters = &Schema{
				Type:       schema.Type,
				Properties: convertSchemaProperties(schema.Properties),
				Required:   schema.Required,
			}
		}

		declarations = append(declarations, decl)
	}

	return declarations
}

func convertSchemaProperties(props map[string]*shuttle.JSONSchema) map[string]Schema {
	if props == nil {
		return nil
	}

	result := make(map[string]Schema, len(props))
	for key, schema := range props {
		if schema == nil {
			continue
		}
		s := Schema{
			Type:        schema.Type,
			Description: schema.Description,
			Enum:        schema.Enum,
			Required:    schema.Required,
		}
		if schema.Properties != nil {
			s.Properties = convertSchemaProperties(schema.Properties)
		}
		if schema.Items != nil {
			s.Items = &Schema{
				Type:        schema.Items.Type,
				Description: schema.Items.Description,
			}
		}
		result[key] = s
	}
	return result
}
