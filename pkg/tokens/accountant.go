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
package tokens

import (
	"math"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// DefaultModel is recorded when a request does not name its model.
const DefaultModel = "gemini-2.0-flash"

// Pricing holds USD rates per one million tokens.
type Pricing struct {
	InputPerMillion  float64 `json:"input_per_million" yaml:"input_per_million"`
	OutputPerMillion float64 `json:"output_per_million" yaml:"output_per_million"`
}

// DefaultPricing approximates Gemini 2.0 Flash list prices.
var DefaultPricing = Pricing{InputPerMillion: 0.075, OutputPerMillion: 0.30}

// Cost returns the USD cost of the given token counts, rounded to six
// decimals. It is a pure function of its inputs.
func (p Pricing) Cost(inputTokens, outputTokens int) float64 {
	cost := float64(inputTokens)/1_000_000*p.InputPerMillion +
		float64(outputTokens)/1_000_000*p.OutputPerMillion
	return math.Round(cost*1e6) / 1e6
}

// Components are the texts that made up one request.
type Components struct {
	SystemPrompt  string
	Schema        string
	Question      string
	ToolOutputs   []string
	ModelResponse string
	Model         string
}

// Usage is the estimate for one request.
type Usage struct {
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`

	InputTokens  int `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens int `json:"output_tokens" yaml:"output_tokens"`
	TotalTokens  int `json:"total_tokens" yaml:"total_tokens"`

	SystemPromptTokens int `json:"system_prompt_tokens" yaml:"system_prompt_tokens"`
	SchemaTokens       int `json:"schema_tokens" yaml:"schema_tokens"`
	UserQueryTokens    int `json:"user_query_tokens" yaml:"user_query_tokens"`
	ToolOutputTokens   int `json:"tool_output_tokens" yaml:"tool_output_tokens"`

	Question         string  `json:"question" yaml:"question"`
	Model            string  `json:"model" yaml:"model"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd" yaml:"estimated_cost_usd"`
}

// Stats are the session totals.
type Stats struct {
	InputTokens         int     `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens        int     `json:"output_tokens" yaml:"output_tokens"`
	TotalTokens         int     `json:"total_tokens" yaml:"total_tokens"`
	Requests            int     `json:"requests" yaml:"requests"`
	EstimatedCostUSD    float64 `json:"estimated_cost_usd" yaml:"estimated_cost_usd"`
	AvgTokensPerRequest int     `json:"avg_tokens_per_request" yaml:"avg_tokens_per_request"`
	HistoryCount        int     `json:"history_count" yaml:"history_count"`
}

// Config configures an Accountant.
type Config struct {
	// Estimator defaults to HeuristicEstimator
	Estimator Estimator

	// Pricing defaults to DefaultPricing
	Pricing *Pricing

	// Thresholds default to DefaultThresholds
	Thresholds *Thresholds

	// QuestionMaxChars caps the question stored in history (default 100)
	QuestionMaxChars int

	Logger *zap.Logger
}

// Accountant is the session-wide token ledger. One instance is shared by
// every request in the process; all methods are safe for concurrent use.
type Accountant struct {
	estimator        Estimator
	pricing          Pricing
	thresholds       Thresholds
	questionMaxChars int
	logger           *zap.Logger

	mu      sync.Mutex
	history []Usage
	totals  Stats

	// now is replaced in tests
	now func() time.Time
}

// NewAccountant creates an empty ledger.
func NewAccountant(cfg Config) *Accountant {
	a := &Accountant{
		estimator:        cfg.Estimator,
		pricing:          DefaultPricing,
		thresholds:       DefaultThresholds(),
		questionMaxChars: cfg.QuestionMaxChars,
		logger:           cfg.Logger,
		now:              time.Now,
	}
	if a.estimator == nil {
		a.estimator = HeuristicEstimator{}
	}
	if cfg.Pricing != nil {
		a.pricing = *cfg.Pricing
	}
	if cfg.Thresholds != nil {
		a.thresholds = *cfg.Thresholds
	}
	if a.questionMaxChars <= 0 {
		a.questionMaxChars = 100
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	return a
}

// Estimate returns the estimated token count of text.
func (a *Accountant) Estimate(text string) int {
	return a.estimator.Estimate(text)
}

// Pricing returns the rates used for cost estimates.
func (a *Accountant) Pricing() Pricing {
	return a.pricing
}

// RecordRequest estimates one request and adds it to the session totals.
// The returned Usage is the delta that was added.
func (a *Accountant) RecordRequest(c Components) Usage {
	u := Usage{
		SystemPromptTokens: a.Estimate(c.SystemPrompt),
		SchemaTokens:       a.Estimate(c.Schema),
		UserQueryTokens:    a.Estimate(c.Question),
		Question:           truncateRunes(c.Question, a.questionMaxChars),
		Model:              c.Model,
	}
	for _, out := range c.ToolOutputs {
		u.ToolOutputTokens += a.Estimate(out)
	}
	if u.Model == "" {
		u.Model = DefaultModel
	}
	u.InputTokens = u.SystemPromptTokens + u.SchemaTokens + u.UserQueryTokens + u.ToolOutputTokens
	u.OutputTokens = a.Estimate(c.ModelResponse)
	u.TotalTokens = u.InputTokens + u.OutputTokens
	u.EstimatedCostUSD = a.pricing.Cost(u.InputTokens, u.OutputTokens)

	a.mu.Lock()
	u.Timestamp = a.now()
	a.history = append(a.history, u)
	a.totals.InputTokens += u.InputTokens
	a.totals.OutputTokens += u.OutputTokens
	a.totals.TotalTokens += u.TotalTokens
	a.totals.Requests++
	a.totals.EstimatedCostUSD = a.pricing.Cost(a.totals.InputTokens, a.totals.OutputTokens)
	a.mu.Unlock()

	a.logger.Info("Token usage recorded",
		zap.Int("input_tokens", u.InputTokens),
		zap.Int("output_tokens", u.OutputTokens),
		zap.Int("total_tokens", u.TotalTokens),
		zap.Float64("cost_usd", u.EstimatedCostUSD))

	return u
}

// Stats returns the session totals.
func (a *Accountant) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.statsLocked()
}

func (a *Accountant) statsLocked() Stats {
	s := a.totals
	s.AvgTokensPerRequest = s.TotalTokens / max(1, s.Requests)
	s.HistoryCount = len(a.history)
	return s
}

// History returns a copy of the per-request history, oldest first.
func (a *Accountant) History() []Usage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Usage(nil), a.history...)
}

// Suggestions analyzes the recent history against the configured thresholds.
func (a *Accountant) Suggestions() []string {
	a.mu.Lock()
	stats := a.statsLocked()
	recent := a.recentLocked()
	a.mu.Unlock()
	return Suggest(stats, recent, a.thresholds)
}

func (a *Accountant) recentLocked() []Usage {
	window := a.thresholds.Window
	if window <= 0 || window > len(a.history) {
		window = len(a.history)
	}
	return append([]Usage(nil), a.history[len(a.history)-window:]...)
}

// Reset clears the history and totals. Resetting an empty ledger is a no-op.
func (a *Accountant) Reset() {
	a.mu.Lock()
	a.history = nil
	a.totals = Stats{}
	a.mu.Unlock()
	a.logger.Info("Token usage session reset")
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
