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

import "fmt"

// Thresholds drive the optimization suggestions.
type Thresholds struct {
	// SchemaTokens flags a large average schema estimate
	SchemaTokens float64 `json:"schema_tokens" yaml:"schema_tokens" mapstructure:"schema_tokens"`

	// ToolOutputTokens flags large average tool outputs
	ToolOutputTokens float64 `json:"tool_output_tokens" yaml:"tool_output_tokens" mapstructure:"tool_output_tokens"`

	// AvgTokensPerRequest flags a high session average
	AvgTokensPerRequest int `json:"avg_tokens_per_request" yaml:"avg_tokens_per_request" mapstructure:"avg_tokens_per_request"`

	// CostUSD flags the accumulated session cost
	CostUSD float64 `json:"cost_usd" yaml:"cost_usd" mapstructure:"cost_usd"`

	// Window is how many recent requests are averaged (0 = all)
	Window int `json:"window" yaml:"window" mapstructure:"window"`
}

// DefaultThresholds returns the stock thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SchemaTokens:        1000,
		ToolOutputTokens:    500,
		AvgTokensPerRequest: 2000,
		CostUSD:             0.10,
		Window:              10,
	}
}

const (
	SuggestionNoData  = "Not enough data to analyze token usage yet."
	SuggestionHealthy = "Token usage is within the healthy range."
)

// Suggest evaluates the rule table against stats and the recent window. The
// output depends only on its arguments and keeps rule order: schema size,
// tool output size, average per request, accumulated cost.
func Suggest(stats Stats, recent []Usage, t Thresholds) []string {
	if len(recent) == 0 {
		return []string{SuggestionNoData}
	}

	var schema, tool float64
	for _, u := range recent {
		schema += float64(u.SchemaTokens)
		tool += float64(u.ToolOutputTokens)
	}
	schema /= float64(len(recent))
	tool /= float64(len(recent))

	var out []string
	if schema > t.SchemaTokens {
		out = append(out, fmt.Sprintf(
			"Schema is large (%.0f tokens). Consider filtering to the relevant tables and shortening descriptions.", schema))
	}
	if tool > t.ToolOutputTokens {
		out = append(out, fmt.Sprintf(
			"Tool outputs are large (%.0f tokens). Consider a lower row limit or selecting fewer columns.", tool))
	}
	if stats.AvgTokensPerRequest > t.AvgTokensPerRequest {
		out = append(out, fmt.Sprintf(
			"High average consumption (%d tokens/request). Consider retrieving only the relevant part of the schema.",
			stats.AvgTokensPerRequest))
	}
	if stats.EstimatedCostUSD > t.CostUSD {
		out = append(out, fmt.Sprintf(
			"Accumulated cost: $%.4f. Consider caching frequent answers or a cheaper model for simple queries.",
			stats.EstimatedCostUSD))
	}
	if len(out) == 0 {
		out = append(out, SuggestionHealthy)
	}
	return out
}
