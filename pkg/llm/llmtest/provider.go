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
// Package llmtest provides a scripted types.LLMProvider for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/teradata-labs/nl2sql/pkg/shuttle"
	"github.com/teradata-labs/nl2sql/pkg/types"
)

// Step is one scripted model turn.
type Step struct {
	Content   string
	ToolCalls []types.ToolCall
	Usage     types.Usage
	Err       error
}

// Text returns a step answering with content.
func Text(content string) Step {
	return Step{Content: content, Usage: types.Usage{InputTokens: 50, OutputTokens: 25, TotalTokens: 75}}
}

// Call returns a step requesting one tool call.
func Call(id, name string, input map[string]interface{}) Step {
	return Step{
		ToolCalls: []types.ToolCall{{ID: id, Name: name, Input: input}},
		Usage:     types.Usage{InputTokens: 50, OutputTokens: 25, TotalTokens: 75},
	}
}

// Provider replays Steps in order. Once they run out it repeats Default, or
// answers "done" when Default is empty.
type Provider struct {
	Steps   []Step
	Default *Step

	mu       sync.Mutex
	calls    int
	requests [][]types.Message
	tools    [][]string
}

// New creates a provider replaying steps.
func New(steps ...Step) *Provider {
	return &Provider{Steps: steps}
}

// Chat implements types.LLMProvider.
func (p *Provider) Chat(ctx context.Context, messages []types.Message, tools []shuttle.Tool) (*types.LLMResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name()
	}
	p.requests = append(p.requests, append([]types.Message(nil), messages...))
	p.tools = append(p.tools, names)

	var step Step
	switch {
	case p.calls < len(p.Steps):
		step = p.Steps[p.calls]
	case p.Default != nil:
		step = *p.Default
	default:
		step = Text("done")
	}
	p.calls++

	if step.Err != nil {
		return nil, step.Err
	}
	stop := "end_turn"
	if len(step.ToolCalls) > 0 {
		stop = "tool_use"
	}
	return &types.LLMResponse{
		Content:    step.Content,
		ToolCalls:  step.ToolCalls,
		StopReason: stop,
		Usage:      step.Usage,
	}, nil
}

func (p *Provider) Name() string  { return "llmtest" }
func (p *Provider) Model() string { return "scripted" }

// Calls returns how many times Chat ran.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Requests returns the conversation sent on each call.
func (p *Provider) Requests() [][]types.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]types.Message(nil), p.requests...)
}

// ToolNames returns the tool names offered on each call.
func (p *Provider) ToolNames() [][]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]string(nil), p.tools...)
}
