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
package shuttle

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode"

	"go.uber.org/zap"
)

// Executor executes tools with timing, parameter normalization and
// observer notification.
type Executor struct {
	registry *Registry
	logger   *zap.Logger

	mu        sync.RWMutex
	observers []ToolObserver
}

// NewExecutor creates a new tool executor.
func NewExecutor(registry *Registry) *Executor {
	return &Executor{
		registry: registry,
		logger:   zap.NewNop(),
	}
}

// SetLogger configures the executor logger.
func (e *Executor) SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	e.logger = logger
}

// AddObserver registers an observer notified on every tool call made through
// this executor, for its whole lifetime. Per-request observers belong in the
// context instead (see WithObservers).
func (e *Executor) AddObserver(o ToolObserver) {
	if o == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, o)
}

// Registry returns the registry backing this executor.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Execute executes a tool by name with the given parameters.
// Tool failures are reported through Result.Error; the returned error is only
// non-nil when the tool does not exist.
func (e *Executor) Execute(ctx context.Context, toolName string, params map[string]interface{}) (*Result, error) {
	tool, ok := e.registry.Get(toolName)
	if !ok {
		err := fmt.Errorf("tool not found: %s", toolName)
		e.notify(ctx, ToolCallEvent{Name: toolName, Args: params, Err: err})
		return nil, err
	}
	return e.ExecuteWithTool(ctx, tool, params)
}

// ExecuteWithTool executes a specific tool instance (not from registry).
func (e *Executor) ExecuteWithTool(ctx context.Context, tool Tool, params map[string]interface{}) (*Result, error) {
	// LLMs naturally use snake_case, but some schemas use camelCase
	finalParams := normalizeParametersToSchema(tool, params)

	if err := ValidateParams(tool.InputSchema(), finalParams); err != nil {
		result := &Result{
			Success: false,
			Error: &Error{
				Code:       "invalid_parameters",
				Message:    err.Error(),
				Retryable:  true,
				Suggestion: "Call the tool again with arguments matching its input schema",
			},
		}
		e.notify(ctx, ToolCallEvent{Name: tool.Name(), Args: finalParams, Result: result})
		return result, nil
	}

	start := time.Now()
	result, err := tool.Execute(ctx, finalParams)
	duration := time.Since(start)

	if err != nil {
		e.logger.Debug("tool execution failed",
			zap.String("tool", tool.Name()),
			zap.Duration("duration", duration),
			zap.Error(err))
		result = &Result{
			Success:         false,
			Error:           &Error{Code: "execution_failed", Message: err.Error(), Retryable: false},
			ExecutionTimeMs: duration.Milliseconds(),
		}
	} else if result != nil {
		// Executor timing is authoritative
		result.ExecutionTimeMs = duration.Milliseconds()
	} else {
		result = &Result{
			Success:         true,
			ExecutionTimeMs: duration.Milliseconds(),
		}
	}

	e.notify(ctx, ToolCallEvent{
		Name:     tool.Name(),
		Args:     finalParams,
		Result:   result,
		Err:      err,
		Duration: duration,
	})

	return result, nil
}

// notify delivers the event to executor-level observers first, then to the
// observers carried by ctx, in registration order.
func (e *Executor) notify(ctx context.Context, event ToolCallEvent) {
	e.mu.RLock()
	observers := make([]ToolObserver, 0, len(e.observers))
	observers = append(observers, e.observers...)
	e.mu.RUnlock()
	observers = append(observers, ObserversFromContext(ctx)...)

	for _, o := range observers {
		e.deliver(ctx, o, event)
	}
}

func (e *Executor) deliver(ctx context.Context, o ToolObserver, event ToolCallEvent) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tool observer panicked",
				zap.String("tool", event.Name),
				zap.Any("panic", r))
		}
	}()
	o.OnToolCall(ctx, event)
}

// normalizeParametersToSchema normalizes parameter names to match the tool's schema.
func normalizeParametersToSchema(tool Tool, params map[string]interface{}) map[string]interface{} {
	if len(params) == 0 {
		return params
	}

	schema := tool.InputSchema()
	if schema == nil || schema.Properties == nil {
		return params
	}

	schemaKeys := make(map[string]string, len(schema.Properties))
	for key := range schema.Properties {
		schemaKeys[toLowerUnderscore(key)] = key
	}

	normalized := make(map[string]interface{}, len(params))
	for key, value := range params {
		if schemaKey, exists := schemaKeys[toLowerUnderscore(key)]; exists {
			normalized[schemaKey] = value
		} else {
			normalized[key] = value
		}
	}
	return normalized
}

// toLowerUnderscore converts any naming convention to lowercase with underscores.
func toLowerUnderscore(s string) string {
	if s == "" {
		return ""
	}

	var result []rune
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) {
			result = append(result, '_')
		}
		result = append(result, unicode.ToLower(r))
	}
	return string(result)
}
