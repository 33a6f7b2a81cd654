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
	"time"
)

// ToolCallEvent describes one completed tool invocation.
type ToolCallEvent struct {
	// Name is the tool that was called
	Name string

	// Args are the normalized parameters the tool received
	Args map[string]interface{}

	// Result is the tool outcome. Nil only when the tool could not be resolved.
	Result *Result

	// Err is the Go error returned by the tool, if any. Tool-level failures
	// reported through Result.Error leave Err nil.
	Err error

	// Duration is the wall time spent inside the tool
	Duration time.Duration
}

// Failed reports whether the call did not succeed, either because the tool
// returned an error or because it reported a failed Result.
func (e ToolCallEvent) Failed() bool {
	return e.Err != nil || e.Result == nil || !e.Result.Success
}

// ErrorMessage returns the failure message for a failed call.
func (e ToolCallEvent) ErrorMessage() string {
	switch {
	case e.Err != nil:
		return e.Err.Error()
	case e.Result == nil:
		return "tool returned no result"
	case e.Result.Error != nil:
		return e.Result.Error.Message
	case !e.Result.Success:
		return "tool call failed"
	}
	return ""
}

// ToolObserver is notified synchronously after every tool call, on the
// goroutine that made the call.
type ToolObserver interface {
	OnToolCall(ctx context.Context, event ToolCallEvent)
}

// ToolObserverFunc adapts a function to ToolObserver.
type ToolObserverFunc func(ctx context.Context, event ToolCallEvent)

// OnToolCall implements ToolObserver.
func (f ToolObserverFunc) OnToolCall(ctx context.Context, event ToolCallEvent) {
	f(ctx, event)
}

type observersKey struct{}

// WithObservers returns a context carrying the given observers in addition to
// any already attached. Executors notify them for calls made with that context.
func WithObservers(ctx context.Context, observers ...ToolObserver) context.Context {
	existing := ObserversFromContext(ctx)
	merged := make([]ToolObserver, 0, len(existing)+len(observers))
	merged = append(merged, existing...)
	for _, o := range observers {
		if o != nil {
			merged = append(merged, o)
		}
	}
	return context.WithValue(ctx, observersKey{}, merged)
}

// ObserversFromContext returns the observers attached to ctx.
func ObserversFromContext(ctx context.Context) []ToolObserver {
	if ctx == nil {
		return nil
	}
	observers, _ := ctx.Value(observersKey{}).([]ToolObserver)
	return observers
}
