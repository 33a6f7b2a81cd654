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
package builtin

import "context"

type questionKey struct{}
type sessionKey struct{}

// WithQuestion attaches the user's question to ctx. get_schema uses it to
// prioritize tables when the model does not pass a focus.
func WithQuestion(ctx context.Context, question string) context.Context {
	return context.WithValue(ctx, questionKey{}, question)
}

// QuestionFromContext returns the question attached by WithQuestion.
func QuestionFromContext(ctx context.Context) string {
	q, _ := ctx.Value(questionKey{}).(string)
	return q
}

// WithSessionID attaches the id under which guardrail error history is kept.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

// SessionIDFromContext returns the session id, or "default".
func SessionIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(sessionKey{}).(string); ok && id != "" {
		return id
	}
	return "default"
}
