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

import (
	"github.com/teradata-labs/nl2sql/pkg/fabric"
	"github.com/teradata-labs/nl2sql/pkg/shaper"
	"github.com/teradata-labs/nl2sql/pkg/shuttle"
)

// Options configures the data tools.
type Options struct {
	// MaxTables caps the tables get_schema returns (0 = shaper default)
	MaxTables int

	// Query configures run_sql_query
	Query QueryToolConfig
}

// All creates the data tools bound to one backend.
func All(backend fabric.ExecutionBackend, guardrails *fabric.GuardrailEngine, sh *shaper.Shaper, opts Options) []shuttle.Tool {
	return []shuttle.Tool{
		NewSchemaTool(backend, sh, opts.MaxTables),
		NewQueryTool(backend, guardrails, sh, opts.Query),
	}
}

// Names returns the names of the data tools.
func Names() []string {
	return []string{SchemaToolName, QueryToolName}
}

// RegisterAll registers the data tools with a registry.
func RegisterAll(registry *shuttle.Registry, backend fabric.ExecutionBackend, guardrails *fabric.GuardrailEngine, sh *shaper.Shaper, opts Options) {
	for _, tool := range All(backend, guardrails, sh, opts) {
		registry.Register(tool)
	}
}
