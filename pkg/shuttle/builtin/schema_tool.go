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
	"context"
	"time"

	"github.com/teradata-labs/nl2sql/pkg/fabric"
	"github.com/teradata-labs/nl2sql/pkg/shaper"
	"github.com/teradata-labs/nl2sql/pkg/shuttle"
)

// SchemaToolName is the name the model calls get_schema by.
const SchemaToolName = "get_schema"

// SchemaTool returns the trimmed database schema as prompt text.
type SchemaTool struct {
	backend   fabric.ExecutionBackend
	shaper    *shaper.Shaper
	maxTables int
}

// NewSchemaTool creates a get_schema tool. maxTables <= 0 uses the shaper
// default.
func NewSchemaTool(backend fabric.ExecutionBackend, sh *shaper.Shaper, maxTables int) *SchemaTool {
	if sh == nil {
		sh = shaper.New(shaper.DefaultConfig())
	}
	return &SchemaTool{backend: backend, shaper: sh, maxTables: maxTables}
}

func (t *SchemaTool) Name() string {
	return SchemaToolName
}

func (t *SchemaTool) Description() string {
	return `Retrieves the database schema: tables, columns with types, primary keys,
foreign keys and comments.

Call this before writing SQL whenever you are unsure of table or column names.
The schema is cached; pass refresh=true only if the schema may have changed.`
}

func (t *SchemaTool) InputSchema() *shuttle.JSONSchema {
	return shuttle.NewObjectSchema(
		"Parameters for schema retrieval",
		map[string]*shuttle.JSONSchema{
			"refresh": shuttle.NewBooleanSchema("Force reloading the schema from the database").WithDefault(false),
			"focus":   shuttle.NewStringSchema("Optional keywords used to prioritize relevant tables"),
		},
		nil,
	)
}

func (t *SchemaTool) Backend() string {
	return t.backend.Name()
}

func (t *SchemaTool) Execute(ctx context.Context, params map[string]interface{}) (*shuttle.Result, error) {
	start := time.Now()

	refresh, _ := params["refresh"].(bool)
	focus, _ := params["focus"].(string)
	if focus == "" {
		focus = QuestionFromContext(ctx)
	}

	schema, err := t.backend.LoadSchema(ctx, refresh)
	if err != nil {
		return &shuttle.Result{
			Success: false,
			Error: &shuttle.Error{
				Code:       "SCHEMA_UNAVAILABLE",
				Message:    err.Error(),
				Retryable:  true,
				Suggestion: "Retry get_schema with refresh=true",
			},
			ExecutionTimeMs: time.Since(start).Milliseconds(),
		}, nil
	}

	if schema == nil {
		schema = &fabric.DatabaseSchema{Dialect: t.backend.Name()}
	}

	trimmed := t.shaper.OptimizeSchema(schema, focus, t.maxTables)
	return &shuttle.Result{
		Success:    true,
		Data:       trimmed,
		LLMContent: shaper.RenderSchema(trimmed),
		Metadata: map[string]interface{}{
			"table_count":  len(trimmed.Tables),
			"total_tables": len(schema.Tables),
			"refresh":      refresh,
		},
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}, nil
}
