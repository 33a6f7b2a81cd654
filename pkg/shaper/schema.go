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
package shaper

import (
	"fmt"
	"strings"

	"github.com/teradata-labs/nl2sql/pkg/fabric"
)

const (
	defaultMaxTables = 10

	// Tables kept regardless of keyword match, in discovery order
	minTablesKept = 5
)

var schemaDateKeywords = []string{"fecha", "date", "cuando", "created", "updated"}

// OptimizeSchema trims a schema for the prompt. It keeps at most maxTables
// tables: the first few always, the rest only when their name contains a
// question keyword or a configured domain keyword. Audit columns are dropped
// unless the question is about dates. The input schema is not modified.
func (s *Shaper) OptimizeSchema(schema *fabric.DatabaseSchema, question string, maxTables int) *fabric.DatabaseSchema {
	if schema == nil {
		return nil
	}
	if maxTables <= 0 {
		maxTables = defaultMaxTables
	}

	q := normalizeText(question)
	kws := append(keywords(q), s.cfg.SchemaKeywords...)
	keepAudit := containsAny(q, schemaDateKeywords)

	audit := make(map[string]struct{}, len(s.cfg.AuditColumns))
	for _, c := range s.cfg.AuditColumns {
		audit[c] = struct{}{}
	}

	out := &fabric.DatabaseSchema{
		Dialect: schema.Dialect,
		Schema:  schema.Schema,
		Tables:  make([]fabric.TableSchema, 0, min(len(schema.Tables), maxTables)),
	}
	for _, table := range schema.Tables {
		if len(out.Tables) >= maxTables {
			break
		}
		name := strings.ToLower(table.Name)
		if q != "" && len(out.Tables) >= minTablesKept && !containsAny(name, kws) {
			continue
		}

		trimmed := table
		trimmed.Fields = make([]fabric.Field, 0, len(table.Fields))
		for _, f := range table.Fields {
			if _, isAudit := audit[strings.ToLower(f.Name)]; isAudit && !keepAudit {
				continue
			}
			trimmed.Fields = append(trimmed.Fields, f)
		}
		trimmed.PrimaryKeys = append([]string(nil), table.PrimaryKeys...)
		out.Tables = append(out.Tables, trimmed)
	}
	return out
}

// RenderSchema writes a schema in the compact text form given to the model:
//
//	Table: ventas -- monthly sales
//	  - id INTEGER PK
//	  - cliente_id INTEGER FK -> clientes.id
func RenderSchema(schema *fabric.DatabaseSchema) string {
	if schema == nil || len(schema.Tables) == 0 {
		return "No tables found."
	}

	var b strings.Builder
	for i, table := range schema.Tables {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Table: " + table.Name)
		if table.Comment != "" {
			b.WriteString(" -- " + table.Comment)
		}
		b.WriteString("\n")

		for _, f := range table.Fields {
			line := fmt.Sprintf("  - %s %s", f.Name, f.Type)
			if f.PrimaryKey {
				line += " PK"
			}
			if !f.Nullable && !f.PrimaryKey {
				line += " NOT NULL"
			}
			if f.ForeignKey != nil {
				line += fmt.Sprintf(" FK -> %s.%s", f.ForeignKey.ReferencedTable, f.ForeignKey.ReferencedColumn)
			}
			if f.Description != "" {
				line += " -- " + f.Description
			}
			b.WriteString(line + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
