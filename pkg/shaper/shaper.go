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

// Package shaper reduces query results to a token-efficient payload: it drops
// redundant fields, shortens long values, caps the row count and summarizes
// numeric columns. It also renders rows and schemas for the model.
package shaper

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/teradata-labs/nl2sql/pkg/fabric"
)

// DefaultRedundantFields are dropped from results unless the question names them.
var DefaultRedundantFields = []string{
	"created_at", "updated_at", "deleted_at",
	"password", "password_hash", "token",
	"metadata", "extra_data", "raw_data",
}

// DefaultDateKeywords in a question keep date-like fields.
var DefaultDateKeywords = []string{
	"fecha", "date", "cuando", "when", "ultimo", "last", "primero", "first",
}

// dateFieldMarkers identify date-like field names.
var dateFieldMarkers = []string{"date", "fecha", "created", "updated", "time"}

// Config configures the Shaper.
type Config struct {
	// MaxRows caps the rows kept (default 20, <0 disables)
	MaxRows int

	// MaxCharsPerField caps string values in runes (default 100, <0 disables)
	MaxCharsPerField int

	// SummaryThreshold emits a summary at or above this many rows even when
	// nothing was truncated (default 6)
	SummaryThreshold int

	// SummaryMaxColumns limits averaged columns in the summary (default 2,
	// <0 averages every numeric column)
	SummaryMaxColumns int

	// RedundantFields are exact, case-sensitive field names to drop
	RedundantFields []string

	// DateKeywords in the question keep date-like fields
	DateKeywords []string

	// SchemaKeywords always count as relevant when trimming schemas
	SchemaKeywords []string

	// AuditColumns are dropped from schemas unless the question asks about dates
	AuditColumns []string
}

// DefaultConfig returns the default shaping policy.
func DefaultConfig() Config {
	return Config{
		MaxRows:           20,
		MaxCharsPerField:  100,
		SummaryThreshold:  6,
		SummaryMaxColumns: 2,
		RedundantFields:   append([]string(nil), DefaultRedundantFields...),
		DateKeywords:      append([]string(nil), DefaultDateKeywords...),
		SchemaKeywords: []string{
			"cliente", "client", "orden", "order", "producto", "product",
			"venta", "sale", "factura", "invoice", "pago", "payment",
		},
		AuditColumns: []string{"created_at", "updated_at", "deleted_at", "created_by", "updated_by"},
	}
}

// ShapedResult is the reduced form of a result set.
type ShapedResult struct {
	// Rows holds at most MaxRows rows, in original order
	Rows []map[string]interface{} `json:"rows"`

	// Columns is the post-shaping column set, in original order
	Columns []string `json:"columns"`

	// RowCount is the original number of rows
	RowCount int `json:"row_count"`

	// DisplayedRows is len(Rows)
	DisplayedRows int `json:"displayed_rows"`

	Truncated bool `json:"truncated"`

	// Summary is set when truncated or RowCount >= SummaryThreshold
	Summary *string `json:"summary"`

	// FieldsRemoved lists the columns dropped as redundant
	FieldsRemoved []string `json:"fields_removed,omitempty"`
}

// Shaper applies a Config. It holds no mutable state and is safe for
// concurrent use.
type Shaper struct {
	cfg       Config
	redundant map[string]struct{}
}

// New creates a Shaper. Zero values in cfg fall back to DefaultConfig.
func New(cfg Config) *Shaper {
	def := DefaultConfig()
	if cfg.MaxRows == 0 {
		cfg.MaxRows = def.MaxRows
	}
	if cfg.MaxCharsPerField == 0 {
		cfg.MaxCharsPerField = def.MaxCharsPerField
	}
	if cfg.SummaryThreshold <= 0 {
		cfg.SummaryThreshold = def.SummaryThreshold
	}
	if cfg.SummaryMaxColumns == 0 {
		cfg.SummaryMaxColumns = def.SummaryMaxColumns
	}
	if cfg.RedundantFields == nil {
		cfg.RedundantFields = def.RedundantFields
	}
	if cfg.DateKeywords == nil {
		cfg.DateKeywords = def.DateKeywords
	}
	if cfg.SchemaKeywords == nil {
		cfg.SchemaKeywords = def.SchemaKeywords
	}
	if cfg.AuditColumns == nil {
		cfg.AuditColumns = def.AuditColumns
	}

	redundant := make(map[string]struct{}, len(cfg.RedundantFields))
	for _, f := range cfg.RedundantFields {
		redundant[f] = struct{}{}
	}
	return &Shaper{cfg: cfg, redundant: redundant}
}

// Config returns the effective configuration.
func (s *Shaper) Config() Config {
	return s.cfg
}

// Shape reduces rows. columns gives the column order; when empty it is taken
// from the first row's keys, sorted. Rows are never reordered and values
// are only removed or shortened.
func (s *Shaper) Shape(rows []map[string]interface{}, columns []string, question string) ShapedResult {
	if len(columns) == 0 {
		columns = ColumnsOf(rows)
	}

	if len(rows) == 0 {
		return ShapedResult{
			Rows:    []map[string]interface{}{},
			Columns: append([]string{}, columns...),
		}
	}

	kept, removed := s.relevantColumns(columns, question)

	working := rows
	truncated := false
	if s.cfg.MaxRows > 0 && len(rows) > s.cfg.MaxRows {
		working = rows[:s.cfg.MaxRows]
		truncated = true
	}

	shaped := make([]map[string]interface{}, 0, len(working))
	for _, row := range working {
		out := make(map[string]interface{}, len(kept))
		for _, col := range kept {
			if v, ok := row[col]; ok {
				out[col] = s.compressValue(v)
			}
		}
		shaped = append(shaped, out)
	}

	result := ShapedResult{
		Rows:          shaped,
		Columns:       kept,
		RowCount:      len(rows),
		DisplayedRows: len(shaped),
		Truncated:     truncated,
		FieldsRemoved: removed,
	}
	if truncated || len(rows) >= s.cfg.SummaryThreshold {
		summary := s.summarize(rows, kept, truncated)
		result.Summary = &summary
	}
	return result
}

// relevantColumns splits columns into kept and removed. It never removes
// every column.
func (s *Shaper) relevantColumns(columns []string, question string) ([]string, []string) {
	q := normalizeText(question)
	askedForDates := containsAny(q, s.cfg.DateKeywords)

	kept := make([]string, 0, len(columns))
	var removed []string
	for _, col := range columns {
		if _, redundant := s.redundant[col]; !redundant || mentionsField(q, col) {
			kept = append(kept, col)
			continue
		}
		if askedForDates && containsAny(strings.ToLower(col), dateFieldMarkers) {
			kept = append(kept, col)
			continue
		}
		removed = append(removed, col)
	}

	if len(kept) == 0 {
		return append([]string{}, columns...), nil
	}
	return kept, removed
}

func (s *Shaper) compressValue(v interface{}) interface{} {
	limit := s.cfg.MaxCharsPerField
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return truncateRunes(val, limit)
	case []byte:
		return truncateRunes(string(val), limit)
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("[Complex object, %T]", val)
		}
		if limit > 0 && len(b) > limit {
			return fmt.Sprintf("[Complex object, %d chars]", len(b))
		}
		return val
	case float64, float32:
		return fabric.JSONSafe(val)
	}
	return v
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "..."
}

// summarize describes the full original result: its size and the average of
// the first SummaryMaxColumns numeric columns other than identifiers.
func (s *Shaper) summarize(rows []map[string]interface{}, columns []string, truncated bool) string {
	parts := []string{fmt.Sprintf("Total: %d rows", len(rows))}
	if truncated {
		parts = append(parts, fmt.Sprintf("(showing first %d)", s.cfg.MaxRows))
	}

	averaged := 0
	for _, col := range columns {
		if isIdentifierColumn(col) {
			continue
		}
		if s.cfg.SummaryMaxColumns > 0 && averaged >= s.cfg.SummaryMaxColumns {
			break
		}
		avg, ok := columnAverage(rows, col)
		if !ok {
			continue
		}
		parts = append(parts, fmt.Sprintf("Avg %s: %.2f", col, avg))
		averaged++
	}
	return strings.Join(parts, " | ")
}

// columnAverage averages a column whose non-null values are all numeric.
func columnAverage(rows []map[string]interface{}, col string) (float64, bool) {
	var sum float64
	n := 0
	for _, row := range rows {
		v, ok := row[col]
		if !ok || v == nil {
			continue
		}
		f, ok := fabric.ToFloat64(v)
		if !ok {
			return 0, false
		}
		sum += f
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func isIdentifierColumn(col string) bool {
	c := strings.ToLower(col)
	return c == "id" || strings.HasSuffix(c, "_id")
}

// ColumnsOf returns the keys of the first row, sorted.
func ColumnsOf(rows []map[string]interface{}) []string {
	if len(rows) == 0 {
		return []string{}
	}
	cols := make([]string, 0, len(rows[0]))
	for k := range rows[0] {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}
