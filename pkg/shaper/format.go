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
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LLM output formats.
const (
	FormatCompact  = "compact"
	FormatReadable = "readable"
	FormatJSON     = "json"
)

const readableCellWidth = 50

// FormatForLLM renders up to MaxRows rows as text for the model.
//
//	compact:  "1. region=Norte | total=2" per row, nulls omitted
//	readable: markdown table, cells cut at 50 characters
//	json:     compact JSON array preserving column order
//
// Unknown formats fall back to json.
func (s *Shaper) FormatForLLM(rows []map[string]interface{}, columns []string, format string) string {
	if len(rows) == 0 {
		return "No data"
	}
	if len(columns) == 0 {
		columns = ColumnsOf(rows)
	}
	if s.cfg.MaxRows > 0 && len(rows) > s.cfg.MaxRows {
		rows = rows[:s.cfg.MaxRows]
	}

	switch format {
	case FormatCompact:
		lines := make([]string, 0, len(rows))
		for i, row := range rows {
			parts := make([]string, 0, len(columns))
			for _, col := range columns {
				v, ok := row[col]
				if !ok || v == nil {
					continue
				}
				parts = append(parts, col+"="+formatValue(s.compressValue(v)))
			}
			lines = append(lines, fmt.Sprintf("%d. %s", i+1, strings.Join(parts, " | ")))
		}
		return strings.Join(lines, "\n")

	case FormatReadable:
		var b strings.Builder
		b.WriteString("| " + strings.Join(columns, " | ") + " |\n")
		sep := make([]string, len(columns))
		for i := range sep {
			sep[i] = "---"
		}
		b.WriteString("| " + strings.Join(sep, " | ") + " |")
		for _, row := range rows {
			cells := make([]string, len(columns))
			for i, col := range columns {
				if v, ok := row[col]; ok && v != nil {
					cells[i] = truncateCell(formatValue(v), readableCellWidth)
				}
			}
			b.WriteString("\n| " + strings.Join(cells, " | ") + " |")
		}
		return b.String()

	default:
		return orderedJSON(rows, columns)
	}
}

func truncateCell(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width])
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case time.Time:
		if val.Hour() == 0 && val.Minute() == 0 && val.Second() == 0 && val.Nanosecond() == 0 {
			return val.Format("2006-01-02")
		}
		return val.Format(time.RFC3339)
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
	return fmt.Sprint(v)
}

// orderedJSON writes rows as a JSON array whose objects keep column order.
func orderedJSON(rows []map[string]interface{}, columns []string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	out := bytes.NewBufferString("[")
	for i, row := range rows {
		if i > 0 {
			out.WriteByte(',')
		}
		out.WriteByte('{')
		first := true
		for _, col := range columns {
			v, ok := row[col]
			if !ok {
				continue
			}
			if !first {
				out.WriteByte(',')
			}
			first = false

			buf.Reset()
			_ = enc.Encode(col)
			out.Write(bytes.TrimRight(buf.Bytes(), "\n"))
			out.WriteByte(':')

			buf.Reset()
			if err := enc.Encode(v); err != nil {
				buf.Reset()
				_ = enc.Encode(fmt.Sprint(v))
			}
			out.Write(bytes.TrimRight(buf.Bytes(), "\n"))
		}
		out.WriteByte('}')
	}
	out.WriteByte(']')
	return out.String()
}
