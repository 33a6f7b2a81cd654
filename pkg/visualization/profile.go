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
package visualization

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/teradata-labs/nl2sql/internal/textnorm"
	"github.com/teradata-labs/nl2sql/pkg/fabric"
)

// columnProfile summarizes one column's values.
type columnProfile struct {
	Name string

	// NonNull counts non-nil values
	NonNull int

	// Numeric: every non-nil value is a Go number
	Numeric bool

	// Integral: Numeric and every value is a whole number
	Integral bool

	// NonNegative: Numeric and no value is below zero
	NonNegative bool

	Sum float64

	// TimeValues: every non-nil value is a time or an ISO date string
	TimeValues bool

	// TimeName: the column name contains a time token (mes, year, ...)
	TimeName bool

	// Monotonic: values are all present and strictly ordered one way
	Monotonic bool

	// Distinct is the number of distinct values
	Distinct int
}

// dataset is the analyzed classifier input.
type dataset struct {
	rows     []map[string]interface{}
	columns  []string
	profiles []columnProfile

	// question is folded (lowercase, no accents)
	question string

	// timeHint: the question asks for a progression over time
	timeHint bool
}

func (d *dataset) rowCount() int    { return len(d.rows) }
func (d *dataset) columnCount() int { return len(d.columns) }

// temporal reports whether column i can serve as a time axis.
func (d *dataset) temporal(i int) bool {
	p := d.profiles[i]
	switch {
	case p.TimeValues:
		return true
	case p.TimeName && p.Monotonic:
		return true
	case d.timeHint && p.Integral && p.Monotonic:
		return true
	}
	return false
}

func analyze(in Input, cfg Config) *dataset {
	columns := in.Columns
	if len(columns) == 0 && len(in.Rows) > 0 {
		for k := range in.Rows[0] {
			columns = append(columns, k)
		}
		sort.Strings(columns)
	}

	d := &dataset{
		rows:     in.Rows,
		columns:  columns,
		profiles: make([]columnProfile, len(columns)),
		question: textnorm.Fold(in.Question),
	}
	d.timeHint = textnorm.ContainsAny(d.question, cfg.QuestionTimeHints)

	timeNames := make(map[string]struct{}, len(cfg.TimeColumnNames))
	for _, n := range cfg.TimeColumnNames {
		timeNames[n] = struct{}{}
	}

	for i, col := range columns {
		d.profiles[i] = profileColumn(col, in.Rows, timeNames)
	}
	return d
}

func profileColumn(name string, rows []map[string]interface{}, timeNames map[string]struct{}) columnProfile {
	p := columnProfile{
		Name:        name,
		Numeric:     true,
		Integral:    true,
		NonNegative: true,
		TimeValues:  true,
	}

	for _, w := range textnorm.Words(textnorm.Fold(strings.ReplaceAll(name, "_", " "))) {
		if _, ok := timeNames[w]; ok {
			p.TimeName = true
			break
		}
	}

	values := make([]interface{}, 0, len(rows))
	distinct := make(map[string]struct{})
	for _, row := range rows {
		v := row[name]
		values = append(values, v)
		distinct[fmt.Sprint(v)] = struct{}{}
		if v == nil {
			continue
		}
		p.NonNull++

		if f, ok := fabric.ToFloat64(v); ok {
			p.Sum += f
			if f != math.Trunc(f) {
				p.Integral = false
			}
			if f < 0 {
				p.NonNegative = false
			}
		} else {
			p.Numeric = false
		}
		if _, ok := asTime(v); !ok {
			p.TimeValues = false
		}
	}

	if p.NonNull == 0 {
		p.Numeric, p.Integral, p.NonNegative, p.TimeValues = false, false, false, false
	}
	if !p.Numeric {
		p.Integral, p.NonNegative = false, false
	}
	p.Distinct = len(distinct)
	p.Monotonic = p.NonNull == len(rows) && monotonic(values)
	return p
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006-01",
	"2006/01/02",
}

// asTime accepts time values and ISO-like date strings.
func asTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		s := strings.TrimSpace(t)
		if len(s) < 7 {
			return time.Time{}, false
		}
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

var monthNames = map[string]int{
	"enero": 1, "febrero": 2, "marzo": 3, "abril": 4, "mayo": 5, "junio": 6,
	"julio": 7, "agosto": 8, "septiembre": 9, "setiembre": 9, "octubre": 10, "noviembre": 11, "diciembre": 12,
	"january": 1, "february": 2, "march": 3, "april": 4, "may": 5, "june": 6,
	"july": 7, "august": 8, "september": 9, "october": 10, "november": 11, "december": 12,
	"ene": 1, "feb": 2, "mar": 3, "abr": 4, "jun": 6, "jul": 7, "ago": 8, "sep": 9, "oct": 10, "nov": 11, "dic": 12,
	"jan": 1, "apr": 4, "aug": 8, "dec": 12,
}

// orderKeys maps values onto comparable keys: numbers, times, month names,
// then plain strings. It fails when values mix kinds.
func orderKeys(values []interface{}) ([]float64, []string, bool) {
	nums := make([]float64, 0, len(values))
	for _, v := range values {
		f, ok := fabric.ToFloat64(v)
		if !ok {
			nums = nil
			break
		}
		nums = append(nums, f)
	}
	if nums != nil {
		return nums, nil, true
	}

	times := make([]float64, 0, len(values))
	for _, v := range values {
		t, ok := asTime(v)
		if !ok {
			times = nil
			break
		}
		times = append(times, float64(t.UnixNano()))
	}
	if times != nil {
		return times, nil, true
	}

	months := make([]float64, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			months = nil
			break
		}
		m, ok := monthNames[textnorm.Fold(strings.TrimSpace(s))]
		if !ok {
			months = nil
			break
		}
		months = append(months, float64(m))
	}
	if months != nil {
		return months, nil, true
	}

	strs := make([]string, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			return nil, nil, false
		}
		strs = append(strs, s)
	}
	return nil, strs, true
}

// monotonic reports whether values are strictly increasing or strictly
// decreasing. Fewer than two values are not a sequence.
func monotonic(values []interface{}) bool {
	if len(values) < 2 {
		return false
	}
	nums, strs, ok := orderKeys(values)
	if !ok {
		return false
	}

	inc, dec := true, true
	if nums != nil {
		for i := 1; i < len(nums); i++ {
			inc = inc && nums[i] > nums[i-1]
			dec = dec && nums[i] < nums[i-1]
		}
		return inc || dec
	}
	for i := 1; i < len(strs); i++ {
		inc = inc && strs[i] > strs[i-1]
		dec = dec && strs[i] < strs[i-1]
	}
	return inc || dec
}
