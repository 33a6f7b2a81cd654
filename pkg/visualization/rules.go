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
	"github.com/teradata-labs/nl2sql/pkg/fabric"
)

// Rule is one step of the classification cascade. Apply must be a pure
// function of its arguments.
type Rule struct {
	Name  string
	Apply func(d *dataset, cfg Config) (Decision, bool)
}

// DefaultRules returns the cascade in priority order.
func DefaultRules() []Rule {
	return []Rule{KPIRule(), LineChartRule(), CategoryChartRule(), TableRule(), TextRule()}
}

// KPIRule matches a single headline number: one row with one numeric cell
// (numeric text accepted), or one row of at most two columns that are all
// numeric, headed by the first.
func KPIRule() Rule {
	return Rule{Name: "kpi", Apply: func(d *dataset, _ Config) (Decision, bool) {
		if d.rowCount() != 1 || d.columnCount() == 0 {
			return Decision{}, false
		}
		row := d.rows[0]
		first := d.columns[0]

		if d.columnCount() == 1 {
			v := row[first]
			if _, ok := fabric.ToFloat64(v); ok {
				return kpi(first, v), true
			}
			if f, ok := fabric.ParseNumeric(v); ok {
				return kpi(first, f), true
			}
			return Decision{}, false
		}

		// Three or more columns read as a table even when all numeric
		if d.columnCount() > 2 {
			return Decision{}, false
		}
		for _, p := range d.profiles {
			if !p.Numeric || p.NonNull != 1 {
				return Decision{}, false
			}
		}
		return kpi(first, row[first]), true
	}}
}

func kpi(column string, value interface{}) Decision {
	return Decision{
		Category: CategoryKPI,
		Metadata: map[string]interface{}{
			"value":  value,
			"column": column,
		},
	}
}

// LineChartRule matches two columns over several rows where one column is a
// time axis and the other is numeric. The first column is preferred as the
// axis when both qualify.
func LineChartRule() Rule {
	return Rule{Name: "line_chart", Apply: func(d *dataset, _ Config) (Decision, bool) {
		if d.columnCount() != 2 || d.rowCount() < 2 {
			return Decision{}, false
		}
		for axis := 0; axis < 2; axis++ {
			value := 1 - axis
			if d.temporal(axis) && d.profiles[value].Numeric {
				return Decision{
					Category: CategoryLineChart,
					Metadata: map[string]interface{}{
						"time_column":  d.columns[axis],
						"value_column": d.columns[value],
					},
				}, true
			}
		}
		return Decision{}, false
	}}
}

// CategoryChartRule matches two columns over several rows pairing a
// categorical column with a numeric one. Small, non-negative sets that sum
// to a whole become a pie; up to BarMaxCategories become bars; larger sets
// are left to the table rule.
func CategoryChartRule() Rule {
	return Rule{Name: "category_chart", Apply: func(d *dataset, cfg Config) (Decision, bool) {
		if d.columnCount() != 2 || d.rowCount() < 2 {
			return Decision{}, false
		}
		for cat := 0; cat < 2; cat++ {
			val := 1 - cat
			cp, vp := d.profiles[cat], d.profiles[val]
			if cp.Numeric || cp.NonNull == 0 || !vp.Numeric {
				continue
			}
			if cp.Distinct > cfg.BarMaxCategories {
				return Decision{}, false
			}

			category := CategoryBarChart
			if cp.Distinct <= cfg.PieMaxCategories && vp.NonNegative && vp.Sum > 0 {
				category = CategoryPieChart
			}
			return Decision{
				Category: category,
				Metadata: map[string]interface{}{
					"category_column": d.columns[cat],
					"value_column":    d.columns[val],
					"category_count":  cp.Distinct,
				},
			}, true
		}
		return Decision{}, false
	}}
}

// TableRule matches three or more columns (any row count), two columns that
// did not form a chart, or a single column listing several rows.
func TableRule() Rule {
	return Rule{Name: "table", Apply: func(d *dataset, _ Config) (Decision, bool) {
		var reason string
		switch {
		case d.columnCount() >= 3:
			reason = "multiple_columns"
		case d.columnCount() == 2 && d.rowCount() >= 1:
			reason = "no_chart_pairing"
		case d.columnCount() == 1 && d.rowCount() > 1:
			reason = "single_column_list"
		default:
			return Decision{}, false
		}
		return table(reason, d), true
	}}
}

func table(reason string, d *dataset) Decision {
	return Decision{
		Category: CategoryTable,
		Metadata: map[string]interface{}{
			"reason":       reason,
			"column_count": d.columnCount(),
			"row_count":    d.rowCount(),
		},
	}
}

// TextRule matches empty results and a single non-numeric value.
func TextRule() Rule {
	return Rule{Name: "text", Apply: func(d *dataset, _ Config) (Decision, bool) {
		if d.columnCount() == 0 || d.rowCount() == 0 {
			return Decision{
				Category: CategoryText,
				Metadata: map[string]interface{}{"reason": "empty_result"},
			}, true
		}
		if d.columnCount() == 1 && d.rowCount() == 1 {
			v := d.rows[0][d.columns[0]]
			if _, ok := fabric.ParseNumeric(v); !ok {
				return Decision{
					Category: CategoryText,
					Metadata: map[string]interface{}{
						"reason": "single_value",
						"value":  v,
						"column": d.columns[0],
					},
				}, true
			}
		}
		return Decision{}, false
	}}
}
