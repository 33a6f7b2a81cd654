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

// Package visualization decides which widget a caller should use to render a
// query result. Classification is an ordered list of pure rules evaluated top
// down; the first rule that matches wins.
package visualization

import (
	"go.uber.org/zap"
)

// Category is a visualization category.
type Category string

const (
	CategoryKPI       Category = "kpi"
	CategoryTable     Category = "table"
	CategoryBarChart  Category = "bar_chart"
	CategoryLineChart Category = "line_chart"
	CategoryPieChart  Category = "pie_chart"
	CategoryText      Category = "text"
)

// Categories lists every category, in rule priority order.
var Categories = []Category{
	CategoryKPI, CategoryLineChart, CategoryBarChart, CategoryPieChart, CategoryTable, CategoryText,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Input is what the classifier sees.
type Input struct {
	// Rows is the shaped result
	Rows []map[string]interface{}

	// Columns is the column order. When empty it is derived from the first row.
	Columns []string

	// Question is the original question, used for time hints only
	Question string
}

// Decision is the classifier output.
type Decision struct {
	Category Category

	// Metadata describes the axes: category/value columns for charts, the
	// headline value for kpi, the reason for table and text.
	Metadata map[string]interface{}

	// Rule names the rule that produced the decision
	Rule string
}

// Config holds the classification policy.
type Config struct {
	// PieMaxCategories is the largest category count drawn as a pie (default 6)
	PieMaxCategories int

	// BarMaxCategories is the largest category count drawn as a bar chart;
	// beyond it the result is a table (default 50)
	BarMaxCategories int

	// TimeColumnNames are column-name tokens marking a time axis
	TimeColumnNames []string

	// QuestionTimeHints are question phrases that promote a monotonic
	// numeric column to a time axis
	QuestionTimeHints []string

	Logger *zap.Logger
}

// DefaultConfig returns the default policy.
func DefaultConfig() Config {
	return Config{
		PieMaxCategories: 6,
		BarMaxCategories: 50,
		TimeColumnNames: []string{
			"mes", "meses", "month", "months",
			"ano", "anos", "year", "years",
			"dia", "dias", "day", "days",
			"fecha", "date", "week", "weeks", "semana", "semanas",
			"quarter", "trimestre", "periodo", "period", "hour", "hora",
		},
		QuestionTimeHints: []string{
			"por mes", "por dia", "por ano", "por semana", "por trimestre", "mensual", "anual", "diario",
			"tendencia", "evolucion", "historico", "a lo largo",
			"per month", "by month", "by year", "by day", "monthly", "yearly", "daily",
			"trend", "over time",
		},
	}
}

func (c *Config) setDefaults() {
	def := DefaultConfig()
	if c.PieMaxCategories <= 0 {
		c.PieMaxCategories = def.PieMaxCategories
	}
	if c.BarMaxCategories <= 0 {
		c.BarMaxCategories = def.BarMaxCategories
	}
	if c.BarMaxCategories < c.PieMaxCategories {
		c.BarMaxCategories = c.PieMaxCategories
	}
	if c.TimeColumnNames == nil {
		c.TimeColumnNames = def.TimeColumnNames
	}
	if c.QuestionTimeHints == nil {
		c.QuestionTimeHints = def.QuestionTimeHints
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}
