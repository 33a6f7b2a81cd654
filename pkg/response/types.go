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

// Package response turns an agent run into the structured payload returned by
// /ask: the captured execution is shaped, classified for visualization and
// merged with the model's answer.
package response

import (
	"errors"
	"strings"

	"github.com/teradata-labs/nl2sql/pkg/visualization"
)

// ErrEmptyQuestion is returned for requests without a question.
var ErrEmptyQuestion = errors.New("question is required")

// AskRequest is the /ask request body. IncludeSQL and FormatResponse default
// to true when absent.
type AskRequest struct {
	Question       string `json:"question" yaml:"question"`
	IncludeSQL     *bool  `json:"include_sql,omitempty" yaml:"include_sql,omitempty"`
	FormatResponse *bool  `json:"format_response,omitempty" yaml:"format_response,omitempty"`
}

// WantsSQL reports whether the executed SQL should be returned.
func (r AskRequest) WantsSQL() bool {
	return r.IncludeSQL == nil || *r.IncludeSQL
}

// WantsFormatting reports whether data should be shaped and classified.
func (r AskRequest) WantsFormatting() bool {
	return r.FormatResponse == nil || *r.FormatResponse
}

// Validate checks the request.
func (r AskRequest) Validate() error {
	if strings.TrimSpace(r.Question) == "" {
		return ErrEmptyQuestion
	}
	return nil
}

// AgentResponse is the /ask response body. When Success is false, Error is
// set and Data is empty; when Success is true, Error is nil.
type AgentResponse struct {
	Answer        string                   `json:"answer" yaml:"answer"`
	SQLQuery      *string                  `json:"sql_query" yaml:"sql_query"`
	Data          []map[string]interface{} `json:"data" yaml:"data"`
	Visualization visualization.Category   `json:"visualization" yaml:"visualization"`
	RowCount      int                      `json:"row_count" yaml:"row_count"`
	Truncated     bool                     `json:"truncated" yaml:"truncated"`
	Success       bool                     `json:"success" yaml:"success"`
	Error         *string                  `json:"error" yaml:"error"`
	Metadata      map[string]interface{}   `json:"metadata" yaml:"metadata"`
}
