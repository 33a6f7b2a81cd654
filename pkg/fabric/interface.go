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
package fabric

import (
	"context"
	"errors"
	"fmt"
)

// ErrReadOnly is returned when a statement would modify the data store.
var ErrReadOnly = errors.New("only read-only statements (SELECT, WITH, EXPLAIN) are allowed")

// ExecutionBackend defines the interface for the data store the agent queries.
// Implementations must be safe for concurrent use.
type ExecutionBackend interface {
	// Name returns the backend identifier (e.g., "postgres", "mysql", "sqlite")
	Name() string

	// ExecuteQuery runs a single read-only statement and returns its rows.
	// The backend does not apply guardrails; callers run them first.
	ExecuteQuery(ctx context.Context, query string) (*QueryResult, error)

	// LoadSchema returns the tables of the configured schema. A cached copy
	// may be returned unless refresh is true.
	LoadSchema(ctx context.Context, refresh bool) (*DatabaseSchema, error)

	// Ping checks backend connectivity and health.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// QueryResult represents the result of executing a query.
type QueryResult struct {
	// Query is the statement that actually ran, after guardrail rewrites
	Query string

	// Columns lists result columns in select-list order
	Columns []Column

	// Rows holds one mapping per result row, in result order
	Rows []map[string]interface{}

	// RowCount is len(Rows)
	RowCount int

	// Truncated is set when the row cap was reached
	Truncated bool

	// Message is an optional note for the model (e.g., "no results")
	Message string

	// ExecutionStats tracks execution metrics
	ExecutionStats ExecutionStats
}

// ColumnNames returns the column names in order.
func (r *QueryResult) ColumnNames() []string {
	if r == nil {
		return nil
	}
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	return names
}

// Column represents a column in tabular results.
type Column struct {
	Name     string
	Type     string
	Nullable bool
}

// ExecutionStats tracks execution metrics.
type ExecutionStats struct {
	// Duration in milliseconds
	DurationMs int64
}

// DatabaseSchema is the set of tables visible to the agent.
type DatabaseSchema struct {
	// Dialect is the backend name the schema was read from
	Dialect string

	// Schema is the database schema/namespace (e.g., "public")
	Schema string

	Tables []TableSchema
}

// Table returns the named table, if present.
func (s *DatabaseSchema) Table(name string) (TableSchema, bool) {
	if s == nil {
		return TableSchema{}, false
	}
	for _, t := range s.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return TableSchema{}, false
}

// TableSchema describes one table.
type TableSchema struct {
	Name        string
	Comment     string
	Fields      []Field
	PrimaryKeys []string
}

// Field represents a column in a table.
type Field struct {
	Name        string
	Type        string
	Description string
	Nullable    bool
	PrimaryKey  bool
	ForeignKey  *ForeignKey
	Default     string
}

// ForeignKey represents a foreign key relationship.
type ForeignKey struct {
	ReferencedTable  string
	ReferencedColumn string
}

// QueryError is a classified statement failure.
type QueryError struct {
	// Code is the driver error code (SQLSTATE for postgres, error number for mysql)
	Code string

	// Type is the classification from InferErrorType
	Type string

	// Message is the driver's message
	Message string

	Err error
}

// Error implements error.
func (e *QueryError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (code %s)", e.Message, e.Code)
	}
	return e.Message
}

// Unwrap returns the underlying driver error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// NewQueryError classifies a driver error.
func NewQueryError(code string, err error) *QueryError {
	msg := err.Error()
	return &QueryError{
		Code:    code,
		Type:    InferErrorType(code, msg),
		Message: msg,
		Err:     err,
	}
}
