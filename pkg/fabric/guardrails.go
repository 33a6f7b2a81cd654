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
	"regexp"
	"strings"
	"sync"
	"unicode"
)

// DefaultMaxRows is the row cap injected into statements without a LIMIT.
const DefaultMaxRows = 50

// Correction represents a suggested fix for an error.
type Correction struct {
	OriginalSQL     string
	CorrectedSQL    string
	Explanation     string
	ErrorType       string
	ConfidenceLevel string // "high", "medium", "low"
}

// ErrorRecord stores recent error information for self-correction.
type ErrorRecord struct {
	SQL              string
	ErrorType        string
	ErrorMessage     string
	AttemptCount     int
	PreviousAttempts []string
}

// Issue represents a validation issue found during pre-flight check.
type Issue struct {
	Severity   string // "error", "warning", "info"
	Validator  string
	Message    string
	Suggestion string
}

// Validator allows pluggable pre-flight rules.
type Validator interface {
	Name() string
	Validate(ctx context.Context, sql string) []Issue
}

// PreparedQuery is a statement that passed pre-flight checks, possibly rewritten.
type PreparedQuery struct {
	// SQL is the statement to execute
	SQL string

	// Original is the statement as received
	Original string

	// Issues are the non-blocking findings (warnings, info)
	Issues []Issue

	// LimitApplied is set when the row cap was appended
	LimitApplied bool

	// MaxRows is the row cap in effect
	MaxRows int
}

// GuardrailEngine performs pre-flight validation, statement rewriting and
// error correction. It tracks errors across attempts per session.
type GuardrailEngine struct {
	mu         sync.RWMutex
	errorCache map[string]*ErrorRecord
	validators []Validator
	maxRows    int
}

// NewGuardrailEngine creates a guardrail engine with the read-only and
// metadata-query validators registered. maxRows <= 0 disables the row cap.
func NewGuardrailEngine(maxRows int) *GuardrailEngine {
	return &GuardrailEngine{
		errorCache: make(map[string]*ErrorRecord),
		validators: []Validator{readOnlyValidator{}, metadataQueryValidator{}},
		maxRows:    maxRows,
	}
}

// MaxRows returns the configured row cap.
func (g *GuardrailEngine) MaxRows() int {
	return g.maxRows
}

// RegisterValidator adds a backend-specific validator.
func (g *GuardrailEngine) RegisterValidator(v Validator) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.validators = append(g.validators, v)
}

// PreflightCheck performs validation before SQL execution.
func (g *GuardrailEngine) PreflightCheck(ctx context.Context, sql string) []Issue {
	g.mu.RLock()
	validators := g.validators
	g.mu.RUnlock()

	issues := make([]Issue, 0)
	for _, validator := range validators {
		issues = append(issues, validator.Validate(ctx, sql)...)
	}
	return issues
}

// Prepare validates sql and applies the rewrites: metadata-query correction
// and the row cap. Blocking issues yield an error wrapping ErrReadOnly.
func (g *GuardrailEngine) Prepare(ctx context.Context, sql string) (*PreparedQuery, error) {
	if err := IsReadOnly(sql); err != nil {
		return nil, err
	}

	prepared := &PreparedQuery{Original: sql, MaxRows: g.maxRows}
	for _, issue := range g.PreflightCheck(ctx, sql) {
		if issue.Severity == "error" {
			return nil, fmt.Errorf("%w: %s", ErrReadOnly, issue.Message)
		}
		prepared.Issues = append(prepared.Issues, issue)
	}

	rewritten, _ := CorrectMetadataQuery(sql)
	rewritten, prepared.LimitApplied = EnforceRowLimit(rewritten, g.maxRows)
	prepared.SQL = rewritten
	return prepared, nil
}

// HandleError analyzes a failed statement and suggests a correction.
func (g *GuardrailEngine) HandleError(ctx context.Context, sessionID, sql string, err error) *Correction {
	errorType := "unknown"
	var qe *QueryError
	if errors.As(err, &qe) {
		errorType = qe.Type
	} else if err != nil {
		errorType = InferErrorType("", err.Error())
	}
	message := ""
	if err != nil {
		message = err.Error()
	}

	g.mu.Lock()
	record, exists := g.errorCache[sessionID]
	if !exists {
		record = &ErrorRecord{}
		g.errorCache[sessionID] = record
	}
	record.SQL = sql
	record.ErrorType = errorType
	record.ErrorMessage = message
	record.AttemptCount++
	record.PreviousAttempts = append(record.PreviousAttempts, sql)
	attempts := record.AttemptCount
	g.mu.Unlock()

	return suggestCorrection(errorType, message, sql, attempts)
}

// GetErrorRecord retrieves the error history for a session.
func (g *GuardrailEngine) GetErrorRecord(sessionID string) *ErrorRecord {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.errorCache[sessionID]
}

// ClearErrorRecord removes error history for a session (e.g., on successful execution).
func (g *GuardrailEngine) ClearErrorRecord(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.errorCache, sessionID)
}

func suggestCorrection(errorType, message, sql string, attemptCount int) *Correction {
	correction := &Correction{OriginalSQL: sql, ErrorType: errorType}

	switch errorType {
	case "syntax_error":
		correction.Explanation = "SQL syntax error detected. Check for:\n" +
			"- Missing or extra parentheses\n" +
			"- Reserved keyword usage (quote with double quotes)\n" +
			"- Comma placement in SELECT/WHERE clauses"
		correction.ConfidenceLevel = "medium"

	case "table_not_found":
		correction.Explanation = "Table does not exist. Verify:\n" +
			"- Table name spelling and case sensitivity\n" +
			"- Schema qualification (schema.table)\n" +
			"- Call get_schema to list the available tables"
		correction.ConfidenceLevel = "high"

	case "column_not_found":
		correction.Explanation = "Column not found. Call get_schema to discover actual column names"
		correction.ConfidenceLevel = "high"

	case "permission_denied":
		correction.Explanation = "Insufficient permissions. Only tables granted to the service user can be read"
		correction.ConfidenceLevel = "high"

	case "timeout":
		correction.Explanation = "Query timeout. Add a WHERE clause or aggregate to reduce the scanned data"
		correction.ConfidenceLevel = "medium"

	case "read_only":
		correction.Explanation = "Only a single SELECT, WITH or EXPLAIN statement is allowed"
		correction.ConfidenceLevel = "high"

	case "connection":
		correction.Explanation = "The database is unreachable. Do not retry; tell the user the data is unavailable right now"
		correction.ConfidenceLevel = "high"

	default:
		correction.Explanation = fmt.Sprintf("Error encountered (attempt %d): %s", attemptCount, message)
		correction.ConfidenceLevel = "low"
	}

	return correction
}

// Driver error codes, keyed by SQLSTATE (postgres) or error number (mysql).
var errorCodeTypes = map[string]string{
	"42601": "syntax_error",
	"42P01": "table_not_found",
	"3F000": "table_not_found",
	"42703": "column_not_found",
	"42501": "permission_denied",
	"57014": "timeout",
	"1064":  "syntax_error",
	"1146":  "table_not_found",
	"1054":  "column_not_found",
	"1044":  "permission_denied",
	"1045":  "permission_denied",
	"1142":  "permission_denied",
	"1143":  "permission_denied",
	"3024":  "timeout",
	"1205":  "timeout",
	"08000": "connection",
	"08001": "connection",
	"08003": "connection",
	"08006": "connection",
	"57P01": "connection",
	"2002":  "connection",
	"2003":  "connection",
	"2006":  "connection",
	"2013":  "connection",
}

var connectionMarkers = []string{
	"connection refused", "connection reset", "bad connection", "broken pipe",
	"no such host", "server closed the connection", "database is closed",
}

// InferErrorType attempts to classify error from code/message.
func InferErrorType(errorCode, errorMessage string) string {
	if t, ok := errorCodeTypes[errorCode]; ok {
		return t
	}

	messageLower := strings.ToLower(errorMessage)

	if strings.Contains(messageLower, "read-only") || strings.Contains(messageLower, "only read-only") {
		return "read_only"
	}
	if strings.Contains(messageLower, "syntax") {
		return "syntax_error"
	}
	if strings.Contains(messageLower, "permission") || strings.Contains(messageLower, "access denied") || strings.Contains(messageLower, "does not have") {
		return "permission_denied"
	}
	// Column errors before table errors (more specific first)
	if strings.Contains(messageLower, "no such column") ||
		(strings.Contains(messageLower, "column") && (strings.Contains(messageLower, "not found") || strings.Contains(messageLower, "does not exist"))) {
		return "column_not_found"
	}
	if strings.Contains(messageLower, "no such table") ||
		((strings.Contains(messageLower, "table") || strings.Contains(messageLower, "relation")) &&
			(strings.Contains(messageLower, "not found") || strings.Contains(messageLower, "does not exist"))) {
		return "table_not_found"
	}
	for _, marker := range connectionMarkers {
		if strings.Contains(messageLower, marker) {
			return "connection"
		}
	}
	if strings.Contains(messageLower, "timeout") || strings.Contains(messageLower, "canceling statement") || strings.Contains(messageLower, "deadline exceeded") {
		return "timeout"
	}

	return "unknown"
}

var (
	readOnlyPrefixes  = []string{"SELECT", "WITH", "EXPLAIN"}
	writeKeywordRe    = regexp.MustCompile(`\b(INSERT|UPDATE|DELETE|DROP|ALTER|CREATE|TRUNCATE|GRANT|REVOKE|MERGE|COPY|VACUUM|ATTACH|DETACH|PRAGMA|CALL|INTO)\b`)
	limitClauseRe     = regexp.MustCompile(`\b(LIMIT|FETCH\s+FIRST|FETCH\s+NEXT)\b`)
	countCallRe       = regexp.MustCompile(`\bCOUNT\s*\(`)
	groupByRe         = regexp.MustCompile(`\bGROUP\s+BY\b`)
	baseTableFilterRe = regexp.MustCompile(`(?i)table_type\s*=\s*['"]BASE TABLE['"]`)
	schemaFilterRe    = regexp.MustCompile(`(?i)(WHERE\s+(?:\w+\.)?table_schema\s*=\s*'[^']*')`)
)

// IsReadOnly reports whether sql is a single read-only statement. Comments
// and quoted text are ignored. The error wraps ErrReadOnly.
func IsReadOnly(sql string) error {
	body := strings.TrimSpace(scanSQL(sql, true))
	body = strings.TrimRightFunc(strings.TrimRight(body, "; \t\r\n"), unicode.IsSpace)
	if body == "" {
		return fmt.Errorf("%w: empty statement", ErrReadOnly)
	}
	if strings.Contains(body, ";") {
		return fmt.Errorf("%w: multiple statements are not allowed", ErrReadOnly)
	}

	upper := strings.ToUpper(body)
	first := strings.TrimLeft(upper, "( \t\r\n")
	allowed := false
	for _, prefix := range readOnlyPrefixes {
		if strings.HasPrefix(first, prefix) {
			allowed = true
			break
		}
	}
	if !allowed {
		return ErrReadOnly
	}
	if kw := writeKeywordRe.FindString(upper); kw != "" {
		return fmt.Errorf("%w: statement contains %s", ErrReadOnly, kw)
	}
	return nil
}

// EnforceRowLimit appends "LIMIT maxRows" to statements that have no row
// limiting clause. Ungrouped COUNT aggregates and EXPLAIN are left alone.
// Comments are removed from the returned statement.
func EnforceRowLimit(sql string, maxRows int) (string, bool) {
	if maxRows <= 0 {
		return sql, false
	}

	upper := strings.ToUpper(scanSQL(sql, true))
	if strings.HasPrefix(strings.TrimSpace(upper), "EXPLAIN") {
		return sql, false
	}
	if limitClauseRe.MatchString(upper) {
		return sql, false
	}
	if countCallRe.MatchString(upper) && !groupByRe.MatchString(upper) {
		return sql, false
	}

	stmt := strings.TrimRightFunc(scanSQL(sql, false), unicode.IsSpace)
	hadSemicolon := strings.HasSuffix(stmt, ";")
	stmt = strings.TrimRightFunc(strings.TrimRight(stmt, ";"), unicode.IsSpace)
	stmt = strings.TrimSpace(stmt) + fmt.Sprintf(" LIMIT %d", maxRows)
	if hadSemicolon {
		stmt += ";"
	}
	return stmt, true
}

// CorrectMetadataQuery checks information_schema.tables queries. When the
// statement filters by schema but not by table type, the base-table filter
// is added so views are not counted as tables.
func CorrectMetadataQuery(sql string) (string, []Issue) {
	if !strings.Contains(strings.ToLower(sql), "information_schema.tables") {
		return sql, nil
	}

	var issues []Issue
	corrected := sql
	hasSchemaFilter := schemaFilterRe.MatchString(sql)

	if !baseTableFilterRe.MatchString(sql) && hasSchemaFilter {
		issues = append(issues, Issue{
			Severity:   "warning",
			Validator:  "metadata_query",
			Message:    "query counts every object (tables and views)",
			Suggestion: "add: AND table_type = 'BASE TABLE'",
		})
		corrected = schemaFilterRe.ReplaceAllString(sql, "$1 AND table_type = 'BASE TABLE'")
	}
	if !hasSchemaFilter {
		issues = append(issues, Issue{
			Severity:   "warning",
			Validator:  "metadata_query",
			Message:    "query does not filter by schema and may include system schemas",
			Suggestion: "add: WHERE table_schema = 'public'",
		})
	}
	return corrected, issues
}

type readOnlyValidator struct{}

func (readOnlyValidator) Name() string { return "read_only" }

func (readOnlyValidator) Validate(_ context.Context, sql string) []Issue {
	if err := IsReadOnly(sql); err != nil {
		return []Issue{{
			Severity:   "error",
			Validator:  "read_only",
			Message:    err.Error(),
			Suggestion: "rewrite the request as a single SELECT statement",
		}}
	}
	return nil
}

type metadataQueryValidator struct{}

func (metadataQueryValidator) Name() string { return "metadata_query" }

func (metadataQueryValidator) Validate(_ context.Context, sql string) []Issue {
	_, issues := CorrectMetadataQuery(sql)
	return issues
}

// scanSQL removes comments from sql. With blankLiterals, the contents of
// quoted strings and identifiers are replaced so keyword checks skip them.
func scanSQL(sql string, blankLiterals bool) string {
	var b strings.Builder
	b.Grow(len(sql))

	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			for i < len(sql) && sql[i] != '\n' {
				i++
			}
			b.WriteByte(' ')

		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				i = len(sql)
			} else {
				i = i + 2 + end + 1
			}
			b.WriteByte(' ')

		case c == '\'' || c == '"' || c == '`':
			j := i + 1
			for j < len(sql) {
				if sql[j] == c {
					if j+1 < len(sql) && sql[j+1] == c {
						j += 2
						continue
					}
					break
				}
				j++
			}
			b.WriteByte(c)
			if blankLiterals {
				for k := i + 1; k < j && k < len(sql); k++ {
					b.WriteByte('_')
				}
			} else if i+1 < len(sql) {
				b.WriteString(sql[i+1 : min(j, len(sql))])
			}
			if j < len(sql) {
				b.WriteByte(c)
			}
			i = j

		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
