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
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq" // postgres
	"github.com/teradata-labs/nl2sql/pkg/fabric"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // sqlite
)

// Backend is a database/sql execution backend.
type Backend struct {
	db     *sql.DB
	cfg    Config
	logger *zap.Logger

	mu       sync.Mutex
	schema   *fabric.DatabaseSchema
	cachedAt time.Time
	now      func() time.Time
}

// New opens and pings the configured database.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	cfg.setDefaults()

	dsn, err := cfg.DataSourceName()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to ":memory:" is a separate database
	if cfg.Driver == DriverSQLite && dsn == ":memory:" {
		db.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if err := db.PingContext(ctx); err != nil {
		// #nosec G104 -- best-effort cleanup on initialization failure
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	cfg.Logger.Info("Connected to database",
		zap.String("driver", cfg.Driver),
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Name))

	return NewWithDB(db, cfg), nil
}

// NewWithDB wraps an already opened database. cfg.Driver selects the
// dialect used for schema discovery.
func NewWithDB(db *sql.DB, cfg Config) *Backend {
	cfg.setDefaults()
	return &Backend{
		db:     db,
		cfg:    cfg,
		logger: cfg.Logger,
		now:    time.Now,
	}
}

// Name returns the driver name.
func (b *Backend) Name() string {
	return b.cfg.Driver
}

// DB exposes the underlying pool.
func (b *Backend) DB() *sql.DB {
	return b.db
}

// ExecuteQuery runs query and reads at most MaxRows rows.
func (b *Backend) ExecuteQuery(ctx context.Context, query string) (*fabric.QueryResult, error) {
	start := time.Now()
	query = strings.TrimSpace(query)

	rows, err := b.db.QueryContext(ctx, query)
	if err != nil {
		return nil, classifyError(err)
	}
	defer func() { _ = rows.Close() }()

	names, err := rows.Columns()
	if err != nil {
		return nil, classifyError(err)
	}
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, classifyError(err)
	}

	cols := make([]fabric.Column, len(names))
	for i, name := range names {
		nullable, _ := columnTypes[i].Nullable()
		cols[i] = fabric.Column{
			Name:     name,
			Type:     strings.ToUpper(columnTypes[i].DatabaseTypeName()),
			Nullable: nullable,
		}
	}

	result := &fabric.QueryResult{
		Query:   query,
		Columns: cols,
		Rows:    make([]map[string]interface{}, 0),
	}

	for rows.Next() {
		if b.cfg.MaxRows > 0 && len(result.Rows) >= b.cfg.MaxRows {
			result.Truncated = true
			break
		}

		values := make([]interface{}, len(names))
		valuePtrs := make([]interface{}, len(names))
		for i := range names {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, classifyError(err)
		}

		row := make(map[string]interface{}, len(names))
		for i, name := range names {
			row[name] = normalizeValue(values[i], cols[i].Type)
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError(err)
	}

	result.RowCount = len(result.Rows)
	// A LIMIT equal to the cap hides whether more rows exist
	if b.cfg.MaxRows > 0 && result.RowCount >= b.cfg.MaxRows {
		result.Truncated = true
	}
	result.ExecutionStats.DurationMs = time.Since(start).Milliseconds()

	b.logger.Debug("Query executed",
		zap.String("driver", b.cfg.Driver),
		zap.Int("rows", result.RowCount),
		zap.Bool("truncated", result.Truncated),
		zap.Int64("duration_ms", result.ExecutionStats.DurationMs))

	return result, nil
}

// LoadSchema returns the cached schema, reading it from the database when
// the cache is empty, expired, or refresh is set.
func (b *Backend) LoadSchema(ctx context.Context, refresh bool) (*fabric.DatabaseSchema, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !refresh && b.schema != nil {
		if b.cfg.SchemaCacheTTL <= 0 || b.now().Sub(b.cachedAt) < b.cfg.SchemaCacheTTL {
			return b.schema, nil
		}
	}

	var (
		schema *fabric.DatabaseSchema
		err    error
	)
	switch b.cfg.Driver {
	case DriverPostgres:
		schema, err = b.loadPostgresSchema(ctx)
	case DriverMySQL:
		schema, err = b.loadMySQLSchema(ctx)
	case DriverSQLite:
		schema, err = b.loadSQLiteSchema(ctx)
	default:
		return nil, fmt.Errorf("schema discovery not supported for %s", b.cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}

	b.logger.Info("Schema loaded",
		zap.String("driver", b.cfg.Driver),
		zap.Int("tables", len(schema.Tables)))

	b.schema = schema
	b.cachedAt = b.now()
	return schema, nil
}

// Ping checks backend connectivity.
func (b *Backend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

// Close closes the pool.
func (b *Backend) Close() error {
	return b.db.Close()
}

// normalizeValue converts driver values into JSON-friendly Go values.
// Numeric columns that drivers return as text become int64 or float64.
func normalizeValue(v interface{}, dbType string) interface{} {
	raw, ok := v.([]byte)
	if !ok {
		return fabric.JSONSafe(v)
	}
	s := string(raw)

	switch {
	case isIntegerType(dbType):
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	case isDecimalType(dbType):
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return fabric.JSONSafe(f)
		}
	}
	return s
}

func isIntegerType(t string) bool {
	switch t {
	case "INT", "INT2", "INT4", "INT8", "INTEGER", "SMALLINT", "BIGINT", "TINYINT", "MEDIUMINT",
		"UNSIGNED INT", "UNSIGNED BIGINT", "UNSIGNED SMALLINT", "UNSIGNED TINYINT", "UNSIGNED MEDIUMINT":
		return true
	}
	return false
}

func isDecimalType(t string) bool {
	switch t {
	case "NUMERIC", "DECIMAL", "FLOAT", "FLOAT4", "FLOAT8", "DOUBLE", "REAL", "MONEY":
		return true
	}
	return false
}
