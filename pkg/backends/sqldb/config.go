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

// Package sqldb implements fabric.ExecutionBackend over database/sql for
// PostgreSQL (lib/pq), MySQL (go-sql-driver/mysql) and SQLite (modernc).
package sqldb

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/teradata-labs/nl2sql/pkg/fabric"
	"go.uber.org/zap"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

// Config configures a SQL backend.
type Config struct {
	// Driver is one of "postgres", "mysql" or "sqlite"
	Driver string

	Host     string
	Port     int
	Name     string
	User     string
	Password string

	// SSLMode is passed to postgres (disable, require, verify-full, ...)
	SSLMode string

	// Schema is the namespace schema discovery reads (postgres only, default "public")
	Schema string

	// Path is the SQLite database file; empty means in-memory
	Path string

	// DSN, when set, is used verbatim instead of the fields above
	DSN string

	// MaxRows caps the rows read from any single statement (0 = no cap)
	MaxRows int

	// SchemaCacheTTL expires the schema cache (0 = cache until refreshed)
	SchemaCacheTTL time.Duration

	// MaxOpenConns limits the connection pool (0 = driver default)
	MaxOpenConns int

	Logger *zap.Logger
}

func (c *Config) setDefaults() {
	c.Driver = strings.ToLower(strings.TrimSpace(c.Driver))
	if c.Driver == "" {
		c.Driver = DriverPostgres
	}
	if c.Driver == "sqlite3" {
		c.Driver = DriverSQLite
	}
	if c.Driver == "postgresql" {
		c.Driver = DriverPostgres
	}
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		switch c.Driver {
		case DriverPostgres:
			c.Port = 5432
		case DriverMySQL:
			c.Port = 3306
		}
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.Schema == "" {
		c.Schema = "public"
	}
	if c.MaxRows < 0 {
		c.MaxRows = 0
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// DataSourceName builds the driver-specific connection string.
func (c Config) DataSourceName() (string, error) {
	if c.DSN != "" {
		return c.DSN, nil
	}
	c.setDefaults()

	switch c.Driver {
	case DriverPostgres:
		parts := []string{
			"host=" + quotePQ(c.Host),
			"port=" + strconv.Itoa(c.Port),
			"sslmode=" + quotePQ(c.SSLMode),
		}
		if c.Name != "" {
			parts = append(parts, "dbname="+quotePQ(c.Name))
		}
		if c.User != "" {
			parts = append(parts, "user="+quotePQ(c.User))
		}
		if c.Password != "" {
			parts = append(parts, "password="+quotePQ(c.Password))
		}
		return strings.Join(parts, " "), nil

	case DriverMySQL:
		mc := mysql.NewConfig()
		mc.User = c.User
		mc.Passwd = c.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
		mc.DBName = c.Name
		mc.ParseTime = true
		return mc.FormatDSN(), nil

	case DriverSQLite:
		if c.Path == "" || c.Path == ":memory:" {
			return ":memory:", nil
		}
		return c.Path, nil
	}

	return "", fmt.Errorf("unsupported driver: %s (supported: postgres, mysql, sqlite)", c.Driver)
}

// quotePQ quotes a value for a lib/pq key=value connection string.
func quotePQ(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

var _ fabric.ExecutionBackend = (*Backend)(nil)
