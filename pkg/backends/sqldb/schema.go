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
	"strings"

	"github.com/teradata-labs/nl2sql/pkg/fabric"
)

const pgTablesQuery = `
	SELECT table_name,
		COALESCE(obj_description((quote_ident(table_schema)||'.'||quote_ident(table_name))::regclass, 'pg_class'), '')
	FROM information_schema.tables
	WHERE table_schema = $1
	AND table_type = 'BASE TABLE'
	ORDER BY table_name`

const pgColumnsQuery = `
	SELECT table_name, column_name, data_type, is_nullable,
		COALESCE(column_default, ''),
		character_maximum_length,
		COALESCE(col_description((quote_ident(table_schema)||'.'||quote_ident(table_name))::regclass::oid, ordinal_position), '')
	FROM information_schema.columns
	WHERE table_schema = $1
	ORDER BY table_name, ordinal_position`

const pgPrimaryKeysQuery = `
	SELECT tc.table_name, kcu.column_name
	FROM information_schema.table_constraints tc
	JOIN information_schema.key_column_usage kcu
		ON tc.constraint_name = kcu.constraint_name
		AND tc.table_schema = kcu.table_schema
	WHERE tc.constraint_type = 'PRIMARY KEY'
	AND tc.table_schema = $1
	ORDER BY tc.table_name, kcu.ordinal_position`

const pgForeignKeysQuery = `
	SELECT tc.table_name, kcu.column_name, ccu.table_name, ccu.column_name
	FROM information_schema.table_constraints AS tc
	JOIN information_schema.key_column_usage AS kcu
		ON tc.constraint_name = kcu.constraint_name
		AND tc.table_schema = kcu.table_schema
	JOIN information_schema.constraint_column_usage AS ccu
		ON ccu.constraint_name = tc.constraint_name
		AND ccu.table_schema = tc.table_schema
	WHERE tc.constraint_type = 'FOREIGN KEY'
	AND tc.table_schema = $1`

const myTablesQuery = `
	SELECT TABLE_NAME, COALESCE(TABLE_COMMENT, '')
	FROM information_schema.TABLES
	WHERE TABLE_SCHEMA = DATABASE()
	AND TABLE_TYPE = 'BASE TABLE'
	ORDER BY TABLE_NAME`

const myColumnsQuery = `
	SELECT TABLE_NAME, COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE,
		COALESCE(COLUMN_DEFAULT, ''), COLUMN_KEY, COALESCE(COLUMN_COMMENT, '')
	FROM information_schema.COLUMNS
	WHERE TABLE_SCHEMA = DATABASE()
	ORDER BY TABLE_NAME, ORDINAL_POSITION`

const myForeignKeysQuery = `
	SELECT TABLE_NAME, COLUMN_NAME, REFERENCED_TABLE_NAME, REFERENCED_COLUMN_NAME
	FROM information_schema.KEY_COLUMN_USAGE
	WHERE TABLE_SCHEMA = DATABASE()
	AND REFERENCED_TABLE_NAME IS NOT NULL`

// schemaBuilder collects tables in discovery order.
type schemaBuilder struct {
	schema *fabric.DatabaseSchema
	index  map[string]int
}

func newSchemaBuilder(dialect, namespace string) *schemaBuilder {
	return &schemaBuilder{
		schema: &fabric.DatabaseSchema{Dialect: dialect, Schema: namespace, Tables: []fabric.TableSchema{}},
		index:  make(map[string]int),
	}
}

func (sb *schemaBuilder) addTable(name, comment string) {
	if _, ok := sb.index[name]; ok {
		return
	}
	sb.index[name] = len(sb.schema.Tables)
	sb.schema.Tables = append(sb.schema.Tables, fabric.TableSchema{Name: name, Comment: comment})
}

func (sb *schemaBuilder) table(name string) *fabric.TableSchema {
	i, ok := sb.index[name]
	if !ok {
		return nil
	}
	return &sb.schema.Tables[i]
}

func (sb *schemaBuilder) addField(tableName string, f fabric.Field) {
	if t := sb.table(tableName); t != nil {
		t.Fields = append(t.Fields, f)
		if f.PrimaryKey {
			t.PrimaryKeys = append(t.PrimaryKeys, f.Name)
		}
	}
}

func (sb *schemaBuilder) markPrimaryKey(tableName, column string) {
	t := sb.table(tableName)
	if t == nil {
		return
	}
	for i := range t.Fields {
		if t.Fields[i].Name == column && !t.Fields[i].PrimaryKey {
			t.Fields[i].PrimaryKey = true
			t.PrimaryKeys = append(t.PrimaryKeys, column)
		}
	}
}

func (sb *schemaBuilder) addForeignKey(tableName, column, refTable, refColumn string) {
	t := sb.table(tableName)
	if t == nil {
		return
	}
	for i := range t.Fields {
		if t.Fields[i].Name == column {
			t.Fields[i].ForeignKey = &fabric.ForeignKey{ReferencedTable: refTable, ReferencedColumn: refColumn}
		}
	}
}

func (b *Backend) loadPostgresSchema(ctx context.Context) (*fabric.DatabaseSchema, error) {
	sb := newSchemaBuilder(DriverPostgres, b.cfg.Schema)

	err := b.eachRow(ctx, pgTablesQuery, []interface{}{b.cfg.Schema}, func(rows *sql.Rows) error {
		var name, comment string
		if err := rows.Scan(&name, &comment); err != nil {
			return err
		}
		sb.addTable(name, comment)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = b.eachRow(ctx, pgColumnsQuery, []interface{}{b.cfg.Schema}, func(rows *sql.Rows) error {
		var (
			table, name, dataType, nullable, def, comment string
			maxLen                                        sql.NullInt64
		)
		if err := rows.Scan(&table, &name, &dataType, &nullable, &def, &maxLen, &comment); err != nil {
			return err
		}
		if maxLen.Valid {
			dataType = fmt.Sprintf("%s(%d)", dataType, maxLen.Int64)
		}
		sb.addField(table, fabric.Field{
			Name:        name,
			Type:        dataType,
			Nullable:    nullable == "YES",
			Default:     def,
			Description: comment,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = b.eachRow(ctx, pgPrimaryKeysQuery, []interface{}{b.cfg.Schema}, func(rows *sql.Rows) error {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return err
		}
		sb.markPrimaryKey(table, column)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = b.eachRow(ctx, pgForeignKeysQuery, []interface{}{b.cfg.Schema}, func(rows *sql.Rows) error {
		var table, column, refTable, refColumn string
		if err := rows.Scan(&table, &column, &refTable, &refColumn); err != nil {
			return err
		}
		sb.addForeignKey(table, column, refTable, refColumn)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return sb.schema, nil
}

func (b *Backend) loadMySQLSchema(ctx context.Context) (*fabric.DatabaseSchema, error) {
	sb := newSchemaBuilder(DriverMySQL, b.cfg.Name)

	err := b.eachRow(ctx, myTablesQuery, nil, func(rows *sql.Rows) error {
		var name, comment string
		if err := rows.Scan(&name, &comment); err != nil {
			return err
		}
		sb.addTable(name, comment)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = b.eachRow(ctx, myColumnsQuery, nil, func(rows *sql.Rows) error {
		var table, name, colType, nullable, def, key, comment string
		if err := rows.Scan(&table, &name, &colType, &nullable, &def, &key, &comment); err != nil {
			return err
		}
		sb.addField(table, fabric.Field{
			Name:        name,
			Type:        colType,
			Nullable:    nullable == "YES",
			Default:     def,
			Description: comment,
			PrimaryKey:  key == "PRI",
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = b.eachRow(ctx, myForeignKeysQuery, nil, func(rows *sql.Rows) error {
		var table, column, refTable, refColumn string
		if err := rows.Scan(&table, &column, &refTable, &refColumn); err != nil {
			return err
		}
		sb.addForeignKey(table, column, refTable, refColumn)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return sb.schema, nil
}

func (b *Backend) loadSQLiteSchema(ctx context.Context) (*fabric.DatabaseSchema, error) {
	sb := newSchemaBuilder(DriverSQLite, "main")

	var names []string
	err := b.eachRow(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`, nil, func(rows *sql.Rows) error {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		names = append(names, name)
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, name := range names {
		sb.addTable(name, "")
		quoted := quoteSQLiteIdent(name)

		// PRAGMA table_info: cid, name, type, notnull, dflt_value, pk
		err := b.eachRow(ctx, "PRAGMA table_info("+quoted+")", nil, func(rows *sql.Rows) error {
			var (
				cid, notnull, pk int
				colName, colType string
				dflt             sql.NullString
			)
			if err := rows.Scan(&cid, &colName, &colType, &notnull, &dflt, &pk); err != nil {
				return err
			}
			sb.addField(name, fabric.Field{
				Name:       colName,
				Type:       colType,
				Nullable:   notnull == 0 && pk == 0,
				Default:    dflt.String,
				PrimaryKey: pk > 0,
			})
			return nil
		})
		if err != nil {
			return nil, err
		}

		// PRAGMA foreign_key_list: id, seq, table, from, to, on_update, on_delete, match
		err = b.eachRow(ctx, "PRAGMA foreign_key_list("+quoted+")", nil, func(rows *sql.Rows) error {
			var (
				id, seq                                   int
				refTable, from, onUpdate, onDelete, match string
				to                                        sql.NullString
			)
			if err := rows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
				return err
			}
			sb.addForeignKey(name, from, refTable, to.String)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return sb.schema, nil
}

func (b *Backend) eachRow(ctx context.Context, query string, args []interface{}, fn func(*sql.Rows) error) error {
	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return classifyError(err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func quoteSQLiteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
