// Copyright (C) 2025 Zinc Labs Inc.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package query

import (
	"context"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/zinclabs/znbench/internal/ingest"
	"github.com/zinclabs/znbench/pipeline"
	"github.com/zinclabs/znbench/pipeline/wkk"
)

// ViewName is the view all benchmark queries run against.
const ViewName = "logs"

// DefaultNeedle is the substring the full-text queries search for.
const DefaultNeedle = "k8s"

// QueryError reports a failed query execution. Timeouts and cancellations
// pass through unwrapped so the harness can tell them apart.
type QueryError struct {
	Name string
	SQL  string
	Err  error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %q failed: %v", e.Name, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// Query is a named SQL statement run against the logs view.
type Query struct {
	Name string
	SQL  string
}

// DefaultQueries returns the standard benchmark query set. The needle is
// the substring the full-text scans look for, ORed across every text
// column of the file so a match in any column qualifies the row.
func DefaultQueries(needle string, textColumns []string) []Query {
	if needle == "" {
		needle = DefaultNeedle
	}
	if len(textColumns) == 0 {
		textColumns = []string{"message"}
	}
	esc := escapeSQLString(needle)

	likePreds := make([]string, len(textColumns))
	strposPreds := make([]string, len(textColumns))
	for i, col := range textColumns {
		ident := quoteIdent(col)
		likePreds[i] = fmt.Sprintf("%s LIKE '%%%s%%'", ident, esc)
		strposPreds[i] = fmt.Sprintf("strpos(%s, '%s') > 0", ident, esc)
	}

	return []Query{
		{Name: "full_scan", SQL: fmt.Sprintf("SELECT * FROM %s", ViewName)},
		{Name: "like_scan", SQL: fmt.Sprintf("SELECT * FROM %s WHERE %s", ViewName, strings.Join(likePreds, " OR "))},
		{Name: "strpos_scan", SQL: fmt.Sprintf("SELECT * FROM %s WHERE %s", ViewName, strings.Join(strposPreds, " OR "))},
		{Name: "level_filter", SQL: fmt.Sprintf("SELECT * FROM %s WHERE level = 'error'", ViewName)},
		{Name: "count_all", SQL: fmt.Sprintf("SELECT count(*) AS n FROM %s", ViewName)},
	}
}

// Executor runs queries against one parquet file through a logs view.
// The view is created once per file; each Run opens a fresh result cursor
// so repeated executions of the same query are independent.
type Executor struct {
	db *DB
}

// NewExecutor creates the logs view over the given parquet file.
func NewExecutor(ctx context.Context, db *DB, parquetPath string) (*Executor, error) {
	stmt := fmt.Sprintf("CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet('%s', union_by_name=true)",
		ViewName, escapeSQLString(parquetPath))
	if err := db.Exec(ctx, stmt); err != nil {
		return nil, fmt.Errorf("create view over %s: %w", parquetPath, err)
	}
	return &Executor{db: db}, nil
}

var orderByRE = regexp.MustCompile(`(?i)\border\s+by\b`)

// deterministicSQL wraps a query in an ORDER BY ALL when it carries no
// ordering of its own. Identical inputs then always produce row-identical
// results, which the idempotence checks rely on.
func deterministicSQL(q string) string {
	if orderByRE.MatchString(q) {
		return q
	}
	return fmt.Sprintf("SELECT * FROM (%s) ORDER BY ALL", q)
}

// Run executes the query and scans the full result into a RecordBatch.
func (e *Executor) Run(ctx context.Context, q Query) (*ingest.RecordBatch, error) {
	rows, err := e.db.Query(ctx, deterministicSQL(q.SQL))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &QueryError{Name: q.Name, SQL: q.SQL, Err: err}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, &QueryError{Name: q.Name, SQL: q.SQL, Err: err}
	}
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, &QueryError{Name: q.Name, SQL: q.SQL, Err: err}
	}

	fields := make([]ingest.Field, len(cols))
	for i, name := range cols {
		fields[i] = ingest.Field{Name: name, Type: dataTypeForDuckDB(colTypes[i].DatabaseTypeName())}
	}
	schema, err := ingest.NewSchema(fields)
	if err != nil {
		return nil, &QueryError{Name: q.Name, SQL: q.SQL, Err: err}
	}

	keys := make([]wkk.RowKey, len(cols))
	for i, name := range cols {
		keys[i] = wkk.NewRowKey(name)
	}

	builder := ingest.NewBuilder(schema)
	batch := pipeline.GetBatch()
	defer pipeline.ReturnBatch(batch)

	scan := make([]any, len(cols))
	for i := range scan {
		scan[i] = new(any)
	}
	for rows.Next() {
		if err := rows.Scan(scan...); err != nil {
			return nil, &QueryError{Name: q.Name, SQL: q.SQL, Err: err}
		}
		row := batch.AddRow()
		for i, cell := range scan {
			v := *(cell.(*any))
			if v == nil {
				continue
			}
			row[keys[i]] = normalizeSQLValue(v)
		}
	}
	if err := rows.Err(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &QueryError{Name: q.Name, SQL: q.SQL, Err: err}
	}

	builder.Append(batch)
	out, err := builder.Build(ctx)
	if err != nil {
		return nil, &QueryError{Name: q.Name, SQL: q.SQL, Err: err}
	}
	return out, nil
}

func dataTypeForDuckDB(dbType string) ingest.DataType {
	switch strings.ToUpper(dbType) {
	case "BOOLEAN":
		return ingest.TypeBool
	case "TINYINT", "SMALLINT", "INTEGER", "BIGINT", "HUGEINT",
		"UTINYINT", "USMALLINT", "UINTEGER", "UBIGINT":
		return ingest.TypeInt64
	case "FLOAT", "DOUBLE":
		return ingest.TypeFloat64
	default:
		return ingest.TypeString
	}
}

// normalizeSQLValue narrows driver-specific scan types down to the four
// scalar types record batches carry.
func normalizeSQLValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case uint8:
		return int64(t)
	case uint16:
		return int64(t)
	case uint32:
		return int64(t)
	case uint64:
		return int64(t)
	case float32:
		return float64(t)
	case *big.Int:
		return t.Int64()
	case time.Time:
		return t.UTC().UnixMilli()
	default:
		return v
	}
}

func escapeSQLString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
