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

// Package query executes SQL over persisted parquet data with an embedded
// DuckDB instance and returns results as record batches with a
// deterministic row order.
package query

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/marcboeker/go-duckdb/v2"
)

type option func(*dbConfig)

type dbConfig struct {
	memoryLimitMB int64
	threads       int
}

// WithMemoryLimitMB caps DuckDB memory in megabytes. Zero means unlimited.
func WithMemoryLimitMB(limit int64) option {
	return func(c *dbConfig) {
		c.memoryLimitMB = limit
	}
}

// WithThreads sets DuckDB's thread count. Zero keeps DuckDB's default.
// Query-internal parallelism is fine; it never crosses iterations.
func WithThreads(n int) option {
	return func(c *dbConfig) {
		c.threads = n
	}
}

// DB wraps an in-memory DuckDB database shared by one benchmark run.
type DB struct {
	db *sql.DB
}

// Open opens an in-memory DuckDB database and applies the given settings.
func Open(ctx context.Context, opts ...option) (*DB, error) {
	cfg := &dbConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	if cfg.memoryLimitMB > 0 {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("SET memory_limit='%dMB'", cfg.memoryLimitMB)); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set duckdb memory limit: %w", err)
		}
	}
	if cfg.threads > 0 {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("SET threads=%d", cfg.threads)); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set duckdb threads: %w", err)
		}
	}

	return &DB{db: db}, nil
}

// Query runs a query on the shared database.
func (d *DB) Query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return d.db.QueryContext(ctx, q, args...)
}

// Exec runs a statement on the shared database.
func (d *DB) Exec(ctx context.Context, q string, args ...any) error {
	_, err := d.db.ExecContext(ctx, q, args...)
	return err
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}
