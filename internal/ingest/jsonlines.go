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

package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/zinclabs/znbench/pipeline"
	"github.com/zinclabs/znbench/pipeline/wkk"
)

// MaxLineSizeBytes bounds a single fixture line. Log lines beyond 1MB are
// fixture bugs, not data.
const MaxLineSizeBytes = 1024 * 1024

// timestampAliases are source spellings normalized to the timestamp column.
// The original data sets used "@timestamp", which SQL layers choke on.
var timestampAliases = map[string]bool{
	"@timestamp": true,
	"_timestamp": true,
	"ts":         true,
}

// Reader yields pooled row batches from a fixture stream. Batches are owned
// by the reader; callers copy rows they retain.
type Reader interface {
	// Next returns the next batch of rows, or io.EOF when exhausted.
	Next(ctx context.Context) (*pipeline.Batch, error)

	// Close releases any resources held by the reader.
	Close() error

	// TotalRowsReturned returns the number of rows returned so far via Next.
	TotalRowsReturned() int64
}

// JSONLinesReader reads rows from a JSON lines stream.
type JSONLinesReader struct {
	scanner   *bufio.Scanner
	lineNo    int
	closed    bool
	totalRows int64
	closer    io.Closer
	batchSize int
}

// NewJSONLinesReader creates a JSONLinesReader for the given io.ReadCloser.
// The reader takes ownership of the closer.
func NewJSONLinesReader(reader io.ReadCloser, batchSize int) *JSONLinesReader {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSizeBytes)

	if batchSize <= 0 {
		batchSize = 1000
	}

	return &JSONLinesReader{
		scanner:   scanner,
		closer:    reader,
		batchSize: batchSize,
	}
}

func (r *JSONLinesReader) Next(ctx context.Context) (*pipeline.Batch, error) {
	if r.closed {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	batch := pipeline.GetBatch()

	for batch.Len() < r.batchSize {
		if !r.scanner.Scan() {
			if err := r.scanner.Err(); err != nil {
				pipeline.ReturnBatch(batch)
				return nil, &ParseError{Line: r.lineNo + 1, Err: fmt.Errorf("scanner: %w", err)}
			}
			break
		}

		line := strings.TrimSpace(r.scanner.Text())
		r.lineNo++

		if line == "" {
			continue
		}

		var jsonRow map[string]any
		if err := json.Unmarshal([]byte(line), &jsonRow); err != nil {
			pipeline.ReturnBatch(batch)
			return nil, &ParseError{Line: r.lineNo, Raw: line, Err: err}
		}

		batchRow := batch.AddRow()
		for k, v := range jsonRow {
			batchRow[normalizeKey(k)] = v
		}
	}

	if batch.Len() == 0 {
		pipeline.ReturnBatch(batch)
		r.closed = true
		return nil, io.EOF
	}

	r.totalRows += int64(batch.Len())
	return batch, nil
}

// Close closes the reader and the underlying io.ReadCloser.
func (r *JSONLinesReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	var err error
	if r.closer != nil {
		err = r.closer.Close()
		r.closer = nil
	}
	r.scanner = nil
	return err
}

// TotalRowsReturned returns the total number of rows returned via Next.
func (r *JSONLinesReader) TotalRowsReturned() int64 {
	return r.totalRows
}

func normalizeKey(k string) wkk.RowKey {
	if timestampAliases[k] {
		return wkk.RowKeyTimestamp
	}
	return wkk.NewRowKey(k)
}
