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
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/zinclabs/znbench/pipeline"
	"github.com/zinclabs/znbench/pipeline/wkk"
)

// CSVReader reads rows from a CSV stream. The first record is the header;
// cell types are inferred per cell (ints before floats before bools).
type CSVReader struct {
	cr        *csv.Reader
	keys      []wkk.RowKey
	lineNo    int
	closed    bool
	totalRows int64
	closer    io.Closer
	batchSize int
}

// NewCSVReader creates a CSVReader for the given io.ReadCloser. The header
// record is consumed immediately; an empty stream is a ParseError.
func NewCSVReader(reader io.ReadCloser, batchSize int) (*CSVReader, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	cr := csv.NewReader(reader)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		_ = reader.Close()
		if errors.Is(err, io.EOF) {
			return nil, &ParseError{Line: 1, Err: fmt.Errorf("missing CSV header")}
		}
		return nil, &ParseError{Line: 1, Err: err}
	}

	keys := make([]wkk.RowKey, len(header))
	for i, name := range header {
		keys[i] = normalizeKey(name)
	}

	return &CSVReader{
		cr:        cr,
		keys:      keys,
		lineNo:    1,
		closer:    reader,
		batchSize: batchSize,
	}, nil
}

func (r *CSVReader) Next(ctx context.Context) (*pipeline.Batch, error) {
	if r.closed {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	batch := pipeline.GetBatch()

	for batch.Len() < r.batchSize {
		record, err := r.cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		r.lineNo++
		if err != nil {
			pipeline.ReturnBatch(batch)
			return nil, &ParseError{Line: r.lineNo, Err: err}
		}
		if len(record) != len(r.keys) {
			pipeline.ReturnBatch(batch)
			return nil, &ParseError{
				Line: r.lineNo,
				Err:  fmt.Errorf("expected %d fields, got %d", len(r.keys), len(record)),
			}
		}

		batchRow := batch.AddRow()
		for i, cell := range record {
			// ReuseRecord means cell aliases the reader's buffer; clone
			// before the value outlives this iteration.
			_, value := inferTypeFromString(strings.Clone(cell))
			batchRow[r.keys[i]] = value
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
func (r *CSVReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	var err error
	if r.closer != nil {
		err = r.closer.Close()
		r.closer = nil
	}
	r.cr = nil
	return err
}

// TotalRowsReturned returns the total number of rows returned via Next.
func (r *CSVReader) TotalRowsReturned() int64 {
	return r.totalRows
}
