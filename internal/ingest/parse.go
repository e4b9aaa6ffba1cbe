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
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/zinclabs/znbench/pipeline"
)

// Format identifies a fixture line format.
type Format int

const (
	FormatJSONLines Format = iota
	FormatCSV
)

// DetectFormat picks a Format from the fixture file name, ignoring a
// trailing .gz suffix. Unknown extensions are treated as JSON lines.
func DetectFormat(path string) Format {
	name := strings.TrimSuffix(filepath.Base(path), ".gz")
	switch filepath.Ext(name) {
	case ".csv":
		return FormatCSV
	default:
		return FormatJSONLines
	}
}

// NewReader constructs the line reader for the given format.
func NewReader(format Format, rc io.ReadCloser, batchSize int) (Reader, error) {
	switch format {
	case FormatCSV:
		return NewCSVReader(rc, batchSize)
	case FormatJSONLines:
		return NewJSONLinesReader(rc, batchSize), nil
	default:
		return nil, fmt.Errorf("unknown fixture format %d", format)
	}
}

// Options controls fixture parsing.
type Options struct {
	// BatchSize is the row count per pipeline batch.
	BatchSize int

	// InferRows is the number of leading rows scanned for schema
	// inference when Schema is nil.
	InferRows int

	// Schema, when non-nil, is used instead of inference.
	Schema *Schema
}

// Parse drains the reader into a RecordBatch. When opts.Schema is nil the
// schema is inferred from the first opts.InferRows rows. Parsing has no
// side effects beyond the returned batch.
func Parse(ctx context.Context, r Reader, opts Options) (*RecordBatch, error) {
	var collected []*pipeline.Batch
	defer func() {
		for _, b := range collected {
			pipeline.ReturnBatch(b)
		}
	}()

	for {
		batch, err := r.Next(ctx)
		if batch != nil {
			collected = append(collected, batch)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	schema := opts.Schema
	if schema == nil {
		inferred, err := InferSchema(collected, opts.InferRows)
		if err != nil {
			return nil, err
		}
		schema = inferred
	}

	builder := NewBuilder(schema)
	for _, b := range collected {
		builder.Append(b)
	}
	return builder.Build(ctx)
}
