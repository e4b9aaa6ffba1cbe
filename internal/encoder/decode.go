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

package encoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/zinclabs/znbench/internal/ingest"
	"github.com/zinclabs/znbench/pipeline"
	"github.com/zinclabs/znbench/pipeline/wkk"
)

// decodeBatchRows is the record batch size used when reading parquet back.
const decodeBatchRows = 1000

// Decode reads a parquet stream back into a RecordBatch. It reads through
// Arrow's parquet reader, which accepts files produced by either backend.
func Decode(r io.ReaderAt, size int64) (*ingest.RecordBatch, error) {
	pf, err := file.NewParquetReader(io.NewSectionReader(r, 0, size))
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}
	defer func() { _ = pf.Close() }()

	props := pqarrow.ArrowReadProperties{BatchSize: decodeBatchRows}
	fr, err := pqarrow.NewFileReader(pf, props, memory.DefaultAllocator)
	if err != nil {
		return nil, fmt.Errorf("create arrow file reader: %w", err)
	}

	arrowSchema, err := fr.Schema()
	if err != nil {
		return nil, fmt.Errorf("read arrow schema: %w", err)
	}
	schema, err := ingestSchemaFor(arrowSchema)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	rr, err := fr.GetRecordReader(ctx, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create record reader: %w", err)
	}
	defer rr.Release()

	builder := ingest.NewBuilder(schema)
	for {
		rec, err := rr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read parquet rows: %w", err)
		}
		if rec == nil || rec.NumRows() == 0 {
			if rec != nil {
				rec.Release()
			}
			break
		}
		appendArrowRecord(builder, rec)
		rec.Release()
	}

	return builder.Build(ctx)
}

// DecodeFile reads a parquet file from disk into a RecordBatch.
func DecodeFile(path string) (*ingest.RecordBatch, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open parquet file %s: %w", path, err)
	}
	defer func() { _ = fh.Close() }()

	info, err := fh.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat parquet file %s: %w", path, err)
	}
	return Decode(fh, info.Size())
}

func appendArrowRecord(builder *ingest.Builder, rec arrow.Record) {
	fields := rec.Schema().Fields()
	numRows := int(rec.NumRows())

	batch := pipeline.GetBatch()
	for i := range numRows {
		row := batch.AddRow()
		for j, f := range fields {
			col := rec.Column(j)
			if col.IsNull(i) {
				continue
			}
			if val := decodeArrowValue(col, i); val != nil {
				row[wkk.NewRowKey(f.Name)] = val
			}
		}
	}
	builder.Append(batch)
	pipeline.ReturnBatch(batch)
}

func ingestSchemaFor(as *arrow.Schema) (*ingest.Schema, error) {
	fields := make([]ingest.Field, 0, as.NumFields())
	for _, f := range as.Fields() {
		var t ingest.DataType
		switch f.Type.ID() {
		case arrow.BOOL:
			t = ingest.TypeBool
		case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64:
			t = ingest.TypeInt64
		case arrow.FLOAT32, arrow.FLOAT64:
			t = ingest.TypeFloat64
		case arrow.STRING, arrow.LARGE_STRING, arrow.BINARY:
			t = ingest.TypeString
		default:
			return nil, fmt.Errorf("column %q has unsupported arrow type %s", f.Name, f.Type)
		}
		fields = append(fields, ingest.Field{Name: f.Name, Type: t})
	}
	return ingest.NewSchema(fields)
}

// decodeArrowValue converts the value at index i into the column's Go
// representation. Strings are cloned so rows do not alias Arrow buffers.
func decodeArrowValue(col arrow.Array, i int) any {
	switch c := col.(type) {
	case *array.Boolean:
		return c.Value(i)
	case *array.Int8:
		return int64(c.Value(i))
	case *array.Int16:
		return int64(c.Value(i))
	case *array.Int32:
		return int64(c.Value(i))
	case *array.Int64:
		return c.Value(i)
	case *array.Float32:
		return float64(c.Value(i))
	case *array.Float64:
		return c.Value(i)
	case *array.String:
		return strings.Clone(c.Value(i))
	case *array.LargeString:
		return strings.Clone(c.Value(i))
	case *array.Binary:
		return string(c.Value(i))
	default:
		return nil
	}
}
