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
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	aparquet "github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/zinclabs/znbench/internal/ingest"
)

// arrowChunkRows is the number of rows per Arrow record batch flushed to
// the parquet writer.
const arrowChunkRows = 8192

// ArrowBackend encodes record batches by building Arrow arrays and
// streaming them through pqarrow's file writer.
type ArrowBackend struct {
	compression Compression
}

// Name returns the backend name.
func (b *ArrowBackend) Name() string {
	return "arrow"
}

func (b *ArrowBackend) Encode(ctx context.Context, batch *ingest.RecordBatch, w io.Writer) error {
	schema, err := arrowSchemaFor(batch.Schema())
	if err != nil {
		return &EncodeError{Backend: b.Name(), Err: err}
	}

	writerProps := aparquet.NewWriterProperties(
		aparquet.WithCompression(arrowCodec(b.compression)),
	)
	fw, err := pqarrow.NewFileWriter(schema, w, writerProps, pqarrow.DefaultWriterProps())
	if err != nil {
		return &EncodeError{Backend: b.Name(), Err: err}
	}

	alloc := memory.DefaultAllocator
	for offset := 0; offset < batch.NumRows() || offset == 0; offset += arrowChunkRows {
		if err := ctx.Err(); err != nil {
			_ = fw.Close()
			return err
		}
		end := min(offset+arrowChunkRows, batch.NumRows())
		rec, err := buildArrowRecord(alloc, schema, batch, offset, end)
		if err != nil {
			_ = fw.Close()
			return &EncodeError{Backend: b.Name(), Err: err}
		}
		writeErr := fw.Write(rec)
		rec.Release()
		if writeErr != nil {
			_ = fw.Close()
			return &EncodeError{Backend: b.Name(), Err: writeErr}
		}
	}

	if err := fw.Close(); err != nil {
		return &EncodeError{Backend: b.Name(), Err: err}
	}
	return nil
}

func arrowCodec(c Compression) compress.Compression {
	switch c {
	case CompressionSnappy:
		return compress.Codecs.Snappy
	case CompressionNone:
		return compress.Codecs.Uncompressed
	default:
		return compress.Codecs.Zstd
	}
}

func arrowSchemaFor(s *ingest.Schema) (*arrow.Schema, error) {
	fields := make([]arrow.Field, 0, s.Len())
	for _, f := range s.Fields() {
		var dt arrow.DataType
		switch f.Type {
		case ingest.TypeBool:
			dt = arrow.FixedWidthTypes.Boolean
		case ingest.TypeInt64:
			dt = arrow.PrimitiveTypes.Int64
		case ingest.TypeFloat64:
			dt = arrow.PrimitiveTypes.Float64
		case ingest.TypeString:
			dt = arrow.BinaryTypes.String
		default:
			return nil, fmt.Errorf("column %q has unsupported type %s", f.Name, f.Type)
		}
		fields = append(fields, arrow.Field{Name: f.Name, Type: dt, Nullable: true})
	}
	return arrow.NewSchema(fields, nil), nil
}

// buildArrowRecord materializes rows [start, end) as one Arrow record.
func buildArrowRecord(alloc memory.Allocator, schema *arrow.Schema, batch *ingest.RecordBatch, start, end int) (arrow.Record, error) {
	arrays := make([]arrow.Array, batch.NumCols())

	for c := 0; c < batch.NumCols(); c++ {
		col := batch.Column(c)
		a, err := buildArrowArray(alloc, col, start, end)
		if err != nil {
			for _, built := range arrays[:c] {
				built.Release()
			}
			return nil, fmt.Errorf("column %q: %w", batch.Schema().Field(c).Name, err)
		}
		arrays[c] = a
	}

	rec := array.NewRecord(schema, arrays, int64(end-start))
	// The record retains its own references to the arrays.
	for _, a := range arrays {
		a.Release()
	}
	return rec, nil
}

func buildArrowArray(alloc memory.Allocator, col *ingest.Column, start, end int) (arrow.Array, error) {
	switch col.Type() {
	case ingest.TypeBool:
		bldr := array.NewBooleanBuilder(alloc)
		defer bldr.Release()
		for i := start; i < end; i++ {
			if v, ok := col.Value(i); ok {
				bldr.Append(v.(bool))
			} else {
				bldr.AppendNull()
			}
		}
		return bldr.NewArray(), nil
	case ingest.TypeInt64:
		bldr := array.NewInt64Builder(alloc)
		defer bldr.Release()
		for i := start; i < end; i++ {
			if v, ok := col.Value(i); ok {
				bldr.Append(v.(int64))
			} else {
				bldr.AppendNull()
			}
		}
		return bldr.NewArray(), nil
	case ingest.TypeFloat64:
		bldr := array.NewFloat64Builder(alloc)
		defer bldr.Release()
		for i := start; i < end; i++ {
			if v, ok := col.Value(i); ok {
				bldr.Append(v.(float64))
			} else {
				bldr.AppendNull()
			}
		}
		return bldr.NewArray(), nil
	case ingest.TypeString:
		bldr := array.NewStringBuilder(alloc)
		defer bldr.Release()
		for i := start; i < end; i++ {
			if v, ok := col.Value(i); ok {
				bldr.Append(v.(string))
			} else {
				bldr.AppendNull()
			}
		}
		return bldr.NewArray(), nil
	default:
		return nil, fmt.Errorf("unsupported column type %s", col.Type())
	}
}
