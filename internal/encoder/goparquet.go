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

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/zinclabs/znbench/internal/ingest"
)

const writeChunkRows = 1000

// GoParquetBackend encodes record batches with parquet-go's generic writer.
type GoParquetBackend struct {
	compression Compression
}

// Name returns the backend name.
func (b *GoParquetBackend) Name() string {
	return "goparquet"
}

func (b *GoParquetBackend) Encode(ctx context.Context, batch *ingest.RecordBatch, w io.Writer) error {
	schema, err := parquetSchemaFor(batch.Schema())
	if err != nil {
		return &EncodeError{Backend: b.Name(), Err: err}
	}

	opts := []parquet.WriterOption{
		schema,
		parquet.Compression(parquetCodec(b.compression)),
		parquet.PageBufferSize(32 * 1024),
	}
	writer := parquet.NewGenericWriter[map[string]any](w, opts...)

	chunk := make([]map[string]any, 0, writeChunkRows)
	for i := 0; i < batch.NumRows(); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk = append(chunk, batch.Row(i))
		if len(chunk) == writeChunkRows {
			if _, err := writer.Write(chunk); err != nil {
				return &EncodeError{Backend: b.Name(), Err: err}
			}
			chunk = chunk[:0]
		}
	}
	if len(chunk) > 0 {
		if _, err := writer.Write(chunk); err != nil {
			return &EncodeError{Backend: b.Name(), Err: err}
		}
	}

	if err := writer.Close(); err != nil {
		return &EncodeError{Backend: b.Name(), Err: err}
	}
	return nil
}

func parquetCodec(c Compression) compress.Codec {
	switch c {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionNone:
		return &parquet.Uncompressed
	default:
		return &parquet.Zstd
	}
}

// dictionaryOverride lists columns where dictionary encoding hurts: the
// message column is near-unique, so a dictionary only adds overhead.
var dictionaryOverride = map[string]bool{
	"message": false,
}

func wantDictionary(name string) bool {
	v, ok := dictionaryOverride[name]
	if ok {
		return v
	}
	return true
}

// parquetSchemaFor maps an ingest schema to a parquet group schema. All
// columns are optional; parquet sorts group fields by name.
func parquetSchemaFor(s *ingest.Schema) (*parquet.Schema, error) {
	nodes := make(map[string]parquet.Node, s.Len())
	for _, f := range s.Fields() {
		node, err := parquetNodeFor(f)
		if err != nil {
			return nil, err
		}
		nodes[f.Name] = node
	}
	return parquet.NewSchema("znbench", parquet.Group(nodes)), nil
}

func parquetNodeFor(f ingest.Field) (parquet.Node, error) {
	enc := func(n parquet.Node) parquet.Node {
		if wantDictionary(f.Name) {
			n = parquet.Encoded(n, &parquet.RLEDictionary)
		}
		return n
	}

	switch f.Type {
	case ingest.TypeBool:
		return parquet.Optional(parquet.Leaf(parquet.BooleanType)), nil
	case ingest.TypeInt64:
		return parquet.Optional(enc(parquet.Int(64))), nil
	case ingest.TypeFloat64:
		return parquet.Optional(enc(parquet.Leaf(parquet.DoubleType))), nil
	case ingest.TypeString:
		return parquet.Optional(enc(parquet.String())), nil
	default:
		return nil, fmt.Errorf("column %q has unsupported type %s", f.Name, f.Type)
	}
}
