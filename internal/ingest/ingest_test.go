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
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zinclabs/znbench/pipeline"
	"github.com/zinclabs/znbench/pipeline/wkk"
)

func newStringReadCloser(s string) io.ReadCloser {
	return io.NopCloser(bytes.NewReader([]byte(s)))
}

// readAllRows drains a reader, copying rows out of the pooled batches.
func readAllRows(t *testing.T, r Reader) []pipeline.Row {
	t.Helper()
	var rows []pipeline.Row
	for {
		batch, err := r.Next(context.Background())
		if batch != nil {
			for i := 0; i < batch.Len(); i++ {
				rows = append(rows, pipeline.CopyRow(batch.Get(i)))
			}
			pipeline.ReturnBatch(batch)
		}
		if errors.Is(err, io.EOF) {
			return rows
		}
		require.NoError(t, err)
	}
}

func TestJSONLinesReaderBasic(t *testing.T) {
	data := `{"timestamp": 1700000000000, "message": "first", "level": "INFO"}
{"timestamp": 1700000001000, "message": "second", "level": "WARN"}

{"timestamp": 1700000002000, "message": "third", "level": "ERROR"}`

	r := NewJSONLinesReader(newStringReadCloser(data), 100)
	defer func() { _ = r.Close() }()

	rows := readAllRows(t, r)
	require.Len(t, rows, 3)
	assert.Equal(t, "first", rows[0].GetString(wkk.RowKeyMessage))
	assert.Equal(t, "ERROR", rows[2].GetString(wkk.RowKeyLevel))
	assert.Equal(t, int64(3), r.TotalRowsReturned())
}

func TestJSONLinesReaderNormalizesTimestampAliases(t *testing.T) {
	data := `{"@timestamp": 1, "message": "a"}`

	r := NewJSONLinesReader(newStringReadCloser(data), 10)
	defer func() { _ = r.Close() }()

	rows := readAllRows(t, r)
	require.Len(t, rows, 1)
	ts, ok := rows[0].GetInt64(wkk.RowKeyTimestamp)
	require.True(t, ok)
	assert.Equal(t, int64(1), ts)
}

func TestJSONLinesReaderParseErrorCarriesLineAndRaw(t *testing.T) {
	data := `{"ok": true}
not json at all`

	r := NewJSONLinesReader(newStringReadCloser(data), 10)
	defer func() { _ = r.Close() }()

	_, err := r.Next(context.Background())
	require.Error(t, err)

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 2, perr.Line)
	assert.Equal(t, "not json at all", perr.Raw)
}

func TestJSONLinesReaderBatchSize(t *testing.T) {
	data := `{"n": 1}
{"n": 2}
{"n": 3}`

	r := NewJSONLinesReader(newStringReadCloser(data), 2)
	defer func() { _ = r.Close() }()

	batch, err := r.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, batch.Len())
	pipeline.ReturnBatch(batch)

	batch, err = r.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Len())
	pipeline.ReturnBatch(batch)

	_, err = r.Next(context.Background())
	assert.True(t, errors.Is(err, io.EOF))
}

func TestCSVReaderBasic(t *testing.T) {
	data := "timestamp,message,count\n1700000000000,hello,5\n1700000001000,world,7\n"

	r, err := NewCSVReader(newStringReadCloser(data), 100)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	rows := readAllRows(t, r)
	require.Len(t, rows, 2)

	ts, ok := rows[0].GetInt64(wkk.RowKeyTimestamp)
	require.True(t, ok)
	assert.Equal(t, int64(1700000000000), ts)
	assert.Equal(t, "hello", rows[0].GetString(wkk.RowKeyMessage))
	assert.Equal(t, int64(5), rows[0][wkk.NewRowKey("count")])
}

func TestCSVReaderEmptyStream(t *testing.T) {
	_, err := NewCSVReader(newStringReadCloser(""), 100)
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 1, perr.Line)
}

func TestCSVReaderFieldCountMismatch(t *testing.T) {
	data := "a,b\n1,2\n3\n"

	r, err := NewCSVReader(newStringReadCloser(data), 100)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	_, err = r.Next(context.Background())
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 3, perr.Line)
}

func TestInferSchemaPromotions(t *testing.T) {
	batch := pipeline.GetBatch()
	defer pipeline.ReturnBatch(batch)

	r1 := batch.AddRow()
	r1[wkk.NewRowKey("num")] = float64(1) // JSON integer
	r1[wkk.NewRowKey("mixed")] = float64(2)
	r1[wkk.NewRowKey("flag")] = true
	r2 := batch.AddRow()
	r2[wkk.NewRowKey("num")] = 2.5
	r2[wkk.NewRowKey("mixed")] = "oops"
	r2[wkk.NewRowKey("flag")] = nil

	schema, err := InferSchema([]*pipeline.Batch{batch}, 100)
	require.NoError(t, err)

	assert.Equal(t, TypeFloat64, schema.Field(schema.FieldIndex("num")).Type)
	assert.Equal(t, TypeString, schema.Field(schema.FieldIndex("mixed")).Type)
	assert.Equal(t, TypeBool, schema.Field(schema.FieldIndex("flag")).Type)
}

func TestInferSchemaRespectsMaxRows(t *testing.T) {
	batch := pipeline.GetBatch()
	defer pipeline.ReturnBatch(batch)

	r1 := batch.AddRow()
	r1[wkk.NewRowKey("v")] = float64(1)
	r2 := batch.AddRow()
	r2[wkk.NewRowKey("v")] = "late surprise"

	schema, err := InferSchema([]*pipeline.Batch{batch}, 1)
	require.NoError(t, err)
	assert.Equal(t, TypeInt64, schema.Field(schema.FieldIndex("v")).Type)
}

func TestSchemaRejectsDuplicatesAndEmpty(t *testing.T) {
	_, err := NewSchema(nil)
	assert.Error(t, err)

	_, err = NewSchema([]Field{{Name: "a", Type: TypeInt64}, {Name: "a", Type: TypeString}})
	assert.Error(t, err)
}

func TestParseProducesEqualLengthColumns(t *testing.T) {
	data := `{"timestamp": 1, "message": "a", "size": 10}
{"timestamp": 2, "message": "b"}
{"timestamp": 3, "size": 30}`

	r := NewJSONLinesReader(newStringReadCloser(data), 2)
	defer func() { _ = r.Close() }()

	batch, err := Parse(context.Background(), r, Options{BatchSize: 2, InferRows: 100})
	require.NoError(t, err)

	require.Equal(t, 3, batch.NumRows())
	require.Equal(t, 3, batch.NumCols())
	for i := 0; i < batch.NumCols(); i++ {
		assert.Equal(t, batch.NumRows(), batch.Column(i).Len())
	}

	// Missing values are nulls, not zero values.
	sizeCol := batch.ColumnByName("size")
	require.NotNil(t, sizeCol)
	_, ok := sizeCol.Value(1)
	assert.False(t, ok)
	v, ok := sizeCol.Value(2)
	require.True(t, ok)
	assert.Equal(t, int64(30), v)
}

func TestParseWithSuppliedSchema(t *testing.T) {
	data := `{"timestamp": 1, "message": "a"}`

	schema, err := NewSchema([]Field{
		{Name: "timestamp", Type: TypeInt64},
		{Name: "message", Type: TypeString},
		{Name: "absent", Type: TypeFloat64},
	})
	require.NoError(t, err)

	r := NewJSONLinesReader(newStringReadCloser(data), 10)
	defer func() { _ = r.Close() }()

	batch, err := Parse(context.Background(), r, Options{Schema: schema})
	require.NoError(t, err)
	require.Equal(t, 1, batch.NumRows())
	require.Equal(t, 3, batch.NumCols())

	_, ok := batch.ColumnByName("absent").Value(0)
	assert.False(t, ok)
}

func TestBuilderRejectsUncoercibleValue(t *testing.T) {
	schema, err := NewSchema([]Field{{Name: "n", Type: TypeInt64}})
	require.NoError(t, err)

	batch := pipeline.GetBatch()
	row := batch.AddRow()
	row[wkk.NewRowKey("n")] = "not a number"

	bld := NewBuilder(schema)
	bld.Append(batch)
	pipeline.ReturnBatch(batch)

	_, err = bld.Build(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `column "n"`)
}

func TestRecordBatchEqualMatchesByName(t *testing.T) {
	data := `{"b": "x", "a": 1}`

	r1 := NewJSONLinesReader(newStringReadCloser(data), 10)
	batch1, err := Parse(context.Background(), r1, Options{})
	require.NoError(t, err)

	// Same rows, schema declared in reverse order.
	schema, err := NewSchema([]Field{
		{Name: "b", Type: TypeString},
		{Name: "a", Type: TypeInt64},
	})
	require.NoError(t, err)
	r2 := NewJSONLinesReader(newStringReadCloser(data), 10)
	batch2, err := Parse(context.Background(), r2, Options{Schema: schema})
	require.NoError(t, err)

	assert.True(t, batch1.Equal(batch2))
	assert.True(t, batch2.Equal(batch1))
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, FormatCSV, DetectFormat("/data/x.csv"))
	assert.Equal(t, FormatCSV, DetectFormat("/data/x.csv.gz"))
	assert.Equal(t, FormatJSONLines, DetectFormat("/data/x.jsonl"))
	assert.Equal(t, FormatJSONLines, DetectFormat("/data/x.ndjson.gz"))
	assert.Equal(t, FormatJSONLines, DetectFormat("/data/x.log"))
}
