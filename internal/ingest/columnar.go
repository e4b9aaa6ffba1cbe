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
	"fmt"
	"runtime"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/zinclabs/znbench/pipeline"
	"github.com/zinclabs/znbench/pipeline/wkk"
)

// Column holds one typed value sequence plus per-row validity. Exactly one
// of the value slices is populated, chosen by Type.
type Column struct {
	typ    DataType
	bools  []bool
	ints   []int64
	floats []float64
	strs   []string
	valid  []bool
}

// Type returns the column's data type.
func (c *Column) Type() DataType {
	return c.typ
}

// Len returns the number of rows in the column.
func (c *Column) Len() int {
	return len(c.valid)
}

// Value returns the value at row i and whether it is non-null.
func (c *Column) Value(i int) (any, bool) {
	if !c.valid[i] {
		return nil, false
	}
	switch c.typ {
	case TypeBool:
		return c.bools[i], true
	case TypeInt64:
		return c.ints[i], true
	case TypeFloat64:
		return c.floats[i], true
	default:
		return c.strs[i], true
	}
}

// RecordBatch is a fixed-shape columnar collection of typed values
// conforming to a Schema. All columns have equal length. Ownership
// transfers between stages; a RecordBatch is never mutated after Build.
type RecordBatch struct {
	schema *Schema
	cols   []*Column
	rows   int
}

// Schema returns the batch's schema.
func (b *RecordBatch) Schema() *Schema {
	return b.schema
}

// NumRows returns the row count.
func (b *RecordBatch) NumRows() int {
	return b.rows
}

// NumCols returns the column count.
func (b *RecordBatch) NumCols() int {
	return len(b.cols)
}

// Column returns the column at position i.
func (b *RecordBatch) Column(i int) *Column {
	return b.cols[i]
}

// ColumnByName returns the named column, or nil.
func (b *RecordBatch) ColumnByName(name string) *Column {
	i := b.schema.FieldIndex(name)
	if i < 0 {
		return nil
	}
	return b.cols[i]
}

// Value returns the value at (row, col) and whether it is non-null.
func (b *RecordBatch) Value(row, col int) (any, bool) {
	return b.cols[col].Value(row)
}

// Row materializes row i as a map. Used by encoders and debug output.
func (b *RecordBatch) Row(i int) map[string]any {
	out := make(map[string]any, len(b.cols))
	for c, col := range b.cols {
		if v, ok := col.Value(i); ok {
			out[b.schema.Field(c).Name] = v
		}
	}
	return out
}

// Equal reports whether both batches hold the same columns with the same
// values per row. Columns are matched by name, not position, since parquet
// group schemas come back name-sorted.
func (b *RecordBatch) Equal(other *RecordBatch) bool {
	if other == nil || b.rows != other.rows {
		return false
	}
	if !b.schema.EqualIgnoringOrder(other.schema) {
		return false
	}
	for i, f := range b.schema.fields {
		oc := other.ColumnByName(f.Name)
		c := b.cols[i]
		for r := 0; r < b.rows; r++ {
			v1, ok1 := c.Value(r)
			v2, ok2 := oc.Value(r)
			if ok1 != ok2 || v1 != v2 {
				return false
			}
		}
	}
	return true
}

// Builder accumulates parsed rows and materializes them into a
// RecordBatch. Rows are copied on Append, so the source pipeline batches
// can be returned to their pool immediately.
type Builder struct {
	schema *Schema
	rows   []pipeline.Row
}

// NewBuilder creates a builder for the given schema.
func NewBuilder(schema *Schema) *Builder {
	return &Builder{schema: schema}
}

// Append copies all rows of the batch into the builder.
func (bld *Builder) Append(batch *pipeline.Batch) {
	for i := 0; i < batch.Len(); i++ {
		bld.rows = append(bld.rows, pipeline.CopyRow(batch.Get(i)))
	}
}

// Len returns the number of rows accumulated so far.
func (bld *Builder) Len() int {
	return len(bld.rows)
}

// Build materializes one typed column per schema field. Columns are built
// concurrently over the shared read-only row slice, bounded by GOMAXPROCS;
// parallelism never extends past the returned batch.
func (bld *Builder) Build(ctx context.Context) (*RecordBatch, error) {
	n := len(bld.rows)
	cols := make([]*Column, bld.schema.Len())

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, field := range bld.schema.fields {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			col, err := buildColumn(field, bld.rows)
			if err != nil {
				return err
			}
			cols[i] = col
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &RecordBatch{schema: bld.schema, cols: cols, rows: n}, nil
}

func buildColumn(field Field, rows []pipeline.Row) (*Column, error) {
	n := len(rows)
	col := &Column{typ: field.Type, valid: make([]bool, n)}
	switch field.Type {
	case TypeBool:
		col.bools = make([]bool, n)
	case TypeInt64:
		col.ints = make([]int64, n)
	case TypeFloat64:
		col.floats = make([]float64, n)
	default:
		col.strs = make([]string, n)
	}

	key := wkk.NewRowKey(field.Name)
	for r, row := range rows {
		raw, present := row[key]
		if !present || raw == nil {
			continue
		}
		if err := setColumnValue(col, r, raw); err != nil {
			return nil, fmt.Errorf("column %q row %d: %w", field.Name, r, err)
		}
		col.valid[r] = true
	}
	return col, nil
}

func setColumnValue(col *Column, i int, raw any) error {
	switch col.typ {
	case TypeBool:
		b, ok := raw.(bool)
		if !ok {
			return fmt.Errorf("cannot coerce %T to bool", raw)
		}
		col.bools[i] = b
	case TypeInt64:
		v, ok := coerceInt64(raw)
		if !ok {
			return fmt.Errorf("cannot coerce %T to int64", raw)
		}
		col.ints[i] = v
	case TypeFloat64:
		v, ok := coerceFloat64(raw)
		if !ok {
			return fmt.Errorf("cannot coerce %T to float64", raw)
		}
		col.floats[i] = v
	default:
		col.strs[i] = coerceString(raw)
	}
	return nil
}

func coerceInt64(raw any) (int64, bool) {
	switch v := raw.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case float64:
		if v == float64(int64(v)) {
			return int64(v), true
		}
		return 0, false
	default:
		return 0, false
	}
}

func coerceFloat64(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	default:
		return 0, false
	}
}

// coerceString renders any scalar as a string. String columns absorb type
// conflicts found during inference, so every scalar must land here cleanly.
func coerceString(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
