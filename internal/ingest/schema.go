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

// Package ingest parses raw log fixtures into typed columnar record batches.
// Parsing is a pure transformation: readers produce pooled row batches, the
// columnar builder turns them into equal-length typed columns.
package ingest

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/zinclabs/znbench/pipeline"
	"github.com/zinclabs/znbench/pipeline/wkk"
)

// DataType is the semantic type of a column.
type DataType int

const (
	TypeInvalid DataType = iota
	TypeBool
	TypeInt64
	TypeFloat64
	TypeString
)

func (t DataType) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeInt64:
		return "int64"
	case TypeFloat64:
		return "float64"
	case TypeString:
		return "string"
	default:
		return "invalid"
	}
}

// Field is one named, typed column in a schema.
type Field struct {
	Name string
	Type DataType
}

// Schema is an ordered set of fields. It is immutable after construction;
// all record batches derived from one fixture share one schema.
type Schema struct {
	fields []Field
	index  map[string]int
}

// NewSchema builds a schema from the given fields. Field names must be
// unique and non-empty, and types valid.
func NewSchema(fields []Field) (*Schema, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("schema must have at least one field")
	}
	index := make(map[string]int, len(fields))
	for i, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("schema field %d has empty name", i)
		}
		if f.Type <= TypeInvalid || f.Type > TypeString {
			return nil, fmt.Errorf("schema field %q has invalid type", f.Name)
		}
		if _, dup := index[f.Name]; dup {
			return nil, fmt.Errorf("schema field %q is duplicated", f.Name)
		}
		index[f.Name] = i
	}
	s := &Schema{
		fields: make([]Field, len(fields)),
		index:  index,
	}
	copy(s.fields, fields)
	return s, nil
}

// Fields returns a copy of the ordered field list.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Len returns the number of fields.
func (s *Schema) Len() int {
	return len(s.fields)
}

// Field returns the field at position i.
func (s *Schema) Field(i int) Field {
	return s.fields[i]
}

// FieldIndex returns the position of the named field, or -1.
func (s *Schema) FieldIndex(name string) int {
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

// EqualIgnoringOrder reports whether both schemas have the same field
// names and types. Parquet group schemas come back name-sorted, so
// round-trip comparisons must not depend on field order.
func (s *Schema) EqualIgnoringOrder(other *Schema) bool {
	if other == nil || len(s.fields) != len(other.fields) {
		return false
	}
	for _, f := range s.fields {
		j := other.FieldIndex(f.Name)
		if j < 0 || other.fields[j].Type != f.Type {
			return false
		}
	}
	return true
}

// InferSchema derives a schema from the first maxRows rows of the given
// batches. Numeric columns are promoted int64 → float64; any other type
// conflict promotes the column to string. Columns that were null in every
// scanned row default to string.
func InferSchema(batches []*pipeline.Batch, maxRows int) (*Schema, error) {
	if maxRows <= 0 {
		maxRows = 1000
	}

	types := make(map[string]DataType)
	seen := 0
scan:
	for _, batch := range batches {
		for i := 0; i < batch.Len(); i++ {
			if seen >= maxRows {
				break scan
			}
			seen++
			for key, value := range batch.Get(i) {
				name := wkk.RowKeyValue(key)
				vt := inferTypeFromValue(value)
				if vt == TypeInvalid {
					continue // nulls carry no type information
				}
				if existing, ok := types[name]; ok {
					types[name] = promoteType(existing, vt)
				} else {
					types[name] = vt
				}
			}
		}
	}

	if len(types) == 0 {
		return nil, fmt.Errorf("cannot infer schema: no rows scanned")
	}

	names := make([]string, 0, len(types))
	for name := range types {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]Field, 0, len(names))
	for _, name := range names {
		t := types[name]
		if t == TypeInvalid {
			t = TypeString
		}
		fields = append(fields, Field{Name: name, Type: t})
	}
	return NewSchema(fields)
}

// promoteType returns the narrowest type that can represent both.
func promoteType(a, b DataType) DataType {
	if a == b {
		return a
	}
	if (a == TypeInt64 && b == TypeFloat64) || (a == TypeFloat64 && b == TypeInt64) {
		return TypeFloat64
	}
	return TypeString
}

// inferTypeFromValue determines the DataType from a decoded Go value.
// JSON unmarshals all numbers as float64; integral floats are narrowed.
func inferTypeFromValue(value any) DataType {
	switch v := value.(type) {
	case nil:
		return TypeInvalid
	case bool:
		return TypeBool
	case int, int32, int64:
		return TypeInt64
	case float64:
		if v == float64(int64(v)) {
			return TypeInt64
		}
		return TypeFloat64
	case float32:
		return TypeFloat64
	case string:
		return TypeString
	default:
		return TypeString
	}
}

// inferTypeFromString parses a raw string cell and returns its type and
// parsed value. CSV readers use this since all CSV values start as strings.
func inferTypeFromString(s string) (DataType, any) {
	if s == "" {
		return TypeString, ""
	}

	// Integers before bool: ParseBool accepts "1"/"0", which we want numeric.
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return TypeInt64, i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return TypeFloat64, f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return TypeBool, b
	}
	return TypeString, s
}
