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

// Package wkk interns row keys so that the many map rows flowing through the
// harness share a single allocation per distinct column name.
package wkk

import "unique"

type rowkey string

type RowKey = unique.Handle[rowkey]

// NewRowKey returns the interned RowKey for s.
func NewRowKey(s string) RowKey {
	return unique.Make(rowkey(s))
}

// NewRowKeyFromBytes returns the interned RowKey for the given byte slice
// without requiring the caller to hold a string.
func NewRowKeyFromBytes(b []byte) RowKey {
	return unique.Make(rowkey(b))
}

// RowKeyValue returns the string form of a RowKey.
func RowKeyValue(rk RowKey) string {
	return string(rk.Value())
}

// Well-known log columns, pre-interned. Fixture parsing normalizes its
// timestamp field to RowKeyTimestamp regardless of the source spelling.
var (
	RowKeyTimestamp = unique.Make(rowkey("timestamp"))
	RowKeyMessage   = unique.Make(rowkey("message"))
	RowKeyLevel     = unique.Make(rowkey("level"))
	RowKeyService   = unique.Make(rowkey("service"))
	RowKeyHost      = unique.Make(rowkey("host"))
	RowKeyPod       = unique.Make(rowkey("pod"))
	RowKeyContainer = unique.Make(rowkey("container"))
	RowKeyNamespace = unique.Make(rowkey("namespace"))
)
