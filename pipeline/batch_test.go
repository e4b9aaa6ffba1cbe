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

package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zinclabs/znbench/pipeline/wkk"
)

func TestGlobalBatchPool(t *testing.T) {
	batch1 := GetBatch()
	require.NotNil(t, batch1)
	assert.Equal(t, 0, batch1.Len())

	row := batch1.AddRow()
	row[wkk.NewRowKey("test")] = "data"
	assert.Equal(t, 1, batch1.Len())

	ReturnBatch(batch1)

	// Get another batch - should be clean
	batch2 := GetBatch()
	require.NotNil(t, batch2)
	assert.Equal(t, 0, batch2.Len(), "returned batch should be clean")

	ReturnBatch(batch2)
}

func TestReturnBatchWithNil(t *testing.T) {
	// Should not panic with nil
	ReturnBatch(nil)
}

func TestBatchAddAndGet(t *testing.T) {
	batch := GetBatch()
	defer ReturnBatch(batch)

	for i := 0; i < 5; i++ {
		row := batch.AddRow()
		row[wkk.RowKeyMessage] = i
	}
	assert.Equal(t, 5, batch.Len())

	for i := 0; i < 5; i++ {
		row := batch.Get(i)
		require.NotNil(t, row)
		assert.Equal(t, i, row[wkk.RowKeyMessage])
	}

	assert.Nil(t, batch.Get(-1))
	assert.Nil(t, batch.Get(5))
}

func TestBatchDeleteRow(t *testing.T) {
	batch := GetBatch()
	defer ReturnBatch(batch)

	for i := 0; i < 3; i++ {
		row := batch.AddRow()
		row[wkk.RowKeyMessage] = i
	}

	batch.DeleteRow(1)
	require.Equal(t, 2, batch.Len())
	assert.Equal(t, 0, batch.Get(0)[wkk.RowKeyMessage])
	assert.Equal(t, 2, batch.Get(1)[wkk.RowKeyMessage])
}

func TestCopyBatch(t *testing.T) {
	batch := GetBatch()
	row := batch.AddRow()
	row[wkk.RowKeyLevel] = "ERROR"

	dup := CopyBatch(batch)
	defer ReturnBatch(dup)
	ReturnBatch(batch)

	require.Equal(t, 1, dup.Len())
	assert.Equal(t, "ERROR", dup.Get(0)[wkk.RowKeyLevel])
}

func TestCopyRowIsolation(t *testing.T) {
	orig := Row{wkk.RowKeyMessage: "hello"}
	dup := CopyRow(orig)
	dup[wkk.RowKeyMessage] = "changed"
	assert.Equal(t, "hello", orig[wkk.RowKeyMessage])
}

func TestToStringMap(t *testing.T) {
	row := Row{
		wkk.RowKeyTimestamp: int64(123),
		wkk.RowKeyMessage:   "hi",
	}
	m := ToStringMap(row)
	assert.Equal(t, int64(123), m["timestamp"])
	assert.Equal(t, "hi", m["message"])
}

func TestRowGetters(t *testing.T) {
	row := Row{
		wkk.RowKeyMessage:   "text",
		wkk.RowKeyTimestamp: float64(42),
	}
	assert.Equal(t, "text", row.GetString(wkk.RowKeyMessage))
	assert.Equal(t, "", row.GetString(wkk.RowKeyLevel))

	v, ok := row.GetInt64(wkk.RowKeyTimestamp)
	require.True(t, ok)
	assert.Equal(t, int64(42), v)

	_, ok = row.GetInt64(wkk.RowKeyMessage)
	assert.False(t, ok)
}
