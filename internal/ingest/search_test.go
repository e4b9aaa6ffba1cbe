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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func searchTestBatch(t *testing.T) *RecordBatch {
	t.Helper()
	data := `{"ts": 1, "message": "k8s node joined the k8s cluster", "pod": "k8s-api-0", "count": 2}
{"ts": 2, "message": "disk pressure", "pod": "etcd-1", "count": 3}
{"ts": 3, "message": "k8s scheduler rebalanced", "count": 4}
`
	r := NewJSONLinesReader(newStringReadCloser(data), 100)
	defer func() { _ = r.Close() }()
	batch, err := Parse(context.Background(), r, Options{InferRows: 100})
	require.NoError(t, err)
	return batch
}

func TestTextColumns(t *testing.T) {
	batch := searchTestBatch(t)
	assert.Equal(t, []string{"message", "pod"}, batch.Schema().TextColumns())
}

func TestCountOccurrencesAllStringColumns(t *testing.T) {
	batch := searchTestBatch(t)

	// Two hits in row 0's message, one in its pod, one in row 2's message.
	assert.Equal(t, int64(4), batch.CountOccurrences("k8s", 0, batch.NumRows()))
	assert.Equal(t, int64(1), batch.CountOccurrences("etcd", 0, batch.NumRows()))
	assert.Equal(t, int64(0), batch.CountOccurrences("absent", 0, batch.NumRows()))
	assert.Equal(t, int64(0), batch.CountOccurrences("", 0, batch.NumRows()))
}

func TestCountOccurrencesWindowed(t *testing.T) {
	batch := searchTestBatch(t)

	var total int64
	for offset := 0; offset < batch.NumRows(); offset += 2 {
		total += batch.CountOccurrences("k8s", offset, offset+2)
	}
	assert.Equal(t, int64(4), total, "windowed scan must match the full scan")

	assert.Equal(t, int64(3), batch.CountOccurrences("k8s", 0, 1))
	assert.Equal(t, int64(1), batch.CountOccurrences("k8s", 2, 99), "bounds are clamped")
	assert.Equal(t, int64(4), batch.CountOccurrences("k8s", -5, batch.NumRows()))
}
