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

package harness

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRunIDIsSortable(t *testing.T) {
	a := NewRunID()
	time.Sleep(2 * time.Millisecond)
	b := NewRunID()

	assert.Len(t, a, 26)
	assert.Less(t, a, b)
}

func TestResultsWriterJSONLines(t *testing.T) {
	var buf bytes.Buffer
	w := NewResultsWriter(&buf, nil, "01TESTRUN")

	report := &Report{
		State: StateDone,
		Samples: []Sample{
			{Stage: "encode", Iteration: 0, Duration: 5 * time.Millisecond},
			{Stage: "encode", Iteration: 1, Duration: 6 * time.Millisecond, Failed: true, Error: "boom"},
		},
		Summaries: Summarize([]Sample{
			{Stage: "encode", Iteration: 0, Duration: 5 * time.Millisecond},
		}),
	}

	require.NoError(t, w.WriteRun(DefaultConfig(), time.Now(), false))
	require.NoError(t, w.WriteReport(report))
	require.NoError(t, w.Close())

	var types []string
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		var line map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &line), "every line must be standalone JSON")
		assert.Equal(t, "01TESTRUN", line["run_id"])
		types = append(types, line["type"].(string))
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, []string{"run", "sample", "sample", "summary"}, types)
}

func TestResultsWriterFixtureRecord(t *testing.T) {
	var buf bytes.Buffer
	w := NewResultsWriter(&buf, nil, "01TESTRUN")

	require.NoError(t, w.WriteFixture(FixtureInfo{
		Name:           "app-logs",
		Fingerprint:    "00000000deadbeef",
		Rows:           1000,
		EncodedBytes:   4096,
		EncodeDuration: 3 * time.Millisecond,
		Backend:        "goparquet",
		Compression:    "zstd",
	}))
	require.NoError(t, w.Close())

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "fixture", line["type"])
	assert.Equal(t, "app-logs", line["fixture"])
	assert.Equal(t, float64(4096), line["encoded_bytes"])
	assert.Equal(t, "zstd", line["compression"])
}

func TestResultsWriterFailedSampleCarriesError(t *testing.T) {
	var buf bytes.Buffer
	w := NewResultsWriter(&buf, nil, NewRunID())

	report := &Report{Samples: []Sample{
		{Stage: "query", Duration: time.Millisecond, Failed: true, Error: "no such table"},
	}}
	require.NoError(t, w.WriteReport(report))
	require.NoError(t, w.Close())

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, true, line["failed"])
	assert.Equal(t, "no such table", line["error"])
}

func TestOpenResultsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.jsonl")
	w, err := OpenResultsFile(path, NewRunID())
	require.NoError(t, err)

	require.NoError(t, w.WriteRun(DefaultConfig(), time.Now(), true))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &line))
	assert.Equal(t, "run", line["type"])
	assert.Equal(t, true, line["aborted"])
}

func TestOpenResultsFileBadPath(t *testing.T) {
	_, err := OpenResultsFile(filepath.Join(t.TempDir(), "missing", "r.jsonl"), NewRunID())
	assert.Error(t, err)
}
