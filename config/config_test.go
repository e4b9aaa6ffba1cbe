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

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "./fixtures", cfg.Fixtures.Dir)
	assert.Equal(t, "", cfg.Fixtures.Filter)
	assert.Equal(t, 4096, cfg.Ingest.BatchSize)
	assert.Equal(t, "goparquet", cfg.Encode.Backend)
	assert.Equal(t, "zstd", cfg.Encode.Compression)
	assert.Equal(t, "k8s", cfg.Query.Needle)
	assert.Equal(t, 3, cfg.Harness.WarmupIterations)
	assert.Equal(t, 10, cfg.Harness.MeasureIterations)
	assert.InDelta(t, 0.1, cfg.Harness.FailureThreshold, 1e-9)
	assert.Equal(t, 5*time.Minute, cfg.Harness.StageTimeout)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ZNBENCH_FIXTURES_DIR", "/data/logs")
	t.Setenv("ZNBENCH_FIXTURES_FILTER", "*.json.gz")
	t.Setenv("ZNBENCH_ENCODE_BACKEND", "arrow")
	t.Setenv("ZNBENCH_ENCODE_COMPRESSION", "snappy")
	t.Setenv("ZNBENCH_HARNESS_MEASURE_ITERATIONS", "25")
	t.Setenv("ZNBENCH_HARNESS_FAILURE_THRESHOLD", "0.5")
	t.Setenv("ZNBENCH_HARNESS_STAGE_TIMEOUT", "30s")
	t.Setenv("ZNBENCH_DUCKDB_MEMORY_LIMIT_MB", "2048")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/data/logs", cfg.Fixtures.Dir)
	assert.Equal(t, "*.json.gz", cfg.Fixtures.Filter)
	assert.Equal(t, "arrow", cfg.Encode.Backend)
	assert.Equal(t, "snappy", cfg.Encode.Compression)
	assert.Equal(t, 25, cfg.Harness.MeasureIterations)
	assert.InDelta(t, 0.5, cfg.Harness.FailureThreshold, 1e-9)
	assert.Equal(t, 30*time.Second, cfg.Harness.StageTimeout)
	assert.Equal(t, int64(2048), cfg.DuckDB.MemoryLimitMB)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("ZNBENCH_HARNESS_FAILURE_THRESHOLD", "2.0")

	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Ingest.BatchSize = 0
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Fixtures.Dir = ""
	require.Error(t, cfg.Validate())
}

func TestFixtureSelector(t *testing.T) {
	t.Setenv("ZNBENCH_FIXTURES", "prod-*.json.gz")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "prod-*.json.gz", cfg.Fixtures.Filter)
}

func TestFixtureSelectorBeatsFilterKey(t *testing.T) {
	t.Setenv("ZNBENCH_FIXTURES_FILTER", "*.csv")
	t.Setenv("ZNBENCH_FIXTURES", "*.json")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "*.json", cfg.Fixtures.Filter)
}

func TestQueryNeedleOverride(t *testing.T) {
	t.Setenv("ZNBENCH_QUERY_NEEDLE", "oom")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "oom", cfg.Query.Needle)
}
