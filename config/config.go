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

// Package config aggregates configuration for the benchmark binary.
// Each section is owned by its respective package.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Fixtures FixturesConfig `mapstructure:"fixtures"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Encode   EncodeConfig   `mapstructure:"encode"`
	Query    QueryConfig    `mapstructure:"query"`
	Harness  HarnessConfig  `mapstructure:"harness"`
	DuckDB   DuckDBConfig   `mapstructure:"duckdb"`
}

type FixturesConfig struct {
	// Dir is the directory scanned for fixture files.
	Dir string `mapstructure:"dir"`

	// Filter is a glob matched against fixture file names. The ZNBENCH_FIXTURES
	// environment variable selects a subset without flag changes.
	Filter string `mapstructure:"filter"`
}

type IngestConfig struct {
	BatchSize int `mapstructure:"batch_size"`
	InferRows int `mapstructure:"infer_rows"`
}

type EncodeConfig struct {
	Backend     string `mapstructure:"backend"`
	Compression string `mapstructure:"compression"`
}

type QueryConfig struct {
	Needle string `mapstructure:"needle"`
}

type HarnessConfig struct {
	WarmupIterations  int           `mapstructure:"warmup_iterations"`
	MeasureIterations int           `mapstructure:"measure_iterations"`
	FailureThreshold  float64       `mapstructure:"failure_threshold"`
	StageTimeout      time.Duration `mapstructure:"stage_timeout"`
}

type DuckDBConfig struct {
	MemoryLimitMB int64 `mapstructure:"memory_limit_mb"`
	Threads       int   `mapstructure:"threads"`
}

func Default() *Config {
	return &Config{
		Fixtures: FixturesConfig{Dir: "./fixtures"},
		Ingest:   IngestConfig{BatchSize: 4096, InferRows: 1000},
		Encode:   EncodeConfig{Backend: "goparquet", Compression: "zstd"},
		Query:    QueryConfig{Needle: "k8s"},
		Harness: HarnessConfig{
			WarmupIterations:  3,
			MeasureIterations: 10,
			FailureThreshold:  0.1,
			StageTimeout:      5 * time.Minute,
		},
		DuckDB: DuckDBConfig{},
	}
}

// Load reads configuration from files and environment variables.
// Environment variables use the prefix "ZNBENCH" and the dot character in
// keys is replaced by an underscore. For example, "fixtures.dir" becomes
// "ZNBENCH_FIXTURES_DIR".
func Load() (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("znbench")
	v.AddConfigPath(".")
	v.SetEnvPrefix("ZNBENCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	_ = v.ReadInConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	// ZNBENCH_FIXTURES is the per-invocation fixture selector.
	if sel := os.Getenv("ZNBENCH_FIXTURES"); sel != "" {
		cfg.Fixtures.Filter = sel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values no run could satisfy. Flag overrides are applied
// after Load, so the harness re-validates its own section before running.
func (c *Config) Validate() error {
	if c.Fixtures.Dir == "" {
		return fmt.Errorf("fixtures.dir must not be empty")
	}
	if c.Ingest.BatchSize <= 0 {
		return fmt.Errorf("ingest.batch_size must be positive, got %d", c.Ingest.BatchSize)
	}
	if c.Ingest.InferRows <= 0 {
		return fmt.Errorf("ingest.infer_rows must be positive, got %d", c.Ingest.InferRows)
	}
	if c.Harness.MeasureIterations <= 0 {
		return fmt.Errorf("harness.measure_iterations must be positive, got %d", c.Harness.MeasureIterations)
	}
	if c.Harness.WarmupIterations < 0 {
		return fmt.Errorf("harness.warmup_iterations must not be negative, got %d", c.Harness.WarmupIterations)
	}
	if c.Harness.FailureThreshold < 0 || c.Harness.FailureThreshold > 1 {
		return fmt.Errorf("harness.failure_threshold must be in [0,1], got %g", c.Harness.FailureThreshold)
	}
	if c.DuckDB.MemoryLimitMB < 0 {
		return fmt.Errorf("duckdb.memory_limit_mb must not be negative, got %d", c.DuckDB.MemoryLimitMB)
	}
	return nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(parts, tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
