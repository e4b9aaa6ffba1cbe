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

package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/zinclabs/znbench/config"
	"github.com/zinclabs/znbench/internal/encoder"
	"github.com/zinclabs/znbench/internal/fixtures"
	"github.com/zinclabs/znbench/internal/harness"
	"github.com/zinclabs/znbench/internal/ingest"
	"github.com/zinclabs/znbench/internal/query"
)

func init() {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the benchmark over a fixture directory",
		RunE: func(c *cobra.Command, _ []string) error {
			servicename := "znbench-run"
			logClose, err := setupLogging(servicename)
			if err != nil {
				return err
			}
			defer func() { _ = logClose() }()

			ctx, cancel := handleSignals(context.Background())
			defer cancel()

			cfg, err := loadRunConfig(c)
			if err != nil {
				return err
			}
			output, _ := c.Flags().GetString("output")
			return runBenchmark(ctx, cfg, output)
		},
	}

	cmd.Flags().String("data-dir", "", "directory holding fixture files")
	cmd.Flags().String("filter", "", "glob applied to fixture file names")
	cmd.Flags().Int("warmups", 0, "warm-up iterations before measuring")
	cmd.Flags().Int("iterations", 0, "measured iterations")
	cmd.Flags().Float64("failure-threshold", 0, "fraction of failed samples tolerated before aborting")
	cmd.Flags().Duration("timeout", 0, "per-stage timeout")
	cmd.Flags().String("backend", "", "parquet encoder backend (goparquet or arrow)")
	cmd.Flags().String("compression", "", "parquet compression (zstd, snappy, none)")
	cmd.Flags().String("needle", "", "substring the full-text queries search for")
	cmd.Flags().String("output", "", "results file (JSON lines); stdout when empty")

	rootCmd.AddCommand(cmd)
}

// loadRunConfig layers explicit flags over the environment-driven config.
func loadRunConfig(c *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	flags := c.Flags()
	if flags.Changed("data-dir") {
		cfg.Fixtures.Dir, _ = flags.GetString("data-dir")
	}
	if flags.Changed("filter") {
		cfg.Fixtures.Filter, _ = flags.GetString("filter")
	}
	if flags.Changed("warmups") {
		cfg.Harness.WarmupIterations, _ = flags.GetInt("warmups")
	}
	if flags.Changed("iterations") {
		cfg.Harness.MeasureIterations, _ = flags.GetInt("iterations")
	}
	if flags.Changed("failure-threshold") {
		cfg.Harness.FailureThreshold, _ = flags.GetFloat64("failure-threshold")
	}
	if flags.Changed("timeout") {
		cfg.Harness.StageTimeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("backend") {
		cfg.Encode.Backend, _ = flags.GetString("backend")
	}
	if flags.Changed("compression") {
		cfg.Encode.Compression, _ = flags.GetString("compression")
	}
	if flags.Changed("needle") {
		cfg.Query.Needle, _ = flags.GetString("needle")
	}
	return cfg, nil
}

// preparedFixture holds everything staged ahead of time for one fixture.
// Stage closures reuse these inputs so the timed path never includes
// one-off preparation work.
type preparedFixture struct {
	fixture     fixtures.Fixture
	data        []byte
	batch       *ingest.RecordBatch
	parquetPath string
	executor    *query.Executor
	info        harness.FixtureInfo
}

// searchHits keeps the in-memory search stage's count observable so the
// scan work cannot be optimized away.
var searchHits atomic.Int64

func runBenchmark(ctx context.Context, cfg *config.Config, output string) error {
	ll := slog.Default()

	loader := fixtures.NewLoader(cfg.Fixtures.Dir, cfg.Fixtures.Filter)
	found, err := loader.Scan()
	if err != nil {
		return err
	}
	ll.Info("fixtures discovered",
		slog.String("dir", cfg.Fixtures.Dir),
		slog.String("filter", cfg.Fixtures.Filter),
		slog.Int("count", len(found)))

	backend, err := encoderBackend(cfg)
	if err != nil {
		return err
	}

	workDir, err := os.MkdirTemp("", "znbench-*")
	if err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	var dbs []*query.DB
	defer func() {
		for _, db := range dbs {
			_ = db.Close()
		}
	}()

	var stages []harness.Stage
	var infos []harness.FixtureInfo
	for _, f := range found {
		prep, db, err := prepareFixture(ctx, cfg, loader, f, backend, workDir)
		if err != nil {
			return err
		}
		dbs = append(dbs, db)
		infos = append(infos, prep.info)
		stages = append(stages, fixtureStages(cfg, prep, backend)...)
	}

	h, err := harness.New(harness.Config{
		WarmupIterations:  cfg.Harness.WarmupIterations,
		MeasureIterations: cfg.Harness.MeasureIterations,
		FailureThreshold:  cfg.Harness.FailureThreshold,
		StageTimeout:      cfg.Harness.StageTimeout,
	}, stages, ll)
	if err != nil {
		return err
	}

	startedAt := time.Now()
	report, runErr := h.Run(ctx)

	// Partial results are flushed on abort and on cancellation alike.
	var abort *harness.AbortError
	aborted := errors.As(runErr, &abort)
	if err := writeResults(output, h, report, infos, startedAt, aborted, cfg); err != nil {
		if runErr != nil {
			return runErr
		}
		return err
	}
	return runErr
}

func encoderBackend(cfg *config.Config) (encoder.Backend, error) {
	comp, err := encoder.ParseCompression(cfg.Encode.Compression)
	if err != nil {
		return nil, err
	}
	return encoder.NewBackend(cfg.Encode.Backend, comp)
}

// prepareFixture loads and parses the fixture once, encodes it to a
// parquet file, and opens a query session over that file.
func prepareFixture(ctx context.Context, cfg *config.Config, loader *fixtures.Loader, f fixtures.Fixture, backend encoder.Backend, workDir string) (*preparedFixture, *query.DB, error) {
	data, err := loader.ReadAll(f)
	if err != nil {
		return nil, nil, err
	}

	// The content fingerprint ties samples to the exact input bytes, so
	// runs over different fixture revisions are never compared as equals.
	fp, err := loader.Fingerprint(f)
	if err != nil {
		return nil, nil, err
	}

	batch, err := parseFixture(ctx, cfg, f, data)
	if err != nil {
		return nil, nil, fmt.Errorf("prepare %s: %w", f.Name, err)
	}

	parquetPath := filepath.Join(workDir, f.Name+".parquet")
	encRes, err := encoder.EncodeToFile(ctx, backend, batch, parquetPath)
	if err != nil {
		return nil, nil, fmt.Errorf("prepare %s: %w", f.Name, err)
	}

	db, err := query.Open(ctx,
		query.WithMemoryLimitMB(cfg.DuckDB.MemoryLimitMB),
		query.WithThreads(cfg.DuckDB.Threads))
	if err != nil {
		return nil, nil, err
	}
	exec, err := query.NewExecutor(ctx, db, parquetPath)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	slog.Info("fixture prepared",
		slog.String("fixture", f.Name),
		slog.String("fingerprint", fmt.Sprintf("%016x", fp)),
		slog.Int("rows", batch.NumRows()),
		slog.Int("columns", batch.NumCols()))

	return &preparedFixture{
		fixture:     f,
		data:        data,
		batch:       batch,
		parquetPath: parquetPath,
		executor:    exec,
		info: harness.FixtureInfo{
			Name:           f.Name,
			Fingerprint:    fmt.Sprintf("%016x", fp),
			Rows:           encRes.Rows,
			EncodedBytes:   encRes.Bytes,
			EncodeDuration: encRes.Duration,
			Backend:        encRes.Backend,
			Compression:    encRes.Compression,
		},
	}, db, nil
}

func parseFixture(ctx context.Context, cfg *config.Config, f fixtures.Fixture, data []byte) (*ingest.RecordBatch, error) {
	r, err := ingest.NewReader(ingest.DetectFormat(f.Path), io.NopCloser(bytes.NewReader(data)), cfg.Ingest.BatchSize)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()
	return ingest.Parse(ctx, r, ingest.Options{
		BatchSize: cfg.Ingest.BatchSize,
		InferRows: cfg.Ingest.InferRows,
	})
}

// fixtureStages builds the timed stages for one prepared fixture: parse
// from bytes, encode to a discarded stream, scan the in-memory batch for
// the needle, then each benchmark query.
func fixtureStages(cfg *config.Config, prep *preparedFixture, backend encoder.Backend) []harness.Stage {
	needle := cfg.Query.Needle
	if needle == "" {
		needle = query.DefaultNeedle
	}
	batchSize := cfg.Ingest.BatchSize

	stages := []harness.Stage{
		{
			Name: "ingest:" + prep.fixture.Name,
			Run: func(ctx context.Context) error {
				_, err := parseFixture(ctx, cfg, prep.fixture, prep.data)
				return err
			},
		},
		{
			Name: "encode:" + prep.fixture.Name,
			Run: func(ctx context.Context) error {
				return backend.Encode(ctx, prep.batch, io.Discard)
			},
		},
		{
			// Substring search straight over the columnar batch, walked in
			// batch-size windows so the configured batch size shapes the scan.
			Name: "search:" + prep.fixture.Name,
			Run: func(ctx context.Context) error {
				var total int64
				for offset := 0; offset < prep.batch.NumRows(); offset += batchSize {
					if err := ctx.Err(); err != nil {
						return err
					}
					total += prep.batch.CountOccurrences(needle, offset, offset+batchSize)
				}
				searchHits.Store(total)
				return nil
			},
		},
	}

	for _, q := range query.DefaultQueries(needle, prep.batch.Schema().TextColumns()) {
		stages = append(stages, harness.Stage{
			Name: "query:" + q.Name + ":" + prep.fixture.Name,
			Run: func(ctx context.Context) error {
				_, err := prep.executor.Run(ctx, q)
				return err
			},
		})
	}
	return stages
}

func writeResults(output string, h *harness.Harness, report *harness.Report, infos []harness.FixtureInfo, startedAt time.Time, aborted bool, cfg *config.Config) error {
	runID := harness.NewRunID()
	var w *harness.ResultsWriter
	if output == "" {
		w = harness.NewResultsWriter(os.Stdout, nil, runID)
	} else {
		var err error
		w, err = harness.OpenResultsFile(output, runID)
		if err != nil {
			return err
		}
	}

	hcfg := harness.Config{
		WarmupIterations:  cfg.Harness.WarmupIterations,
		MeasureIterations: cfg.Harness.MeasureIterations,
		FailureThreshold:  cfg.Harness.FailureThreshold,
		StageTimeout:      cfg.Harness.StageTimeout,
	}
	if err := w.WriteRun(hcfg, startedAt, aborted); err != nil {
		_ = w.Close()
		return err
	}
	for _, info := range infos {
		if err := w.WriteFixture(info); err != nil {
			_ = w.Close()
			return err
		}
	}
	if report != nil {
		if err := w.WriteReport(report); err != nil {
			_ = w.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	slog.Info("results written",
		slog.String("run_id", runID),
		slog.String("output", output),
		slog.String("state", h.State().String()))
	return nil
}
