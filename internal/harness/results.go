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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewRunID returns a lexically sortable run identifier.
func NewRunID() string {
	return ulid.Make().String()
}

// runRecord is the header line of a results file.
type runRecord struct {
	Type      string    `json:"type"`
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	Warmups   int       `json:"warmup_iterations"`
	Measures  int       `json:"measure_iterations"`
	Threshold float64   `json:"failure_threshold"`
	Aborted   bool      `json:"aborted,omitempty"`
}

// FixtureInfo describes one prepared input: identity, size, and the
// one-time encode outcome. Bytes plus the per-sample durations let
// downstream reporting derive throughput.
type FixtureInfo struct {
	Name           string        `json:"fixture"`
	Fingerprint    string        `json:"fingerprint"`
	Rows           int64         `json:"rows"`
	EncodedBytes   int64         `json:"encoded_bytes"`
	EncodeDuration time.Duration `json:"encode_duration_ns"`
	Backend        string        `json:"backend"`
	Compression    string        `json:"compression"`
}

type fixtureRecord struct {
	Type  string `json:"type"`
	RunID string `json:"run_id"`
	FixtureInfo
}

type sampleRecord struct {
	Type  string `json:"type"`
	RunID string `json:"run_id"`
	Sample
}

type summaryRecord struct {
	Type  string `json:"type"`
	RunID string `json:"run_id"`
	Summary
}

// ResultsWriter streams run results as JSON lines: one run header, then
// every measured sample, then one summary per stage. Lines are flushed on
// Close so a crash mid-run loses at most the buffered tail.
type ResultsWriter struct {
	runID string
	bw    *bufio.Writer
	c     io.Closer
}

// NewResultsWriter wraps an output stream. The closer may be nil when the
// caller owns the stream, e.g. stdout.
func NewResultsWriter(w io.Writer, c io.Closer, runID string) *ResultsWriter {
	return &ResultsWriter{runID: runID, bw: bufio.NewWriter(w), c: c}
}

// OpenResultsFile creates the results file at path.
func OpenResultsFile(path, runID string) (*ResultsWriter, error) {
	fh, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create results file %s: %w", path, err)
	}
	return NewResultsWriter(fh, fh, runID), nil
}

// RunID returns the identifier stamped on every line.
func (w *ResultsWriter) RunID() string {
	return w.runID
}

// WriteRun writes the run header line.
func (w *ResultsWriter) WriteRun(cfg Config, startedAt time.Time, aborted bool) error {
	return w.writeLine(runRecord{
		Type:      "run",
		RunID:     w.runID,
		StartedAt: startedAt.UTC(),
		Warmups:   cfg.WarmupIterations,
		Measures:  cfg.MeasureIterations,
		Threshold: cfg.FailureThreshold,
		Aborted:   aborted,
	})
}

// WriteFixture writes one fixture description line.
func (w *ResultsWriter) WriteFixture(info FixtureInfo) error {
	return w.writeLine(fixtureRecord{Type: "fixture", RunID: w.runID, FixtureInfo: info})
}

// WriteReport writes all samples and summaries of a completed run.
func (w *ResultsWriter) WriteReport(report *Report) error {
	for _, s := range report.Samples {
		if err := w.writeLine(sampleRecord{Type: "sample", RunID: w.runID, Sample: s}); err != nil {
			return err
		}
	}
	for _, s := range report.Summaries {
		if err := w.writeLine(summaryRecord{Type: "summary", RunID: w.runID, Summary: s}); err != nil {
			return err
		}
	}
	return nil
}

func (w *ResultsWriter) writeLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal result line: %w", err)
	}
	if _, err := w.bw.Write(data); err != nil {
		return fmt.Errorf("write result line: %w", err)
	}
	if err := w.bw.WriteByte('\n'); err != nil {
		return fmt.Errorf("write result line: %w", err)
	}
	return nil
}

// Close flushes buffered lines and closes the underlying stream.
func (w *ResultsWriter) Close() error {
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("flush results: %w", err)
	}
	if w.c != nil {
		return w.c.Close()
	}
	return nil
}
