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

// Package encoder serializes record batches to compressed Parquet and reads
// them back. Two backends cover the comparison axis: parquet-go's generic
// writer and Arrow record batches streamed through pqarrow.
package encoder

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/zinclabs/znbench/internal/ingest"
)

// Compression selects the parquet page compression codec.
type Compression int

const (
	CompressionZstd Compression = iota
	CompressionSnappy
	CompressionNone
)

func (c Compression) String() string {
	switch c {
	case CompressionSnappy:
		return "snappy"
	case CompressionNone:
		return "none"
	default:
		return "zstd"
	}
}

// ParseCompression maps a config string to a Compression.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "zstd":
		return CompressionZstd, nil
	case "snappy":
		return CompressionSnappy, nil
	case "none", "uncompressed":
		return CompressionNone, nil
	default:
		return CompressionZstd, fmt.Errorf("unknown compression %q", s)
	}
}

// EncodeError reports a schema or type problem while encoding. I/O failures
// are not EncodeErrors; they come back as wrapped os errors.
type EncodeError struct {
	Backend string
	Err     error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode (%s backend): %v", e.Backend, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// Result describes one encode operation. Compression and backend ride along
// so downstream reporting never compares apples to oranges.
type Result struct {
	Backend     string        `json:"backend"`
	Compression string        `json:"compression"`
	Rows        int64         `json:"rows"`
	Bytes       int64         `json:"bytes"`
	Duration    time.Duration `json:"duration_ns"`
}

// Backend encodes record batches into a parquet byte stream.
type Backend interface {
	Name() string
	Encode(ctx context.Context, batch *ingest.RecordBatch, w io.Writer) error
}

// NewBackend constructs the named backend. Valid names are "goparquet"
// and "arrow"; empty selects goparquet.
func NewBackend(name string, compression Compression) (Backend, error) {
	switch name {
	case "", "goparquet":
		return &GoParquetBackend{compression: compression}, nil
	case "arrow":
		return &ArrowBackend{compression: compression}, nil
	default:
		return nil, fmt.Errorf("unknown encoder backend %q", name)
	}
}

// Encode runs the backend against the batch and measures duration and
// output size on a monotonic clock.
func Encode(ctx context.Context, b Backend, batch *ingest.RecordBatch, w io.Writer) (Result, error) {
	cw := &countingWriter{w: w}

	start := time.Now()
	err := b.Encode(ctx, batch, cw)
	elapsed := time.Since(start)

	res := Result{
		Backend:     b.Name(),
		Compression: backendCompression(b).String(),
		Rows:        int64(batch.NumRows()),
		Bytes:       cw.n,
		Duration:    elapsed,
	}
	if err != nil {
		return res, err
	}
	return res, nil
}

// EncodeToFile encodes the batch into a new file at path.
func EncodeToFile(ctx context.Context, b Backend, batch *ingest.RecordBatch, path string) (Result, error) {
	fh, err := os.Create(path)
	if err != nil {
		return Result{}, fmt.Errorf("create parquet output %s: %w", path, err)
	}

	res, encErr := Encode(ctx, b, batch, fh)
	closeErr := fh.Close()
	if encErr != nil {
		_ = os.Remove(path)
		return res, encErr
	}
	if closeErr != nil {
		_ = os.Remove(path)
		return res, fmt.Errorf("close parquet output %s: %w", path, closeErr)
	}
	return res, nil
}

func backendCompression(b Backend) Compression {
	switch v := b.(type) {
	case *GoParquetBackend:
		return v.compression
	case *ArrowBackend:
		return v.compression
	default:
		return CompressionZstd
	}
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
