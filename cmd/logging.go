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
	"fmt"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"

	"github.com/zinclabs/znbench/internal/idgen"
)

var myInstanceID int64

// setupLogging wires the process-wide slog default: human-readable text on
// stderr, plus a JSON stream when ZNBENCH_LOG_FILE points somewhere. The
// returned closer flushes the file sink.
func setupLogging(servicename string) (func() error, error) {
	myInstanceID = idgen.DefaultFlakeGenerator.NextID()

	var opts *slog.HandlerOptions
	if os.Getenv("DEBUG") != "" || os.Getenv("ZNBENCH_DEBUG") != "" {
		opts = &slog.HandlerOptions{Level: slog.LevelDebug}
	}

	closer := func() error { return nil }
	handler := slog.Handler(slog.NewTextHandler(os.Stderr, opts))

	if path := os.Getenv("ZNBENCH_LOG_FILE"); path != "" {
		fh, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", path, err)
		}
		handler = slogmulti.Fanout(
			handler,
			slog.NewJSONHandler(fh, opts),
		)
		closer = fh.Close
	}

	slog.SetDefault(slog.New(handler).With(
		slog.String("service", servicename),
		slog.Int64("instanceID", myInstanceID),
	))
	return closer, nil
}
