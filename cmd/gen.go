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
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/zinclabs/znbench/internal/synthgen"
)

func init() {
	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate synthetic log fixtures",
		RunE: func(c *cobra.Command, _ []string) error {
			logClose, err := setupLogging("znbench-gen")
			if err != nil {
				return err
			}
			defer func() { _ = logClose() }()

			outDir, _ := c.Flags().GetString("out-dir")
			rows, _ := c.Flags().GetInt("rows")
			count, _ := c.Flags().GetInt("count")
			seed, _ := c.Flags().GetInt64("seed")

			return runGen(outDir, rows, count, seed)
		},
	}

	cmd.Flags().String("out-dir", ".", "directory fixtures are written into")
	cmd.Flags().Int("rows", 10000, "rows per fixture")
	cmd.Flags().Int("count", 1, "number of fixture files")
	cmd.Flags().Int64("seed", 42, "generator seed")

	rootCmd.AddCommand(cmd)
}

func runGen(outDir string, rows, count int, seed int64) error {
	if rows <= 0 || count <= 0 {
		return fmt.Errorf("rows and count must be positive")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir %s: %w", outDir, err)
	}

	start := time.Now().Add(-24 * time.Hour).Truncate(time.Second).UnixMilli()
	for i := 0; i < count; i++ {
		// Offset the seed per file so fixtures differ but stay reproducible.
		g := synthgen.New(seed + int64(i))
		path := filepath.Join(outDir, fmt.Sprintf("synthetic-%04d.json", i))
		if err := g.WriteFile(path, rows, start); err != nil {
			return err
		}
		slog.Info("fixture written",
			slog.String("path", path),
			slog.Int("rows", rows),
			slog.Int64("seed", seed+int64(i)))
	}
	return nil
}
