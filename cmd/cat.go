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
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zinclabs/znbench/internal/encoder"
)

func init() {
	cmd := &cobra.Command{
		Use:   "cat",
		Short: "Print the rows of a Parquet file as JSON lines",
		RunE: func(c *cobra.Command, _ []string) error {
			filename, err := c.Flags().GetString("file")
			if err != nil {
				return fmt.Errorf("failed to get file flag: %w", err)
			}
			limit, _ := c.Flags().GetInt("limit")

			return runParquetCat(filename, limit)
		},
	}

	rootCmd.AddCommand(cmd)

	cmd.Flags().String("file", "", "Parquet file to read")
	cmd.Flags().Int("limit", 0, "stop after this many rows (0 prints all)")
	if err := cmd.MarkFlagRequired("file"); err != nil {
		panic(fmt.Errorf("failed to mark file flag as required: %w", err))
	}
}

func runParquetCat(filename string, limit int) error {
	batch, err := encoder.DecodeFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filename, err)
	}

	enc := json.NewEncoder(os.Stdout)
	n := batch.NumRows()
	if limit > 0 && limit < n {
		n = limit
	}
	for i := 0; i < n; i++ {
		if err := enc.Encode(batch.Row(i)); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}
	return nil
}
