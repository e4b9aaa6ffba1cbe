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
	"errors"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/zinclabs/znbench/internal/fixtures"
	"github.com/zinclabs/znbench/internal/harness"
)

// Exit codes. I/O problems and benchmark aborts get distinct ranges so
// wrapper scripts can tell them apart.
const (
	exitOK      = 0
	exitGeneric = 1
	exitIO      = 10
	exitAbort   = 20
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "znbench",
	Short: "Columnar log pipeline benchmark",
	Long:  `Benchmark the log ingestion path end to end: fixture parsing, columnar batch building, parquet encoding, and SQL query execution.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	if err == nil {
		return exitOK
	}
	var abort *harness.AbortError
	if errors.As(err, &abort) {
		return exitAbort
	}
	var pathErr *fs.PathError
	if errors.Is(err, fixtures.ErrNoFixtures) || errors.As(err, &pathErr) {
		return exitIO
	}
	return exitGeneric
}
