// Copyright (C) 2025 CardinalHQ, Inc
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

// Package cmd is the CLI surface over the engine's streaming components:
// sort, merge, join, and group-by as individual commands composable in a
// shell pipeline, the way the stream format itself is designed to be used.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/fsdbgo/config"
)

var (
	inputPaths []string
	outputPath string
	verbosity  int
)

var rootCmd = &cobra.Command{
	Use:   "fsdbgo",
	Short: "Composable filters over self-describing flat-text tabular streams",
	Long:  `Sort, merge, join, and group rows of a self-describing flat-text stream, each stage readable as its own command in a pipeline.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		configureLogging(verbosity)
	},
}

func init() {
	rootCmd.PersistentFlags().StringArrayVar(&inputPaths, "input", nil, `input file, or "-" for stdin (repeatable)`)
	rootCmd.PersistentFlags().StringVar(&outputPath, "output", "-", `output file, or "-" for stdout`)
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "d", "increase log verbosity (repeatable)")

	rootCmd.AddCommand(sortCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(joinCmd)
	rootCmd.AddCommand(groupByCmd)
}

func configureLogging(verbosity int) {
	level := slog.LevelWarn
	switch {
	case verbosity >= 2:
		level = slog.LevelDebug
	case verbosity == 1:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// Execute runs the root command; main calls this once.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig surfaces config.Load's error through cobra's own non-zero
// exit path rather than panicking on a malformed config file.
func loadConfig() (*config.Config, error) {
	return config.Load()
}
