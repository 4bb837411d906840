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

package cmd

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/cardinalhq/fsdbgo/internal/sortrun"
	"github.com/cardinalhq/fsdbgo/internal/stream"
	"github.com/cardinalhq/fsdbgo/internal/tempfile"
)

var (
	sortRunSizeBytes int64
	sortTmpDir       string
)

var sortCmd = &cobra.Command{
	Use:   "sort -- [-n|-N|-r|-R] COLUMN...",
	Short: "External sort by one or more key columns",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSort,
}

func init() {
	sortCmd.Flags().Int64Var(&sortRunSizeBytes, "run-size-bytes", sortrun.DefaultRunSizeBytes, "in-memory run size before spilling to a temp file")
	sortCmd.Flags().StringVarP(&sortTmpDir, "tmp-dir", "T", "", "temp directory for spilled runs (default: $TMPDIR)")
}

func runSort(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	key, err := parseKeySpec(args)
	if err != nil {
		return err
	}

	if len(inputPaths) > 1 {
		return fmt.Errorf("sort: exactly one input expected, got %d", len(inputPaths))
	}
	sources, err := openInputs(inputPaths)
	if err != nil {
		return err
	}
	in := sources[0]
	defer in.Close()

	header, err := in.Header()
	if err != nil {
		return err
	}

	wc, err := openOutputWriter(outputPath)
	if err != nil {
		return err
	}
	defer wc.Close()
	out := stream.NewWriter(wc, header.Clone())

	tmpDir := sortTmpDir
	if tmpDir == "" {
		tmpDir = cfg.Tmp.Dir
	}
	tmp, err := tempfile.New(afero.NewOsFs(), resolveTmpDir(tmpDir), "fsdbgo-sort")
	if err != nil {
		return err
	}
	defer tmp.Close()

	sorter := sortrun.NewSorter(key, tmp)
	if cfg.Sort.RunSizeBytes > 0 {
		sorter.RunSizeBytes = cfg.Sort.RunSizeBytes
	}
	if cmd.Flags().Changed("run-size-bytes") && sortRunSizeBytes > 0 {
		sorter.RunSizeBytes = sortRunSizeBytes
	}
	sorter.Parallelism = cfg.Merge.Parallelism
	sorter.Endgame = cfg.Merge.Endgame

	if err := sorter.Sort(cmd.Context(), in, out); err != nil {
		return err
	}
	return out.Close()
}
