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
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/cardinalhq/fsdbgo/internal/merge"
	"github.com/cardinalhq/fsdbgo/internal/stream"
	"github.com/cardinalhq/fsdbgo/internal/tempfile"
)

var (
	mergeXargs        bool
	mergeRemoveInputs bool
	mergeTmpDir       string
	mergeParallelism  int
	mergeEndgame      bool
)

var mergeCmd = &cobra.Command{
	Use:   "merge -- [-n|-N|-r|-R] COLUMN...",
	Short: "Bounded-parallel N-way merge of presorted inputs",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runMerge,
}

func init() {
	mergeCmd.Flags().BoolVar(&mergeXargs, "xargs", false, "read input filenames, one per line, from stdin instead of --input")
	mergeCmd.Flags().BoolVar(&mergeRemoveInputs, "removeinputs", false, "remove each input file once the merge succeeds")
	mergeCmd.Flags().StringVarP(&mergeTmpDir, "tmp-dir", "T", "", "temp directory for intermediate merge rounds (default: $TMPDIR)")
	mergeCmd.Flags().IntVar(&mergeParallelism, "parallelism", 0, "bound on concurrent 2-way merges (default: config)")
	mergeCmd.Flags().BoolVar(&mergeEndgame, "endgame", true, "pipeline the final rounds as in-memory pipes instead of spilling them")
	mergeCmd.Flags().Bool("noendgame", false, "alias for --endgame=false")
}

func runMerge(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	key, err := parseKeySpec(args)
	if err != nil {
		return err
	}

	paths := inputPaths
	if mergeXargs {
		paths, err = readXargsPaths(os.Stdin)
		if err != nil {
			return err
		}
	}
	if len(paths) < 2 {
		return merge.ErrTooFewInputs
	}

	sources, err := openInputs(paths)
	if err != nil {
		return err
	}
	defer func() {
		for _, s := range sources {
			s.Close()
		}
	}()

	header, err := sources[0].Header()
	if err != nil {
		return err
	}
	spec, err := key.Resolve(header)
	if err != nil {
		return err
	}

	wc, err := openOutputWriter(outputPath)
	if err != nil {
		return err
	}
	defer wc.Close()
	out := stream.NewWriter(wc, header.Clone())

	tmpDir := mergeTmpDir
	if tmpDir == "" {
		tmpDir = cfg.Tmp.Dir
	}
	tmp, err := tempfile.New(afero.NewOsFs(), resolveTmpDir(tmpDir), "fsdbgo-merge")
	if err != nil {
		return err
	}
	defer tmp.Close()

	endgame := cfg.Merge.Endgame
	if cmd.Flags().Changed("endgame") {
		endgame = mergeEndgame
	}
	if noendgame, _ := cmd.Flags().GetBool("noendgame"); noendgame {
		endgame = false
	}
	parallelism := mergeParallelism
	if parallelism <= 0 {
		parallelism = cfg.Merge.Parallelism
	}

	driver := merge.NewDriver(spec, parallelism, endgame, tmp)
	if err := driver.Run(cmd.Context(), sources, out); err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	if mergeRemoveInputs {
		for _, p := range paths {
			if p == "-" {
				continue
			}
			if err := os.Remove(p); err != nil {
				return fmt.Errorf("merge: removing input %q: %w", p, err)
			}
		}
	}
	return nil
}

func readXargsPaths(r *os.File) ([]string, error) {
	sc := bufio.NewScanner(r)
	var paths []string
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		paths = append(paths, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(paths) < 2 {
		return nil, fmt.Errorf("merge: --xargs requires at least two filenames, got %d", len(paths))
	}
	return paths, nil
}
