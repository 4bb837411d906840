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

	"github.com/spf13/cobra"

	"github.com/cardinalhq/fsdbgo/internal/filter"
	"github.com/cardinalhq/fsdbgo/internal/join"
	"github.com/cardinalhq/fsdbgo/internal/stream"
)

var (
	joinOuter     bool
	joinTypeFlag  string
	joinEmptyFlag string
	joinPreSorted bool
)

var joinCmd = &cobra.Command{
	Use:   "join -- [-n|-N|-r|-R] COLUMN...",
	Short: "Sort-merge join of two presorted inputs on a shared key",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runJoin,
}

func init() {
	joinCmd.Flags().BoolVarP(&joinOuter, "outer", "a", false, "outer join (shorthand for --type outer)")
	joinCmd.Flags().StringVarP(&joinTypeFlag, "type", "t", "inner", "join type: inner|outer")
	joinCmd.Flags().StringVarP(&joinEmptyFlag, "empty", "e", "", "empty-value token for unmatched columns (default: left input's)")
	joinCmd.Flags().BoolVarP(&joinPreSorted, "presorted", "S", true, "trust the inputs are sorted by the join key (ordering is still verified live)")
}

func runJoin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	key, err := parseKeySpec(args)
	if err != nil {
		return err
	}

	if len(inputPaths) != 2 {
		return fmt.Errorf("join: exactly two inputs expected (left, right), got %d", len(inputPaths))
	}
	sources, err := openInputs(inputPaths)
	if err != nil {
		return err
	}
	defer func() {
		for _, s := range sources {
			s.Close()
		}
	}()
	left, right := sources[0], sources[1]

	typeName := joinTypeFlag
	if joinOuter {
		typeName = "outer"
	}
	kind, err := join.ParseType(typeName)
	if err != nil {
		return err
	}

	if joinEmptyFlag != "" {
		left = &emptyOverrideSource{Source: left, empty: joinEmptyFlag}
	}

	lh, err := left.Header()
	if err != nil {
		return err
	}
	rh, err := right.Header()
	if err != nil {
		return err
	}
	layout, err := join.BuildSchema(lh, rh, key)
	if err != nil {
		return err
	}

	outHeader, err := stream.NewHeader(lh.Code, layout.Columns, lh.EmptyValue)
	if err != nil {
		return err
	}

	wc, err := openOutputWriter(outputPath)
	if err != nil {
		return err
	}
	defer wc.Close()
	out := stream.NewWriter(wc, outHeader)

	joiner := join.NewJoiner(kind, key, cfg.Join.RightRunWarnThreshold)
	if err := joiner.Run(cmd.Context(), left, right, out); err != nil {
		return err
	}
	return out.Close()
}

// emptyOverrideSource substitutes the empty-value token reported by
// Header, letting "-e EMPTY" change it without internal/join needing a
// separate override parameter.
type emptyOverrideSource struct {
	filter.Source
	empty string
}

func (s *emptyOverrideSource) Header() (*stream.Header, error) {
	h, err := s.Source.Header()
	if err != nil {
		return nil, err
	}
	return stream.NewHeader(h.Code, h.Columns, s.empty)
}

var _ filter.Source = (*emptyOverrideSource)(nil)
