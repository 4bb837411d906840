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

// Package sortrun implements external sort: in-memory run generation with
// a stable comparison, spill to temp files once a run-size threshold is
// reached, and a final multi-way merge of the resulting runs.
package sortrun

import (
	"context"
	"io"
	"sort"

	"github.com/cardinalhq/fsdbgo/internal/filter"
	"github.com/cardinalhq/fsdbgo/internal/keyspec"
	"github.com/cardinalhq/fsdbgo/internal/merge"
	"github.com/cardinalhq/fsdbgo/internal/spill"
	"github.com/cardinalhq/fsdbgo/internal/stream"
	"github.com/cardinalhq/fsdbgo/internal/tempfile"
)

// DefaultRunSizeBytes is used when Sorter.RunSizeBytes is left at zero.
const DefaultRunSizeBytes int64 = 64 << 20

// Sorter buffers an input stream into runs, sorts each run stably, and
// either emits a single run directly or spills runs to temp files and
// drives a merge.Driver over them.
type Sorter struct {
	Spec         keyspec.Spec
	RunSizeBytes int64
	Parallelism  int
	Endgame      bool
	Tmp          *tempfile.Manager
}

// NewSorter constructs a Sorter with the given key spec and temp-file
// manager; zero-valued RunSizeBytes/Parallelism take their documented
// defaults.
func NewSorter(spec keyspec.Spec, tmp *tempfile.Manager) *Sorter {
	return &Sorter{Spec: spec, RunSizeBytes: DefaultRunSizeBytes, Parallelism: 1, Endgame: true, Tmp: tmp}
}

func rowByteLen(r stream.Row) int64 {
	n := int64(0)
	for _, f := range r {
		n += int64(len(f)) + 1
	}
	return n
}

// Sort reads in to completion, forwarding its comments to out immediately,
// and writes a stably key-sorted row sequence to out.
func (s *Sorter) Sort(ctx context.Context, in filter.Source, out filter.Sink) error {
	header, err := in.Header()
	if err != nil {
		return err
	}
	spec, err := s.Spec.Resolve(header)
	if err != nil {
		return err
	}

	threshold := s.RunSizeBytes
	if threshold <= 0 {
		threshold = DefaultRunSizeBytes
	}

	var buf []stream.Row
	var bufBytes int64
	var runs []filter.Source

	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		sort.SliceStable(buf, func(i, j int) bool { return spec.Compare(buf[i], buf[j]) < 0 })

		f, path, err := s.Tmp.Create()
		if err != nil {
			return err
		}
		w := spill.NewWriter(f)
		for _, row := range buf {
			if err := w.WriteRow(row); err != nil {
				_ = w.Close()
				_ = s.Tmp.Release(path)
				return err
			}
		}
		if err := w.Close(); err != nil {
			return err
		}
		rf, err := s.Tmp.Reopen(path)
		if err != nil {
			return err
		}
		runs = append(runs, spill.OpenReader(rf, header))
		buf = nil
		bufBytes = 0
		return nil
	}

	for {
		it, err := in.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if it.Kind == stream.KindComment {
			if err := out.WriteItem(it); err != nil {
				return err
			}
			continue
		}
		buf = append(buf, it.Row)
		bufBytes += rowByteLen(it.Row)
		if bufBytes >= threshold {
			if err := flush(); err != nil {
				return err
			}
		}
	}

	if len(runs) == 0 {
		// Everything fit in memory: sort once and emit directly, no spill.
		sort.SliceStable(buf, func(i, j int) bool { return spec.Compare(buf[i], buf[j]) < 0 })
		for _, row := range buf {
			if err := out.WriteItem(stream.Item{Kind: stream.KindRow, Row: row}); err != nil {
				return err
			}
		}
		return nil
	}

	if len(buf) > 0 {
		if err := flush(); err != nil {
			return err
		}
	}
	if len(runs) == 1 {
		return mergeSingleRun(runs[0], out)
	}

	driver := merge.NewDriver(spec, s.Parallelism, s.Endgame, s.Tmp)
	return driver.Run(ctx, runs, out)
}

func mergeSingleRun(run filter.Source, out filter.Sink) error {
	for {
		it, err := run.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := out.WriteItem(it); err != nil {
			return err
		}
	}
}
