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

package merge

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/fsdbgo/internal/filter"
	"github.com/cardinalhq/fsdbgo/internal/keyspec"
	"github.com/cardinalhq/fsdbgo/internal/spill"
	"github.com/cardinalhq/fsdbgo/internal/stream"
	"github.com/cardinalhq/fsdbgo/internal/tempfile"
)

// ErrTooFewInputs is returned by Run when fewer than two inputs are given;
// a single input has nothing to merge against.
var ErrTooFewInputs = errors.New("merge: need at least two inputs")

// SchemaError reports that two merge inputs do not share a schema.
type SchemaError struct {
	Detail string
}

func (e *SchemaError) Error() string { return "merge: " + e.Detail }

// Driver runs the bounded-parallel N-way merge: rounds of 2-way merges
// organized into a balanced binary tree, one round per depth, until a
// single sorted source remains. Each depth's work is a known, finite
// slice rather than an incrementally arriving stream, so the generalized
// closure-signal machinery collapses to "this round is done, start the
// next" — except in the final, endgame portion of the tree, which is
// built and drained as one concurrent pipeline rather than round by
// round (see buildEndgameTree).
type Driver struct {
	Spec        keyspec.Spec
	Parallelism int
	Endgame     bool
	Tmp         *tempfile.Manager
}

// NewDriver constructs a driver. A non-positive parallelism defaults to 1
// (fully sequential, the documented fallback mode for the parallel driver).
func NewDriver(spec keyspec.Spec, parallelism int, endgame bool, tmp *tempfile.Manager) *Driver {
	if parallelism <= 0 {
		parallelism = 1
	}
	return &Driver{Spec: spec, Parallelism: parallelism, Endgame: endgame, Tmp: tmp}
}

// Run merges inputs, which must all share inputs[0]'s header, into out.
// The header is not written by Run; callers commit out's schema beforehand
// (e.g. via a Sink already bound to the merged header).
func (d *Driver) Run(ctx context.Context, inputs []filter.Source, out filter.Sink) error {
	if len(inputs) < 2 {
		return ErrTooFewInputs
	}

	header, err := inputs[0].Header()
	if err != nil {
		return err
	}
	for i, in := range inputs[1:] {
		h, err := in.Header()
		if err != nil {
			return err
		}
		if !h.CompatibleWith(header) {
			return &SchemaError{Detail: fmt.Sprintf("input %d is not schema-compatible with input 0", i+1)}
		}
	}

	current := inputs
	for len(current) > 2 {
		if d.Endgame && fitsUnderBudget(len(current), d.Parallelism) {
			final1, final2, eg := d.buildEndgameTree(current, header)

			var finalErr error
			if final2 == nil {
				finalErr = copyAll(final1, out)
			} else {
				finalErr = TwoWay(final1, final2, d.Spec, out)
			}

			if finalErr != nil {
				// Drain stopped early; close the final source(s) so any
				// sibling merge still blocked on an uncancellable Enqueue
				// into one of the tree's pipes unblocks with a broken-pipe
				// error instead of leaking.
				final1.Close()
				if final2 != nil {
					final2.Close()
				}
			}

			if waitErr := eg.Wait(); waitErr != nil && finalErr == nil {
				finalErr = waitErr
			}
			return finalErr
		}

		next, err := d.mergeRoundToFiles(ctx, current, header, out)
		if err != nil {
			return err
		}
		current = next
	}

	if len(current) == 1 {
		return copyAll(current[0], out)
	}
	return TwoWay(current[0], current[1], d.Spec, out)
}

// fitsUnderBudget reports whether a depth of n ready items can be reduced
// to one output by a merge tree whose every level runs fully concurrently
// within parallelism — i.e. the whole remaining tree, not just this
// round's pairs.
func fitsUnderBudget(n, parallelism int) bool {
	total := 0
	for n > 1 {
		pairs := n / 2
		total += pairs
		n = pairs + n%2
	}
	return total <= parallelism
}

// buildEndgameTree wires the rest of the merge tree as in-memory pipes,
// launching one goroutine per node immediately (no round-by-round
// barrier), and returns the final one or two sources a caller drains
// inline. Because every node's goroutine starts before anything is read,
// back-pressure resolves naturally as data flows root-to-leaves, exactly
// as the endgame's streaming-pipeline semantics require.
func (d *Driver) buildEndgameTree(sources []filter.Source, header *stream.Header) (filter.Source, filter.Source, *errgroup.Group) {
	g := &errgroup.Group{}
	cur := sources
	for len(cur) > 2 {
		pairs := len(cur) / 2
		next := make([]filter.Source, pairs, pairs+1)
		if len(cur)%2 == 1 {
			next = append(next, cur[len(cur)-1])
		}
		for i := 0; i < pairs; i++ {
			left, right := cur[2*i], cur[2*i+1]
			pw, pr := filter.NewPipe(0)
			pw.SetHeader(header)
			next[i] = pr
			g.Go(func() error {
				defer pw.Close()
				return TwoWay(left, right, d.Spec, pw)
			})
		}
		cur = next
	}
	if len(cur) == 1 {
		return cur[0], nil, g
	}
	return cur[0], cur[1], g
}

// mergeRoundToFiles pairs up current's sources, merges each pair under the
// parallelism bound into a spill file, and promotes a leftover runt
// unchanged. Used for every round before the remaining tree fits under
// the endgame budget. commentOut receives every comment seen mid-tree,
// since an intermediate spill file cannot carry them: comments must still
// reach the system output even though they are not part of any depth's
// sorted row stream.
func (d *Driver) mergeRoundToFiles(ctx context.Context, current []filter.Source, header *stream.Header, commentOut filter.Sink) ([]filter.Source, error) {
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(d.Parallelism)

	pairs := len(current) / 2
	next := make([]filter.Source, pairs, pairs+1)
	if len(current)%2 == 1 {
		next = append(next, current[len(current)-1])
	}

	for i := 0; i < pairs; i++ {
		i := i
		left, right := current[2*i], current[2*i+1]

		g.Go(func() error {
			f, path, err := d.Tmp.Create()
			if err != nil {
				return err
			}
			sink := &spillSink{w: spill.NewWriter(f), comments: commentOut}
			if err := TwoWay(left, right, d.Spec, sink); err != nil {
				_ = sink.Close()
				_ = d.Tmp.Release(path)
				return err
			}
			if err := sink.Close(); err != nil {
				return err
			}
			rf, err := d.Tmp.Reopen(path)
			if err != nil {
				return err
			}
			next[i] = spill.OpenReader(rf, header)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return next, nil
}

// copyAll drains src into out verbatim, used when an odd leftover runt
// promotes all the way to being the sole remaining source.
func copyAll(src filter.Source, out filter.Sink) error {
	for {
		it, err := src.Next()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if err := out.WriteItem(it); err != nil {
			return err
		}
	}
}

// spillSink adapts a spill.Writer to filter.Sink for use as a 2-way
// merge's output during a file-backed round. A mid-tree spill file cannot
// carry comments, so they are redirected to comments (the driver's
// top-level output) instead of being dropped.
type spillSink struct {
	w        *spill.Writer
	comments filter.Sink
}

func (s *spillSink) Header() *stream.Header { return nil }
func (s *spillSink) WriteItem(it stream.Item) error {
	if it.Kind != stream.KindRow {
		if s.comments != nil {
			return s.comments.WriteItem(it)
		}
		return nil
	}
	return s.w.WriteRow(it.Row)
}
func (s *spillSink) Close() error { return s.w.Close() }
