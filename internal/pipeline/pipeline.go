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

// Package pipeline wires an ordered list of filters into a single running
// pipeline: one bounded pipe per adjacent pair, one worker per filter, and
// downstream-first error collection on completion.
package pipeline

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/fsdbgo/internal/filter"
)

// StageFactory builds a stage's filter once its input and output endpoints
// are known. It is a closure over whatever configuration the stage needs
// (column specs, reducer code, join type); the builder supplies only the
// wiring.
type StageFactory func(in filter.Source, out filter.Sink) filter.Filter

// Stage is one pipeline position: a named factory plus the capacity of the
// pipe that will feed its output to the next stage (ignored for the last
// stage added, whose output is the pipeline's external Sink).
type Stage struct {
	Name         string
	Factory      StageFactory
	PipeCapacity int
}

// Builder accumulates stages in source-to-sink order and wires them into a
// running pipeline on Run.
type Builder struct {
	stages          []Stage
	defaultCapacity int
}

// NewBuilder creates a Builder; defaultCapacity backs any Stage with a
// non-positive PipeCapacity.
func NewBuilder(defaultCapacity int) *Builder {
	if defaultCapacity <= 0 {
		defaultCapacity = 1
	}
	return &Builder{defaultCapacity: defaultCapacity}
}

// Add appends a stage, returning the Builder for chaining.
func (b *Builder) Add(stage Stage) *Builder {
	b.stages = append(b.stages, stage)
	return b
}

// Run wires every adjacent pair of stages with a bounded pipe (stage i's
// output feeds stage i+1's input), binds the first stage's input to in and
// the last stage's output to out, then runs every stage's lifecycle on its
// own worker. Workers are joined downstream-first so a downstream failure
// is observed before the upstream terminations it causes; every worker's
// error, if any, is collected into the returned multierror rather than
// only the first one seen.
func (b *Builder) Run(ctx context.Context, in filter.Source, out filter.Sink) error {
	n := len(b.stages)
	if n == 0 {
		return nil
	}

	sources := make([]filter.Source, n)
	sinks := make([]filter.Sink, n)
	sources[0] = in
	sinks[n-1] = out

	for i := 0; i < n-1; i++ {
		capacity := b.stages[i].PipeCapacity
		if capacity <= 0 {
			capacity = b.defaultCapacity
		}
		pw, pr := filter.NewPipe(capacity)
		sinks[i] = pw
		sources[i+1] = pr
	}

	// errgroup.WithContext cancels gctx the moment any stage's Go func
	// returns an error, so a stage that checks ctx.Done() at a suspension
	// point unblocks promptly instead of waiting on a peer that already
	// failed; the done channels below exist purely to join and collect
	// results downstream-first, independent of errgroup's own ordering.
	g, gctx := errgroup.WithContext(ctx)

	done := make([]chan error, n)
	for i := range done {
		done[i] = make(chan error, 1)
	}

	for i := 0; i < n; i++ {
		i := i
		f := b.stages[i].Factory(sources[i], sinks[i])
		g.Go(func() error {
			err := runLifecycle(gctx, f)
			if err != nil {
				// Propagate failure structurally: close this stage's own
				// endpoints so its neighbors observe end-of-stream or a
				// broken pipe instead of blocking forever.
				if i > 0 {
					sources[i].Close()
				}
				if i < n-1 {
					sinks[i].Close()
				}
			}
			done[i] <- err
			return err
		})
	}

	var result *multierror.Error
	for i := n - 1; i >= 0; i-- {
		if err := <-done[i]; err != nil {
			result = multierror.Append(result, err)
		}
	}
	g.Wait() // already observed per-stage above; only reaps the goroutines

	if result != nil {
		return result
	}
	return nil
}

func runLifecycle(ctx context.Context, f filter.Filter) error {
	if err := f.Configure(ctx, nil); err != nil {
		return err
	}
	if err := f.Setup(ctx); err != nil {
		return err
	}
	if err := f.Run(ctx); err != nil {
		return err
	}
	return f.Finish(ctx)
}
