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

// Package groupby segments a stream sorted by a key column and runs a
// reducer filter over each segment, reassembling the reducers' outputs
// into a single stream.
package groupby

import (
	"context"
	"fmt"
	"io"

	"github.com/cardinalhq/fsdbgo/internal/filter"
	"github.com/cardinalhq/fsdbgo/internal/keyspec"
	"github.com/cardinalhq/fsdbgo/internal/stream"
)

// Mode selects how a reducer relates to its group.
type Mode int

const (
	// GroupIgnorant gives the reducer exactly one group's rows through a
	// fresh pipe per group; the driver detects key transitions itself.
	GroupIgnorant Mode = iota
	// GroupAware hands the reducer the entire input stream and trusts it
	// to observe key transitions on its own.
	GroupAware
)

// ReducerFactory builds a fresh, unconfigured-but-wired reducer filter for
// one group (or, in GroupAware mode, for the whole stream), reading from in
// and writing to out; key is the group's projected key row, or nil in
// GroupAware mode and for the empty-input special case, where no single
// key applies. It is pure configuration: the same factory, given
// equivalent arguments, always produces an equivalent filter — never a
// dynamic evaluation of user-supplied code. key exists so an external-
// process reducer can be invoked with the key it is reducing (the "-K"
// CLI flag); an in-process reducer is free to ignore it.
type ReducerFactory func(key stream.Row, in filter.Source, out filter.Sink) filter.Filter

// SchemaError reports that two reducer invocations produced different
// output schemas, or that a reducer's schema could not be determined.
type SchemaError struct {
	Detail string
}

func (e *SchemaError) Error() string { return "groupby: " + e.Detail }

// BrokenGroupError reports that an input declared pre-sorted was not
// actually contiguous by its key column.
type BrokenGroupError struct {
	Key stream.Row
}

func (e *BrokenGroupError) Error() string {
	return fmt.Sprintf("groupby: key %v reappeared after a different key was seen; input is not contiguously grouped", []string(e.Key))
}

// Sorter presorts an input stream by a key spec before group detection;
// satisfied by *sortrun.Sorter. Kept as an interface here so this package
// does not import sortrun directly, avoiding a dependency cycle risk and
// letting callers inject a stub in tests.
type Sorter interface {
	Sort(ctx context.Context, in filter.Source, out filter.Sink) error
}

// Driver runs one group-by pass over a sorted (or sortable) stream.
type Driver struct {
	Key          keyspec.Spec
	Mode         Mode
	PreSorted    bool
	Factory      ReducerFactory
	PipeCapacity int
	Sort         Sorter // required when PreSorted is false
}

// Run reads in to completion and writes the reassembled, reduced stream to
// out. out's header is not written here; GroupAware reducers and the
// GroupIgnorant key-reinjection path each commit their own output schema.
func (d *Driver) Run(ctx context.Context, in filter.Source, out filter.Sink) error {
	if d.Mode == GroupAware {
		return runLifecycle(ctx, d.Factory(nil, in, out))
	}

	header, err := in.Header()
	if err != nil {
		return err
	}
	spec, err := d.Key.Resolve(header)
	if err != nil {
		return err
	}

	source := in
	if !d.PreSorted {
		pw, pr := filter.NewPipe(d.PipeCapacity)
		pw.SetHeader(header)
		sortErrCh := make(chan error, 1)
		go func() {
			defer pw.Close()
			sortErrCh <- d.Sort.Sort(ctx, in, pw)
		}()
		source = &sortGuardedSource{PipeReader: pr, errCh: sortErrCh}
	}

	g := &grouper{spec: spec, header: header, preSorted: d.PreSorted, factory: d.Factory, capacity: d.PipeCapacity}
	return g.run(ctx, source, out)
}

// sortGuardedSource wraps the pipe reader feeding from an internal sort
// goroutine so the sort's own error surfaces once the pipe reports EOF
// instead of being silently dropped.
type sortGuardedSource struct {
	*filter.PipeReader
	errCh chan error
}

func (s *sortGuardedSource) Next() (stream.Item, error) {
	it, err := s.PipeReader.Next()
	if err == io.EOF {
		if sortErr := <-s.errCh; sortErr != nil {
			return stream.Item{}, sortErr
		}
	}
	return it, err
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
