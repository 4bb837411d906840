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

package groupby

import (
	"context"
	"io"
	"strings"

	"github.com/cardinalhq/fsdbgo/internal/filter"
	"github.com/cardinalhq/fsdbgo/internal/keyspec"
	"github.com/cardinalhq/fsdbgo/internal/stream"
)

// grouper is the GroupIgnorant-mode worker: it reads in, detects key
// transitions, runs one reducer instance per group concurrently with
// feeding it that group's rows, and reassembles the reducers' outputs
// (with key re-injection, if needed) into out.
type grouper struct {
	spec      keyspec.Spec
	header    *stream.Header
	preSorted bool
	factory   ReducerFactory
	capacity  int

	firstHeader   *stream.Header
	finalHeader   *stream.Header
	needKeyInject bool
	keyCols       []string
}

func (g *grouper) run(ctx context.Context, in filter.Source, out filter.Sink) error {
	var (
		pw          *filter.PipeWriter
		pr          *filter.PipeReader
		capture     *captureSink
		reducerDone chan error
		curKey      stream.Row
		haveGroup   bool
		closedKeys  = map[string]struct{}{}
	)

	startGroup := func(key stream.Row) {
		pw, pr = filter.NewPipe(g.capacity)
		pw.SetHeader(g.header)
		capture = &captureSink{}
		reducerDone = make(chan error, 1)
		rf := g.factory(key, pr, capture)
		go func() { reducerDone <- runLifecycle(ctx, rf) }()
		curKey = key
		haveGroup = true
	}

	finishGroup := func() error {
		pw.Close()
		if err := <-reducerDone; err != nil {
			return err
		}
		return g.emit(curKey, capture, out)
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

		key := g.spec.Project(it.Row)
		switch {
		case !haveGroup:
			startGroup(key)
		case !rowsEqual(curKey, key):
			if g.preSorted {
				if _, seen := closedKeys[keyString(key)]; seen {
					pw.Close()
					<-reducerDone
					return &BrokenGroupError{Key: key}
				}
			}
			closedKeys[keyString(curKey)] = struct{}{}
			if err := finishGroup(); err != nil {
				return err
			}
			startGroup(key)
		}

		if err := pw.WriteItemContext(ctx, it); err != nil {
			return err
		}
	}

	if haveGroup {
		closedKeys[keyString(curKey)] = struct{}{}
		return finishGroup()
	}

	// Empty input: invoke the reducer once with a null key and zero rows
	// so it can still declare a header. Only that schema and any comments
	// the reducer writes are kept; its rows are dropped, since there is no
	// group key to attach to them.
	pw, pr = filter.NewPipe(g.capacity)
	pw.SetHeader(g.header)
	pw.Close()
	capture = &captureSink{}
	if err := runLifecycle(ctx, g.factory(nil, pr, capture)); err != nil {
		return err
	}
	if err := g.commitSchema(capture, out); err != nil {
		return err
	}
	for _, it := range capture.items {
		if it.Kind == stream.KindComment {
			if err := out.WriteItem(it); err != nil {
				return err
			}
		}
	}
	return nil
}

// commitSchema records the first group's reducer output schema (computing
// whether key re-injection is needed), or verifies a later group's output
// still matches it.
func (g *grouper) commitSchema(capture *captureSink, out filter.Sink) error {
	if capture.header == nil {
		return &SchemaError{Detail: "reducer finished without declaring an output schema"}
	}
	if g.firstHeader == nil {
		g.firstHeader = capture.header
		g.keyCols = keyColumnNames(g.spec)
		g.needKeyInject = !headerHasColumns(capture.header, g.keyCols)

		if g.needKeyInject {
			cols := append(append([]string(nil), g.keyCols...), capture.header.Columns...)
			fh, err := stream.NewHeader(capture.header.Code, cols, capture.header.EmptyValue)
			if err != nil {
				return err
			}
			g.finalHeader = fh
		} else {
			g.finalHeader = capture.header
		}
		if hs, ok := out.(filter.HeaderSetter); ok {
			hs.SetHeader(g.finalHeader)
		}
		return nil
	}
	if !capture.header.CompatibleWith(g.firstHeader) {
		return &SchemaError{Detail: "reducer produced a different output schema for a later group"}
	}
	return nil
}

// emit commits capture's schema (on the first call) and writes its
// buffered items to out, prepending key to every row if re-injection is
// needed.
func (g *grouper) emit(key stream.Row, capture *captureSink, out filter.Sink) error {
	if err := g.commitSchema(capture, out); err != nil {
		return err
	}
	for _, it := range capture.items {
		if it.Kind == stream.KindComment {
			if err := out.WriteItem(it); err != nil {
				return err
			}
			continue
		}
		row := it.Row
		if g.needKeyInject {
			row = append(append(stream.Row(nil), key...), row...)
		}
		if err := out.WriteItem(stream.Item{Kind: stream.KindRow, Row: row}); err != nil {
			return err
		}
	}
	return nil
}

func rowsEqual(a, b stream.Row) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func keyString(k stream.Row) string {
	return strings.Join([]string(k), "\x00")
}

func keyColumnNames(spec keyspec.Spec) []string {
	fields := spec.Fields()
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Column
	}
	return out
}

func headerHasColumns(h *stream.Header, names []string) bool {
	for _, n := range names {
		if h.Index(n) < 0 {
			return false
		}
	}
	return true
}

// captureSink records everything a reducer writes, including its
// committed output schema, for the grouper to reassemble.
type captureSink struct {
	header *stream.Header
	items  []stream.Item
}

func (s *captureSink) Header() *stream.Header     { return s.header }
func (s *captureSink) SetHeader(h *stream.Header) { s.header = h }
func (s *captureSink) WriteItem(it stream.Item) error {
	s.items = append(s.items, it)
	return nil
}
func (s *captureSink) Close() error { return nil }

var _ filter.Sink = (*captureSink)(nil)
var _ filter.HeaderSetter = (*captureSink)(nil)
