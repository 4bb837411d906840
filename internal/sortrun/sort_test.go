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

package sortrun

import (
	"context"
	"io"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/fsdbgo/internal/filter"
	"github.com/cardinalhq/fsdbgo/internal/keyspec"
	"github.com/cardinalhq/fsdbgo/internal/stream"
	"github.com/cardinalhq/fsdbgo/internal/tempfile"
)

type rowSource struct {
	header *stream.Header
	items  []stream.Item
	i      int
}

func newRowSource(h *stream.Header, rows ...stream.Row) *rowSource {
	items := make([]stream.Item, len(rows))
	for i, r := range rows {
		items[i] = stream.Item{Kind: stream.KindRow, Row: r}
	}
	return &rowSource{header: h, items: items}
}

func (s *rowSource) Header() (*stream.Header, error) { return s.header, nil }
func (s *rowSource) Next() (stream.Item, error) {
	if s.i >= len(s.items) {
		return stream.Item{}, io.EOF
	}
	it := s.items[s.i]
	s.i++
	return it, nil
}
func (s *rowSource) Close() error { return nil }

type recordSink struct {
	header   *stream.Header
	rows     []stream.Row
	comments []string
}

func (s *recordSink) Header() *stream.Header { return s.header }
func (s *recordSink) WriteItem(it stream.Item) error {
	if it.Kind == stream.KindRow {
		s.rows = append(s.rows, it.Row)
	} else if it.Kind == stream.KindComment {
		s.comments = append(s.comments, string(it.Comment))
	}
	return nil
}
func (s *recordSink) Close() error { return nil }

func testHeader(t *testing.T) *stream.Header {
	t.Helper()
	h, err := stream.NewHeader(stream.CodeTab, []string{"cname"}, "-")
	require.NoError(t, err)
	return h
}

func newTestSorter(t *testing.T, runSize int64, parallelism int, endgame bool) *Sorter {
	t.Helper()
	mgr, err := tempfile.New(afero.NewMemMapFs(), "/tmp/sort-test", "run")
	require.NoError(t, err)
	spec := keyspec.New(keyspec.Field{Column: "cname"})
	s := NewSorter(spec, mgr)
	s.RunSizeBytes = runSize
	s.Parallelism = parallelism
	s.Endgame = endgame
	return s
}

func TestSortInMemoryNoSpill(t *testing.T) {
	h := testHeader(t)
	s := newTestSorter(t, DefaultRunSizeBytes, 1, true)

	in := newRowSource(h, stream.Row{"c"}, stream.Row{"a"}, stream.Row{"b"})
	out := &recordSink{header: h}
	require.NoError(t, s.Sort(context.Background(), in, out))

	got := make([]string, len(out.rows))
	for i, r := range out.rows {
		got[i] = r[0]
	}
	require.Equal(t, []string{"a", "b", "c"}, got)
}

func TestSortSpillsAndMerges(t *testing.T) {
	h := testHeader(t)
	// A tiny run-size threshold forces a spill after nearly every row.
	s := newTestSorter(t, 1, 2, true)

	in := newRowSource(h,
		stream.Row{"f"}, stream.Row{"d"}, stream.Row{"b"},
		stream.Row{"e"}, stream.Row{"a"}, stream.Row{"c"},
	)
	out := &recordSink{header: h}
	require.NoError(t, s.Sort(context.Background(), in, out))

	got := make([]string, len(out.rows))
	for i, r := range out.rows {
		got[i] = r[0]
	}
	require.Equal(t, []string{"a", "b", "c", "d", "e", "f"}, got)
}

func TestSortSingleRunNoMergeNeeded(t *testing.T) {
	h := testHeader(t)
	// A threshold of 1 spills the single row inside the read loop, leaving
	// exactly one run, which is copied through without a merge.
	s := newTestSorter(t, 1, 1, false)

	in := newRowSource(h, stream.Row{"only"})
	out := &recordSink{header: h}
	require.NoError(t, s.Sort(context.Background(), in, out))

	require.Equal(t, []stream.Row{{"only"}}, out.rows)
}

func TestSortForwardsComments(t *testing.T) {
	h := testHeader(t)
	s := newTestSorter(t, DefaultRunSizeBytes, 1, true)

	in := &rowSource{header: h, items: []stream.Item{
		{Kind: stream.KindComment, Comment: "note"},
		{Kind: stream.KindRow, Row: stream.Row{"b"}},
		{Kind: stream.KindRow, Row: stream.Row{"a"}},
	}}
	out := &recordSink{header: h}
	require.NoError(t, s.Sort(context.Background(), in, out))

	require.Equal(t, []string{"note"}, out.comments)
	got := make([]string, len(out.rows))
	for i, r := range out.rows {
		got[i] = r[0]
	}
	require.Equal(t, []string{"a", "b"}, got)
}

var _ filter.Source = (*rowSource)(nil)
var _ filter.Sink = (*recordSink)(nil)
