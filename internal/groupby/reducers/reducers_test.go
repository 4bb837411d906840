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

package reducers

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/fsdbgo/internal/filter"
	"github.com/cardinalhq/fsdbgo/internal/groupby"
	"github.com/cardinalhq/fsdbgo/internal/keyspec"
	"github.com/cardinalhq/fsdbgo/internal/stream"
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

type outSink struct {
	header *stream.Header
	rows   []stream.Row
}

func (s *outSink) Header() *stream.Header     { return s.header }
func (s *outSink) SetHeader(h *stream.Header) { s.header = h }
func (s *outSink) WriteItem(it stream.Item) error {
	if it.Kind == stream.KindRow {
		s.rows = append(s.rows, it.Row)
	}
	return nil
}
func (s *outSink) Close() error { return nil }

func testHeader(t *testing.T) *stream.Header {
	t.Helper()
	h, err := stream.NewHeader(stream.CodeTab, []string{"grp", "val"}, "-")
	require.NoError(t, err)
	return h
}

func TestCountReducerViaDriver(t *testing.T) {
	h := testHeader(t)
	in := newRowSource(h,
		stream.Row{"A", "1"}, stream.Row{"A", "2"}, stream.Row{"A", "3"},
		stream.Row{"B", "9"},
	)
	out := &outSink{}

	factory, err := Factory(Count, "")
	require.NoError(t, err)

	spec := keyspec.New(keyspec.Field{Column: "grp"})
	d := &groupby.Driver{Key: spec, Mode: groupby.GroupIgnorant, PreSorted: true, Factory: factory, PipeCapacity: 4}
	require.NoError(t, d.Run(context.Background(), in, out))

	require.Equal(t, []string{"grp", "count"}, out.header.Columns)
	require.Equal(t, []stream.Row{{"A", "3"}, {"B", "1"}}, out.rows)
}

func TestSumReducerViaDriver(t *testing.T) {
	h := testHeader(t)
	in := newRowSource(h,
		stream.Row{"A", "1"}, stream.Row{"A", "4"},
		stream.Row{"B", "10"},
	)
	out := &outSink{}

	factory, err := Factory(Sum, "val")
	require.NoError(t, err)

	spec := keyspec.New(keyspec.Field{Column: "grp"})
	d := &groupby.Driver{Key: spec, Mode: groupby.GroupIgnorant, PreSorted: true, Factory: factory, PipeCapacity: 4}
	require.NoError(t, d.Run(context.Background(), in, out))

	require.Equal(t, []string{"grp", "sum"}, out.header.Columns)
	require.Equal(t, []stream.Row{{"A", "5"}, {"B", "10"}}, out.rows)
}

func TestMeanReducerViaDriver(t *testing.T) {
	h := testHeader(t)
	in := newRowSource(h, stream.Row{"A", "1"}, stream.Row{"A", "3"})
	out := &outSink{}

	factory, err := Factory(Mean, "val")
	require.NoError(t, err)

	spec := keyspec.New(keyspec.Field{Column: "grp"})
	d := &groupby.Driver{Key: spec, Mode: groupby.GroupIgnorant, PreSorted: true, Factory: factory, PipeCapacity: 4}
	require.NoError(t, d.Run(context.Background(), in, out))

	require.Equal(t, []string{"grp", "mean", "n"}, out.header.Columns)
	require.Equal(t, []stream.Row{{"A", "2", "2"}}, out.rows)
}

func TestUnknownCodeRejected(t *testing.T) {
	_, err := Factory("bogus", "")
	require.Error(t, err)
	var uc *UnknownCodeError
	require.ErrorAs(t, err, &uc)
}

var (
	_ filter.Source = (*rowSource)(nil)
	_ filter.Sink   = (*outSink)(nil)
)
