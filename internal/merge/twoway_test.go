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
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/fsdbgo/internal/filter"
	"github.com/cardinalhq/fsdbgo/internal/keyspec"
	"github.com/cardinalhq/fsdbgo/internal/stream"
)

type sliceSource struct {
	header *stream.Header
	items  []stream.Item
	i      int
}

func newSliceSource(h *stream.Header, rows ...stream.Row) *sliceSource {
	items := make([]stream.Item, len(rows))
	for i, r := range rows {
		items[i] = stream.Item{Kind: stream.KindRow, Row: r}
	}
	return &sliceSource{header: h, items: items}
}

func (s *sliceSource) Header() (*stream.Header, error) { return s.header, nil }
func (s *sliceSource) Next() (stream.Item, error) {
	if s.i >= len(s.items) {
		return stream.Item{}, io.EOF
	}
	it := s.items[s.i]
	s.i++
	return it, nil
}
func (s *sliceSource) Close() error { return nil }

type sliceSink struct {
	rows []stream.Row
}

func (s *sliceSink) Header() *stream.Header { return nil }
func (s *sliceSink) WriteItem(it stream.Item) error {
	if it.Kind == stream.KindRow {
		s.rows = append(s.rows, it.Row)
	}
	return nil
}
func (s *sliceSink) Close() error { return nil }

func mkHeader(t *testing.T) *stream.Header {
	t.Helper()
	h, err := stream.NewHeader(stream.CodeTab, []string{"cname"}, "-")
	require.NoError(t, err)
	return h
}

func TestTwoWayMergeByName(t *testing.T) {
	h := mkHeader(t)
	spec, err := keyspec.New(keyspec.Field{Column: "cname", Comparator: keyspec.Lexical}).Resolve(h)
	require.NoError(t, err)

	left := newSliceSource(h, stream.Row{"numanal"}, stream.Row{"pascal"})
	right := newSliceSource(h, stream.Row{"os"}, stream.Row{"statistics"})
	out := &sliceSink{}

	require.NoError(t, TwoWay(left, right, spec, out))
	require.Equal(t, []stream.Row{
		{"numanal"}, {"os"}, {"pascal"}, {"statistics"},
	}, out.rows)
}

func TestTwoWayMergeTiePrefersLeft(t *testing.T) {
	h, err := stream.NewHeader(stream.CodeTab, []string{"cname", "side"}, "-")
	require.NoError(t, err)
	spec, err := keyspec.New(keyspec.Field{Column: "cname"}).Resolve(h)
	require.NoError(t, err)

	left := newSliceSource(h, stream.Row{"a", "L"})
	right := newSliceSource(h, stream.Row{"a", "R"})
	out := &sliceSink{}

	require.NoError(t, TwoWay(left, right, spec, out))
	require.Equal(t, []stream.Row{{"a", "L"}, {"a", "R"}}, out.rows)
}

func TestTwoWayMergeDetectsInversion(t *testing.T) {
	h := mkHeader(t)
	spec, err := keyspec.New(keyspec.Field{Column: "cname"}).Resolve(h)
	require.NoError(t, err)

	left := newSliceSource(h, stream.Row{"b"}, stream.Row{"a"})
	right := newSliceSource(h, stream.Row{"x"})
	out := &sliceSink{}

	err = TwoWay(left, right, spec, out)
	require.Error(t, err)
	var oe *OrderingError
	require.ErrorAs(t, err, &oe)
	require.Equal(t, "left", oe.Side)
}

func TestTwoWayMergeDrainsRemainder(t *testing.T) {
	h := mkHeader(t)
	spec, err := keyspec.New(keyspec.Field{Column: "cname"}).Resolve(h)
	require.NoError(t, err)

	left := newSliceSource(h, stream.Row{"a"}, stream.Row{"b"}, stream.Row{"c"})
	right := newSliceSource(h)
	out := &sliceSink{}

	require.NoError(t, TwoWay(left, right, spec, out))
	require.Len(t, out.rows, 3)
}

var _ filter.Source = (*sliceSource)(nil)
var _ filter.Sink = (*sliceSink)(nil)
