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

package join

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/fsdbgo/internal/filter"
	"github.com/cardinalhq/fsdbgo/internal/keyspec"
	"github.com/cardinalhq/fsdbgo/internal/stream"
)

type sliceSource struct {
	header *stream.Header
	rows   []stream.Row
	i      int
}

func newSource(h *stream.Header, rows ...stream.Row) *sliceSource {
	return &sliceSource{header: h, rows: rows}
}

func (s *sliceSource) Header() (*stream.Header, error) { return s.header, nil }
func (s *sliceSource) Next() (stream.Item, error) {
	if s.i >= len(s.rows) {
		return stream.Item{}, io.EOF
	}
	r := s.rows[s.i]
	s.i++
	return stream.Item{Kind: stream.KindRow, Row: r}, nil
}
func (s *sliceSource) Close() error { return nil }

type recordSink struct {
	header *stream.Header
	rows   []stream.Row
}

func (s *recordSink) Header() *stream.Header          { return s.header }
func (s *recordSink) WriteItem(it stream.Item) error {
	if it.Kind == stream.KindRow {
		s.rows = append(s.rows, it.Row)
	}
	return nil
}
func (s *recordSink) Close() error { return nil }

func header(t *testing.T, cols ...string) *stream.Header {
	t.Helper()
	h, err := stream.NewHeader(stream.CodeTab, cols, "-")
	require.NoError(t, err)
	return h
}

func TestInnerJoinProducesCartesianCrossOfRuns(t *testing.T) {
	lh := header(t, "sid", "cid")
	rh := header(t, "cid", "cname")

	left := newSource(lh, stream.Row{"1", "10"}, stream.Row{"2", "11"}, stream.Row{"1", "12"}, stream.Row{"2", "12"})
	right := newSource(rh, stream.Row{"10", "pascal"}, stream.Row{"11", "numanal"}, stream.Row{"12", "os"})
	out := &recordSink{}

	spec := keyspec.New(keyspec.Field{Column: "cid", Comparator: keyspec.Numeric})
	j := NewJoiner(Inner, spec, 0)
	require.NoError(t, j.Run(context.Background(), left, right, out))

	layout, err := BuildSchema(lh, rh, spec)
	require.NoError(t, err)
	require.Equal(t, []string{"cid", "sid", "cname"}, layout.Columns)

	got := make([][]string, len(out.rows))
	for i, r := range out.rows {
		got[i] = r
	}
	require.ElementsMatch(t, [][]string{
		{"10", "1", "pascal"},
		{"11", "2", "numanal"},
		{"12", "1", "os"},
		{"12", "2", "os"},
	}, got)
}

func TestOuterJoinFillsEmptyToken(t *testing.T) {
	lh := header(t, "sid", "cid")
	rh := header(t, "cid", "cname")

	left := newSource(lh, stream.Row{"1", "10"}, stream.Row{"2", "20"})
	right := newSource(rh, stream.Row{"10", "a"}, stream.Row{"30", "c"})
	out := &recordSink{}

	spec := keyspec.New(keyspec.Field{Column: "cid", Comparator: keyspec.Numeric})
	j := NewJoiner(Outer, spec, 0)
	require.NoError(t, j.Run(context.Background(), left, right, out))

	require.Equal(t, []stream.Row{
		{"10", "1", "a"},
		{"20", "2", "-"},
		{"30", "-", "c"},
	}, out.rows)
}

func TestBuildSchemaRejectsNonKeyCollision(t *testing.T) {
	lh := header(t, "cid", "name")
	rh := header(t, "cid", "name")
	spec := keyspec.New(keyspec.Field{Column: "cid"})

	_, err := BuildSchema(lh, rh, spec)
	require.Error(t, err)
	var se *SchemaError
	require.ErrorAs(t, err, &se)
}

func TestJoinDetectsOrderingInversion(t *testing.T) {
	lh := header(t, "cid")
	rh := header(t, "cid")
	left := newSource(lh, stream.Row{"2"}, stream.Row{"1"})
	right := newSource(rh, stream.Row{"1"})
	out := &recordSink{}

	spec := keyspec.New(keyspec.Field{Column: "cid", Comparator: keyspec.Numeric})
	j := NewJoiner(Inner, spec, 0)

	err := j.Run(context.Background(), left, right, out)
	require.Error(t, err)
	var oe *OrderingError
	require.ErrorAs(t, err, &oe)
}

func TestParseTypeRejectsLeftAndRight(t *testing.T) {
	_, err := ParseType("left")
	require.Error(t, err)
	var ute *UnsupportedTypeError
	require.ErrorAs(t, err, &ute)

	_, err = ParseType("right")
	require.Error(t, err)
	require.ErrorAs(t, err, &ute)
}

var _ filter.Source = (*sliceSource)(nil)
var _ filter.Sink = (*recordSink)(nil)
