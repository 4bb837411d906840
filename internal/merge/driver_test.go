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
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/fsdbgo/internal/filter"
	"github.com/cardinalhq/fsdbgo/internal/keyspec"
	"github.com/cardinalhq/fsdbgo/internal/stream"
	"github.com/cardinalhq/fsdbgo/internal/tempfile"
)

func newTestDriver(t *testing.T, parallelism int, endgame bool, spec keyspec.Spec) *Driver {
	t.Helper()
	mgr, err := tempfile.New(afero.NewMemMapFs(), "/tmp/merge-test", "run")
	require.NoError(t, err)
	return NewDriver(spec, parallelism, endgame, mgr)
}

func TestDriverRejectsSingleInput(t *testing.T) {
	h := mkHeader(t)
	spec, err := keyspec.New(keyspec.Field{Column: "cname"}).Resolve(h)
	require.NoError(t, err)
	d := newTestDriver(t, 2, true, spec)

	err = d.Run(context.Background(), []filter.Source{newSliceSource(h)}, &sliceSink{})
	require.ErrorIs(t, err, ErrTooFewInputs)
}

func TestDriverMergesFourRunsSequential(t *testing.T) {
	h := mkHeader(t)
	spec, err := keyspec.New(keyspec.Field{Column: "cname"}).Resolve(h)
	require.NoError(t, err)
	d := newTestDriver(t, 1, false, spec)

	inputs := []filter.Source{
		newSliceSource(h, stream.Row{"a"}, stream.Row{"d"}),
		newSliceSource(h, stream.Row{"b"}),
		newSliceSource(h, stream.Row{"c"}, stream.Row{"g"}),
		newSliceSource(h, stream.Row{"e"}, stream.Row{"f"}),
	}
	out := &sliceSink{}
	require.NoError(t, d.Run(context.Background(), inputs, out))

	got := make([]string, len(out.rows))
	for i, r := range out.rows {
		got[i] = r[0]
	}
	require.Equal(t, []string{"a", "b", "c", "d", "e", "f", "g"}, got)
}

func TestDriverMergesWithEndgame(t *testing.T) {
	h := mkHeader(t)
	spec, err := keyspec.New(keyspec.Field{Column: "cname"}).Resolve(h)
	require.NoError(t, err)
	d := newTestDriver(t, 4, true, spec)

	inputs := []filter.Source{
		newSliceSource(h, stream.Row{"a"}),
		newSliceSource(h, stream.Row{"b"}),
		newSliceSource(h, stream.Row{"c"}),
		newSliceSource(h, stream.Row{"d"}),
		newSliceSource(h, stream.Row{"e"}),
	}
	out := &sliceSink{}
	require.NoError(t, d.Run(context.Background(), inputs, out))
	require.Len(t, out.rows, 5)

	got := make([]string, len(out.rows))
	for i, r := range out.rows {
		got[i] = r[0]
	}
	require.Equal(t, []string{"a", "b", "c", "d", "e"}, got)
}

func TestDriverPromotesRunt(t *testing.T) {
	h := mkHeader(t)
	spec, err := keyspec.New(keyspec.Field{Column: "cname"}).Resolve(h)
	require.NoError(t, err)
	d := newTestDriver(t, 2, false, spec)

	inputs := []filter.Source{
		newSliceSource(h, stream.Row{"a"}),
		newSliceSource(h, stream.Row{"b"}),
		newSliceSource(h, stream.Row{"c"}),
	}
	out := &sliceSink{}
	require.NoError(t, d.Run(context.Background(), inputs, out))

	got := make([]string, len(out.rows))
	for i, r := range out.rows {
		got[i] = r[0]
	}
	require.Equal(t, []string{"a", "b", "c"}, got)
}

func TestDriverDetectsSchemaMismatch(t *testing.T) {
	h1 := mkHeader(t)
	h2, err := stream.NewHeader(stream.CodeTab, []string{"other"}, "-")
	require.NoError(t, err)
	spec, err := keyspec.New(keyspec.Field{Column: "cname"}).Resolve(h1)
	require.NoError(t, err)
	d := newTestDriver(t, 2, false, spec)

	inputs := []filter.Source{
		newSliceSource(h1, stream.Row{"a"}),
		newSliceSource(h2, stream.Row{"b"}),
	}
	err = d.Run(context.Background(), inputs, &sliceSink{})
	require.Error(t, err)
	var se *SchemaError
	require.ErrorAs(t, err, &se)
}
