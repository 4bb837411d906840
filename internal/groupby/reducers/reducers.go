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

// Package reducers provides built-in, in-process group-by reducer
// factories for the common numeric aggregates (count, sum, mean), so a
// "-C CODE" flag can select one without shelling out to an external
// filter binary. Each factory satisfies groupby.ReducerFactory and never
// emits the group's key column itself; the driver prepends it.
package reducers

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/cardinalhq/fsdbgo/internal/filter"
	"github.com/cardinalhq/fsdbgo/internal/stream"
)

// Code names a built-in reducer selectable via "-C CODE".
type Code string

const (
	Count Code = "count"
	Sum   Code = "sum"
	Mean  Code = "mean"
)

// UnknownCodeError reports a "-C CODE" value with no built-in reducer.
type UnknownCodeError struct {
	Code string
}

func (e *UnknownCodeError) Error() string {
	return fmt.Sprintf("reducers: no built-in reducer for code %q", e.Code)
}

// Factory resolves a Code and the numeric column it aggregates into a
// groupby.ReducerFactory. column is ignored by Count. None of the built-in
// reducers need the group's key (the driver re-injects it), so it is
// accepted and ignored.
func Factory(code Code, column string) (func(key stream.Row, in filter.Source, out filter.Sink) filter.Filter, error) {
	switch code {
	case Count:
		return func(key stream.Row, in filter.Source, out filter.Sink) filter.Filter {
			return newCountReducer(in, out)
		}, nil
	case Sum:
		return func(key stream.Row, in filter.Source, out filter.Sink) filter.Filter {
			return newAggReducer(in, out, column, sumFold)
		}, nil
	case Mean:
		return func(key stream.Row, in filter.Source, out filter.Sink) filter.Filter {
			return newAggReducer(in, out, column, meanFold)
		}, nil
	default:
		return nil, &UnknownCodeError{Code: string(code)}
	}
}

// countReducer emits a single "count" column holding the number of rows
// seen in its group.
type countReducer struct {
	*filter.Base
	n int
}

func newCountReducer(in filter.Source, out filter.Sink) *countReducer {
	return &countReducer{Base: filter.NewBase("count", []filter.Source{in}, out)}
}

func (c *countReducer) Configure(context.Context, filter.Options) error { return nil }

func (c *countReducer) Setup(ctx context.Context) error {
	return setOutputHeader(c.Output(), []string{"count"})
}

func (c *countReducer) Run(ctx context.Context) error {
	for {
		it, err := c.Input(0).Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if it.Kind == stream.KindComment {
			if err := c.PassComment(it); err != nil {
				return err
			}
			continue
		}
		c.n++
	}
	return c.Output().WriteItem(stream.Item{Kind: stream.KindRow, Row: stream.Row{strconv.Itoa(c.n)}})
}

func (c *countReducer) Finish(ctx context.Context) error { return c.Base.Finish(ctx) }

// fold accumulates one group's values for a numeric column; cols names
// the aggregate's output columns, distinguishing sum (one column) from
// mean (two: mean and the count it was computed over).
type fold struct {
	sum  float64
	n    int
	cols []string
}

func sumFold() *fold {
	return &fold{cols: []string{"sum"}}
}

func meanFold() *fold {
	return &fold{cols: []string{"mean", "n"}}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// aggReducer computes a single numeric aggregate (sum or mean) over one
// column across its group's rows.
type aggReducer struct {
	*filter.Base
	column  string
	colIdx  int
	newFold func() *fold
	fold    *fold
}

func newAggReducer(in filter.Source, out filter.Sink, column string, newFold func() *fold) *aggReducer {
	return &aggReducer{
		Base:    filter.NewBase("agg:"+column, []filter.Source{in}, out),
		column:  column,
		newFold: newFold,
	}
}

func (a *aggReducer) Configure(context.Context, filter.Options) error { return nil }

func (a *aggReducer) Setup(ctx context.Context) error {
	header, err := a.Input(0).Header()
	if err != nil {
		return err
	}
	a.colIdx = header.Index(a.column)
	if a.colIdx < 0 {
		return fmt.Errorf("reducers: column %q not present in group input", a.column)
	}
	a.fold = a.newFold()
	return setOutputHeader(a.Output(), a.fold.cols)
}

func (a *aggReducer) Run(ctx context.Context) error {
	for {
		it, err := a.Input(0).Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if it.Kind == stream.KindComment {
			if err := a.PassComment(it); err != nil {
				return err
			}
			continue
		}
		v, err := strconv.ParseFloat(it.Row[a.colIdx], 64)
		if err != nil {
			return fmt.Errorf("reducers: column %q: %w", a.column, err)
		}
		a.fold.sum += v
		a.fold.n++
	}

	var row stream.Row
	if len(a.fold.cols) == 2 {
		mean := 0.0
		if a.fold.n > 0 {
			mean = a.fold.sum / float64(a.fold.n)
		}
		row = stream.Row{formatFloat(mean), strconv.Itoa(a.fold.n)}
	} else {
		row = stream.Row{formatFloat(a.fold.sum)}
	}
	return a.Output().WriteItem(stream.Item{Kind: stream.KindRow, Row: row})
}

func (a *aggReducer) Finish(ctx context.Context) error { return a.Base.Finish(ctx) }

func setOutputHeader(out filter.Sink, cols []string) error {
	h, err := stream.NewHeader(stream.CodeTab, cols, "-")
	if err != nil {
		return err
	}
	if hs, ok := out.(filter.HeaderSetter); ok {
		hs.SetHeader(h)
		return nil
	}
	return fmt.Errorf("reducers: output sink cannot accept a committed header")
}

var (
	_ filter.Filter = (*countReducer)(nil)
	_ filter.Filter = (*aggReducer)(nil)
)
