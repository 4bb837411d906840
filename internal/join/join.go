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

// Package join implements a sort-merge join of two presorted streams on a
// shared key tuple: walk both sides with the key comparator, buffer the
// right side's run of equal keys, and cross it against each matching left
// row.
package join

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/cardinalhq/fsdbgo/internal/filter"
	"github.com/cardinalhq/fsdbgo/internal/keyspec"
	"github.com/cardinalhq/fsdbgo/internal/logctx"
	"github.com/cardinalhq/fsdbgo/internal/stream"
)

// Type selects which rows a mismatched key on either side produces.
type Type int

const (
	// Inner drops any row whose key has no match on the other side.
	Inner Type = iota
	// Outer emits every row, substituting the empty-value token for the
	// other side's non-key columns when there is no match.
	Outer
)

// UnsupportedTypeError reports a requested join type other than inner or
// outer, including "left" and "right".
type UnsupportedTypeError struct {
	Requested string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("join: join type %q is not implemented; only inner and outer are supported", e.Requested)
}

// ParseType resolves a CLI-facing join type name. Every name other than
// "inner" and "outer", "left" and "right" included, fails with the same
// UnsupportedTypeError.
func ParseType(name string) (Type, error) {
	switch name {
	case "inner":
		return Inner, nil
	case "outer":
		return Outer, nil
	case "left", "right":
		return 0, &UnsupportedTypeError{Requested: name}
	default:
		return 0, &UnsupportedTypeError{Requested: name}
	}
}

// SchemaError reports a fatal problem composing the joined output schema.
type SchemaError struct {
	Detail string
}

func (e *SchemaError) Error() string { return "join: " + e.Detail }

// OrderingError reports that a side was not sorted consistently with the
// join's key spec.
type OrderingError struct {
	Side string
}

func (e *OrderingError) Error() string {
	return fmt.Sprintf("join: %s input is not sorted by the join key", e.Side)
}

// Joiner merges two presorted streams on Key's key columns.
type Joiner struct {
	Spec Type
	Key  keyspec.Spec

	// RightRunWarnThreshold logs a warning once a buffered right-side run
	// of equal keys exceeds this many rows; it never fails the join.
	RightRunWarnThreshold int
}

// NewJoiner constructs a Joiner; a non-positive RightRunWarnThreshold
// disables the warning.
func NewJoiner(kind Type, key keyspec.Spec, rightRunWarnThreshold int) *Joiner {
	return &Joiner{Spec: kind, Key: key, RightRunWarnThreshold: rightRunWarnThreshold}
}

// Run joins left against right, writing the combined rows to out. left and right must already be sorted by j.Key; out's header is not
// written here, callers commit out's schema from BuildSchema beforehand.
func (j *Joiner) Run(ctx context.Context, left, right filter.Source, out filter.Sink) error {
	lh, err := left.Header()
	if err != nil {
		return err
	}
	rh, err := right.Header()
	if err != nil {
		return err
	}

	spec, err := j.Key.Resolve(lh)
	if err != nil {
		return err
	}
	rightKeySpec, err := j.Key.Resolve(rh)
	if err != nil {
		return err
	}

	layout, err := BuildSchema(lh, rh, j.Key)
	if err != nil {
		return err
	}
	empty := lh.EmptyValue

	lRow, lErr := nextRow(left, out)
	rRow, rErr := nextRow(right, out)

	var prevL, prevR stream.Row

	checkOrder := func(side string, prev, cur stream.Row, s keyspec.Spec) error {
		if prev != nil && s.Compare(prev, cur) > 0 {
			return &OrderingError{Side: side}
		}
		return nil
	}

	emitUnmatchedLeft := func(row stream.Row) error {
		if j.Spec != Outer {
			return nil
		}
		return out.WriteItem(stream.Item{Kind: stream.KindRow, Row: layout.combine(row, nil, empty)})
	}
	emitUnmatchedRight := func(row stream.Row) error {
		if j.Spec != Outer {
			return nil
		}
		return out.WriteItem(stream.Item{Kind: stream.KindRow, Row: layout.combine(nil, row, empty)})
	}

	logger := logctx.FromContext(ctx)

	for lErr == nil && rErr == nil {
		if err := checkOrder("left", prevL, lRow, spec); err != nil {
			return err
		}
		if err := checkOrder("right", prevR, rRow, rightKeySpec); err != nil {
			return err
		}

		switch c := compareCross(spec, rightKeySpec, lRow, rRow); {
		case c < 0:
			if err := emitUnmatchedLeft(lRow); err != nil {
				return err
			}
			prevL = lRow
			lRow, lErr = nextRow(left, out)
		case c > 0:
			if err := emitUnmatchedRight(rRow); err != nil {
				return err
			}
			prevR = rRow
			rRow, rErr = nextRow(right, out)
		default:
			rightRun := []stream.Row{rRow}
			prevR = rRow
			rRow, rErr = nextRow(right, out)
			for rErr == nil && compareCross(spec, rightKeySpec, lRow, rRow) == 0 {
				if err := checkOrder("right", prevR, rRow, rightKeySpec); err != nil {
					return err
				}
				rightRun = append(rightRun, rRow)
				prevR = rRow
				rRow, rErr = nextRow(right, out)
			}
			if j.RightRunWarnThreshold > 0 && len(rightRun) > j.RightRunWarnThreshold {
				logger.Warn("join: large right-side run buffered",
					slog.Int("run_length", len(rightRun)),
					slog.Int("threshold", j.RightRunWarnThreshold))
			}

			for {
				for _, rr := range rightRun {
					if err := out.WriteItem(stream.Item{Kind: stream.KindRow, Row: layout.combine(lRow, rr, empty)}); err != nil {
						return err
					}
				}
				prevL = lRow
				lRow, lErr = nextRow(left, out)
				if lErr != nil {
					break
				}
				if err := checkOrder("left", prevL, lRow, spec); err != nil {
					return err
				}
				if compareCross(spec, rightKeySpec, lRow, rightRun[0]) != 0 {
					break
				}
			}
		}
	}

	if lErr != nil && lErr != io.EOF {
		return lErr
	}
	if rErr != nil && rErr != io.EOF {
		return rErr
	}

	for lErr == nil {
		if err := emitUnmatchedLeft(lRow); err != nil {
			return err
		}
		prevL = lRow
		lRow, lErr = nextRow(left, out)
		if lErr == nil {
			if err := checkOrder("left", prevL, lRow, spec); err != nil {
				return err
			}
		}
	}
	if lErr != io.EOF {
		return lErr
	}

	for rErr == nil {
		if err := emitUnmatchedRight(rRow); err != nil {
			return err
		}
		prevR = rRow
		rRow, rErr = nextRow(right, out)
		if rErr == nil {
			if err := checkOrder("right", prevR, rRow, rightKeySpec); err != nil {
				return err
			}
		}
	}
	if rErr != io.EOF {
		return rErr
	}
	return nil
}

// compareCross orders a left row against a right row by their respective
// resolved key specs. The two specs are resolved against different headers,
// so the key column generally sits at a different position on each side;
// projecting each row through its own spec before comparing avoids indexing
// the right row at the left's key column position (or vice versa).
func compareCross(leftSpec, rightSpec keyspec.Spec, lRow, rRow stream.Row) int {
	return leftSpec.CompareProjected(leftSpec.Project(lRow), rightSpec.Project(rRow))
}

// nextRow reads the next row from src, forwarding any comments encountered
// along the way to out, and returns the next row or the terminal error
// (including io.EOF).
func nextRow(src filter.Source, out filter.Sink) (stream.Row, error) {
	for {
		it, err := src.Next()
		if err != nil {
			return nil, err
		}
		if it.Kind == stream.KindComment {
			if err := out.WriteItem(it); err != nil {
				return nil, err
			}
			continue
		}
		return it.Row, nil
	}
}
