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

// Package merge implements the two-way ordered interleave (C7) and the
// bounded-parallel N-way merge driver built on top of it (C8).
package merge

import (
	"fmt"
	"io"

	"github.com/cardinalhq/fsdbgo/internal/filter"
	"github.com/cardinalhq/fsdbgo/internal/keyspec"
	"github.com/cardinalhq/fsdbgo/internal/stream"
)

// OrderingError reports that an input declared (or assumed) sorted was
// found out of order during a merge.
type OrderingError struct {
	Side string
}

func (e *OrderingError) Error() string {
	return fmt.Sprintf("merge: %s input is not sorted by the merge key", e.Side)
}

// nextRow reads the next data row from src, forwarding any comments it
// encounters along the way directly to out. Returns io.EOF once src is
// exhausted.
func nextRow(src filter.Source, out filter.Sink) (stream.Row, error) {
	for {
		it, err := src.Next()
		if err != nil {
			return nil, err
		}
		if it.Kind == stream.KindComment {
			if out != nil {
				if err := out.WriteItem(it); err != nil {
					return nil, err
				}
			}
			continue
		}
		return it.Row, nil
	}
}

// TwoWay merges left and right, two schema-compatible presorted sources,
// into out under spec, a key spec already resolved against their shared
// header. Ties prefer the left input, preserving stability. Either input
// found out of order is a fatal OrderingError.
func TwoWay(left, right filter.Source, spec keyspec.Spec, out filter.Sink) error {
	lRow, lErr := nextRow(left, out)
	rRow, rErr := nextRow(right, out)

	var prevLeft, prevRight stream.Row

	emit := func(row stream.Row) error {
		return out.WriteItem(stream.Item{Kind: stream.KindRow, Row: row})
	}

	for {
		if lErr == io.EOF && rErr == io.EOF {
			return nil
		}
		if lErr == io.EOF {
			if rErr != nil {
				return rErr
			}
			if err := emit(rRow); err != nil {
				return err
			}
			prevRight = rRow
			rRow, rErr = nextRow(right, out)
			if rErr != nil && rErr != io.EOF {
				return rErr
			}
			if rErr == nil && spec.Compare(prevRight, rRow) > 0 {
				return &OrderingError{Side: "right"}
			}
			continue
		}
		if rErr == io.EOF {
			if lErr != nil {
				return lErr
			}
			if err := emit(lRow); err != nil {
				return err
			}
			prevLeft = lRow
			lRow, lErr = nextRow(left, out)
			if lErr != nil && lErr != io.EOF {
				return lErr
			}
			if lErr == nil && spec.Compare(prevLeft, lRow) > 0 {
				return &OrderingError{Side: "left"}
			}
			continue
		}

		if spec.Compare(lRow, rRow) <= 0 {
			if err := emit(lRow); err != nil {
				return err
			}
			prevLeft = lRow
			lRow, lErr = nextRow(left, out)
			if lErr != nil && lErr != io.EOF {
				return lErr
			}
			if lErr == nil && spec.Compare(prevLeft, lRow) > 0 {
				return &OrderingError{Side: "left"}
			}
		} else {
			if err := emit(rRow); err != nil {
				return err
			}
			prevRight = rRow
			rRow, rErr = nextRow(right, out)
			if rErr != nil && rErr != io.EOF {
				return rErr
			}
			if rErr == nil && spec.Compare(prevRight, rRow) > 0 {
				return &OrderingError{Side: "right"}
			}
		}
	}
}
