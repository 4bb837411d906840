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
	"fmt"

	"github.com/cardinalhq/fsdbgo/internal/keyspec"
	"github.com/cardinalhq/fsdbgo/internal/stream"
)

// BuildSchema resolves key against both headers and composes the joined
// output's column layout, failing if a non-key column name collides
// between the two sides.
func BuildSchema(left, right *stream.Header, key keyspec.Spec) (*Layout, error) {
	lKey, err := key.Resolve(left)
	if err != nil {
		return nil, err
	}
	rKey, err := key.Resolve(right)
	if err != nil {
		return nil, err
	}

	keyNames := make([]string, key.Len())
	keySet := make(map[string]struct{}, key.Len())
	for i, f := range lKey.Fields() {
		keyNames[i] = f.Column
		keySet[f.Column] = struct{}{}
	}

	var cols []string
	cols = append(cols, keyNames...)

	var leftNonKey []int
	for i, c := range left.Columns {
		if _, isKey := keySet[c]; isKey {
			continue
		}
		leftNonKey = append(leftNonKey, i)
		cols = append(cols, c)
	}

	seen := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		seen[c] = struct{}{}
	}

	var rightNonKey []int
	for i, c := range right.Columns {
		if _, isKey := keySet[c]; isKey {
			continue
		}
		if _, dup := seen[c]; dup {
			return nil, &SchemaError{Detail: fmt.Sprintf("non-key column %q appears on both sides of the join", c)}
		}
		rightNonKey = append(rightNonKey, i)
		cols = append(cols, c)
		seen[c] = struct{}{}
	}

	return &Layout{
		Columns:        cols,
		keyLeft:        lKey,
		keyRight:       rKey,
		leftNonKeyIdx:  leftNonKey,
		rightNonKeyIdx: rightNonKey,
	}, nil
}

// Layout is the resolved output schema for one join: the resolved key
// specs for each side (used to project the key tuple via Spec.Project)
// and which header positions feed each side's surviving non-key columns.
type Layout struct {
	Columns        []string
	keyLeft        keyspec.Spec
	keyRight       keyspec.Spec
	leftNonKeyIdx  []int
	rightNonKeyIdx []int
}

// combine builds one output row from a matched (or unmatched, with a nil
// side) pair, substituting empty for every column on a nil side.
func (l *Layout) combine(left, right stream.Row, empty string) stream.Row {
	out := make(stream.Row, 0, len(l.Columns))

	switch {
	case left != nil:
		out = append(out, l.keyLeft.Project(left)...)
	case right != nil:
		out = append(out, l.keyRight.Project(right)...)
	default:
		for i := 0; i < l.keyLeft.Len(); i++ {
			out = append(out, empty)
		}
	}

	if left != nil {
		for _, i := range l.leftNonKeyIdx {
			out = append(out, left[i])
		}
	} else {
		for range l.leftNonKeyIdx {
			out = append(out, empty)
		}
	}

	if right != nil {
		for _, i := range l.rightNonKeyIdx {
			out = append(out, right[i])
		}
	} else {
		for range l.rightNonKeyIdx {
			out = append(out, empty)
		}
	}

	return out
}
