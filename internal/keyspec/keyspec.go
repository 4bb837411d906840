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

// Package keyspec is the shared key-comparison type used by sort, merge,
// join, and group-by: an ordered list of (column, comparator, direction).
package keyspec

import (
	"fmt"
	"strconv"

	"github.com/cardinalhq/fsdbgo/internal/stream"
)

// Comparator selects how a key field's two values are ordered.
type Comparator int

const (
	// Lexical compares field values as strings.
	Lexical Comparator = iota
	// Numeric parses field values as float64 before comparing; a field
	// that fails to parse sorts as if it were negative infinity, the
	// conventional behavior for non-numeric data landing in a numeric key
	// column.
	Numeric
)

// Field is one column of a key spec: which column, how it compares, and
// in which direction.
type Field struct {
	Column     string
	Comparator Comparator
	Descending bool

	index int
}

// Spec is an ordered list of key fields. A Spec is constructed unresolved
// (column names only) and must be Resolve'd against a concrete header
// before Compare can be used.
type Spec struct {
	fields   []Field
	resolved bool
}

// New builds an unresolved Spec from its fields in priority order.
func New(fields ...Field) Spec {
	return Spec{fields: append([]Field(nil), fields...)}
}

// Len reports the number of key fields.
func (s Spec) Len() int { return len(s.fields) }

// Fields returns the resolved fields, in priority order.
func (s Spec) Fields() []Field { return s.fields }

// Resolve fixes each field's column name to its position in h, failing if
// any named column is absent. Safe to call once per Spec; the result is a
// new Spec, leaving the receiver untouched.
func (s Spec) Resolve(h *stream.Header) (Spec, error) {
	out := Spec{fields: make([]Field, len(s.fields)), resolved: true}
	for i, f := range s.fields {
		idx := h.Index(f.Column)
		if idx < 0 {
			return Spec{}, fmt.Errorf("keyspec: column %q not present in header", f.Column)
		}
		f.index = idx
		out.fields[i] = f
	}
	return out, nil
}

// Project extracts the key columns from row as their own tuple, in spec
// order, for use as a group-by segmentation key.
func (s Spec) Project(row stream.Row) stream.Row {
	out := make(stream.Row, len(s.fields))
	for i, f := range s.fields {
		out[i] = row[f.index]
	}
	return out
}

// Compare orders a against b by the resolved spec: -1, 0, or 1. Remaining
// ties after all key fields are exhausted are reported as 0 (stability is
// the caller's responsibility, via a stable sort or left-on-tie merge).
func (s Spec) Compare(a, b stream.Row) int {
	for _, f := range s.fields {
		c := compareField(a[f.index], b[f.index], f.Comparator)
		if f.Descending {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

// CompareProjected orders two already-projected key tuples (as returned by
// Project) field by field, using this Spec's comparator and direction for
// each position. Unlike Compare, it never re-indexes into a source row, so
// it is safe to use across two Specs resolved against different headers —
// the case where the key column sits at different positions on each side,
// as with a merge-join's left and right inputs.
func (s Spec) CompareProjected(a, b stream.Row) int {
	for i, f := range s.fields {
		c := compareField(a[i], b[i], f.Comparator)
		if f.Descending {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

func compareField(a, b string, cmp Comparator) int {
	if cmp == Lexical {
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	}
	af, aerr := strconv.ParseFloat(a, 64)
	bf, berr := strconv.ParseFloat(b, 64)
	switch {
	case aerr != nil && berr != nil:
		return 0
	case aerr != nil:
		return -1
	case berr != nil:
		return 1
	case af < bf:
		return -1
	case af > bf:
		return 1
	default:
		return 0
	}
}
