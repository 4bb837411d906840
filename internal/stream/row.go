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

package stream

// Row is a fixed-arity tuple of string fields. The codec is string-typed;
// callers that need numeric comparisons attach their own comparator.
type Row []string

// Clone returns a deep, independently mutable copy of the row. A pipe's
// producer must clone a row before a second enqueue of the same backing
// array, since a pipe takes ownership of whatever is handed to it.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	copy(out, r)
	return out
}

// Comment is a verbatim pass-through line beginning with CommentPrefix.
type Comment string

// Kind distinguishes the two record types a stream can carry.
type Kind int

const (
	// KindRow marks an Item carrying a data row.
	KindRow Kind = iota
	// KindComment marks an Item carrying a comment line.
	KindComment
)

// Item is one record read from, or written to, a stream: either a Row or
// a Comment, never both.
type Item struct {
	Kind    Kind
	Row     Row
	Comment Comment
}
