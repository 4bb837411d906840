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

import (
	"fmt"
	"strings"
)

const (
	// HeaderPrefix opens the single header line of a stream.
	HeaderPrefix = "#fsdb"
	// CommentPrefix opens every other line that is not row data.
	CommentPrefix = "#"
	// DefaultEmptyValue is used when a stream's header does not override it.
	DefaultEmptyValue = "-"
)

// Header declares a stream's schema: its separator code, its ordered,
// unique column names, and the token used to render a null field.
type Header struct {
	Code       Code
	Columns    []string
	EmptyValue string

	index map[string]int
}

// NewHeader builds a header and resolves its name->index mapping once.
func NewHeader(code Code, columns []string, emptyValue string) (*Header, error) {
	if emptyValue == "" {
		emptyValue = DefaultEmptyValue
	}
	h := &Header{Code: code, Columns: append([]string(nil), columns...), EmptyValue: emptyValue}
	if err := h.buildIndex(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Header) buildIndex() error {
	h.index = make(map[string]int, len(h.Columns))
	for i, c := range h.Columns {
		if _, dup := h.index[c]; dup {
			return fmt.Errorf("stream: duplicate column name %q in header", c)
		}
		h.index[c] = i
	}
	return nil
}

// Clone returns a header with the same schema, safe to mutate independently.
func (h *Header) Clone() *Header {
	clone, _ := NewHeader(h.Code, h.Columns, h.EmptyValue)
	return clone
}

// Index resolves a column name to its fixed position, or -1 if absent.
func (h *Header) Index(name string) int {
	if i, ok := h.index[name]; ok {
		return i
	}
	return -1
}

// NumColumns reports the header's declared arity.
func (h *Header) NumColumns() int { return len(h.Columns) }

// CompatibleWith reports schema compatibility per the data model: identical
// separator code, column names, and column order.
func (h *Header) CompatibleWith(o *Header) bool {
	if h.Code != o.Code || len(h.Columns) != len(o.Columns) {
		return false
	}
	for i := range h.Columns {
		if h.Columns[i] != o.Columns[i] {
			return false
		}
	}
	return true
}

// encode renders the header line, omitting the -F flag for CodeDefault.
func (h *Header) encode() string {
	var b strings.Builder
	b.WriteString(HeaderPrefix)
	if h.Code != CodeDefault {
		b.WriteString(" -F")
		b.WriteString(string(h.Code))
	}
	for _, c := range h.Columns {
		b.WriteByte(' ')
		b.WriteString(c)
	}
	return b.String()
}

// parseHeaderLine parses a raw header line into a Header.
func parseHeaderLine(line string) (*Header, error) {
	if !strings.HasPrefix(line, HeaderPrefix) {
		return nil, fmt.Errorf("stream: malformed header: missing %q prefix", HeaderPrefix)
	}
	rest := strings.TrimSpace(line[len(HeaderPrefix):])
	fields := strings.Fields(rest)

	code := CodeDefault
	if len(fields) > 0 && strings.HasPrefix(fields[0], "-F") {
		c, err := ParseCode(strings.TrimPrefix(fields[0], "-F"))
		if err != nil {
			return nil, fmt.Errorf("stream: malformed header: %w", err)
		}
		code = c
		fields = fields[1:]
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("stream: malformed header: no column names")
	}
	return NewHeader(code, fields, DefaultEmptyValue)
}
