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

// Package stream implements the self-describing flat-text stream format:
// a header line declaring the field separator and column names, followed
// by data rows and comment lines.
package stream

import (
	"fmt"
	"strings"
)

// Code identifies one of the enumerated field-separator codes.
type Code string

const (
	// CodeDefault is the absent separator code: whitespace-collapsed on
	// read, single tab on write.
	CodeDefault Code = ""
	// CodeTab is a single tab, read and written strictly (no collapsing).
	CodeTab Code = "D"
	// CodeSpace is a single literal space.
	CodeSpace Code = "S"
	// CodeSpaceRun reads one-or-more spaces, writes a single space.
	CodeSpaceRun Code = "s"
	// CodeLiteralTab behaves like CodeTab; kept distinct for round-tripping
	// streams that were written with an explicit "t" rather than "D".
	CodeLiteralTab Code = "t"
	// CodeComma is a literal comma (CSV-like, no quoting).
	CodeComma Code = "C"
	// CodeAnyWhitespace reads any run of whitespace; read-only.
	CodeAnyWhitespace Code = "W"
)

// collapsing reports whether fields are split on a run of the separator
// character (true) rather than on exactly one occurrence (false).
func (c Code) collapsing() bool {
	switch c {
	case CodeDefault, CodeSpaceRun, CodeAnyWhitespace:
		return true
	default:
		return false
	}
}

// isWhitespace reports whether the separator character is whitespace.
func (c Code) isWhitespace() bool {
	switch c {
	case CodeDefault, CodeSpace, CodeSpaceRun, CodeTab, CodeLiteralTab, CodeAnyWhitespace:
		return true
	default:
		return false
	}
}

// writeByte returns the literal byte written between fields.
func (c Code) writeByte() byte {
	switch c {
	case CodeSpace, CodeSpaceRun, CodeAnyWhitespace:
		return ' '
	case CodeComma:
		return ','
	default:
		return '\t'
	}
}

// readIsSpace reports whether b is a split character for this code when
// reading. CodeDefault and CodeAnyWhitespace split on space or tab; the
// others split on their own literal byte.
func (c Code) readIsSpace(b byte) bool {
	switch c {
	case CodeDefault, CodeAnyWhitespace:
		return b == ' ' || b == '\t'
	case CodeSpace, CodeSpaceRun:
		return b == ' '
	case CodeComma:
		return b == ','
	default:
		return b == '\t'
	}
}

// ParseCode validates a separator-code token from a header line.
func ParseCode(s string) (Code, error) {
	switch Code(s) {
	case CodeDefault, CodeTab, CodeSpace, CodeSpaceRun, CodeLiteralTab, CodeComma, CodeAnyWhitespace:
		return Code(s), nil
	default:
		return "", fmt.Errorf("stream: unknown separator code %q", s)
	}
}

// splitFields tokenizes a row line according to the code's read rules.
func splitFields(line string, code Code) []string {
	if !code.collapsing() {
		return strings.Split(line, string(code.writeByte()))
	}
	var fields []string
	start := -1
	for i := 0; i < len(line); i++ {
		if code.readIsSpace(line[i]) {
			if start >= 0 {
				fields = append(fields, line[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		fields = append(fields, line[start:])
	}
	return fields
}

// joinFields assembles a row line for write, safing each field first.
func joinFields(fields []string, code Code, emptyValue string) string {
	safe := make([]string, len(fields))
	for i, f := range fields {
		safe[i] = sanitizeField(f, code, emptyValue)
	}
	sep := string(code.writeByte())
	return strings.Join(safe, sep)
}

// sanitizeField replaces runs of the write separator character appearing
// inside a field value with emptyValue, preserving row arity on the wire.
// Whitespace-collapsing codes additionally safe any inner whitespace run,
// since a literal space would otherwise be swallowed by the reader.
func sanitizeField(field string, code Code, emptyValue string) string {
	if field == "" {
		return emptyValue
	}
	wb := code.writeByte()
	needsSafety := strings.IndexByte(field, wb) >= 0
	if code.collapsing() && !needsSafety {
		for i := 0; i < len(field); i++ {
			if field[i] == ' ' || field[i] == '\t' {
				needsSafety = true
				break
			}
		}
	}
	if !needsSafety {
		return field
	}
	var b strings.Builder
	b.Grow(len(field))
	runStart := -1
	isSep := func(c byte) bool {
		if c == wb {
			return true
		}
		return code.collapsing() && (c == ' ' || c == '\t')
	}
	for i := 0; i < len(field); i++ {
		if isSep(field[i]) {
			if runStart < 0 {
				runStart = i
			}
			continue
		}
		if runStart >= 0 {
			b.WriteString(emptyValue)
			runStart = -1
		}
		b.WriteByte(field[i])
	}
	if runStart >= 0 {
		b.WriteString(emptyValue)
	}
	return b.String()
}
