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
	"bufio"
	"fmt"
	"io"
)

// Writer emits Items in the flat-text stream format. The header line is
// written automatically before the first row or comment, or on Flush.
type Writer struct {
	bw          *bufio.Writer
	header      *Header
	wroteHeader bool
	closer      io.Closer
}

// NewWriter wraps w as a stream Writer bound to header.
func NewWriter(w io.Writer, header *Header) *Writer {
	wr := &Writer{bw: bufio.NewWriter(w), header: header}
	if c, ok := w.(io.Closer); ok {
		wr.closer = c
	}
	return wr
}

// NewWriterFromReader clones r's header to guarantee schema compatibility
// between an input stream and a filter's output.
func NewWriterFromReader(w io.Writer, r *Reader) (*Writer, error) {
	h, err := r.Header()
	if err != nil {
		return nil, err
	}
	return NewWriter(w, h.Clone()), nil
}

// Header returns the schema this writer was constructed with.
func (w *Writer) Header() *Header { return w.header }

// WriteHeader emits the header line. Called automatically by WriteRow and
// WriteComment if not already done.
func (w *Writer) WriteHeader() error {
	if w.wroteHeader {
		return nil
	}
	if _, err := w.bw.WriteString(w.header.encode()); err != nil {
		return err
	}
	if err := w.bw.WriteByte('\n'); err != nil {
		return err
	}
	w.wroteHeader = true
	return nil
}

// WriteRow emits one data row, failing if its arity disagrees with the header.
func (w *Writer) WriteRow(row Row) error {
	if len(row) != w.header.NumColumns() {
		return fmt.Errorf("stream: row has %d fields, header declares %d", len(row), w.header.NumColumns())
	}
	if err := w.WriteHeader(); err != nil {
		return err
	}
	if _, err := w.bw.WriteString(joinFields(row, w.header.Code, w.header.EmptyValue)); err != nil {
		return err
	}
	return w.bw.WriteByte('\n')
}

// WriteComment emits a verbatim comment line, prefixing it if the caller
// omitted CommentPrefix.
func (w *Writer) WriteComment(c Comment) error {
	if err := w.WriteHeader(); err != nil {
		return err
	}
	line := string(c)
	if len(line) == 0 || line[0] != CommentPrefix[0] {
		line = CommentPrefix + " " + line
	}
	if _, err := w.bw.WriteString(line); err != nil {
		return err
	}
	return w.bw.WriteByte('\n')
}

// WriteItem dispatches to WriteRow or WriteComment based on Kind.
func (w *Writer) WriteItem(it Item) error {
	switch it.Kind {
	case KindRow:
		return w.WriteRow(it.Row)
	case KindComment:
		return w.WriteComment(it.Comment)
	default:
		return fmt.Errorf("stream: unknown item kind %d", it.Kind)
	}
}

// Flush pushes buffered bytes to the underlying writer without closing it.
func (w *Writer) Flush() error {
	if err := w.WriteHeader(); err != nil {
		return err
	}
	return w.bw.Flush()
}

// Close flushes and, if the underlying writer is closeable, closes it.
func (w *Writer) Close() error {
	if err := w.Flush(); err != nil {
		return err
	}
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}
