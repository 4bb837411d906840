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

// Package spill is the on-disk row codec shared by the sort and merge
// components: rows are CBOR-encoded in sequence to a temp file and decoded
// back in the same order. Comments are not carried through a spill file;
// a producer forwards them to the downstream output directly as they are
// seen, rather than buffering them across a spill round-trip.
package spill

import (
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/spf13/afero"

	"github.com/cardinalhq/fsdbgo/internal/filter"
	"github.com/cardinalhq/fsdbgo/internal/stream"
)

// Writer appends rows to an open spill file in CBOR sequence form.
type Writer struct {
	f   afero.File
	enc *cbor.Encoder
	n   int
}

// NewWriter begins writing to f.
func NewWriter(f afero.File) *Writer {
	return &Writer{f: f, enc: cbor.NewEncoder(f)}
}

// WriteRow appends one row.
func (w *Writer) WriteRow(row stream.Row) error {
	if err := w.enc.Encode(row); err != nil {
		return err
	}
	w.n++
	return nil
}

// Len reports how many rows have been written so far.
func (w *Writer) Len() int { return w.n }

// Close flushes and closes the underlying file.
func (w *Writer) Close() error { return w.f.Close() }

// Reader reads rows back from a spill file in write order, implementing
// filter.Source so it can feed directly into a merge or output stage.
type Reader struct {
	f      afero.File
	dec    *cbor.Decoder
	header *stream.Header
}

// OpenReader begins reading rows from f, reporting header for every call
// to Header.
func OpenReader(f afero.File, header *stream.Header) *Reader {
	return &Reader{f: f, dec: cbor.NewDecoder(f), header: header}
}

func (r *Reader) Header() (*stream.Header, error) { return r.header, nil }

// Next decodes the next row, or io.EOF once the file is exhausted.
func (r *Reader) Next() (stream.Item, error) {
	var row stream.Row
	if err := r.dec.Decode(&row); err != nil {
		if err == io.EOF {
			return stream.Item{}, io.EOF
		}
		return stream.Item{}, err
	}
	return stream.Item{Kind: stream.KindRow, Row: row}, nil
}

func (r *Reader) Close() error { return r.f.Close() }

var _ filter.Source = (*Reader)(nil)
