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

package filter

import (
	"os"

	"github.com/cardinalhq/fsdbgo/internal/stream"
)

// FileSource wraps a stream.Reader bound to a file or standard input.
type FileSource struct {
	r *stream.Reader
}

// OpenFileSource opens path for reading, or wraps os.Stdin when path is "-".
func OpenFileSource(path string) (*FileSource, error) {
	var f *os.File
	if path == "-" {
		f = os.Stdin
	} else {
		opened, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		f = opened
	}
	return &FileSource{r: stream.NewReader(f)}, nil
}

func (s *FileSource) Header() (*stream.Header, error) { return s.r.Header() }
func (s *FileSource) Next() (stream.Item, error)      { return s.r.Next() }
func (s *FileSource) Close() error                    { return s.r.Close() }

// FileSink wraps a stream.Writer bound to a file or standard output.
type FileSink struct {
	w *stream.Writer
}

// CreateFileSink creates path for writing (truncating it), or wraps
// os.Stdout when path is "-". header must already reflect the producer's
// schema; use stream.NewWriterFromReader upstream when cloning a schema.
func CreateFileSink(path string, header *stream.Header) (*FileSink, error) {
	var f *os.File
	if path == "-" {
		f = os.Stdout
	} else {
		created, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		f = created
	}
	return &FileSink{w: stream.NewWriter(f, header)}, nil
}

func (s *FileSink) Header() *stream.Header         { return s.w.Header() }
func (s *FileSink) WriteItem(it stream.Item) error { return s.w.WriteItem(it) }
func (s *FileSink) Close() error                   { return s.w.Close() }

var _ Source = (*FileSource)(nil)
var _ Sink = (*FileSink)(nil)
