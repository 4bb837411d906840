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

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/cardinalhq/fsdbgo/internal/filter"
	"github.com/cardinalhq/fsdbgo/internal/keyspec"
	"github.com/cardinalhq/fsdbgo/internal/stream"
)

// openInputs opens every path in order ("-" meaning stdin) as a
// filter.Source. The caller closes each once done.
func openInputs(paths []string) ([]filter.Source, error) {
	if len(paths) == 0 {
		paths = []string{"-"}
	}
	sources := make([]filter.Source, 0, len(paths))
	for _, p := range paths {
		if p == "-" {
			sources = append(sources, stream.NewReader(os.Stdin))
			continue
		}
		f, err := os.Open(p)
		if err != nil {
			return nil, fmt.Errorf("cmd: cannot open input %q: %w", p, err)
		}
		sources = append(sources, stream.NewReader(f))
	}
	return sources, nil
}

// openOutputWriter opens path ("-" meaning stdout) as a raw writer; the
// stream header, and hence the stream.Writer wrapping it, is not known
// until the command resolves its final schema.
func openOutputWriter(path string) (io.WriteCloser, error) {
	if path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("cmd: cannot create output %q: %w", path, err)
	}
	return f, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// resolveTmpDir falls back to the process's default temp directory when
// neither -T nor config.Tmp.Dir names one.
func resolveTmpDir(dir string) string {
	if dir != "" {
		return dir
	}
	return os.TempDir()
}

// parseKeySpec reads an argument list of column names interspersed with
// -n/-N/-r/-R flags (numeric/lexical, descending/ascending) and builds the
// keyspec.Spec they describe. Flags apply to every column name that
// follows until overridden; the initial state is lexical ascending.
func parseKeySpec(args []string) (keyspec.Spec, error) {
	cmp := keyspec.Lexical
	desc := false
	var fields []keyspec.Field

	for _, a := range args {
		switch a {
		case "-n":
			cmp = keyspec.Numeric
		case "-N":
			cmp = keyspec.Lexical
		case "-r":
			desc = true
		case "-R":
			desc = false
		default:
			fields = append(fields, keyspec.Field{Column: a, Comparator: cmp, Descending: desc})
		}
	}
	if len(fields) == 0 {
		return keyspec.Spec{}, fmt.Errorf("cmd: no key columns given")
	}
	return keyspec.New(fields...), nil
}
