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

package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"go.uber.org/automaxprocs/maxprocs"

	"github.com/cardinalhq/fsdbgo/cmd"
)

func simpleLogger(msg string, args ...any) {
	fmt.Fprintf(os.Stderr, msg+"\n", args...)
}

func init() {
	_, err := maxprocs.Set(maxprocs.Logger(simpleLogger))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set maxprocs using package go.uber.org/automaxprocs/maxprocs: %v\n", err)
	}
}

func main() {
	if tmp := os.Getenv("TMPDIR"); tmp == "" {
		tmp = filepath.Join(os.TempDir(), "fsdbgo")
		if err := os.MkdirAll(tmp, 0755); err != nil {
			slog.Error("failed to create default temp dir (ignoring)", slog.String("path", tmp), slog.Any("error", err))
		} else if err := os.Setenv("TMPDIR", tmp); err != nil {
			slog.Error("failed to set TMPDIR environment variable", slog.String("path", tmp), slog.Any("error", err))
		}
	}

	cmd.Execute()
}
