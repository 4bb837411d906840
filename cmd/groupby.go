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
	"context"
	"fmt"
	"io"
	"os/exec"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/cardinalhq/fsdbgo/internal/filter"
	"github.com/cardinalhq/fsdbgo/internal/groupby"
	"github.com/cardinalhq/fsdbgo/internal/groupby/reducers"
	"github.com/cardinalhq/fsdbgo/internal/keyspec"
	"github.com/cardinalhq/fsdbgo/internal/sortrun"
	"github.com/cardinalhq/fsdbgo/internal/stream"
	"github.com/cardinalhq/fsdbgo/internal/tempfile"
)

var (
	groupByKeys      []string
	groupByPreSorted bool
	groupByAware     bool
	groupByPassKey   bool
	groupByCode      string
	groupByColumn    string
	groupByExecFile  string
	groupByTmpDir    string
)

var groupByCmd = &cobra.Command{
	Use:   "groupby",
	Short: "Segment a stream by a key and run a reducer over each group",
	RunE:  runGroupBy,
}

func init() {
	groupByCmd.Flags().StringArrayVarP(&groupByKeys, "key", "k", nil, "group key column (repeatable, in priority order)")
	groupByCmd.Flags().BoolVarP(&groupByPreSorted, "presorted", "S", false, "input is already grouped by the key; skip the internal sort")
	groupByCmd.Flags().BoolVarP(&groupByAware, "group-aware", "M", false, "the reducer observes group boundaries itself; run it once over the whole stream")
	groupByCmd.Flags().BoolVarP(&groupByPassKey, "pass-key", "K", false, "pass the current group's key to an external reducer (-f)")
	groupByCmd.Flags().StringVarP(&groupByCode, "code", "C", "", "built-in in-process reducer: count|sum|mean")
	groupByCmd.Flags().StringVar(&groupByColumn, "column", "", "numeric column aggregated by sum/mean")
	groupByCmd.Flags().StringVarP(&groupByExecFile, "reducer", "f", "", "external reducer filter binary")
	groupByCmd.Flags().StringVarP(&groupByTmpDir, "tmp-dir", "T", "", "temp directory for the internal presort (default: $TMPDIR)")
}

func runGroupBy(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if len(groupByKeys) == 0 {
		return fmt.Errorf("groupby: at least one -k KEY is required")
	}
	fields := make([]keyspec.Field, len(groupByKeys))
	for i, k := range groupByKeys {
		fields[i] = keyspec.Field{Column: k}
	}
	key := keyspec.New(fields...)

	if (groupByCode == "") == (groupByExecFile == "") {
		return fmt.Errorf("groupby: exactly one of -C CODE or -f FILE is required")
	}

	var factory groupby.ReducerFactory
	if groupByCode != "" {
		factory, err = reducers.Factory(reducers.Code(groupByCode), groupByColumn)
		if err != nil {
			return err
		}
	} else {
		factory = newExecReducerFactory(groupByExecFile, args, groupByPassKey)
	}

	if len(inputPaths) > 1 {
		return fmt.Errorf("groupby: exactly one input expected, got %d", len(inputPaths))
	}
	sources, err := openInputs(inputPaths)
	if err != nil {
		return err
	}
	in := sources[0]
	defer in.Close()

	wc, err := openOutputWriter(outputPath)
	if err != nil {
		return err
	}
	defer wc.Close()
	out := &headerCommitWriter{wc: wc}
	defer out.Close()

	mode := groupby.GroupIgnorant
	if groupByAware {
		mode = groupby.GroupAware
	}

	d := &groupby.Driver{
		Key:          key,
		Mode:         mode,
		PreSorted:    groupByPreSorted,
		Factory:      factory,
		PipeCapacity: cfg.Pipe.Capacity,
	}

	if !groupByPreSorted && mode == groupby.GroupIgnorant {
		tmpDir := groupByTmpDir
		if tmpDir == "" {
			tmpDir = cfg.Tmp.Dir
		}
		tmp, err := tempfile.New(afero.NewOsFs(), resolveTmpDir(tmpDir), "fsdbgo-groupby")
		if err != nil {
			return err
		}
		defer tmp.Close()
		d.Sort = sortrun.NewSorter(key, tmp)
	}

	return d.Run(cmd.Context(), in, out)
}

// headerCommitWriter defers building the stream.Writer until the driver
// commits the group-by output's schema (via filter.HeaderSetter), since
// that schema is not known until the first group's reducer declares it.
type headerCommitWriter struct {
	wc io.WriteCloser
	w  *stream.Writer
}

func (h *headerCommitWriter) Header() *stream.Header {
	if h.w == nil {
		return nil
	}
	return h.w.Header()
}

func (h *headerCommitWriter) SetHeader(hd *stream.Header) {
	h.w = stream.NewWriter(h.wc, hd)
}

func (h *headerCommitWriter) WriteItem(it stream.Item) error {
	if h.w == nil {
		return fmt.Errorf("groupby: output schema was never committed before the first write")
	}
	return h.w.WriteItem(it)
}

func (h *headerCommitWriter) Close() error {
	if h.w == nil {
		return nil
	}
	return h.w.Close()
}

var (
	_ filter.Sink         = (*headerCommitWriter)(nil)
	_ filter.HeaderSetter = (*headerCommitWriter)(nil)
)

// execReducer runs an external filter binary as a group's reducer,
// piping the group's rows to its stdin and reading its output from
// stdout, exactly as any two fsdbgo-family tools compose in a shell
// pipeline.
type execReducer struct {
	*filter.Base
	path    string
	extra   []string
	key     stream.Row
	passKey bool
}

func newExecReducerFactory(path string, extra []string, passKey bool) groupby.ReducerFactory {
	return func(key stream.Row, in filter.Source, out filter.Sink) filter.Filter {
		return &execReducer{
			Base:    filter.NewBase("exec:"+path, []filter.Source{in}, out),
			path:    path,
			extra:   extra,
			key:     key,
			passKey: passKey,
		}
	}
}

func (e *execReducer) Configure(context.Context, filter.Options) error { return nil }
func (e *execReducer) Setup(context.Context) error                     { return nil }

func (e *execReducer) Run(ctx context.Context) error {
	args := append([]string(nil), e.extra...)
	if e.passKey {
		args = append(args, []string(e.key)...)
	}

	c := exec.CommandContext(ctx, e.path, args...)
	stdin, err := c.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := c.StdoutPipe()
	if err != nil {
		return err
	}
	if err := c.Start(); err != nil {
		return err
	}

	writeErrCh := make(chan error, 1)
	go func() {
		writeErrCh <- e.feedStdin(stdin)
	}()

	readErr := e.drainStdout(stdout)
	writeErr := <-writeErrCh
	waitErr := c.Wait()

	if writeErr != nil {
		return fmt.Errorf("groupby: writing to reducer %q: %w", e.path, writeErr)
	}
	if readErr != nil {
		return fmt.Errorf("groupby: reading from reducer %q: %w", e.path, readErr)
	}
	if waitErr != nil {
		return fmt.Errorf("groupby: reducer %q: %w", e.path, waitErr)
	}
	return nil
}

func (e *execReducer) feedStdin(w io.WriteCloser) error {
	defer w.Close()
	header, err := e.Input(0).Header()
	if err != nil {
		return err
	}
	sw := stream.NewWriter(w, header.Clone())
	for {
		it, err := e.Input(0).Next()
		if err == io.EOF {
			return sw.Flush()
		}
		if err != nil {
			return err
		}
		if err := sw.WriteItem(it); err != nil {
			return err
		}
	}
}

func (e *execReducer) drainStdout(r io.Reader) error {
	sr := stream.NewReader(r)
	h, err := sr.Header()
	if err != nil {
		return err
	}
	if hs, ok := e.Output().(filter.HeaderSetter); ok {
		hs.SetHeader(h)
	}
	for {
		it, err := sr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := e.Output().WriteItem(it); err != nil {
			return err
		}
	}
}

func (e *execReducer) Finish(ctx context.Context) error { return e.Base.Finish(ctx) }

var _ filter.Filter = (*execReducer)(nil)
