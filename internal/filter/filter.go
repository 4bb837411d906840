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

// Package filter defines the common filter lifecycle (configure, setup,
// run, finish) shared by every stream-processing stage, plus the endpoint
// adapters that let a filter's input or output be a file, standard input/
// output, or an in-process pipe.
package filter

import (
	"context"
	"fmt"
	"io"

	"github.com/cardinalhq/fsdbgo/internal/stream"
)

// Source is a readable stream endpoint: a file, stdin, or a pipe.Pipe.
type Source interface {
	Header() (*stream.Header, error)
	Next() (stream.Item, error)
	Close() error
}

// Sink is a writable stream endpoint: a file, stdout, or a pipe.Pipe.
type Sink interface {
	Header() *stream.Header
	WriteItem(stream.Item) error
	Close() error
}

// HeaderSetter is implemented by a Sink whose schema is not fixed at
// construction (a PipeWriter, or any in-memory capture sink) and must
// instead be committed by the producing filter once it knows its own
// output columns, typically during Setup.
type HeaderSetter interface {
	SetHeader(*stream.Header)
}

// Options carries a filter's configuration, resolved from CLI flags or
// programmatic construction.
type Options map[string]string

// Filter is the lifecycle every stage implements: configure once, read the
// input header during setup, stream rows during run, then flush and close.
type Filter interface {
	Configure(ctx context.Context, opts Options) error
	Setup(ctx context.Context) error
	Run(ctx context.Context) error
	Finish(ctx context.Context) error
}

// ConsumptionError reports that a filter exited Run without draining one
// of its inputs to end-of-stream.
type ConsumptionError struct {
	FilterName string
	InputIndex int
}

func (e *ConsumptionError) Error() string {
	return fmt.Sprintf("filter: %s exited without consuming input #%d to end of stream", e.FilterName, e.InputIndex)
}

// trackedSource wraps a Source so the framework can detect an input that
// was never drained to io.EOF.
type trackedSource struct {
	Source
	exhausted bool
}

func (t *trackedSource) Next() (stream.Item, error) {
	it, err := t.Source.Next()
	if err == io.EOF {
		t.exhausted = true
	}
	return it, err
}

// Base provides the common mechanics every concrete filter embeds: comment
// pass-through, the end-of-run consumption check, and the provenance
// comment appended on Finish.
type Base struct {
	// Name identifies this filter in its provenance comment, e.g. "dbsort -k cid".
	Name string
	// SuppressProvenance skips appending the invocation comment on Finish.
	SuppressProvenance bool

	inputs []*trackedSource
	output Sink
}

// NewBase wires inputs and the single output for a filter named name.
func NewBase(name string, inputs []Source, output Sink) *Base {
	tracked := make([]*trackedSource, len(inputs))
	for i, in := range inputs {
		tracked[i] = &trackedSource{Source: in}
	}
	return &Base{Name: name, inputs: tracked, output: output}
}

// Input returns the i'th tracked input source.
func (b *Base) Input(i int) Source { return b.inputs[i] }

// NumInputs reports how many input endpoints were wired.
func (b *Base) NumInputs() int { return len(b.inputs) }

// Output returns the filter's single output sink.
func (b *Base) Output() Sink { return b.output }

// PassComment forwards a comment item to the output unchanged. Terminal
// sinks that do not produce a stream of their own skip this.
func (b *Base) PassComment(it stream.Item) error {
	if it.Kind != stream.KindComment {
		return fmt.Errorf("filter: PassComment called with a non-comment item")
	}
	return b.output.WriteItem(it)
}

// CheckFullyConsumed returns a ConsumptionError for the first input that
// was never read to end-of-stream.
func (b *Base) CheckFullyConsumed() error {
	for i, in := range b.inputs {
		if !in.exhausted {
			return &ConsumptionError{FilterName: b.Name, InputIndex: i}
		}
	}
	return nil
}

// Finish checks input consumption, appends the provenance comment unless
// suppressed, then closes the output. Concrete filters call this after
// their own Run-specific teardown.
func (b *Base) Finish(ctx context.Context) error {
	if err := b.CheckFullyConsumed(); err != nil {
		return err
	}
	if !b.SuppressProvenance && b.output != nil {
		if err := b.output.WriteItem(stream.Item{
			Kind:    stream.KindComment,
			Comment: stream.Comment("# | " + b.Name),
		}); err != nil {
			return err
		}
	}
	if b.output != nil {
		return b.output.Close()
	}
	return nil
}
