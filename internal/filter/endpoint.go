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
	"context"
	"sync"

	"github.com/cardinalhq/fsdbgo/internal/pipe"
	"github.com/cardinalhq/fsdbgo/internal/stream"
)

// pipeCore is the state shared by one pipe's producer (PipeWriter) and
// consumer (PipeReader): the bounded FIFO itself, plus a one-shot header
// handoff so the consumer's Setup can commit the schema the producer chose.
type pipeCore struct {
	p        *pipe.Pipe
	headerCh chan *stream.Header
	once     sync.Once

	mu     sync.Mutex
	header *stream.Header
}

func newPipeCore(capacity int) *pipeCore {
	return &pipeCore{p: pipe.New(capacity), headerCh: make(chan *stream.Header, 1)}
}

func (c *pipeCore) setHeader(h *stream.Header) {
	c.once.Do(func() { c.headerCh <- h })
}

func (c *pipeCore) waitHeader() *stream.Header {
	c.mu.Lock()
	if c.header != nil {
		h := c.header
		c.mu.Unlock()
		return h
	}
	c.mu.Unlock()

	h := <-c.headerCh
	c.headerCh <- h // leave available for any other waiter

	c.mu.Lock()
	c.header = h
	c.mu.Unlock()
	return h
}

// PipeWriter is a filter's output endpoint when connected to an in-process
// pipe rather than a file.
type PipeWriter struct{ core *pipeCore }

// SetHeader commits this pipe's schema; the first call wins.
func (w *PipeWriter) SetHeader(h *stream.Header) { w.core.setHeader(h) }

// Header returns the schema committed via SetHeader, blocking if necessary.
func (w *PipeWriter) Header() *stream.Header { return w.core.waitHeader() }

// WriteItem enqueues it with back-pressure, blocking while the pipe is full.
func (w *PipeWriter) WriteItem(it stream.Item) error {
	return w.core.p.Enqueue(context.Background(), it)
}

// WriteItemContext is WriteItem with explicit cancellation.
func (w *PipeWriter) WriteItemContext(ctx context.Context, it stream.Item) error {
	return w.core.p.Enqueue(ctx, it)
}

// Close signals end-of-stream to the reader.
func (w *PipeWriter) Close() error {
	w.core.p.CloseWrite()
	return nil
}

// PipeReader is a filter's input endpoint when connected to an in-process
// pipe rather than a file.
type PipeReader struct{ core *pipeCore }

// Header blocks until the producer commits a schema, then returns it.
func (r *PipeReader) Header() (*stream.Header, error) { return r.core.waitHeader(), nil }

// Next dequeues the next item, blocking while the pipe is empty and open.
func (r *PipeReader) Next() (stream.Item, error) {
	return r.core.p.Dequeue(context.Background())
}

// NextContext is Next with explicit cancellation.
func (r *PipeReader) NextContext(ctx context.Context) (stream.Item, error) {
	return r.core.p.Dequeue(ctx)
}

// Close tells a still-writing producer that nobody will read further.
func (r *PipeReader) Close() error {
	r.core.p.CloseRead()
	return nil
}

// Pending reports the number of items currently buffered.
func (r *PipeReader) Pending() int { return r.core.p.Pending() }

// NewPipe creates one bounded pipe and returns its two endpoints: the
// writer a producer filter's output is wired to, and the reader a consumer
// filter's input is wired to.
func NewPipe(capacity int) (*PipeWriter, *PipeReader) {
	core := newPipeCore(capacity)
	return &PipeWriter{core: core}, &PipeReader{core: core}
}

var _ Source = (*PipeReader)(nil)
var _ Sink = (*PipeWriter)(nil)
var _ HeaderSetter = (*PipeWriter)(nil)
