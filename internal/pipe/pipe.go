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

// Package pipe implements the bounded, thread-safe FIFO that connects
// filter stages within one process, carrying stream items with back-pressure.
package pipe

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/cardinalhq/fsdbgo/internal/stream"
)

// DefaultCapacity is the process-wide default pipe capacity.
const DefaultCapacity = 2048

// ErrBrokenPipe is returned by Enqueue once the reading side has gone away,
// and the writer is expected to still have more to deliver.
var ErrBrokenPipe = errors.New("pipe: broken pipe")

// Pipe is a fixed-capacity FIFO of stream.Item values shared by exactly one
// writer and one reader. A value enqueued is owned by the pipe from that
// point on; producers must clone rows they intend to keep mutating.
type Pipe struct {
	ch       chan stream.Item
	closed   atomic.Bool
	closeErr atomic.Bool
	once     sync.Once
}

// New creates a pipe with the given capacity. A non-positive capacity uses
// DefaultCapacity.
func New(capacity int) *Pipe {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Pipe{ch: make(chan stream.Item, capacity)}
}

// Enqueue blocks while the pipe is at capacity, delivering it once room is
// available. It returns ErrBrokenPipe if the reader side closed first via
// CloseRead, and ctx.Err() if ctx is cancelled first.
func (p *Pipe) Enqueue(ctx context.Context, it stream.Item) error {
	if p.closed.Load() {
		return ErrBrokenPipe
	}
	select {
	case p.ch <- it:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CloseWrite signals end-of-stream: subsequent Dequeue calls drain whatever
// remains buffered, then return io.EOF. Idempotent.
func (p *Pipe) CloseWrite() {
	p.once.Do(func() { close(p.ch) })
}

// CloseRead tells a still-writing producer that nobody will read further.
// A subsequent Enqueue observes ErrBrokenPipe instead of blocking forever.
func (p *Pipe) CloseRead() {
	p.closed.Store(true)
}

// Dequeue blocks while the pipe is empty and open, returning io.EOF once
// the write side has closed and all buffered items are drained.
func (p *Pipe) Dequeue(ctx context.Context) (stream.Item, error) {
	select {
	case it, ok := <-p.ch:
		if !ok {
			return stream.Item{}, io.EOF
		}
		return it, nil
	case <-ctx.Done():
		return stream.Item{}, ctx.Err()
	}
}

// TryDequeue is the non-blocking form of Dequeue: ok is false if the pipe
// is currently empty (but still open).
func (p *Pipe) TryDequeue() (it stream.Item, eof bool, ok bool) {
	select {
	case v, open := <-p.ch:
		if !open {
			return stream.Item{}, true, false
		}
		return v, false, true
	default:
		return stream.Item{}, false, false
	}
}

// Pending reports the number of items currently buffered.
func (p *Pipe) Pending() int {
	return len(p.ch)
}

// Capacity reports the pipe's fixed capacity.
func (p *Pipe) Capacity() int {
	return cap(p.ch)
}
