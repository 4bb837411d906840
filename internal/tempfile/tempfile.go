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

// Package tempfile allocates uniquely named spill files under a chosen
// directory and guarantees their removal on normal exit or a fatal signal.
package tempfile

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// Manager tracks every spill file it has allocated and removes them all on
// Close, or on receipt of SIGHUP/SIGINT/SIGTERM once WatchSignals has been
// called.
type Manager struct {
	fs     afero.Fs
	dir    string
	prefix string

	mu    sync.Mutex
	files map[string]struct{}

	sigCh  chan os.Signal
	stopCh chan struct{}
}

// New creates a manager allocating files under dir using fs (afero.NewOsFs()
// in production, afero.NewMemMapFs() in tests). prefix names every file it
// creates, e.g. "fsdbgo-sort".
func New(fs afero.Fs, dir, prefix string) (*Manager, error) {
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("tempfile: cannot use directory %q: %w", dir, err)
	}
	return &Manager{fs: fs, dir: dir, prefix: prefix, files: make(map[string]struct{})}, nil
}

// Create allocates a new uniquely named file and registers it.
func (m *Manager) Create() (afero.File, string, error) {
	name := fmt.Sprintf("%s-%s.tmp", m.prefix, uuid.NewString())
	path := m.dir + string(os.PathSeparator) + name
	f, err := m.fs.Create(path)
	if err != nil {
		return nil, "", fmt.Errorf("tempfile: create %q: %w", path, err)
	}
	m.mu.Lock()
	m.files[path] = struct{}{}
	m.mu.Unlock()
	return f, path, nil
}

// Reopen opens an already-created, already-closed spill file for reading.
// The file remains registered; the caller releases it through Release (or
// lets Close reclaim it) once done reading.
func (m *Manager) Reopen(path string) (afero.File, error) {
	return m.fs.Open(path)
}

// Release removes one entry from the registry and deletes its file.
func (m *Manager) Release(path string) error {
	m.mu.Lock()
	_, ok := m.files[path]
	delete(m.files, path)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return m.fs.Remove(path)
}

// WatchSignals installs a handler that drains the registry on SIGHUP,
// SIGINT, or SIGTERM and then exits the process with status 1. Returns a
// function that stops watching.
func (m *Manager) WatchSignals() (stop func()) {
	m.sigCh = make(chan os.Signal, 1)
	m.stopCh = make(chan struct{})
	signal.Notify(m.sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-m.sigCh:
			m.Close()
			os.Exit(1)
		case <-m.stopCh:
		}
	}()

	return func() {
		signal.Stop(m.sigCh)
		close(m.stopCh)
	}
}

// Close removes every outstanding file still in the registry.
func (m *Manager) Close() error {
	m.mu.Lock()
	paths := make([]string, 0, len(m.files))
	for p := range m.files {
		paths = append(paths, p)
	}
	m.files = make(map[string]struct{})
	m.mu.Unlock()

	var firstErr error
	for _, p := range paths {
		if err := m.fs.Remove(p); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Outstanding reports how many files remain registered, used by tests.
func (m *Manager) Outstanding() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}
