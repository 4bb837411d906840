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

package tempfile

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := New(afero.NewMemMapFs(), "/tmp/fsdbgo-test", "run")
	require.NoError(t, err)
	return m
}

func TestCreateRegistersFile(t *testing.T) {
	m := newTestManager(t)
	f, path, err := m.Create()
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.Equal(t, 1, m.Outstanding())
	require.Contains(t, path, "run-")
}

func TestReleaseRemovesFile(t *testing.T) {
	m := newTestManager(t)
	f, path, err := m.Create()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, m.Release(path))
	require.Equal(t, 0, m.Outstanding())

	exists, err := afero.Exists(m.fs, path)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestCloseRemovesAllOutstanding(t *testing.T) {
	m := newTestManager(t)
	paths := make([]string, 3)
	for i := range paths {
		f, path, err := m.Create()
		require.NoError(t, err)
		require.NoError(t, f.Close())
		paths[i] = path
	}
	require.Equal(t, 3, m.Outstanding())

	require.NoError(t, m.Close())
	require.Equal(t, 0, m.Outstanding())

	for _, p := range paths {
		exists, err := afero.Exists(m.fs, p)
		require.NoError(t, err)
		require.False(t, exists)
	}
}

func TestUniqueNames(t *testing.T) {
	m := newTestManager(t)
	_, p1, err := m.Create()
	require.NoError(t, err)
	_, p2, err := m.Create()
	require.NoError(t, err)
	require.NotEqual(t, p1, p2)
}
