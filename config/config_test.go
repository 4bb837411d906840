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

package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 2048, cfg.Pipe.Capacity)
	require.True(t, cfg.Merge.Endgame)
	require.Equal(t, "-", cfg.Tmp.EmptyValue)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("FSDBGO_MERGE_PARALLELISM", "7")
	t.Setenv("FSDBGO_MERGE_ENDGAME", "false")
	t.Setenv("FSDBGO_PIPE_CAPACITY", "512")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, 7, cfg.Merge.Parallelism)
	require.False(t, cfg.Merge.Endgame)
	require.Equal(t, 512, cfg.Pipe.Capacity)
}

func TestLoadTmpAndJoinOverride(t *testing.T) {
	t.Setenv("FSDBGO_TMP_DIR", "/var/tmp/fsdbgo")
	t.Setenv("FSDBGO_TMP_EMPTY_VALUE", "NULL")
	t.Setenv("FSDBGO_JOIN_RIGHT_RUN_WARN_THRESHOLD", "5000")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "/var/tmp/fsdbgo", cfg.Tmp.Dir)
	require.Equal(t, "NULL", cfg.Tmp.EmptyValue)
	require.Equal(t, 5000, cfg.Join.RightRunWarnThreshold)
}
