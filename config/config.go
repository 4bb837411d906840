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

// Package config loads the engine's process-wide defaults from a config
// file and environment variables, layered over compiled-in defaults.
package config

import (
	"reflect"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// Config aggregates the engine's tunable defaults. Each field is owned by
// the package that consumes it; flags passed to an individual command
// override these at invocation time.
type Config struct {
	Pipe  PipeConfig  `mapstructure:"pipe"`
	Merge MergeConfig `mapstructure:"merge"`
	Sort  SortConfig  `mapstructure:"sort"`
	Join  JoinConfig  `mapstructure:"join"`
	Tmp   TmpConfig   `mapstructure:"tmp"`
}

// PipeConfig controls the bounded in-memory pipe used to connect filters.
type PipeConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// MergeConfig controls the N-way merge driver's parallelism and endgame
// behavior.
type MergeConfig struct {
	Parallelism int  `mapstructure:"parallelism"`
	Endgame     bool `mapstructure:"endgame"`
}

// SortConfig controls external-sort run generation.
type SortConfig struct {
	RunSizeBytes int64 `mapstructure:"run_size_bytes"`
}

// JoinConfig controls merge-join's right-run buffering.
type JoinConfig struct {
	RightRunWarnThreshold int `mapstructure:"right_run_warn_threshold"`
}

// TmpConfig controls where the temp-file manager spills runs.
type TmpConfig struct {
	Dir        string `mapstructure:"dir"`
	EmptyValue string `mapstructure:"empty_value"`
}

// DefaultConfig returns the compiled-in defaults applied before a config
// file or environment variables are layered on.
func DefaultConfig() *Config {
	return &Config{
		Pipe: PipeConfig{Capacity: 2048},
		Merge: MergeConfig{
			Parallelism: runtime.NumCPU(),
			Endgame:     true,
		},
		Sort: SortConfig{RunSizeBytes: 64 << 20},
		Join: JoinConfig{RightRunWarnThreshold: 2000},
		Tmp:  TmpConfig{Dir: "", EmptyValue: "-"},
	}
}

// Load reads configuration from a "config" file in the working directory
// and environment variables, layered over DefaultConfig. Environment
// variables use the prefix "FSDBGO" and the dot character in keys is
// replaced by an underscore: "merge.parallelism" becomes
// "FSDBGO_MERGE_PARALLELISM".
func Load() (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.SetEnvPrefix("FSDBGO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	_ = v.ReadInConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(parts, tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
