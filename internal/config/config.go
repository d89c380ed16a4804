/*
   Copyright The containerd Authors.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

// Package config holds nucleusd's on-disk TOML configuration, mirroring
// the server config layout the teacher carries in
// cmd/containerd/server/config.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the top-level nucleusd configuration file.
type Config struct {
	Version int `toml:"version"`

	// Root names a state directory for nucleusd. Nothing reads it:
	// nucleusd takes its root directory from its --root flag.
	Root string `toml:"root"`

	// NumCPUs bounds the number of per-CPU scheduler slots created at
	// startup; 0 means "one per runtime.NumCPU()".
	NumCPUs int `toml:"num_cpus"`

	// RingSize is informational: the low-stage SPSC ring (core/ring) is
	// always ring.Size (128) slots, and core.New logs a warning and
	// ignores any other non-zero value.
	RingSize int `toml:"ring_size"`

	// MaxSkins records the skin table size. Nothing reads it: the table
	// always holds up to skin.MaxSkins (16) skins.
	MaxSkins int `toml:"max_skins"`

	// XenomaiGID is the supplementary group ID that grants sys_bind
	// access to processes lacking CAP_SYS_NICE (spec.md §6). Nothing reads
	// it: core/bind gates on the caller's InXenomaiGID flag, which the
	// caller supplies.
	XenomaiGID int `toml:"xenomai_gid"`

	// Watchdog configures the primary-mode watchdog (SPEC_FULL item 7).
	Watchdog WatchdogConfig `toml:"watchdog"`

	// Disabled lists skin plugin IDs ("native", "posix", "psos"), mirroring
	// the teacher's DisabledPlugins; Disables reports membership. The skin
	// plugins and nucleusd do not consult it, so every skin plugin is
	// registered regardless.
	Disabled []string `toml:"disabled_skins"`
}

// WatchdogConfig configures core/domain.Watchdog.
type WatchdogConfig struct {
	// Threshold is the longest a thread may run in primary mode without
	// suspending before the watchdog mayday's it. Zero disables the
	// watchdog entirely.
	Threshold toml.Duration `toml:"threshold"`
	// Tick is the watchdog's polling interval.
	Tick toml.Duration `toml:"tick"`
}

// Default returns nucleusd's built-in configuration, used when no config
// file is present and as the base dumped by `nucleusctl config default`.
func Default() *Config {
	return &Config{
		Version:    1,
		Root:       "/var/lib/nucleusd",
		RingSize:   128,
		MaxSkins:   16,
		XenomaiGID: -1,
		Watchdog: WatchdogConfig{
			Threshold: toml.Duration(4 * time.Second),
			Tick:      toml.Duration(500 * time.Millisecond),
		},
	}
}

// Load reads and merges path into cfg, leaving cfg untouched (aside from
// overridden fields) if path does not exist.
func Load(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return nil
}

// ThresholdDuration returns the watchdog threshold as a time.Duration.
func (c *Config) ThresholdDuration() time.Duration { return time.Duration(c.Watchdog.Threshold) }

// TickDuration returns the watchdog poll tick as a time.Duration.
func (c *Config) TickDuration() time.Duration { return time.Duration(c.Watchdog.Tick) }

// Disables reports whether skin id is listed under disabled_skins.
func (c *Config) Disables(id string) bool {
	for _, d := range c.Disabled {
		if d == id {
			return true
		}
	}
	return false
}
