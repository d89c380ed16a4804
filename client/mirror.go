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

package client

import "sync/atomic"

// Mode is the value stored in a MirrorWord.
type Mode uint32

const (
	ModeRelaxed Mode = iota
	ModePrimary
)

// MirrorWord is the process-shared, lock-free flag backing the user-mode
// mirror (spec.md §3): core/domain writes it on every committed
// transition, Shadow.IsPrimary reads it without ever entering the
// nucleus.
type MirrorWord struct {
	v atomic.Uint32
}

// Load reads the current mode.
func (m *MirrorWord) Load() Mode { return Mode(m.v.Load()) }

// Store publishes a new mode.
func (m *MirrorWord) Store(mode Mode) { m.v.Store(uint32(mode)) }
