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

// Package ppd implements the per-process descriptor lifecycle of spec.md
// §3 ("Per-Process Descriptor (PPD)") and §4.7.
package ppd

import (
	"sync"

	"github.com/moby/locker"
	"golang.org/x/sync/singleflight"

	"github.com/xenocore/nucleus/core/mayday"
	"github.com/xenocore/nucleus/core/skin"
)

// SysSkinID is the muxid of the root "sys" skin; its PPD owns the
// per-process shared heap used by every other skin's fast IPC path
// (spec.md §4.7).
const SysSkinID = 0

// Descriptor is one (process, skin) PPD.
type Descriptor struct {
	Owner  any // the process identity ("mm")
	MuxID  int
	State  any // opaque per-skin state returned by EventCB.Attach
	refs   int
	parent *Descriptor // the sys-PPD this one depends on, nil for sys itself
}

// Key identifies a PPD by (owner, muxid).
type Key struct {
	Owner any
	MuxID int
}

// Table is the process-wide PPD hash table (spec.md §3: "indexed by a hash
// keyed on (process-mm, skin-id) and stored in contiguously descending-id
// buckets so all PPDs of one process can be swept in one lookup").
type Table struct {
	mu      sync.Mutex
	byKey   map[Key]*Descriptor
	byOwner map[any][]*Descriptor // kept sorted by descending MuxID

	locks *locker.Locker // per-owner attach/detach serialization
	group singleflight.Group

	Skins *skin.Registry
	Page  *mayday.Page
	Heaps *mayday.Device
}

// NewTable returns an empty PPD table.
func NewTable(skins *skin.Registry, page *mayday.Page, heaps *mayday.Device) *Table {
	return &Table{
		byKey:   make(map[Key]*Descriptor),
		byOwner: make(map[any][]*Descriptor),
		locks:   locker.New(),
		Skins:   skins,
		Page:    page,
		Heaps:   heaps,
	}
}

// Lookup returns the PPD for (owner, muxid), or nil.
func (t *Table) Lookup(owner any, muxid int) *Descriptor {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byKey[Key{owner, muxid}]
}

// SysPPD returns owner's root PPD, or nil if it has never bound anything.
func (t *Table) SysPPD(owner any) *Descriptor {
	return t.Lookup(owner, SysSkinID)
}
