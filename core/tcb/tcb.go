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

// Package tcb defines the thread control block mated to a host-OS task and
// the registry that maps host task identities to their TCB.
package tcb

import (
	"sync/atomic"
	"time"
)

// State is the primary/secondary mode bitmask of a TCB.
type State uint32

const (
	// Relaxed means the thread currently runs under the host scheduler.
	// Absent, the thread runs under the real-time scheduler (primary mode).
	Relaxed State = 1 << iota
	Dormant
	Started
	Suspended
	Held
	Ready
	PendingDelay
	Mapped
	FPEnabled
	Debug
	TrapOnSwitch
)

// Info carries transient signals that do not describe steady-state mode.
type Info uint32

const (
	Kicked Info = 1 << iota
	Broken
	TimedOut
	PrioritySet
	AffinitySet
	// Atomic marks a harden/relax handoff in flight; see Invariant 1 in
	// spec.md §8: Relaxed and Atomic are never simultaneously set while the
	// task is runnable in the primary domain.
	Atomic
)

// Class is the scheduling class a TCB runs under on the real-time side.
type Class int

const (
	ClassOther Class = iota
	ClassFIFO
)

// Stats holds per-TCB lifetime counters. All fields are monotonically
// non-decreasing; the round-trip law in spec.md §8 depends on that.
type Stats struct {
	ModeSwitches    uint64
	ContextSwitches uint64
	PageFaults      uint64
	Syscalls        uint64
	ExecTime        time.Duration
	LastSwitch      time.Time
}

// Handle is a stable 32-bit identity for a TCB, unique for the lifetime of
// the process that owns it.
type Handle uint32

// TCB is one real-time thread mated to exactly one host-OS task. Mutation of
// State, Info, Priority, Class and Affinity must happen with the owning
// scheduler slot's lock (nklock, see core/nklock) held; the atomic fields
// below exist only so lock-free fast-path probes (the user-mode mirror) can
// read a consistent snapshot without contending for nklock.
type TCB struct {
	Handle Handle
	// Magic identifies the skin that owns this TCB; lookups reject a TCB
	// whose Magic does not match the caller's expected skin (§4.1).
	Magic uint32

	state atomic.Uint32
	info  atomic.Uint32

	Priority     int
	BasePriority int
	Class        Class
	Affinity     AffinityMask

	// HostTask is an opaque handle into core/hostif identifying the mated
	// host-OS task. It is never dereferenced here; this package only moves
	// it around.
	HostTask any

	Stats Stats

	// CPU is the scheduler slot this TCB is currently bound to; it must
	// equal the CPU of the RPI queue it is linked on, per Invariant 2.
	CPU int
	// RPILinked reports whether this TCB is currently linked on some CPU's
	// RPI queue; sched.Tracker flips it under that slot's lock.
	RPILinked bool
}

// AffinityMask is a bitset of permitted CPUs, one bit per CPU index.
type AffinityMask uint64

func (m AffinityMask) Has(cpu int) bool { return m&(1<<uint(cpu)) != 0 }

// New creates a dormant TCB mated to no host task yet.
func New(handle Handle, magic uint32, prio int, class Class) *TCB {
	t := &TCB{
		Handle:       handle,
		Magic:        magic,
		Priority:     prio,
		BasePriority: prio,
		Class:        class,
	}
	t.state.Store(uint32(Dormant))
	return t
}

// State returns a snapshot of the state bitmask. Safe to call without
// nklock; it is the primitive the user-mode mirror fast path is built on.
func (t *TCB) State() State { return State(t.state.Load()) }

// SetState overwrites the state bitmask. Callers must hold nklock.
func (t *TCB) SetState(s State) { t.state.Store(uint32(s)) }

// TestState reports whether all bits in mask are set.
func (t *TCB) TestState(mask State) bool { return State(t.state.Load())&mask == mask }

// SetBits ORs bits into the state word. Callers must hold nklock.
func (t *TCB) SetBits(mask State) { t.state.Or(uint32(mask)) }

// ClearBits ANDs bits out of the state word. Callers must hold nklock.
func (t *TCB) ClearBits(mask State) { t.state.And(^uint32(mask)) }

// Info returns a snapshot of the info bitmask.
func (t *TCB) Info() Info { return Info(t.info.Load()) }

// SetInfo overwrites the info bitmask. Callers must hold nklock.
func (t *TCB) SetInfo(i Info) { t.info.Store(uint32(i)) }

func (t *TCB) TestInfo(mask Info) bool { return Info(t.info.Load())&mask == mask }

func (t *TCB) SetInfoBits(mask Info) { t.info.Or(uint32(mask)) }

func (t *TCB) ClearInfoBits(mask Info) { t.info.And(^uint32(mask)) }

// CheckInvariants validates Invariant 1 from spec.md §8. It is cheap enough
// to call from every mode-transition step in debug builds.
func (t *TCB) CheckInvariants() bool {
	s := t.State()
	i := t.Info()
	if s&Relaxed != 0 && i&Atomic != 0 {
		return false
	}
	return true
}
