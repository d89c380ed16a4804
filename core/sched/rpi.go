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

package sched

import (
	"container/heap"

	"github.com/containerd/log"

	"github.com/xenocore/nucleus/core/hostif"
	"github.com/xenocore/nucleus/core/tcb"
)

// RPIOff is the TCB state bit that opts a thread out of RPI boosting.
// It is not one of the bits in package tcb because it is sched-internal
// vocabulary layered on top of the TCB state word; callers set it with
// t.SetBits(RPIOff).
const RPIOff tcb.State = 1 << 30

// Tracker implements the RPI operations of spec.md §4.4 across every CPU
// slot in the system.
type Tracker struct {
	slots []*Slot
}

// NewTracker returns a Tracker over the given, CPU-index-ordered slots.
func NewTracker(slots []*Slot) *Tracker {
	return &Tracker{slots: slots}
}

func (t *Tracker) slot(cpu int) *Slot { return t.slots[cpu] }

// eligible reports whether a TCB can ever be RPI-boosted: it must be
// SCHED_FIFO class and must not have opted out.
func eligible(c *tcb.TCB) bool {
	return c.Class == tcb.ClassFIFO && !c.TestState(RPIOff)
}

// Push inserts c into cpu's RPI queue (§4.4 "push"). Ineligible threads are
// silently not enqueued, matching the source's "root reverts to idle"
// behavior for SCHED_OTHER or RPI-off threads.
func (t *Tracker) Push(cpu int, c *tcb.TCB) {
	if !eligible(c) {
		return
	}
	s := t.slot(cpu)
	s.mu.Lock()
	heap.Push(&s.rpiQueue, c)
	c.RPILinked = true
	c.CPU = cpu
	s.mu.Unlock()
	t.refresh(s)
}

// Pop removes c from whatever CPU queue it is linked on (§4.4 "pop"). If
// the queue becomes empty, the root surrogate reverts to idle priority.
func (t *Tracker) Pop(c *tcb.TCB) {
	if !c.RPILinked {
		return
	}
	s := t.slot(c.CPU)
	s.mu.Lock()
	removeFromHeap(&s.rpiQueue, c)
	c.RPILinked = false
	s.mu.Unlock()
	t.refresh(s)
}

// Update re-sorts cpu's queue after c's priority changed in place (§4.4
// "update").
func (t *Tracker) Update(c *tcb.TCB) {
	if !c.RPILinked {
		return
	}
	s := t.slot(c.CPU)
	s.mu.Lock()
	for i, cand := range s.rpiQueue {
		if cand == c {
			heap.Fix(&s.rpiQueue, i)
			break
		}
	}
	s.mu.Unlock()
	t.refresh(s)
}

// Switch is invoked from the host scheduler tail (§4.4 "switch"): prev is
// the task being descheduled, next is the task about to run, both may be
// nil. atomicInFlight reports whether prev is mid harden/relax handoff, in
// which case it must not be popped (it is not really "blocked", it is
// migrating).
func (t *Tracker) Switch(cpu int, prev, next *tcb.TCB, atomicInFlight bool) {
	if prev != nil && prev.TestState(tcb.Relaxed) && !atomicInFlight {
		t.Pop(prev)
	}
	if next != nil && eligible(next) && !next.RPILinked {
		if next.CPU != cpu {
			t.Pop(next) // unlink from wherever it was first
		}
		t.Push(cpu, next)
	}
}

// ClearRemote unlinks c from a CPU's RPI queue when c resumes on a
// different CPU than the one its queue entry lives on (§4.4
// "clear_remote"). It needs both a slot lock and a cross-CPU
// notification: it takes the owning slot's lock (never nklock) to mutate
// the queue, then — outside that lock, and only when the queue is left
// empty — re-evaluates root priority on the source CPU, which in this
// model is just calling refresh instead of sending a real cross-CPU
// interrupt.
func (t *Tracker) ClearRemote(c *tcb.TCB) {
	if !c.RPILinked {
		return
	}
	sourceCPU := c.CPU
	s := t.slot(sourceCPU)
	s.mu.Lock()
	removeFromHeap(&s.rpiQueue, c)
	c.RPILinked = false
	empty := len(s.rpiQueue) == 0
	s.mu.Unlock()
	if empty {
		// Equivalent to the IPI in the source: the source CPU re-evaluates
		// and, finding nothing left, drops its root priority to idle.
		t.refresh(s)
	}
}

// RootPriority returns the current root surrogate priority for cpu: the
// maximum priority among that CPU's RPI queue, or -1 if idle (Invariant 2,
// §8: "root_priority(c) = max(priority(u) for u in rpi_queue(c)) ∨ idle").
func (t *Tracker) RootPriority(cpu int) int {
	s := t.slot(cpu)
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.rpiQueue) == 0 {
		return -1
	}
	return s.rpiQueue[0].Priority
}

// refresh recomputes s's root priority and, if a host task backs the
// surrogate, pushes the new priority down to the host scheduler.
func (t *Tracker) refresh(s *Slot) {
	s.mu.Lock()
	boosted := len(s.rpiQueue) > 0
	var top *tcb.TCB
	if boosted {
		top = s.rpiQueue[0]
	}
	s.rpiOn = boosted
	s.mu.Unlock()

	if s.current == nil {
		return
	}
	root, ok := s.current.HostTask.(hostif.Task)
	if !ok {
		return
	}
	if boosted {
		_ = root.SetPriority(true, top.Priority)
	} else {
		_ = root.SetPriority(false, 0)
	}
	log.L.WithField("cpu", s.cpu).WithField("boosted", boosted).Debug("rpi root priority refreshed")
}

func removeFromHeap(h *rpiHeap, c *tcb.TCB) {
	for i, cand := range *h {
		if cand == c {
			heap.Remove(h, i)
			return
		}
	}
}
