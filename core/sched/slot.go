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

// Package sched implements the per-CPU scheduler slot (spec.md §3), its
// gatekeeper (§4.2) and the RPI priority tracker (§4.4).
package sched

import (
	"context"
	"fmt"
	"sync"

	"github.com/containerd/log"
	"golang.org/x/sync/semaphore"

	"github.com/xenocore/nucleus/core/hostif"
	"github.com/xenocore/nucleus/core/nklock"
	"github.com/xenocore/nucleus/core/tcb"
)

// Slot is one CPU's scheduler state (spec.md §3 "Per-CPU scheduler slot").
//
// Lock ordering (resolving the Open Question in spec.md §9): when both are
// held, the Core's nklock is acquired first and mu second — core/domain
// and core/hooks call Tracker operations, which take mu, from inside
// nklock.Lock.With. No code takes nklock while holding mu. ClearRemote
// takes only mu; see its comment.
type Slot struct {
	cpu int
	mu  sync.Mutex // protects gktarget, rpiQueue and rpiOn below

	current  *tcb.TCB
	rpiQueue rpiHeap
	rpiOn    bool // whether any thread is currently RPI-boosting this CPU

	gksync   *semaphore.Weighted // binary: at most one handoff request in flight
	gktarget *tcb.TCB

	gatekeeper hostif.Task
	schedIface hostif.Scheduler

	doorbell chan struct{}
	drop     chan struct{} // gatekeeper tells the migrant its request was dropped
	resumed  chan struct{} // gatekeeper tells the migrant it was resumed
}

// NewSlot returns a Slot for the given CPU, with the given host scheduler
// and the host task that will run the gatekeeper loop.
func NewSlot(cpu int, schedIface hostif.Scheduler, gatekeeper hostif.Task) *Slot {
	return &Slot{
		cpu:        cpu,
		gksync:     semaphore.NewWeighted(1),
		gatekeeper: gatekeeper,
		schedIface: schedIface,
		doorbell:   make(chan struct{}, 1),
		drop:       make(chan struct{}, 1),
		resumed:    make(chan struct{}, 1),
	}
}

// CPU returns this slot's CPU index.
func (s *Slot) CPU() int { return s.cpu }

// Current returns the TCB currently recorded as running on this CPU. Callers
// must hold nklock.
func (s *Slot) Current(_ *nklock.Token) *tcb.TCB { return s.current }

// SetCurrent records next as the TCB running on this CPU. Callers must hold
// nklock.
func (s *Slot) SetCurrent(_ *nklock.Token, next *tcb.TCB) { s.current = next }

// RootBoosted reports whether this CPU's idle/root surrogate is currently
// inheriting a relaxed shadow's priority.
func (s *Slot) RootBoosted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rpiOn
}

// Reschedule yields to the host scheduler until this CPU's current task is
// made runnable again (the schedule() reentry point named throughout
// spec.md §4.3 and §5).
func (s *Slot) Reschedule() error { return s.schedIface.Reschedule() }

// FIFOMax returns the host's usable SCHED_FIFO priority ceiling for this
// CPU (spec.md §4.3.2 step 4).
func (s *Slot) FIFOMax() int { return s.schedIface.FIFOMax() }

// RequestHarden runs the migrant side of the harden handoff (spec.md §4.2
// steps 3–7, the part that belongs to the per-CPU gatekeeper protocol
// rather than to the mode-transition engine in core/domain). It acquires
// gksync, publishes gktarget, asks the host to interrupt-sleep the caller,
// wakes the gatekeeper, and blocks until the gatekeeper either resumes the
// thread or drops the request because a signal raced it.
//
// It returns (resumed=true, nil) if the gatekeeper completed the handoff,
// or (resumed=false, nil) if the request was dropped because the host task
// was no longer Interruptible by the time the gatekeeper looked — the
// caller (core/domain) turns that into a RESTART.
func (s *Slot) RequestHarden(ctx context.Context, t *tcb.TCB, host hostif.Task) (resumed bool, err error) {
	if err := s.gksync.Acquire(ctx, 1); err != nil {
		return false, fmt.Errorf("sched: acquiring gksync on cpu %d: %w", s.cpu, err)
	}

	s.mu.Lock()
	s.gktarget = t
	s.mu.Unlock()

	if err := host.SetState(hostif.Interruptible); err != nil {
		s.gksync.Release(1)
		return false, err
	}
	t.SetInfoBits(tcb.Atomic)

	select {
	case s.doorbell <- struct{}{}:
	default:
	}

	select {
	case <-s.resumed:
		return true, nil
	case <-s.drop:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// RunGatekeeper is the per-CPU gatekeeper loop (§4.2 steps 1,2,4–7). It
// never returns until ctx is cancelled; run it in its own goroutine, at
// the highest host priority the platform grants the gatekeeper's task.
func (s *Slot) RunGatekeeper(ctx context.Context) {
	log.G(ctx).WithField("cpu", s.cpu).Debug("gatekeeper available")
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.doorbell:
		}

		s.mu.Lock()
		target := s.gktarget
		s.mu.Unlock()
		if target == nil {
			continue
		}

		host, _ := target.HostTask.(hostif.Task)
		if host == nil || host.State() != hostif.Interruptible {
			// A signal already woke the migrant back to Running: drop the
			// request silently (§4.2 "Failure semantics").
			log.G(ctx).WithField("cpu", s.cpu).Debug("gatekeeper dropping stale request")
			s.gksync.Release(1)
			select {
			case s.drop <- struct{}{}:
			default:
			}
			continue
		}

		if target.CPU != s.cpu {
			// Passive-migrate: the TCB moves to this CPU's bookkeeping.
			target.CPU = s.cpu
		}
		target.ClearBits(tcb.Relaxed)
		target.ClearInfoBits(tcb.Atomic)

		if err := host.Wake(); err != nil {
			log.G(ctx).WithField("cpu", s.cpu).WithError(err).Error("gatekeeper wake failed")
		}
		s.gksync.Release(1)
		select {
		case s.resumed <- struct{}{}:
		default:
		}
	}
}

// rpiHeap is a max-heap of relaxed TCBs ordered by priority, backing the
// per-CPU RPI queue (spec.md §3, §4.4).
type rpiHeap []*tcb.TCB

func (h rpiHeap) Len() int            { return len(h) }
func (h rpiHeap) Less(i, j int) bool  { return h[i].Priority > h[j].Priority }
func (h rpiHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *rpiHeap) Push(x interface{}) { *h = append(*h, x.(*tcb.TCB)) }
func (h *rpiHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
