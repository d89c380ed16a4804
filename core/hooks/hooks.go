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

// Package hooks installs the five host-OS lifecycle hooks of spec.md §4.8:
// task-exit, schedule (tail), sigwake, setsched, cleanup.
package hooks

import (
	"context"

	"github.com/containerd/log"
	"golang.org/x/sync/errgroup"

	"github.com/xenocore/nucleus/core/domain"
	"github.com/xenocore/nucleus/core/nklock"
	"github.com/xenocore/nucleus/core/ppd"
	"github.com/xenocore/nucleus/core/sched"
	"github.com/xenocore/nucleus/core/tcb"
)

// Hooks bundles the five host-OS event hooks installed at core startup and
// removed at shutdown.
type Hooks struct {
	Registry *tcb.Registry
	Tracker  *sched.Tracker
	Engine   *domain.Engine
	PPDs     *ppd.Table

	// DebugHeld is consulted by ScheduleTail: while true for a TCB, the
	// real-time timer base backing it stays locked (spec.md §4.8
	// "unlock the real-time timer base when a debug-held thread
	// resumes").
	DebugHeld       func(*tcb.TCB) bool
	UnlockTimerBase func(*tcb.TCB)
}

// TaskExit finalizes a shadow dying host-side (spec.md §4.8 "task-exit"):
// it clears the slot's current pointer if it names the TCB, unlinks the
// TCB from its RPI queue and unbinds it from the registry. It does not
// run a reschedule pass and does not touch the PPD table; PPDs, the
// sys-PPD included, are released only by Cleanup.
func (h *Hooks) TaskExit(ctx context.Context, hostTask any) {
	t := h.Registry.Lookup(hostTask, 0)
	if t == nil {
		return
	}
	h.Engine.NK.With(func(tok *nklock.Token) {
		slot := h.Engine.Slots[t.CPU]
		if slot.Current(tok) == t {
			slot.SetCurrent(tok, nil)
		}
		h.Tracker.Pop(t)
	})
	h.Registry.Unbind(hostTask)
	log.G(ctx).WithField("tcb", t.Handle).Debug("hooks: task-exit finalized")
}

// ScheduleTail runs rpi_switch plus debug/ptrace bookkeeping on every host
// scheduler tail (spec.md §4.8 "schedule (tail)").
func (h *Hooks) ScheduleTail(ctx context.Context, cpu int, prevHostTask, nextHostTask any) {
	var prev, next *tcb.TCB
	if prevHostTask != nil {
		prev = h.Registry.Lookup(prevHostTask, 0)
	}
	if nextHostTask != nil {
		next = h.Registry.Lookup(nextHostTask, 0)
	}

	var atomicInFlight bool
	h.Engine.NK.With(func(tok *nklock.Token) {
		if prev != nil {
			atomicInFlight = prev.TestInfo(tcb.Atomic)
		}
		h.Tracker.Switch(cpu, prev, next, atomicInFlight)
		h.Engine.Slots[cpu].SetCurrent(tok, next)
	})

	if next != nil && h.DebugHeld != nil && h.UnlockTimerBase != nil && h.DebugHeld(next) {
		h.UnlockTimerBase(next)
	}
}

// SigWake kicks a shadow that just received a host signal, so it relaxes
// on return to user (spec.md §4.8 "sigwake").
func (h *Hooks) SigWake(ctx context.Context, hostTask any) {
	t := h.Registry.Lookup(hostTask, 0)
	if t == nil {
		return
	}
	h.Engine.Kick(t, false, nil)
	log.G(ctx).WithField("tcb", t.Handle).Debug("hooks: sigwake kicked shadow")
}

// SetSched propagates a host-side SCHED_FIFO/SCHED_OTHER priority change
// into the TCB (spec.md §4.8 "setsched"), but only for RT-class threads
// whose priority scales 1:1 with the host's.
func (h *Hooks) SetSched(ctx context.Context, hostTask any, fifo bool, hostPrio int) {
	t := h.Registry.Lookup(hostTask, 0)
	if t == nil || t.Class != tcb.ClassFIFO || !fifo {
		return
	}
	h.Engine.NK.With(func(*nklock.Token) {
		t.Priority = hostPrio
		t.BasePriority = hostPrio
	})
	h.Tracker.Update(t)
	log.G(ctx).WithField("tcb", t.Handle).WithField("prio", hostPrio).Debug("hooks: setsched propagated")
}

// Cleanup sweeps every PPD belonging to owner when its mm drops (spec.md
// §4.8 "cleanup") and unbinds every TCB it owned. The two sweeps run
// concurrently since they touch disjoint state (the PPD table and the
// TCB registry).
func (h *Hooks) Cleanup(ctx context.Context, owner any) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return h.PPDs.Detach(gctx, owner)
	})
	g.Go(func() error {
		for _, t := range h.Registry.UnbindAll(owner) {
			h.Tracker.Pop(t)
		}
		return nil
	})
	return g.Wait()
}
