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

package domain

import (
	"context"

	"github.com/containerd/log"

	"github.com/xenocore/nucleus/core/hostif"
	"github.com/xenocore/nucleus/core/nklock"
	"github.com/xenocore/nucleus/core/ring"
	"github.com/xenocore/nucleus/core/tcb"
)

// SIGDEBUG reason codes (spec.md §6).
type SigDebugReason int

const (
	MigrateSignal SigDebugReason = iota
	MigrateSyscall
	MigratePrioInv
	NoMLock
	ReasonWatchdog
)

// Debugger receives SIGDEBUG-equivalent notifications; wiring this to a
// real signal delivery is the caller's job (e.g. core/hooks), keeping
// package domain free of a hostif.Task dependency for something that is,
// conceptually, a diagnostic side channel rather than scheduling state.
type Debugger func(t *tcb.TCB, reason SigDebugReason)

// Relax moves t from primary (real-time domain) to relaxed (host domain),
// implementing spec.md §4.3.2. notify controls step 6 (whether a
// SIGDEBUG-equivalent is owed to the caller); it is false for the internal
// relax performed by Harden step 8 and by the syscall dispatcher
// (core/dispatch).
func (e *Engine) Relax(ctx context.Context, t *tcb.TCB, notify bool) error {
	return e.relax(ctx, t, notify, nil)
}

// RelaxNotify is like Relax but also delivers a SIGDEBUG-equivalent via dbg
// when the thread has TrapOnSwitch set, carrying reason.
func (e *Engine) RelaxNotify(ctx context.Context, t *tcb.TCB, reason SigDebugReason, dbg Debugger) error {
	return e.relax(ctx, t, true, func(t *tcb.TCB) {
		if dbg != nil {
			dbg(t, reason)
		}
	})
}

func (e *Engine) relax(ctx context.Context, t *tcb.TCB, notify bool, deliver func(*tcb.TCB)) error {
	if t == nil {
		return ErrPermission
	}
	if e.Root[t] {
		return ErrPermission // §4.3.2 precondition: never the root thread
	}
	host, ok := t.HostTask.(hostif.Task)
	if !ok {
		return ErrPermission
	}

	// Step 1: with nklock held, push the TCB onto its CPU's RPI queue.
	e.NK.With(func(*nklock.Token) {
		e.Tracker.Push(t.CPU, t)
	})

	// Step 2: queue a WAKEUP request in the low-stage ring for the host
	// task.
	e.Ring.Push(ring.Request{Kind: ring.WakeTask, Target: t})

	// Step 3: atomically clear the no-wakeup hint and suspend the TCB with
	// RELAXED set, infinite relative timeout. The "no-wakeup hint" and the
	// actual blocking suspend are both host-scheduler concerns; here that
	// is host.SetState(Interruptible) followed by the host's own
	// Reschedule, invoked by the slot's gatekeeper-facing Scheduler.
	e.NK.With(func(*nklock.Token) {
		t.SetBits(tcb.Relaxed)
	})
	if err := host.SetState(hostif.Interruptible); err != nil {
		return err
	}
	e.syncMirror(t)

	slot := e.Slots[t.CPU]
	if err := slot.Reschedule(); err != nil {
		return err
	}

	// Step 4: re-enter the host scheduler at the TCB's current priority,
	// mapped into the host's SCHED_FIFO range, clamped to
	// [1, host_fifo_max-1]; priority 0 maps to SCHED_OTHER.
	fifoMax := slot.FIFOMax()
	if t.Priority > 0 {
		prio := t.Priority
		if prio > fifoMax-1 {
			prio = fifoMax - 1
		}
		if prio < 1 {
			prio = 1
		}
		_ = host.SetPriority(true, prio)
	} else {
		_ = host.SetPriority(false, 0)
	}

	// Step 5.
	t.Stats.ModeSwitches++

	// Step 6: SIGDEBUG-equivalent delivery.
	if notify && t.TestState(tcb.TrapOnSwitch) && deliver != nil {
		deliver(t)
	}

	// Step 7: renice signal if a priority change is pending.
	if t.TestInfo(tcb.PrioritySet) {
		t.ClearInfoBits(tcb.PrioritySet)
		_ = host.SetPriority(t.Class == tcb.ClassFIFO, t.Priority)
	}

	// Step 8: affinity realignment if pending.
	if t.TestInfo(tcb.AffinitySet) {
		t.ClearInfoBits(tcb.AffinitySet)
		_ = host.SetAffinity(uint64(t.Affinity))
	}

	// Step 9.
	e.syncMirror(t)

	log.G(ctx).WithField("tcb", t.Handle).WithField("cpu", t.CPU).Debug("relaxed")
	return nil
}
