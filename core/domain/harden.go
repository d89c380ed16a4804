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
	"github.com/xenocore/nucleus/core/tcb"
)

// Harden moves t from relaxed (host domain) to primary (real-time domain),
// implementing spec.md §4.3.1.
func (e *Engine) Harden(ctx context.Context, t *tcb.TCB) error {
	if t == nil {
		return ErrPermission
	}
	host, ok := t.HostTask.(hostif.Task)
	if !ok {
		return ErrPermission
	}

	for {
		// Step 3: update the user-mode mirror to clear RELAXED
		// preemptively, so fast-path probes see the intent to harden
		// before the handoff actually commits.
		e.NK.With(func(*nklock.Token) {
			t.ClearBits(tcb.Relaxed)
		})
		e.syncMirror(t)

		slot := e.Slots[t.CPU]
		resumed, err := slot.RequestHarden(ctx, t, host)
		if err != nil {
			// RequestHarden only fails on ctx cancellation or a host
			// SetState error; surface it. A CPU migration while waiting
			// for gksync is not detected here and causes no restart.
			return err
		}
		if !resumed {
			// Step 6: a signal raced the handoff. The gatekeeper has
			// already synchronized (it observed the stale state and
			// released gksync) so no further resume can arrive for this
			// request; fail RESTART.
			log.G(ctx).WithField("tcb", t.Handle).Debug("harden interrupted by signal, restarting")
			t.ClearInfoBits(tcb.Atomic)
			t.SetBits(tcb.Relaxed)
			e.syncMirror(t)
			return ErrRestart
		}

		// Step 7: finalize the domain switch. t leaves the RPI queue the
		// instant it goes back to primary, mirroring rpi_pop(target) in the
		// gatekeeper just before it resumes the migrant. FPU context switch
		// and arch-specific TCB save/restore are out of scope (spec.md §1).
		// No pending real-time signal dispatch is performed here; signals
		// the host queued for this thread while relaxed are left untouched.
		e.Tracker.Pop(t)
		t.Stats.ModeSwitches++
		e.syncMirror(t)

		// Step 8: if kicked while moving, relax immediately and fail
		// RESTART.
		if t.TestInfo(tcb.Kicked) {
			t.ClearInfoBits(tcb.Kicked)
			_ = e.Relax(ctx, t, false)
			return ErrRestart
		}

		return nil
	}
}
