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
	"github.com/xenocore/nucleus/core/hostif"
	"github.com/xenocore/nucleus/core/mayday"
	"github.com/xenocore/nucleus/core/nklock"
	"github.com/xenocore/nucleus/core/tcb"
)

// Kick forces t to leave primary mode, implementing spec.md §4.3.3. self
// reports whether the caller is kicking itself (the mayday trap is only
// armed against other threads; a thread kicking itself will discover
// KICKED at its next suspension point). page is the mayday page used to
// arm the trap; it may be nil in tests that do not exercise that path.
//
// Kick(t) on an already-relaxed t is a no-op, satisfying the idempotence
// law in spec.md §8.
func (e *Engine) Kick(t *tcb.TCB, self bool, page *mayday.Page) {
	if t.TestState(tcb.Relaxed) {
		return
	}

	e.NK.With(func(*nklock.Token) {
		switch {
		case t.TestState(tcb.Ready) && t.State()&(tcb.Suspended|tcb.Held) == 0:
			// Only READY: it will discover KICKED on its next suspend.
			t.SetInfoBits(tcb.Kicked)
		case t.State()&(tcb.Suspended|tcb.Held) != 0:
			// Blocked in a non-abortable suspend: lift it and mark it
			// kicked+broken so the woken thread observes BREAK.
			t.ClearBits(tcb.Suspended | tcb.Held)
			t.SetInfoBits(tcb.Kicked | tcb.Broken)
			if host, ok := t.HostTask.(hostif.Task); ok {
				_ = host.Wake()
			}
		case t.TestState(tcb.Dormant) && t.TestState(tcb.Started):
			t.ClearBits(tcb.Dormant)
			t.SetInfoBits(tcb.Kicked | tcb.Broken)
			if host, ok := t.HostTask.(hostif.Task); ok {
				_ = host.Wake()
			}
		default:
			t.SetInfoBits(tcb.Kicked)
		}
	})

	if !self && page != nil {
		if host, ok := t.HostTask.(hostif.Task); ok {
			page.Arm(host)
		}
	}
}
