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
	"github.com/xenocore/nucleus/core/nklock"
	"github.com/xenocore/nucleus/core/ring"
	"github.com/xenocore/nucleus/core/sched"
	"github.com/xenocore/nucleus/core/tcb"
)

// MirrorSync writes t's steady-state mode back into the process-shared
// user-mode mirror word (spec.md §3 "User-mode mirror"). The engine calls
// it any time a transition commits, so user-space fast-path probes never
// observe a stale mode.
type MirrorSync func(*tcb.TCB)

// Engine is the mode-transition engine (spec.md §4.3): harden, relax and
// kick, plus the watchdog that supplements them (SPEC_FULL item 7).
type Engine struct {
	NK      *nklock.Lock
	Tracker *sched.Tracker
	Slots   []*sched.Slot
	Ring    *ring.Ring
	Mirror  MirrorSync

	// Root identifies the per-CPU root thread TCB; Relax refuses to relax
	// it (§4.3.2 precondition).
	Root map[*tcb.TCB]bool
}

// NewEngine wires an Engine over the given per-CPU slots, tracker, low
// stage ring and mirror sync callback. mirror may be nil.
func NewEngine(nk *nklock.Lock, tr *sched.Tracker, slots []*sched.Slot, rg *ring.Ring, mirror MirrorSync) *Engine {
	if mirror == nil {
		mirror = func(*tcb.TCB) {}
	}
	return &Engine{
		NK:      nk,
		Tracker: tr,
		Slots:   slots,
		Ring:    rg,
		Mirror:  mirror,
		Root:    make(map[*tcb.TCB]bool),
	}
}

func (e *Engine) syncMirror(t *tcb.TCB) { e.Mirror(t) }
