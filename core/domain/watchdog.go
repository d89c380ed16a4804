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
	"time"

	"github.com/containerd/log"

	"github.com/xenocore/nucleus/core/mayday"
	"github.com/xenocore/nucleus/core/nklock"
	"github.com/xenocore/nucleus/core/tcb"
)

// Watchdog implements the primary-mode watchdog named by end-to-end
// scenario 3 in spec.md §8 (SPEC_FULL item 7): a thread that spins in
// primary mode past Threshold without suspending is kicked (Engine.Kick,
// which also arms its mayday trap) and, when Debug is set, reported as
// SIGDEBUG(WATCHDOG).
type Watchdog struct {
	Engine    *Engine
	Page      *mayday.Page
	Threshold time.Duration
	Tick      time.Duration
	Debug     Debugger
}

// NewWatchdog returns a Watchdog with the given threshold and polling
// interval, both of which should come from internal/config.
func NewWatchdog(e *Engine, page *mayday.Page, threshold, tick time.Duration, dbg Debugger) *Watchdog {
	return &Watchdog{Engine: e, Page: page, Threshold: threshold, Tick: tick, Debug: dbg}
}

// Run polls every CPU slot's current TCB until ctx is cancelled, mayday'ing
// any primary-mode thread that has run longer than Threshold since its
// last mode switch.
func (w *Watchdog) Run(ctx context.Context, now func() time.Time) {
	ticker := time.NewTicker(w.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx, now())
		}
	}
}

func (w *Watchdog) sweep(ctx context.Context, now time.Time) {
	for cpu, slot := range w.Engine.Slots {
		var t *tcb.TCB
		w.Engine.NK.With(func(tok *nklock.Token) {
			t = slot.Current(tok)
		})
		if t == nil || t.TestState(tcb.Relaxed) {
			continue
		}
		if now.Sub(t.Stats.LastSwitch) < w.Threshold {
			continue
		}
		log.G(ctx).WithField("tcb", t.Handle).WithField("cpu", cpu).Warn("watchdog: primary-mode thread exceeded threshold, arming mayday")
		w.Engine.Kick(t, false, w.Page)
		if w.Debug != nil {
			w.Debug(t, ReasonWatchdog)
		}
	}
}
