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

// Package core wires every subsystem package (tcb, sched, domain, ring,
// mayday, skin, ppd, dispatch, hooks, bind) into the single Core object
// nucleusd starts, mirroring the way the teacher's daemon wires its own
// services out of independently testable packages.
package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/containerd/log"
	"golang.org/x/sync/errgroup"

	"github.com/xenocore/nucleus/core/bind"
	"github.com/xenocore/nucleus/core/dispatch"
	"github.com/xenocore/nucleus/core/domain"
	"github.com/xenocore/nucleus/core/hooks"
	"github.com/xenocore/nucleus/core/hostif"
	"github.com/xenocore/nucleus/core/mayday"
	"github.com/xenocore/nucleus/core/nklock"
	"github.com/xenocore/nucleus/core/ppd"
	"github.com/xenocore/nucleus/core/ring"
	"github.com/xenocore/nucleus/core/sched"
	"github.com/xenocore/nucleus/core/skin"
	"github.com/xenocore/nucleus/core/tcb"
	"github.com/xenocore/nucleus/internal/config"
)

// Core is the single process-wide nucleus instance (spec.md §3 "nucleus
// core"). Every skin, every bound process and every intercepted syscall
// ultimately routes through one of the fields below.
type Core struct {
	Config *config.Config

	NK         *nklock.Lock
	Registry   *tcb.Registry
	Tracker    *sched.Tracker
	Slots      []*sched.Slot
	Ring       *ring.Ring
	Engine     *domain.Engine
	Page       *mayday.Page
	Heaps      *mayday.Device
	Skins      *skin.Registry
	PPDs       *ppd.Table
	Dispatcher *dispatch.Dispatcher
	Hooks      *hooks.Hooks
	Watchdog   *domain.Watchdog

	active atomic.Bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Core from cfg. schedulers and gatekeepers must be the same
// length, one pair per CPU slot; callers obtain them from a platform's
// hostif implementation (core/hostif/unix_linux.go in production, or
// core/hostif/fake.go in tests).
func New(cfg *config.Config, mirror domain.MirrorSync, host dispatch.HostPropagator, schedulers []hostif.Scheduler, gatekeepers []hostif.Task) (*Core, error) {
	if len(schedulers) != len(gatekeepers) {
		return nil, fmt.Errorf("core: %d schedulers but %d gatekeepers", len(schedulers), len(gatekeepers))
	}
	if len(schedulers) == 0 {
		return nil, fmt.Errorf("core: at least one CPU slot is required")
	}

	if cfg.RingSize > 0 && cfg.RingSize != ring.Size {
		log.L.WithField("configured", cfg.RingSize).WithField("actual", ring.Size).
			Warn("core: ring_size is fixed at compile time, ignoring configured value")
	}

	nk := &nklock.Lock{}
	registry := tcb.NewRegistry()
	slots := make([]*sched.Slot, len(schedulers))
	for i := range schedulers {
		slots[i] = sched.NewSlot(i, schedulers[i], gatekeepers[i])
	}
	tracker := sched.NewTracker(slots)
	rg := ring.New()
	engine := domain.NewEngine(nk, tracker, slots, rg, mirror)

	page := mayday.Get()
	heaps := mayday.NewDevice()
	skins := skin.NewRegistry()
	ppds := ppd.NewTable(skins, page, heaps)

	dispatcher := &dispatch.Dispatcher{
		Skins:  skins,
		Engine: engine,
		Page:   page,
		Host:   host,
	}

	hk := &hooks.Hooks{
		Registry: registry,
		Tracker:  tracker,
		Engine:   engine,
		PPDs:     ppds,
	}

	var wd *domain.Watchdog
	if cfg.ThresholdDuration() > 0 {
		wd = domain.NewWatchdog(engine, page, cfg.ThresholdDuration(), cfg.TickDuration(), nil)
	}

	c := &Core{
		Config:     cfg,
		NK:         nk,
		Registry:   registry,
		Tracker:    tracker,
		Slots:      slots,
		Ring:       rg,
		Engine:     engine,
		Page:       page,
		Heaps:      heaps,
		Skins:      skins,
		PPDs:       ppds,
		Dispatcher: dispatcher,
		Hooks:      hk,
		Watchdog:   wd,
	}
	dispatcher.Active = c.Active
	return c, nil
}

// Active reports whether Start has run, gating every syscall but sys_bind
// (spec.md §8 "Boundary behaviors").
func (c *Core) Active() bool { return c.active.Load() }

// RegisterSkin installs props into the skin registry, implementing
// register_interface (spec.md §4.6) for plugins/skins/*.
func (c *Core) RegisterSkin(props skin.Props) (*skin.Slot, error) {
	return c.Skins.Register(props)
}

// Bind runs sys_bind for req against the skin named by its magic.
func (c *Core) Bind(ctx context.Context, req bind.Request, caller bind.Caller, unsupported bind.MandatoryFeatures, raise bind.RaiseCapabilities) (int, error) {
	return bind.Bind(ctx, c.Skins, c.PPDs, req, caller, unsupported, raise)
}

// Start launches every per-CPU gatekeeper and the watchdog, then flips
// Active. It must run exactly once.
func (c *Core) Start(ctx context.Context) error {
	if !c.active.CompareAndSwap(false, true) {
		return fmt.Errorf("core: already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	for _, slot := range c.Slots {
		slot := slot
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			slot.RunGatekeeper(ctx)
		}()
	}
	if c.Watchdog != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.Watchdog.Run(ctx, time.Now)
		}()
	}
	log.G(ctx).WithField("cpus", len(c.Slots)).Info("core started")
	return nil
}

// Stop cancels every background goroutine started by Start and waits for
// them to exit.
func (c *Core) Stop(ctx context.Context) error {
	if !c.active.CompareAndSwap(true, false) {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	done := make(chan struct{})
	go func() { c.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	log.G(ctx).Info("core stopped")
	return nil
}

// Cleanup fans the "cleanup" lifecycle hook (spec.md §4.8) out across
// every per-process state this owner touched; it is the entry point the
// host calls on process exit.
func (c *Core) Cleanup(ctx context.Context, owner any) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.Hooks.Cleanup(gctx, owner) })
	return g.Wait()
}
