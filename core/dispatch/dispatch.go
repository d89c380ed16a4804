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

// Package dispatch implements the syscall dispatcher (spec.md §4.6): it
// classifies each intercepted call by its table entry's flags and the
// caller's current domain, then routes it, possibly migrating the caller
// adaptively.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"

	"github.com/xenocore/nucleus/core/domain"
	"github.com/xenocore/nucleus/core/mayday"
	"github.com/xenocore/nucleus/core/skin"
	"github.com/xenocore/nucleus/core/tcb"
)

// ErrNoSys is NOSYS: an invalid muxid/op, or a handler explicitly
// signaling "not implemented" (which ADAPTIVE interprets as "try the
// other domain").
var ErrNoSys = fmt.Errorf("dispatch: no such syscall: %w", errdefs.ErrNotImplemented)

// HostPropagator forwards a call the nucleus doesn't own to the host
// kernel's own dispatcher (spec.md §4.6: "propagate to host-side
// dispatcher", and "if !core_active: propagate to host kernel").
type HostPropagator func(ctx context.Context, muxid, op int, regs *skin.Regs) (int64, error)

// Dispatcher routes intercepted syscalls per spec.md §4.6.
type Dispatcher struct {
	Skins  *skin.Registry
	Engine *domain.Engine
	Page   *mayday.Page
	Host   HostPropagator

	// Active reports whether the core has started; Bind (core/bind) may
	// succeed before this flips true. Until it does, Dispatch forwards
	// every call to Host, failing NOSYS when Host is nil.
	Active func() bool
}

// ResourceChecker reports whether t's owning skin-bound resources have all
// been released; it backs the dispatcher epilogue's "thread is non-RT and
// its resource-count hit zero" test (spec.md §4.6). Callers that don't
// track per-skin resource counts can pass a func that always returns
// false.
type ResourceChecker func(t *tcb.TCB) bool

// Dispatch runs one syscall through the algorithm in spec.md §4.6. t is
// the calling shadow's TCB (nil for a non-shadow caller). muxid/op select
// the skin and table entry. checker implements the epilogue's "thread is
// non-RT and its resource-count hit zero" test.
func (d *Dispatcher) Dispatch(ctx context.Context, t *tcb.TCB, muxid, op int, regs *skin.Regs, checker ResourceChecker) (int64, error) {
	if !d.Active() {
		return d.propagate(ctx, muxid, op, regs)
	}

	slot := d.Skins.Lookup(muxid)
	if slot == nil {
		return 0, ErrNoSys
	}
	defer d.Skins.Release(slot)

	if op < 0 || op >= len(slot.Table) {
		return 0, ErrNoSys
	}
	entry := slot.Table[op]

	isShadow := t != nil
	if entry.Flags&skin.Shadow != 0 && !isShadow {
		return 0, domain.ErrPermission
	}

	flags := entry.Flags
	if flags&skin.Conforming != 0 {
		if isShadow {
			flags = flags&^skin.LoStage | skin.HiStage
		} else {
			flags = flags&^skin.HiStage | skin.LoStage
		}
	}

	switched := false
	var result int64
	var err error

	for {
		current := currentDomain(t)

		if flags&skin.LoStage != 0 && current == primary {
			if err := d.Engine.Relax(ctx, t, false); err != nil && !domain.IsRestart(err) {
				return 0, err
			}
			switched = true
			continue
		}
		if flags&skin.LoStage != 0 && current == host {
			return d.propagateEntry(ctx, muxid, op, regs, entry)
		}
		if flags&skin.HiStage != 0 && current == host {
			if isShadow {
				if hErr := d.Engine.Harden(ctx, t); hErr != nil && !domain.IsRestart(hErr) {
					return 0, hErr
				}
				switched = true
				continue
			}
			return d.propagateEntry(ctx, muxid, op, regs, entry)
		}

		result, err = entry.Handler(ctx, regs)
		if errors.Is(err, ErrNoSys) && flags&skin.Adaptive != 0 {
			if switched {
				if hErr := d.Engine.Harden(ctx, t); hErr != nil {
					break
				}
			}
			if flags&skin.LoStage != 0 {
				flags = flags&^skin.LoStage | skin.HiStage
			} else {
				flags = flags&^skin.HiStage | skin.LoStage
			}
			continue
		}
		break
	}

	if isShadow {
		t.Stats.Syscalls++
	}

	if isShadow && t.TestInfo(tcb.Broken) {
		t.ClearInfoBits(tcb.Broken)
		if entry.Flags&skin.NoRestart != 0 {
			return result, fmt.Errorf("dispatch: interrupted: %w", errdefs.ErrAborted)
		}
		return 0, domain.ErrRestart
	} else if isShadow && checker != nil && checker(t) {
		_ = d.Engine.Relax(ctx, t, false)
	}

	if flags&skin.Switchback != 0 && switched {
		// Cross back to the domain the caller entered in; best-effort,
		// matching the source's "after execution, return to the
		// originating domain" without re-deriving the original domain
		// from scratch.
		if currentDomain(t) == primary {
			_ = d.Engine.Relax(ctx, t, false)
		} else if isShadow {
			_ = d.Engine.Harden(ctx, t)
		}
	}

	log.G(ctx).WithField("muxid", muxid).WithField("op", op).Debug("syscall dispatched")
	return result, err
}

func (d *Dispatcher) propagate(ctx context.Context, muxid, op int, regs *skin.Regs) (int64, error) {
	if d.Host == nil {
		return 0, ErrNoSys
	}
	return d.Host(ctx, muxid, op, regs)
}

func (d *Dispatcher) propagateEntry(ctx context.Context, muxid, op int, regs *skin.Regs, _ skin.Entry) (int64, error) {
	return d.propagate(ctx, muxid, op, regs)
}

type domainKind int

const (
	host domainKind = iota
	primary
)

func currentDomain(t *tcb.TCB) domainKind {
	if t == nil {
		return host
	}
	if t.TestState(tcb.Relaxed) {
		return host
	}
	return primary
}
