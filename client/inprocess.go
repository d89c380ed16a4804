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

package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/xenocore/nucleus/core"
	"github.com/xenocore/nucleus/core/bind"
	"github.com/xenocore/nucleus/core/hostif"
	"github.com/xenocore/nucleus/core/tcb"
)

// InProcess is the Transport used when a client runs in the same process
// as the nucleus core — nucleusd's own test harness, or a single-binary
// embedding that links core.Core directly instead of going out over a
// socket. Owner and Host identify the caller: Owner keys the PPD table,
// Host is the host task every shadow created through this Transport
// mates to.
type InProcess struct {
	Core  *core.Core
	Owner any
	Host  hostif.Task

	// Unsupported/Raise are passed straight through to core.Core.Bind;
	// see bind.MandatoryFeatures and bind.RaiseCapabilities.
	Unsupported bind.MandatoryFeatures
	Raise       bind.RaiseCapabilities

	mu      sync.Mutex
	mirrors map[tcb.Handle]*MirrorWord
	next    uint32
}

var _ Transport = (*InProcess)(nil)

// Bind fills in Owner before delegating to core.Core.Bind.
func (p *InProcess) Bind(ctx context.Context, req bind.Request, caller bind.Caller) (int, error) {
	caller.Owner = p.Owner
	return p.Core.Bind(ctx, req, caller, p.Unsupported, p.Raise)
}

// CreateShadow allocates a TCB, binds it to Host in the core's registry,
// and registers a fresh mirror word for it.
func (p *InProcess) CreateShadow(ctx context.Context, magic uint32, prio int, class tcb.Class) (*tcb.TCB, error) {
	p.mu.Lock()
	p.next++
	handle := tcb.Handle(p.next)
	p.mu.Unlock()

	t := tcb.New(handle, magic, prio, class)
	if err := p.Core.Registry.Bind(p.Owner, p.Host, t); err != nil {
		return nil, fmt.Errorf("client: creating shadow: %w", err)
	}

	p.mu.Lock()
	if p.mirrors == nil {
		p.mirrors = make(map[tcb.Handle]*MirrorWord)
	}
	mw := &MirrorWord{}
	mw.Store(ModeRelaxed)
	p.mirrors[handle] = mw
	p.mu.Unlock()

	return t, nil
}

// SyncMirror implements domain.MirrorSync: pass it to core.New so every
// committed harden/relax transition publishes into this Transport's
// mirror words. It is a plain func value, not a method core.Core calls
// through an interface, so core never imports this package.
func (p *InProcess) SyncMirror(t *tcb.TCB) {
	mw := p.Mirror(t.Handle)
	if t.TestState(tcb.Relaxed) {
		mw.Store(ModeRelaxed)
	} else {
		mw.Store(ModePrimary)
	}
}

// Mirror returns the mirror word registered by CreateShadow for handle,
// or a fresh, never-updated one if handle is unknown.
func (p *InProcess) Mirror(handle tcb.Handle) *MirrorWord {
	p.mu.Lock()
	defer p.mu.Unlock()
	if mw, ok := p.mirrors[handle]; ok {
		return mw
	}
	return &MirrorWord{}
}
