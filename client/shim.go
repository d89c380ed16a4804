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

// Package client is the user-space shim linked into each real-time
// process (spec.md §2: "a user-space shim linked into each client
// process"). It wraps the sys_bind handshake and the user-mode mirror
// fast-path probe behind a small API, the way the teacher's own client
// package wraps its gRPC surface behind Client/Opt.
package client

import (
	"context"
	"fmt"

	"github.com/xenocore/nucleus/core/bind"
	"github.com/xenocore/nucleus/core/tcb"
)

// Transport is everything a Client needs from the nucleus core without
// linking against core.Core directly, so this package stays usable both
// in-process (tests, single-binary embedding) and from a separate client
// process talking to nucleusd over some future wire transport.
type Transport interface {
	// Bind runs sys_bind and returns the assigned muxid.
	Bind(ctx context.Context, req bind.Request, caller bind.Caller) (muxid int, err error)
	// CreateShadow mates the calling host task to a freshly allocated TCB
	// under the bound skin's magic (spec.md §4.1 "creation").
	CreateShadow(ctx context.Context, magic uint32, prio int, class tcb.Class) (*tcb.TCB, error)
	// Mirror returns the process-shared mirror word for handle, the
	// lock-free primary/relaxed flag that IsPrimary reads without a
	// syscall (spec.md §3 "User-mode mirror").
	Mirror(handle tcb.Handle) *MirrorWord
}

// Client is one process's bound connection to a single skin.
type Client struct {
	transport Transport
	magic     uint32
	muxid     int
}

// Bind negotiates sys_bind against the skin named by WithMagic and
// returns a Client scoped to it. Per spec.md §8's boundary behaviors,
// this can succeed before nucleusd's core has fully started — only the
// PPD is guaranteed to exist at that point.
func Bind(ctx context.Context, transport Transport, opts ...Opt) (*Client, error) {
	o := buildOpts(opts)
	if o.magic == 0 {
		return nil, fmt.Errorf("client: WithMagic is required")
	}

	req := bind.Request{
		Magic:             o.magic,
		RequestedFeatures: o.requestedFeatures,
		ABIRevision:       o.abiRevision,
	}
	caller := bind.Caller{
		HasSysNice:   o.hasSysNice,
		InXenomaiGID: o.inXenomaiGID,
	}

	muxid, err := transport.Bind(ctx, req, caller)
	if err != nil {
		return nil, err
	}
	return &Client{transport: transport, magic: o.magic, muxid: muxid}, nil
}

// MuxID returns the muxid this Client bound to.
func (c *Client) MuxID() int { return c.muxid }

// Shadow is a created real-time thread, handed back to the client process
// so it can probe its own mode without a syscall via IsPrimary.
type Shadow struct {
	TCB    *tcb.TCB
	mirror *MirrorWord
}

// CreateShadow mates the calling thread to a new TCB under this Client's
// bound skin (spec.md §4.1).
func (c *Client) CreateShadow(ctx context.Context, prio int, class tcb.Class) (*Shadow, error) {
	t, err := c.transport.CreateShadow(ctx, c.magic, prio, class)
	if err != nil {
		return nil, err
	}
	return &Shadow{TCB: t, mirror: c.transport.Mirror(t.Handle)}, nil
}

// IsPrimary reports whether this shadow is currently running in the
// real-time domain, reading only the process-shared mirror word — the
// "fast-path user-mode-mirror probe without a syscall" SPEC_FULL item 6
// calls for.
func (s *Shadow) IsPrimary() bool {
	return s.mirror.Load() == ModePrimary
}
