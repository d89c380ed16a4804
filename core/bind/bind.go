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

// Package bind implements the sys_bind protocol (spec.md §6): feature/ABI
// negotiation against a registered skin's magic, CAP_SYS_NICE/xenomai_gid
// gating, and the capability-raising side effect on success.
package bind

import (
	"context"
	"fmt"

	"github.com/containerd/errdefs"

	"github.com/xenocore/nucleus/core/ppd"
	"github.com/xenocore/nucleus/core/skin"
)

// ABIRevision is the current skin ABI revision every skin's Props must
// match.
const ABIRevision = 1

// Request is the argument to sys_bind.
type Request struct {
	Magic             uint32
	RequestedFeatures uint32
	ABIRevision       int
}

// Caller abstracts what sys_bind needs to know about the calling process
// to apply the capability/gid gate (spec.md §6), without this package
// depending on a concrete credentials representation.
type Caller struct {
	Owner         any // the "mm" used to key the PPD table
	HasSysNice    bool
	InXenomaiGID  bool
}

// MandatoryFeatures is the bitmask of features the nucleus cannot
// provide; sys_bind fails EINVAL (errdefs.ErrInvalidArgument) when a
// request's RequestedFeatures intersects it (spec.md §6).
type MandatoryFeatures = uint32

// RaiseCapabilities is invoked on a successful bind to raise
// CAP_SYS_NICE, CAP_IPC_LOCK and CAP_SYS_RAWIO for the caller (spec.md
// §6). It is a function value so this package stays free of a direct
// dependency on a specific capability library; core/hostif's production
// wiring supplies the real implementation.
type RaiseCapabilities func(owner any) error

// Bind implements sys_bind. It returns the assigned muxid on success. The
// caller's sys-PPD is created (or its refcount bumped) as a side effect,
// even if the nucleus core has not fully started yet (spec.md §8
// "Boundary behaviors": "Bind while the core has not yet started must
// still succeed enough to create the PPD; the first syscall that requires
// the core to be active then fails NOSYS").
func Bind(ctx context.Context, skins *skin.Registry, ppds *ppd.Table, req Request, caller Caller, unsupported MandatoryFeatures, raise RaiseCapabilities) (int, error) {
	slot := skins.ByMagic(req.Magic)
	if slot == nil {
		return 0, fmt.Errorf("bind: no skin for magic %#x: %w", req.Magic, errdefs.ErrNotFound)
	}

	if req.RequestedFeatures&unsupported != 0 {
		return 0, fmt.Errorf("bind: mandatory feature intersection non-empty: %w", errdefs.ErrInvalidArgument)
	}
	if req.ABIRevision != ABIRevision {
		return 0, fmt.Errorf("bind: abi revision mismatch (want %d, got %d): %w", ABIRevision, req.ABIRevision, errdefs.ErrNotImplemented)
	}
	if !caller.HasSysNice && !caller.InXenomaiGID {
		return 0, fmt.Errorf("bind: caller lacks CAP_SYS_NICE and is not in xenomai_gid: %w", errdefs.ErrPermissionDenied)
	}

	if _, err := ppds.Attach(ctx, caller.Owner, ppd.SysSkinID); err != nil {
		return 0, fmt.Errorf("bind: sys-ppd creation failed: %w", err)
	}
	if slot.MuxID != ppd.SysSkinID {
		if _, err := ppds.Attach(ctx, caller.Owner, slot.MuxID); err != nil {
			return 0, err
		}
	}

	if raise != nil {
		if err := raise(caller.Owner); err != nil {
			return 0, err
		}
	}

	return slot.MuxID, nil
}
