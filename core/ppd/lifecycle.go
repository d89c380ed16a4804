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

package ppd

import (
	"context"
	"fmt"
	"sort"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"
)

// ErrBindingBusy is BINDING_BUSY (spec.md §7): a concurrent attach for the
// same (owner, skin) lost the race; the loser tears itself down silently
// rather than surfacing an error to the caller that triggered the extra
// attach, since the winner's PPD already satisfies the syscall.
var ErrBindingBusy = fmt.Errorf("ppd: concurrent attach collapsed: %w", errdefs.ErrUnavailable)

// ownerKey renders a singleflight/locker string key for (owner, muxid).
// owner is typically a pointer-ish identity; %p would be ideal but owner
// is `any`, so %v is used — good enough since singleflight/locker only
// need key *equality*, not a stable serialization.
func ownerKey(owner any, muxid int) string {
	return fmt.Sprintf("%v/%d", owner, muxid)
}
func ownerOnlyKey(owner any) string { return fmt.Sprintf("%v", owner) }

// Attach implements the first-syscall CLIENT_ATTACH path (spec.md §4.7):
// it ensures the sys-PPD exists, then the requested skin's PPD, invoking
// each skin's EventCB.Attach exactly once per process even if multiple
// goroutines race the first syscall — the per-owner lock and singleflight
// serialize them, and the later callers receive the winner's Descriptor
// (already attached, its reference count raised) with a nil error. Attach
// never returns ErrBindingBusy.
func (t *Table) Attach(ctx context.Context, owner any, muxid int) (*Descriptor, error) {
	if d := t.Lookup(owner, muxid); d != nil {
		t.mu.Lock()
		d.refs++
		t.mu.Unlock()
		return d, nil
	}

	t.locks.Lock(ownerOnlyKey(owner))
	defer t.locks.Unlock(ownerOnlyKey(owner))

	// sys-PPD first: every other PPD of a process holds a reference on it
	// (spec.md §3 Invariant).
	var sys *Descriptor
	if muxid != SysSkinID {
		var err error
		sys, err = t.attachOne(ctx, owner, SysSkinID)
		if err != nil {
			return nil, err
		}
	}

	v, err, shared := t.group.Do(ownerKey(owner, muxid), func() (interface{}, error) {
		return t.attachOne(ctx, owner, muxid)
	})
	if err != nil {
		return nil, err
	}
	d := v.(*Descriptor)
	if shared {
		log.G(ctx).WithField("muxid", muxid).Debug("ppd: attach collapsed onto in-flight winner")
	}
	if sys != nil {
		d.parent = sys
	}
	return d, nil
}

// attachOne performs the actual CLIENT_ATTACH call and bucket insertion
// for one (owner, muxid) pair. Callers must already hold the per-owner
// attach lock or accept that this runs exactly once via singleflight.
func (t *Table) attachOne(ctx context.Context, owner any, muxid int) (*Descriptor, error) {
	if existing := t.Lookup(owner, muxid); existing != nil {
		t.mu.Lock()
		existing.refs++
		t.mu.Unlock()
		return existing, nil
	}

	slot := t.Skins.Lookup(muxid)
	if slot == nil {
		return nil, fmt.Errorf("ppd: no skin registered for muxid %d: %w", muxid, errdefs.ErrNotFound)
	}
	defer t.Skins.Release(slot)

	var state any
	if slot.EventCB != nil {
		var err error
		state, err = slot.EventCB.Attach(ctx, owner)
		if err != nil {
			return nil, err
		}
	}

	d := &Descriptor{Owner: owner, MuxID: muxid, State: state, refs: 1}

	t.mu.Lock()
	t.byKey[Key{owner, muxid}] = d
	list := append(t.byOwner[owner], d)
	sort.Slice(list, func(i, j int) bool { return list[i].MuxID > list[j].MuxID })
	t.byOwner[owner] = list
	t.mu.Unlock()

	log.G(ctx).WithField("muxid", muxid).WithField("skin", slot.Name).Debug("ppd attached")
	return d, nil
}

// Detach runs the CLEANUP hook's per-skin teardown (spec.md §4.7, §4.8):
// every PPD of owner is detached in descending skin-id order, then the
// sys-PPD is destroyed last. It is idempotent: calling it twice for the
// same owner is a no-op the second time (spec.md §8).
func (t *Table) Detach(ctx context.Context, owner any) error {
	t.locks.Lock(ownerOnlyKey(owner))
	defer t.locks.Unlock(ownerOnlyKey(owner))

	t.mu.Lock()
	list := append([]*Descriptor(nil), t.byOwner[owner]...)
	t.mu.Unlock()
	if len(list) == 0 {
		return nil
	}

	for _, d := range list {
		if d.MuxID == SysSkinID {
			continue // destroyed last, below
		}
		if err := t.detachOne(ctx, d); err != nil {
			log.G(ctx).WithField("muxid", d.MuxID).WithError(err).Error("ppd: detach failed")
		}
	}
	if sys := t.Lookup(owner, SysSkinID); sys != nil {
		if err := t.detachOne(ctx, sys); err != nil {
			log.G(ctx).WithError(err).Error("ppd: sys-ppd detach failed")
		}
	}

	t.mu.Lock()
	delete(t.byOwner, owner)
	t.mu.Unlock()
	return nil
}

func (t *Table) detachOne(ctx context.Context, d *Descriptor) error {
	slot := t.Skins.Lookup(d.MuxID)
	if slot == nil {
		return fmt.Errorf("ppd: no skin registered for muxid %d: %w", d.MuxID, errdefs.ErrNotFound)
	}
	defer t.Skins.Release(slot)

	t.mu.Lock()
	delete(t.byKey, Key{d.Owner, d.MuxID})
	t.mu.Unlock()

	if slot.EventCB != nil {
		return slot.EventCB.Detach(ctx, d.Owner, d.State)
	}
	return nil
}
