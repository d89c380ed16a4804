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

package tcb

import (
	"fmt"
	"sync"

	"github.com/containerd/errdefs"
)

// Registry maps host task identities to their mated TCB. Lookups must be
// safe from interrupt-like contexts (§4.1): Lookup takes only the read
// side of the mutex, so concurrent lookups do not exclude each other;
// bind/unbind bookkeeping and the per-mm sweep used by unbind_all take
// the write side.
type Registry struct {
	mu      sync.RWMutex
	byTask  map[any]*TCB
	byOwner map[any][]*TCB // grouped by the opaque "mm" (owning process) key
}

// NewRegistry returns an empty TCB registry.
func NewRegistry() *Registry {
	return &Registry{
		byTask:  make(map[any]*TCB),
		byOwner: make(map[any][]*TCB),
	}
}

// Bind associates hostTask with tcb under the given owner key (the "mm").
func (r *Registry) Bind(owner, hostTask any, t *TCB) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byTask[hostTask]; ok {
		return fmt.Errorf("task already has a shadow TCB: %w", errdefs.ErrAlreadyExists)
	}
	t.HostTask = hostTask
	r.byTask[hostTask] = t
	r.byOwner[owner] = append(r.byOwner[owner], t)
	return nil
}

// Lookup resolves hostTask to its TCB. It returns nil if unbound, or if
// wantMagic is non-zero and does not match the owning TCB's skin magic
// (§4.1: "returns NULL ... if the owning TCB's magic does not match the
// expected skin").
func (r *Registry) Lookup(hostTask any, wantMagic uint32) *TCB {
	r.mu.RLock()
	t, ok := r.byTask[hostTask]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	if wantMagic != 0 && t.Magic != wantMagic {
		return nil
	}
	return t
}

// Unbind clears the association for hostTask. Idempotent.
func (r *Registry) Unbind(hostTask any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byTask[hostTask]
	if !ok {
		return
	}
	delete(r.byTask, hostTask)
	r.removeFromOwnerLocked(t)
}

// UnbindAll sweeps every TCB registered under owner (called from the
// cleanup hook on process exit, §4.8). Idempotent: a second call on the
// same owner is a no-op, satisfying the idempotence law in spec.md §8.
func (r *Registry) UnbindAll(owner any) []*TCB {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.byOwner[owner]
	if len(list) == 0 {
		return nil
	}
	for _, t := range list {
		delete(r.byTask, t.HostTask)
	}
	delete(r.byOwner, owner)
	return list
}

func (r *Registry) removeFromOwnerLocked(t *TCB) {
	for owner, list := range r.byOwner {
		for i, cand := range list {
			if cand == t {
				r.byOwner[owner] = append(list[:i], list[i+1:]...)
				if len(r.byOwner[owner]) == 0 {
					delete(r.byOwner, owner)
				}
				return
			}
		}
	}
}
