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

// Package native registers the "native" (Alchemy) skin against the
// nucleus core. Native's task/queue/event object semantics are explicitly
// out of scope (spec.md §1); this plugin only supplies the
// register_interface surface — name, magic, syscall table, event
// callback — the dispatcher and PPD lifecycle need to route and account
// for native calls.
package native

import (
	"context"
	"fmt"
	"sync"

	"github.com/containerd/plugin"
	"github.com/containerd/plugin/registry"

	nucleuscore "github.com/xenocore/nucleus/core"
	"github.com/xenocore/nucleus/core/skin"
	"github.com/xenocore/nucleus/plugins"
)

// Magic is the native skin's ABI magic, from the end-to-end scenario in
// spec.md §8 ("binds skin 'native', magic 0x454E4154").
const Magic uint32 = 0x454E4154

// Opcodes for the handful of native calls worth modeling end to end:
// rt_task_sleep is the scenario §8 walks through explicitly.
const (
	OpTaskSleep = iota
	OpTaskSetPriority
)

func init() {
	registry.Register(&plugin.Registration{
		Type: plugins.SkinPlugin,
		ID:   "native",
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
				return nil, fmt.Errorf("native: unexpected core plugin type %T", v)
			}

			cb := &eventCB{}
			props := skin.Props{
				Name:  "native",
				Magic: Magic,
				Table: []skin.Entry{
					OpTaskSleep: {
						Name:    "rt_task_sleep",
						Flags:   skin.Shadow | skin.HiStage | skin.Conforming,
						Handler: taskSleep,
					},
					OpTaskSetPriority: {
						Name:    "rt_task_set_priority",
						Flags:   skin.Shadow | skin.HiStage,
						Handler: taskSetPriority,
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

// taskSleep is a placeholder for rt_task_sleep: real delay-queue semantics
// are a native-skin concern out of scope here (spec.md §1); it only has to
// exist so the dispatcher's HISTAGE|CONFORMING routing in spec.md §8's
// scenario 1 has a handler to land on.
func taskSleep(ctx context.Context, regs *skin.Regs) (int64, error) {
	return 0, nil
}

func taskSetPriority(ctx context.Context, regs *skin.Regs) (int64, error) {
	return 0, nil
}

// eventCB tracks, per process, which native objects it has ever created;
// with no object semantics implemented this is just a per-owner counter,
// enough to exercise PPD attach/detach accounting (spec.md §4.7).
type eventCB struct {
	mu    sync.Mutex
	count map[any]int
}

func (cb *eventCB) Attach(ctx context.Context, owner any) (any, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.count == nil {
		cb.count = make(map[any]int)
	}
	cb.count[owner] = 0
	return owner, nil
}

func (cb *eventCB) Detach(ctx context.Context, owner any, state any) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	delete(cb.count, owner)
	return nil
}
