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

// Package psos registers the pSOS+ compatibility skin. Queue/semaphore/
// region object semantics are out of scope (spec.md §1); this plugin only
// supplies register_interface plumbing.
package psos

import (
	"context"
	"fmt"

	"github.com/containerd/plugin"
	"github.com/containerd/plugin/registry"

	nucleuscore "github.com/xenocore/nucleus/core"
	"github.com/xenocore/nucleus/core/skin"
	"github.com/xenocore/nucleus/plugins"
)

// Magic is the pSOS+ skin's ABI magic.
const Magic uint32 = 0x50534f53 // "PSOS"

const OpQSend = iota

func init() {
	registry.Register(&plugin.Registration{
		Type: plugins.SkinPlugin,
		ID:   "psos",
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
				return nil, fmt.Errorf("psos: unexpected core plugin type %T", v)
			}

			cb := &eventCB{}
			props := skin.Props{
				Name:  "psos",
				Magic: Magic,
				Table: []skin.Entry{
					OpQSend: {
						Name:    "q_send",
						Flags:   skin.Shadow | skin.HiStage | skin.Adaptive,
						Handler: qSend,
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

func qSend(ctx context.Context, regs *skin.Regs) (int64, error) {
	return 0, nil
}

type eventCB struct{}

func (eventCB) Attach(ctx context.Context, owner any) (any, error) { return nil, nil }
func (eventCB) Detach(ctx context.Context, owner any, state any) error { return nil }
