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

// Package core registers the nucleus core.Core instance as a
// plugin.Registration under plugins.CorePlugin, the way the teacher
// registers its metadata/content services: everything downstream (the
// skin plugins) depends on it and fetches it back out via ic.GetSingle.
package core

import (
	"fmt"

	"github.com/containerd/plugin"
	"github.com/containerd/plugin/registry"

	nucleuscore "github.com/xenocore/nucleus/core"
	"github.com/xenocore/nucleus/core/dispatch"
	"github.com/xenocore/nucleus/core/domain"
	"github.com/xenocore/nucleus/core/hostif"
	"github.com/xenocore/nucleus/internal/config"
	"github.com/xenocore/nucleus/plugins"
)

// hostFactory builds the per-CPU host bindings for numCPU slots. It is set
// by exactly one of factory_linux.go / factory_other.go per build, mirroring
// the teacher's pattern of selecting a platform backend through build tags
// rather than runtime branching.
var hostFactory func(numCPU int) ([]hostif.Scheduler, []hostif.Task, domain.MirrorSync, dispatch.HostPropagator)

func init() {
	registry.Register(&plugin.Registration{
		Type:   plugins.CorePlugin,
		ID:     "nucleus",
		Config: config.Default(),
		InitFn: func(ic *plugin.InitContext) (interface{}, error) {
			cfg, ok := ic.Config.(*config.Config)
			if !ok {
				return nil, fmt.Errorf("core: unexpected config type %T", ic.Config)
			}
			if err := config.Load(ic.Properties[plugins.PropertyConfigPath], cfg); err != nil {
				return nil, err
			}

			numCPU := cfg.NumCPUs
			if numCPU <= 0 {
				numCPU = defaultNumCPU()
			}
			if hostFactory == nil {
				return nil, fmt.Errorf("core: no host factory registered for this platform")
			}
			schedulers, gatekeepers, mirror, host := hostFactory(numCPU)

			c, err := nucleuscore.New(cfg, mirror, host, schedulers, gatekeepers)
			if err != nil {
				return nil, err
			}
			if err := c.Start(ic.Context); err != nil {
				return nil, err
			}
			ic.Meta.Exports["cpus"] = fmt.Sprintf("%d", len(schedulers))
			return c, nil
		},
	})
}
