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

// Package plugins declares the plugin.Type values nucleusd's own plugins
// register under, mirroring the teacher's top-level plugins package.
package plugins

import "github.com/containerd/plugin"

const (
	// CorePlugin registers the single core.Core instance every other
	// plugin depends on (the plugin.Registration in plugins/core).
	CorePlugin plugin.Type = "io.nucleus.core"

	// SkinPlugin is the type every ABI skin (native, posix, psos+)
	// registers under; InitFn registers the skin's Props through
	// core.Core.RegisterSkin and returns the resulting *skin.Slot.
	SkinPlugin plugin.Type = "io.nucleus.skin"

	// ServicePlugin registers nucleusctl-facing RPC/control-socket
	// services built on top of CorePlugin.
	ServicePlugin plugin.Type = "io.nucleus.service"
)

// InitContext property keys, mirroring the teacher's plugins.PropertyRootDir
// convention for passing daemon-wide paths into each plugin's InitFn.
const (
	PropertyRootDir    = "io.nucleus.root"
	PropertyStateDir   = "io.nucleus.state"
	PropertyConfigPath = "io.nucleus.configpath"
)
