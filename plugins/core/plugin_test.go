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

package core

import (
	"testing"

	"github.com/containerd/plugin"
	"github.com/containerd/plugin/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenocore/nucleus/internal/config"
	"github.com/xenocore/nucleus/plugins"
)

func TestInitRegistersCorePlugin(t *testing.T) {
	all := registry.Graph(func(*plugin.Registration) bool { return false })
	var found *plugin.Registration
	for _, r := range all {
		if r.Type == plugins.CorePlugin && r.ID == "nucleus" {
			found = r
			break
		}
	}
	require.NotNil(t, found, "core plugin must self-register via init")

	cfg, ok := found.Config.(*config.Config)
	require.True(t, ok)
	assert.Equal(t, config.Default(), cfg)
}

func TestHostFactoryIsWiredForThisPlatform(t *testing.T) {
	assert.NotNil(t, hostFactory, "exactly one of factory_linux.go/factory_other.go must set hostFactory")
}
