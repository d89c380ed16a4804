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

package plugins

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPluginTypesAreDistinct(t *testing.T) {
	types := []string{string(CorePlugin), string(SkinPlugin), string(ServicePlugin)}
	seen := make(map[string]bool)
	for _, ty := range types {
		assert.False(t, seen[ty], "duplicate plugin type %q", ty)
		seen[ty] = true
	}
}

func TestPropertyKeysAreDistinct(t *testing.T) {
	keys := []string{PropertyRootDir, PropertyStateDir, PropertyConfigPath}
	seen := make(map[string]bool)
	for _, k := range keys {
		assert.False(t, seen[k], "duplicate property key %q", k)
		seen[k] = true
	}
}
