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

package psos

import (
	"context"
	"testing"

	"github.com/containerd/plugin"
	"github.com/containerd/plugin/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenocore/nucleus/plugins"
)

func TestInitRegistersPsosSkinPlugin(t *testing.T) {
	all := registry.Graph(func(*plugin.Registration) bool { return false })
	var found *plugin.Registration
	for _, r := range all {
		if r.Type == plugins.SkinPlugin && r.ID == "psos" {
			found = r
			break
		}
	}
	require.NotNil(t, found, "psos skin plugin must self-register via init")
}

func TestQSendIsNoop(t *testing.T) {
	n, err := qSend(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEventCBAttachDetachAreNoops(t *testing.T) {
	var cb eventCB
	state, err := cb.Attach(context.Background(), "owner-a")
	require.NoError(t, err)
	assert.Nil(t, state)
	assert.NoError(t, cb.Detach(context.Background(), "owner-a", nil))
}
