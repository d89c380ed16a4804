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

package mayday

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xenocore/nucleus/core/hostif"
)

func TestGetReturnsSingleton(t *testing.T) {
	assert.Same(t, Get(), Get())
}

func TestArmDisarm(t *testing.T) {
	p := Get()
	host := hostif.NewFakeTask("task-mayday-1")

	assert.False(t, p.Armed(host))
	p.Arm(host)
	assert.True(t, p.Armed(host))
	p.Disarm(host)
	assert.False(t, p.Armed(host))
}

func TestDisarmUnarmedIsNoop(t *testing.T) {
	p := Get()
	host := hostif.NewFakeTask("task-mayday-2")
	p.Disarm(host) // never armed
	assert.False(t, p.Armed(host))
}
