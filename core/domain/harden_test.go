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

package domain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenocore/nucleus/core/hostif"
	"github.com/xenocore/nucleus/core/tcb"
)

func TestHardenCommitsAndClearsRelaxed(t *testing.T) {
	rig := newTestRig(t)

	host := hostif.NewFakeTask("migrant")
	c := tcb.New(1, 0, 50, tcb.ClassFIFO)
	c.HostTask = host
	c.SetBits(tcb.Relaxed)

	err := rig.engine.Harden(context.Background(), c)
	require.NoError(t, err)
	assert.False(t, c.TestState(tcb.Relaxed))
	assert.False(t, c.TestInfo(tcb.Atomic))
	assert.EqualValues(t, 1, c.Stats.ModeSwitches)
}

func TestHardenPopsTCBFromRPIQueue(t *testing.T) {
	rig := newTestRig(t)
	rig.sched.Wake() // unblock Relax's Reschedule call

	host := hostif.NewFakeTask("migrant")
	c := tcb.New(1, 0, 60, tcb.ClassFIFO)
	c.HostTask = host

	require.NoError(t, rig.engine.Relax(context.Background(), c, false))
	assert.True(t, c.RPILinked)
	assert.Equal(t, 60, rig.engine.Tracker.RootPriority(0))

	require.NoError(t, rig.engine.Harden(context.Background(), c))
	assert.False(t, c.RPILinked)
	assert.Equal(t, -1, rig.engine.Tracker.RootPriority(0))
}

func TestHardenNilTCB(t *testing.T) {
	rig := newTestRig(t)
	err := rig.engine.Harden(context.Background(), nil)
	assert.ErrorIs(t, err, ErrPermission)
}

func TestHardenNoHostTask(t *testing.T) {
	rig := newTestRig(t)
	c := tcb.New(1, 0, 50, tcb.ClassFIFO)
	err := rig.engine.Harden(context.Background(), c)
	assert.ErrorIs(t, err, ErrPermission)
}
