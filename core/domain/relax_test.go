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

func TestRelaxMovesToHostDomain(t *testing.T) {
	rig := newTestRig(t)
	rig.sched.Wake() // unblock the Reschedule call Relax makes

	host := hostif.NewFakeTask("migrant")
	c := tcb.New(1, 0, 50, tcb.ClassFIFO)
	c.HostTask = host
	c.Class = tcb.ClassFIFO

	err := rig.engine.Relax(context.Background(), c, false)
	require.NoError(t, err)
	assert.True(t, c.TestState(tcb.Relaxed))
	assert.Equal(t, hostif.Interruptible, host.State())
	assert.EqualValues(t, 1, c.Stats.ModeSwitches)

	fifo, prio := host.Priority()
	assert.True(t, fifo)
	assert.Equal(t, 50, prio)
}

func TestRelaxClampsFIFOPriority(t *testing.T) {
	rig := newTestRig(t)
	rig.sched.Wake()

	host := hostif.NewFakeTask("migrant")
	c := tcb.New(1, 0, 999, tcb.ClassFIFO) // above fifoMax-1=98
	c.HostTask = host

	require.NoError(t, rig.engine.Relax(context.Background(), c, false))
	fifo, prio := host.Priority()
	assert.True(t, fifo)
	assert.Equal(t, 98, prio)
}

func TestRelaxZeroPriorityMapsToSchedOther(t *testing.T) {
	rig := newTestRig(t)
	rig.sched.Wake()

	host := hostif.NewFakeTask("migrant")
	c := tcb.New(1, 0, 0, tcb.ClassOther)
	c.HostTask = host

	require.NoError(t, rig.engine.Relax(context.Background(), c, false))
	fifo, _ := host.Priority()
	assert.False(t, fifo)
}

func TestRelaxRefusesRootThread(t *testing.T) {
	rig := newTestRig(t)
	host := hostif.NewFakeTask("root")
	c := tcb.New(1, 0, 1, tcb.ClassFIFO)
	c.HostTask = host
	rig.engine.Root[c] = true

	err := rig.engine.Relax(context.Background(), c, false)
	assert.ErrorIs(t, err, ErrPermission)
	assert.False(t, c.TestState(tcb.Relaxed))
}

func TestRelaxNilTCB(t *testing.T) {
	rig := newTestRig(t)
	err := rig.engine.Relax(context.Background(), nil, false)
	assert.ErrorIs(t, err, ErrPermission)
}

func TestRelaxAppliesPendingPriorityAndAffinity(t *testing.T) {
	rig := newTestRig(t)
	rig.sched.Wake()

	host := hostif.NewFakeTask("migrant")
	c := tcb.New(1, 0, 20, tcb.ClassFIFO)
	c.HostTask = host
	c.Priority = 77
	c.SetInfoBits(tcb.PrioritySet)
	c.Affinity = 1 << 3
	c.SetInfoBits(tcb.AffinitySet)

	require.NoError(t, rig.engine.Relax(context.Background(), c, false))
	assert.False(t, c.TestInfo(tcb.PrioritySet))
	assert.False(t, c.TestInfo(tcb.AffinitySet))
	_, prio := host.Priority()
	assert.Equal(t, 77, prio)
	assert.Equal(t, uint64(1<<3), host.Affinity())
}

func TestRelaxNotifyDeliversOnTrapOnSwitch(t *testing.T) {
	rig := newTestRig(t)
	rig.sched.Wake()

	host := hostif.NewFakeTask("migrant")
	c := tcb.New(1, 0, 10, tcb.ClassFIFO)
	c.HostTask = host
	c.SetBits(tcb.TrapOnSwitch)

	var got SigDebugReason
	var gotTCB *tcb.TCB
	dbg := func(tc *tcb.TCB, reason SigDebugReason) {
		gotTCB = tc
		got = reason
	}

	require.NoError(t, rig.engine.RelaxNotify(context.Background(), c, MigratePrioInv, dbg))
	assert.Same(t, c, gotTCB)
	assert.Equal(t, MigratePrioInv, got)
}

func TestRelaxNotifySkipsWithoutTrapOnSwitch(t *testing.T) {
	rig := newTestRig(t)
	rig.sched.Wake()

	host := hostif.NewFakeTask("migrant")
	c := tcb.New(1, 0, 10, tcb.ClassFIFO)
	c.HostTask = host

	called := false
	dbg := func(*tcb.TCB, SigDebugReason) { called = true }

	require.NoError(t, rig.engine.RelaxNotify(context.Background(), c, MigratePrioInv, dbg))
	assert.False(t, called)
}
