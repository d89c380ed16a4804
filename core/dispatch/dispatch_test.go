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

package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenocore/nucleus/core/domain"
	"github.com/xenocore/nucleus/core/hostif"
	"github.com/xenocore/nucleus/core/mayday"
	"github.com/xenocore/nucleus/core/nklock"
	"github.com/xenocore/nucleus/core/ring"
	"github.com/xenocore/nucleus/core/sched"
	"github.com/xenocore/nucleus/core/skin"
	"github.com/xenocore/nucleus/core/tcb"
)

type testRig struct {
	disp   *Dispatcher
	skins  *skin.Registry
	sched  *hostif.FakeScheduler
	active bool
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	fsched := hostif.NewFakeScheduler(0, 99)
	slot := sched.NewSlot(0, fsched, hostif.NewFakeTask("gatekeeper-0"))

	ctx, cancel := context.WithCancel(context.Background())
	go slot.RunGatekeeper(ctx)
	t.Cleanup(cancel)

	tracker := sched.NewTracker([]*sched.Slot{slot})
	e := domain.NewEngine(&nklock.Lock{}, tracker, []*sched.Slot{slot}, ring.New(), nil)

	r := &testRig{skins: skin.NewRegistry(), sched: fsched, active: true}
	r.disp = &Dispatcher{
		Skins:  r.skins,
		Engine: e,
		Page:   mayday.Get(),
		Active: func() bool { return r.active },
	}
	return r
}

func shadowTCB(cpu int, host hostif.Task) *tcb.TCB {
	c := tcb.New(1, 0, 10, tcb.ClassFIFO)
	c.HostTask = host
	c.CPU = cpu
	return c
}

func TestDispatchInactivePropagates(t *testing.T) {
	r := newTestRig(t)
	r.active = false

	var gotMuxID, gotOp int
	r.disp.Host = func(ctx context.Context, muxid, op int, regs *skin.Regs) (int64, error) {
		gotMuxID, gotOp = muxid, op
		return 42, nil
	}

	res, err := r.disp.Dispatch(context.Background(), nil, 3, 7, &skin.Regs{}, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 42, res)
	assert.Equal(t, 3, gotMuxID)
	assert.Equal(t, 7, gotOp)
}

func TestDispatchInactiveNoHostIsNoSys(t *testing.T) {
	r := newTestRig(t)
	r.active = false
	_, err := r.disp.Dispatch(context.Background(), nil, 0, 0, &skin.Regs{}, nil)
	assert.ErrorIs(t, err, ErrNoSys)
}

func TestDispatchUnknownMuxIDIsNoSys(t *testing.T) {
	r := newTestRig(t)
	_, err := r.disp.Dispatch(context.Background(), nil, 9, 0, &skin.Regs{}, nil)
	assert.ErrorIs(t, err, ErrNoSys)
}

func TestDispatchOpOutOfRangeIsNoSys(t *testing.T) {
	r := newTestRig(t)
	slot, err := r.skins.Register(skin.Props{Name: "empty", Magic: 1})
	require.NoError(t, err)

	_, err = r.disp.Dispatch(context.Background(), nil, slot.MuxID, 0, &skin.Regs{}, nil)
	assert.ErrorIs(t, err, ErrNoSys)
}

func TestDispatchRequiresShadowForShadowEntry(t *testing.T) {
	r := newTestRig(t)
	slot, err := r.skins.Register(skin.Props{Name: "native", Magic: 1, Table: []skin.Entry{
		{Name: "op", Flags: skin.Shadow, Handler: func(context.Context, *skin.Regs) (int64, error) { return 0, nil }},
	}})
	require.NoError(t, err)

	_, err = r.disp.Dispatch(context.Background(), nil, slot.MuxID, 0, &skin.Regs{}, nil)
	assert.ErrorIs(t, err, domain.ErrPermission)
}

func TestDispatchRunsHandlerWithoutStageFlags(t *testing.T) {
	r := newTestRig(t)
	called := 0
	slot, err := r.skins.Register(skin.Props{Name: "native", Magic: 1, Table: []skin.Entry{
		{Name: "op", Handler: func(context.Context, *skin.Regs) (int64, error) { called++; return 7, nil }},
	}})
	require.NoError(t, err)

	host := hostif.NewFakeTask("caller")
	c := shadowTCB(0, host)

	res, err := r.disp.Dispatch(context.Background(), c, slot.MuxID, 0, &skin.Regs{}, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 7, res)
	assert.Equal(t, 1, called)
	assert.EqualValues(t, 1, c.Stats.Syscalls)
}

func TestDispatchLoStagePropagatesFromHost(t *testing.T) {
	r := newTestRig(t)
	called := 0
	slot, err := r.skins.Register(skin.Props{Name: "native", Magic: 1, Table: []skin.Entry{
		{Name: "op", Flags: skin.LoStage, Handler: func(context.Context, *skin.Regs) (int64, error) { called++; return 0, nil }},
	}})
	require.NoError(t, err)

	host := hostif.NewFakeTask("caller")
	c := shadowTCB(0, host)
	c.SetBits(tcb.Relaxed) // already host-domain

	var propagated bool
	r.disp.Host = func(ctx context.Context, muxid, op int, regs *skin.Regs) (int64, error) {
		propagated = true
		return 5, nil
	}

	res, err := r.disp.Dispatch(context.Background(), c, slot.MuxID, 0, &skin.Regs{}, nil)
	require.NoError(t, err)
	assert.True(t, propagated)
	assert.Equal(t, 0, called, "handler itself is not the LoStage host entry point")
	assert.EqualValues(t, 5, res)
}

func TestDispatchLoStageRelaxesFromPrimary(t *testing.T) {
	r := newTestRig(t)
	r.sched.Wake() // unblock Relax's Reschedule call

	slot, err := r.skins.Register(skin.Props{Name: "native", Magic: 1, Table: []skin.Entry{
		{Name: "op", Flags: skin.LoStage, Handler: func(context.Context, *skin.Regs) (int64, error) { return 0, nil }},
	}})
	require.NoError(t, err)

	host := hostif.NewFakeTask("caller")
	c := shadowTCB(0, host) // starts in primary mode

	r.disp.Host = func(ctx context.Context, muxid, op int, regs *skin.Regs) (int64, error) {
		return 0, nil
	}

	_, err = r.disp.Dispatch(context.Background(), c, slot.MuxID, 0, &skin.Regs{}, nil)
	require.NoError(t, err)
	assert.True(t, c.TestState(tcb.Relaxed))
}

func TestDispatchHiStageHardensThenRunsHandler(t *testing.T) {
	r := newTestRig(t)

	called := 0
	slot, err := r.skins.Register(skin.Props{Name: "native", Magic: 1, Table: []skin.Entry{
		{Name: "op", Flags: skin.HiStage, Handler: func(context.Context, *skin.Regs) (int64, error) { called++; return 3, nil }},
	}})
	require.NoError(t, err)

	host := hostif.NewFakeTask("caller")
	c := shadowTCB(0, host)
	c.SetBits(tcb.Relaxed) // starts host-domain

	res, err := r.disp.Dispatch(context.Background(), c, slot.MuxID, 0, &skin.Regs{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, called)
	assert.EqualValues(t, 3, res)
	assert.False(t, c.TestState(tcb.Relaxed))
}

func TestDispatchBrokenSignalsRestart(t *testing.T) {
	r := newTestRig(t)
	slot, err := r.skins.Register(skin.Props{Name: "native", Magic: 1, Table: []skin.Entry{
		{Name: "op", Handler: func(context.Context, *skin.Regs) (int64, error) { return 0, nil }},
	}})
	require.NoError(t, err)

	host := hostif.NewFakeTask("caller")
	c := shadowTCB(0, host)
	c.SetInfoBits(tcb.Broken)

	_, err = r.disp.Dispatch(context.Background(), c, slot.MuxID, 0, &skin.Regs{}, nil)
	assert.ErrorIs(t, err, domain.ErrRestart)
	assert.False(t, c.TestInfo(tcb.Broken))
}

func TestDispatchBrokenNoRestartReturnsAborted(t *testing.T) {
	r := newTestRig(t)
	slot, err := r.skins.Register(skin.Props{Name: "native", Magic: 1, Table: []skin.Entry{
		{Name: "op", Flags: skin.NoRestart, Handler: func(context.Context, *skin.Regs) (int64, error) { return 9, nil }},
	}})
	require.NoError(t, err)

	host := hostif.NewFakeTask("caller")
	c := shadowTCB(0, host)
	c.SetInfoBits(tcb.Broken)

	res, err := r.disp.Dispatch(context.Background(), c, slot.MuxID, 0, &skin.Regs{}, nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrRestart)
	assert.EqualValues(t, 9, res)
}
