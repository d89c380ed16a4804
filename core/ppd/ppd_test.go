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

package ppd

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenocore/nucleus/core/mayday"
	"github.com/xenocore/nucleus/core/skin"
)

type countingCB struct {
	attached atomic.Int32
	detached atomic.Int32
}

func (c *countingCB) Attach(ctx context.Context, owner any) (any, error) {
	c.attached.Add(1)
	return "state-" + owner.(string), nil
}

func (c *countingCB) Detach(ctx context.Context, owner any, state any) error {
	c.detached.Add(1)
	return nil
}

func newTestTable(t *testing.T) (*Table, *countingCB, *countingCB) {
	t.Helper()
	registry := skin.NewRegistry()
	sysCB := &countingCB{}
	otherCB := &countingCB{}

	_, err := registry.Register(skin.Props{Name: "sys", Magic: 1, EventCB: sysCB})
	require.NoError(t, err)
	nativeSlot, err := registry.Register(skin.Props{Name: "native", Magic: 2, EventCB: otherCB})
	require.NoError(t, err)
	require.NotEqual(t, SysSkinID, nativeSlot.MuxID)

	return NewTable(registry, mayday.Get(), mayday.NewDevice()), sysCB, otherCB
}

func TestAttachCreatesSysAndSkinPPD(t *testing.T) {
	table, sysCB, otherCB := newTestTable(t)

	d, err := table.Attach(context.Background(), "owner-a", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, d.MuxID)
	assert.Equal(t, "state-owner-a", d.State)
	assert.NotNil(t, d.parent)
	assert.Equal(t, SysSkinID, d.parent.MuxID)

	assert.EqualValues(t, 1, sysCB.attached.Load())
	assert.EqualValues(t, 1, otherCB.attached.Load())

	assert.NotNil(t, table.SysPPD("owner-a"))
}

func TestAttachSysSkinDirectly(t *testing.T) {
	table, sysCB, _ := newTestTable(t)
	d, err := table.Attach(context.Background(), "owner-a", SysSkinID)
	require.NoError(t, err)
	assert.Equal(t, SysSkinID, d.MuxID)
	assert.Nil(t, d.parent)
	assert.EqualValues(t, 1, sysCB.attached.Load())
}

func TestAttachIsRefcountedOnSecondCall(t *testing.T) {
	table, sysCB, otherCB := newTestTable(t)
	_, err := table.Attach(context.Background(), "owner-a", 1)
	require.NoError(t, err)
	_, err = table.Attach(context.Background(), "owner-a", 1)
	require.NoError(t, err)

	// Attach is only called once per process per skin.
	assert.EqualValues(t, 1, sysCB.attached.Load())
	assert.EqualValues(t, 1, otherCB.attached.Load())
}

func TestAttachUnknownMuxID(t *testing.T) {
	table, _, _ := newTestTable(t)
	_, err := table.Attach(context.Background(), "owner-a", 99)
	assert.Error(t, err)
}

func TestAttachConcurrentRaceCollapsesToOneAttach(t *testing.T) {
	table, _, otherCB := newTestTable(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := table.Attach(context.Background(), "owner-race", 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, otherCB.attached.Load())
}

func TestDetachRunsInDescendingOrderAndIsIdempotent(t *testing.T) {
	table, sysCB, otherCB := newTestTable(t)
	_, err := table.Attach(context.Background(), "owner-a", 1)
	require.NoError(t, err)

	require.NoError(t, table.Detach(context.Background(), "owner-a"))
	assert.EqualValues(t, 1, sysCB.detached.Load())
	assert.EqualValues(t, 1, otherCB.detached.Load())
	assert.Nil(t, table.SysPPD("owner-a"))

	// idempotent: a second call is a no-op
	require.NoError(t, table.Detach(context.Background(), "owner-a"))
	assert.EqualValues(t, 1, sysCB.detached.Load())
	assert.EqualValues(t, 1, otherCB.detached.Load())
}

func TestDetachUnknownOwnerIsNoop(t *testing.T) {
	table, _, _ := newTestTable(t)
	assert.NoError(t, table.Detach(context.Background(), "nobody"))
}

func TestLookupMissing(t *testing.T) {
	table, _, _ := newTestTable(t)
	assert.Nil(t, table.Lookup("nobody", 0))
}
