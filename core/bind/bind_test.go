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

package bind

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenocore/nucleus/core/mayday"
	"github.com/xenocore/nucleus/core/ppd"
	"github.com/xenocore/nucleus/core/skin"
)

func newTestRegistries(t *testing.T) (*skin.Registry, *ppd.Table) {
	t.Helper()
	skins := skin.NewRegistry()
	_, err := skins.Register(skin.Props{Name: "native", Magic: 0xfeed})
	require.NoError(t, err)
	return skins, ppd.NewTable(skins, mayday.Get(), mayday.NewDevice())
}

func TestBindSucceedsWithSysNice(t *testing.T) {
	skins, ppds := newTestRegistries(t)

	var raised any
	raise := func(owner any) error { raised = owner; return nil }

	muxid, err := Bind(context.Background(), skins, ppds, Request{Magic: 0xfeed, ABIRevision: ABIRevision}, Caller{Owner: "p1", HasSysNice: true}, 0, raise)
	require.NoError(t, err)
	assert.Equal(t, 0, muxid)
	assert.Equal(t, "p1", raised)
	assert.NotNil(t, ppds.SysPPD("p1"))
}

func TestBindSucceedsWithXenomaiGID(t *testing.T) {
	skins, ppds := newTestRegistries(t)
	_, err := Bind(context.Background(), skins, ppds, Request{Magic: 0xfeed, ABIRevision: ABIRevision}, Caller{Owner: "p1", InXenomaiGID: true}, 0, nil)
	require.NoError(t, err)
}

func TestBindRejectsUnknownMagic(t *testing.T) {
	skins, ppds := newTestRegistries(t)
	_, err := Bind(context.Background(), skins, ppds, Request{Magic: 0xdead, ABIRevision: ABIRevision}, Caller{Owner: "p1", HasSysNice: true}, 0, nil)
	assert.Error(t, err)
}

func TestBindRejectsMissingMandatoryFeature(t *testing.T) {
	skins, ppds := newTestRegistries(t)
	_, err := Bind(context.Background(), skins, ppds, Request{Magic: 0xfeed, ABIRevision: ABIRevision, RequestedFeatures: 0x1}, Caller{Owner: "p1", HasSysNice: true}, 0x1, nil)
	assert.Error(t, err)
}

func TestBindRejectsABIMismatch(t *testing.T) {
	skins, ppds := newTestRegistries(t)
	_, err := Bind(context.Background(), skins, ppds, Request{Magic: 0xfeed, ABIRevision: ABIRevision + 1}, Caller{Owner: "p1", HasSysNice: true}, 0, nil)
	assert.Error(t, err)
}

func TestBindRejectsMissingCapability(t *testing.T) {
	skins, ppds := newTestRegistries(t)
	_, err := Bind(context.Background(), skins, ppds, Request{Magic: 0xfeed, ABIRevision: ABIRevision}, Caller{Owner: "p1"}, 0, nil)
	assert.Error(t, err)
}

func TestBindPropagatesRaiseError(t *testing.T) {
	skins, ppds := newTestRegistries(t)
	raise := func(owner any) error { return assert.AnError }
	_, err := Bind(context.Background(), skins, ppds, Request{Magic: 0xfeed, ABIRevision: ABIRevision}, Caller{Owner: "p1", HasSysNice: true}, 0, raise)
	assert.ErrorIs(t, err, assert.AnError)
}
