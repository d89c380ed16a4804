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

package client

import "github.com/xenocore/nucleus/core/bind"

type clientOpts struct {
	magic             uint32
	requestedFeatures uint32
	abiRevision       int
	hasSysNice        bool
	inXenomaiGID      bool
}

// Opt configures a Client before it binds.
type Opt func(*clientOpts)

// WithMagic selects the skin to bind against by its ABI magic, e.g.
// native.Magic.
func WithMagic(magic uint32) Opt {
	return func(o *clientOpts) { o.magic = magic }
}

// WithRequestedFeatures sets the feature bitmask the caller asks for.
func WithRequestedFeatures(features uint32) Opt {
	return func(o *clientOpts) { o.requestedFeatures = features }
}

// WithABIRevision overrides the ABI revision asserted against the skin's
// own (defaults to bind.ABIRevision, the current revision).
func WithABIRevision(rev int) Opt {
	return func(o *clientOpts) { o.abiRevision = rev }
}

// WithCapSysNice tells Bind the calling process holds CAP_SYS_NICE.
func WithCapSysNice() Opt {
	return func(o *clientOpts) { o.hasSysNice = true }
}

// WithXenomaiGID tells Bind the calling process is a member of the
// xenomai_gid group, satisfying sys_bind's alternative admission gate.
func WithXenomaiGID() Opt {
	return func(o *clientOpts) { o.inXenomaiGID = true }
}

func buildOpts(opts []Opt) *clientOpts {
	o := &clientOpts{abiRevision: bind.ABIRevision}
	for _, fn := range opts {
		fn(o)
	}
	return o
}
