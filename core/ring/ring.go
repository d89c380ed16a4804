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

// Package ring implements the low-stage request queue of spec.md §3: a
// per-CPU, single-producer/single-consumer circular buffer of pending
// host-domain actions queued from real-time context. Size is fixed at
// compile time, power-of-two, 128 slots, matching the source.
package ring

import (
	"fmt"
	"sync/atomic"
)

// Size is the ring's slot count; must stay a power of two (the source uses
// a mask rather than a modulo for the index wrap).
const Size = 128

// Kind enumerates the host-domain actions the ring carries.
type Kind int

const (
	WakeTask Kind = iota
	StartTask
	UnmapTCB
	SignalThread
	SignalGroup
)

// Request is one queued low-stage action.
type Request struct {
	Kind   Kind
	Target any // the TCB or thread-group this action applies to
	Signal int // populated for SignalThread/SignalGroup
}

// Ring is a single-producer/single-consumer circular buffer. The producer
// is real-time context (push), the consumer is an APC running in the host
// domain (pop). Testable Property 4 in spec.md §8 requires that the ring
// never silently overflow; Push panics instead, matching "the
// implementation must panic rather than corrupt".
type Ring struct {
	slots [Size]Request
	in    atomic.Uint64
	out   atomic.Uint64
}

// New returns an empty Ring.
func New() *Ring { return &Ring{} }

// Push enqueues req. It panics if the ring is full, per Testable Property
// 4 ("the implementation must panic rather than corrupt").
func (r *Ring) Push(req Request) {
	in := r.in.Load()
	out := r.out.Load()
	if in-out >= Size {
		panic(fmt.Sprintf("ring: low-stage queue overflow (in=%d out=%d size=%d)", in, out, Size))
	}
	r.slots[in%Size] = req
	// The write above must be visible before the index advances that
	// publishes it (§5: "write-before-index-advance ordering is enforced
	// by a barrier"). atomic.Uint64.Store on the shared index is that
	// barrier in the Go memory model: a Load observing the new "in" value
	// happens-after this Store, and thus after the plain slot write above.
	r.in.Store(in + 1)
}

// Pop dequeues the oldest pending request. ok is false if the ring is
// empty.
func (r *Ring) Pop() (req Request, ok bool) {
	out := r.out.Load()
	in := r.in.Load()
	if out >= in {
		return Request{}, false
	}
	req = r.slots[out%Size]
	r.out.Store(out + 1)
	return req, true
}

// Len reports the number of pending requests.
func (r *Ring) Len() int {
	return int(r.in.Load() - r.out.Load())
}
