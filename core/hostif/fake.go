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

package hostif

import (
	"sync"
	"time"
)

// FakeTask is an in-memory Task used by tests and by platforms without a
// production hostif backend.
type FakeTask struct {
	mu       sync.Mutex
	id       any
	state    TaskState
	affinity uint64
	fifo     bool
	prio     int
	kicks    []Signal
	woken    int
}

// NewFakeTask returns a FakeTask identified by id, initially Running.
func NewFakeTask(id any) *FakeTask {
	return &FakeTask{id: id, state: Running}
}

func (t *FakeTask) ID() any { return t.id }

func (t *FakeTask) SetState(s TaskState) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
	return nil
}

func (t *FakeTask) State() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *FakeTask) Wake() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = Running
	t.woken++
	return nil
}

func (t *FakeTask) Kick(sig Signal) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.kicks = append(t.kicks, sig)
	return nil
}

func (t *FakeTask) SetAffinity(mask uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.affinity = mask
	return nil
}

func (t *FakeTask) SetPriority(fifo bool, prio int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fifo, t.prio = fifo, prio
	return nil
}

// Kicks returns every signal delivered via Kick so far, for assertions.
func (t *FakeTask) Kicks() []Signal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Signal(nil), t.kicks...)
}

// WakeCount returns how many times Wake has been called.
func (t *FakeTask) WakeCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.woken
}

// Affinity returns the last mask passed to SetAffinity.
func (t *FakeTask) Affinity() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.affinity
}

// Priority returns the last (fifo, prio) pair passed to SetPriority.
func (t *FakeTask) Priority() (bool, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fifo, t.prio
}

// FakeScheduler is an in-memory Scheduler for one CPU, used by tests.
type FakeScheduler struct {
	cpu     int
	fifoMax int
	wake    chan struct{}
	clock   time.Time
}

// NewFakeScheduler returns a Scheduler for cpu with a usable SCHED_FIFO
// range of [1, fifoMax-1].
func NewFakeScheduler(cpu, fifoMax int) *FakeScheduler {
	return &FakeScheduler{
		cpu:     cpu,
		fifoMax: fifoMax,
		wake:    make(chan struct{}, 1),
		clock:   time.Now(),
	}
}

func (s *FakeScheduler) CPU() int     { return s.cpu }
func (s *FakeScheduler) FIFOMax() int { return s.fifoMax }
func (s *FakeScheduler) Now() time.Time {
	return s.clock
}

// Advance moves the fake clock forward, for watchdog tests.
func (s *FakeScheduler) Advance(d time.Duration) { s.clock = s.clock.Add(d) }

func (s *FakeScheduler) Reschedule() error {
	<-s.wake
	return nil
}

// Wake unblocks one pending Reschedule call.
func (s *FakeScheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
