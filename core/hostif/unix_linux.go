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

//go:build linux

package hostif

import (
	"fmt"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// UnixTask is the production Task implementation, backed by a Linux tid.
type UnixTask struct {
	tid   int
	state atomic.Int32
}

// NewUnixTask wraps an existing Linux thread id (as returned by
// unix.Gettid in the thread itself, or by clone(2) in the parent).
func NewUnixTask(tid int) *UnixTask {
	t := &UnixTask{tid: tid}
	t.state.Store(int32(Running))
	return t
}

func (t *UnixTask) ID() any { return t.tid }

func (t *UnixTask) SetState(s TaskState) error {
	t.state.Store(int32(s))
	return nil
}

func (t *UnixTask) State() TaskState { return TaskState(t.state.Load()) }

func (t *UnixTask) Wake() error {
	t.state.Store(int32(Running))
	return unix.Tgkill(unix.Getpid(), t.tid, syscall.Signal(0))
}

func (t *UnixTask) Kick(sig Signal) error {
	sysSig, ok := sig.(syscall.Signal)
	if !ok {
		return fmt.Errorf("hostif: unsupported signal type %T", sig)
	}
	return unix.Tgkill(unix.Getpid(), t.tid, sysSig)
}

func (t *UnixTask) SetAffinity(mask uint64) error {
	var set unix.CPUSet
	for cpu := 0; cpu < 64; cpu++ {
		if mask&(1<<uint(cpu)) != 0 {
			set.Set(cpu)
		}
	}
	return unix.SchedSetaffinity(t.tid, &set)
}

func (t *UnixTask) SetPriority(fifo bool, prio int) error {
	if !fifo {
		return unix.SchedSetscheduler(t.tid, unix.SCHED_OTHER, &unix.SchedParam{})
	}
	return unix.SchedSetscheduler(t.tid, unix.SCHED_FIFO, &unix.SchedParam{Priority: int32(prio)})
}

// UnixScheduler is the production Scheduler implementation for one CPU.
type UnixScheduler struct {
	cpu      int
	fifoMax  int
	wake     chan struct{}
}

// NewUnixScheduler returns a Scheduler bound to the given CPU index.
func NewUnixScheduler(cpu int) *UnixScheduler {
	return &UnixScheduler{
		cpu:     cpu,
		fifoMax: 99, // Linux's usable SCHED_FIFO range is 1..99
		wake:    make(chan struct{}, 1),
	}
}

func (s *UnixScheduler) CPU() int       { return s.cpu }
func (s *UnixScheduler) FIFOMax() int   { return s.fifoMax }
func (s *UnixScheduler) Now() time.Time { return time.Now() }

// Reschedule blocks until Wake is called on this scheduler's channel.
func (s *UnixScheduler) Reschedule() error {
	<-s.wake
	return nil
}

// Wake unblocks one pending Reschedule call.
func (s *UnixScheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
