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

// Package hostif is the contract boundary between the nucleus and the
// host-OS kernel: the interrupt pipeline, task scheduler and
// memory-mapping facilities that spec.md §1 places out of scope. Every
// other package in this module reaches the host only through the
// interfaces declared here, never through a direct syscall.
package hostif

import (
	"os"
	"time"
)

// TaskState mirrors the handful of host scheduler states the nucleus
// cares about. It intentionally does not attempt to be a complete model
// of the host scheduler.
type TaskState int

const (
	Running TaskState = iota
	Interruptible
	Stopped
)

// Signal is a host-delivered signal number, kept abstract so tests do not
// need a real process to exercise signal delivery.
type Signal = os.Signal

// Task is the host-OS task mated to a TCB. Implementations wrap whatever
// the host OS calls a task/thread (a pid, a kernel task_struct, ...); the
// nucleus only ever holds the interface.
type Task interface {
	// ID returns a stable identity comparable with ==, suitable as a map
	// key (tcb.Registry indexes on it).
	ID() any
	// SetState requests a host scheduler state transition. Setting
	// Interruptible does not block; the caller must separately invoke
	// Scheduler.Reschedule to actually yield the CPU.
	SetState(TaskState) error
	State() TaskState
	// Wake transitions a task out of Interruptible back to Running.
	Wake() error
	// Kick delivers a signal that interrupts any blocking host syscall.
	// No code in this module calls it: core/domain.Engine.Kick, used by
	// the sigwake hook and the watchdog, sets TCB bits, wakes the task and
	// arms the mayday page instead.
	Kick(Signal) error
	// SetAffinity realigns the host task's CPU mask (§4.3.2 step 8).
	SetAffinity(mask uint64) error
	// SetPriority sets the host scheduling class/priority pair the TCB
	// maps to when relaxed (§4.3.2 step 4): fifo true selects SCHED_FIFO
	// with prio in [1, host_fifo_max-1]; fifo false selects SCHED_OTHER
	// and prio is ignored.
	SetPriority(fifo bool, prio int) error
}

// Scheduler is the per-CPU host scheduler contract used by the gatekeeper
// and the mode-transition engine.
type Scheduler interface {
	// CPU returns the index of the CPU this Scheduler instance represents.
	CPU() int
	// Reschedule yields the calling goroutine's host task until it is
	// woken, i.e. the host-domain equivalent of schedule(). It returns
	// when the task is next made Running, which may be due to a normal
	// wake or a spurious signal.
	Reschedule() error
	// FIFOMax returns the host's usable SCHED_FIFO priority ceiling, used
	// to clamp TCB priority when relaxing (§4.3.2 step 4).
	FIFOMax() int
	// Now returns the current host monotonic time, used for statistics
	// and the watchdog.
	Now() time.Time
}
