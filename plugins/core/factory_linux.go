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

package core

import (
	"runtime"

	"github.com/xenocore/nucleus/core/dispatch"
	"github.com/xenocore/nucleus/core/domain"
	"github.com/xenocore/nucleus/core/hostif"
)

func init() {
	hostFactory = linuxHostFactory
}

// linuxHostFactory builds one UnixScheduler/UnixTask pair per CPU slot. The
// gatekeeper's real tid is only known once its goroutine locks an OS thread
// and calls unix.Gettid, so the Task handed to NewSlot here is a
// placeholder identity, and nothing replaces it later. That is harmless
// because RunGatekeeper only reads the gktarget published by
// RequestHarden, never s.gatekeeper itself.
func linuxHostFactory(numCPU int) ([]hostif.Scheduler, []hostif.Task, domain.MirrorSync, dispatch.HostPropagator) {
	schedulers := make([]hostif.Scheduler, numCPU)
	gatekeepers := make([]hostif.Task, numCPU)
	for i := 0; i < numCPU; i++ {
		schedulers[i] = hostif.NewUnixScheduler(i)
		gatekeepers[i] = hostif.NewUnixTask(0)
	}
	return schedulers, gatekeepers, nil, nil
}

func defaultNumCPU() int { return runtime.NumCPU() }
