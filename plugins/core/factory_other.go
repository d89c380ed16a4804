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

//go:build !linux

package core

import (
	"runtime"

	"github.com/xenocore/nucleus/core/dispatch"
	"github.com/xenocore/nucleus/core/domain"
	"github.com/xenocore/nucleus/core/hostif"
)

func init() {
	hostFactory = fakeHostFactory
}

// fakeHostFactory backs non-Linux builds with the in-memory hostif
// implementation; nucleusd still runs, but no real thread is ever hardened
// since nothing delivers host signals or scheduler-class changes into it.
func fakeHostFactory(numCPU int) ([]hostif.Scheduler, []hostif.Task, domain.MirrorSync, dispatch.HostPropagator) {
	schedulers := make([]hostif.Scheduler, numCPU)
	gatekeepers := make([]hostif.Task, numCPU)
	for i := 0; i < numCPU; i++ {
		schedulers[i] = hostif.NewFakeScheduler(i, 99)
		gatekeepers[i] = hostif.NewFakeTask(i)
	}
	return schedulers, gatekeepers, nil, nil
}

func defaultNumCPU() int { return runtime.NumCPU() }
