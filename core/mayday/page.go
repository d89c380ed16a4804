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

// Package mayday implements the mayday trap facility (spec.md §4.5): a
// single kernel page, mapped read+exec into every real-time-capable
// process, that a kicked primary-mode thread is redirected into so it can
// trap back into the kernel and relax.
package mayday

import (
	"sync"

	"github.com/xenocore/nucleus/core/hostif"
)

// Page is the process-wide mayday page. Per the DESIGN NOTES
// ("Ownership of mayday page"), it is handed out as shared references
// only; Get is idempotent via a package-level sync.Once so every caller
// in a process observes the same Page. The set of armed tasks changes
// after init and is guarded by mu.
type Page struct {
	mu    sync.Mutex
	armed map[any]bool
}

var (
	once     sync.Once
	instance *Page
)

// Get returns the process-wide Page, creating it on first use.
func Get() *Page {
	once.Do(func() {
		instance = &Page{armed: make(map[any]bool)}
	})
	return instance
}

// Arm marks host as due for a mayday trap: the next return-to-user
// crossing for that task must execute the mayday syscall. In the absence
// of an actual return-PC rewrite (architecture-specific, out of scope per
// spec.md §1), this only records the task in the armed set that Armed
// reports. core/dispatch does not consult that set, so arming a trap does
// not by itself make the thread relax.
func (p *Page) Arm(host hostif.Task) {
	p.mu.Lock()
	p.armed[host.ID()] = true
	p.mu.Unlock()
}

// Disarm clears a previously armed trap. Nothing in this module calls it
// when a thread relaxes; an armed entry stays until Disarm is called.
func (p *Page) Disarm(host hostif.Task) {
	p.mu.Lock()
	delete(p.armed, host.ID())
	p.mu.Unlock()
}

// Armed reports whether host has a pending mayday trap.
func (p *Page) Armed(host hostif.Task) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.armed[host.ID()]
}
