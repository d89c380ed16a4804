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

package mayday

import (
	"fmt"
	"sync"
)

// Major/minor identify the /dev/rtheap character device (spec.md §6).
const (
	Major = 10
	Minor = 254
)

// Region is a process-shared memory region handed back by Mmap: either a
// process's fast-IPC heap (core/ppd) or the read-exec mayday page itself.
type Region struct {
	Handle uint64
	Bytes  []byte
}

// Device models the /dev/rtheap character device's file-operations object:
// it supports exactly ioctl(fd, 0, handle) to create/resolve a region,
// followed by mmap to map it (spec.md §4.5, §6). There is no read/write;
// callers reach the region only through the returned Region.
type Device struct {
	mu      sync.Mutex
	regions map[uint64]*Region
	next    uint64
}

// NewDevice returns an unopened /dev/rtheap device.
func NewDevice() *Device {
	return &Device{regions: make(map[uint64]*Region)}
}

// Ioctl allocates (or, for handle != 0, resolves) a region of size bytes
// and returns its handle. Passing handle 0 always creates a fresh region,
// matching ioctl(fd, 0, handle)'s role as the single supported opcode.
func (d *Device) Ioctl(handle uint64, size int) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if handle != 0 {
		if _, ok := d.regions[handle]; !ok {
			return 0, fmt.Errorf("mayday: no such rtheap region %d", handle)
		}
		return handle, nil
	}
	d.next++
	h := d.next
	d.regions[h] = &Region{Handle: h, Bytes: make([]byte, size)}
	return h, nil
}

// Mmap returns the mapped Region for handle.
func (d *Device) Mmap(handle uint64) (*Region, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.regions[handle]
	if !ok {
		return nil, fmt.Errorf("mayday: mmap of unmapped rtheap handle %d", handle)
	}
	return r, nil
}

// Unmap releases handle's region.
func (d *Device) Unmap(handle uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.regions, handle)
}
