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

// Package domain implements the mode-transition engine (spec.md §4.3):
// harden, relax and kick, the three operations that move a shadow thread
// between the real-time and host domains.
package domain

import (
	"errors"
	"fmt"

	"github.com/containerd/errdefs"
)

// Sentinel errors for the mode-transition engine, matching the kind table
// in spec.md §7.
var (
	// ErrPermission is DOMAIN_MISMATCH: the caller is not a shadow, or
	// tried to relax the root thread.
	ErrPermission = fmt.Errorf("domain: caller is not an eligible shadow: %w", errdefs.ErrPermissionDenied)

	// ErrRestart is SIGNAL_RESTART: a signal raced the gatekeeper handoff;
	// the caller must retry after signal processing.
	ErrRestart = errors.New("domain: migration interrupted by signal, retry")
)

// IsRestart reports whether err is (or wraps) ErrRestart.
func IsRestart(err error) bool { return errors.Is(err, ErrRestart) }
