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

// Package nklock provides the single global scheduler-state lock (spec.md
// §5's "nklock"), expressed so the type system — not convention — enforces
// that callers hold it. Functions that require nklock take a *Token
// argument; Lock and With are the only functions that hand out a Token,
// so a caller using them cannot reach one of these functions without
// having acquired the lock first. The type does not prevent forgery: any
// package can declare a zero nklock.Token value.
package nklock

import "sync"

// Lock is the process-wide scheduler-state lock. In the source system this
// is an IRQ-safe spinlock; a goroutine-based model has no interrupts to
// mask, so a plain mutex gives the same mutual exclusion without the
// IRQ-disable side effect (which has no equivalent to model here).
type Lock struct {
	mu sync.Mutex
}

// Token is proof that nklock is held. It carries no data; Lock and With
// hand one out between acquiring and releasing the lock.
type Token struct{ _ struct{} }

// Lock acquires nklock and returns a Token proving it.
func (l *Lock) Lock() *Token {
	l.mu.Lock()
	return &Token{}
}

// Unlock releases nklock. tok must be the Token returned by the matching
// Lock call; it is consumed (the caller should not reuse it).
func (l *Lock) Unlock(tok *Token) {
	_ = tok
	l.mu.Unlock()
}

// With runs fn with nklock held and releases it even if fn panics.
func (l *Lock) With(fn func(*Token)) {
	tok := l.Lock()
	defer l.Unlock(tok)
	fn(tok)
}
