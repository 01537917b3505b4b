// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package signal implements the refcounted signal objects and the
// async-handler dispatcher an AQL queue uses to learn about GPU-raised
// faults (spec.md §6 "To the signal subsystem"). Two signal flavors exist:
// DefaultSignal is process-local; InterruptSignal also holds the shared
// per-process event (see event.go). Both wake their waiters through the
// signal's own condition variable; the event is lifecycle bookkeeping only.
package signal

import (
	"sync"

	"code.hybscloud.com/atomix"
)

// Condition is the wait/wake predicate an async handler is registered with.
type Condition int

const (
	// ConditionNotEqual wakes when the signal's value differs from Value.
	ConditionNotEqual Condition = iota
	// ConditionEquals wakes when the signal's value equals Value.
	ConditionEquals
)

func (c Condition) met(value, target uint64) bool {
	switch c {
	case ConditionEquals:
		return value == target
	default:
		return value != target
	}
}

// Signal is a refcounted, waitable 64-bit value shared between a producer
// (this process) and a GPU-raised fault channel. Refcounting lets an async
// handler notify a signal safely even after the owning queue object has
// been freed, per spec.md §5 "Reentrancy note on the scratch handler".
type Signal struct {
	value atomix.Uint64
	refs  atomix.Int64

	mu   sync.Mutex
	cond *sync.Cond

	// event is non-nil for interrupt-mode signals; it exists purely for
	// lifecycle bookkeeping symmetry with the KMD event refcount (see
	// event.go) — wakeups are delivered through cond regardless of flavor.
	event *Event
}

func newSignal(initial uint64, ev *Event) *Signal {
	s := &Signal{event: ev}
	s.cond = sync.NewCond(&s.mu)
	s.value.StoreRelaxed(initial)
	s.refs.StoreRelaxed(1)
	return s
}

// NewDefaultSignal creates a polled, process-local signal.
func NewDefaultSignal(initial uint64) *Signal { return newSignal(initial, nil) }

// NewInterruptSignal creates a signal bound to the given shared event.
func NewInterruptSignal(initial uint64, ev *Event) *Signal { return newSignal(initial, ev) }

// Retain increments the reference count. Call before handing a Signal to a
// context that may outlive the caller's own reference.
func (s *Signal) Retain() { s.refs.Add(1) }

// Release decrements the reference count. Nothing is freed when it
// reaches zero; the garbage collector reclaims the signal.
func (s *Signal) Release() {
	if s.refs.Add(-1) == 0 {
		// Nothing further to free: the Go GC reclaims the struct. The
		// explicit Release/Retain pair exists to document the ownership
		// protocol the original's raw pointers require, not to manage
		// memory by hand.
	}
}

func (s *Signal) LoadRelaxed() uint64 { return s.value.LoadRelaxed() }
func (s *Signal) LoadAcquire() uint64 { return s.value.LoadAcquire() }

func (s *Signal) StoreRelaxed(v uint64) {
	s.mu.Lock()
	s.value.StoreRelaxed(v)
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *Signal) StoreRelease(v uint64) {
	s.mu.Lock()
	s.value.StoreRelease(v)
	s.cond.Broadcast()
	s.mu.Unlock()
}

// AndRelaxed applies value &= mask and returns the new value. Used to clear
// the internal retry bit (spec.md §4.4 step 1) without disturbing the rest
// of a raw error bitmask.
func (s *Signal) AndRelaxed(mask uint64) uint64 {
	s.mu.Lock()
	nv := s.value.LoadRelaxed() & mask
	s.value.StoreRelaxed(nv)
	s.cond.Broadcast()
	s.mu.Unlock()
	return nv
}

// WaitRelaxed blocks until cond(value, target) holds and returns the
// observed value. There is no timeout parameter: per spec.md §5 "no
// client-facing timeout", callers that need bounded waits don't use this.
func (s *Signal) WaitRelaxed(cond Condition, target uint64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		v := s.value.LoadRelaxed()
		if cond.met(v, target) {
			return v
		}
		s.cond.Wait()
	}
}
