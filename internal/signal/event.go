// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package signal

import "sync"

// Event is the per-process KMD event shared by every interrupt-mode queue
// in the process (spec.md §5 "Per-process" / §3 "Lifecycle"). It exists
// purely as a refcounted handle: creating the first interrupt-mode queue
// creates it, destroying the last one destroys it. This is the module's
// one process-wide singleton (Design Note "Global mutable state").
type Event struct {
	create  func() (uint64, error)
	destroy func(uint64) error
	handle  uint64
}

var (
	eventMu    sync.Mutex
	eventCount uint32
	sharedEvent *Event
)

// AcquireEvent returns the process-wide interrupt event, creating it on the
// 0→1 refcount transition. create/destroy are the KMD event syscalls;
// passing them in keeps this package independent of the kmd package (which
// would otherwise create an import cycle: kmd doesn't need to know about
// signal, but tests want to swap in a fake driver).
func AcquireEvent(create func() (uint64, error), destroy func(uint64) error) (*Event, error) {
	eventMu.Lock()
	defer eventMu.Unlock()

	eventCount++
	if sharedEvent == nil {
		if eventCount != 1 {
			panic("aqlqueue: queue event refcount inconsistency")
		}
		h, err := create()
		if err != nil {
			eventCount--
			return nil, err
		}
		sharedEvent = &Event{create: create, destroy: destroy, handle: h}
	}
	return sharedEvent, nil
}

// ReleaseEvent drops one reference, destroying the event on the 1→0
// transition.
func ReleaseEvent() {
	eventMu.Lock()
	defer eventMu.Unlock()

	if eventCount == 0 {
		panic("aqlqueue: ReleaseEvent with no outstanding acquisitions")
	}
	eventCount--
	if eventCount == 0 {
		_ = sharedEvent.destroy(sharedEvent.handle)
		sharedEvent = nil
	}
}

// EventCount reports the current refcount. Exposed for the testable
// property "the per-process queue_event_ exists iff queue_count_ > 0".
func EventCount() uint32 {
	eventMu.Lock()
	defer eventMu.Unlock()
	return eventCount
}

// EventExists reports whether the shared event is currently allocated.
func EventExists() bool {
	eventMu.Lock()
	defer eventMu.Unlock()
	return sharedEvent != nil
}
