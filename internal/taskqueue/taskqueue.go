// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package taskqueue is a bounded multi-producer multi-consumer queue used to
// hand completed signal waits off to the dispatcher's worker pool (spec.md
// §5 "the signal subsystem dispatches handler callbacks on its own worker
// thread(s)"). Every per-signal waiter goroutine is a producer; every pool
// worker is a consumer, so the many-to-many SCQ algorithm is the right fit
// among the teacher's queue family — see DESIGN.md for why the other
// producer/consumer-constrained variants were not kept.
package taskqueue

import (
	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/spin"
)

// ErrWouldBlock is returned by Enqueue/Dequeue when the queue cannot make
// progress immediately (full or empty, respectively).
var ErrWouldBlock = iox.ErrWouldBlock

// pad is cache line padding to prevent false sharing between the hot
// tail/head/threshold/draining fields below.
type pad [64]byte
type padShort [64 - 8]byte

// Queue is an FAA-based MPMC bounded queue of tasks, adapted from the
// SCQ (Scalable Circular Queue, Nikolaev DISC 2019) algorithm: Fetch-And-Add
// blindly increments position counters, requiring 2n physical slots for
// capacity n, and a per-slot cycle number provides ABA safety.
type Queue[T any] struct {
	_         pad
	tail      atomix.Uint64
	_         pad
	head      atomix.Uint64
	_         pad
	threshold atomix.Int64
	_         pad
	draining  atomix.Bool
	_         pad
	buffer    []slot[T]
	capacity  uint64
	size      uint64
	mask      uint64
}

type slot[T any] struct {
	cycle atomix.Uint64
	data  T
	_     padShort
}

// New creates a task queue. Capacity rounds up to the next power of 2.
func New[T any](capacity int) *Queue[T] {
	if capacity < 2 {
		capacity = 2
	}
	n := uint64(roundToPow2(capacity))
	size := n * 2

	q := &Queue[T]{
		buffer:   make([]slot[T], size),
		capacity: n,
		size:     size,
		mask:     size - 1,
	}
	q.threshold.StoreRelaxed(3*int64(n) - 1)
	for i := uint64(0); i < size; i++ {
		q.buffer[i].cycle.StoreRelaxed(i / n)
	}
	return q
}

// Enqueue adds a task. Returns ErrWouldBlock if the queue is full.
func (q *Queue[T]) Enqueue(elem *T) error {
	sw := spin.Wait{}
	for {
		tail := q.tail.LoadAcquire()
		head := q.head.LoadAcquire()
		if tail >= head+q.capacity {
			return ErrWouldBlock
		}

		myTail := q.tail.AddAcqRel(1) - 1
		s := &q.buffer[myTail&q.mask]
		expectedCycle := myTail / q.capacity

		slotCycle := s.cycle.LoadAcquire()
		if slotCycle == expectedCycle {
			s.data = *elem
			s.cycle.StoreRelease(expectedCycle + 1)
			q.threshold.StoreRelaxed(3*int64(q.capacity) - 1)
			return nil
		}
		if int64(slotCycle) < int64(expectedCycle) {
			return ErrWouldBlock
		}
		sw.Once()
	}
}

// Dequeue removes and returns a task. Returns ErrWouldBlock if empty.
func (q *Queue[T]) Dequeue() (T, error) {
	if !q.draining.LoadAcquire() && q.threshold.LoadRelaxed() < 0 {
		var zero T
		return zero, ErrWouldBlock
	}

	sw := spin.Wait{}
	for {
		myHead := q.head.AddAcqRel(1) - 1
		s := &q.buffer[myHead&q.mask]
		expectedCycle := myHead/q.capacity + 1
		slotCycle := s.cycle.LoadAcquire()

		if slotCycle == expectedCycle {
			elem := s.data
			var zero T
			s.data = zero
			nextEnqCycle := (myHead + q.size) / q.capacity
			s.cycle.StoreRelease(nextEnqCycle)
			return elem, nil
		}

		if int64(slotCycle) < int64(expectedCycle) {
			nextEnqCycle := (myHead + q.size) / q.capacity
			s.cycle.CompareAndSwapAcqRel(slotCycle, nextEnqCycle)

			tail := q.tail.LoadAcquire()
			if tail <= myHead+1 {
				q.catchup(tail, myHead+1)
				q.threshold.AddAcqRel(-1)
				var zero T
				return zero, ErrWouldBlock
			}
			if q.threshold.AddAcqRel(-1) <= 0 && !q.draining.LoadAcquire() {
				var zero T
				return zero, ErrWouldBlock
			}
		}
		sw.Once()
	}
}

func (q *Queue[T]) catchup(tail, head uint64) {
	for tail < head {
		if q.tail.CompareAndSwapRelaxed(tail, head) {
			break
		}
		tail = q.tail.LoadRelaxed()
		head = q.head.LoadRelaxed()
	}
}

// Cap returns the queue's usable capacity.
func (q *Queue[T]) Cap() int { return int(q.capacity) }

func roundToPow2(n int) int {
	if n < 2 {
		return 2
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
