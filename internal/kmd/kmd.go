// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package kmd describes the opaque kernel-mode driver syscalls an AQL queue
// depends on (spec.md §6 "To the KMD"). The real implementation is a set of
// hsaKmt* ioctls; this package only states the contract so the queue package
// can be built and tested against a fake.
package kmd

import "unsafe"

// QueueType selects the HW queue type requested from the driver.
type QueueType int

const (
	QueueTypeComputeAQL QueueType = iota
	QueueTypeCooperativeAQL
)

// QueueResource is filled in by CreateQueue: the doorbell MMIO pointer and
// the driver-assigned queue id. ErrorReason, when non-nil, is where the
// driver posts the exception-channel signal value directly (used only when
// the driver supports exception debugging — spec.md §4.3 step 10).
type QueueResource struct {
	ReadPtrAQL   *uint64
	WritePtrAQL  *uint64
	ErrorReason  *uint64
	DoorbellMMIO unsafe.Pointer
	QueueID      uint64
}

// EventHandle is an opaque per-process interrupt event shared by all
// interrupt-mode queues (spec.md §5 "Per-process" / §6 "Event creation").
type EventHandle uintptr

// Driver is the abstract KMD capability. Every call is synchronous and may
// fail; the queue package unwinds partial construction on any failure.
type Driver interface {
	CreateQueue(nodeID uint32, qtype QueueType, percent uint32, priority int32,
		ring unsafe.Pointer, ringBytes uint32, event *EventHandle, rsrc *QueueResource) error
	DestroyQueue(queueID uint64) error
	UpdateQueue(queueID uint64, percent uint32, priority int32, ring unsafe.Pointer, ringBytes uint32, event *EventHandle) error
	SetQueueCUMask(queueID uint64, maskBits uint32, mask []uint32) error
	AllocQueueGWS(queueID uint64, slotCount int) (numGWS uint32, err error)

	CreateEvent() (EventHandle, error)
	DestroyEvent(EventHandle) error

	// SupportsExceptionDebugging reports whether the driver posts hardware
	// exceptions to a dedicated ErrorReason signal rather than multiplexing
	// them onto the inactive signal — spec.md §4.3 step 10 / Design Note 1.
	SupportsExceptionDebugging() bool
}
