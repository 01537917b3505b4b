// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aqlqueue

import "fmt"

// Status is the HSA-style error-kind enum surfaced to the errors callback
// registered at construction (spec.md §7). It is a plain error, distinct
// from the iox sentinels in errors.go: iox marks control flow, Status marks
// a genuine fault the caller's callback needs to act on.
type Status int

const (
	StatusSuccess Status = iota
	StatusInvalidQueueCreation
	StatusOutOfResources
	StatusInvalidQueue
	StatusIncompatibleArguments
	StatusInvalidAllocation
	StatusInvalidCodeObject
	StatusInvalidPacketFormat
	StatusInvalidArgument
	StatusInvalidISA
	StatusMemoryApertureViolation
	StatusIllegalInstruction
	StatusMemoryFault
	StatusException
	StatusCUMaskReduced
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusInvalidQueueCreation:
		return "INVALID_QUEUE_CREATION"
	case StatusOutOfResources:
		return "OUT_OF_RESOURCES"
	case StatusInvalidQueue:
		return "INVALID_QUEUE"
	case StatusIncompatibleArguments:
		return "INCOMPATIBLE_ARGUMENTS"
	case StatusInvalidAllocation:
		return "INVALID_ALLOCATION"
	case StatusInvalidCodeObject:
		return "INVALID_CODE_OBJECT"
	case StatusInvalidPacketFormat:
		return "INVALID_PACKET_FORMAT"
	case StatusInvalidArgument:
		return "INVALID_ARGUMENT"
	case StatusInvalidISA:
		return "INVALID_ISA"
	case StatusMemoryApertureViolation:
		return "MEMORY_APERTURE_VIOLATION"
	case StatusIllegalInstruction:
		return "ILLEGAL_INSTRUCTION"
	case StatusMemoryFault:
		return "MEMORY_FAULT"
	case StatusException:
		return "EXCEPTION"
	case StatusCUMaskReduced:
		return "CU_MASK_REDUCED"
	default:
		return "ERROR"
	}
}

// Error implements the error interface so a Status can be returned from
// construction-time failures directly (spec.md §7 "Construction-time
// failures ... surface the first originating kind").
func (s Status) Error() string {
	return fmt.Sprintf("aqlqueue: %s", s.String())
}

// ErrorsCallback is invoked with a fault Status, the queue's public handle,
// and the opaque user data supplied at construction. It never blocks the
// handler from eventually reporting DONE (spec.md §7).
type ErrorsCallback func(status Status, handle Handle, userData any)
