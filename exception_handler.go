// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aqlqueue

import "github.com/rocr-go/aqlqueue/internal/signal"

// exceptionErrorTable maps an EC_* bit position (1-based, as posted by the
// GPU) to the error kind surfaced to the caller's errors callback. First
// match wins (spec.md §4.5), grounded on
// original_source/src/core/runtime/amd_aql_queue.cpp ExceptionHandler's
// QueueErrors table.
var exceptionErrorTable = []struct {
	bit    uint
	status Status
}{
	{1, StatusException},                  // EC_QUEUE_WAVE_ABORT
	{2, StatusException},                  // EC_QUEUE_WAVE_TRAP
	{3, StatusException},                  // EC_QUEUE_WAVE_MATH_ERROR
	{4, StatusIllegalInstruction},         // EC_QUEUE_WAVE_ILLEGAL_INSTRUCTION
	{5, StatusMemoryFault},                // EC_QUEUE_WAVE_MEMORY_VIOLATION
	{6, StatusMemoryApertureViolation},    // EC_QUEUE_WAVE_APERTURE_VIOLATION
	{16, StatusIncompatibleArguments},     // EC_QUEUE_PACKET_DISPATCH_DIM_INVALID
	{17, StatusInvalidAllocation},         // EC_QUEUE_PACKET_DISPATCH_GROUP_SEGMENT_SIZE_INVALID
	{18, StatusInvalidCodeObject},         // EC_QUEUE_PACKET_DISPATCH_CODE_INVALID
	{20, StatusInvalidPacketFormat},       // EC_QUEUE_PACKET_UNSUPPORTED
	{21, StatusInvalidArgument},           // EC_QUEUE_PACKET_DISPATCH_WORK_GROUP_SIZE_INVALID
	{22, StatusInvalidISA},                // EC_QUEUE_PACKET_DISPATCH_REGISTER_SIZE_INVALID
	{23, StatusInvalidPacketFormat},       // EC_QUEUE_PACKET_VENDOR_UNSUPPORTED
	{31, StatusError},                     // EC_QUEUE_PREEMPTION_ERROR
	{33, StatusMemoryApertureViolation},   // EC_DEVICE_MEMORY_VIOLATION
	{34, StatusError},                     // EC_DEVICE_RAS_ERROR
	{35, StatusError},                     // EC_DEVICE_FATAL_HALT
	{36, StatusError},                     // EC_DEVICE_NEW
	{50, StatusError},                     // EC_PROCESS_DEVICE_REMOVE
}

func decodeExceptionBitmask(errorCode uint64) Status {
	for _, e := range exceptionErrorTable {
		if errorCode&(1<<(e.bit-1)) != 0 {
			return e.status
		}
	}
	return StatusError
}

// exceptionHandler is registered on the exception signal with condition
// "value != 0" (spec.md §4.5). Unlike the scratch handler it never
// re-arms: an exception is terminal for this queue's exception channel.
func (q *Queue) exceptionHandler(value uint64) signal.Outcome {
	if q.exceptionState.LoadAcquire()&handlerTerminate != 0 {
		q.markHandlerDone(&q.exceptionState)
		q.exception.StoreRelease(0)
		return signal.Unarm()
	}

	kind := decodeExceptionBitmask(value)

	_ = q.Suspend()
	if q.errorsCallback != nil {
		q.errorsCallback(kind, q.PublicHandle(), q.userData)
	}

	q.markHandlerDone(&q.exceptionState)
	q.exception.StoreRelease(0)
	return signal.Unarm()
}
