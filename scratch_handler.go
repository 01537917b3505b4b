// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aqlqueue

import (
	"github.com/rocr-go/aqlqueue/internal/agent"
	"github.com/rocr-go/aqlqueue/internal/pm4regs"
	"github.com/rocr-go/aqlqueue/internal/signal"
)

// Insufficient-scratch error code bits (spec.md §4.4 step 4).
const (
	errBitInsufficientScratch = 0x401
	errBitWave32              = 0x400
	errCodeLargeScratchReclaim = 512
)

// dynamicScratchHandler is registered on the inactive signal with condition
// "value != 0" (spec.md §4.4). It is re-entrant across queues, but never
// concurrently with itself on the same queue: the waiter goroutine that
// wakes it exits before the next one is spawned at re-arm time.
func (q *Queue) dynamicScratchHandler(value uint64) signal.Outcome {
	const retryBit uint64 = 1 << 63

	errorCode := value
	if errorCode&retryBit != 0 {
		errorCode &^= retryBit
		q.inactive.AndRelaxed(^retryBit)
		for s := q.dynamicScratchState.LoadAcquire(); s&handlerRetry != 0; s = q.dynamicScratchState.LoadAcquire() {
			if q.dynamicScratchState.CompareAndSwapAcqRel(s, s&^handlerRetry) {
				break
			}
		}
	}

	if q.dynamicScratchState.LoadAcquire()&handlerTerminate != 0 {
		return q.finalizeDynamicScratch()
	}

	switch {
	case errorCode == errCodeLargeScratchReclaim:
		return q.handleLargeScratchReclaim()
	case errorCode&errBitInsufficientScratch != 0:
		return q.handleInsufficientScratch(errorCode)
	case q.handleExceptions:
		return q.surfaceDynamicFault(decodeDynamicScratchError(errorCode))
	default:
		// Exceptions are routed to the separate exception channel (C5);
		// clear the inactive signal so it can observe its own channel.
		q.inactive.StoreRelaxed(0)
		return signal.Keep(signal.ConditionNotEqual, 0)
	}
}

// decodeDynamicScratchError maps the GPU-raised bitmask to an error kind
// when this queue's exception channel is folded into the inactive signal
// (spec.md §4.4 step 5).
func decodeDynamicScratchError(code uint64) Status {
	switch {
	case code&2 != 0:
		return StatusIncompatibleArguments
	case code&4 != 0:
		return StatusInvalidAllocation
	case code&8 != 0:
		return StatusInvalidCodeObject
	case code&32 != 0, code&256 != 0:
		return StatusInvalidPacketFormat
	case code&64 != 0:
		return StatusInvalidArgument
	case code&128 != 0:
		return StatusInvalidISA
	case code&0x20000000 != 0:
		return StatusMemoryApertureViolation
	case code&0x40000000 != 0:
		return StatusIllegalInstruction
	case code&0x80000000 != 0:
		return StatusException
	default:
		return StatusError
	}
}

// handleLargeScratchReclaim implements spec.md §4.4 step 3.
func (q *Queue) handleLargeScratchReclaim() signal.Outcome {
	q.scratchMu.Lock()
	if q.scratch.Size != 0 {
		q.ag.ReleaseQueueScratch(&q.scratch)
	}
	q.scratch = agent.ScratchInfo{QueueRetrySignal: q.scratchRetrySignal}
	q.scratchMu.Unlock()

	q.rebuildSRD()
	q.inactive.StoreRelaxed(0)
	q.record.queueProperties.StoreRelease(q.record.queueProperties.LoadRelaxed() &^ QueuePropertyUseScratchOnce)
	return signal.Keep(signal.ConditionNotEqual, 0)
}

// handleInsufficientScratch implements spec.md §4.4 step 4.
func (q *Queue) handleInsufficientScratch(errorCode uint64) signal.Outcome {
	q.scratchMu.Lock()
	if q.scratch.Size != 0 {
		q.ag.ReleaseQueueScratch(&q.scratch)
		q.scratch = agent.ScratchInfo{QueueRetrySignal: q.scratchRetrySignal}
	}
	q.scratchMu.Unlock()

	readIdx := q.record.LoadReadIndexRelaxed()
	pkt := q.ring.Packet(uint32(readIdx) & (q.ring.Packets - 1))
	if !pkt.IsValid() || PacketHeaderType(pkt.LoadHeaderAcquire()) != PacketTypeKernelDispatch {
		return q.surfaceDynamicFault(StatusInvalidPacketFormat)
	}
	dispatch := pkt.AsKernelDispatch()

	lanesPerWave := uint32(64)
	if errorCode&errBitWave32 != 0 {
		lanesPerWave = 32
	}
	sizePerThread := alignUp32(dispatch.PrivateSegmentSize, 1024/lanesPerWave)

	props := q.ag.Properties()
	maxScratchSlots := (uint64(q.record.MaxCUID) + 1) * uint64(props.MaxSlotsScratchCU)
	size := uint64(sizePerThread) * maxScratchSlots * uint64(lanesPerWave)

	wavesPerGroup := ceilDivU64(uint64(dispatch.WorkgroupSizeX)*uint64(dispatch.WorkgroupSizeY)*uint64(dispatch.WorkgroupSizeZ), uint64(lanesPerWave))
	groups := ceilDivU64(uint64(dispatch.GridSizeX), uint64(dispatch.WorkgroupSizeX)) *
		ceilDivU64(uint64(dispatch.GridSizeY), uint64(dispatch.WorkgroupSizeY)) *
		ceilDivU64(uint64(dispatch.GridSizeZ), uint64(dispatch.WorkgroupSizeZ))
	groups = roundUpMultiple(groups, uint64(props.NumShaderBanks))

	wantedSlots := groups * wavesPerGroup
	if wantedSlots > maxScratchSlots {
		wantedSlots = maxScratchSlots
	}
	dispatchSize := uint64(sizePerThread) * wantedSlots * uint64(lanesPerWave)

	q.scratchMu.Lock()
	q.scratch = agent.ScratchInfo{
		Size:             size,
		SizePerThread:    sizePerThread,
		LanesPerWave:     lanesPerWave,
		WavesPerGroup:    wavesPerGroup,
		WantedSlots:      wantedSlots,
		DispatchSize:     dispatchSize,
		QueueRetrySignal: q.scratchRetrySignal,
	}
	q.ag.AcquireQueueScratch(&q.scratch)
	retry, noBase, large := q.scratch.Retry, q.scratch.QueueBase == nil, q.scratch.Large
	q.scratchMu.Unlock()

	if retry {
		q.dynamicScratchState.Add(handlerRetry)
		// Re-arm on the current raw error_code, not on "signal != 0": the
		// inactive signal is already nonzero at this point, so waking on
		// NotEqual(0) would fire immediately and spin (spec.md §4.4 step 4,
		// §5 "bounded retry dance ... without spinning").
		return signal.Keep(signal.ConditionNotEqual, errorCode)
	}
	if noBase {
		return q.surfaceDynamicFault(StatusOutOfResources)
	}

	if large {
		q.record.queueProperties.StoreRelaxed(q.record.queueProperties.LoadRelaxed() | QueuePropertyUseScratchOnce)
		if q.ag.ISAMajorVersion() == 8 && q.ag.GetMicrocodeVersion() < 729 {
			dispatch.Header = pm4regs.SetSystemReleaseFence(dispatch.Header)
		}
	}

	q.rebuildSRD()
	q.inactive.StoreRelease(0)
	return signal.Keep(signal.ConditionNotEqual, 0)
}

// surfaceDynamicFault suspends the queue and invokes the user callback
// (spec.md §4.4 step 7), then finalizes the handler.
func (q *Queue) surfaceDynamicFault(kind Status) signal.Outcome {
	_ = q.Suspend()
	if q.errorsCallback != nil {
		q.errorsCallback(kind, q.PublicHandle(), q.userData)
	}
	return q.finalizeDynamicScratch()
}

// finalizeDynamicScratch implements spec.md §4.4 step 8's terminal branch:
// mark DONE, store the sentinel -1 into the inactive signal with release
// order to wake a blocked Destroy, and unarm. The signal is retained across
// the call so the destructor's own reference keeps it alive even if this
// queue is freed concurrently (spec.md §9 "Cyclic references").
func (q *Queue) finalizeDynamicScratch() signal.Outcome {
	sig := q.inactive
	sig.Retain()
	q.markHandlerDone(&q.dynamicScratchState)
	sig.StoreRelease(^uint64(0))
	sig.Release()
	return signal.Unarm()
}

func alignUp32(v, align uint32) uint32 {
	if align == 0 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}

func ceilDivU64(a, b uint64) uint64 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

func roundUpMultiple(v, m uint64) uint64 {
	if m == 0 {
		return v
	}
	return ceilDivU64(v, m) * m
}
