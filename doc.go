// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package aqlqueue manages a single hardware command queue used by a GPU
// compute agent to consume Architected Queuing Language (AQL) packets.
//
// A Queue owns: the packet ring buffer (with the double-mapped layout
// required by legacy GFX7/8 hardware), the doorbell submission path, the
// KMD-backed lifecycle (construction, suspension, priority, teardown), and
// the two asynchronous fault channels the GPU raises on the queue's
// inactive signal — dynamic scratch reallocation and hardware exceptions.
//
// # Quick start
//
//	q, err := aqlqueue.New(gpuAgent, kmdDriver, aqlqueue.Config{
//	    RequestedPackets: 256,
//	    NodeID:           0,
//	})
//	if err != nil {
//	    return err
//	}
//	defer q.Destroy()
//
//	idx := q.AddWriteIndexAcqRel(1)
//	slot := q.PacketAt(idx)
//	// ... producer fills slot with an AQL packet ...
//	q.StoreRelease(idx + 1)
//
// # Ordering
//
// Every index and doorbell operation is exposed with an explicit memory
// ordering suffix — Acquire, Release, Relaxed, or AcqRel — mirroring the
// external interface this queue type presents to producers:
//
//	LoadReadIndexAcquire / LoadReadIndexRelaxed
//	LoadWriteIndexAcquire / LoadWriteIndexRelaxed
//	StoreWriteIndexRelaxed / StoreWriteIndexRelease
//	CasWriteIndexAcquire / CasWriteIndexAcqRel / CasWriteIndexRelease / CasWriteIndexRelaxed
//	AddWriteIndexAcquire / AddWriteIndexAcqRel / AddWriteIndexRelease / AddWriteIndexRelaxed
//
// Producers reserve slots with Add, fill the slot, then StoreRelease the
// doorbell signal — the release fence sequences the packet payload write
// before the doorbell becomes visible to the GPU.
//
// # Fault handling
//
// Two handlers are registered against the queue's signal subsystem at
// construction: a scratch-fault handler that grows or reclaims per-wave
// scratch memory in response to GPU-raised faults, and (when the driver
// routes exceptions to a dedicated channel) an exception handler that
// decodes the fault bitmask and invokes the caller's error callback after
// suspending the queue. Without a dedicated channel, the scratch-fault
// handler decodes exception bits itself. Both drain to DONE cooperatively
// before Destroy frees the queue's resources — see [Queue.Destroy].
//
// # Error handling
//
// [ErrWouldBlock] and the [IsWouldBlock]/[IsSemantic]/[IsNonFailure]
// classifiers re-export the [code.hybscloud.com/iox] control-flow sentinels;
// no operation of this package returns ErrWouldBlock (a full ring makes
// ExecutePM4 yield until a slot frees). Genuine faults surface as a
// [Status] value, delivered to the constructor's error callback — never as
// a Go error returned from a producer-path call, matching the original's
// callback-based fault reporting.
//
// # Race detection
//
// As with any lock-free queue built on explicit-ordering atomics, Go's
// race detector cannot observe the happens-before relationships the ring
// and doorbell protocol establish across separate atomic variables.
// [RaceEnabled] reports whether the detector is active; no test in this
// package currently reads it.
package aqlqueue
