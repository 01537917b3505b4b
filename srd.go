// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aqlqueue

import (
	"github.com/rocr-go/aqlqueue/internal/agent"
	"github.com/rocr-go/aqlqueue/internal/pm4regs"
)

// rebuildSRD programs the scratch resource descriptor and
// COMPUTE_TMPRING_SIZE from the queue's current scratch allocation
// (spec.md §4.7 "Scratch SRD Builder"), grounded on
// original_source/src/core/runtime/amd_aql_queue.cpp InitScratchSRD.
func (q *Queue) rebuildSRD() {
	q.scratchMu.Lock()
	sc := q.scratch
	q.scratchMu.Unlock()

	base := uint64(uintptr(sc.QueueBase))
	q.record.ScratchResourceDescriptor[0] = uint32(base)
	q.record.ScratchResourceDescriptor[1] = uint32(base >> 32)
	q.record.ScratchResourceDescriptor[2] = uint32(sc.Size)

	if q.ag.ISAMajorVersion() < 10 {
		q.record.ScratchResourceDescriptor[3] = pm4regs.SRDWord3ISABelow10(q.ag.Profile() == agent.ProfileFull)
	} else {
		q.record.ScratchResourceDescriptor[3] = pm4regs.SRDWord3ISA10Plus()
	}

	q.record.ScratchBackingMemoryLocation = sc.QueueProcessOffset
	q.record.ScratchBackingMemoryByteSize = sc.Size
	q.record.ScratchWave64LaneByteSize = uint32(uint64(sc.SizePerThread) * uint64(sc.LanesPerWave) / 64)

	if sc.Size == 0 {
		q.record.ComputeTmpRingSize = 0
		return
	}

	props := q.ag.Properties()
	numCUs := uint32(0)
	if props.NumSIMDPerCU != 0 {
		numCUs = uint32(props.NumFComputeCores / props.NumSIMDPerCU)
	}
	maxScratchWaves := numCUs * uint32(props.MaxSlotsScratchCU)

	waveScratchKB := uint32((uint64(sc.LanesPerWave)*uint64(sc.SizePerThread) + 1023) / 1024)
	numWaves := uint32(0)
	if waveScratchKB != 0 {
		numWaves = uint32(sc.Size / (uint64(waveScratchKB) * 1024))
	}
	if numWaves > maxScratchWaves {
		numWaves = maxScratchWaves
	}
	q.record.ComputeTmpRingSize = pm4regs.ComputeTmpRingSize(waveScratchKB, numWaves)
}

// EnableGWS switches the queue to cooperative (GWS-enabled) mode, which is
// what Destroy uses to short-circuit to agent.GWSRelease instead of running
// the full teardown protocol (spec.md §4.7, §4.3).
func (q *Queue) EnableGWS(slotCount int) error {
	if _, err := q.driver.AllocQueueGWS(q.queueID, slotCount); err != nil {
		return StatusOutOfResources
	}
	q.record.HSAQueue.Type = QueueTypeCooperative
	return nil
}
