// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aqlqueue

import (
	"runtime"
	"unsafe"

	"github.com/rocr-go/aqlqueue/internal/pm4regs"
)

// ExecutePM4 injects a PM4 command inline via a single AQL slot, mutually
// excluded on the shared indirect buffer (spec.md §4.6 "ExecutePM4").
func (q *Queue) ExecutePM4(cmd []uint32) error {
	q.pm4Mu.Lock()
	defer q.pm4Mu.Unlock()

	cmdBytes := uint32(len(cmd)) * 4
	if cmdBytes > q.pm4IBBytes {
		return StatusInvalidArgument
	}

	// Step 1: reserve a slot, retrying while the ring is full.
	writeIdx := q.AddWriteIndexAcqRel(1)
	for writeIdx-q.LoadReadIndexRelaxed() >= uint64(q.ring.Packets) {
		runtime.Gosched()
	}

	// Step 2: copy the client's PM4 into the shared IB.
	ib := (*[1 << 20]uint32)(q.pm4IB)[:len(cmd):len(cmd)]
	copy(ib, cmd)

	// Step 3: build the INDIRECT_BUFFER jump.
	ibJump := pm4regs.IndirectBufferJump(uint64(uintptr(q.pm4IB)), uint32(len(cmd)))

	slot := make([]uint32, PacketSizeBytes/4)
	isaMajor := q.ag.ISAMajorVersion()
	switch {
	case isaMajor <= 8:
		// Step 4 (ISA <= 8): [NOP pad | INDIRECT_BUFFER | RELEASE_MEM].
		const ibJumpDwords = 4
		const relMemDwords = 7
		nopPadDwords := uint32(len(slot)) - (ibJumpDwords + relMemDwords)

		copy(slot, pm4regs.Nop(nopPadDwords))
		copy(slot[nopPadDwords:], ibJump[:])
		relMem := pm4regs.ReleaseMem()
		copy(slot[nopPadDwords+ibJumpDwords:], relMem[:])
	default:
		// Step 4 (ISA >= 9): vendor-specific AQL packet embedding the jump.
		slot[0] = uint32(pm4regs.AQLPacketHeaderVendorSpecific()) | uint32(pm4regs.AQLFormatPM4IB)<<16
		slot[1] = ibJump[0]
		slot[2] = ibJump[1]
		slot[3] = ibJump[2]
		slot[4] = ibJump[3]
		slot[5] = pm4regs.PM4IBDwCountRemain
	}

	// Step 5: copy dwords 1..N, then publish dword 0 with release ordering
	// so the slot transitions from INVALID to valid atomically.
	pkt := q.PacketAt(writeIdx)
	dst := (*[PacketSizeBytes / 4]uint32)(unsafe.Pointer(pkt))
	copy(dst[1:], slot[1:])
	pkt.StoreHeaderRelease(slot[0])

	// Step 6: ring the doorbell.
	q.StoreRelease(writeIdx + 1)

	// Step 7: wait until the command has been consumed.
	for q.LoadReadIndexRelaxed() <= writeIdx {
		runtime.Gosched()
	}
	return nil
}
