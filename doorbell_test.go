// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aqlqueue

import (
	"testing"
	"unsafe"
)

func TestDoorbellLegacyGFX7DWEncodesDwordOffset(t *testing.T) {
	record := newQueueRecord()
	record.HSAQueue.Size = 4
	record.StoreWriteIndexRelaxed(2)

	var mmio uint32
	d := newDoorbell(DoorbellLegacyGFX7DW, false, record, unsafe.Pointer(&mmio))
	d.StoreRelaxed(0) // legacy variants read the write index from record, not the argument

	if want := uint32(2 * (PacketSizeBytes / 4)); mmio != want {
		t.Fatalf("mmio: got %d, want %d", mmio, want)
	}
	if got := record.maxLegacyDoorbellDispatchIDPlus1.LoadRelaxed(); got != 2 {
		t.Fatalf("maxLegacyDoorbellDispatchIDPlus1: got %d, want 2", got)
	}
}

func TestDoorbellLegacy64PublishesRawIndex(t *testing.T) {
	record := newQueueRecord()
	record.HSAQueue.Size = 8
	record.StoreWriteIndexRelaxed(5)

	var mmio uint32
	d := newDoorbell(DoorbellLegacy64, false, record, unsafe.Pointer(&mmio))
	d.StoreRelaxed(0)

	if mmio != 5 {
		t.Fatalf("mmio: got %d, want 5", mmio)
	}
}

func TestDoorbellLegacyGFX7DWWorkaroundDoublesRingMask(t *testing.T) {
	// Advance the read index so the write index can exceed one queue-size's
	// worth of dispatches without being clamped, exposing the mask
	// difference between the plain and workaround ring multipliers.
	recordPlain := newQueueRecord()
	recordPlain.HSAQueue.Size = 4
	recordPlain.storeReadIndexRelease(4)
	recordPlain.StoreWriteIndexRelaxed(7)

	var mmioPlain uint32
	dPlain := newDoorbell(DoorbellLegacyGFX7DW, false, recordPlain, unsafe.Pointer(&mmioPlain))
	dPlain.StoreRelaxed(0)
	if want := uint32(3 * (PacketSizeBytes / 4)); mmioPlain != want {
		t.Fatalf("plain mmio: got %d, want %d", mmioPlain, want)
	}

	recordWorkaround := newQueueRecord()
	recordWorkaround.HSAQueue.Size = 4
	recordWorkaround.storeReadIndexRelease(4)
	recordWorkaround.StoreWriteIndexRelaxed(7)

	var mmioWorkaround uint32
	dWorkaround := newDoorbell(DoorbellLegacyGFX7DW, true, recordWorkaround, unsafe.Pointer(&mmioWorkaround))
	dWorkaround.StoreRelaxed(0)
	if want := uint32(7 * (PacketSizeBytes / 4)); mmioWorkaround != want {
		t.Fatalf("workaround mmio: got %d, want %d", mmioWorkaround, want)
	}
}

func TestDoorbellLegacyMonotonicitySkipsStaleWrites(t *testing.T) {
	record := newQueueRecord()
	record.HSAQueue.Size = 8
	record.StoreWriteIndexRelaxed(5)

	var mmio uint32
	d := newDoorbell(DoorbellLegacy64, false, record, unsafe.Pointer(&mmio))
	d.StoreRelaxed(0)
	if mmio != 5 {
		t.Fatalf("mmio after first ring: got %d, want 5", mmio)
	}

	// A stale doorbell ring against an already-observed (or lower) write
	// index must not regress the hardware-visible register.
	record.StoreWriteIndexRelaxed(2)
	d.StoreRelaxed(0)
	if mmio != 5 {
		t.Fatalf("mmio after stale ring: got %d, want unchanged 5", mmio)
	}
}
