// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aqlqueue

import (
	"unsafe"

	"code.hybscloud.com/spin"
)

// Doorbell translates a logical write-index into the correct MMIO write for
// the three doorbell variants a queue's agent capability selects (spec.md
// §4.2), grounded on original amd_aql_queue.cpp:431-505 (StoreRelaxed/
// StoreRelease).
type Doorbell struct {
	variant DoorbellVariant
	// workaround is true when the legacy double-map ring layout is in effect
	// (queue_full_workaround_), which doubles the GFX7 dword offset mask.
	workaround bool
	packetDwords uint32

	// hardwareDoorbellPtr is the native AQL 64-bit MMIO register.
	hardwareDoorbellPtr *uint64
	// legacyHardwareDoorbellPtr is the legacy 32-bit MMIO register.
	legacyHardwareDoorbellPtr *uint32

	record *QueueRecord
}

func newDoorbell(variant DoorbellVariant, workaround bool, record *QueueRecord, mmio unsafe.Pointer) *Doorbell {
	d := &Doorbell{
		variant:      variant,
		workaround:   workaround,
		packetDwords: PacketSizeBytes / 4,
		record:       record,
	}
	if variant == DoorbellNativeAQL {
		d.hardwareDoorbellPtr = (*uint64)(mmio)
	} else {
		d.legacyHardwareDoorbellPtr = (*uint32)(mmio)
	}
	return d
}

// StoreRelaxed rings the doorbell without an additional release fence
// beyond what each variant's own atomic store provides. The native AQL
// variant stores value directly. The legacy variants ignore value: they
// publish the record's current write index, clamped to read index plus
// ring size, and only when it exceeds the last published index.
func (d *Doorbell) StoreRelaxed(value uint64) {
	if d.variant == DoorbellNativeAQL {
		storeUint64Release(d.hardwareDoorbellPtr, value)
		return
	}

	sw := spin.Wait{}
	for !d.record.legacyDoorbellLock.CompareAndSwapAcquire(0, 1) {
		sw.Once()
	}

	legacyDispatchID := d.record.LoadWriteIndexRelaxed()
	readIdx := d.record.LoadReadIndexRelaxed()
	if max := readIdx + uint64(d.record.HSAQueue.Size); legacyDispatchID > max {
		legacyDispatchID = max
	}

	if legacyDispatchID > d.record.maxLegacyDoorbellDispatchIDPlus1.LoadRelaxed() {
		d.record.maxLegacyDoorbellDispatchIDPlus1.StoreRelease(legacyDispatchID)

		switch d.variant {
		case DoorbellLegacyGFX7DW:
			ringMultiplier := uint64(1)
			if d.workaround {
				ringMultiplier = 2
			}
			queueSizeMask := ringMultiplier*uint64(d.record.HSAQueue.Size) - 1
			dwordOffset := uint32((legacyDispatchID & queueSizeMask) * uint64(d.packetDwords))
			storeUint32Release(d.legacyHardwareDoorbellPtr, dwordOffset)
		case DoorbellLegacy64:
			storeUint32Release(d.legacyHardwareDoorbellPtr, uint32(legacyDispatchID))
		}
	}

	d.record.legacyDoorbellLock.StoreRelease(0)
}

// StoreRelease sequences prior non-atomic packet payload writes ahead of
// the doorbell store. The original inserts an explicit release fence ahead
// of an otherwise-relaxed store; under Go's memory model an atomic store
// through sync/atomic (see atomicmmio.go) already carries at least release
// ordering, so StoreRelease and StoreRelaxed converge on the same
// underlying write — kept as two methods to preserve the producer-facing
// API spec.md §6 names.
func (d *Doorbell) StoreRelease(value uint64) {
	d.StoreRelaxed(value)
}
