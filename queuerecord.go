// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aqlqueue

import (
	"unsafe"

	"code.hybscloud.com/atomix"
)

// Handle is the queue's publicly-visible id, bound once KMD queue creation
// succeeds (original amd_aql_queue.cpp public_handle(), original line 278).
// It is opaque outside this package.
type Handle uint64

// DoorbellVariant is the tagged submission-path variant a queue's agent
// capability selects — a small enum rather than a v-table (spec.md §9
// "Dynamic dispatch").
type DoorbellVariant int

const (
	// DoorbellNativeAQL supports 64-bit AQL doorbell semantics directly.
	DoorbellNativeAQL DoorbellVariant = 2
	// DoorbellLegacy64 is the legacy 64-bit software index doorbell.
	DoorbellLegacy64 DoorbellVariant = 1
	// DoorbellLegacyGFX7DW is the legacy GFX7 dword-offset doorbell.
	DoorbellLegacyGFX7DW DoorbellVariant = 0
)

// PacketType is the HSA AQL packet header's type field.
type PacketType uint16

const (
	PacketTypeInvalid         PacketType = 1
	PacketTypeKernelDispatch  PacketType = 2
	PacketTypeBarrierAnd      PacketType = 3
	PacketTypeBarrierOr       PacketType = 4
	PacketTypeVendorSpecific  PacketType = 7
)

const packetHeaderTypeShift = 0

// PacketHeader returns the packet's header dword.
func PacketHeader(pt PacketType) uint32 {
	return uint32(pt) << packetHeaderTypeShift
}

// PacketHeaderType extracts the type field from a raw header dword.
func PacketHeaderType(header uint32) PacketType {
	return PacketType(header & 0xFF)
}

// PacketSizeBytes is sizeof(core::AqlPacket): every AQL packet, including
// the vendor-specific PM4-IB jump packet, occupies exactly one 64-byte slot.
const PacketSizeBytes = 64

// Packet overlays one ring slot. Header is the first dword and is what
// producers/GPU synchronize on: it starts INVALID and transitions with
// release ordering once the rest of the slot is written (spec.md §4.1,
// §4.6 step 5). The header is modeled as atomix.Int32 (bit-reinterpreted
// uint32) for the same reason queue_properties is widened in
// QueueRecord below — atomix has no Uint32, see DESIGN.md.
type Packet struct {
	header atomix.Int32
	rest   [PacketSizeBytes - 4]byte
}

func (p *Packet) LoadHeaderAcquire() uint32 { return uint32(p.header.LoadAcquire()) }
func (p *Packet) LoadHeaderRelaxed() uint32 { return uint32(p.header.LoadRelaxed()) }
func (p *Packet) StoreHeaderRelease(h uint32) { p.header.StoreRelease(int32(h)) }
func (p *Packet) StoreHeaderRelaxed(h uint32) { p.header.StoreRelaxed(int32(h)) }

// IsValid reports whether the packet's header type is not INVALID.
func (p *Packet) IsValid() bool {
	return PacketHeaderType(p.LoadHeaderAcquire()) != PacketTypeInvalid
}

// KernelDispatchPacket is the subset of a KERNEL_DISPATCH packet's fields
// the scratch fault handler reads (spec.md §4.4 step 4). It overlays the
// slot from offset 0, starting with the header and setup fields, matching
// the AQL kernel dispatch packet's field order used by original
// amd_aql_queue.cpp's pkt.dispatch.*.
type KernelDispatchPacket struct {
	Header             uint16
	Setup              uint16
	WorkgroupSizeX     uint16
	WorkgroupSizeY     uint16
	WorkgroupSizeZ     uint16
	_                  uint16
	GridSizeX          uint32
	GridSizeY          uint32
	GridSizeZ          uint32
	PrivateSegmentSize uint32
	GroupSegmentSize   uint32
}

// AsKernelDispatch reinterprets the packet's payload as a kernel dispatch
// packet. Callers must have already checked IsValid and the type field.
func (p *Packet) AsKernelDispatch() *KernelDispatchPacket {
	return (*KernelDispatchPacket)(unsafe.Pointer(p))
}

// Queue-properties bits (queue_properties bit-set, spec.md §3).
const (
	QueuePropertyPtr64          uint64 = 1 << 0
	QueuePropertyUseScratchOnce uint64 = 1 << 1
)

// QueueType selects the HW queue's cooperative-vs-plain mode; switched by
// EnableGWS (spec.md §4.7) and read by Destroy's short-circuit (§4.3).
type QueueType int

const (
	QueueTypeCompute QueueType = iota
	QueueTypeCooperative
)

// HSAQueueHeader is the producer-visible header (spec.md §3 hsa_queue.*).
type HSAQueueHeader struct {
	BaseAddress    unsafe.Pointer
	Size           uint32 // power-of-two packet count
	Type           QueueType
	Features       uint32
	DoorbellHandle uintptr
	ID             Handle
}

// QueueRecord is the queue's cache-line-aligned shared state — logically
// "shared with hardware" in the sense that read_dispatch_id is advanced by
// the GPU and write_dispatch_id/doorbell fields are read by it, even though
// in this reimplementation the GPU side is modeled by the KMD/agent
// contracts rather than actual silicon. Field grouping and padding mirror
// the teacher's cache-line-padded hot-field layout (mpmc.go).
type QueueRecord struct {
	_ pad
	// ReadDispatchID is GPU-owned; producers only read it.
	readDispatchID atomix.Uint64
	_              pad
	// WriteDispatchID is producer-owned; the GPU only reads it.
	writeDispatchID atomix.Uint64
	_               pad
	// MaxLegacyDoorbellDispatchIDPlus1 is the software doorbell proxy used
	// when the doorbell type lacks native AQL semantics (spec.md §3).
	maxLegacyDoorbellDispatchIDPlus1 atomix.Uint64
	_                                pad
	// LegacyDoorbellLock is a word-sized spinlock (C2). atomix has no
	// Uint32; widened to Int32 per DESIGN.md's Open Question decision.
	legacyDoorbellLock atomix.Int32
	_                  padShort

	HSAQueue HSAQueueHeader

	// QueueProperties is widened from the original's 32-bit bitfield to
	// atomix.Uint64 (DESIGN.md Open Question decision); only the low 32
	// bits are meaningful.
	queueProperties atomix.Uint64

	GroupSegmentApertureBaseHi   uint32
	PrivateSegmentApertureBaseHi uint32

	ScratchResourceDescriptor [4]uint32
	ComputeTmpRingSize        uint32
	ScratchBackingMemoryLocation uint64
	ScratchBackingMemoryByteSize uint64
	ScratchWave64LaneByteSize    uint32

	QueueInactiveSignalHandle uintptr

	MaxCUID   uint32
	MaxWaveID uint32

	// ReadDispatchIDFieldBaseByteOffset is the cached byte offset of
	// readDispatchID within this struct, recorded for the KMD resource
	// descriptor (SUPPLEMENTED FEATURE 2, original lines 164-165).
	ReadDispatchIDFieldBaseByteOffset uintptr
}

func newQueueRecord() *QueueRecord {
	r := &QueueRecord{}
	r.ReadDispatchIDFieldBaseByteOffset = unsafe.Offsetof(r.readDispatchID)
	return r
}

func (r *QueueRecord) LoadReadIndexAcquire() uint64 { return r.readDispatchID.LoadAcquire() }
func (r *QueueRecord) LoadReadIndexRelaxed() uint64 { return r.readDispatchID.LoadRelaxed() }
func (r *QueueRecord) storeReadIndexRelease(v uint64) { r.readDispatchID.StoreRelease(v) }

func (r *QueueRecord) LoadWriteIndexAcquire() uint64 { return r.writeDispatchID.LoadAcquire() }
func (r *QueueRecord) LoadWriteIndexRelaxed() uint64 { return r.writeDispatchID.LoadRelaxed() }

func (r *QueueRecord) StoreWriteIndexRelaxed(v uint64) { r.writeDispatchID.StoreRelaxed(v) }
func (r *QueueRecord) StoreWriteIndexRelease(v uint64) { r.writeDispatchID.StoreRelease(v) }

func (r *QueueRecord) CasWriteIndexAcquire(old, new uint64) bool {
	return r.writeDispatchID.CompareAndSwapAcquire(old, new)
}
func (r *QueueRecord) CasWriteIndexAcqRel(old, new uint64) bool {
	return r.writeDispatchID.CompareAndSwapAcqRel(old, new)
}
func (r *QueueRecord) CasWriteIndexRelease(old, new uint64) bool {
	return r.writeDispatchID.CompareAndSwapRelease(old, new)
}
func (r *QueueRecord) CasWriteIndexRelaxed(old, new uint64) bool {
	return r.writeDispatchID.CompareAndSwapRelaxed(old, new)
}

func (r *QueueRecord) AddWriteIndexAcquire(v uint64) uint64 { return r.writeDispatchID.AddAcquire(v) - v }
func (r *QueueRecord) AddWriteIndexAcqRel(v uint64) uint64  { return r.writeDispatchID.AddAcqRel(v) - v }
func (r *QueueRecord) AddWriteIndexRelease(v uint64) uint64 { return r.writeDispatchID.AddRelease(v) - v }
func (r *QueueRecord) AddWriteIndexRelaxed(v uint64) uint64 { return r.writeDispatchID.AddRelaxed(v) - v }

// pad/padShort mirror the teacher's cache-line padding types (options.go).
type pad [64]byte
type padShort [64 - 8]byte
