// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package pm4regs holds the bit-for-bit register descriptors the queue's
// scratch SRD builder (C7) and PM4 command encoder (C6) program: the shader
// buffer resource descriptor words, COMPUTE_TMPRING_SIZE, and PM4 packet
// header/opcode encoding. This is pure data — shift/mask constants and small
// accessor functions — with no behavior of its own, carried as a leaf
// dependency of the root package rather than inlined ad hoc.
package pm4regs

// Buffer resource descriptor selector/format constants (SQ_SEL_*,
// BUF_NUM_FORMAT_*, BUF_DATA_FORMAT_*, BUF_FORMAT_*, SQ_RSRC_BUF).
const (
	SQSelX = 0
	SQSelY = 1
	SQSelZ = 2
	SQSelW = 3

	BufNumFormatUint = 4
	BufDataFormat32  = 4
	BufFormat32Uint  = 0x22

	SQRsrcBuf = 0
)

// SRDWord3ISABelow10 packs word 3 of the buffer resource descriptor for
// ISA major version < 10 (amd_aql_queue.cpp InitScratchSRD, SQ_BUF_RSRC_WORD3).
func SRDWord3ISABelow10(atc bool) uint32 {
	var w uint32
	w |= uint32(SQSelX) << 0
	w |= uint32(SQSelY) << 3
	w |= uint32(SQSelZ) << 6
	w |= uint32(SQSelW) << 9
	w |= uint32(BufNumFormatUint) << 12
	w |= uint32(BufDataFormat32) << 15
	w |= uint32(1) << 19 // ELEMENT_SIZE = 1 (4 bytes)
	w |= uint32(3) << 21 // INDEX_STRIDE = 3 (64)
	w |= uint32(1) << 23 // ADD_TID_ENABLE
	if atc {
		w |= 1 << 24 // ATC__CI__VI
	}
	w |= uint32(SQRsrcBuf) << 28 // TYPE
	return w
}

// SRDWord3ISA10Plus packs word 3 for ISA major version >= 10
// (SQ_BUF_RSRC_WORD3_GFX10).
func SRDWord3ISA10Plus() uint32 {
	var w uint32
	w |= uint32(SQSelX) << 0
	w |= uint32(SQSelY) << 3
	w |= uint32(SQSelZ) << 6
	w |= uint32(SQSelW) << 9
	w |= uint32(BufFormat32Uint) << 12
	w |= uint32(0) << 19 // INDEX_STRIDE filled in by the CP
	w |= uint32(1) << 21 // ADD_TID_ENABLE
	w |= uint32(1) << 22 // RESOURCE_LEVEL
	w |= uint32(2) << 24 // OOB_SELECT: no bounds check in swizzle mode
	w |= uint32(SQRsrcBuf) << 28
	return w
}

// COMPUTE_TMPRING_SIZE bit layout: WAVESIZE occupies bits [0:12), WAVES
// occupies bits [12:24).
const (
	tmpRingWaveSizeShift = 0
	tmpRingWaveSizeMask  = 0xFFF
	tmpRingWavesShift    = 12
	tmpRingWavesMask     = 0xFFF
)

// ComputeTmpRingSize packs COMPUTE_TMPRING_SIZE from a wave scratch size (in
// KiB) and a wave count, each masked to its 12-bit field (higher bits are
// dropped, not clamped).
func ComputeTmpRingSize(waveSizeKB, waves uint32) uint32 {
	return (waveSizeKB & tmpRingWaveSizeMask << tmpRingWaveSizeShift) |
		((waves & tmpRingWavesMask) << tmpRingWavesShift)
}

// TmpRingSizeFitsWaveSize reports whether waveSizeKB fits the WAVESIZE field
// without truncation — the original's "assert wave_scratch == bits.WAVESIZE"
// overflow check.
func TmpRingSizeFitsWaveSize(waveSizeKB uint32) bool {
	return waveSizeKB&^uint32(tmpRingWaveSizeMask) == 0
}

// PM4 packet header encoding: [opcode:8][count-1:14][type:2] in the upper
// two bits selecting packet type 3.
const (
	PM4TypeShift  = 30
	PM4Type3      = 3
	PM4CountShift = 16
	PM4OpcodeShift = 8

	OpcodeNop             = 0x10
	OpcodeIndirectBuffer  = 0x3F
	OpcodeReleaseMem      = 0x49
)

// Header builds a type-3 PM4 packet header for an opcode spanning
// countDwords total dwords (including the header itself).
func Header(opcode uint32, countDwords uint32) uint32 {
	return (uint32(PM4Type3) << PM4TypeShift) |
		((countDwords - 2) << PM4CountShift) |
		(opcode << PM4OpcodeShift)
}

// IndirectBufferJump builds the 4-dword INDIRECT_BUFFER command jumping to
// ibAddr, ibSizeDwords dwords long.
func IndirectBufferJump(ibAddr uint64, ibSizeDwords uint32) [4]uint32 {
	return [4]uint32{
		Header(OpcodeIndirectBuffer, 4),
		uint32(ibAddr >> 2),
		uint32(ibAddr >> 32),
		ibSizeDwords | (1 << 31), // IB_VALID
	}
}

// ReleaseMemEventIndexAQL is PM4_RELEASE_MEM_EVENT_INDEX_AQL: the
// event-index value that makes RELEASE_MEM advance an AQL read index and
// invalidate the packet header it targets.
const ReleaseMemEventIndexAQL = 0x7

// ReleaseMem builds the 7-dword RELEASE_MEM command used to terminate an
// ISA<=8 PM4 execute slot (original amd_aql_queue.cpp:1174-1181).
func ReleaseMem() [7]uint32 {
	return [7]uint32{
		Header(OpcodeReleaseMem, 7),
		ReleaseMemEventIndexAQL << 0,
		0, 0, 0, 0, 0,
	}
}

// Nop builds a NOP pad of countDwords total dwords (including the header).
func Nop(countDwords uint32) []uint32 {
	pad := make([]uint32, countDwords)
	pad[0] = Header(OpcodeNop, countDwords)
	return pad
}

// AQL vendor-specific PM4-IB packet: HSA_PACKET_TYPE_VENDOR_SPECIFIC header
// with a PM4_IB subtype, used on ISA >= 9 instead of pad+jump+release.
const (
	AQLPacketTypeVendorSpecific = 7
	AQLFormatPM4IB              = 0x1
	PM4IBDwCountRemain          = 0xA
)

// AQLPacketHeaderVendorSpecific builds the 16-bit AQL packet header for a
// vendor-specific packet (type in the low 8 bits per the AQL header layout).
func AQLPacketHeaderVendorSpecific() uint16 {
	return uint16(AQLPacketTypeVendorSpecific)
}

// AQL dispatch packet header SCRELEASE fence-scope field, used by the
// ISA-8/old-microcode scratch handler patch (original amd_aql_queue.cpp:878-881).
const (
	HeaderScreleaseFenceScopeShift = 11
	HeaderScreleaseFenceScopeWidth = 2
	FenceScopeSystem               = 2
)

// SetSystemReleaseFence patches an AQL dispatch packet header's SCRELEASE
// fence-scope bits to SYSTEM, for firmware that doesn't flush scratch
// stores automatically on ISA major 8 with microcode < 729.
func SetSystemReleaseFence(header uint16) uint16 {
	mask := uint16((1<<HeaderScreleaseFenceScopeWidth)-1) << HeaderScreleaseFenceScopeShift
	header &^= mask
	header |= uint16(FenceScopeSystem) << HeaderScreleaseFenceScopeShift
	return header
}
