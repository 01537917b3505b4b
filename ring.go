// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aqlqueue

import (
	"unsafe"

	"github.com/rocr-go/aqlqueue/internal/agent"
)

// Ring is a virtually-contiguous packet ring. When DoubleMapped is true,
// Base[i] and Base[i+Packets] refer to the same physical packet for every
// in-range i (spec.md §4.1), provided Packets*PacketSizeBytes is a whole
// number of 4 KiB pages: the second mapping starts at the page-aligned
// size. Every packet count validatePacketCount accepts under the workaround
// meets this.
type Ring struct {
	Base         unsafe.Pointer
	AllocBytes   uint32
	Packets      uint32
	DoubleMapped bool
}

// Packet returns the packet at ring-relative index idx (already wrapped to
// [0, Packets), or to [0, 2*Packets) on a double-mapped ring).
func (r *Ring) Packet(idx uint32) *Packet {
	off := uintptr(idx) * PacketSizeBytes
	return (*Packet)(unsafe.Pointer(uintptr(r.Base) + off))
}

// RingMapper abstracts the platform-dependent double-map trick behind a
// small interface (spec.md §9 "Platform-specific ring mapping"): two
// implementations exist, one using anonymous shared memory with two
// mappings (ring_linux.go / ring_windows.go), one requesting a
// double-mapped region from the agent's own allocator (ring_generic.go).
type RingMapper interface {
	Map(packets uint32, isKV bool) (*Ring, error)
	Unmap(r *Ring)
}

// ringMinBytes and ringMaxBytes implement ComputeRingBufferMinPkts /
// ComputeRingBufferMaxPkts (original amd_aql_queue.cpp:507-541): the CP's
// primary-queue size register is a power-of-two DWORD count, min 2^8,
// max 2^30 (in DWs); expressed here in bytes.
const (
	ringMinBytes = 0x400
	ringMaxBytes = 0x100000000
	// ringDoubleMapMinBytes is the double-map floor: whole pages required
	// because the mapping trick maps physical pages, not arbitrary byte
	// ranges (Linux page size assumed 4 KiB, matching the original's
	// __linux__ branch).
	ringDoubleMapMinBytes = 0x1000
)

// minMaxPackets returns the [min, max] packet-count bounds a ring request
// must satisfy, given whether the legacy double-map workaround applies.
func minMaxPackets(workaround bool) (min, max uint32) {
	minBytes := uint64(ringMinBytes)
	maxBytes := uint64(ringMaxBytes)
	if workaround {
		if ringDoubleMapMinBytes > minBytes {
			minBytes = ringDoubleMapMinBytes
		}
		maxBytes /= 2
	}
	return uint32(minBytes / PacketSizeBytes), uint32(maxBytes / PacketSizeBytes)
}

func isPowerOfTwo(n uint32) bool {
	return n != 0 && n&(n-1) == 0
}

// validatePacketCount rejects non-power-of-two or out-of-range requests
// with INVALID_QUEUE_CREATION (spec.md §4.1 "Reject non-power-of-two
// requests").
func validatePacketCount(requested uint32, workaround bool) (uint32, error) {
	if !isPowerOfTwo(requested) {
		return 0, StatusInvalidQueueCreation
	}
	min, max := minMaxPackets(workaround)
	if requested < min || requested > max {
		return 0, StatusInvalidQueueCreation
	}
	return requested, nil
}

// allocatorRingMapper is the "single allocator call" variant of the
// double-map procedure (spec.md §4.1 "The host-only variant uses a single
// allocator call requesting an executable, double-mapped region"),
// grounded on original amd_aql_queue.cpp:672-687 (the non-Linux,
// non-workaround system_allocator path) generalized to also serve the
// workaround-but-non-Linux case via agent.AllocDoubleMap.
type allocatorRingMapper struct {
	ag agent.Agent
}

func newAllocatorRingMapper(ag agent.Agent) *allocatorRingMapper {
	return &allocatorRingMapper{ag: ag}
}

func (m *allocatorRingMapper) Map(packets uint32, isKV bool) (*Ring, error) {
	physBytes := alignUp64(uint64(packets)*PacketSizeBytes, 4096)

	flags := agent.AllocFlag(0)
	if !isKV {
		flags |= agent.AllocExecutable
	}
	flags |= agent.AllocDoubleMap

	base := m.ag.SystemAllocator()(uintptr(physBytes), 0x1000, flags)
	if base == nil {
		return nil, StatusOutOfResources
	}

	return &Ring{
		Base:         base,
		AllocBytes:   uint32(physBytes) * 2,
		Packets:      packets,
		DoubleMapped: true,
	}, nil
}

func (m *allocatorRingMapper) Unmap(r *Ring) {
	m.ag.SystemDeallocator()(r.Base)
}

// singleMapAllocator is the plain (non-workaround) ring allocator: one
// system allocation, executable unless the device is a KV APU.
type singleMapAllocator struct {
	ag agent.Agent
}

func newSingleMapAllocator(ag agent.Agent) *singleMapAllocator {
	return &singleMapAllocator{ag: ag}
}

func (m *singleMapAllocator) Map(packets uint32, isKV bool) (*Ring, error) {
	allocBytes := alignUp64(uint64(packets)*PacketSizeBytes, 4096)
	flags := agent.AllocFlag(0)
	if !isKV {
		flags |= agent.AllocExecutable
	}
	base := m.ag.SystemAllocator()(uintptr(allocBytes), 0x1000, flags)
	if base == nil {
		return nil, StatusOutOfResources
	}
	return &Ring{Base: base, AllocBytes: uint32(allocBytes), Packets: packets}, nil
}

func (m *singleMapAllocator) Unmap(r *Ring) {
	m.ag.SystemDeallocator()(r.Base)
}

func alignUp64(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}

// fillInvalid initializes every slot's header to INVALID (spec.md §3
// "Every slot starts with a packet header whose type is initialized to
// INVALID", §4.3 construction step 3).
func fillInvalid(r *Ring) {
	for i := uint32(0); i < r.Packets; i++ {
		r.Packet(i).StoreHeaderRelaxed(PacketHeader(PacketTypeInvalid))
	}
}
