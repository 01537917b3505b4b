// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package agent describes the external contract a GPU compute agent must
// satisfy for an AQL queue to attach to it. Everything here is a narrow
// interface boundary: ISA properties, CU/SIMD counts, memory regions, the
// system allocator, and the scratch acquire/release calls a queue's fault
// handler drives. Scheduling policy across multiple queues, code-object
// loading, and the allocator's internals are out of scope — see spec.md §1.
package agent

import "unsafe"

// AllocFlag are bits passed to Allocator/Deallocator.
type AllocFlag uint32

const (
	// AllocExecutable requests pages mapped with execute permission.
	AllocExecutable AllocFlag = 1 << 0
	// AllocDoubleMap requests a single-call double-mapped allocation from
	// the agent's own allocator (the host-only variant of the ring
	// allocator's double-map procedure, spec.md §4.1).
	AllocDoubleMap AllocFlag = 1 << 1
)

// Allocator reserves agent-visible memory. Deallocator releases it.
type Allocator func(size, align uintptr, flags AllocFlag) unsafe.Pointer
type Deallocator func(ptr unsafe.Pointer)

// Region classifies one of the agent's memory regions.
type Region struct {
	BaseAddress uintptr
	IsLDS       bool
	IsScratch   bool
}

// Capability mirrors the subset of agent capability bits an AQL queue reads.
type Capability struct {
	// DoorbellType selects the submission protocol: 2 native AQL, 1 legacy
	// 64-bit index, 0 legacy GFX7 dword. See spec.md §4.2.
	DoorbellType uint32
}

// Properties is the subset of device-shape fields a queue needs at
// construction and fault-recovery time.
type Properties struct {
	NumFComputeCores int
	NumSIMDPerCU     int
	MaxSlotsScratchCU int
	NumShaderBanks   int
	MaxWavesPerSIMD  int
	ComputeUnitCount int
	Capability       Capability
}

// Profile distinguishes the HSA_PROFILE_FULL/BASE split that gates the
// double-map ring workaround (spec.md §4.1) and the SRD ATC bit (§4.7).
type Profile int

const (
	ProfileBase Profile = iota
	ProfileFull
)

// ScratchInfo is the input/output parameter block of AcquireQueueScratch /
// ReleaseQueueScratch — spec.md §3 "ScratchInfo".
type ScratchInfo struct {
	QueueBase          unsafe.Pointer
	Size               uint64
	SizePerThread      uint32
	LanesPerWave       uint32
	WavesPerGroup      uint64
	WantedSlots        uint64
	DispatchSize       uint64
	QueueProcessOffset uint64
	Large              bool
	Retry              bool
	// QueueRetrySignal aliases the owning queue's inactive signal so the
	// agent's allocator can itself observe/poke queue liveness without a
	// second signal allocation (original amd_aql_queue.cpp:284).
	QueueRetrySignal uintptr
}

// Agent is the external collaborator contract from spec.md §6 "To the
// agent". A GpuAgent implementation in a real runtime backs this with
// actual KFD/ROCr calls; tests back it with an in-memory fake.
type Agent interface {
	ISAMajorVersion() int
	Profile() Profile
	IsKVDevice() bool
	Properties() Properties
	Regions() []Region
	GetMicrocodeVersion() int

	SystemAllocator() Allocator
	SystemDeallocator() Deallocator

	AcquireQueueScratch(info *ScratchInfo)
	ReleaseQueueScratch(info *ScratchInfo)

	// GWSRelease returns a cooperative (GWS-enabled) queue to the agent's
	// pool. Called by Destroy on cooperative queues instead of tearing the
	// queue down — spec.md §4.3 "Destroy".
	GWSRelease()

	// GlobalCUMask returns the process-wide CU mask configured out of band
	// (e.g. via an environment flag), or nil if none is set. Spec.md §4.6.
	GlobalCUMask() []uint32

	// EnumerationIndex identifies this agent among its siblings, used only
	// to look up the per-agent slice of a multi-agent global CU mask.
	EnumerationIndex() int
}
