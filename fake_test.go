// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aqlqueue

import (
	"sync"
	"testing"
	"unsafe"

	"github.com/rocr-go/aqlqueue/internal/agent"
	"github.com/rocr-go/aqlqueue/internal/kmd"
)

// fakeAgent backs internal/agent.Agent with a plain-Go allocator and
// caller-controlled scratch bookkeeping, standing in for the KFD/ROCr
// calls a real GpuAgent would make (spec.md §6 "To the agent").
type fakeAgent struct {
	isaMajor    int
	profile     agent.Profile
	isKV        bool
	props       agent.Properties
	regions     []agent.Region
	microcode   int
	globalMask  []uint32
	enumIndex   int

	mu       sync.Mutex
	allocs   map[unsafe.Pointer][]byte
	scratch  []byte

	acquireScratch func(info *agent.ScratchInfo)
	releaseCount   int
	gwsReleaseN    int
}

func newFakeAgent() *fakeAgent {
	return &fakeAgent{
		isaMajor: 9,
		profile:  agent.ProfileBase,
		props: agent.Properties{
			NumFComputeCores:  256,
			NumSIMDPerCU:      4,
			MaxSlotsScratchCU: 32,
			NumShaderBanks:    2,
			MaxWavesPerSIMD:   10,
			ComputeUnitCount:  64,
			Capability:        agent.Capability{DoorbellType: 2},
		},
		regions: []agent.Region{
			{BaseAddress: 0x1000, IsLDS: false, IsScratch: false},
			{BaseAddress: 0x7f0000002000, IsLDS: true, IsScratch: false},
			{BaseAddress: 0x7f1000003000, IsLDS: false, IsScratch: true},
		},
		microcode: 1000,
		allocs:    make(map[unsafe.Pointer][]byte),
	}
}

func (a *fakeAgent) ISAMajorVersion() int          { return a.isaMajor }
func (a *fakeAgent) Profile() agent.Profile        { return a.profile }
func (a *fakeAgent) IsKVDevice() bool              { return a.isKV }
func (a *fakeAgent) Properties() agent.Properties  { return a.props }
func (a *fakeAgent) Regions() []agent.Region       { return a.regions }
func (a *fakeAgent) GetMicrocodeVersion() int      { return a.microcode }
func (a *fakeAgent) GlobalCUMask() []uint32        { return a.globalMask }
func (a *fakeAgent) EnumerationIndex() int         { return a.enumIndex }

func (a *fakeAgent) SystemAllocator() agent.Allocator {
	return func(size, align uintptr, flags agent.AllocFlag) unsafe.Pointer {
		buf := make([]byte, size)
		p := unsafe.Pointer(&buf[0])
		a.mu.Lock()
		a.allocs[p] = buf
		a.mu.Unlock()
		return p
	}
}

func (a *fakeAgent) SystemDeallocator() agent.Deallocator {
	return func(ptr unsafe.Pointer) {
		a.mu.Lock()
		delete(a.allocs, ptr)
		a.mu.Unlock()
	}
}

func (a *fakeAgent) AcquireQueueScratch(info *agent.ScratchInfo) {
	if a.acquireScratch != nil {
		a.acquireScratch(info)
		return
	}
	buf := make([]byte, info.Size)
	a.mu.Lock()
	a.scratch = buf
	a.mu.Unlock()
	info.QueueBase = unsafe.Pointer(&buf[0])
}

func (a *fakeAgent) ReleaseQueueScratch(info *agent.ScratchInfo) {
	a.mu.Lock()
	a.releaseCount++
	a.scratch = nil
	a.mu.Unlock()
}

func (a *fakeAgent) GWSRelease() { a.gwsReleaseN++ }

// fakeDriver backs internal/kmd.Driver with in-memory bookkeeping, standing
// in for the hsaKmt* ioctls a real KMD would issue (spec.md §6 "To the
// KMD").
type fakeDriver struct {
	mu            sync.Mutex
	nextQueueID   uint64
	nextEventID   uint64
	destroyed     map[uint64]bool
	priorities    map[uint64]int32
	percents      map[uint64]uint32
	masks         map[uint64][]uint32
	gwsSlots      map[uint64]int
	supportsDebug bool
	createErr     error
	doorbell      []uint64
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		destroyed:  make(map[uint64]bool),
		priorities: make(map[uint64]int32),
		percents:   make(map[uint64]uint32),
		masks:      make(map[uint64][]uint32),
		gwsSlots:   make(map[uint64]int),
		doorbell:   make([]uint64, 1),
	}
}

func (d *fakeDriver) CreateQueue(nodeID uint32, qtype kmd.QueueType, percent uint32, priority int32,
	ring unsafe.Pointer, ringBytes uint32, event *kmd.EventHandle, rsrc *kmd.QueueResource) error {
	if d.createErr != nil {
		return d.createErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextQueueID++
	id := d.nextQueueID
	d.priorities[id] = priority
	d.percents[id] = percent
	rsrc.QueueID = id
	rsrc.DoorbellMMIO = unsafe.Pointer(&d.doorbell[0])
	return nil
}

func (d *fakeDriver) DestroyQueue(queueID uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyed[queueID] = true
	return nil
}

func (d *fakeDriver) UpdateQueue(queueID uint64, percent uint32, priority int32, ring unsafe.Pointer, ringBytes uint32, event *kmd.EventHandle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.priorities[queueID] = priority
	d.percents[queueID] = percent
	return nil
}

func (d *fakeDriver) SetQueueCUMask(queueID uint64, maskBits uint32, mask []uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]uint32, len(mask))
	copy(cp, mask)
	d.masks[queueID] = cp
	return nil
}

func (d *fakeDriver) AllocQueueGWS(queueID uint64, slotCount int) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gwsSlots[queueID] = slotCount
	return uint32(slotCount), nil
}

func (d *fakeDriver) CreateEvent() (kmd.EventHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextEventID++
	return kmd.EventHandle(d.nextEventID), nil
}

func (d *fakeDriver) DestroyEvent(kmd.EventHandle) error { return nil }

func (d *fakeDriver) SupportsExceptionDebugging() bool { return d.supportsDebug }

// newTestQueue builds a Queue against a fakeAgent/fakeDriver pair, suitable
// for exercising the lifecycle and fault-handler paths without real
// hardware.
func newTestQueue(t *testing.T, cfg Config) (*Queue, *fakeAgent, *fakeDriver) {
	t.Helper()
	ag := newFakeAgent()
	drv := newFakeDriver()
	if cfg.RequestedPackets == 0 {
		cfg.RequestedPackets = 64
	}
	q, err := New(ag, drv, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return q, ag, drv
}
