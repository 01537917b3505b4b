// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aqlqueue

import (
	"sync"
	"unsafe"

	"code.hybscloud.com/atomix"

	"github.com/rocr-go/aqlqueue/internal/agent"
	"github.com/rocr-go/aqlqueue/internal/kmd"
	"github.com/rocr-go/aqlqueue/internal/signal"
)

// Config is the set of construction-time parameters a caller supplies to
// New (spec.md §4.3 construction order).
type Config struct {
	NodeID           uint32
	RequestedPackets uint32
	Priority         int32

	// InterruptMode selects interrupt-backed signals sharing the
	// per-process event, instead of polled default signals (spec.md §4.3
	// step 6).
	InterruptMode bool

	// PM4IBBytes overrides the default 4 KiB PM4 indirect-buffer size
	// (spec.md §4.3 step 11). Zero means use the default.
	PM4IBBytes uint32

	// SuppressInitialCUMask skips applying the initial CU mask at
	// construction (spec.md §4.3 step 12, "unless suppressed by a runtime
	// flag").
	SuppressInitialCUMask bool

	ErrorsCallback ErrorsCallback
	UserData       any
}

// handler state bits, shared shape between dynamicScratchState and
// exceptionState (spec.md §3 "Handler states").
const (
	handlerRetry     uint64 = 1 << 0
	handlerTerminate uint64 = 1 << 1
	handlerDone      uint64 = 1 << 2
)

// Queue is a single hardware command queue: the packet ring, the doorbell
// submission path, the KMD-backed lifecycle, and the two async fault
// channels (spec.md §1).
type Queue struct {
	ag     agent.Agent
	driver kmd.Driver

	record   *QueueRecord
	ring     *Ring
	mapper   RingMapper
	doorbell *Doorbell

	workaround bool
	variant    DoorbellVariant

	queueID uint64
	nodeID  uint32

	inactive      *signal.Signal
	exception     *signal.Signal
	event         *signal.Event
	interruptMode bool
	handleExceptions bool

	active    atomix.Bool
	lifecycle sync.Mutex
	suspended bool
	priority  int32

	// doneCond backs waitHandlerDone/markHandlerDone: Destroy blocks on it
	// until both handlers report DONE (spec.md §4.3 "Destructor protocol").
	doneMu   sync.Mutex
	doneCond *sync.Cond

	dynamicScratchState atomix.Uint64
	exceptionState      atomix.Uint64

	scratchMu sync.Mutex
	scratch   agent.ScratchInfo
	// scratchRetrySignal is q.inactive's handle, mirrored into every
	// ScratchInfo.QueueRetrySignal the agent sees (spec.md supplemented
	// feature: agent-visible retry signal).
	scratchRetrySignal uintptr

	maskMu  sync.Mutex
	cuMask  []uint32

	pm4Mu      sync.Mutex
	pm4IB      unsafe.Pointer
	pm4IBBytes uint32

	errorsCallback ErrorsCallback
	userData       any
}

// New builds a queue end to end: ring, record, KMD attach, SRD, async
// handlers, PM4 IB, initial CU mask (spec.md §4.3). Any failure unwinds
// everything acquired before it and returns the first originating Status.
func New(ag agent.Agent, driver kmd.Driver, cfg Config) (*Queue, error) {
	q := &Queue{
		ag:             ag,
		driver:         driver,
		nodeID:         cfg.NodeID,
		interruptMode:  cfg.InterruptMode,
		priority:       cfg.Priority,
		errorsCallback: cfg.ErrorsCallback,
		userData:       cfg.UserData,
	}
	q.doneCond = sync.NewCond(&q.doneMu)

	// Step 1: workaround + doorbell variant.
	isaMajor := ag.ISAMajorVersion()
	q.workaround = isaMajor == 7 || isaMajor == 8
	q.variant = DoorbellVariant(ag.Properties().Capability.DoorbellType)

	// Step 2: validate packet count.
	packets, err := validatePacketCount(cfg.RequestedPackets, q.workaround)
	if err != nil {
		return nil, err
	}

	// Step 3: allocate ring, fill INVALID.
	q.mapper = newPlatformRingMapper(ag, q.workaround)
	ring, err := q.mapper.Map(packets, ag.IsKVDevice())
	if err != nil {
		return nil, err
	}
	fillInvalid(ring)
	q.ring = ring

	// Step 4: zero queue record. The KMD resource handed to CreateQueue in
	// step 7 leaves ReadPtrAQL and WritePtrAQL nil; the record's index
	// fields are not wired into it.
	q.record = newQueueRecord()
	q.record.HSAQueue = HSAQueueHeader{
		BaseAddress: ring.Base,
		Size:        packets,
		Type:        QueueTypeCompute,
	}
	q.record.queueProperties.StoreRelaxed(QueuePropertyPtr64)

	props := ag.Properties()
	if props.ComputeUnitCount > 0 {
		q.record.MaxCUID = uint32(props.ComputeUnitCount) - 1
	}
	if props.MaxWavesPerSIMD > 0 && props.NumSIMDPerCU > 0 {
		q.record.MaxWaveID = uint32(props.MaxWavesPerSIMD*props.NumSIMDPerCU) - 1
	}

	// Step 5: apertures. Both fields take the high 32 bits of the agent's
	// LDS/scratch region base addresses (original amd_aql_queue.cpp:182-200).
	for _, r := range ag.Regions() {
		if r.IsLDS && q.record.GroupSegmentApertureBaseHi == 0 {
			q.record.GroupSegmentApertureBaseHi = uint32(uint64(r.BaseAddress) >> 32)
		}
		if r.IsScratch && q.record.PrivateSegmentApertureBaseHi == 0 {
			q.record.PrivateSegmentApertureBaseHi = uint32(uint64(r.BaseAddress) >> 32)
		}
	}
	if q.record.GroupSegmentApertureBaseHi == 0 {
		q.teardownPartial()
		return nil, StatusInvalidQueueCreation
	}

	// Step 6: signals, event.
	if cfg.InterruptMode {
		ev, err := signal.AcquireEvent(
			func() (uint64, error) {
				h, err := driver.CreateEvent()
				return uint64(h), err
			},
			func(h uint64) error { return driver.DestroyEvent(kmd.EventHandle(h)) },
		)
		if err != nil {
			q.teardownPartial()
			return nil, StatusOutOfResources
		}
		q.event = ev
		q.inactive = signal.NewInterruptSignal(0, ev)
		q.exception = signal.NewInterruptSignal(0, ev)
	} else {
		q.inactive = signal.NewDefaultSignal(0)
		q.exception = signal.NewDefaultSignal(0)
	}
	// The agent's scratch allocator is handed this alias through
	// ScratchInfo.QueueRetrySignal so it can poke queue liveness itself
	// without a second signal allocation (original amd_aql_queue.cpp:284).
	q.scratchRetrySignal = uintptr(unsafe.Pointer(q.inactive))

	// Step 7: KMD CreateQueue.
	var evHandle kmd.EventHandle
	var evPtr *kmd.EventHandle
	if q.event != nil {
		evPtr = &evHandle
	}
	rsrc := kmd.QueueResource{}
	if err := driver.CreateQueue(cfg.NodeID, kmd.QueueTypeComputeAQL, 100, cfg.Priority,
		ring.Base, ring.AllocBytes, evPtr, &rsrc); err != nil {
		q.releaseSignals()
		q.teardownPartial()
		return nil, StatusOutOfResources
	}

	// Step 8: record doorbell pointer, queue id, public id.
	q.queueID = rsrc.QueueID
	q.record.HSAQueue.ID = Handle(rsrc.QueueID)
	q.doorbell = newDoorbell(q.variant, q.workaround, q.record, rsrc.DoorbellMMIO)
	q.record.HSAQueue.DoorbellHandle = uintptr(rsrc.DoorbellMMIO)

	// Step 9: scratch SRD (starts at size 0).
	q.rebuildSRD()

	// Step 10: async handlers.
	q.handleExceptions = !driver.SupportsExceptionDebugging()
	signal.SetAsyncSignalHandler(q.inactive, signal.ConditionNotEqual, 0, q.dynamicScratchHandler)
	if !q.handleExceptions {
		signal.SetAsyncSignalHandler(q.exception, signal.ConditionNotEqual, 0, q.exceptionHandler)
	} else {
		q.exceptionState.StoreRelaxed(handlerDone)
	}

	// Step 11: PM4 IB.
	ibBytes := cfg.PM4IBBytes
	if ibBytes == 0 {
		ibBytes = 4096
	}
	q.pm4IBBytes = uint32(ibBytes)
	q.pm4IB = ag.SystemAllocator()(uintptr(ibBytes), 0x1000, agent.AllocExecutable)
	if q.pm4IB == nil {
		_ = driver.DestroyQueue(q.queueID)
		q.releaseSignals()
		q.teardownPartial()
		return nil, StatusOutOfResources
	}

	// Step 12: initial CU mask.
	if !cfg.SuppressInitialCUMask {
		_, _ = q.SetCUMasking(0, nil)
	}

	// Step 13: active.
	q.active.StoreRelease(true)
	return q, nil
}

// markHandlerDone sets the DONE bit on a handler state word and wakes any
// Destroy call blocked in waitHandlerDone (spec.md §4.3, §9 "Cooperative
// cancellation").
func (q *Queue) markHandlerDone(state *atomix.Uint64) {
	state.Add(handlerDone)
	q.doneMu.Lock()
	q.doneCond.Broadcast()
	q.doneMu.Unlock()
}

func (q *Queue) waitHandlerDone(state *atomix.Uint64) {
	q.doneMu.Lock()
	for state.LoadAcquire()&handlerDone == 0 {
		q.doneCond.Wait()
	}
	q.doneMu.Unlock()
}

func (q *Queue) releaseSignals() {
	if q.inactive != nil {
		q.inactive.Release()
	}
	if q.exception != nil {
		q.exception.Release()
	}
	if q.event != nil {
		signal.ReleaseEvent()
	}
}

func (q *Queue) teardownPartial() {
	if q.ring != nil {
		q.mapper.Unmap(q.ring)
	}
}

// PublicHandle returns the queue's KMD-assigned public id.
func (q *Queue) PublicHandle() Handle { return q.record.HSAQueue.ID }

// PacketAt returns the ring slot a previously-reserved index maps to.
func (q *Queue) PacketAt(idx uint64) *Packet {
	return q.ring.Packet(uint32(idx) & (q.ring.Packets - 1))
}

func (q *Queue) LoadReadIndexAcquire() uint64 { return q.record.LoadReadIndexAcquire() }
func (q *Queue) LoadReadIndexRelaxed() uint64 { return q.record.LoadReadIndexRelaxed() }
func (q *Queue) LoadWriteIndexAcquire() uint64 { return q.record.LoadWriteIndexAcquire() }
func (q *Queue) LoadWriteIndexRelaxed() uint64 { return q.record.LoadWriteIndexRelaxed() }

func (q *Queue) StoreWriteIndexRelaxed(v uint64) { q.record.StoreWriteIndexRelaxed(v) }
func (q *Queue) StoreWriteIndexRelease(v uint64) { q.record.StoreWriteIndexRelease(v) }

func (q *Queue) CasWriteIndexAcquire(old, new uint64) bool { return q.record.CasWriteIndexAcquire(old, new) }
func (q *Queue) CasWriteIndexAcqRel(old, new uint64) bool  { return q.record.CasWriteIndexAcqRel(old, new) }
func (q *Queue) CasWriteIndexRelease(old, new uint64) bool { return q.record.CasWriteIndexRelease(old, new) }
func (q *Queue) CasWriteIndexRelaxed(old, new uint64) bool { return q.record.CasWriteIndexRelaxed(old, new) }

func (q *Queue) AddWriteIndexAcquire(v uint64) uint64 { return q.record.AddWriteIndexAcquire(v) }
func (q *Queue) AddWriteIndexAcqRel(v uint64) uint64  { return q.record.AddWriteIndexAcqRel(v) }
func (q *Queue) AddWriteIndexRelease(v uint64) uint64 { return q.record.AddWriteIndexRelease(v) }
func (q *Queue) AddWriteIndexRelaxed(v uint64) uint64 { return q.record.AddWriteIndexRelaxed(v) }

// StoreRelaxed / StoreRelease ring the doorbell with the given write-index
// value (spec.md §4.2, §6).
func (q *Queue) StoreRelaxed(v uint64) { q.doorbell.StoreRelaxed(v) }
func (q *Queue) StoreRelease(v uint64) { q.doorbell.StoreRelease(v) }

// Inactivate is a one-shot CAS on active; only the transitioning thread
// calls KMD DestroyQueue, followed by an acquire fence so subsequent
// freeing observes GPU quiescence (spec.md §4.3).
func (q *Queue) Inactivate() {
	if !q.active.CompareAndSwapAcqRel(true, false) {
		return
	}
	_ = q.driver.DestroyQueue(q.queueID)
	_ = q.active.LoadAcquire()
}

// Suspend sets percentage 0 at the current priority (spec.md §4.3).
func (q *Queue) Suspend() error {
	q.lifecycle.Lock()
	defer q.lifecycle.Unlock()
	if err := q.driver.UpdateQueue(q.queueID, 0, q.priority, q.ring.Base, q.ring.AllocBytes, nil); err != nil {
		return err
	}
	q.suspended = true
	return nil
}

// SetPriority is forbidden while suspended (spec.md §4.3).
func (q *Queue) SetPriority(priority int32) error {
	q.lifecycle.Lock()
	defer q.lifecycle.Unlock()
	if q.suspended {
		return StatusInvalidQueue
	}
	if err := q.driver.UpdateQueue(q.queueID, 100, priority, q.ring.Base, q.ring.AllocBytes, nil); err != nil {
		return err
	}
	q.priority = priority
	return nil
}

// Destroy implements the cooperative queue short-circuit and the full
// destructor protocol (spec.md §4.3 "Destroy"/"Destructor protocol").
func (q *Queue) Destroy() {
	if q.record.HSAQueue.Type == QueueTypeCooperative {
		q.ag.GWSRelease()
		return
	}

	q.dynamicScratchState.Add(handlerTerminate)
	q.inactive.StoreRelease(q.inactive.LoadRelaxed() | 1)
	q.waitHandlerDone(&q.dynamicScratchState)

	if !q.handleExceptions {
		q.exceptionState.Add(handlerTerminate)
		q.exception.StoreRelease(q.exception.LoadRelaxed() | 1)
		q.waitHandlerDone(&q.exceptionState)
	}

	q.Inactivate()

	q.scratchMu.Lock()
	if q.scratch.Size != 0 {
		q.ag.ReleaseQueueScratch(&q.scratch)
		q.scratch = agent.ScratchInfo{}
	}
	q.scratchMu.Unlock()

	q.mapper.Unmap(q.ring)
	q.releaseSignals()

	if q.pm4IB != nil {
		q.ag.SystemDeallocator()(q.pm4IB)
	}
}
