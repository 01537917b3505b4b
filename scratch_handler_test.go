// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aqlqueue

import (
	"testing"

	"github.com/rocr-go/aqlqueue/internal/agent"
)

func TestDecodeDynamicScratchError(t *testing.T) {
	cases := []struct {
		code uint64
		want Status
	}{
		{2, StatusIncompatibleArguments},
		{4, StatusInvalidAllocation},
		{8, StatusInvalidCodeObject},
		{32, StatusInvalidPacketFormat},
		{256, StatusInvalidPacketFormat},
		{64, StatusInvalidArgument},
		{128, StatusInvalidISA},
		{0x20000000, StatusMemoryApertureViolation},
		{0x40000000, StatusIllegalInstruction},
		{0x80000000, StatusException},
		{0x1, StatusError},
	}
	for _, c := range cases {
		if got := decodeDynamicScratchError(c.code); got != c.want {
			t.Errorf("decodeDynamicScratchError(%#x) = %v, want %v", c.code, got, c.want)
		}
	}
}

func TestHandleLargeScratchReclaim(t *testing.T) {
	q, ag, _ := newTestQueue(t, Config{RequestedPackets: 64})
	defer q.Destroy()

	q.scratchMu.Lock()
	q.scratch = agent.ScratchInfo{Size: 4096}
	q.scratchMu.Unlock()
	q.record.queueProperties.StoreRelaxed(QueuePropertyPtr64 | QueuePropertyUseScratchOnce)

	q.handleLargeScratchReclaim()

	if ag.releaseCount != 1 {
		t.Fatalf("ReleaseQueueScratch calls: got %d, want 1", ag.releaseCount)
	}
	q.scratchMu.Lock()
	sz := q.scratch.Size
	q.scratchMu.Unlock()
	if sz != 0 {
		t.Fatalf("scratch.Size: got %d, want 0 after reclaim", sz)
	}
	if q.record.ScratchResourceDescriptor[2] != 0 {
		t.Fatalf("ScratchResourceDescriptor[2]: got %d, want 0", q.record.ScratchResourceDescriptor[2])
	}
	if q.record.queueProperties.LoadRelaxed()&QueuePropertyUseScratchOnce != 0 {
		t.Fatalf("QueuePropertyUseScratchOnce still set after reclaim")
	}
	if q.inactive.LoadRelaxed() != 0 {
		t.Fatalf("inactive signal: got %d, want 0 after reclaim", q.inactive.LoadRelaxed())
	}
}

func TestHandleInsufficientScratchGrowsAndRebuildsSRD(t *testing.T) {
	q, _, _ := newTestQueue(t, Config{RequestedPackets: 64})
	defer q.Destroy()

	pkt := q.ring.Packet(0)
	pkt.StoreHeaderRelaxed(PacketHeader(PacketTypeKernelDispatch))
	dispatch := pkt.AsKernelDispatch()
	dispatch.WorkgroupSizeX = 8
	dispatch.WorkgroupSizeY = 8
	dispatch.WorkgroupSizeZ = 1
	dispatch.GridSizeX = 64
	dispatch.GridSizeY = 64
	dispatch.GridSizeZ = 1
	dispatch.PrivateSegmentSize = 256

	q.handleInsufficientScratch(errBitInsufficientScratch)

	q.scratchMu.Lock()
	size := q.scratch.Size
	base := q.scratch.QueueBase
	q.scratchMu.Unlock()

	if size == 0 {
		t.Fatalf("scratch.Size: got 0, want non-zero after growth")
	}
	if base == nil {
		t.Fatalf("scratch.QueueBase: got nil after a successful AcquireQueueScratch")
	}
	if q.record.ScratchResourceDescriptor[2] != uint32(size) {
		t.Fatalf("ScratchResourceDescriptor[2]: got %d, want %d", q.record.ScratchResourceDescriptor[2], uint32(size))
	}
	if q.inactive.LoadRelaxed() != 0 {
		t.Fatalf("inactive signal: got %d, want 0 after a successful grow", q.inactive.LoadRelaxed())
	}
}

func TestHandleInsufficientScratchRetriesWhenAgentAsksToWait(t *testing.T) {
	q, ag, _ := newTestQueue(t, Config{RequestedPackets: 64})
	defer q.Destroy()

	pkt := q.ring.Packet(0)
	pkt.StoreHeaderRelaxed(PacketHeader(PacketTypeKernelDispatch))
	dispatch := pkt.AsKernelDispatch()
	dispatch.WorkgroupSizeX = 4
	dispatch.WorkgroupSizeY = 1
	dispatch.WorkgroupSizeZ = 1
	dispatch.GridSizeX = 4
	dispatch.GridSizeY = 1
	dispatch.GridSizeZ = 1

	ag.acquireScratch = func(info *agent.ScratchInfo) {
		info.Retry = true
	}

	outcome := q.handleInsufficientScratch(errBitInsufficientScratch)
	if !outcome.Rearm {
		t.Fatalf("outcome.Rearm: got false, want true on retry")
	}
	if q.dynamicScratchState.LoadAcquire()&handlerRetry == 0 {
		t.Fatalf("dynamicScratchState: handlerRetry bit not set after a Retry response")
	}
}

func TestDynamicScratchHandlerSurfacesExceptionsWhenFolded(t *testing.T) {
	var got Status
	done := make(chan struct{})
	ag := newFakeAgent()
	drv := newFakeDriver() // supportsDebug defaults to false: exceptions fold into the scratch channel

	q, err := New(ag, drv, Config{
		RequestedPackets: 64,
		ErrorsCallback: func(status Status, handle Handle, userData any) {
			got = status
			close(done)
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer q.Destroy()

	if !q.handleExceptions {
		t.Fatalf("handleExceptions: got false, want true when the driver lacks a debug channel")
	}

	outcome := q.dynamicScratchHandler(0x40000000) // EC bit decoding to StatusIllegalInstruction
	if outcome.Rearm {
		t.Fatalf("outcome.Rearm: got true, want false (terminal fault)")
	}
	<-done
	if got != StatusIllegalInstruction {
		t.Fatalf("callback status: got %v, want StatusIllegalInstruction", got)
	}
}
