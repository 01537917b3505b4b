// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aqlqueue

import "testing"

func TestValidatePacketCountRejectsNonPowerOfTwo(t *testing.T) {
	if _, err := validatePacketCount(100, false); err != StatusInvalidQueueCreation {
		t.Fatalf("validatePacketCount(100): got %v, want StatusInvalidQueueCreation", err)
	}
}

func TestValidatePacketCountRejectsOutOfRange(t *testing.T) {
	if _, err := validatePacketCount(1, false); err != StatusInvalidQueueCreation {
		t.Fatalf("validatePacketCount(1): got %v, want StatusInvalidQueueCreation (below min)", err)
	}
	if _, err := validatePacketCount(1<<31, false); err != StatusInvalidQueueCreation {
		t.Fatalf("validatePacketCount(2^31): got %v, want StatusInvalidQueueCreation (above max)", err)
	}
}

func TestValidatePacketCountAcceptsInRangePowerOfTwo(t *testing.T) {
	got, err := validatePacketCount(256, false)
	if err != nil {
		t.Fatalf("validatePacketCount(256): %v", err)
	}
	if got != 256 {
		t.Fatalf("validatePacketCount(256): got %d, want 256", got)
	}
}

func TestValidatePacketCountWorkaroundHalvesMax(t *testing.T) {
	_, errPlain := validatePacketCount(1<<25, false)
	_, errWorkaround := validatePacketCount(1<<25, true)
	if errPlain != nil {
		t.Fatalf("non-workaround 2^25 packets should fit: %v", errPlain)
	}
	minW, maxW := minMaxPackets(true)
	minP, maxP := minMaxPackets(false)
	if maxW >= maxP {
		t.Fatalf("workaround max %d should be less than plain max %d", maxW, maxP)
	}
	if minW < minP {
		t.Fatalf("workaround min %d should be at least plain min %d (whole-page floor)", minW, minP)
	}
	_ = errWorkaround
}

func TestIsPowerOfTwo(t *testing.T) {
	cases := map[uint32]bool{0: false, 1: true, 2: true, 3: false, 64: true, 65: false}
	for n, want := range cases {
		if got := isPowerOfTwo(n); got != want {
			t.Errorf("isPowerOfTwo(%d): got %v, want %v", n, got, want)
		}
	}
}

func TestFillInvalidMarksEverySlot(t *testing.T) {
	ag := newFakeAgent()
	mapper := newSingleMapAllocator(ag)
	ring, err := mapper.Map(64, false)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	defer mapper.Unmap(ring)

	fillInvalid(ring)
	for i := uint32(0); i < ring.Packets; i++ {
		if ring.Packet(i).IsValid() {
			t.Fatalf("packet %d: IsValid() true right after fillInvalid", i)
		}
	}

	ring.Packet(3).StoreHeaderRelease(PacketHeader(PacketTypeKernelDispatch))
	if !ring.Packet(3).IsValid() {
		t.Fatalf("packet 3: IsValid() false after storing a non-INVALID header")
	}
	if ring.Packet(2).IsValid() {
		t.Fatalf("packet 2: IsValid() true, want untouched INVALID neighbor")
	}
}

func TestSingleMapAllocatorRoundsUpToPage(t *testing.T) {
	ag := newFakeAgent()
	mapper := newSingleMapAllocator(ag)
	ring, err := mapper.Map(16, false)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	defer mapper.Unmap(ring)

	if ring.AllocBytes%4096 != 0 {
		t.Fatalf("AllocBytes %d not page-aligned", ring.AllocBytes)
	}
	if ring.DoubleMapped {
		t.Fatalf("singleMapAllocator ring reports DoubleMapped")
	}
	if ring.Packets != 16 {
		t.Fatalf("Packets: got %d, want 16", ring.Packets)
	}
}

func TestAllocatorRingMapperReportsDoubleMapped(t *testing.T) {
	ag := newFakeAgent()
	mapper := newAllocatorRingMapper(ag)
	ring, err := mapper.Map(16, false)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	defer mapper.Unmap(ring)

	if !ring.DoubleMapped {
		t.Fatalf("allocatorRingMapper ring reports DoubleMapped = false")
	}
	if ring.AllocBytes != uint32(alignUp64(16*PacketSizeBytes, 4096))*2 {
		t.Fatalf("AllocBytes: got %d, want double the physical size", ring.AllocBytes)
	}
}
