// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aqlqueue

import (
	"testing"
	"time"
)

func TestDecodeExceptionBitmaskFirstMatchWins(t *testing.T) {
	cases := []struct {
		name string
		code uint64
		want Status
	}{
		{"wave abort, bit 1", 1 << 0, StatusException},
		{"illegal instruction, bit 4", 1 << 3, StatusIllegalInstruction},
		{"memory violation, bit 5", 1 << 4, StatusMemoryFault},
		{"aperture violation, bit 6", 1 << 5, StatusMemoryApertureViolation},
		{"dispatch dim invalid, bit 16", 1 << 15, StatusIncompatibleArguments},
		{"unsupported packet, bit 20", 1 << 19, StatusInvalidPacketFormat},
		{"device remove, bit 50", 1 << 49, StatusError},
		{"no recognized bit", 1 << 40, StatusError},
	}
	for _, c := range cases {
		if got := decodeExceptionBitmask(c.code); got != c.want {
			t.Errorf("%s: decodeExceptionBitmask(%#x) = %v, want %v", c.name, c.code, got, c.want)
		}
	}
}

func TestExceptionHandlerSuspendsAndInvokesCallback(t *testing.T) {
	results := make(chan Status, 1)
	ag := newFakeAgent()
	drv := newFakeDriver()
	drv.supportsDebug = true // forces New() to arm a dedicated exception channel

	q, err := New(ag, drv, Config{
		RequestedPackets: 64,
		ErrorsCallback: func(status Status, handle Handle, userData any) {
			results <- status
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer q.Destroy()

	if q.handleExceptions {
		t.Fatalf("handleExceptions: got true, want false when the driver supports exception debugging")
	}

	q.exception.StoreRelease(1 << 3) // bit 4: EC_QUEUE_WAVE_ILLEGAL_INSTRUCTION

	select {
	case got := <-results:
		if got != StatusIllegalInstruction {
			t.Fatalf("callback status: got %v, want StatusIllegalInstruction", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the exception callback")
	}

	if !q.suspended {
		t.Fatalf("suspended: got false, want true after an exception is handled")
	}
}
