//go:build windows

// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aqlqueue

import (
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/rocr-go/aqlqueue/internal/agent"
)

// windowsDoubleMapper double-maps a page-file-backed section twice, back to
// back, mirroring original amd_aql_queue.cpp's _WIN32 branch
// (CreateFileMapping + two MapViewOfFileEx calls at adjacent addresses).
type windowsDoubleMapper struct{}

func newPlatformRingMapper(ag agent.Agent, workaround bool) RingMapper {
	if workaround {
		return windowsDoubleMapper{}
	}
	return newSingleMapAllocator(ag)
}

func (windowsDoubleMapper) Map(packets uint32, isKV bool) (*Ring, error) {
	size := alignUp64(uint64(packets)*PacketSizeBytes, 4096)

	prot := uint32(windows.PAGE_EXECUTE_READWRITE)
	if isKV {
		prot = windows.PAGE_READWRITE
	}

	h, err := windows.CreateFileMapping(windows.InvalidHandle, nil, prot, uint32(size>>32), uint32(size), nil)
	if err != nil || h == 0 {
		return nil, StatusOutOfResources
	}

	access := uint32(windows.FILE_MAP_READ | windows.FILE_MAP_WRITE)
	if !isKV {
		access |= windows.FILE_MAP_EXECUTE
	}

	// Reserve 2*size of address space first, release it, then re-request the
	// two views at the addresses the reservation handed back: Windows has no
	// MAP_FIXED, so the original probes for a free double-size region this
	// way before mapping the two halves into it.
	reservation, err := windows.VirtualAlloc(0, uintptr(size*2), windows.MEM_RESERVE, windows.PAGE_NOACCESS)
	if err != nil || reservation == 0 {
		_ = windows.CloseHandle(h)
		return nil, StatusOutOfResources
	}
	if err := windows.VirtualFree(reservation, 0, windows.MEM_RELEASE); err != nil {
		_ = windows.CloseHandle(h)
		return nil, StatusOutOfResources
	}

	view0, err := windows.MapViewOfFileEx(h, access, 0, 0, uintptr(size), reservation)
	if err != nil || view0 == 0 {
		_ = windows.CloseHandle(h)
		return nil, StatusOutOfResources
	}
	view1, err := windows.MapViewOfFileEx(h, access, 0, 0, uintptr(size), reservation+uintptr(size))
	if err != nil || view1 == 0 {
		_ = windows.UnmapViewOfFile(view0)
		_ = windows.CloseHandle(h)
		return nil, StatusOutOfResources
	}
	_ = windows.CloseHandle(h)

	return &Ring{
		Base:         unsafe.Pointer(view0),
		AllocBytes:   uint32(size) * 2,
		Packets:      packets,
		DoubleMapped: true,
	}, nil
}

func (windowsDoubleMapper) Unmap(r *Ring) {
	base := uintptr(r.Base)
	half := uintptr(r.AllocBytes / 2)
	_ = windows.UnmapViewOfFile(base)
	_ = windows.UnmapViewOfFile(base + half)
}
