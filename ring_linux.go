//go:build linux

// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aqlqueue

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/rocr-go/aqlqueue/internal/agent"
)

// linuxDoubleMapper implements RingMapper via the memfd double-map trick:
// one memfd-backed region mapped twice, back to back, so that a ring index
// computed mod Packets and one computed mod 2*Packets land on the same
// physical packet (SUPPLEMENTED FEATURE 1). Grounded directly on
// vlourme-rio/pkg/bytebuffers/buffer_linux.go's allocateBuffer/mmap/munmap,
// adapted from a byte-buffer double-map to a ring of fixed-size packets and
// parameterized on executability.
type linuxDoubleMapper struct{}

// newPlatformRingMapper double-maps via memfd only when the legacy
// queue_full_workaround_ applies (original amd_aql_queue.cpp's __linux__
// branch guards the memfd path on queue_full_workaround_ too); otherwise a
// single plain mapping through the agent's allocator suffices.
func newPlatformRingMapper(ag agent.Agent, workaround bool) RingMapper {
	if workaround {
		return linuxDoubleMapper{}
	}
	return newSingleMapAllocator(ag)
}

func (linuxDoubleMapper) Map(packets uint32, isKV bool) (*Ring, error) {
	size := alignUp64(uint64(packets)*PacketSizeBytes, 4096)

	vaddr, err := mmapAnon(0, size*2)
	if err != nil {
		return nil, StatusOutOfResources
	}

	fd, err := unix.MemfdCreate("aqlqueue-ring", 0)
	if err != nil {
		_ = munmapAt(vaddr, size*2)
		return nil, StatusOutOfResources
	}
	defer func() { _ = syscall.Close(fd) }()

	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		_ = munmapAt(vaddr, size*2)
		return nil, StatusOutOfResources
	}

	prot := syscall.PROT_READ | syscall.PROT_WRITE
	if !isKV {
		prot |= syscall.PROT_EXEC
	}

	if _, err := mmapFixed(vaddr, size, prot, uintptr(fd)); err != nil {
		_ = munmapAt(vaddr, size*2)
		return nil, StatusOutOfResources
	}
	if _, err := mmapFixed(vaddr+uintptr(size), size, prot, uintptr(fd)); err != nil {
		_ = munmapAt(vaddr, size*2)
		return nil, StatusOutOfResources
	}

	return &Ring{
		Base:         unsafe.Pointer(vaddr),
		AllocBytes:   uint32(size) * 2,
		Packets:      packets,
		DoubleMapped: true,
	}, nil
}

func (linuxDoubleMapper) Unmap(r *Ring) {
	_ = munmapAt(uintptr(r.Base), uint64(r.AllocBytes))
}

func mmapAnon(addr uintptr, length uint64) (uintptr, error) {
	result, _, errno := syscall.Syscall6(
		syscall.SYS_MMAP,
		addr,
		uintptr(length),
		uintptr(syscall.PROT_READ|syscall.PROT_WRITE),
		uintptr(syscall.MAP_SHARED|syscall.MAP_ANONYMOUS),
		^uintptr(0),
		0,
	)
	if errno != 0 {
		return 0, errno
	}
	return result, nil
}

func mmapFixed(addr uintptr, length uint64, prot int, fd uintptr) (uintptr, error) {
	result, _, errno := syscall.Syscall6(
		syscall.SYS_MMAP,
		addr,
		uintptr(length),
		uintptr(prot),
		uintptr(syscall.MAP_SHARED|syscall.MAP_FIXED),
		fd,
		0,
	)
	if errno != 0 {
		return 0, errno
	}
	return result, nil
}

func munmapAt(addr uintptr, length uint64) error {
	_, _, errno := syscall.Syscall(syscall.SYS_MUNMAP, addr, uintptr(length), 0)
	if errno != 0 {
		return errno
	}
	return nil
}
