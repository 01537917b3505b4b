//go:build !linux && !windows

// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aqlqueue

import "github.com/rocr-go/aqlqueue/internal/agent"

// newPlatformRingMapper is the host-only variant (spec.md §4.1): on
// platforms without a native memfd-style double-map trick, the workaround
// case asks the agent's own allocator for a double-mapped region in a
// single call (original amd_aql_queue.cpp:672-687's #else branch), and the
// non-workaround case falls back to a single plain mapping.
func newPlatformRingMapper(ag agent.Agent, workaround bool) RingMapper {
	if workaround {
		return newAllocatorRingMapper(ag)
	}
	return newSingleMapAllocator(ag)
}
