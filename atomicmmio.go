// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aqlqueue

import "sync/atomic"

// storeUint64Release and storeUint32Release publish a value to a raw MMIO
// doorbell register handed back by the KMD driver contract
// (kmd.QueueResource.DoorbellMMIO). This is the one place in the module
// that reaches for stdlib sync/atomic instead of atomix: atomix's surface,
// as used throughout this module and the teacher it's grounded on, is
// always a named atomic type embedded as a struct field (atomix.Uint64,
// atomix.Int32, ...), never a function operating on an arbitrary external
// *uint64/*uint32 the caller doesn't own the declaration of. The doorbell
// register is exactly that: a raw pointer contributed by an external
// collaborator (spec.md §6 "To the KMD"), not a field this package
// declares, so there is no atomix field to attach it to.
func storeUint64Release(p *uint64, v uint64) { atomic.StoreUint64(p, v) }
func storeUint32Release(p *uint32, v uint32) { atomic.StoreUint32(p, v) }
