// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package aqlqueue

// SetCUMasking applies a compute-unit mask, merged with any process-global
// mask and trimmed to the physical CU count (spec.md §4.6). n == 0 resets
// to all-ones. The returned Status is StatusCUMaskReduced (a warning, not
// an error — the mask is still applied) when clipping occurred.
func (q *Queue) SetCUMasking(n uint32, mask []uint32) (Status, error) {
	cuCount := uint32(q.ag.Properties().ComputeUnitCount)
	maskDwords := (cuCount + 31) / 32
	var tailMask uint32
	if rem := cuCount % 32; rem != 0 {
		tailMask = (1 << rem) - 1
	}

	var m []uint32
	if n == 0 {
		m = make([]uint32, maskDwords)
		for i := range m {
			m[i] = ^uint32(0)
		}
	} else {
		words := n / 32
		if uint32(len(mask)) < words {
			words = uint32(len(mask))
		}
		m = make([]uint32, words)
		copy(m, mask[:words])
	}

	globalMask := q.ag.GlobalCUMask()
	clipped := false

	if len(globalMask) != 0 {
		limit := minUint32(uint32(len(globalMask)), uint32(len(m)), maskDwords)
		for i := limit; i < uint32(len(m)); i++ {
			if m[i] != 0 {
				clipped = true
				break
			}
		}
		m = m[:limit]
		for i := uint32(0); i < limit; i++ {
			if m[i]&^globalMask[i] != 0 {
				clipped = true
			}
			m[i] &= globalMask[i]
		}
	} else {
		limit := minUint32(uint32(len(m)), maskDwords)
		m = m[:limit]
	}

	if uint32(len(m)) == maskDwords && tailMask != 0 {
		m[maskDwords-1] &= tailMask
	}

	q.maskMu.Lock()
	applyNeeded := len(q.cuMask) != 0 || n != 0 || len(globalMask) != 0
	if applyNeeded {
		if err := q.driver.SetQueueCUMask(q.queueID, uint32(len(m))*32, m); err != nil {
			q.maskMu.Unlock()
			return StatusError, err
		}
	}
	q.cuMask = m
	q.maskMu.Unlock()

	if clipped {
		return StatusCUMaskReduced, nil
	}
	return StatusSuccess, nil
}

// GetCUMasking copies the cached mask into out, zero-padding any trailing
// dwords the caller requested beyond the stored size.
func (q *Queue) GetCUMasking(n uint32, out []uint32) {
	q.maskMu.Lock()
	defer q.maskMu.Unlock()

	userDwords := n / 32
	if userDwords > uint32(len(q.cuMask)) {
		for i := uint32(len(q.cuMask)); i < userDwords && int(i) < len(out); i++ {
			out[i] = 0
		}
		userDwords = uint32(len(q.cuMask))
	}
	copy(out[:userDwords], q.cuMask[:userDwords])
}

func minUint32(vs ...uint32) uint32 {
	m := vs[0]
	for _, v := range vs[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
