// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build race

package aqlqueue

// RaceEnabled is true when the race detector is active. It lets a test
// that relies on the ring/doorbell happens-before relationship established
// across separate atomic variables (which the detector cannot observe)
// skip itself under -race.
const RaceEnabled = true
