// SPDX-License-Identifier: MIT
package analysis

import "math"

// BlockRMS calculates the root mean square of samples. It reports false for an
// empty slice instead of dividing by zero.
func BlockRMS(samples []float32) (float64, bool) {
	if len(samples) == 0 {
		return 0, false
	}

	var sumSquare float64
	for _, s := range samples {
		v := float64(s)
		sumSquare += v * v
	}
	return math.Sqrt(sumSquare / float64(len(samples))), true
}

// LevelMeter holds the RMS of the reference channel (channel 0) of the most
// recent non-empty block. It keeps no history beyond that value.
type LevelMeter struct {
	rms float64
}

// Compile-time check for interface implementation.
var _ BlockProcessor = (*LevelMeter)(nil)

// Process replaces the level with the RMS of block's first channel. Blocks
// without a channel or without samples leave the previous level in place.
func (lm *LevelMeter) Process(block [][]float32) {
	if len(block) == 0 {
		return
	}
	if rms, ok := BlockRMS(block[0]); ok {
		lm.rms = rms
	}
}

// Level returns the last computed RMS (linear, 0 for silence).
func (lm *LevelMeter) Level() float64 {
	return lm.rms
}

// Reset returns the level to silence.
func (lm *LevelMeter) Reset() {
	lm.rms = 0
}
