// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"time"
)

// Loudness constants. The values approximate LUFS from plain mean-square
// energy: there is no K-weighting pre-filter and no gating, so readings are
// close to, but not, ITU-R BS.1770 loudness.
const (
	LoudnessFloor   = -70.0  // Reported for silence or negligible energy.
	LoudnessOffset  = -0.691 // Added to 10*log10(meanSquare).
	loudnessEpsilon = 1e-10  // Mean-square values at or below this read as the floor.

	MomentaryWindow = 400 * time.Millisecond
	ShortTermWindow = 3 * time.Second

	// MaxLoudnessChannels is the number of channels that contribute to
	// loudness. Extra channels in a block are ignored.
	MaxLoudnessChannels = 2
)

// WindowCapacity converts a window duration into a sample count at sampleRate.
func WindowCapacity(sampleRate float64, window time.Duration) int {
	return int(math.Round(sampleRate * window.Seconds()))
}

// LoudnessFromMeanSquare maps a mean-square energy onto the loudness scale.
// Energies at or below epsilon, and results under the floor, read as
// LoudnessFloor. NaN and +Inf are passed through untouched.
func LoudnessFromMeanSquare(meanSquare float64) float64 {
	if meanSquare <= loudnessEpsilon {
		return LoudnessFloor
	}
	v := 10*math.Log10(meanSquare) + LoudnessOffset
	if v < LoudnessFloor {
		return LoudnessFloor
	}
	return v
}

// LoudnessEstimator keeps a momentary and a short-term ring window per channel
// and recomputes both loudness values after every block. A window reads the
// floor until the reference channel has filled it once.
//
// Integrated loudness is deliberately the short-term value. A gated long-term
// integration is not implemented.
type LoudnessEstimator struct {
	momentary [MaxLoudnessChannels]*RingWindow
	shortTerm [MaxLoudnessChannels]*RingWindow

	momentaryLUFS float64
	shortTermLUFS float64
}

// Compile-time check for interface implementation.
var _ BlockProcessor = (*LoudnessEstimator)(nil)

// NewLoudnessEstimator sizes both windows for sampleRate. The caller is
// responsible for validating the rate.
func NewLoudnessEstimator(sampleRate float64) *LoudnessEstimator {
	momentaryCap := WindowCapacity(sampleRate, MomentaryWindow)
	shortTermCap := WindowCapacity(sampleRate, ShortTermWindow)

	le := &LoudnessEstimator{
		momentaryLUFS: LoudnessFloor,
		shortTermLUFS: LoudnessFloor,
	}
	for ch := range MaxLoudnessChannels {
		le.momentary[ch] = NewRingWindow(momentaryCap)
		le.shortTerm[ch] = NewRingWindow(shortTermCap)
	}
	return le
}

// Process writes up to two channels of block into both windows and
// recomputes loudness over the full window capacity.
func (le *LoudnessEstimator) Process(block [][]float32) {
	channels := min(len(block), MaxLoudnessChannels)
	if channels == 0 {
		return
	}

	for ch := range channels {
		le.momentary[ch].Write(block[ch])
		le.shortTerm[ch].Write(block[ch])
	}

	le.momentaryLUFS = windowLoudness(le.momentary[:channels])
	le.shortTermLUFS = windowLoudness(le.shortTerm[:channels])
}

// windowLoudness averages the mean-square energy of equally sized channel
// windows and converts it to loudness.
func windowLoudness(windows []*RingWindow) float64 {
	if !windows[0].Primed() {
		return LoudnessFloor
	}
	var sum float64
	for _, w := range windows {
		sum += w.MeanSquare()
	}
	return LoudnessFromMeanSquare(sum / float64(len(windows)))
}

// Momentary returns the loudness of the last ~400 ms.
func (le *LoudnessEstimator) Momentary() float64 {
	return le.momentaryLUFS
}

// ShortTerm returns the loudness of the last ~3 s.
func (le *LoudnessEstimator) ShortTerm() float64 {
	return le.shortTermLUFS
}

// Integrated mirrors ShortTerm.
func (le *LoudnessEstimator) Integrated() float64 {
	return le.shortTermLUFS
}

// MomentaryCapacity returns the momentary window size in samples per channel.
func (le *LoudnessEstimator) MomentaryCapacity() int {
	return le.momentary[0].Capacity()
}

// ShortTermCapacity returns the short-term window size in samples per channel.
func (le *LoudnessEstimator) ShortTermCapacity() int {
	return le.shortTerm[0].Capacity()
}

// Reset clears every window and returns both readings to the floor.
func (le *LoudnessEstimator) Reset() {
	for ch := range MaxLoudnessChannels {
		le.momentary[ch].Reset()
		le.shortTerm[ch].Reset()
	}
	le.momentaryLUFS = LoudnessFloor
	le.shortTermLUFS = LoudnessFloor
}
