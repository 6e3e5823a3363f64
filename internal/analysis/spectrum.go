// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"
)

// Display spectrum constants.
const (
	SpectrumFloor      = -80.0 // Lowest displayed value, also used for negligible magnitudes.
	SpectrumCeiling    = 0.0   // Highest displayed value.
	DefaultSmoothing   = 0.15  // Weight of the newest frame in the exponential average.
	DefaultDisplayBins = 512

	magnitudeEpsilon = 1e-10
	remapExponent    = 0.5 // p^0.5 spends more display bins on low frequencies.
)

// DisplayBinSource returns the FFT bin sampled by display bin i. Positions are
// spread over [0, 1], bent through p^0.5, scaled onto the fftSize/2 bins above
// DC, and clamped to [1, fftSize/2].
func DisplayBinSource(i, displayBins, fftSize int) int {
	half := fftSize / 2
	p := float64(i) / float64(displayBins-1)
	idx := int(math.Pow(p, remapExponent) * float64(half))
	return max(1, min(idx, half))
}

// SpectrumPostprocessor turns linear FFT magnitudes into a fixed number of
// smoothed, log-scaled display bins. The smoothing state survives across
// frames and is only cleared by Reset.
type SpectrumPostprocessor struct {
	fftSize int
	alpha   float64
	normDB  float64 // 20*log10(fftSize)

	source   []int     // FFT bin read by each display bin.
	smoothed []float64 // Unclamped exponential average per display bin.
	display  []float64 // Clamped output per display bin.
}

// NewSpectrumPostprocessor prepares displayBins output bins for magnitudes
// produced by an fftSize-point transform. alpha must be in (0, 1].
func NewSpectrumPostprocessor(fftSize, displayBins int, alpha float64) (*SpectrumPostprocessor, error) {
	if fftSize < 4 {
		return nil, fmt.Errorf("fft size must be at least 4, got %d", fftSize)
	}
	if displayBins < 2 {
		return nil, fmt.Errorf("display bins must be at least 2, got %d", displayBins)
	}
	if !(alpha > 0 && alpha <= 1) {
		return nil, fmt.Errorf("smoothing must be in (0, 1], got %g", alpha)
	}

	sp := &SpectrumPostprocessor{
		fftSize:  fftSize,
		alpha:    alpha,
		normDB:   20 * math.Log10(float64(fftSize)),
		source:   make([]int, displayBins),
		smoothed: make([]float64, displayBins),
		display:  make([]float64, displayBins),
	}
	for i := range sp.source {
		sp.source[i] = DisplayBinSource(i, displayBins, fftSize)
	}
	sp.Reset()
	return sp, nil
}

// Process folds one frame of magnitudes (fftSize/2 + 1 values) into the
// smoothed display bins and returns the display buffer. The returned slice is
// owned by the postprocessor.
func (sp *SpectrumPostprocessor) Process(magnitudes []float64) []float64 {
	for i, src := range sp.source {
		m := magnitudes[src]

		db := SpectrumFloor
		if !(m <= magnitudeEpsilon) {
			db = 20*math.Log10(m) - sp.normDB
		}

		// prev*(1-alpha) + db*alpha, arranged so a steady input stays exact.
		prev := sp.smoothed[i]
		s := prev + (db-prev)*sp.alpha
		sp.smoothed[i] = s

		switch {
		case s < SpectrumFloor:
			s = SpectrumFloor
		case s > SpectrumCeiling:
			s = SpectrumCeiling
		}
		sp.display[i] = s
	}
	return sp.display
}

// Display returns the display buffer of the last Process call, floor filled
// before the first one.
func (sp *SpectrumPostprocessor) Display() []float64 {
	return sp.display
}

// DisplayBins returns the number of output bins.
func (sp *SpectrumPostprocessor) DisplayBins() int {
	return len(sp.display)
}

// SourceBin returns the FFT bin read by display bin i.
func (sp *SpectrumPostprocessor) SourceBin(i int) int {
	if i < 0 || i >= len(sp.source) {
		return 0
	}
	return sp.source[i]
}

// Reset returns every bin, smoothed and displayed, to the floor.
func (sp *SpectrumPostprocessor) Reset() {
	for i := range sp.display {
		sp.smoothed[i] = SpectrumFloor
		sp.display[i] = SpectrumFloor
	}
}
