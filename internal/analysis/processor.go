// SPDX-License-Identifier: MIT
package analysis

// BlockProcessor is implemented by the per-block stages of the meter. Process
// is called from the real-time audio callback with one non-interleaved block
// (one slice per channel, all of equal length); implementations must not
// allocate, block, or retain the slices.
type BlockProcessor interface {
	Process(block [][]float32)
}

// SpectrumProvider is implemented by components that publish display-ready
// spectrum data. It decouples consumers (UDP publisher, TUI, HTTP API) from
// the meter that owns the pipeline.
type SpectrumProvider interface {
	DisplayBins() int                     // DisplayBins returns the fixed length of the published spectrum.
	SpectrumInto(dst []float64) error     // SpectrumInto copies the published spectrum into dst without allocating.
	FrequencyForDisplayBin(i int) float64 // FrequencyForDisplayBin returns the frequency (Hz) sampled by display bin i.
}
