// SPDX-License-Identifier: MIT
package meter

import (
	"errors"
	"fmt"
	"strings"

	"tracktweak/internal/analysis"
	"tracktweak/pkg/bitint"
)

// Sample-rate and frame-size limits accepted by New and Reconfigure.
const (
	MinSampleRate = 8000   // Hz
	MaxSampleRate = 192000 // Hz
	MinFrameSize  = 64
	MaxFrameSize  = 16384 // Bounds the transform cost paid inside the audio callback.
)

// Configuration errors. They are returned wrapped; test with errors.Is.
var (
	ErrInvalidSampleRate  = errors.New("invalid sample rate")
	ErrInvalidFrameSize   = errors.New("invalid frame size")
	ErrInvalidDisplayBins = errors.New("invalid display bin count")
	ErrInvalidSmoothing   = errors.New("invalid smoothing coefficient")
	ErrSpectrumLength     = errors.New("spectrum destination has wrong length")
)

// TransformMode selects which side of the handoff pays for the FFT.
type TransformMode int

const (
	// ProducerTransform runs the transform and postprocessor inside
	// ProcessBlock as soon as a frame completes. Readers only copy.
	ProducerTransform TransformMode = iota
	// ConsumerTransform leaves completed frames pending and transforms them
	// on the next spectrum read, on the reader's goroutine.
	ConsumerTransform
)

// String returns the configuration name of the mode.
func (m TransformMode) String() string {
	switch m {
	case ProducerTransform:
		return "producer"
	case ConsumerTransform:
		return "consumer"
	default:
		return fmt.Sprintf("TransformMode(%d)", int(m))
	}
}

// ParseTransformMode converts "producer" or "consumer" (case-insensitive) to
// a TransformMode. Unknown names return ProducerTransform and an error.
func ParseTransformMode(name string) (TransformMode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "producer", "":
		return ProducerTransform, nil
	case "consumer", "lazy":
		return ConsumerTransform, nil
	default:
		return ProducerTransform, fmt.Errorf("unknown transform mode: '%s'", name)
	}
}

// Options configures a Meter. Only SampleRate can change after construction,
// through Reconfigure.
type Options struct {
	SampleRate  float64             // Host sample rate in Hz.
	FrameSize   int                 // Analysis frame / FFT size, power of 2.
	DisplayBins int                 // Length of the published spectrum.
	Smoothing   float64             // Exponential smoothing weight of the newest frame, (0, 1].
	Window      analysis.WindowFunc // Analysis window applied before the FFT.
	Mode        TransformMode
}

// DefaultOptions returns the standard meter configuration at 48 kHz.
func DefaultOptions() Options {
	return Options{
		SampleRate:  48000,
		FrameSize:   2048,
		DisplayBins: analysis.DefaultDisplayBins,
		Smoothing:   analysis.DefaultSmoothing,
		Window:      analysis.Hann,
		Mode:        ProducerTransform,
	}
}

// ValidateSampleRate rejects rates outside [MinSampleRate, MaxSampleRate],
// including NaN.
func ValidateSampleRate(sampleRate float64) error {
	if !(sampleRate >= MinSampleRate && sampleRate <= MaxSampleRate) {
		return fmt.Errorf("%w: %g Hz (must be within %d-%d Hz)",
			ErrInvalidSampleRate, sampleRate, MinSampleRate, MaxSampleRate)
	}
	return nil
}

// Validate checks every option.
func (o Options) Validate() error {
	if err := ValidateSampleRate(o.SampleRate); err != nil {
		return err
	}
	if !bitint.IsPowerOfTwo(o.FrameSize) || o.FrameSize < MinFrameSize || o.FrameSize > MaxFrameSize {
		return fmt.Errorf("%w: %d (must be a power of 2 within %d-%d)",
			ErrInvalidFrameSize, o.FrameSize, MinFrameSize, MaxFrameSize)
	}
	if o.DisplayBins < 2 {
		return fmt.Errorf("%w: %d (must be at least 2)", ErrInvalidDisplayBins, o.DisplayBins)
	}
	if !(o.Smoothing > 0 && o.Smoothing <= 1) {
		return fmt.Errorf("%w: %g (must be within (0, 1])", ErrInvalidSmoothing, o.Smoothing)
	}
	if o.Mode != ProducerTransform && o.Mode != ConsumerTransform {
		return fmt.Errorf("unknown transform mode %d", int(o.Mode))
	}
	return nil
}
