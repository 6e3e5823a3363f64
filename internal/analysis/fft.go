// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math/cmplx"
	"strings"

	"tracktweak/pkg/bitint"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// WindowFunc defines the type for selecting an FFT window function.
type WindowFunc int

// Enum for available window functions.
const (
	BartlettHann WindowFunc = iota
	Blackman
	BlackmanNuttall
	Hann
	Hamming
	Lanczos
	Nuttall
)

// String returns the canonical name of the window function.
func (w WindowFunc) String() string {
	switch w {
	case BartlettHann:
		return "BartlettHann"
	case Blackman:
		return "Blackman"
	case BlackmanNuttall:
		return "BlackmanNuttall"
	case Hann:
		return "Hann"
	case Hamming:
		return "Hamming"
	case Lanczos:
		return "Lanczos"
	case Nuttall:
		return "Nuttall"
	default:
		return fmt.Sprintf("WindowFunc(%d)", int(w))
	}
}

// Transform applies an analysis window to a captured frame and computes the
// linear magnitude of every real-FFT bin. All buffers are allocated up front
// so Process is allocation free.
type Transform struct {
	fftCalculator *fourier.FFT // Reusable FFT calculator instance.
	fftSize       int          // Number of points for the FFT (power of 2).
	windowType    WindowFunc

	window    []float64    // Pre-calculated window coefficients.
	input     []float64    // Windowed frame.
	fftOutput []complex128 // FFT complex results, fftSize/2 + 1 values.
	magnitude []float64    // Linear magnitudes, fftSize/2 + 1 values.
}

// NewTransform prepares a transform of fftSize points using windowType.
func NewTransform(fftSize int, windowType WindowFunc) (*Transform, error) {
	if !bitint.IsPowerOfTwo(fftSize) || fftSize < 4 {
		return nil, fmt.Errorf("fft size must be a power of 2 of at least 4, got %d", fftSize)
	}

	windowCoeffs := make([]float64, fftSize)
	applyWindow(windowCoeffs, windowType)

	// FFT output size for real input is N/2 + 1 complex values.
	magnitudeSize := fftSize/2 + 1

	return &Transform{
		fftCalculator: fourier.NewFFT(fftSize),
		fftSize:       fftSize,
		windowType:    windowType,
		window:        windowCoeffs,
		input:         make([]float64, fftSize),
		fftOutput:     make([]complex128, magnitudeSize),
		magnitude:     make([]float64, magnitudeSize),
	}, nil
}

// Process windows frame, transforms it, and returns the magnitude buffer.
// The returned slice is owned by the Transform and overwritten by the next
// call. Frames shorter than the FFT size are zero padded.
func (t *Transform) Process(frame []float64) []float64 {
	n := min(len(frame), t.fftSize)
	for i := range n {
		t.input[i] = frame[i] * t.window[i]
	}
	clear(t.input[n:])

	t.fftCalculator.Coefficients(t.fftOutput, t.input)

	for i, c := range t.fftOutput {
		t.magnitude[i] = cmplx.Abs(c)
	}
	return t.magnitude
}

// Magnitudes returns the magnitude buffer of the last Process call.
func (t *Transform) Magnitudes() []float64 {
	return t.magnitude
}

// Size returns the FFT size.
func (t *Transform) Size() int {
	return t.fftSize
}

// Window returns the window function in use.
func (t *Transform) Window() WindowFunc {
	return t.windowType
}

// FrequencyForBin returns the center frequency (Hz) of an FFT bin at
// sampleRate, or 0 for an out-of-range index.
func (t *Transform) FrequencyForBin(binIndex int, sampleRate float64) float64 {
	if binIndex < 0 || binIndex >= len(t.magnitude) {
		return 0.0
	}
	return float64(binIndex) * (sampleRate / float64(t.fftSize))
}

// ParseWindowFunc converts a string name (case-insensitive) to a WindowFunc
// enum, returns a known default (Hann) and an error if the name is unknown.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(name) {
	case "bartletthann":
		return BartlettHann, nil
	case "blackman":
		return Blackman, nil
	case "blackmannuttall":
		return BlackmanNuttall, nil
	case "hann", "hanning":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "lanczos":
		return Lanczos, nil
	case "nuttall":
		return Nuttall, nil
	default:
		return Hann, fmt.Errorf("unknown FFT window function name: '%s'", name)
	}
}

// applyWindow fills coeffs with the selected window. Unknown types fall back
// to Hann.
func applyWindow(coeffs []float64, windowType WindowFunc) {
	// The gonum window functions scale the slice in place.
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	switch windowType {
	case BartlettHann:
		window.BartlettHann(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	default:
		window.Hann(coeffs)
	}
}
