// SPDX-License-Identifier: MIT
//
// Package utils holds deterministic signal generators and test doubles shared
// by the package tests.
package utils

import (
	"math"
	"sync"
)

// MockTransport implements the transport.Transport interface for testing by
// recording everything it is given.
type MockTransport struct {
	mu     sync.Mutex
	Sent   []any
	Closed bool
}

// Send stores the data for later inspection instead of transmitting.
func (m *MockTransport) Send(data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, data)
	return nil
}

// Close marks the transport closed.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// Last returns the most recently sent value, or nil.
func (m *MockTransport) Last() any {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sent) == 0 {
		return nil
	}
	return m.Sent[len(m.Sent)-1]
}

// Count returns the number of Send calls.
func (m *MockTransport) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

// GenerateSineWave returns size samples of a sine at frequency Hz, starting at
// phase (radians).
func GenerateSineWave(size int, sampleRate, frequency, amplitude, phase float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = float32(amplitude * math.Sin(2*math.Pi*frequency*t+phase))
	}
	return buffer
}

// GenerateSquareWave returns size samples alternating between +amplitude and
// -amplitude every half period. offset shifts the waveform by whole samples.
func GenerateSquareWave(size int, sampleRate, frequency, amplitude float64, offset int) []float32 {
	buffer := make([]float32, size)
	period := sampleRate / frequency
	for i := range buffer {
		pos := math.Mod(float64(i+offset), period)
		if pos < period/2 {
			buffer[i] = float32(amplitude)
		} else {
			buffer[i] = float32(-amplitude)
		}
	}
	return buffer
}

// GenerateConstant returns size samples all equal to value.
func GenerateConstant(size int, value float32) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		buffer[i] = value
	}
	return buffer
}

// GenerateComplexWave returns a 440 Hz fundamental plus two harmonics.
func GenerateComplexWave(size int, sampleRate float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2
		buffer[i] = float32(signal * 0.9)
	}
	return buffer
}

// Blocks slices equally long per-channel signals into consecutive
// non-interleaved blocks of blockSize frames. The final block may be shorter.
// The blocks alias the input slices.
func Blocks(channels [][]float32, blockSize int) [][][]float32 {
	if len(channels) == 0 || blockSize <= 0 {
		return nil
	}
	total := len(channels[0])
	var blocks [][][]float32
	for start := 0; start < total; start += blockSize {
		end := min(start+blockSize, total)
		block := make([][]float32, len(channels))
		for ch := range channels {
			block[ch] = channels[ch][start:end]
		}
		blocks = append(blocks, block)
	}
	return blocks
}

// FindPeakBin returns the index of the largest value in values[startBin:endBin+1].
func FindPeakBin(values []float64, startBin, endBin int) int {
	if len(values) == 0 {
		return 0
	}
	if startBin < 0 {
		startBin = 0
	}
	if endBin >= len(values) {
		endBin = len(values) - 1
	}

	peakBin := startBin
	peakValue := values[startBin]
	for bin := startBin + 1; bin <= endBin; bin++ {
		if values[bin] > peakValue {
			peakValue = values[bin]
			peakBin = bin
		}
	}
	return peakBin
}
