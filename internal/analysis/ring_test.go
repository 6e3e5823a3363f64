// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"testing"
)

func TestRingWindowCursorWraps(t *testing.T) {
	w := NewRingWindow(4)

	w.Write([]float32{1, 2, 3})
	if w.Cursor() != 3 || w.Primed() {
		t.Fatalf("after 3 writes: cursor=%d primed=%v, want 3/false", w.Cursor(), w.Primed())
	}

	w.Write([]float32{4, 5})
	if w.Cursor() != 1 || !w.Primed() {
		t.Fatalf("after 5 writes: cursor=%d primed=%v, want 1/true", w.Cursor(), w.Primed())
	}
}

func TestRingWindowOversizedWrite(t *testing.T) {
	w := NewRingWindow(4)
	w.Write([]float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})

	if w.Cursor() != 2 {
		t.Errorf("cursor = %d, want 2", w.Cursor())
	}
	// Only 7, 8, 9, 10 remain.
	want := (49.0 + 64 + 81 + 100) / 4
	if got := w.MeanSquare(); got != want {
		t.Errorf("MeanSquare() = %v, want %v", got, want)
	}
}

func TestRingWindowMeanSquareCountsFullCapacity(t *testing.T) {
	w := NewRingWindow(4)
	w.Write([]float32{1, 1})

	// Unwritten slots are silence.
	if got := w.MeanSquare(); got != 0.5 {
		t.Errorf("MeanSquare() = %v, want 0.5", got)
	}
}

func TestRingWindowOrderIndependence(t *testing.T) {
	samples := []float32{0.1, -0.7, 0.25, 0.9, -0.3, 0.05, -0.55, 0.4}
	reversed := make([]float32, len(samples))
	for i, s := range samples {
		reversed[len(samples)-1-i] = s
	}
	rotated := append(append([]float32{}, samples[3:]...), samples[:3]...)

	forward := NewRingWindow(len(samples))
	forward.Write(samples)
	want := forward.MeanSquare()

	for name, order := range map[string][]float32{"reversed": reversed, "rotated": rotated} {
		t.Run(name, func(t *testing.T) {
			w := NewRingWindow(len(order))
			w.Write(order)
			if got := w.MeanSquare(); math.Abs(got-want) > 1e-12 {
				t.Errorf("MeanSquare() = %v, want %v", got, want)
			}
		})
	}
}

func TestRingWindowCircularity(t *testing.T) {
	const capacity = 64
	for _, k := range []int{1, 10, capacity - 1} {
		w := NewRingWindow(capacity)
		w.Write(constantSamples(capacity, 1.0))
		w.Write(constantSamples(k, 0.5))

		// The oldest k samples of 1.0 have been replaced.
		want := (float64(capacity-k)*1.0 + float64(k)*0.25) / capacity
		if got := w.MeanSquare(); math.Abs(got-want) > 1e-12 {
			t.Errorf("k=%d: MeanSquare() = %v, want %v", k, got, want)
		}
	}
}

func TestRingWindowReset(t *testing.T) {
	w := NewRingWindow(3)
	w.Write([]float32{1, 1, 1, 1})
	w.Reset()

	if w.Cursor() != 0 || w.Primed() || w.MeanSquare() != 0 {
		t.Errorf("after Reset: cursor=%d primed=%v meanSquare=%v", w.Cursor(), w.Primed(), w.MeanSquare())
	}
}

func TestRingWindowMinimumCapacity(t *testing.T) {
	w := NewRingWindow(0)
	if w.Capacity() != 1 {
		t.Fatalf("Capacity() = %d, want 1", w.Capacity())
	}
	w.Write([]float32{0.5, 0.25})
	if w.MeanSquare() != 0.0625 {
		t.Errorf("MeanSquare() = %v, want 0.0625", w.MeanSquare())
	}
}

func TestRingWindowWriteZeroAllocs(t *testing.T) {
	w := NewRingWindow(19200)
	block := constantSamples(512, 0.1)

	allocs := testing.AllocsPerRun(100, func() {
		w.Write(block)
		_ = w.MeanSquare()
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in ring window hot path, got %.1f", allocs)
	}
}

func constantSamples(n int, v float32) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = v
	}
	return s
}
