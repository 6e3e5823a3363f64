// SPDX-License-Identifier: MIT
package analysis

import "gonum.org/v1/gonum/floats"

// RingWindow is a fixed-capacity circular store holding the most recent
// samples of one channel. The store starts zeroed and becomes primed once
// capacity samples have been written; from then on it always reflects exactly
// the last capacity samples.
//
// A RingWindow is owned by the real-time producer and is not safe for
// concurrent use.
type RingWindow struct {
	buf    []float64
	cursor int // Next write position, always in [0, len(buf)).
	primed bool
}

// NewRingWindow allocates a window of the given capacity. Capacities below one
// are raised to one so the cursor arithmetic stays defined.
func NewRingWindow(capacity int) *RingWindow {
	if capacity < 1 {
		capacity = 1
	}
	return &RingWindow{buf: make([]float64, capacity)}
}

// Capacity returns the number of samples the window holds.
func (w *RingWindow) Capacity() int {
	return len(w.buf)
}

// Cursor returns the position the next sample will be written to.
func (w *RingWindow) Cursor() int {
	return w.cursor
}

// Write stores samples at the cursor, overwriting the oldest data and
// advancing the cursor modulo capacity. Writing more than capacity samples
// leaves only the trailing capacity samples in the window.
func (w *RingWindow) Write(samples []float32) {
	capacity := len(w.buf)
	for len(samples) > 0 {
		n := min(capacity-w.cursor, len(samples))
		dst := w.buf[w.cursor : w.cursor+n]
		for i, s := range samples[:n] {
			dst[i] = float64(s)
		}
		samples = samples[n:]
		w.cursor += n
		if w.cursor == capacity {
			w.cursor = 0
			w.primed = true
		}
	}
}

// Primed reports whether at least capacity samples have been written since
// construction or the last Reset.
func (w *RingWindow) Primed() bool {
	return w.primed
}

// MeanSquare returns the mean of the squared samples over the full capacity.
// It is recomputed from the store on every call, O(capacity).
func (w *RingWindow) MeanSquare() float64 {
	return floats.Dot(w.buf, w.buf) / float64(len(w.buf))
}

// Reset zeroes the store and rewinds the cursor.
func (w *RingWindow) Reset() {
	clear(w.buf)
	w.cursor = 0
	w.primed = false
}
