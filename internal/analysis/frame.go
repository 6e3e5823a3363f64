// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"sync/atomic"

	"tracktweak/pkg/bitint"
)

// FrameFIFO accumulates reference-channel samples into fixed-size analysis
// frames.
//
// Storage is split into two slots. The accumulation slot is written only by
// the producer. When it fills, its contents are copied into the captured slot
// and the ready flag is raised; from then until Release the captured slot
// belongs to the transform and the producer never touches it. A frame that
// completes while the flag is still raised is discarded, so at most one frame
// is ever pending.
type FrameFIFO struct {
	acc      []float64
	captured []float64
	index    int // Write position in acc, always in [0, len(acc)).

	ready     atomic.Bool
	completed atomic.Uint64
	dropped   atomic.Uint64
}

// NewFrameFIFO allocates both slots. size must be a power of two.
func NewFrameFIFO(size int) (*FrameFIFO, error) {
	if !bitint.IsPowerOfTwo(size) {
		return nil, fmt.Errorf("frame size must be a power of 2, got %d", size)
	}
	return &FrameFIFO{
		acc:      make([]float64, size),
		captured: make([]float64, size),
	}, nil
}

// Size returns the frame length in samples.
func (f *FrameFIFO) Size() int {
	return len(f.acc)
}

// Push appends samples until either they run out or the current frame
// completes. It returns how many samples were consumed and whether a frame
// was captured. Callers loop until every sample is consumed so that each
// capture can be handled before the next frame fills.
func (f *FrameFIFO) Push(samples []float32) (consumed int, captured bool) {
	n := min(len(f.acc)-f.index, len(samples))
	dst := f.acc[f.index : f.index+n]
	for i, s := range samples[:n] {
		dst[i] = float64(s)
	}
	f.index += n

	if f.index < len(f.acc) {
		return n, false
	}

	// Frame complete; ingestion restarts into the same storage either way.
	f.index = 0
	if f.ready.Load() {
		f.dropped.Add(1)
		return n, false
	}
	copy(f.captured, f.acc)
	f.completed.Add(1)
	f.ready.Store(true)
	return n, true
}

// Ready reports whether a captured frame is waiting for the transform.
func (f *FrameFIFO) Ready() bool {
	return f.ready.Load()
}

// Captured returns the captured slot. Its contents are only meaningful while
// Ready reports true, and only until Release is called.
func (f *FrameFIFO) Captured() []float64 {
	return f.captured
}

// Release hands the captured slot back to the producer.
func (f *FrameFIFO) Release() {
	f.ready.Store(false)
}

// Completed returns the number of frames captured since the last Reset.
func (f *FrameFIFO) Completed() uint64 {
	return f.completed.Load()
}

// Dropped returns the number of frames discarded because a previous frame
// was still pending.
func (f *FrameFIFO) Dropped() uint64 {
	return f.dropped.Load()
}

// Reset rewinds ingestion, clears both slots and the ready flag. It must not
// run concurrently with Push or with a transform of the captured slot.
func (f *FrameFIFO) Reset() {
	clear(f.acc)
	clear(f.captured)
	f.index = 0
	f.ready.Store(false)
	f.completed.Store(0)
	f.dropped.Store(0)
}
