// SPDX-License-Identifier: MIT
package meter

import (
	"math"
	"sync/atomic"
)

// atomicFloat is a float64 that can be stored and loaded without locking.
type atomicFloat struct {
	bits atomic.Uint64
}

func (f *atomicFloat) Load() float64 {
	return math.Float64frombits(f.bits.Load())
}

func (f *atomicFloat) Store(v float64) {
	f.bits.Store(math.Float64bits(v))
}

// Snapshot is the externally visible measurement tuple. The scalars are read
// independently and may come from different blocks; Spectrum is always one
// complete publication.
type Snapshot struct {
	Level      float64   `json:"level"`
	Momentary  float64   `json:"momentary"`
	ShortTerm  float64   `json:"shortTerm"`
	Integrated float64   `json:"integrated"`
	Spectrum   []float64 `json:"spectrum"`
}

// Stats counts pipeline events since construction or the last Reconfigure.
type Stats struct {
	Blocks            uint64 // ProcessBlock calls.
	FramesCompleted   uint64 // Frames captured for the transform.
	FramesDropped     uint64 // Frames discarded while another was pending.
	Transforms        uint64 // Frames transformed and folded into the spectrum.
	DeferredPublishes uint64 // Producer publications postponed because a reader held the lock.
}
