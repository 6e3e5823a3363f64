package transport

import (
	"math"
	"time"

	"tracktweak/internal/analysis"
	"tracktweak/internal/meter"
)

// Transport defines a generic interface for sending processed data or events.
// Implementations should be thread-safe.
type Transport interface {
	Send(data any) error
	Close() error
}

// SnapshotSource is anything that can fill a meter snapshot; *meter.Meter
// is the production implementation.
type SnapshotSource interface {
	SnapshotInto(s *meter.Snapshot)
}

// Frame is the JSON message pushed to display clients. Non-finite readings
// are sent as null and non-finite spectrum values as the spectrum floor, so
// clients never see NaN or Inf.
type Frame struct {
	Type       string    `json:"type"`
	MeterID    string    `json:"meterId"`
	Sequence   uint64    `json:"seq"`
	Timestamp  int64     `json:"ts"` // Unix milliseconds.
	Level      *float64  `json:"level"`
	Momentary  *float64  `json:"momentary"`
	ShortTerm  *float64  `json:"shortTerm"`
	Integrated *float64  `json:"integrated"`
	Zone       string    `json:"zone"`
	Advice     string    `json:"advice"`
	Spectrum   []float64 `json:"spectrum"`
}

// FrameType is the Type of every meter frame.
const FrameType = "meter"

// NewFrame converts a snapshot into a display frame.
func NewFrame(meterID string, seq uint64, at time.Time, s *meter.Snapshot) *Frame {
	f := &Frame{
		Type:       FrameType,
		MeterID:    meterID,
		Sequence:   seq,
		Timestamp:  at.UnixMilli(),
		Level:      finite(s.Level),
		Momentary:  finite(s.Momentary),
		ShortTerm:  finite(s.ShortTerm),
		Integrated: finite(s.Integrated),
		Zone:       analysis.ClassifyLoudness(s.ShortTerm).String(),
		Advice:     analysis.LoudnessAdvice(s.ShortTerm),
		Spectrum:   make([]float64, len(s.Spectrum)),
	}
	for i, v := range s.Spectrum {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = analysis.SpectrumFloor
		}
		f.Spectrum[i] = v
	}
	return f
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
