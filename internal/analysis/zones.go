// SPDX-License-Identifier: MIT
package analysis

import "math"

// LoudnessZone groups a short-term loudness reading into the ranges used for
// colour coding a meter display.
type LoudnessZone int

const (
	ZoneVeryQuiet LoudnessZone = iota // <= -30
	ZoneQuiet                         // (-30, -23]
	ZoneGood                          // (-23, -16]
	ZoneLoud                          // (-16, -14]
	ZoneTooLoud                       // > -14
)

// String returns the name of the zone.
func (z LoudnessZone) String() string {
	switch z {
	case ZoneVeryQuiet:
		return "very quiet"
	case ZoneQuiet:
		return "quiet"
	case ZoneGood:
		return "good"
	case ZoneLoud:
		return "loud"
	case ZoneTooLoud:
		return "too loud"
	default:
		return "unknown"
	}
}

// ClassifyLoudness returns the zone for a short-term reading. Non-finite
// readings are treated as no valid data and land in ZoneVeryQuiet.
func ClassifyLoudness(lufs float64) LoudnessZone {
	if math.IsNaN(lufs) || math.IsInf(lufs, 0) {
		return ZoneVeryQuiet
	}
	switch {
	case lufs > -14:
		return ZoneTooLoud
	case lufs > -16:
		return ZoneLoud
	case lufs > -23:
		return ZoneGood
	case lufs > -30:
		return ZoneQuiet
	default:
		return ZoneVeryQuiet
	}
}

// LoudnessAdvice returns a one-line mixing tip for a short-term reading.
func LoudnessAdvice(lufs float64) string {
	if math.IsNaN(lufs) || math.IsInf(lufs, 0) {
		return "No signal detected"
	}
	switch {
	case lufs <= -50:
		return "No signal detected"
	case lufs <= -30:
		return "Tip: Signal very quiet - check your gain staging"
	case lufs <= -23:
		return "Tip: Good for dialogue/quiet content"
	case lufs <= -16:
		return "Tip: Perfect for streaming platforms (Spotify: -14 LUFS)"
	case lufs <= -14:
		return "Tip: Approaching streaming loudness target"
	case lufs <= -11:
		return "Tip: Too loud for streaming - will be limited"
	default:
		return "Tip: Very loud! Risk of distortion and limiting"
	}
}
