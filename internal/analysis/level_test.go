// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"testing"

	"tracktweak/pkg/utils"
)

func TestBlockRMS(t *testing.T) {
	tests := []struct {
		name    string
		samples []float32
		want    float64
		ok      bool
	}{
		{"Empty", nil, 0, false},
		{"Silence", make([]float32, 64), 0, true},
		{"Constant", utils.GenerateConstant(64, 0.5), 0.5, true},
		{"Full scale square", utils.GenerateSquareWave(480, 48000, 1000, 1, 0), 1, true},
		{"Alternating", []float32{3, -4, 3, -4}, math.Sqrt(12.5), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := BlockRMS(tt.samples)
			if ok != tt.ok || math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("BlockRMS() = %v, %v; want %v, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestLevelMeterUsesReferenceChannel(t *testing.T) {
	var lm LevelMeter
	lm.Process([][]float32{
		utils.GenerateConstant(128, 0.25),
		utils.GenerateConstant(128, 1.0),
	})
	if lm.Level() != 0.25 {
		t.Errorf("Level() = %v, want 0.25", lm.Level())
	}
}

func TestLevelMeterSineIsPhaseIndependent(t *testing.T) {
	want := 1 / math.Sqrt2
	for _, phase := range []float64{0, 0.5, math.Pi / 2, 3} {
		var lm LevelMeter
		// 480 samples hold exactly ten periods of 1 kHz at 48 kHz.
		lm.Process([][]float32{utils.GenerateSineWave(480, 48000, 1000, 1, phase)})
		if math.Abs(lm.Level()-want) > 1e-6 {
			t.Errorf("phase %.2f: Level() = %v, want %v", phase, lm.Level(), want)
		}
	}
}

func TestLevelMeterEmptyBlockKeepsValue(t *testing.T) {
	var lm LevelMeter
	lm.Process([][]float32{utils.GenerateConstant(32, 0.5)})

	lm.Process(nil)
	lm.Process([][]float32{{}})
	if lm.Level() != 0.5 {
		t.Errorf("Level() = %v after empty blocks, want 0.5", lm.Level())
	}

	lm.Reset()
	if lm.Level() != 0 {
		t.Errorf("Level() = %v after Reset, want 0", lm.Level())
	}
}
