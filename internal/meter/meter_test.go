// SPDX-License-Identifier: MIT
package meter

import (
	"errors"
	"math"
	"sync"
	"testing"

	"tracktweak/internal/analysis"
	"tracktweak/pkg/utils"
)

const (
	testSampleRate = 48000
	testBlockSize  = 512
)

func newTestMeter(t *testing.T, mutate func(*Options)) *Meter {
	t.Helper()
	opts := DefaultOptions()
	if mutate != nil {
		mutate(&opts)
	}
	m, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

// feedStereo sends signal on both channels in testBlockSize blocks.
func feedStereo(m *Meter, signal []float32) {
	for _, block := range utils.Blocks([][]float32{signal, signal}, testBlockSize) {
		m.ProcessBlock(block)
	}
}

func assertAllEqual(t *testing.T, values []float64, want float64) {
	t.Helper()
	for i, v := range values {
		if v != want {
			t.Fatalf("value[%d] = %v, want %v", i, v, want)
		}
	}
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr error
	}{
		{"Zero sample rate", func(o *Options) { o.SampleRate = 0 }, ErrInvalidSampleRate},
		{"Negative sample rate", func(o *Options) { o.SampleRate = -44100 }, ErrInvalidSampleRate},
		{"NaN sample rate", func(o *Options) { o.SampleRate = math.NaN() }, ErrInvalidSampleRate},
		{"Too high sample rate", func(o *Options) { o.SampleRate = 384000 }, ErrInvalidSampleRate},
		{"Frame not power of 2", func(o *Options) { o.FrameSize = 1000 }, ErrInvalidFrameSize},
		{"Frame too small", func(o *Options) { o.FrameSize = 32 }, ErrInvalidFrameSize},
		{"Frame too large", func(o *Options) { o.FrameSize = 32768 }, ErrInvalidFrameSize},
		{"One display bin", func(o *Options) { o.DisplayBins = 1 }, ErrInvalidDisplayBins},
		{"Zero smoothing", func(o *Options) { o.Smoothing = 0 }, ErrInvalidSmoothing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mutate(&opts)
			if _, err := New(opts); !errors.Is(err, tt.wantErr) {
				t.Errorf("New() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseTransformMode(t *testing.T) {
	tests := []struct {
		name    string
		want    TransformMode
		wantErr bool
	}{
		{"", ProducerTransform, false},
		{"Producer", ProducerTransform, false},
		{"consumer", ConsumerTransform, false},
		{"lazy", ConsumerTransform, false},
		{"gpu", ProducerTransform, true},
	}
	for _, tt := range tests {
		got, err := ParseTransformMode(tt.name)
		if got != tt.want || (err != nil) != tt.wantErr {
			t.Errorf("ParseTransformMode(%q) = %v, %v", tt.name, got, err)
		}
	}
}

func TestInitialReadingsAreFloors(t *testing.T) {
	m := newTestMeter(t, nil)

	if m.Level() != 0 || m.MomentaryLoudness() != analysis.LoudnessFloor ||
		m.ShortTermLoudness() != analysis.LoudnessFloor || m.IntegratedLoudness() != analysis.LoudnessFloor {
		t.Errorf("initial readings: level=%v M=%v S=%v I=%v", m.Level(), m.MomentaryLoudness(),
			m.ShortTermLoudness(), m.IntegratedLoudness())
	}
	spectrum := m.Spectrum()
	if len(spectrum) != m.DisplayBins() {
		t.Fatalf("len(Spectrum()) = %d, want %d", len(spectrum), m.DisplayBins())
	}
	assertAllEqual(t, spectrum, analysis.SpectrumFloor)
	if m.ID() == "" {
		t.Errorf("ID() should not be empty")
	}
}

func TestSilenceReadsFloors(t *testing.T) {
	m := newTestMeter(t, nil)
	feedStereo(m, make([]float32, 4*testSampleRate))

	if m.Level() != 0 || m.MomentaryLoudness() != analysis.LoudnessFloor ||
		m.ShortTermLoudness() != analysis.LoudnessFloor || m.IntegratedLoudness() != analysis.LoudnessFloor {
		t.Errorf("silence: level=%v M=%v S=%v I=%v", m.Level(), m.MomentaryLoudness(),
			m.ShortTermLoudness(), m.IntegratedLoudness())
	}
	assertAllEqual(t, m.Spectrum(), analysis.SpectrumFloor)
}

func TestMomentaryScenario(t *testing.T) {
	m := newTestMeter(t, nil)
	feedStereo(m, utils.GenerateConstant(19200, 0.1))

	want := 10*math.Log10(0.01) + analysis.LoudnessOffset
	if math.Abs(m.MomentaryLoudness()-want) > 1e-4 {
		t.Errorf("MomentaryLoudness() = %v, want %v", m.MomentaryLoudness(), want)
	}
	if m.ShortTermLoudness() != analysis.LoudnessFloor || m.IntegratedLoudness() != analysis.LoudnessFloor {
		t.Errorf("short-term/integrated = %v/%v, want floor", m.ShortTermLoudness(), m.IntegratedLoudness())
	}
	if math.Abs(m.Level()-0.1) > 1e-6 {
		t.Errorf("Level() = %v, want 0.1", m.Level())
	}
}

func TestFullScaleSquare(t *testing.T) {
	m := newTestMeter(t, nil)
	feedStereo(m, utils.GenerateSquareWave(3*testSampleRate, testSampleRate, 1000, 1, 0))

	if m.Level() != 1 {
		t.Errorf("Level() = %v, want 1", m.Level())
	}
	for name, got := range map[string]float64{
		"momentary":  m.MomentaryLoudness(),
		"short-term": m.ShortTermLoudness(),
		"integrated": m.IntegratedLoudness(),
	} {
		if got != analysis.LoudnessOffset {
			t.Errorf("%s = %v, want %v", name, got, analysis.LoudnessOffset)
		}
	}
}

func TestSpectrumFrameScenario(t *testing.T) {
	for _, mode := range []TransformMode{ProducerTransform, ConsumerTransform} {
		t.Run(mode.String(), func(t *testing.T) {
			m := newTestMeter(t, func(o *Options) { o.Mode = mode })
			feedStereo(m, utils.GenerateSineWave(m.FrameSize(), testSampleRate, 1500, 1, 0))

			first := m.Spectrum()
			if peak := utils.FindPeakBin(first, 0, len(first)-1); peak != 2 {
				t.Errorf("peak display bin = %d, want 2", peak)
			}
			if first[2] <= analysis.SpectrumFloor {
				t.Errorf("display bin 2 = %v, want above floor", first[2])
			}
			if got := m.FrequencyForDisplayBin(2); got != 1500 {
				t.Errorf("FrequencyForDisplayBin(2) = %v, want 1500", got)
			}

			// No new frame: the reading must not be smoothed again.
			second := m.Spectrum()
			for i := range first {
				if first[i] != second[i] {
					t.Fatalf("bin %d changed between reads: %v -> %v", i, first[i], second[i])
				}
			}
			if s := m.Stats(); s.Transforms != 1 || s.FramesCompleted != 1 {
				t.Errorf("stats = %+v, want one transform", s)
			}
		})
	}
}

func TestSpectrumDoesNotChangeBeforeFrameCompletes(t *testing.T) {
	m := newTestMeter(t, nil)
	feedStereo(m, utils.GenerateSineWave(m.FrameSize()-1, testSampleRate, 1500, 1, 0))
	assertAllEqual(t, m.Spectrum(), analysis.SpectrumFloor)
}

func TestConsumerModeDropsWhilePending(t *testing.T) {
	m := newTestMeter(t, func(o *Options) { o.Mode = ConsumerTransform })
	feedStereo(m, utils.GenerateSineWave(3*m.FrameSize(), testSampleRate, 1500, 1, 0))

	s := m.Stats()
	if s.FramesCompleted != 1 || s.FramesDropped != 2 || s.Transforms != 0 {
		t.Fatalf("stats before read = %+v, want 1 completed, 2 dropped, 0 transforms", s)
	}

	m.Spectrum()
	if s := m.Stats(); s.Transforms != 1 {
		t.Errorf("Transforms = %d after read, want 1", s.Transforms)
	}
}

func TestProducerDefersPublishWhileReaderHoldsLock(t *testing.T) {
	m := newTestMeter(t, nil)
	sine := utils.GenerateSineWave(m.FrameSize(), testSampleRate, 1500, 1, 0)

	m.snapMu.Lock()
	feedStereo(m, sine)
	held := append([]float64(nil), m.published...)
	m.snapMu.Unlock()

	assertAllEqual(t, held, analysis.SpectrumFloor)
	if s := m.Stats(); s.DeferredPublishes != 1 {
		t.Fatalf("DeferredPublishes = %d, want 1", s.DeferredPublishes)
	}

	// The next block retries the publication.
	m.ProcessBlock([][]float32{sine[:testBlockSize]})
	if spectrum := m.Spectrum(); spectrum[2] <= analysis.SpectrumFloor {
		t.Errorf("deferred spectrum was not published: bin 2 = %v", spectrum[2])
	}
}

func TestSpectrumIntoLength(t *testing.T) {
	m := newTestMeter(t, nil)
	if err := m.SpectrumInto(make([]float64, 3)); !errors.Is(err, ErrSpectrumLength) {
		t.Errorf("SpectrumInto() error = %v, want ErrSpectrumLength", err)
	}
	if err := m.SpectrumInto(make([]float64, m.DisplayBins())); err != nil {
		t.Errorf("SpectrumInto() error = %v", err)
	}
}

func TestSnapshotInto(t *testing.T) {
	m := newTestMeter(t, nil)
	feedStereo(m, utils.GenerateConstant(19200, 0.1))

	var s Snapshot
	m.SnapshotInto(&s)
	if len(s.Spectrum) != m.DisplayBins() {
		t.Fatalf("len(Spectrum) = %d, want %d", len(s.Spectrum), m.DisplayBins())
	}
	if s.Momentary != m.MomentaryLoudness() || s.Level != m.Level() || s.Integrated != s.ShortTerm {
		t.Errorf("snapshot %+v disagrees with readers", s)
	}

	buf := s.Spectrum
	m.SnapshotInto(&s)
	if &buf[0] != &s.Spectrum[0] {
		t.Errorf("SnapshotInto reallocated a correctly sized spectrum")
	}
}

func TestEmptyAndWideBlocks(t *testing.T) {
	m := newTestMeter(t, nil)
	m.ProcessBlock(nil)
	m.ProcessBlock([][]float32{})
	m.ProcessBlock([][]float32{{}, {}})
	if m.Level() != 0 || m.MomentaryLoudness() != analysis.LoudnessFloor {
		t.Errorf("empty blocks changed readings")
	}

	wide := newTestMeter(t, nil)
	stereo := newTestMeter(t, nil)
	left := utils.GenerateConstant(19200, 0.3)
	right := utils.GenerateConstant(19200, 0.2)
	extra := utils.GenerateConstant(19200, 0.9)
	for _, b := range utils.Blocks([][]float32{left, right, extra}, testBlockSize) {
		wide.ProcessBlock(b)
	}
	for _, b := range utils.Blocks([][]float32{left, right}, testBlockSize) {
		stereo.ProcessBlock(b)
	}
	if wide.MomentaryLoudness() != stereo.MomentaryLoudness() {
		t.Errorf("third channel changed loudness: %v vs %v", wide.MomentaryLoudness(), stereo.MomentaryLoudness())
	}
}

func TestNonFiniteInputPropagates(t *testing.T) {
	m := newTestMeter(t, nil)
	feedStereo(m, utils.GenerateConstant(19200, 0.1))

	inf := float32(math.Inf(1))
	m.ProcessBlock([][]float32{{inf}, {0}})
	if !math.IsInf(m.Level(), 1) {
		t.Errorf("Level() = %v, want +Inf", m.Level())
	}
	if !math.IsInf(m.MomentaryLoudness(), 1) {
		t.Errorf("MomentaryLoudness() = %v, want +Inf", m.MomentaryLoudness())
	}
}

func TestReconfigure(t *testing.T) {
	m := newTestMeter(t, nil)
	feedStereo(m, utils.GenerateSineWave(testSampleRate, testSampleRate, 1500, 1, 0))

	if err := m.Reconfigure(0); !errors.Is(err, ErrInvalidSampleRate) {
		t.Fatalf("Reconfigure(0) error = %v, want ErrInvalidSampleRate", err)
	}
	if m.SampleRate() != testSampleRate || m.MomentaryLoudness() == analysis.LoudnessFloor {
		t.Fatalf("rejected reconfiguration changed state")
	}

	if err := m.Reconfigure(44100); err != nil {
		t.Fatalf("Reconfigure(44100): %v", err)
	}
	if m.SampleRate() != 44100 || m.loudness.MomentaryCapacity() != 17640 {
		t.Errorf("sample rate %v, momentary capacity %d", m.SampleRate(), m.loudness.MomentaryCapacity())
	}
	if m.Level() != 0 || m.MomentaryLoudness() != analysis.LoudnessFloor || m.ShortTermLoudness() != analysis.LoudnessFloor {
		t.Errorf("readings not reset")
	}
	assertAllEqual(t, m.Spectrum(), analysis.SpectrumFloor)
	if s := m.Stats(); s != (Stats{}) {
		t.Errorf("stats not reset: %+v", s)
	}
}

func TestConcurrentReaders(t *testing.T) {
	for _, mode := range []TransformMode{ProducerTransform, ConsumerTransform} {
		t.Run(mode.String(), func(t *testing.T) {
			m := newTestMeter(t, func(o *Options) { o.Mode = mode })
			signal := utils.GenerateComplexWave(testSampleRate, testSampleRate)

			var wg sync.WaitGroup
			done := make(chan struct{})
			for range 3 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					var s Snapshot
					for {
						select {
						case <-done:
							return
						default:
						}
						m.SnapshotInto(&s)
						for _, v := range s.Spectrum {
							if v < analysis.SpectrumFloor || v > analysis.SpectrumCeiling {
								t.Errorf("spectrum value %v out of range", v)
								return
							}
						}
					}
				}()
			}

			feedStereo(m, signal)
			close(done)
			wg.Wait()

			if m.Stats().Blocks == 0 {
				t.Errorf("no blocks processed")
			}
		})
	}
}

func TestProcessBlockZeroAllocs(t *testing.T) {
	m := newTestMeter(t, nil)
	left := utils.GenerateComplexWave(testBlockSize, testSampleRate)
	right := utils.GenerateSineWave(testBlockSize, testSampleRate, 440, 0.5, 0)
	block := [][]float32{left, right}

	// Every fourth block completes a frame and runs the transform.
	allocs := testing.AllocsPerRun(64, func() {
		m.ProcessBlock(block)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in ProcessBlock, got %.1f", allocs)
	}
}

func BenchmarkProcessBlock(b *testing.B) {
	m, err := New(DefaultOptions())
	if err != nil {
		b.Fatal(err)
	}
	block := [][]float32{
		utils.GenerateComplexWave(testBlockSize, testSampleRate),
		utils.GenerateComplexWave(testBlockSize, testSampleRate),
	}

	b.ReportAllocs()
	for b.Loop() {
		m.ProcessBlock(block)
	}
}

func BenchmarkSnapshotInto(b *testing.B) {
	m, err := New(DefaultOptions())
	if err != nil {
		b.Fatal(err)
	}
	var s Snapshot

	b.ReportAllocs()
	for b.Loop() {
		m.SnapshotInto(&s)
	}
}
