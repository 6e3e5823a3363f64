// SPDX-License-Identifier: MIT
/*
Package meter implements the real-time loudness and spectrum meter:
- Level: RMS of the reference channel per block
- Loudness: momentary (400 ms), short-term (3 s) and integrated windows
- Spectrum: FIFO framed, windowed FFT remapped to log-spaced display bins

Thread Safety:
- ProcessBlock is the single producer and runs on the audio callback thread;
  it never allocates and never waits on a lock
- Level and loudness readings are published through independent atomics
- The spectrum is published under a short mutex that the producer only
  TryLocks; if a reader holds it the publication moves to the next block
- Reconfigure must only be called while ProcessBlock is not running

In ProducerTransform mode (the default) the FFT runs on the producer thread
when a frame completes. In ConsumerTransform mode the FFT runs on whichever
reader goroutine next asks for the spectrum.
*/
package meter

import (
	"fmt"
	"sync"
	"sync/atomic"

	"tracktweak/internal/analysis"

	"github.com/google/uuid"
)

type Meter struct {
	id   string
	opts Options

	sampleRate atomicFloat

	// Producer state. Only ProcessBlock and Reconfigure touch these.
	level          analysis.LevelMeter
	loudness       *analysis.LoudnessEstimator
	fifo           *analysis.FrameFIFO
	publishPending bool

	// Transform pipeline. Owned by the producer in ProducerTransform mode,
	// guarded by transformMu in ConsumerTransform mode.
	transformMu sync.Mutex
	transform   *analysis.Transform
	post        *analysis.SpectrumPostprocessor

	// Published scalars.
	levelOut      atomicFloat
	momentaryOut  atomicFloat
	shortTermOut  atomicFloat
	integratedOut atomicFloat

	// Published spectrum.
	snapMu    sync.Mutex
	published []float64

	blocks     atomic.Uint64
	transforms atomic.Uint64
	deferred   atomic.Uint64
}

// Compile-time checks for interface implementations.
var _ analysis.BlockProcessor = (*Meter)(nil)
var _ analysis.SpectrumProvider = (*Meter)(nil)

// New allocates every buffer the meter needs for opts. Nothing is allocated
// afterwards except by Reconfigure and the copying readers.
func New(opts Options) (*Meter, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	fifo, err := analysis.NewFrameFIFO(opts.FrameSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFrameSize, err)
	}
	transform, err := analysis.NewTransform(opts.FrameSize, opts.Window)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFrameSize, err)
	}
	post, err := analysis.NewSpectrumPostprocessor(opts.FrameSize, opts.DisplayBins, opts.Smoothing)
	if err != nil {
		return nil, err
	}

	m := &Meter{
		id:        uuid.NewString(),
		opts:      opts,
		loudness:  analysis.NewLoudnessEstimator(opts.SampleRate),
		fifo:      fifo,
		transform: transform,
		post:      post,
		published: make([]float64, opts.DisplayBins),
	}
	m.sampleRate.Store(opts.SampleRate)
	m.publishFloors()
	return m, nil
}

// Process implements analysis.BlockProcessor.
func (m *Meter) Process(block [][]float32) {
	m.ProcessBlock(block)
}

// ProcessBlock consumes one non-interleaved block: level, then loudness, then
// spectral ingestion of channel 0. The block is only read during the call.
func (m *Meter) ProcessBlock(block [][]float32) {
	m.blocks.Add(1)

	if m.publishPending {
		m.tryPublish()
	}

	m.level.Process(block)
	m.levelOut.Store(m.level.Level())

	m.loudness.Process(block)
	m.momentaryOut.Store(m.loudness.Momentary())
	m.shortTermOut.Store(m.loudness.ShortTerm())
	m.integratedOut.Store(m.loudness.Integrated())

	if len(block) == 0 {
		return
	}
	samples := block[0]
	for len(samples) > 0 {
		n, captured := m.fifo.Push(samples)
		samples = samples[n:]
		if captured && m.opts.Mode == ProducerTransform {
			m.runTransform()
			m.tryPublish()
		}
	}
}

// runTransform consumes the captured frame and folds it into the display
// spectrum. The caller must own the transform pipeline.
func (m *Meter) runTransform() {
	magnitudes := m.transform.Process(m.fifo.Captured())
	m.fifo.Release()
	m.post.Process(magnitudes)
	m.transforms.Add(1)
}

// tryPublish copies the display spectrum into the published buffer unless a
// reader holds the lock, in which case it is retried on the next block.
func (m *Meter) tryPublish() {
	if !m.snapMu.TryLock() {
		if !m.publishPending {
			m.deferred.Add(1)
		}
		m.publishPending = true
		return
	}
	copy(m.published, m.post.Display())
	m.snapMu.Unlock()
	m.publishPending = false
}

// transformPending runs the lazy transform for ConsumerTransform mode.
func (m *Meter) transformPending() {
	if !m.fifo.Ready() {
		return
	}

	m.transformMu.Lock()
	defer m.transformMu.Unlock()

	// Another reader may have consumed the frame while we waited.
	if !m.fifo.Ready() {
		return
	}
	m.runTransform()

	m.snapMu.Lock()
	copy(m.published, m.post.Display())
	m.snapMu.Unlock()
}

// Reconfigure resizes the loudness windows for sampleRate and resets every
// window, frame, smoothing state and published value. An invalid rate is
// rejected and the previous configuration is kept. It must not run
// concurrently with ProcessBlock.
func (m *Meter) Reconfigure(sampleRate float64) error {
	if err := ValidateSampleRate(sampleRate); err != nil {
		return err
	}

	m.transformMu.Lock()
	defer m.transformMu.Unlock()

	m.opts.SampleRate = sampleRate
	m.sampleRate.Store(sampleRate)
	m.loudness = analysis.NewLoudnessEstimator(sampleRate)
	m.level.Reset()
	m.fifo.Reset()
	m.post.Reset()
	m.publishPending = false

	m.blocks.Store(0)
	m.transforms.Store(0)
	m.deferred.Store(0)

	m.publishFloors()
	return nil
}

// publishFloors publishes silence for every reading.
func (m *Meter) publishFloors() {
	m.levelOut.Store(0)
	m.momentaryOut.Store(analysis.LoudnessFloor)
	m.shortTermOut.Store(analysis.LoudnessFloor)
	m.integratedOut.Store(analysis.LoudnessFloor)

	m.snapMu.Lock()
	copy(m.published, m.post.Display())
	m.snapMu.Unlock()
}

// Level returns the RMS of channel 0 over the most recent block.
func (m *Meter) Level() float64 {
	return m.levelOut.Load()
}

// MomentaryLoudness returns the ~400 ms loudness.
func (m *Meter) MomentaryLoudness() float64 {
	return m.momentaryOut.Load()
}

// ShortTermLoudness returns the ~3 s loudness.
func (m *Meter) ShortTermLoudness() float64 {
	return m.shortTermOut.Load()
}

// IntegratedLoudness returns the integrated loudness, which is defined as the
// short-term loudness.
func (m *Meter) IntegratedLoudness() float64 {
	return m.integratedOut.Load()
}

// Spectrum returns a copy of the published display spectrum. In
// ConsumerTransform mode a pending frame is transformed first.
func (m *Meter) Spectrum() []float64 {
	dst := make([]float64, len(m.published))
	_ = m.SpectrumInto(dst)
	return dst
}

// SpectrumInto copies the published spectrum into dst, which must have
// exactly DisplayBins elements.
func (m *Meter) SpectrumInto(dst []float64) error {
	if len(dst) != len(m.published) {
		return fmt.Errorf("%w: got %d, want %d", ErrSpectrumLength, len(dst), len(m.published))
	}
	if m.opts.Mode == ConsumerTransform {
		m.transformPending()
	}

	m.snapMu.Lock()
	copy(dst, m.published)
	m.snapMu.Unlock()
	return nil
}

// Snapshot returns every published reading.
func (m *Meter) Snapshot() Snapshot {
	var s Snapshot
	m.SnapshotInto(&s)
	return s
}

// SnapshotInto fills s, reusing s.Spectrum when it already has the right
// length.
func (m *Meter) SnapshotInto(s *Snapshot) {
	if len(s.Spectrum) != len(m.published) {
		s.Spectrum = make([]float64, len(m.published))
	}
	_ = m.SpectrumInto(s.Spectrum)
	s.Level = m.Level()
	s.Momentary = m.MomentaryLoudness()
	s.ShortTerm = m.ShortTermLoudness()
	s.Integrated = m.IntegratedLoudness()
}

// Stats returns the pipeline counters.
func (m *Meter) Stats() Stats {
	return Stats{
		Blocks:            m.blocks.Load(),
		FramesCompleted:   m.fifo.Completed(),
		FramesDropped:     m.fifo.Dropped(),
		Transforms:        m.transforms.Load(),
		DeferredPublishes: m.deferred.Load(),
	}
}

// ID returns the identifier assigned to this meter instance.
func (m *Meter) ID() string {
	return m.id
}

// SampleRate returns the configured sample rate.
func (m *Meter) SampleRate() float64 {
	return m.sampleRate.Load()
}

// FrameSize returns the analysis frame size.
func (m *Meter) FrameSize() int {
	return m.opts.FrameSize
}

// DisplayBins returns the length of the published spectrum.
func (m *Meter) DisplayBins() int {
	return len(m.published)
}

// Mode returns the transform mode.
func (m *Meter) Mode() TransformMode {
	return m.opts.Mode
}

// FrequencyForDisplayBin returns the frequency (Hz) sampled by display bin i,
// or 0 when i is out of range.
func (m *Meter) FrequencyForDisplayBin(i int) float64 {
	if i < 0 || i >= len(m.published) {
		return 0
	}
	return m.transform.FrequencyForBin(m.post.SourceBin(i), m.SampleRate())
}
