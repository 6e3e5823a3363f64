package audio

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"sync/atomic"

	"tracktweak/internal/log"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// recorderQueueDepth is the number of blocks that may wait for the encoder.
const recorderQueueDepth = 32

var ErrRecorderClosed = errors.New("recorder closed")

// Recorder writes non-interleaved float blocks to a PCM WAV file. Write is
// safe to call from the audio callback: it converts into a pooled buffer and
// hands it to an encoder goroutine, dropping the block when the pool is
// exhausted instead of waiting.
type Recorder struct {
	file     *os.File
	encoder  *wav.Encoder
	channels int
	scale    float64
	maxSize  int // Samples per block buffer (frames * channels).

	mu     sync.RWMutex
	closed bool
	free   chan *audio.IntBuffer
	filled chan *audio.IntBuffer
	done   chan struct{}

	maxFrames int64 // 0 for unlimited.
	frames    atomic.Int64
	dropped   atomic.Uint64
	err       error // First encoder error, read after done is closed.
}

// NewRecorder creates filename and starts the encoder goroutine. maxFrames
// limits the recording length in frames; 0 records until Close.
func NewRecorder(filename string, sampleRate, channels, bitDepth, framesPerBuffer int, maxFrames int64) (*Recorder, error) {
	scale, err := fullScale(bitDepth)
	if err != nil {
		return nil, err
	}
	if channels < 1 {
		return nil, fmt.Errorf("invalid channel count: %d", channels)
	}

	file, err := os.Create(filename)
	if err != nil {
		return nil, err
	}

	r := &Recorder{
		file:      file,
		encoder:   wav.NewEncoder(file, sampleRate, bitDepth, channels, 1),
		channels:  channels,
		scale:     scale,
		maxSize:   framesPerBuffer * channels,
		free:      make(chan *audio.IntBuffer, recorderQueueDepth),
		filled:    make(chan *audio.IntBuffer, recorderQueueDepth),
		done:      make(chan struct{}),
		maxFrames: maxFrames,
	}

	format := &audio.Format{NumChannels: channels, SampleRate: sampleRate}
	for range recorderQueueDepth {
		r.free <- &audio.IntBuffer{
			Format:         format,
			Data:           make([]int, r.maxSize),
			SourceBitDepth: bitDepth,
		}
	}

	go r.run()
	return r, nil
}

// fullScale returns the integer value of a full-scale sample at bitDepth.
func fullScale(bitDepth int) (float64, error) {
	switch bitDepth {
	case 16:
		return math.MaxInt16, nil
	case 24:
		return 1<<23 - 1, nil
	case 32:
		return math.MaxInt32, nil
	default:
		return 0, fmt.Errorf("unsupported bit depth: %d", bitDepth)
	}
}

// Write queues one block. Channels beyond the recorder's channel count are
// ignored and missing channels are written as silence. It reports false when
// the block was dropped.
func (r *Recorder) Write(block [][]float32) bool {
	if !r.mu.TryRLock() {
		r.dropped.Add(1)
		return false
	}
	defer r.mu.RUnlock()
	if r.closed || len(block) == 0 {
		return false
	}

	frames := min(len(block[0]), r.maxSize/r.channels)
	if r.maxFrames > 0 {
		frames = int(min(int64(frames), r.maxFrames-r.frames.Load()))
		if frames <= 0 {
			return false
		}
	}

	var buf *audio.IntBuffer
	select {
	case buf = <-r.free:
	default:
		r.dropped.Add(1)
		return false
	}

	buf.Data = buf.Data[:frames*r.channels]
	for ch := range r.channels {
		if ch >= len(block) {
			for i := range frames {
				buf.Data[i*r.channels+ch] = 0
			}
			continue
		}
		src := block[ch]
		for i := range frames {
			var v float64
			if i < len(src) {
				v = float64(src[i])
			}
			buf.Data[i*r.channels+ch] = r.quantize(v)
		}
	}

	r.frames.Add(int64(frames))
	r.filled <- buf // Never blocks: at most recorderQueueDepth buffers exist.
	return true
}

// quantize converts a float sample to the file's integer range, clipping at
// full scale. NaN is written as silence.
func (r *Recorder) quantize(v float64) int {
	switch {
	case math.IsNaN(v):
		return 0
	case v > 1:
		v = 1
	case v < -1:
		v = -1
	}
	return int(math.Round(v * r.scale))
}

func (r *Recorder) run() {
	defer close(r.done)
	for buf := range r.filled {
		if r.err == nil {
			if err := r.encoder.Write(buf); err != nil {
				r.err = err
				log.Errorf("Error writing to WAV file: %v", err)
			}
		}
		buf.Data = buf.Data[:cap(buf.Data)]
		r.free <- buf
	}
}

// Frames returns the number of frames queued so far.
func (r *Recorder) Frames() int64 {
	return r.frames.Load()
}

// Dropped returns the number of blocks that could not be queued.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Filename returns the path of the output file.
func (r *Recorder) Filename() string {
	return r.file.Name()
}

// Close drains the queue, finalizes the WAV header and closes the file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRecorderClosed
	}
	r.closed = true
	close(r.filled)
	r.mu.Unlock()

	<-r.done

	return errors.Join(r.err, r.encoder.Close(), r.file.Close())
}

// StartRecording starts writing every input block to filename.
func (e *Engine) StartRecording(filename string) error {
	if e.recorder.Load() != nil {
		return fmt.Errorf("already recording")
	}

	var maxFrames int64
	if e.config.Recording.MaxDuration > 0 {
		maxFrames = int64(e.config.Recording.MaxDuration) * int64(e.config.Audio.SampleRate)
	}
	rec, err := NewRecorder(filename, int(e.config.Audio.SampleRate), e.config.Audio.InputChannels,
		e.config.Recording.BitDepth, e.config.Audio.FramesPerBuffer, maxFrames)
	if err != nil {
		return err
	}

	if !e.recorder.CompareAndSwap(nil, rec) {
		_ = rec.Close()
		_ = os.Remove(filename)
		return fmt.Errorf("already recording")
	}
	log.Infof("Recording input to %s", filename)
	return nil
}

// StopRecording finalizes the current recording, if any.
func (e *Engine) StopRecording() error {
	rec := e.recorder.Swap(nil)
	if rec == nil {
		return nil
	}
	if dropped := rec.Dropped(); dropped > 0 {
		log.Warnf("Recording dropped %d blocks", dropped)
	}
	return rec.Close()
}

// IsRecording reports whether input is being recorded.
func (e *Engine) IsRecording() bool {
	return e.recorder.Load() != nil
}

// Close stops recording and the input stream.
func (e *Engine) Close() error {
	if err := e.StopRecording(); err != nil {
		return err
	}
	return e.StopInputStream()
}
