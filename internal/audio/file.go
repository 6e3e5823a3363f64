// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"tracktweak/internal/analysis"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAV format tags accepted by FileSource.
const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

var ErrUnsupportedFile = errors.New("unsupported audio file")

// FileSource replays an integer PCM WAV file as non-interleaved float blocks,
// the same shape the live capture callback delivers.
type FileSource struct {
	file    *os.File
	decoder *wav.Decoder

	sampleRate float64
	channels   int
	bitDepth   int
	scale      float32 // 1 / full scale.
	offset     int     // Added before scaling; non-zero for unsigned 8-bit data.

	pcm   *audio.IntBuffer
	store [][]float32 // Full-length per-channel storage.
	block [][]float32 // Views into store for the current block.
	read  int64       // Frames delivered so far.
}

// OpenFile opens path and prepares framesPerBuffer-sized blocks.
func OpenFile(path string, framesPerBuffer int) (*FileSource, error) {
	if framesPerBuffer < 1 {
		return nil, fmt.Errorf("invalid frames per buffer: %d", framesPerBuffer)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		file.Close()
		return nil, fmt.Errorf("%w: %s is not a valid WAV file", ErrUnsupportedFile, path)
	}
	if decoder.WavAudioFormat != wavFormatPCM && decoder.WavAudioFormat != wavFormatExtensible {
		file.Close()
		return nil, fmt.Errorf("%w: WAV format tag %d (integer PCM only)", ErrUnsupportedFile, decoder.WavAudioFormat)
	}

	channels := int(decoder.NumChans)
	bitDepth := int(decoder.BitDepth)
	s := &FileSource{
		file:       file,
		decoder:    decoder,
		sampleRate: float64(decoder.SampleRate),
		channels:   channels,
		bitDepth:   bitDepth,
		scale:      1 / float32(int64(1)<<(bitDepth-1)),
		pcm: &audio.IntBuffer{
			Format: decoder.Format(),
			Data:   make([]int, framesPerBuffer*channels),
		},
		store: make([][]float32, channels),
		block: make([][]float32, channels),
	}
	if bitDepth == 8 {
		s.offset = -128
	}
	for ch := range s.store {
		s.store[ch] = make([]float32, framesPerBuffer)
	}
	return s, nil
}

// SampleRate returns the file's sample rate in Hz.
func (s *FileSource) SampleRate() float64 {
	return s.sampleRate
}

// Channels returns the file's channel count.
func (s *FileSource) Channels() int {
	return s.channels
}

// BitDepth returns the file's sample size in bits.
func (s *FileSource) BitDepth() int {
	return s.bitDepth
}

// Duration returns the playing time of the file.
func (s *FileSource) Duration() (time.Duration, error) {
	return s.decoder.Duration()
}

// Frames returns the number of frames delivered so far.
func (s *FileSource) Frames() int64 {
	return s.read
}

// Next decodes the next block. The returned slices are reused by the next
// call. At the end of the file it returns io.EOF.
func (s *FileSource) Next() ([][]float32, error) {
	n, err := s.decoder.PCMBuffer(s.pcm)
	if err != nil {
		return nil, fmt.Errorf("failed to decode PCM data: %w", err)
	}
	frames := n / s.channels
	if frames == 0 {
		return nil, io.EOF
	}

	for ch := range s.channels {
		dst := s.store[ch][:frames]
		for i := range dst {
			dst[i] = float32(s.pcm.Data[i*s.channels+ch]+s.offset) * s.scale
		}
		s.block[ch] = dst
	}
	s.read += int64(frames)
	return s.block, nil
}

// Run feeds every block of the file to p. With realtime set, blocks are
// paced at the file's sample rate so pollers see the meter move as it would
// live. It returns the number of frames processed.
func (s *FileSource) Run(ctx context.Context, p analysis.BlockProcessor, realtime bool) (int64, error) {
	var ticker *time.Ticker
	if realtime {
		period := time.Duration(float64(len(s.store[0])) / s.sampleRate * float64(time.Second))
		ticker = time.NewTicker(period)
		defer ticker.Stop()
	}

	for {
		if err := ctx.Err(); err != nil {
			return s.read, err
		}

		block, err := s.Next()
		if errors.Is(err, io.EOF) {
			return s.read, nil
		}
		if err != nil {
			return s.read, err
		}
		p.Process(block)

		if ticker != nil {
			select {
			case <-ctx.Done():
				return s.read, ctx.Err()
			case <-ticker.C:
			}
		}
	}
}

// Close closes the underlying file.
func (s *FileSource) Close() error {
	return s.file.Close()
}
