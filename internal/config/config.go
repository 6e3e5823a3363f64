package config

import "time"

// Core configuration constants that define the boundaries and defaults
// for the meter host.
const (
	// Audio host defaults
	DefaultChannels        = 2           // Stereo
	DefaultDeviceID        = MinDeviceID // Default to system default device
	DefaultFramesPerBuffer = 512         // Balanced latency/performance
	DefaultLowLatency      = false       // Standard latency mode
	DefaultSampleRate      = 48000       // Hz

	// Meter defaults
	DefaultFrameSize     = 2048       // Analysis frame / FFT size
	DefaultDisplayBins   = 512        // Published spectrum length
	DefaultSmoothing     = 0.15       // Weight of the newest frame
	DefaultWindow        = "Hann"     // Analysis window
	DefaultTransformMode = "producer" // FFT runs in the audio callback
	DefaultPollInterval  = 33 * time.Millisecond

	// Recording defaults
	DefaultRecordInputStream = false // Don't record by default
	DefaultOutputDir         = "./recordings"
	DefaultFormat            = "wav" // WAV file format for recordings
	DefaultBitDepth          = 16

	// Transport and server defaults
	DefaultUDPTargetAddress = "127.0.0.1:9090"
	DefaultUDPSendInterval  = DefaultPollInterval
	DefaultHTTPAddr         = "127.0.0.1:8080"
	DefaultLogLevel         = "info"

	// Hardware and processing limits
	MinDeviceID     = -1   // -1 represents system default device
	MinChannels     = 1    // Mono
	MaxChannels     = 2    // Stereo; other bus layouts are rejected
	MaxBufferFrames = 8192 // Maximum frames per buffer (power of 2)
)

// Default returns the built-in configuration used when no file is found.
func Default() Config {
	return Config{
		LogLevel: DefaultLogLevel,
		Audio: AudioConfig{
			InputDevice:     DefaultDeviceID,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			LowLatency:      DefaultLowLatency,
			InputChannels:   DefaultChannels,
		},
		Meter: MeterConfig{
			FrameSize:     DefaultFrameSize,
			DisplayBins:   DefaultDisplayBins,
			Smoothing:     DefaultSmoothing,
			Window:        DefaultWindow,
			TransformMode: DefaultTransformMode,
			PollInterval:  DefaultPollInterval,
		},
		Recording: RecordingConfig{
			Enabled:   DefaultRecordInputStream,
			OutputDir: DefaultOutputDir,
			Format:    DefaultFormat,
			BitDepth:  DefaultBitDepth,
		},
		Transport: TransportConfig{
			UDPEnabled:       false,
			UDPTargetAddress: DefaultUDPTargetAddress,
			UDPSendInterval:  DefaultUDPSendInterval,
		},
		Server: ServerConfig{
			Enabled:        false,
			Addr:           DefaultHTTPAddr,
			AllowedOrigins: []string{"*"},
		},
	}
}
