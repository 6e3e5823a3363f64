// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"tracktweak/internal/analysis"
	"tracktweak/internal/log"
	"tracktweak/internal/meter"
	"tracktweak/pkg/bitint"

	"gopkg.in/yaml.v3"
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`             // Enable debug mode (verbose logging).
	LogLevel  string          `yaml:"log_level"`         // Logging level (e.g., "debug", "info", "warn", "error").
	Command   string          `yaml:"command,omitempty"` // A one-off command to execute instead of running the engine.
	Audio     AudioConfig     `yaml:"audio"`             // Audio host settings.
	Meter     MeterConfig     `yaml:"meter"`             // Level, loudness and spectrum analysis.
	Recording RecordingConfig `yaml:"recording"`         // Audio recording settings.
	Transport TransportConfig `yaml:"transport"`         // Data transport settings (UDP).
	Server    ServerConfig    `yaml:"server"`            // HTTP API, metrics and websocket.
}

// AudioConfig holds settings related to audio input.
type AudioConfig struct {
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index for audio input (-1 for default).
	SampleRate      float64 `yaml:"sample_rate"`       // Sample rate in Hz (e.g., 44100, 48000).
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Frames per callback block.
	LowLatency      bool    `yaml:"low_latency"`       // Request low latency settings from PortAudio device.
	InputChannels   int     `yaml:"input_channels"`    // 1 for mono, 2 for stereo.
}

// MeterConfig holds the analysis settings handed to the meter.
type MeterConfig struct {
	FrameSize     int           `yaml:"frame_size"`     // Analysis frame / FFT size, rounded up to a power of 2.
	DisplayBins   int           `yaml:"display_bins"`   // Number of published spectrum bins.
	Smoothing     float64       `yaml:"smoothing"`      // Exponential smoothing weight of the newest frame.
	Window        string        `yaml:"window"`         // Name of the analysis window (e.g., "Hann", "Hamming").
	TransformMode string        `yaml:"transform_mode"` // "producer" or "consumer".
	PollInterval  time.Duration `yaml:"poll_interval"`  // Consumer polling cadence (TUI, websocket).
}

// RecordingConfig holds settings related to audio recording functionality.
type RecordingConfig struct {
	Enabled     bool   `yaml:"enabled"`              // Enable audio recording to file.
	OutputDir   string `yaml:"output_dir"`           // Directory to save recorded audio files.
	Format      string `yaml:"format"`               // File format for recordings ("wav").
	BitDepth    int    `yaml:"bit_depth"`            // Bit depth for recorded audio (16, 24 or 32).
	MaxDuration int    `yaml:"max_duration_seconds"` // Maximum duration of a single recording file in seconds (0 for unlimited).
}

// TransportConfig holds settings related to sending meter data over the network.
type TransportConfig struct {
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Enable sending meter packets over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // Target address and port for UDP packets (e.g., "127.0.0.1:9090").
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`  // Interval between sending UDP packets.
}

// ServerConfig holds settings for the HTTP surface.
type ServerConfig struct {
	Enabled        bool     `yaml:"enabled"`         // Serve /healthz, /metrics, /api/v1 and /ws.
	Addr           string   `yaml:"addr"`            // Listen address (e.g., "127.0.0.1:8080").
	AllowedOrigins []string `yaml:"allowed_origins"` // CORS and websocket origins.
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults. After loading defaults or from file, it applies environment variable
// overrides, normalizes and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		candidates := []string{"config.yaml", "tracktweak.yaml"}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()
	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Normalize fixes values that have an obvious nearest valid setting.
func (c *Config) Normalize() {
	if c.Meter.FrameSize > 0 && !bitint.IsPowerOfTwo(c.Meter.FrameSize) {
		size := bitint.NextPowerOfTwo(c.Meter.FrameSize)
		log.Warnf("configuration: meter.frame_size %d is not a power of 2, using %d", c.Meter.FrameSize, size)
		c.Meter.FrameSize = size
	}
	if c.Meter.PollInterval <= 0 {
		c.Meter.PollInterval = DefaultPollInterval
	}
	if c.Debug {
		c.LogLevel = "debug"
	}
}

// Validate checks every section and joins all problems into one error.
func (c *Config) Validate() error {
	var errs []error

	if _, ok := log.ParseLevel(c.LogLevel); !ok {
		errs = append(errs, fmt.Errorf("log_level '%s' is not a known level", c.LogLevel))
	}

	// Audio Validation
	if err := meter.ValidateSampleRate(c.Audio.SampleRate); err != nil {
		errs = append(errs, fmt.Errorf("audio.sample_rate: %w", err))
	}
	if c.Audio.InputChannels < MinChannels || c.Audio.InputChannels > MaxChannels {
		errs = append(errs, fmt.Errorf("audio.input_channels %d: only mono or stereo input is supported", c.Audio.InputChannels))
	}
	if c.Audio.FramesPerBuffer < 1 || c.Audio.FramesPerBuffer > MaxBufferFrames {
		errs = append(errs, fmt.Errorf("audio.frames_per_buffer %d must be within 1-%d", c.Audio.FramesPerBuffer, MaxBufferFrames))
	}
	if c.Audio.InputDevice < MinDeviceID {
		errs = append(errs, fmt.Errorf("audio.input_device %d is invalid", c.Audio.InputDevice))
	}

	// Meter Validation
	if _, err := c.MeterOptions(); err != nil {
		errs = append(errs, fmt.Errorf("meter: %w", err))
	}

	// Recording Validation
	if c.Recording.Enabled {
		if !strings.EqualFold(c.Recording.Format, "wav") {
			errs = append(errs, fmt.Errorf("recording.format '%s' is not supported", c.Recording.Format))
		}
		switch c.Recording.BitDepth {
		case 16, 24, 32:
		default:
			errs = append(errs, fmt.Errorf("recording.bit_depth %d must be 16, 24 or 32", c.Recording.BitDepth))
		}
		if c.Recording.MaxDuration < 0 {
			errs = append(errs, fmt.Errorf("recording.max_duration_seconds must not be negative"))
		}
	}

	// Transport Validation
	if c.Transport.UDPEnabled {
		if _, _, err := net.SplitHostPort(c.Transport.UDPTargetAddress); err != nil {
			errs = append(errs, fmt.Errorf("transport.udp_target_address '%s' appears invalid: %w", c.Transport.UDPTargetAddress, err))
		}
		if c.Transport.UDPSendInterval <= 0 {
			errs = append(errs, fmt.Errorf("transport.udp_send_interval must be positive when UDP is enabled"))
		}
	}

	// Server Validation
	if c.Server.Enabled {
		if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
			errs = append(errs, fmt.Errorf("server.addr '%s' appears invalid: %w", c.Server.Addr, err))
		}
	}

	return errors.Join(errs...)
}

// MeterOptions converts the audio and meter sections into meter options.
func (c *Config) MeterOptions() (meter.Options, error) {
	window, err := analysis.ParseWindowFunc(c.Meter.Window)
	if err != nil {
		return meter.Options{}, err
	}
	mode, err := meter.ParseTransformMode(c.Meter.TransformMode)
	if err != nil {
		return meter.Options{}, err
	}
	opts := meter.Options{
		SampleRate:  c.Audio.SampleRate,
		FrameSize:   c.Meter.FrameSize,
		DisplayBins: c.Meter.DisplayBins,
		Smoothing:   c.Meter.Smoothing,
		Window:      window,
		Mode:        mode,
	}
	return opts, opts.Validate()
}

// applyEnvOverrides applies ENV_* variables on top of the file values.
// Unparseable values are ignored with a warning.
func (c *Config) applyEnvOverrides() {
	// ENV_{...}
	// These are general overrides.

	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Debug = bVal
			log.Infof("configuration: Overriding debug from env: %v", bVal)
		} else {
			log.Warnf("configuration: ignoring ENV_DEBUG=%q: %v", val, err)
		}
	}
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		c.LogLevel = val
		log.Infof("configuration: Overriding log_level from env: %s", val)
	}
	// ENV_SAMPLE_RATE
	if val, ok := os.LookupEnv("ENV_SAMPLE_RATE"); ok {
		if fVal, err := strconv.ParseFloat(val, 64); err == nil {
			c.Audio.SampleRate = fVal
			log.Infof("configuration: Overriding audio.sample_rate from env: %g", fVal)
		} else {
			log.Warnf("configuration: ignoring ENV_SAMPLE_RATE=%q: %v", val, err)
		}
	}

	// ENV_UDP_{...}
	// These are specific to the transport layer.

	// ENV_UDP_ENABLED
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Transport.UDPEnabled = bVal
			log.Infof("configuration: Overriding transport.udp_enabled from env: %v", bVal)
		} else {
			log.Warnf("configuration: ignoring ENV_UDP_ENABLED=%q: %v", val, err)
		}
	}
	// ENV_UDP_TARGET_ADDRESS
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		c.Transport.UDPTargetAddress = val
		log.Infof("configuration: Overriding transport.udp_target_address from env: %s", val)
	}
	// ENV_UDP_SEND_INTERVAL
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			c.Transport.UDPSendInterval = dur
			log.Infof("configuration: Overriding transport.udp_send_interval from env: %s", dur)
		} else {
			log.Warnf("configuration: ignoring ENV_UDP_SEND_INTERVAL=%q: %v", val, err)
		}
	}

	// ENV_HTTP_ADDR enables the server as a side effect.
	if val, ok := os.LookupEnv("ENV_HTTP_ADDR"); ok {
		c.Server.Addr = val
		c.Server.Enabled = true
		log.Infof("configuration: Overriding server.addr from env: %s", val)
	}
}
