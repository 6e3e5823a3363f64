// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tracktweak/internal/analysis"
	"tracktweak/internal/meter"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if cfg.Audio.SampleRate != DefaultSampleRate || cfg.Meter.FrameSize != DefaultFrameSize {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("nonexistent.yaml")
	if err == nil {
		t.Errorf("expected error for missing file, got nil")
	}
	if cfg != nil {
		t.Errorf("expected nil config on error, got %+v", cfg)
	}
}

func TestLoadConfig_UnmarshalError(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, ":\n:bad")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Error("expected unmarshal error, got nil or wrong error")
	}
}

func TestLoadConfig_File(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `
log_level: warn
audio:
  sample_rate: 44100
  input_channels: 1
  frames_per_buffer: 256
meter:
  frame_size: 4096
  display_bins: 256
  smoothing: 0.3
  window: blackman
  transform_mode: consumer
  poll_interval: 50ms
server:
  enabled: true
  addr: ":9000"
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	opts, err := cfg.MeterOptions()
	if err != nil {
		t.Fatalf("MeterOptions: %v", err)
	}
	want := meter.Options{
		SampleRate:  44100,
		FrameSize:   4096,
		DisplayBins: 256,
		Smoothing:   0.3,
		Window:      analysis.Blackman,
		Mode:        meter.ConsumerTransform,
	}
	if opts != want {
		t.Errorf("MeterOptions() = %+v, want %+v", opts, want)
	}
	if cfg.Meter.PollInterval != 50*time.Millisecond || cfg.Audio.InputChannels != 1 {
		t.Errorf("unexpected values: %+v", cfg)
	}
	// Sections missing from the file keep their defaults.
	if cfg.Transport.UDPTargetAddress != DefaultUDPTargetAddress || cfg.Recording.BitDepth != DefaultBitDepth {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoadConfig_NormalizesFrameSize(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, "meter:\n  frame_size: 3000\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Meter.FrameSize != 4096 {
		t.Errorf("FrameSize = %d, want 4096", cfg.Meter.FrameSize)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"Defaults", func(*Config) {}, ""},
		{"Surround input", func(c *Config) { c.Audio.InputChannels = 6 }, "only mono or stereo"},
		{"No input", func(c *Config) { c.Audio.InputChannels = 0 }, "only mono or stereo"},
		{"Zero sample rate", func(c *Config) { c.Audio.SampleRate = 0 }, "audio.sample_rate"},
		{"Oversized buffer", func(c *Config) { c.Audio.FramesPerBuffer = 16384 }, "frames_per_buffer"},
		{"Unknown window", func(c *Config) { c.Meter.Window = "square" }, "unknown FFT window"},
		{"Unknown mode", func(c *Config) { c.Meter.TransformMode = "gpu" }, "unknown transform mode"},
		{"Bad smoothing", func(c *Config) { c.Meter.Smoothing = 2 }, "smoothing"},
		{"Bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"UDP without port", func(c *Config) {
			c.Transport.UDPEnabled = true
			c.Transport.UDPTargetAddress = "localhost"
		}, "udp_target_address"},
		{"UDP zero interval", func(c *Config) {
			c.Transport.UDPEnabled = true
			c.Transport.UDPSendInterval = 0
		}, "udp_send_interval"},
		{"Recording mp3", func(c *Config) {
			c.Recording.Enabled = true
			c.Recording.Format = "mp3"
		}, "recording.format"},
		{"Server bad addr", func(c *Config) {
			c.Server.Enabled = true
			c.Server.Addr = "nowhere"
		}, "server.addr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateWrapsSampleRateError(t *testing.T) {
	cfg := Default()
	cfg.Audio.SampleRate = -1
	if err := cfg.Validate(); !errors.Is(err, meter.ErrInvalidSampleRate) {
		t.Errorf("Validate() = %v, want ErrInvalidSampleRate", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ENV_DEBUG", "true")
	t.Setenv("ENV_SAMPLE_RATE", "96000")
	t.Setenv("ENV_UDP_ENABLED", "1")
	t.Setenv("ENV_UDP_TARGET_ADDRESS", "10.0.0.5:7000")
	t.Setenv("ENV_UDP_SEND_INTERVAL", "100ms")
	t.Setenv("ENV_HTTP_ADDR", ":8181")

	cfg, err := LoadConfig(writeTempConfig(t, "audio:\n  sample_rate: 44100\n"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !cfg.Debug || cfg.LogLevel != "debug" {
		t.Errorf("debug override not applied: debug=%v level=%s", cfg.Debug, cfg.LogLevel)
	}
	if cfg.Audio.SampleRate != 96000 {
		t.Errorf("SampleRate = %v, want 96000", cfg.Audio.SampleRate)
	}
	if !cfg.Transport.UDPEnabled || cfg.Transport.UDPTargetAddress != "10.0.0.5:7000" ||
		cfg.Transport.UDPSendInterval != 100*time.Millisecond {
		t.Errorf("transport overrides not applied: %+v", cfg.Transport)
	}
	if !cfg.Server.Enabled || cfg.Server.Addr != ":8181" {
		t.Errorf("server overrides not applied: %+v", cfg.Server)
	}
}

func TestEnvOverrideInvalidValueIgnored(t *testing.T) {
	t.Setenv("ENV_SAMPLE_RATE", "fast")
	cfg, err := LoadConfig(writeTempConfig(t, "audio:\n  sample_rate: 44100\n"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Audio.SampleRate != 44100 {
		t.Errorf("SampleRate = %v, want file value 44100", cfg.Audio.SampleRate)
	}
}
