package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"tracktweak/cmd"
	"tracktweak/internal/analysis"
	"tracktweak/internal/audio"
	"tracktweak/internal/build"
	"tracktweak/internal/config"
	"tracktweak/internal/log"
	"tracktweak/internal/meter"
	"tracktweak/internal/metrics"
	"tracktweak/internal/server"
	"tracktweak/internal/transport"
	"tracktweak/internal/transport/udp"
	"tracktweak/internal/tui"
	"tracktweak/pkg/utils"

	"github.com/prometheus/client_golang/prometheus"
)

// headlessInterval is the cadence of the logged readings without a TUI.
const headlessInterval = time.Second

// main is the entry point for the meter.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and configuration
//   - Execute one-off commands if requested
//   - Build the meter and its outputs
//
// 2. Concurrent Phase (Hot Path):
//   - Start the input stream; every callback block goes to the meter
//   - Start recording if enabled
//   - Poll the meter from the TUI, websocket, UDP and HTTP consumers
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals
//   - Stop consumers, then recording, then the stream
//   - Clean up resources
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	// Development builds run with "unknown" build information.
	if err := build.Initialize(); err != nil {
		log.Debugf("Build information incomplete: %v", err)
	}

	opts, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		log.Fatalf("%v", err)
	}
	cfg := opts.Config
	if level, ok := log.ParseLevel(cfg.LogLevel); ok {
		log.SetLevel(level)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Handle one-off commands that don't need the input stream.
	switch opts.Command {
	case cmd.CommandVersion:
		fmt.Print(build.Describe())
		return
	case cmd.CommandList:
		if err := listDevices(os.Stdout); err != nil {
			log.Fatalf("%v", err)
		}
		return
	case cmd.CommandAnalyze:
		if err := analyzeFile(ctx, opts); err != nil {
			log.Fatalf("%v", err)
		}
		return
	}

	if err := runLive(ctx, opts); err != nil {
		log.Fatalf("%v", err)
	}
}

func listDevices(w io.Writer) error {
	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()
	return audio.ListDevices(w)
}

// runLive meters the input device until the TUI quits or a signal arrives.
func runLive(ctx context.Context, opts *cmd.Options) error {
	cfg := opts.Config

	// Limit OS threads to optimize for real-time audio processing:
	// - One thread dedicated to the audio callback (time-critical)
	// - One thread for the consumers, UI and I/O
	runtime.GOMAXPROCS(2)

	// Initialize PortAudio subsystem
	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()

	m, err := newMeter(cfg)
	if err != nil {
		return err
	}

	engine, err := audio.NewEngine(cfg, m)
	if err != nil {
		return err
	}

	out, err := startOutputs(cfg, m)
	if err != nil {
		return err
	}
	defer out.close()

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	// CRITICAL: Start of real-time audio processing
	// The first call to StartInputStream triggers PortAudio to begin
	// calling the callback function, marking the start of the hot path
	if err := engine.StartInputStream(); err != nil {
		return err
	}
	defer func() {
		// Stop recording if active and release the stream.
		if err := engine.Close(); err != nil {
			log.Errorf("Error closing audio engine: %v", err)
		}
	}()

	if cfg.Recording.Enabled {
		filename, err := recordingPath(cfg.Recording)
		if err != nil {
			return err
		}
		if err := engine.StartRecording(filename); err != nil {
			return err
		}
		defer fmt.Printf("\nRecording saved to: %s\n", filename)
	}

	return display(ctx, opts, m)

	// ==================== SHUTDOWN PHASE (Cold Path) ====================
	// The deferred calls run in reverse: the engine stops recording and the
	// stream, then the outputs stop polling, then PortAudio terminates.
}

// analyzeFile meters a WAV file and prints the final readings.
func analyzeFile(ctx context.Context, opts *cmd.Options) error {
	cfg := opts.Config

	src, err := audio.OpenFile(opts.File, cfg.Audio.FramesPerBuffer)
	if err != nil {
		return err
	}
	defer src.Close()

	// The file decides the rate; the meter windows follow it.
	cfg.Audio.SampleRate = src.SampleRate()
	m, err := newMeter(cfg)
	if err != nil {
		return err
	}

	out, err := startOutputs(cfg, m)
	if err != nil {
		return err
	}
	defer out.close()

	start := time.Now()
	frames, err := src.Run(ctx, m, opts.Realtime)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Debugf("Analyzed %d frames in %s", frames, time.Since(start))

	return report(os.Stdout, opts.File, src, m)
}

func newMeter(cfg *config.Config) (*meter.Meter, error) {
	meterOpts, err := cfg.MeterOptions()
	if err != nil {
		return nil, err
	}
	m, err := meter.New(meterOpts)
	if err != nil {
		return nil, err
	}
	log.Infof("Meter %s: %.0f Hz, %d-point %s frames, %d display bins, %s transform",
		m.ID(), m.SampleRate(), m.FrameSize(), meterOpts.Window, m.DisplayBins(), m.Mode())
	return m, nil
}

// outputs are the network consumers of a meter.
type outputs struct {
	closers []io.Closer
	server  *server.Server
}

// startOutputs starts the HTTP server (with websocket and metrics) and the
// UDP stream when they are enabled.
func startOutputs(cfg *config.Config, m *meter.Meter) (*outputs, error) {
	out := &outputs{}

	if cfg.Server.Enabled {
		// Meter collectors get their own registry; the default one already
		// carries the Go, process and HTTP metrics.
		reg := prometheus.NewRegistry()
		if err := metrics.Register(reg, m); err != nil {
			return nil, err
		}

		ws := transport.NewWebSocketTransport(m.ID(), cfg.Server.AllowedOrigins)
		out.closers = append(out.closers, ws)

		srv, err := server.New(m, server.Options{
			Addr:           cfg.Server.Addr,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Gatherer:       prometheus.Gatherers{reg, prometheus.DefaultGatherer},
			WebSocket:      ws,
		})
		if err != nil {
			out.close()
			return nil, err
		}
		if err := srv.Start(); err != nil {
			out.close()
			return nil, err
		}
		out.server = srv

		pub, err := transport.NewPublisher(m, ws, m.ID(), cfg.Meter.PollInterval)
		if err != nil {
			out.close()
			return nil, err
		}
		pub.Start()
		out.closers = append(out.closers, pub)
	}

	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewUDPSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			out.close()
			return nil, err
		}
		out.closers = append(out.closers, sender)

		pub, err := udp.NewUDPPublisher(cfg.Transport.UDPSendInterval, sender, m)
		if err != nil {
			out.close()
			return nil, err
		}
		pub.Start()
		out.closers = append(out.closers, pub)
	}

	return out, nil
}

// close stops the publishers before the transports they feed.
func (o *outputs) close() {
	for i := len(o.closers) - 1; i >= 0; i-- {
		if err := o.closers[i].Close(); err != nil {
			log.Errorf("Error closing output: %v", err)
		}
	}
	o.closers = nil
	if o.server != nil {
		if err := o.server.Shutdown(context.Background()); err != nil {
			log.Errorf("%v", err)
		}
		o.server = nil
	}
}

// display blocks on the TUI, or on ctx while logging readings headless.
func display(ctx context.Context, opts *cmd.Options, m *meter.Meter) error {
	if opts.Headless {
		pub, err := transport.NewPublisher(m, transport.NewLoggingTransport(), m.ID(), headlessInterval)
		if err != nil {
			return err
		}
		pub.Start()
		defer pub.Close()

		fmt.Printf("Headless mode, '%s --help' for usage information.\n", build.GetBuildFlags().Name)
		<-ctx.Done()
		return nil
	}

	// Log lines would tear the alternate screen; send them to a file.
	logPath := filepath.Join(os.TempDir(), build.GetBuildFlags().Name+".log")
	if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
		log.SetOutput(f)
		defer func() {
			log.SetOutput(os.Stderr)
			f.Close()
		}()
	}
	return tui.Run(ctx, m, opts.Config.Meter.PollInterval)
}

// recordingPath creates the output directory and names the file after the
// current time.
func recordingPath(rc config.RecordingConfig) (string, error) {
	if err := os.MkdirAll(rc.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create recording directory: %w", err)
	}
	name := "recording-" + time.Now().UTC().Format("02-01-2006-150405") + "." + rc.Format
	return filepath.Join(rc.OutputDir, name), nil
}

// report prints the final readings of an analyzed file.
func report(w io.Writer, path string, src *audio.FileSource, m *meter.Meter) error {
	snap := m.Snapshot()
	stats := m.Stats()

	duration, err := src.Duration()
	if err != nil {
		duration = time.Duration(float64(src.Frames()) / src.SampleRate() * float64(time.Second))
	}

	fmt.Fprintf(w, "%s: %.0f Hz, %d ch, %d-bit, %s (%d frames)\n",
		path, src.SampleRate(), src.Channels(), src.BitDepth(), duration.Round(time.Millisecond), src.Frames())
	fmt.Fprintf(w, "  Level       %s\n", formatLevel(snap.Level))
	fmt.Fprintf(w, "  Momentary   %s\n", formatLUFS(snap.Momentary))
	fmt.Fprintf(w, "  Short-term  %s\n", formatLUFS(snap.ShortTerm))
	fmt.Fprintf(w, "  Integrated  %s\n", formatLUFS(snap.Integrated))
	fmt.Fprintf(w, "  Zone        %s\n", analysis.ClassifyLoudness(snap.ShortTerm))
	fmt.Fprintf(w, "  %s\n", analysis.LoudnessAdvice(snap.ShortTerm))

	if len(snap.Spectrum) > 0 {
		peak := utils.FindPeakBin(snap.Spectrum, 0, len(snap.Spectrum)-1)
		if v := snap.Spectrum[peak]; v > analysis.SpectrumFloor {
			fmt.Fprintf(w, "  Peak        %.0f Hz (%.1f dB)\n", m.FrequencyForDisplayBin(peak), v)
		}
	}
	_, err = fmt.Fprintf(w, "  Frames      %d completed, %d dropped, %d transforms\n",
		stats.FramesCompleted, stats.FramesDropped, stats.Transforms)
	return err
}

func formatLevel(level float64) string {
	if math.IsNaN(level) || math.IsInf(level, 0) {
		return "--"
	}
	if level <= 0 {
		return "0.000 (-inf dBFS)"
	}
	return fmt.Sprintf("%.3f (%.1f dBFS)", level, 20*math.Log10(level))
}

func formatLUFS(lufs float64) string {
	if math.IsNaN(lufs) || math.IsInf(lufs, 0) {
		return "--"
	}
	return fmt.Sprintf("%.1f LUFS", lufs)
}
