package cmd

import (
	"fmt"

	"tracktweak/internal/build"
	"tracktweak/internal/config"

	"github.com/spf13/cobra"
)

// Commands that run instead of the live meter.
const (
	CommandList    = "list"
	CommandAnalyze = "analyze"
	CommandVersion = "version"
)

// Options is the parsed command line: the effective configuration plus the
// selected command and its arguments.
type Options struct {
	Config   *config.Config
	Command  string // Empty for the live meter.
	File     string // WAV file for analyze.
	Realtime bool   // Pace analyze at the file's sample rate.
	Headless bool   // Log readings instead of drawing the TUI.
}

// flagValues collects raw flag values; only flags the user set are applied
// over the loaded configuration.
type flagValues struct {
	configPath      string
	deviceID        int
	channels        int
	sampleRate      float64
	framesPerBuffer int
	lowLatency      bool
	frameSize       int
	displayBins     int
	window          string
	mode            string
	record          bool
	outputDir       string
	httpAddr        string
	udpAddr         string
	logLevel        string
	verbose         bool
}

func ParseArgs(args []string) (*Options, error) {
	buildInfo := build.GetBuildFlags()
	options := &Options{}
	var fv flagValues

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		Args: cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(fv.configPath)
			if err != nil {
				return err
			}
			if err := fv.apply(cmd, cfg); err != nil {
				return err
			}
			options.Config = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	// List command
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = CommandList
		},
	}
	rootCmd.AddCommand(listCmd)

	// Analyze command
	analyzeCmd := &cobra.Command{
		Use:   "analyze <file.wav>",
		Short: "Meter a WAV file and print the final readings",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = CommandAnalyze
			options.File = args[0]
		},
	}
	analyzeCmd.Flags().BoolVar(&options.Realtime, "realtime", false,
		"Feed blocks at the file's sample rate instead of as fast as possible")
	rootCmd.AddCommand(analyzeCmd)

	// Version command
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = CommandVersion
		},
	}
	rootCmd.AddCommand(versionCmd)

	flags := rootCmd.PersistentFlags()

	// Configuration File
	flags.StringVarP(&fv.configPath, "config", "f", "",
		"Path to a YAML configuration file (default: ./config.yaml or ./tracktweak.yaml if present)")

	// Audio Device Configuration
	flags.IntVarP(&fv.deviceID, "device", "d", config.DefaultDeviceID,
		"Specify input device ID. Use 'list' command to see available devices.")
	flags.IntVarP(&fv.channels, "channels", "c", config.DefaultChannels,
		"Number of channels to meter (1=mono, 2=stereo)")
	flags.Float64VarP(&fv.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	flags.IntVarP(&fv.framesPerBuffer, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"The number of frames per buffer (affects latency)")
	flags.BoolVarP(&fv.lowLatency, "low-latency", "l", config.DefaultLowLatency,
		"Use low latency mode for real-time processing")

	// Meter Configuration
	flags.IntVar(&fv.frameSize, "fft-size", config.DefaultFrameSize,
		"Analysis frame size (power of 2)")
	flags.IntVar(&fv.displayBins, "bins", config.DefaultDisplayBins,
		"Number of display spectrum bins")
	flags.StringVar(&fv.window, "window", config.DefaultWindow,
		"Analysis window (Hann, Hamming, Blackman, BlackmanNuttall, BartlettHann, Lanczos, Nuttall)")
	flags.StringVar(&fv.mode, "mode", config.DefaultTransformMode,
		"Where the FFT runs: producer (audio callback) or consumer (reader)")

	// Recording Configuration
	flags.BoolVarP(&fv.record, "record", "r", config.DefaultRecordInputStream,
		"Record audio from the specified input device")
	flags.StringVarP(&fv.outputDir, "output-dir", "o", config.DefaultOutputDir,
		"Directory for recordings")

	// Outputs
	flags.BoolVar(&options.Headless, "headless", false,
		"Log readings instead of drawing the terminal meter")
	flags.StringVar(&fv.httpAddr, "http", "",
		"Serve the HTTP API, metrics and websocket on this address (e.g. 127.0.0.1:8080)")
	flags.StringVar(&fv.udpAddr, "udp", "",
		"Send binary meter packets to this address (e.g. 127.0.0.1:9090)")

	// Debug Configuration
	flags.StringVar(&fv.logLevel, "log-level", config.DefaultLogLevel,
		"Log level (debug, info, warn, error, fatal)")
	flags.BoolVarP(&fv.verbose, "verbose", "v", false,
		"Show verbose output")

	// Execute the CLI
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	return options, nil
}

// apply copies every flag the user set onto cfg and validates the result.
func (fv *flagValues) apply(cmd *cobra.Command, cfg *config.Config) error {
	changed := cmd.Flags().Changed

	if changed("device") {
		cfg.Audio.InputDevice = fv.deviceID
	}
	if changed("channels") {
		cfg.Audio.InputChannels = fv.channels
	}
	if changed("sample-rate") {
		cfg.Audio.SampleRate = fv.sampleRate
	}
	if changed("frames-per-buffer") {
		cfg.Audio.FramesPerBuffer = fv.framesPerBuffer
	}
	if changed("low-latency") {
		cfg.Audio.LowLatency = fv.lowLatency
	}
	if changed("fft-size") {
		cfg.Meter.FrameSize = fv.frameSize
	}
	if changed("bins") {
		cfg.Meter.DisplayBins = fv.displayBins
	}
	if changed("window") {
		cfg.Meter.Window = fv.window
	}
	if changed("mode") {
		cfg.Meter.TransformMode = fv.mode
	}
	if changed("record") {
		cfg.Recording.Enabled = fv.record
	}
	if changed("output-dir") {
		cfg.Recording.OutputDir = fv.outputDir
	}
	if changed("http") {
		cfg.Server.Enabled = true
		cfg.Server.Addr = fv.httpAddr
	}
	if changed("udp") {
		cfg.Transport.UDPEnabled = true
		cfg.Transport.UDPTargetAddress = fv.udpAddr
	}
	if changed("log-level") {
		cfg.LogLevel = fv.logLevel
	}
	if changed("verbose") {
		cfg.Debug = fv.verbose
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
