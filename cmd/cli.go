// SPDX-License-Identifier: MIT
package cmd

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mandersson1024/intonation-toy-sub002/internal/config"
	"github.com/mandersson1024/intonation-toy-sub002/pkg/build"
)

// ParseArgs builds the runtime configuration from three layers, each
// overriding the one below it:
//
//  1. built-in defaults (config.NewConfig)
//  2. YAML config file (--config, or ./config.yaml if present)
//  3. command-line flags
func ParseArgs() (*config.Config, error) {
	buildInfo := build.GetBuildFlags()
	options := config.NewConfig()

	var (
		configPath string
		waveform   string
		noiseType  string
	)

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
		RunE: func(cmd *cobra.Command, args []string) error {
			return mergeConfigFile(cmd, options, configPath, waveform, noiseType)
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	// List command
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = "list"
		},
	}
	rootCmd.AddCommand(listCmd)

	// Audio Device Configuration
	rootCmd.PersistentFlags().IntVarP(&options.DeviceID, "device", "d", options.DeviceID,
		"Specify input device ID. Use 'list' command to see available devices.")
	rootCmd.PersistentFlags().Float64VarP(&options.SampleRate, "sample-rate", "s", options.SampleRate,
		"Sample rate, measured in Hertz (Hz)")
	rootCmd.PersistentFlags().BoolVarP(&options.LowLatency, "low-latency", "l", options.LowLatency,
		"Use low latency mode for real-time processing")

	// Capture Pipeline Configuration
	rootCmd.PersistentFlags().IntVarP(&options.Batch.BatchSize, "batch-size", "b", options.Batch.BatchSize,
		"Samples per transfer batch (rounded up to a multiple of 128)")
	rootCmd.PersistentFlags().DurationVar(&options.Batch.BufferTimeout, "buffer-timeout", options.Batch.BufferTimeout,
		"Maximum age of a partial batch before it is flushed")
	rootCmd.PersistentFlags().IntVar(&options.PoolSize, "pool-size", options.PoolSize,
		"Number of transferable buffer slots")
	rootCmd.PersistentFlags().IntVar(&options.RingCapacity, "ring-capacity", options.RingCapacity,
		"Downstream ring buffer capacity in samples")
	rootCmd.PersistentFlags().IntVar(&options.AnalysisWindow, "analysis-window", options.AnalysisWindow,
		"Samples per pitch analysis window")

	// Signal Source Configuration
	rootCmd.PersistentFlags().BoolVar(&options.TestSignal.Enabled, "test-signal", options.TestSignal.Enabled,
		"Replace microphone input with a synthesized test signal")
	rootCmd.PersistentFlags().StringVar(&waveform, "waveform", string(options.TestSignal.Waveform),
		"Test signal waveform (sine, square, sawtooth, triangle, white_noise, pink_noise)")
	rootCmd.PersistentFlags().Float64Var(&options.TestSignal.Frequency, "frequency", options.TestSignal.Frequency,
		"Test signal frequency in Hz")
	rootCmd.PersistentFlags().Float64Var(&options.TestSignal.Amplitude, "amplitude", options.TestSignal.Amplitude,
		"Test signal amplitude in [0,1]")
	rootCmd.PersistentFlags().BoolVar(&options.Noise.Enabled, "noise", options.Noise.Enabled,
		"Mix background noise into the signal")
	rootCmd.PersistentFlags().Float64Var(&options.Noise.Level, "noise-level", options.Noise.Level,
		"Background noise level in [0,1]")
	rootCmd.PersistentFlags().StringVar(&noiseType, "noise-type", string(options.Noise.Type),
		"Background noise type (white_noise, pink_noise)")

	// Recording Configuration
	rootCmd.PersistentFlags().BoolVarP(&options.Record, "record", "r", options.Record,
		"Record the passthrough output to a WAV file")
	rootCmd.PersistentFlags().StringVarP(&options.OutputFile, "output", "o", options.OutputFile,
		"Output file name. Default is recording-DD-MM-YYYY-HHMMSS.wav")

	// Observability Configuration
	rootCmd.PersistentFlags().BoolVar(&options.MonitorEnabled, "monitor", options.MonitorEnabled,
		"Serve analysis frames over WebSocket on /monitor")
	rootCmd.PersistentFlags().StringVar(&options.MonitorPort, "monitor-port", options.MonitorPort,
		"Port for the WebSocket monitor")
	rootCmd.PersistentFlags().BoolVar(&options.UDPEnabled, "udp", options.UDPEnabled,
		"Publish binary analysis packets over UDP")
	rootCmd.PersistentFlags().StringVar(&options.UDPTarget, "udp-target", options.UDPTarget,
		"UDP target address (host:port)")
	rootCmd.PersistentFlags().DurationVar(&options.UDPInterval, "udp-interval", options.UDPInterval,
		"Interval between UDP analysis packets")

	// Debug Configuration
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to a YAML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&options.Verbose, "verbose", "v", options.Verbose,
		"Show verbose output")

	// Execute the CLI
	rootCmd.SetArgs(os.Args[1:])
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}

	if options.Record && options.OutputFile == "" {
		options.OutputFile = "recording-" +
			time.Now().UTC().Format("02-01-2006-150405") + ".wav"
	}

	return options, nil
}

// mergeConfigFile layers the YAML file between the defaults and the
// flags: file values replace defaults, but any flag the user set on the
// command line wins over the file.
func mergeConfigFile(cmd *cobra.Command, options *config.Config, path, waveform, noiseType string) error {
	fromFlags := *options

	if err := config.LoadFile(options, path); err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("device") {
		options.DeviceID = fromFlags.DeviceID
	}
	if flags.Changed("sample-rate") {
		options.SampleRate = fromFlags.SampleRate
	}
	if flags.Changed("low-latency") {
		options.LowLatency = fromFlags.LowLatency
	}
	if flags.Changed("batch-size") {
		options.Batch.BatchSize = fromFlags.Batch.BatchSize
	}
	if flags.Changed("buffer-timeout") {
		options.Batch.BufferTimeout = fromFlags.Batch.BufferTimeout
	}
	if flags.Changed("pool-size") {
		options.PoolSize = fromFlags.PoolSize
	}
	if flags.Changed("ring-capacity") {
		options.RingCapacity = fromFlags.RingCapacity
	}
	if flags.Changed("analysis-window") {
		options.AnalysisWindow = fromFlags.AnalysisWindow
	}
	if flags.Changed("test-signal") {
		options.TestSignal.Enabled = fromFlags.TestSignal.Enabled
	}
	if flags.Changed("waveform") {
		options.TestSignal.Waveform = config.Waveform(waveform)
	}
	if flags.Changed("frequency") {
		options.TestSignal.Frequency = fromFlags.TestSignal.Frequency
	}
	if flags.Changed("amplitude") {
		options.TestSignal.Amplitude = fromFlags.TestSignal.Amplitude
	}
	if flags.Changed("noise") {
		options.Noise.Enabled = fromFlags.Noise.Enabled
	}
	if flags.Changed("noise-level") {
		options.Noise.Level = fromFlags.Noise.Level
	}
	if flags.Changed("noise-type") {
		options.Noise.Type = config.NoiseType(noiseType)
	}
	if flags.Changed("record") {
		options.Record = fromFlags.Record
	}
	if flags.Changed("output") {
		options.OutputFile = fromFlags.OutputFile
	}
	if flags.Changed("monitor") {
		options.MonitorEnabled = fromFlags.MonitorEnabled
	}
	if flags.Changed("monitor-port") {
		options.MonitorPort = fromFlags.MonitorPort
	}
	if flags.Changed("udp") {
		options.UDPEnabled = fromFlags.UDPEnabled
	}
	if flags.Changed("udp-target") {
		options.UDPTarget = fromFlags.UDPTarget
	}
	if flags.Changed("udp-interval") {
		options.UDPInterval = fromFlags.UDPInterval
	}
	if flags.Changed("verbose") {
		options.Verbose = fromFlags.Verbose
	}

	return nil
}
