// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"time"

	"github.com/mandersson1024/intonation-toy-sub002/pkg/bitint"
)

// Core constants that define the boundaries and defaults for the
// capture pipeline. The quantum size is fixed by the real-time contract
// and is not configurable.
const (
	// QuantumSize is the number of samples delivered per real-time
	// callback invocation. Mono, fixed by the host audio contract.
	QuantumSize = 128

	// Default values for the pipeline configuration
	DefaultSampleRate     = 48000                 // Hz
	DefaultBatchSize      = 1024                  // Samples per batch (8 quanta)
	DefaultBufferTimeout  = 50 * time.Millisecond // Max age of a partial batch
	DefaultPoolSize       = 4                     // Transferable buffer slots
	DefaultRingCapacity   = 8192                  // Downstream ring buffer samples
	DefaultAnalysisWindow = 2048                  // Samples per pitch analysis window
	DefaultSlotTimeout    = 5 * time.Second       // Stuck-slot reclamation threshold
	DefaultReapInterval   = time.Second           // Cadence of stuck-slot checks
	DefaultDeviceID       = MinDeviceID           // System default device
	DefaultLowLatency     = false
	DefaultMonitorPort    = "8080"
	DefaultUDPInterval    = 16 * time.Millisecond // ~60 Hz analysis packets

	// Hardware and processing limits
	MinDeviceID   = -1     // -1 selects the system default device
	MinSampleRate = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate = 192000 // Maximum supported sample rate (Hz)
	MaxBatchSize  = 8192   // Maximum samples per batch
	MinPoolSize   = 2
	MaxPoolSize   = 16
)

// Waveform identifies a synthesized test-signal shape.
type Waveform string

const (
	WaveSine       Waveform = "sine"
	WaveSquare     Waveform = "square"
	WaveSawtooth   Waveform = "sawtooth"
	WaveTriangle   Waveform = "triangle"
	WaveWhiteNoise Waveform = "white_noise"
	WavePinkNoise  Waveform = "pink_noise"
)

// Valid reports whether w names a known waveform.
func (w Waveform) Valid() bool {
	switch w {
	case WaveSine, WaveSquare, WaveSawtooth, WaveTriangle, WaveWhiteNoise, WavePinkNoise:
		return true
	}
	return false
}

// NoiseType identifies a background-noise generator flavor.
type NoiseType string

const (
	NoiseWhite NoiseType = "white_noise"
	NoisePink  NoiseType = "pink_noise"
)

// Valid reports whether n names a known noise type.
func (n NoiseType) Valid() bool {
	return n == NoiseWhite || n == NoisePink
}

// TestSignalConfig controls the synthesized signal source. When enabled
// it replaces live input entirely.
type TestSignalConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Waveform   Waveform `yaml:"waveform"`
	Frequency  float64  `yaml:"frequency"`   // Hz, must be > 0
	Amplitude  float64  `yaml:"amplitude"`   // [0, 1]
	SampleRate float64  `yaml:"sample_rate"` // Hz
}

// Validate rejects out-of-range test-signal parameters. A failed update
// must leave the previous configuration in effect.
func (c TestSignalConfig) Validate() error {
	if !c.Waveform.Valid() {
		return fmt.Errorf("unknown waveform %q", c.Waveform)
	}
	if c.Frequency <= 0 {
		return fmt.Errorf("frequency must be > 0, got %g", c.Frequency)
	}
	if c.Amplitude < 0 || c.Amplitude > 1 {
		return fmt.Errorf("amplitude must be in [0,1], got %g", c.Amplitude)
	}
	if c.SampleRate < MinSampleRate || c.SampleRate > MaxSampleRate {
		return fmt.Errorf("sample rate must be in [%d,%d], got %g", MinSampleRate, MaxSampleRate, c.SampleRate)
	}
	return nil
}

// NoiseConfig controls the additive background-noise generator. It is
// independent of the test signal and mixes over whichever source is
// selected.
type NoiseConfig struct {
	Enabled bool      `yaml:"enabled"`
	Level   float64   `yaml:"level"` // [0, 1]
	Type    NoiseType `yaml:"type"`
}

// Validate rejects out-of-range noise parameters.
func (c NoiseConfig) Validate() error {
	if !c.Type.Valid() {
		return fmt.Errorf("unknown noise type %q", c.Type)
	}
	if c.Level < 0 || c.Level > 1 {
		return fmt.Errorf("noise level must be in [0,1], got %g", c.Level)
	}
	return nil
}

// BatchConfig controls batching of quanta on the real-time side.
type BatchConfig struct {
	BatchSize     int           `yaml:"batch_size"`     // Samples, rounded up to whole quanta
	BufferTimeout time.Duration `yaml:"buffer_timeout"` // Max latency of a partial batch
}

// Normalize rounds BatchSize up to a whole number of quanta and clamps
// it to the supported range. Returns the normalized copy.
func (c BatchConfig) Normalize() BatchConfig {
	c.BatchSize = bitint.NextMultiple(c.BatchSize, QuantumSize)
	if c.BatchSize > MaxBatchSize {
		c.BatchSize = MaxBatchSize
	}
	if c.BufferTimeout <= 0 {
		c.BufferTimeout = DefaultBufferTimeout
	}
	return c
}

// Validate rejects batch parameters that cannot be normalized into the
// supported range.
func (c BatchConfig) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be > 0, got %d", c.BatchSize)
	}
	if c.BatchSize > MaxBatchSize {
		return fmt.Errorf("batch size must be <= %d, got %d", MaxBatchSize, c.BatchSize)
	}
	if c.BufferTimeout <= 0 {
		return fmt.Errorf("buffer timeout must be > 0, got %s", c.BufferTimeout)
	}
	return nil
}

// Config holds all runtime configuration for the pipeline. It is built
// from defaults, then an optional YAML file, then command line flags.
type Config struct {
	// Audio device settings
	DeviceID   int     `yaml:"input_device"`
	SampleRate float64 `yaml:"sample_rate"`
	LowLatency bool    `yaml:"low_latency"`

	// Capture pipeline settings
	Batch          BatchConfig `yaml:"batch"`
	PoolSize       int         `yaml:"pool_size"`
	RingCapacity   int         `yaml:"ring_capacity"`
	AnalysisWindow int         `yaml:"analysis_window"`

	// Signal sources
	TestSignal TestSignalConfig `yaml:"test_signal"`
	Noise      NoiseConfig      `yaml:"background_noise"`

	// Recording of the passthrough output
	Record     bool   `yaml:"record"`
	OutputFile string `yaml:"output_file"`

	// Observability fan-out
	MonitorEnabled bool          `yaml:"monitor_enabled"`
	MonitorPort    string        `yaml:"monitor_port"`
	UDPEnabled     bool          `yaml:"udp_enabled"`
	UDPTarget      string        `yaml:"udp_target"`
	UDPInterval    time.Duration `yaml:"udp_interval"`

	// Debug options
	Verbose bool   `yaml:"verbose"`
	Command string `yaml:"-"`
}

// NewConfig returns a Config populated with default values, the base
// onto which file and flag overrides are applied.
func NewConfig() *Config {
	return &Config{
		DeviceID:   DefaultDeviceID,
		SampleRate: DefaultSampleRate,
		LowLatency: DefaultLowLatency,
		Batch: BatchConfig{
			BatchSize:     DefaultBatchSize,
			BufferTimeout: DefaultBufferTimeout,
		},
		PoolSize:       DefaultPoolSize,
		RingCapacity:   DefaultRingCapacity,
		AnalysisWindow: DefaultAnalysisWindow,
		TestSignal: TestSignalConfig{
			Enabled:    false,
			Waveform:   WaveSine,
			Frequency:  440,
			Amplitude:  0.5,
			SampleRate: DefaultSampleRate,
		},
		Noise: NoiseConfig{
			Enabled: false,
			Level:   0.1,
			Type:    NoiseWhite,
		},
		MonitorEnabled: true,
		MonitorPort:    DefaultMonitorPort,
		UDPEnabled:     false,
		UDPTarget:      "127.0.0.1:9090",
		UDPInterval:    DefaultUDPInterval,
	}
}

// Validate checks the fully merged configuration. It normalizes the
// batch settings in place before checking so that flag values like
// --batch-size 1000 round up rather than fail.
func (c *Config) Validate() error {
	if c.SampleRate < MinSampleRate || c.SampleRate > MaxSampleRate {
		return fmt.Errorf("sample rate must be in [%d,%d], got %g", MinSampleRate, MaxSampleRate, c.SampleRate)
	}
	if err := c.Batch.Validate(); err != nil {
		return err
	}
	c.Batch = c.Batch.Normalize()
	if c.PoolSize < MinPoolSize || c.PoolSize > MaxPoolSize {
		return fmt.Errorf("pool size must be in [%d,%d], got %d", MinPoolSize, MaxPoolSize, c.PoolSize)
	}
	if !bitint.IsMultiple(c.RingCapacity, QuantumSize) {
		return fmt.Errorf("ring capacity must be a positive multiple of %d, got %d", QuantumSize, c.RingCapacity)
	}
	if !bitint.IsMultiple(c.AnalysisWindow, QuantumSize) {
		return fmt.Errorf("analysis window must be a positive multiple of %d, got %d", QuantumSize, c.AnalysisWindow)
	}
	if c.AnalysisWindow > c.RingCapacity {
		return fmt.Errorf("analysis window %d exceeds ring capacity %d", c.AnalysisWindow, c.RingCapacity)
	}
	if c.TestSignal.Enabled {
		if err := c.TestSignal.Validate(); err != nil {
			return err
		}
	}
	if c.Noise.Enabled {
		if err := c.Noise.Validate(); err != nil {
			return err
		}
	}
	return nil
}
