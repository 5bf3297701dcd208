// SPDX-License-Identifier: MIT
package audio

import (
	"math"
	"testing"

	"github.com/mandersson1024/intonation-toy-sub002/internal/config"
)

func sineConfig(freq, amp float64) config.TestSignalConfig {
	return config.TestSignalConfig{
		Enabled:    true,
		Waveform:   config.WaveSine,
		Frequency:  freq,
		Amplitude:  amp,
		SampleRate: 48000,
	}
}

func TestSynthSineFormula(t *testing.T) {
	cfg := sineConfig(440, 0.5)
	s := NewSynth(cfg, 1)

	dst := make([]float32, 4*config.QuantumSize)
	s.Fill(dst)

	// Sample n must equal amplitude * sin(2π·f·n/rate).
	for n, got := range dst {
		want := 0.5 * math.Sin(2*math.Pi*440*float64(n)/48000)
		if math.Abs(float64(got)-want) > 1e-5 {
			t.Fatalf("sample %d = %v, want %v", n, got, want)
		}
	}
}

func TestSynthPhaseContinuityAcrossQuanta(t *testing.T) {
	cfg := sineConfig(440, 0.5)
	whole := NewSynth(cfg, 1)
	split := NewSynth(cfg, 1)

	a := make([]float32, 2*config.QuantumSize)
	whole.Fill(a)

	b := make([]float32, 2*config.QuantumSize)
	split.Fill(b[:config.QuantumSize])
	split.Fill(b[config.QuantumSize:])

	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sample %d differs between whole and split render: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestSynthWaveformBounds(t *testing.T) {
	waveforms := []config.Waveform{
		config.WaveSine, config.WaveSquare, config.WaveSawtooth,
		config.WaveTriangle, config.WaveWhiteNoise, config.WavePinkNoise,
	}

	for _, w := range waveforms {
		t.Run(string(w), func(t *testing.T) {
			cfg := sineConfig(440, 1.0)
			cfg.Waveform = w
			s := NewSynth(cfg, 42)

			dst := make([]float32, 48000)
			s.Fill(dst)

			var peak float64
			for _, v := range dst {
				if a := math.Abs(float64(v)); a > peak {
					peak = a
				}
			}
			if peak > 1.1 {
				t.Errorf("peak = %v, generator output far outside unit range", peak)
			}
			if peak == 0 {
				t.Errorf("generator produced silence")
			}
		})
	}
}

func TestSynthSetConfigPreservesPhase(t *testing.T) {
	s := NewSynth(sineConfig(440, 0.5), 1)
	dst := make([]float32, config.QuantumSize)
	s.Fill(dst)

	// Amplitude change must not snap the phase back to zero.
	s.SetConfig(sineConfig(440, 0.25))
	s.Fill(dst)

	want := 0.25 * math.Sin(2*math.Pi*440*float64(config.QuantumSize)/48000)
	if math.Abs(float64(dst[0])-want) > 1e-5 {
		t.Errorf("first sample after reconfig = %v, want %v", dst[0], want)
	}
}

func TestNoiseGenDisabledIsNoOp(t *testing.T) {
	g := NewNoiseGen(config.NoiseConfig{Enabled: false, Level: 0.5, Type: config.NoiseWhite}, 1)
	dst := []float32{0.1, 0.2, 0.3}
	g.AddTo(dst)
	if dst[0] != 0.1 || dst[1] != 0.2 || dst[2] != 0.3 {
		t.Error("disabled noise generator modified the signal")
	}
}

func TestNoiseGenMixesAdditively(t *testing.T) {
	cfg := config.NoiseConfig{Enabled: true, Level: 0.1, Type: config.NoiseWhite}
	base := make([]float32, 1024)
	for i := range base {
		base[i] = 0.5
	}

	noise := make([]float32, 1024)
	NewNoiseGen(cfg, 7).AddTo(noise)

	mixed := make([]float32, 1024)
	for i := range mixed {
		mixed[i] = 0.5
	}
	NewNoiseGen(cfg, 7).AddTo(mixed)

	changed := false
	for i := range mixed {
		if mixed[i] != base[i] {
			changed = true
		}
		want := base[i] + noise[i]
		if math.Abs(float64(mixed[i]-want)) > 1e-6 {
			t.Fatalf("sample %d = %v, want additive mix %v", i, mixed[i], want)
		}
	}
	if !changed {
		t.Error("enabled noise generator left the signal untouched")
	}
}

func TestClamp(t *testing.T) {
	dst := []float32{-2, -1, -0.5, 0, 0.5, 1, 2}
	Clamp(dst)
	want := []float32{-1, -1, -0.5, 0, 0.5, 1, 1}
	for i := range dst {
		if dst[i] != want[i] {
			t.Errorf("Clamp[%d] = %v, want %v", i, dst[i], want[i])
		}
	}
}

func TestFillAllocationFree(t *testing.T) {
	s := NewSynth(sineConfig(440, 0.5), 1)
	g := NewNoiseGen(config.NoiseConfig{Enabled: true, Level: 0.1, Type: config.NoisePink}, 2)
	dst := make([]float32, config.QuantumSize)

	allocs := testing.AllocsPerRun(100, func() {
		s.Fill(dst)
		g.AddTo(dst)
		Clamp(dst)
	})
	if allocs != 0 {
		t.Errorf("render path allocations per quantum = %v, want 0", allocs)
	}
}
