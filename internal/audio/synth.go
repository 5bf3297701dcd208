// SPDX-License-Identifier: MIT
package audio

import (
	"math"

	"github.com/mandersson1024/intonation-toy-sub002/internal/config"
)

// Source selection and mixing are pure per-sample computations with no
// transport or timing concerns, so the real-time path stays testable in
// isolation. Everything here is allocation-free and branch-light.

// xorshift64 is a tiny allocation-free PRNG for noise synthesis. The
// global math/rand source takes a lock, which the audio callback must
// never do.
type xorshift64 struct {
	state uint64
}

func newXorshift64(seed uint64) xorshift64 {
	if seed == 0 {
		seed = 0x9e3779b97f4a7c15
	}
	return xorshift64{state: seed}
}

// next returns a uniform sample in [-1, 1).
func (x *xorshift64) next() float64 {
	x.state ^= x.state << 13
	x.state ^= x.state >> 7
	x.state ^= x.state << 17
	return float64(x.state>>11)/float64(1<<52) - 1
}

// pinkFilter is Paul Kellet's 7-pole pink noise approximation, flat to
// within ~0.05 dB above 9.2 Hz at 44.1 kHz.
type pinkFilter struct {
	b0, b1, b2, b3, b4, b5, b6 float64
}

func (p *pinkFilter) next(white float64) float64 {
	p.b0 = 0.99886*p.b0 + white*0.0555179
	p.b1 = 0.99332*p.b1 + white*0.0750759
	p.b2 = 0.96900*p.b2 + white*0.1538520
	p.b3 = 0.86650*p.b3 + white*0.3104856
	p.b4 = 0.55000*p.b4 + white*0.5329522
	p.b5 = -0.7616*p.b5 - white*0.0168980
	pink := p.b0 + p.b1 + p.b2 + p.b3 + p.b4 + p.b5 + p.b6 + white*0.5362
	p.b6 = white * 0.115926
	return pink * 0.11
}

// Synth renders the configured test signal one quantum at a time. The
// oscillator phase accumulates across quanta and wraps at 2π, so
// reconfiguration never causes a discontinuity larger than the waveform
// itself.
type Synth struct {
	cfg   config.TestSignalConfig
	phase float64
	rng   xorshift64
	pink  pinkFilter
}

// NewSynth creates a generator for cfg. The seed only varies noise
// waveforms; deterministic seeding keeps tests reproducible.
func NewSynth(cfg config.TestSignalConfig, seed uint64) *Synth {
	return &Synth{cfg: cfg, rng: newXorshift64(seed)}
}

// SetConfig swaps the signal configuration. Phase is preserved.
func (s *Synth) SetConfig(cfg config.TestSignalConfig) {
	s.cfg = cfg
}

// Config returns the active configuration.
func (s *Synth) Config() config.TestSignalConfig {
	return s.cfg
}

// Fill renders len(dst) samples of the configured waveform into dst.
// Sample n of a sine at frequency f is amplitude * sin(2π·f·n/rate)
// with the phase wrapped at 2π.
func (s *Synth) Fill(dst []float32) {
	amp := s.cfg.Amplitude
	inc := 2 * math.Pi * s.cfg.Frequency / s.cfg.SampleRate

	switch s.cfg.Waveform {
	case config.WaveSine:
		for i := range dst {
			dst[i] = float32(amp * math.Sin(s.phase))
			s.advance(inc)
		}
	case config.WaveSquare:
		for i := range dst {
			if s.phase < math.Pi {
				dst[i] = float32(amp)
			} else {
				dst[i] = float32(-amp)
			}
			s.advance(inc)
		}
	case config.WaveSawtooth:
		for i := range dst {
			dst[i] = float32(amp * (s.phase/math.Pi - 1))
			s.advance(inc)
		}
	case config.WaveTriangle:
		for i := range dst {
			// Rises 0→peak→0 over the first half period, mirrors below.
			v := 2*s.phase/math.Pi - 1 // [-1,3)
			if v > 1 {
				v = 2 - v
			}
			dst[i] = float32(amp * v)
			s.advance(inc)
		}
	case config.WaveWhiteNoise:
		for i := range dst {
			dst[i] = float32(amp * s.rng.next())
		}
	case config.WavePinkNoise:
		for i := range dst {
			dst[i] = float32(amp * s.pink.next(s.rng.next()))
		}
	default:
		for i := range dst {
			dst[i] = 0
		}
	}
}

func (s *Synth) advance(inc float64) {
	s.phase += inc
	if s.phase >= 2*math.Pi {
		s.phase -= 2 * math.Pi
	}
}

// NoiseGen renders the independent background-noise source that is
// mixed additively over whichever signal source is selected.
type NoiseGen struct {
	cfg  config.NoiseConfig
	rng  xorshift64
	pink pinkFilter
}

// NewNoiseGen creates a generator for cfg.
func NewNoiseGen(cfg config.NoiseConfig, seed uint64) *NoiseGen {
	return &NoiseGen{cfg: cfg, rng: newXorshift64(seed)}
}

// SetConfig swaps the noise configuration.
func (g *NoiseGen) SetConfig(cfg config.NoiseConfig) {
	g.cfg = cfg
}

// Config returns the active configuration.
func (g *NoiseGen) Config() config.NoiseConfig {
	return g.cfg
}

// AddTo mixes noise into dst additively. No-op when disabled.
func (g *NoiseGen) AddTo(dst []float32) {
	if !g.cfg.Enabled || g.cfg.Level == 0 {
		return
	}
	level := g.cfg.Level
	if g.cfg.Type == config.NoisePink {
		for i := range dst {
			dst[i] += float32(level * g.pink.next(g.rng.next()))
		}
		return
	}
	for i := range dst {
		dst[i] += float32(level * g.rng.next())
	}
}

// Clamp bounds every sample to [-1, 1] after mixing.
func Clamp(dst []float32) {
	for i, v := range dst {
		if v > 1 {
			dst[i] = 1
		} else if v < -1 {
			dst[i] = -1
		}
	}
}
