// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"github.com/mandersson1024/intonation-toy-sub002/pkg/bitint"
)

// NoPitch is the sentinel frequency reported when no periodicity is
// found in the analysis window.
const NoPitch = -1.0

// clarityThreshold is the minimum normalized autocorrelation peak
// accepted as a pitch.
const clarityThreshold = 0.3

// WindowFunc names the taper applied before analysis.
type WindowFunc string

const (
	WindowHamming  WindowFunc = "hamming"
	WindowBlackman WindowFunc = "blackman"
)

// PitchResult is the outcome of one window analysis.
type PitchResult struct {
	Frequency  float64 `json:"frequency"` // Hz, NoPitch when none found
	Clarity    float64 `json:"clarity"`   // normalized autocorrelation peak [0,1]
	Confidence float64 `json:"confidence"`
}

// PitchDetector finds the fundamental frequency of an analysis window
// via FFT autocorrelation. All buffers are pre-allocated; Detect is
// allocation-free and safe to run inline on buffer-filled events.
type PitchDetector struct {
	size       int
	sampleRate float64
	minLag     int
	maxLag     int

	fft    *fourier.FFT
	taper  []float64 // window coefficients
	padded []float64 // windowed input, zero-padded to 2·size
	coeff  []complex128
	power  []complex128
	ac     []float64 // autocorrelation
}

var _ WindowConsumer = (*PitchDetector)(nil)

// NewPitchDetector creates a detector for windows of size samples. The
// search range covers roughly the violin G string up to well above
// soprano range.
func NewPitchDetector(size int, sampleRate float64, win WindowFunc) (*PitchDetector, error) {
	if !bitint.IsPowerOfTwo(size) {
		return nil, fmt.Errorf("analysis window must be a power of 2, got %d", size)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be > 0, got %g", sampleRate)
	}

	taper := make([]float64, size)
	for i := range taper {
		taper[i] = 1
	}
	switch win {
	case WindowHamming:
		window.Hamming(taper)
	case WindowBlackman:
		window.Blackman(taper)
	default:
		return nil, fmt.Errorf("unknown window function %q", win)
	}

	const (
		minFreq = 60.0   // Hz
		maxFreq = 1500.0 // Hz
	)
	minLag := int(sampleRate / maxFreq)
	if minLag < 2 {
		minLag = 2
	}
	maxLag := int(sampleRate / minFreq)
	if maxLag > size-1 {
		maxLag = size - 1
	}

	// Zero padding to 2·size keeps the autocorrelation linear instead
	// of circular.
	padded := 2 * size
	return &PitchDetector{
		size:       size,
		sampleRate: sampleRate,
		minLag:     minLag,
		maxLag:     maxLag,
		fft:        fourier.NewFFT(padded),
		taper:      taper,
		padded:     make([]float64, padded),
		coeff:      make([]complex128, padded/2+1),
		power:      make([]complex128, padded/2+1),
		ac:         make([]float64, padded),
	}, nil
}

// WindowSize returns the analysis window size in samples.
func (d *PitchDetector) WindowSize() int { return d.size }

// Detect analyzes one window of the most recent samples. The window is
// tapered, autocorrelated via FFT, and the strongest normalized peak in
// the lag search range becomes the pitch. volumeConfidence scales the
// final confidence so that a clear but inaudibly quiet signal does not
// report certainty.
func (d *PitchDetector) Detect(samples []float32, volumeConfidence float64) PitchResult {
	none := PitchResult{Frequency: NoPitch}
	if len(samples) < d.size {
		return none
	}

	for i := 0; i < d.size; i++ {
		d.padded[i] = float64(samples[i]) * d.taper[i]
	}
	for i := d.size; i < len(d.padded); i++ {
		d.padded[i] = 0
	}

	// Wiener-Khinchin: autocorrelation is the inverse transform of the
	// power spectrum.
	d.fft.Coefficients(d.coeff, d.padded)
	for i, c := range d.coeff {
		re := real(c)
		im := imag(c)
		d.power[i] = complex(re*re+im*im, 0)
	}
	d.fft.Sequence(d.ac, d.power)

	r0 := d.ac[0]
	if r0 <= 1e-10 {
		return none
	}

	bestLag := 0
	bestVal := 0.0
	for lag := d.minLag; lag <= d.maxLag; lag++ {
		v := d.ac[lag] / r0
		if v > bestVal {
			bestVal = v
			bestLag = lag
		}
	}
	if bestLag == 0 || bestVal < clarityThreshold {
		return none
	}

	// Parabolic interpolation around the peak for sub-sample lag.
	lag := float64(bestLag)
	if bestLag > d.minLag && bestLag < d.maxLag {
		y0 := d.ac[bestLag-1] / r0
		y1 := bestVal
		y2 := d.ac[bestLag+1] / r0
		denom := y0 - 2*y1 + y2
		if denom != 0 {
			shift := 0.5 * (y0 - y2) / denom
			if shift > -1 && shift < 1 {
				lag += shift
			}
		}
	}

	clarity := bestVal
	if clarity > 1 {
		clarity = 1
	}
	return PitchResult{
		Frequency:  d.sampleRate / lag,
		Clarity:    clarity,
		Confidence: clarity * volumeConfidence,
	}
}
