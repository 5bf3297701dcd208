// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"testing"
)

func sineWindow(freq, amp, sampleRate float64, n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/sampleRate))
	}
	return s
}

func newTestDetector(t *testing.T) *PitchDetector {
	t.Helper()
	d, err := NewPitchDetector(2048, 48000, WindowHamming)
	if err != nil {
		t.Fatalf("NewPitchDetector failed: %v", err)
	}
	return d
}

func TestNewPitchDetectorValidation(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		sampleRate float64
		win        WindowFunc
		wantErr    bool
	}{
		{"valid hamming", 2048, 48000, WindowHamming, false},
		{"valid blackman", 1024, 44100, WindowBlackman, false},
		{"size not power of two", 2000, 48000, WindowHamming, true},
		{"zero sample rate", 2048, 0, WindowHamming, true},
		{"unknown window", 2048, 48000, "kaiser", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPitchDetector(tt.size, tt.sampleRate, tt.win)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewPitchDetector error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDetectPureTones(t *testing.T) {
	d := newTestDetector(t)

	for _, freq := range []float64{110, 220, 440, 880} {
		res := d.Detect(sineWindow(freq, 0.5, 48000, 2048), 1.0)
		if res.Frequency == NoPitch {
			t.Fatalf("no pitch found for a clean %g Hz tone", freq)
		}
		if rel := math.Abs(res.Frequency-freq) / freq; rel > 0.01 {
			t.Errorf("detected %g Hz for a %g Hz tone (%.2f%% off)", res.Frequency, freq, rel*100)
		}
		if res.Clarity < clarityThreshold {
			t.Errorf("clarity = %v for a clean tone, want >= %v", res.Clarity, clarityThreshold)
		}
	}
}

func TestDetectSilenceReportsNoPitch(t *testing.T) {
	d := newTestDetector(t)
	res := d.Detect(make([]float32, 2048), 1.0)

	if res.Frequency != NoPitch {
		t.Errorf("Frequency = %v for silence, want NoPitch", res.Frequency)
	}
	if res.Clarity != 0 || res.Confidence != 0 {
		t.Errorf("silence result = %+v, want zero clarity and confidence", res)
	}
}

func TestDetectShortWindowReportsNoPitch(t *testing.T) {
	d := newTestDetector(t)
	res := d.Detect(sineWindow(440, 0.5, 48000, 1024), 1.0)
	if res.Frequency != NoPitch {
		t.Errorf("Frequency = %v for a short window, want NoPitch", res.Frequency)
	}
}

func TestConfidenceScalesWithVolume(t *testing.T) {
	d := newTestDetector(t)
	window := sineWindow(440, 0.5, 48000, 2048)

	loud := d.Detect(window, 1.0)
	quiet := d.Detect(window, 0.25)

	if loud.Clarity != quiet.Clarity {
		t.Errorf("clarity changed with volume confidence: %v vs %v", loud.Clarity, quiet.Clarity)
	}
	want := quiet.Clarity * 0.25
	if math.Abs(quiet.Confidence-want) > 1e-12 {
		t.Errorf("Confidence = %v, want clarity*volumeConfidence = %v", quiet.Confidence, want)
	}
	if loud.Confidence <= quiet.Confidence {
		t.Errorf("confidence did not rise with volume: %v <= %v", loud.Confidence, quiet.Confidence)
	}
}

func TestDetectHarmonicRichSignal(t *testing.T) {
	d := newTestDetector(t)

	// Square-ish signal: fundamental plus odd harmonics.
	s := make([]float32, 2048)
	for i := range s {
		n := float64(i)
		v := math.Sin(2*math.Pi*220*n/48000) +
			math.Sin(2*math.Pi*660*n/48000)/3 +
			math.Sin(2*math.Pi*1100*n/48000)/5
		s[i] = float32(0.4 * v)
	}

	res := d.Detect(s, 1.0)
	if res.Frequency == NoPitch {
		t.Fatal("no pitch found for a harmonic-rich 220 Hz signal")
	}
	if rel := math.Abs(res.Frequency-220) / 220; rel > 0.02 {
		t.Errorf("detected %g Hz, want 220 Hz fundamental", res.Frequency)
	}
}

func TestDetectAllocationFree(t *testing.T) {
	d := newTestDetector(t)
	window := sineWindow(440, 0.5, 48000, 2048)

	allocs := testing.AllocsPerRun(20, func() {
		d.Detect(window, 1.0)
	})
	if allocs != 0 {
		t.Errorf("allocations per detection = %v, want 0", allocs)
	}
}
