// SPDX-License-Identifier: MIT
package audio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"

	"github.com/mandersson1024/intonation-toy-sub002/internal/config"
)

func TestRecorderRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	r := NewRecorder(48000)

	if err := r.Start(path); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	quantum := make([]float32, config.QuantumSize)
	for i := range quantum {
		quantum[i] = 0.5
	}
	for i := 0; i < 4; i++ {
		r.Write(quantum)
	}

	if err := r.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening recording: %v", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decoding recording: %v", err)
	}
	if dec.SampleRate != 48000 {
		t.Errorf("sample rate = %d, want 48000", dec.SampleRate)
	}
	if dec.NumChans != 1 {
		t.Errorf("channels = %d, want mono", dec.NumChans)
	}
	if got := len(buf.Data); got != 4*config.QuantumSize {
		t.Errorf("decoded %d samples, want %d", got, 4*config.QuantumSize)
	}
}

func TestRecorderStartWhileArmed(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(48000)

	if err := r.Start(filepath.Join(dir, "a.wav")); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := r.Start(filepath.Join(dir, "b.wav")); err == nil {
		t.Error("second Start while armed did not fail")
	}
	if err := r.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestRecorderStopIdempotent(t *testing.T) {
	r := NewRecorder(48000)
	if err := r.Stop(); err != nil {
		t.Fatalf("Stop on a disarmed recorder failed: %v", err)
	}

	if err := r.Start(filepath.Join(t.TempDir(), "c.wav")); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := r.Stop(); err != nil {
		t.Fatalf("first Stop failed: %v", err)
	}
	if err := r.Stop(); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}
}

func TestRecorderWriteWhileDisarmedIsNoOp(t *testing.T) {
	r := NewRecorder(48000)
	r.Write(make([]float32, config.QuantumSize)) // must not panic
}
