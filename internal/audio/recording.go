// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"math"
	"os"
	"sync/atomic"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// maxConsecutiveWriteFailures disarms the recorder rather than letting
// a dead disk keep failing inside the callback.
const maxConsecutiveWriteFailures = 5

// Recorder captures the passthrough output to a WAV file. The armed
// flag is atomic so the callback's Write check is a single load; the
// remaining fields are only touched while disarmed (Start/Stop are cold
// path).
type Recorder struct {
	armed      atomic.Int32
	sampleRate int

	outputFile *os.File
	wavEncoder *wav.Encoder
	sampleBuf  *goaudio.IntBuffer // reusable format-conversion buffer

	writeFailures int
}

// NewRecorder creates a disarmed recorder for the given sample rate.
func NewRecorder(sampleRate int) *Recorder {
	return &Recorder{sampleRate: sampleRate}
}

// Start creates filename and arms the recorder. Mono, 32-bit.
func (r *Recorder) Start(filename string) error {
	if r.armed.Load() == 1 {
		return fmt.Errorf("already recording")
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	r.outputFile = file
	r.wavEncoder = wav.NewEncoder(file, r.sampleRate, 32, 1, 1)
	r.sampleBuf = &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: 1,
			SampleRate:  r.sampleRate,
		},
		Data: make([]int, 0),
	}
	r.writeFailures = 0

	r.armed.Store(1)
	return nil
}

// Write appends one quantum of float samples to the file. Called from
// the audio callback; errors become a failure count, never a panic or a
// log line, and a persistent failure disarms recording.
func (r *Recorder) Write(samples []float32) {
	if r.armed.Load() != 1 || r.wavEncoder == nil {
		return
	}

	if cap(r.sampleBuf.Data) < len(samples) {
		r.sampleBuf.Data = make([]int, len(samples))
	}
	r.sampleBuf.Data = r.sampleBuf.Data[:len(samples)]
	for i, s := range samples {
		r.sampleBuf.Data[i] = int(float64(s) * float64(math.MaxInt32))
	}

	if err := r.wavEncoder.Write(r.sampleBuf); err != nil {
		r.writeFailures++
		if r.writeFailures >= maxConsecutiveWriteFailures {
			r.armed.Store(0)
		}
		return
	}
	r.writeFailures = 0
}

// Stop disarms the recorder and finalizes the file. Idempotent.
func (r *Recorder) Stop() error {
	if r.armed.Swap(0) == 0 && r.wavEncoder == nil {
		return nil
	}

	if r.wavEncoder != nil {
		if err := r.wavEncoder.Close(); err != nil {
			return err
		}
		r.wavEncoder = nil
	}
	if r.outputFile != nil {
		if err := r.outputFile.Close(); err != nil {
			return err
		}
		r.outputFile = nil
	}
	return nil
}
