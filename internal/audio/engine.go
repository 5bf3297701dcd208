// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/mandersson1024/intonation-toy-sub002/internal/config"
	"github.com/mandersson1024/intonation-toy-sub002/internal/pool"
	"github.com/mandersson1024/intonation-toy-sub002/internal/wire"
)

// Engine owns the capture side: the duplex PortAudio stream, the buffer
// pool and the processor running inside the callback. It is the
// "real-time scheduler" half of the pipeline; the coordinator on the
// other end of the wire channel is the cooperative half.
type Engine struct {
	config    *config.Config
	ch        *wire.Channel
	pool      *pool.Pool
	processor *Processor

	inputDevice  *portaudio.DeviceInfo
	outputDevice *portaudio.DeviceInfo
	inputLatency time.Duration
	stream       *portaudio.Stream

	recorder *Recorder
}

// NewEngine resolves devices and pre-allocates the pool and processor.
// Slots are sized for the largest permitted batch so runtime batch-size
// updates never need the pool to grow.
func NewEngine(cfg *config.Config, ch *wire.Channel) (*Engine, error) {
	inputDevice, err := InputDevice(cfg.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("resolving input device: %w", err)
	}
	outputDevice, err := OutputDevice()
	if err != nil {
		return nil, fmt.Errorf("resolving output device: %w", err)
	}

	bufPool, err := pool.New(cfg.PoolSize, config.MaxBatchSize, config.DefaultSlotTimeout)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		config:       cfg,
		ch:           ch,
		pool:         bufPool,
		processor:    NewProcessor(cfg, ch, bufPool),
		inputDevice:  inputDevice,
		outputDevice: outputDevice,
		recorder:     NewRecorder(int(cfg.SampleRate)),
	}
	e.processor.SetRecorder(e.recorder)

	if cfg.LowLatency {
		e.inputLatency = inputDevice.DefaultLowInputLatency
	} else {
		e.inputLatency = inputDevice.DefaultHighInputLatency
	}

	return e, nil
}

// Start opens and starts the duplex stream. The first callback marks
// the start of the hot path; a ProcessorReady event announces the
// effective parameters to the coordinator.
func (e *Engine) Start() error {
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: 1,
			Device:   e.inputDevice,
			Latency:  e.inputLatency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 1,
			Device:   e.outputDevice,
			Latency:  e.inputLatency,
		},
		FramesPerBuffer: config.QuantumSize,
		SampleRate:      e.config.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, e.processor.ProcessQuantum)
	if err != nil {
		return fmt.Errorf("opening duplex stream: %w", err)
	}
	e.stream = stream

	if err := e.stream.Start(); err != nil {
		e.stream.Close()
		e.stream = nil
		return fmt.Errorf("starting stream: %w", err)
	}

	e.ch.SendEvent(wire.ProcessorReady{
		QuantumSize: config.QuantumSize,
		BatchSize:   e.processor.BatchConfig().BatchSize,
		PoolSize:    e.pool.Size(),
		SampleRate:  e.config.SampleRate,
	})

	return nil
}

// Stop stops and closes the stream.
func (e *Engine) Stop() error {
	if e.stream == nil {
		return nil
	}
	if err := e.stream.Stop(); err != nil {
		return err
	}
	if err := e.stream.Close(); err != nil {
		return err
	}
	e.stream = nil
	return nil
}

// StartRecording begins recording the passthrough output to filename.
func (e *Engine) StartRecording(filename string) error {
	return e.recorder.Start(filename)
}

// StopRecording finalizes the recording file.
func (e *Engine) StopRecording() error {
	return e.recorder.Stop()
}

// Pool exposes the buffer pool for stats snapshots.
func (e *Engine) Pool() *pool.Pool { return e.pool }

// Processor exposes the capture processor for stats snapshots.
func (e *Engine) Processor() *Processor { return e.processor }

// Close tears down the capture side and announces it on the wire.
func (e *Engine) Close() error {
	if err := e.recorder.Stop(); err != nil {
		return err
	}
	if err := e.Stop(); err != nil {
		return err
	}
	e.ch.SendEvent(wire.ProcessorDestroyed{})
	return nil
}
