// SPDX-License-Identifier: MIT
/*
Package wire defines the typed message protocol that crosses the
boundary between the real-time capture side and the cooperative ingest
side. There is no shared memory across this boundary: audio payloads
move by ownership transfer of pooled batch handles, and everything else
is a small control or status value.

Every message is validated on receipt. Unknown kinds are rejected with
an error, never silently accepted.
*/
package wire

import (
	"errors"
	"fmt"

	"github.com/mandersson1024/intonation-toy-sub002/internal/config"
	"github.com/mandersson1024/intonation-toy-sub002/internal/pool"
)

// Kind discriminates message types on the wire.
type Kind uint8

const (
	KindInvalid Kind = iota

	// Coordinator → processor (control)
	KindStartProcessing
	KindStopProcessing
	KindUpdateTestSignal
	KindUpdateNoise
	KindUpdateBatch
	KindGetStatus
	KindReturnBuffer

	// Processor → coordinator (events and status)
	KindProcessorReady
	KindProcessingStarted
	KindProcessingStopped
	KindAudioBatch
	KindProcessingError
	KindStatus
	KindConfigApplied
	KindProcessorDestroyed
)

func (k Kind) String() string {
	switch k {
	case KindStartProcessing:
		return "startProcessing"
	case KindStopProcessing:
		return "stopProcessing"
	case KindUpdateTestSignal:
		return "updateTestSignalConfig"
	case KindUpdateNoise:
		return "updateBackgroundNoiseConfig"
	case KindUpdateBatch:
		return "updateBatchConfig"
	case KindGetStatus:
		return "getStatus"
	case KindReturnBuffer:
		return "returnBuffer"
	case KindProcessorReady:
		return "processorReady"
	case KindProcessingStarted:
		return "processingStarted"
	case KindProcessingStopped:
		return "processingStopped"
	case KindAudioBatch:
		return "audioDataBatch"
	case KindProcessingError:
		return "processingError"
	case KindStatus:
		return "status"
	case KindConfigApplied:
		return "configApplied"
	case KindProcessorDestroyed:
		return "processorDestroyed"
	default:
		return "invalid"
	}
}

// Message is implemented by every protocol message.
type Message interface {
	Kind() Kind
}

// --- Control messages (coordinator → processor) ---

// StartProcessing activates batching and forwarding. Idempotent.
type StartProcessing struct{}

func (StartProcessing) Kind() Kind { return KindStartProcessing }

// StopProcessing deactivates forwarding. The in-flight partial batch is
// flushed, not discarded; passthrough output continues. Idempotent.
type StopProcessing struct{}

func (StopProcessing) Kind() Kind { return KindStopProcessing }

// UpdateTestSignal replaces the test-signal configuration. Rejected
// configurations leave the previous one in effect.
type UpdateTestSignal struct {
	Config config.TestSignalConfig
}

func (UpdateTestSignal) Kind() Kind { return KindUpdateTestSignal }

// UpdateNoise replaces the background-noise configuration.
type UpdateNoise struct {
	Config config.NoiseConfig
}

func (UpdateNoise) Kind() Kind { return KindUpdateNoise }

// UpdateBatch replaces the batching configuration. BatchSize is rounded
// up to a whole number of quanta on apply.
type UpdateBatch struct {
	Config config.BatchConfig
}

func (UpdateBatch) Kind() Kind { return KindUpdateBatch }

// GetStatus requests a Status event.
type GetStatus struct{}

func (GetStatus) Kind() Kind { return KindGetStatus }

// ReturnBuffer hands processed batch memory back to the pool by
// acquisition id for reuse.
type ReturnBuffer struct {
	ID  uint32
	Mem []float32
}

func (ReturnBuffer) Kind() Kind { return KindReturnBuffer }

// --- Events and status (processor → coordinator) ---

// ProcessorReady announces the processor's effective parameters once
// the stream is open.
type ProcessorReady struct {
	QuantumSize int
	BatchSize   int
	PoolSize    int
	SampleRate  float64
}

func (ProcessorReady) Kind() Kind { return KindProcessorReady }

// ProcessingStarted confirms forwarding is active.
type ProcessingStarted struct{}

func (ProcessingStarted) Kind() Kind { return KindProcessingStarted }

// ProcessingStopped confirms forwarding is inactive.
type ProcessingStopped struct{}

func (ProcessingStopped) Kind() Kind { return KindProcessingStopped }

// AudioBatch delivers one ownership-transferred batch. It is a defined
// type over pool.Batch rather than a wrapper struct so that sending one
// through the Message interface boxes only the pointer and allocates
// nothing on the real-time side. After a successful send the producer's
// handle is inert; the receiver owns the batch and is expected to
// return its memory by id when done.
type AudioBatch pool.Batch

func (*AudioBatch) Kind() Kind { return KindAudioBatch }

// Pooled returns the underlying pool batch handle.
func (b *AudioBatch) Pooled() *pool.Batch { return (*pool.Batch)(b) }

// ProcessingError reports a non-fatal fault from the real-time side.
type ProcessingError struct {
	Message string
	Code    string
}

func (ProcessingError) Kind() Kind { return KindProcessingError }

// Status answers GetStatus.
type Status struct {
	IsProcessing   bool
	QuantumCounter uint64
	DroppedBatches uint64
	Pool           pool.Stats
}

func (Status) Kind() Kind { return KindStatus }

// ConfigApplied acknowledges a configuration update, echoing what is in
// effect after the attempt. Err is empty on success; on failure the
// echoed config is the retained previous one.
type ConfigApplied struct {
	Updated    Kind // which update this acknowledges
	TestSignal config.TestSignalConfig
	Noise      config.NoiseConfig
	Batch      config.BatchConfig
	Err        string
}

func (ConfigApplied) Kind() Kind { return KindConfigApplied }

// ProcessorDestroyed announces final teardown of the capture side.
type ProcessorDestroyed struct{}

func (ProcessorDestroyed) Kind() Kind { return KindProcessorDestroyed }

// --- Validation ---

var (
	ErrUnknownKind = errors.New("unknown message kind")
	ErrNilBuffer   = errors.New("batch buffer is nil")
)

// ValidateBatch checks a received batch-delivery message before any of
// its payload is trusted. Wire data is never trusted blindly: a
// violation means the batch is logged and dropped, not processed.
// expectedCap is the pool's slot capacity the receiver expects every
// delivered buffer to have.
func ValidateBatch(m *AudioBatch, expectedCap int) error {
	if m == nil || m.Data == nil {
		return ErrNilBuffer
	}
	if len(m.Data) != expectedCap {
		return fmt.Errorf("buffer length %d, expected %d", len(m.Data), expectedCap)
	}
	if m.SampleCount <= 0 {
		return fmt.Errorf("sample count %d, expected > 0", m.SampleCount)
	}
	if m.SampleCount%config.QuantumSize != 0 {
		return fmt.Errorf("sample count %d is not a multiple of %d", m.SampleCount, config.QuantumSize)
	}
	if m.SampleCount > expectedCap {
		return fmt.Errorf("sample count %d exceeds batch capacity %d", m.SampleCount, expectedCap)
	}
	return nil
}

// ValidateControl checks that a control message is of a kind the
// processor accepts, and that carried configuration is in range.
func ValidateControl(m Message) error {
	switch msg := m.(type) {
	case StartProcessing, StopProcessing, GetStatus, ReturnBuffer:
		return nil
	case UpdateTestSignal:
		return msg.Config.Validate()
	case UpdateNoise:
		return msg.Config.Validate()
	case UpdateBatch:
		return msg.Config.Validate()
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKind, m.Kind())
	}
}
