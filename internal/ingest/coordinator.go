// SPDX-License-Identifier: MIT
/*
Package ingest implements the cooperative-side receiver of the
pipeline. The coordinator drains the wire channel in arrival order,
validates every batch before trusting it, slices batches into quanta
for the ring buffer and the direct volume callback, and returns batch
memory to the pool by id.
*/
package ingest

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/mandersson1024/intonation-toy-sub002/internal/analysis"
	"github.com/mandersson1024/intonation-toy-sub002/internal/config"
	applog "github.com/mandersson1024/intonation-toy-sub002/internal/log"
	"github.com/mandersson1024/intonation-toy-sub002/internal/ring"
	"github.com/mandersson1024/intonation-toy-sub002/internal/wire"
)

// VolumeFunc receives the per-quantum metering result on the direct
// (non-buffered) path, before the quantum is visible in the ring.
type VolumeFunc func(analysis.VolumeMeasurement)

// EventFunc receives every non-batch event from the processor (ready,
// acks, status, errors) for fan-out to observers.
type EventFunc func(wire.Message)

// Stats counts coordinator-side observations. None affect correctness.
type Stats struct {
	BatchesIngested    uint64 `json:"batchesIngested"`
	QuantaIngested     uint64 `json:"quantaIngested"`
	SequenceGaps       uint64 `json:"sequenceGaps"` // batches missing from the sequence
	ValidationFailures uint64 `json:"validationFailures"`
}

// Coordinator owns the event-drain goroutine. Batches are processed
// strictly in arrival order; a sequence gap is detected and counted but
// not recovered, since the dropped audio no longer exists.
type Coordinator struct {
	ch       *wire.Channel
	ring     *ring.Buffer
	volume   *analysis.VolumeDetector
	onVolume VolumeFunc
	onEvent  EventFunc

	expectedCap int // pool slot capacity every batch buffer must have
	lastSeq     uint64

	batchesIngested    atomic.Uint64
	quantaIngested     atomic.Uint64
	sequenceGaps       atomic.Uint64
	validationFailures atomic.Uint64

	volumeConfidence atomic.Uint64 // last confidence, as math.Float64bits

	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a coordinator reading from ch and writing into rb.
// expectedCap is the pool's slot capacity; every delivered buffer must
// match it exactly. onVolume and onEvent may be nil.
func New(ch *wire.Channel, rb *ring.Buffer, expectedCap int, onVolume VolumeFunc, onEvent EventFunc) *Coordinator {
	return &Coordinator{
		ch:          ch,
		ring:        rb,
		volume:      analysis.NewVolumeDetector(),
		onVolume:    onVolume,
		onEvent:     onEvent,
		expectedCap: expectedCap,
		doneChan:    make(chan struct{}),
	}
}

// Start launches the drain goroutine.
func (c *Coordinator) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.doneChan:
				return
			case m := <-c.ch.Events():
				c.handle(m)
			}
		}
	}()
}

// Stop halts the drain goroutine and waits for it.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() { close(c.doneChan) })
	c.wg.Wait()
}

// handle dispatches one message. Unknown kinds are rejected loudly.
func (c *Coordinator) handle(m wire.Message) {
	switch msg := m.(type) {
	case *wire.AudioBatch:
		c.ingest(msg)
	case wire.ProcessorReady, wire.ProcessingStarted, wire.ProcessingStopped,
		wire.ProcessingError, wire.Status, wire.ConfigApplied, wire.ProcessorDestroyed:
		if c.onEvent != nil {
			c.onEvent(m)
		}
	default:
		c.validationFailures.Add(1)
		applog.Errorf("Ingest: rejecting unknown message kind %q", m.Kind())
	}
}

// ingest validates and consumes one delivered batch, then returns its
// memory to the pool for reuse.
func (c *Coordinator) ingest(msg *wire.AudioBatch) {
	b := msg.Pooled()

	if err := wire.ValidateBatch(msg, c.expectedCap); err != nil {
		c.validationFailures.Add(1)
		applog.Warnf("Ingest: dropping invalid batch: %v", err)
		if b != nil && b.Data != nil {
			c.returnMemory(b.ID(), b.Data)
		}
		return
	}

	if c.lastSeq != 0 && b.Seq > c.lastSeq+1 {
		c.sequenceGaps.Add(b.Seq - c.lastSeq - 1)
	}
	c.lastSeq = b.Seq

	// Slice the batch into quanta: each goes to the ring for windowed
	// analysis and to the direct volume path for metering latency.
	samples := b.Samples()
	for off := 0; off < len(samples); off += config.QuantumSize {
		quantum := samples[off : off+config.QuantumSize]
		c.ring.Write(quantum)
		meas := c.volume.Process(quantum)
		c.volumeConfidence.Store(math.Float64bits(meas.Confidence))
		if c.onVolume != nil {
			c.onVolume(meas)
		}
		c.quantaIngested.Add(1)
	}
	c.batchesIngested.Add(1)

	c.returnMemory(b.ID(), b.Data)
}

// returnMemory completes the round trip for one transferred buffer.
func (c *Coordinator) returnMemory(id uint32, mem []float32) {
	c.ch.SendControl(wire.ReturnBuffer{ID: id, Mem: mem})
}

// VolumeConfidence returns the most recent per-quantum confidence, for
// combination with pitch clarity.
func (c *Coordinator) VolumeConfidence() float64 {
	return math.Float64frombits(c.volumeConfidence.Load())
}

// Stats returns an observability snapshot. Safe from any goroutine.
func (c *Coordinator) Stats() Stats {
	return Stats{
		BatchesIngested:    c.batchesIngested.Load(),
		QuantaIngested:     c.quantaIngested.Load(),
		SequenceGaps:       c.sequenceGaps.Load(),
		ValidationFailures: c.validationFailures.Load(),
	}
}
