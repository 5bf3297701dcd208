// SPDX-License-Identifier: MIT
package audio

import (
	"sync/atomic"
	"time"

	"github.com/mandersson1024/intonation-toy-sub002/internal/config"
	"github.com/mandersson1024/intonation-toy-sub002/internal/pool"
	"github.com/mandersson1024/intonation-toy-sub002/internal/wire"
)

// Processor is the real-time capture processor. ProcessQuantum runs
// once per 128-sample quantum inside the audio callback with a deadline
// of one quantum duration (~2.9 ms at 48 kHz): it must never block,
// allocate or log.
//
// All processor state is mutated only from the callback. Control
// messages are drained from the channel's bounded control queue at
// quantum boundaries, so configuration updates, buffer returns and
// stuck-slot reclamation all happen on this side without locks.
type Processor struct {
	ch   *wire.Channel
	pool *pool.Pool

	synth *Synth
	noise *NoiseGen

	batchCfg config.BatchConfig

	// staging accumulates quanta between flushes. The pooled slot is
	// acquired at flush time, so a slow round trip costs a dropped batch
	// rather than stalled accumulation.
	staging    []float32
	staged     int
	batchStart time.Time
	seq        uint64

	forwarding     atomic.Bool
	quantumCounter atomic.Uint64
	droppedBatches atomic.Uint64

	recorder *Recorder

	sampleRate float64
	now        func() time.Time
}

// NewProcessor builds a processor wired to ch and pool. cfg supplies
// the initial batch, test-signal and noise configuration.
func NewProcessor(cfg *config.Config, ch *wire.Channel, bufPool *pool.Pool) *Processor {
	return &Processor{
		ch:         ch,
		pool:       bufPool,
		synth:      NewSynth(cfg.TestSignal, uint64(time.Now().UnixNano())),
		noise:      NewNoiseGen(cfg.Noise, uint64(time.Now().UnixNano())+1),
		batchCfg:   cfg.Batch.Normalize(),
		staging:    make([]float32, bufPool.BatchCapacity()),
		sampleRate: cfg.SampleRate,
		now:        time.Now,
	}
}

// ProcessQuantum is the callback body. in holds one live mono quantum
// and out receives the processed audio; out is always written
// (mandatory passthrough), whether or not forwarding is active.
func (p *Processor) ProcessQuantum(in, out []float32) {
	now := p.now()
	p.quantumCounter.Add(1)

	p.drainControl(now)
	p.pool.MaybeReap(now)

	// Source selection: synthesized test signal replaces live input
	// entirely when enabled.
	if p.synth.Config().Enabled {
		p.synth.Fill(out)
	} else {
		n := copy(out, in)
		for ; n < len(out); n++ {
			out[n] = 0
		}
	}
	p.noise.AddTo(out)
	Clamp(out)

	if p.recorder != nil {
		p.recorder.Write(out)
	}

	if !p.forwarding.Load() {
		return
	}
	p.appendQuantum(out, now)
}

// appendQuantum stages one processed quantum and flushes when the batch
// is full or older than the buffer timeout, whichever comes first. The
// timeout bounds worst-case latency for partially filled batches.
func (p *Processor) appendQuantum(quantum []float32, now time.Time) {
	if p.staged == 0 {
		p.batchStart = now
	}
	if p.staged+len(quantum) <= len(p.staging) {
		copy(p.staging[p.staged:], quantum)
		p.staged += len(quantum)
	}

	full := p.staged >= p.batchCfg.BatchSize
	timedOut := p.staged > 0 && now.Sub(p.batchStart) >= p.batchCfg.BufferTimeout
	if full || timedOut {
		p.flush(now)
	}
}

// flush hands the staged samples to the pool and channel. Pool
// exhaustion or a full event queue drops the batch data and counts it;
// the callback deadline rules out blocking here.
func (p *Processor) flush(now time.Time) {
	staged := p.staged
	p.staged = 0
	if staged == 0 {
		return
	}

	b, ok := p.pool.Acquire(now)
	if !ok {
		p.droppedBatches.Add(1)
		return
	}
	copy(b.Data, p.staging[:staged])
	b.SampleCount = staged
	b.Captured = p.batchStart
	p.seq++
	b.Seq = p.seq

	if !p.ch.SendEvent((*wire.AudioBatch)(b)) {
		p.pool.Cancel(b, now)
		p.droppedBatches.Add(1)
		return
	}
	// Ownership has crossed the boundary; the local handle is inert
	// from here on and the slot gets replacement backing immediately.
	p.pool.MarkTransferred(b, now)
}

// drainControl applies every pending control message. Each operation is
// idempotent and acknowledged; invalid updates are rejected with an
// error acknowledgment and the previous configuration stays in effect.
func (p *Processor) drainControl(now time.Time) {
	for {
		m, ok := p.ch.RecvControl()
		if !ok {
			return
		}
		switch msg := m.(type) {
		case wire.StartProcessing:
			p.forwarding.Store(true)
			p.ch.SendEvent(wire.ProcessingStarted{})
		case wire.StopProcessing:
			if p.forwarding.Load() {
				// The batch in flight is flushed, not discarded.
				p.flush(now)
				p.forwarding.Store(false)
			}
			p.ch.SendEvent(wire.ProcessingStopped{})
		case wire.UpdateTestSignal:
			p.applyTestSignal(msg.Config)
		case wire.UpdateNoise:
			p.applyNoise(msg.Config)
		case wire.UpdateBatch:
			p.applyBatch(msg.Config, now)
		case wire.GetStatus:
			p.ch.SendEvent(wire.Status{
				IsProcessing:   p.forwarding.Load(),
				QuantumCounter: p.quantumCounter.Load(),
				DroppedBatches: p.droppedBatches.Load(),
				Pool:           p.pool.Stats(),
			})
		case wire.ReturnBuffer:
			p.pool.ReturnBuffer(msg.ID, msg.Mem, now)
		default:
			p.ch.SendEvent(wire.ProcessingError{
				Message: "unsupported control message " + m.Kind().String(),
				Code:    "unsupported_message",
			})
		}
	}
}

func (p *Processor) applyTestSignal(cfg config.TestSignalConfig) {
	errStr := ""
	if err := cfg.Validate(); err != nil {
		errStr = err.Error()
	} else {
		p.synth.SetConfig(cfg)
	}
	p.ch.SendEvent(wire.ConfigApplied{
		Updated:    wire.KindUpdateTestSignal,
		TestSignal: p.synth.Config(),
		Noise:      p.noise.Config(),
		Batch:      p.batchCfg,
		Err:        errStr,
	})
}

func (p *Processor) applyNoise(cfg config.NoiseConfig) {
	errStr := ""
	if err := cfg.Validate(); err != nil {
		errStr = err.Error()
	} else {
		p.noise.SetConfig(cfg)
	}
	p.ch.SendEvent(wire.ConfigApplied{
		Updated:    wire.KindUpdateNoise,
		TestSignal: p.synth.Config(),
		Noise:      p.noise.Config(),
		Batch:      p.batchCfg,
		Err:        errStr,
	})
}

func (p *Processor) applyBatch(cfg config.BatchConfig, now time.Time) {
	errStr := ""
	if err := cfg.Validate(); err != nil {
		errStr = err.Error()
	} else {
		cfg = cfg.Normalize()
		if cfg.BatchSize > len(p.staging) {
			cfg.BatchSize = len(p.staging)
		}
		// Shrinking below what is already staged flushes immediately.
		if p.staged >= cfg.BatchSize {
			p.flush(now)
		}
		p.batchCfg = cfg
	}
	p.ch.SendEvent(wire.ConfigApplied{
		Updated:    wire.KindUpdateBatch,
		TestSignal: p.synth.Config(),
		Noise:      p.noise.Config(),
		Batch:      p.batchCfg,
		Err:        errStr,
	})
}

// IsProcessing reports whether forwarding is active. Safe from any
// goroutine.
func (p *Processor) IsProcessing() bool { return p.forwarding.Load() }

// QuantumCount returns the number of quanta processed so far.
func (p *Processor) QuantumCount() uint64 { return p.quantumCounter.Load() }

// DroppedBatches returns the number of batches dropped on pool
// exhaustion or a full event queue.
func (p *Processor) DroppedBatches() uint64 { return p.droppedBatches.Load() }

// BatchConfig returns the batching configuration currently in effect.
// Only meaningful between callbacks; intended for startup and tests.
func (p *Processor) BatchConfig() config.BatchConfig { return p.batchCfg }

// SetRecorder attaches or detaches the passthrough recorder. Must not
// race the callback; attach before the stream starts or from the
// callback side.
func (p *Processor) SetRecorder(r *Recorder) { p.recorder = r }
