// SPDX-License-Identifier: MIT
package ingest

import (
	"testing"
	"time"

	"github.com/mandersson1024/intonation-toy-sub002/internal/analysis"
	"github.com/mandersson1024/intonation-toy-sub002/internal/config"
	"github.com/mandersson1024/intonation-toy-sub002/internal/pool"
	"github.com/mandersson1024/intonation-toy-sub002/internal/ring"
	"github.com/mandersson1024/intonation-toy-sub002/internal/wire"
)

const batchCap = 1024

type fixture struct {
	ch    *wire.Channel
	rb    *ring.Buffer
	pool  *pool.Pool
	coord *Coordinator

	volumes []analysis.VolumeMeasurement
	events  []wire.Message
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{}

	var err error
	f.ch = wire.NewChannel(16, 16)
	f.rb, err = ring.New(4096, 1024, nil)
	if err != nil {
		t.Fatalf("ring.New failed: %v", err)
	}
	f.pool, err = pool.New(4, batchCap, 5*time.Second)
	if err != nil {
		t.Fatalf("pool.New failed: %v", err)
	}
	f.coord = New(f.ch, f.rb, batchCap,
		func(v analysis.VolumeMeasurement) { f.volumes = append(f.volumes, v) },
		func(m wire.Message) { f.events = append(f.events, m) },
	)
	return f
}

// makeBatch acquires and fills a batch the way the capture side would.
func (f *fixture) makeBatch(t *testing.T, seq uint64, quanta int, value float32) *wire.AudioBatch {
	t.Helper()
	b, ok := f.pool.Acquire(time.Now())
	if !ok {
		t.Fatal("pool exhausted in fixture")
	}
	for i := 0; i < quanta*config.QuantumSize; i++ {
		b.Data[i] = value
	}
	b.SampleCount = quanta * config.QuantumSize
	b.Seq = seq
	f.pool.MarkTransferred(b, time.Now())
	return (*wire.AudioBatch)(b)
}

// pendingReturns drains the control queue and collects buffer returns.
func (f *fixture) pendingReturns() []wire.ReturnBuffer {
	var out []wire.ReturnBuffer
	for {
		m, ok := f.ch.RecvControl()
		if !ok {
			return out
		}
		if r, isReturn := m.(wire.ReturnBuffer); isReturn {
			out = append(out, r)
		}
	}
}

func TestIngestSlicesBatchIntoQuanta(t *testing.T) {
	f := newFixture(t)
	m := f.makeBatch(t, 1, 8, 0.5)
	id := m.Pooled().ID()

	f.coord.handle(m)

	if st := f.coord.Stats(); st.BatchesIngested != 1 || st.QuantaIngested != 8 {
		t.Errorf("stats = %+v, want 1 batch / 8 quanta", st)
	}
	if st := f.rb.Stats(); st.TotalWritten != 8*config.QuantumSize {
		t.Errorf("ring TotalWritten = %d, want %d", st.TotalWritten, 8*config.QuantumSize)
	}
	if len(f.volumes) != 8 {
		t.Fatalf("volume callbacks = %d, want one per quantum", len(f.volumes))
	}
	if f.volumes[0].Peak != 0.5 {
		t.Errorf("metered peak = %v, want 0.5", f.volumes[0].Peak)
	}

	returns := f.pendingReturns()
	if len(returns) != 1 {
		t.Fatalf("buffer returns = %d, want 1", len(returns))
	}
	if returns[0].ID != id {
		t.Errorf("returned id = %d, want %d", returns[0].ID, id)
	}
	if returns[0].Mem == nil {
		t.Error("return carried no memory")
	}
}

func TestIngestDetectsSequenceGaps(t *testing.T) {
	f := newFixture(t)

	f.coord.handle(f.makeBatch(t, 1, 2, 0.1))
	f.coord.handle(f.makeBatch(t, 2, 2, 0.1))
	if st := f.coord.Stats(); st.SequenceGaps != 0 {
		t.Fatalf("SequenceGaps = %d for contiguous batches, want 0", st.SequenceGaps)
	}

	// Batches 3 and 4 were dropped on the capture side.
	f.coord.handle(f.makeBatch(t, 5, 2, 0.1))
	if st := f.coord.Stats(); st.SequenceGaps != 2 {
		t.Errorf("SequenceGaps = %d, want 2 missing batches counted", st.SequenceGaps)
	}
}

func TestInvalidBatchDroppedButMemoryReturned(t *testing.T) {
	f := newFixture(t)
	m := f.makeBatch(t, 1, 4, 0.1)
	m.SampleCount = config.QuantumSize + 7 // not a whole number of quanta

	f.coord.handle(m)

	st := f.coord.Stats()
	if st.ValidationFailures != 1 || st.BatchesIngested != 0 {
		t.Errorf("stats = %+v, want the batch rejected", st)
	}
	if rs := f.rb.Stats(); rs.TotalWritten != 0 {
		t.Errorf("invalid batch reached the ring: TotalWritten = %d", rs.TotalWritten)
	}
	// Even rejected memory goes back; leaking a slot would starve the pool.
	if returns := f.pendingReturns(); len(returns) != 1 {
		t.Errorf("buffer returns = %d, want 1", len(returns))
	}
}

func TestEventsFanOutToObserver(t *testing.T) {
	f := newFixture(t)

	f.coord.handle(wire.ProcessingStarted{})
	f.coord.handle(wire.ConfigApplied{Updated: wire.KindUpdateBatch})

	if len(f.events) != 2 {
		t.Fatalf("observed events = %d, want 2", len(f.events))
	}
	if f.events[0].Kind() != wire.KindProcessingStarted {
		t.Errorf("first event = %v, want processingStarted", f.events[0].Kind())
	}
}

type bogusMessage struct{}

func (bogusMessage) Kind() wire.Kind { return wire.KindInvalid }

func TestUnknownMessageRejected(t *testing.T) {
	f := newFixture(t)
	f.coord.handle(bogusMessage{})

	if st := f.coord.Stats(); st.ValidationFailures != 1 {
		t.Errorf("ValidationFailures = %d, want unknown kind rejected", st.ValidationFailures)
	}
	if len(f.events) != 0 {
		t.Error("unknown message reached the event observer")
	}
}

func TestVolumeConfidenceTracksLatestQuantum(t *testing.T) {
	f := newFixture(t)

	if got := f.coord.VolumeConfidence(); got != 0 {
		t.Fatalf("initial VolumeConfidence = %v, want 0", got)
	}

	f.coord.handle(f.makeBatch(t, 1, 1, 0.5))
	if got := f.coord.VolumeConfidence(); got != 1 {
		t.Errorf("VolumeConfidence = %v for a -6 dBFS quantum, want 1", got)
	}

	f.coord.handle(f.makeBatch(t, 2, 1, 0))
	if got := f.coord.VolumeConfidence(); got != 0 {
		t.Errorf("VolumeConfidence = %v after silence, want 0", got)
	}
}

func TestStartStopLifecycle(t *testing.T) {
	f := newFixture(t)
	f.ch.SendEvent(f.makeBatch(t, 1, 4, 0.2))

	f.coord.Start()
	deadline := time.After(2 * time.Second)
	for f.coord.Stats().BatchesIngested == 0 {
		select {
		case <-deadline:
			t.Fatal("drain goroutine never ingested the queued batch")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	f.coord.Stop()
	f.coord.Stop() // idempotent

	if st := f.coord.Stats(); st.BatchesIngested != 1 {
		t.Errorf("BatchesIngested = %d, want 1", st.BatchesIngested)
	}
}
