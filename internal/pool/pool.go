// SPDX-License-Identifier: MIT
/*
Package pool implements the transferable buffer pool that carries audio
batches from the real-time capture callback to the cooperative ingest
side.

The pool is a fixed arena: every slot, its backing memory and its batch
header are allocated at construction, and the steady state performs no
allocation. Slots move through an explicit ownership state machine:

	AVAILABLE --Acquire--> IN_FLIGHT --MarkTransferred--> PROCESSING
	PROCESSING --ReturnBuffer|timeout--> AVAILABLE
	IN_FLIGHT|PROCESSING --timeout--> TIMED_OUT --reclaim--> AVAILABLE

A slot's memory is owned by exactly one side at a time. MarkTransferred
installs replacement backing into the slot immediately, so the next
acquisition is never gated on the receiver's round trip. The replacement
comes from a per-slot spare refilled by ReturnBuffer; only a lost return
or a timeout reclamation falls back to the heap.

All slot mutation happens on the capture side: returns arrive as
messages drained at quantum boundaries and reclamation runs as a
periodic check from the same callback. The slot table therefore needs no
mutex; counters are atomics so stats snapshots are safe from any
goroutine.
*/
package pool

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/mandersson1024/intonation-toy-sub002/internal/config"
)

// SlotState tracks which side owns a slot's memory.
type SlotState uint8

const (
	StateAvailable SlotState = iota
	StateInFlight
	StateProcessing
	StateTimedOut
)

func (s SlotState) String() string {
	switch s {
	case StateAvailable:
		return "AVAILABLE"
	case StateInFlight:
		return "IN_FLIGHT"
	case StateProcessing:
		return "PROCESSING"
	case StateTimedOut:
		return "TIMED_OUT"
	default:
		return "UNKNOWN"
	}
}

// Batch is one pooled accumulation of whole quanta. The header is
// pooled alongside its backing memory; Acquire hands out the same
// header for a slot on every round trip. Only a timeout reclamation
// retires a header, leaving the stale holder's copy inert.
type Batch struct {
	slot int    // stable slot index
	id   uint32 // rotating acquisition id

	Data        []float32 // backing memory, len == batch capacity
	SampleCount int       // valid samples, always a multiple of the quantum
	Seq         uint64    // monotonic batch sequence, set by the producer
	Captured    time.Time // acquisition timestamp
}

// ID returns the batch's rotating acquisition id, used to match a
// returned buffer back to its slot.
func (b *Batch) ID() uint32 { return b.id }

// Slot returns the stable pool slot index backing this batch.
func (b *Batch) Slot() int { return b.slot }

// Append copies one quantum into the batch. Returns false without
// copying when the batch has no room for it.
func (b *Batch) Append(quantum []float32) bool {
	if b.SampleCount+len(quantum) > len(b.Data) {
		return false
	}
	copy(b.Data[b.SampleCount:], quantum)
	b.SampleCount += len(quantum)
	return true
}

// Full reports whether the batch cannot take another full quantum.
func (b *Batch) Full() bool {
	return len(b.Data)-b.SampleCount < config.QuantumSize
}

// Samples returns the valid prefix of the batch memory. Readers must
// never look past SampleCount; reused backing is not cleared.
func (b *Batch) Samples() []float32 {
	return b.Data[:b.SampleCount]
}

type slot struct {
	state      SlotState
	id         uint32
	since      time.Time // last state transition
	acquiredAt time.Time
	backing    []float32 // memory handed out by the next Acquire
	spare      []float32 // replacement refilled by ReturnBuffer
	batch      *Batch    // pooled header, replaced on reclamation
}

// Stats is an observability snapshot. None of these counters affect
// correctness.
type Stats struct {
	Size               int           `json:"size"`
	Available          int           `json:"available"`
	Acquired           uint64        `json:"acquired"`
	Transferred        uint64        `json:"transferred"`
	Exhausted          uint64        `json:"exhausted"`
	Timeouts           uint64        `json:"timeouts"`
	ValidationFailures uint64        `json:"validationFailures"`
	Returned           uint64        `json:"returned"`
	ReuseRate          float64       `json:"reuseRate"`
	AvgTurnover        time.Duration `json:"avgTurnoverNs"`
}

// Pool is the fixed slot arena. See the package comment for the
// ownership rules; methods other than Stats must be called from the
// capture side only.
type Pool struct {
	slots        []slot
	free         []int // stack of AVAILABLE slot indexes
	batchCap     int
	slotTimeout  time.Duration
	reapInterval time.Duration
	nextID       uint32
	lastReap     time.Time

	available          atomic.Int64
	acquired           atomic.Uint64
	transferred        atomic.Uint64
	exhausted          atomic.Uint64
	timeouts           atomic.Uint64
	validationFailures atomic.Uint64
	returned           atomic.Uint64
	reused             atomic.Uint64
	turnoverNanos      atomic.Int64
}

// New creates a pool of size slots, each backing one batch of batchCap
// samples. Slots stuck beyond slotTimeout are reclaimed by Reap.
func New(size, batchCap int, slotTimeout time.Duration) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("pool size must be > 0, got %d", size)
	}
	if batchCap <= 0 {
		return nil, fmt.Errorf("batch capacity must be > 0, got %d", batchCap)
	}
	if slotTimeout <= 0 {
		slotTimeout = 5 * time.Second
	}

	p := &Pool{
		slots:        make([]slot, size),
		free:         make([]int, 0, size),
		batchCap:     batchCap,
		slotTimeout:  slotTimeout,
		reapInterval: time.Second,
	}
	for i := range p.slots {
		p.slots[i].backing = make([]float32, batchCap)
		p.slots[i].spare = make([]float32, batchCap)
		p.slots[i].batch = new(Batch)
		p.free = append(p.free, i)
	}
	p.available.Store(int64(size))
	return p, nil
}

// BatchCapacity returns the per-batch sample capacity.
func (p *Pool) BatchCapacity() int { return p.batchCap }

// Size returns the number of slots.
func (p *Pool) Size() int { return len(p.slots) }

// Acquire pops a free slot and returns its batch header primed for
// writing. Returns (nil, false) when the pool is exhausted; the caller
// must drop its data, never wait. Zero allocations.
func (p *Pool) Acquire(now time.Time) (*Batch, bool) {
	n := len(p.free)
	if n == 0 {
		p.exhausted.Add(1)
		return nil, false
	}
	i := p.free[n-1]
	p.free = p.free[:n-1]
	p.available.Add(-1)

	s := &p.slots[i]
	p.nextID++
	s.state = StateInFlight
	s.id = p.nextID
	s.since = now
	s.acquiredAt = now

	b := s.batch
	b.slot = i
	b.id = s.id
	b.Data = s.backing
	b.SampleCount = 0
	b.Seq = 0
	b.Captured = now

	p.acquired.Add(1)
	return b, true
}

// MarkTransferred records that the batch's memory has crossed the
// boundary: the slot moves to PROCESSING and receives replacement
// backing immediately, so future acquisitions are not gated on the
// round trip. The caller must drop its *Batch reference after the send;
// the receiver owns it now. Allocation-free while returns keep the
// spare filled.
func (p *Pool) MarkTransferred(b *Batch, now time.Time) {
	if b == nil || b.slot < 0 || b.slot >= len(p.slots) {
		p.validationFailures.Add(1)
		return
	}
	s := &p.slots[b.slot]
	if s.state != StateInFlight || s.id != b.id {
		p.validationFailures.Add(1)
		return
	}
	s.state = StateProcessing
	s.since = now

	if s.spare != nil {
		s.backing = s.spare
		s.spare = nil
	} else {
		s.backing = make([]float32, p.batchCap)
	}
	p.transferred.Add(1)
}

// ReturnBuffer completes a round trip: the receiver hands processed
// memory back by acquisition id for reuse. Matched memory of the right
// capacity refills the slot's spare so the next transfer skips an
// allocation. An unmatched id falls back to releasing the oldest
// PROCESSING slot (compatibility path); with no slot in PROCESSING the
// return is counted as a validation failure and dropped.
func (p *Pool) ReturnBuffer(id uint32, mem []float32, now time.Time) bool {
	idx := -1
	for i := range p.slots {
		if p.slots[i].state == StateProcessing && p.slots[i].id == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		// Fallback: oldest slot still awaiting completion.
		var oldest time.Time
		for i := range p.slots {
			if p.slots[i].state != StateProcessing {
				continue
			}
			if idx < 0 || p.slots[i].since.Before(oldest) {
				idx = i
				oldest = p.slots[i].since
			}
		}
		if idx < 0 {
			p.validationFailures.Add(1)
			return false
		}
	}

	s := &p.slots[idx]
	if s.spare == nil && cap(mem) >= p.batchCap {
		s.spare = mem[:p.batchCap]
		p.reused.Add(1)
	}
	p.turnoverNanos.Add(now.Sub(s.acquiredAt).Nanoseconds())
	p.returned.Add(1)
	p.release(idx, now)
	return true
}

// Cancel releases an IN_FLIGHT batch whose transfer never happened
// (the send was dropped). The slot keeps its memory and returns to
// AVAILABLE immediately.
func (p *Pool) Cancel(b *Batch, now time.Time) {
	if b == nil || b.slot < 0 || b.slot >= len(p.slots) {
		return
	}
	s := &p.slots[b.slot]
	if s.state != StateInFlight || s.id != b.id {
		return
	}
	p.release(b.slot, now)
}

// release returns a slot to AVAILABLE and pushes it on the free stack.
func (p *Pool) release(i int, now time.Time) {
	s := &p.slots[i]
	s.state = StateAvailable
	s.since = now
	p.free = append(p.free, i)
	p.available.Add(1)
}

// Reap force-reclaims every slot stuck in IN_FLIGHT or PROCESSING
// beyond the slot timeout, bounding the damage from lost messages. A
// reclaimed slot gets fresh backing memory and a fresh batch header
// because the stale owner may still alias both; the holder keeps a
// private, inert header that the pool never mutates again. Returns the
// number of slots reclaimed.
func (p *Pool) Reap(now time.Time) int {
	reclaimed := 0
	for i := range p.slots {
		s := &p.slots[i]
		if s.state != StateInFlight && s.state != StateProcessing {
			continue
		}
		if now.Sub(s.since) < p.slotTimeout {
			continue
		}
		s.state = StateTimedOut
		s.backing = make([]float32, p.batchCap)
		s.batch = new(Batch)
		p.timeouts.Add(1)
		p.release(i, now)
		reclaimed++
	}
	return reclaimed
}

// MaybeReap runs Reap at most once per reap interval. Cheap enough to
// call once per quantum.
func (p *Pool) MaybeReap(now time.Time) int {
	if now.Sub(p.lastReap) < p.reapInterval {
		return 0
	}
	p.lastReap = now
	return p.Reap(now)
}

// SlotStateAt returns the state of slot i, for tests and diagnostics.
func (p *Pool) SlotStateAt(i int) SlotState {
	return p.slots[i].state
}

// Stats returns an observability snapshot. Safe to call from any
// goroutine.
func (p *Pool) Stats() Stats {
	st := Stats{
		Size:               len(p.slots),
		Available:          int(p.available.Load()),
		Acquired:           p.acquired.Load(),
		Transferred:        p.transferred.Load(),
		Exhausted:          p.exhausted.Load(),
		Timeouts:           p.timeouts.Load(),
		ValidationFailures: p.validationFailures.Load(),
		Returned:           p.returned.Load(),
	}
	if st.Returned > 0 {
		st.ReuseRate = float64(p.reused.Load()) / float64(st.Returned)
		st.AvgTurnover = time.Duration(p.turnoverNanos.Load() / int64(st.Returned))
	}
	return st
}
