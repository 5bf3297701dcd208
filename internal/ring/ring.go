// SPDX-License-Identifier: MIT
/*
Package ring implements the fixed-capacity circular buffer between the
ingest coordinator and the analysis consumers.

The backing store is allocated once and never grows. Writes that exceed
free space evict exactly as many of the oldest samples as needed, a
silent-loss policy observable only through the overflow counter. Reads
are non-destructive sliding windows over the most recent samples, so
consumers with different window sizes and cadences never disturb each
other.
*/
package ring

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/mandersson1024/intonation-toy-sub002/internal/config"
)

// State describes the buffer's logical fill state.
type State uint8

const (
	StateEmpty State = iota
	StateFilling
	StateFull
	StateOverflow // full and evicting; cleared by the next read or reset
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "Empty"
	case StateFilling:
		return "Filling"
	case StateFull:
		return "Full"
	case StateOverflow:
		return "Overflow"
	default:
		return "Unknown"
	}
}

// Stats is an observability snapshot of the buffer.
type Stats struct {
	Capacity     int    `json:"capacity"`
	Size         int    `json:"size"`
	Overflow     uint64 `json:"overflow"`     // evicted samples
	TotalWritten uint64 `json:"totalWritten"` // samples ever written
	FilledEvents uint64 `json:"filledEvents"`
}

// Buffer is the circular sample buffer. It lives entirely on the
// cooperative side, so a mutex between the ingest writer and analysis
// readers is fine here; the real-time callback never touches it.
type Buffer struct {
	mu       sync.Mutex
	data     []float32
	writePos int // next write index
	size     int // occupied samples, never exceeds capacity
	state    State

	analysisWindow int
	sinceEvent     int    // unread samples accumulated toward the next fill event
	onFilled       func() // invoked outside the lock, once per full window

	overflow     atomic.Uint64
	totalWritten atomic.Uint64
	filledEvents atomic.Uint64
}

// New creates a buffer of the given capacity. Capacity and the analysis
// window must be whole numbers of quanta, and the window must fit the
// capacity. onFilled may be nil; when set it fires once for every
// analysisWindow samples written, driving downstream analysis without
// polling.
func New(capacity, analysisWindow int, onFilled func()) (*Buffer, error) {
	if capacity <= 0 || capacity%config.QuantumSize != 0 {
		return nil, fmt.Errorf("capacity must be a positive multiple of %d, got %d", config.QuantumSize, capacity)
	}
	if analysisWindow <= 0 || analysisWindow%config.QuantumSize != 0 {
		return nil, fmt.Errorf("analysis window must be a positive multiple of %d, got %d", config.QuantumSize, analysisWindow)
	}
	if analysisWindow > capacity {
		return nil, fmt.Errorf("analysis window %d exceeds capacity %d", analysisWindow, capacity)
	}
	return &Buffer{
		data:           make([]float32, capacity),
		state:          StateEmpty,
		analysisWindow: analysisWindow,
		onFilled:       onFilled,
	}, nil
}

// Capacity returns the fixed sample capacity.
func (b *Buffer) Capacity() int { return len(b.data) }

// Len returns the number of occupied samples.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// State returns the current fill state.
func (b *Buffer) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Write appends samples, evicting exactly len(samples) - free oldest
// samples first when free space is insufficient. Occupied size never
// exceeds capacity. Fill events accumulated by this write fire after
// the lock is released.
func (b *Buffer) Write(samples []float32) {
	n := len(samples)
	if n == 0 {
		return
	}

	b.mu.Lock()
	capLen := len(b.data)

	free := capLen - b.size
	if n > free {
		evict := n - free
		b.overflow.Add(uint64(evict))
		b.state = StateOverflow
		if n > capLen {
			// Incoming alone overruns the whole buffer: everything old
			// is gone and only the newest capacity samples survive.
			b.size = 0
			samples = samples[n-capLen:]
			n = capLen
		} else {
			b.size -= evict
		}
	}

	for _, s := range samples {
		b.data[b.writePos] = s
		b.writePos++
		if b.writePos == capLen {
			b.writePos = 0
		}
	}
	b.size += n

	if b.state != StateOverflow {
		if b.size == capLen {
			b.state = StateFull
		} else {
			b.state = StateFilling
		}
	}

	b.totalWritten.Add(uint64(n))
	b.sinceEvent += n
	fires := 0
	for b.sinceEvent >= b.analysisWindow {
		b.sinceEvent -= b.analysisWindow
		fires++
	}
	b.filledEvents.Add(uint64(fires))
	cb := b.onFilled
	b.mu.Unlock()

	if cb != nil {
		for ; fires > 0; fires-- {
			cb()
		}
	}
}

// ReadLatest copies the most recent len(dst) samples into dst without
// advancing any cursor. Two consecutive reads with no intervening write
// return identical data. Returns the number of samples copied, which is
// less than len(dst) only when the buffer holds fewer samples.
func (b *Buffer) ReadLatest(dst []float32) int {
	w := len(dst)
	if w == 0 {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if w > b.size {
		w = b.size
	}
	capLen := len(b.data)
	start := b.writePos - w
	if start < 0 {
		start += capLen
	}
	for i := 0; i < w; i++ {
		pos := start + i
		if pos >= capLen {
			pos -= capLen
		}
		dst[i] = b.data[pos]
	}

	// A completed read drains the overflow condition back to the plain
	// fill state.
	switch {
	case b.size == 0:
		b.state = StateEmpty
	case b.size == capLen:
		b.state = StateFull
	default:
		b.state = StateFilling
	}

	return w
}

// Reset discards all content and returns the buffer to Empty. Counters
// are preserved; they describe the buffer's lifetime.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writePos = 0
	b.size = 0
	b.sinceEvent = 0
	b.state = StateEmpty
}

// Stats returns an observability snapshot. Safe from any goroutine.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	size := b.size
	b.mu.Unlock()
	return Stats{
		Capacity:     len(b.data),
		Size:         size,
		Overflow:     b.overflow.Load(),
		TotalWritten: b.totalWritten.Load(),
		FilledEvents: b.filledEvents.Load(),
	}
}
