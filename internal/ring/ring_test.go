// SPDX-License-Identifier: MIT
package ring

import (
	"testing"

	"github.com/mandersson1024/intonation-toy-sub002/internal/config"
)

const q = config.QuantumSize

// quantum builds one quantum whose samples all carry the given value,
// so eviction order is visible in reads.
func quantum(v float32) []float32 {
	s := make([]float32, q)
	for i := range s {
		s[i] = v
	}
	return s
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		window   int
		wantErr  bool
	}{
		{"valid", 8 * q, 2 * q, false},
		{"zero capacity", 0, q, true},
		{"capacity not quantum aligned", 8*q + 1, q, true},
		{"window not quantum aligned", 8 * q, q + 1, true},
		{"window exceeds capacity", 2 * q, 4 * q, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.capacity, tt.window, nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("New(%d, %d) error = %v, wantErr %v", tt.capacity, tt.window, err, tt.wantErr)
			}
		})
	}
}

func TestStateProgression(t *testing.T) {
	b, err := New(2*q, q, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if b.State() != StateEmpty {
		t.Fatalf("initial state = %v, want Empty", b.State())
	}

	b.Write(quantum(1))
	if b.State() != StateFilling {
		t.Errorf("after partial write state = %v, want Filling", b.State())
	}

	b.Write(quantum(2))
	if b.State() != StateFull {
		t.Errorf("after filling write state = %v, want Full", b.State())
	}

	b.Write(quantum(3))
	if b.State() != StateOverflow {
		t.Errorf("after overflowing write state = %v, want Overflow", b.State())
	}

	// A read drains the overflow condition.
	dst := make([]float32, q)
	b.ReadLatest(dst)
	if b.State() != StateFull {
		t.Errorf("after read state = %v, want Full", b.State())
	}
}

func TestStateReflectsFillLevelAfterRead(t *testing.T) {
	b, err := New(4*q, q, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	dst := make([]float32, q)

	b.ReadLatest(dst)
	if b.State() != StateEmpty {
		t.Errorf("state after empty read = %v, want Empty", b.State())
	}

	b.Write(quantum(1))
	b.ReadLatest(dst)
	if b.State() != StateFilling {
		t.Errorf("state after mid-fill read = %v, want Filling", b.State())
	}

	for i := 2; i <= 4; i++ {
		b.Write(quantum(float32(i)))
	}
	b.ReadLatest(dst)
	if b.State() != StateFull {
		t.Errorf("state after full read = %v, want Full", b.State())
	}
}

func TestExactEviction(t *testing.T) {
	b, err := New(4*q, q, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for i := 1; i <= 4; i++ {
		b.Write(quantum(float32(i)))
	}
	// One more quantum evicts exactly one quantum of the oldest samples.
	b.Write(quantum(5))

	if got := b.Len(); got != 4*q {
		t.Fatalf("Len = %d, want %d", got, 4*q)
	}
	if st := b.Stats(); st.Overflow != q {
		t.Errorf("Overflow = %d, want %d", st.Overflow, q)
	}

	dst := make([]float32, 4*q)
	if n := b.ReadLatest(dst); n != 4*q {
		t.Fatalf("ReadLatest = %d, want %d", n, 4*q)
	}
	if dst[0] != 2 {
		t.Errorf("oldest surviving sample = %v, want 2 (quantum 1 evicted)", dst[0])
	}
	if dst[4*q-1] != 5 {
		t.Errorf("newest sample = %v, want 5", dst[4*q-1])
	}
}

func TestWriteLargerThanCapacity(t *testing.T) {
	b, err := New(2*q, q, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	b.Write(quantum(1))

	// A single write of 3 quanta into a 2-quantum buffer keeps only the
	// newest 2 quanta of the incoming data.
	big := make([]float32, 3*q)
	for i := range big {
		big[i] = float32(2 + i/q)
	}
	b.Write(big)

	if got := b.Len(); got != 2*q {
		t.Fatalf("Len = %d, want %d", got, 2*q)
	}
	dst := make([]float32, 2*q)
	b.ReadLatest(dst)
	if dst[0] != 3 || dst[2*q-1] != 4 {
		t.Errorf("window = [%v..%v], want [3..4]", dst[0], dst[2*q-1])
	}
	if st := b.Stats(); st.Overflow != 2*q {
		t.Errorf("Overflow = %d, want %d", st.Overflow, 2*q)
	}
}

func TestReadLatestNonDestructive(t *testing.T) {
	b, err := New(4*q, q, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	b.Write(quantum(1))
	b.Write(quantum(2))

	a := make([]float32, 2*q)
	c := make([]float32, 2*q)
	if n := b.ReadLatest(a); n != 2*q {
		t.Fatalf("first read = %d, want %d", n, 2*q)
	}
	if n := b.ReadLatest(c); n != 2*q {
		t.Fatalf("second read = %d, want %d", n, 2*q)
	}
	for i := range a {
		if a[i] != c[i] {
			t.Fatalf("reads differ at %d: %v vs %v", i, a[i], c[i])
		}
	}
	if got := b.Len(); got != 2*q {
		t.Errorf("Len after reads = %d, want %d (reads must not consume)", got, 2*q)
	}
}

func TestReadLatestShortBuffer(t *testing.T) {
	b, err := New(4*q, q, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	b.Write(quantum(7))

	dst := make([]float32, 2*q)
	if n := b.ReadLatest(dst); n != q {
		t.Errorf("ReadLatest = %d, want %d when buffer holds one quantum", n, q)
	}
}

func TestDifferentWindowSizesSeeSameTail(t *testing.T) {
	b, err := New(8*q, q, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	for i := 1; i <= 6; i++ {
		b.Write(quantum(float32(i)))
	}

	small := make([]float32, q)
	large := make([]float32, 3*q)
	b.ReadLatest(small)
	b.ReadLatest(large)

	// Both windows end at the newest sample.
	if small[q-1] != 6 || large[3*q-1] != 6 {
		t.Fatalf("windows do not end at the newest sample: %v, %v", small[q-1], large[3*q-1])
	}
	if large[0] != 4 {
		t.Errorf("large window start = %v, want 4", large[0])
	}
}

func TestFillEvents(t *testing.T) {
	fired := 0
	b, err := New(8*q, 2*q, func() { fired++ })
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	b.Write(quantum(1))
	if fired != 0 {
		t.Fatalf("event fired after half a window")
	}
	b.Write(quantum(2))
	if fired != 1 {
		t.Fatalf("fired = %d after one window, want 1", fired)
	}

	// A single write spanning two windows fires twice.
	big := make([]float32, 4*q)
	b.Write(big)
	if fired != 3 {
		t.Errorf("fired = %d after three windows, want 3", fired)
	}
	if st := b.Stats(); st.FilledEvents != 3 {
		t.Errorf("FilledEvents = %d, want 3", st.FilledEvents)
	}
}

func TestReset(t *testing.T) {
	b, err := New(4*q, q, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	for i := 0; i < 6; i++ {
		b.Write(quantum(float32(i)))
	}
	b.Reset()

	if b.State() != StateEmpty || b.Len() != 0 {
		t.Errorf("after Reset: state=%v len=%d, want Empty/0", b.State(), b.Len())
	}
	// Lifetime counters survive a reset.
	if st := b.Stats(); st.TotalWritten != 6*q {
		t.Errorf("TotalWritten = %d, want %d", st.TotalWritten, 6*q)
	}
}
