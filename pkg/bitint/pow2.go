// SPDX-License-Identifier: MIT
/*
Package bitint provides integer sizing helpers for real-time audio
buffers. All operations are O(1), allocation-free and safe to call from
the audio callback.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the next power of 2 >= size. Exact powers of 2
// are preserved; non-positive inputs return 1. The size-1 subtraction is
// what keeps exact powers of 2 from doubling.
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}

	// 64-bit platforms (where int is 64-bit)
	if ^uint(0)>>63 == 0 {
		return int(1 << (bits.Len64(uint64(size - 1))))
	}

	// 32-bit platforms
	return int(1 << (bits.Len32(uint32(size - 1))))
}

// IsPowerOfTwo reports whether n is a positive power of 2.
// Powers of 2 have exactly one bit set, so n & (n-1) is zero only for them.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// NextMultiple rounds size up to the nearest positive multiple of step.
// Used to round batch sizes and ring capacities up to whole audio quanta.
// Non-positive sizes round to a single step.
func NextMultiple(size, step int) int {
	if step <= 0 {
		return size
	}
	if size <= 0 {
		return step
	}
	if rem := size % step; rem != 0 {
		return size + step - rem
	}
	return size
}

// IsMultiple reports whether n is a positive multiple of step.
func IsMultiple(n, step int) bool {
	return step > 0 && n > 0 && n%step == 0
}
