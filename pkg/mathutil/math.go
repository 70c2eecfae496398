package mathutil

import (
	"time"

	"golang.org/x/exp/constraints"
)

// AbsDuration returns the absolute value of a duration
func AbsDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// Clamp clamps a value between lo and hi
func Clamp[T constraints.Ordered](val, lo, hi T) T {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}

// WrapSub returns a-b modulo 2^32. Millisecond timestamps on the wire wrap
// roughly every 49.7 days and must be subtracted this way.
func WrapSub(a, b uint32) uint32 {
	return a - b
}

// WrapAdd returns the sum of its arguments modulo 2^32
func WrapAdd(vals ...uint32) uint32 {
	var sum uint32
	for _, v := range vals {
		sum += v
	}
	return sum
}

// Signed reinterprets a wrapped 32-bit difference as a signed offset
func Signed(diff uint32) int64 {
	return int64(int32(diff))
}
