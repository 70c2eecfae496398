package keyer

import "time"

// Clock supplies the local millisecond time used on the wire
type Clock interface {
	NowMillis() uint32
}

// SystemClock reads the wall clock, truncated to 32 bits
type SystemClock struct{}

// NowMillis returns Unix milliseconds modulo 2^32
func (SystemClock) NowMillis() uint32 {
	return uint32(time.Now().UnixMilli())
}
