package keyer

import (
	"math"

	"github.com/maximewewer/remotecw/pkg/mathutil"
)

// LatencyStats is a read-only view of the estimator
type LatencyStats struct {
	Valid   bool    `json:"valid"`
	LastMs  uint32  `json:"last_ms"`
	MinMs   uint32  `json:"min_ms"`
	MaxMs   uint32  `json:"max_ms"`
	Samples int     `json:"window_samples"`
	MeanMs  float64 `json:"mean_ms"`
	Jitter  float64 `json:"jitter_ms"`
}

// LatencyEstimator derives one-way latency and the remote clock offset from
// probe replies. Replies are not deduplicated: a late reply overwrites the
// offset of a newer one.
type LatencyEstimator struct {
	valid  bool
	last   uint32
	min    uint32
	max    uint32
	offset uint32
	window *Window[uint32]
}

// NewLatencyEstimator creates an estimator with a jitter window of the given size
func NewLatencyEstimator(jitterWindow int) *LatencyEstimator {
	return &LatencyEstimator{
		min:    math.MaxUint32,
		window: NewWindow[uint32](jitterWindow),
	}
}

// Observe records a PP reply received at now for a probe sent at echo. It
// returns the half round trip.
func (e *LatencyEstimator) Observe(now, echo, remote uint32) uint32 {
	half := mathutil.WrapSub(now, echo) / 2

	e.valid = true
	e.last = half
	if half < e.min {
		e.min = half
	}
	if half > e.max {
		e.max = half
	}
	e.offset = mathutil.WrapSub(remote, echo)
	e.window.Add(half)

	return half
}

// Offset returns remote minus local in wrapping milliseconds, 0 before the first reply
func (e *LatencyEstimator) Offset() uint32 {
	return e.offset
}

// Valid reports whether at least one reply was observed
func (e *LatencyEstimator) Valid() bool {
	return e.valid
}

// Stats returns the current latency figures
func (e *LatencyEstimator) Stats() LatencyStats {
	s := LatencyStats{
		Valid:   e.valid,
		LastMs:  e.last,
		MaxMs:   e.max,
		Samples: e.window.Len(),
		MeanMs:  e.window.Mean(),
		Jitter:  e.window.StdDev(),
	}
	if e.valid {
		s.MinMs = e.min
	}
	return s
}
