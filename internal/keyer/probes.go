package keyer

import (
	"iter"
	"sync"
	"time"

	"github.com/ddirect/container/ttlmap"
)

// ProbeOutcome classifies a PP reply against the probes in flight
type ProbeOutcome int

const (
	ProbeMatched ProbeOutcome = iota
	ProbeDuplicate
	ProbeUnsolicited
)

// String returns the metric label of the outcome
func (o ProbeOutcome) String() string {
	switch o {
	case ProbeMatched:
		return "matched"
	case ProbeDuplicate:
		return "duplicate"
	default:
		return "unsolicited"
	}
}

// probeInfo counts probes sharing one echo value. A keepalive and a
// calibration probe sent in the same millisecond share a key, so each reply
// answers one of them.
type probeInfo struct {
	Sent     int
	Answered int
}

// ProbeTracker remembers outgoing probes by their echoed timestamp until
// they are answered or expire. It only classifies replies; estimator updates
// are never blocked by it. Track, Match and the sweeps must all run on the
// same goroutine.
type ProbeTracker struct {
	inflight *ttlmap.Map[uint32, probeInfo]

	sweeps   chan func() int
	done     chan struct{}
	stopOnce sync.Once
}

// NewProbeTracker creates a tracker forgetting probes after ttl
func NewProbeTracker(ttl time.Duration) *ProbeTracker {
	interval := ttl / 10
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}

	t := &ProbeTracker{
		sweeps: make(chan func() int),
		done:   make(chan struct{}),
	}
	t.inflight = ttlmap.NewAsync[uint32, probeInfo](ttl, interval, t.deliver)

	return t
}

// deliver runs on the expiry timer. The batch is handed over as a closure so
// it is walked on the goroutine that owns the map; once stopped it is dropped.
func (t *ProbeTracker) deliver(seq iter.Seq[ttlmap.Item[uint32, probeInfo]]) {
	sweep := func() int {
		lost := 0
		for e := range seq {
			lost += e.Value.Sent - e.Value.Answered
		}
		return lost
	}

	select {
	case t.sweeps <- sweep:
	case <-t.done:
	}
}

// Track records a probe sent at local time echo
func (t *ProbeTracker) Track(echo uint32) {
	e, _ := t.inflight.GetOrCreate(echo)
	e.Value.Sent++
}

// Match classifies a reply echoing echo
func (t *ProbeTracker) Match(echo uint32) ProbeOutcome {
	e := t.inflight.Get(echo)
	if !e.Present() {
		return ProbeUnsolicited
	}
	if e.Value.Answered >= e.Value.Sent {
		return ProbeDuplicate
	}
	e.Value.Answered++
	return ProbeMatched
}

// Sweeps delivers expiry batches; calling one returns how many of its probes were never answered
func (t *ProbeTracker) Sweeps() <-chan func() int {
	return t.sweeps
}

// Stop drops pending and future expiry batches
func (t *ProbeTracker) Stop() {
	t.stopOnce.Do(func() { close(t.done) })
}
