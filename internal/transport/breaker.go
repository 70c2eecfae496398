package transport

import (
	"time"

	"github.com/maximewewer/remotecw/internal/config"
	"github.com/maximewewer/remotecw/pkg/logger"
	"github.com/sony/gobreaker"
)

// BreakerConfig controls how quickly repeated connection failures fail fast
type BreakerConfig struct {
	// MaxRequests is the number of trial dials allowed while half-open
	MaxRequests uint32

	// Interval clears the failure counts while closed
	Interval time.Duration

	// Timeout is how long the breaker stays open before a trial dial
	Timeout time.Duration

	// ReadyToTrip decides whether the counts so far open the breaker
	ReadyToTrip func(counts gobreaker.Counts) bool
}

// minTripRequests is the number of dials needed before the failure ratio counts
const minTripRequests = 3

// NewBreakerConfig trips once the failure ratio reaches threshold
func NewBreakerConfig(maxRequests uint32, interval, timeout time.Duration, threshold float64) BreakerConfig {
	return BreakerConfig{
		MaxRequests: maxRequests,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= minTripRequests && failureRatio >= threshold
		},
	}
}

// BreakerConfigFrom converts the transport configuration
func BreakerConfigFrom(cfg config.CircuitBreakerConfig) BreakerConfig {
	return NewBreakerConfig(cfg.MaxRequests, cfg.Interval, cfg.Timeout, cfg.FailureThreshold)
}

func newBreaker(name string, cfg BreakerConfig) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: cfg.ReadyToTrip,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.SafeWarn("transport", "Connection circuit breaker changed state", map[string]interface{}{
				"remote": name,
				"from":   from.String(),
				"to":     to.String(),
			})
		},
	})
}
