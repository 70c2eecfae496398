// Package clockcheck compares the local clock against an NTP server. Key
// times are only meaningful when both ends keep NTP time, so a drifting
// local clock is reported rather than corrected.
package clockcheck

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/beevik/ntp"
	"github.com/maximewewer/remotecw/internal/config"
	"github.com/maximewewer/remotecw/pkg/logger"
	"github.com/maximewewer/remotecw/pkg/mathutil"
	"github.com/maximewewer/remotecw/pkg/metrics"
	"golang.org/x/time/rate"
)

// QueryFunc performs one NTP query
type QueryFunc func(server string, opts ntp.QueryOptions) (*ntp.Response, error)

// Result is the outcome of the latest successful check
type Result struct {
	Server   string        `json:"server"`
	Offset   time.Duration `json:"offset"`
	RTT      time.Duration `json:"rtt"`
	Stratum  uint8         `json:"stratum"`
	Exceeded bool          `json:"exceeded"`
	Checked  time.Time     `json:"checked"`
}

// Checker periodically queries one NTP server
type Checker struct {
	server    string
	timeout   time.Duration
	interval  time.Duration
	maxOffset time.Duration
	limiter   *rate.Limiter
	query     QueryFunc
	metrics   *metrics.KeyerMetrics

	mu   sync.RWMutex
	last *Result
}

// New creates a checker for cfg. RateLimit bounds queries per minute.
func New(cfg config.ClockConfig, m *metrics.KeyerMetrics) *Checker {
	perMinute := cfg.RateLimit
	if perMinute < 1 {
		perMinute = 1
	}
	if m == nil {
		m = metrics.NewKeyerMetrics()
	}

	return &Checker{
		server:    cfg.NTPServer,
		timeout:   cfg.Timeout,
		interval:  cfg.Interval,
		maxOffset: cfg.MaxOffset,
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
		query:     ntp.QueryWithOptions,
		metrics:   m,
	}
}

// WithQuery replaces the NTP query, for tests
func (c *Checker) WithQuery(q QueryFunc) *Checker {
	c.query = q
	return c
}

// Check queries the server once
func (c *Checker) Check(ctx context.Context) (Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Result{}, fmt.Errorf("rate limit exceeded: %w", err)
	}

	type queryResult struct {
		response *ntp.Response
		err      error
	}

	// Buffered so the query goroutine never blocks after a cancel
	resultChan := make(chan queryResult, 1)
	go func() {
		resp, err := c.query(c.server, ntp.QueryOptions{Timeout: c.timeout})
		resultChan <- queryResult{response: resp, err: err}
	}()

	var qr queryResult
	select {
	case <-ctx.Done():
		return Result{}, fmt.Errorf("query context cancelled: %w", ctx.Err())
	case qr = <-resultChan:
	}

	if qr.err != nil {
		c.metrics.ClockQueriesTotal.WithLabelValues("failure").Inc()
		return Result{}, fmt.Errorf("ntp query to %s failed: %w", c.server, qr.err)
	}

	if err := qr.response.Validate(); err != nil {
		c.metrics.ClockQueriesTotal.WithLabelValues("invalid").Inc()
		return Result{}, fmt.Errorf("invalid ntp response from %s: %w", c.server, err)
	}

	res := Result{
		Server:   c.server,
		Offset:   qr.response.ClockOffset,
		RTT:      qr.response.RTT,
		Stratum:  qr.response.Stratum,
		Exceeded: mathutil.AbsDuration(qr.response.ClockOffset) > c.maxOffset,
		Checked:  time.Now(),
	}

	c.metrics.ClockQueriesTotal.WithLabelValues("success").Inc()
	c.metrics.LocalClockOffsetSeconds.Set(res.Offset.Seconds())
	c.metrics.LocalClockOffsetExceeded.Set(metrics.BoolToFloat(res.Exceeded))

	fields := map[string]interface{}{
		"server":     c.server,
		"offset":     res.Offset.String(),
		"rtt":        res.RTT.String(),
		"stratum":    res.Stratum,
		"max_offset": c.maxOffset.String(),
	}
	if res.Exceeded {
		logger.SafeWarn("clock", "Local clock is off, key timing will be skewed", fields)
	} else {
		logger.SafeDebug("clock", "Local clock checked", fields)
	}

	c.mu.Lock()
	c.last = &res
	c.mu.Unlock()

	return res, nil
}

// Last returns the latest successful result
func (c *Checker) Last() (Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return Result{}, false
	}
	return *c.last, true
}

// Run checks now and then every interval until ctx is cancelled
func (c *Checker) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		if _, err := c.Check(ctx); err != nil && ctx.Err() == nil {
			logger.Error("clock", "Clock check failed", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
