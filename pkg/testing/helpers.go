package testutil

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/beevik/ntp"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// CreateClockResponse creates a synchronized NTP response with the given local clock offset
func CreateClockResponse(offset time.Duration) *ntp.Response {
	now := time.Now()
	return &ntp.Response{
		Time:           now.Add(offset),
		ClockOffset:    offset,
		RTT:            20 * time.Millisecond,
		Precision:      time.Microsecond,
		Stratum:        2,
		ReferenceTime:  now.Add(-1 * time.Minute),
		RootDelay:      5 * time.Millisecond,
		RootDispersion: 2 * time.Millisecond,
		RootDistance:   7 * time.Millisecond,
		Leap:           ntp.LeapNoWarning,
		Poll:           6,
	}
}

// ManualClock is a millisecond clock driven by the test
type ManualClock struct {
	mu sync.Mutex
	ms uint32
}

// NewManualClock returns a clock reading start
func NewManualClock(start uint32) *ManualClock {
	return &ManualClock{ms: start}
}

// NowMillis returns the current reading
func (c *ManualClock) NowMillis() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ms
}

// Set moves the clock to ms
func (c *ManualClock) Set(ms uint32) {
	c.mu.Lock()
	c.ms = ms
	c.mu.Unlock()
}

// Advance moves the clock forward, wrapping at 2^32
func (c *ManualClock) Advance(ms uint32) {
	c.mu.Lock()
	c.ms += ms
	c.mu.Unlock()
}

// AssertMetricValue validates a Prometheus metric value
func AssertMetricValue(t *testing.T, registry *prometheus.Registry, metricName string, labels map[string]string, expected float64) {
	t.Helper()

	metrics, err := registry.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	for _, mf := range metrics {
		if mf.GetName() != metricName {
			continue
		}

		for _, m := range mf.GetMetric() {
			if !labelsMatch(m.GetLabel(), labels) {
				continue
			}

			var value float64
			switch mf.GetType() {
			case dto.MetricType_GAUGE:
				value = m.GetGauge().GetValue()
			case dto.MetricType_COUNTER:
				value = m.GetCounter().GetValue()
			case dto.MetricType_HISTOGRAM:
				value = m.GetHistogram().GetSampleSum()
			default:
				t.Fatalf("Unsupported metric type: %v", mf.GetType())
			}

			if value != expected {
				t.Errorf("Metric %s with labels %v: expected %f, got %f", metricName, labels, expected, value)
			}
			return
		}
	}

	t.Errorf("Metric %s with labels %v not found", metricName, labels)
}

// AssertMetricExists checks if a metric exists with given labels
func AssertMetricExists(t *testing.T, registry *prometheus.Registry, metricName string, labels map[string]string) {
	t.Helper()

	metrics, err := registry.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	for _, mf := range metrics {
		if mf.GetName() != metricName {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m.GetLabel(), labels) {
				return
			}
		}
	}

	t.Errorf("Metric %s with labels %v not found", metricName, labels)
}

// labelsMatch checks if metric labels match expected labels
func labelsMatch(metricLabels []*dto.LabelPair, expected map[string]string) bool {
	if len(metricLabels) != len(expected) {
		return false
	}

	for _, label := range metricLabels {
		expectedValue, exists := expected[label.GetName()]
		if !exists || expectedValue != label.GetValue() {
			return false
		}
	}

	return true
}

// WaitForCondition polls condition until it holds or timeout elapses
func WaitForCondition(t *testing.T, condition func() bool, timeout time.Duration, message string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for !condition() {
		<-ticker.C
		if time.Now().After(deadline) {
			t.Fatalf("Timeout waiting for condition: %s", message)
		}
	}
}

// NewTestHTTPServer creates a test HTTP server closed at test cleanup
func NewTestHTTPServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return server
}

// CreateTestRegistry creates a new Prometheus registry for testing
func CreateTestRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

var (
	validMetricName = regexp.MustCompile(`^[a-zA-Z_:][a-zA-Z0-9_:]*$`)
	validLabelName  = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
)

// ValidatePrometheusMetricName checks a metric name against Prometheus conventions
// and the remotecw_ namespace
func ValidatePrometheusMetricName(t *testing.T, name string) {
	t.Helper()

	if !validMetricName.MatchString(name) {
		t.Errorf("Invalid metric name: %q (must match [a-zA-Z_:][a-zA-Z0-9_:]*)", name)
	}

	if !strings.HasPrefix(name, "remotecw_") {
		t.Errorf("Metric name %s should have remotecw_ prefix", name)
	}
}

// ValidatePrometheusLabelName checks a label name against Prometheus conventions
func ValidatePrometheusLabelName(t *testing.T, name string) {
	t.Helper()

	if !validLabelName.MatchString(name) {
		t.Errorf("Invalid label name: %s (must match [a-zA-Z_][a-zA-Z0-9_]*)", name)
	}

	switch name {
	case "__name__", "job", "instance":
		t.Errorf("Label name %s is reserved", name)
	}
}
