package metrics

import (
	"testing"

	testutil "github.com/maximewewer/remotecw/pkg/testing"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findFamily(t *testing.T, registry *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()

	families, err := registry.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func TestMetricDefinitions_Registration(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewKeyerMetrics()

	err := registry.Register(m)
	assert.NoError(t, err, "KeyerMetrics should register successfully")
}

func TestMetricDefinitions_LatencyStats(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewKeyerMetrics()
	registry.MustRegister(m)

	m.OneWayLatencySeconds.WithLabelValues("last").Set(0.050)
	m.OneWayLatencySeconds.WithLabelValues("min").Set(0.040)
	m.OneWayLatencySeconds.WithLabelValues("max").Set(0.060)

	mf := findFamily(t, registry, "remotecw_one_way_latency_seconds")
	require.NotNil(t, mf)
	assert.Len(t, mf.GetMetric(), 3)
}

func TestMetricDefinitions_CounterIncrement(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewKeyerMetrics()
	registry.MustRegister(m)

	m.KeyEventsTotal.WithLabelValues("down").Inc()
	m.KeyEventsTotal.WithLabelValues("down").Inc()
	m.KeyEventsTotal.WithLabelValues("up").Inc()

	mf := findFamily(t, registry, "remotecw_key_events_total")
	require.NotNil(t, mf)

	total := 0.0
	for _, metric := range mf.GetMetric() {
		total += metric.GetCounter().GetValue()
	}
	assert.Equal(t, 3.0, total)
}

func TestMetricDefinitions_HistogramObserve(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewKeyerMetrics()
	registry.MustRegister(m)

	m.OneWayLatencyDistribution.Observe(0.02)
	m.OneWayLatencyDistribution.Observe(0.05)
	m.OneWayLatencyDistribution.Observe(0.08)

	mf := findFamily(t, registry, "remotecw_one_way_latency_distribution_seconds")
	require.NotNil(t, mf)
	assert.Equal(t, uint64(3), mf.GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestMetricDefinitions_Reset(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewKeyerMetrics()
	registry.MustRegister(m)

	m.OneWayLatencySeconds.WithLabelValues("last").Set(0.010)
	m.OneWayLatencySeconds.Reset()

	mf := findFamily(t, registry, "remotecw_one_way_latency_seconds")
	if mf != nil {
		assert.Empty(t, mf.GetMetric())
	}
}

func TestMetricDefinitions_Naming(t *testing.T) {
	registry := testutil.CreateTestRegistry()
	m := NewKeyerMetrics()
	registry.MustRegister(m)

	m.HTTPRequestsTotal.WithLabelValues("GET", "/status", "200").Inc()
	m.KeyEventsTotal.WithLabelValues("down").Inc()
	m.ProbesTotal.WithLabelValues("matched").Inc()
	m.BuildInfo.WithLabelValues("dev", "", "go1.25").Set(1)

	families, err := registry.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)

	for _, mf := range families {
		testutil.ValidatePrometheusMetricName(t, mf.GetName())
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				testutil.ValidatePrometheusLabelName(t, label.GetName())
			}
		}
	}
}

func TestBoolToFloat(t *testing.T) {
	assert.Equal(t, 1.0, BoolToFloat(true))
	assert.Equal(t, 0.0, BoolToFloat(false))
}

func BenchmarkMetricDefinitions_CounterInc(b *testing.B) {
	registry := prometheus.NewRegistry()
	m := NewKeyerMetrics()
	registry.MustRegister(m)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.MessagesSentTotal.WithLabelValues("key_down").Inc()
	}
}
