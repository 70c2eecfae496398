package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// KeyerMetrics encapsulates all remote keying client metrics
type KeyerMetrics struct {
	// Link latency metrics
	OneWayLatencySeconds      *prometheus.GaugeVec // stat: last, min, max
	OneWayLatencyDistribution prometheus.Histogram
	JitterSeconds             prometheus.Gauge
	RemoteClockOffsetSeconds  prometheus.Gauge
	PacketDelaySeconds        prometheus.Gauge

	// Keying metrics
	KeyEventsTotal        *prometheus.CounterVec
	MessagesSentTotal     *prometheus.CounterVec
	SendFailuresTotal     *prometheus.CounterVec
	MessagesReceivedTotal *prometheus.CounterVec
	UnrecognizedTotal     prometheus.Counter
	MalformedTotal        prometheus.Counter

	// Calibration metrics
	CalibrationRunsTotal  *prometheus.CounterVec
	CalibrationInProgress prometheus.Gauge
	ProbesTotal           *prometheus.CounterVec // outcome: matched, duplicate, unsolicited, lost

	// Local clock check metrics
	LocalClockOffsetSeconds  prometheus.Gauge
	LocalClockOffsetExceeded prometheus.Gauge
	ClockQueriesTotal        *prometheus.CounterVec

	// Component state metrics
	TransportConnected prometheus.Gauge
	KeyLineOpen        prometheus.Gauge
	SideToneEnabled    prometheus.Gauge
	BuildInfo          *prometheus.GaugeVec

	// Status server metrics
	HTTPRequestsTotal          *prometheus.CounterVec
	HTTPRequestDurationSeconds *prometheus.HistogramVec
}

// NewKeyerMetricsWithConfig creates and initializes all metrics with custom namespace and subsystem
func NewKeyerMetricsWithConfig(namespace, subsystem string) *KeyerMetrics {
	return &KeyerMetrics{
		OneWayLatencySeconds: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "one_way_latency_seconds",
				Help:      "Estimated one-way latency to the remote keyer (half round trip) in seconds",
			},
			[]string{"stat"},
		),
		OneWayLatencyDistribution: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "one_way_latency_distribution_seconds",
				Help:      "Distribution of one-way latency samples in seconds",
				Buckets:   []float64{.005, .01, .02, .03, .05, .075, .1, .15, .2, .3, .5, 1},
			},
		),
		JitterSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "jitter_seconds",
				Help:      "Standard deviation of recent one-way latency samples in seconds",
			},
		),
		RemoteClockOffsetSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "remote_clock_offset_seconds",
				Help:      "Offset between the remote millisecond clock and the local one in seconds",
			},
		),
		PacketDelaySeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "packet_delay_seconds",
				Help:      "Current packet delay added to every key time in seconds",
			},
		),
		KeyEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "key_events_total",
				Help:      "Total number of debounced key transitions",
			},
			[]string{"transition"},
		),
		MessagesSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "messages_sent_total",
				Help:      "Total number of messages sent to the remote keyer",
			},
			[]string{"type"},
		),
		SendFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "send_failures_total",
				Help:      "Total number of messages that could not be sent",
			},
			[]string{"type"},
		),
		MessagesReceivedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "messages_received_total",
				Help:      "Total number of well-formed messages received, by tag",
			},
			[]string{"tag"},
		),
		UnrecognizedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "unrecognized_messages_total",
				Help:      "Total number of well-formed messages with an unknown tag",
			},
		),
		MalformedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "malformed_messages_total",
				Help:      "Total number of received messages that could not be parsed",
			},
		),
		CalibrationRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "calibration_runs_total",
				Help:      "Total number of calibration runs by result",
			},
			[]string{"result"},
		),
		CalibrationInProgress: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "calibration_in_progress",
				Help:      "Whether a calibration run is in progress (1) or not (0)",
			},
		),
		ProbesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "probes_total",
				Help:      "Total number of latency probe outcomes",
			},
			[]string{"outcome"},
		),
		LocalClockOffsetSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "local_clock_offset_seconds",
				Help:      "Offset of the local clock against the configured NTP server in seconds",
			},
		),
		LocalClockOffsetExceeded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "local_clock_offset_exceeded",
				Help:      "Whether the local clock offset exceeds the configured threshold (1 = exceeded, 0 = within limits)",
			},
		),
		ClockQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "clock_queries_total",
				Help:      "Total number of NTP clock checks by result",
			},
			[]string{"result"},
		),
		TransportConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "transport_connected",
				Help:      "Whether the link to the remote keyer is up (1) or not (0)",
			},
		),
		KeyLineOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "key_line_open",
				Help:      "Whether the serial key line is open (1) or not (0)",
			},
		),
		SideToneEnabled: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "side_tone_enabled",
				Help:      "Whether the local side-tone is enabled (1) or not (0)",
			},
		),
		BuildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "build_info",
				Help:      "Build information of the client",
			},
			[]string{"version", "commit", "go_version"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_requests_total",
				Help:      "Total number of status server requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of status server requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"path"},
		),
	}
}

// NewKeyerMetrics creates metrics with the default namespace
func NewKeyerMetrics() *KeyerMetrics {
	return NewKeyerMetricsWithConfig("remotecw", "")
}

func (m *KeyerMetrics) getAllMetrics() []prometheus.Collector {
	return []prometheus.Collector{
		// Latency metrics
		m.OneWayLatencySeconds,
		m.OneWayLatencyDistribution,
		m.JitterSeconds,
		m.RemoteClockOffsetSeconds,
		m.PacketDelaySeconds,

		// Keying metrics
		m.KeyEventsTotal,
		m.MessagesSentTotal,
		m.SendFailuresTotal,
		m.MessagesReceivedTotal,
		m.UnrecognizedTotal,
		m.MalformedTotal,

		// Calibration metrics
		m.CalibrationRunsTotal,
		m.CalibrationInProgress,
		m.ProbesTotal,

		// Clock metrics
		m.LocalClockOffsetSeconds,
		m.LocalClockOffsetExceeded,
		m.ClockQueriesTotal,

		// State metrics
		m.TransportConnected,
		m.KeyLineOpen,
		m.SideToneEnabled,
		m.BuildInfo,

		// HTTP metrics
		m.HTTPRequestsTotal,
		m.HTTPRequestDurationSeconds,
	}
}

// Describe implements prometheus.Collector interface
func (m *KeyerMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, metric := range m.getAllMetrics() {
		metric.Describe(ch)
	}
}

// Collect implements prometheus.Collector interface
func (m *KeyerMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, metric := range m.getAllMetrics() {
		metric.Collect(ch)
	}
}

// BoolToFloat converts a state flag to a gauge value
func BoolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
