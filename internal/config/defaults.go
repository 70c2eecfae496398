package config

import "time"

// Fixed serial line settings of the key interface (115200-8-N-1, no flow control)
const (
	KeyBaudRate    = 115200
	KeyDataBits    = 8
	KeyParity      = "none"
	KeyStopBits    = 1
	KeyFlowControl = "none"
)

// ApplyDefaults sets default values for unspecified configuration fields
func ApplyDefaults(cfg *Config) {
	// Network defaults
	if cfg.Network.Host == "" {
		cfg.Network.Host = "127.0.0.1"
	}
	if cfg.Network.Port == 0 {
		cfg.Network.Port = 7373
	}
	if cfg.Network.DialTimeout == 0 {
		cfg.Network.DialTimeout = 5 * time.Second
	}
	if cfg.Network.WriteTimeout == 0 {
		// Bounded flush wait; keeps send time close to message-build time
		cfg.Network.WriteTimeout = 1 * time.Millisecond
	}
	if cfg.Network.Framing == "" {
		cfg.Network.Framing = "legacy"
	}

	// Key line defaults
	if cfg.Key.Input == "" {
		cfg.Key.Input = "cts"
	}
	if cfg.Key.Polarity == "" {
		cfg.Key.Polarity = "normal"
	}
	if cfg.Key.BaudRate == 0 {
		cfg.Key.BaudRate = KeyBaudRate
	}
	if cfg.Key.DataBits == 0 {
		cfg.Key.DataBits = KeyDataBits
	}
	if cfg.Key.Parity == "" {
		cfg.Key.Parity = KeyParity
	}
	if cfg.Key.StopBits == 0 {
		cfg.Key.StopBits = KeyStopBits
	}
	if cfg.Key.FlowControl == "" {
		cfg.Key.FlowControl = KeyFlowControl
	}
	if cfg.Key.PollInterval == 0 {
		cfg.Key.PollInterval = 1 * time.Millisecond
	}
	if cfg.Key.DebounceTicks == 0 {
		cfg.Key.DebounceTicks = 45
	}

	// Keying defaults
	if cfg.Keying.PacketDelay == 0 {
		// Used until the first calibration run completes
		cfg.Keying.PacketDelay = 300
	}
	if cfg.Keying.PingEveryTicks == 0 {
		cfg.Keying.PingEveryTicks = 5000
	}
	if cfg.Keying.CalibrationSamples == 0 {
		cfg.Keying.CalibrationSamples = 10
	}
	if cfg.Keying.MinDelay == 0 {
		cfg.Keying.MinDelay = 25
	}
	if cfg.Keying.MaxDelay == 0 {
		cfg.Keying.MaxDelay = 300
	}
	if cfg.Keying.DelayMultiplier == 0 {
		cfg.Keying.DelayMultiplier = 5
	}
	if cfg.Keying.JitterWindow == 0 {
		cfg.Keying.JitterWindow = 50
	}
	if cfg.Keying.ProbeTTL == 0 {
		cfg.Keying.ProbeTTL = 10 * time.Second
	}

	// Side tone defaults (disabled by default)
	if cfg.SideTone.Volume == 0 {
		cfg.SideTone.Volume = 50
	}
	if cfg.SideTone.Frequency == 0 {
		cfg.SideTone.Frequency = 700
	}
	if cfg.SideTone.SampleRate == 0 {
		cfg.SideTone.SampleRate = 44100
	}
	if cfg.SideTone.BufferSeconds == 0 {
		cfg.SideTone.BufferSeconds = 10
	}

	// Circuit breaker defaults
	if cfg.Transport.CircuitBreaker.MaxRequests == 0 {
		cfg.Transport.CircuitBreaker.MaxRequests = 1
	}
	if cfg.Transport.CircuitBreaker.Interval == 0 {
		cfg.Transport.CircuitBreaker.Interval = 10 * time.Second
	}
	if cfg.Transport.CircuitBreaker.Timeout == 0 {
		cfg.Transport.CircuitBreaker.Timeout = 2 * time.Second
	}
	if cfg.Transport.CircuitBreaker.FailureThreshold == 0 {
		cfg.Transport.CircuitBreaker.FailureThreshold = 0.6
	}

	// Clock check defaults (disabled while ntp_server is empty)
	if cfg.Clock.Timeout == 0 {
		cfg.Clock.Timeout = 5 * time.Second
	}
	if cfg.Clock.Interval == 0 {
		cfg.Clock.Interval = 10 * time.Minute
	}
	if cfg.Clock.MaxOffset == 0 {
		cfg.Clock.MaxOffset = 100 * time.Millisecond
	}
	if cfg.Clock.RateLimit == 0 {
		cfg.Clock.RateLimit = 4
	}

	// Server defaults (disabled by default)
	if cfg.Server.Address == "" {
		cfg.Server.Address = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9873
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Second
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stderr"
	}

	// Metrics defaults
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "remotecw"
	}
}

// DefaultConfig returns a configuration with all defaults applied
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Transport.CircuitBreaker.Enabled = true
	ApplyDefaults(cfg)
	return cfg
}
