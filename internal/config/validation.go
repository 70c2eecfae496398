package config

import (
	"errors"
	"strconv"
	"time"
)

// Validate checks if the configuration is valid
func Validate(cfg *Config) error {
	if err := validateNetwork(&cfg.Network); err != nil {
		return err
	}

	if err := validateKey(&cfg.Key); err != nil {
		return err
	}

	if err := validateKeying(&cfg.Keying); err != nil {
		return err
	}

	if err := validateSideTone(&cfg.SideTone); err != nil {
		return err
	}

	if err := validateCircuitBreaker(&cfg.Transport.CircuitBreaker); err != nil {
		return err
	}

	if err := validateClock(&cfg.Clock); err != nil {
		return err
	}

	if err := validateServer(&cfg.Server); err != nil {
		return err
	}

	if err := validateLogging(&cfg.Logging); err != nil {
		return err
	}

	if err := validateMetrics(&cfg.Metrics); err != nil {
		return err
	}

	return nil
}

func validatePort(name string, port int) error {
	if port < 1 || port > 65535 {
		return errors.New(name + " must be between 1 and 65535, got " + strconv.Itoa(port))
	}
	return nil
}

func validateNetwork(cfg *NetworkConfig) error {
	if cfg.Host == "" {
		return errors.New("network.host is required")
	}

	if err := validatePort("network.port", cfg.Port); err != nil {
		return err
	}

	if cfg.DialTimeout < 100*time.Millisecond || cfg.DialTimeout > 60*time.Second {
		return errors.New("network.dial_timeout must be between 100ms and 60s")
	}

	if cfg.WriteTimeout <= 0 || cfg.WriteTimeout > 1*time.Second {
		return errors.New("network.write_timeout must be between 1ns and 1s")
	}

	if cfg.Framing != "newline" && cfg.Framing != "legacy" {
		return errors.New("invalid network.framing (must be newline or legacy)")
	}

	return nil
}

func validateKey(cfg *KeyConfig) error {
	if cfg.Input != "cts" && cfg.Input != "dsr" {
		return errors.New("invalid key.input (must be cts or dsr)")
	}

	if cfg.Polarity != "normal" && cfg.Polarity != "inverted" {
		return errors.New("invalid key.polarity (must be normal or inverted)")
	}

	// The key interface only works at fixed line settings
	if cfg.BaudRate != KeyBaudRate || cfg.DataBits != KeyDataBits || cfg.Parity != KeyParity ||
		cfg.StopBits != KeyStopBits || cfg.FlowControl != KeyFlowControl {
		return errors.New("key line settings must be 115200 baud, 8 data bits, no parity, 1 stop bit, no flow control")
	}

	if cfg.PollInterval < 100*time.Microsecond || cfg.PollInterval > 100*time.Millisecond {
		return errors.New("key.poll_interval must be between 100us and 100ms")
	}

	if cfg.DebounceTicks < 1 || cfg.DebounceTicks > 1000 {
		return errors.New("key.debounce_ticks must be between 1 and 1000, got " + strconv.Itoa(cfg.DebounceTicks))
	}

	return nil
}

func validateKeying(cfg *KeyingConfig) error {
	if cfg.PacketDelay < 0 || cfg.PacketDelay > 10000 {
		return errors.New("keying.packet_delay must be between 0 and 10000 ms, got " + strconv.Itoa(cfg.PacketDelay))
	}

	if cfg.PingEveryTicks < 1 {
		return errors.New("keying.ping_every_ticks must be at least 1")
	}

	if cfg.CalibrationSamples < 1 || cfg.CalibrationSamples > 100 {
		return errors.New("keying.calibration_samples must be between 1 and 100, got " + strconv.Itoa(cfg.CalibrationSamples))
	}

	if cfg.MinDelay < 0 || cfg.MaxDelay < cfg.MinDelay {
		return errors.New("keying.min_delay must be non-negative and not above keying.max_delay")
	}

	if cfg.DelayMultiplier < 1 {
		return errors.New("keying.delay_multiplier must be at least 1")
	}

	if cfg.JitterWindow < 1 || cfg.JitterWindow > 10000 {
		return errors.New("keying.jitter_window must be between 1 and 10000, got " + strconv.Itoa(cfg.JitterWindow))
	}

	if cfg.ProbeTTL < 1*time.Second {
		return errors.New("keying.probe_ttl must be at least 1s")
	}

	return nil
}

func validateSideTone(cfg *SideToneConfig) error {
	if cfg.Volume < 0 || cfg.Volume > 100 {
		return errors.New("side_tone.volume must be between 0 and 100, got " + strconv.Itoa(cfg.Volume))
	}

	if cfg.Frequency < 100 || cfg.Frequency > 4000 {
		return errors.New("side_tone.frequency must be between 100 and 4000 Hz, got " + strconv.Itoa(cfg.Frequency))
	}

	if cfg.SampleRate < 8000 || cfg.SampleRate > 192000 {
		return errors.New("side_tone.sample_rate must be between 8000 and 192000, got " + strconv.Itoa(cfg.SampleRate))
	}

	if cfg.BufferSeconds < 1 || cfg.BufferSeconds > 60 {
		return errors.New("side_tone.buffer_seconds must be between 1 and 60")
	}

	return nil
}

func validateCircuitBreaker(cfg *CircuitBreakerConfig) error {
	if !cfg.Enabled {
		return nil
	}

	if cfg.MaxRequests < 1 {
		return errors.New("circuit_breaker.max_requests must be at least 1")
	}

	if cfg.FailureThreshold <= 0 || cfg.FailureThreshold > 1 {
		return errors.New("circuit_breaker.failure_threshold must be in (0, 1]")
	}

	return nil
}

func validateClock(cfg *ClockConfig) error {
	if cfg.NTPServer == "" {
		return nil
	}

	if cfg.Timeout < 1*time.Second || cfg.Timeout > 60*time.Second {
		return errors.New("clock.timeout must be between 1s and 60s")
	}

	if cfg.Interval < 1*time.Minute {
		return errors.New("clock.interval must be at least 1m")
	}

	if cfg.MaxOffset <= 0 {
		return errors.New("clock.max_offset must be positive")
	}

	if cfg.RateLimit < 1 {
		return errors.New("clock.rate_limit must be at least 1")
	}

	return nil
}

func validateServer(cfg *ServerConfig) error {
	if err := validatePort("server.port", cfg.Port); err != nil {
		return err
	}

	if cfg.ReadTimeout < 1*time.Second || cfg.ReadTimeout > 60*time.Second {
		return errors.New("server.read_timeout must be between 1s and 60s")
	}

	if cfg.WriteTimeout < 1*time.Second || cfg.WriteTimeout > 60*time.Second {
		return errors.New("server.write_timeout must be between 1s and 60s")
	}

	return nil
}

func validateLogging(cfg *LoggingConfig) error {
	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
		"panic": true,
	}

	if !validLevels[cfg.Level] {
		return errors.New("invalid log level (must be trace, debug, info, warn, error, fatal, or panic)")
	}

	if cfg.Format != "json" && cfg.Format != "console" {
		return errors.New("invalid log format (must be json or console)")
	}

	if cfg.EnableFile && cfg.FilePath == "" {
		return errors.New("file_path is required when enable_file is true")
	}

	return nil
}

func validateMetrics(cfg *MetricsConfig) error {
	if cfg.Namespace == "" {
		return errors.New("namespace is required")
	}

	return nil
}
