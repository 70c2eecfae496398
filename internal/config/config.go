// Package config provides configuration loading with explicit naming
//
// Available functions:
//
//   LoadFromEnvVarsOnly()                     - Environment variables ONLY
//
//   LoadFromYamlFile(path)                    - YAML file ONLY (no env overrides)
//
//   LoadFromYamlWithEnvOverrides(path)        - YAML base + Environment overrides
//                                               Priority: Env Vars > YAML > Defaults
//
//   SaveToYamlFile(path, cfg)                 - Persist operator settings at shutdown
//
// Environment variables supported:
//
//   NETWORK:
//     - REMOTECW_HOST, REMOTECW_PORT, REMOTECW_FRAMING
//
//   KEY LINE:
//     - KEY_DEVICE, KEY_INPUT (cts|dsr), KEY_POLARITY (normal|inverted)
//
//   KEYING:
//     - PACKET_DELAY (milliseconds)
//
//   SIDE TONE:
//     - SIDE_TONE_ENABLED, SIDE_TONE_VOLUME, SIDE_TONE_FREQUENCY, SIDE_TONE_DEVICE
//
//   TRANSPORT:
//     - CIRCUIT_BREAKER_ENABLED
//
//   CLOCK:
//     - NTP_SERVER
//
//   SERVER:
//     - SERVER_ENABLED, SERVER_ADDRESS, SERVER_PORT
//
//   LOGGING:
//     - LOG_LEVEL, LOG_FORMAT, LOG_ENABLE_FILE, LOG_FILE_PATH
//
//   METRICS:
//     - METRICS_NAMESPACE, METRICS_SUBSYSTEM
//
// A .env file in the working directory is read first; real environment
// variables take precedence over it.
//
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
	"github.com/maximewewer/remotecw/pkg/logger"
)

// Config represents the complete application configuration
type Config struct {
	Network   NetworkConfig   `yaml:"network"`
	Key       KeyConfig       `yaml:"key"`
	Keying    KeyingConfig    `yaml:"keying"`
	SideTone  SideToneConfig  `yaml:"side_tone"`
	Transport TransportConfig `yaml:"transport"`
	Clock     ClockConfig     `yaml:"clock"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// NetworkConfig describes the link to the remote keyer
type NetworkConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	Framing      string        `yaml:"framing"` // legacy (unterminated) or newline
}

// KeyConfig describes the serial port whose modem status line carries the key
type KeyConfig struct {
	Device        string        `yaml:"device"`
	Input         string        `yaml:"input"`    // cts or dsr
	Polarity      string        `yaml:"polarity"` // normal or inverted
	BaudRate      int           `yaml:"baud_rate"`
	DataBits      int           `yaml:"data_bits"`
	Parity        string        `yaml:"parity"`
	StopBits      int           `yaml:"stop_bits"`
	FlowControl   string        `yaml:"flow_control"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	DebounceTicks int           `yaml:"debounce_ticks"`
}

// KeyingConfig contains delay compensation and calibration settings.
// Millisecond values are plain integers to match the wire format.
type KeyingConfig struct {
	PacketDelay        int           `yaml:"packet_delay"`
	PingEveryTicks     int           `yaml:"ping_every_ticks"`
	CalibrationSamples int           `yaml:"calibration_samples"`
	MinDelay           int           `yaml:"min_delay"`
	MaxDelay           int           `yaml:"max_delay"`
	DelayMultiplier    int           `yaml:"delay_multiplier"`
	CalibrateOnConnect bool          `yaml:"calibrate_on_connect"`
	JitterWindow       int           `yaml:"jitter_window"`
	ProbeTTL           time.Duration `yaml:"probe_ttl"`
}

// SideToneConfig contains local audio feedback settings
type SideToneConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Volume        int     `yaml:"volume"` // 0-100 on a logarithmic scale
	Frequency     int     `yaml:"frequency"`
	SampleRate    int     `yaml:"sample_rate"`
	BufferSeconds float64 `yaml:"buffer_seconds"`
	Device        string  `yaml:"device"`
}

// TransportConfig contains outgoing link protection settings
type TransportConfig struct {
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig contains circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	MaxRequests      uint32        `yaml:"max_requests"`
	Interval         time.Duration `yaml:"interval"`
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold float64       `yaml:"failure_threshold"`
}

// ClockConfig configures the optional NTP check of the local clock
type ClockConfig struct {
	NTPServer string        `yaml:"ntp_server"`
	Timeout   time.Duration `yaml:"timeout"`
	Interval  time.Duration `yaml:"interval"`
	MaxOffset time.Duration `yaml:"max_offset"`
	RateLimit int           `yaml:"rate_limit"` // queries per minute
}

// ServerConfig contains HTTP status server configuration
type ServerConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Address      string        `yaml:"address"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	EnableFile bool   `yaml:"enable_file"`
	FilePath   string `yaml:"file_path"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

// Address returns host:port of the remote keyer
func (n NetworkConfig) Address() string {
	return n.Host + ":" + strconv.Itoa(n.Port)
}

// LoadFromYamlFile reads configuration from a YAML file only (no env var overrides)
func LoadFromYamlFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error("config", "Failed to read config file", err)
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		logger.Error("config", "Failed to parse config file", err)
		return nil, fmt.Errorf("failed to parse YAML config file %s: %w", path, err)
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		logger.Error("config", "Invalid configuration", err)
		return nil, fmt.Errorf("configuration validation failed for %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromYamlWithEnvOverrides loads base config from YAML, then overrides with environment variables
// Priority: Environment Variables > YAML File > Defaults
func LoadFromYamlWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadFromYamlFile(path)
	if err != nil {
		// First run: the settings file is created at shutdown.
		logger.Warn("config", "Failed to load YAML config file, falling back to env vars only")
		cfg = DefaultConfig()
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		logger.Error("config", "Invalid configuration after env overrides", err)
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadFromEnvVarsOnly loads configuration from environment variables only (no YAML file)
// Priority: Environment Variables > Defaults
func LoadFromEnvVarsOnly() (*Config, error) {
	cfg := DefaultConfig()
	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		logger.Error("config", "Invalid configuration from environment", err)
		return nil, fmt.Errorf("environment configuration validation failed: %w", err)
	}

	return cfg, nil
}

// SaveToYamlFile writes the configuration back to disk so operator settings
// survive a restart
func SaveToYamlFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}

	return nil
}

// DotEnvFile is merged into the environment before overrides are applied.
// Variables already set in the process environment win.
var DotEnvFile = ".env"

func loadDotEnv() {
	if err := godotenv.Load(DotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.SafeWarn("config", "Failed to load env file", map[string]interface{}{
			"path":  DotEnvFile,
			"error": err.Error(),
		})
	}
}

// applyEnvOverrides applies environment variable overrides to an existing config
func applyEnvOverrides(cfg *Config) {
	loadDotEnv()

	// ---------------------------------------------------------------------------
	// NETWORK
	// ---------------------------------------------------------------------------
	if host := os.Getenv("REMOTECW_HOST"); host != "" {
		cfg.Network.Host = host
	}
	envInt("REMOTECW_PORT", &cfg.Network.Port)
	if framing := os.Getenv("REMOTECW_FRAMING"); framing != "" {
		cfg.Network.Framing = framing
	}

	// ---------------------------------------------------------------------------
	// KEY LINE
	// ---------------------------------------------------------------------------
	if device := os.Getenv("KEY_DEVICE"); device != "" {
		cfg.Key.Device = device
	}
	if input := os.Getenv("KEY_INPUT"); input != "" {
		cfg.Key.Input = input
	}
	if polarity := os.Getenv("KEY_POLARITY"); polarity != "" {
		cfg.Key.Polarity = polarity
	}

	// ---------------------------------------------------------------------------
	// KEYING
	// ---------------------------------------------------------------------------
	envInt("PACKET_DELAY", &cfg.Keying.PacketDelay)

	// ---------------------------------------------------------------------------
	// SIDE TONE
	// ---------------------------------------------------------------------------
	envBool("SIDE_TONE_ENABLED", &cfg.SideTone.Enabled)
	envInt("SIDE_TONE_VOLUME", &cfg.SideTone.Volume)
	envInt("SIDE_TONE_FREQUENCY", &cfg.SideTone.Frequency)
	if device := os.Getenv("SIDE_TONE_DEVICE"); device != "" {
		cfg.SideTone.Device = device
	}

	// ---------------------------------------------------------------------------
	// TRANSPORT / CLOCK
	// ---------------------------------------------------------------------------
	envBool("CIRCUIT_BREAKER_ENABLED", &cfg.Transport.CircuitBreaker.Enabled)
	if server := os.Getenv("NTP_SERVER"); server != "" {
		cfg.Clock.NTPServer = server
	}

	// ---------------------------------------------------------------------------
	// SERVER
	// ---------------------------------------------------------------------------
	envBool("SERVER_ENABLED", &cfg.Server.Enabled)
	if addr := os.Getenv("SERVER_ADDRESS"); addr != "" {
		cfg.Server.Address = addr
	}
	envInt("SERVER_PORT", &cfg.Server.Port)

	// ---------------------------------------------------------------------------
	// LOGGING
	// ---------------------------------------------------------------------------
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}
	envBool("LOG_ENABLE_FILE", &cfg.Logging.EnableFile)
	if filePath := os.Getenv("LOG_FILE_PATH"); filePath != "" {
		cfg.Logging.FilePath = filePath
	}

	// ---------------------------------------------------------------------------
	// METRICS
	// ---------------------------------------------------------------------------
	if namespace := os.Getenv("METRICS_NAMESPACE"); namespace != "" {
		cfg.Metrics.Namespace = namespace
	}
	if subsystem := os.Getenv("METRICS_SUBSYSTEM"); subsystem != "" {
		cfg.Metrics.Subsystem = subsystem
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		} else {
			logger.Warnf("config", "Ignoring %s: %v", name, err)
		}
	}
}

func envBool(name string, dst *bool) {
	if v := os.Getenv(name); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		} else {
			logger.Warnf("config", "Ignoring %s: %v", name, err)
		}
	}
}
