package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromYamlFile_Success(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	configContent := `
network:
  host: "keyer.example.net"
  port: 7300
  framing: "legacy"

key:
  device: "/dev/ttyUSB0"
  input: "dsr"
  polarity: "inverted"

keying:
  packet_delay: 120
  calibrate_on_connect: true

side_tone:
  enabled: true
  volume: 80
  frequency: 600

logging:
  level: "debug"
  format: "json"
`

	err := os.WriteFile(configFile, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := LoadFromYamlFile(configFile)

	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "keyer.example.net", cfg.Network.Host)
	assert.Equal(t, 7300, cfg.Network.Port)
	assert.Equal(t, "legacy", cfg.Network.Framing)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Key.Device)
	assert.Equal(t, "dsr", cfg.Key.Input)
	assert.Equal(t, "inverted", cfg.Key.Polarity)
	assert.Equal(t, 120, cfg.Keying.PacketDelay)
	assert.True(t, cfg.Keying.CalibrateOnConnect)
	assert.True(t, cfg.SideTone.Enabled)
	assert.Equal(t, 80, cfg.SideTone.Volume)
	assert.Equal(t, 600, cfg.SideTone.Frequency)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Unspecified fields fall back to defaults
	assert.Equal(t, 5*time.Second, cfg.Network.DialTimeout)
	assert.Equal(t, 45, cfg.Key.DebounceTicks)
	assert.Equal(t, 5000, cfg.Keying.PingEveryTicks)
	assert.Equal(t, 44100, cfg.SideTone.SampleRate)
}

func TestLoadFromYamlFile_FileNotFound(t *testing.T) {
	cfg, err := LoadFromYamlFile("/nonexistent/config.yaml")

	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadFromYamlFile_InvalidYAML(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "invalid.yaml")
	err := os.WriteFile(configFile, []byte("network:\n  host: [unclosed\n"), 0644)
	require.NoError(t, err)

	cfg, err := LoadFromYamlFile(configFile)

	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoadFromYamlFile_ValidationError(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "invalid.yaml")
	err := os.WriteFile(configFile, []byte("key:\n  input: \"ri\"\n"), 0644)
	require.NoError(t, err)

	cfg, err := LoadFromYamlFile(configFile)

	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "key.input")
}

func TestLoadFromYamlWithEnvOverrides(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	err := os.WriteFile(configFile, []byte("network:\n  host: \"yaml-host\"\n  port: 7300\n"), 0644)
	require.NoError(t, err)

	t.Setenv("REMOTECW_HOST", "env-host")
	t.Setenv("PACKET_DELAY", "90")
	t.Setenv("SIDE_TONE_ENABLED", "true")

	cfg, err := LoadFromYamlWithEnvOverrides(configFile)

	require.NoError(t, err)
	assert.Equal(t, "env-host", cfg.Network.Host)
	assert.Equal(t, 7300, cfg.Network.Port)
	assert.Equal(t, 90, cfg.Keying.PacketDelay)
	assert.True(t, cfg.SideTone.Enabled)
}

func TestLoadFromYamlWithEnvOverrides_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("KEY_DEVICE", "/dev/ttyS1")

	cfg, err := LoadFromYamlWithEnvOverrides(filepath.Join(t.TempDir(), "absent.yaml"))

	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyS1", cfg.Key.Device)
	assert.Equal(t, 300, cfg.Keying.PacketDelay)
}

func TestLoadFromEnvVarsOnly(t *testing.T) {
	t.Setenv("REMOTECW_HOST", "10.0.0.5")
	t.Setenv("REMOTECW_PORT", "7400")
	t.Setenv("REMOTECW_FRAMING", "legacy")
	t.Setenv("KEY_INPUT", "dsr")
	t.Setenv("KEY_POLARITY", "inverted")
	t.Setenv("SIDE_TONE_VOLUME", "25")
	t.Setenv("SIDE_TONE_FREQUENCY", "650")
	t.Setenv("NTP_SERVER", "pool.ntp.org")
	t.Setenv("SERVER_ENABLED", "true")
	t.Setenv("SERVER_PORT", "9900")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("METRICS_NAMESPACE", "cw")

	cfg, err := LoadFromEnvVarsOnly()

	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", cfg.Network.Host)
	assert.Equal(t, 7400, cfg.Network.Port)
	assert.Equal(t, "legacy", cfg.Network.Framing)
	assert.Equal(t, "dsr", cfg.Key.Input)
	assert.Equal(t, "inverted", cfg.Key.Polarity)
	assert.Equal(t, 25, cfg.SideTone.Volume)
	assert.Equal(t, 650, cfg.SideTone.Frequency)
	assert.Equal(t, "pool.ntp.org", cfg.Clock.NTPServer)
	assert.True(t, cfg.Server.Enabled)
	assert.Equal(t, 9900, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "cw", cfg.Metrics.Namespace)
}

func TestLoadFromEnvVarsOnly_InvalidNumberIgnored(t *testing.T) {
	t.Setenv("REMOTECW_PORT", "not-a-port")

	cfg, err := LoadFromEnvVarsOnly()

	require.NoError(t, err)
	assert.Equal(t, 7373, cfg.Network.Port)
}

func TestLoadFromEnvVarsOnly_InvalidValue(t *testing.T) {
	t.Setenv("REMOTECW_FRAMING", "xml")

	cfg, err := LoadFromEnvVarsOnly()

	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoadFromEnvVarsOnly_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	content := "KEY_DEVICE=/dev/ttyACM0\nSIDE_TONE_FREQUENCY=550\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0644))
	t.Chdir(dir)
	t.Cleanup(func() {
		os.Unsetenv("KEY_DEVICE")
	})

	// The process environment wins over the file
	t.Setenv("SIDE_TONE_FREQUENCY", "800")

	cfg, err := LoadFromEnvVarsOnly()

	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyACM0", cfg.Key.Device)
	assert.Equal(t, 800, cfg.SideTone.Frequency)
}

func TestSaveToYamlFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "remotecw.yaml")

	cfg := DefaultConfig()
	cfg.Network.Host = "keyer.example.net"
	cfg.Keying.PacketDelay = 240
	cfg.SideTone.Enabled = true
	cfg.SideTone.Volume = 65
	cfg.SideTone.Frequency = 750

	require.NoError(t, SaveToYamlFile(path, cfg))

	loaded, err := LoadFromYamlFile(path)
	require.NoError(t, err)
	assert.Equal(t, "keyer.example.net", loaded.Network.Host)
	assert.Equal(t, 240, loaded.Keying.PacketDelay)
	assert.True(t, loaded.SideTone.Enabled)
	assert.Equal(t, 65, loaded.SideTone.Volume)
	assert.Equal(t, 750, loaded.SideTone.Frequency)
}

func TestNetworkAddress(t *testing.T) {
	n := NetworkConfig{Host: "keyer.example.net", Port: 7373}
	assert.Equal(t, "keyer.example.net:7373", n.Address())
}
