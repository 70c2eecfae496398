package main

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/maximewewer/remotecw/internal/config"
	"github.com/maximewewer/remotecw/internal/keyer"
	"github.com/maximewewer/remotecw/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_FromFile(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "remotecw.yaml")

	configContent := `
network:
  host: "keyer.example.net"
server:
  enabled: true
  port: 9559
logging:
  level: info
`
	require.NoError(t, os.WriteFile(configFile, []byte(configContent), 0644))

	cfg, err := loadConfig(configFile)
	require.NoError(t, err)
	assert.Equal(t, "keyer.example.net", cfg.Network.Host)
	assert.True(t, cfg.Server.Enabled)
	assert.Equal(t, 9559, cfg.Server.Port)
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("REMOTECW_HOST", "10.1.2.3")

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "10.1.2.3", cfg.Network.Host)
}

func TestSaveSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remotecw.yaml")
	cfg := config.DefaultConfig()
	cfg.Network.Host = "keyer.example.net"

	snap := keyer.Snapshot{
		PacketDelayMs: 240,
		SideTone:      keyer.SideToneState{Enabled: true, Volume: 35, FrequencyHz: 620},
	}
	require.NoError(t, saveSettings(path, cfg, snap))

	// The running configuration is left untouched
	assert.Equal(t, 300, cfg.Keying.PacketDelay)

	loaded, err := config.LoadFromYamlFile(path)
	require.NoError(t, err)
	assert.Equal(t, "keyer.example.net", loaded.Network.Host)
	assert.Equal(t, 240, loaded.Keying.PacketDelay)
	assert.True(t, loaded.SideTone.Enabled)
	assert.Equal(t, 35, loaded.SideTone.Volume)
	assert.Equal(t, 620, loaded.SideTone.Frequency)
}

func TestWriteTone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	cfg := config.DefaultConfig().SideTone
	cfg.BufferSeconds = 1

	require.NoError(t, writeTone(path, cfg))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	assert.Equal(t, cfg.SampleRate, buf.Format.SampleRate)
	assert.Len(t, buf.Data, cfg.SampleRate)
}

func TestWriteTone_InvalidFrequency(t *testing.T) {
	cfg := config.DefaultConfig().SideTone
	cfg.Frequency = cfg.SampleRate

	assert.Error(t, writeTone(filepath.Join(t.TempDir(), "tone.wav"), cfg))
}

func TestToneConfig(t *testing.T) {
	cfg := config.DefaultConfig().SideTone
	cfg.Enabled = true

	tc := toneConfig(cfg)
	assert.True(t, tc.Enabled)
	assert.Equal(t, cfg.Volume, tc.Volume)
	assert.Equal(t, 700, tc.FrequencyHz)
	assert.Equal(t, 44100, tc.SampleRate)
	assert.Equal(t, 10.0, tc.BufferSeconds)
}

func TestKeyLineFunc_NoDevice(t *testing.T) {
	src, err := keyLineFunc(config.DefaultConfig().Key)()

	assert.Error(t, err)
	assert.Nil(t, src)
}

func TestDialFunc(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	cfg := config.DefaultConfig()
	cfg.Network.Port = addr.Port

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	link, err := dialFunc(newDialer(cfg))(ctx)
	require.NoError(t, err)
	defer link.Close()

	server := <-accepted
	defer server.Close()

	peer, ok := link.(interface{ RemoteAddr() net.Addr })
	require.True(t, ok)
	assert.Equal(t, server.LocalAddr().String(), peer.RemoteAddr().String())

	require.NoError(t, link.Send([]byte("P 0\n")))

	buf := make([]byte, 16)
	require.NoError(t, server.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, err := server.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "P 0\n", string(buf[:n]))
}

func TestDialFunc_Refused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	cfg := config.DefaultConfig()
	cfg.Network.Port = addr.Port
	cfg.Transport.CircuitBreaker.Enabled = false

	link, err := dialFunc(newDialer(cfg))(context.Background())
	assert.Error(t, err)
	assert.Nil(t, link)
}

func TestNewDialer_Address(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Network.Host = "keyer.example.net"

	d := newDialer(cfg)
	assert.Equal(t, "keyer.example.net:7373", d.Address())
	assert.IsType(t, &transport.Dialer{}, d)
}

func TestBreakerState(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Transport.CircuitBreaker.Enabled = false
	assert.Equal(t, "closed", breakerState(newDialer(cfg))())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	cfg = config.DefaultConfig()
	cfg.Network.Host = "127.0.0.1"
	cfg.Network.Port = addr.Port
	cfg.Transport.CircuitBreaker.Enabled = true
	cfg.Transport.CircuitBreaker.FailureThreshold = 0.5
	cfg.Transport.CircuitBreaker.Timeout = time.Minute

	d := newDialer(cfg)
	state := breakerState(d)
	assert.Equal(t, "closed", state())

	// Three refused dials reach the minimum count needed to trip
	for i := 0; i < 3; i++ {
		_, err = d.Dial(context.Background())
		require.Error(t, err)
	}
	assert.Equal(t, "open", state())
}
