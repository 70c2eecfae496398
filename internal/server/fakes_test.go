package server

import (
	"context"
	"sync"
	"time"

	"github.com/maximewewer/remotecw/internal/clockcheck"
	"github.com/maximewewer/remotecw/internal/config"
	"github.com/maximewewer/remotecw/internal/keyer"
)

type fakeKeyer struct {
	mu    sync.Mutex
	calls []string
	snap  keyer.Snapshot
	err   error

	delay     uint32
	sideTone  *bool
	volume    int
	frequency int
	keyDown   *bool
	toneTest  *bool
}

func (k *fakeKeyer) record(call string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.calls = append(k.calls, call)
	return k.err
}

func (k *fakeKeyer) Calls() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]string(nil), k.calls...)
}

func (k *fakeKeyer) Snapshot(ctx context.Context) (keyer.Snapshot, error) {
	return k.snap, k.record("snapshot")
}

func (k *fakeKeyer) Connect(ctx context.Context) error      { return k.record("connect") }
func (k *fakeKeyer) Disconnect(ctx context.Context) error   { return k.record("disconnect") }
func (k *fakeKeyer) OpenKeyLine(ctx context.Context) error  { return k.record("keyline_open") }
func (k *fakeKeyer) CloseKeyLine(ctx context.Context) error { return k.record("keyline_close") }
func (k *fakeKeyer) Calibrate(ctx context.Context) error    { return k.record("calibrate") }
func (k *fakeKeyer) Ping(ctx context.Context) error         { return k.record("ping") }

func (k *fakeKeyer) SetPacketDelay(ctx context.Context, ms uint32) error {
	k.delay = ms
	return k.record("delay")
}

func (k *fakeKeyer) SetSideTone(ctx context.Context, enabled bool) error {
	k.sideTone = &enabled
	return k.record("sidetone")
}

func (k *fakeKeyer) SetVolume(ctx context.Context, level int) error {
	k.volume = level
	return k.record("volume")
}

func (k *fakeKeyer) SetFrequency(ctx context.Context, hz int) error {
	k.frequency = hz
	return k.record("frequency")
}

func (k *fakeKeyer) ManualKey(ctx context.Context, down bool) error {
	k.keyDown = &down
	return k.record("key")
}

func (k *fakeKeyer) ToneTest(ctx context.Context, on bool) error {
	k.toneTest = &on
	return k.record("tone_test")
}

type fakeClock struct {
	result clockcheck.Result
	ok     bool
}

func (c fakeClock) Last() (clockcheck.Result, bool) {
	return c.result, c.ok
}

func createTestConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Network.Host = "keyer.example.net"
	cfg.Key.Device = "/dev/ttyUSB0"
	cfg.Server.Address = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.ReadTimeout = 5 * time.Second
	cfg.Server.WriteTimeout = 5 * time.Second
	return cfg
}
