package keyer

import (
	"fmt"
	"time"

	"github.com/maximewewer/remotecw/internal/config"
	"github.com/maximewewer/remotecw/internal/protocol"
)

// Options configures a Session
type Options struct {
	PollInterval       time.Duration
	RewindInterval     time.Duration
	DebounceTicks      int
	PingEveryTicks     int
	PacketDelay        uint32
	Calibration        CalibratorConfig
	CalibrateOnConnect bool
	JitterWindow       int
	ProbeTTL           time.Duration
	Framing            protocol.Framing
}

// DefaultOptions returns the reference timing: 1 ms ticks, 45 tick debounce,
// a ping every 5000 ticks and a 300 ms initial delay
func DefaultOptions() Options {
	return Options{
		PollInterval:   time.Millisecond,
		RewindInterval: 5 * time.Second,
		DebounceTicks:  45,
		PingEveryTicks: 5000,
		PacketDelay:    300,
		Calibration:    DefaultCalibratorConfig(),
		JitterWindow:   50,
		ProbeTTL:       10 * time.Second,
		Framing:        protocol.FramingLegacy,
	}
}

// NewOptions derives session options from the application configuration
func NewOptions(cfg *config.Config) (Options, error) {
	framing, err := protocol.ParseFraming(cfg.Network.Framing)
	if err != nil {
		return Options{}, fmt.Errorf("invalid network configuration: %w", err)
	}

	// Rewind at half the tone buffer so playback never reaches its end
	rewind := time.Duration(cfg.SideTone.BufferSeconds * float64(time.Second) / 2)

	return Options{
		PollInterval:   cfg.Key.PollInterval,
		RewindInterval: rewind,
		DebounceTicks:  cfg.Key.DebounceTicks,
		PingEveryTicks: cfg.Keying.PingEveryTicks,
		PacketDelay:    uint32(cfg.Keying.PacketDelay),
		Calibration: CalibratorConfig{
			Samples:    uint32(cfg.Keying.CalibrationSamples),
			MinDelay:   uint32(cfg.Keying.MinDelay),
			MaxDelay:   uint32(cfg.Keying.MaxDelay),
			Multiplier: uint32(cfg.Keying.DelayMultiplier),
		},
		CalibrateOnConnect: cfg.Keying.CalibrateOnConnect,
		JitterWindow:       cfg.Keying.JitterWindow,
		ProbeTTL:           cfg.Keying.ProbeTTL,
		Framing:            framing,
	}, nil
}
