package keyer

import "github.com/maximewewer/remotecw/pkg/mathutil"

// CalibratorConfig holds the delay calibration constants
type CalibratorConfig struct {
	Samples    uint32
	MinDelay   uint32
	MaxDelay   uint32
	Multiplier uint32
}

// DefaultCalibratorConfig returns 10 samples, delay clamped to [25, 300] ms, x5
func DefaultCalibratorConfig() CalibratorConfig {
	return CalibratorConfig{Samples: 10, MinDelay: 25, MaxDelay: 300, Multiplier: 5}
}

// CalibrationStep tells the caller what to do after a sample
type CalibrationStep struct {
	ProbeNext bool
	Done      bool
	Average   uint32
	Delay     uint32
}

// Calibrator averages probe latencies into a packet delay. Only one run is
// active at a time; a lost reply stalls the run until the next Trigger after
// it completes or the calibrator is Reset.
type Calibrator struct {
	cfg       CalibratorConfig
	remaining uint32
	acc       uint32
}

// NewCalibrator creates an idle calibrator
func NewCalibrator(cfg CalibratorConfig) *Calibrator {
	if cfg.Samples == 0 {
		cfg.Samples = 1
	}
	return &Calibrator{cfg: cfg}
}

// Trigger starts a run when idle and reports whether it did. The caller
// sends a probe either way.
func (c *Calibrator) Trigger() bool {
	if c.remaining != 0 {
		return false
	}
	c.remaining = c.cfg.Samples
	c.acc = 0
	return true
}

// OnSample feeds the half round trip of a probe reply
func (c *Calibrator) OnSample(sample uint32) CalibrationStep {
	var step CalibrationStep

	switch {
	case c.remaining == 0:
		return step
	case c.remaining == 1:
		avg := (c.acc + sample) / c.cfg.Samples
		step.Done = true
		step.Average = avg
		step.Delay = DelayFor(avg, c.cfg)
	case c.remaining == c.cfg.Samples:
		c.acc = sample
		step.ProbeNext = true
	default:
		c.acc += sample
		step.ProbeNext = true
	}

	c.remaining--
	return step
}

// Remaining returns the number of samples still expected, 0 when idle
func (c *Calibrator) Remaining() uint32 {
	return c.remaining
}

// Active reports whether a run is in progress
func (c *Calibrator) Active() bool {
	return c.remaining != 0
}

// Reset abandons any run in progress
func (c *Calibrator) Reset() {
	c.remaining = 0
	c.acc = 0
}

// DelayFor maps an averaged one-way latency to a packet delay:
// clamp(avg*multiplier, min, max) + avg
func DelayFor(avg uint32, cfg CalibratorConfig) uint32 {
	return mathutil.Clamp(avg*cfg.Multiplier, cfg.MinDelay, cfg.MaxDelay) + avg
}
