package sidetone

import (
	"fmt"
	"sync"

	"github.com/maximewewer/remotecw/pkg/logger"
)

// Output plays a looping tone while its gate is open
type Output interface {
	Load(samples []float32)
	Gate(open bool)
	SetGain(gain float64)
	Rewind()
}

// Discard is an Output that plays nothing. A Controller over Discard still
// tracks side-tone settings when no audio device is available.
var Discard Output = discard{}

type discard struct{}

func (discard) Load([]float32)  {}
func (discard) Gate(bool)       {}
func (discard) SetGain(float64) {}
func (discard) Rewind()         {}

// Config describes the tone
type Config struct {
	Enabled       bool
	Volume        int
	FrequencyHz   int
	SampleRate    int
	BufferSeconds float64
}

// Controller follows key events with the side-tone when enabled. The test
// tone sounds regardless of the enabled flag.
type Controller struct {
	mu      sync.Mutex
	out     Output
	cfg     Config
	keyed   bool
	testing bool
}

// NewController renders the configured tone into out
func NewController(out Output, cfg Config) (*Controller, error) {
	c := &Controller{out: out, cfg: cfg}

	if err := c.load(cfg.FrequencyHz); err != nil {
		return nil, err
	}
	if err := c.SetVolume(cfg.Volume); err != nil {
		return nil, err
	}
	out.Gate(false)

	return c, nil
}

func (c *Controller) load(hz int) error {
	buf, err := Generate(hz, c.cfg.SampleRate, c.cfg.BufferSeconds)
	if err != nil {
		return err
	}
	c.out.Load(Float32(buf))
	return nil
}

func (c *Controller) gate() {
	c.out.Gate(c.testing || (c.keyed && c.cfg.Enabled))
}

// KeyDown starts the tone if enabled
func (c *Controller) KeyDown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keyed = true
	c.gate()
}

// KeyUp stops the tone unless a test tone is playing
func (c *Controller) KeyUp() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keyed = false
	c.gate()
}

// Test plays or stops the tone independently of the key
func (c *Controller) Test(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.testing = on
	c.gate()
}

// Rewind restarts the tone buffer from the beginning
func (c *Controller) Rewind() {
	c.out.Rewind()
}

func (c *Controller) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Enabled = enabled
	c.gate()
}

func (c *Controller) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Enabled
}

// SetVolume sets the 0-100 volume
func (c *Controller) SetVolume(level int) error {
	if level < 0 || level > 100 {
		return fmt.Errorf("volume must be between 0 and 100, got %d", level)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Volume = level
	c.out.SetGain(Gain(level))
	return nil
}

func (c *Controller) Volume() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Volume
}

// SetFrequency regenerates the tone at hz
func (c *Controller) SetFrequency(hz int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.load(hz); err != nil {
		return err
	}
	c.cfg.FrequencyHz = hz

	logger.SafeDebug("sidetone", "Side-tone regenerated", map[string]interface{}{
		"frequency_hz": hz,
		"sample_rate":  c.cfg.SampleRate,
	})
	return nil
}

func (c *Controller) Frequency() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.FrequencyHz
}
