// Package audio plays the side-tone on a PortAudio output device.
package audio

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
	"github.com/maximewewer/remotecw/pkg/logger"
)

// ErrDeviceNotFound is returned when no output device matches the selection
var ErrDeviceNotFound = errors.New("audio device not found")

// buffersPerSecond sizes each output buffer to about 5 ms
const buffersPerSecond = 200

// Player loops a tone on an output stream while its gate is open
type Player struct {
	stream *portaudio.Stream
	frames []float32

	mu   sync.Mutex
	tone []float32
	pos  int

	gate   atomic.Bool
	gain   atomic.Uint64
	rewind atomic.Bool

	quit chan struct{}
	done chan struct{}
}

// Open initializes PortAudio and starts a mono output stream on device. An
// empty device selects the default output; otherwise device is a 1-based
// index or a name prefix.
func Open(device string, sampleRate int) (*Player, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	info, err := findOutput(device)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	p := newPlayer(sampleRate / buffersPerSecond)

	params := portaudio.LowLatencyParameters(nil, info)
	params.Input.Channels = 0
	params.Output.Channels = 1
	params.SampleRate = float64(sampleRate)
	params.FramesPerBuffer = len(p.frames)

	stream, err := portaudio.OpenStream(params, p.frames)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("open output: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("start output: %w", err)
	}
	p.stream = stream

	logger.SafeInfo("audio", "Side-tone output started", map[string]interface{}{
		"device":      info.Name,
		"sample_rate": sampleRate,
		"frames":      len(p.frames),
	})

	go p.pump()
	return p, nil
}

func newPlayer(frames int) *Player {
	if frames < 1 {
		frames = 1
	}
	p := &Player{
		frames: make([]float32, frames),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	p.gain.Store(math.Float64bits(1))
	return p
}

func findOutput(device string) (*portaudio.DeviceInfo, error) {
	if device == "" {
		info, err := portaudio.DefaultOutputDevice()
		if err != nil {
			return nil, fmt.Errorf("%w: no default output: %v", ErrDeviceNotFound, err)
		}
		return info, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	return selectDevice(devices, device)
}

// selectDevice picks an output device by its 1-based position among output
// devices (the numbering OutputDevices prints) or by name prefix
func selectDevice(devices []*portaudio.DeviceInfo, device string) (*portaudio.DeviceInfo, error) {
	outputs := outputsOf(devices)

	if i, err := strconv.Atoi(device); err == nil && i > 0 && i <= len(outputs) {
		return outputs[i-1], nil
	}

	for _, d := range outputs {
		if strings.HasPrefix(d.Name, device) {
			return d, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, device)
}

func outputsOf(devices []*portaudio.DeviceInfo) []*portaudio.DeviceInfo {
	var outputs []*portaudio.DeviceInfo
	for _, d := range devices {
		if d.MaxOutputChannels > 0 {
			outputs = append(outputs, d)
		}
	}
	return outputs
}

// OutputDevices lists the names of devices able to play audio. Position i in
// the result is selected by device "i+1".
func OutputDevices() ([]string, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}

	var names []string
	for _, d := range outputsOf(devices) {
		names = append(names, d.Name)
	}
	return names, nil
}

// Load replaces the looped tone
func (p *Player) Load(samples []float32) {
	p.mu.Lock()
	p.tone = samples
	p.pos = 0
	p.mu.Unlock()
}

// Gate opens or closes the output
func (p *Player) Gate(open bool) {
	p.gate.Store(open)
}

// SetGain sets the linear output gain
func (p *Player) SetGain(gain float64) {
	p.gain.Store(math.Float64bits(gain))
}

// Rewind restarts the tone from its first sample
func (p *Player) Rewind() {
	p.rewind.Store(true)
}

// fill renders the next buffer of output
func (p *Player) fill() {
	if p.rewind.Swap(false) {
		p.mu.Lock()
		p.pos = 0
		p.mu.Unlock()
	}

	if !p.gate.Load() {
		clear(p.frames)
		return
	}

	gain := float32(math.Float64frombits(p.gain.Load()))

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.tone) == 0 {
		clear(p.frames)
		return
	}
	for i := range p.frames {
		if p.pos >= len(p.tone) {
			p.pos = 0
		}
		p.frames[i] = p.tone[p.pos] * gain
		p.pos++
	}
}

func (p *Player) pump() {
	defer close(p.done)

	for {
		select {
		case <-p.quit:
			return
		default:
		}

		p.fill()
		if err := p.stream.Write(); err != nil {
			// Underflows are audible as a click but not fatal
			logger.SafeDebug("audio", "Output write failed", map[string]interface{}{"error": err.Error()})
		}
	}
}

// Close stops the stream and releases PortAudio
func (p *Player) Close() error {
	close(p.quit)
	<-p.done

	var errs []error
	if err := p.stream.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := p.stream.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := portaudio.Terminate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
