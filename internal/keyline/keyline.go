// Package keyline reads the Morse key from a serial port's modem status lines.
package keyline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/maximewewer/remotecw/internal/config"
	"github.com/maximewewer/remotecw/pkg/logger"
	"go.bug.st/serial"
)

// ErrClosed is returned when reading a closed key line
var ErrClosed = errors.New("key line closed")

// Input selects the status line the key is wired to
type Input int

const (
	InputCTS Input = iota
	InputDSR
)

// ParseInput accepts "cts" or "dsr"
func ParseInput(s string) (Input, error) {
	switch s {
	case "cts":
		return InputCTS, nil
	case "dsr":
		return InputDSR, nil
	}
	return 0, fmt.Errorf("unknown key input %q", s)
}

func (i Input) String() string {
	if i == InputDSR {
		return "dsr"
	}
	return "cts"
}

// ModemPort is the part of a serial port the key line needs
type ModemPort interface {
	GetModemStatusBits() (*serial.ModemStatusBits, error)
	Close() error
}

// Source reports the key level from one status line
type Source struct {
	mu       sync.Mutex
	port     ModemPort
	input    Input
	inverted bool
}

// NewSource wraps an open port
func NewSource(port ModemPort, input Input, inverted bool) *Source {
	return &Source{port: port, input: input, inverted: inverted}
}

// Open opens the configured device at the fixed key line settings
func Open(cfg config.KeyConfig) (*Source, error) {
	input, err := ParseInput(cfg.Input)
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: config.KeyBaudRate,
		DataBits: config.KeyDataBits,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", cfg.Device, err)
	}

	logger.SafeInfo("keyline", "Key line opened", map[string]interface{}{
		"device":   cfg.Device,
		"input":    input.String(),
		"polarity": cfg.Polarity,
	})

	return NewSource(port, input, cfg.Polarity == "inverted"), nil
}

// KeyDown samples the status line. An asserted line means key down unless
// the polarity is inverted.
func (s *Source) KeyDown() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return false, ErrClosed
	}

	bits, err := s.port.GetModemStatusBits()
	if err != nil {
		return false, fmt.Errorf("failed to read modem status: %w", err)
	}

	level := bits.CTS
	if s.input == InputDSR {
		level = bits.DSR
	}
	return level != s.inverted, nil
}

// Close releases the port. Closing twice is a no-op.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}

// Ports lists the serial devices present on the system
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}
