package keyline

import (
	"errors"
	"testing"

	"github.com/maximewewer/remotecw/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

type fakePort struct {
	bits   serial.ModemStatusBits
	err    error
	closed int
}

func (p *fakePort) GetModemStatusBits() (*serial.ModemStatusBits, error) {
	if p.err != nil {
		return nil, p.err
	}
	bits := p.bits
	return &bits, nil
}

func (p *fakePort) Close() error {
	p.closed++
	return nil
}

func TestSource_KeyDown(t *testing.T) {
	tests := []struct {
		name     string
		input    Input
		inverted bool
		bits     serial.ModemStatusBits
		want     bool
	}{
		{"cts_asserted", InputCTS, false, serial.ModemStatusBits{CTS: true}, true},
		{"cts_released", InputCTS, false, serial.ModemStatusBits{DSR: true}, false},
		{"dsr_asserted", InputDSR, false, serial.ModemStatusBits{DSR: true}, true},
		{"dsr_ignores_cts", InputDSR, false, serial.ModemStatusBits{CTS: true}, false},
		{"cts_inverted_asserted", InputCTS, true, serial.ModemStatusBits{CTS: true}, false},
		{"cts_inverted_released", InputCTS, true, serial.ModemStatusBits{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSource(&fakePort{bits: tt.bits}, tt.input, tt.inverted)

			down, err := s.KeyDown()

			require.NoError(t, err)
			assert.Equal(t, tt.want, down)
		})
	}
}

func TestSource_ReadError(t *testing.T) {
	ioErr := errors.New("input/output error")
	s := NewSource(&fakePort{err: ioErr}, InputCTS, false)

	_, err := s.KeyDown()

	assert.ErrorIs(t, err, ioErr)
}

func TestSource_Close(t *testing.T) {
	port := &fakePort{}
	s := NewSource(port, InputCTS, false)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, port.closed)

	_, err := s.KeyDown()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestParseInput(t *testing.T) {
	in, err := ParseInput("dsr")
	require.NoError(t, err)
	assert.Equal(t, InputDSR, in)
	assert.Equal(t, "dsr", in.String())

	in, err = ParseInput("cts")
	require.NoError(t, err)
	assert.Equal(t, "cts", in.String())

	_, err = ParseInput("ri")
	assert.Error(t, err)
}

func TestOpen_InvalidInput(t *testing.T) {
	cfg := config.DefaultConfig().Key
	cfg.Input = "ri"

	_, err := Open(cfg)

	assert.Error(t, err)
}

func TestOpen_MissingDevice(t *testing.T) {
	cfg := config.DefaultConfig().Key
	cfg.Device = "/dev/does-not-exist-remotecw"

	_, err := Open(cfg)

	assert.Error(t, err)
}
