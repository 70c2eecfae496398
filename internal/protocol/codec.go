// Package protocol encodes keying messages for the remote keyer and parses
// its responses.
//
// Outgoing:
//
//	KD <local_ms> <keytime>   key down
//	KU <local_ms> <keytime>   key up
//	P <local_ms>              keepalive ping
//	P  <local_ms>             calibration probe (double space)
//
// Incoming:
//
//	<tag> <echo_ms> <remote_ms>   only PP is acted upon
package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/maximewewer/remotecw/pkg/mathutil"
)

// Message tags
const (
	TagKeyDown    = "KD"
	TagKeyUp      = "KU"
	TagPing       = "P"
	TagProbeReply = "PP"
)

var (
	// ErrMalformed is returned for lines that are not "<tag> <u32> <u32>"
	ErrMalformed = errors.New("malformed message")

	// ErrUnrecognized is returned for well-formed lines with a tag the client does not handle
	ErrUnrecognized = errors.New("unrecognized message")
)

// Kind identifies an outgoing message
type Kind int

const (
	KindKeyDown Kind = iota
	KindKeyUp
	KindPing
	KindProbe
)

// String returns the metric label of the kind
func (k Kind) String() string {
	switch k {
	case KindKeyDown:
		return "key_down"
	case KindKeyUp:
		return "key_up"
	case KindPing:
		return "ping"
	case KindProbe:
		return "calibration_probe"
	default:
		return "unknown"
	}
}

// Message is an outgoing message. KeyTime is only carried by key messages.
type Message struct {
	Kind        Kind
	LocalMillis uint32
	KeyTime     uint32
}

// KeyDown builds a KD message
func KeyDown(local, keytime uint32) Message {
	return Message{Kind: KindKeyDown, LocalMillis: local, KeyTime: keytime}
}

// KeyUp builds a KU message
func KeyUp(local, keytime uint32) Message {
	return Message{Kind: KindKeyUp, LocalMillis: local, KeyTime: keytime}
}

// Ping builds a keepalive ping
func Ping(local uint32) Message {
	return Message{Kind: KindPing, LocalMillis: local}
}

// Probe builds a calibration probe
func Probe(local uint32) Message {
	return Message{Kind: KindProbe, LocalMillis: local}
}

// Encode renders the message without a terminator
func (m Message) Encode() string {
	local := strconv.FormatUint(uint64(m.LocalMillis), 10)

	switch m.Kind {
	case KindKeyDown:
		return TagKeyDown + " " + local + " " + strconv.FormatUint(uint64(m.KeyTime), 10)
	case KindKeyUp:
		return TagKeyUp + " " + local + " " + strconv.FormatUint(uint64(m.KeyTime), 10)
	case KindProbe:
		return TagPing + "  " + local
	default:
		return TagPing + " " + local
	}
}

// IsProbe reports whether the message asks the remote end for a PP reply
func (m Message) IsProbe() bool {
	return m.Kind == KindPing || m.Kind == KindProbe
}

// KeyTime returns the remote instant at which a transition sampled at local
// should take effect: offset + local + delay, modulo 2^32.
func KeyTime(offset, local, delay uint32) uint32 {
	return mathutil.WrapAdd(offset, local, delay)
}

// Response is a parsed incoming line
type Response struct {
	Tag    string
	Echo   uint32
	Remote uint32
}

// Parse splits a line into exactly three whitespace-separated tokens: a tag
// and two unsigned 32-bit integers. Any other shape is ErrMalformed.
func Parse(line string) (Response, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return Response{}, fmt.Errorf("%w: expected 3 fields, got %d", ErrMalformed, len(fields))
	}

	echo, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	remote, err := strconv.ParseUint(fields[2], 10, 32)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return Response{Tag: fields[0], Echo: uint32(echo), Remote: uint32(remote)}, nil
}

// ParseProbeReply parses a line and requires the PP tag. Well-formed lines
// with another tag return the parsed response with ErrUnrecognized.
func ParseProbeReply(line string) (Response, error) {
	resp, err := Parse(line)
	if err != nil {
		return resp, err
	}
	if resp.Tag != TagProbeReply {
		return resp, fmt.Errorf("%w: tag %q", ErrUnrecognized, resp.Tag)
	}
	return resp, nil
}
