package protocol

import (
	"bytes"
	"fmt"
	"strings"
)

// MaxLineLength caps the bytes buffered while waiting for a terminator
const MaxLineLength = 4096

// Framing selects how messages are delimited on the stream
type Framing int

const (
	// FramingNewline terminates every message with '\n' and reassembles
	// lines split across reads.
	FramingNewline Framing = iota

	// FramingLegacy treats every read as exactly one message and sends no
	// terminator. Messages split or coalesced by the network are mis-parsed.
	FramingLegacy
)

// ParseFraming maps a configuration value to a Framing
func ParseFraming(s string) (Framing, error) {
	switch strings.ToLower(s) {
	case "", "newline":
		return FramingNewline, nil
	case "legacy":
		return FramingLegacy, nil
	default:
		return 0, fmt.Errorf("unknown framing %q", s)
	}
}

// String returns the configuration name of the framing
func (f Framing) String() string {
	if f == FramingLegacy {
		return "legacy"
	}
	return "newline"
}

// Framer turns outgoing messages into wire bytes and incoming chunks into
// lines. It is not safe for concurrent use.
type Framer struct {
	mode Framing
	buf  []byte
}

// NewFramer creates a framer for mode
func NewFramer(mode Framing) *Framer {
	return &Framer{mode: mode}
}

// Mode returns the framing in use
func (f *Framer) Mode() Framing {
	return f.mode
}

// Frame returns the wire bytes for an encoded message
func (f *Framer) Frame(encoded string) []byte {
	if f.mode == FramingLegacy {
		return []byte(encoded)
	}
	return []byte(encoded + "\n")
}

// Feed consumes a chunk read from the stream and returns the complete
// messages it finishes. overflow reports how many oversized partial lines
// were discarded.
func (f *Framer) Feed(chunk []byte) (lines []string, overflow int) {
	if f.mode == FramingLegacy {
		if len(chunk) == 0 {
			return nil, 0
		}
		return []string{string(chunk)}, 0
	}

	f.buf = append(f.buf, chunk...)

	for {
		i := bytes.IndexByte(f.buf, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimSuffix(string(f.buf[:i]), "\r")
		f.buf = f.buf[i+1:]
		if line != "" {
			lines = append(lines, line)
		}
	}

	if len(f.buf) > MaxLineLength {
		f.buf = nil
		overflow++
	}

	// Release the consumed prefix once nothing is pending
	if len(f.buf) == 0 {
		f.buf = nil
	}

	return lines, overflow
}

// Pending returns the number of buffered bytes not yet forming a line
func (f *Framer) Pending() int {
	return len(f.buf)
}

// Reset drops any partial line, for use after a reconnect
func (f *Framer) Reset() {
	f.buf = nil
}
