package keyer

import (
	"errors"
	"net"
	"strings"
	"sync"
)

type fakeLink struct {
	mu      sync.Mutex
	sent    []string
	sendErr error
	chunks  chan []byte
	closed  bool
}

func newFakeLink() *fakeLink {
	return &fakeLink{chunks: make(chan []byte, 16)}
}

func (l *fakeLink) Send(b []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sendErr != nil {
		return l.sendErr
	}
	l.sent = append(l.sent, string(b))
	return nil
}

func (l *fakeLink) Chunks() <-chan []byte {
	return l.chunks
}

func (l *fakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *fakeLink) Sent() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.sent...)
}

func (l *fakeLink) Last() string {
	sent := l.Sent()
	if len(sent) == 0 {
		return ""
	}
	return sent[len(sent)-1]
}

func (l *fakeLink) CountPrefix(prefix string) int {
	n := 0
	for _, m := range l.Sent() {
		if strings.HasPrefix(m, prefix) {
			n++
		}
	}
	return n
}

func (l *fakeLink) IsClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// tcpLink is a fakeLink that reports a TCP peer like transport.Conn does
type tcpLink struct {
	*fakeLink
	addr *net.TCPAddr
}

func (l *tcpLink) RemoteAddr() net.Addr {
	return l.addr
}

type fakeKey struct {
	down   bool
	err    error
	reads  int
	closed bool
}

func (k *fakeKey) KeyDown() (bool, error) {
	k.reads++
	return k.down, k.err
}

func (k *fakeKey) Close() error {
	k.closed = true
	return nil
}

type fakeTone struct {
	calls     []string
	enabled   bool
	volume    int
	frequency int
}

func (t *fakeTone) KeyDown() { t.calls = append(t.calls, "down") }
func (t *fakeTone) KeyUp()   { t.calls = append(t.calls, "up") }
func (t *fakeTone) Test(on bool) {
	t.calls = append(t.calls, map[bool]string{true: "test_on", false: "test_off"}[on])
}
func (t *fakeTone) Rewind()           { t.calls = append(t.calls, "rewind") }
func (t *fakeTone) SetEnabled(e bool) { t.enabled = e }
func (t *fakeTone) Enabled() bool     { return t.enabled }
func (t *fakeTone) Volume() int       { return t.volume }
func (t *fakeTone) Frequency() int    { return t.frequency }
func (t *fakeTone) SetFrequency(hz int) error {
	if hz <= 0 {
		return errors.New("invalid frequency")
	}
	t.frequency = hz
	return nil
}
func (t *fakeTone) SetVolume(level int) error {
	if level < 0 || level > 100 {
		return errors.New("invalid volume")
	}
	t.volume = level
	return nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) Publish(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recordingSink) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, 0, len(r.events))
	for _, e := range r.events {
		types = append(types, e.Type)
	}
	return types
}
