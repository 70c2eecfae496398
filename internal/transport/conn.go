// Package transport carries keying messages to the remote keyer over TCP.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/maximewewer/remotecw/internal/config"
	"github.com/maximewewer/remotecw/pkg/logger"
	"github.com/sony/gobreaker"
)

var (
	// ErrClosed is returned when sending on a closed connection
	ErrClosed = errors.New("connection closed")

	// ErrCircuitOpen is returned while repeated dial failures keep the breaker open
	ErrCircuitOpen = errors.New("circuit breaker open")
)

const readBufferSize = 4096

// Conn is a connection to the remote keyer. Received bytes are delivered on
// Chunks, which is closed when the peer goes away.
type Conn struct {
	conn         net.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	chunks    chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

// NewConn takes ownership of c and starts reading from it
func NewConn(c net.Conn, writeTimeout time.Duration) *Conn {
	conn := &Conn{
		conn:         c,
		writeTimeout: writeTimeout,
		chunks:       make(chan []byte, 16),
		closed:       make(chan struct{}),
	}
	go conn.readLoop()
	return conn
}

func (c *Conn) readLoop() {
	defer close(c.chunks)

	buf := make([]byte, readBufferSize)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case c.chunks <- chunk:
			case <-c.closed:
				return
			}
		}
		if err != nil {
			select {
			case <-c.closed:
			default:
				logger.SafeDebug("transport", "Read loop ended", map[string]interface{}{"error": err.Error()})
			}
			return
		}
	}
}

// Send writes b and waits at most the write timeout for it to leave
func (c *Conn) Send(b []byte) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}

	_, err := c.conn.Write(b)
	return err
}

// Chunks delivers received bytes
func (c *Conn) Chunks() <-chan []byte {
	return c.chunks
}

// Close closes the connection. Calling it again is a no-op.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

// RemoteAddr returns the peer address
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Dialer connects to the remote keyer, failing fast while the breaker is open
type Dialer struct {
	address      string
	timeout      time.Duration
	writeTimeout time.Duration
	breaker      *gobreaker.CircuitBreaker
}

// NewDialer creates a dialer for the configured remote keyer. A nil breaker
// config disables the breaker.
func NewDialer(cfg config.NetworkConfig, breaker *BreakerConfig) *Dialer {
	d := &Dialer{
		address:      cfg.Address(),
		timeout:      cfg.DialTimeout,
		writeTimeout: cfg.WriteTimeout,
	}
	if breaker != nil {
		d.breaker = newBreaker(d.address, *breaker)
	}
	return d
}

// Address returns host:port of the remote keyer
func (d *Dialer) Address() string {
	return d.address
}

// Dial opens a connection with Nagle's algorithm disabled
func (d *Dialer) Dial(ctx context.Context) (*Conn, error) {
	if d.breaker == nil {
		return d.dial(ctx)
	}

	result, err := d.breaker.Execute(func() (interface{}, error) {
		return d.dial(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w for %s: %w", ErrCircuitOpen, d.address, err)
		}
		return nil, err
	}

	return result.(*Conn), nil
}

func (d *Dialer) dial(ctx context.Context) (*Conn, error) {
	logger.Debugf("transport", "Dialing %s (timeout %s)", d.address, d.timeout)
	nd := net.Dialer{Timeout: d.timeout}

	c, err := nd.DialContext(ctx, "tcp", d.address)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", d.address, err)
	}

	if tcp, ok := c.(*net.TCPConn); ok {
		if err := tcp.SetNoDelay(true); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("failed to disable delayed send: %w", err)
		}
	}

	logger.SafeInfo("transport", "Connected", map[string]interface{}{
		"remote": d.address,
		"local":  c.LocalAddr().String(),
	})

	return NewConn(c, d.writeTimeout), nil
}

// State returns the breaker state, closed when the breaker is disabled
func (d *Dialer) State() gobreaker.State {
	if d.breaker == nil {
		return gobreaker.StateClosed
	}
	return d.breaker.State()
}
