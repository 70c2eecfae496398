package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/maximewewer/remotecw/internal/keyer"
	"github.com/maximewewer/remotecw/pkg/logger"
)

const (
	subscriberQueue = 64
	eventTimeout    = 2 * time.Second
)

type subscriber struct {
	events  chan keyer.Event
	dropped atomic.Uint64
}

// Broadcaster fans session events out to websocket subscribers. Publish
// never blocks; a subscriber that falls behind loses events.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
}

// NewBroadcaster creates a broadcaster with no subscribers
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subscribers: make(map[string]*subscriber)}
}

// Publish implements keyer.EventSink
func (b *Broadcaster) Publish(e keyer.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		select {
		case sub.events <- e:
		default:
			sub.dropped.Add(1)
		}
	}
}

// Subscribe registers a new subscriber and returns its id and queue
func (b *Broadcaster) Subscribe() (string, <-chan keyer.Event) {
	id := uuid.NewString()
	sub := &subscriber{events: make(chan keyer.Event, subscriberQueue)}

	b.mu.Lock()
	b.subscribers[id] = sub
	b.mu.Unlock()

	logger.SafeDebug("server", "Event subscriber added", map[string]interface{}{"connection": id})
	return id, sub.events
}

// Unsubscribe removes a subscriber
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	sub, ok := b.subscribers[id]
	delete(b.subscribers, id)
	b.mu.Unlock()

	if ok {
		logger.SafeDebug("server", "Event subscriber removed", map[string]interface{}{
			"connection": id,
			"dropped":    sub.dropped.Load(),
		})
	}
}

// Subscribers returns the number of live subscribers
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// ServeHTTP streams events to a websocket client as JSON messages
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		logger.SafeWarn("server", "Websocket upgrade failed", map[string]interface{}{
			"remote": r.RemoteAddr,
			"error":  err.Error(),
		})
		return
	}
	defer conn.CloseNow()

	id, events := b.Subscribe()
	defer b.Unsubscribe(id)

	// Clients only listen; CloseRead handles their close frame
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-events:
			if err := b.write(ctx, conn, e); err != nil {
				if !errors.Is(err, context.Canceled) {
					logger.SafeDebug("server", "Event delivery failed", map[string]interface{}{
						"connection": id,
						"error":      err.Error(),
					})
				}
				return
			}
		}
	}
}

func (b *Broadcaster) write(ctx context.Context, conn *websocket.Conn, e keyer.Event) error {
	ctx, cancel := context.WithTimeout(ctx, eventTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, e)
}
