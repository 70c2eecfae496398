package keyer

import "time"

// Event types published by a session
const (
	EventKey         = "key"
	EventLatency     = "latency"
	EventCalibration = "calibration"
	EventDelay       = "packet_delay"
	EventLink        = "link"
	EventKeyLine     = "key_line"
)

// Event is a session state change for live observers
type Event struct {
	Type string         `json:"type"`
	Time time.Time      `json:"time"`
	Data map[string]any `json:"data,omitempty"`
}

// EventSink receives session events. Publish must not block.
type EventSink interface {
	Publish(Event)
}

type discardSink struct{}

func (discardSink) Publish(Event) {}
