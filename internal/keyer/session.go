// Package keyer turns key line transitions into timed KD/KU messages for a
// remote keyer, keeps the latency and clock offset estimate fresh and
// calibrates the packet delay.
//
// All session state is owned by the goroutine running Session.Run; other
// goroutines talk to it through the command methods.
package keyer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/maximewewer/remotecw/internal/protocol"
	"github.com/maximewewer/remotecw/pkg/logger"
	"github.com/maximewewer/remotecw/pkg/mathutil"
	"github.com/maximewewer/remotecw/pkg/metrics"
	"golang.org/x/time/rate"
)

var (
	// ErrSendFailed wraps every failed outgoing message
	ErrSendFailed = errors.New("send failed")

	// ErrNotConnected is returned when there is no link to send on
	ErrNotConnected = errors.New("not connected")

	// ErrStopped is returned by commands once the session loop has exited
	ErrStopped = errors.New("session stopped")
)

// Link is an established connection to the remote keyer
type Link interface {
	Send(b []byte) error
	// Chunks delivers received bytes and is closed when the link drops
	Chunks() <-chan []byte
	Close() error
}

// addressedLink is a Link that knows its peer address
type addressedLink interface {
	RemoteAddr() net.Addr
}

// KeySource reads the hardware key line
type KeySource interface {
	KeyDown() (bool, error)
	Close() error
}

// DialFunc establishes a Link
type DialFunc func(ctx context.Context) (Link, error)

// BreakerStateFunc reports the dial circuit breaker state
type BreakerStateFunc func() string

// OpenKeyLineFunc opens the configured key line
type OpenKeyLineFunc func() (KeySource, error)

// ToneController drives the local side-tone
type ToneController interface {
	KeyDown()
	KeyUp()
	Test(on bool)
	Rewind()
	SetEnabled(enabled bool)
	Enabled() bool
	SetVolume(level int) error
	Volume() int
	SetFrequency(hz int) error
	Frequency() int
}

// Dependencies are the collaborators of a Session. Nil fields get inert defaults.
type Dependencies struct {
	Clock       Clock
	Tone        ToneController
	Metrics     *metrics.KeyerMetrics
	Events      EventSink
	Dial        DialFunc
	DialBreaker BreakerStateFunc
	OpenKeyLine OpenKeyLineFunc
}

// SideToneState is the side-tone part of a Snapshot
type SideToneState struct {
	Enabled     bool `json:"enabled"`
	Volume      int  `json:"volume"`
	FrequencyHz int  `json:"frequency_hz"`
}

// Snapshot is a consistent copy of the session state
type Snapshot struct {
	SessionID            string        `json:"session_id"`
	Connected            bool          `json:"connected"`
	Peer                 string        `json:"peer,omitempty"`
	DialBreaker          string        `json:"dial_breaker,omitempty"`
	KeyLineOpen          bool          `json:"key_line_open"`
	KeyedDown            bool          `json:"keyed_down"`
	PacketDelayMs        uint32        `json:"packet_delay_ms"`
	ClockOffsetMs        int64         `json:"clock_offset_ms"`
	Latency              LatencyStats  `json:"latency"`
	Calibrating          bool          `json:"calibrating"`
	CalibrationRemaining uint32        `json:"calibration_remaining"`
	SideTone             SideToneState `json:"side_tone"`
	Framing              string        `json:"framing"`
	Ticks                uint64        `json:"ticks"`
	ProbesLost           uint64        `json:"probes_lost"`
}

type command struct {
	apply func(s *Session) error
	done  chan error
}

// Session is the keying controller for one client
type Session struct {
	id      string
	opts    Options
	clock   Clock
	tone    ToneController
	metrics *metrics.KeyerMetrics
	events  EventSink
	dial    DialFunc
	breaker BreakerStateFunc
	openKey OpenKeyLineFunc

	debounce *Debouncer
	latency  *LatencyEstimator
	calib    *Calibrator
	probes   *ProbeTracker
	framer   *protocol.Framer

	packetDelay uint32
	keyedDown   bool
	ticks       uint64
	pingCounter uint64
	probesLost  uint64

	link   Link
	peer   string
	chunks <-chan []byte
	key    KeySource

	warnLimiter *rate.Limiter

	commands chan command
	stopped  chan struct{}
}

// NewSession creates a session. It is idle until Run is called.
func NewSession(opts Options, deps Dependencies) *Session {
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.Tone == nil {
		deps.Tone = &silentTone{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewKeyerMetrics()
	}
	if deps.Events == nil {
		deps.Events = discardSink{}
	}
	if opts.PingEveryTicks < 1 {
		opts.PingEveryTicks = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Millisecond
	}
	if opts.ProbeTTL <= 0 {
		opts.ProbeTTL = 10 * time.Second
	}

	s := &Session{
		id:          uuid.NewString(),
		opts:        opts,
		clock:       deps.Clock,
		tone:        deps.Tone,
		metrics:     deps.Metrics,
		events:      deps.Events,
		dial:        deps.Dial,
		breaker:     deps.DialBreaker,
		openKey:     deps.OpenKeyLine,
		debounce:    NewDebouncer(opts.DebounceTicks),
		latency:     NewLatencyEstimator(opts.JitterWindow),
		calib:       NewCalibrator(opts.Calibration),
		probes:      NewProbeTracker(opts.ProbeTTL),
		framer:      protocol.NewFramer(opts.Framing),
		packetDelay: opts.PacketDelay,
		warnLimiter: rate.NewLimiter(rate.Every(time.Second), 5),
		commands:    make(chan command),
		stopped:     make(chan struct{}),
	}

	s.metrics.PacketDelaySeconds.Set(millisToSeconds(s.packetDelay))
	s.metrics.SideToneEnabled.Set(metrics.BoolToFloat(s.tone.Enabled()))

	return s
}

// ID returns the session identifier used in logs and events
func (s *Session) ID() string {
	return s.id
}

// Run drives the session until ctx is cancelled
func (s *Session) Run(ctx context.Context) error {
	defer s.teardown()

	poll := time.NewTicker(s.opts.PollInterval)
	defer poll.Stop()

	var rewind <-chan time.Time
	if s.opts.RewindInterval > 0 {
		t := time.NewTicker(s.opts.RewindInterval)
		defer t.Stop()
		rewind = t.C
	}

	logger.SafeInfo("keyer", "Keying session started", map[string]interface{}{
		"session":         s.id,
		"packet_delay_ms": s.packetDelay,
		"framing":         s.framer.Mode().String(),
	})

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-poll.C:
			s.handleTick(s.clock.NowMillis())

		case <-rewind:
			s.tone.Rewind()

		case chunk, ok := <-s.chunks:
			if !ok {
				s.detachLink(errors.New("connection closed"))
				continue
			}
			s.handleChunk(chunk, s.clock.NowMillis())

		case cmd := <-s.commands:
			cmd.done <- cmd.apply(s)

		case sweep := <-s.probes.Sweeps():
			s.recordLost(sweep())
		}
	}
}

func (s *Session) teardown() {
	close(s.stopped)

	now := s.clock.NowMillis()
	if s.key != nil {
		s.dropKeyLine(now, nil)
	} else if s.keyedDown {
		_ = s.keyTransition(Up, now)
	}
	s.detachLink(nil)
	s.probes.Stop()

	logger.SafeInfo("keyer", "Keying session stopped", map[string]interface{}{"session": s.id})
}

// handleTick runs once per poll interval
func (s *Session) handleTick(now uint32) {
	s.ticks++

	if s.key != nil {
		t, ok, err := s.debounce.Tick(s.key.KeyDown)
		switch {
		case err != nil:
			s.dropKeyLine(now, err)
		case ok:
			_ = s.keyTransition(t, now)
		}
	}

	if s.pingCounter%uint64(s.opts.PingEveryTicks) == 0 && s.link != nil {
		_ = s.sendPing(now)
	}
	s.pingCounter++
}

// keyTransition sends KD/KU with the current offset and delay and drives the tone
func (s *Session) keyTransition(t Transition, now uint32) error {
	keytime := protocol.KeyTime(s.latency.Offset(), now, s.packetDelay)

	var msg protocol.Message
	if t == Down {
		s.tone.KeyDown()
		msg = protocol.KeyDown(now, keytime)
	} else {
		msg = protocol.KeyUp(now, keytime)
	}
	s.keyedDown = t == Down

	err := s.send(msg)

	if t == Up {
		s.tone.KeyUp()
	}

	s.metrics.KeyEventsTotal.WithLabelValues(t.String()).Inc()
	logger.Keying(t.String(), map[string]interface{}{
		"local_ms":        now,
		"keytime":         keytime,
		"packet_delay_ms": s.packetDelay,
	})
	s.publish(EventKey, map[string]any{
		"transition": t.String(),
		"local_ms":   now,
		"keytime":    keytime,
		"sent":       err == nil,
	})

	return err
}

func (s *Session) send(msg protocol.Message) error {
	kind := msg.Kind.String()
	encoded := msg.Encode()

	var err error
	if s.link == nil {
		err = ErrNotConnected
	} else {
		err = s.link.Send(s.framer.Frame(encoded))
	}

	if err != nil {
		s.metrics.SendFailuresTotal.WithLabelValues(kind).Inc()
		err = fmt.Errorf("%w: %s: %w", ErrSendFailed, kind, err)
		s.warn("Failed to send message", err, map[string]interface{}{"message": encoded})
		return err
	}

	s.metrics.MessagesSentTotal.WithLabelValues(kind).Inc()
	logger.Protocol("out", encoded)

	if msg.IsProbe() {
		s.probes.Track(msg.LocalMillis)
	}
	return nil
}

func (s *Session) handleChunk(chunk []byte, now uint32) {
	lines, overflow := s.framer.Feed(chunk)
	if overflow > 0 {
		s.metrics.MalformedTotal.Add(float64(overflow))
		s.warn("Discarded oversized message", protocol.ErrMalformed, map[string]interface{}{"limit": protocol.MaxLineLength})
	}

	for _, line := range lines {
		s.handleLine(line, now)
	}
}

// handleLine processes one incoming message received at now
func (s *Session) handleLine(line string, now uint32) {
	logger.Protocol("in", line)

	resp, err := protocol.ParseProbeReply(line)
	switch {
	case errors.Is(err, protocol.ErrUnrecognized):
		s.metrics.MessagesReceivedTotal.WithLabelValues("other").Inc()
		s.metrics.UnrecognizedTotal.Inc()
		s.warn("Unknown data received", err, map[string]interface{}{"message": line})
		return
	case err != nil:
		s.metrics.MalformedTotal.Inc()
		s.warn("Malformed data received", err, map[string]interface{}{"message": line})
		return
	}

	s.metrics.MessagesReceivedTotal.WithLabelValues(resp.Tag).Inc()

	outcome := s.probes.Match(resp.Echo)
	s.metrics.ProbesTotal.WithLabelValues(outcome.String()).Inc()
	if outcome != ProbeMatched {
		logger.SafeDebug("keyer", "Probe reply without an outstanding probe", map[string]interface{}{
			"outcome": outcome.String(),
			"echo":    resp.Echo,
		})
	}

	half := s.latency.Observe(now, resp.Echo, resp.Remote)
	s.recordLatency(half)

	step := s.calib.OnSample(half)
	switch {
	case step.ProbeNext:
		_ = s.send(protocol.Probe(now))
	case step.Done:
		s.finishCalibration(step)
	}
}

func (s *Session) recordLatency(half uint32) {
	stats := s.latency.Stats()
	offset := mathutil.Signed(s.latency.Offset())

	s.metrics.OneWayLatencySeconds.WithLabelValues("last").Set(millisToSeconds(stats.LastMs))
	s.metrics.OneWayLatencySeconds.WithLabelValues("min").Set(millisToSeconds(stats.MinMs))
	s.metrics.OneWayLatencySeconds.WithLabelValues("max").Set(millisToSeconds(stats.MaxMs))
	s.metrics.OneWayLatencyDistribution.Observe(millisToSeconds(half))
	s.metrics.JitterSeconds.Set(stats.Jitter / 1000)
	s.metrics.RemoteClockOffsetSeconds.Set(float64(offset) / 1000)

	s.publish(EventLatency, map[string]any{
		"last_ms":         stats.LastMs,
		"min_ms":          stats.MinMs,
		"max_ms":          stats.MaxMs,
		"jitter_ms":       stats.Jitter,
		"clock_offset_ms": offset,
	})
}

func (s *Session) recordLost(lost int) {
	if lost == 0 {
		return
	}

	s.probesLost += uint64(lost)
	s.metrics.ProbesTotal.WithLabelValues("lost").Add(float64(lost))

	if s.calib.Active() {
		s.warn("Probe reply lost during calibration, run stalled", nil, map[string]interface{}{
			"lost":      lost,
			"remaining": s.calib.Remaining(),
		})
	}
}

// calibrate starts a run when idle and sends a probe either way
func (s *Session) calibrate(now uint32) error {
	started := s.calib.Trigger()

	if err := s.send(protocol.Probe(now)); err != nil {
		if started {
			// Nothing went out, so the run never began
			s.calib.Reset()
		}
		return err
	}

	if started {
		s.metrics.CalibrationRunsTotal.WithLabelValues("started").Inc()
		s.metrics.CalibrationInProgress.Set(1)
		logger.SafeInfo("keyer", "Delay calibration started", map[string]interface{}{
			"samples": s.opts.Calibration.Samples,
		})
		s.publish(EventCalibration, map[string]any{"state": "started"})
	}
	return nil
}

func (s *Session) finishCalibration(step CalibrationStep) {
	s.metrics.CalibrationRunsTotal.WithLabelValues("completed").Inc()
	s.metrics.CalibrationInProgress.Set(0)

	logger.SafeInfo("keyer", "Delay calibration completed", map[string]interface{}{
		"average_ms": step.Average,
		"delay_ms":   step.Delay,
	})
	s.publish(EventCalibration, map[string]any{
		"state":      "completed",
		"average_ms": step.Average,
		"delay_ms":   step.Delay,
	})

	s.setPacketDelay(step.Delay)
}

func (s *Session) setPacketDelay(ms uint32) {
	s.packetDelay = ms
	s.metrics.PacketDelaySeconds.Set(millisToSeconds(ms))
	s.publish(EventDelay, map[string]any{"packet_delay_ms": ms})
}

func (s *Session) attachLink(link Link, now uint32) {
	if s.link != nil {
		_ = s.link.Close()
	}

	s.link = link
	s.peer = ""
	if a, ok := link.(addressedLink); ok && a.RemoteAddr() != nil {
		s.peer = a.RemoteAddr().String()
	}
	s.chunks = link.Chunks()
	s.framer.Reset()
	// Ping on the next tick to get an offset before the first key event
	s.pingCounter = 0

	s.metrics.TransportConnected.Set(1)
	logger.SafeInfo("keyer", "Connected to remote keyer", map[string]interface{}{"peer": s.peer})
	s.publish(EventLink, map[string]any{"connected": true, "peer": s.peer})

	if s.opts.CalibrateOnConnect {
		_ = s.calibrate(now)
	}
}

func (s *Session) detachLink(cause error) {
	if s.link == nil {
		return
	}

	_ = s.link.Close()
	s.link = nil
	s.peer = ""
	s.chunks = nil
	s.framer.Reset()

	if s.calib.Active() {
		s.calib.Reset()
		s.metrics.CalibrationRunsTotal.WithLabelValues("aborted").Inc()
		s.metrics.CalibrationInProgress.Set(0)
	}

	s.metrics.TransportConnected.Set(0)
	if cause != nil {
		logger.Error("keyer", "Link to remote keyer lost", cause)
	} else {
		logger.Info("keyer", "Disconnected from remote keyer")
	}
	s.publish(EventLink, map[string]any{"connected": false})
}

func (s *Session) attachKeyLine(src KeySource) {
	if s.key != nil {
		_ = s.key.Close()
	}

	s.key = src
	s.debounce.Reset()

	s.metrics.KeyLineOpen.Set(1)
	logger.Info("keyer", "Key line opened")
	s.publish(EventKeyLine, map[string]any{"open": true})
}

// dropKeyLine stops key detection. A key held down is released at the
// remote end so the transmitter is not left keyed.
func (s *Session) dropKeyLine(now uint32, cause error) {
	if s.key == nil {
		return
	}

	if s.keyedDown {
		_ = s.keyTransition(Up, now)
	}

	_ = s.key.Close()
	s.key = nil
	s.debounce.Reset()

	s.metrics.KeyLineOpen.Set(0)
	if cause != nil {
		logger.Error("keyer", "Key line lost, key detection stopped", cause)
	} else {
		logger.Info("keyer", "Key line closed")
	}
	s.publish(EventKeyLine, map[string]any{"open": false})
}

func (s *Session) snapshot() Snapshot {
	return Snapshot{
		SessionID:            s.id,
		Connected:            s.link != nil,
		Peer:                 s.peer,
		DialBreaker:          s.breakerState(),
		KeyLineOpen:          s.key != nil,
		KeyedDown:            s.keyedDown,
		PacketDelayMs:        s.packetDelay,
		ClockOffsetMs:        mathutil.Signed(s.latency.Offset()),
		Latency:              s.latency.Stats(),
		Calibrating:          s.calib.Active(),
		CalibrationRemaining: s.calib.Remaining(),
		SideTone: SideToneState{
			Enabled:     s.tone.Enabled(),
			Volume:      s.tone.Volume(),
			FrequencyHz: s.tone.Frequency(),
		},
		Framing:    s.framer.Mode().String(),
		Ticks:      s.ticks,
		ProbesLost: s.probesLost,
	}
}

func (s *Session) breakerState() string {
	if s.breaker == nil {
		return ""
	}
	return s.breaker()
}

func (s *Session) publish(eventType string, data map[string]any) {
	s.events.Publish(Event{Type: eventType, Time: time.Now(), Data: data})
}

// warn logs through a limiter so a misbehaving peer cannot flood the log
func (s *Session) warn(message string, err error, fields map[string]interface{}) {
	if !s.warnLimiter.Allow() {
		return
	}
	l := logger.WithFields("keyer", fields)
	l.Warn().Err(err).Str("session", s.id).Msg(message)
}

func millisToSeconds(ms uint32) float64 {
	return float64(ms) / 1000
}

// silentTone is used when no audio output is configured
type silentTone struct {
	enabled   bool
	volume    int
	frequency int
}

func (t *silentTone) KeyDown()                  {}
func (t *silentTone) KeyUp()                    {}
func (t *silentTone) Test(bool)                 {}
func (t *silentTone) Rewind()                   {}
func (t *silentTone) SetEnabled(enabled bool)   { t.enabled = enabled }
func (t *silentTone) Enabled() bool             { return t.enabled }
func (t *silentTone) SetVolume(level int) error { t.volume = level; return nil }
func (t *silentTone) Volume() int               { return t.volume }
func (t *silentTone) SetFrequency(hz int) error { t.frequency = hz; return nil }
func (t *silentTone) Frequency() int            { return t.frequency }
