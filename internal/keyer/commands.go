package keyer

import (
	"context"
	"errors"
	"fmt"

	"github.com/maximewewer/remotecw/internal/protocol"
	"github.com/maximewewer/remotecw/pkg/metrics"
)

// do runs fn on the session goroutine and waits for its result
func (s *Session) do(ctx context.Context, fn func(s *Session) error) error {
	cmd := command{apply: fn, done: make(chan error, 1)}

	select {
	case s.commands <- cmd:
	case <-s.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connect dials the remote keyer and attaches the link, replacing any previous one
func (s *Session) Connect(ctx context.Context) error {
	if s.dial == nil {
		return errors.New("no remote keyer configured")
	}

	link, err := s.dial(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to remote keyer: %w", err)
	}

	err = s.do(ctx, func(s *Session) error {
		s.attachLink(link, s.clock.NowMillis())
		return nil
	})
	if err != nil {
		_ = link.Close()
		return err
	}
	return nil
}

// Disconnect closes the link to the remote keyer
func (s *Session) Disconnect(ctx context.Context) error {
	return s.do(ctx, func(s *Session) error {
		s.detachLink(nil)
		return nil
	})
}

// OpenKeyLine opens the hardware key line and starts key detection
func (s *Session) OpenKeyLine(ctx context.Context) error {
	if s.openKey == nil {
		return errors.New("no key line configured")
	}

	src, err := s.openKey()
	if err != nil {
		return fmt.Errorf("failed to open key line: %w", err)
	}

	err = s.do(ctx, func(s *Session) error {
		s.attachKeyLine(src)
		return nil
	})
	if err != nil {
		_ = src.Close()
		return err
	}
	return nil
}

// CloseKeyLine stops key detection and closes the key line
func (s *Session) CloseKeyLine(ctx context.Context) error {
	return s.do(ctx, func(s *Session) error {
		s.dropKeyLine(s.clock.NowMillis(), nil)
		return nil
	})
}

// Calibrate triggers a delay calibration run. While a run is in progress it
// only sends one more probe.
func (s *Session) Calibrate(ctx context.Context) error {
	return s.do(ctx, func(s *Session) error {
		return s.calibrate(s.clock.NowMillis())
	})
}

// Ping sends a keepalive probe now
func (s *Session) Ping(ctx context.Context) error {
	return s.do(ctx, func(s *Session) error {
		return s.sendPing(s.clock.NowMillis())
	})
}

// SetPacketDelay overrides the packet delay added to every key time
func (s *Session) SetPacketDelay(ctx context.Context, ms uint32) error {
	return s.do(ctx, func(s *Session) error {
		s.setPacketDelay(ms)
		return nil
	})
}

// SetSideTone enables or disables the side-tone on key events
func (s *Session) SetSideTone(ctx context.Context, enabled bool) error {
	return s.do(ctx, func(s *Session) error {
		s.setSideTone(enabled)
		return nil
	})
}

// SetVolume sets the side-tone volume on the 0-100 logarithmic scale
func (s *Session) SetVolume(ctx context.Context, level int) error {
	return s.do(ctx, func(s *Session) error {
		return s.tone.SetVolume(level)
	})
}

// SetFrequency regenerates the side-tone at hz
func (s *Session) SetFrequency(ctx context.Context, hz int) error {
	return s.do(ctx, func(s *Session) error {
		return s.tone.SetFrequency(hz)
	})
}

// ManualKey keys the remote end without the key line, like a front panel button
func (s *Session) ManualKey(ctx context.Context, down bool) error {
	return s.do(ctx, func(s *Session) error {
		t := Up
		if down {
			t = Down
		}
		return s.keyTransition(t, s.clock.NowMillis())
	})
}

// ToneTest plays or stops the side-tone regardless of the enabled flag
func (s *Session) ToneTest(ctx context.Context, on bool) error {
	return s.do(ctx, func(s *Session) error {
		s.tone.Test(on)
		return nil
	})
}

// Snapshot returns a copy of the session state
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.do(ctx, func(s *Session) error {
		snap = s.snapshot()
		return nil
	})
	return snap, err
}

func (s *Session) sendPing(now uint32) error {
	return s.send(protocol.Ping(now))
}

func (s *Session) setSideTone(enabled bool) {
	s.tone.SetEnabled(enabled)
	s.metrics.SideToneEnabled.Set(metrics.BoolToFloat(enabled))
}
