package keyer

// Transition is a debounced key state change
type Transition int

const (
	Up Transition = iota
	Down
)

// String returns the metric label of the transition
func (t Transition) String() string {
	if t == Down {
		return "down"
	}
	return "up"
}

// KeyEvent is a transition stamped with the local millisecond clock
type KeyEvent struct {
	Transition  Transition
	LocalMillis uint32
}

// Debouncer turns a polled key level into clean transitions. After every
// emitted transition the line is ignored for window ticks.
type Debouncer struct {
	window     int
	countdown  int
	lastStable bool
	primed     bool
}

// NewDebouncer creates a debouncer with a lockout of window ticks
func NewDebouncer(window int) *Debouncer {
	return &Debouncer{window: window}
}

// Sample feeds one tick's level (true = key down, polarity already applied).
// The first sample only establishes the resting level.
func (d *Debouncer) Sample(down bool) (Transition, bool) {
	if d.countdown > 0 {
		d.countdown--
		return Up, false
	}

	if !d.primed {
		d.primed = true
		d.lastStable = down
		return Up, false
	}

	if down == d.lastStable {
		return Up, false
	}

	d.lastStable = down
	d.countdown = d.window
	if down {
		return Down, true
	}
	return Up, true
}

// Tick is Sample for a line that is only read when the lockout has elapsed
func (d *Debouncer) Tick(read func() (bool, error)) (Transition, bool, error) {
	if d.countdown > 0 {
		d.countdown--
		return Up, false, nil
	}

	down, err := read()
	if err != nil {
		return Up, false, err
	}

	t, ok := d.Sample(down)
	return t, ok, nil
}

// Down reports the last stable level
func (d *Debouncer) Down() bool {
	return d.lastStable
}

// Reset forgets the resting level, e.g. after the key line was reopened
func (d *Debouncer) Reset() {
	d.countdown = 0
	d.primed = false
	d.lastStable = false
}
