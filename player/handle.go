// Package player wraps the external video-player control surface. The player
// is slow, asynchronous and prone to transient failure, so everything here is
// built around classifying failures and backing off instead of trusting it.
package player

// State reports what the external player is currently doing.
type State int

const (
	StateUnstarted State = iota
	StatePlaying
	StatePaused
	StateBuffering
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateBuffering:
		return "buffering"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Seeker jumps the player to an absolute position in the stream.
type Seeker interface {
	SeekTo(seconds float64, allowAhead bool) error
}

// TimeReporter reads the player's current position.
type TimeReporter interface {
	CurrentTime() (float64, error)
}

// StateReporter reads the player's transport state.
type StateReporter interface {
	PlayerState() (State, error)
}

// Transport starts and stops playback. Optional: some embeds expose seek-only
// control, in which case play/pause preservation is silently unavailable.
type Transport interface {
	Play() error
	Pause() error
}

// DurationReporter reads the total stream length. Optional.
type DurationReporter interface {
	Duration() (float64, error)
}

// Handle is the full capability set of a well-behaved player.
type Handle interface {
	Seeker
	TimeReporter
	StateReporter
}

// capabilities records which pieces of the control surface a connected handle
// actually exposes. Connect fills this by probing interfaces one by one so a
// partial handle still connects in a reduced-functionality mode.
type capabilities struct {
	seek      Seeker
	time      TimeReporter
	state     StateReporter
	transport Transport
	duration  DurationReporter
}

func probeCapabilities(handle any) capabilities {
	var caps capabilities
	if s, ok := handle.(Seeker); ok {
		caps.seek = s
	}
	if t, ok := handle.(TimeReporter); ok {
		caps.time = t
	}
	if st, ok := handle.(StateReporter); ok {
		caps.state = st
	}
	if tr, ok := handle.(Transport); ok {
		caps.transport = tr
	}
	if d, ok := handle.(DurationReporter); ok {
		caps.duration = d
	}
	return caps
}

// full reports whether the minimal set (seek, get-time, get-state) is present.
func (c capabilities) full() bool {
	return c.seek != nil && c.time != nil && c.state != nil
}
