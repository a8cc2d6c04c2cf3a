package player

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"

	"github.com/Daniel-Hillman/chop-shop-base44-sub003/config"
	"github.com/Daniel-Hillman/chop-shop-base44-sub003/debug"
)

// Degradation event types
const (
	EventDegradation = "degradation"
	EventRecovery    = "recovery"
)

// DegradationEvent is delivered to OnDegradation subscribers when the sync
// layer enters or leaves degraded mode.
type DegradationEvent struct {
	Type      string // EventDegradation or EventRecovery
	Reason    string
	Timestamp time.Time
}

// ErrorEvent is delivered to OnError subscribers for every classified failure.
type ErrorEvent struct {
	Message   string
	Kind      ftag.Kind
	Timestamp time.Time
}

// Stats is a point-in-time snapshot of the sync layer's counters.
type Stats struct {
	TotalSeeks         int
	SuccessfulSeeks    int
	FailedSeeks        int
	DegradedSkips      int
	AverageSeekLatency time.Duration
	DegradationEvents  int
	RecoveryEvents     int
	Connected          bool
	ReducedMode        bool
	Degraded           bool
}

type seekOptions struct {
	allowSeekAhead   bool
	maintainPlayback bool
}

// SeekOption customizes a JumpToTimestamp call. Defaults: seek-ahead allowed,
// playback state preserved across the seek.
type SeekOption func(*seekOptions)

// WithoutSeekAhead restricts the seek to already-buffered stream regions.
func WithoutSeekAhead() SeekOption {
	return func(o *seekOptions) { o.allowSeekAhead = false }
}

// WithoutPlaybackRestore skips capturing and re-applying play/pause state.
func WithoutPlaybackRestore() SeekOption {
	return func(o *seekOptions) { o.maintainPlayback = false }
}

// Sync serializes access to the external player and protects it from being
// hammered while broken. All methods are safe for concurrent use.
type Sync struct {
	mu sync.Mutex

	caps      capabilities
	connected bool
	reduced   bool

	settleDelay      time.Duration
	failureThreshold int
	failureWindow    time.Duration
	recoveryInterval time.Duration

	degraded      bool
	failures      []time.Time
	recoveryTimer *time.Timer

	// Last-seek-wins: a restore scheduled by seek n is dropped if seek n+1
	// has started by the time the settle delay elapses.
	seekGen   uint64
	restoring bool

	totalSeeks        int
	successfulSeeks   int
	failedSeeks       int
	degradedSkips     int
	latencySum        time.Duration
	latencySamples    int
	degradationEvents int
	recoveryEvents    int

	errorSubs       map[int]func(ErrorEvent)
	degradationSubs map[int]func(DegradationEvent)
	nextSubID       int

	// Injectable time source for tests
	now   func() time.Time
	after func(time.Duration, func()) *time.Timer
}

// NewSync creates a sync layer with no player attached. Every seek is a no-op
// until Connect succeeds.
func NewSync(cfg *config.Config) *Sync {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Sync{
		settleDelay:      cfg.SettleDelay(),
		failureThreshold: cfg.Sync.FailureThreshold,
		failureWindow:    cfg.FailureWindow(),
		recoveryInterval: cfg.RecoveryInterval(),
		errorSubs:        make(map[int]func(ErrorEvent)),
		degradationSubs:  make(map[int]func(DegradationEvent)),
		now:              time.Now,
		after:            time.AfterFunc,
	}
}

// Connect attaches a player handle. The handle is probed capability by
// capability; a handle missing optional pieces (transport, duration) or even
// parts of the minimal set still connects in reduced-functionality mode, and
// the missing operations become silent no-ops.
func (s *Sync) Connect(handle any) error {
	if handle == nil {
		return fault.New("connect with nil handle",
			ftag.With(TagValidation),
			fmsg.WithDesc("player handle is nil", "No video player is available to control."),
		)
	}

	caps := probeCapabilities(handle)
	if caps.seek == nil && caps.time == nil && caps.state == nil {
		return fault.New("handle exposes no player capabilities",
			ftag.With(TagValidation),
			fmsg.WithDesc("object implements none of the player interfaces", "The supplied player cannot be controlled."),
		)
	}

	s.mu.Lock()
	s.caps = caps
	s.connected = true
	s.reduced = !caps.full() || caps.transport == nil
	reduced := s.reduced
	s.mu.Unlock()

	debug.Log("sync", "connected player handle (reduced=%v)", reduced)
	return nil
}

// Disconnect detaches the player. Seeks become no-ops again.
func (s *Sync) Disconnect() {
	s.mu.Lock()
	s.caps = capabilities{}
	s.connected = false
	s.reduced = false
	s.mu.Unlock()
	debug.Log("sync", "player handle disconnected")
}

// Connected reports whether a handle is attached.
func (s *Sync) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Degraded reports whether the sync layer is currently refusing seeks.
func (s *Sync) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// JumpToTimestamp seeks the player to an absolute position. It returns true
// only when the underlying seek succeeded. Invalid timestamps are rejected
// before any I/O. In degraded mode it returns false immediately without
// touching the player. When playback restore is enabled the pre-seek
// play/pause state is re-applied after a short settle delay, because the
// underlying player may silently pause on seek.
func (s *Sync) JumpToTimestamp(ctx context.Context, seconds float64, opts ...SeekOption) (bool, error) {
	if !validTimestamp(seconds) {
		return false, errBadTimestamp("jump")
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	o := seekOptions{allowSeekAhead: true, maintainPlayback: true}
	for _, opt := range opts {
		opt(&o)
	}

	s.mu.Lock()
	if s.degraded {
		s.degradedSkips++
		s.mu.Unlock()
		return false, nil
	}
	if !s.connected || s.caps.seek == nil {
		s.mu.Unlock()
		return false, nil
	}
	s.totalSeeks++
	s.seekGen++
	gen := s.seekGen
	caps := s.caps
	s.mu.Unlock()

	// Capture play/pause state before the seek disturbs it.
	var prior State
	havePrior := false
	if o.maintainPlayback && caps.state != nil && caps.transport != nil {
		if st, err := caps.state.PlayerState(); err == nil {
			prior = st
			havePrior = true
		}
	}

	start := s.now()
	if err := caps.seek.SeekTo(seconds, o.allowSeekAhead); err != nil {
		kind := Classify(err)
		s.recordFailure(err, kind)
		return false, fault.Wrap(err,
			ftag.With(kind),
			fmsg.With("player seek failed"),
		)
	}
	s.recordSuccess(s.now().Sub(start))

	if havePrior {
		s.scheduleRestore(gen, prior, caps.transport)
	}
	return true, nil
}

// FastSeekForChop is the no-bookkeeping fast path used by the real-time
// trigger loop. It skips state capture entirely and reports failure as an
// error so the caller can decide between fallback and retry.
func (s *Sync) FastSeekForChop(seconds float64) error {
	if !validTimestamp(seconds) {
		return errBadTimestamp("chop trigger")
	}

	s.mu.Lock()
	if s.degraded {
		s.degradedSkips++
		s.mu.Unlock()
		return errDegradedSkip()
	}
	if !s.connected || s.caps.seek == nil {
		s.mu.Unlock()
		return fault.New("no seek capability",
			ftag.With(TagUnavailable),
			fmsg.WithDesc("player not connected or cannot seek", "No video player is available to trigger chops."),
		)
	}
	s.totalSeeks++
	s.seekGen++
	seeker := s.caps.seek
	s.mu.Unlock()

	if err := seeker.SeekTo(seconds, true); err != nil {
		kind := Classify(err)
		s.recordFailure(err, kind)
		return fault.Wrap(err, ftag.With(kind), fmsg.With("chop seek failed"))
	}

	s.mu.Lock()
	s.successfulSeeks++
	s.mu.Unlock()
	return nil
}

// Probe performs a lightweight connectivity check against the player without
// seeking. Used by the recovery loop and available to callers.
func (s *Sync) Probe() error {
	s.mu.Lock()
	caps := s.caps
	connected := s.connected
	s.mu.Unlock()

	if !connected {
		return fault.New("probe with no player attached", ftag.With(TagUnavailable))
	}
	switch {
	case caps.time != nil:
		_, err := caps.time.CurrentTime()
		return err
	case caps.state != nil:
		_, err := caps.state.PlayerState()
		return err
	default:
		// Seek-only handle: nothing cheap to ask, assume reachable.
		return nil
	}
}

// ForceRecovery exits degraded mode immediately without waiting for a probe.
// Returns whether the sync layer was degraded.
func (s *Sync) ForceRecovery() bool {
	s.mu.Lock()
	if !s.degraded {
		s.mu.Unlock()
		return false
	}
	notify := s.exitDegradedLocked("manual recovery")
	s.mu.Unlock()
	notify()
	return true
}

// OnError subscribes to classified player failures. The returned function
// removes the subscription.
func (s *Sync) OnError(fn func(ErrorEvent)) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.errorSubs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.errorSubs, id)
		s.mu.Unlock()
	}
}

// OnDegradation subscribes to degradation and recovery events. The returned
// function removes the subscription.
func (s *Sync) OnDegradation(fn func(DegradationEvent)) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.degradationSubs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.degradationSubs, id)
		s.mu.Unlock()
	}
}

// Stats returns a snapshot of the sync counters.
func (s *Sync) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Only timed seeks feed the average; the fast path records no latency.
	var avg time.Duration
	if s.latencySamples > 0 {
		avg = s.latencySum / time.Duration(s.latencySamples)
	}
	return Stats{
		TotalSeeks:         s.totalSeeks,
		SuccessfulSeeks:    s.successfulSeeks,
		FailedSeeks:        s.failedSeeks,
		DegradedSkips:      s.degradedSkips,
		AverageSeekLatency: avg,
		DegradationEvents:  s.degradationEvents,
		RecoveryEvents:     s.recoveryEvents,
		Connected:          s.connected,
		ReducedMode:        s.reduced,
		Degraded:           s.degraded,
	}
}

// Close stops the recovery timer and drops all subscriptions.
func (s *Sync) Close() {
	s.mu.Lock()
	if s.recoveryTimer != nil {
		s.recoveryTimer.Stop()
		s.recoveryTimer = nil
	}
	s.errorSubs = make(map[int]func(ErrorEvent))
	s.degradationSubs = make(map[int]func(DegradationEvent))
	s.mu.Unlock()
}

func validTimestamp(seconds float64) bool {
	return !math.IsNaN(seconds) && !math.IsInf(seconds, 0) && seconds >= 0
}

// scheduleRestore re-applies the pre-seek play/pause state after the settle
// delay. At most one restore is in flight; a newer seek supersedes it.
func (s *Sync) scheduleRestore(gen uint64, prior State, transport Transport) {
	s.mu.Lock()
	if s.restoring {
		s.mu.Unlock()
		return
	}
	s.restoring = true
	after := s.after
	s.mu.Unlock()

	after(s.settleDelay, func() {
		s.mu.Lock()
		s.restoring = false
		superseded := s.seekGen != gen || s.degraded
		s.mu.Unlock()
		if superseded {
			return
		}

		var err error
		switch prior {
		case StatePlaying, StateBuffering:
			err = transport.Play()
		case StatePaused:
			err = transport.Pause()
		default:
			return
		}
		if err != nil {
			// Restore failures count like any other player failure.
			s.recordFailure(err, Classify(err))
		}
	})
}

func (s *Sync) recordSuccess(latency time.Duration) {
	s.mu.Lock()
	s.successfulSeeks++
	s.latencySum += latency
	s.latencySamples++
	s.mu.Unlock()
}

// recordFailure counts a classified failure, surfaces it to subscribers and
// trips degraded mode when the sliding window fills up. Permanent failures
// are reported but do not feed the degradation counter.
func (s *Sync) recordFailure(err error, kind ftag.Kind) {
	now := s.now()

	s.mu.Lock()
	s.failedSeeks++

	var notifyDegradation func()
	if Retryable(kind) {
		cutoff := now.Add(-s.failureWindow)
		kept := s.failures[:0]
		for _, t := range s.failures {
			if t.After(cutoff) {
				kept = append(kept, t)
			}
		}
		s.failures = append(kept, now)

		if !s.degraded && len(s.failures) >= s.failureThreshold {
			notifyDegradation = s.enterDegradedLocked("failure threshold exceeded")
		}
	}

	errSubs := make([]func(ErrorEvent), 0, len(s.errorSubs))
	for _, fn := range s.errorSubs {
		errSubs = append(errSubs, fn)
	}
	s.mu.Unlock()

	evt := ErrorEvent{Message: err.Error(), Kind: kind, Timestamp: now}
	for _, fn := range errSubs {
		fn(evt)
	}
	if notifyDegradation != nil {
		notifyDegradation()
	}
}

// enterDegradedLocked flips the degraded flag and arms the recovery timer.
// Caller holds s.mu; the returned closure must be called after unlocking.
func (s *Sync) enterDegradedLocked(reason string) func() {
	s.degraded = true
	s.degradationEvents++
	s.armRecoveryLocked()
	debug.Warn("sync", "entering degraded mode: %s", reason)
	return s.notifyDegradationLocked(DegradationEvent{
		Type:      EventDegradation,
		Reason:    reason,
		Timestamp: s.now(),
	})
}

func (s *Sync) exitDegradedLocked(reason string) func() {
	s.degraded = false
	s.failures = nil
	s.recoveryEvents++
	if s.recoveryTimer != nil {
		s.recoveryTimer.Stop()
		s.recoveryTimer = nil
	}
	debug.Log("sync", "recovered from degraded mode: %s", reason)
	return s.notifyDegradationLocked(DegradationEvent{
		Type:      EventRecovery,
		Reason:    reason,
		Timestamp: s.now(),
	})
}

// armRecoveryLocked is the only place the recovery timer is created, so a
// burst of failures cannot stack duplicate timers.
func (s *Sync) armRecoveryLocked() {
	if s.recoveryTimer != nil {
		s.recoveryTimer.Stop()
	}
	s.recoveryTimer = s.after(s.recoveryInterval, s.recoveryProbe)
}

// recoveryProbe runs on the recovery timer while degraded. A successful probe
// exits degraded mode; a failed one re-arms the same timer.
func (s *Sync) recoveryProbe() {
	s.mu.Lock()
	if !s.degraded {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	err := s.Probe()

	s.mu.Lock()
	if !s.degraded {
		s.mu.Unlock()
		return
	}
	if err != nil {
		debug.Log("sync", "recovery probe failed: %v", err)
		s.armRecoveryLocked()
		s.mu.Unlock()
		return
	}
	notify := s.exitDegradedLocked("recovery probe succeeded")
	s.mu.Unlock()
	notify()
}

func (s *Sync) notifyDegradationLocked(evt DegradationEvent) func() {
	subs := make([]func(DegradationEvent), 0, len(s.degradationSubs))
	for _, fn := range s.degradationSubs {
		subs = append(subs, fn)
	}
	return func() {
		for _, fn := range subs {
			fn(evt)
		}
	}
}
