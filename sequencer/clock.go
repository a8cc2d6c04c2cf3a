package sequencer

import (
	"sync"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"

	"github.com/Daniel-Hillman/chop-shop-base44-sub003/config"
	"github.com/Daniel-Hillman/chop-shop-base44-sub003/debug"
)

// Tick is the scheduler's payload for one fired step. ScheduledAt is the
// pre-computed absolute time the step was armed for, never recomputed at
// fire time; that is what keeps the grid drift-free under jittery timers.
type Tick struct {
	Step        int
	ScheduledAt time.Time
}

// Scheduler produces step ticks at musically accurate times, independent of
// any render loop. A low-latency poll walks a lookahead window and arms each
// step exactly once on a deferred timer carrying its absolute time.
//
// State machine: idle → running → idle. There is no paused state; Stop
// resets the step position to 0.
type Scheduler struct {
	mu sync.Mutex

	bpm     float64
	running bool

	step     int       // next step index to arm
	nextTime time.Time // absolute time of that step

	lookahead    time.Duration
	pollInterval time.Duration

	onTick   func(Tick)
	stopChan chan struct{}

	// gen invalidates already-armed timers after Stop; a fired timer from a
	// previous run is discarded rather than delivered late.
	gen uint64

	now   func() time.Time
	after func(time.Duration, func()) *time.Timer
}

// NewScheduler creates a scheduler driven by the given monotonic time source.
// A nil time source is the one fatal construction error: scheduling itself
// does no I/O and cannot fail afterwards.
func NewScheduler(cfg *config.Config, now func() time.Time) (*Scheduler, error) {
	if now == nil {
		return nil, fault.New("scheduler constructed without a time source",
			ftag.With(TagValidation),
			fmsg.With("invalid scheduler construction"),
		)
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	return &Scheduler{
		bpm:          cfg.Pattern.DefaultBPM,
		lookahead:    cfg.Lookahead(),
		pollInterval: cfg.PollInterval(),
		now:          now,
		after:        time.AfterFunc,
	}, nil
}

// SetOnTick installs the tick callback. Must be set before Start.
func (s *Scheduler) SetOnTick(fn func(Tick)) {
	s.mu.Lock()
	s.onTick = fn
	s.mu.Unlock()
}

// SetBPM applies a tempo change. Only the future schedule is affected: steps
// already armed inside the lookahead window keep their absolute times, so a
// mid-flight change cannot double-fire or retroactively shift a near step.
func (s *Scheduler) SetBPM(bpm float64) {
	if bpm <= 0 {
		return
	}
	s.mu.Lock()
	s.bpm = bpm
	s.mu.Unlock()
}

// BPM returns the current tempo.
func (s *Scheduler) BPM() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bpm
}

// Running reports whether the scheduler is producing ticks.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start begins producing ticks from step 0 at the current time. Calling
// Start while running is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.step = 0
	s.nextTime = s.now()
	s.gen++
	s.stopChan = make(chan struct{})
	stop := s.stopChan
	s.mu.Unlock()

	debug.Log("clock", "scheduler started")
	s.poll()
	go s.pollLoop(stop)
}

// Stop halts future ticks immediately and resets the step position. Timers
// already armed may still fire but their ticks are discarded.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.gen++
	s.step = 0
	close(s.stopChan)
	s.stopChan = nil
	s.mu.Unlock()

	debug.Log("clock", "scheduler stopped")
}

func (s *Scheduler) pollLoop(stop chan struct{}) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.poll()
		}
	}
}

// poll arms every step whose absolute time falls inside the lookahead
// window. Each step is armed exactly once: nextTime only ever advances.
func (s *Scheduler) poll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	horizon := s.now().Add(s.lookahead)
	for s.nextTime.Before(horizon) {
		s.armLocked(s.step, s.nextTime)
		s.nextTime = s.nextTime.Add(s.stepDurationLocked())
		s.step = (s.step + 1) % NumSteps
	}
}

// armLocked defers one tick to its absolute time via the time source's own
// callback mechanism. The delay is measured once, here; the payload carries
// the pre-computed time so downstream latency cannot accumulate into drift.
func (s *Scheduler) armLocked(step int, at time.Time) {
	gen := s.gen
	fire := s.onTick

	delay := at.Sub(s.now())
	if delay < 0 {
		delay = 0
	}

	s.after(delay, func() {
		s.mu.Lock()
		live := s.running && s.gen == gen
		s.mu.Unlock()

		if live && fire != nil {
			fire(Tick{Step: step, ScheduledAt: at})
		}
	})
}

// stepDurationLocked is the length of one 16th note at the current tempo.
func (s *Scheduler) stepDurationLocked() time.Duration {
	return time.Duration(float64(time.Second) * 60.0 / s.bpm / 4.0)
}
