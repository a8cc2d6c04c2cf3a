package sequencer

import (
	"sync"
	"time"

	"github.com/Daniel-Hillman/chop-shop-base44-sub003/config"
	"github.com/Daniel-Hillman/chop-shop-base44-sub003/debug"
	"github.com/Daniel-Hillman/chop-shop-base44-sub003/player"
)

// TrackTrigger is one track that fired on a step, resolved to its chop.
type TrackTrigger struct {
	TrackIndex int
	ChopID     string
	StartTime  float64
	Velocity   float64
}

// StepEvent is delivered to OnStep subscribers for every fired step.
type StepEvent struct {
	Step        int
	ScheduledAt time.Time
	Active      []TrackTrigger
}

// StateEvent is delivered to OnStateChange subscribers when transport, tempo
// or bank state changes.
type StateEvent struct {
	Playing     bool
	BPM         float64
	CurrentBank int
	CurrentStep int
}

// ServiceError is delivered to OnError subscribers. Errors here never stop
// playback; they are informational.
type ServiceError struct {
	Message   string
	Timestamp time.Time
}

// ServiceStats counts what the trigger loop has done.
type ServiceStats struct {
	TicksFired      int
	SeeksDispatched int
	SeeksSkipped    int // degraded-mode and safe-mode skips
	SeeksFailed     int
	SeeksRecovered  int // succeeded on the one-shot retry
}

// Service wires the scheduler's ticks to the pattern store, the chop
// assignments and the player sync layer, and exposes the only public API the
// UI consumes. It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	store *PatternStore
	clock *Scheduler
	sync  *player.Sync

	chops  []Chop
	chopBy map[string]Chop

	playing     bool
	currentStep int
	stats       ServiceStats

	stepSubs  map[int]func(StepEvent)
	stateSubs map[int]func(StateEvent)
	errorSubs map[int]func(ServiceError)
	nextSubID int
}

// NewService builds a stopped service with an empty pattern and no player
// attached. Without a player it runs in safe mode: the clock and the pattern
// are fully functional, only seeks are skipped.
func NewService(cfg *config.Config) (*Service, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	clock, err := NewScheduler(cfg, time.Now)
	if err != nil {
		return nil, err
	}

	s := &Service{
		store:     NewPatternStore(cfg),
		clock:     clock,
		sync:      player.NewSync(cfg),
		chopBy:    make(map[string]Chop),
		stepSubs:  make(map[int]func(StepEvent)),
		stateSubs: make(map[int]func(StateEvent)),
		errorSubs: make(map[int]func(ServiceError)),
	}
	clock.SetOnTick(s.onTick)
	return s, nil
}

// AttachPlayer connects an external player handle to the sync layer.
func (s *Service) AttachPlayer(handle any) error {
	return s.sync.Connect(handle)
}

// DetachPlayer returns the service to safe mode.
func (s *Service) DetachPlayer() {
	s.sync.Disconnect()
}

// Player exposes the sync layer for degradation subscriptions and stats.
func (s *Service) Player() *player.Sync {
	return s.sync
}

// Start begins playback from step 0.
func (s *Service) Start() {
	s.mu.Lock()
	if s.playing {
		s.mu.Unlock()
		return
	}
	s.playing = true
	s.currentStep = 0
	notify := s.stateEventLocked()
	s.mu.Unlock()

	s.clock.SetBPM(s.BPM())
	s.clock.Start()
	notify()
	debug.Log("service", "playback started")
}

// Stop halts playback immediately. In-flight seeks settle on their own and
// their results are discarded.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.playing {
		s.mu.Unlock()
		return
	}
	s.playing = false
	s.currentStep = 0
	notify := s.stateEventLocked()
	s.mu.Unlock()

	s.clock.Stop()
	notify()
	debug.Log("service", "playback stopped")
}

// Playing reports whether the clock is running.
func (s *Service) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// CurrentStep returns the most recently fired step index.
func (s *Service) CurrentStep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentStep
}

// SetBPM clamps and applies a tempo change, returning the applied value.
// Steps already armed inside the lookahead window keep their times.
func (s *Service) SetBPM(bpm float64) float64 {
	s.mu.Lock()
	applied := s.store.SetBPM(bpm)
	notify := s.stateEventLocked()
	s.mu.Unlock()

	s.clock.SetBPM(applied)
	notify()
	return applied
}

// BPM returns the current tempo.
func (s *Service) BPM() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.BPM()
}

// ToggleStep flips a step on the current bank and returns its new state.
func (s *Service) ToggleStep(trackIndex, stepIndex int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.ToggleStep(trackIndex, stepIndex)
}

// SetStepVelocity sets a step's velocity on the current bank.
func (s *Service) SetStepVelocity(trackIndex, stepIndex int, velocity float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.SetStepVelocity(trackIndex, stepIndex, velocity)
}

// SwitchBank changes the active bank.
func (s *Service) SwitchBank(index int) error {
	s.mu.Lock()
	err := s.store.SwitchBank(index)
	var notify func()
	if err == nil {
		notify = s.stateEventLocked()
	}
	s.mu.Unlock()

	if notify != nil {
		notify()
	}
	return err
}

// CurrentBank returns the active bank index.
func (s *Service) CurrentBank() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.CurrentBank()
}

// TotalBanks returns the bank count.
func (s *Service) TotalBanks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.TotalBanks()
}

// SetTotalBanks resizes the pattern and reassigns chops over the new layout.
func (s *Service) SetTotalBanks(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.SetTotalBanks(n); err != nil {
		return err
	}
	s.reassignLocked()
	return nil
}

// BankSnapshot returns a copy of one bank.
func (s *Service) BankSnapshot(index int) (Bank, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.BankSnapshot(index)
}

// PatternSnapshot returns a deep copy of the whole pattern.
func (s *Service) PatternSnapshot() Pattern {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.PatternSnapshot()
}

// RestorePattern replaces the pattern wholesale, then reapplies the current
// chop list so every chop reference stays consistent with it.
func (s *Service) RestorePattern(p Pattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Restore(p); err != nil {
		return err
	}
	s.reassignLocked()
	s.clock.SetBPM(s.store.BPM())
	return nil
}

// SetChops replaces the chop list snapshot and reruns assignment for every
// bank. The incoming slice is copied and never mutated.
func (s *Service) SetChops(chops []Chop) {
	s.mu.Lock()
	s.chops = make([]Chop, len(chops))
	copy(s.chops, chops)

	s.chopBy = make(map[string]Chop, len(chops))
	for _, c := range s.chops {
		s.chopBy[c.PadID] = c
	}

	s.reassignLocked()
	s.mu.Unlock()

	debug.Log("service", "chop list replaced: %d chops", len(chops))
}

// ReassignAll reruns chop→track assignment with the current chop list.
func (s *Service) ReassignAll() {
	s.mu.Lock()
	s.reassignLocked()
	s.mu.Unlock()
}

// Chops returns a copy of the current chop list snapshot.
func (s *Service) Chops() []Chop {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Chop, len(s.chops))
	copy(out, s.chops)
	return out
}

// Stats returns a snapshot of the trigger-loop counters.
func (s *Service) Stats() ServiceStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// OnStep subscribes to fired steps. The returned function unsubscribes.
func (s *Service) OnStep(fn func(StepEvent)) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.stepSubs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.stepSubs, id)
		s.mu.Unlock()
	}
}

// OnStateChange subscribes to transport/tempo/bank changes.
func (s *Service) OnStateChange(fn func(StateEvent)) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.stateSubs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.stateSubs, id)
		s.mu.Unlock()
	}
}

// OnError subscribes to surfaced seek failures.
func (s *Service) OnError(fn func(ServiceError)) func() {
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

// Close stops playback and releases the sync layer.
func (s *Service) Close() {
	s.Stop()
	s.sync.Close()
}

// reassignLocked reruns the assigner for every bank. Caller holds s.mu.
func (s *Service) reassignLocked() {
	for b := 0; b < s.store.TotalBanks(); b++ {
		mapping := Assign(s.chops, b)
		// Bank index came from TotalBanks, the apply cannot fail.
		s.store.ApplyAssignments(b, mapping)
	}
}

// onTick runs on the scheduler's timer goroutines. It resolves the active
// steps for the tick and dispatches each seek fire-and-forget: a slow or
// failing seek never delays the next tick.
func (s *Service) onTick(t Tick) {
	s.mu.Lock()
	s.currentStep = t.Step
	s.stats.TicksFired++

	bank := s.store.CurrentBank()
	snapshot, err := s.store.BankSnapshot(bank)
	if err != nil {
		s.mu.Unlock()
		return
	}

	var active []TrackTrigger
	for ti := 0; ti < NumTracks; ti++ {
		track := snapshot.Tracks[ti]
		step := track.Steps[t.Step]
		if !step.Active {
			continue
		}

		trigger := TrackTrigger{
			TrackIndex: ti,
			ChopID:     track.ChopID,
			Velocity:   step.Velocity,
		}
		if chop, ok := s.chopBy[track.ChopID]; track.ChopID != "" && ok {
			trigger.StartTime = chop.StartTime
		} else {
			// Active step on an unassigned track: the trigger is kept
			// visible but produces no playback side effect.
			trigger.ChopID = ""
		}
		active = append(active, trigger)
	}

	connected := s.sync.Connected()
	stepSubs := make([]func(StepEvent), 0, len(s.stepSubs))
	for _, fn := range s.stepSubs {
		stepSubs = append(stepSubs, fn)
	}
	s.mu.Unlock()

	evt := StepEvent{Step: t.Step, ScheduledAt: t.ScheduledAt, Active: active}
	for _, fn := range stepSubs {
		fn(evt)
	}

	for _, trigger := range active {
		if trigger.ChopID == "" {
			continue
		}
		if !connected {
			s.mu.Lock()
			s.stats.SeeksSkipped++
			s.mu.Unlock()
			continue
		}
		go s.dispatchSeek(trigger)
	}
}

// dispatchSeek triggers one chop via the fast path. On a retryable failure
// it attempts a single recovery probe and retries once; persistent failure
// is surfaced and dropped, never allowed to halt playback.
func (s *Service) dispatchSeek(trigger TrackTrigger) {
	err := s.sync.FastSeekForChop(trigger.StartTime)
	if err == nil {
		s.mu.Lock()
		s.stats.SeeksDispatched++
		s.mu.Unlock()
		return
	}

	if player.IsDegradedSkip(err) {
		s.mu.Lock()
		s.stats.SeeksSkipped++
		s.mu.Unlock()
		return
	}

	kind := player.Classify(err)
	if player.Retryable(kind) && s.sync.Probe() == nil {
		if retryErr := s.sync.FastSeekForChop(trigger.StartTime); retryErr == nil {
			s.mu.Lock()
			s.stats.SeeksDispatched++
			s.stats.SeeksRecovered++
			s.mu.Unlock()
			return
		}
	}

	s.mu.Lock()
	s.stats.SeeksFailed++
	errorSubs := make([]func(ServiceError), 0, len(s.errorSubs))
	for _, fn := range s.errorSubs {
		errorSubs = append(errorSubs, fn)
	}
	s.mu.Unlock()

	debug.Warn("service", "chop %s seek failed (%s): %v", trigger.ChopID, kind, err)
	evt := ServiceError{Message: err.Error(), Timestamp: time.Now()}
	for _, fn := range errorSubs {
		fn(evt)
	}
}

// stateEventLocked builds the state-change notification. Caller holds s.mu;
// the returned closure must be called after unlocking.
func (s *Service) stateEventLocked() func() {
	evt := StateEvent{
		Playing:     s.playing,
		BPM:         s.store.BPM(),
		CurrentBank: s.store.CurrentBank(),
		CurrentStep: s.currentStep,
	}
	subs := make([]func(StateEvent), 0, len(s.stateSubs))
	for _, fn := range s.stateSubs {
		subs = append(subs, fn)
	}
	return func() {
		for _, fn := range subs {
			fn(evt)
		}
	}
}
