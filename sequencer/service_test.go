package sequencer

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Daniel-Hillman/chop-shop-base44-sub003/config"
	"github.com/Daniel-Hillman/chop-shop-base44-sub003/player"
)

// fakeHandle is a minimal player implementation for service tests. Seeks are
// reported on a channel so tests can wait for the async dispatch.
type fakeHandle struct {
	mu       sync.Mutex
	seeks    []float64
	failNext int
	seekCh   chan float64
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{seekCh: make(chan float64, 32)}
}

func (f *fakeHandle) SeekTo(seconds float64, allowAhead bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return errors.New("seek rejected by player")
	}
	f.seeks = append(f.seeks, seconds)
	select {
	case f.seekCh <- seconds:
	default:
	}
	return nil
}

func (f *fakeHandle) CurrentTime() (float64, error) { return 0, nil }

func (f *fakeHandle) PlayerState() (player.State, error) { return player.StatePlaying, nil }

func (f *fakeHandle) seekCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seeks)
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(config.DefaultConfig())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(svc.Close)
	return svc
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestServiceSafeModeSkipsSeeks(t *testing.T) {
	svc := newTestService(t)
	svc.SetChops([]Chop{{PadID: "A0", StartTime: 12.5}})
	svc.ToggleStep(0, 0)

	var events []StepEvent
	svc.OnStep(func(evt StepEvent) { events = append(events, evt) })

	svc.onTick(Tick{Step: 0, ScheduledAt: time.Now()})

	if len(events) != 1 {
		t.Fatalf("got %d step events, want 1", len(events))
	}
	if len(events[0].Active) != 1 || events[0].Active[0].ChopID != "A0" {
		t.Fatalf("unexpected active triggers: %+v", events[0].Active)
	}

	stats := svc.Stats()
	if stats.SeeksSkipped != 1 {
		t.Errorf("SeeksSkipped = %d, want 1 (safe mode)", stats.SeeksSkipped)
	}
	if stats.SeeksDispatched != 0 {
		t.Errorf("SeeksDispatched = %d, want 0", stats.SeeksDispatched)
	}
}

func TestServiceDispatchesSeekForAssignedChop(t *testing.T) {
	svc := newTestService(t)
	handle := newFakeHandle()
	if err := svc.AttachPlayer(handle); err != nil {
		t.Fatal(err)
	}

	svc.SetChops([]Chop{{PadID: "A3", StartTime: 42.5, EndTime: 44}})
	svc.ToggleStep(3, 0)

	svc.onTick(Tick{Step: 0, ScheduledAt: time.Now()})

	select {
	case got := <-handle.seekCh:
		if got != 42.5 {
			t.Fatalf("seeked to %v, want 42.5", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no seek dispatched")
	}
	waitFor(t, "dispatch stat", func() bool { return svc.Stats().SeeksDispatched == 1 })
}

func TestServiceIgnoresUnassignedActiveSteps(t *testing.T) {
	svc := newTestService(t)
	handle := newFakeHandle()
	if err := svc.AttachPlayer(handle); err != nil {
		t.Fatal(err)
	}

	// Track 7 has an active step but no chop: legal, no side effect.
	svc.ToggleStep(7, 0)
	svc.onTick(Tick{Step: 0, ScheduledAt: time.Now()})

	time.Sleep(50 * time.Millisecond)
	if n := handle.seekCount(); n != 0 {
		t.Fatalf("%d seeks for an unassigned track, want 0", n)
	}
}

func TestServiceRetriesFailedSeekOnce(t *testing.T) {
	svc := newTestService(t)
	handle := newFakeHandle()
	handle.failNext = 1
	if err := svc.AttachPlayer(handle); err != nil {
		t.Fatal(err)
	}

	svc.SetChops([]Chop{{PadID: "A0", StartTime: 5}})
	svc.ToggleStep(0, 0)

	svc.onTick(Tick{Step: 0, ScheduledAt: time.Now()})

	waitFor(t, "recovered seek", func() bool {
		stats := svc.Stats()
		return stats.SeeksRecovered == 1 && stats.SeeksDispatched == 1
	})
	if n := handle.seekCount(); n != 1 {
		t.Fatalf("%d successful seeks, want 1", n)
	}
}

func TestServiceSurfacesPersistentSeekFailure(t *testing.T) {
	svc := newTestService(t)
	handle := newFakeHandle()
	handle.failNext = 2 // first attempt and the retry both fail
	if err := svc.AttachPlayer(handle); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var surfaced []ServiceError
	svc.OnError(func(e ServiceError) {
		mu.Lock()
		surfaced = append(surfaced, e)
		mu.Unlock()
	})

	svc.SetChops([]Chop{{PadID: "A0", StartTime: 5}})
	svc.ToggleStep(0, 0)
	svc.onTick(Tick{Step: 0, ScheduledAt: time.Now()})

	waitFor(t, "surfaced error", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(surfaced) == 1
	})
	waitFor(t, "failure stat", func() bool { return svc.Stats().SeeksFailed == 1 })
}

func TestPreservationUnderChopDeletion(t *testing.T) {
	svc := newTestService(t)

	svc.SetChops([]Chop{{PadID: "A0", StartTime: 0, EndTime: 2}})
	svc.ToggleStep(0, 0)

	bank, _ := svc.BankSnapshot(0)
	if bank.Tracks[0].ChopID != "A0" || !bank.Tracks[0].Steps[0].Active {
		t.Fatalf("setup failed: %+v", bank.Tracks[0])
	}

	svc.SetChops(nil)

	bank, _ = svc.BankSnapshot(0)
	if bank.Tracks[0].ChopID != "" {
		t.Errorf("chop id = %q after deletion, want empty", bank.Tracks[0].ChopID)
	}
	if !bank.Tracks[0].Steps[0].Active {
		t.Error("user-programmed trigger erased by chop deletion")
	}
}

func TestServiceAssignsChopsPerBank(t *testing.T) {
	svc := newTestService(t)

	svc.SetChops([]Chop{
		{PadID: "A0", StartTime: 1},
		{PadID: "B0", StartTime: 2},
		{PadID: "B9", StartTime: 3},
	})

	bankA, _ := svc.BankSnapshot(0)
	bankB, _ := svc.BankSnapshot(1)

	if bankA.Tracks[0].ChopID != "A0" {
		t.Errorf("bank A track 0 = %q, want A0", bankA.Tracks[0].ChopID)
	}
	if bankB.Tracks[0].ChopID != "B0" || bankB.Tracks[9].ChopID != "B9" {
		t.Errorf("bank B assignments wrong: %q / %q",
			bankB.Tracks[0].ChopID, bankB.Tracks[9].ChopID)
	}
	// Invariant: a track never references a chop from another bank.
	if bankA.Tracks[9].ChopID != "" {
		t.Errorf("bank A track 9 = %q, want empty", bankA.Tracks[9].ChopID)
	}
}

func TestServiceBankIsolation(t *testing.T) {
	svc := newTestService(t)

	svc.ToggleStep(0, 0)
	if err := svc.SwitchBank(1); err != nil {
		t.Fatal(err)
	}
	bankB, _ := svc.BankSnapshot(1)
	if bankB.Tracks[0].Steps[0].Active {
		t.Fatal("toggle bled across banks")
	}
	if err := svc.SwitchBank(0); err != nil {
		t.Fatal(err)
	}
	bankA, _ := svc.BankSnapshot(0)
	if !bankA.Tracks[0].Steps[0].Active {
		t.Fatal("bank A lost its step after a round trip")
	}
}

func TestServiceStateEvents(t *testing.T) {
	svc := newTestService(t)

	var mu sync.Mutex
	var states []StateEvent
	svc.OnStateChange(func(evt StateEvent) {
		mu.Lock()
		states = append(states, evt)
		mu.Unlock()
	})

	svc.SetBPM(100)
	svc.SwitchBank(1)
	svc.Start()
	svc.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(states) != 4 {
		t.Fatalf("got %d state events, want 4", len(states))
	}
	if states[0].BPM != 100 {
		t.Errorf("bpm event carried %v", states[0].BPM)
	}
	if states[1].CurrentBank != 1 {
		t.Errorf("bank event carried %d", states[1].CurrentBank)
	}
	if !states[2].Playing || states[3].Playing {
		t.Errorf("transport events wrong: %+v %+v", states[2], states[3])
	}
}

func TestUnsubscribeRemovesHandler(t *testing.T) {
	svc := newTestService(t)

	calls := 0
	unsub := svc.OnStep(func(StepEvent) { calls++ })

	svc.onTick(Tick{Step: 0, ScheduledAt: time.Now()})
	unsub()
	svc.onTick(Tick{Step: 1, ScheduledAt: time.Now()})

	if calls != 1 {
		t.Fatalf("handler called %d times, want 1", calls)
	}
}

func TestServiceStartStop(t *testing.T) {
	svc := newTestService(t)

	svc.Start()
	if !svc.Playing() {
		t.Fatal("not playing after Start")
	}
	svc.Stop()
	if svc.Playing() {
		t.Fatal("still playing after Stop")
	}
	if svc.CurrentStep() != 0 {
		t.Fatalf("current step = %d after Stop, want 0", svc.CurrentStep())
	}
}

func TestRestorePatternReappliesAssignments(t *testing.T) {
	svc := newTestService(t)
	svc.SetChops([]Chop{{PadID: "A2", StartTime: 7}})

	p := svc.PatternSnapshot()
	p.BPM = 90
	p.Banks[0].Tracks[2].Steps[4].Active = true
	// A stale reference in the snapshot must be reconciled on restore.
	p.Banks[0].Tracks[5].ChopID = "A5"

	if err := svc.RestorePattern(p); err != nil {
		t.Fatal(err)
	}

	if svc.BPM() != 90 {
		t.Errorf("bpm = %v, want 90", svc.BPM())
	}
	bank, _ := svc.BankSnapshot(0)
	if !bank.Tracks[2].Steps[4].Active {
		t.Error("restored step lost")
	}
	if bank.Tracks[2].ChopID != "A2" {
		t.Errorf("track 2 chop = %q, want A2", bank.Tracks[2].ChopID)
	}
	if bank.Tracks[5].ChopID != "" {
		t.Errorf("track 5 kept stale chop %q", bank.Tracks[5].ChopID)
	}
}
