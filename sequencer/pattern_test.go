package sequencer

import (
	"testing"

	"github.com/Southclaws/fault/ftag"

	"github.com/Daniel-Hillman/chop-shop-base44-sub003/config"
)

func newTestStore(t *testing.T) *PatternStore {
	t.Helper()
	return NewPatternStore(config.DefaultConfig())
}

func checkStructure(t *testing.T, s *PatternStore) {
	t.Helper()
	p := s.PatternSnapshot()
	if len(p.Banks) != s.TotalBanks() {
		t.Fatalf("banks length %d != totalBanks %d", len(p.Banks), s.TotalBanks())
	}
	for b, bank := range p.Banks {
		if bank.BankIndex != b {
			t.Errorf("bank %d has index %d", b, bank.BankIndex)
		}
		if len(bank.Tracks) != NumTracks {
			t.Fatalf("bank %d has %d tracks", b, len(bank.Tracks))
		}
		for tr, track := range bank.Tracks {
			if len(track.Steps) != NumSteps {
				t.Fatalf("bank %d track %d has %d steps", b, tr, len(track.Steps))
			}
		}
	}
}

func TestStoreStructuralInvariants(t *testing.T) {
	s := newTestStore(t)
	checkStructure(t, s)

	s.ToggleStep(0, 0)
	s.ToggleStep(15, 15)
	s.SetStepVelocity(3, 4, 0.5)
	s.SwitchBank(1)
	s.SetBPM(999)
	checkStructure(t, s)

	if err := s.SetTotalBanks(4); err != nil {
		t.Fatalf("expand failed: %v", err)
	}
	checkStructure(t, s)

	if err := s.SetTotalBanks(2); err != nil {
		t.Fatalf("shrink failed: %v", err)
	}
	checkStructure(t, s)
}

func TestToggleStepReturnsNewState(t *testing.T) {
	s := newTestStore(t)

	on, err := s.ToggleStep(2, 7)
	if err != nil || !on {
		t.Fatalf("first toggle: got %v/%v, want true/nil", on, err)
	}
	off, err := s.ToggleStep(2, 7)
	if err != nil || off {
		t.Fatalf("second toggle: got %v/%v, want false/nil", off, err)
	}
}

func TestToggleStepRangeErrors(t *testing.T) {
	s := newTestStore(t)

	for _, tc := range [][2]int{{-1, 0}, {16, 0}, {0, -1}, {0, 16}} {
		_, err := s.ToggleStep(tc[0], tc[1])
		if err == nil {
			t.Errorf("ToggleStep(%d,%d) should fail", tc[0], tc[1])
			continue
		}
		if ftag.Get(err) != TagRange {
			t.Errorf("ToggleStep(%d,%d) error kind = %q, want %q", tc[0], tc[1], ftag.Get(err), TagRange)
		}
	}
}

func TestSwitchBankOutOfRange(t *testing.T) {
	s := newTestStore(t)

	if err := s.SwitchBank(1); err != nil {
		t.Fatalf("valid switch failed: %v", err)
	}
	err := s.SwitchBank(2)
	if err == nil {
		t.Fatal("switch to bank 2 of 2 should fail")
	}
	if ftag.Get(err) != TagRange {
		t.Errorf("error kind = %q, want %q", ftag.Get(err), TagRange)
	}
	if s.CurrentBank() != 1 {
		t.Errorf("failed switch moved current bank to %d", s.CurrentBank())
	}
}

func TestBankIsolation(t *testing.T) {
	s := newTestStore(t)

	s.ToggleStep(0, 0)
	if err := s.SwitchBank(1); err != nil {
		t.Fatal(err)
	}

	bankB, _ := s.BankSnapshot(1)
	if bankB.Tracks[0].Steps[0].Active {
		t.Fatal("step (0,0) bled into bank B")
	}

	if err := s.SwitchBank(0); err != nil {
		t.Fatal(err)
	}
	bankA, _ := s.BankSnapshot(0)
	if !bankA.Tracks[0].Steps[0].Active {
		t.Fatal("step (0,0) on bank A lost after switching away and back")
	}
}

func TestExpandPreservesAndZeroInitializes(t *testing.T) {
	s := newTestStore(t)
	s.ToggleStep(5, 5)

	if err := s.SetTotalBanks(4); err != nil {
		t.Fatal(err)
	}

	bankA, _ := s.BankSnapshot(0)
	if !bankA.Tracks[5].Steps[5].Active {
		t.Fatal("expansion lost existing bank content")
	}
	for b := 2; b < 4; b++ {
		bank, err := s.BankSnapshot(b)
		if err != nil {
			t.Fatal(err)
		}
		for tr := range bank.Tracks {
			if bank.Tracks[tr].ChopID != "" {
				t.Fatalf("new bank %d track %d has a chop assigned", b, tr)
			}
			for st := range bank.Tracks[tr].Steps {
				if bank.Tracks[tr].Steps[st].Active {
					t.Fatalf("new bank %d has an active step at (%d,%d)", b, tr, st)
				}
			}
		}
	}
}

func TestSetTotalBanksRejectsOddSizes(t *testing.T) {
	s := newTestStore(t)
	for _, n := range []int{0, 1, 3, 5, 16} {
		if err := s.SetTotalBanks(n); err == nil {
			t.Errorf("SetTotalBanks(%d) should fail", n)
		}
	}
}

func TestShrinkClampsCurrentBank(t *testing.T) {
	s := newTestStore(t)
	s.SetTotalBanks(4)
	s.SwitchBank(3)

	if err := s.SetTotalBanks(2); err != nil {
		t.Fatal(err)
	}
	if s.CurrentBank() != 1 {
		t.Errorf("current bank = %d after shrink, want 1", s.CurrentBank())
	}
}

func TestBPMClamping(t *testing.T) {
	s := newTestStore(t)

	if got := s.SetBPM(10); got != 40 {
		t.Errorf("SetBPM(10) = %v, want clamp to 40", got)
	}
	if got := s.SetBPM(1000); got != 240 {
		t.Errorf("SetBPM(1000) = %v, want clamp to 240", got)
	}
	if got := s.SetBPM(128); got != 128 {
		t.Errorf("SetBPM(128) = %v", got)
	}
}

func TestVelocityClampedAndDefaulted(t *testing.T) {
	s := newTestStore(t)

	bank, _ := s.BankSnapshot(0)
	if v := bank.Tracks[0].Steps[0].Velocity; v != 1.0 {
		t.Errorf("default velocity = %v, want 1.0", v)
	}

	s.SetStepVelocity(0, 0, 2.5)
	bank, _ = s.BankSnapshot(0)
	if v := bank.Tracks[0].Steps[0].Velocity; v != 1.0 {
		t.Errorf("velocity = %v after over-range set, want clamp to 1.0", v)
	}

	s.SetStepVelocity(0, 0, -1)
	bank, _ = s.BankSnapshot(0)
	if v := bank.Tracks[0].Steps[0].Velocity; v != 0 {
		t.Errorf("velocity = %v after under-range set, want clamp to 0", v)
	}
}

func TestApplyAssignmentsPreservesSteps(t *testing.T) {
	s := newTestStore(t)
	s.ToggleStep(0, 0)

	chop := Chop{PadID: "A0", StartTime: 0, EndTime: 2}
	s.ApplyAssignments(0, map[int]*Chop{0: &chop})

	bank, _ := s.BankSnapshot(0)
	if bank.Tracks[0].ChopID != "A0" {
		t.Fatalf("chop id = %q, want A0", bank.Tracks[0].ChopID)
	}
	if !bank.Tracks[0].Steps[0].Active {
		t.Fatal("assignment cleared a user-programmed step")
	}

	// Chop removed from the list: the reference clears, the trigger stays.
	s.ApplyAssignments(0, Assign(nil, 0))
	bank, _ = s.BankSnapshot(0)
	if bank.Tracks[0].ChopID != "" {
		t.Fatalf("chop id = %q after removal, want empty", bank.Tracks[0].ChopID)
	}
	if !bank.Tracks[0].Steps[0].Active {
		t.Fatal("chop removal erased a user-programmed trigger")
	}
}

func TestBankSnapshotIsACopy(t *testing.T) {
	s := newTestStore(t)

	snap, _ := s.BankSnapshot(0)
	snap.Tracks[0].Steps[0].Active = true

	fresh, _ := s.BankSnapshot(0)
	if fresh.Tracks[0].Steps[0].Active {
		t.Fatal("mutating a snapshot leaked into the store")
	}
}

func TestRestoreValidatesStructure(t *testing.T) {
	s := newTestStore(t)

	if err := s.Restore(Pattern{BPM: 120, Banks: newBanks(3)}); err == nil {
		t.Error("restore with 3 banks should fail")
	}
	if err := s.Restore(Pattern{BPM: 120, CurrentBank: 5, Banks: newBanks(2)}); err == nil {
		t.Error("restore with out-of-range current bank should fail")
	}

	good := Pattern{BPM: 90, CurrentBank: 1, Banks: newBanks(4)}
	good.Banks[1].Tracks[2].Steps[3].Active = true
	if err := s.Restore(good); err != nil {
		t.Fatalf("valid restore failed: %v", err)
	}
	if s.TotalBanks() != 4 || s.CurrentBank() != 1 || s.BPM() != 90 {
		t.Errorf("restore state mismatch: banks=%d current=%d bpm=%v",
			s.TotalBanks(), s.CurrentBank(), s.BPM())
	}
	bank, _ := s.BankSnapshot(1)
	if !bank.Tracks[2].Steps[3].Active {
		t.Error("restore lost step content")
	}
}
