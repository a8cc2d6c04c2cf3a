package sequencer

import (
	"fmt"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"

	"github.com/Daniel-Hillman/chop-shop-base44-sub003/config"
)

const (
	NumTracks = 16
	NumSteps  = 16
	MinBanks  = 2
	MaxBanks  = 4
)

// Step is one programmable pulse in a track.
type Step struct {
	Active   bool    `json:"active"`
	Velocity float64 `json:"velocity"` // 0..1
}

// Track is one sequencable lane. ChopID is empty when no chop is assigned;
// an active step on an unassigned track is legal and persisted, it just
// produces no playback side effect.
type Track struct {
	TrackIndex int            `json:"trackIndex"`
	ChopID     string         `json:"chopId,omitempty"`
	Steps      [NumSteps]Step `json:"steps"`
}

// Bank is one page of 16 tracks.
type Bank struct {
	BankIndex int              `json:"bankIndex"`
	Tracks    [NumTracks]Track `json:"tracks"`
}

// Pattern is the whole programmable song unit.
type Pattern struct {
	BPM         float64 `json:"bpm"`
	CurrentBank int     `json:"currentBankIndex"`
	Banks       []Bank  `json:"banks"`
}

// PatternStore owns the pattern data and its structural invariants. It does
// no I/O and is not internally synchronized: it has a single owner (the
// service), which serializes access.
type PatternStore struct {
	pattern Pattern
	minBPM  float64
	maxBPM  float64
}

// NewPatternStore creates a store with the configured bank count and BPM.
func NewPatternStore(cfg *config.Config) *PatternStore {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	totalBanks := cfg.Pattern.TotalBanks
	if totalBanks != MinBanks && totalBanks != MaxBanks {
		totalBanks = MinBanks
	}

	s := &PatternStore{
		minBPM: cfg.Pattern.MinBPM,
		maxBPM: cfg.Pattern.MaxBPM,
	}
	s.pattern = Pattern{
		BPM:         s.clampBPM(cfg.Pattern.DefaultBPM),
		CurrentBank: 0,
		Banks:       newBanks(totalBanks),
	}
	return s
}

func newBanks(n int) []Bank {
	banks := make([]Bank, n)
	for b := range banks {
		banks[b] = newBank(b)
	}
	return banks
}

func newBank(index int) Bank {
	bank := Bank{BankIndex: index}
	for t := range bank.Tracks {
		bank.Tracks[t].TrackIndex = t
		for st := range bank.Tracks[t].Steps {
			bank.Tracks[t].Steps[st].Velocity = 1.0
		}
	}
	return bank
}

// ToggleStep flips a step on the current bank and returns its new state.
func (s *PatternStore) ToggleStep(trackIndex, stepIndex int) (bool, error) {
	if err := checkTrackStep(trackIndex, stepIndex); err != nil {
		return false, err
	}
	step := &s.pattern.Banks[s.pattern.CurrentBank].Tracks[trackIndex].Steps[stepIndex]
	step.Active = !step.Active
	return step.Active, nil
}

// SetStepVelocity sets a step's velocity on the current bank, clamped to [0,1].
func (s *PatternStore) SetStepVelocity(trackIndex, stepIndex int, velocity float64) error {
	if err := checkTrackStep(trackIndex, stepIndex); err != nil {
		return err
	}
	if velocity < 0 {
		velocity = 0
	} else if velocity > 1 {
		velocity = 1
	}
	s.pattern.Banks[s.pattern.CurrentBank].Tracks[trackIndex].Steps[stepIndex].Velocity = velocity
	return nil
}

// SwitchBank changes the active bank. The bank keeps the exact step and chop
// state it had the last time it was active.
func (s *PatternStore) SwitchBank(index int) error {
	if index < 0 || index >= len(s.pattern.Banks) {
		return fault.New(fmt.Sprintf("bank index %d out of range [0,%d)", index, len(s.pattern.Banks)),
			ftag.With(TagRange),
			fmsg.With("bank switch rejected"),
		)
	}
	s.pattern.CurrentBank = index
	return nil
}

// SetTotalBanks resizes the pattern to 2 or 4 banks. Expansion preserves
// existing banks and zero-initializes the new ones; shrinking truncates the
// tail and clamps the current bank index.
func (s *PatternStore) SetTotalBanks(n int) error {
	if n != MinBanks && n != MaxBanks {
		return fault.New(fmt.Sprintf("total banks must be %d or %d, got %d", MinBanks, MaxBanks, n),
			ftag.With(TagValidation),
			fmsg.With("bank resize rejected"),
		)
	}

	current := len(s.pattern.Banks)
	switch {
	case n > current:
		for b := current; b < n; b++ {
			s.pattern.Banks = append(s.pattern.Banks, newBank(b))
		}
	case n < current:
		s.pattern.Banks = s.pattern.Banks[:n]
		if s.pattern.CurrentBank >= n {
			s.pattern.CurrentBank = n - 1
		}
	}
	return nil
}

// SetBPM clamps and applies a BPM change, returning the applied value.
func (s *PatternStore) SetBPM(bpm float64) float64 {
	s.pattern.BPM = s.clampBPM(bpm)
	return s.pattern.BPM
}

// BPM returns the current tempo.
func (s *PatternStore) BPM() float64 { return s.pattern.BPM }

// CurrentBank returns the active bank index.
func (s *PatternStore) CurrentBank() int { return s.pattern.CurrentBank }

// TotalBanks returns the bank count.
func (s *PatternStore) TotalBanks() int { return len(s.pattern.Banks) }

// BankSnapshot returns a copy of a bank. Banks contain only value arrays, so
// the copy shares nothing with the live pattern.
func (s *PatternStore) BankSnapshot(index int) (Bank, error) {
	if index < 0 || index >= len(s.pattern.Banks) {
		return Bank{}, fault.New(fmt.Sprintf("bank index %d out of range [0,%d)", index, len(s.pattern.Banks)),
			ftag.With(TagRange),
			fmsg.With("bank snapshot rejected"),
		)
	}
	return s.pattern.Banks[index], nil
}

// PatternSnapshot returns a deep copy of the whole pattern.
func (s *PatternStore) PatternSnapshot() Pattern {
	p := s.pattern
	p.Banks = make([]Bank, len(s.pattern.Banks))
	copy(p.Banks, s.pattern.Banks)
	return p
}

// Restore replaces the pattern wholesale, e.g. from a persisted snapshot.
// The snapshot's structure is validated before anything is overwritten.
func (s *PatternStore) Restore(p Pattern) error {
	if len(p.Banks) != MinBanks && len(p.Banks) != MaxBanks {
		return fault.New(fmt.Sprintf("pattern has %d banks, want %d or %d", len(p.Banks), MinBanks, MaxBanks),
			ftag.With(TagValidation),
			fmsg.With("pattern restore rejected"),
		)
	}
	if p.CurrentBank < 0 || p.CurrentBank >= len(p.Banks) {
		return fault.New(fmt.Sprintf("pattern current bank %d out of range", p.CurrentBank),
			ftag.With(TagValidation),
			fmsg.With("pattern restore rejected"),
		)
	}

	banks := make([]Bank, len(p.Banks))
	copy(banks, p.Banks)
	for b := range banks {
		banks[b].BankIndex = b
		for t := range banks[b].Tracks {
			banks[b].Tracks[t].TrackIndex = t
		}
	}

	s.pattern = Pattern{
		BPM:         s.clampBPM(p.BPM),
		CurrentBank: p.CurrentBank,
		Banks:       banks,
	}
	return nil
}

// ApplyAssignments rewrites the chop references of one bank from an assigner
// mapping. Steps are untouched: deleting a chop must not erase the triggers a
// user programmed on its track.
func (s *PatternStore) ApplyAssignments(bankIndex int, mapping map[int]*Chop) error {
	if bankIndex < 0 || bankIndex >= len(s.pattern.Banks) {
		return fault.New(fmt.Sprintf("bank index %d out of range [0,%d)", bankIndex, len(s.pattern.Banks)),
			ftag.With(TagRange),
			fmsg.With("assignment rejected"),
		)
	}

	bank := &s.pattern.Banks[bankIndex]
	for t := 0; t < NumTracks; t++ {
		if chop := mapping[t]; chop != nil {
			bank.Tracks[t].ChopID = chop.PadID
		} else {
			bank.Tracks[t].ChopID = ""
		}
	}
	return nil
}

func (s *PatternStore) clampBPM(bpm float64) float64 {
	if bpm < s.minBPM {
		return s.minBPM
	}
	if bpm > s.maxBPM {
		return s.maxBPM
	}
	return bpm
}

func checkTrackStep(trackIndex, stepIndex int) error {
	if trackIndex < 0 || trackIndex >= NumTracks {
		return fault.New(fmt.Sprintf("track index %d out of range [0,%d)", trackIndex, NumTracks),
			ftag.With(TagRange),
			fmsg.With("step mutation rejected"),
		)
	}
	if stepIndex < 0 || stepIndex >= NumSteps {
		return fault.New(fmt.Sprintf("step index %d out of range [0,%d)", stepIndex, NumSteps),
			ftag.With(TagRange),
			fmsg.With("step mutation rejected"),
		)
	}
	return nil
}
