package sequencer

import (
	"fmt"
	"strconv"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
)

// Chop is a named excerpt of the externally controlled media stream. Chop
// lists arrive wholesale from the collaborator that owns them; this package
// treats every incoming list as a full replacement snapshot and never mutates
// the entries.
type Chop struct {
	PadID     string  `json:"padId"` // bank letter + track index, e.g. "A3"
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
}

// ParsePadID splits a pad id like "B12" into its bank and track indices.
// The letter maps A→0 through D→3; the numeric suffix is the track index.
func ParsePadID(padID string) (bankIndex, trackIndex int, err error) {
	if len(padID) < 2 {
		return 0, 0, fault.New("pad id too short: "+strconv.Quote(padID),
			ftag.With(TagValidation),
			fmsg.With("invalid pad id"),
		)
	}

	letter := padID[0]
	if letter < 'A' || letter >= 'A'+MaxBanks {
		return 0, 0, fault.New("pad id bank letter out of range: "+strconv.Quote(padID),
			ftag.With(TagValidation),
			fmsg.With("invalid pad id"),
		)
	}

	idx, err := strconv.Atoi(padID[1:])
	if err != nil || idx < 0 {
		return 0, 0, fault.New("pad id index not numeric: "+strconv.Quote(padID),
			ftag.With(TagValidation),
			fmsg.With("invalid pad id"),
		)
	}

	return int(letter - 'A'), idx, nil
}

// FormatPadID builds the pad id for a bank/track position.
func FormatPadID(bankIndex, trackIndex int) string {
	return fmt.Sprintf("%c%d", 'A'+rune(bankIndex), trackIndex)
}

// BankLetter returns the letter for a bank index (0→A).
func BankLetter(bankIndex int) byte {
	return byte('A' + bankIndex)
}
