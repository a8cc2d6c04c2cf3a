package sequencer

import "sort"

// Assign maps a flat chop list onto one bank's 16 tracks.
//
// The pad id's numeric suffix is the authoritative track index; declared
// order in the list is irrelevant for placement. Chops for other banks and
// chops with an unparsable pad id are ignored, indices ≥16 are dropped
// (overflow truncation, no error), and when two chops resolve to the same
// track the later one in input order wins. Unmatched tracks map to nil. The
// mapping always contains exactly the keys 0..15 and re-running with an
// unchanged list yields an identical result.
func Assign(chops []Chop, bankIndex int) map[int]*Chop {
	type candidate struct {
		track int
		chop  Chop
	}

	var candidates []candidate
	for _, c := range chops {
		bank, track, err := ParsePadID(c.PadID)
		if err != nil || bank != bankIndex {
			continue
		}
		if track >= NumTracks {
			continue
		}
		candidates = append(candidates, candidate{track: track, chop: c})
	}

	// Stable sort keeps input order among equal track indices, so writing
	// in order below makes the last occurrence win deterministically.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].track < candidates[j].track
	})

	mapping := make(map[int]*Chop, NumTracks)
	for t := 0; t < NumTracks; t++ {
		mapping[t] = nil
	}
	for _, c := range candidates {
		chop := c.chop
		mapping[c.track] = &chop
	}
	return mapping
}
