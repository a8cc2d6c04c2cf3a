package sequencer

import "github.com/Southclaws/fault/ftag"

// Local error tags. Both are rejected synchronously to the caller and are
// fatal to the call, never to the running sequencer.
const (
	TagValidation ftag.Kind = "validation_error"
	TagRange      ftag.Kind = "range_error"
)
