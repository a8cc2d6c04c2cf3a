package player

import (
	"strings"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
)

// Failure taxonomy. Each kind implies a recovery policy: permission and
// unavailable failures are permanent, the rest are worth retrying.
const (
	TagSeek        ftag.Kind = "seek_error"
	TagState       ftag.Kind = "state_error"
	TagTiming      ftag.Kind = "timing_error"
	TagNetwork     ftag.Kind = "network_error"
	TagPermission  ftag.Kind = "permission_error"
	TagUnavailable ftag.Kind = "unavailable_error"
	TagUnknown     ftag.Kind = "unknown_error"

	// Local failures, rejected before any I/O is attempted.
	TagValidation ftag.Kind = "validation_error"

	// Not a true failure: the seek was intentionally skipped while degraded.
	TagDegradedSkip ftag.Kind = "degraded_skip"
)

// Classify buckets an error from the player into the failure taxonomy. Errors
// already tagged at the call site keep their tag; anything else is matched on
// message content, which is all the external surface gives us.
func Classify(err error) ftag.Kind {
	if err == nil {
		return ftag.None
	}
	// ftag.Get reports Internal, not None, for a chain with no tag in it.
	if kind := ftag.Get(err); kind != ftag.None && kind != ftag.Internal {
		return kind
	}

	msg := strings.ToLower(err.Error())
	switch {
	case contains(msg, "permission", "denied", "forbidden"):
		return TagPermission
	case contains(msg, "unavailable", "not connected", "no handle", "destroyed"):
		return TagUnavailable
	case contains(msg, "network", "connection", "unreachable", "reset"):
		return TagNetwork
	case contains(msg, "timeout", "timed out", "deadline"):
		return TagTiming
	case contains(msg, "seek"):
		return TagSeek
	case contains(msg, "state", "not ready", "buffering"):
		return TagState
	default:
		return TagUnknown
	}
}

// Retryable reports whether a failure of the given kind should feed the
// degradation counter and the service-level retry, or be reported and dropped.
func Retryable(kind ftag.Kind) bool {
	switch kind {
	case TagPermission, TagUnavailable, TagValidation, TagDegradedSkip:
		return false
	default:
		return true
	}
}

// IsDegradedSkip reports whether an error marks a seek that was skipped while
// the sync layer was degraded. Callers treat these as no-ops, not failures.
func IsDegradedSkip(err error) bool {
	return err != nil && ftag.Get(err) == TagDegradedSkip
}

func contains(msg string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(msg, n) {
			return true
		}
	}
	return false
}

func errDegradedSkip() error {
	return fault.New("seek skipped",
		ftag.With(TagDegradedSkip),
		fmsg.WithDesc("degraded mode active", "Player sync is degraded; seeks are paused until it recovers."),
	)
}

func errBadTimestamp(op string) error {
	return fault.New("invalid timestamp for "+op,
		ftag.With(TagValidation),
		fmsg.WithDesc("timestamp must be finite and non-negative", "That chop points at an invalid position in the stream."),
	)
}
