package playlist

import (
	"karaoke-service/internal/apperr"
)

var (
	ErrSessionNotFound    = apperr.New(apperr.KindNotFound, "session not found")
	ErrSessionExpired     = apperr.New(apperr.KindNotFound, "session expired")
	ErrPlaylistNotFound   = apperr.New(apperr.KindNotFound, "playlist not found")
	ErrItemNotFound       = apperr.New(apperr.KindNotFound, "item not found")
	ErrInvalidIndex       = apperr.New(apperr.KindInvalidArgument, "index out of range")
	ErrSingerNameRequired = apperr.New(apperr.KindInvalidArgument, "singerName is required for this session")
	// ErrSessionRenewed is returned by an expiry termination when a
	// heartbeat moved the expiry into the future first.
	ErrSessionRenewed = apperr.New(apperr.KindConflict, "session was renewed")
)

// BroadcastError reports that a mutation committed but its fanout publish
// failed. The snapshot returned alongside it is authoritative.
type BroadcastError struct {
	Err error
}

func (e *BroadcastError) Error() string {
	return "broadcast failed: " + e.Err.Error()
}

// Unwrap exposes an apperr classification and the publish cause.
func (e *BroadcastError) Unwrap() []error {
	return []error{apperr.Wrap(apperr.KindBroadcastFailed, "broadcast failed", e.Err), e.Err}
}
