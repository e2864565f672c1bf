package lifecycle

import (
	"errors"
	"fmt"
)

var (
	// ErrVersionNotFound means the activation target does not exist within
	// the (tenant, use case) scope. No state changes when this is returned.
	ErrVersionNotFound = errors.New("version not found")

	// ErrStoreUnavailable means the persistence layer is unreachable. The
	// operation aborted and no partial write should be assumed committed;
	// callers may retry the whole call.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrPreconditionFailed is returned by stores when a conditional flag
	// update matched the record but not the expected active value. The state
	// machine translates it into a ConcurrentModificationError.
	ErrPreconditionFailed = errors.New("active flag precondition failed")
)

// ConcurrentModificationError signals that a concurrent activation won the
// race for this scope. CurrentActiveID carries the id that is active now so
// the caller can re-read and retry.
type ConcurrentModificationError struct {
	CurrentActiveID string
}

func (e *ConcurrentModificationError) Error() string {
	if e.CurrentActiveID == "" {
		return "concurrent activation in progress"
	}
	return fmt.Sprintf("concurrent activation in progress (active version is now %s)", e.CurrentActiveID)
}

// IsConcurrentModification reports whether err is a concurrency conflict and
// returns the conflicting active id when known.
func IsConcurrentModification(err error) (*ConcurrentModificationError, bool) {
	var cme *ConcurrentModificationError
	if errors.As(err, &cme) {
		return cme, true
	}
	return nil, false
}
