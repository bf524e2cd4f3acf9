package job

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("job: not found")
	ErrNotPending = errors.New("job: not pending")
)

// NotPendingError reports a rejected execution claim, carrying the status
// the claim observed. It unwraps to ErrNotPending.
type NotPendingError struct {
	Status Status
}

func (e *NotPendingError) Error() string {
	return fmt.Sprintf("job: not pending (status %s)", e.Status)
}

func (e *NotPendingError) Unwrap() error { return ErrNotPending }

// Store tracks transfer jobs. Jobs are never deleted: a sustained submission
// load grows the backing state without bound, which is the documented
// behavior of this service.
type Store interface {
	// Create allocates a fresh id, stores the request verbatim, and returns
	// the job in the pending state with both timestamps stamped.
	Create(ctx context.Context, req Request) (Job, error)

	// Get is a pure lookup. Returns ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) (Job, error)

	// Update merges the non-nil fields into the record and refreshes
	// UpdatedAt. Returns ErrNotFound for unknown ids.
	Update(ctx context.Context, id string, upd Update) (Job, error)

	// ClaimExecuting transitions pending -> executing atomically with
	// respect to concurrent claims for the same id. A claim that observes
	// any other status returns a *NotPendingError and mutates nothing.
	ClaimExecuting(ctx context.Context, id string) (Job, error)
}
