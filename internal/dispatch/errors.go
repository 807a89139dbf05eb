package dispatch

import "errors"

var (
	// ErrInvalidMethodology is returned for submissions whose methodology is
	// not one of the supported values.
	ErrInvalidMethodology = errors.New("invalid methodology")

	// ErrDependencyUnavailable is returned when the run store or job queue
	// cannot be reached before any durable state was created. The whole
	// Submit call may be retried.
	ErrDependencyUnavailable = errors.New("dependency unavailable")

	// ErrPartialDispatch is returned when the run record was persisted but
	// the job publish failed. The run exists in QUEUED state with no job;
	// it is kept for operator reconciliation, not auto-deleted, because a
	// retried Submit creates a fresh run rather than a duplicate job.
	ErrPartialDispatch = errors.New("run queued but job publish failed")
)
