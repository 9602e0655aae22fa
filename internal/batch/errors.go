package batch

import "errors"

// Domain-specific errors for batch operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNoTargets is returned when an operation is submitted with an
	// empty target list.
	ErrNoTargets = errors.New("batch: operation has no targets")

	// ErrNotFound is returned when an operation id is unknown.
	ErrNotFound = errors.New("batch: operation not found")

	// ErrAlreadyFinished is returned when canceling an operation that has
	// already reached a terminal status.
	ErrAlreadyFinished = errors.New("batch: operation already finished")

	// ErrShuttingDown is returned when submitting after Stop was called.
	ErrShuttingDown = errors.New("batch: manager is shutting down")
)
