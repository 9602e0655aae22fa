package command

import "errors"

// Domain-specific errors for command delivery.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrBadTopicExpr is returned when a topic expression does not contain
	// exactly one hardware-id placeholder.
	ErrBadTopicExpr = errors.New("command: topic expression must contain exactly one %s placeholder")

	// ErrUnknownDestination is returned when a routing mapping or the
	// default route names a destination id that is not registered.
	ErrUnknownDestination = errors.New("command: unknown destination id")

	// ErrDuplicateMapping is returned when two routing mappings claim the
	// same specification token.
	ErrDuplicateMapping = errors.New("command: duplicate specification token mapping")

	// ErrNoDefaultDestination is returned when the router is built without
	// a default destination.
	ErrNoDefaultDestination = errors.New("command: no default destination configured")

	// ErrSendFailed is returned when a command could not be delivered to
	// its destination.
	ErrSendFailed = errors.New("command: send failed")
)
