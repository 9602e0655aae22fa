package registration

import "errors"

// Domain-specific errors for registration operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrRegistrationDenied is returned when an unknown device attempts to
	// register and new devices are not allowed.
	ErrRegistrationDenied = errors.New("registration: new devices not allowed")

	// ErrNoSiteAvailable is returned when an unknown device supplies no
	// site token and auto-assignment is disabled.
	ErrNoSiteAvailable = errors.New("registration: no site token available")

	// ErrNotFound is returned when a device has no registration record.
	ErrNotFound = errors.New("registration: device not found")

	// ErrAlreadyExists is returned when creating a record for a hardware id
	// that is already registered.
	ErrAlreadyExists = errors.New("registration: device already registered")

	// ErrNoDefaultSite is returned at construction when auto-assignment is
	// enabled without a default site token.
	ErrNoDefaultSite = errors.New("registration: auto-assign enabled without default site token")
)
