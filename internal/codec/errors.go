package codec

import "errors"

// Domain-specific errors for codec operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrFormat is returned when raw bytes do not conform to the expected
	// schema of the selected format. Decode failures are per-message and
	// never fatal to the source that received them.
	ErrFormat = errors.New("codec: malformed payload")

	// ErrInvalidCommand is returned when a caller asks to encode a command
	// that no wire format can represent (e.g. an empty name).
	ErrInvalidCommand = errors.New("codec: invalid command")

	// ErrUnknownFormat is returned when a configuration references a format
	// the registry does not provide.
	ErrUnknownFormat = errors.New("codec: unknown format")
)
