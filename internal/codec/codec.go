package codec

import (
	"fmt"
	"time"
)

// Format identifies a wire encoding for events and commands.
type Format string

// Supported binary formats.
const (
	FormatJSON     Format = "json"
	FormatProtobuf Format = "protobuf"
)

// CanonicalEvent is the unified internal representation of a decoded device
// message. Immutable once produced by a decoder; consumed exactly once by
// the inbound dispatcher's processing chain.
type CanonicalEvent struct {
	// HardwareID identifies the originating device.
	HardwareID string

	// EventType classifies the event (measurement, alert, location, ...).
	EventType string

	// Payload is the opaque event body.
	Payload []byte

	// ReceivedAt is the arrival timestamp (UTC, nanosecond precision).
	ReceivedAt time.Time

	// SourceID records which event source produced the event.
	SourceID string
}

// Command is an outbound instruction addressed to a single device.
type Command struct {
	// ID uniquely identifies this command invocation.
	ID string

	// Name is the command identifier understood by the device.
	Name string

	// Payload is the opaque command body.
	Payload []byte

	// System marks platform-level commands, which are delivered on the
	// system topic rather than the custom command topic.
	System bool
}

// EventDecoder converts raw transport payloads into canonical events.
// A single payload may carry zero or more events.
type EventDecoder interface {
	DecodeEvents(raw []byte) ([]CanonicalEvent, error)
}

// CommandEncoder converts a command into its wire representation.
type CommandEncoder interface {
	EncodeCommand(cmd Command) ([]byte, error)
}

// Codec is a symmetric encoder/decoder for one wire format. Both supported
// formats round-trip the same canonical event and command structures, which
// is what keeps implementations wire compatible.
type Codec interface {
	EventDecoder
	CommandEncoder

	Format() Format
	EncodeEvents(events []CanonicalEvent) ([]byte, error)
	DecodeCommand(raw []byte) (Command, error)
}

// validateCommand rejects commands that no encoder can represent.
// A malformed command is a caller programming error, not a runtime failure.
func validateCommand(cmd Command) error {
	if cmd.Name == "" {
		return fmt.Errorf("%w: command name is empty", ErrInvalidCommand)
	}
	return nil
}
