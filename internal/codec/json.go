package codec

import (
	"encoding/json"
	"fmt"
	"time"
)

// JSONCodec implements Codec using the JSON representation of a device
// event batch. Payload bytes travel base64-encoded per encoding/json rules.
type JSONCodec struct{}

// NewJSONCodec creates a JSON codec.
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Format returns FormatJSON.
func (c *JSONCodec) Format() Format {
	return FormatJSON
}

// jsonEvent is the wire form of one canonical event.
type jsonEvent struct {
	HardwareID   string `json:"hardware_id"`
	EventType    string `json:"event_type,omitempty"`
	Payload      []byte `json:"payload,omitempty"`
	ReceivedAtNs int64  `json:"received_at_ns"`
	SourceID     string `json:"source_id,omitempty"`
}

// jsonEventBatch is the wire form of a device event batch.
type jsonEventBatch struct {
	Events []jsonEvent `json:"events"`
}

// jsonCommand is the wire form of a command.
type jsonCommand struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	Payload []byte `json:"payload,omitempty"`
	System  bool   `json:"system,omitempty"`
}

// DecodeEvents parses a JSON device event batch.
//
// Returns ErrFormat when the bytes are not valid JSON or an event lacks a
// hardware id. An empty batch decodes to zero events.
func (c *JSONCodec) DecodeEvents(raw []byte) ([]CanonicalEvent, error) {
	var batch jsonEventBatch
	if err := json.Unmarshal(raw, &batch); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}

	events := make([]CanonicalEvent, 0, len(batch.Events))
	for i, we := range batch.Events {
		if we.HardwareID == "" {
			return nil, fmt.Errorf("%w: event %d missing hardware_id", ErrFormat, i)
		}
		events = append(events, CanonicalEvent{
			HardwareID: we.HardwareID,
			EventType:  we.EventType,
			Payload:    we.Payload,
			ReceivedAt: time.Unix(0, we.ReceivedAtNs).UTC(),
			SourceID:   we.SourceID,
		})
	}
	return events, nil
}

// EncodeEvents renders canonical events as a JSON device event batch.
func (c *JSONCodec) EncodeEvents(events []CanonicalEvent) ([]byte, error) {
	batch := jsonEventBatch{Events: make([]jsonEvent, 0, len(events))}
	for _, ev := range events {
		batch.Events = append(batch.Events, jsonEvent{
			HardwareID:   ev.HardwareID,
			EventType:    ev.EventType,
			Payload:      ev.Payload,
			ReceivedAtNs: ev.ReceivedAt.UnixNano(),
			SourceID:     ev.SourceID,
		})
	}

	data, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("encoding event batch: %w", err)
	}
	return data, nil
}

// EncodeCommand renders a command as JSON.
//
// Encoding never fails for well-formed commands; a malformed command is
// reported as ErrInvalidCommand.
func (c *JSONCodec) EncodeCommand(cmd Command) ([]byte, error) {
	if err := validateCommand(cmd); err != nil {
		return nil, err
	}

	data, err := json.Marshal(jsonCommand{
		ID:      cmd.ID,
		Name:    cmd.Name,
		Payload: cmd.Payload,
		System:  cmd.System,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding command: %w", err)
	}
	return data, nil
}

// DecodeCommand parses a JSON command.
func (c *JSONCodec) DecodeCommand(raw []byte) (Command, error) {
	var wc jsonCommand
	if err := json.Unmarshal(raw, &wc); err != nil {
		return Command{}, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	if wc.Name == "" {
		return Command{}, fmt.Errorf("%w: command missing name", ErrFormat)
	}

	return Command{
		ID:      wc.ID,
		Name:    wc.Name,
		Payload: wc.Payload,
		System:  wc.System,
	}, nil
}
