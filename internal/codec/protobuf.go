package codec

import (
	"fmt"
	"time"

	"github.com/golang/protobuf/proto"
)

// ProtobufCodec implements Codec using the protocol-buffer representation
// of a device event batch. Wire messages are declared as tagged structs so
// the schema lives next to the code that uses it.
type ProtobufCodec struct{}

// NewProtobufCodec creates a protocol-buffer codec.
func NewProtobufCodec() *ProtobufCodec {
	return &ProtobufCodec{}
}

// Format returns FormatProtobuf.
func (c *ProtobufCodec) Format() Format {
	return FormatProtobuf
}

type pbEvent struct {
	HardwareId   string `protobuf:"bytes,1,opt,name=hardware_id,json=hardwareId,proto3"`
	EventType    string `protobuf:"bytes,2,opt,name=event_type,json=eventType,proto3"`
	Payload      []byte `protobuf:"bytes,3,opt,name=payload,proto3"`
	ReceivedAtNs int64  `protobuf:"varint,4,opt,name=received_at_ns,json=receivedAtNs,proto3"`
	SourceId     string `protobuf:"bytes,5,opt,name=source_id,json=sourceId,proto3"`
}

func (*pbEvent) Reset()         {}
func (*pbEvent) String() string { return "Event" }
func (*pbEvent) ProtoMessage()  {}

type pbEventBatch struct {
	Events []*pbEvent `protobuf:"bytes,1,rep,name=events,proto3"`
}

func (*pbEventBatch) Reset()         {}
func (*pbEventBatch) String() string { return "EventBatch" }
func (*pbEventBatch) ProtoMessage()  {}

type pbCommand struct {
	Id      string `protobuf:"bytes,1,opt,name=id,proto3"`
	Name    string `protobuf:"bytes,2,opt,name=name,proto3"`
	Payload []byte `protobuf:"bytes,3,opt,name=payload,proto3"`
	System  bool   `protobuf:"varint,4,opt,name=system,proto3"`
}

func (*pbCommand) Reset()         {}
func (*pbCommand) String() string { return "Command" }
func (*pbCommand) ProtoMessage()  {}

// DecodeEvents parses a protocol-buffer device event batch.
//
// Returns ErrFormat when the bytes are not a valid batch or an event lacks
// a hardware id.
func (c *ProtobufCodec) DecodeEvents(raw []byte) ([]CanonicalEvent, error) {
	var batch pbEventBatch
	if err := proto.Unmarshal(raw, &batch); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}

	events := make([]CanonicalEvent, 0, len(batch.Events))
	for i, we := range batch.Events {
		if we == nil || we.HardwareId == "" {
			return nil, fmt.Errorf("%w: event %d missing hardware id", ErrFormat, i)
		}
		events = append(events, CanonicalEvent{
			HardwareID: we.HardwareId,
			EventType:  we.EventType,
			Payload:    we.Payload,
			ReceivedAt: time.Unix(0, we.ReceivedAtNs).UTC(),
			SourceID:   we.SourceId,
		})
	}
	return events, nil
}

// EncodeEvents renders canonical events as a protocol-buffer event batch.
func (c *ProtobufCodec) EncodeEvents(events []CanonicalEvent) ([]byte, error) {
	batch := pbEventBatch{Events: make([]*pbEvent, 0, len(events))}
	for _, ev := range events {
		batch.Events = append(batch.Events, &pbEvent{
			HardwareId:   ev.HardwareID,
			EventType:    ev.EventType,
			Payload:      ev.Payload,
			ReceivedAtNs: ev.ReceivedAt.UnixNano(),
			SourceId:     ev.SourceID,
		})
	}

	data, err := proto.Marshal(&batch)
	if err != nil {
		return nil, fmt.Errorf("encoding event batch: %w", err)
	}
	return data, nil
}

// EncodeCommand renders a command in protocol-buffer form.
//
// Encoding never fails for well-formed commands; a malformed command is
// reported as ErrInvalidCommand.
func (c *ProtobufCodec) EncodeCommand(cmd Command) ([]byte, error) {
	if err := validateCommand(cmd); err != nil {
		return nil, err
	}

	data, err := proto.Marshal(&pbCommand{
		Id:      cmd.ID,
		Name:    cmd.Name,
		Payload: cmd.Payload,
		System:  cmd.System,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding command: %w", err)
	}
	return data, nil
}

// DecodeCommand parses a protocol-buffer command.
func (c *ProtobufCodec) DecodeCommand(raw []byte) (Command, error) {
	var wc pbCommand
	if err := proto.Unmarshal(raw, &wc); err != nil {
		return Command{}, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	if wc.Name == "" {
		return Command{}, fmt.Errorf("%w: command missing name", ErrFormat)
	}

	return Command{
		ID:      wc.Id,
		Name:    wc.Name,
		Payload: wc.Payload,
		System:  wc.System,
	}, nil
}
