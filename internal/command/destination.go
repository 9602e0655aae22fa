package command

import (
	"context"
	"fmt"

	"github.com/calebren/fieldcomm-core/internal/codec"
)

// Publisher is the transport surface a destination publishes through.
// Satisfied by *mqtt.Client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// SendObserver is notified of every delivery attempt's outcome ("ok" or
// "error"). Used to feed metrics without coupling destinations to a
// collector.
type SendObserver func(destinationID, status string)

// Destination binds one outbound transport endpoint to a command encoder
// and a topic extractor. Sending a command encodes it, derives the
// per-device topic, and publishes.
type Destination struct {
	id        string
	encoder   codec.CommandEncoder
	extractor *TopicExtractor
	publisher Publisher
	qos       byte
	observe   SendObserver
}

// NewDestination creates a command destination.
//
// Parameters:
//   - id: Destination identifier used in routing configuration and logs
//   - encoder: Wire encoder for outbound commands
//   - extractor: Validated topic extractor for this endpoint
//   - publisher: Connected transport client
//   - qos: MQTT quality of service for outbound publishes
func NewDestination(id string, encoder codec.CommandEncoder, extractor *TopicExtractor, publisher Publisher, qos byte) *Destination {
	return &Destination{
		id:        id,
		encoder:   encoder,
		extractor: extractor,
		publisher: publisher,
		qos:       qos,
	}
}

// ID returns the destination identifier.
func (d *Destination) ID() string {
	return d.id
}

// SetObserver registers a callback for delivery outcomes.
func (d *Destination) SetObserver(fn SendObserver) {
	d.observe = fn
}

// report notifies the observer of one delivery attempt.
func (d *Destination) report(err error) {
	if d.observe == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	d.observe(d.id, status)
}

// Send encodes the command and publishes it on the device's topic. System
// commands go out on the system topic, everything else on the command topic.
//
// Parameters:
//   - ctx: Context checked before publishing
//   - cmd: The command to deliver
//   - hardwareID: Target device
//
// Returns:
//   - error: Encoding failures, or ErrSendFailed wrapping the transport error
func (d *Destination) Send(ctx context.Context, cmd codec.Command, hardwareID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := d.encoder.EncodeCommand(cmd)
	if err != nil {
		err = fmt.Errorf("encoding command %q for %s: %w", cmd.Name, hardwareID, err)
		d.report(err)
		return err
	}

	kind := KindCommand
	if cmd.System {
		kind = KindSystem
	}
	topic := d.extractor.Topic(hardwareID, kind)

	if err := d.publisher.Publish(topic, payload, d.qos, false); err != nil {
		err = fmt.Errorf("%w: destination %s, device %s: %w", ErrSendFailed, d.id, hardwareID, err)
		d.report(err)
		return err
	}

	d.report(nil)
	return nil
}
