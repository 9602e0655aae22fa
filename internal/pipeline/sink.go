package pipeline

import (
	"context"

	"github.com/calebren/fieldcomm-core/internal/codec"
	"github.com/calebren/fieldcomm-core/internal/infrastructure/influxdb"
)

// InfluxSink persists admitted events as time-series points through the
// non-blocking InfluxDB write API.
type InfluxSink struct {
	client *influxdb.Client
}

// NewInfluxSink creates a sink over a connected InfluxDB client.
func NewInfluxSink(client *influxdb.Client) *InfluxSink {
	return &InfluxSink{client: client}
}

// HandleEvent records the event. Writes are batched asynchronously and
// never fail the processing chain.
func (s *InfluxSink) HandleEvent(_ context.Context, ev codec.CanonicalEvent) error {
	s.client.WriteEvent(ev.HardwareID, ev.EventType, ev.SourceID, len(ev.Payload), ev.ReceivedAt)
	return nil
}

// LogSink writes admitted events to the structured log. Used when the
// time-series sink is disabled.
type LogSink struct {
	logger Logger
}

// NewLogSink creates a log-only event sink.
func NewLogSink(logger Logger) *LogSink {
	if logger == nil {
		logger = noopLogger{}
	}
	return &LogSink{logger: logger}
}

// HandleEvent logs the event at debug level.
func (s *LogSink) HandleEvent(_ context.Context, ev codec.CanonicalEvent) error {
	s.logger.Debug("event",
		"hardware_id", ev.HardwareID,
		"event_type", ev.EventType,
		"source", ev.SourceID,
		"payload_bytes", len(ev.Payload),
		"received_at", ev.ReceivedAt,
	)
	return nil
}
