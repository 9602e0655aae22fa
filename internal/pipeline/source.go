package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/calebren/fieldcomm-core/internal/codec"
	"github.com/calebren/fieldcomm-core/internal/infrastructure/metrics"
	"github.com/calebren/fieldcomm-core/internal/infrastructure/mqtt"
)

// Logger defines the logging interface used by pipeline components.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Transport is the inbound broker surface a source consumes from.
// Satisfied by *mqtt.Client.
type Transport interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	DefaultQoS() byte
}

// Enqueuer accepts decoded events. Satisfied by *Dispatcher.
type Enqueuer interface {
	Enqueue(ctx context.Context, ev codec.CanonicalEvent) error
}

// Source consumes raw payloads from one broker topic, decodes them with
// its bound decoder and hands canonical events to the dispatcher.
//
// Decode failures are counted and logged but never stop the source; a
// malformed payload affects only itself. A full dispatcher queue blocks
// the message handler, which stalls this source's delivery until workers
// catch up.
type Source struct {
	id        string
	topic     string
	decoder   codec.EventDecoder
	transport Transport
	queue     Enqueuer
	logger    Logger
	metrics   *metrics.Metrics

	// now is swappable for deterministic tests.
	now func() time.Time
}

// SourceOptions configures a Source.
type SourceOptions struct {
	// ID identifies the source in events, logs and metrics.
	ID string

	// Topic is the broker topic (wildcards allowed) to consume.
	Topic string

	// Decoder converts raw payloads to canonical events.
	Decoder codec.EventDecoder

	// Transport is the connected broker client.
	Transport Transport

	// Queue receives decoded events.
	Queue Enqueuer

	// Metrics receives per-source counters. Optional.
	Metrics *metrics.Metrics

	// Logger for decode failures and lifecycle output. Optional.
	Logger Logger
}

// NewSource creates an event source.
func NewSource(opts SourceOptions) *Source {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Source{
		id:        opts.ID,
		topic:     opts.Topic,
		decoder:   opts.Decoder,
		transport: opts.Transport,
		queue:     opts.Queue,
		logger:    logger,
		metrics:   opts.Metrics,
		now:       time.Now,
	}
}

// ID returns the source identifier.
func (s *Source) ID() string {
	return s.id
}

// Start subscribes the source to its topic. The context bounds enqueue
// blocking for messages received after shutdown begins.
func (s *Source) Start(ctx context.Context) error {
	handler := func(topic string, payload []byte) error {
		return s.handleMessage(ctx, payload)
	}
	if err := s.transport.Subscribe(s.topic, s.transport.DefaultQoS(), handler); err != nil {
		return fmt.Errorf("source %s: subscribing to %q: %w", s.id, s.topic, err)
	}

	s.logger.Info("event source started", "source", s.id, "topic", s.topic)
	return nil
}

// handleMessage decodes one raw payload and enqueues the resulting events.
func (s *Source) handleMessage(ctx context.Context, payload []byte) error {
	events, err := s.decoder.DecodeEvents(payload)
	if err != nil {
		if s.metrics != nil {
			s.metrics.DecodeErrors.WithLabelValues(s.id).Inc()
		}
		s.logger.Warn("dropping undecodable payload",
			"source", s.id,
			"bytes", len(payload),
			"error", err,
		)
		return nil
	}

	receivedAt := s.now().UTC()
	for _, ev := range events {
		ev.SourceID = s.id
		if ev.ReceivedAt.IsZero() {
			ev.ReceivedAt = receivedAt
		}

		if err := s.queue.Enqueue(ctx, ev); err != nil {
			return fmt.Errorf("source %s: enqueue: %w", s.id, err)
		}
		if s.metrics != nil {
			s.metrics.EventsReceived.WithLabelValues(s.id).Inc()
		}
	}
	return nil
}

// Stop unsubscribes the source from its topic.
func (s *Source) Stop() error {
	if err := s.transport.Unsubscribe(s.topic); err != nil {
		return fmt.Errorf("source %s: unsubscribing from %q: %w", s.id, s.topic, err)
	}
	s.logger.Info("event source stopped", "source", s.id)
	return nil
}
