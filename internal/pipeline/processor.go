package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/calebren/fieldcomm-core/internal/codec"
	"github.com/calebren/fieldcomm-core/internal/registration"
)

// ErrEventRejected marks events dropped by registration policy.
var ErrEventRejected = errors.New("pipeline: event rejected by registration policy")

// Registrar admits devices on first contact. Satisfied by
// *registration.Manager.
type Registrar interface {
	RegisterIfAbsent(ctx context.Context, hardwareID, siteToken string) (*registration.Record, error)
}

// EventSink consumes admitted events at the end of the processing chain.
type EventSink interface {
	HandleEvent(ctx context.Context, ev codec.CanonicalEvent) error
}

// Processor is the per-event processing chain run by dispatcher workers:
// admit the device through registration policy, then fan the event out to
// every sink.
type Processor struct {
	registrar Registrar
	sinks     []EventSink
	logger    Logger
}

// NewProcessor creates the processing chain.
func NewProcessor(registrar Registrar, sinks []EventSink, logger Logger) *Processor {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Processor{registrar: registrar, sinks: sinks, logger: logger}
}

// Process handles one canonical event. Policy rejections return
// ErrEventRejected; sink failures are returned after every sink has been
// attempted.
func (p *Processor) Process(ctx context.Context, ev codec.CanonicalEvent) error {
	// Unknown devices register implicitly from their first event. The
	// site token comes from policy; events carry none.
	if _, err := p.registrar.RegisterIfAbsent(ctx, ev.HardwareID, ""); err != nil {
		if errors.Is(err, registration.ErrRegistrationDenied) ||
			errors.Is(err, registration.ErrNoSiteAvailable) {
			p.logger.Info("dropping event from unadmitted device",
				"hardware_id", ev.HardwareID,
				"source", ev.SourceID,
				"reason", err,
			)
			return fmt.Errorf("%w: %w", ErrEventRejected, err)
		}
		return fmt.Errorf("admitting device %s: %w", ev.HardwareID, err)
	}

	var firstErr error
	for _, sink := range p.sinks {
		if err := sink.HandleEvent(ctx, ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
