package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoSources is returned when a pipeline is assembled without sources.
var ErrNoSources = errors.New("pipeline: no event sources configured")

// Pipeline assembles event sources, the dispatcher and the processing
// chain into one start/stoppable unit.
type Pipeline struct {
	sources    []*Source
	dispatcher *Dispatcher
	logger     Logger

	started bool
}

// NewPipeline assembles a pipeline. The dispatcher must already carry the
// processing chain as its handler.
func NewPipeline(sources []*Source, dispatcher *Dispatcher, logger Logger) (*Pipeline, error) {
	if len(sources) == 0 {
		return nil, ErrNoSources
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Pipeline{sources: sources, dispatcher: dispatcher, logger: logger}, nil
}

// Start launches the dispatcher workers first, then subscribes every
// source, so no event can arrive before a worker exists to consume it.
// A source failing to start stops the sources already running and fails
// the whole start-up.
func (p *Pipeline) Start(ctx context.Context) error {
	p.dispatcher.Start(ctx)

	for i, src := range p.sources {
		if err := src.Start(ctx); err != nil {
			for j := 0; j < i; j++ {
				if stopErr := p.sources[j].Stop(); stopErr != nil {
					p.logger.Warn("stopping source during failed start-up",
						"source", p.sources[j].ID(),
						"error", stopErr,
					)
				}
			}
			return fmt.Errorf("starting pipeline: %w", err)
		}
	}

	p.started = true
	p.logger.Info("pipeline started", "sources", len(p.sources))
	return nil
}

// Stop shuts the pipeline down in intake-first order: unsubscribe every
// source so nothing new arrives, then drain the dispatcher within the
// context deadline.
func (p *Pipeline) Stop(ctx context.Context) error {
	if !p.started {
		return nil
	}

	var firstErr error
	for _, src := range p.sources {
		if err := src.Stop(); err != nil {
			p.logger.Warn("stopping source", "source", src.ID(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if err := p.dispatcher.Stop(ctx); err != nil && firstErr == nil {
		firstErr = err
	}

	p.started = false
	p.logger.Info("pipeline stopped")
	return firstErr
}
