package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/calebren/fieldcomm-core/internal/codec"
	"github.com/calebren/fieldcomm-core/internal/registration"
)

// Sender delivers one command to one device. Satisfied by
// *command.Destination.
type Sender interface {
	ID() string
	Send(ctx context.Context, cmd codec.Command, hardwareID string) error
}

// RouteFunc picks the Sender for a device's specification token.
type RouteFunc func(specToken string) Sender

// Resolver looks up a device's specification token. Satisfied by
// *registration.Manager.
type Resolver interface {
	SpecificationToken(ctx context.Context, hardwareID string) (string, error)
}

// ElementObserver is notified of every terminal element status. Used to
// feed metrics without coupling the manager to a collector.
type ElementObserver func(status ElementStatus)

// Logger defines the logging interface used by the Manager.
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

// opState is the in-memory mirror of a running operation. The manager
// mutex guards every field; the repository carries the durable copy.
type opState struct {
	op       *Operation
	elements []Element
	cancel   context.CancelFunc
}

// Manager executes batch command operations.
//
// Each submitted operation gets its own goroutine that walks the target
// list in order: resolve the device's specification token, route, send,
// record the element outcome, then sleep for the configured throttle
// delay. One failing element never aborts the operation; the failure is
// recorded and processing moves on.
type Manager struct {
	repo     Repository
	resolver Resolver
	route    RouteFunc
	throttle time.Duration
	logger   Logger
	observe  ElementObserver

	mu     sync.RWMutex
	ops    map[string]*opState
	closed bool
	wg     sync.WaitGroup

	// now is swappable for deterministic tests.
	now func() time.Time
}

// NewManager creates a batch operation manager.
//
// Parameters:
//   - repo: Durable operation/element state
//   - resolver: Specification token lookup (the registration manager)
//   - route: Destination selection by specification token
//   - throttle: Delay between elements; zero disables throttling
func NewManager(repo Repository, resolver Resolver, route RouteFunc, throttle time.Duration) *Manager {
	return &Manager{
		repo:     repo,
		resolver: resolver,
		route:    route,
		throttle: throttle,
		logger:   noopLogger{},
		ops:      make(map[string]*opState),
		now:      time.Now,
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// SetObserver registers a callback for terminal element statuses.
func (m *Manager) SetObserver(fn ElementObserver) {
	m.observe = fn
}

// Submit creates and starts a batch operation delivering cmd to every
// target, in order. It returns as soon as the operation is persisted; the
// delivery runs asynchronously and is tracked via Progress.
//
// Parameters:
//   - ctx: Context for the synchronous persistence step
//   - cmd: Command to deliver; an empty ID is filled in
//   - targets: Hardware ids in delivery order
//
// Returns:
//   - string: Operation id
//   - error: ErrNoTargets, ErrShuttingDown, or persistence errors
func (m *Manager) Submit(ctx context.Context, cmd codec.Command, targets []string) (string, error) {
	if len(targets) == 0 {
		return "", ErrNoTargets
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}

	op := &Operation{
		ID:        uuid.NewString(),
		Command:   cmd,
		Status:    StatusCreated,
		CreatedAt: m.now().UTC(),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrShuttingDown
	}
	m.mu.Unlock()

	if err := m.repo.CreateOperation(ctx, op, targets); err != nil {
		return "", fmt.Errorf("persisting batch operation: %w", err)
	}

	elements := make([]Element, len(targets))
	for i, hw := range targets {
		elements[i] = Element{
			OperationID: op.ID,
			Position:    i,
			HardwareID:  hw,
			Status:      ElementPending,
		}
	}

	// The operation outlives the submit call; its lifetime is bound to
	// the manager, not the caller's context.
	opCtx, cancel := context.WithCancel(context.Background())
	state := &opState{op: op, elements: elements, cancel: cancel}

	m.mu.Lock()
	if m.closed {
		// Stop raced the persistence step; leave the operation created
		// but never started.
		m.mu.Unlock()
		cancel()
		return "", ErrShuttingDown
	}
	m.ops[op.ID] = state
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(opCtx, state)

	m.logger.Info("batch operation submitted",
		"operation_id", op.ID,
		"command", cmd.Name,
		"targets", len(targets),
	)
	return op.ID, nil
}

// run processes one operation to completion.
func (m *Manager) run(ctx context.Context, state *opState) {
	defer m.wg.Done()
	defer state.cancel()

	m.transition(state, StatusRunning, "")

	canceled := false
	for i := range state.elements {
		if ctx.Err() != nil {
			canceled = true
			m.markRemaining(state, i)
			break
		}

		m.processElement(ctx, state, i)

		// Throttle between elements, not after the last one.
		if m.throttle > 0 && i < len(state.elements)-1 {
			select {
			case <-time.After(m.throttle):
			case <-ctx.Done():
			}
		}
	}

	final := StatusCompleted
	if canceled || ctx.Err() != nil {
		final = StatusCanceled
	}
	m.transition(state, final, "")

	m.logger.Info("batch operation finished",
		"operation_id", state.op.ID,
		"status", string(final),
	)
}

// processElement delivers the command to one target and records the
// outcome. Failures are recorded on the element and never abort the
// operation.
func (m *Manager) processElement(ctx context.Context, state *opState, i int) {
	hardwareID := state.elements[i].HardwareID
	m.setElement(state, i, ElementSent, "")

	specToken, err := m.resolver.SpecificationToken(ctx, hardwareID)
	if err != nil {
		if errors.Is(err, registration.ErrNotFound) {
			m.setElement(state, i, ElementFailed, fmt.Sprintf("device %s not registered", hardwareID))
		} else {
			m.setElement(state, i, ElementFailed, fmt.Sprintf("resolving specification: %v", err))
		}
		return
	}

	dest := m.route(specToken)
	if err := dest.Send(ctx, state.op.Command, hardwareID); err != nil {
		m.logger.Warn("batch element delivery failed",
			"operation_id", state.op.ID,
			"hardware_id", hardwareID,
			"destination", dest.ID(),
			"error", err,
		)
		m.setElement(state, i, ElementFailed, err.Error())
		return
	}

	m.setElement(state, i, ElementAcknowledged, "")
}

// markRemaining cancels every element from position i on.
func (m *Manager) markRemaining(state *opState, from int) {
	for i := from; i < len(state.elements); i++ {
		if state.elements[i].Status == ElementPending {
			m.setElement(state, i, ElementCanceled, "")
		}
	}
}

// transition updates the operation status in memory and in the repository.
func (m *Manager) transition(state *opState, status Status, errMsg string) {
	now := m.now().UTC()

	m.mu.Lock()
	state.op.Status = status
	state.op.Error = errMsg
	var started, finished time.Time
	if status == StatusRunning && state.op.StartedAt.IsZero() {
		state.op.StartedAt = now
		started = now
	}
	if status.Terminal() {
		state.op.FinishedAt = now
		finished = now
	}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.repo.UpdateOperation(ctx, state.op.ID, status, errMsg, started, finished); err != nil {
		m.logger.Error("persisting batch status failed",
			"operation_id", state.op.ID,
			"status", string(status),
			"error", err,
		)
	}
}

// setElement updates one element in memory, persists terminal states, and
// notifies the observer.
func (m *Manager) setElement(state *opState, i int, status ElementStatus, errMsg string) {
	now := m.now().UTC()

	m.mu.Lock()
	state.elements[i].Status = status
	state.elements[i].Error = errMsg
	terminal := status != ElementPending && status != ElementSent
	if terminal {
		state.elements[i].ProcessedAt = now
	}
	m.mu.Unlock()

	if !terminal {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.repo.UpdateElement(ctx, state.op.ID, i, status, errMsg, now); err != nil {
		m.logger.Error("persisting batch element failed",
			"operation_id", state.op.ID,
			"position", i,
			"error", err,
		)
	}

	if m.observe != nil {
		m.observe(status)
	}
}

// Cancel stops an operation before its next element. Elements already
// delivered are unaffected; pending elements are marked canceled.
//
// Returns ErrNotFound for unknown ids and ErrAlreadyFinished when the
// operation has reached a terminal status.
func (m *Manager) Cancel(id string) error {
	m.mu.RLock()
	state, ok := m.ops[id]
	var status Status
	if ok {
		status = state.op.Status
	}
	m.mu.RUnlock()

	if !ok {
		return ErrNotFound
	}
	if status.Terminal() {
		return ErrAlreadyFinished
	}

	state.cancel()
	m.logger.Info("batch operation canceled", "operation_id", id)
	return nil
}

// Progress returns a snapshot of an operation's element counts. Running
// operations are answered from memory; finished operations evicted from
// memory fall back to the repository.
func (m *Manager) Progress(ctx context.Context, id string) (Progress, error) {
	m.mu.RLock()
	state, ok := m.ops[id]
	if ok {
		p := snapshot(state.op, state.elements)
		m.mu.RUnlock()
		return p, nil
	}
	m.mu.RUnlock()

	op, err := m.repo.GetOperation(ctx, id)
	if err != nil {
		return Progress{}, err
	}
	elements, err := m.repo.ListElements(ctx, id)
	if err != nil {
		return Progress{}, err
	}
	return snapshot(op, elements), nil
}

// Operation returns the full operation record with its elements.
func (m *Manager) Operation(ctx context.Context, id string) (*Operation, []Element, error) {
	m.mu.RLock()
	if state, ok := m.ops[id]; ok {
		op := *state.op
		elements := make([]Element, len(state.elements))
		copy(elements, state.elements)
		m.mu.RUnlock()
		return &op, elements, nil
	}
	m.mu.RUnlock()

	op, err := m.repo.GetOperation(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	elements, err := m.repo.ListElements(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return op, elements, nil
}

// Stop waits for running operations to finish. If the context expires
// first, remaining operations are canceled and awaited.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
	}

	m.mu.RLock()
	for _, state := range m.ops {
		if !state.op.Status.Terminal() {
			state.cancel()
		}
	}
	m.mu.RUnlock()

	<-done
	return ctx.Err()
}

// snapshot computes progress counts from an operation and its elements.
func snapshot(op *Operation, elements []Element) Progress {
	p := Progress{
		OperationID: op.ID,
		Status:      op.Status,
		Total:       len(elements),
	}
	for _, el := range elements {
		switch el.Status {
		case ElementPending:
			p.Pending++
		case ElementSent:
			p.Sent++
		case ElementAcknowledged:
			p.Acknowledged++
		case ElementFailed:
			p.Failed++
		case ElementCanceled:
			p.Canceled++
		}
	}
	return p
}
