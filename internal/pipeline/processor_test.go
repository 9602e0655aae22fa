package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/calebren/fieldcomm-core/internal/codec"
	"github.com/calebren/fieldcomm-core/internal/registration"
)

// MockRegistrar scripts admission outcomes per hardware id.
type MockRegistrar struct {
	deny  map[string]error
	calls []string
}

func NewMockRegistrar() *MockRegistrar {
	return &MockRegistrar{deny: make(map[string]error)}
}

func (m *MockRegistrar) RegisterIfAbsent(_ context.Context, hardwareID, _ string) (*registration.Record, error) {
	m.calls = append(m.calls, hardwareID)
	if err, ok := m.deny[hardwareID]; ok {
		return nil, err
	}
	return &registration.Record{ID: "rec", HardwareID: hardwareID}, nil
}

// MockSink collects handled events.
type MockSink struct {
	events    []codec.CanonicalEvent
	handleErr error
}

func (m *MockSink) HandleEvent(_ context.Context, ev codec.CanonicalEvent) error {
	if m.handleErr != nil {
		return m.handleErr
	}
	m.events = append(m.events, ev)
	return nil
}

func TestProcessorAdmitsAndFansOut(t *testing.T) {
	registrar := NewMockRegistrar()
	s1 := &MockSink{}
	s2 := &MockSink{}
	p := NewProcessor(registrar, []EventSink{s1, s2}, nil)

	ev := codec.CanonicalEvent{HardwareID: "sensor-001", EventType: "measurement"}
	if err := p.Process(context.Background(), ev); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if len(registrar.calls) != 1 || registrar.calls[0] != "sensor-001" {
		t.Errorf("registrar calls = %v", registrar.calls)
	}
	if len(s1.events) != 1 || len(s2.events) != 1 {
		t.Errorf("fan-out reached %d/%d sinks", len(s1.events), len(s2.events))
	}
}

func TestProcessorRejectsDeniedDevice(t *testing.T) {
	registrar := NewMockRegistrar()
	registrar.deny["intruder"] = registration.ErrRegistrationDenied
	sink := &MockSink{}
	p := NewProcessor(registrar, []EventSink{sink}, nil)

	err := p.Process(context.Background(), codec.CanonicalEvent{HardwareID: "intruder"})
	if !errors.Is(err, ErrEventRejected) {
		t.Errorf("expected ErrEventRejected, got %v", err)
	}
	if len(sink.events) != 0 {
		t.Error("rejected event must not reach sinks")
	}
}

func TestProcessorRejectsWithoutSite(t *testing.T) {
	registrar := NewMockRegistrar()
	registrar.deny["orphan"] = registration.ErrNoSiteAvailable
	p := NewProcessor(registrar, nil, nil)

	err := p.Process(context.Background(), codec.CanonicalEvent{HardwareID: "orphan"})
	if !errors.Is(err, ErrEventRejected) {
		t.Errorf("expected ErrEventRejected, got %v", err)
	}
}

func TestProcessorSinkFailureDoesNotSkipOtherSinks(t *testing.T) {
	registrar := NewMockRegistrar()
	failing := &MockSink{handleErr: errors.New("sink down")}
	healthy := &MockSink{}
	p := NewProcessor(registrar, []EventSink{failing, healthy}, nil)

	err := p.Process(context.Background(), codec.CanonicalEvent{HardwareID: "sensor-001"})
	if err == nil {
		t.Error("expected the sink failure to be reported")
	}
	if len(healthy.events) != 1 {
		t.Error("healthy sink skipped after another sink failed")
	}
}
