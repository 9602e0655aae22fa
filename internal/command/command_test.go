package command

import (
	"context"
	"errors"
	"testing"

	"github.com/calebren/fieldcomm-core/internal/codec"
)

// MockPublisher records published messages for testing.
type MockPublisher struct {
	topics     []string
	payloads   [][]byte
	qos        []byte
	publishErr error
	connected  bool
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{connected: true}
}

func (m *MockPublisher) Publish(topic string, payload []byte, qos byte, _ bool) error {
	if m.publishErr != nil {
		return m.publishErr
	}
	m.topics = append(m.topics, topic)
	m.payloads = append(m.payloads, payload)
	m.qos = append(m.qos, qos)
	return nil
}

func (m *MockPublisher) IsConnected() bool {
	return m.connected
}

func mustExtractor(t *testing.T, commandExpr, systemExpr string) *TopicExtractor {
	t.Helper()
	ex, err := NewTopicExtractor(commandExpr, systemExpr)
	if err != nil {
		t.Fatalf("NewTopicExtractor(%q, %q) failed: %v", commandExpr, systemExpr, err)
	}
	return ex
}

func TestTopicExtractorValidation(t *testing.T) {
	tests := []struct {
		name    string
		command string
		system  string
		wantErr bool
	}{
		{"valid", "fieldcomm/command/%s", "fieldcomm/system/%s", false},
		{"missing placeholder in command", "fieldcomm/command", "fieldcomm/system/%s", true},
		{"missing placeholder in system", "fieldcomm/command/%s", "fieldcomm/system", true},
		{"two placeholders", "fieldcomm/%s/%s", "fieldcomm/system/%s", true},
		{"wrong verb", "fieldcomm/command/%d", "fieldcomm/system/%s", true},
		{"extra verb alongside placeholder", "fieldcomm/%d/%s", "fieldcomm/system/%s", true},
		{"escaped percent allowed", "fieldcomm/100%%/%s", "fieldcomm/system/%s", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTopicExtractor(tt.command, tt.system)
			if tt.wantErr && !errors.Is(err, ErrBadTopicExpr) {
				t.Errorf("expected ErrBadTopicExpr, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestTopicExtractorExpandsHardwareID(t *testing.T) {
	ex := mustExtractor(t, "fieldcomm/command/%s", "fieldcomm/system/%s")

	if got := ex.Topic("sensor-001", KindCommand); got != "fieldcomm/command/sensor-001" {
		t.Errorf("command topic = %q", got)
	}
	if got := ex.Topic("sensor-001", KindSystem); got != "fieldcomm/system/sensor-001" {
		t.Errorf("system topic = %q", got)
	}
}

func TestDestinationSendPublishesOnCommandTopic(t *testing.T) {
	pub := NewMockPublisher()
	ex := mustExtractor(t, "out/command/%s", "out/system/%s")
	dst := NewDestination("primary", codec.NewJSONCodec(), ex, pub, 1)

	cmd := codec.Command{ID: "cmd-1", Name: "setPoint", Payload: []byte(`{"temp":21}`)}
	if err := dst.Send(context.Background(), cmd, "thermostat-7"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if len(pub.topics) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(pub.topics))
	}
	if pub.topics[0] != "out/command/thermostat-7" {
		t.Errorf("published on %q", pub.topics[0])
	}
	if pub.qos[0] != 1 {
		t.Errorf("expected qos 1, got %d", pub.qos[0])
	}

	decoded, err := codec.NewJSONCodec().DecodeCommand(pub.payloads[0])
	if err != nil {
		t.Fatalf("decoding published payload: %v", err)
	}
	if decoded.Name != "setPoint" {
		t.Errorf("decoded command name = %q", decoded.Name)
	}
}

func TestDestinationSendSystemCommandUsesSystemTopic(t *testing.T) {
	pub := NewMockPublisher()
	ex := mustExtractor(t, "out/command/%s", "out/system/%s")
	dst := NewDestination("primary", codec.NewJSONCodec(), ex, pub, 0)

	cmd := codec.Command{ID: "cmd-2", Name: "registrationAck", System: true}
	if err := dst.Send(context.Background(), cmd, "sensor-001"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if pub.topics[0] != "out/system/sensor-001" {
		t.Errorf("system command published on %q", pub.topics[0])
	}
}

func TestDestinationSendReportsTransportFailure(t *testing.T) {
	pub := NewMockPublisher()
	pub.publishErr = errors.New("broker unavailable")
	ex := mustExtractor(t, "out/command/%s", "out/system/%s")
	dst := NewDestination("primary", codec.NewJSONCodec(), ex, pub, 1)

	err := dst.Send(context.Background(), codec.Command{Name: "ping"}, "sensor-001")
	if !errors.Is(err, ErrSendFailed) {
		t.Errorf("expected ErrSendFailed, got %v", err)
	}
}

func TestDestinationSendRejectsInvalidCommand(t *testing.T) {
	pub := NewMockPublisher()
	ex := mustExtractor(t, "out/command/%s", "out/system/%s")
	dst := NewDestination("primary", codec.NewJSONCodec(), ex, pub, 1)

	err := dst.Send(context.Background(), codec.Command{Name: ""}, "sensor-001")
	if err == nil {
		t.Fatal("expected error for empty command name")
	}
	if len(pub.topics) != 0 {
		t.Error("invalid command must not reach the transport")
	}
}

func TestDestinationReportsOutcomes(t *testing.T) {
	pub := NewMockPublisher()
	ex := mustExtractor(t, "out/command/%s", "out/system/%s")
	dst := NewDestination("primary", codec.NewJSONCodec(), ex, pub, 1)

	counts := make(map[string]int)
	dst.SetObserver(func(destinationID, status string) {
		if destinationID != "primary" {
			t.Errorf("observer saw destination %q", destinationID)
		}
		counts[status]++
	})

	if err := dst.Send(context.Background(), codec.Command{Name: "ping"}, "sensor-001"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	pub.publishErr = errors.New("broker unavailable")
	if err := dst.Send(context.Background(), codec.Command{Name: "ping"}, "sensor-001"); err == nil {
		t.Fatal("expected publish failure")
	}

	// Encode failures count as errors too.
	if err := dst.Send(context.Background(), codec.Command{Name: ""}, "sensor-001"); err == nil {
		t.Fatal("expected encode failure")
	}

	if counts["ok"] != 1 || counts["error"] != 2 {
		t.Errorf("observer counts = %v", counts)
	}
}

func TestDestinationSendHonoursContext(t *testing.T) {
	pub := NewMockPublisher()
	ex := mustExtractor(t, "out/command/%s", "out/system/%s")
	dst := NewDestination("primary", codec.NewJSONCodec(), ex, pub, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := dst.Send(ctx, codec.Command{Name: "ping"}, "sensor-001"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func testDestinations(t *testing.T, ids ...string) map[string]*Destination {
	t.Helper()
	ex := mustExtractor(t, "out/command/%s", "out/system/%s")
	out := make(map[string]*Destination, len(ids))
	for _, id := range ids {
		out[id] = NewDestination(id, codec.NewJSONCodec(), ex, NewMockPublisher(), 1)
	}
	return out
}

func TestRouterMatchesSpecificationToken(t *testing.T) {
	destinations := testDestinations(t, "default", "d1", "d2")
	router, err := NewRouter([]Mapping{
		{SpecificationToken: "spec-a", DestinationID: "d1"},
		{SpecificationToken: "spec-b", DestinationID: "d2"},
	}, "default", destinations)
	if err != nil {
		t.Fatalf("NewRouter failed: %v", err)
	}

	if got := router.Route("spec-a"); got.ID() != "d1" {
		t.Errorf("spec-a routed to %s", got.ID())
	}
	if got := router.Route("spec-b"); got.ID() != "d2" {
		t.Errorf("spec-b routed to %s", got.ID())
	}
}

func TestRouterFallsBackToDefault(t *testing.T) {
	destinations := testDestinations(t, "default", "d1")
	router, err := NewRouter([]Mapping{
		{SpecificationToken: "spec-a", DestinationID: "d1"},
	}, "default", destinations)
	if err != nil {
		t.Fatalf("NewRouter failed: %v", err)
	}

	if got := router.Route("spec-unmapped"); got.ID() != "default" {
		t.Errorf("unmapped token routed to %s", got.ID())
	}
	if got := router.Route(""); got.ID() != "default" {
		t.Errorf("empty token routed to %s", got.ID())
	}
}

func TestRouterRejectsUnknownDefault(t *testing.T) {
	destinations := testDestinations(t, "d1")
	_, err := NewRouter(nil, "missing", destinations)
	if !errors.Is(err, ErrUnknownDestination) {
		t.Errorf("expected ErrUnknownDestination, got %v", err)
	}
}

func TestRouterRejectsMissingDefault(t *testing.T) {
	destinations := testDestinations(t, "d1")
	_, err := NewRouter(nil, "", destinations)
	if !errors.Is(err, ErrNoDefaultDestination) {
		t.Errorf("expected ErrNoDefaultDestination, got %v", err)
	}
}

func TestRouterRejectsDanglingMapping(t *testing.T) {
	destinations := testDestinations(t, "default")
	_, err := NewRouter([]Mapping{
		{SpecificationToken: "spec-a", DestinationID: "ghost"},
	}, "default", destinations)
	if !errors.Is(err, ErrUnknownDestination) {
		t.Errorf("expected ErrUnknownDestination, got %v", err)
	}
}

func TestRouterRejectsDuplicateMapping(t *testing.T) {
	destinations := testDestinations(t, "default", "d1", "d2")
	_, err := NewRouter([]Mapping{
		{SpecificationToken: "spec-a", DestinationID: "d1"},
		{SpecificationToken: "spec-a", DestinationID: "d2"},
	}, "default", destinations)
	if !errors.Is(err, ErrDuplicateMapping) {
		t.Errorf("expected ErrDuplicateMapping, got %v", err)
	}
}
