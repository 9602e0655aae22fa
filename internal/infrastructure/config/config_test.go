package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeConfig writes a temporary config file and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
service:
  id: "test-core"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
event_sources:
  - id: "mqtt-primary"
    topic: "fieldcomm/input/events"
    decoder: "json"
    transport:
      host: "localhost"
      port: 1883
      client_id: "test-source"
destinations:
  - id: "default-mqtt"
    encoder: "protobuf"
    command_topic: "fieldcomm/commands/%s"
    system_topic: "fieldcomm/system/%s"
    transport:
      host: "localhost"
routing:
  default_destination: "default-mqtt"
  mappings:
    - specification: "spec-a"
      destination: "default-mqtt"
batch:
  throttle_delay_ms: 100
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Service.ID != "test-core" {
		t.Errorf("Service.ID = %q, want %q", cfg.Service.ID, "test-core")
	}
	if len(cfg.EventSources) != 1 {
		t.Fatalf("len(EventSources) = %d, want 1", len(cfg.EventSources))
	}
	if cfg.EventSources[0].Transport.Protocol != "tcp" {
		t.Errorf("Transport.Protocol = %q, want default %q", cfg.EventSources[0].Transport.Protocol, "tcp")
	}
	if cfg.Dispatcher.WorkerCount != defaultWorkerCount {
		t.Errorf("Dispatcher.WorkerCount = %d, want default %d", cfg.Dispatcher.WorkerCount, defaultWorkerCount)
	}
	if cfg.Dispatcher.QueueCapacity != defaultQueueCapacity {
		t.Errorf("Dispatcher.QueueCapacity = %d, want default %d", cfg.Dispatcher.QueueCapacity, defaultQueueCapacity)
	}
	if !cfg.Registration.AllowNewDevices {
		t.Error("Registration.AllowNewDevices should default to true")
	}
	if cfg.Batch.ThrottleDelayMs != 100 {
		t.Errorf("Batch.ThrottleDelayMs = %d, want 100", cfg.Batch.ThrottleDelayMs)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_DuplicateSourceIDs(t *testing.T) {
	content := `
event_sources:
  - id: "src"
    topic: "a"
    decoder: "json"
  - id: "src"
    topic: "b"
    decoder: "json"
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected error for duplicate source ids, got nil")
	}
	if !strings.Contains(err.Error(), "not unique") {
		t.Errorf("error = %v, want mention of uniqueness", err)
	}
}

func TestLoad_DuplicateSpecificationTokens(t *testing.T) {
	content := `
destinations:
  - id: "d1"
    command_topic: "cmd/%s"
    system_topic: "sys/%s"
routing:
  default_destination: "d1"
  mappings:
    - specification: "spec-a"
      destination: "d1"
    - specification: "spec-a"
      destination: "d1"
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected error for duplicate specification tokens, got nil")
	}
}

func TestLoad_AutoAssignWithoutToken(t *testing.T) {
	content := `
registration:
  allow_new_devices: true
  auto_assign_site: true
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected error for auto-assign without site token, got nil")
	}
	if !strings.Contains(err.Error(), "auto_assign_site_token") {
		t.Errorf("error = %v, want mention of auto_assign_site_token", err)
	}
}

func TestLoad_MissingDefaultDestination(t *testing.T) {
	content := `
destinations:
  - id: "d1"
    command_topic: "cmd/%s"
    system_topic: "sys/%s"
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected error for missing default destination, got nil")
	}
}

func TestLoad_InvalidDecoder(t *testing.T) {
	content := `
event_sources:
  - id: "src"
    topic: "a"
    decoder: "xml"
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected error for unsupported decoder, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FIELDCOMM_DATABASE_PATH", "/tmp/override.db")
	t.Setenv("FIELDCOMM_METRICS_PORT", "9999")

	cfg, err := Load(writeConfig(t, "service:\n  id: env-test\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/override.db" {
		t.Errorf("Database.Path = %q, want env override", cfg.Database.Path)
	}
	if cfg.Metrics.Port != 9999 {
		t.Errorf("Metrics.Port = %d, want 9999", cfg.Metrics.Port)
	}
}

func TestValidate_TransportRanges(t *testing.T) {
	cfg := defaultConfig()
	cfg.EventSources = []EventSourceConfig{{
		ID:      "src",
		Topic:   "t",
		Decoder: "json",
		Transport: TransportConfig{
			Protocol: "udp",
			Host:     "localhost",
			Port:     70000,
			QoS:      5,
		},
	}}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for bad transport values, got nil")
	}
	for _, want := range []string{"protocol", "port", "qos"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q: %v", want, err)
		}
	}
}
