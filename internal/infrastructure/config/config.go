package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for FieldComm Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Service      ServiceConfig       `yaml:"service"`
	Database     DatabaseConfig      `yaml:"database"`
	Logging      LoggingConfig       `yaml:"logging"`
	Metrics      MetricsConfig       `yaml:"metrics"`
	InfluxDB     InfluxDBConfig      `yaml:"influxdb"`
	EventSources []EventSourceConfig `yaml:"event_sources"`
	Dispatcher   DispatcherConfig    `yaml:"dispatcher"`
	Registration RegistrationConfig  `yaml:"registration"`
	Routing      RoutingConfig       `yaml:"routing"`
	Destinations []DestinationConfig `yaml:"destinations"`
	Batch        BatchConfig         `yaml:"batch"`
}

// ServiceConfig identifies this FieldComm instance.
type ServiceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MetricsConfig contains Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// InfluxDBConfig contains InfluxDB event-sink settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// TransportConfig contains MQTT broker connection settings shared by
// event sources and command destinations.
type TransportConfig struct {
	// Protocol selects the connection scheme: "tcp" or "tls".
	Protocol string `yaml:"protocol"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// TrustStorePath is a PEM CA bundle used to verify the broker
	// certificate when Protocol is "tls". Empty means system roots.
	TrustStorePath string `yaml:"trust_store_path"`
	// TrustStorePassword exists for parity with brokers that export
	// protected bundles; PEM bundles do not use it.
	TrustStorePassword string `yaml:"trust_store_password"`

	QoS       int             `yaml:"qos"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
}

// ReconnectConfig contains reconnection backoff settings (seconds).
type ReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// EventSourceConfig describes one inbound MQTT event source.
type EventSourceConfig struct {
	ID        string          `yaml:"id"`
	Transport TransportConfig `yaml:"transport"`
	Topic     string          `yaml:"topic"`
	// Decoder selects the binary event decoder: "json" or "protobuf".
	Decoder string `yaml:"decoder"`
}

// DispatcherConfig contains inbound processing settings.
type DispatcherConfig struct {
	QueueCapacity int              `yaml:"queue_capacity"`
	WorkerCount   int              `yaml:"worker_count"`
	Monitoring    MonitoringConfig `yaml:"monitoring"`
}

// MonitoringConfig controls periodic dispatcher statistics logging.
type MonitoringConfig struct {
	Enabled     bool `yaml:"enabled"`
	IntervalSec int  `yaml:"interval_sec"`
}

// RegistrationConfig controls how previously unknown devices are admitted.
type RegistrationConfig struct {
	AllowNewDevices     bool   `yaml:"allow_new_devices"`
	AutoAssignSite      bool   `yaml:"auto_assign_site"`
	AutoAssignSiteToken string `yaml:"auto_assign_site_token"`
}

// RoutingConfig maps device specification tokens to command destinations.
type RoutingConfig struct {
	DefaultDestination string          `yaml:"default_destination"`
	Mappings           []MappingConfig `yaml:"mappings"`
}

// MappingConfig is one specification-token to destination-id pair.
type MappingConfig struct {
	Specification string `yaml:"specification"`
	Destination   string `yaml:"destination"`
}

// DestinationConfig describes one outbound MQTT command destination.
type DestinationConfig struct {
	ID        string          `yaml:"id"`
	Transport TransportConfig `yaml:"transport"`
	// Encoder selects the binary command encoder: "json" or "protobuf".
	Encoder string `yaml:"encoder"`
	// CommandTopic and SystemTopic are topic expressions containing a
	// single '%s' where the device hardware id is inserted.
	CommandTopic string `yaml:"command_topic"`
	SystemTopic  string `yaml:"system_topic"`
}

// BatchConfig contains batch operation processing settings.
type BatchConfig struct {
	// ThrottleDelayMs is the wait between batch elements in milliseconds.
	// Zero disables throttling.
	ThrottleDelayMs int `yaml:"throttle_delay_ms"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: FIELDCOMM_SECTION_KEY
// For example: FIELDCOMM_DATABASE_PATH, FIELDCOMM_METRICS_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default queue and worker sizing for the inbound dispatcher.
const (
	defaultQueueCapacity = 1000
	defaultWorkerCount   = 100
)

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			ID:   "fieldcomm-001",
			Name: "FieldComm Core",
		},
		Database: DatabaseConfig{
			Path:        "./data/fieldcomm.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Host: "0.0.0.0",
			Port: 9190,
		},
		Dispatcher: DispatcherConfig{
			QueueCapacity: defaultQueueCapacity,
			WorkerCount:   defaultWorkerCount,
			Monitoring: MonitoringConfig{
				IntervalSec: 30,
			},
		},
		Registration: RegistrationConfig{
			AllowNewDevices: true,
		},
	}
}

// applyDefaults fills per-entry defaults that cannot live in defaultConfig
// because the slices come from the YAML file.
func applyDefaults(cfg *Config) {
	for i := range cfg.EventSources {
		applyTransportDefaults(&cfg.EventSources[i].Transport)
		if cfg.EventSources[i].Decoder == "" {
			cfg.EventSources[i].Decoder = "protobuf"
		}
	}
	for i := range cfg.Destinations {
		applyTransportDefaults(&cfg.Destinations[i].Transport)
		if cfg.Destinations[i].Encoder == "" {
			cfg.Destinations[i].Encoder = "protobuf"
		}
	}
}

func applyTransportDefaults(t *TransportConfig) {
	if t.Protocol == "" {
		t.Protocol = "tcp"
	}
	if t.Host == "" {
		t.Host = "localhost"
	}
	if t.Port == 0 {
		t.Port = 1883
	}
	if t.QoS == 0 {
		t.QoS = 1
	}
	if t.Reconnect.InitialDelay == 0 {
		t.Reconnect.InitialDelay = 1
	}
	if t.Reconnect.MaxDelay == 0 {
		t.Reconnect.MaxDelay = 60
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: FIELDCOMM_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FIELDCOMM_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("FIELDCOMM_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FIELDCOMM_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
	if v := os.Getenv("FIELDCOMM_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for structural errors.
//
// Cross-component consistency (default destination registered, topic
// expressions containing the hardware id placeholder) is verified by the
// router and extractor constructors during pipeline start-up; both classes
// of error are fatal before any event is processed.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Service.ID == "" {
		errs = append(errs, "service.id is required")
	}
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.Dispatcher.QueueCapacity < 1 {
		errs = append(errs, "dispatcher.queue_capacity must be at least 1")
	}
	if c.Dispatcher.WorkerCount < 1 {
		errs = append(errs, "dispatcher.worker_count must be at least 1")
	}
	if c.Dispatcher.Monitoring.Enabled && c.Dispatcher.Monitoring.IntervalSec < 1 {
		errs = append(errs, "dispatcher.monitoring.interval_sec must be at least 1 when monitoring is enabled")
	}

	if c.Registration.AutoAssignSite && c.Registration.AutoAssignSiteToken == "" {
		errs = append(errs, "registration.auto_assign_site_token is required when auto_assign_site is enabled")
	}

	seenSources := make(map[string]bool)
	for i := range c.EventSources {
		src := &c.EventSources[i]
		prefix := fmt.Sprintf("event_sources[%d]", i)
		if src.ID == "" {
			errs = append(errs, prefix+".id is required")
		} else if seenSources[src.ID] {
			errs = append(errs, fmt.Sprintf("%s.id %q is not unique", prefix, src.ID))
		}
		seenSources[src.ID] = true
		if src.Topic == "" {
			errs = append(errs, prefix+".topic is required")
		}
		if !validFormat(src.Decoder) {
			errs = append(errs, fmt.Sprintf("%s.decoder %q must be json or protobuf", prefix, src.Decoder))
		}
		errs = append(errs, validateTransport(prefix+".transport", &src.Transport)...)
	}

	seenDests := make(map[string]bool)
	for i := range c.Destinations {
		dest := &c.Destinations[i]
		prefix := fmt.Sprintf("destinations[%d]", i)
		if dest.ID == "" {
			errs = append(errs, prefix+".id is required")
		} else if seenDests[dest.ID] {
			errs = append(errs, fmt.Sprintf("%s.id %q is not unique", prefix, dest.ID))
		}
		seenDests[dest.ID] = true
		if !validFormat(dest.Encoder) {
			errs = append(errs, fmt.Sprintf("%s.encoder %q must be json or protobuf", prefix, dest.Encoder))
		}
		if dest.CommandTopic == "" {
			errs = append(errs, prefix+".command_topic is required")
		}
		if dest.SystemTopic == "" {
			errs = append(errs, prefix+".system_topic is required")
		}
		errs = append(errs, validateTransport(prefix+".transport", &dest.Transport)...)
	}

	if len(c.Destinations) > 0 && c.Routing.DefaultDestination == "" {
		errs = append(errs, "routing.default_destination is required")
	}
	seenSpecs := make(map[string]bool)
	for i, m := range c.Routing.Mappings {
		prefix := fmt.Sprintf("routing.mappings[%d]", i)
		if m.Specification == "" {
			errs = append(errs, prefix+".specification is required")
		} else if seenSpecs[m.Specification] {
			errs = append(errs, fmt.Sprintf("%s.specification %q is not unique", prefix, m.Specification))
		}
		seenSpecs[m.Specification] = true
		if m.Destination == "" {
			errs = append(errs, prefix+".destination is required")
		}
	}

	if c.Batch.ThrottleDelayMs < 0 {
		errs = append(errs, "batch.throttle_delay_ms must not be negative")
	}

	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		errs = append(errs, "metrics.port must be between 1 and 65535")
	}
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// validateTransport checks one MQTT transport section.
func validateTransport(prefix string, t *TransportConfig) []string {
	var errs []string
	if t.Protocol != "tcp" && t.Protocol != "tls" {
		errs = append(errs, fmt.Sprintf("%s.protocol %q must be tcp or tls", prefix, t.Protocol))
	}
	if t.Host == "" {
		errs = append(errs, prefix+".host is required")
	}
	if t.Port < 1 || t.Port > 65535 {
		errs = append(errs, fmt.Sprintf("%s.port %d must be between 1 and 65535", prefix, t.Port))
	}
	if t.QoS < 0 || t.QoS > 2 {
		errs = append(errs, fmt.Sprintf("%s.qos %d must be 0, 1, or 2", prefix, t.QoS))
	}
	return errs
}

// validFormat reports whether a codec format name is recognised.
func validFormat(name string) bool {
	return name == "json" || name == "protobuf"
}
