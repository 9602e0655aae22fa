package registration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Logger defines the logging interface used by the Manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager admits previously unknown devices according to the configured
// policy. It wraps a Repository and adds an in-memory cache so the hot path
// (a known device sending events) costs one read lock.
//
// All public methods are thread-safe.
type Manager struct {
	repo    Repository
	policy  Policy
	cache   map[string]*Record // Cached records by hardware id
	cacheMu sync.RWMutex
	logger  Logger

	// now is swappable for deterministic tests.
	now func() time.Time
}

// NewManager creates a registration manager with the given policy.
//
// Auto-assignment without a default site token is a configuration
// inconsistency and fails construction rather than surfacing later on a
// registration request.
//
// Parameters:
//   - repo: Persistence for registration records
//   - policy: Admission policy from configuration
//
// Returns:
//   - *Manager: Ready manager
//   - error: ErrNoDefaultSite if the policy is inconsistent
func NewManager(repo Repository, policy Policy) (*Manager, error) {
	if policy.AutoAssignSite && policy.DefaultSiteToken == "" {
		return nil, ErrNoDefaultSite
	}

	return &Manager{
		repo:   repo,
		policy: policy,
		cache:  make(map[string]*Record),
		logger: noopLogger{},
		now:    time.Now,
	}, nil
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// RefreshCache reloads all registration records from the repository.
// This should be called once at pipeline start-up.
func (m *Manager) RefreshCache(ctx context.Context) error {
	records, err := m.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading registrations: %w", err)
	}

	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()

	m.cache = make(map[string]*Record, len(records))
	for i := range records {
		rec := records[i]
		m.cache[rec.HardwareID] = rec.Clone()
	}

	m.logger.Info("registration cache refreshed", "count", len(records))
	return nil
}

// RegisterIfAbsent admits a device on first contact.
//
// If the device is already known this is a no-op returning the existing
// record. For an unknown device:
//   - registration denied when new devices are not allowed
//   - the supplied site token is used when present
//   - otherwise the default site token is used when auto-assign is enabled
//   - otherwise ErrNoSiteAvailable
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - hardwareID: Unique device hardware identifier
//   - siteToken: Site supplied with the registration request (may be empty)
//
// Returns:
//   - *Record: The existing or newly created record (a copy)
//   - error: ErrRegistrationDenied, ErrNoSiteAvailable, or persistence errors
func (m *Manager) RegisterIfAbsent(ctx context.Context, hardwareID, siteToken string) (*Record, error) {
	if existing, err := m.Get(ctx, hardwareID); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if !m.policy.AllowNewDevices {
		return nil, fmt.Errorf("%w: device %s", ErrRegistrationDenied, hardwareID)
	}

	assignedSite := siteToken
	if assignedSite == "" {
		if !m.policy.AutoAssignSite {
			return nil, fmt.Errorf("%w: device %s", ErrNoSiteAvailable, hardwareID)
		}
		assignedSite = m.policy.DefaultSiteToken
	}

	record := &Record{
		ID:           uuid.NewString(),
		HardwareID:   hardwareID,
		SiteToken:    assignedSite,
		RegisteredAt: m.now().UTC(),
	}

	if err := m.repo.Create(ctx, record); err != nil {
		// A concurrent worker may have admitted the same device between
		// the lookup and the insert; return its record.
		if errors.Is(err, ErrAlreadyExists) {
			return m.Get(ctx, hardwareID)
		}
		return nil, err
	}

	m.cacheMu.Lock()
	m.cache[hardwareID] = record.Clone()
	m.cacheMu.Unlock()

	m.logger.Info("device registered",
		"hardware_id", hardwareID,
		"site_token", assignedSite,
	)
	return record.Clone(), nil
}

// Get retrieves a registration record by hardware id.
// Returns ErrNotFound if the device has never registered.
// The returned record is a copy; callers can safely modify it.
func (m *Manager) Get(ctx context.Context, hardwareID string) (*Record, error) {
	m.cacheMu.RLock()
	cached, ok := m.cache[hardwareID]
	m.cacheMu.RUnlock()

	if ok {
		return cached.Clone(), nil
	}

	record, err := m.repo.GetByHardwareID(ctx, hardwareID)
	if err != nil {
		return nil, err
	}

	m.cacheMu.Lock()
	m.cache[hardwareID] = record.Clone()
	m.cacheMu.Unlock()

	return record.Clone(), nil
}

// ReassignSite moves a registered device to a different site. The cache
// entry is updated in the same critical section so readers never see the
// old assignment after the repository write.
//
// Returns ErrNotFound if the device has never registered.
func (m *Manager) ReassignSite(ctx context.Context, hardwareID, siteToken string) error {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()

	if err := m.repo.UpdateSiteToken(ctx, hardwareID, siteToken); err != nil {
		return err
	}
	if cached, ok := m.cache[hardwareID]; ok {
		cached.SiteToken = siteToken
	}

	m.logger.Info("device reassigned",
		"hardware_id", hardwareID,
		"site_token", siteToken,
	)
	return nil
}

// SpecificationToken returns the specification token recorded for a device.
// An empty token routes commands to the default destination.
func (m *Manager) SpecificationToken(ctx context.Context, hardwareID string) (string, error) {
	record, err := m.Get(ctx, hardwareID)
	if err != nil {
		return "", err
	}
	return record.SpecificationToken, nil
}

// Count returns the number of cached registrations.
func (m *Manager) Count() int {
	m.cacheMu.RLock()
	defer m.cacheMu.RUnlock()
	return len(m.cache)
}

