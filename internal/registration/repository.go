package registration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Repository defines the interface for registration record persistence.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByHardwareID retrieves a record by device hardware id.
	// Returns ErrNotFound if the device has never registered.
	GetByHardwareID(ctx context.Context, hardwareID string) (*Record, error)

	// List retrieves all registration records.
	List(ctx context.Context) ([]Record, error)

	// Create inserts a new registration record.
	// Returns ErrAlreadyExists if the hardware id is already registered.
	Create(ctx context.Context, record *Record) error

	// UpdateSiteToken reassigns a registered device to a different site.
	UpdateSiteToken(ctx context.Context, hardwareID, siteToken string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection with the
// device_registrations table migrated.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByHardwareID retrieves a record by device hardware id.
func (r *SQLiteRepository) GetByHardwareID(ctx context.Context, hardwareID string) (*Record, error) {
	query := `
		SELECT id, hardware_id, site_token, specification_token, registered_at
		FROM device_registrations
		WHERE hardware_id = ?`

	var rec Record
	err := r.db.QueryRowContext(ctx, query, hardwareID).Scan(
		&rec.ID, &rec.HardwareID, &rec.SiteToken, &rec.SpecificationToken, &rec.RegisteredAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying registration by hardware id: %w", err)
	}
	return &rec, nil
}

// List retrieves all registration records.
func (r *SQLiteRepository) List(ctx context.Context) ([]Record, error) {
	query := `
		SELECT id, hardware_id, site_token, specification_token, registered_at
		FROM device_registrations
		ORDER BY registered_at`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying registrations: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.HardwareID, &rec.SiteToken,
			&rec.SpecificationToken, &rec.RegisteredAt); err != nil {
			return nil, fmt.Errorf("scanning registration: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating registrations: %w", err)
	}
	return records, nil
}

// Create inserts a new registration record.
func (r *SQLiteRepository) Create(ctx context.Context, record *Record) error {
	query := `
		INSERT INTO device_registrations (id, hardware_id, site_token, specification_token, registered_at)
		VALUES (?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		record.ID, record.HardwareID, record.SiteToken,
		record.SpecificationToken, record.RegisteredAt.UTC(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, record.HardwareID)
		}
		return fmt.Errorf("inserting registration: %w", err)
	}
	return nil
}

// UpdateSiteToken reassigns a registered device to a different site.
func (r *SQLiteRepository) UpdateSiteToken(ctx context.Context, hardwareID, siteToken string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE device_registrations SET site_token = ? WHERE hardware_id = ?",
		siteToken, hardwareID,
	)
	if err != nil {
		return fmt.Errorf("updating site token: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
