package batch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository defines the interface for batch operation persistence.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// CreateOperation inserts an operation and one pending element per
	// target, atomically.
	CreateOperation(ctx context.Context, op *Operation, targets []string) error

	// UpdateOperation records a status transition on the operation row.
	UpdateOperation(ctx context.Context, id string, status Status, errMsg string,
		startedAt, finishedAt time.Time) error

	// UpdateElement records the outcome of one element.
	UpdateElement(ctx context.Context, opID string, position int,
		status ElementStatus, errMsg string, processedAt time.Time) error

	// GetOperation retrieves an operation by id.
	// Returns ErrNotFound if no such operation exists.
	GetOperation(ctx context.Context, id string) (*Operation, error)

	// ListElements retrieves an operation's elements in position order.
	ListElements(ctx context.Context, opID string) ([]Element, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection with the batch
// tables migrated.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// CreateOperation inserts an operation and its pending elements in one
// transaction.
func (r *SQLiteRepository) CreateOperation(ctx context.Context, op *Operation, targets []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning batch insert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO batch_operations
			(id, command_id, command_name, command_payload, command_system, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		op.ID, op.Command.ID, op.Command.Name, op.Command.Payload,
		op.Command.System, string(op.Status), op.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting batch operation: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO batch_operation_elements (operation_id, position, hardware_id, status)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing element insert: %w", err)
	}
	defer stmt.Close() //nolint:errcheck // Statement closes with the tx

	for i, hardwareID := range targets {
		if _, err := stmt.ExecContext(ctx, op.ID, i, hardwareID, string(ElementPending)); err != nil {
			return fmt.Errorf("inserting element %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing batch insert: %w", err)
	}
	return nil
}

// UpdateOperation records a status transition on the operation row.
// Zero started/finished timestamps leave the stored values untouched.
func (r *SQLiteRepository) UpdateOperation(ctx context.Context, id string, status Status,
	errMsg string, startedAt, finishedAt time.Time) error {

	result, err := r.db.ExecContext(ctx, `
		UPDATE batch_operations
		SET status = ?, error = ?,
			started_at = COALESCE(?, started_at),
			finished_at = COALESCE(?, finished_at)
		WHERE id = ?`,
		string(status), errMsg, nullTime(startedAt), nullTime(finishedAt), id,
	)
	if err != nil {
		return fmt.Errorf("updating batch operation: %w", err)
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

// UpdateElement records the outcome of one element.
func (r *SQLiteRepository) UpdateElement(ctx context.Context, opID string, position int,
	status ElementStatus, errMsg string, processedAt time.Time) error {

	result, err := r.db.ExecContext(ctx, `
		UPDATE batch_operation_elements
		SET status = ?, error = ?, processed_at = ?
		WHERE operation_id = ? AND position = ?`,
		string(status), errMsg, nullTime(processedAt), opID, position,
	)
	if err != nil {
		return fmt.Errorf("updating batch element: %w", err)
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

// GetOperation retrieves an operation by id.
func (r *SQLiteRepository) GetOperation(ctx context.Context, id string) (*Operation, error) {
	var (
		op         Operation
		system     bool
		startedAt  sql.NullTime
		finishedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, command_id, command_name, command_payload, command_system,
			status, error, created_at, started_at, finished_at
		FROM batch_operations
		WHERE id = ?`, id,
	).Scan(
		&op.ID, &op.Command.ID, &op.Command.Name, &op.Command.Payload, &system,
		&op.Status, &op.Error, &op.CreatedAt, &startedAt, &finishedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying batch operation: %w", err)
	}

	op.Command.System = system
	if startedAt.Valid {
		op.StartedAt = startedAt.Time
	}
	if finishedAt.Valid {
		op.FinishedAt = finishedAt.Time
	}
	return &op, nil
}

// ListElements retrieves an operation's elements in position order.
func (r *SQLiteRepository) ListElements(ctx context.Context, opID string) ([]Element, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT operation_id, position, hardware_id, status, error, processed_at
		FROM batch_operation_elements
		WHERE operation_id = ?
		ORDER BY position`, opID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying batch elements: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor

	var elements []Element
	for rows.Next() {
		var (
			el          Element
			processedAt sql.NullTime
		)
		if err := rows.Scan(&el.OperationID, &el.Position, &el.HardwareID,
			&el.Status, &el.Error, &processedAt); err != nil {
			return nil, fmt.Errorf("scanning batch element: %w", err)
		}
		if processedAt.Valid {
			el.ProcessedAt = processedAt.Time
		}
		elements = append(elements, el)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating batch elements: %w", err)
	}
	return elements, nil
}

// nullTime maps the zero time to SQL NULL.
func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
