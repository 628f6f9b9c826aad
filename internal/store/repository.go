package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the persistence operations for object snapshots.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a record by its unique identifier.
	// Returns ErrObjectNotFound if the record does not exist.
	GetByID(ctx context.Context, id string) (*Record, error)

	// List retrieves all records ordered by name.
	List(ctx context.Context) ([]Record, error)

	// Create inserts a new record.
	// Returns ErrObjectExists if the ID or name is already taken.
	Create(ctx context.Context, rec *Record) error

	// Update replaces the document of an existing record.
	// Returns ErrObjectNotFound if the record does not exist.
	Update(ctx context.Context, rec *Record) error

	// Delete removes a record by ID.
	// Returns ErrObjectNotFound if the record does not exist.
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository on the property_objects table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open, migrated SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectColumns = `
		SELECT id, name, class_name, content_type, document, frozen, created_at, updated_at
		FROM property_objects`

// GetByID retrieves a record by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("querying object by id: %w", err)
	}
	return rec, nil
}

// List retrieves all records ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying objects: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning object: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating objects: %w", err)
	}
	return records, nil
}

// Create inserts a new record. Zero timestamps are set to now.
func (r *SQLiteRepository) Create(ctx context.Context, rec *Record) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	query := `
		INSERT INTO property_objects (
			id, name, class_name, content_type, document, frozen, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.Name,
		rec.ClassName,
		rec.ContentType,
		rec.Document,
		boolToInt(rec.Frozen),
		rec.CreatedAt.Format(time.RFC3339),
		rec.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %s", ErrObjectExists, rec.Name)
		}
		return fmt.Errorf("inserting object: %w", err)
	}
	return nil
}

// Update replaces the document of an existing record.
func (r *SQLiteRepository) Update(ctx context.Context, rec *Record) error {
	rec.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE property_objects SET
			name = ?, class_name = ?, content_type = ?, document = ?, frozen = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		rec.Name,
		rec.ClassName,
		rec.ContentType,
		rec.Document,
		boolToInt(rec.Frozen),
		rec.UpdatedAt.Format(time.RFC3339),
		rec.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %s", ErrObjectExists, rec.Name)
		}
		return fmt.Errorf("updating object: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrObjectNotFound
	}
	return nil
}

// Delete removes a record by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM property_objects WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting object: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrObjectNotFound
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(scanner rowScanner) (*Record, error) {
	var rec Record
	var frozen int
	var createdAt, updatedAt string

	err := scanner.Scan(
		&rec.ID,
		&rec.Name,
		&rec.ClassName,
		&rec.ContentType,
		&rec.Document,
		&frozen,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Frozen = frozen != 0

	var parseErr error
	rec.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	rec.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}
	return &rec, nil
}

// boolToInt converts a boolean to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed")
}
