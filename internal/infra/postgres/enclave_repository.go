package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opennhi/api/pkg/domain/enclave"
	"github.com/opennhi/api/pkg/domain/shared"
	"github.com/opennhi/api/pkg/pagination"
)

// EnclaveRepository handles database operations for enclaves.
type EnclaveRepository struct {
	db *DB
}

// NewEnclaveRepository creates a new EnclaveRepository.
func NewEnclaveRepository(db *DB) *EnclaveRepository {
	return &EnclaveRepository{db: db}
}

// Create inserts a new enclave.
func (r *EnclaveRepository) Create(ctx context.Context, e *enclave.Enclave) error {
	query := `
		INSERT INTO enclaves (id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query,
		e.ID(), e.Name(), nullString(e.Description()), e.CreatedAt(), e.UpdatedAt(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return enclave.ErrEnclaveNameExists
		}
		return fmt.Errorf("failed to create enclave: %w", err)
	}

	return nil
}

// GetByID retrieves an enclave by ID.
func (r *EnclaveRepository) GetByID(ctx context.Context, id shared.ID) (*enclave.Enclave, error) {
	query := `
		SELECT id, name, description, created_at, updated_at
		FROM enclaves
		WHERE id = $1
	`
	return r.scanEnclave(r.db.QueryRowContext(ctx, query, id))
}

// GetByName retrieves an enclave by name.
func (r *EnclaveRepository) GetByName(ctx context.Context, name string) (*enclave.Enclave, error) {
	query := `
		SELECT id, name, description, created_at, updated_at
		FROM enclaves
		WHERE name = $1
	`
	return r.scanEnclave(r.db.QueryRowContext(ctx, query, name))
}

// Update persists changes to an enclave.
func (r *EnclaveRepository) Update(ctx context.Context, e *enclave.Enclave) error {
	query := `
		UPDATE enclaves
		SET name = $2, description = $3, updated_at = $4
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		e.ID(), e.Name(), nullString(e.Description()), e.UpdatedAt(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return enclave.ErrEnclaveNameExists
		}
		return fmt.Errorf("failed to update enclave: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return enclave.ErrEnclaveNotFound
	}

	return nil
}

// Delete removes an enclave. Connectors, jobs, findings and identities are
// removed through ON DELETE CASCADE foreign keys.
func (r *EnclaveRepository) Delete(ctx context.Context, id shared.ID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM enclaves WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete enclave: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if rows == 0 {
		return enclave.ErrEnclaveNotFound
	}

	return nil
}

// List returns a page of enclaves ordered by name.
func (r *EnclaveRepository) List(ctx context.Context, page pagination.Pagination) (pagination.Result[*enclave.Enclave], error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM enclaves`).Scan(&total); err != nil {
		return pagination.Result[*enclave.Enclave]{}, fmt.Errorf("failed to count enclaves: %w", err)
	}

	query := `
		SELECT id, name, description, created_at, updated_at
		FROM enclaves
		ORDER BY name ASC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.QueryContext(ctx, query, page.Limit(), page.Offset())
	if err != nil {
		return pagination.Result[*enclave.Enclave]{}, fmt.Errorf("failed to list enclaves: %w", err)
	}
	defer rows.Close()

	enclaves := make([]*enclave.Enclave, 0)
	for rows.Next() {
		e, err := r.scanEnclaveRow(rows)
		if err != nil {
			return pagination.Result[*enclave.Enclave]{}, err
		}
		enclaves = append(enclaves, e)
	}
	if err := rows.Err(); err != nil {
		return pagination.Result[*enclave.Enclave]{}, fmt.Errorf("failed to iterate enclaves: %w", err)
	}

	return pagination.NewResult(enclaves, total, page), nil
}

func (r *EnclaveRepository) scanEnclave(row *sql.Row) (*enclave.Enclave, error) {
	var (
		id          shared.ID
		name        string
		description sql.NullString
		createdAt   time.Time
		updatedAt   time.Time
	)

	err := row.Scan(&id, &name, &description, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, enclave.ErrEnclaveNotFound
		}
		return nil, fmt.Errorf("failed to get enclave: %w", err)
	}

	return enclave.Reconstitute(id, name, nullStringValue(description), createdAt, updatedAt), nil
}

func (r *EnclaveRepository) scanEnclaveRow(rows *sql.Rows) (*enclave.Enclave, error) {
	var (
		id          shared.ID
		name        string
		description sql.NullString
		createdAt   time.Time
		updatedAt   time.Time
	)

	if err := rows.Scan(&id, &name, &description, &createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan enclave: %w", err)
	}

	return enclave.Reconstitute(id, name, nullStringValue(description), createdAt, updatedAt), nil
}
