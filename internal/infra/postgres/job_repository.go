package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opennhi/api/pkg/domain/job"
	"github.com/opennhi/api/pkg/domain/shared"
	"github.com/opennhi/api/pkg/pagination"
)

// JobRepository handles database operations for jobs.
type JobRepository struct {
	db *DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

const jobColumns = `
	id, connector_id, enclave_id, status, triggered_by,
	started_at, completed_at, records_found, findings_count,
	unresolved_count, error_message, created_at, updated_at
`

// CreateIfIdle inserts the job only when the connector has no pending or
// running job. The check and insert run as one statement so two racing
// callers cannot both succeed.
func (r *JobRepository) CreateIfIdle(ctx context.Context, j *job.Job) error {
	query := `
		INSERT INTO jobs (
			id, connector_id, enclave_id, status, triggered_by,
			started_at, completed_at, records_found, findings_count,
			unresolved_count, error_message, created_at, updated_at
		)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		WHERE NOT EXISTS (
			SELECT 1 FROM jobs
			WHERE connector_id = $2 AND status IN ('pending', 'running')
		)
	`

	result, err := r.db.ExecContext(ctx, query,
		j.ID(), j.ConnectorID(), j.EnclaveID(), string(j.Status()), string(j.TriggeredBy()),
		nullTime(j.StartedAt()), nullTime(j.CompletedAt()),
		j.RecordsFound(), j.FindingsCount(), j.UnresolvedCount(),
		nullString(j.ErrorMessage()), j.CreatedAt(), j.UpdatedAt(),
	)
	if err != nil {
		// The partial unique index on (connector_id) for non-terminal jobs
		// backstops the NOT EXISTS check under concurrency.
		if isUniqueViolation(err) {
			return job.ErrJobInProgress
		}
		return fmt.Errorf("failed to create job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check job insert result: %w", err)
	}
	if rows == 0 {
		return job.ErrJobInProgress
	}

	return nil
}

// GetByID retrieves a job by ID within an enclave.
func (r *JobRepository) GetByID(ctx context.Context, enclaveID, id shared.ID) (*job.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE enclave_id = $1 AND id = $2
	`

	j, err := scanJob(r.db.QueryRowContext(ctx, query, enclaveID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, job.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return j, nil
}

// Update persists changes to a job.
func (r *JobRepository) Update(ctx context.Context, j *job.Job) error {
	query := `
		UPDATE jobs
		SET status = $2, started_at = $3, completed_at = $4,
		    records_found = $5, findings_count = $6, unresolved_count = $7,
		    error_message = $8, updated_at = $9
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		j.ID(), string(j.Status()),
		nullTime(j.StartedAt()), nullTime(j.CompletedAt()),
		j.RecordsFound(), j.FindingsCount(), j.UnresolvedCount(),
		nullString(j.ErrorMessage()), j.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return job.ErrJobNotFound
	}

	return nil
}

// List returns a page of jobs matching the filter, newest first.
func (r *JobRepository) List(ctx context.Context, filter job.Filter, page pagination.Pagination) (pagination.Result[*job.Job], error) {
	conditions := make([]string, 0)
	args := make([]any, 0)
	argIdx := 1

	if filter.EnclaveID != nil {
		conditions = append(conditions, fmt.Sprintf("enclave_id = $%d", argIdx))
		args = append(args, *filter.EnclaveID)
		argIdx++
	}
	if filter.ConnectorID != nil {
		conditions = append(conditions, fmt.Sprintf("connector_id = $%d", argIdx))
		args = append(args, *filter.ConnectorID)
		argIdx++
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			placeholders = append(placeholders, fmt.Sprintf("$%d", argIdx))
			args = append(args, string(s))
			argIdx++
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ", ")))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	countQuery := "SELECT COUNT(*) FROM jobs " + whereClause
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return pagination.Result[*job.Job]{}, fmt.Errorf("failed to count jobs: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM jobs
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, jobColumns, whereClause, argIdx, argIdx+1)
	args = append(args, page.Limit(), page.Offset())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return pagination.Result[*job.Job]{}, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]*job.Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return pagination.Result[*job.Job]{}, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return pagination.Result[*job.Job]{}, fmt.Errorf("failed to iterate jobs: %w", err)
	}

	return pagination.NewResult(jobs, total, page), nil
}

func scanJob(row rowScanner) (*job.Job, error) {
	var (
		id              shared.ID
		connectorID     shared.ID
		enclaveID       shared.ID
		status          string
		triggeredBy     string
		startedAt       sql.NullTime
		completedAt     sql.NullTime
		recordsFound    int
		findingsCount   int
		unresolvedCount int
		errorMessage    sql.NullString
		createdAt       time.Time
		updatedAt       time.Time
	)

	if err := row.Scan(
		&id, &connectorID, &enclaveID, &status, &triggeredBy,
		&startedAt, &completedAt, &recordsFound, &findingsCount,
		&unresolvedCount, &errorMessage, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	return job.Reconstitute(
		id, connectorID, enclaveID,
		job.Status(status),
		job.Trigger(triggeredBy),
		nullTimeValue(startedAt), nullTimeValue(completedAt),
		recordsFound, findingsCount, unresolvedCount,
		nullStringValue(errorMessage),
		createdAt, updatedAt,
	), nil
}
