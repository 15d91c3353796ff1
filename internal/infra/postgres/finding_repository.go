package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/opennhi/api/pkg/domain/finding"
	"github.com/opennhi/api/pkg/domain/shared"
	"github.com/opennhi/api/pkg/domain/sourcetype"
	"github.com/opennhi/api/pkg/pagination"
)

// FindingRepository handles database operations for findings.
type FindingRepository struct {
	db *DB
}

// NewFindingRepository creates a new FindingRepository.
func NewFindingRepository(db *DB) *FindingRepository {
	return &FindingRepository{db: db}
}

const findingColumns = `
	id, job_id, connector_id, enclave_id, source_type,
	raw_attributes, discovered_at, created_at
`

// Record persists a batch of findings with a single multi-row insert.
func (r *FindingRepository) Record(ctx context.Context, findings []*finding.Finding) error {
	if len(findings) == 0 {
		return nil
	}

	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, pq.CopyIn("findings",
			"id", "job_id", "connector_id", "enclave_id", "source_type",
			"raw_attributes", "discovered_at", "created_at",
		))
		if err != nil {
			return fmt.Errorf("failed to prepare finding copy: %w", err)
		}
		defer stmt.Close()

		for _, f := range findings {
			rawJSON, err := toJSONB(f.RawAttributes())
			if err != nil {
				return fmt.Errorf("failed to marshal finding attributes: %w", err)
			}
			if _, err := stmt.ExecContext(ctx,
				f.ID().String(), nullID(f.JobID()), nullID(f.ConnectorID()),
				f.EnclaveID().String(), string(f.SourceType()),
				string(rawJSON), f.DiscoveredAt(), f.CreatedAt(),
			); err != nil {
				return fmt.Errorf("failed to buffer finding: %w", err)
			}
		}

		if _, err := stmt.ExecContext(ctx); err != nil {
			return fmt.Errorf("failed to flush findings: %w", err)
		}
		return nil
	})
}

// GetByID retrieves a finding by ID within an enclave.
func (r *FindingRepository) GetByID(ctx context.Context, enclaveID, id shared.ID) (*finding.Finding, error) {
	query := `
		SELECT ` + findingColumns + `
		FROM findings
		WHERE enclave_id = $1 AND id = $2
	`

	f, err := scanFinding(r.db.QueryRowContext(ctx, query, enclaveID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, finding.ErrFindingNotFound
		}
		return nil, fmt.Errorf("failed to get finding: %w", err)
	}
	return f, nil
}

// ListByJob returns the findings produced by a job, oldest first.
func (r *FindingRepository) ListByJob(ctx context.Context, enclaveID, jobID shared.ID, p pagination.Pagination) (pagination.Result[*finding.Finding], error) {
	var total int64
	countQuery := `SELECT COUNT(*) FROM findings WHERE enclave_id = $1 AND job_id = $2`
	if err := r.db.QueryRowContext(ctx, countQuery, enclaveID, jobID).Scan(&total); err != nil {
		return pagination.Result[*finding.Finding]{}, fmt.Errorf("failed to count findings: %w", err)
	}

	query := `
		SELECT ` + findingColumns + `
		FROM findings
		WHERE enclave_id = $1 AND job_id = $2
		ORDER BY discovered_at ASC, id ASC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.db.QueryContext(ctx, query, enclaveID, jobID, p.Limit(), p.Offset())
	if err != nil {
		return pagination.Result[*finding.Finding]{}, fmt.Errorf("failed to list findings: %w", err)
	}
	defer rows.Close()

	findings, err := collectFindings(rows)
	if err != nil {
		return pagination.Result[*finding.Finding]{}, err
	}

	return pagination.NewResult(findings, total, p), nil
}

// ListByIdentity returns the findings linked to an identity through
// provenance, oldest first.
func (r *FindingRepository) ListByIdentity(ctx context.Context, enclaveID, identityID shared.ID, p pagination.Pagination) (pagination.Result[*finding.Finding], error) {
	var total int64
	countQuery := `
		SELECT COUNT(*)
		FROM findings f
		JOIN provenance_links pl ON pl.finding_id = f.id
		WHERE f.enclave_id = $1 AND pl.identity_id = $2
	`
	if err := r.db.QueryRowContext(ctx, countQuery, enclaveID, identityID).Scan(&total); err != nil {
		return pagination.Result[*finding.Finding]{}, fmt.Errorf("failed to count findings: %w", err)
	}

	query := `
		SELECT f.id, f.job_id, f.connector_id, f.enclave_id, f.source_type,
		       f.raw_attributes, f.discovered_at, f.created_at
		FROM findings f
		JOIN provenance_links pl ON pl.finding_id = f.id
		WHERE f.enclave_id = $1 AND pl.identity_id = $2
		ORDER BY f.discovered_at ASC, f.id ASC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.db.QueryContext(ctx, query, enclaveID, identityID, p.Limit(), p.Offset())
	if err != nil {
		return pagination.Result[*finding.Finding]{}, fmt.Errorf("failed to list findings: %w", err)
	}
	defer rows.Close()

	findings, err := collectFindings(rows)
	if err != nil {
		return pagination.Result[*finding.Finding]{}, err
	}

	return pagination.NewResult(findings, total, p), nil
}

func scanFinding(row rowScanner) (*finding.Finding, error) {
	var (
		id           shared.ID
		jobID        sql.NullString
		connectorID  sql.NullString
		enclaveID    shared.ID
		sourceType   string
		rawJSON      []byte
		discoveredAt time.Time
		createdAt    time.Time
	)

	if err := row.Scan(
		&id, &jobID, &connectorID, &enclaveID, &sourceType,
		&rawJSON, &discoveredAt, &createdAt,
	); err != nil {
		return nil, err
	}

	raw := make(map[string]any)
	if err := fromJSONB(rawJSON, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal finding attributes: %w", err)
	}

	return finding.Reconstitute(
		id,
		parseNullID(jobID),
		parseNullID(connectorID),
		enclaveID,
		sourcetype.SourceType(sourceType),
		raw,
		discoveredAt, createdAt,
	), nil
}

func collectFindings(rows *sql.Rows) ([]*finding.Finding, error) {
	findings := make([]*finding.Finding, 0)
	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan finding: %w", err)
		}
		findings = append(findings, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate findings: %w", err)
	}
	return findings, nil
}
