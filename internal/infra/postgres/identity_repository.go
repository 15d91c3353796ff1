package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opennhi/api/pkg/domain/identity"
	"github.com/opennhi/api/pkg/domain/shared"
	"github.com/opennhi/api/pkg/domain/sourcetype"
	"github.com/opennhi/api/pkg/pagination"
	"github.com/opennhi/api/pkg/risk"
)

// IdentityRepository handles database operations for identities and their
// provenance links.
type IdentityRepository struct {
	db *DB
}

// NewIdentityRepository creates a new IdentityRepository.
func NewIdentityRepository(db *DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

// identitySortFields maps request sort fields to columns.
var identitySortFields = map[string]string{
	"display_name": "display_name",
	"risk_score":   "risk_score",
	"first_seen":   "first_seen",
	"last_seen":    "last_seen",
	"created_at":   "created_at",
}

// IdentitySortOption returns a SortOption for identity listings.
func IdentitySortOption() *pagination.SortOption {
	return pagination.NewSortOption(identitySortFields)
}

const identityColumns = `
	id, enclave_id, fingerprint, identity_type, display_name,
	attributes, owner, linked_system, risk_score, risk_factors,
	first_seen, last_seen, created_at, updated_at
`

// Create inserts a new identity. The unique index on
// (enclave_id, fingerprint) turns concurrent duplicate inserts into
// ErrFingerprintExists.
func (r *IdentityRepository) Create(ctx context.Context, ident *identity.Identity) error {
	attrsJSON, err := toJSONB(ident.Attributes())
	if err != nil {
		return fmt.Errorf("failed to marshal identity attributes: %w", err)
	}
	factorsJSON, err := toJSONB(ident.RiskFactors())
	if err != nil {
		return fmt.Errorf("failed to marshal risk factors: %w", err)
	}

	query := `
		INSERT INTO identities (
			id, enclave_id, fingerprint, identity_type, display_name,
			attributes, owner, linked_system, risk_score, risk_factors,
			first_seen, last_seen, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err = r.db.ExecContext(ctx, query,
		ident.ID(), ident.EnclaveID(), ident.Fingerprint(), string(ident.Type()),
		ident.DisplayName(), attrsJSON,
		nullString(ident.Owner()), nullString(ident.LinkedSystem()),
		ident.RiskScore(), factorsJSON,
		ident.FirstSeen(), ident.LastSeen(), ident.CreatedAt(), ident.UpdatedAt(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return identity.ErrFingerprintExists
		}
		return fmt.Errorf("failed to create identity: %w", err)
	}

	return nil
}

// GetByID retrieves an identity by ID within an enclave.
func (r *IdentityRepository) GetByID(ctx context.Context, enclaveID, id shared.ID) (*identity.Identity, error) {
	query := `
		SELECT ` + identityColumns + `
		FROM identities
		WHERE enclave_id = $1 AND id = $2
	`
	return r.getOne(ctx, query, enclaveID, id)
}

// GetByFingerprint retrieves an identity by fingerprint within an enclave.
func (r *IdentityRepository) GetByFingerprint(ctx context.Context, enclaveID shared.ID, fingerprint string) (*identity.Identity, error) {
	query := `
		SELECT ` + identityColumns + `
		FROM identities
		WHERE enclave_id = $1 AND fingerprint = $2
	`
	return r.getOne(ctx, query, enclaveID, fingerprint)
}

func (r *IdentityRepository) getOne(ctx context.Context, query string, args ...any) (*identity.Identity, error) {
	ident, err := scanIdentity(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, identity.ErrIdentityNotFound
		}
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	return ident, nil
}

// Update persists changes to an identity.
func (r *IdentityRepository) Update(ctx context.Context, ident *identity.Identity) error {
	attrsJSON, err := toJSONB(ident.Attributes())
	if err != nil {
		return fmt.Errorf("failed to marshal identity attributes: %w", err)
	}
	factorsJSON, err := toJSONB(ident.RiskFactors())
	if err != nil {
		return fmt.Errorf("failed to marshal risk factors: %w", err)
	}

	query := `
		UPDATE identities
		SET display_name = $2, attributes = $3, owner = $4, linked_system = $5,
		    risk_score = $6, risk_factors = $7,
		    first_seen = $8, last_seen = $9, updated_at = $10
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		ident.ID(), ident.DisplayName(), attrsJSON,
		nullString(ident.Owner()), nullString(ident.LinkedSystem()),
		ident.RiskScore(), factorsJSON,
		ident.FirstSeen(), ident.LastSeen(), ident.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to update identity: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return identity.ErrIdentityNotFound
	}

	return nil
}

// Delete removes an identity. Provenance links cascade.
func (r *IdentityRepository) Delete(ctx context.Context, enclaveID, id shared.ID) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM identities WHERE enclave_id = $1 AND id = $2`, enclaveID, id)
	if err != nil {
		return fmt.Errorf("failed to delete identity: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if rows == 0 {
		return identity.ErrIdentityNotFound
	}

	return nil
}

// List returns a page of identities matching the filter.
func (r *IdentityRepository) List(ctx context.Context, filter identity.Filter, p pagination.Pagination, sort *pagination.SortOption) (pagination.Result[*identity.Identity], error) {
	conditions := []string{"enclave_id = $1"}
	args := []any{filter.EnclaveID}
	argIdx := 2

	if filter.Type != nil {
		conditions = append(conditions, fmt.Sprintf("identity_type = $%d", argIdx))
		args = append(args, string(*filter.Type))
		argIdx++
	}
	if filter.Owner != nil {
		if *filter.Owner == "" {
			conditions = append(conditions, "owner IS NULL")
		} else {
			conditions = append(conditions, fmt.Sprintf("owner = $%d", argIdx))
			args = append(args, *filter.Owner)
			argIdx++
		}
	}
	if filter.LinkedSystem != nil {
		if *filter.LinkedSystem == "" {
			conditions = append(conditions, "linked_system IS NULL")
		} else {
			conditions = append(conditions, fmt.Sprintf("linked_system = $%d", argIdx))
			args = append(args, *filter.LinkedSystem)
			argIdx++
		}
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(display_name ILIKE $%d OR fingerprint ILIKE $%d)", argIdx, argIdx))
		args = append(args, "%"+filter.Search+"%")
		argIdx++
	}
	if filter.MinRisk != nil {
		conditions = append(conditions, fmt.Sprintf("risk_score >= $%d", argIdx))
		args = append(args, *filter.MinRisk)
		argIdx++
	}
	if filter.MaxRisk != nil {
		conditions = append(conditions, fmt.Sprintf("risk_score <= $%d", argIdx))
		args = append(args, *filter.MaxRisk)
		argIdx++
	}

	whereClause := "WHERE " + strings.Join(conditions, " AND ")

	var total int64
	countQuery := "SELECT COUNT(*) FROM identities " + whereClause
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return pagination.Result[*identity.Identity]{}, fmt.Errorf("failed to count identities: %w", err)
	}

	orderBy := "last_seen DESC"
	if sort != nil {
		orderBy = sort.SQLWithDefault(orderBy)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM identities
		%s
		ORDER BY %s
		LIMIT $%d OFFSET $%d
	`, identityColumns, whereClause, orderBy, argIdx, argIdx+1)
	args = append(args, p.Limit(), p.Offset())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return pagination.Result[*identity.Identity]{}, fmt.Errorf("failed to list identities: %w", err)
	}
	defer rows.Close()

	identities := make([]*identity.Identity, 0)
	for rows.Next() {
		ident, err := scanIdentity(rows)
		if err != nil {
			return pagination.Result[*identity.Identity]{}, fmt.Errorf("failed to scan identity: %w", err)
		}
		identities = append(identities, ident)
	}
	if err := rows.Err(); err != nil {
		return pagination.Result[*identity.Identity]{}, fmt.Errorf("failed to iterate identities: %w", err)
	}

	return pagination.NewResult(identities, total, p), nil
}

// AddProvenance links an identity to a finding. ON CONFLICT DO NOTHING makes
// relinking the same pair a no-op.
func (r *IdentityRepository) AddProvenance(ctx context.Context, link *identity.ProvenanceLink) error {
	query := `
		INSERT INTO provenance_links (id, identity_id, finding_id, job_id, linked_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (identity_id, finding_id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query,
		link.ID(), link.IdentityID(), link.FindingID(), nullID(link.JobID()), link.LinkedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to add provenance link: %w", err)
	}

	return nil
}

// ListProvenance returns an identity's provenance links, oldest first.
func (r *IdentityRepository) ListProvenance(ctx context.Context, enclaveID, identityID shared.ID, p pagination.Pagination) (pagination.Result[*identity.ProvenanceLink], error) {
	var total int64
	countQuery := `
		SELECT COUNT(*)
		FROM provenance_links pl
		JOIN identities i ON i.id = pl.identity_id
		WHERE i.enclave_id = $1 AND pl.identity_id = $2
	`
	if err := r.db.QueryRowContext(ctx, countQuery, enclaveID, identityID).Scan(&total); err != nil {
		return pagination.Result[*identity.ProvenanceLink]{}, fmt.Errorf("failed to count provenance links: %w", err)
	}

	query := `
		SELECT pl.id, pl.identity_id, pl.finding_id, pl.job_id, pl.linked_at
		FROM provenance_links pl
		JOIN identities i ON i.id = pl.identity_id
		WHERE i.enclave_id = $1 AND pl.identity_id = $2
		ORDER BY pl.linked_at ASC, pl.id ASC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.db.QueryContext(ctx, query, enclaveID, identityID, p.Limit(), p.Offset())
	if err != nil {
		return pagination.Result[*identity.ProvenanceLink]{}, fmt.Errorf("failed to list provenance links: %w", err)
	}
	defer rows.Close()

	links := make([]*identity.ProvenanceLink, 0)
	for rows.Next() {
		var (
			id         shared.ID
			identityID shared.ID
			findingID  shared.ID
			jobID      sql.NullString
			linkedAt   time.Time
		)
		if err := rows.Scan(&id, &identityID, &findingID, &jobID, &linkedAt); err != nil {
			return pagination.Result[*identity.ProvenanceLink]{}, fmt.Errorf("failed to scan provenance link: %w", err)
		}
		links = append(links, identity.ReconstituteProvenanceLink(id, identityID, findingID, parseNullID(jobID), linkedAt))
	}
	if err := rows.Err(); err != nil {
		return pagination.Result[*identity.ProvenanceLink]{}, fmt.Errorf("failed to iterate provenance links: %w", err)
	}

	return pagination.NewResult(links, total, p), nil
}

// CountByType returns identity counts per identity type in an enclave.
func (r *IdentityRepository) CountByType(ctx context.Context, enclaveID shared.ID) (map[sourcetype.IdentityType]int, error) {
	query := `
		SELECT identity_type, COUNT(*)
		FROM identities
		WHERE enclave_id = $1
		GROUP BY identity_type
	`

	rows, err := r.db.QueryContext(ctx, query, enclaveID)
	if err != nil {
		return nil, fmt.Errorf("failed to count identities by type: %w", err)
	}
	defer rows.Close()

	counts := make(map[sourcetype.IdentityType]int)
	for rows.Next() {
		var (
			it    string
			count int
		)
		if err := rows.Scan(&it, &count); err != nil {
			return nil, fmt.Errorf("failed to scan identity count: %w", err)
		}
		counts[sourcetype.IdentityType(it)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate identity counts: %w", err)
	}

	return counts, nil
}

func scanIdentity(row rowScanner) (*identity.Identity, error) {
	var (
		id           shared.ID
		enclaveID    shared.ID
		fingerprint  string
		identityType string
		displayName  string
		attrsJSON    []byte
		owner        sql.NullString
		linkedSystem sql.NullString
		riskScore    int
		factorsJSON  []byte
		firstSeen    time.Time
		lastSeen     time.Time
		createdAt    time.Time
		updatedAt    time.Time
	)

	if err := row.Scan(
		&id, &enclaveID, &fingerprint, &identityType, &displayName,
		&attrsJSON, &owner, &linkedSystem, &riskScore, &factorsJSON,
		&firstSeen, &lastSeen, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	attrs := make(map[string]any)
	if err := fromJSONB(attrsJSON, &attrs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal identity attributes: %w", err)
	}

	var factors []risk.Factor
	if err := fromJSONB(factorsJSON, &factors); err != nil {
		return nil, fmt.Errorf("failed to unmarshal risk factors: %w", err)
	}

	return identity.Reconstitute(
		id, enclaveID, fingerprint,
		sourcetype.IdentityType(identityType),
		displayName, attrs,
		nullStringValue(owner), nullStringValue(linkedSystem),
		riskScore, factors,
		firstSeen, lastSeen, createdAt, updatedAt,
	), nil
}
