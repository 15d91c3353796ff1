package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opennhi/api/pkg/domain/connector"
	"github.com/opennhi/api/pkg/domain/shared"
	"github.com/opennhi/api/pkg/pagination"
)

// ConnectorRepository handles database operations for connectors.
type ConnectorRepository struct {
	db *DB
}

// NewConnectorRepository creates a new ConnectorRepository.
func NewConnectorRepository(db *DB) *ConnectorRepository {
	return &ConnectorRepository{db: db}
}

const connectorColumns = `
	id, enclave_id, type_code, name, config, cron_expr, enabled,
	last_run_at, last_run_status, created_at, updated_at
`

// Create inserts a new connector.
func (r *ConnectorRepository) Create(ctx context.Context, c *connector.Connector) error {
	configJSON, err := toJSONB(c.Config())
	if err != nil {
		return fmt.Errorf("failed to marshal connector config: %w", err)
	}

	query := `
		INSERT INTO connectors (
			id, enclave_id, type_code, name, config, cron_expr, enabled,
			last_run_at, last_run_status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.db.ExecContext(ctx, query,
		c.ID(), c.EnclaveID(), string(c.TypeCode()), c.Name(), configJSON,
		nullString(c.CronExpression()), c.Enabled(),
		nullTime(c.LastRunAt()), string(c.LastRunStatus()),
		c.CreatedAt(), c.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to create connector: %w", err)
	}

	return nil
}

// GetByID retrieves a connector by ID within an enclave.
func (r *ConnectorRepository) GetByID(ctx context.Context, enclaveID, id shared.ID) (*connector.Connector, error) {
	query := `
		SELECT ` + connectorColumns + `
		FROM connectors
		WHERE enclave_id = $1 AND id = $2
	`

	c, err := scanConnector(r.db.QueryRowContext(ctx, query, enclaveID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, connector.ErrConnectorNotFound
		}
		return nil, fmt.Errorf("failed to get connector: %w", err)
	}
	return c, nil
}

// Update persists changes to a connector.
func (r *ConnectorRepository) Update(ctx context.Context, c *connector.Connector) error {
	configJSON, err := toJSONB(c.Config())
	if err != nil {
		return fmt.Errorf("failed to marshal connector config: %w", err)
	}

	query := `
		UPDATE connectors
		SET name = $3, config = $4, cron_expr = $5, enabled = $6,
		    last_run_at = $7, last_run_status = $8, updated_at = $9
		WHERE enclave_id = $1 AND id = $2
	`

	result, err := r.db.ExecContext(ctx, query,
		c.EnclaveID(), c.ID(), c.Name(), configJSON,
		nullString(c.CronExpression()), c.Enabled(),
		nullTime(c.LastRunAt()), string(c.LastRunStatus()), c.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to update connector: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return connector.ErrConnectorNotFound
	}

	return nil
}

// Delete removes a connector. Jobs cascade; findings and provenance links
// keep nulled connector and job references through ON DELETE SET NULL, so
// the evidence trail survives.
func (r *ConnectorRepository) Delete(ctx context.Context, enclaveID, id shared.ID) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM connectors WHERE enclave_id = $1 AND id = $2`, enclaveID, id)
	if err != nil {
		return fmt.Errorf("failed to delete connector: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if rows == 0 {
		return connector.ErrConnectorNotFound
	}

	return nil
}

// List returns a page of connectors matching the filter, newest first.
func (r *ConnectorRepository) List(ctx context.Context, filter connector.Filter, page pagination.Pagination) (pagination.Result[*connector.Connector], error) {
	conditions := make([]string, 0)
	args := make([]any, 0)
	argIdx := 1

	if filter.EnclaveID != nil {
		conditions = append(conditions, fmt.Sprintf("enclave_id = $%d", argIdx))
		args = append(args, *filter.EnclaveID)
		argIdx++
	}
	if filter.TypeCode != nil {
		conditions = append(conditions, fmt.Sprintf("type_code = $%d", argIdx))
		args = append(args, string(*filter.TypeCode))
		argIdx++
	}
	if filter.Enabled != nil {
		conditions = append(conditions, fmt.Sprintf("enabled = $%d", argIdx))
		args = append(args, *filter.Enabled)
		argIdx++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	countQuery := "SELECT COUNT(*) FROM connectors " + whereClause
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return pagination.Result[*connector.Connector]{}, fmt.Errorf("failed to count connectors: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM connectors
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, connectorColumns, whereClause, argIdx, argIdx+1)
	args = append(args, page.Limit(), page.Offset())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return pagination.Result[*connector.Connector]{}, fmt.Errorf("failed to list connectors: %w", err)
	}
	defer rows.Close()

	connectors, err := collectConnectors(rows)
	if err != nil {
		return pagination.Result[*connector.Connector]{}, err
	}

	return pagination.NewResult(connectors, total, page), nil
}

// ListScheduled returns every enabled connector with a schedule, across all
// enclaves.
func (r *ConnectorRepository) ListScheduled(ctx context.Context) ([]*connector.Connector, error) {
	query := `
		SELECT ` + connectorColumns + `
		FROM connectors
		WHERE enabled = TRUE AND cron_expr IS NOT NULL AND cron_expr <> ''
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled connectors: %w", err)
	}
	defer rows.Close()

	return collectConnectors(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnector(row rowScanner) (*connector.Connector, error) {
	var (
		id            shared.ID
		enclaveID     shared.ID
		typeCode      string
		name          string
		configJSON    []byte
		cronExpr      sql.NullString
		enabled       bool
		lastRunAt     sql.NullTime
		lastRunStatus string
		createdAt     time.Time
		updatedAt     time.Time
	)

	if err := row.Scan(
		&id, &enclaveID, &typeCode, &name, &configJSON, &cronExpr, &enabled,
		&lastRunAt, &lastRunStatus, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	config := make(map[string]any)
	if err := fromJSONB(configJSON, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal connector config: %w", err)
	}

	return connector.Reconstitute(
		id, enclaveID,
		connector.TypeCode(typeCode),
		name,
		config,
		nullStringValue(cronExpr),
		enabled,
		nullTimeValue(lastRunAt),
		connector.RunStatus(lastRunStatus),
		createdAt, updatedAt,
	), nil
}

func collectConnectors(rows *sql.Rows) ([]*connector.Connector, error) {
	connectors := make([]*connector.Connector, 0)
	for rows.Next() {
		c, err := scanConnector(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connector: %w", err)
		}
		connectors = append(connectors, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate connectors: %w", err)
	}
	return connectors, nil
}
