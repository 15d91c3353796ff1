package app

import (
	"context"
	"fmt"

	"github.com/opennhi/api/internal/infra/connectors"
	"github.com/opennhi/api/pkg/crypto"
	"github.com/opennhi/api/pkg/domain/connector"
	"github.com/opennhi/api/pkg/domain/shared"
	"github.com/opennhi/api/pkg/logger"
	"github.com/opennhi/api/pkg/pagination"
)

// SecretMask replaces secret config values in API output.
const SecretMask = "********"

// ConnectorService handles connector business logic. Secret config keys are
// encrypted before they reach the repository and masked on the way out; the
// plaintext only exists inside the fetch path.
type ConnectorService struct {
	repo      connector.Repository
	factory   *connectors.Factory
	encryptor crypto.Encryptor
	logger    *logger.Logger
}

// NewConnectorService creates a new connector service.
func NewConnectorService(repo connector.Repository, factory *connectors.Factory, encryptor crypto.Encryptor, log *logger.Logger) *ConnectorService {
	return &ConnectorService{
		repo:      repo,
		factory:   factory,
		encryptor: encryptor,
		logger:    log,
	}
}

// CreateConnectorInput represents input for creating a connector.
type CreateConnectorInput struct {
	EnclaveID string         `validate:"required,uuid"`
	Type      string         `validate:"required,connector_type"`
	Name      string         `validate:"required,min=1,max=255"`
	Config    map[string]any `validate:"required"`
	CronExpr  string         `validate:"omitempty,cron"`
}

// UpdateConnectorInput represents input for updating a connector.
type UpdateConnectorInput struct {
	Name     *string        `validate:"omitempty,min=1,max=255"`
	Config   map[string]any `validate:"omitempty"`
	CronExpr *string        `validate:"omitempty,cron"`
	Enabled  *bool
}

// ListConnectorsInput represents input for listing connectors.
type ListConnectorsInput struct {
	EnclaveID string
	Type      string
	Enabled   *bool
	Page      int
	PerPage   int
}

// TestConnectionResult reports the outcome of a connectivity probe.
type TestConnectionResult struct {
	Success      bool   `json:"success"`
	RecordsFound int    `json:"records_found"`
	Error        string `json:"error,omitempty"`
}

// CreateConnector creates a connector. Required config keys are validated
// against the type descriptor and secrets are encrypted at rest.
func (s *ConnectorService) CreateConnector(ctx context.Context, input CreateConnectorInput) (*connector.Connector, error) {
	enclaveID, err := shared.IDFromString(input.EnclaveID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid enclave ID", shared.ErrValidation)
	}

	desc, ok := connector.LookupType(connector.TypeCode(input.Type))
	if !ok {
		return nil, fmt.Errorf("%w: unknown connector type %q", shared.ErrValidation, input.Type)
	}
	if err := desc.ValidateConfig(input.Config); err != nil {
		return nil, err
	}

	config, err := s.encryptSecrets(desc, input.Config)
	if err != nil {
		return nil, err
	}

	conn, err := connector.New(enclaveID, desc.Code, input.Name, config, input.CronExpr)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, conn); err != nil {
		return nil, err
	}

	s.logger.Info("connector created",
		"connector_id", conn.ID(),
		"enclave_id", enclaveID,
		"type", desc.Code)
	return conn, nil
}

// GetConnector retrieves a connector by ID within an enclave.
func (s *ConnectorService) GetConnector(ctx context.Context, enclaveID shared.ID, id string) (*connector.Connector, error) {
	connectorID, err := shared.IDFromString(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid connector ID", shared.ErrValidation)
	}
	return s.repo.GetByID(ctx, enclaveID, connectorID)
}

// UpdateConnector applies a partial update. A config update replaces the
// whole config map; an omitted secret keeps its stored ciphertext only when
// the client sends back the mask.
func (s *ConnectorService) UpdateConnector(ctx context.Context, enclaveID shared.ID, id string, input UpdateConnectorInput) (*connector.Connector, error) {
	conn, err := s.GetConnector(ctx, enclaveID, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		if err := conn.Rename(*input.Name); err != nil {
			return nil, err
		}
	}

	if input.Config != nil {
		desc, _ := connector.LookupType(conn.TypeCode())
		if err := desc.ValidateConfig(input.Config); err != nil {
			return nil, err
		}

		stored := conn.Config()
		for _, key := range desc.SecretConfig {
			if input.Config[key] == SecretMask {
				input.Config[key] = stored[key]
				continue
			}
			if v, ok := input.Config[key].(string); ok && v != "" {
				encrypted, err := s.encryptor.EncryptString(v)
				if err != nil {
					return nil, fmt.Errorf("encrypt config key %q: %w", key, err)
				}
				input.Config[key] = encrypted
			}
		}

		if err := conn.UpdateConfig(input.Config); err != nil {
			return nil, err
		}
	}

	if input.CronExpr != nil {
		if err := conn.UpdateSchedule(*input.CronExpr); err != nil {
			return nil, err
		}
	}

	if input.Enabled != nil {
		if *input.Enabled {
			conn.Enable()
		} else {
			conn.Disable()
		}
	}

	if err := s.repo.Update(ctx, conn); err != nil {
		return nil, err
	}
	return conn, nil
}

// DeleteConnector removes a connector. Its findings survive with a nulled
// connector reference, so identity provenance stays intact.
func (s *ConnectorService) DeleteConnector(ctx context.Context, enclaveID shared.ID, id string) error {
	connectorID, err := shared.IDFromString(id)
	if err != nil {
		return fmt.Errorf("%w: invalid connector ID", shared.ErrValidation)
	}

	if err := s.repo.Delete(ctx, enclaveID, connectorID); err != nil {
		return err
	}

	s.logger.Info("connector deleted", "connector_id", connectorID, "enclave_id", enclaveID)
	return nil
}

// ListConnectors returns a page of connectors.
func (s *ConnectorService) ListConnectors(ctx context.Context, input ListConnectorsInput) (pagination.Result[*connector.Connector], error) {
	filter := connector.Filter{Enabled: input.Enabled}

	if input.EnclaveID != "" {
		enclaveID, err := shared.IDFromString(input.EnclaveID)
		if err != nil {
			return pagination.Result[*connector.Connector]{}, fmt.Errorf("%w: invalid enclave ID", shared.ErrValidation)
		}
		filter.EnclaveID = &enclaveID
	}
	if input.Type != "" {
		code := connector.TypeCode(input.Type)
		if _, ok := connector.LookupType(code); !ok {
			return pagination.Result[*connector.Connector]{}, fmt.Errorf("%w: unknown connector type %q", shared.ErrValidation, input.Type)
		}
		filter.TypeCode = &code
	}

	return s.repo.List(ctx, filter, pagination.New(input.Page, input.PerPage))
}

// ListTypes returns the connector type catalog.
func (s *ConnectorService) ListTypes() []connector.TypeDescriptor {
	return connector.Types()
}

// TestConnection probes a connector's source without recording anything.
func (s *ConnectorService) TestConnection(ctx context.Context, enclaveID shared.ID, id string) (TestConnectionResult, error) {
	conn, err := s.GetConnector(ctx, enclaveID, id)
	if err != nil {
		return TestConnectionResult{}, err
	}

	source, err := s.factory.ForConnector(conn)
	if err != nil {
		return TestConnectionResult{}, err
	}

	records, err := source.Fetch(ctx)
	if err != nil {
		s.logger.Warn("connection test failed", "connector_id", conn.ID(), "error", err)
		return TestConnectionResult{Success: false, Error: err.Error()}, nil
	}

	return TestConnectionResult{Success: true, RecordsFound: len(records)}, nil
}

// MaskedConfig returns the connector config with secret values replaced by
// the mask. Handlers must never serialize the raw config.
func (s *ConnectorService) MaskedConfig(conn *connector.Connector) map[string]any {
	desc, _ := connector.LookupType(conn.TypeCode())
	config := conn.Config()
	for _, key := range desc.SecretConfig {
		if _, ok := config[key]; ok {
			config[key] = SecretMask
		}
	}
	return config
}

func (s *ConnectorService) encryptSecrets(desc connector.TypeDescriptor, config map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(config))
	for k, v := range config {
		out[k] = v
	}
	for _, key := range desc.SecretConfig {
		v, ok := out[key].(string)
		if !ok || v == "" {
			continue
		}
		encrypted, err := s.encryptor.EncryptString(v)
		if err != nil {
			return nil, fmt.Errorf("encrypt config key %q: %w", key, err)
		}
		out[key] = encrypted
	}
	return out, nil
}
