// Package finding defines the append-only ledger of raw connector output.
// Findings are immutable: re-discovery of the same real-world entity produces
// a new finding, never a mutation of an old one.
package finding

import (
	"fmt"
	"time"

	"github.com/opennhi/api/pkg/domain/shared"
	"github.com/opennhi/api/pkg/domain/sourcetype"
)

// Finding is one raw record produced by one job.
type Finding struct {
	id            shared.ID
	jobID         *shared.ID // nil after the producing job is deleted
	connectorID   *shared.ID // nil after the connector is deleted
	enclaveID     shared.ID
	sourceType    sourcetype.SourceType
	rawAttributes map[string]any
	discoveredAt  time.Time
	createdAt     time.Time
}

// New creates a Finding.
func New(jobID, connectorID, enclaveID shared.ID, st sourcetype.SourceType, raw map[string]any, discoveredAt time.Time) (*Finding, error) {
	if jobID.IsZero() {
		return nil, fmt.Errorf("%w: job id is required", shared.ErrValidation)
	}
	if enclaveID.IsZero() {
		return nil, fmt.Errorf("%w: enclave id is required", shared.ErrValidation)
	}
	if !sourcetype.IsValid(st) {
		return nil, fmt.Errorf("%w: unknown source type %q", shared.ErrValidation, st)
	}
	if raw == nil {
		raw = make(map[string]any)
	}
	if discoveredAt.IsZero() {
		discoveredAt = time.Now().UTC()
	}

	f := &Finding{
		id:            shared.NewID(),
		jobID:         &jobID,
		enclaveID:     enclaveID,
		sourceType:    st,
		rawAttributes: raw,
		discoveredAt:  discoveredAt,
		createdAt:     time.Now().UTC(),
	}
	if !connectorID.IsZero() {
		f.connectorID = &connectorID
	}
	return f, nil
}

// Reconstitute recreates a Finding from persistence.
func Reconstitute(
	id shared.ID,
	jobID, connectorID *shared.ID,
	enclaveID shared.ID,
	st sourcetype.SourceType,
	raw map[string]any,
	discoveredAt, createdAt time.Time,
) *Finding {
	if raw == nil {
		raw = make(map[string]any)
	}
	return &Finding{
		id:            id,
		jobID:         jobID,
		connectorID:   connectorID,
		enclaveID:     enclaveID,
		sourceType:    st,
		rawAttributes: raw,
		discoveredAt:  discoveredAt,
		createdAt:     createdAt,
	}
}

// ID returns the finding ID.
func (f *Finding) ID() shared.ID { return f.id }

// JobID returns the producing job, nil once that job has been deleted.
func (f *Finding) JobID() *shared.ID { return f.jobID }

// ConnectorID returns the producing connector, nil once that connector has
// been deleted.
func (f *Finding) ConnectorID() *shared.ID { return f.connectorID }

// EnclaveID returns the owning enclave.
func (f *Finding) EnclaveID() shared.ID { return f.enclaveID }

// SourceType returns the record's source-type family.
func (f *Finding) SourceType() sourcetype.SourceType { return f.sourceType }

// RawAttributes returns a copy of the raw payload.
func (f *Finding) RawAttributes() map[string]any {
	out := make(map[string]any, len(f.rawAttributes))
	for k, v := range f.rawAttributes {
		out[k] = v
	}
	return out
}

// DiscoveredAt returns the discovery timestamp.
func (f *Finding) DiscoveredAt() time.Time { return f.discoveredAt }

// CreatedAt returns when the finding was recorded.
func (f *Finding) CreatedAt() time.Time { return f.createdAt }
