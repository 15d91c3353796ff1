package finding

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opennhi/api/pkg/domain/shared"
	"github.com/opennhi/api/pkg/domain/sourcetype"
)

func TestNew_Validation(t *testing.T) {
	_, err := New(shared.ID{}, shared.NewID(), shared.NewID(), sourcetype.ADServiceAccount, nil, time.Time{})
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = New(shared.NewID(), shared.NewID(), shared.ID{}, sourcetype.ADServiceAccount, nil, time.Time{})
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = New(shared.NewID(), shared.NewID(), shared.NewID(), sourcetype.SourceType("bogus"), nil, time.Time{})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestNew_KeepsProducingReferences(t *testing.T) {
	jobID := shared.NewID()
	connID := shared.NewID()
	discovered := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	f, err := New(jobID, connID, shared.NewID(), sourcetype.ADCSCertificate,
		map[string]any{"serial_number": "AA01"}, discovered)
	require.NoError(t, err)

	require.NotNil(t, f.JobID())
	assert.True(t, f.JobID().Equals(jobID))
	require.NotNil(t, f.ConnectorID())
	assert.True(t, f.ConnectorID().Equals(connID))
	assert.Equal(t, discovered, f.DiscoveredAt())
}

// A finding outlives the connector and jobs that produced it; both
// references go nil while the raw evidence stays intact.
func TestReconstitute_OrphanedReferences(t *testing.T) {
	discovered := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	f := Reconstitute(
		shared.NewID(), nil, nil, shared.NewID(),
		sourcetype.ADServiceAccount,
		map[string]any{"object_sid": "S-1-5-21-1-2-3-1105"},
		discovered, discovered,
	)

	assert.Nil(t, f.JobID())
	assert.Nil(t, f.ConnectorID())
	assert.Equal(t, "S-1-5-21-1-2-3-1105", f.RawAttributes()["object_sid"])
	assert.Equal(t, discovered, f.DiscoveredAt())
}
