package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opennhi/api/pkg/domain/shared"
)

func TestNewProvenanceLink_CarriesDiscoveryTimestamp(t *testing.T) {
	jobID := shared.NewID()
	discovered := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	link := NewProvenanceLink(shared.NewID(), shared.NewID(), &jobID, discovered)

	assert.Equal(t, discovered, link.LinkedAt())
	require.NotNil(t, link.JobID())
	assert.True(t, link.JobID().Equals(jobID))
}

func TestReconstituteProvenanceLink_WithoutJob(t *testing.T) {
	linkedAt := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	link := ReconstituteProvenanceLink(shared.NewID(), shared.NewID(), shared.NewID(), nil, linkedAt)

	assert.Nil(t, link.JobID())
	assert.Equal(t, linkedAt, link.LinkedAt())
}
