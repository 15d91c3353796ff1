package identity

import (
	"time"

	"github.com/opennhi/api/pkg/domain/shared"
)

// ProvenanceLink ties an identity to one finding that contributed to it.
// The pair (identity, finding) is unique; relinking the same pair is a no-op.
type ProvenanceLink struct {
	id         shared.ID
	identityID shared.ID
	findingID  shared.ID
	jobID      *shared.ID // nil after the producing job is deleted
	linkedAt   time.Time
}

// NewProvenanceLink creates a link between an identity and a finding.
// linkedAt carries the finding's discovery timestamp, so provenance orders
// by when evidence was discovered rather than when it was resolved.
func NewProvenanceLink(identityID, findingID shared.ID, jobID *shared.ID, linkedAt time.Time) *ProvenanceLink {
	return &ProvenanceLink{
		id:         shared.NewID(),
		identityID: identityID,
		findingID:  findingID,
		jobID:      jobID,
		linkedAt:   linkedAt.UTC(),
	}
}

// ReconstituteProvenanceLink recreates a link from persistence.
func ReconstituteProvenanceLink(id, identityID, findingID shared.ID, jobID *shared.ID, linkedAt time.Time) *ProvenanceLink {
	return &ProvenanceLink{
		id:         id,
		identityID: identityID,
		findingID:  findingID,
		jobID:      jobID,
		linkedAt:   linkedAt,
	}
}

// ID returns the link ID.
func (l *ProvenanceLink) ID() shared.ID { return l.id }

// IdentityID returns the linked identity.
func (l *ProvenanceLink) IdentityID() shared.ID { return l.identityID }

// FindingID returns the linked finding.
func (l *ProvenanceLink) FindingID() shared.ID { return l.findingID }

// JobID returns the job whose run created the link, nil once that job has
// been deleted.
func (l *ProvenanceLink) JobID() *shared.ID { return l.jobID }

// LinkedAt returns the discovery timestamp of the linked finding.
func (l *ProvenanceLink) LinkedAt() time.Time { return l.linkedAt }
