// Package identity defines resolved non-human identities and their
// provenance links back to the findings that produced them.
package identity

import (
	"fmt"
	"time"

	"github.com/opennhi/api/pkg/domain/shared"
	"github.com/opennhi/api/pkg/domain/sourcetype"
	"github.com/opennhi/api/pkg/risk"
)

// Identity is the deduplicated record for one real-world non-human identity
// within an enclave. At most one identity exists per (enclave, fingerprint).
type Identity struct {
	id           shared.ID
	enclaveID    shared.ID
	fingerprint  string
	identityType sourcetype.IdentityType
	displayName  string
	attributes   map[string]any
	owner        string
	linkedSystem string
	riskScore    int
	riskFactors  []risk.Factor
	firstSeen    time.Time
	lastSeen     time.Time
	createdAt    time.Time
	updatedAt    time.Time
}

// New creates an Identity from its first finding.
func New(enclaveID shared.ID, fingerprint string, it sourcetype.IdentityType, displayName string, attrs map[string]any, seenAt time.Time) (*Identity, error) {
	if enclaveID.IsZero() {
		return nil, fmt.Errorf("%w: enclave id is required", shared.ErrValidation)
	}
	if fingerprint == "" {
		return nil, fmt.Errorf("%w: fingerprint is required", shared.ErrValidation)
	}
	if attrs == nil {
		attrs = make(map[string]any)
	}
	if seenAt.IsZero() {
		seenAt = time.Now().UTC()
	}

	now := time.Now().UTC()
	return &Identity{
		id:           shared.NewID(),
		enclaveID:    enclaveID,
		fingerprint:  fingerprint,
		identityType: it,
		displayName:  displayName,
		attributes:   attrs,
		firstSeen:    seenAt,
		lastSeen:     seenAt,
		createdAt:    now,
		updatedAt:    now,
	}, nil
}

// Reconstitute recreates an Identity from persistence.
func Reconstitute(
	id, enclaveID shared.ID,
	fingerprint string,
	it sourcetype.IdentityType,
	displayName string,
	attrs map[string]any,
	owner, linkedSystem string,
	riskScore int,
	riskFactors []risk.Factor,
	firstSeen, lastSeen, createdAt, updatedAt time.Time,
) *Identity {
	if attrs == nil {
		attrs = make(map[string]any)
	}
	return &Identity{
		id:           id,
		enclaveID:    enclaveID,
		fingerprint:  fingerprint,
		identityType: it,
		displayName:  displayName,
		attributes:   attrs,
		owner:        owner,
		linkedSystem: linkedSystem,
		riskScore:    riskScore,
		riskFactors:  riskFactors,
		firstSeen:    firstSeen,
		lastSeen:     lastSeen,
		createdAt:    createdAt,
		updatedAt:    updatedAt,
	}
}

// ID returns the identity ID.
func (i *Identity) ID() shared.ID { return i.id }

// EnclaveID returns the owning enclave.
func (i *Identity) EnclaveID() shared.ID { return i.enclaveID }

// Fingerprint returns the stable dedup key.
func (i *Identity) Fingerprint() string { return i.fingerprint }

// Type returns the identity type.
func (i *Identity) Type() sourcetype.IdentityType { return i.identityType }

// DisplayName returns the human-readable name.
func (i *Identity) DisplayName() string { return i.displayName }

// Attributes returns a copy of the normalized attribute snapshot.
func (i *Identity) Attributes() map[string]any {
	out := make(map[string]any, len(i.attributes))
	for k, v := range i.attributes {
		out[k] = v
	}
	return out
}

// Owner returns the assigned owner, empty when unassigned.
func (i *Identity) Owner() string { return i.owner }

// LinkedSystem returns the associated system, empty when unknown.
func (i *Identity) LinkedSystem() string { return i.linkedSystem }

// RiskScore returns the current risk score.
func (i *Identity) RiskScore() int { return i.riskScore }

// RiskFactors returns the factors behind the current score.
func (i *Identity) RiskFactors() []risk.Factor { return i.riskFactors }

// FirstSeen returns when the identity was first discovered.
func (i *Identity) FirstSeen() time.Time { return i.firstSeen }

// LastSeen returns when the identity was last discovered.
func (i *Identity) LastSeen() time.Time { return i.lastSeen }

// CreatedAt returns creation time.
func (i *Identity) CreatedAt() time.Time { return i.createdAt }

// UpdatedAt returns last modification time.
func (i *Identity) UpdatedAt() time.Time { return i.updatedAt }

// Absorb merges a normalized snapshot into the identity. For a snapshot at
// least as recent as the last sighting, non-nil values win over stored ones;
// keys absent from the snapshot keep their stored values. A snapshot older
// than the last sighting only fills keys with no stored value, so a backfill
// cannot regress current attributes. Owner and linked system are untouched.
// firstSeen never moves forward and lastSeen never moves backward.
func (i *Identity) Absorb(displayName string, attrs map[string]any, seenAt time.Time) {
	stale := seenAt.Before(i.lastSeen)
	if displayName != "" && (!stale || i.displayName == "") {
		i.displayName = displayName
	}
	for k, v := range attrs {
		if v == nil {
			continue
		}
		if stale {
			if _, ok := i.attributes[k]; ok {
				continue
			}
		}
		i.attributes[k] = v
	}
	if seenAt.Before(i.firstSeen) {
		i.firstSeen = seenAt
	}
	if seenAt.After(i.lastSeen) {
		i.lastSeen = seenAt
	}
	i.updatedAt = time.Now().UTC()
}

// SetOwner records the assigned owner. Empty clears the assignment.
func (i *Identity) SetOwner(owner string) {
	i.owner = owner
	i.updatedAt = time.Now().UTC()
}

// SetLinkedSystem records the associated system. Empty clears it.
func (i *Identity) SetLinkedSystem(system string) {
	i.linkedSystem = system
	i.updatedAt = time.Now().UTC()
}

// FillLinkedSystem records the system only when none is set yet. Correlation
// uses this so an operator-assigned value is never overwritten.
func (i *Identity) FillLinkedSystem(system string) bool {
	if i.linkedSystem != "" || system == "" {
		return false
	}
	i.linkedSystem = system
	i.updatedAt = time.Now().UTC()
	return true
}

// Reassess recomputes and stores the risk score from current state.
func (i *Identity) Reassess(now time.Time) {
	a := risk.Score(risk.Input{
		IdentityType: i.identityType,
		Owner:        i.owner,
		LinkedSystem: i.linkedSystem,
		Attributes:   i.attributes,
		Now:          now,
	})
	i.riskScore = a.Score
	i.riskFactors = a.Factors
	i.updatedAt = time.Now().UTC()
}
