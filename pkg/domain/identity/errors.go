package identity

import (
	"fmt"

	"github.com/opennhi/api/pkg/domain/shared"
)

var (
	// ErrIdentityNotFound indicates the identity does not exist in the enclave.
	ErrIdentityNotFound = fmt.Errorf("identity not found: %w", shared.ErrNotFound)

	// ErrFingerprintExists indicates another identity already carries the
	// fingerprint within the enclave.
	ErrFingerprintExists = fmt.Errorf("identity fingerprint already exists: %w", shared.ErrConflict)
)
