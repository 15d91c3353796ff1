package finding

import (
	"fmt"

	"github.com/opennhi/api/pkg/domain/shared"
)

// ErrFindingNotFound indicates the finding does not exist in the enclave.
var ErrFindingNotFound = fmt.Errorf("finding not found: %w", shared.ErrNotFound)
