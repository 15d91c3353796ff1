package job

import (
	"fmt"

	"github.com/opennhi/api/pkg/domain/shared"
)

var (
	ErrJobNotFound = fmt.Errorf("job %w", shared.ErrNotFound)

	// ErrJobInProgress rejects a second job while one is pending or running
	// for the same connector. It is a rejection of the new request only;
	// the in-flight job is unaffected.
	ErrJobInProgress = fmt.Errorf("job already in progress: %w", shared.ErrConflict)
)
