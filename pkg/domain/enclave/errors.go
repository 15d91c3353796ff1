package enclave

import (
	"fmt"

	"github.com/opennhi/api/pkg/domain/shared"
)

var (
	ErrEnclaveNotFound   = fmt.Errorf("enclave %w", shared.ErrNotFound)
	ErrEnclaveNameExists = fmt.Errorf("enclave name %w", shared.ErrAlreadyExists)
)
