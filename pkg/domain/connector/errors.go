package connector

import (
	"errors"
	"fmt"

	"github.com/opennhi/api/pkg/domain/shared"
)

var (
	ErrConnectorNotFound = fmt.Errorf("connector %w", shared.ErrNotFound)
	ErrConnectorDisabled = errors.New("connector is disabled")
)

// FetchError is a fatal connector failure: network, bind/auth, or source data
// malformed beyond per-record tolerance. It fails the whole job.
type FetchError struct {
	TypeCode TypeCode
	Reason   string
	Err      error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("connector fetch failed (%s): %s: %v", e.TypeCode, e.Reason, e.Err)
	}
	return fmt.Sprintf("connector fetch failed (%s): %s", e.TypeCode, e.Reason)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NewFetchError creates a FetchError.
func NewFetchError(code TypeCode, reason string, err error) *FetchError {
	return &FetchError{TypeCode: code, Reason: reason, Err: err}
}

// IsFetchError reports whether err is a connector fetch failure.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
