package rollup

import (
	"errors"
	"fmt"
)

// TransportError is returned when the rollup server cannot be reached or
// answers with an unexpected status.
type TransportError struct {
	Endpoint string
	Status   int
	err      error
}

func NewTransportError(endpoint string, status int, err error) *TransportError {
	return &TransportError{
		Endpoint: endpoint,
		Status:   status,
		err:      err,
	}
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("rollup server %s: unexpected status %d: %v", e.Endpoint, e.Status, e.err)
	}
	return fmt.Sprintf("rollup server %s: %v", e.Endpoint, e.err)
}

func (e *TransportError) Unwrap() error {
	return e.err
}

// IsTransportError returns whether err is a TransportError
func IsTransportError(err error) bool {
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}
