package ipfs

import (
	"errors"
	"fmt"
)

// APIError is returned when the IPFS API answers with a non-success status.
type APIError struct {
	Endpoint string
	Status   int
	Message  string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("ipfs api %s returned status %d", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("ipfs api %s returned status %d: %s", e.Endpoint, e.Status, e.Message)
}

func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}
