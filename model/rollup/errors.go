package rollup

import (
	"errors"
	"fmt"
)

// ErrMissingPayload is returned when a request carries no payload.
var ErrMissingPayload = errors.New("request has no payload")

// MalformedRequestError is returned when a request from the rollup server
// cannot be decoded.
type MalformedRequestError struct {
	err error
}

func NewMalformedRequestError(err error) MalformedRequestError {
	return MalformedRequestError{err: err}
}

func NewMalformedRequestErrorf(msg string, args ...interface{}) MalformedRequestError {
	return NewMalformedRequestError(fmt.Errorf(msg, args...))
}

func (e MalformedRequestError) Error() string {
	return fmt.Sprintf("malformed rollup request: %s", e.err.Error())
}

func (e MalformedRequestError) Unwrap() error {
	return e.err
}

// IsMalformedRequestError returns whether err is a MalformedRequestError
func IsMalformedRequestError(err error) bool {
	var errMalformed MalformedRequestError
	return errors.As(err, &errMalformed)
}
