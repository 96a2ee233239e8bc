package jamf

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrAuth is returned when the token exchange is rejected, it is never retried.
	ErrAuth = errors.New("jamf authentication failed")
	// ErrLookupNotFound is returned when no device exists for a serial number.
	// It is the only recoverable error of a batch.
	ErrLookupNotFound = errors.New("jamf device not found")
	// ErrFatalResponse is returned for any unexpected status code.
	ErrFatalResponse = errors.New("jamf returned an unexpected response")
	// ErrMalformedResponse is returned when an OK response is missing a required field.
	ErrMalformedResponse = errors.New("jamf returned a malformed response")
	// ErrRequest is returned when no response was received.
	ErrRequest = errors.New("jamf request failed")
	ErrConfig  = errors.New("jamf client configuration error")
)

// ResponseError carries the status code and endpoint of a classified response.
type ResponseError struct {
	Kind       EndpointKind
	Method     string
	URL        string
	StatusCode int
	Err        error
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s: %s %s %s [%d]", e.Err, e.Kind, e.Method, e.URL, e.StatusCode)
}

func (e *ResponseError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err must halt a batch.
func IsFatal(err error) bool {
	return err != nil && !errors.Is(err, ErrLookupNotFound)
}
