package graphql

import (
	"errors"
	"fmt"
)

// ErrNotConfigured is returned when no query endpoint or tenant key was
// injected. No network request is made in that case.
var ErrNotConfigured = errors.New("backend access is not configured")

// EndpointError reports a failure returned by the query endpoint: a non-2xx
// status or a response carrying GraphQL errors.
type EndpointError struct {
	StatusCode int
	Message    string
}

func (e *EndpointError) Error() string {
	return e.Message
}

func statusMessage(code int) string {
	return fmt.Sprintf("request failed with status %d", code)
}

func isEndpointError(err error) bool {
	var ee *EndpointError
	return errors.As(err, &ee)
}
