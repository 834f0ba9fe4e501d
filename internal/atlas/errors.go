package atlas

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when the remote API answers 404 for a lookup.
// Match it with [errors.Is]; the wrapped message carries the remote detail.
var ErrNotFound = errors.New("atlas: not found")

// NetworkError reports a transport failure, a rejected call (open circuit
// breaker, rate limiter wait aborted) or an unexpected HTTP status.
type NetworkError struct {
	// Endpoint is the logical operation (catalog, entity, info, search, np).
	Endpoint string

	// URL is the requested URL.
	URL string

	// StatusCode is the HTTP status, or zero when no response was received.
	StatusCode int

	// Err is the underlying cause. May be nil for a bare status failure.
	Err error
}

func (e *NetworkError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode != 0:
		return fmt.Sprintf("atlas: %s %s: status %d: %v", e.Endpoint, e.URL, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("atlas: %s %s: %v", e.Endpoint, e.URL, e.Err)
	default:
		return fmt.Sprintf("atlas: %s %s: unexpected status %d", e.Endpoint, e.URL, e.StatusCode)
	}
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RemoteFormatError reports a payload that could not be decoded or lacks
// required fields.
type RemoteFormatError struct {
	Endpoint string
	URL      string
	Err      error
}

func (e *RemoteFormatError) Error() string {
	return fmt.Sprintf("atlas: %s %s: malformed response: %v", e.Endpoint, e.URL, e.Err)
}

func (e *RemoteFormatError) Unwrap() error { return e.Err }
