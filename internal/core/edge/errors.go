package edge

import "fmt"

// ErrorType defines the type of edge routing error.
type ErrorType int

const (
	ErrorNotFound ErrorType = iota
	ErrorStopped
	ErrorUnavailable
	ErrorUpstream
)

// EdgeError represents an error during proxying.
type EdgeError struct {
	Type       ErrorType
	Hostname   string
	Message    string
	StatusCode int
}

// Error implements the error interface.
func (e EdgeError) Error() string {
	return e.Message
}

// NewNotFoundError creates an error for an unknown hostname.
func NewNotFoundError(hostname string) EdgeError {
	return EdgeError{
		Type:       ErrorNotFound,
		Hostname:   hostname,
		Message:    fmt.Sprintf("stack not found: %s", hostname),
		StatusCode: 404,
	}
}

// NewStoppedError creates an error for a stopped stack.
func NewStoppedError(hostname string) EdgeError {
	return EdgeError{
		Type:       ErrorStopped,
		Hostname:   hostname,
		Message:    fmt.Sprintf("stack is stopped: %s", hostname),
		StatusCode: 503,
	}
}

// NewUnavailableError creates an error for a stack that cannot currently be
// routed to, such as a resolution or configuration failure.
func NewUnavailableError(hostname string) EdgeError {
	return EdgeError{
		Type:       ErrorUnavailable,
		Hostname:   hostname,
		Message:    fmt.Sprintf("stack unavailable: %s", hostname),
		StatusCode: 503,
	}
}

// NewUpstreamError creates an error for a failed proxied request, such as a
// connection refused or reset by the stack's published endpoint.
func NewUpstreamError(hostname string) EdgeError {
	return EdgeError{
		Type:       ErrorUpstream,
		Hostname:   hostname,
		Message:    fmt.Sprintf("upstream request failed: %s", hostname),
		StatusCode: 502,
	}
}
