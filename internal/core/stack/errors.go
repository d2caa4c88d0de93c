// Package stack contains pure functions for parsing and validating
// declarative stack documents. This is part of the Functional Core -
// all functions are pure with no I/O.
package stack

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// Input validation errors
	ErrEmptyDocument = errors.New("stack document is empty")

	// YAML parsing errors
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// Document structure errors
	ErrNoServices = errors.New("stack document must define at least one service")

	// Service validation errors
	ErrServiceNoImage    = errors.New("service must have image or build")
	ErrInvalidPort       = errors.New("invalid port configuration")
	ErrInvalidRestart    = errors.New("invalid restart policy")
	ErrDuplicateService  = errors.New("duplicate service name")
	ErrUnknownDependency = errors.New("depends_on references undeclared service")
	ErrDependencyCycle   = errors.New("dependency cycle detected")
	ErrUndeclaredVolume  = errors.New("volume mount references undeclared volume")
	ErrUnknownNetwork    = errors.New("service references undeclared network")

	// Resource validation errors
	ErrInvalidCPU    = errors.New("invalid CPU value")
	ErrInvalidMemory = errors.New("invalid memory value")

	// Unsupported feature errors
	ErrUnsupportedFeature = errors.New("unsupported stack feature")
)

// ParseError wraps errors with context about where parsing or validation failed.
type ParseError struct {
	Field   string // e.g., "services.web.depends_on"
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError.
func NewParseError(field, message string, err error) *ParseError {
	return &ParseError{
		Field:   field,
		Message: message,
		Err:     err,
	}
}
