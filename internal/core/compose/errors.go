// Package compose loads rendered documents with the compose-spec loader to
// confirm they are well-formed compose projects.
// This is part of the Functional Core - all functions are pure with no I/O.
package compose

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	ErrEmptyInput  = errors.New("compose document is empty")
	ErrInvalidYAML = errors.New("invalid YAML syntax")
	ErrNoServices  = errors.New("compose document must define at least one service")

	// ErrInvalidDocument is returned when the loader rejects the document.
	ErrInvalidDocument = errors.New("invalid compose document")
)

// ParseError wraps errors with the document that failed to load.
type ParseError struct {
	File    string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	}
	return e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError.
func NewParseError(file, message string, err error) *ParseError {
	return &ParseError{
		File:    file,
		Message: message,
		Err:     err,
	}
}
