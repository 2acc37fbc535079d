package output

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	ErrRootRequired    = errors.New("output root directory is required")
	ErrInvalidFilename = errors.New("document filename must be a plain file name")
	ErrCreateDir       = errors.New("failed to create output directory")
	ErrWriteDocument   = errors.New("failed to write document")
)

// OutputError wraps errors with additional context.
type OutputError struct {
	Op      string // Operation that failed
	Path    string // Directory or file involved
	Message string
	Err     error
}

func (e *OutputError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *OutputError) Unwrap() error {
	return e.Err
}

// NewOutputError creates a new OutputError.
func NewOutputError(op, path, message string, err error) *OutputError {
	return &OutputError{
		Op:      op,
		Path:    path,
		Message: message,
		Err:     err,
	}
}
