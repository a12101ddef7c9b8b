package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ToolFailureError is returned when the external tool exits non-zero or
// cannot be started at all (ExitCode -1). It carries everything the tool
// printed: for a black-box tool this is the only diagnostic available.
type ToolFailureError struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *ToolFailureError) Error() string {
	var b strings.Builder
	if e.ExitCode < 0 {
		fmt.Fprintf(&b, "command %q failed to run: %v", e.Command, e.Err)
	} else {
		fmt.Fprintf(&b, "command %q failed with exit code %d", e.Command, e.ExitCode)
	}
	if e.Stdout != "" {
		fmt.Fprintf(&b, "\nstdout:\n%s", e.Stdout)
	}
	if e.Stderr != "" {
		fmt.Fprintf(&b, "\nstderr:\n%s", e.Stderr)
	}
	return b.String()
}

// Unwrap implements the errors.Unwrap interface
func (e *ToolFailureError) Unwrap() error {
	return e.Err
}

// IsToolFailure checks if the error is or wraps a ToolFailureError
func IsToolFailure(err error) bool {
	var toolErr *ToolFailureError
	return err != nil && errors.As(err, &toolErr)
}

// EncodingError is returned when the tool's stdout is not valid UTF-8.
type EncodingError struct {
	Command string
	Output  []byte
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("output of command %q is not valid UTF-8 (%d bytes)", e.Command, len(e.Output))
}

// IsEncodingError checks if the error is or wraps an EncodingError
func IsEncodingError(err error) bool {
	var encErr *EncodingError
	return err != nil && errors.As(err, &encErr)
}

// ErrorClass names the kind of failure err is, for use as a metric label.
// It never includes the error message.
func ErrorClass(err error) string {
	var toolErr *ToolFailureError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.As(err, &toolErr):
		if toolErr.ExitCode < 0 {
			return "tool_failure.not_started"
		}
		return fmt.Sprintf("tool_failure.exit_%d", toolErr.ExitCode)
	case IsEncodingError(err):
		return "encoding"
	default:
		return "other"
	}
}
