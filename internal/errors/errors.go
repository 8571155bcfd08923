package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes for categorizing errors.
const (
	// ErrConfig marks configuration problems: missing host list, missing
	// required variables, unsupported dispatch modes, unknown commands.
	ErrConfig = "CONFIG"
	// ErrConnect marks transport failures: authentication, network,
	// host-key rejection.
	ErrConnect = "CONNECT"
	// ErrExec marks command execution failures (not non-zero exits).
	ErrExec = "EXEC"
	// ErrTransfer marks file transfer failures.
	ErrTransfer = "TRANSFER"
)

// Error is a structured error with code, message, suggestion, and optional
// cause. Rendered as:
//
//	✗ <What failed>
//
//	  <Why it failed>
//
//	  <How to fix it>
type Error struct {
	Code       string
	Message    string
	Suggestion string
	Cause      error
}

// New creates a structured error with the given code, message, and suggestion.
func New(code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
	}
}

// Wrap wraps an existing error with a message, defaulting to ErrConnect code.
func Wrap(err error, message string) *Error {
	return &Error{
		Code:    ErrConnect,
		Message: message,
		Cause:   err,
	}
}

// WrapWithCode wraps an existing error with a specific code, message, and suggestion.
func WrapWithCode(err error, code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
		Cause:      err,
	}
}

// Error implements the error interface with formatted diagnostic output.
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("✗ %s\n", e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Cause.Error()))
	}

	if e.Suggestion != "" {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Suggestion))
	}

	return b.String()
}

// Unwrap returns the underlying cause for use with errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsCode checks if an error is a structured Error with the given code.
func IsCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var fabErr *Error
	if errors.As(err, &fabErr) {
		return fabErr.Code == code
	}
	return false
}
