// Package errors provides structured error types for atlaspack.
//
// Every failure in a packaging run is fatal, so errors carry enough context
// for the CLI to name the offending asset and exit non-zero. Codes let
// callers branch on the failure category without string matching:
//   - SCAN_FAILED, DECODE_FAILED, ENCODE_FAILED: collaborator I/O failures
//   - IMAGE_TOO_LARGE, INVALID_CANVAS: packing failures
//   - DIMENSION_MISMATCH: a source image changed between passes
//   - INVALID_FORMAT: a malformed .ats descriptor
//   - SPRITE_UNKNOWN_MISSING: a descriptor without the "unknown" fallback
//
// # Usage
//
//	err := errors.New(errors.ErrCodeImageTooLarge, "image %q (%dx%d) exceeds canvas", name, w, h)
//	if errors.Is(err, errors.ErrCodeImageTooLarge) {
//	    // report and exit
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeDecode, origErr, "decode %s", path)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput  Code = "INVALID_INPUT"
	ErrCodeInvalidConfig Code = "INVALID_CONFIG"
	ErrCodeInvalidName   Code = "INVALID_NAME"

	// Build-time collaborator errors
	ErrCodeScan   Code = "SCAN_FAILED"
	ErrCodeDecode Code = "DECODE_FAILED"
	ErrCodeEncode Code = "ENCODE_FAILED"

	// Packing errors
	ErrCodeImageTooLarge Code = "IMAGE_TOO_LARGE"
	ErrCodeInvalidCanvas Code = "INVALID_CANVAS"

	// Compositing errors
	ErrCodeDimensionMismatch Code = "DIMENSION_MISMATCH"

	// Descriptor and registry errors
	ErrCodeInvalidFormat  Code = "INVALID_FORMAT"
	ErrCodeUnknownMissing Code = "SPRITE_UNKNOWN_MISSING"
	ErrCodeNotFound       Code = "NOT_FOUND"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It walks the whole chain, so a DECODE_FAILED wrapped inside a
// pipeline-stage error still matches.
func Is(err error, code Code) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// GetCode extracts the outermost error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// As is errors.As, re-exported so callers importing this package under the
// name errors keep access to it.
func As(err error, target any) bool {
	return errors.As(err, target)
}
