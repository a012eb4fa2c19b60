// Package bridgeerrors provides structured error handling for tsbridge with
// a fixed error taxonomy, rich context, and stack traces. Every operation in
// the bridge surfaces exactly one of the taxonomy kinds defined here; raw
// transport errors and raw HTTP responses never cross a dispatcher boundary.
//
// # Basic Usage
//
//	// Create a new error
//	err := bridgeerrors.New(bridgeerrors.ErrorTypeConfig, "cluster id is required")
//
//	// Add context
//	err = err.WithDetail("variant", "cloud-dedicated")
//
//	// Wrap existing errors
//	if err := client.Post(ctx, url, body, headers); err != nil {
//	    return bridgeerrors.Wrap(err, bridgeerrors.ErrorTypeTransport, "write request failed").
//	        WithDetail("database", db)
//	}
//
// # Error Types
//
// The taxonomy is closed: config and capability failures are raised before
// any network call, the backend-reported kinds come out of the normalizer in
// normalize.go, and transport covers everything without an HTTP status.
package bridgeerrors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType categorizes an operation failure. The set is fixed; dispatchers
// and callers branch on these kinds, never on HTTP status codes.
type ErrorType string

const (
	// ErrorTypeConfig represents missing or invalid credentials/endpoints for
	// the active product variant. Fatal to the operation, not the process.
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeCapability represents an operation attempted without the
	// required capability (e.g. a data operation with only a management token).
	ErrorTypeCapability ErrorType = "capability"
	// ErrorTypeInvalidArgument represents a backend-rejected request (400/422).
	ErrorTypeInvalidArgument ErrorType = "invalid_argument"
	// ErrorTypeUnauthorized represents an authentication failure (401).
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	// ErrorTypeForbidden represents an authorization failure (403).
	ErrorTypeForbidden ErrorType = "forbidden"
	// ErrorTypeNotFound represents a missing resource (404).
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeUnsupported represents an operation the backend does not
	// support (405), or one a variant does not implement.
	ErrorTypeUnsupported ErrorType = "unsupported"
	// ErrorTypeConflict represents a conflicting state, such as creating a
	// database that already exists (409).
	ErrorTypeConflict ErrorType = "conflict"
	// ErrorTypePayloadTooLarge represents an oversized request body (413).
	ErrorTypePayloadTooLarge ErrorType = "payload_too_large"
	// ErrorTypeTransport represents a network-level failure with no backend
	// response: DNS, connection refused, TLS, or an unmapped status.
	ErrorTypeTransport ErrorType = "transport"
	// ErrorTypeMalformedResponse represents a 2xx response whose body shape
	// is not one of the recognized forms.
	ErrorTypeMalformedResponse ErrorType = "malformed_response"
)

// Error is a structured error with a taxonomy kind, a human-readable message,
// an optional cause, key-value details, and the call stack at creation.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack.
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface, returning a formatted message that
// includes the error type, message, and cause (if present).
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error, enabling errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error. Chainable. Token secrets
// must never be placed in details; see the token dispatchers.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message, capturing the call
// stack at the point of creation.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with a taxonomy kind, preserving the original
// error as the cause. If the error is already a structured Error, its stack
// trace is preserved. Returns nil if the input error is nil.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsType checks whether the error carries the given taxonomy kind.
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// TypeOf returns the taxonomy kind of err, or ErrorTypeTransport for errors
// that did not originate in this package.
func TypeOf(err error) ErrorType {
	var e *Error
	if !errors.As(err, &e) {
		return ErrorTypeTransport
	}
	return e.Type
}

// captureStack captures the current call stack up to maxFrames deep, skipping
// the specified number of frames from the top.
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
