// Package errcode defines the coded error taxonomy surfaced by the
// job engine and its HTTP API.
package errcode

import (
	"errors"
	"fmt"
	"net/http"
)

// Code categorizes an engine error for handling strategy
type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeReportNotFound    Code = "REPORT_NOT_FOUND"
	CodeQueueFull         Code = "QUEUE_FULL"
	CodeExecutionTimeout  Code = "EXECUTION_TIMEOUT"
	CodeExecutionError    Code = "EXECUTION_ERROR"
	CodeNotFound          Code = "NOT_FOUND"
	CodeInvalidTransition Code = "INVALID_STATE_TRANSITION"
)

// Error wraps errors with a code and optional per-field details
type Error struct {
	Code    Code              `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Err     error             `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements error unwrapping
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a coded error wrapping an underlying cause
func Wrap(code Code, err error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithDetail attaches a named detail (e.g. the failing field) and
// returns the error for chaining
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// FromError extracts a coded error via errors.As
func FromError(err error) (*Error, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// IsCode reports whether err carries the given code
func IsCode(err error, code Code) bool {
	ce, ok := FromError(err)
	return ok && ce.Code == code
}

// HTTPStatus maps an error code to an HTTP status.
// QUEUE_FULL is 429 so callers know to retry; INVALID_STATE_TRANSITION
// surfaces as 409 when reached through the API (cancel of a terminal job).
func HTTPStatus(code Code) int {
	switch code {
	case CodeValidation, CodeReportNotFound:
		return http.StatusBadRequest
	case CodeQueueFull:
		return http.StatusTooManyRequests
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidTransition:
		return http.StatusConflict
	case CodeExecutionTimeout, CodeExecutionError:
		// Execution errors are observed through polling, never returned
		// synchronously; if one reaches the API it is an internal fault.
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
