package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType defines distinct categories for errors originating from hlscaps components.
type ErrorType string

// StructuredError represents a detailed error originating from hlscaps operations.
// It includes a type, message, optional details and a timestamp, and keeps the
// underlying cause so callers can unwrap it with the standard errors package.
// It implements the standard Go `error` interface.
type StructuredError struct {
	// Type categorizes the error (e.g., NetworkError, SegmentFetchError).
	Type ErrorType `json:"type"`
	// Message provides a concise, human-readable description of the error.
	Message string `json:"message"`
	// Details offers additional context or the underlying error message, if available.
	Details string `json:"details,omitempty"`
	// Segment is the zero-based segment index for SegmentFetchError values.
	// It is -1 for every other error type.
	Segment int `json:"segment,omitempty"`
	// Status is the HTTP status code associated with the failure, when one exists.
	Status int `json:"status,omitempty"`
	// Timestamp marks when the error occurred in RFC3339 format.
	Timestamp string `json:"timestamp"`

	cause error
}

// Error implements the standard `error` interface for StructuredError.
// It returns a formatted string including the error type, message, and details.
func (e *StructuredError) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("[%s] %s", e.Type, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Message, e.Details)
}

// Unwrap returns the wrapped cause, if any, so errors.Is and errors.As work
// through StructuredError values created with Wrap.
func (e *StructuredError) Unwrap() error {
	return e.cause
}

// JSON returns the StructuredError serialized as a JSON string.
// Returns an empty string and an error if marshalling fails.
func (e *StructuredError) JSON() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// New creates a new StructuredError instance.
// It automatically sets the Timestamp to the current time.
func New(errorType ErrorType, message, details string) *StructuredError {
	return &StructuredError{
		Type:      errorType,
		Message:   message,
		Details:   details,
		Segment:   -1,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

// Wrap creates a new StructuredError around an existing error. The wrapped
// error's message becomes the Details field and the error itself is kept as
// the cause for unwrapping. A nil `err` produces empty Details and no cause.
func Wrap(err error, errorType ErrorType, message string) *StructuredError {
	se := New(errorType, message, "")
	if err != nil {
		se.Details = err.Error()
		se.cause = err
	}
	return se
}

// NewSegmentFetch creates a SegmentFetchError for the given segment index and
// HTTP status. A status of 0 means the request never produced a response
// (connection failure, timeout).
func NewSegmentFetch(index, status int, details string) *StructuredError {
	se := New(SegmentFetchError, fmt.Sprintf("segment %d fetch failed", index), details)
	se.Segment = index
	se.Status = status
	return se
}

// Is reports whether err is (or wraps) a StructuredError of the given type.
func Is(err error, errorType ErrorType) bool {
	var se *StructuredError
	if stderrors.As(err, &se) {
		return se.Type == errorType
	}
	return false
}

// As delegates to the standard errors.As so callers of this package do not
// need a second errors import to extract a *StructuredError.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// TypeOf extracts the ErrorType from err. Errors that are not structured
// report UnknownError.
func TypeOf(err error) ErrorType {
	var se *StructuredError
	if stderrors.As(err, &se) {
		return se.Type
	}
	return UnknownError
}
