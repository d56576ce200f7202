// Package apperr defines the error kinds shared by storage, connectors and the API layer.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrParse         = errors.New("parse failure")
	ErrNoConnector   = errors.New("no connector can apply to the repository")
	ErrUnsupported   = errors.New("unsupported")
	ErrInvalid       = errors.New("invalid request")
)

// APIError is the error shape returned to editor clients.
type APIError struct {
	Message     string `json:"message"`
	Description string `json:"description,omitempty"`

	cause error
}

// New returns an APIError that wraps kind, so errors.Is still matches it.
func New(kind error, message, description string) *APIError {
	return &APIError{Message: message, Description: description, cause: kind}
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Description)
	}
	return e.Message
}

func (e *APIError) Unwrap() error { return e.cause }

// Coerce converts any error into an APIError. Errors that already carry the
// shape are returned as-is; everything else becomes {message: err.Error()}.
func Coerce(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return &APIError{Message: err.Error(), cause: err}
}
