package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
)

// Common registry error types
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation failed")
	ErrRateLimited  = errors.New("rate limited")
	ErrTimeout      = errors.New("request timed out")
	ErrServer       = errors.New("registry error")
)

// RegistryError provides detailed error information from an API
// response, including the server's machine-readable kind when one
// was returned.
type RegistryError struct {
	Type    error
	Kind    string
	Message string
}

func (e *RegistryError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%v: %s", e.Type, e.Message)
	}
	return e.Type.Error()
}

func (e *RegistryError) Unwrap() error {
	return e.Type
}

// NewRegistryError creates a new registry error
func NewRegistryError(errType error, message string) *RegistryError {
	return &RegistryError{
		Type:    errType,
		Message: message,
	}
}

// errorFromResponse maps an API error payload and status onto a
// RegistryError.
func errorFromResponse(status int, body []byte) error {
	var payload struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}
	// Best effort; non-JSON bodies keep the raw text as the message.
	message := string(body)
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		message = payload.Error
	}

	var errType error
	switch {
	case status == 401:
		errType = ErrUnauthorized
	case status == 404:
		errType = ErrNotFound
	case status == 409:
		errType = ErrConflict
	case status == 422:
		errType = ErrValidation
	case status == 429:
		errType = ErrRateLimited
	default:
		errType = ErrServer
	}

	return &RegistryError{Type: errType, Kind: payload.Kind, Message: message}
}

// normalizeTransportError maps timeouts and cancellation onto
// ErrTimeout so callers can treat them as recoverable.
func normalizeTransportError(ctx context.Context, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
	}
	return fmt.Errorf("request failed: %w", err)
}
