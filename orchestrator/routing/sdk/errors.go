// Copyright 2025 Lattice Lock
// SPDX-License-Identifier: Apache-2.0

package sdk

import (
	"fmt"
	"net/http"
	"time"
)

// Common wire-level error codes reported by provider clients.
const (
	// ErrCodeRateLimit indicates the provider rejected the call for rate limiting.
	ErrCodeRateLimit = "rate_limit"

	// ErrCodeAuth indicates authentication or credential failure.
	ErrCodeAuth = "authentication_error"

	// ErrCodeInvalidRequest indicates a malformed request.
	ErrCodeInvalidRequest = "invalid_request"

	// ErrCodeModelNotFound indicates the requested model does not exist.
	ErrCodeModelNotFound = "model_not_found"

	// ErrCodeServerError indicates a provider-side server error.
	ErrCodeServerError = "server_error"

	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout = "timeout"

	// ErrCodeUnavailable indicates the provider is unreachable.
	ErrCodeUnavailable = "unavailable"
)

// APIError represents a wire-level error from a provider API.
// Provider client implementations should return this type (or wrap it)
// so callers can classify failures uniformly.
type APIError struct {
	// Provider is the name of the provider that returned the error.
	Provider string

	// Code is a machine-readable error code (see ErrCode* constants).
	Code string

	// Message is a human-readable error message.
	Message string

	// StatusCode is the HTTP status code, if applicable.
	StatusCode int

	// RetryAfter is the provider-suggested wait before retrying, if any.
	RetryAfter time.Duration

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying error.
func (e *APIError) Unwrap() error {
	return e.Cause
}

// IsRetryable returns true if the error is worth retrying on the same
// candidate: rate limits, server errors, and timeouts.
func (e *APIError) IsRetryable() bool {
	if e.StatusCode == http.StatusTooManyRequests {
		return true
	}
	if e.StatusCode >= 500 && e.StatusCode < 600 {
		return true
	}
	switch e.Code {
	case ErrCodeRateLimit, ErrCodeServerError, ErrCodeTimeout, ErrCodeUnavailable:
		return true
	}
	return false
}

// IsAuth returns true if the error indicates an authentication or
// credential problem with the provider.
func (e *APIError) IsAuth() bool {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return true
	}
	return e.Code == ErrCodeAuth
}

// NewAPIError creates an APIError with the given provider, code and message.
func NewAPIError(provider, code, message string) *APIError {
	return &APIError{
		Provider: provider,
		Code:     code,
		Message:  message,
	}
}
