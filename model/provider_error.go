package model

import (
	"errors"
	"fmt"
)

// ProviderErrorKind classifies a ProviderError for the retry state
// machine in agentrunner.
type ProviderErrorKind string

const (
	ErrKindAuth           ProviderErrorKind = "auth"
	ErrKindInvalidRequest ProviderErrorKind = "invalid_request"
	ErrKindRateLimited    ProviderErrorKind = "rate_limited"
	ErrKindUnavailable    ProviderErrorKind = "unavailable"
	ErrKindUnknown        ProviderErrorKind = "unknown"
)

// ProviderError wraps a model provider failure with enough structure for
// the retry policy to classify it as transient or fatal.
type ProviderError struct {
	Provider  string
	Operation string
	HTTPCode  int
	Kind      ProviderErrorKind
	Code      string
	Message   string
	RequestID string
	Retryable bool
	Cause     error
}

// NewProviderError constructs a ProviderError whose Retryable is always
// derived from Kind (true for rate-limited and unavailable).
func NewProviderError(provider, operation string, kind ProviderErrorKind, httpCode int, message string, cause error) *ProviderError {
	return &ProviderError{
		Provider: provider, Operation: operation, Kind: kind, HTTPCode: httpCode,
		Message: message, Cause: cause, Retryable: isTransientKind(kind),
	}
}

func isTransientKind(k ProviderErrorKind) bool {
	switch k {
	case ErrKindRateLimited, ErrKindUnavailable:
		return true
	default:
		return false
	}
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s %s: %s", e.Provider, e.Operation, e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// AsProviderError extracts a *ProviderError from an error chain.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
