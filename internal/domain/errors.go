package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrInvalidInput          = errors.New("invalid input")
	ErrUnknownModel          = errors.New("unknown model")
	ErrProviderNotConfigured = errors.New("provider not configured")
	ErrAllModelsFailed       = errors.New("All AI providers failed")
	ErrNoFiles               = errors.New("AI did not generate any files. Please try again with a clearer description.")
	ErrEmptyRegeneration     = errors.New("regeneration returned empty content")
	ErrSandboxDisabled       = errors.New("sandbox runtime disabled")
)

// ErrorKind classifies provider failures.
type ErrorKind string

var (
	ErrorKindNetwork   ErrorKind = "network"
	ErrorKindAuth      ErrorKind = "auth"
	ErrorKindQuota     ErrorKind = "quota"
	ErrorKindServer    ErrorKind = "server"
	ErrorKindMalformed ErrorKind = "malformed"
	ErrorKindUnknown   ErrorKind = "unknown"
)

// ProviderError represents a failed call to a text-generation backend
type ProviderError struct {
	Provider   ProviderType
	Model      string
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Provider))
	if e.Model != "" {
		sb.WriteString("/")
		sb.WriteString(e.Model)
	}
	sb.WriteString(" ")
	sb.WriteString(string(e.Kind))
	sb.WriteString(" error")
	if e.StatusCode > 0 {
		fmt.Fprintf(&sb, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt later may succeed. Auth and
// malformed-output failures will not fix themselves.
func (e *ProviderError) Retryable() bool {
	switch e.Kind {
	case ErrorKindNetwork, ErrorKindQuota, ErrorKindServer:
		return true
	default:
		return false
	}
}

// ExhaustionError is returned when every candidate model was skipped or failed.
type ExhaustionError struct {
	Attempted []string
	Last      error
}

func (e *ExhaustionError) Error() string {
	if e.Last != nil {
		return e.Last.Error()
	}
	return ErrAllModelsFailed.Error()
}

func (e *ExhaustionError) Unwrap() []error {
	if e.Last == nil {
		return []error{ErrAllModelsFailed}
	}
	return []error{ErrAllModelsFailed, e.Last}
}
