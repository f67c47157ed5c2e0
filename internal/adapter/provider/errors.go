package provider

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/awsl-project/appforge/internal/domain"
)

var errEmptyOutput = errors.New("provider returned no text")

// ClassifyStatus maps an upstream HTTP status to an error kind.
func ClassifyStatus(status int) domain.ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.ErrorKindAuth
	case status == http.StatusTooManyRequests || status == http.StatusPaymentRequired:
		return domain.ErrorKindQuota
	case status >= 500:
		return domain.ErrorKindServer
	default:
		return domain.ErrorKindUnknown
	}
}

// Classify wraps an SDK error into a *domain.ProviderError. status is the
// upstream HTTP status when the vendor SDK exposes one, else 0. Context
// cancellation and existing ProviderErrors pass through unchanged.
func Classify(p domain.ProviderType, model string, status int, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pe *domain.ProviderError
	if errors.As(err, &pe) {
		return pe
	}

	kind := domain.ErrorKindUnknown
	var netErr net.Error
	switch {
	case status > 0:
		kind = ClassifyStatus(status)
	case errors.As(err, &netErr), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		kind = domain.ErrorKindNetwork
	}

	return &domain.ProviderError{
		Provider:   p,
		Model:      model,
		Kind:       kind,
		StatusCode: status,
		Err:        err,
	}
}

// EmptyOutput is the malformed-response error for a call that completed
// without producing any text.
func EmptyOutput(p domain.ProviderType, model string) error {
	return &domain.ProviderError{
		Provider: p,
		Model:    model,
		Kind:     domain.ErrorKindMalformed,
		Err:      errEmptyOutput,
	}
}
