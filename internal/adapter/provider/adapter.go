package provider

import (
	"context"
	"iter"
	"strings"

	"github.com/awsl-project/appforge/internal/domain"
)

// Request is one text-generation call.
type Request struct {
	// Upstream model name
	Model        string
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
}

// Provider is the uniform interface to a remote text-generation backend.
type Provider interface {
	// Name returns the provider type, e.g. "anthropic"
	Name() string

	// Generate performs a blocking call and returns the complete text
	Generate(ctx context.Context, req Request) (string, error)

	// Stream yields text deltas in arrival order. The sequence ending normally
	// is the terminal signal; a failure is reported as a single yielded error
	// after which the sequence ends. Errors are *domain.ProviderError except
	// for context cancellation, which is passed through as-is.
	Stream(ctx context.Context, req Request) iter.Seq2[string, error]
}

// Config holds the credential for one provider.
type Config struct {
	APIKey  string
	BaseURL string
}

func (c Config) Configured() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

// AdapterFactory creates Provider instances
type AdapterFactory func(cfg Config) (Provider, error)

var adapterFactories = map[domain.ProviderType]AdapterFactory{}

// RegisterAdapterFactory registers an adapter factory for a provider type
func RegisterAdapterFactory(providerType domain.ProviderType, factory AdapterFactory) {
	adapterFactories[providerType] = factory
}

// GetAdapterFactory returns the adapter factory for a provider type
func GetAdapterFactory(providerType domain.ProviderType) (AdapterFactory, bool) {
	f, ok := adapterFactories[providerType]
	return f, ok
}

// Collect drains a stream into a single string. It stops at the first error.
func Collect(seq iter.Seq2[string, error]) (string, error) {
	var sb strings.Builder
	for delta, err := range seq {
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(delta)
	}
	return sb.String(), nil
}
