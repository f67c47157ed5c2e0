package anthropic

import (
	"context"
	"errors"
	"iter"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/awsl-project/appforge/internal/adapter/provider"
	"github.com/awsl-project/appforge/internal/domain"
)

func init() {
	provider.RegisterAdapterFactory(domain.ProviderAnthropic, NewAdapter)
}

const defaultMaxTokens = 8192

// Adapter talks to the Anthropic Messages API.
type Adapter struct {
	client sdk.Client
}

func NewAdapter(cfg provider.Config) (provider.Provider, error) {
	if !cfg.Configured() {
		return nil, domain.ErrProviderNotConfigured
	}
	opts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(cfg.APIKey))}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	return &Adapter{client: sdk.NewClient(opts...)}, nil
}

func (a *Adapter) Name() string {
	return string(domain.ProviderAnthropic)
}

func (a *Adapter) params(req provider.Request) sdk.MessageNewParams {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: maxTokens,
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(req.UserPrompt))},
	}
	if system := strings.TrimSpace(req.SystemPrompt); system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}
	return params
}

func (a *Adapter) Generate(ctx context.Context, req provider.Request) (string, error) {
	msg, err := a.client.Messages.New(ctx, a.params(req))
	if err != nil {
		return "", classify(req.Model, err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(sdk.TextBlock); ok {
			sb.WriteString(text.Text)
		}
	}
	if sb.Len() == 0 {
		return "", provider.EmptyOutput(domain.ProviderAnthropic, req.Model)
	}
	return sb.String(), nil
}

func (a *Adapter) Stream(ctx context.Context, req provider.Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		stream := a.client.Messages.NewStreaming(ctx, a.params(req))
		defer stream.Close()

		produced := false
		for stream.Next() {
			ev, ok := stream.Current().AsAny().(sdk.ContentBlockDeltaEvent)
			if !ok {
				continue
			}
			delta, ok := ev.Delta.AsAny().(sdk.TextDelta)
			if !ok || delta.Text == "" {
				continue
			}
			produced = true
			if !yield(delta.Text, nil) {
				return
			}
		}

		if err := stream.Err(); err != nil {
			yield("", classify(req.Model, err))
			return
		}
		if !produced {
			yield("", provider.EmptyOutput(domain.ProviderAnthropic, req.Model))
		}
	}
}

func classify(model string, err error) error {
	status := 0
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode
	}
	return provider.Classify(domain.ProviderAnthropic, model, status, err)
}
