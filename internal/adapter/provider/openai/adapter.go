package openai

import (
	"context"
	"errors"
	"iter"
	"strings"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/awsl-project/appforge/internal/adapter/provider"
	"github.com/awsl-project/appforge/internal/domain"
)

func init() {
	provider.RegisterAdapterFactory(domain.ProviderOpenAI, NewAdapter)
}

// Adapter talks to the OpenAI Chat Completions API.
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
	return string(domain.ProviderOpenAI)
}

func (a *Adapter) params(req provider.Request) sdk.ChatCompletionNewParams {
	var messages []sdk.ChatCompletionMessageParamUnion
	if system := strings.TrimSpace(req.SystemPrompt); system != "" {
		messages = append(messages, sdk.SystemMessage(system))
	}
	messages = append(messages, sdk.UserMessage(req.UserPrompt))

	params := sdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = sdk.Int(int64(req.MaxTokens))
	}
	return params
}

func (a *Adapter) Generate(ctx context.Context, req provider.Request) (string, error) {
	resp, err := a.client.Chat.Completions.New(ctx, a.params(req))
	if err != nil {
		return "", classify(req.Model, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", provider.EmptyOutput(domain.ProviderOpenAI, req.Model)
	}
	return resp.Choices[0].Message.Content, nil
}

func (a *Adapter) Stream(ctx context.Context, req provider.Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		stream := a.client.Chat.Completions.NewStreaming(ctx, a.params(req))
		defer stream.Close()

		produced := false
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			text := chunk.Choices[0].Delta.Content
			if text == "" {
				continue
			}
			produced = true
			if !yield(text, nil) {
				return
			}
		}

		if err := stream.Err(); err != nil {
			yield("", classify(req.Model, err))
			return
		}
		if !produced {
			yield("", provider.EmptyOutput(domain.ProviderOpenAI, req.Model))
		}
	}
}

func classify(model string, err error) error {
	status := 0
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode
	}
	return provider.Classify(domain.ProviderOpenAI, model, status, err)
}
