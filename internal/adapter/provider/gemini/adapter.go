package gemini

import (
	"context"
	"errors"
	"iter"
	"strings"

	"google.golang.org/genai"

	"github.com/awsl-project/appforge/internal/adapter/provider"
	"github.com/awsl-project/appforge/internal/domain"
)

func init() {
	provider.RegisterAdapterFactory(domain.ProviderGoogle, NewAdapter)
}

// Adapter is a thin wrapper around the official genai client.
type Adapter struct {
	cli *genai.Client
}

func NewAdapter(cfg provider.Config) (provider.Provider, error) {
	if !cfg.Configured() {
		return nil, domain.ErrProviderNotConfigured
	}
	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: base}
	}
	// NewClient does no network I/O with an explicit API key.
	cli, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, err
	}
	return &Adapter{cli: cli}, nil
}

func (a *Adapter) Name() string {
	return string(domain.ProviderGoogle)
}

func (a *Adapter) config(req provider.Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if system := strings.TrimSpace(req.SystemPrompt); system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	return cfg
}

func (a *Adapter) Generate(ctx context.Context, req provider.Request) (string, error) {
	resp, err := a.cli.Models.GenerateContent(ctx, req.Model, genai.Text(req.UserPrompt), a.config(req))
	if err != nil {
		return "", classify(req.Model, err)
	}
	text := responseText(resp)
	if text == "" {
		return "", provider.EmptyOutput(domain.ProviderGoogle, req.Model)
	}
	return text, nil
}

func (a *Adapter) Stream(ctx context.Context, req provider.Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		produced := false
		for resp, err := range a.cli.Models.GenerateContentStream(ctx, req.Model, genai.Text(req.UserPrompt), a.config(req)) {
			if err != nil {
				yield("", classify(req.Model, err))
				return
			}
			text := responseText(resp)
			if text == "" {
				continue
			}
			produced = true
			if !yield(text, nil) {
				return
			}
		}
		if !produced {
			yield("", provider.EmptyOutput(domain.ProviderGoogle, req.Model))
		}
	}
}

// responseText concatenates the non-thought text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}
	return sb.String()
}

func classify(model string, err error) error {
	status := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.Code
	case errors.As(err, &apiErrPtr):
		status = apiErrPtr.Code
	}
	return provider.Classify(domain.ProviderGoogle, model, status, err)
}
