package executor

import (
	"context"
	"log"
	"strings"

	"github.com/awsl-project/appforge/internal/adapter/provider"
	"github.com/awsl-project/appforge/internal/domain"
	"github.com/awsl-project/appforge/internal/prompt"
)

// EnhanceMaxTokens is the output budget of a prompt enhancement call
const EnhanceMaxTokens = 1024

var enhanceOrder = []domain.ProviderType{
	domain.ProviderAnthropic,
	domain.ProviderGoogle,
	domain.ProviderOpenAI,
}

// EnhancePrompt rewrites a new-project request into a more detailed one.
// The provider of modelID is tried first, then the rest in a fixed order.
// Any failure or empty output returns message unchanged.
func (e *Executor) EnhancePrompt(ctx context.Context, message, modelID string) string {
	order := make([]domain.ProviderType, 0, len(enhanceOrder)+1)
	if m, ok := domain.LookupModel(modelID); ok {
		order = append(order, m.Provider)
	}
	for _, p := range enhanceOrder {
		if len(order) > 0 && order[0] == p {
			continue
		}
		order = append(order, p)
	}

	for _, pt := range order {
		if ctx.Err() != nil {
			return message
		}
		adp, ok := e.router.Adapter(pt)
		if !ok {
			continue
		}
		model, ok := modelFor(pt, modelID)
		if !ok {
			continue
		}

		text, err := adp.Generate(ctx, provider.Request{
			Model:        model.UpstreamModel,
			SystemPrompt: prompt.EnhancerSystemPrompt,
			UserPrompt:   prompt.BuildEnhancerPrompt(message),
			MaxTokens:    EnhanceMaxTokens,
		})
		if err != nil {
			log.Printf("[Executor] Prompt enhancement with %s failed: %v", pt, err)
			continue
		}
		if enhanced := strings.TrimSpace(text); enhanced != "" {
			log.Printf("[Executor] Prompt enhanced with %s (%d -> %d chars)", pt, len(message), len(enhanced))
			return enhanced
		}
	}
	return message
}

// modelFor picks the requested model when it belongs to pt, otherwise the
// first model of that provider
func modelFor(pt domain.ProviderType, requestedID string) (domain.ModelDescriptor, bool) {
	if m, ok := domain.LookupModel(requestedID); ok && m.Provider == pt {
		return m, true
	}
	for _, m := range domain.AvailableModels {
		if m.Provider == pt {
			return m, true
		}
	}
	return domain.ModelDescriptor{}, false
}
