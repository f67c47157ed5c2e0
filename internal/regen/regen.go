// Package regen asks a provider for the complete content of one file that
// was lost to a truncated response.
package regen

import (
	"context"
	"log"
	"strings"

	"github.com/awsl-project/appforge/internal/adapter/provider"
	"github.com/awsl-project/appforge/internal/domain"
	"github.com/awsl-project/appforge/internal/prompt"
)

// MaxTokens is the output budget of a single-file request
const MaxTokens = 16384

type Regenerator struct{}

func New() *Regenerator {
	return &Regenerator{}
}

// Regenerate streams the content of path from p. files are the entries that
// survived recovery, given to the model as context. The returned text is
// raw file content with any wrapping code fence removed.
func (g *Regenerator) Regenerate(
	ctx context.Context,
	p provider.Provider,
	model domain.ModelDescriptor,
	path string,
	files *domain.FileMap,
	instruction string,
) (string, error) {
	log.Printf("[Regen] Regenerating %s with %s", path, model.ID)

	text, err := provider.Collect(p.Stream(ctx, provider.Request{
		Model:        model.UpstreamModel,
		SystemPrompt: prompt.SingleFileSystemPrompt,
		UserPrompt:   prompt.BuildRegenerationPrompt(path, files, instruction),
		MaxTokens:    MaxTokens,
	}))
	if err != nil {
		return "", err
	}

	content := StripFence(text)
	if content == "" {
		return "", domain.ErrEmptyRegeneration
	}
	log.Printf("[Regen] Regenerated %s (%d chars)", path, len(content))
	return content, nil
}

// StripFence removes a markdown fence around the whole text: the opening
// line (with any language tag) and a closing line that is a bare fence.
func StripFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	lines := strings.Split(text, "\n")
	lines = lines[1:]
	if n := len(lines); n > 0 && strings.TrimSpace(lines[n-1]) == "```" {
		lines = lines[:n-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
