package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awsl-project/appforge/internal/adapter/provider"
	"github.com/awsl-project/appforge/internal/domain"
)

func writeEvent(w http.ResponseWriter, name, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
}

func TestStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeEvent(w, "message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-5","content":[],"stop_reason":null,"usage":{"input_tokens":1,"output_tokens":0}}}`)
		writeEvent(w, "content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`)
		writeEvent(w, "content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"{\"message\""}}`)
		writeEvent(w, "content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":":\"ok\"}"}}`)
		writeEvent(w, "content_block_stop", `{"type":"content_block_stop","index":0}`)
		writeEvent(w, "message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":2}}`)
		writeEvent(w, "message_stop", `{"type":"message_stop"}`)
	}))
	defer srv.Close()

	p, err := NewAdapter(provider.Config{APIKey: "test", BaseURL: srv.URL})
	require.NoError(t, err)

	text, err := provider.Collect(p.Stream(context.Background(), provider.Request{
		Model:        "claude-sonnet-4-5",
		SystemPrompt: "sys",
		UserPrompt:   "hi",
		MaxTokens:    32,
	}))
	require.NoError(t, err)
	assert.Equal(t, `{"message":"ok"}`, text)
}

func TestStreamWithoutText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeEvent(w, "message_stop", `{"type":"message_stop"}`)
	}))
	defer srv.Close()

	p, err := NewAdapter(provider.Config{APIKey: "test", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = provider.Collect(p.Stream(context.Background(), provider.Request{Model: "claude-sonnet-4-5", UserPrompt: "hi"}))
	var pe *domain.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, domain.ErrorKindMalformed, pe.Kind)
	assert.False(t, pe.Retryable())
}

func TestNewAdapterRequiresKey(t *testing.T) {
	_, err := NewAdapter(provider.Config{APIKey: "  "})
	assert.ErrorIs(t, err, domain.ErrProviderNotConfigured)
}
