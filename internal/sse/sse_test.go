package sse

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name  string
		event string
		data  any
		want  string
	}{
		{"json", "stage", map[string]string{"stage": "analyzing"}, "event: stage\ndata: {\"stage\":\"analyzing\"}\n\n"},
		{"string", "done", `{"message":"ok"}`, "event: done\ndata: {\"message\":\"ok\"}\n\n"},
		{"no event", "", []byte(`{}`), "data: {}\n\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(Format(tt.event, tt.data)))
		})
	}
}

func TestWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewWriter(rec)

	require.NoError(t, w.Send("code_stream", map[string]string{"chunk": "a"}))
	require.NoError(t, w.Send("done", map[string]string{"message": "ok"}))
	w.Close()
	assert.ErrorIs(t, w.Send("done", nil), ErrClosed)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.True(t, rec.Flushed)

	events, rest := Parse(rec.Body.String())
	assert.Empty(t, rest)
	require.Len(t, events, 2)
	assert.Equal(t, "code_stream", events[0].Event)
	assert.Equal(t, "a", events[0].Get("chunk").String())
	assert.Equal(t, "done", events[1].Event)
}

func TestParsePartial(t *testing.T) {
	events, rest := Parse("event: a\ndata: {\"x\":1}\n\nevent: b\ndata: {\"x\"")
	require.Len(t, events, 1)
	assert.Equal(t, int64(1), events[0].Get("x").Int())
	assert.Equal(t, "event: b\ndata: {\"x\"", rest)

	events, rest = Parse("data: not json\n\n")
	assert.Empty(t, events)
	assert.Empty(t, rest)
}
