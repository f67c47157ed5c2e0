// Package sse writes and parses server-sent events.
package sse

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/awsl-project/appforge/internal/jsonx"
)

// ErrClosed is returned by Send after the writer was closed
var ErrClosed = errors.New("sse: writer closed")

// Event represents a parsed SSE event
type Event struct {
	Event string
	Data  string
}

// Get reads a field of the event's JSON payload
func (e Event) Get(path string) gjson.Result {
	return gjson.Get(e.Data, path)
}

// Format formats an event and data as SSE. Data that is not already bytes
// or a string is JSON encoded.
func Format(event string, data any) []byte {
	var sb strings.Builder
	if event != "" {
		sb.WriteString("event: ")
		sb.WriteString(event)
		sb.WriteString("\n")
	}

	var payload []byte
	switch v := data.(type) {
	case []byte:
		payload = v
	case string:
		payload = []byte(v)
	default:
		payload, _ = jsonx.Marshal(v)
	}

	sb.WriteString("data: ")
	sb.Write(payload)
	sb.WriteString("\n\n")
	return []byte(sb.String())
}

// Writer sends one event per write and flushes after each, so clients see
// events as they happen. Safe for concurrent use.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	closed  bool
}

// NewWriter prepares w for streaming. When w is an http.ResponseWriter the
// event-stream headers are set and the status is written.
func NewWriter(w io.Writer) *Writer {
	if rw, ok := w.(http.ResponseWriter); ok {
		h := rw.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		rw.WriteHeader(http.StatusOK)
	}
	flusher, _ := w.(http.Flusher)
	return &Writer{w: w, flusher: flusher}
}

func (w *Writer) Send(event string, data any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if _, err := w.w.Write(Format(event, data)); err != nil {
		return err
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}

// Close makes further sends fail. The underlying writer is left open.
func (w *Writer) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
}

// Parse parses SSE text into events, returning parsed events and the
// unterminated remainder. Events whose data is not valid JSON are dropped.
func Parse(text string) ([]Event, string) {
	var events []Event
	var currentEvent string
	var currentData []string

	complete := text
	rest := ""
	if idx := strings.LastIndex(text, "\n\n"); idx >= 0 {
		complete, rest = text[:idx+2], text[idx+2:]
	} else {
		return nil, text
	}

	for _, line := range strings.Split(complete, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			if len(currentData) > 0 {
				data := strings.Join(currentData, "\n")
				if gjson.Valid(data) {
					events = append(events, Event{Event: currentEvent, Data: data})
				}
			}
			currentEvent = ""
			currentData = nil
			continue
		}
		switch {
		case strings.HasPrefix(line, "event:"):
			currentEvent = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			currentData = append(currentData, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	return events, rest
}
