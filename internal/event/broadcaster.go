package event

import (
	"sync"

	"github.com/awsl-project/appforge/internal/domain"
)

// Broadcaster 事件广播接口
// WebSocket hub 实现此接口，CLI 使用 NopBroadcaster
type Broadcaster interface {
	BroadcastGeneration(g *domain.Generation)
	BroadcastGenerationAttempt(a *domain.GenerationAttempt)
	BroadcastLog(message string)
	BroadcastMessage(messageType string, data any)
}

// NopBroadcaster 空实现，用于测试或不需要广播的场景
type NopBroadcaster struct{}

func (n *NopBroadcaster) BroadcastGeneration(g *domain.Generation)               {}
func (n *NopBroadcaster) BroadcastGenerationAttempt(a *domain.GenerationAttempt) {}
func (n *NopBroadcaster) BroadcastLog(message string)                            {}
func (n *NopBroadcaster) BroadcastMessage(messageType string, data any)          {}

// Message is one recorded broadcast
type Message struct {
	Type string
	Data any
}

// Recorder keeps every broadcast in memory. Values are copied at broadcast
// time so later mutation by the sender does not show up.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

func (r *Recorder) record(t string, data any) {
	r.mu.Lock()
	r.messages = append(r.messages, Message{Type: t, Data: data})
	r.mu.Unlock()
}

func (r *Recorder) BroadcastGeneration(g *domain.Generation) {
	cp := *g
	r.record("generation_update", &cp)
}

func (r *Recorder) BroadcastGenerationAttempt(a *domain.GenerationAttempt) {
	cp := *a
	r.record("generation_attempt_update", &cp)
}

func (r *Recorder) BroadcastLog(message string) {
	r.record("log", message)
}

func (r *Recorder) BroadcastMessage(messageType string, data any) {
	r.record(messageType, data)
}

// Messages returns a copy of everything recorded so far
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// Types returns the recorded message types in order
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, len(r.messages))
	for i, m := range r.messages {
		types[i] = m.Type
	}
	return types
}
