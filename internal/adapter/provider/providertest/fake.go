// Package providertest provides a scripted Provider for tests.
package providertest

import (
	"context"
	"iter"
	"sync"

	"github.com/awsl-project/appforge/internal/adapter/provider"
)

// Response is one scripted reply. Chunks are streamed in order; Err, when
// set, is yielded after the chunks.
type Response struct {
	Chunks []string
	Err    error
}

// Fake replays scripted responses in call order. Once the script is
// exhausted the last response is repeated.
type Fake struct {
	ProviderName string
	Script       []Response

	mu       sync.Mutex
	requests []provider.Request
}

func New(name string, script ...Response) *Fake {
	return &Fake{ProviderName: name, Script: script}
}

// Text is shorthand for a successful single-chunk reply.
func Text(s string) Response {
	return Response{Chunks: []string{s}}
}

// Fail is shorthand for a reply that errors before producing output.
func Fail(err error) Response {
	return Response{Err: err}
}

func (f *Fake) Name() string {
	return f.ProviderName
}

func (f *Fake) next(req provider.Request) Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := len(f.requests)
	f.requests = append(f.requests, req)
	if len(f.Script) == 0 {
		return Response{}
	}
	if idx >= len(f.Script) {
		idx = len(f.Script) - 1
	}
	return f.Script[idx]
}

func (f *Fake) Generate(ctx context.Context, req provider.Request) (string, error) {
	return provider.Collect(f.Stream(ctx, req))
}

func (f *Fake) Stream(ctx context.Context, req provider.Request) iter.Seq2[string, error] {
	resp := f.next(req)
	return func(yield func(string, error) bool) {
		for _, c := range resp.Chunks {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			if !yield(c, nil) {
				return
			}
		}
		if resp.Err != nil {
			yield("", resp.Err)
		}
	}
}

// Requests returns every request received so far.
func (f *Fake) Requests() []provider.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]provider.Request(nil), f.requests...)
}

func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}
