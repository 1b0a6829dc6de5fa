// Package mock is a scripted [llm.Provider] for tests.
//
//	p := &mock.Provider{Replies: []string{"Hello, I'm your interviewer.", "Why Go?"}}
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/intervox/pkg/provider/llm"
)

// CompleteCall is one recorded request.
type CompleteCall struct {
	Req llm.CompletionRequest
}

// Provider answers from Replies in order, repeating the last one, or from
// CompleteResponse when Replies is empty. CompleteErr wins over both.
type Provider struct {
	CompleteResponse   *llm.CompletionResponse
	Replies            []string
	CompleteErr        error
	CapabilitiesResult llm.ModelCapabilities

	// CompleteCalls is safe to read once calls have returned; use Calls
	// while they may still run.
	CompleteCalls []CompleteCall

	mu sync.Mutex
}

var _ llm.Provider = (*Provider)(nil)

func (p *Provider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	req.Messages = slices.Clone(req.Messages)
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Req: req})

	switch {
	case p.CompleteErr != nil:
		return nil, p.CompleteErr
	case len(p.Replies) > 0:
		i := min(len(p.CompleteCalls), len(p.Replies)) - 1
		return &llm.CompletionResponse{Content: p.Replies[i]}, nil
	case p.CompleteResponse != nil:
		resp := *p.CompleteResponse
		return &resp, nil
	}
	return &llm.CompletionResponse{}, nil
}

func (p *Provider) Capabilities() llm.ModelCapabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CapabilitiesResult
}

// Calls returns a snapshot of the recorded requests.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.CompleteCalls)
}
