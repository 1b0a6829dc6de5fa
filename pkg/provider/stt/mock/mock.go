// Package mock provides a test double for [stt.Provider].
//
// Example:
//
//	p := &mock.Provider{Text: "hello"}
//	tr, _ := p.Transcribe(ctx, stt.Request{Audio: seg})
//	// p.Calls()[0].Audio == seg
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/intervox/pkg/provider/stt"
)

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Text is returned by every call when Script is empty.
	Text string

	// Script holds per-call texts consumed in order before Text is used.
	Script []string

	// Err, if non-nil, is returned by every call.
	Err error

	// Gate, if non-nil, makes Transcribe block until a value is received or
	// ctx is done.
	Gate chan struct{}

	calls []stt.Request
}

var _ stt.Provider = (*Provider)(nil)

// Transcribe records the request and returns the scripted result.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	gate := p.Gate
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return stt.Transcript{}, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return stt.Transcript{}, p.Err
	}
	text := p.Text
	if len(p.Script) > 0 {
		text = p.Script[0]
		p.Script = p.Script[1:]
	}
	return stt.Transcript{Text: text, Language: req.Language}, nil
}

// Calls returns a copy of every recorded request.
func (p *Provider) Calls() []stt.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]stt.Request(nil), p.calls...)
}

// Reset clears recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = nil
}
