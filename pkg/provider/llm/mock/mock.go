// Package mock provides a test double for the llm.Provider interface.
//
// Responses are scripted: each call to Complete consumes the next entry from
// Responses, so a test can drive a full workflow turn (tool-call round,
// follow-up answer, extraction JSON, reflection JSON) from one provider.
//
// Example:
//
//	p := &mock.Provider{Responses: []*llm.CompletionResponse{
//	    {ToolCalls: []llm.ToolCall{{ID: "1", Name: "search_notes", Arguments: `{"query":"go"}`}}},
//	    {Content: "Found it."},
//	}}
package mock

import (
	"context"
	"sync"

	"github.com/sporelab/mycelium/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// Provider is a scripted implementation of llm.Provider. Safe for concurrent
// use, though scripted tests normally call it sequentially.
type Provider struct {
	mu sync.Mutex

	// Responses are returned by successive Complete calls. When the script
	// runs out the last entry is repeated.
	Responses []*llm.CompletionResponse

	// CompleteFunc, when set, overrides the scripted Responses entirely.
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	// Err, if non-nil, is returned from every Complete call.
	Err error

	// CapabilitiesValue is returned by Capabilities. The zero value reports
	// tool calling supported with a 128k context.
	CapabilitiesValue llm.Capabilities

	// Requests records every CompletionRequest passed to Complete, in order.
	Requests []llm.CompletionRequest

	next int
}

// Complete records the request and returns the next scripted response.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Requests = append(p.Requests, req)
	if p.Err != nil {
		return nil, p.Err
	}
	if p.CompleteFunc != nil {
		return p.CompleteFunc(ctx, req)
	}
	if len(p.Responses) == 0 {
		return &llm.CompletionResponse{}, nil
	}
	i := p.next
	if i >= len(p.Responses) {
		i = len(p.Responses) - 1
	}
	p.next++
	return p.Responses[i], nil
}

// Capabilities returns CapabilitiesValue, defaulting to a tool-calling model.
func (p *Provider) Capabilities() llm.Capabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CapabilitiesValue == (llm.Capabilities{}) {
		return llm.Capabilities{ContextWindow: 128_000, MaxOutputTokens: 4_096, SupportsToolCalling: true}
	}
	return p.CapabilitiesValue
}

// Reset clears recorded requests and rewinds the script.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = nil
	p.next = 0
}
