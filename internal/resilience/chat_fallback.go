package resilience

import (
	"context"

	"github.com/sporelab/mycelium/internal/observe"
	"github.com/sporelab/mycelium/pkg/provider/llm"
)

// ChatFallback implements [llm.Provider] with automatic failover across
// multiple chat backends. Each backend has its own circuit breaker; when the
// primary fails or its breaker is open, the next healthy fallback is tried.
type ChatFallback struct {
	name    string
	group   *FallbackGroup[llm.Provider]
	metrics *observe.Metrics
}

// Compile-time interface assertion.
var _ llm.Provider = (*ChatFallback)(nil)

// NewChatFallback creates a [ChatFallback] with primary as the preferred
// backend.
func NewChatFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *ChatFallback {
	return &ChatFallback{
		name:    primaryName,
		group:   NewFallbackGroup(primary, primaryName, cfg),
		metrics: observe.DefaultMetrics(),
	}
}

// AddFallback registers an additional chat provider as a fallback.
func (f *ChatFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Complete sends the request to the first healthy provider and returns its
// response. If the primary fails, subsequent fallbacks are tried.
func (f *ChatFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := ExecuteWithResult(f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
	if err != nil {
		f.metrics.RecordProviderError(ctx, f.name, "chat")
	}
	return resp, err
}

// Capabilities returns the capabilities of the primary backend. This does
// not participate in failover because capabilities are static metadata.
func (f *ChatFallback) Capabilities() llm.Capabilities {
	if p, ok := f.group.Primary(); ok {
		return p.Capabilities()
	}
	return llm.Capabilities{}
}
