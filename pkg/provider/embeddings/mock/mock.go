// Package mock provides a test double for the embeddings.Provider interface.
//
// Use Provider to return canned vectors without a live model and to verify
// which texts were submitted for embedding. EmbedFunc allows deterministic
// per-text vectors, which retrieval tests use to steer similarity ranking.
package mock

import (
	"context"
	"sync"

	"github.com/sporelab/mycelium/pkg/provider/embeddings"
)

var _ embeddings.Provider = (*Provider)(nil)

// Provider is a mock implementation of embeddings.Provider. Safe for
// concurrent use.
type Provider struct {
	mu sync.Mutex

	// EmbedFunc, when set, computes the vector for each text. It takes
	// precedence over EmbedResult and is also applied per-text by EmbedBatch.
	EmbedFunc func(text string) []float32

	// EmbedResult is returned by Embed when EmbedFunc is nil.
	EmbedResult []float32

	// EmbedErr, if non-nil, is returned from Embed and EmbedBatch.
	EmbedErr error

	// DimensionsValue is returned by Dimensions.
	DimensionsValue int

	// ModelIDValue is returned by ModelID.
	ModelIDValue string

	// EmbedCalls records every text passed to Embed, in order.
	EmbedCalls []string

	// EmbedBatchCalls records every slice passed to EmbedBatch, in order.
	EmbedBatchCalls [][]string
}

// Embed records the call and returns the configured vector.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = append(p.EmbedCalls, text)
	if p.EmbedErr != nil {
		return nil, p.EmbedErr
	}
	if p.EmbedFunc != nil {
		return p.EmbedFunc(text), nil
	}
	return p.EmbedResult, nil
}

// EmbedBatch records the call and returns one configured vector per text.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]string, len(texts))
	copy(cp, texts)
	p.EmbedBatchCalls = append(p.EmbedBatchCalls, cp)
	if p.EmbedErr != nil {
		return nil, p.EmbedErr
	}
	result := make([][]float32, len(texts))
	for i, t := range texts {
		if p.EmbedFunc != nil {
			result[i] = p.EmbedFunc(t)
		} else {
			result[i] = p.EmbedResult
		}
	}
	return result, nil
}

// Dimensions returns DimensionsValue.
func (p *Provider) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.DimensionsValue
}

// ModelID returns ModelIDValue.
func (p *Provider) ModelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelIDValue
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = nil
	p.EmbedBatchCalls = nil
}
