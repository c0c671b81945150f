package resilience

import (
	"context"
	"errors"
	"testing"

	embmock "github.com/sporelab/mycelium/pkg/provider/embeddings/mock"
)

func TestEmbeddingsFallback_PrimarySuccess(t *testing.T) {
	primary := &embmock.Provider{EmbedResult: []float32{1, 0}, DimensionsValue: 2, ModelIDValue: "a"}
	secondary := &embmock.Provider{EmbedResult: []float32{0, 1}, DimensionsValue: 2, ModelIDValue: "b"}

	f := NewEmbeddingsFallback(primary, "primary", FallbackConfig{})
	f.AddFallback("secondary", secondary)

	vec, err := f.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vec[0] != 1 {
		t.Errorf("vector = %v, want primary's", vec)
	}
	if f.Dimensions() != 2 {
		t.Errorf("dimensions = %d, want 2", f.Dimensions())
	}
	if f.ModelID() != "a" {
		t.Errorf("model id = %q, want a", f.ModelID())
	}
}

func TestEmbeddingsFallback_FailoverToSecondary(t *testing.T) {
	primary := &embmock.Provider{EmbedErr: errors.New("down")}
	secondary := &embmock.Provider{EmbedResult: []float32{0, 1}}

	f := NewEmbeddingsFallback(primary, "primary", FallbackConfig{})
	f.AddFallback("secondary", secondary)

	vec, err := f.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vec[1] != 1 {
		t.Errorf("vector = %v, want secondary's", vec)
	}

	batch, err := f.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(batch) != 2 {
		t.Errorf("batch length = %d, want 2", len(batch))
	}
}

func TestEmbeddingsFallback_AllFail(t *testing.T) {
	primary := &embmock.Provider{EmbedErr: errors.New("down")}
	secondary := &embmock.Provider{EmbedErr: errors.New("also down")}

	f := NewEmbeddingsFallback(primary, "primary", FallbackConfig{})
	f.AddFallback("secondary", secondary)

	if _, err := f.Embed(context.Background(), "hello"); !errors.Is(err, ErrAllFailed) {
		t.Errorf("expected ErrAllFailed, got %v", err)
	}
}
