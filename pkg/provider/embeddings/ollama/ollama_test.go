package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sporelab/mycelium/pkg/provider/embeddings/ollama"
)

// embedServer serves /api/embed with canned vectors, truncated to the number
// of inputs in each request.
func embedServer(t *testing.T, wantModel string, vecs [][]float32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if req.Model != wantModel {
			t.Errorf("model: got %q, want %q", req.Model, wantModel)
		}
		out := vecs
		if len(out) > len(req.Input) {
			out = out[:len(req.Input)]
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"model": wantModel, "embeddings": out})
	}))
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("empty model rejected", func(t *testing.T) {
		t.Parallel()
		if _, err := ollama.New("", ""); err == nil {
			t.Fatal("New: expected error for empty model")
		}
	})

	t.Run("empty base URL defaults", func(t *testing.T) {
		t.Parallel()
		p, err := ollama.New("", "nomic-embed-text")
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if p.ModelID() != "nomic-embed-text" {
			t.Fatalf("ModelID: got %q", p.ModelID())
		}
	})
}

func TestEmbed(t *testing.T) {
	want := []float32{0.1, 0.2, 0.3}
	srv := embedServer(t, "nomic-embed-text", [][]float32{want})
	defer srv.Close()

	p, err := ollama.New(srv.URL, "nomic-embed-text")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := p.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("Embed: expected %d values, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Embed: vec[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestEmbedBatch(t *testing.T) {
	vecs := [][]float32{{0.1}, {0.2}, {0.3}}
	srv := embedServer(t, "nomic-embed-text", vecs)
	defer srv.Close()

	p, err := ollama.New(srv.URL, "nomic-embed-text")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := p.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("EmbedBatch: expected 3 vectors, got %d", len(got))
	}
	for i := range vecs {
		if got[i][0] != vecs[i][0] {
			t.Fatalf("EmbedBatch: vec[%d] = %v, want %v", i, got[i], vecs[i])
		}
	}
}

func TestEmbedBatchEmpty(t *testing.T) {
	t.Parallel()

	// Unreachable server: an accidental request would fail the test.
	p, err := ollama.New("http://127.0.0.1:19999", "nomic-embed-text")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := p.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedBatch(nil): %v", err)
	}
	if got != nil {
		t.Fatalf("EmbedBatch(nil): expected nil, got %v", got)
	}
}

func TestDimensions(t *testing.T) {
	t.Parallel()

	t.Run("known models need no request", func(t *testing.T) {
		t.Parallel()
		tests := []struct {
			model string
			want  int
		}{
			{"nomic-embed-text", 768},
			{"nomic-embed-text:latest", 768},
			{"mxbai-embed-large", 1024},
			{"all-minilm", 384},
		}
		for _, tc := range tests {
			p, err := ollama.New("http://127.0.0.1:19999", tc.model)
			if err != nil {
				t.Fatalf("New(%s): %v", tc.model, err)
			}
			if got := p.Dimensions(); got != tc.want {
				t.Fatalf("Dimensions(%s): got %d, want %d", tc.model, got, tc.want)
			}
		}
	})

	t.Run("unknown model probes once", func(t *testing.T) {
		t.Parallel()
		const dim = 512
		probeVec := make([]float32, dim)

		calls := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls++
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"model":      "custom-embed",
				"embeddings": [][]float32{probeVec},
			})
		}))
		defer srv.Close()

		p, err := ollama.New(srv.URL, "custom-embed")
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		for i := 0; i < 3; i++ {
			if got := p.Dimensions(); got != dim {
				t.Fatalf("Dimensions: got %d, want %d", got, dim)
			}
		}
		if calls != 1 {
			t.Fatalf("Dimensions: expected 1 probe request, got %d", calls)
		}
	})

	t.Run("explicit option wins", func(t *testing.T) {
		t.Parallel()
		p, err := ollama.New("http://127.0.0.1:19999", "custom-model", ollama.WithDimensions(256))
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if got := p.Dimensions(); got != 256 {
			t.Fatalf("Dimensions: got %d, want 256", got)
		}
	})
}

func TestEmbedErrors(t *testing.T) {
	t.Parallel()

	t.Run("server down", func(t *testing.T) {
		t.Parallel()
		p, err := ollama.New("http://127.0.0.1:19999", "nomic-embed-text",
			ollama.WithTimeout(500*time.Millisecond))
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if _, err := p.Embed(context.Background(), "hello"); err == nil {
			t.Fatal("Embed: expected error for unreachable server")
		}
	})

	t.Run("non-200 status", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()

		p, err := ollama.New(srv.URL, "nomic-embed-text")
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if _, err := p.Embed(context.Background(), "hello"); err == nil {
			t.Fatal("Embed: expected error for 500 response")
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte("not-json"))
		}))
		defer srv.Close()

		p, err := ollama.New(srv.URL, "nomic-embed-text")
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if _, err := p.Embed(context.Background(), "hello"); err == nil {
			t.Fatal("Embed: expected error for malformed JSON")
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		t.Parallel()
		stop := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-stop:
			}
		}))
		defer srv.Close()
		defer close(stop)

		p, err := ollama.New(srv.URL, "nomic-embed-text")
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		if _, err := p.Embed(ctx, "hello"); err == nil {
			t.Fatal("Embed: expected context cancellation error")
		}
	})
}
