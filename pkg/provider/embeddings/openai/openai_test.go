package openai

import "testing"

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("empty API key rejected", func(t *testing.T) {
		t.Parallel()
		if _, err := New("", "text-embedding-3-small"); err == nil {
			t.Fatal("New: expected error for empty API key")
		}
	})

	t.Run("empty model defaults", func(t *testing.T) {
		t.Parallel()
		p, err := New("sk-test", "")
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if p.ModelID() != DefaultModel {
			t.Fatalf("ModelID: got %q, want %q", p.ModelID(), DefaultModel)
		}
	})

	t.Run("options accepted", func(t *testing.T) {
		t.Parallel()
		if _, err := New("sk-test", "text-embedding-3-small", WithBaseURL("https://llm.internal.example.com")); err != nil {
			t.Fatalf("New with options: %v", err)
		}
	})
}

func TestDimensions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		model string
		want  int
	}{
		{"text-embedding-3-small", 1536},
		{"text-embedding-3-large", 3072},
		{"text-embedding-ada-002", 1536},
		{"some-future-model", 1536},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.model, func(t *testing.T) {
			t.Parallel()
			p := &Provider{model: tc.model}
			if got := p.Dimensions(); got != tc.want {
				t.Fatalf("Dimensions: got %d, want %d", got, tc.want)
			}
		})
	}
}

func TestToFloat32(t *testing.T) {
	t.Parallel()

	in := []float64{1.0, 2.5, -0.5}
	out := toFloat32(in)
	if len(out) != len(in) {
		t.Fatalf("toFloat32: expected %d values, got %d", len(in), len(out))
	}
	for i := range in {
		if out[i] != float32(in[i]) {
			t.Fatalf("toFloat32: index %d: got %v", i, out[i])
		}
	}
}
