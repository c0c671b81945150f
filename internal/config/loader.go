package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/sporelab/mycelium/internal/tool/mcpbridge"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"chat":       {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"embeddings": {"openai", "ollama"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Logging
	if cfg.Logging.Level != "" && !cfg.Logging.Level.IsValid() {
		errs = append(errs, fmt.Errorf("logging.level %q is invalid; valid values: debug, info, warn, error", cfg.Logging.Level))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("chat", cfg.Providers.Chat.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)
	for i, entry := range cfg.Providers.ChatFallbacks {
		if entry.Name == "" {
			errs = append(errs, fmt.Errorf("providers.chat_fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("chat", entry.Name)
	}
	for i, entry := range cfg.Providers.EmbeddingsFallbacks {
		if entry.Name == "" {
			errs = append(errs, fmt.Errorf("providers.embeddings_fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("embeddings", entry.Name)
	}

	if cfg.Providers.Chat.Name == "" {
		slog.Warn("providers.chat is not configured; agent turns, extraction and concept derivation need a chat model")
	}
	if cfg.Providers.Embeddings.Name == "" {
		slog.Warn("providers.embeddings is not configured; semantic search needs an embedding model")
	}

	// Memory
	if cfg.Memory.VectorBackend != "" && !cfg.Memory.VectorBackend.IsValid() {
		errs = append(errs, fmt.Errorf("memory.vector_backend %q is invalid; valid values: memory, postgres", cfg.Memory.VectorBackend))
	}
	if cfg.Memory.VectorBackend == BackendPostgres {
		if cfg.Memory.PostgresDSN == "" {
			errs = append(errs, errors.New("memory.postgres_dsn is required when memory.vector_backend is postgres"))
		}
		if cfg.Memory.EmbeddingDimensions <= 0 {
			errs = append(errs, errors.New("memory.embedding_dimensions must be positive when memory.vector_backend is postgres"))
		}
	}
	if cfg.Memory.EmbeddingDimensions < 0 {
		errs = append(errs, fmt.Errorf("memory.embedding_dimensions %d must not be negative", cfg.Memory.EmbeddingDimensions))
	}

	// Agent
	if cfg.Agent.MaxToolRounds < 0 {
		errs = append(errs, fmt.Errorf("agent.max_tool_rounds %d must not be negative", cfg.Agent.MaxToolRounds))
	}
	if cfg.Agent.Temperature < 0 || cfg.Agent.Temperature > 2 {
		errs = append(errs, fmt.Errorf("agent.temperature %.2f is out of range [0.0, 2.0]", cfg.Agent.Temperature))
	}

	// Ingest
	if cfg.Ingest.ChunkSize < 0 {
		errs = append(errs, fmt.Errorf("ingest.chunk_size %d must not be negative", cfg.Ingest.ChunkSize))
	}
	if cfg.Ingest.ChunkOverlap < 0 {
		errs = append(errs, fmt.Errorf("ingest.chunk_overlap %d must not be negative", cfg.Ingest.ChunkOverlap))
	}
	if cfg.Ingest.ChunkSize > 0 && cfg.Ingest.ChunkOverlap >= cfg.Ingest.ChunkSize {
		errs = append(errs, fmt.Errorf("ingest.chunk_overlap %d must be smaller than ingest.chunk_size %d", cfg.Ingest.ChunkOverlap, cfg.Ingest.ChunkSize))
	}

	// MCP servers
	serverNamesSeen := make(map[string]int, len(cfg.MCP.Servers))
	for i, srv := range cfg.MCP.Servers {
		prefix := fmt.Sprintf("mcp.servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := serverNamesSeen[srv.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of mcp.servers[%d]", prefix, srv.Name, prev))
			}
			serverNamesSeen[srv.Name] = i
		}
		if srv.Transport != "" && !srv.Transport.IsValid() {
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, streamable-http", prefix, srv.Transport))
		}
		if srv.Transport == mcpbridge.TransportStdio && srv.Command == "" {
			errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
		}
		if srv.Transport == mcpbridge.TransportStreamableHTTP && srv.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required when transport is streamable-http", prefix))
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
