// Package observe provides application-wide observability primitives for
// Mycelium: OpenTelemetry metrics, distributed tracing, and structured
// logging helpers that tie them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Mycelium metrics.
const meterName = "github.com/sporelab/mycelium"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// ModelDuration tracks chat-model completion latency.
	ModelDuration metric.Float64Histogram

	// EmbeddingDuration tracks embedding computation latency.
	EmbeddingDuration metric.Float64Histogram

	// RetrievalDuration tracks hybrid graph retrieval latency.
	RetrievalDuration metric.Float64Histogram

	// ToolExecutionDuration tracks tool execution latency.
	ToolExecutionDuration metric.Float64Histogram

	// --- Counters ---

	// Turns counts agent turns. Use with attributes:
	//   attribute.String("workspace", ...), attribute.String("status", ...)
	Turns metric.Int64Counter

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// ExtractedEntities counts knowledge-graph entity writes from extraction.
	ExtractedEntities metric.Int64Counter

	// ExtractedRelations counts knowledge-graph relation writes from
	// extraction.
	ExtractedRelations metric.Int64Counter

	// IngestedChunks counts document chunks processed by ingestion. Use with
	// attributes:
	//   attribute.String("workspace", ...), attribute.String("status", ...)
	IngestedChunks metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts model and embedding provider errors. Use with
	// attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// OpenWorkspaces tracks the number of currently open workspaces.
	OpenWorkspaces metric.Int64UpDownCounter

	// ActiveIngestions tracks the number of running ingestion jobs.
	ActiveIngestions metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) spanning
// sub-second retrieval work up to long model calls.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ModelDuration, err = m.Float64Histogram("mycelium.model.duration",
		metric.WithDescription("Latency of chat-model completions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EmbeddingDuration, err = m.Float64Histogram("mycelium.embedding.duration",
		metric.WithDescription("Latency of embedding computation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RetrievalDuration, err = m.Float64Histogram("mycelium.retrieval.duration",
		metric.WithDescription("Latency of hybrid graph retrieval."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolExecutionDuration, err = m.Float64Histogram("mycelium.tool_execution.duration",
		metric.WithDescription("Latency of tool execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Turns, err = m.Int64Counter("mycelium.agent.turns",
		metric.WithDescription("Total agent turns by workspace and status."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("mycelium.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.ExtractedEntities, err = m.Int64Counter("mycelium.extraction.entities",
		metric.WithDescription("Total entities written by knowledge extraction."),
	); err != nil {
		return nil, err
	}
	if met.ExtractedRelations, err = m.Int64Counter("mycelium.extraction.relations",
		metric.WithDescription("Total relations written by knowledge extraction."),
	); err != nil {
		return nil, err
	}
	if met.IngestedChunks, err = m.Int64Counter("mycelium.ingest.chunks",
		metric.WithDescription("Total document chunks processed by ingestion."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("mycelium.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.OpenWorkspaces, err = m.Int64UpDownCounter("mycelium.open_workspaces",
		metric.WithDescription("Number of currently open workspaces."),
	); err != nil {
		return nil, err
	}
	if met.ActiveIngestions, err = m.Int64UpDownCounter("mycelium.active_ingestions",
		metric.WithDescription("Number of running ingestion jobs."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordTurn records an agent turn with the standard attribute set.
func (m *Metrics) RecordTurn(ctx context.Context, workspace, status string) {
	m.Turns.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("workspace", workspace),
			attribute.String("status", status),
		),
	)
}

// RecordToolCall records a tool call counter increment with the standard
// attribute set.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}

// RecordExtraction records the entity and relation counts of one extraction
// pass.
func (m *Metrics) RecordExtraction(ctx context.Context, workspace string, entities, relations int) {
	attrs := metric.WithAttributes(attribute.String("workspace", workspace))
	m.ExtractedEntities.Add(ctx, int64(entities), attrs)
	m.ExtractedRelations.Add(ctx, int64(relations), attrs)
}

// RecordIngestedChunk records one processed ingestion chunk.
func (m *Metrics) RecordIngestedChunk(ctx context.Context, workspace, status string) {
	m.IngestedChunks.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("workspace", workspace),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
