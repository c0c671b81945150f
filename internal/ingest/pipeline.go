// Package ingest turns documents into graph knowledge: it splits text into
// overlapping chunks, runs knowledge extraction on each chunk sequentially,
// and tracks per-job progress with cooperative cancellation.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sporelab/mycelium/internal/observe"
)

// ExtractFunc runs knowledge extraction over one chunk of text and reports
// how many entities and relations were written to memory. It must respect
// ctx: ingestion cancellation cancels the context of the in-flight call.
type ExtractFunc func(ctx context.Context, text string) (entities, relations int, err error)

// Summary is the outcome of one ingestion run.
type Summary struct {
	JobID     string
	Chunks    int
	Entities  int
	Relations int
	Cancelled bool
}

// Pipeline ingests documents for any workspace; the workspace binding lives
// in the ExtractFunc the caller supplies per run. Safe for concurrent use.
type Pipeline struct {
	chunker Chunker
	tracker *Tracker
	log     *slog.Logger
	metrics *observe.Metrics
}

// NewPipeline returns a Pipeline reporting progress to tracker. A zero
// chunker uses the default size and overlap; a nil logger defaults to
// slog.Default().
func NewPipeline(tracker *Tracker, chunker Chunker, log *slog.Logger) (*Pipeline, error) {
	if tracker == nil {
		return nil, fmt.Errorf("ingest: tracker is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{chunker: chunker, tracker: tracker, log: log, metrics: observe.DefaultMetrics()}, nil
}

// Run splits text and extracts knowledge from each chunk in order. A chunk
// whose extraction fails is logged and skipped; the run keeps going. A
// cancelled job stops between chunks (or mid-chunk, when the model call
// honours its context) and reports Cancelled rather than an error. A job
// whose context dies for a non-cancellation reason, or whose every chunk
// fails, ends in the error state and Run returns the failure.
func (p *Pipeline) Run(ctx context.Context, workspaceID, filename, text string, extract ExtractFunc) (Summary, error) {
	if extract == nil {
		return Summary{}, fmt.Errorf("ingest: extract function is required")
	}

	chunks := p.chunker.Split(text)
	h := p.tracker.Start(ctx, workspaceID, filename)
	h.SetTotal(len(chunks))

	sum := Summary{JobID: h.ID(), Chunks: len(chunks)}
	jobCtx := h.Context()

	failed := 0
	for i, chunk := range chunks {
		if err := jobCtx.Err(); err != nil {
			if errors.Is(err, context.Canceled) {
				h.Cancelled()
				sum.Cancelled = true
				return sum, nil
			}
			h.Fail(err)
			return sum, fmt.Errorf("ingest: job %s: %w", h.ID(), err)
		}
		h.Advance(i + 1)

		ents, rels, err := extract(jobCtx, chunk)
		if err != nil {
			if jobCtx.Err() != nil {
				if errors.Is(jobCtx.Err(), context.Canceled) {
					h.Cancelled()
					sum.Cancelled = true
					return sum, nil
				}
				h.Fail(jobCtx.Err())
				return sum, fmt.Errorf("ingest: job %s: %w", h.ID(), jobCtx.Err())
			}
			p.log.Warn("chunk extraction failed",
				"workspace", workspaceID, "job", h.ID(), "chunk", i+1, "error", err)
			p.metrics.RecordIngestedChunk(ctx, workspaceID, "error")
			failed++
			continue
		}
		sum.Entities += ents
		sum.Relations += rels
		p.metrics.RecordIngestedChunk(ctx, workspaceID, "ok")
	}

	if len(chunks) > 0 && failed == len(chunks) {
		err := fmt.Errorf("ingest: job %s: all %d chunks failed extraction", h.ID(), len(chunks))
		h.Fail(err)
		return sum, err
	}

	h.Complete()
	return sum, nil
}
