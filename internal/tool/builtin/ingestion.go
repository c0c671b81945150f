package builtin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sporelab/mycelium/internal/ingest"
	"github.com/sporelab/mycelium/internal/tool"
)

// ─────────────────────────────────────────────────────────────────────────────
// check_ingestion_status
// ─────────────────────────────────────────────────────────────────────────────

type ingestStatusArgs struct {
	WorkspaceID string `json:"workspace_id"`
}

func makeIngestStatusHandler(tracker *ingest.Tracker) tool.Handler {
	return func(ctx context.Context, args string) (string, error) {
		var a ingestStatusArgs
		if err := json.Unmarshal([]byte(args), &a); err != nil {
			return "", fmt.Errorf("builtin: check_ingestion_status: failed to parse arguments: %w", err)
		}
		jobs := tracker.Jobs(a.WorkspaceID)
		if len(jobs) == 0 {
			return "No ingestion jobs for this workspace.", nil
		}

		type jobStatus struct {
			JobID    string `json:"job_id"`
			Filename string `json:"filename"`
			Status   string `json:"status"`
			Current  int    `json:"current"`
			Total    int    `json:"total"`
			Error    string `json:"error,omitempty"`
		}
		out := make([]jobStatus, len(jobs))
		for i, j := range jobs {
			out[i] = jobStatus{
				JobID:    j.ID,
				Filename: j.Filename,
				Status:   string(j.State),
				Current:  j.Current,
				Total:    j.Total,
				Error:    j.Error,
			}
		}
		res, err := json.Marshal(out)
		if err != nil {
			return "", fmt.Errorf("builtin: check_ingestion_status: failed to encode result: %w", err)
		}
		return string(res), nil
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// stop_ingestion
// ─────────────────────────────────────────────────────────────────────────────

type stopIngestArgs struct {
	WorkspaceID string `json:"workspace_id"`
	JobID       string `json:"job_id"`
}

func makeStopIngestHandler(tracker *ingest.Tracker) tool.Handler {
	return func(ctx context.Context, args string) (string, error) {
		var a stopIngestArgs
		if err := json.Unmarshal([]byte(args), &a); err != nil {
			return "", fmt.Errorf("builtin: stop_ingestion: failed to parse arguments: %w", err)
		}
		if a.JobID == "" {
			return "", fmt.Errorf("builtin: stop_ingestion: job_id must not be empty")
		}
		if tracker.Cancel(a.WorkspaceID, a.JobID) {
			return fmt.Sprintf("Requested cancellation of job %s.", a.JobID), nil
		}
		return fmt.Sprintf("Job %s is not running.", a.JobID), nil
	}
}

// ingestionTools returns the ingestion monitoring tool set.
func ingestionTools(tracker *ingest.Tracker) []tool.Tool {
	return []tool.Tool{
		{
			Definition: tool.Definition{
				Name:            "check_ingestion_status",
				Description:     "List document ingestion jobs for the workspace with their progress.",
				WorkspaceScoped: true,
				Parameters: objectSchema(map[string]any{
					"workspace_id": workspaceIDProp,
				}),
			},
			Handler: makeIngestStatusHandler(tracker),
		},
		{
			Definition: tool.Definition{
				Name:            "stop_ingestion",
				Description:     "Cancel a running document ingestion job.",
				WorkspaceScoped: true,
				Parameters: objectSchema(map[string]any{
					"workspace_id": workspaceIDProp,
					"job_id":       stringProp("The job ID, as shown by check_ingestion_status."),
				}, "job_id"),
			},
			Handler: makeStopIngestHandler(tracker),
		},
	}
}
