package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle phase of an ingestion job.
type State string

const (
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateCancelled  State = "cancelled"
	StateError      State = "error"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateError
}

// terminalTTL is how long finished jobs remain visible in status listings
// before being pruned, giving pollers a window to observe the final state.
const terminalTTL = 30 * time.Second

// Job is a point-in-time snapshot of one ingestion job.
type Job struct {
	ID        string
	Workspace string
	Filename  string
	State     State
	Current   int
	Total     int
	Error     string
	Updated   time.Time
}

// Tracker registers running ingestion jobs, exposes their progress, and
// carries the cancellation path: cancelling a job cancels the context its
// pipeline (and any in-flight model call) runs under. Safe for concurrent
// use.
type Tracker struct {
	mu   sync.Mutex
	jobs map[string]*trackedJob

	// now is swapped in tests.
	now func() time.Time
}

type trackedJob struct {
	job    Job
	cancel context.CancelFunc
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{jobs: make(map[string]*trackedJob), now: time.Now}
}

// Handle is the pipeline's writable view of one running job.
type Handle struct {
	tracker *Tracker
	id      string
	ctx     context.Context
}

// Start registers a new processing job and returns its handle. The handle's
// context is derived from parent and is cancelled by [Tracker.Cancel].
func (t *Tracker) Start(parent context.Context, workspaceID, filename string) *Handle {
	ctx, cancel := context.WithCancel(parent)

	t.mu.Lock()
	defer t.mu.Unlock()

	id := uuid.NewString()
	t.jobs[id] = &trackedJob{
		job: Job{
			ID:        id,
			Workspace: workspaceID,
			Filename:  filename,
			State:     StateProcessing,
			Updated:   t.now(),
		},
		cancel: cancel,
	}
	return &Handle{tracker: t, id: id, ctx: ctx}
}

// ID returns the job identifier.
func (h *Handle) ID() string { return h.id }

// Context returns the job-scoped context. All per-chunk work, including
// model calls, should run under it so cancellation interrupts mid-flight
// requests.
func (h *Handle) Context() context.Context { return h.ctx }

// SetTotal records the chunk count once splitting is done.
func (h *Handle) SetTotal(n int) {
	h.tracker.update(h.id, func(j *Job) { j.Total = n })
}

// Advance records the 1-based index of the chunk being processed.
func (h *Handle) Advance(current int) {
	h.tracker.update(h.id, func(j *Job) { j.Current = current })
}

// Complete marks the job finished.
func (h *Handle) Complete() {
	h.tracker.update(h.id, func(j *Job) {
		j.State = StateCompleted
		j.Current = j.Total
	})
}

// Cancelled marks the job as stopped by request.
func (h *Handle) Cancelled() {
	h.tracker.update(h.id, func(j *Job) { j.State = StateCancelled })
}

// Fail marks the job as errored.
func (h *Handle) Fail(err error) {
	h.tracker.update(h.id, func(j *Job) {
		j.State = StateError
		j.Error = err.Error()
	})
}

func (t *Tracker) update(id string, fn func(*Job)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tj, ok := t.jobs[id]
	if !ok {
		return
	}
	fn(&tj.job)
	tj.job.Updated = t.now()
}

// Cancel requests cancellation of a processing job in the given workspace.
// It reports whether a running job was found; terminal jobs are left alone.
func (t *Tracker) Cancel(workspaceID, jobID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	tj, ok := t.jobs[jobID]
	if !ok || tj.job.Workspace != workspaceID || tj.job.State != StateProcessing {
		return false
	}
	tj.cancel()
	return true
}

// Jobs returns snapshots of the workspace's jobs, pruning terminal jobs whose
// last update is older than the retention window.
func (t *Tracker) Jobs(workspaceID string) []Job {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	out := []Job{}
	for id, tj := range t.jobs {
		if tj.job.State.Terminal() && now.Sub(tj.job.Updated) > terminalTTL {
			tj.cancel()
			delete(t.jobs, id)
			continue
		}
		if tj.job.Workspace == workspaceID {
			out = append(out, tj.job)
		}
	}
	return out
}
