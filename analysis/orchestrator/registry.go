package orchestrator

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/repolens/repolens/analysis/report"
)

// Phase is the lifecycle state of one analysis run.
type Phase string

const (
	PhasePending            Phase = "pending"
	PhaseRunning            Phase = "running"
	PhaseCompleted          Phase = "completed"
	PhasePartiallyCompleted Phase = "partially_completed"
	PhaseFailed             Phase = "failed"
)

// Run tracks one analysis run from submission to its terminal phase. Status
// queries and the run itself race by design, so all mutable state sits behind
// a lock.
type Run struct {
	ID           string
	RepositoryID string
	CreatedAt    time.Time

	mu     sync.RWMutex
	phase  Phase
	errMsg string
	report *report.Report
}

// Phase returns the run's current lifecycle phase.
func (r *Run) Phase() Phase {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.phase
}

// Err returns the failure message for a failed run, empty otherwise.
func (r *Run) Err() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.errMsg
}

// Report returns the assembled report, or nil while the run is in flight or
// after it failed before assembly.
func (r *Run) Report() *report.Report {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.report
}

// SetRunning transitions the run from pending to running.
func (r *Run) SetRunning() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phase = PhaseRunning
}

// SetCompleted records the assembled report and derives the terminal phase
// from its overall status.
func (r *Run) SetCompleted(rep *report.Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report = rep
	switch rep.OverallStatus {
	case report.StatusComplete:
		r.phase = PhaseCompleted
	case report.StatusPartial:
		r.phase = PhasePartiallyCompleted
	default:
		r.phase = PhaseFailed
	}
}

// SetFailed marks the run failed before a report could be assembled.
func (r *Run) SetFailed(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phase = PhaseFailed
	if err != nil {
		r.errMsg = err.Error()
	}
}

// RunRegistry is the in-memory index of runs, keyed by run ID. It backs the
// status endpoint while runs execute; durable results go to the store.
type RunRegistry struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

// NewRunRegistry creates an empty registry.
func NewRunRegistry() *RunRegistry {
	return &RunRegistry{runs: make(map[string]*Run)}
}

// Create registers a new pending run for the repository and returns it.
func (reg *RunRegistry) Create(repositoryID string) *Run {
	run := &Run{
		ID:           uuid.NewString(),
		RepositoryID: repositoryID,
		CreatedAt:    time.Now().UTC(),
		phase:        PhasePending,
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.runs[run.ID] = run
	return run
}

// Get looks up a run by ID.
func (reg *RunRegistry) Get(id string) (*Run, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	run, ok := reg.runs[id]
	return run, ok
}
