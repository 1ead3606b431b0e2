// Package workflow defines the review run state machine model: phases,
// statuses, worker tasks and run-level metrics.
package workflow

import (
	"time"

	"github.com/Strob0t/ReviewMesh/internal/domain/review"
	"github.com/Strob0t/ReviewMesh/internal/domain/routing"
	"github.com/Strob0t/ReviewMesh/internal/domain/trigger"
)

// Phase is one of the five ordered workflow phases. A run only ever moves
// forward through them; it never skips or rewinds.
type Phase string

const (
	PhaseInitialization Phase = "initialization"
	PhaseRouting        Phase = "routing"
	PhaseExecution      Phase = "execution"
	PhaseSynthesis      Phase = "synthesis"
	PhaseCompletion     Phase = "completion"
)

// Phases lists the phases in execution order.
func Phases() []Phase {
	return []Phase{PhaseInitialization, PhaseRouting, PhaseExecution, PhaseSynthesis, PhaseCompletion}
}

// Index returns the position of p in the phase order, or -1 if unknown.
func (p Phase) Index() int {
	for i, ph := range Phases() {
		if ph == p {
			return i
		}
	}
	return -1
}

// Status is the lifecycle state of a run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// RunError records one failure during a run. Errors accumulate; they are
// part of the final result even when the run as a whole completes.
type RunError struct {
	Phase   Phase     `json:"phase"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
	// RetryCount is reserved. No automatic node retry is implemented; the
	// field is kept so recorded errors stay wire-compatible if one is added.
	RetryCount int `json:"retry_count"`
}

// Metrics aggregates run-level counters and timings.
type Metrics struct {
	StartedAt      time.Time     `json:"started_at"`
	EndedAt        time.Time     `json:"ended_at"`
	Duration       time.Duration `json:"duration"`
	ReasoningCalls int           `json:"reasoning_calls"`
	FallbacksUsed  int           `json:"fallbacks_used"`
}

// Run is the mutable state of one review workflow. It is created at run
// start, mutated in place by each phase, and terminal once completed or
// failed.
type Run struct {
	ID              string                           `json:"id"`
	Event           *trigger.Event                   `json:"event"`
	Phase           Phase                            `json:"phase"`
	Status          Status                           `json:"status"`
	Decision        *routing.Decision                `json:"decision,omitempty"`
	Plan            *routing.Plan                    `json:"plan,omitempty"`
	SelectedWorkers []string                         `json:"selected_workers,omitempty"`
	Tasks           []Task                           `json:"tasks,omitempty"`
	Results         map[string]*review.WorkerResult  `json:"results,omitempty"`
	Recommendation  review.Recommendation            `json:"recommendation,omitempty"`
	Summary         string                           `json:"summary,omitempty"`
	Metrics         Metrics                          `json:"metrics"`
	Errors          []RunError                       `json:"errors"`
}

// RecordError appends a run error for the given phase.
func (r *Run) RecordError(phase Phase, msg string, at time.Time) {
	r.Errors = append(r.Errors, RunError{Phase: phase, Message: msg, At: at})
}

// Result is the externally consumed outcome of a run.
type Result struct {
	RunID          string                          `json:"run_id"`
	Status         Status                          `json:"status"`
	Recommendation review.Recommendation           `json:"recommendation"`
	Summary        string                          `json:"summary"`
	Results        map[string]*review.WorkerResult `json:"results"`
	Metrics        Metrics                         `json:"metrics"`
	Errors         []RunError                      `json:"errors"`
}
