package workflow

import "time"

// TaskStatus is the lifecycle state of a single worker task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// IsTerminal returns true once the task can no longer change state.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// Task is one unit of work dispatched to an analysis worker. Tasks are built
// when the run enters the execution phase and are mutated only by that
// phase; afterwards they are frozen.
type Task struct {
	ID        string     `json:"id"`
	Worker    string     `json:"worker"`
	Scope     []string   `json:"scope"`
	Status    TaskStatus `json:"status"`
	DependsOn []string   `json:"depends_on,omitempty"` // worker names that must finish first
	StartedAt time.Time  `json:"started_at,omitempty"`
	EndedAt   time.Time  `json:"ended_at,omitempty"`
	Error     string     `json:"error,omitempty"`
}
