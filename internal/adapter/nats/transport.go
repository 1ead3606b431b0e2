package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/ReviewMesh/internal/domain/review"
	"github.com/Strob0t/ReviewMesh/internal/domain/workflow"
)

// taskEnvelope is the wire format of one task dispatch.
type taskEnvelope struct {
	TaskID         string    `json:"task_id"`
	Worker         string    `json:"worker"`
	Scope          []string  `json:"scope"`
	Deadline       time.Time `json:"deadline"`
	DispatchedAt   time.Time `json:"dispatched_at"`
	TimeoutSeconds int       `json:"timeout_seconds"`
}

// resultEnvelope is the wire format of one worker result.
type resultEnvelope struct {
	TaskID     string         `json:"task_id"`
	Worker     string         `json:"worker"`
	Status     string         `json:"status"`
	Issues     []review.Issue `json:"issues,omitempty"`
	Summary    string         `json:"summary"`
	DurationMS int64          `json:"duration_ms"`
	Error      string         `json:"error,omitempty"`
}

func (e resultEnvelope) toResult() *review.WorkerResult {
	return &review.WorkerResult{
		Worker:   e.Worker,
		Status:   e.Status,
		Issues:   e.Issues,
		Summary:  e.Summary,
		Duration: time.Duration(e.DurationMS) * time.Millisecond,
	}
}

// Execute publishes the task to its worker's subject and blocks until the
// correlated result arrives, the configured task timeout elapses, or the
// context is cancelled.
func (t *Transport) Execute(ctx context.Context, task *workflow.Task) (*review.WorkerResult, error) {
	deadline := t.now().Add(t.timeout)
	envelope := taskEnvelope{
		TaskID:         task.ID,
		Worker:         task.Worker,
		Scope:          task.Scope,
		Deadline:       deadline,
		DispatchedAt:   t.now(),
		TimeoutSeconds: int(t.timeout / time.Second),
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("marshal task %s: %w", task.ID, err)
	}

	ch := t.register(task.ID)
	defer t.unregister(task.ID)

	if _, err := t.js.Publish(ctx, subjectTaskPrefix+task.Worker, data); err != nil {
		return nil, fmt.Errorf("dispatch task %s to %s: %w", task.ID, task.Worker, err)
	}

	timer := time.NewTimer(t.timeout)
	defer timer.Stop()

	select {
	case result := <-ch:
		if result.Status == "failed" && result.Error != "" {
			return nil, fmt.Errorf("worker %s: %s", task.Worker, result.Error)
		}
		return result.toResult(), nil
	case <-timer.C:
		return nil, fmt.Errorf("worker %s did not answer task %s within %s", task.Worker, task.ID, t.timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *Transport) register(taskID string) chan resultEnvelope {
	ch := make(chan resultEnvelope, 1)
	t.mu.Lock()
	t.pending[taskID] = ch
	t.mu.Unlock()
	return ch
}

func (t *Transport) unregister(taskID string) {
	t.mu.Lock()
	delete(t.pending, taskID)
	t.mu.Unlock()
}

// handleResult correlates an incoming result with its waiting task. Results
// for unknown task ids (late answers after a timeout) are dropped.
func (t *Transport) handleResult(msg jetstream.Msg) {
	var envelope resultEnvelope
	if err := json.Unmarshal(msg.Data(), &envelope); err != nil {
		slog.Error("unparseable worker result", "error", err)
		_ = msg.Ack()
		return
	}

	t.mu.Lock()
	ch, ok := t.pending[envelope.TaskID]
	t.mu.Unlock()

	if ok {
		ch <- envelope
	} else {
		slog.Warn("result for unknown task dropped", "task_id", envelope.TaskID, "worker", envelope.Worker)
	}
	_ = msg.Ack()
}
