// Package workerexec defines the port for dispatching analysis tasks to the
// external workers. The transport's framing is an adapter concern.
package workerexec

import (
	"context"

	"github.com/Strob0t/ReviewMesh/internal/domain/review"
	"github.com/Strob0t/ReviewMesh/internal/domain/workflow"
)

// Executor dispatches one worker task and awaits its typed result.
// Implementations must honor context cancellation and deadline.
type Executor interface {
	Execute(ctx context.Context, task *workflow.Task) (*review.WorkerResult, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, task *workflow.Task) (*review.WorkerResult, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, task *workflow.Task) (*review.WorkerResult, error) {
	return f(ctx, task)
}
