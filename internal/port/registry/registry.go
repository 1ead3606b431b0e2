// Package registry defines the port for the worker health source. The
// registry itself is external; the core only consumes read-only snapshots.
package registry

import (
	"context"

	"github.com/Strob0t/ReviewMesh/internal/domain/worker"
)

// Source supplies per-worker health snapshots keyed by worker name.
type Source interface {
	Snapshot(ctx context.Context) (map[string]worker.Health, error)
}
