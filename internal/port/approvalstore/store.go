// Package approvalstore defines the persistence port for approval requests
// and their audit trail.
package approvalstore

import (
	"context"

	"github.com/Strob0t/ReviewMesh/internal/domain/approval"
)

// Store persists approval requests and audit entries. The approval service
// is the single writer; stores never mutate requests on their own.
type Store interface {
	// SaveRequest inserts a new request.
	SaveRequest(ctx context.Context, r *approval.Request) error

	// UpdateRequest persists the current state of an existing request.
	UpdateRequest(ctx context.Context, r *approval.Request) error

	// GetRequest returns a request by ID, or approval.ErrNotFound.
	GetRequest(ctx context.Context, id string) (*approval.Request, error)

	// ListByStatus returns all requests in the given status.
	ListByStatus(ctx context.Context, status approval.Status) ([]approval.Request, error)

	// AppendAudit persists one audit entry.
	AppendAudit(ctx context.Context, e approval.AuditEntry) error

	// ListAuditByRequest returns the persisted audit entries for a request,
	// oldest first.
	ListAuditByRequest(ctx context.Context, requestID string) ([]approval.AuditEntry, error)
}
