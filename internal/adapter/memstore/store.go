// Package memstore implements the approval store in memory, for development
// hosts and tests that run without PostgreSQL.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/Strob0t/ReviewMesh/internal/domain/approval"
)

// Store keeps approval requests and audit entries in maps. All returned
// values are copies; the store never shares mutable state with callers.
type Store struct {
	mu       sync.Mutex
	requests map[string]approval.Request
	audit    map[string][]approval.AuditEntry
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		requests: make(map[string]approval.Request),
		audit:    make(map[string][]approval.AuditEntry),
	}
}

// SaveRequest inserts a new request.
func (s *Store) SaveRequest(_ context.Context, r *approval.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[r.ID] = copyRequest(r)
	return nil
}

// UpdateRequest persists the current state of an existing request.
func (s *Store) UpdateRequest(_ context.Context, r *approval.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[r.ID]; !ok {
		return approval.ErrNotFound
	}
	s.requests[r.ID] = copyRequest(r)
	return nil
}

// GetRequest returns a request by ID.
func (s *Store) GetRequest(_ context.Context, id string) (*approval.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, approval.ErrNotFound
	}
	cp := copyRequest(&r)
	return &cp, nil
}

// ListByStatus returns all requests in the given status, oldest first.
func (s *Store) ListByStatus(_ context.Context, status approval.Status) ([]approval.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []approval.Request
	for _, r := range s.requests {
		if r.Status == status {
			out = append(out, copyRequest(&r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// AppendAudit persists one audit entry.
func (s *Store) AppendAudit(_ context.Context, e approval.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit[e.RequestID] = append(s.audit[e.RequestID], e)
	return nil
}

// ListAuditByRequest returns the persisted audit entries for a request,
// oldest first.
func (s *Store) ListAuditByRequest(_ context.Context, requestID string) ([]approval.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]approval.AuditEntry(nil), s.audit[requestID]...), nil
}

func copyRequest(r *approval.Request) approval.Request {
	cp := *r
	cp.Approvals = append([]approval.Vote(nil), r.Approvals...)
	cp.Rejections = append([]approval.Vote(nil), r.Rejections...)
	if r.Metadata != nil {
		cp.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			cp.Metadata[k] = v
		}
	}
	return cp
}
