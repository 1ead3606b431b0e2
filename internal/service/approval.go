package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/ReviewMesh/internal/config"
	"github.com/Strob0t/ReviewMesh/internal/domain/approval"
	"github.com/Strob0t/ReviewMesh/internal/port/approvalstore"
	"github.com/Strob0t/ReviewMesh/internal/port/broadcast"
)

// ApprovalService implements dual authorization for critical operations:
// severity-derived quorums for approval, single-vote rejection, expiry
// sweeping and an append-only audit trail. The in-memory request map is
// authoritative for pending requests; the store persists state for restarts
// and offline inspection.
type ApprovalService struct {
	cfg   config.Approval
	store approvalstore.Store
	audit *approval.AuditLog
	bc    broadcast.Broadcaster

	mu       sync.Mutex
	requests map[string]*approval.Request
	waiters  map[string][]chan approval.Status

	now func() time.Time // for testing
}

// NewApprovalService creates an ApprovalService. store may be nil for hosts
// that run purely in memory; bc may be nil to disable event broadcasting.
func NewApprovalService(cfg config.Approval, store approvalstore.Store, bc broadcast.Broadcaster) *ApprovalService {
	if bc == nil {
		bc = broadcast.Nop{}
	}
	return &ApprovalService{
		cfg:      cfg,
		store:    store,
		audit:    approval.NewAuditLog(cfg.MaxAuditEntries),
		bc:       bc,
		requests: make(map[string]*approval.Request),
		waiters:  make(map[string][]chan approval.Status),
		now:      time.Now,
	}
}

// RequiresApproval reports whether the given operation must be gated behind
// dual authorization. An operation without a configured rule is not gated;
// a rule with conditions fires only when every condition matches the
// operation's metadata.
func (s *ApprovalService) RequiresApproval(operation string, metadata map[string]string) bool {
	rule, ok := s.cfg.Operations[operation]
	if !ok || !rule.RequiresApproval {
		return false
	}
	for _, c := range rule.Conditions {
		if !conditionMatches(c, metadata) {
			return false
		}
	}
	return true
}

func conditionMatches(c config.Condition, metadata map[string]string) bool {
	v := metadata[c.Field]
	if c.Equals != "" {
		return v == c.Equals
	}
	for _, candidate := range c.OneOf {
		if v == candidate {
			return true
		}
	}
	return len(c.OneOf) == 0
}

// CreateRequest opens a new approval request for the operation. The quorum
// comes from the operation rule when configured, otherwise from the
// operation's severity.
func (s *ApprovalService) CreateRequest(ctx context.Context, operation, requester string, metadata map[string]string) (*approval.Request, error) {
	severity := approval.SeverityFor(operation)
	rule := s.cfg.Operations[operation]

	quorum := severity.RequiredApprovers()
	if rule.MinApprovals > 0 {
		quorum = rule.MinApprovals
	}
	timeout := s.cfg.Timeout
	if rule.Timeout > 0 {
		timeout = rule.Timeout
	}

	now := s.now()
	req := &approval.Request{
		ID:                uuid.NewString(),
		Operation:         operation,
		Requester:         requester,
		Severity:          severity,
		Status:            approval.StatusPending,
		RequiredApprovers: quorum,
		Metadata:          metadata,
		CreatedAt:         now,
		ExpiresAt:         now.Add(timeout),
		UpdatedAt:         now,
	}

	s.mu.Lock()
	s.requests[req.ID] = req
	s.mu.Unlock()

	s.persistNew(ctx, req)
	s.record(ctx, approval.AuditCreated, req.ID, requester, map[string]string{
		"operation": operation,
		"severity":  string(severity),
		"quorum":    fmt.Sprintf("%d", quorum),
	})
	s.bc.BroadcastEvent(ctx, broadcast.EventApprovalRequested, snapshotOf(req))

	slog.Info("approval request created",
		"request_id", req.ID,
		"operation", operation,
		"requester", requester,
		"severity", severity,
		"required_approvers", quorum,
	)
	return snapshotOf(req), nil
}

// Approve records one approval vote. The request resolves to approved only
// once the quorum is met; until then it stays pending and further approvers
// may vote.
func (s *ApprovalService) Approve(ctx context.Context, id, approver, role, reason string) (*approval.Request, error) {
	s.mu.Lock()
	req, err := s.pendingLocked(id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if !s.cfg.AllowSelfApproval && approver == req.Requester {
		s.mu.Unlock()
		return nil, approval.ErrSelfApproval
	}
	if req.HasVoted(approver) {
		s.mu.Unlock()
		return nil, approval.ErrDuplicateApprover
	}
	if !s.authorizedRole(req.Operation, role) {
		s.mu.Unlock()
		return nil, approval.ErrUnauthorizedRole
	}

	now := s.now()
	req.Approvals = append(req.Approvals, approval.Vote{
		Approver: approver,
		Role:     role,
		At:       now,
		Reason:   reason,
	})
	req.UpdatedAt = now

	granted := req.QuorumMet()
	if granted {
		req.Status = approval.StatusApproved
		s.resolveLocked(id, approval.StatusApproved)
	}
	snap := snapshotOf(req)
	s.mu.Unlock()

	s.persistUpdate(ctx, snap)
	s.record(ctx, approval.AuditApproved, id, approver, map[string]string{
		"role":   role,
		"reason": reason,
	})
	if granted {
		s.record(ctx, approval.AuditGranted, id, approver, nil)
		s.bc.BroadcastEvent(ctx, broadcast.EventApprovalGranted, snap)
		slog.Info("approval quorum granted", "request_id", id, "approvals", len(snap.Approvals))
	} else {
		s.bc.BroadcastEvent(ctx, broadcast.EventApprovalVote, snap)
	}
	return snap, nil
}

// Reject records one rejection vote. A single rejection resolves the request
// immediately: blocking a dangerous operation must never wait for a quorum.
func (s *ApprovalService) Reject(ctx context.Context, id, approver, role, reason string) (*approval.Request, error) {
	s.mu.Lock()
	req, err := s.pendingLocked(id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if req.HasVoted(approver) {
		s.mu.Unlock()
		return nil, approval.ErrDuplicateApprover
	}
	if !s.authorizedRole(req.Operation, role) {
		s.mu.Unlock()
		return nil, approval.ErrUnauthorizedRole
	}

	now := s.now()
	req.Rejections = append(req.Rejections, approval.Vote{
		Approver: approver,
		Role:     role,
		At:       now,
		Reason:   reason,
	})
	req.Status = approval.StatusRejected
	req.UpdatedAt = now
	s.resolveLocked(id, approval.StatusRejected)
	snap := snapshotOf(req)
	s.mu.Unlock()

	s.persistUpdate(ctx, snap)
	s.record(ctx, approval.AuditRejected, id, approver, map[string]string{
		"role":   role,
		"reason": reason,
	})
	s.bc.BroadcastEvent(ctx, broadcast.EventApprovalRejected, snap)
	slog.Info("approval request rejected", "request_id", id, "approver", approver)
	return snap, nil
}

// EmergencyOverride bypasses the quorum. It is disabled unless explicitly
// configured and restricted to the configured override roles.
func (s *ApprovalService) EmergencyOverride(ctx context.Context, id, actor, role, reason string) (*approval.Request, error) {
	if !s.cfg.EmergencyOverride {
		return nil, approval.ErrOverrideDisabled
	}
	if !s.overrideRole(role) {
		return nil, approval.ErrUnauthorizedRole
	}

	s.mu.Lock()
	req, err := s.pendingLocked(id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	req.Status = approval.StatusEmergencyOverride
	req.UpdatedAt = s.now()
	s.resolveLocked(id, approval.StatusEmergencyOverride)
	snap := snapshotOf(req)
	s.mu.Unlock()

	s.persistUpdate(ctx, snap)
	s.record(ctx, approval.AuditOverridden, id, actor, map[string]string{
		"role":   role,
		"reason": reason,
	})
	s.bc.BroadcastEvent(ctx, broadcast.EventApprovalOverridden, snap)
	slog.Warn("approval request overridden", "request_id", id, "actor", actor, "role", role)
	return snap, nil
}

// Cancel withdraws a pending request. Only the requester or an administrator
// may cancel.
func (s *ApprovalService) Cancel(ctx context.Context, id, actor, role string) (*approval.Request, error) {
	s.mu.Lock()
	req, err := s.pendingLocked(id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if actor != req.Requester && !strings.Contains(strings.ToLower(role), "admin") {
		s.mu.Unlock()
		return nil, approval.ErrNotRequester
	}
	req.Status = approval.StatusCancelled
	req.UpdatedAt = s.now()
	s.resolveLocked(id, approval.StatusCancelled)
	snap := snapshotOf(req)
	s.mu.Unlock()

	s.persistUpdate(ctx, snap)
	s.record(ctx, approval.AuditCancelled, id, actor, nil)
	s.bc.BroadcastEvent(ctx, broadcast.EventApprovalCancelled, snap)
	return snap, nil
}

// Get returns a snapshot of the request.
func (s *ApprovalService) Get(ctx context.Context, id string) (*approval.Request, error) {
	s.mu.Lock()
	req, ok := s.requests[id]
	if ok {
		snap := snapshotOf(req)
		s.mu.Unlock()
		return snap, nil
	}
	s.mu.Unlock()

	if s.store != nil {
		return s.store.GetRequest(ctx, id)
	}
	return nil, approval.ErrNotFound
}

// ListPending returns all pending requests, oldest first.
func (s *ApprovalService) ListPending() []approval.Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []approval.Request
	for _, req := range s.requests {
		if req.Status == approval.StatusPending {
			out = append(out, *snapshotOf(req))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// AuditTrail returns the retained audit entries for a request, oldest first.
func (s *ApprovalService) AuditTrail(requestID string) []approval.AuditEntry {
	return s.audit.ByRequest(requestID)
}

// AuditLog returns the full retained audit trail, oldest first.
func (s *ApprovalService) AuditLog() []approval.AuditEntry {
	return s.audit.Entries()
}

// WaitForDecision blocks until the request resolves or the timeout elapses.
// It returns true only for approved and emergency-override outcomes; a
// timeout is a plain "not approved", never an error.
func (s *ApprovalService) WaitForDecision(ctx context.Context, id string, timeout time.Duration) (bool, error) {
	s.mu.Lock()
	req, ok := s.requests[id]
	if !ok {
		s.mu.Unlock()
		return false, approval.ErrNotFound
	}
	if req.Status.IsTerminal() {
		status := req.Status
		s.mu.Unlock()
		return decisionGranted(status), nil
	}
	ch := make(chan approval.Status, 1)
	s.waiters[id] = append(s.waiters[id], ch)
	s.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case status := <-ch:
		return decisionGranted(status), nil
	case <-timer.C:
		s.dropWaiter(id, ch)
		return false, nil
	case <-ctx.Done():
		s.dropWaiter(id, ch)
		return false, ctx.Err()
	}
}

// StartSweeper runs the expiry sweep until ctx is cancelled.
func (s *ApprovalService) StartSweeper(ctx context.Context) {
	interval := s.cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.SweepExpired(ctx)
			}
		}
	}()
}

// SweepExpired resolves every pending request whose expiry has passed.
func (s *ApprovalService) SweepExpired(ctx context.Context) int {
	now := s.now()

	s.mu.Lock()
	var expired []*approval.Request
	for _, req := range s.requests {
		if req.Status == approval.StatusPending && req.Expired(now) {
			req.Status = approval.StatusExpired
			req.UpdatedAt = now
			s.resolveLocked(req.ID, approval.StatusExpired)
			expired = append(expired, snapshotOf(req))
		}
	}
	s.mu.Unlock()

	for _, snap := range expired {
		s.persistUpdate(ctx, snap)
		s.record(ctx, approval.AuditExpired, snap.ID, "system", nil)
		s.bc.BroadcastEvent(ctx, broadcast.EventApprovalExpired, snap)
		slog.Info("approval request expired", "request_id", snap.ID, "operation", snap.Operation)
	}
	return len(expired)
}

// pendingLocked returns the request if it exists and is still actionable.
// A request found expired here is resolved on the spot.
func (s *ApprovalService) pendingLocked(id string) (*approval.Request, error) {
	req, ok := s.requests[id]
	if !ok {
		return nil, approval.ErrNotFound
	}
	if req.Status.IsTerminal() {
		return nil, approval.ErrTerminal
	}
	if req.Expired(s.now()) {
		req.Status = approval.StatusExpired
		req.UpdatedAt = s.now()
		s.resolveLocked(id, approval.StatusExpired)
		return nil, approval.ErrTerminal
	}
	return req, nil
}

// resolveLocked wakes every waiter for the request. Caller holds s.mu.
func (s *ApprovalService) resolveLocked(id string, status approval.Status) {
	for _, ch := range s.waiters[id] {
		ch <- status
	}
	delete(s.waiters, id)
}

func (s *ApprovalService) dropWaiter(id string, ch chan approval.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chans := s.waiters[id]
	for i, c := range chans {
		if c == ch {
			s.waiters[id] = append(chans[:i], chans[i+1:]...)
			break
		}
	}
}

// authorizedRole checks the approver's role against the operation rule's
// approver list, falling back to privileged-role matching when no list is
// configured.
func (s *ApprovalService) authorizedRole(operation, role string) bool {
	rule := s.cfg.Operations[operation]
	if len(rule.Approvers) == 0 {
		return approval.PrivilegedRole(role)
	}
	for _, allowed := range rule.Approvers {
		if strings.EqualFold(allowed, role) {
			return true
		}
	}
	return false
}

func (s *ApprovalService) overrideRole(role string) bool {
	if len(s.cfg.EmergencyOverrideRoles) == 0 {
		return approval.PrivilegedRole(role)
	}
	for _, allowed := range s.cfg.EmergencyOverrideRoles {
		if strings.EqualFold(allowed, role) {
			return true
		}
	}
	return false
}

func (s *ApprovalService) record(ctx context.Context, action, requestID, actor string, detail map[string]string) {
	e := approval.AuditEntry{
		ID:        uuid.NewString(),
		At:        s.now(),
		Action:    action,
		RequestID: requestID,
		Actor:     actor,
		Detail:    detail,
	}
	s.audit.Append(e)
	if s.store != nil {
		if err := s.store.AppendAudit(ctx, e); err != nil {
			slog.Warn("audit persistence failed", "request_id", requestID, "action", action, "error", err)
		}
	}
}

func (s *ApprovalService) persistNew(ctx context.Context, req *approval.Request) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveRequest(ctx, req); err != nil {
		slog.Warn("approval persistence failed", "request_id", req.ID, "error", err)
	}
}

func (s *ApprovalService) persistUpdate(ctx context.Context, req *approval.Request) {
	if s.store == nil {
		return
	}
	if err := s.store.UpdateRequest(ctx, req); err != nil {
		slog.Warn("approval persistence failed", "request_id", req.ID, "error", err)
	}
}

func decisionGranted(status approval.Status) bool {
	return status == approval.StatusApproved || status == approval.StatusEmergencyOverride
}

// snapshotOf deep-copies a request so callers never share the service's
// mutable state.
func snapshotOf(req *approval.Request) *approval.Request {
	snap := *req
	snap.Approvals = append([]approval.Vote(nil), req.Approvals...)
	snap.Rejections = append([]approval.Vote(nil), req.Rejections...)
	if req.Metadata != nil {
		snap.Metadata = make(map[string]string, len(req.Metadata))
		for k, v := range req.Metadata {
			snap.Metadata[k] = v
		}
	}
	return &snap
}
