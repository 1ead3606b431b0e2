package http

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/Strob0t/ReviewMesh/internal/adapter/otel"
	"github.com/Strob0t/ReviewMesh/internal/domain/approval"
	"github.com/Strob0t/ReviewMesh/internal/domain/trigger"
	"github.com/Strob0t/ReviewMesh/internal/port/registry"
	"github.com/Strob0t/ReviewMesh/internal/service"
)

const maxRequestBodySize = 1 << 20 // 1 MB

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Workflow  *service.WorkflowEngine
	Router    *service.RouterService
	Approvals *service.ApprovalService
	Workers   registry.Source

	// Now is injectable for tests; defaults to time.Now in NewHandlers.
	Now func() time.Time
}

// NewHandlers wires the handler set.
func NewHandlers(wf *service.WorkflowEngine, rt *service.RouterService, ap *service.ApprovalService, workers registry.Source) *Handlers {
	return &Handlers{
		Workflow:  wf,
		Router:    rt,
		Approvals: ap,
		Workers:   workers,
		Now:       time.Now,
	}
}

// ---------------------------------------------------------------------------
// Events and runs
// ---------------------------------------------------------------------------

type eventRequest struct {
	Type       string                `json:"type"`
	Branch     string                `json:"branch"`
	CommitHash string                `json:"commit_hash"`
	Author     string                `json:"author"`
	Message    string                `json:"message"`
	Files      []trigger.ChangedFile `json:"files"`
}

type eventAccepted struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// SubmitEvent accepts a repository event and starts a review run for it.
// Processing is asynchronous; the response carries the run ID to poll.
func (h *Handlers) SubmitEvent(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[eventRequest](w, r)
	if !ok {
		return
	}

	evType := trigger.EventType(req.Type)
	if evType == "" {
		evType = trigger.EventManual
	}
	switch evType {
	case trigger.EventPush, trigger.EventPullRequest, trigger.EventTag, trigger.EventManual:
	default:
		writeError(w, http.StatusBadRequest, "unknown event type")
		return
	}
	if !requireField(w, req.Branch, "branch") {
		return
	}

	ev := &trigger.Event{
		Type:       evType,
		Files:      req.Files,
		Branch:     req.Branch,
		CommitHash: req.CommitHash,
		Author:     req.Author,
		Message:    req.Message,
		ReceivedAt: h.Now().UTC(),
	}

	run := h.Workflow.NewRun(ev)

	// Detach from the request context: the run outlives the HTTP exchange.
	go func() {
		ctx, span := otel.StartRunSpan(context.WithoutCancel(r.Context()), run.ID, ev.Branch, string(ev.Type))
		defer span.End()
		h.Workflow.ProcessRun(ctx, run)
	}()

	writeJSON(w, http.StatusAccepted, eventAccepted{RunID: run.ID, Status: string(run.Status)})
}

// ListRuns returns every known run, newest first.
func (h *Handlers) ListRuns(w http.ResponseWriter, _ *http.Request) {
	runs := h.Workflow.ListRuns()
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Metrics.StartedAt.After(runs[j].Metrics.StartedAt)
	})
	writeJSON(w, http.StatusOK, runs)
}

// GetRun returns a single run by ID.
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.Workflow.GetRun(urlParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// ---------------------------------------------------------------------------
// Routing
// ---------------------------------------------------------------------------

// RoutingHistory returns the recent routing decisions, newest last.
func (h *Handlers) RoutingHistory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Router.History())
}

// ListWorkers returns the current worker health snapshot.
func (h *Handlers) ListWorkers(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Workers.Snapshot(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// ---------------------------------------------------------------------------
// Approvals
// ---------------------------------------------------------------------------

type voteRequest struct {
	Actor  string `json:"actor"`
	Role   string `json:"role"`
	Reason string `json:"reason"`
}

// ListApprovals returns all pending approval requests, oldest first.
func (h *Handlers) ListApprovals(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Approvals.ListPending())
}

// GetApproval returns a single approval request by ID.
func (h *Handlers) GetApproval(w http.ResponseWriter, r *http.Request) {
	req, err := h.Approvals.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeApprovalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// ApproveRequest records one approval vote.
func (h *Handlers) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	h.vote(w, r, h.Approvals.Approve)
}

// RejectRequest rejects the approval request.
func (h *Handlers) RejectRequest(w http.ResponseWriter, r *http.Request) {
	h.vote(w, r, h.Approvals.Reject)
}

// OverrideRequest grants the request through the emergency override path.
func (h *Handlers) OverrideRequest(w http.ResponseWriter, r *http.Request) {
	h.vote(w, r, h.Approvals.EmergencyOverride)
}

// CancelRequest cancels a pending approval request.
func (h *Handlers) CancelRequest(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[voteRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.Actor, "actor") {
		return
	}
	out, err := h.Approvals.Cancel(r.Context(), urlParam(r, "id"), req.Actor, req.Role)
	if err != nil {
		writeApprovalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ApprovalAudit returns the audit trail for one approval request.
func (h *Handlers) ApprovalAudit(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Approvals.AuditTrail(urlParam(r, "id")))
}

type voteFunc func(ctx context.Context, id, actor, role, reason string) (*approval.Request, error)

func (h *Handlers) vote(w http.ResponseWriter, r *http.Request, fn voteFunc) {
	req, ok := readJSON[voteRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.Actor, "actor") || !requireField(w, req.Role, "role") {
		return
	}
	out, err := fn(r.Context(), urlParam(r, "id"), req.Actor, req.Role, req.Reason)
	if err != nil {
		writeApprovalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

type healthResponse struct {
	Status           string `json:"status"`
	Runs             int    `json:"runs"`
	PendingApprovals int    `json:"pending_approvals"`
}

// Healthz reports liveness plus a couple of cheap gauges.
func (h *Handlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:           "ok",
		Runs:             len(h.Workflow.ListRuns()),
		PendingApprovals: len(h.Approvals.ListPending()),
	})
}
