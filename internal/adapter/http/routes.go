package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/ReviewMesh/internal/adapter/ws"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers, hub *ws.Hub) {
	r.Get("/healthz", h.Healthz)
	r.Get("/ws", hub.HandleWS)

	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Trigger events and runs
		r.Post("/events", h.SubmitEvent)
		r.Get("/runs", h.ListRuns)
		r.Get("/runs/{id}", h.GetRun)

		// Routing
		r.Get("/routing/history", h.RoutingHistory)
		r.Get("/workers", h.ListWorkers)

		// Approvals
		r.Get("/approvals", h.ListApprovals)
		r.Get("/approvals/{id}", h.GetApproval)
		r.Post("/approvals/{id}/approve", h.ApproveRequest)
		r.Post("/approvals/{id}/reject", h.RejectRequest)
		r.Post("/approvals/{id}/override", h.OverrideRequest)
		r.Post("/approvals/{id}/cancel", h.CancelRequest)
		r.Get("/approvals/{id}/audit", h.ApprovalAudit)
	})
}
