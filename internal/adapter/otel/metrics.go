package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Strob0t/ReviewMesh/internal/domain/routing"
	"github.com/Strob0t/ReviewMesh/internal/port/broadcast"
)

const meterName = "reviewmesh"

// Metrics holds all ReviewMesh metric instruments.
type Metrics struct {
	RunsStarted   metric.Int64Counter
	RunsCompleted metric.Int64Counter
	RunsFailed    metric.Int64Counter

	RoutingDecisions metric.Int64Counter
	RoutingFallbacks metric.Int64Counter
	RoutingCacheHits metric.Int64Counter
	RoutingCost      metric.Float64Histogram

	ApprovalRequests metric.Int64Counter
	ApprovalOutcomes metric.Int64Counter

	TasksDispatched metric.Int64Counter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	if m.RunsStarted, err = meter.Int64Counter("reviewmesh.runs.started",
		metric.WithDescription("Review runs started")); err != nil {
		return nil, err
	}
	if m.RunsCompleted, err = meter.Int64Counter("reviewmesh.runs.completed",
		metric.WithDescription("Review runs completed")); err != nil {
		return nil, err
	}
	if m.RunsFailed, err = meter.Int64Counter("reviewmesh.runs.failed",
		metric.WithDescription("Review runs failed")); err != nil {
		return nil, err
	}
	if m.RoutingDecisions, err = meter.Int64Counter("reviewmesh.routing.decisions",
		metric.WithDescription("Routing decisions produced")); err != nil {
		return nil, err
	}
	if m.RoutingFallbacks, err = meter.Int64Counter("reviewmesh.routing.fallbacks",
		metric.WithDescription("Routing decisions that fell back to the deterministic plan")); err != nil {
		return nil, err
	}
	if m.RoutingCacheHits, err = meter.Int64Counter("reviewmesh.routing.cache_hits",
		metric.WithDescription("Routing decisions served from the decision cache")); err != nil {
		return nil, err
	}
	if m.RoutingCost, err = meter.Float64Histogram("reviewmesh.routing.cost_usd",
		metric.WithDescription("Estimated cost per routing decision in USD")); err != nil {
		return nil, err
	}
	if m.ApprovalRequests, err = meter.Int64Counter("reviewmesh.approvals.requested",
		metric.WithDescription("Approval requests created")); err != nil {
		return nil, err
	}
	if m.ApprovalOutcomes, err = meter.Int64Counter("reviewmesh.approvals.resolved",
		metric.WithDescription("Approval requests resolved, by outcome")); err != nil {
		return nil, err
	}
	if m.TasksDispatched, err = meter.Int64Counter("reviewmesh.tasks.dispatched",
		metric.WithDescription("Worker tasks dispatched")); err != nil {
		return nil, err
	}

	return m, nil
}

// OnDecision is a routing observer that records decision metrics. Register it
// with RouterService.AddOnDecision.
func (m *Metrics) OnDecision(d routing.Decision) {
	ctx := context.Background()
	m.RoutingDecisions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("strategy", string(d.Plan.Strategy))))
	if d.FallbackUsed {
		m.RoutingFallbacks.Add(ctx, 1)
	}
	if d.CacheHit {
		m.RoutingCacheHits.Add(ctx, 1)
	}
	m.RoutingCost.Record(ctx, d.EstimatedCostUSD)
}

// EventObserver is a broadcast.Broadcaster that counts orchestration events
// before forwarding them. It lets the services stay free of metric plumbing.
type EventObserver struct {
	next broadcast.Broadcaster
	m    *Metrics
}

// NewEventObserver wraps next with event counting.
func NewEventObserver(next broadcast.Broadcaster, m *Metrics) *EventObserver {
	if next == nil {
		next = broadcast.Nop{}
	}
	return &EventObserver{next: next, m: m}
}

// BroadcastEvent counts the event and forwards it.
func (o *EventObserver) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	switch eventType {
	case broadcast.EventRunStarted:
		o.m.RunsStarted.Add(ctx, 1)
	case broadcast.EventRunCompleted:
		o.m.RunsCompleted.Add(ctx, 1)
	case broadcast.EventRunFailed:
		o.m.RunsFailed.Add(ctx, 1)
	case broadcast.EventTaskStarted:
		o.m.TasksDispatched.Add(ctx, 1)
	case broadcast.EventApprovalRequested:
		o.m.ApprovalRequests.Add(ctx, 1)
	case broadcast.EventApprovalGranted, broadcast.EventApprovalRejected,
		broadcast.EventApprovalOverridden, broadcast.EventApprovalCancelled,
		broadcast.EventApprovalExpired:
		outcome := eventType[len("approval."):]
		o.m.ApprovalOutcomes.Add(ctx, 1,
			metric.WithAttributes(attribute.String("outcome", outcome)))
	}
	o.next.BroadcastEvent(ctx, eventType, payload)
}
