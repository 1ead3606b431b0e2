package service

import (
	"context"
	"errors"
	"testing"

	"github.com/Strob0t/ReviewMesh/internal/config"
	"github.com/Strob0t/ReviewMesh/internal/domain/routing"
	"github.com/Strob0t/ReviewMesh/internal/domain/trigger"
	"github.com/Strob0t/ReviewMesh/internal/domain/worker"
)

func TestRouteAlwaysSelectsWorker(t *testing.T) {
	cfg := config.Defaults().Router

	contexts := map[string]RouteContext{
		"no workers known": {
			Event: testEvent("feature/x", "add widget", 3, ".go"),
		},
		"all workers unreachable": {
			Event: testEvent("feature/x", "add widget", 3, ".go"),
			Workers: map[string]worker.Health{
				worker.Security: {Name: worker.Security, Status: worker.StatusUnreachable},
			},
		},
		"empty changeset": {
			Event:   &trigger.Event{Type: trigger.EventManual, Branch: "feature/x"},
			Workers: healthyWorkers(worker.Quality),
		},
		"nil event": {
			Workers: healthyWorkers(worker.Quality),
		},
	}

	for name, rc := range contexts {
		t.Run(name, func(t *testing.T) {
			svc := NewRouterService(cfg, nil, nil)
			d := svc.Route(context.Background(), rc)
			if err := d.Plan.Validate(); err != nil {
				t.Fatalf("plan invalid: %v", err)
			}
			if len(d.Plan.Workers()) < 1 {
				t.Fatalf("plan has no workers")
			}
		})
	}
}

func TestRouteCacheHit(t *testing.T) {
	cfg := config.Defaults().Router
	svc := NewRouterService(cfg, nil, newMemCache())

	rc := RouteContext{
		Event:   testEvent("feature/x", "add widget", 3, ".go"),
		Workers: healthyWorkers(worker.Security, worker.Quality),
	}

	first := svc.Route(context.Background(), rc)
	if first.CacheHit {
		t.Fatalf("first call must not be a cache hit")
	}

	second := svc.Route(context.Background(), rc)
	if !second.CacheHit {
		t.Fatalf("second identical call must hit the cache")
	}
	if second.Plan.Primary != first.Plan.Primary || second.Plan.Strategy != first.Plan.Strategy {
		t.Fatalf("cached plan differs: %+v vs %+v", second.Plan, first.Plan)
	}
}

func TestHighLoadForcesSequential(t *testing.T) {
	cfg := config.Defaults().Router
	svc := NewRouterService(cfg, nil, nil)

	// Three workers would normally run in parallel.
	rc := RouteContext{
		Event:     testEvent("feature/x", "update docs and code", 6, ".go", ".ts", ".md"),
		Workers:   healthyWorkers(worker.Security, worker.Quality, worker.Documentation),
		TotalLoad: 0.95,
	}

	d := svc.Route(context.Background(), rc)
	if len(d.Plan.Workers()) < 3 {
		t.Fatalf("expected 3 workers, got %v", d.Plan.Workers())
	}
	if d.Plan.Strategy != routing.StrategySequential {
		t.Fatalf("load %.2f must force sequential, got %s", rc.TotalLoad, d.Plan.Strategy)
	}
}

func TestPlanTruncatedToMaxConcurrent(t *testing.T) {
	cfg := config.Defaults().Router
	cfg.MaxConcurrentWorkers = 2
	svc := NewRouterService(cfg, nil, nil)

	// Code + scripts + docs + large changeset selects all four workers.
	rc := RouteContext{
		Event:   testEvent("feature/x", "big refactor", 18, ".go", ".ts", ".md"),
		Workers: healthyWorkers(worker.Security, worker.Quality, worker.Architecture, worker.Documentation),
	}

	d := svc.Route(context.Background(), rc)
	if got := len(d.Plan.Workers()); got > 2 {
		t.Fatalf("plan has %d workers, limit is 2", got)
	}
	if d.Plan.EstimatedMinutes != 2*cfg.BaseTaskMinutes {
		t.Fatalf("estimated minutes = %d, want %d", d.Plan.EstimatedMinutes, 2*cfg.BaseTaskMinutes)
	}
}

func TestNilEventYieldsEmergencyDecision(t *testing.T) {
	svc := NewRouterService(config.Defaults().Router, nil, nil)

	d := svc.Route(context.Background(), RouteContext{Workers: healthyWorkers(worker.Quality)})
	if d.Confidence != emergencyConfidence {
		t.Fatalf("confidence = %.2f, want %.2f", d.Confidence, emergencyConfidence)
	}
	if !d.FallbackUsed {
		t.Fatalf("emergency decision must flag fallback")
	}
	if err := d.Plan.Validate(); err != nil {
		t.Fatalf("plan invalid: %v", err)
	}
}

func TestDocsOnlyChangesetRoutesToDocumentation(t *testing.T) {
	svc := NewRouterService(config.Defaults().Router, nil, nil)

	rc := RouteContext{
		Event:   testEvent("feature/readme", "update readme", 1, ".md"),
		Workers: healthyWorkers(worker.Security, worker.Quality, worker.Architecture, worker.Documentation),
	}

	d := svc.Route(context.Background(), rc)
	if d.Plan.Primary != worker.Documentation || len(d.Plan.Supporting) != 0 {
		t.Fatalf("want documentation only, got %v", d.Plan.Workers())
	}
	if d.Plan.Strategy != routing.StrategySequential {
		t.Fatalf("single worker must be sequential, got %s", d.Plan.Strategy)
	}
	if d.Plan.EstimatedMinutes != 5 {
		t.Fatalf("estimated minutes = %d, want 5", d.Plan.EstimatedMinutes)
	}
	if d.Plan.Confidence != deterministicConfidence {
		t.Fatalf("confidence = %.2f, want %.2f", d.Plan.Confidence, deterministicConfidence)
	}
}

func TestHighRiskChangesetUsesReasoningPath(t *testing.T) {
	llm := &fakeCaller{decision: scriptedDecision(0.9, map[string]any{
		"workers":           []string{"security", "quality"},
		"strategy":          "parallel",
		"estimated_minutes": 12,
	})}
	svc := NewRouterService(config.Defaults().Router, testExecutor(llm), nil)

	rc := RouteContext{
		Event:   testEvent("feature/tokens", "security hardening", 25, ".go"),
		Workers: healthyWorkers(worker.Security, worker.Quality),
	}

	d := svc.Route(context.Background(), rc)
	if llm.callCount() != 1 {
		t.Fatalf("reasoning backend called %d times, want 1", llm.callCount())
	}
	if d.FallbackUsed {
		t.Fatalf("unexpected fallback: %+v", d)
	}
	if !d.ReasoningUsed {
		t.Fatalf("decision must flag the reasoning path")
	}
	if d.Plan.Primary != worker.Security {
		t.Fatalf("primary = %s, want security", d.Plan.Primary)
	}
	if d.Plan.EstimatedMinutes != 12 {
		t.Fatalf("estimated minutes = %d, want 12", d.Plan.EstimatedMinutes)
	}
}

func TestReasoningFailureFallsBackToDeterministic(t *testing.T) {
	llm := &fakeCaller{err: errors.New("backend down")}
	svc := NewRouterService(config.Defaults().Router, testExecutor(llm), nil)

	rc := RouteContext{
		Event:   testEvent("feature/tokens", "security hardening", 25, ".go"),
		Workers: healthyWorkers(worker.Security, worker.Quality),
	}

	d := svc.Route(context.Background(), rc)
	if !d.FallbackUsed {
		t.Fatalf("expected fallback decision")
	}
	if d.Plan.Confidence != fallbackConfidence {
		t.Fatalf("confidence = %.2f, want %.2f", d.Plan.Confidence, fallbackConfidence)
	}
	if err := d.Plan.Validate(); err != nil {
		t.Fatalf("fallback plan invalid: %v", err)
	}
}

func TestReasoningPayloadWithUnknownWorkersFallsBack(t *testing.T) {
	llm := &fakeCaller{decision: scriptedDecision(0.9, map[string]any{
		"workers":  []string{"phantom", "nonexistent"},
		"strategy": "parallel",
	})}
	svc := NewRouterService(config.Defaults().Router, testExecutor(llm), nil)

	rc := RouteContext{
		Event:   testEvent("feature/tokens", "security hardening", 25, ".go"),
		Workers: healthyWorkers(worker.Security, worker.Quality),
	}

	d := svc.Route(context.Background(), rc)
	if !d.FallbackUsed {
		t.Fatalf("payload naming no known workers must fall back")
	}
	if d.ReasoningUsed {
		t.Fatalf("fallback decision must not flag the reasoning path")
	}
	if err := d.Plan.Validate(); err != nil {
		t.Fatalf("fallback plan invalid: %v", err)
	}
}

func TestKnownWorkersPreservesOrderAndDedupes(t *testing.T) {
	registered := healthyWorkers(worker.Security, worker.Quality, worker.Documentation)

	got := knownWorkers([]string{worker.Quality, "phantom", worker.Security, worker.Quality}, registered)
	want := []string{worker.Quality, worker.Security}
	if len(got) != len(want) {
		t.Fatalf("knownWorkers = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("knownWorkers = %v, want %v", got, want)
		}
	}

	if out := knownWorkers([]string{"phantom"}, registered); len(out) != 0 {
		t.Fatalf("unknown-only list must filter to empty, got %v", out)
	}
}

func TestAvailableCountExcludesUnreachable(t *testing.T) {
	m := map[string]worker.Health{
		worker.Security:      {Name: worker.Security, Status: worker.StatusHealthy},
		worker.Quality:       {Name: worker.Quality, Status: worker.StatusDegraded},
		worker.Documentation: {Name: worker.Documentation, Status: worker.StatusUnreachable},
	}
	if got := availableCount(m); got != 2 {
		t.Fatalf("availableCount = %d, want 2 (degraded still counts)", got)
	}
	if got := availableCount(nil); got != 0 {
		t.Fatalf("availableCount(nil) = %d, want 0", got)
	}
}

func TestOptimizeOrdersWorkersByScore(t *testing.T) {
	svc := NewRouterService(config.Defaults().Router, nil, nil)

	workers := map[string]worker.Health{
		worker.Security: {Name: worker.Security, Status: worker.StatusHealthy, LoadAverage: 0.9, UptimePercent: 70},
		worker.Quality:  {Name: worker.Quality, Status: worker.StatusHealthy, LoadAverage: 0.1, UptimePercent: 99},
	}
	rc := RouteContext{
		Event:   testEvent("feature/x", "tweak", 2, ".go", ".ts"),
		Workers: workers,
	}

	d := svc.Route(context.Background(), rc)
	if d.Plan.Primary != worker.Quality {
		t.Fatalf("primary = %s, want quality (less loaded)", d.Plan.Primary)
	}
	if len(d.Scores) < 2 || d.Scores[0].Score < d.Scores[1].Score {
		t.Fatalf("scores not descending: %+v", d.Scores)
	}
}

func TestDecisionHistoryIsBounded(t *testing.T) {
	svc := NewRouterService(config.Defaults().Router, nil, nil)

	rc := RouteContext{
		Event:   testEvent("feature/x", "tweak", 1, ".go"),
		Workers: healthyWorkers(worker.Security),
	}
	for i := 0; i < historyLimit+20; i++ {
		svc.Route(context.Background(), rc)
	}
	if got := len(svc.History()); got != historyLimit {
		t.Fatalf("history length = %d, want %d", got, historyLimit)
	}
}
