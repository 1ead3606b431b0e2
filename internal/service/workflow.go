package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Strob0t/ReviewMesh/internal/config"
	"github.com/Strob0t/ReviewMesh/internal/domain/approval"
	"github.com/Strob0t/ReviewMesh/internal/domain/review"
	"github.com/Strob0t/ReviewMesh/internal/domain/routing"
	"github.com/Strob0t/ReviewMesh/internal/domain/trigger"
	"github.com/Strob0t/ReviewMesh/internal/domain/worker"
	"github.com/Strob0t/ReviewMesh/internal/domain/workflow"
	"github.com/Strob0t/ReviewMesh/internal/port/broadcast"
	"github.com/Strob0t/ReviewMesh/internal/port/reasoning"
	"github.com/Strob0t/ReviewMesh/internal/port/registry"
	"github.com/Strob0t/ReviewMesh/internal/port/workerexec"
)

// node is one phase of the workflow graph. Every node runs the same
// three-step protocol: validate input state, execute, validate output state.
// A failure at any step fails the run.
type node struct {
	phase          workflow.Phase
	validateInput  func(r *workflow.Run) error
	execute        func(ctx context.Context, r *workflow.Run) error
	validateOutput func(r *workflow.Run) error
}

// nodeStats aggregates per-phase execution counters.
type nodeStats struct {
	Executions    int           `json:"executions"`
	Successes     int           `json:"successes"`
	Failures      int           `json:"failures"`
	TotalDuration time.Duration `json:"total_duration"`
}

// AvgDuration returns the mean execution time of this node.
func (s nodeStats) AvgDuration() time.Duration {
	if s.Executions == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(s.Executions)
}

// WorkflowEngine drives a review run through its five phases. Runs are kept
// in an in-memory registry for the API surface; the engine is safe for
// concurrent runs.
type WorkflowEngine struct {
	cfg       config.Workflow
	router    *RouterService
	executor  workerexec.Executor
	workers   registry.Source
	approvals *ApprovalService
	decider   *DecisionExecutor
	bc        broadcast.Broadcaster

	mu    sync.Mutex
	runs  map[string]*workflow.Run
	stats map[workflow.Phase]*nodeStats

	now func() time.Time // for testing
}

// NewWorkflowEngine creates a WorkflowEngine. approvals may be nil to run
// ungated, decider may be nil to disable conflict arbitration, bc may be
// nil to disable event broadcasting.
func NewWorkflowEngine(cfg config.Workflow, router *RouterService, executor workerexec.Executor, workers registry.Source, approvals *ApprovalService, decider *DecisionExecutor, bc broadcast.Broadcaster) *WorkflowEngine {
	if bc == nil {
		bc = broadcast.Nop{}
	}
	return &WorkflowEngine{
		cfg:       cfg,
		router:    router,
		executor:  executor,
		workers:   workers,
		approvals: approvals,
		decider:   decider,
		bc:        bc,
		runs:      make(map[string]*workflow.Run),
		stats:     make(map[workflow.Phase]*nodeStats),
		now:       time.Now,
	}
}

// GetRun returns a snapshot of a run by ID.
func (e *WorkflowEngine) GetRun(id string) (*workflow.Run, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.runs[id]
	if !ok {
		return nil, false
	}
	return runSnapshot(r), true
}

// ListRuns returns snapshots of every known run.
func (e *WorkflowEngine) ListRuns() []*workflow.Run {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*workflow.Run, 0, len(e.runs))
	for _, r := range e.runs {
		out = append(out, runSnapshot(r))
	}
	return out
}

// NodeStats returns a copy of the per-phase counters.
func (e *WorkflowEngine) NodeStats() map[workflow.Phase]nodeStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[workflow.Phase]nodeStats, len(e.stats))
	for ph, s := range e.stats {
		out[ph] = *s
	}
	return out
}

// ProcessEvent runs the full review workflow for one trigger event. The
// returned result is terminal: completed with a recommendation, or failed
// with the accumulated errors. The error return covers only unusable input.
func (e *WorkflowEngine) ProcessEvent(ctx context.Context, ev *trigger.Event) (*workflow.Result, error) {
	if ev == nil {
		return nil, fmt.Errorf("nil trigger event")
	}
	return e.ProcessRun(ctx, e.NewRun(ev)), nil
}

// ProcessRun drives a registered run through every phase to a terminal
// status. The HTTP surface uses it to process asynchronously after the run
// ID has been handed back to the caller.
func (e *WorkflowEngine) ProcessRun(ctx context.Context, run *workflow.Run) *workflow.Result {
	ev := run.Event
	e.mu.Lock()
	run.Status = workflow.StatusRunning
	e.mu.Unlock()

	slog.Info("review run started",
		"run_id", run.ID,
		"event_type", ev.Type,
		"branch", ev.Branch,
		"files", ev.FileCount(),
	)
	e.bc.BroadcastEvent(ctx, broadcast.EventRunStarted, runSnapshot(run))

	for _, n := range e.nodes() {
		if err := e.runNode(ctx, n, run); err != nil {
			e.failRun(ctx, run, n.phase, err)
			return e.resultOf(run)
		}
	}

	e.mu.Lock()
	run.Status = workflow.StatusCompleted
	run.Metrics.EndedAt = e.now()
	run.Metrics.Duration = run.Metrics.EndedAt.Sub(run.Metrics.StartedAt)
	e.mu.Unlock()

	slog.Info("review run completed",
		"run_id", run.ID,
		"recommendation", run.Recommendation,
		"duration", run.Metrics.Duration,
	)
	e.bc.BroadcastEvent(ctx, broadcast.EventRunCompleted, runSnapshot(run))
	return e.resultOf(run)
}

// NewRun creates and registers a run for the event. The run starts before
// any phase: its Phase field names the last phase that completed.
func (e *WorkflowEngine) NewRun(ev *trigger.Event) *workflow.Run {
	run := &workflow.Run{
		ID:     uuid.NewString(),
		Event:  ev,
		Status: workflow.StatusPending,
		Metrics: workflow.Metrics{
			StartedAt: e.now(),
		},
	}
	e.mu.Lock()
	e.runs[run.ID] = run
	e.mu.Unlock()
	return run
}

// RunPhase executes a single phase against the run, enforcing the phase
// ordering precondition. Failures are recorded on the run's error list.
func (e *WorkflowEngine) RunPhase(ctx context.Context, run *workflow.Run, phase workflow.Phase) error {
	for _, n := range e.nodes() {
		if n.phase != phase {
			continue
		}
		if err := e.runNode(ctx, n, run); err != nil {
			e.mu.Lock()
			run.RecordError(phase, err.Error(), e.now())
			e.mu.Unlock()
			return err
		}
		return nil
	}
	return fmt.Errorf("unknown phase %q", phase)
}

// nodes returns the workflow graph in execution order.
func (e *WorkflowEngine) nodes() []node {
	return []node{
		{
			phase:          workflow.PhaseInitialization,
			validateInput:  requireEvent,
			execute:        e.initialize,
			validateOutput: requireEvent,
		},
		{
			phase:         workflow.PhaseRouting,
			validateInput: requireEvent,
			execute:       e.route,
			validateOutput: func(r *workflow.Run) error {
				if r.Plan == nil || len(r.SelectedWorkers) == 0 {
					return fmt.Errorf("routing produced no workers")
				}
				return nil
			},
		},
		{
			phase: workflow.PhaseExecution,
			validateInput: func(r *workflow.Run) error {
				if r.Plan == nil {
					return fmt.Errorf("no routing plan")
				}
				return nil
			},
			execute: e.executeTasks,
			validateOutput: func(r *workflow.Run) error {
				if !workflow.AllTerminal(r.Tasks) {
					return fmt.Errorf("execution left non-terminal tasks")
				}
				return nil
			},
		},
		{
			phase: workflow.PhaseSynthesis,
			validateInput: func(r *workflow.Run) error {
				if len(r.Results) == 0 {
					return fmt.Errorf("no worker results to synthesize")
				}
				return nil
			},
			execute: e.synthesize,
			validateOutput: func(r *workflow.Run) error {
				if !r.Recommendation.Valid() {
					return fmt.Errorf("synthesis produced no recommendation")
				}
				return nil
			},
		},
		{
			phase:         workflow.PhaseCompletion,
			validateInput: requireEvent,
			execute:       e.complete,
			validateOutput: func(*workflow.Run) error {
				return nil
			},
		},
	}
}

func requireEvent(r *workflow.Run) error {
	if r.Event == nil {
		return fmt.Errorf("run has no trigger event")
	}
	return nil
}

// runNode executes one node's three-step protocol and updates per-phase
// counters. The run's Phase advances only when the node succeeds, so a
// phase invoked out of order fails its precondition.
func (e *WorkflowEngine) runNode(ctx context.Context, n node, run *workflow.Run) error {
	start := e.now()

	e.mu.Lock()
	st, ok := e.stats[n.phase]
	if !ok {
		st = &nodeStats{}
		e.stats[n.phase] = st
	}
	st.Executions++
	completed := run.Phase
	e.mu.Unlock()

	e.bc.BroadcastEvent(ctx, broadcast.EventRunPhase, map[string]any{"run_id": run.ID, "phase": n.phase})

	var err error
	if completed.Index() != n.phase.Index()-1 {
		err = fmt.Errorf("phase %s cannot run: last completed phase is %q", n.phase, completed)
	}
	if err == nil {
		err = n.validateInput(run)
	}
	if err == nil {
		err = n.execute(ctx, run)
	}
	if err == nil {
		err = n.validateOutput(run)
	}

	e.mu.Lock()
	st.TotalDuration += e.now().Sub(start)
	if err != nil {
		st.Failures++
	} else {
		st.Successes++
		run.Phase = n.phase
	}
	e.mu.Unlock()
	return err
}

func (e *WorkflowEngine) failRun(ctx context.Context, run *workflow.Run, phase workflow.Phase, err error) {
	e.mu.Lock()
	run.RecordError(phase, err.Error(), e.now())
	run.Status = workflow.StatusFailed
	run.Metrics.EndedAt = e.now()
	run.Metrics.Duration = run.Metrics.EndedAt.Sub(run.Metrics.StartedAt)
	snap := runSnapshot(run)
	e.mu.Unlock()

	slog.Error("review run failed", "run_id", run.ID, "phase", phase, "error", err)
	e.bc.BroadcastEvent(ctx, broadcast.EventRunFailed, snap)
}

// initialize validates the event and worker availability, then applies the
// approval gate for production-branch runs.
func (e *WorkflowEngine) initialize(ctx context.Context, run *workflow.Run) error {
	ev := run.Event
	if ev.FileCount() == 0 && ev.Type != trigger.EventManual {
		return fmt.Errorf("event carries no changed files")
	}

	if e.workers != nil {
		snapshot, err := e.workers.Snapshot(ctx)
		if err != nil {
			return fmt.Errorf("worker registry: %w", err)
		}
		if len(snapshot) == 0 {
			return fmt.Errorf("no workers registered")
		}
	}

	approved, reason, err := e.evaluateGate(ctx, run)
	if err != nil {
		return err
	}
	if !approved {
		return fmt.Errorf("approval gate: %s", reason)
	}
	return nil
}

// evaluateGate decides whether this run may proceed. Test-environment
// branches and (when configured) low-risk runs pass without a request;
// production-branch runs block on dual authorization.
func (e *WorkflowEngine) evaluateGate(ctx context.Context, run *workflow.Run) (bool, string, error) {
	if e.approvals == nil {
		return true, "approval subsystem disabled", nil
	}
	ev := run.Event

	for _, prefix := range e.cfg.TestEnvironments {
		if strings.HasPrefix(ev.Branch, prefix) {
			return true, "test environment branch", nil
		}
	}

	production := false
	for _, b := range e.cfg.ProductionBranches {
		if ev.Branch == b || strings.HasPrefix(ev.Branch, b) {
			production = true
			break
		}
	}
	if !production {
		return true, "non-production branch", nil
	}

	req := routing.Analyze(ev)
	if e.cfg.AutoApproveLowRisk && req.Risk == routing.LevelLow {
		return true, "low risk on auto-approve policy", nil
	}

	metadata := map[string]string{
		"run_id":  run.ID,
		"branch":  ev.Branch,
		"author":  ev.Author,
		"risk":    string(req.Risk),
		"commit":  ev.CommitHash,
		"message": ev.Message,
	}
	if !e.approvals.RequiresApproval(approval.OpProductionMerge, metadata) {
		return true, "operation not gated by policy", nil
	}

	request, err := e.approvals.CreateRequest(ctx, approval.OpProductionMerge, ev.Author, metadata)
	if err != nil {
		return false, "", fmt.Errorf("creating approval request: %w", err)
	}

	slog.Info("run blocked on approval", "run_id", run.ID, "request_id", request.ID)
	granted, err := e.approvals.WaitForDecision(ctx, request.ID, time.Until(request.ExpiresAt))
	if err != nil {
		return false, "", fmt.Errorf("awaiting approval: %w", err)
	}
	if !granted {
		return false, fmt.Sprintf("request %s was not approved", request.ID), nil
	}
	return true, "approved", nil
}

// route asks the routing engine for a plan and freezes the worker selection.
func (e *WorkflowEngine) route(ctx context.Context, run *workflow.Run) error {
	rc := RouteContext{Event: run.Event}
	if e.workers != nil {
		snapshot, err := e.workers.Snapshot(ctx)
		if err != nil {
			slog.Warn("worker registry unavailable, routing blind", "run_id", run.ID, "error", err)
		} else {
			rc.Workers = snapshot
			rc.TotalLoad = totalLoad(snapshot)
		}
	}

	decision := e.router.Route(ctx, rc)

	e.mu.Lock()
	run.Decision = &decision
	run.Plan = &decision.Plan
	run.SelectedWorkers = decision.Plan.Workers()
	if decision.FallbackUsed {
		run.Metrics.FallbacksUsed++
	} else if decision.ReasoningUsed && !decision.CacheHit {
		run.Metrics.ReasoningCalls++
	}
	e.mu.Unlock()
	return nil
}

// executeTasks builds the task list for the plan's strategy and dispatches it.
func (e *WorkflowEngine) executeTasks(ctx context.Context, run *workflow.Run) error {
	tasks := e.buildTasks(run)

	e.mu.Lock()
	run.Tasks = tasks
	run.Results = make(map[string]*review.WorkerResult, len(tasks))
	e.mu.Unlock()

	switch run.Plan.Strategy {
	case routing.StrategyParallel:
		e.dispatchParallel(ctx, run)
	case routing.StrategyHybrid:
		e.dispatchHybrid(ctx, run)
	default:
		e.dispatchSequential(ctx, run)
	}
	return nil
}

// buildTasks derives the task dependency shape from the strategy: parallel
// tasks are all independent, sequential tasks chain on the previous worker,
// hybrid keeps the first two independent and hangs the rest off the primary.
func (e *WorkflowEngine) buildTasks(run *workflow.Run) []workflow.Task {
	workers := run.Plan.Workers()
	scope := run.Event.Paths()

	tasks := make([]workflow.Task, len(workers))
	for i, name := range workers {
		tasks[i] = workflow.Task{
			ID:     uuid.NewString(),
			Worker: name,
			Scope:  scope,
			Status: workflow.TaskPending,
		}
		switch run.Plan.Strategy {
		case routing.StrategySequential:
			if i > 0 {
				tasks[i].DependsOn = []string{workers[i-1]}
			}
		case routing.StrategyHybrid:
			if i >= 2 {
				tasks[i].DependsOn = []string{run.Plan.Primary}
			}
		}
	}
	return tasks
}

// dispatchParallel runs every task concurrently and awaits all of them.
// Individual failures are recorded on the task, never propagated, so one
// slow or broken worker cannot cancel its siblings.
func (e *WorkflowEngine) dispatchParallel(ctx context.Context, run *workflow.Run) {
	var g errgroup.Group
	for i := range run.Tasks {
		g.Go(func() error {
			e.runTask(ctx, run, i)
			return nil
		})
	}
	_ = g.Wait() // tasks record their own failures
}

// dispatchSequential runs tasks in listed order and halts on the first
// failure; the remaining tasks are marked failed so the run never reports a
// pending task after execution.
func (e *WorkflowEngine) dispatchSequential(ctx context.Context, run *workflow.Run) {
	for i := range run.Tasks {
		if i > 0 && !workflow.DepsCompleted(run.Tasks, i) {
			e.skipRemaining(run, i, "not dispatched: earlier task failed")
			return
		}
		e.runTask(ctx, run, i)
	}
}

// dispatchHybrid runs the independent tasks concurrently, then walks the
// dependent tasks in order, running each only once its dependencies
// completed.
func (e *WorkflowEngine) dispatchHybrid(ctx context.Context, run *workflow.Run) {
	var g errgroup.Group
	for _, i := range workflow.IndependentTasks(run.Tasks) {
		g.Go(func() error {
			e.runTask(ctx, run, i)
			return nil
		})
	}
	_ = g.Wait() // tasks record their own failures

	for _, i := range workflow.DependentTasks(run.Tasks) {
		if !workflow.DepsCompleted(run.Tasks, i) {
			e.markTaskFailed(run, i, "not dispatched: dependency failed")
			continue
		}
		e.runTask(ctx, run, i)
	}
}

// runTask executes one worker task under the configured timeout and records
// the typed result. Task state transitions happen under the engine lock.
func (e *WorkflowEngine) runTask(ctx context.Context, run *workflow.Run, i int) {
	e.mu.Lock()
	run.Tasks[i].Status = workflow.TaskRunning
	run.Tasks[i].StartedAt = e.now()
	task := run.Tasks[i]
	e.mu.Unlock()

	e.bc.BroadcastEvent(ctx, broadcast.EventTaskStarted, map[string]any{
		"run_id": run.ID, "task_id": task.ID, "worker": task.Worker,
	})

	taskCtx := ctx
	if e.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, e.cfg.TaskTimeout)
		defer cancel()
	}

	result, err := e.executor.Execute(taskCtx, &task)

	e.mu.Lock()
	run.Tasks[i].EndedAt = e.now()
	if err != nil {
		run.Tasks[i].Status = workflow.TaskFailed
		run.Tasks[i].Error = err.Error()
		run.Results[task.Worker] = &review.WorkerResult{
			Worker:   task.Worker,
			Status:   "failed",
			Summary:  err.Error(),
			Duration: run.Tasks[i].EndedAt.Sub(run.Tasks[i].StartedAt),
		}
		run.RecordError(workflow.PhaseExecution,
			fmt.Sprintf("worker %s failed: %v", task.Worker, err), e.now())
	} else {
		run.Tasks[i].Status = workflow.TaskCompleted
		if result.Duration == 0 {
			result.Duration = run.Tasks[i].EndedAt.Sub(run.Tasks[i].StartedAt)
		}
		run.Results[task.Worker] = result
	}
	status := run.Tasks[i].Status
	e.mu.Unlock()

	e.bc.BroadcastEvent(ctx, broadcast.EventTaskFinished, map[string]any{
		"run_id": run.ID, "task_id": task.ID, "worker": task.Worker, "status": status,
	})
}

func (e *WorkflowEngine) markTaskFailed(run *workflow.Run, i int, msg string) {
	e.mu.Lock()
	run.Tasks[i].Status = workflow.TaskFailed
	run.Tasks[i].Error = msg
	run.Tasks[i].EndedAt = e.now()
	e.mu.Unlock()
}

func (e *WorkflowEngine) skipRemaining(run *workflow.Run, from int, msg string) {
	for i := from; i < len(run.Tasks); i++ {
		if !run.Tasks[i].Status.IsTerminal() {
			e.markTaskFailed(run, i, msg)
		}
	}
}

// synthPayload is the structured decision payload expected from the
// conflict-arbitration reasoning call.
type synthPayload struct {
	Recommendation string `json:"recommendation"`
}

// synthesize aggregates worker results into a single recommendation. The
// deterministic tally decides directly unless the results conflict, in
// which case a reasoning call arbitrates with the tally as fallback.
func (e *WorkflowEngine) synthesize(ctx context.Context, run *workflow.Run) error {
	tally := review.Tally(run.Results)
	recommendation := tally
	summary := summarizeResults(run.Results, tally)

	if review.Conflicting(run.Results) && e.decider != nil {
		e.mu.Lock()
		run.Metrics.ReasoningCalls++
		e.mu.Unlock()

		out := e.decider.Execute(ctx, reasoning.Request{
			Purpose:     "synthesis",
			Prompt:      buildSynthesisPrompt(run, tally),
			MaxTokens:   512,
			Temperature: 0.1,
		}, func() Outcome {
			return Outcome{
				Reasoning:  fmt.Sprintf("severity tally resolves conflict as %s", tally),
				Confidence: 0.5,
			}
		})

		if out.FallbackUsed {
			e.mu.Lock()
			run.Metrics.FallbacksUsed++
			e.mu.Unlock()
		} else {
			var payload synthPayload
			if err := json.Unmarshal(out.Payload, &payload); err == nil {
				if rec := review.Recommendation(payload.Recommendation); rec.Valid() {
					recommendation = rec
					summary = out.Reasoning
				}
			}
		}
	}

	e.mu.Lock()
	run.Recommendation = recommendation
	run.Summary = summary
	e.mu.Unlock()
	return nil
}

// complete closes out run bookkeeping before the engine marks it terminal.
func (e *WorkflowEngine) complete(ctx context.Context, run *workflow.Run) error {
	if workflow.AnyFailed(run.Tasks) {
		slog.Warn("run completing with partial failures",
			"run_id", run.ID,
			"failed_tasks", countFailed(run.Tasks),
		)
	}
	e.bc.BroadcastEvent(ctx, broadcast.EventRunRecommendation, map[string]any{
		"run_id":         run.ID,
		"recommendation": run.Recommendation,
	})
	return nil
}

func (e *WorkflowEngine) resultOf(run *workflow.Run) *workflow.Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap := runSnapshot(run)
	return &workflow.Result{
		RunID:          snap.ID,
		Status:         snap.Status,
		Recommendation: snap.Recommendation,
		Summary:        snap.Summary,
		Results:        snap.Results,
		Metrics:        snap.Metrics,
		Errors:         snap.Errors,
	}
}

func summarizeResults(results map[string]*review.WorkerResult, tally review.Recommendation) string {
	var total, failed int
	var issues int
	for _, r := range results {
		total++
		if r.Status != "completed" {
			failed++
			continue
		}
		issues += len(r.Issues)
	}
	return fmt.Sprintf("%d workers reported %d findings (%d failed); recommendation: %s",
		total, issues, failed, tally)
}

func buildSynthesisPrompt(run *workflow.Run, tally review.Recommendation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Review workers disagree on a change to branch %q.\n", run.Event.Branch)
	for name, r := range run.Results {
		if r.Status != "completed" {
			fmt.Fprintf(&b, "- %s: FAILED (%s)\n", name, r.Summary)
			continue
		}
		worst, ok := r.MaxSeverity()
		if !ok {
			fmt.Fprintf(&b, "- %s: clean\n", name)
			continue
		}
		fmt.Fprintf(&b, "- %s: %d findings, worst %s\n", name, len(r.Issues), worst)
	}
	fmt.Fprintf(&b, "Deterministic tally says %s.\n", tally)
	b.WriteString(`Respond with JSON only: {"reasoning": string, "confidence": number, ` +
		`"recommendation": "approve"|"request_changes"|"comment"|"escalate"}`)
	return b.String()
}

func countFailed(tasks []workflow.Task) int {
	n := 0
	for i := range tasks {
		if tasks[i].Status == workflow.TaskFailed {
			n++
		}
	}
	return n
}

func totalLoad(workers map[string]worker.Health) float64 {
	if len(workers) == 0 {
		return 0
	}
	var sum float64
	for _, h := range workers {
		sum += h.LoadAverage
	}
	return sum / float64(len(workers))
}

// runSnapshot deep-copies the mutable parts of a run. Caller must hold e.mu
// when the run is live.
func runSnapshot(r *workflow.Run) *workflow.Run {
	snap := *r
	snap.Tasks = append([]workflow.Task(nil), r.Tasks...)
	snap.SelectedWorkers = append([]string(nil), r.SelectedWorkers...)
	snap.Errors = append([]workflow.RunError(nil), r.Errors...)
	if r.Results != nil {
		snap.Results = make(map[string]*review.WorkerResult, len(r.Results))
		for k, v := range r.Results {
			cp := *v
			snap.Results[k] = &cp
		}
	}
	return &snap
}
