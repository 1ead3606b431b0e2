package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Strob0t/ReviewMesh/internal/config"
	"github.com/Strob0t/ReviewMesh/internal/domain/routing"
	"github.com/Strob0t/ReviewMesh/internal/domain/trigger"
	"github.com/Strob0t/ReviewMesh/internal/domain/worker"
	"github.com/Strob0t/ReviewMesh/internal/port/decisioncache"
	"github.com/Strob0t/ReviewMesh/internal/port/reasoning"
)

const (
	// historyLimit bounds the retained decision history used for trend scoring.
	historyLimit = 100
	// perfCacheTTL bounds how long a worker's historical success rate is reused.
	perfCacheTTL = 5 * time.Minute
	// defaultSuccessRate is assumed for workers with no decision history.
	defaultSuccessRate = 0.8
	// emergencyConfidence marks decisions produced by the last-resort path.
	emergencyConfidence = 0.3
	// fallbackConfidence marks deterministic plans used after a failed
	// reasoning call.
	fallbackConfidence = 0.6
	// deterministicConfidence marks plans from the heuristic-only path.
	deterministicConfidence = 0.8
)

// RouteContext carries everything one routing decision needs: the triggering
// event, a read-only worker health snapshot, optional skill rules mapping a
// worker to the file extensions it specializes in, and current system load.
type RouteContext struct {
	Event      *trigger.Event
	Workers    map[string]worker.Health
	SkillRules map[string][]string
	TotalLoad  float64
}

type perfEntry struct {
	rate float64
	at   time.Time
}

// RouterService is the routing engine: it turns a trigger event plus worker
// health into a routing decision, using deterministic heuristics and an
// optional reasoning call behind a strict fallback ladder. Route never
// returns an error and never returns a plan without a worker.
type RouterService struct {
	cfg   config.Router
	exec  *DecisionExecutor
	cache decisioncache.Cache // nil disables caching

	mu        sync.Mutex
	history   []routing.Decision
	perfCache map[string]perfEntry
	observers []func(routing.Decision)

	now func() time.Time // for testing
}

// NewRouterService creates a RouterService. exec may be nil to disable the
// reasoning path, cache may be nil to disable decision caching.
func NewRouterService(cfg config.Router, exec *DecisionExecutor, cache decisioncache.Cache) *RouterService {
	return &RouterService{
		cfg:       cfg,
		exec:      exec,
		cache:     cache,
		perfCache: make(map[string]perfEntry),
		now:       time.Now,
	}
}

// AddOnDecision registers a callback invoked after every routing decision.
// Callbacks run synchronously on the routing goroutine; keep them cheap.
func (s *RouterService) AddOnDecision(fn func(routing.Decision)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// History returns a copy of the retained decision history, oldest first.
func (s *RouterService) History() []routing.Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]routing.Decision, len(s.history))
	copy(out, s.history)
	return out
}

// Route produces a routing decision for the given context. All failure modes
// collapse into progressively less confident plans; the caller always
// receives a usable decision.
func (s *RouterService) Route(ctx context.Context, rc RouteContext) (decision routing.Decision) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("routing pipeline panicked, using emergency fallback", "panic", r)
			decision = s.emergencyDecision(rc, fmt.Sprintf("routing pipeline failure: %v", r))
			s.finish(ctx, decision, false)
		}
	}()

	if rc.Event == nil {
		decision = s.emergencyDecision(rc, "no trigger event supplied")
		s.finish(ctx, decision, false)
		return decision
	}

	key := routing.CacheKey(string(rc.Event.Type), rc.Event.FileCount(), rc.Event.Branch, workerNames(rc.Workers), rc.TotalLoad)
	if cached, ok := s.cacheLookup(ctx, key); ok {
		cached.CacheHit = true
		s.notify(cached)
		return cached
	}

	req := routing.Analyze(rc.Event)
	detPlan := s.deterministicPlan(req, rc)

	var plan routing.Plan
	fallbackUsed := false
	reasoned := false
	if s.useReasoning(req, rc) {
		plan, fallbackUsed = s.reasonedPlan(ctx, req, rc, detPlan)
		reasoned = !fallbackUsed
	} else {
		plan = detPlan
	}

	plan, scores := s.optimize(plan, rc)

	decision = routing.Decision{
		Plan:             plan,
		Confidence:       plan.Confidence,
		Scores:           scores,
		ReasoningUsed:    reasoned,
		FallbackUsed:     fallbackUsed,
		EstimatedCostUSD: estimateCost(plan, fallbackUsed),
		Reliability:      averageScore(scores),
		DecidedAt:        s.now(),
	}
	if plan.Reasoning != detPlan.Reasoning {
		decision.Alternatives = []routing.Plan{detPlan}
	}

	s.cacheStore(ctx, key, decision)
	s.finish(ctx, decision, true)
	return decision
}

// finish applies the decision's side effects: history append and observers.
func (s *RouterService) finish(_ context.Context, d routing.Decision, record bool) {
	if record {
		s.mu.Lock()
		s.history = append(s.history, d)
		if len(s.history) > historyLimit {
			s.history = s.history[len(s.history)-historyLimit:]
		}
		s.mu.Unlock()
	}
	s.notify(d)
}

func (s *RouterService) notify(d routing.Decision) {
	s.mu.Lock()
	obs := make([]func(routing.Decision), len(s.observers))
	copy(obs, s.observers)
	s.mu.Unlock()
	for _, fn := range obs {
		fn(d)
	}
}

// useReasoning decides whether this context warrants the higher-latency
// reasoning call.
func (s *RouterService) useReasoning(req routing.Requirements, rc RouteContext) bool {
	if !s.cfg.EnableLLMRouting || s.exec == nil || !s.exec.Available() {
		return false
	}
	if req.Complexity == routing.LevelHigh || req.Risk == routing.LevelHigh {
		return true
	}
	if req.EstimatedWorkers > 3 {
		return true
	}
	return availableCount(rc.Workers) < req.EstimatedWorkers
}

// routePayload is the structured decision payload expected from the
// reasoning backend.
type routePayload struct {
	Workers          []string `json:"workers"`
	Strategy         string   `json:"strategy"`
	EstimatedMinutes int      `json:"estimated_minutes"`
}

// reasonedPlan invokes the decision executor with the deterministic plan as
// its fallback. Any failure mode — call error, unparseable payload, empty
// worker list, confidence under the routing threshold — resolves to the
// deterministic plan at the fixed fallback confidence.
func (s *RouterService) reasonedPlan(ctx context.Context, req routing.Requirements, rc RouteContext, detPlan routing.Plan) (routing.Plan, bool) {
	out := s.exec.Execute(ctx, reasoning.Request{
		Purpose:     "routing",
		Prompt:      buildRoutingPrompt(rc.Event, req, rc.Workers),
		MaxTokens:   512,
		Temperature: 0.1,
	}, func() Outcome {
		return Outcome{Reasoning: detPlan.Reasoning, Confidence: detPlan.Confidence}
	})

	if out.FallbackUsed {
		return fallbackPlan(detPlan, out.FallbackReason), true
	}

	var payload routePayload
	if err := json.Unmarshal(out.Payload, &payload); err != nil {
		return fallbackPlan(detPlan, fmt.Sprintf("unparseable reasoning payload: %v", err)), true
	}

	workers := knownWorkers(payload.Workers, rc.Workers)
	if len(workers) == 0 {
		return fallbackPlan(detPlan, "reasoning payload named no known workers"), true
	}
	if out.Confidence < s.cfg.LLMRoutingThreshold {
		return fallbackPlan(detPlan, fmt.Sprintf("reasoning confidence %.2f below threshold", out.Confidence)), true
	}

	strategy := routing.Strategy(payload.Strategy)
	if !strategy.Valid() {
		strategy = detPlan.Strategy
	}
	minutes := payload.EstimatedMinutes
	if minutes <= 0 {
		minutes = s.cfg.BaseTaskMinutes * len(workers)
	}

	return routing.Plan{
		Primary:          workers[0],
		Supporting:       workers[1:],
		Strategy:         strategy,
		EstimatedMinutes: minutes,
		Confidence:       out.Confidence,
		Reasoning:        out.Reasoning,
	}, false
}

func fallbackPlan(det routing.Plan, reason string) routing.Plan {
	p := det
	p.Confidence = fallbackConfidence
	p.Reasoning = "deterministic fallback: " + reason
	return p
}

// deterministicPlan selects workers from the requirement heuristics and the
// optional skill rules, keeps only currently healthy ones (reverting to the
// unfiltered list if that would empty the selection), and guarantees at
// least one worker.
func (s *RouterService) deterministicPlan(req routing.Requirements, rc RouteContext) routing.Plan {
	selected := append([]string(nil), req.Workers...)

	// Skill rules add workers whose declared extensions match the changeset.
	exts := rc.Event.Extensions()
	for _, name := range sortedKeys(rc.SkillRules) {
		if containsAny(rc.SkillRules[name], exts) && !contains(selected, name) {
			selected = append(selected, name)
		}
	}

	healthy := make([]string, 0, len(selected))
	for _, name := range selected {
		if h, ok := rc.Workers[name]; ok && h.Status == worker.StatusHealthy {
			healthy = append(healthy, name)
		}
	}
	if len(healthy) > 0 {
		selected = healthy
	}
	if len(selected) == 0 {
		if name := firstAvailable(rc.Workers); name != "" {
			selected = []string{name}
		} else {
			selected = []string{worker.Quality}
		}
	}

	strategy := routing.StrategySequential
	threshold := 2
	if s.cfg.PreferParallelExecution {
		threshold = 1
	}
	if len(selected) > threshold {
		strategy = routing.StrategyParallel
	}

	return routing.Plan{
		Primary:          selected[0],
		Supporting:       selected[1:],
		Strategy:         strategy,
		EstimatedMinutes: s.cfg.BaseTaskMinutes * len(selected),
		Confidence:       deterministicConfidence,
		Reasoning: fmt.Sprintf("heuristic selection: complexity=%s risk=%s workers=%s",
			req.Complexity, req.Risk, strings.Join(selected, ",")),
	}
}

// optimize re-scores and re-sorts the selected workers, applies load
// backpressure, and truncates to the configured concurrency limit.
func (s *RouterService) optimize(plan routing.Plan, rc RouteContext) (routing.Plan, []routing.WorkerScore) {
	workers := plan.Workers()

	scores := make([]routing.WorkerScore, len(workers))
	for i, name := range workers {
		scores[i] = routing.WorkerScore{Worker: name, Score: s.scoreWorker(name, rc)}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })

	if len(scores) > s.cfg.MaxConcurrentWorkers {
		scores = scores[:s.cfg.MaxConcurrentWorkers]
	}

	ordered := make([]string, len(scores))
	for i, ws := range scores {
		ordered[i] = ws.Worker
	}

	optimized := plan
	optimized.Primary = ordered[0]
	optimized.Supporting = ordered[1:]
	if len(ordered) != len(workers) {
		optimized.EstimatedMinutes = s.cfg.BaseTaskMinutes * len(ordered)
	}
	// Backpressure: high system load forces one-at-a-time execution.
	if rc.TotalLoad > s.cfg.HighLoadThreshold {
		optimized.Strategy = routing.StrategySequential
	}
	return optimized, scores
}

// scoreWorker computes the composite routing score:
// 0.4*health + 0.3*(1-min(1,load)) + 0.2*history + 0.1*(uptime/100),
// plus the configured skill-matching bonus when the worker's declared
// extensions match the changeset.
func (s *RouterService) scoreWorker(name string, rc RouteContext) float64 {
	var health, loadTerm, uptime float64
	if h, ok := rc.Workers[name]; ok {
		health = h.Status.Score()
		load := h.LoadAverage
		if load > 1 {
			load = 1
		}
		loadTerm = 1 - load
		uptime = h.UptimePercent / 100
	}

	score := 0.4*health + 0.3*loadTerm + 0.2*s.historicalSuccessRate(name) + 0.1*uptime
	if rc.Event != nil && containsAny(rc.SkillRules[name], rc.Event.Extensions()) {
		score += s.cfg.SkillMatchingWeight
	}
	return score
}

// historicalSuccessRate is the fraction of this worker's past decisions with
// confidence above the configured threshold, defaulting when no history
// exists and cached for five minutes.
func (s *RouterService) historicalSuccessRate(name string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.perfCache[name]; ok && s.now().Sub(e.at) < perfCacheTTL {
		return e.rate
	}

	var total, successes int
	for i := range s.history {
		if !contains(s.history[i].Plan.Workers(), name) {
			continue
		}
		total++
		if s.history[i].Confidence >= s.cfg.MinConfidenceThreshold {
			successes++
		}
	}

	rate := defaultSuccessRate
	if total > 0 {
		rate = float64(successes) / float64(total)
	}
	s.perfCache[name] = perfEntry{rate: rate, at: s.now()}
	return rate
}

// emergencyDecision is the last-resort path: a single best-effort worker at
// low confidence. Used when the pipeline fails or the context is unusable.
func (s *RouterService) emergencyDecision(rc RouteContext, reason string) routing.Decision {
	name := firstAvailable(rc.Workers)
	if name == "" {
		name = worker.Quality
	}
	plan := routing.Plan{
		Primary:          name,
		Strategy:         routing.StrategySequential,
		EstimatedMinutes: s.cfg.BaseTaskMinutes,
		Confidence:       emergencyConfidence,
		Reasoning:        "emergency fallback: " + reason,
	}
	return routing.Decision{
		Plan:         plan,
		Confidence:   emergencyConfidence,
		FallbackUsed: true,
		Reliability:  emergencyConfidence,
		DecidedAt:    s.now(),
	}
}

func (s *RouterService) cacheLookup(ctx context.Context, key string) (routing.Decision, bool) {
	if !s.cfg.EnableCaching || s.cache == nil {
		return routing.Decision{}, false
	}
	data, ok, err := s.cache.Get(ctx, key)
	if err != nil || !ok {
		return routing.Decision{}, false
	}
	var d routing.Decision
	if err := json.Unmarshal(data, &d); err != nil {
		return routing.Decision{}, false
	}
	return d, true
}

func (s *RouterService) cacheStore(ctx context.Context, key string, d routing.Decision) {
	if !s.cfg.EnableCaching || s.cache == nil {
		return
	}
	data, err := json.Marshal(d)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.cfg.CacheMaxAge); err != nil {
		slog.Warn("decision cache write failed", "error", err)
	}
}

// buildRoutingPrompt renders the reasoning-call instruction for a routing
// decision.
func buildRoutingPrompt(ev *trigger.Event, req routing.Requirements, workers map[string]worker.Health) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Select review workers for a repository change.\n")
	fmt.Fprintf(&b, "Event: type=%s branch=%s files=%d author=%s\n", ev.Type, ev.Branch, ev.FileCount(), ev.Author)
	fmt.Fprintf(&b, "Message: %s\n", ev.Message)
	fmt.Fprintf(&b, "Analysis: complexity=%s risk=%s suggested=%s\n", req.Complexity, req.Risk, strings.Join(req.Workers, ","))
	fmt.Fprintf(&b, "Available workers:\n")
	for _, name := range workerNames(workers) {
		h := workers[name]
		fmt.Fprintf(&b, "- %s: status=%s load=%.2f uptime=%.1f%%\n", name, h.Status, h.LoadAverage, h.UptimePercent)
	}
	b.WriteString(`Respond with JSON only: {"reasoning": string, "confidence": number, ` +
		`"workers": [string], "strategy": "parallel"|"sequential"|"hybrid", "estimated_minutes": number}`)
	return b.String()
}

func estimateCost(plan routing.Plan, fallbackUsed bool) float64 {
	cost := 0.002 * float64(len(plan.Workers()))
	if !fallbackUsed && plan.Confidence != deterministicConfidence {
		cost += 0.02 // reasoning call
	}
	return cost
}

func averageScore(scores []routing.WorkerScore) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, ws := range scores {
		sum += ws.Score
	}
	return sum / float64(len(scores))
}

func workerNames(m map[string]worker.Health) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func firstAvailable(m map[string]worker.Health) string {
	for _, name := range workerNames(m) {
		if m[name].Available() {
			return name
		}
	}
	// Any worker at all beats none.
	names := workerNames(m)
	if len(names) > 0 {
		return names[0]
	}
	return ""
}

// availableCount counts workers currently able to take a task.
func availableCount(m map[string]worker.Health) int {
	n := 0
	for _, h := range m {
		if h.Available() {
			n++
		}
	}
	return n
}

// knownWorkers filters names down to workers present in the registry
// snapshot, preserving order and dropping duplicates. The reasoning backend
// is free-form text underneath; never trust it to name real workers.
func knownWorkers(names []string, m map[string]worker.Health) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := m[name]; ok && !contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsAny(list, candidates []string) bool {
	for _, c := range candidates {
		if contains(list, c) {
			return true
		}
	}
	return false
}
