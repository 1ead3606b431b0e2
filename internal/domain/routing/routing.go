// Package routing defines the routing plan and decision produced for a
// triggering event: which workers analyze the change and under what
// execution strategy.
package routing

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Strategy is the concurrency strategy for executing worker tasks.
type Strategy string

const (
	StrategyParallel   Strategy = "parallel"
	StrategySequential Strategy = "sequential"
	StrategyHybrid     Strategy = "hybrid"
)

// Valid reports whether s is one of the known strategies.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyParallel, StrategySequential, StrategyHybrid:
		return true
	}
	return false
}

// Plan is the chosen worker set and execution strategy for one event.
// A plan is immutable once built and always names at least one worker.
type Plan struct {
	Primary          string   `json:"primary"`
	Supporting       []string `json:"supporting"`
	Strategy         Strategy `json:"strategy"`
	EstimatedMinutes int      `json:"estimated_minutes"`
	Confidence       float64  `json:"confidence"`
	Reasoning        string   `json:"reasoning"`
}

// ErrNoWorkers indicates a plan without a primary worker.
var ErrNoWorkers = errors.New("routing plan names no workers")

// Validate checks the plan invariant: at least one worker, known strategy.
func (p *Plan) Validate() error {
	if p.Primary == "" {
		return ErrNoWorkers
	}
	if !p.Strategy.Valid() {
		return fmt.Errorf("unknown strategy %q", p.Strategy)
	}
	return nil
}

// Workers returns the primary followed by the supporting workers.
func (p *Plan) Workers() []string {
	ws := make([]string, 0, 1+len(p.Supporting))
	ws = append(ws, p.Primary)
	ws = append(ws, p.Supporting...)
	return ws
}

// WorkerScore is one worker's composite routing score.
type WorkerScore struct {
	Worker string  `json:"worker"`
	Score  float64 `json:"score"`
}

// Decision wraps a plan with the metadata the caller and the history scorer
// need. Decisions are created once per route call and discarded after the
// workflow consumes them; the router keeps only a bounded history.
type Decision struct {
	Plan             Plan          `json:"plan"`
	Confidence       float64       `json:"confidence"`
	Alternatives     []Plan        `json:"alternatives,omitempty"`
	Scores           []WorkerScore `json:"scores,omitempty"`
	CacheHit         bool          `json:"cache_hit"`
	ReasoningUsed    bool          `json:"reasoning_used"`
	FallbackUsed     bool          `json:"fallback_used"`
	EstimatedCostUSD float64       `json:"estimated_cost_usd"`
	Reliability      float64       `json:"reliability"`
	DecidedAt        time.Time     `json:"decided_at"`
}

// CacheKey builds the canonical cache key for a routing decision:
// event type, file count, branch, sorted worker names, and system load
// rounded to two decimals. Identical contexts map to identical keys.
func CacheKey(eventType string, fileCount int, branch string, workerNames []string, totalLoad float64) string {
	names := make([]string, len(workerNames))
	copy(names, workerNames)
	sort.Strings(names)
	return fmt.Sprintf("%s|%d|%s|%s|%.2f", eventType, fileCount, branch, strings.Join(names, ","), totalLoad)
}
