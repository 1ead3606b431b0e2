package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Strob0t/ReviewMesh/internal/config"
	"github.com/Strob0t/ReviewMesh/internal/port/reasoning"
	"github.com/Strob0t/ReviewMesh/internal/resilience"
)

// Outcome is the uniform envelope every decision call resolves to. The
// fallback path is a first-class branch: when the reasoning call cannot be
// used, FallbackUsed is set and the caller-supplied deterministic decision
// fills the envelope. Execute never returns an error.
type Outcome struct {
	Reasoning      string          `json:"reasoning"`
	Confidence     float64         `json:"confidence"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	FallbackUsed   bool            `json:"fallback_used"`
	FallbackReason string          `json:"fallback_reason,omitempty"`
}

// DecisionExecutor wraps a single reasoning call with a circuit breaker,
// a per-call timeout and bounded retries. Callers always supply a
// deterministic fallback.
type DecisionExecutor struct {
	llm        reasoning.Caller
	breaker    *resilience.Breaker
	attempts   int
	retryDelay time.Duration
	timeout    time.Duration
}

// NewDecisionExecutor creates a DecisionExecutor. A nil caller disables the
// reasoning path entirely; every Execute then resolves to the fallback.
func NewDecisionExecutor(llm reasoning.Caller, breakerCfg config.Breaker, callTimeout time.Duration) *DecisionExecutor {
	return &DecisionExecutor{
		llm:        llm,
		breaker:    resilience.NewBreaker(breakerCfg.MaxFailures, breakerCfg.Timeout),
		attempts:   breakerCfg.Retries,
		retryDelay: breakerCfg.RetryDelay,
		timeout:    callTimeout,
	}
}

// Available reports whether the reasoning path can currently be attempted.
func (e *DecisionExecutor) Available() bool {
	return e.llm != nil && !e.breaker.Open()
}

// Execute runs the reasoning call and returns its outcome, or the fallback
// outcome when the call is unavailable, errors, or times out.
func (e *DecisionExecutor) Execute(ctx context.Context, req reasoning.Request, fallback func() Outcome) Outcome {
	if e.llm == nil {
		out := fallback()
		out.FallbackUsed = true
		out.FallbackReason = "reasoning backend not configured"
		return out
	}

	var decision *reasoning.Decision
	err := resilience.Retry(ctx, e.attempts, e.retryDelay, func(ctx context.Context) error {
		return e.breaker.Execute(func() error {
			callCtx, cancel := context.WithTimeout(ctx, e.timeout)
			defer cancel()

			d, callErr := e.llm.Decide(callCtx, req)
			if callErr != nil {
				return callErr
			}
			decision = d
			return nil
		})
	})
	if err != nil {
		slog.Warn("reasoning call failed, using deterministic fallback",
			"purpose", req.Purpose,
			"error", err,
		)
		out := fallback()
		out.FallbackUsed = true
		out.FallbackReason = err.Error()
		return out
	}

	return Outcome{
		Reasoning:  decision.Reasoning,
		Confidence: clamp01(decision.Confidence),
		Payload:    decision.Payload,
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
