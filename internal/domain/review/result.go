// Package review defines the worker result model and the deterministic
// aggregation of per-worker findings into a single recommendation.
package review

import "time"

// Severity grades a single finding.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities for comparison; higher is worse.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// Issue is a single finding reported by an analysis worker.
type Issue struct {
	Severity Severity `json:"severity"`
	Title    string   `json:"title"`
	File     string   `json:"file,omitempty"`
	Line     int      `json:"line,omitempty"`
	Detail   string   `json:"detail,omitempty"`
}

// WorkerResult is the typed outcome of one worker task.
type WorkerResult struct {
	Worker   string        `json:"worker"`
	Status   string        `json:"status"` // "completed" or "failed"
	Issues   []Issue       `json:"issues"`
	Summary  string        `json:"summary"`
	Duration time.Duration `json:"duration"`
}

// MaxSeverity returns the worst severity among the result's issues.
// The second return is false when the result has no issues.
func (r *WorkerResult) MaxSeverity() (Severity, bool) {
	var worst Severity
	for _, is := range r.Issues {
		if is.Severity.Rank() > worst.Rank() {
			worst = is.Severity
		}
	}
	return worst, worst != ""
}

// Recommendation is the aggregate outcome of a review run.
type Recommendation string

const (
	RecommendApprove        Recommendation = "approve"
	RecommendRequestChanges Recommendation = "request_changes"
	RecommendComment        Recommendation = "comment"
	RecommendEscalate       Recommendation = "escalate"
)

// Valid reports whether r is a known recommendation.
func (r Recommendation) Valid() bool {
	switch r {
	case RecommendApprove, RecommendRequestChanges, RecommendComment, RecommendEscalate:
		return true
	}
	return false
}

// recommendFor maps the worst severity seen to a recommendation.
func recommendFor(worst Severity) Recommendation {
	switch worst {
	case SeverityCritical:
		return RecommendEscalate
	case SeverityHigh:
		return RecommendRequestChanges
	case SeverityMedium, SeverityLow:
		return RecommendComment
	default:
		return RecommendApprove
	}
}

// Tally is the deterministic severity tally: the worst issue across all
// completed results decides the recommendation.
func Tally(results map[string]*WorkerResult) Recommendation {
	var worst Severity
	for _, r := range results {
		if r == nil || r.Status != "completed" {
			continue
		}
		if s, ok := r.MaxSeverity(); ok && s.Rank() > worst.Rank() {
			worst = s
		}
	}
	return recommendFor(worst)
}

// Conflicting reports whether the results disagree enough that a reasoning
// call should arbitrate: some workers would approve while others would block,
// or some workers failed while others succeeded.
func Conflicting(results map[string]*WorkerResult) bool {
	var clean, blocking, failed, completed int
	for _, r := range results {
		if r == nil {
			continue
		}
		if r.Status != "completed" {
			failed++
			continue
		}
		completed++
		s, ok := r.MaxSeverity()
		if !ok || s.Rank() <= SeverityLow.Rank() {
			clean++
		} else if s.Rank() >= SeverityHigh.Rank() {
			blocking++
		}
	}
	if clean > 0 && blocking > 0 {
		return true
	}
	return failed > 0 && completed > 0
}
