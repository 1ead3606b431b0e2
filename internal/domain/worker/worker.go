// Package worker defines health snapshots for the external analysis workers.
package worker

import "time"

// Well-known worker names. Workers are external task executors; these names
// are the routing vocabulary, not an exhaustive registry.
const (
	Security      = "security"
	Quality       = "quality"
	Architecture  = "architecture"
	Documentation = "documentation"
)

// Status is the reported health of a worker.
type Status string

const (
	StatusHealthy     Status = "healthy"
	StatusDegraded    Status = "degraded"
	StatusUnreachable Status = "unreachable"
)

// Score maps a health status onto [0, 1] for routing-score computation.
func (s Status) Score() float64 {
	switch s {
	case StatusHealthy:
		return 1.0
	case StatusDegraded:
		return 0.5
	default:
		return 0.0
	}
}

// ResponseStats summarizes recent response times for a worker.
type ResponseStats struct {
	AvgMillis float64 `json:"avg_millis"`
	P95Millis float64 `json:"p95_millis"`
}

// Health is a read-only snapshot of one worker's state. The registry owns the
// live data; the routing engine only ever sees copies taken per decision.
type Health struct {
	Name          string        `json:"name"`
	Status        Status        `json:"status"`
	LoadAverage   float64       `json:"load_average"`
	UptimePercent float64       `json:"uptime_percent"`
	Response      ResponseStats `json:"response"`
	LastSeen      time.Time     `json:"last_seen"`
}

// Available reports whether the worker can be dispatched to at all.
func (h Health) Available() bool {
	return h.Status != StatusUnreachable
}
