package nats

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/ReviewMesh/internal/domain/worker"
)

// heartbeat is the wire format of one worker health report.
type heartbeat struct {
	Name          string  `json:"name"`
	Status        string  `json:"status"`
	LoadAverage   float64 `json:"load_average"`
	UptimePercent float64 `json:"uptime_percent"`
	AvgMillis     float64 `json:"avg_millis"`
	P95Millis     float64 `json:"p95_millis"`
}

// handleStatus folds a heartbeat into the health map.
func (t *Transport) handleStatus(msg jetstream.Msg) {
	var hb heartbeat
	if err := json.Unmarshal(msg.Data(), &hb); err != nil || hb.Name == "" {
		slog.Error("unparseable worker heartbeat", "error", err)
		_ = msg.Ack()
		return
	}

	t.mu.Lock()
	t.health[hb.Name] = worker.Health{
		Name:          hb.Name,
		Status:        worker.Status(hb.Status),
		LoadAverage:   hb.LoadAverage,
		UptimePercent: hb.UptimePercent,
		Response: worker.ResponseStats{
			AvgMillis: hb.AvgMillis,
			P95Millis: hb.P95Millis,
		},
		LastSeen: t.now(),
	}
	t.mu.Unlock()
	_ = msg.Ack()
}

// Snapshot returns a copy of the current health map. Workers silent for
// longer than the staleness window are reported unreachable rather than
// dropped, so the router can still name them in emergencies.
func (t *Transport) Snapshot(_ context.Context) (map[string]worker.Health, error) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]worker.Health, len(t.health))
	for name, h := range t.health {
		if now.Sub(h.LastSeen) > staleAfter {
			h.Status = worker.StatusUnreachable
		}
		out[name] = h
	}
	return out, nil
}
