package nats

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/ReviewMesh/internal/domain/review"
	"github.com/Strob0t/ReviewMesh/internal/domain/worker"
)

// fakeMsg stubs the two jetstream.Msg methods the handlers touch.
type fakeMsg struct {
	jetstream.Msg
	data []byte
}

func (m fakeMsg) Data() []byte { return m.data }
func (m fakeMsg) Ack() error   { return nil }

func newTestTransport() *Transport {
	return &Transport{
		timeout: time.Second,
		pending: make(map[string]chan resultEnvelope),
		health:  make(map[string]worker.Health),
		now:     time.Now,
	}
}

func TestResultCorrelation(t *testing.T) {
	tr := newTestTransport()
	ch := tr.register("task-1")

	payload, _ := json.Marshal(resultEnvelope{
		TaskID:  "task-1",
		Worker:  worker.Security,
		Status:  "completed",
		Summary: "clean",
		Issues:  []review.Issue{{Severity: review.SeverityLow, Title: "nit"}},
	})
	tr.handleResult(fakeMsg{data: payload})

	select {
	case envelope := <-ch:
		result := envelope.toResult()
		if result.Worker != worker.Security || result.Status != "completed" {
			t.Fatalf("result = %+v", result)
		}
		if len(result.Issues) != 1 {
			t.Fatalf("issues = %+v", result.Issues)
		}
	default:
		t.Fatal("correlated result not delivered")
	}
}

func TestLateResultIsDropped(t *testing.T) {
	tr := newTestTransport()

	payload, _ := json.Marshal(resultEnvelope{TaskID: "gone", Worker: worker.Quality, Status: "completed"})
	// No pending waiter for this task id; the handler must not block or panic.
	tr.handleResult(fakeMsg{data: payload})

	if len(tr.pending) != 0 {
		t.Fatalf("pending map grew: %v", tr.pending)
	}
}

func TestUnregisterForgetsWaiter(t *testing.T) {
	tr := newTestTransport()
	tr.register("task-1")
	tr.unregister("task-1")
	if len(tr.pending) != 0 {
		t.Fatalf("waiter survived unregister")
	}
}

func TestHeartbeatUpdatesSnapshot(t *testing.T) {
	tr := newTestTransport()

	payload, _ := json.Marshal(heartbeat{
		Name:          worker.Security,
		Status:        string(worker.StatusHealthy),
		LoadAverage:   0.3,
		UptimePercent: 99.5,
	})
	tr.handleStatus(fakeMsg{data: payload})

	snap, err := tr.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	h, ok := snap[worker.Security]
	if !ok {
		t.Fatalf("worker missing from snapshot: %v", snap)
	}
	if h.Status != worker.StatusHealthy || h.LoadAverage != 0.3 {
		t.Fatalf("health = %+v", h)
	}
}

func TestSilentWorkerReportedUnreachable(t *testing.T) {
	tr := newTestTransport()
	current := time.Now()
	tr.now = func() time.Time { return current }

	payload, _ := json.Marshal(heartbeat{Name: worker.Quality, Status: string(worker.StatusHealthy)})
	tr.handleStatus(fakeMsg{data: payload})

	current = current.Add(staleAfter + time.Second)
	snap, _ := tr.Snapshot(context.Background())
	if snap[worker.Quality].Status != worker.StatusUnreachable {
		t.Fatalf("stale worker status = %s, want unreachable", snap[worker.Quality].Status)
	}
}

func TestInvalidHeartbeatIgnored(t *testing.T) {
	tr := newTestTransport()
	tr.handleStatus(fakeMsg{data: []byte("not-json")})

	snap, _ := tr.Snapshot(context.Background())
	if len(snap) != 0 {
		t.Fatalf("snapshot = %v, want empty", snap)
	}
}
