// Package nats implements the worker transport over NATS JetStream: task
// dispatch to the analysis workers, result correlation, and consumption of
// worker health heartbeats.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/ReviewMesh/internal/config"
	"github.com/Strob0t/ReviewMesh/internal/domain/worker"
)

const (
	streamName = "REVIEWMESH"

	// subjectTaskPrefix carries task dispatches, one subject per worker.
	subjectTaskPrefix = "review.tasks."
	// subjectResults carries worker results, correlated by task id.
	subjectResults = "review.results"
	// subjectStatus carries periodic worker health heartbeats.
	subjectStatus = "workers.status"

	// staleAfter is how long a worker may go silent before its last
	// heartbeat is reported as unreachable.
	staleAfter = 90 * time.Second
)

// Transport connects the core to the analysis workers over JetStream. It is
// both the task executor and the worker health source.
type Transport struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]chan resultEnvelope
	health  map[string]worker.Health
	stops   []func()

	now func() time.Time // for testing
}

// Connect establishes the NATS connection, ensures the stream exists, and
// starts the result and heartbeat consumers.
func Connect(ctx context.Context, cfg config.NATS) (*Transport, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{"review.>", "workers.>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	t := &Transport{
		nc:      nc,
		js:      js,
		timeout: cfg.TaskTimeout,
		pending: make(map[string]chan resultEnvelope),
		health:  make(map[string]worker.Health),
		now:     time.Now,
	}

	if err := t.consume(ctx, subjectResults, t.handleResult); err != nil {
		nc.Close()
		return nil, err
	}
	if err := t.consume(ctx, subjectStatus, t.handleStatus); err != nil {
		t.Close()
		return nil, err
	}

	slog.Info("nats connected", "url", cfg.URL, "stream", streamName)
	return t, nil
}

func (t *Transport) consume(ctx context.Context, subject string, handle func(jetstream.Msg)) error {
	consumer, err := t.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("nats consumer create %s: %w", subject, err)
	}

	cons, err := consumer.Consume(handle)
	if err != nil {
		return fmt.Errorf("nats consume %s: %w", subject, err)
	}

	t.mu.Lock()
	t.stops = append(t.stops, cons.Stop)
	t.mu.Unlock()
	return nil
}

// Close stops the consumers and shuts down the connection.
func (t *Transport) Close() {
	t.mu.Lock()
	stops := t.stops
	t.stops = nil
	t.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
	t.nc.Close()
}
