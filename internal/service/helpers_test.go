package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Strob0t/ReviewMesh/internal/config"
	"github.com/Strob0t/ReviewMesh/internal/domain/trigger"
	"github.com/Strob0t/ReviewMesh/internal/domain/worker"
	"github.com/Strob0t/ReviewMesh/internal/port/reasoning"
)

// fakeCaller is a scripted reasoning backend.
type fakeCaller struct {
	mu       sync.Mutex
	calls    int
	decision *reasoning.Decision
	err      error
}

func (f *fakeCaller) Decide(_ context.Context, _ reasoning.Request) (*reasoning.Decision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.decision, nil
}

func (f *fakeCaller) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func scriptedDecision(confidence float64, payload any) *reasoning.Decision {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return &reasoning.Decision{
		Reasoning:  "scripted",
		Confidence: confidence,
		Payload:    raw,
	}
}

// memCache is a map-backed decision cache with no eviction.
type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string][]byte)}
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[key]
	return data, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *memCache) Close() {}

func testExecutor(llm reasoning.Caller) *DecisionExecutor {
	return NewDecisionExecutor(llm, config.Breaker{
		MaxFailures: 10,
		Timeout:     time.Second,
		Retries:     1,
		RetryDelay:  time.Millisecond,
	}, time.Second)
}

// testEvent builds a push event with count files per extension.
func testEvent(branch, message string, count int, exts ...string) *trigger.Event {
	var files []trigger.ChangedFile
	for i := 0; i < count; i++ {
		ext := exts[i%len(exts)]
		files = append(files, trigger.ChangedFile{
			Path: fmt.Sprintf("pkg/file%d%s", i, ext),
			Size: 128,
		})
	}
	return &trigger.Event{
		Type:       trigger.EventPush,
		Files:      files,
		Branch:     branch,
		CommitHash: "abc123",
		Author:     "dev",
		Message:    message,
		ReceivedAt: time.Now(),
	}
}

func healthyWorkers(names ...string) map[string]worker.Health {
	m := make(map[string]worker.Health, len(names))
	for _, name := range names {
		m[name] = worker.Health{
			Name:          name,
			Status:        worker.StatusHealthy,
			LoadAverage:   0.2,
			UptimePercent: 99,
			LastSeen:      time.Now(),
		}
	}
	return m
}
