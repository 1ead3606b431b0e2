// Package trigger defines the normalized repository event that starts a review run.
package trigger

import (
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// EventType classifies the repository event that triggered a review.
type EventType string

const (
	EventPush        EventType = "push"
	EventPullRequest EventType = "pull_request"
	EventTag         EventType = "tag"
	EventManual      EventType = "manual"
)

// ChangedFile is a single file touched by the triggering change.
type ChangedFile struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Event is an immutable snapshot of the change that triggered a review.
// Producers (webhook adapters, the manual API) build it once; nothing
// downstream mutates it.
type Event struct {
	Type       EventType     `json:"type"`
	Files      []ChangedFile `json:"files"`
	Branch     string        `json:"branch"`
	CommitHash string        `json:"commit_hash"`
	Author     string        `json:"author"`
	Message    string        `json:"message"`
	ReceivedAt time.Time     `json:"received_at"`
}

// FileCount returns the number of changed files.
func (e *Event) FileCount() int {
	return len(e.Files)
}

// Extensions returns the distinct lowercase file extensions in the changeset,
// sorted for deterministic output. Files without an extension are ignored.
func (e *Event) Extensions() []string {
	seen := make(map[string]bool, len(e.Files))
	for _, f := range e.Files {
		ext := strings.ToLower(filepath.Ext(f.Path))
		if ext != "" {
			seen[ext] = true
		}
	}
	exts := make([]string, 0, len(seen))
	for ext := range seen {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Paths returns the changed file paths in changeset order.
func (e *Event) Paths() []string {
	paths := make([]string, len(e.Files))
	for i, f := range e.Files {
		paths[i] = f.Path
	}
	return paths
}
