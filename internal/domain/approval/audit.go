package approval

import (
	"sync"
	"time"
)

// AuditEntry records one action against an approval request. Entries are
// immutable once appended.
type AuditEntry struct {
	ID        string            `json:"id"`
	At        time.Time         `json:"at"`
	Action    string            `json:"action"`
	RequestID string            `json:"request_id"`
	Actor     string            `json:"actor"`
	Detail    map[string]string `json:"detail,omitempty"`
}

// Audit action names.
const (
	AuditCreated    = "created"
	AuditApproved   = "approved"
	AuditRejected   = "rejected"
	AuditCancelled  = "cancelled"
	AuditExpired    = "expired"
	AuditOverridden = "emergency_override"
	AuditGranted    = "quorum_granted"
	AuditAutoGrant  = "auto_approved"
)

// AuditLog is an append-only, capped in-memory audit trail. When the entry
// count exceeds the configured maximum, the oldest half is dropped so memory
// stays bounded.
type AuditLog struct {
	mu      sync.Mutex
	max     int
	entries []AuditEntry
}

// NewAuditLog creates an audit log holding at most max entries.
func NewAuditLog(max int) *AuditLog {
	if max < 2 {
		max = 2
	}
	return &AuditLog{max: max}
}

// Append records an entry, truncating to the most recent half when the cap
// is exceeded.
func (l *AuditLog) Append(e AuditEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, e)
	if len(l.entries) > l.max {
		keep := l.max / 2
		l.entries = append(l.entries[:0:0], l.entries[len(l.entries)-keep:]...)
	}
}

// Entries returns a copy of the retained entries, oldest first.
func (l *AuditLog) Entries() []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// ByRequest returns the retained entries for one request, oldest first.
func (l *AuditLog) ByRequest(requestID string) []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []AuditEntry
	for _, e := range l.entries {
		if e.RequestID == requestID {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of retained entries.
func (l *AuditLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
