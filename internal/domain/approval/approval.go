// Package approval defines the two-man-rule domain model: approval requests,
// votes, severity-derived quorums and the audit trail.
package approval

import (
	"errors"
	"strings"
	"time"
)

// Status is the lifecycle state of an approval request. Every status except
// pending is terminal; a request is never reused once terminal.
type Status string

const (
	StatusPending           Status = "pending"
	StatusApproved          Status = "approved"
	StatusRejected          Status = "rejected"
	StatusCancelled         Status = "cancelled"
	StatusExpired           Status = "expired"
	StatusEmergencyOverride Status = "emergency_override"
)

// IsTerminal returns true for every status except pending.
func (s Status) IsTerminal() bool {
	return s != StatusPending
}

// Severity grades how dangerous an operation is. It drives the quorum.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// RequiredApprovers returns the default quorum for a severity:
// critical and high operations need two independent approvers, the rest one.
func (s Severity) RequiredApprovers() int {
	if s == SeverityCritical || s == SeverityHigh {
		return 2
	}
	return 1
}

// Well-known operation types gated behind dual authorization.
const (
	OpProductionMerge  = "production_merge"
	OpProductionDeploy = "production_deploy"
	OpForcePush        = "force_push"
	OpConfigChange     = "config_change"
	OpEmergencyBypass  = "emergency_bypass"
)

// operationSeverity is the fixed operation-type-to-severity mapping.
// Unknown operations default to medium.
var operationSeverity = map[string]Severity{
	OpProductionMerge:  SeverityHigh,
	OpProductionDeploy: SeverityCritical,
	OpForcePush:        SeverityHigh,
	OpConfigChange:     SeverityMedium,
	OpEmergencyBypass:  SeverityCritical,
}

// SeverityFor returns the severity for an operation type.
func SeverityFor(op string) Severity {
	if s, ok := operationSeverity[op]; ok {
		return s
	}
	return SeverityMedium
}

// privilegedRoleMarkers authorize a role when no explicit approver role list
// is configured for the operation.
var privilegedRoleMarkers = []string{"admin", "lead", "senior", "principal"}

// PrivilegedRole reports whether the role contains a privileged marker.
func PrivilegedRole(role string) bool {
	lr := strings.ToLower(role)
	for _, m := range privilegedRoleMarkers {
		if strings.Contains(lr, m) {
			return true
		}
	}
	return false
}

// Vote is one approver's decision on a request. Votes are append-only and an
// approver appears at most once per request.
type Vote struct {
	Approver   string    `json:"approver"`
	Role       string    `json:"role"`
	At         time.Time `json:"at"`
	Reason     string    `json:"reason,omitempty"`
	Confidence float64   `json:"confidence"`
}

// Request is one dual-authorization request. Created on demand when a
// critical operation is detected and terminal once any terminal status is
// reached.
type Request struct {
	ID                string            `json:"id"`
	Operation         string            `json:"operation"`
	Requester         string            `json:"requester"`
	Severity          Severity          `json:"severity"`
	Status            Status            `json:"status"`
	RequiredApprovers int               `json:"required_approvers"`
	Approvals         []Vote            `json:"approvals"`
	Rejections        []Vote            `json:"rejections"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	ExpiresAt         time.Time         `json:"expires_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// HasVoted reports whether the approver already voted on this request.
func (r *Request) HasVoted(approver string) bool {
	for _, v := range r.Approvals {
		if v.Approver == approver {
			return true
		}
	}
	for _, v := range r.Rejections {
		if v.Approver == approver {
			return true
		}
	}
	return false
}

// QuorumMet reports whether enough approvals have accumulated.
func (r *Request) QuorumMet() bool {
	return len(r.Approvals) >= r.RequiredApprovers
}

// Expired reports whether the request's expiry has passed at the given time.
func (r *Request) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Authorization and lifecycle errors surfaced to callers of approve/reject.
var (
	ErrNotFound          = errors.New("approval request not found")
	ErrTerminal          = errors.New("approval request already resolved")
	ErrSelfApproval      = errors.New("requester cannot approve their own request")
	ErrDuplicateApprover = errors.New("approver already voted on this request")
	ErrUnauthorizedRole  = errors.New("role is not authorized for this operation")
	ErrNotRequester      = errors.New("only the requester or an administrator can cancel")
	ErrOverrideDisabled  = errors.New("emergency override is not enabled")
)
