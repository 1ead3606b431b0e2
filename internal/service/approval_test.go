package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Strob0t/ReviewMesh/internal/config"
	"github.com/Strob0t/ReviewMesh/internal/domain/approval"
)

func newApprovalService(mutate func(*config.Approval)) *ApprovalService {
	cfg := config.Defaults().Approval
	if mutate != nil {
		mutate(&cfg)
	}
	return NewApprovalService(cfg, nil, nil)
}

func TestQuorumApproval(t *testing.T) {
	svc := newApprovalService(nil)
	ctx := context.Background()

	// production_deploy is critical: quorum of two.
	req, err := svc.CreateRequest(ctx, approval.OpProductionDeploy, "alice", map[string]string{"env": "production"})
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if req.RequiredApprovers != 2 {
		t.Fatalf("required approvers = %d, want 2", req.RequiredApprovers)
	}

	after, err := svc.Approve(ctx, req.ID, "bob", "senior engineer", "looks safe")
	if err != nil {
		t.Fatalf("first approve: %v", err)
	}
	if after.Status != approval.StatusPending {
		t.Fatalf("status after one approval = %s, want pending", after.Status)
	}

	after, err = svc.Approve(ctx, req.ID, "carol", "tech lead", "")
	if err != nil {
		t.Fatalf("second approve: %v", err)
	}
	if after.Status != approval.StatusApproved {
		t.Fatalf("status after quorum = %s, want approved", after.Status)
	}
	if len(after.Approvals) != 2 {
		t.Fatalf("approvals = %d, want 2", len(after.Approvals))
	}
}

func TestSingleRejectionResolvesImmediately(t *testing.T) {
	svc := newApprovalService(nil)
	ctx := context.Background()

	req, _ := svc.CreateRequest(ctx, approval.OpProductionDeploy, "alice", nil)
	if _, err := svc.Approve(ctx, req.ID, "bob", "senior engineer", ""); err != nil {
		t.Fatalf("approve: %v", err)
	}

	after, err := svc.Reject(ctx, req.ID, "carol", "principal engineer", "rollback plan missing")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if after.Status != approval.StatusRejected {
		t.Fatalf("status = %s, want rejected despite a prior approval", after.Status)
	}

	// The request is terminal; further votes must bounce.
	if _, err := svc.Approve(ctx, req.ID, "dave", "admin", ""); !errors.Is(err, approval.ErrTerminal) {
		t.Fatalf("approve after rejection: err = %v, want ErrTerminal", err)
	}
}

func TestApprovalAuthorizationChecks(t *testing.T) {
	svc := newApprovalService(nil)
	ctx := context.Background()

	req, _ := svc.CreateRequest(ctx, approval.OpProductionMerge, "alice", nil)

	if _, err := svc.Approve(ctx, req.ID, "alice", "tech lead", ""); !errors.Is(err, approval.ErrSelfApproval) {
		t.Fatalf("self approval: err = %v, want ErrSelfApproval", err)
	}
	if _, err := svc.Approve(ctx, req.ID, "bob", "intern", ""); !errors.Is(err, approval.ErrUnauthorizedRole) {
		t.Fatalf("unprivileged role: err = %v, want ErrUnauthorizedRole", err)
	}
	if _, err := svc.Approve(ctx, req.ID, "bob", "senior engineer", ""); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := svc.Reject(ctx, req.ID, "bob", "senior engineer", "changed my mind"); !errors.Is(err, approval.ErrDuplicateApprover) {
		t.Fatalf("duplicate vote: err = %v, want ErrDuplicateApprover", err)
	}
}

func TestConfiguredApproverRoleList(t *testing.T) {
	svc := newApprovalService(func(cfg *config.Approval) {
		cfg.Operations["config_change"] = config.OperationRule{
			RequiresApproval: true,
			Approvers:        []string{"release-manager"},
		}
	})
	ctx := context.Background()

	req, _ := svc.CreateRequest(ctx, approval.OpConfigChange, "alice", nil)

	// Privileged substrings do not apply once an explicit list exists.
	if _, err := svc.Approve(ctx, req.ID, "bob", "tech lead", ""); !errors.Is(err, approval.ErrUnauthorizedRole) {
		t.Fatalf("err = %v, want ErrUnauthorizedRole", err)
	}
	after, err := svc.Approve(ctx, req.ID, "bob", "release-manager", "")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if after.Status != approval.StatusApproved {
		t.Fatalf("status = %s, want approved (medium severity, quorum 1)", after.Status)
	}
}

func TestExpirySweep(t *testing.T) {
	svc := newApprovalService(func(cfg *config.Approval) {
		cfg.Timeout = 10 * time.Minute
	})
	ctx := context.Background()

	current := time.Now()
	svc.now = func() time.Time { return current }

	req, _ := svc.CreateRequest(ctx, approval.OpProductionMerge, "alice", nil)

	if n := svc.SweepExpired(ctx); n != 0 {
		t.Fatalf("sweep expired %d fresh requests", n)
	}

	current = current.Add(11 * time.Minute)
	if n := svc.SweepExpired(ctx); n != 1 {
		t.Fatalf("sweep expired %d requests, want 1", n)
	}

	got, err := svc.Get(ctx, req.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != approval.StatusExpired {
		t.Fatalf("status = %s, want expired", got.Status)
	}

	// An expired request never becomes approved, even with valid votes.
	if _, err := svc.Approve(ctx, req.ID, "bob", "senior engineer", ""); !errors.Is(err, approval.ErrTerminal) {
		t.Fatalf("approve after expiry: err = %v, want ErrTerminal", err)
	}
}

func TestEmergencyOverride(t *testing.T) {
	ctx := context.Background()

	disabled := newApprovalService(nil)
	req, _ := disabled.CreateRequest(ctx, approval.OpProductionDeploy, "alice", nil)
	if _, err := disabled.EmergencyOverride(ctx, req.ID, "bob", "admin", "incident"); !errors.Is(err, approval.ErrOverrideDisabled) {
		t.Fatalf("err = %v, want ErrOverrideDisabled", err)
	}

	enabled := newApprovalService(func(cfg *config.Approval) {
		cfg.EmergencyOverride = true
		cfg.EmergencyOverrideRoles = []string{"sre-oncall"}
	})
	req, _ = enabled.CreateRequest(ctx, approval.OpProductionDeploy, "alice", nil)

	if _, err := enabled.EmergencyOverride(ctx, req.ID, "bob", "tech lead", "incident"); !errors.Is(err, approval.ErrUnauthorizedRole) {
		t.Fatalf("err = %v, want ErrUnauthorizedRole for off-list role", err)
	}
	after, err := enabled.EmergencyOverride(ctx, req.ID, "bob", "sre-oncall", "incident INC-42")
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	if after.Status != approval.StatusEmergencyOverride {
		t.Fatalf("status = %s, want emergency_override", after.Status)
	}
}

func TestCancelRequiresRequesterOrAdmin(t *testing.T) {
	svc := newApprovalService(nil)
	ctx := context.Background()

	req, _ := svc.CreateRequest(ctx, approval.OpProductionMerge, "alice", nil)
	if _, err := svc.Cancel(ctx, req.ID, "bob", "senior engineer"); !errors.Is(err, approval.ErrNotRequester) {
		t.Fatalf("err = %v, want ErrNotRequester", err)
	}
	after, err := svc.Cancel(ctx, req.ID, "alice", "developer")
	if err != nil {
		t.Fatalf("cancel by requester: %v", err)
	}
	if after.Status != approval.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", after.Status)
	}
}

func TestWaitForDecision(t *testing.T) {
	svc := newApprovalService(nil)
	ctx := context.Background()

	req, _ := svc.CreateRequest(ctx, approval.OpProductionMerge, "alice", nil)

	done := make(chan bool, 1)
	go func() {
		granted, err := svc.WaitForDecision(ctx, req.ID, 2*time.Second)
		if err != nil {
			t.Errorf("WaitForDecision: %v", err)
		}
		done <- granted
	}()

	// production_merge is high severity: two approvals reach quorum.
	time.Sleep(10 * time.Millisecond)
	if _, err := svc.Approve(ctx, req.ID, "bob", "tech lead", ""); err != nil {
		t.Fatalf("first approve: %v", err)
	}
	if _, err := svc.Approve(ctx, req.ID, "carol", "senior engineer", ""); err != nil {
		t.Fatalf("second approve: %v", err)
	}

	select {
	case granted := <-done:
		if !granted {
			t.Fatalf("waiter saw rejection for an approved request")
		}
	case <-time.After(time.Second):
		t.Fatalf("waiter did not resolve")
	}
}

func TestWaitForDecisionTimesOutAsNotApproved(t *testing.T) {
	svc := newApprovalService(nil)
	ctx := context.Background()

	req, _ := svc.CreateRequest(ctx, approval.OpProductionMerge, "alice", nil)

	granted, err := svc.WaitForDecision(ctx, req.ID, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForDecision: %v", err)
	}
	if granted {
		t.Fatalf("timeout must resolve to not approved")
	}
}

func TestAuditTrailRecordsLifecycle(t *testing.T) {
	svc := newApprovalService(nil)
	ctx := context.Background()

	req, _ := svc.CreateRequest(ctx, approval.OpProductionMerge, "alice", nil)
	if _, err := svc.Approve(ctx, req.ID, "bob", "tech lead", ""); err != nil {
		t.Fatalf("first approve: %v", err)
	}
	if _, err := svc.Approve(ctx, req.ID, "carol", "senior engineer", ""); err != nil {
		t.Fatalf("second approve: %v", err)
	}

	var actions []string
	for _, e := range svc.AuditTrail(req.ID) {
		actions = append(actions, e.Action)
	}
	want := []string{approval.AuditCreated, approval.AuditApproved, approval.AuditApproved, approval.AuditGranted}
	if len(actions) != len(want) {
		t.Fatalf("audit actions = %v, want %v", actions, want)
	}
	for i := range want {
		if actions[i] != want[i] {
			t.Fatalf("audit actions = %v, want %v", actions, want)
		}
	}
}
