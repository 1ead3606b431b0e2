package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Router.MaxConcurrentWorkers != 4 {
		t.Errorf("expected max_concurrent_workers 4, got %d", cfg.Router.MaxConcurrentWorkers)
	}
	if cfg.Router.LLMRoutingThreshold != 0.7 {
		t.Errorf("expected llm_routing_threshold 0.7, got %v", cfg.Router.LLMRoutingThreshold)
	}
	if cfg.Approval.Timeout != 30*time.Minute {
		t.Errorf("expected approval timeout 30m, got %v", cfg.Approval.Timeout)
	}
	if cfg.Breaker.Timeout != 30*time.Second {
		t.Errorf("expected breaker timeout 30s, got %v", cfg.Breaker.Timeout)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "test.yaml")

	content := `
server:
  port: "9090"
  cors_origin: "http://example.com"
router:
  max_concurrent_workers: 2
  high_load_threshold: 0.6
workflow:
  production_branches: ["main", "release"]
logging:
  level: "debug"
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.CORSOrigin != "http://example.com" {
		t.Errorf("expected cors http://example.com, got %s", cfg.Server.CORSOrigin)
	}
	if cfg.Router.MaxConcurrentWorkers != 2 {
		t.Errorf("expected max_concurrent_workers 2, got %d", cfg.Router.MaxConcurrentWorkers)
	}
	if cfg.Router.HighLoadThreshold != 0.6 {
		t.Errorf("expected high_load_threshold 0.6, got %v", cfg.Router.HighLoadThreshold)
	}
	if len(cfg.Workflow.ProductionBranches) != 2 || cfg.Workflow.ProductionBranches[1] != "release" {
		t.Errorf("expected production branches [main release], got %v", cfg.Workflow.ProductionBranches)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
	// Unchanged fields keep defaults
	if cfg.Router.BaseTaskMinutes != 5 {
		t.Errorf("expected default base_task_minutes 5, got %d", cfg.Router.BaseTaskMinutes)
	}
}

func TestLoadYAMLApprovalRules(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "test.yaml")

	content := `
approval:
  emergency_override: true
  emergency_override_roles: ["incident-commander"]
  operations:
    config_change:
      requires_approval: true
      approvers: ["release-manager"]
      min_approvals: 1
      conditions:
        - field: environment
          one_of: ["staging", "production"]
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err != nil {
		t.Fatal(err)
	}

	rule, ok := cfg.Approval.Operations["config_change"]
	if !ok {
		t.Fatalf("config_change rule missing: %v", cfg.Approval.Operations)
	}
	if !rule.RequiresApproval || rule.MinApprovals != 1 {
		t.Errorf("rule = %+v", rule)
	}
	if len(rule.Conditions) != 1 || rule.Conditions[0].Field != "environment" {
		t.Errorf("conditions = %+v", rule.Conditions)
	}
	if !cfg.Approval.EmergencyOverride || len(cfg.Approval.EmergencyOverrideRoles) != 1 {
		t.Errorf("override config = %+v", cfg.Approval)
	}
	// The default production_merge rule survives alongside the new one.
	if _, ok := cfg.Approval.Operations["production_merge"]; !ok {
		t.Error("default production_merge rule should survive a partial override")
	}
}

func TestLoadYAMLMissing(t *testing.T) {
	cfg := Defaults()
	err := loadYAML(&cfg, "/nonexistent/path.yaml")
	if err != nil {
		t.Errorf("missing YAML should not error, got %v", err)
	}
}

func TestEnvOverride(t *testing.T) {
	cfg := Defaults()

	t.Setenv("REVIEWMESH_PORT", "7070")
	t.Setenv("DATABASE_URL", "postgres://test:test@db:5432/test")
	t.Setenv("REVIEWMESH_ROUTER_MAX_CONCURRENT", "6")
	t.Setenv("REVIEWMESH_ROUTER_LLM_ENABLED", "false")
	t.Setenv("REVIEWMESH_LOG_LEVEL", "warn")
	t.Setenv("REVIEWMESH_BREAKER_TIMEOUT", "1m")
	t.Setenv("REVIEWMESH_APPROVAL_TIMEOUT", "10m")

	loadEnv(&cfg)

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port 7070, got %s", cfg.Server.Port)
	}
	if cfg.Postgres.DSN != "postgres://test:test@db:5432/test" {
		t.Errorf("expected test DSN, got %s", cfg.Postgres.DSN)
	}
	if cfg.Router.MaxConcurrentWorkers != 6 {
		t.Errorf("expected max_concurrent_workers 6, got %d", cfg.Router.MaxConcurrentWorkers)
	}
	if cfg.Router.EnableLLMRouting {
		t.Error("expected llm routing disabled")
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected log level warn, got %s", cfg.Logging.Level)
	}
	if cfg.Breaker.Timeout != time.Minute {
		t.Errorf("expected breaker timeout 1m, got %v", cfg.Breaker.Timeout)
	}
	if cfg.Approval.Timeout != 10*time.Minute {
		t.Errorf("expected approval timeout 10m, got %v", cfg.Approval.Timeout)
	}
}

func TestValidateRequired(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{
			name:   "empty port",
			modify: func(c *Config) { c.Server.Port = "" },
			errMsg: "server.port is required",
		},
		{
			name:   "empty NATS URL",
			modify: func(c *Config) { c.NATS.URL = "" },
			errMsg: "nats.url is required",
		},
		{
			name:   "zero breaker failures",
			modify: func(c *Config) { c.Breaker.MaxFailures = 0 },
			errMsg: "breaker.max_failures must be >= 1",
		},
		{
			name:   "zero concurrent workers",
			modify: func(c *Config) { c.Router.MaxConcurrentWorkers = 0 },
			errMsg: "router.max_concurrent_workers must be >= 1",
		},
		{
			name:   "confidence out of range",
			modify: func(c *Config) { c.Router.MinConfidenceThreshold = 1.5 },
			errMsg: "router.min_confidence_threshold must be in [0, 1]",
		},
		{
			name:   "zero approval timeout",
			modify: func(c *Config) { c.Approval.Timeout = 0 },
			errMsg: "approval.timeout must be positive",
		},
		{
			name:   "audit ring too small",
			modify: func(c *Config) { c.Approval.MaxAuditEntries = 1 },
			errMsg: "approval.max_audit_entries must be >= 2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.modify(&cfg)
			err := validate(&cfg)
			if err == nil {
				t.Fatalf("expected error %q, got nil", tt.errMsg)
			}
			if err.Error() != tt.errMsg {
				t.Errorf("expected %q, got %q", tt.errMsg, err.Error())
			}
		})
	}
}

func TestValidateDefaults(t *testing.T) {
	cfg := Defaults()
	if err := validate(&cfg); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}
