// Package config provides hierarchical configuration loading for ReviewMesh.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the ReviewMesh core.
type Config struct {
	Server    Server    `yaml:"server"`
	Postgres  Postgres  `yaml:"postgres"`
	NATS      NATS      `yaml:"nats"`
	LiteLLM   LiteLLM   `yaml:"litellm"`
	Logging   Logging   `yaml:"logging"`
	Breaker   Breaker   `yaml:"breaker"`
	Cache     Cache     `yaml:"cache"`
	Router    Router    `yaml:"router"`
	Workflow  Workflow  `yaml:"workflow"`
	Approval  Approval  `yaml:"approval"`
	Telemetry Telemetry `yaml:"telemetry"`
}

// Router holds routing engine configuration.
type Router struct {
	PreferParallelExecution bool          `yaml:"prefer_parallel_execution"` // Parallel strategy already at 2 workers instead of 3
	MaxConcurrentWorkers    int           `yaml:"max_concurrent_workers"`    // Plan truncation limit (default: 4)
	MinConfidenceThreshold  float64       `yaml:"min_confidence_threshold"`  // History counts a decision as a success above this (default: 0.8)
	SkillMatchingWeight     float64       `yaml:"skill_matching_weight"`     // Additive score bonus for skill-rule matches (default: 0.1)
	EnableLLMRouting        bool          `yaml:"enable_llm_routing"`        // Allow the reasoning path at all (default: true)
	LLMRoutingThreshold     float64       `yaml:"llm_routing_threshold"`     // Below this confidence an LLM plan is distrusted (default: 0.7)
	EnableCaching           bool          `yaml:"enable_caching"`            // Decision cache on/off (default: true)
	CacheMaxAge             time.Duration `yaml:"cache_max_age"`             // Decision cache TTL (default: 5m)
	HighLoadThreshold       float64       `yaml:"high_load_threshold"`       // Above this total load, force sequential (default: 0.8)
	BaseTaskMinutes         int           `yaml:"base_task_minutes"`         // Estimated minutes per worker (default: 5)
}

// Workflow holds workflow engine configuration.
type Workflow struct {
	TaskTimeout        time.Duration `yaml:"task_timeout"`          // Per worker task (default: 5m)
	ProductionBranches []string      `yaml:"production_branches"`   // Branches whose runs are gated behind approval
	TestEnvironments   []string      `yaml:"test_environments"`     // Branch prefixes auto-approved as test traffic
	AutoApproveLowRisk bool          `yaml:"auto_approve_low_risk"` // Skip the approval gate for low-risk runs (default: true)
}

// Condition is one trigger predicate on an approval rule. The rule fires
// only when every condition matches the operation's metadata.
type Condition struct {
	Field  string   `yaml:"field"`
	Equals string   `yaml:"equals,omitempty"`
	OneOf  []string `yaml:"one_of,omitempty"`
}

// OperationRule configures the approval policy for one operation type.
type OperationRule struct {
	RequiresApproval bool          `yaml:"requires_approval"`
	Approvers        []string      `yaml:"approvers,omitempty"`     // Authorized roles; empty falls back to privileged-role matching
	MinApprovals     int           `yaml:"min_approvals,omitempty"` // 0 uses the severity default
	Timeout          time.Duration `yaml:"timeout,omitempty"`       // 0 uses the global approval timeout
	Conditions       []Condition   `yaml:"conditions,omitempty"`
}

// Approval holds two-man-rule configuration.
type Approval struct {
	Timeout                time.Duration            `yaml:"timeout"`                  // Request expiry (default: 30m)
	AllowSelfApproval      bool                     `yaml:"allow_self_approval"`      // default: false
	EmergencyOverride      bool                     `yaml:"emergency_override"`       // default: false
	EmergencyOverrideRoles []string                 `yaml:"emergency_override_roles"` // Roles allowed to override
	SweepInterval          time.Duration            `yaml:"sweep_interval"`           // Expiry sweep period (default: 60s)
	MaxAuditEntries        int                      `yaml:"max_audit_entries"`        // Audit ring cap (default: 1000)
	Operations             map[string]OperationRule `yaml:"operations"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// Postgres holds PostgreSQL connection configuration. An empty DSN selects
// the in-memory approval store.
type Postgres struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
	HealthCheck     time.Duration `yaml:"health_check"`
}

// NATS holds NATS JetStream configuration for the worker transport.
type NATS struct {
	URL         string        `yaml:"url"`
	TaskTimeout time.Duration `yaml:"task_timeout"` // Wait for a worker result (default: 5m)
}

// LiteLLM holds the reasoning-call backend configuration.
type LiteLLM struct {
	URL       string        `yaml:"url"`
	MasterKey string        `yaml:"master_key"`
	Model     string        `yaml:"model"`
	Timeout   time.Duration `yaml:"timeout"` // Per reasoning call (default: 20s)
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Breaker holds circuit breaker configuration for the reasoning call.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Retries     int           `yaml:"retries"`     // Attempts per reasoning call (default: 2)
	RetryDelay  time.Duration `yaml:"retry_delay"` // Pause between attempts (default: 500ms)
}

// Cache holds decision cache sizing.
type Cache struct {
	MaxSizeMB int64 `yaml:"max_size_mb"`
}

// Telemetry holds OpenTelemetry export configuration.
type Telemetry struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:       "8080",
			CORSOrigin: "http://localhost:3000",
		},
		Postgres: Postgres{
			DSN:             "",
			MaxConns:        10,
			MinConns:        2,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 10 * time.Minute,
			HealthCheck:     time.Minute,
		},
		NATS: NATS{
			URL:         "nats://localhost:4222",
			TaskTimeout: 5 * time.Minute,
		},
		LiteLLM: LiteLLM{
			URL:     "http://localhost:4000",
			Model:   "openai/gpt-4o-mini",
			Timeout: 20 * time.Second,
		},
		Logging: Logging{
			Level:   "info",
			Service: "reviewmesh-core",
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
			Retries:     2,
			RetryDelay:  500 * time.Millisecond,
		},
		Cache: Cache{
			MaxSizeMB: 32,
		},
		Router: Router{
			PreferParallelExecution: false,
			MaxConcurrentWorkers:    4,
			MinConfidenceThreshold:  0.8,
			SkillMatchingWeight:     0.1,
			EnableLLMRouting:        true,
			LLMRoutingThreshold:     0.7,
			EnableCaching:           true,
			CacheMaxAge:             5 * time.Minute,
			HighLoadThreshold:       0.8,
			BaseTaskMinutes:         5,
		},
		Workflow: Workflow{
			TaskTimeout:        5 * time.Minute,
			ProductionBranches: []string{"main", "master", "production"},
			TestEnvironments:   []string{"test/", "sandbox/"},
			AutoApproveLowRisk: true,
		},
		Approval: Approval{
			Timeout:         30 * time.Minute,
			SweepInterval:   60 * time.Second,
			MaxAuditEntries: 1000,
			Operations: map[string]OperationRule{
				approvalDefaultOp: {RequiresApproval: true},
			},
		},
		Telemetry: Telemetry{
			Endpoint: "localhost:4317",
		},
	}
}

// approvalDefaultOp is the rule applied when an operation has no explicit entry.
const approvalDefaultOp = "production_merge"
