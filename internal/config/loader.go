package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "reviewmesh.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "REVIEWMESH_PORT")
	setString(&cfg.Server.CORSOrigin, "REVIEWMESH_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "REVIEWMESH_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "REVIEWMESH_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "REVIEWMESH_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "REVIEWMESH_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "REVIEWMESH_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setDuration(&cfg.NATS.TaskTimeout, "REVIEWMESH_TASK_TIMEOUT")
	setString(&cfg.LiteLLM.URL, "LITELLM_URL")
	setString(&cfg.LiteLLM.MasterKey, "LITELLM_MASTER_KEY")
	setString(&cfg.LiteLLM.Model, "REVIEWMESH_LLM_MODEL")
	setDuration(&cfg.LiteLLM.Timeout, "REVIEWMESH_LLM_TIMEOUT")
	setString(&cfg.Logging.Level, "REVIEWMESH_LOG_LEVEL")
	setString(&cfg.Logging.Service, "REVIEWMESH_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "REVIEWMESH_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "REVIEWMESH_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "REVIEWMESH_BREAKER_TIMEOUT")
	setInt(&cfg.Breaker.Retries, "REVIEWMESH_BREAKER_RETRIES")
	setDuration(&cfg.Breaker.RetryDelay, "REVIEWMESH_BREAKER_RETRY_DELAY")
	setInt64(&cfg.Cache.MaxSizeMB, "REVIEWMESH_CACHE_SIZE_MB")

	// Router
	setBool(&cfg.Router.PreferParallelExecution, "REVIEWMESH_ROUTER_PREFER_PARALLEL")
	setInt(&cfg.Router.MaxConcurrentWorkers, "REVIEWMESH_ROUTER_MAX_CONCURRENT")
	setFloat64(&cfg.Router.MinConfidenceThreshold, "REVIEWMESH_ROUTER_MIN_CONFIDENCE")
	setFloat64(&cfg.Router.SkillMatchingWeight, "REVIEWMESH_ROUTER_SKILL_WEIGHT")
	setBool(&cfg.Router.EnableLLMRouting, "REVIEWMESH_ROUTER_LLM_ENABLED")
	setFloat64(&cfg.Router.LLMRoutingThreshold, "REVIEWMESH_ROUTER_LLM_THRESHOLD")
	setBool(&cfg.Router.EnableCaching, "REVIEWMESH_ROUTER_CACHE_ENABLED")
	setDuration(&cfg.Router.CacheMaxAge, "REVIEWMESH_ROUTER_CACHE_MAX_AGE")
	setFloat64(&cfg.Router.HighLoadThreshold, "REVIEWMESH_ROUTER_HIGH_LOAD")

	// Workflow
	setDuration(&cfg.Workflow.TaskTimeout, "REVIEWMESH_WORKFLOW_TASK_TIMEOUT")
	setBool(&cfg.Workflow.AutoApproveLowRisk, "REVIEWMESH_WORKFLOW_AUTO_APPROVE_LOW_RISK")

	// Approval
	setDuration(&cfg.Approval.Timeout, "REVIEWMESH_APPROVAL_TIMEOUT")
	setBool(&cfg.Approval.AllowSelfApproval, "REVIEWMESH_APPROVAL_ALLOW_SELF")
	setBool(&cfg.Approval.EmergencyOverride, "REVIEWMESH_APPROVAL_EMERGENCY_OVERRIDE")
	setDuration(&cfg.Approval.SweepInterval, "REVIEWMESH_APPROVAL_SWEEP_INTERVAL")
	setInt(&cfg.Approval.MaxAuditEntries, "REVIEWMESH_APPROVAL_MAX_AUDIT")

	// Telemetry
	setBool(&cfg.Telemetry.Enabled, "REVIEWMESH_OTEL_ENABLED")
	setString(&cfg.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Router.MaxConcurrentWorkers < 1 {
		return errors.New("router.max_concurrent_workers must be >= 1")
	}
	if cfg.Router.MinConfidenceThreshold < 0 || cfg.Router.MinConfidenceThreshold > 1 {
		return errors.New("router.min_confidence_threshold must be in [0, 1]")
	}
	if cfg.Approval.Timeout <= 0 {
		return errors.New("approval.timeout must be positive")
	}
	if cfg.Approval.MaxAuditEntries < 2 {
		return errors.New("approval.max_audit_entries must be >= 2")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
