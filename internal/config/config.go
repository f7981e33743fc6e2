package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the process-wide configuration shared by every agent and team
// runtime hosted in this process. Individual agents still carry their own
// AgentConfig (model, system prompt, tool allowlist); this covers what's
// common to the whole process: where it listens, how it logs, which LLM
// providers and tool policies are available by default.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Auth          AuthConfig          `yaml:"auth"`
	Runtime       RuntimeDefaults     `yaml:"runtime"`
	Plugins       PluginsConfig       `yaml:"plugins"`
	LLM           LLMConfig           `yaml:"llm"`
	Tools         ToolsConfig         `yaml:"tools"`
	Tasks         TasksConfig         `yaml:"tasks"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig configures the optional control-plane surface (approval
// callbacks, health checks, Prometheus scrape endpoint).
type ServerConfig struct {
	Host        string `yaml:"host"`
	HTTPPort    int    `yaml:"http_port"`
	MetricsPort int    `yaml:"metrics_port"`
}

// DatabaseConfig configures persistence for transcripts and snapshots.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxConnections  int           `yaml:"max_connections"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RuntimeDefaults seeds AgentConfig fields that aren't otherwise specified
// when a new agent is bootstrapped.
type RuntimeDefaults struct {
	// MaxIterations bounds the number of EXECUTING_TOOL -> AWAITING_LLM
	// round trips a single turn may take before forcing completion.
	MaxIterations int `yaml:"max_iterations"`

	// IdleTimeout is how long an agent may sit in IDLE before the shutdown
	// orchestrator may reclaim it.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// WorkspaceRoot is the parent directory new agent workspaces are
	// created under when AgentConfig.WorkspaceDir is unset.
	WorkspaceRoot string `yaml:"workspace_root"`

	// SnapshotDir is the parent directory agent runtime-state snapshots
	// are written to when AgentConfig.SnapshotPath is unset.
	SnapshotDir string `yaml:"snapshot_dir"`

	// WorkerPoolSize bounds the shared OS-thread pool every agent's
	// worker draws from.
	WorkerPoolSize int `yaml:"worker_pool_size"`
}

// PluginsConfig controls loading of external event-sink / hook plugins.
type PluginsConfig struct {
	Enabled bool     `yaml:"enabled"`
	Dirs    []string `yaml:"dirs"`
}

const (
	defaultHost           = "0.0.0.0"
	defaultHTTPPort       = 8080
	defaultMetricsPort    = 9090
	defaultMaxConnections = 25
	defaultConnLifetime   = 5 * time.Minute
	defaultTokenExpiry    = 24 * time.Hour
	defaultMaxIterations  = 25
	defaultIdleTimeout    = 10 * time.Minute
	defaultWorkerPool     = 32
)

// Load reads, env-expands, and validates a YAML config file, resolving
// $include directives via LoadRaw.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}

	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyDatabaseDefaults(&cfg.Database)
	applyAuthDefaults(&cfg.Auth)
	applyRuntimeDefaults(&cfg.Runtime)
	applyToolsDefaults(&cfg.Tools)
	applyLoggingDefaults(&cfg.Logging)
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Host == "" {
		cfg.Host = defaultHost
	}
	if cfg.HTTPPort == 0 {
		cfg.HTTPPort = defaultHTTPPort
	}
	if cfg.MetricsPort == 0 {
		cfg.MetricsPort = defaultMetricsPort
	}
}

func applyDatabaseDefaults(cfg *DatabaseConfig) {
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = defaultMaxConnections
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = defaultConnLifetime
	}
}

func applyAuthDefaults(cfg *AuthConfig) {
	if cfg.TokenExpiry == 0 {
		cfg.TokenExpiry = defaultTokenExpiry
	}
}

func applyRuntimeDefaults(cfg *RuntimeDefaults) {
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = defaultMaxIterations
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.WorkspaceRoot == "" {
		cfg.WorkspaceRoot = "./workspaces"
	}
	if cfg.SnapshotDir == "" {
		cfg.SnapshotDir = "./snapshots"
	}
	if cfg.WorkerPoolSize == 0 {
		cfg.WorkerPoolSize = defaultWorkerPool
	}
}

func applyToolsDefaults(cfg *ToolsConfig) {
	if cfg.Policies.Default == "" {
		cfg.Policies.Default = "deny"
	}
	if cfg.Execution.MaxIterations == 0 {
		cfg.Execution.MaxIterations = defaultMaxIterations
	}
	if cfg.Execution.Parallelism == 0 {
		cfg.Execution.Parallelism = 4
	}
	if cfg.Execution.Timeout == 0 {
		cfg.Execution.Timeout = 2 * time.Minute
	}
	if cfg.Execution.Approval.DefaultDecision == "" {
		cfg.Execution.Approval.DefaultDecision = "pending"
	}
	if cfg.Execution.Approval.RequestTTL == 0 {
		cfg.Execution.Approval.RequestTTL = 15 * time.Minute
	}
	if cfg.Jobs.Retention == 0 {
		cfg.Jobs.Retention = 24 * time.Hour
	}
	if cfg.Jobs.PruneInterval == 0 {
		cfg.Jobs.PruneInterval = time.Hour
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if value := strings.TrimSpace(os.Getenv("AGENTRT_HOST")); value != "" {
		cfg.Server.Host = value
	}
	if value := strings.TrimSpace(os.Getenv("AGENTRT_HTTP_PORT")); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			cfg.Server.HTTPPort = parsed
		}
	}
	if value := strings.TrimSpace(os.Getenv("AGENTRT_METRICS_PORT")); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			cfg.Server.MetricsPort = parsed
		}
	}
	if value := strings.TrimSpace(os.Getenv("DATABASE_URL")); value != "" {
		cfg.Database.URL = value
	}
	if value := strings.TrimSpace(os.Getenv("JWT_SECRET")); value != "" {
		cfg.Auth.JWTSecret = value
	}
	if value := strings.TrimSpace(os.Getenv("AGENTRT_JWT_SECRET")); value != "" {
		cfg.Auth.JWTSecret = value
	}
	if value := strings.TrimSpace(os.Getenv("AGENTRT_TOKEN_EXPIRY")); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			cfg.Auth.TokenExpiry = parsed
		}
	}
}

// ConfigValidationError reports one or more structural config problems,
// optionally enriched by a registered PluginValidator.
type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validateConfig(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	var issues []string

	if cfg.Runtime.MaxIterations < 0 {
		issues = append(issues, "runtime.max_iterations must be >= 0")
	}
	if cfg.Tools.Execution.Parallelism < 0 {
		issues = append(issues, "tools.execution.parallelism must be >= 0")
	}
	if cfg.Tools.Policies.Default != "" && cfg.Tools.Policies.Default != "allow" && cfg.Tools.Policies.Default != "deny" {
		issues = append(issues, `tools.policies.default must be "allow" or "deny"`)
	}
	decision := cfg.Tools.Execution.Approval.DefaultDecision
	if decision != "" && decision != "allowed" && decision != "denied" && decision != "pending" {
		issues = append(issues, `tools.execution.approval.default_decision must be "allowed", "denied", or "pending"`)
	}
	if cfg.Logging.Level != "" && !validLogLevel(cfg.Logging.Level) {
		issues = append(issues, "logging.level must be one of debug, info, warn, error")
	}

	issues = append(issues, pluginValidationIssues(cfg)...)

	if len(issues) > 0 {
		return &ConfigValidationError{Issues: issues}
	}
	return nil
}

func validLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}
