package config

import "context"

// Package config provides configuration management for datalens-ai.
//
// Responsibilities:
//   - Load configuration from YAML files and environment variables
//   - Validate configuration on startup
//   - Provide runtime access to all configuration
//   - Support configuration reloading via file watching
//   - Manage sensitive data (LLM API keys)
//   - Establish reasonable defaults
//
// Configuration Sources (priority order, high to low):
//   1. Environment variables (DATALENS_* prefix)
//   2. YAML config file (default: config.yaml next to the binary)
//   3. Built-in defaults (lowest priority)
//
// Main Configuration Sections:
//
//   1. Server
//      - port: Listen port (default 8090)
//      - allowed_origins: CORS origins for the dashboard
//
//   2. Engine
//      - max_anomaly_results: Result cap per detection run
//      - candidate_threshold: Minimum normalized score to retain a row
//      - max_features: Feature-column cap for clustering
//
//   3. LLM
//      - provider: "openai" | "none"
//      - api_key: Chat-completions API key (env DATALENS_LLM_API_KEY or
//        OPENAI_API_KEY)
//      - model: Model name
//      - base_url: Endpoint override for compatible providers
//
//   4. Database
//      - sqlite_path: Path to the SQLite file
//
//   5. Logging
//      - level: "debug" | "info" | "warn" | "error"
//      - format: "json" | "console"
//      - path: Log file (empty = stdout)

// Config contains all configuration fields.
type Config struct {
	Server struct {
		Port           int      `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`

	Engine struct {
		MaxAnomalyResults  int     `yaml:"max_anomaly_results"`
		CandidateThreshold float64 `yaml:"candidate_threshold"`
		MaxFeatures        int     `yaml:"max_features"`
	} `yaml:"engine"`

	LLM struct {
		Provider string `yaml:"provider"`
		APIKey   string `yaml:"api_key"`
		Model    string `yaml:"model"`
		BaseURL  string `yaml:"base_url"`
	} `yaml:"llm"`

	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Path   string `yaml:"path"`
	} `yaml:"logging"`
}

// Manager defines the configuration management interface.
type Manager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error

	// Watch watches for configuration changes and reloads.
	Watch(ctx context.Context) <-chan Config

	// Reload reloads configuration from sources.
	Reload(ctx context.Context) error
}

// NewManager creates a configuration manager for the given config file path.
func NewManager(configPath string) Manager {
	return &viperConfigManager{
		configPath: configPath,
		watchChan:  make(chan Config, 1),
	}
}
