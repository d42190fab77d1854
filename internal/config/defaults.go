package config

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Server defaults
	cfg.Server.Port = 8090
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000"}

	// Engine defaults
	cfg.Engine.MaxAnomalyResults = 15
	cfg.Engine.CandidateThreshold = 0.1
	cfg.Engine.MaxFeatures = 10

	// LLM defaults
	cfg.LLM.Provider = "none"
	cfg.LLM.Model = "gpt-4o"
	cfg.LLM.BaseURL = ""

	// Database defaults
	cfg.Database.SQLitePath = "data/datalens.db"

	// Logging defaults
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.Path = ""

	return cfg
}
