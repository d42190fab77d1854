package config

import "fmt"

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", c.Server.Port),
		})
	}

	if c.Engine.MaxAnomalyResults < 1 {
		errs = append(errs, &ValidationError{
			Field:   "engine.max_anomaly_results",
			Message: fmt.Sprintf("must be at least 1, got %d", c.Engine.MaxAnomalyResults),
		})
	}

	if c.Engine.CandidateThreshold < 0 || c.Engine.CandidateThreshold >= 1 {
		errs = append(errs, &ValidationError{
			Field:   "engine.candidate_threshold",
			Message: fmt.Sprintf("must be in [0, 1), got %g", c.Engine.CandidateThreshold),
		})
	}

	if c.Engine.MaxFeatures < 2 {
		errs = append(errs, &ValidationError{
			Field:   "engine.max_features",
			Message: fmt.Sprintf("clustering needs at least 2 features, got %d", c.Engine.MaxFeatures),
		})
	}

	switch c.LLM.Provider {
	case "none", "":
	case "openai":
		if c.LLM.APIKey == "" {
			errs = append(errs, &ValidationError{
				Field:   "llm.api_key",
				Message: "api_key is required when provider is openai",
			})
		}
	default:
		errs = append(errs, &ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("unknown provider %q", c.LLM.Provider),
		})
	}

	if c.Database.SQLitePath == "" {
		errs = append(errs, &ValidationError{
			Field:   "database.sqlite_path",
			Message: "sqlite_path is required",
		})
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("unknown level %q", c.Logging.Level),
		})
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, &ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("unknown format %q", c.Logging.Format),
		})
	}

	return errs
}
