package config

import (
	"github.com/seetharamtessell/opsexec/errors"
)

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime failures deep inside the engine.
func Validate(cfg *Config) error {
	if cfg.Engine.MaxTimeoutSeconds < 0 {
		return errors.NewValidationError("engine.max_timeout_seconds must be >= 0, got %d", cfg.Engine.MaxTimeoutSeconds)
	}
	if cfg.Engine.DefaultTimeoutSeconds < 0 {
		return errors.NewValidationError("engine.default_timeout_seconds must be >= 0, got %d", cfg.Engine.DefaultTimeoutSeconds)
	}
	if cfg.Engine.MaxTimeoutSeconds > 0 && cfg.Engine.DefaultTimeoutSeconds > cfg.Engine.MaxTimeoutSeconds {
		return errors.NewValidationError(
			"engine.default_timeout_seconds (%d) exceeds engine.max_timeout_seconds (%d)",
			cfg.Engine.DefaultTimeoutSeconds, cfg.Engine.MaxTimeoutSeconds)
	}
	if cfg.Engine.MaxConcurrent < 1 {
		return errors.NewValidationError("engine.max_concurrent must be >= 1, got %d", cfg.Engine.MaxConcurrent)
	}
	if cfg.Engine.MaxOutputBytes < 0 {
		return errors.NewValidationError("engine.max_output_bytes must be >= 0, got %d", cfg.Engine.MaxOutputBytes)
	}
	if cfg.Engine.RatePerMinute < 0 {
		return errors.NewValidationError("engine.rate_per_minute must be >= 0, got %d", cfg.Engine.RatePerMinute)
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return errors.NewValidationError("server.port must be in [0, 65535], got %d", cfg.Server.Port)
	}
	return nil
}
